package pipeline

import (
	"github.com/vango-dev/framepipe/pkg/geom"
	"github.com/vango-dev/framepipe/pkg/node"
)

// Layer is the painted output of one node's subtree.
type Layer struct {
	Node   node.ID
	Bounds geom.Rect
	// Payload is the recorded picture. Its type is owned by the tree.
	Payload any
}

// IsEmpty reports whether the layer covers no area.
func (l Layer) IsEmpty() bool { return l.Bounds.IsEmpty() }

// optimizeLayers drops empty layers and layers whose ancestor also produced a
// layer in the same pass, since the ancestor's layer already records that
// subtree. The relative order of the kept layers is unchanged.
func optimizeLayers(layers []Layer, tree PaintTree) []Layer {
	painted := make(map[node.ID]struct{}, len(layers))
	for _, l := range layers {
		if !l.IsEmpty() {
			painted[l.Node] = struct{}{}
		}
	}
	out := layers[:0]
	for _, l := range layers {
		if l.IsEmpty() || coveredByAncestor(l.Node, tree, painted) {
			continue
		}
		out = append(out, l)
	}
	clear(layers[len(out):])
	return out
}

func coveredByAncestor(id node.ID, tree PaintTree, painted map[node.ID]struct{}) bool {
	for {
		parent, ok := tree.Parent(id)
		if !ok {
			return false
		}
		if _, hit := painted[parent]; hit {
			return true
		}
		id = parent
	}
}

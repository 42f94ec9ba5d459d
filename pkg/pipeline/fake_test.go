package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/vango-dev/framepipe/pkg/geom"
	"github.com/vango-dev/framepipe/pkg/node"
)

type fakeNode struct {
	parent    node.ID
	children  []node.ID
	depth     int
	component bool
	flags     node.Flags
	size      geom.Size
	offset    geom.Offset
	layoutErr error
	paintErr  error
	onLayout  func()
}

// fakeTree is a minimal Tree. Laying out a node also lays out its children,
// clearing their NeedsLayout the way a real parent layout does.
type fakeTree struct {
	mu        sync.Mutex
	nodes     map[node.ID]*fakeNode
	laidOut   []node.ID
	painted   []node.ID
	rebuilt   []node.ID
	cascade   bool
	rebuildFn func(id node.ID) error
}

func newFakeTree() *fakeTree {
	return &fakeTree{nodes: make(map[node.ID]*fakeNode)}
}

func (t *fakeTree) add(id, parent node.ID) *fakeNode {
	n := &fakeNode{parent: parent}
	if p, ok := t.nodes[parent]; ok {
		n.depth = p.depth + 1
		p.children = append(p.children, id)
	}
	n.flags.Mount(n.depth)
	n.flags.MarkNeedsLayout()
	t.nodes[id] = n
	return n
}

func (t *fakeTree) get(id node.ID) *fakeNode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nodes[id]
}

func (t *fakeTree) Contains(id node.ID) bool { return t.get(id) != nil }

func (t *fakeTree) IsRenderNode(id node.ID) bool {
	n := t.get(id)
	return n != nil && !n.component
}

func (t *fakeTree) Depth(id node.ID) int { return t.get(id).depth }

func (t *fakeTree) NeedsLayout(id node.ID) bool { return t.get(id).flags.NeedsLayout() }

func (t *fakeTree) ClearNeedsLayout(id node.ID) { t.get(id).flags.ClearNeedsLayout() }

func (t *fakeTree) Constraints(id node.ID) (geom.Constraints, bool) {
	return geom.Constraints{}, false
}

func (t *fakeTree) LayoutNode(ctx context.Context, id node.ID, c geom.Constraints) (geom.Size, error) {
	n := t.get(id)
	if n == nil {
		return geom.Size{}, ErrNodeMissing
	}
	if n.layoutErr != nil {
		return geom.Size{}, n.layoutErr
	}
	if n.onLayout != nil {
		n.onLayout()
	}
	t.mu.Lock()
	t.laidOut = append(t.laidOut, id)
	t.mu.Unlock()
	if t.cascade {
		for _, child := range n.children {
			t.get(child).flags.ClearNeedsLayout()
		}
	}
	return c.Constrain(geom.Size{Width: 10, Height: 10}), nil
}

func (t *fakeTree) SetSize(id node.ID, size geom.Size) { t.get(id).size = size }

func (t *fakeTree) Parent(id node.ID) (node.ID, bool) {
	n := t.get(id)
	if n == nil || n.parent == node.None {
		return node.None, false
	}
	return n.parent, true
}

func (t *fakeTree) NeedsPaint(id node.ID) bool { return t.get(id).flags.NeedsPaint() }

func (t *fakeTree) ClearNeedsPaint(id node.ID) { t.get(id).flags.ClearNeedsPaint() }

func (t *fakeTree) MarkNeedsPaint(id node.ID) { t.get(id).flags.MarkNeedsPaint() }

func (t *fakeTree) Offset(id node.ID) geom.Offset { return t.get(id).offset }

func (t *fakeTree) PaintNode(ctx context.Context, id node.ID, offset geom.Offset) (Layer, error) {
	n := t.get(id)
	if n.paintErr != nil {
		return Layer{}, n.paintErr
	}
	t.mu.Lock()
	t.painted = append(t.painted, id)
	t.mu.Unlock()
	return Layer{Bounds: geom.RectFrom(offset, n.size)}, nil
}

func (t *fakeTree) Rebuild(ctx context.Context, id node.ID) error {
	if t.rebuildFn != nil {
		if err := t.rebuildFn(id); err != nil {
			return err
		}
	}
	t.rebuilt = append(t.rebuilt, id)
	t.get(id).flags.MarkNeedsLayout()
	return nil
}

var errBoom = errors.New("boom")

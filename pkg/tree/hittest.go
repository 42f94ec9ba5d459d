package tree

import (
	"github.com/vango-dev/framepipe/pkg/geom"
	"github.com/vango-dev/framepipe/pkg/hittest"
	"github.com/vango-dev/framepipe/pkg/node"
)

// HitTest returns the nodes under pos, deepest first and ending at the root.
// Children are tested in reverse paint order so the topmost sibling wins.
// Results are memoized until the tree's structure or geometry changes.
func (t *Tree) HitTest(pos geom.Offset) []node.ID {
	root := t.Root()
	if root == node.None {
		return nil
	}
	return t.hits.Resolve(pos, root, func() []node.ID {
		t.mu.RLock()
		defer t.mu.RUnlock()
		return t.hitTestLocked(root, geom.Offset{}, pos)
	})
}

// hitTestLocked returns the hit path below and including id, or nil.
func (t *Tree) hitTestLocked(id node.ID, parentOrigin, pos geom.Offset) []node.ID {
	e := t.get(id)
	if e == nil {
		return nil
	}
	origin := parentOrigin.Add(e.offset)
	if !geom.RectFrom(origin, e.size).Contains(pos) {
		return nil
	}
	for i := len(e.children) - 1; i >= 0; i-- {
		if hit := t.hitTestLocked(e.children[i], origin, pos); hit != nil {
			return append(hit, id)
		}
	}
	return []node.ID{id}
}

// HitTestStats returns the hit-test cache statistics.
func (t *Tree) HitTestStats() hittest.Stats {
	return t.hits.Stats()
}

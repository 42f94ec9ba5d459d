package tree

import (
	"context"
	"fmt"

	"github.com/vango-dev/framepipe/pkg/geom"
	"github.com/vango-dev/framepipe/pkg/node"
	"github.com/vango-dev/framepipe/pkg/pipeline"
)

// LayoutContext is handed to a LayoutFunc. It lays out and positions the
// node's children.
type LayoutContext struct {
	ctx  context.Context
	tree *Tree
	id   node.ID
}

// Context returns the pass context.
func (lc *LayoutContext) Context() context.Context { return lc.ctx }

// Node returns the node being laid out.
func (lc *LayoutContext) Node() node.ID { return lc.id }

// Children returns the node's children.
func (lc *LayoutContext) Children() []node.ID { return lc.tree.Children(lc.id) }

// LayoutChild lays out child under c and returns its size. The child's
// NeedsLayout flag is cleared and it is flagged for paint, so a later visit
// by the layout pass in the same frame is skipped.
func (lc *LayoutContext) LayoutChild(child node.ID, c geom.Constraints) (geom.Size, error) {
	t := lc.tree
	t.mu.Lock()
	e := t.get(child)
	if e == nil || e.parent != lc.id {
		t.mu.Unlock()
		return geom.Size{}, fmt.Errorf("%w: %d is not a child of %d", ErrNotFound, child, lc.id)
	}
	e.constraints = c
	e.hasConstraints = true
	t.mu.Unlock()

	size, err := t.layout(lc.ctx, child, c)
	if err != nil {
		return geom.Size{}, err
	}
	t.SetSize(child, size)
	e.flags.ClearNeedsLayout()
	e.flags.MarkNeedsPaint()
	return size, nil
}

// PositionChild sets child's offset relative to the node.
func (lc *LayoutContext) PositionChild(child node.ID, offset geom.Offset) {
	t := lc.tree
	t.mu.Lock()
	e := t.get(child)
	changed := e != nil && e.parent == lc.id && e.offset != offset
	if changed {
		e.offset = offset
	}
	t.mu.Unlock()
	if changed {
		t.hits.Invalidate()
	}
}

// LayoutNode runs id's LayoutFunc. Nodes without one stack their children at
// the origin and take the largest child size.
func (t *Tree) LayoutNode(ctx context.Context, id node.ID, c geom.Constraints) (geom.Size, error) {
	if !t.Contains(id) {
		return geom.Size{}, pipeline.ErrNodeMissing
	}
	return t.layout(ctx, id, c)
}

func (t *Tree) layout(ctx context.Context, id node.ID, c geom.Constraints) (geom.Size, error) {
	e := t.lookup(id)
	if e == nil {
		return geom.Size{}, pipeline.ErrNodeMissing
	}
	lc := &LayoutContext{ctx: ctx, tree: t, id: id}
	if e.spec.Layout != nil {
		size, err := e.spec.Layout(lc, c)
		if err != nil {
			return geom.Size{}, err
		}
		return c.Constrain(size), nil
	}
	var biggest geom.Size
	for _, child := range lc.Children() {
		s, err := lc.LayoutChild(child, c)
		if err != nil {
			return geom.Size{}, err
		}
		lc.PositionChild(child, geom.Offset{})
		biggest.Width = max(biggest.Width, s.Width)
		biggest.Height = max(biggest.Height, s.Height)
	}
	return c.Constrain(biggest), nil
}

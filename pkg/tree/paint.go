package tree

import (
	"context"

	"github.com/vango-dev/framepipe/pkg/geom"
	"github.com/vango-dev/framepipe/pkg/node"
	"github.com/vango-dev/framepipe/pkg/pipeline"
)

// Item is one painted node inside a layer.
type Item struct {
	Node   node.ID
	Bounds geom.Rect
	Data   any
}

// PaintNode paints id's subtree into one layer whose payload is a []Item in
// paint order (parents before children). Every node of the subtree has its
// NeedsPaint flag cleared.
func (t *Tree) PaintNode(ctx context.Context, id node.ID, offset geom.Offset) (pipeline.Layer, error) {
	if !t.Contains(id) {
		return pipeline.Layer{}, pipeline.ErrNodeMissing
	}
	var items []Item
	if err := t.paint(ctx, id, offset, &items); err != nil {
		return pipeline.Layer{}, err
	}
	return pipeline.Layer{
		Node:    id,
		Bounds:  geom.RectFrom(offset, t.Size(id)),
		Payload: items,
	}, nil
}

func (t *Tree) paint(ctx context.Context, id node.ID, origin geom.Offset, items *[]Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.RLock()
	e := t.get(id)
	if e == nil {
		t.mu.RUnlock()
		return nil
	}
	bounds := geom.RectFrom(origin, e.size)
	children := make([]node.ID, len(e.children))
	copy(children, e.children)
	offsets := make([]geom.Offset, len(children))
	for i, c := range children {
		if ce := t.get(c); ce != nil {
			offsets[i] = ce.offset
		}
	}
	spec := e.spec
	t.mu.RUnlock()

	if spec.Kind == Render && spec.Paint != nil {
		data, err := spec.Paint(id, bounds)
		if err != nil {
			return err
		}
		*items = append(*items, Item{Node: id, Bounds: bounds, Data: data})
	}
	e.flags.ClearNeedsPaint()
	for i, c := range children {
		if err := t.paint(ctx, c, origin.Add(offsets[i]), items); err != nil {
			return err
		}
	}
	return nil
}

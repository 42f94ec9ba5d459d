package pipeline

import (
	"context"

	"github.com/vango-dev/framepipe/pkg/geom"
	"github.com/vango-dev/framepipe/pkg/node"
)

// nodeKinds is the part of a tree the pipelines use to filter and order
// drained IDs.
type nodeKinds interface {
	// Contains reports whether id names a live node.
	Contains(id node.ID) bool
	// IsRenderNode reports whether id takes part in layout and paint.
	IsRenderNode(id node.ID) bool
	// Depth returns the node's cached distance from the root.
	Depth(id node.ID) int
}

// LayoutTree is what LayoutPipeline needs from the node store.
//
// LayoutNode may lay out descendants directly; it must clear their
// NeedsLayout state as it does so, which is what lets the pipeline skip
// them later in the same pass. In parallel mode LayoutNode is called
// concurrently for nodes of equal depth.
type LayoutTree interface {
	nodeKinds
	NeedsLayout(id node.ID) bool
	ClearNeedsLayout(id node.ID)
	// Constraints returns the constraints the node's parent last gave it,
	// if any. Nodes without them use the pass constraints.
	Constraints(id node.ID) (geom.Constraints, bool)
	// LayoutNode computes the node's size. Returning an error matching
	// ErrNodeMissing marks a benign race with node removal.
	LayoutNode(ctx context.Context, id node.ID, c geom.Constraints) (geom.Size, error)
	SetSize(id node.ID, size geom.Size)
}

// PaintTree is what PaintPipeline needs from the node store.
type PaintTree interface {
	nodeKinds
	Parent(id node.ID) (node.ID, bool)
	NeedsPaint(id node.ID) bool
	ClearNeedsPaint(id node.ID)
	// MarkNeedsPaint sets the node's paint flag again. Owner uses it to
	// restore nodes whose layers were discarded by a failed frame.
	MarkNeedsPaint(id node.ID)
	// Offset returns the node's position in root coordinates.
	Offset(id node.ID) geom.Offset
	// PaintNode records the node's subtree into a layer.
	PaintNode(ctx context.Context, id node.ID, offset geom.Offset) (Layer, error)
}

// Tree is the full collaborator interface used by Owner.
type Tree interface {
	LayoutTree
	PaintTree
	// Rebuild re-runs the composition step for a node scheduled through a
	// dirty.Handle. It is expected to mark the node as needing layout.
	Rebuild(ctx context.Context, id node.ID) error
}

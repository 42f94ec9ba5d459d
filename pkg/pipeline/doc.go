// Package pipeline runs the per-frame layout and paint passes over the nodes
// that changed since the previous frame.
//
// Work arrives as node IDs marked into dirty sets from any goroutine. Once
// per frame the processing goroutine drains each set, drops IDs that no
// longer name a render node, orders the rest by ascending tree depth so that
// parents resolve before their children, and calls back into the tree for
// the per-node work. Nodes already satisfied by an ancestor earlier in the
// same pass are skipped.
//
// Owner ties the passes together with a sched.Queue and a frame budget, and
// publishes each completed Frame through a triple buffer for the
// presentation goroutine:
//
//	owner := pipeline.NewOwner(pipeline.WithTargetFPS(60))
//	handle := owner.Handle(id) // give to callbacks
//	...
//	frame, err := owner.BuildFrame(ctx, tree, geom.Loose(viewport))
//
//	// presentation goroutine
//	latest := owner.Frames().Read()
//
// # Errors
//
// A missing node (ErrNodeMissing) or a non-render node (ErrWrongNodeKind)
// is benign: it is logged at debug level, counted and skipped. A failing
// layout or paint callback aborts the pass with ErrLayoutFailed or
// ErrPaintFailed wrapping the cause; nodes processed before the failure keep
// their new state and the nodes not yet reached are rescheduled for the next
// frame.
package pipeline

package pipeline

import "sync/atomic"

// passStats counts what a pipeline did across all passes.
type passStats struct {
	passes    atomic.Int64
	processed atomic.Int64
	skipped   atomic.Int64
	missing   atomic.Int64
	wrongKind atomic.Int64
	failures  atomic.Int64
	requeued  atomic.Int64
}

// PassStats is a snapshot of a pipeline's counters.
type PassStats struct {
	// Passes is the number of completed or aborted passes.
	Passes int64
	// Processed is the number of nodes laid out or painted.
	Processed int64
	// Skipped counts nodes already satisfied when reached.
	Skipped int64
	// Missing counts ids that no longer named a node.
	Missing int64
	// WrongKind counts ids of non-render nodes.
	WrongKind int64
	// Failures counts aborted passes.
	Failures int64
	// Requeued counts ids rescheduled after an aborted pass.
	Requeued int64
}

func (s *passStats) snapshot() PassStats {
	return PassStats{
		Passes:    s.passes.Load(),
		Processed: s.processed.Load(),
		Skipped:   s.skipped.Load(),
		Missing:   s.missing.Load(),
		WrongKind: s.wrongKind.Load(),
		Failures:  s.failures.Load(),
		Requeued:  s.requeued.Load(),
	}
}

package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	ferrors "github.com/vango-dev/framepipe/internal/errors"
	"github.com/vango-dev/framepipe/pkg/dirty"
	"github.com/vango-dev/framepipe/pkg/geom"
	"github.com/vango-dev/framepipe/pkg/node"
)

// LayoutPipeline recomputes the geometry of nodes marked dirty since the
// previous pass.
//
// MarkDirty and Handle may be used from any goroutine. ComputeLayout belongs
// to the processing goroutine.
type LayoutPipeline struct {
	set    *dirty.Set
	source dirty.Source

	parallel       atomic.Bool
	maxParallelism int

	logger *slog.Logger
	tracer trace.Tracer
	stats  passStats
}

// NewLayoutPipeline returns a layout pipeline. Without WithSource it drains
// its own dirty set.
func NewLayoutPipeline(opts ...Option) *LayoutPipeline {
	s := newSettings(opts)
	p := &LayoutPipeline{
		set:            dirty.NewSet(),
		maxParallelism: s.maxParallelism,
		logger:         s.logger.With("pass", phaseLayout),
		tracer:         s.tracer,
	}
	p.source = p.set
	if s.source != nil {
		p.source = s.source
	}
	p.parallel.Store(s.parallel)
	return p
}

// MarkDirty schedules id for the next pass. It never blocks or fails.
func (p *LayoutPipeline) MarkDirty(id node.ID) {
	p.source.Mark(id)
}

// Handle returns a rebuild handle bound to the pipeline's own set.
func (p *LayoutPipeline) Handle(id node.ID) dirty.Handle {
	return dirty.NewHandle(id, p.set)
}

// DirtyCount returns the number of ids pending in the pipeline's own set.
func (p *LayoutPipeline) DirtyCount() int {
	return p.set.Len()
}

// SetParallel enables or disables concurrent layout of equal-depth nodes.
func (p *LayoutPipeline) SetParallel(enabled bool) {
	p.parallel.Store(enabled)
}

// Parallel reports whether parallel layout is enabled.
func (p *LayoutPipeline) Parallel() bool {
	return p.parallel.Load()
}

// Stats returns a snapshot of the pipeline's counters.
func (p *LayoutPipeline) Stats() PassStats {
	return p.stats.snapshot()
}

// ComputeLayout drains the pending ids and lays out, in ascending depth
// order, every one that still needs layout. It returns the number of nodes
// laid out.
//
// A failing layout callback aborts the pass with an error matching
// ErrLayoutFailed. Nodes laid out before the failure keep their sizes and the
// nodes not yet reached are scheduled again. The failing node keeps its
// NeedsLayout state but is not rescheduled; the caller decides whether to
// retry it. Cancelling ctx aborts the pass the same way.
func (p *LayoutPipeline) ComputeLayout(ctx context.Context, tree LayoutTree, constraints geom.Constraints) (int, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.layout")
	defer span.End()

	ids := p.source.Drain()
	sorted := order(ctx, p.logger, tree, ids, &p.stats)

	var (
		n   int
		err error
	)
	if p.parallel.Load() && len(sorted) > 1 {
		n, err = p.layoutLevels(ctx, tree, sorted, constraints)
	} else {
		n, err = p.layoutSequential(ctx, tree, sorted, constraints)
	}

	p.stats.passes.Add(1)
	p.stats.processed.Add(int64(n))
	span.SetAttributes(
		attribute.Int("framepipe.drained", len(ids)),
		attribute.Int("framepipe.processed", n),
		attribute.Bool("framepipe.parallel", p.parallel.Load()),
	)
	if err != nil {
		p.stats.failures.Add(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return n, err
}

func (p *LayoutPipeline) layoutSequential(ctx context.Context, tree LayoutTree, sorted []byDepth, constraints geom.Constraints) (int, error) {
	n := 0
	for i, item := range sorted {
		if err := ctx.Err(); err != nil {
			requeue(p.source, sorted[i:], &p.stats)
			return n, err
		}
		done, err := p.layoutOne(ctx, tree, item.id, constraints)
		if err != nil {
			requeue(p.source, sorted[i+1:], &p.stats)
			return n, err
		}
		if done {
			n++
		}
	}
	return n, nil
}

// layoutLevels lays out one depth level at a time, running the nodes of a
// level concurrently. Nodes of equal depth never contain each other, so
// their subtrees are disjoint.
func (p *LayoutPipeline) layoutLevels(ctx context.Context, tree LayoutTree, sorted []byDepth, constraints geom.Constraints) (int, error) {
	var n atomic.Int64
	lv := levels(sorted)
	for li, level := range lv {
		if err := ctx.Err(); err != nil {
			for _, rest := range lv[li:] {
				requeue(p.source, rest, &p.stats)
			}
			return int(n.Load()), err
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.maxParallelism)
		for _, item := range level {
			g.Go(func() error {
				if gctx.Err() != nil {
					requeue(p.source, []byDepth{item}, &p.stats)
					return nil
				}
				done, err := p.layoutOne(gctx, tree, item.id, constraints)
				if done {
					n.Add(1)
				}
				return err
			})
		}
		err := g.Wait()
		if err == nil {
			// Nodes skipped by a cancellation were requeued above.
			err = ctx.Err()
		}
		if err != nil {
			for _, rest := range lv[li+1:] {
				requeue(p.source, rest, &p.stats)
			}
			return int(n.Load()), err
		}
	}
	return int(n.Load()), nil
}

// layoutOne lays out id if it still needs it. It reports whether layout ran.
func (p *LayoutPipeline) layoutOne(ctx context.Context, tree LayoutTree, id node.ID, constraints geom.Constraints) (bool, error) {
	if !tree.NeedsLayout(id) {
		p.stats.skipped.Add(1)
		return false, nil
	}
	c, ok := tree.Constraints(id)
	if !ok {
		c = constraints
	}
	size, err := tree.LayoutNode(ctx, id, c)
	if err != nil {
		if errors.Is(err, ErrNodeMissing) {
			p.stats.missing.Add(1)
			p.logger.DebugContext(ctx, "node removed during layout", "node", id)
			return false, nil
		}
		return false, phaseError(ferrors.CodeLayoutFailed, phaseLayout, id, err)
	}
	tree.SetSize(id, size)
	tree.ClearNeedsLayout(id)
	return true, nil
}

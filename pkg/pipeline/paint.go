package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	ferrors "github.com/vango-dev/framepipe/internal/errors"
	"github.com/vango-dev/framepipe/pkg/dirty"
	"github.com/vango-dev/framepipe/pkg/node"
)

// PaintPipeline records layers for nodes whose painted output is stale.
type PaintPipeline struct {
	set    *dirty.Set
	source dirty.Source

	layerOpt atomic.Bool

	logger *slog.Logger
	tracer trace.Tracer
	stats  passStats
	culled atomic.Int64
}

// NewPaintPipeline returns a paint pipeline. Without WithSource it drains its
// own dirty set.
func NewPaintPipeline(opts ...Option) *PaintPipeline {
	s := newSettings(opts)
	p := &PaintPipeline{
		set:    dirty.NewSet(),
		logger: s.logger.With("pass", phasePaint),
		tracer: s.tracer,
	}
	p.source = p.set
	if s.source != nil {
		p.source = s.source
	}
	p.layerOpt.Store(s.layerOpt)
	return p
}

// MarkDirty schedules id for the next pass.
func (p *PaintPipeline) MarkDirty(id node.ID) {
	p.source.Mark(id)
}

// Handle returns a handle bound to the pipeline's own set.
func (p *PaintPipeline) Handle(id node.ID) dirty.Handle {
	return dirty.NewHandle(id, p.set)
}

// DirtyCount returns the number of ids pending in the pipeline's own set.
func (p *PaintPipeline) DirtyCount() int {
	return p.set.Len()
}

// SetLayerOptimization toggles culling of empty and covered layers.
func (p *PaintPipeline) SetLayerOptimization(enabled bool) {
	p.layerOpt.Store(enabled)
}

// LayerOptimization reports whether layer culling is enabled.
func (p *PaintPipeline) LayerOptimization() bool {
	return p.layerOpt.Load()
}

// Stats returns a snapshot of the pipeline's counters.
func (p *PaintPipeline) Stats() PassStats {
	return p.stats.snapshot()
}

// Culled returns the number of layers dropped by layer optimization.
func (p *PaintPipeline) Culled() int64 {
	return p.culled.Load()
}

// GenerateLayers drains the pending ids and paints, in ascending depth order,
// every one that still needs paint. Layers are returned in paint order.
//
// Failures follow the same rules as LayoutPipeline.ComputeLayout, with
// errors matching ErrPaintFailed. Layers painted before the failure are
// returned alongside the error.
func (p *PaintPipeline) GenerateLayers(ctx context.Context, tree PaintTree) ([]Layer, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.paint")
	defer span.End()

	ids := p.source.Drain()
	sorted := order(ctx, p.logger, tree, ids, &p.stats)

	layers, err := p.paintSequential(ctx, tree, sorted)
	painted := len(layers)
	if err == nil && p.layerOpt.Load() {
		layers = optimizeLayers(layers, tree)
		p.culled.Add(int64(painted - len(layers)))
	}

	p.stats.passes.Add(1)
	p.stats.processed.Add(int64(painted))
	span.SetAttributes(
		attribute.Int("framepipe.drained", len(ids)),
		attribute.Int("framepipe.processed", painted),
		attribute.Int("framepipe.layers", len(layers)),
	)
	if err != nil {
		p.stats.failures.Add(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return layers, err
}

func (p *PaintPipeline) paintSequential(ctx context.Context, tree PaintTree, sorted []byDepth) ([]Layer, error) {
	var layers []Layer
	for i, item := range sorted {
		if err := ctx.Err(); err != nil {
			requeue(p.source, sorted[i:], &p.stats)
			return layers, err
		}
		id := item.id
		if !tree.NeedsPaint(id) {
			p.stats.skipped.Add(1)
			continue
		}
		layer, err := tree.PaintNode(ctx, id, tree.Offset(id))
		if err != nil {
			if errors.Is(err, ErrNodeMissing) {
				p.stats.missing.Add(1)
				p.logger.DebugContext(ctx, "node removed during paint", "node", id)
				continue
			}
			requeue(p.source, sorted[i+1:], &p.stats)
			return layers, phaseError(ferrors.CodePaintFailed, phasePaint, id, err)
		}
		if layer.Node == node.None {
			layer.Node = id
		}
		tree.ClearNeedsPaint(id)
		layers = append(layers, layer)
	}
	return layers, nil
}

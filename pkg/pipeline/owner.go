package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	ferrors "github.com/vango-dev/framepipe/internal/errors"
	"github.com/vango-dev/framepipe/pkg/dirty"
	"github.com/vango-dev/framepipe/pkg/geom"
	"github.com/vango-dev/framepipe/pkg/node"
	"github.com/vango-dev/framepipe/pkg/sched"
	"github.com/vango-dev/framepipe/pkg/triplebuf"
)

// Owner coordinates one tree's frames: it runs scheduled tasks within the
// frame budget, rebuilds nodes scheduled through handles, runs the layout and
// paint passes and publishes the result.
//
// Handle, Tasks, RequestLayout, RequestPaint and Stats are safe from any
// goroutine. BuildFrame must only be called from one goroutine at a time.
// Frames().Read must only be called from the presentation goroutine.
type Owner struct {
	rebuilds *dirty.Set
	tasks    *sched.Queue
	layout   *LayoutPipeline
	paint    *PaintPipeline
	budget   *sched.FrameBudget
	frames   *triplebuf.Buffer[Frame]

	logger   *slog.Logger
	tracer   trace.Tracer
	observer Observer
	now      func() time.Time

	number   atomic.Uint64
	failed   atomic.Int64
	rebuilt  atomic.Int64
	missing  atomic.Int64
	executed atomic.Int64

	requested atomic.Pointer[func()]
}

// NewOwner returns an Owner with empty queues.
func NewOwner(opts ...Option) *Owner {
	s := newSettings(opts)
	s.source = nil

	o := &Owner{
		rebuilds: dirty.NewSet(),
		layout:   NewLayoutPipeline(withSettings(s)),
		paint:    NewPaintPipeline(withSettings(s)),
		budget:   sched.NewFrameBudget(s.targetFPS, sched.WithClock(s.now), sched.WithSkipPolicy(s.skip)),
		frames:   triplebuf.NewWithClone(Frame{}, Frame.Clone),
		logger:   s.logger,
		tracer:   s.tracer,
		observer: s.observer,
		now:      s.now,
	}
	o.tasks = sched.NewQueue(
		sched.WithQueueLogger(s.logger.With("component", "sched")),
		sched.WithRunHook(o.observer.ObserveTask),
	)
	notify := func() {
		if fn := o.requested.Load(); fn != nil {
			(*fn)()
		}
	}
	o.rebuilds.OnMark(notify)
	o.layout.set.OnMark(notify)
	o.paint.set.OnMark(notify)
	return o
}

// withSettings copies already resolved settings.
func withSettings(src settings) Option {
	return func(s *settings) { *s = src }
}

// Handle returns a handle that schedules id for rebuild in the next frame.
func (o *Owner) Handle(id node.ID) dirty.Handle {
	return dirty.NewHandle(id, o.rebuilds)
}

// Tasks returns the owner's task queue. Producers may Add from any goroutine;
// the queue is drained by BuildFrame.
func (o *Owner) Tasks() *sched.Queue { return o.tasks }

// RequestLayout schedules id for layout, and therefore paint, in the next
// frame.
func (o *Owner) RequestLayout(id node.ID) {
	o.layout.MarkDirty(id)
	o.paint.MarkDirty(id)
}

// RequestPaint schedules id for paint in the next frame.
func (o *Owner) RequestPaint(id node.ID) {
	o.paint.MarkDirty(id)
}

// OnFrameRequested registers fn to be called when new rebuild, layout or
// paint work arrives while none of that kind was pending. fn runs on the
// scheduling goroutine and must not block. Passing nil removes it.
func (o *Owner) OnFrameRequested(fn func()) {
	if fn == nil {
		o.requested.Store(nil)
		return
	}
	o.requested.Store(&fn)
}

// HasPendingWork reports whether a frame would have anything to do.
func (o *Owner) HasPendingWork() bool {
	return o.rebuilds.Len() > 0 || o.layout.DirtyCount() > 0 || o.paint.DirtyCount() > 0 || o.tasks.Len() > 0
}

// Layout returns the owner's layout pipeline.
func (o *Owner) Layout() *LayoutPipeline { return o.layout }

// Paint returns the owner's paint pipeline.
func (o *Owner) Paint() *PaintPipeline { return o.paint }

// Budget returns the owner's frame budget.
func (o *Owner) Budget() *sched.FrameBudget { return o.budget }

// Frames returns the buffer completed frames are published to.
func (o *Owner) Frames() *triplebuf.Buffer[Frame] { return o.frames }

// BuildFrame produces and publishes one frame:
//
//  1. UserInput tasks, then Animation and Build tasks while budget remains
//  2. rebuild of nodes scheduled through handles
//  3. layout and paint passes
//  4. publication to Frames
//  5. Idle tasks while budget remains
//
// On a rebuild, layout or paint failure nothing is published and the error is
// returned; work not reached is carried over to the next frame.
func (o *Owner) BuildFrame(ctx context.Context, tree Tree, constraints geom.Constraints) (Frame, error) {
	number := o.number.Load() + 1
	ctx, span := o.tracer.Start(ctx, "pipeline.frame",
		trace.WithAttributes(attribute.Int64("framepipe.frame", int64(number))))
	defer span.End()

	o.budget.Start()
	frame := Frame{Number: number}

	frame.Tasks = o.runTasks(sched.Build)

	rebuilt, err := o.rebuild(ctx, tree)
	frame.Rebuilt = rebuilt
	if err != nil {
		return o.fail(ctx, span, phaseRebuild, err)
	}

	frame.LaidOut, err = o.layout.ComputeLayout(ctx, tree, constraints)
	if err != nil {
		return o.fail(ctx, span, phaseLayout, err)
	}

	frame.Layers, err = o.paint.GenerateLayers(ctx, tree)
	frame.Painted = len(frame.Layers)
	if err != nil {
		o.restorePaint(tree, frame.Layers)
		return o.fail(ctx, span, phasePaint, err)
	}

	frame.Duration = o.budget.Elapsed()
	frame.Janky = frame.Duration > o.budget.FrameDuration()
	frame.BuiltAt = o.now()
	o.number.Store(number)
	o.frames.Write(frame)

	frame.Tasks += o.runTasks(sched.Idle)
	o.budget.Finish()

	span.SetAttributes(
		attribute.Int("framepipe.rebuilt", frame.Rebuilt),
		attribute.Int("framepipe.laid_out", frame.LaidOut),
		attribute.Int("framepipe.layers", frame.Painted),
		attribute.Int("framepipe.tasks", frame.Tasks),
		attribute.Bool("framepipe.janky", frame.Janky),
	)
	o.observer.ObserveFrame(frame)

	switch {
	case number == 1:
		o.logger.InfoContext(ctx, "first frame built",
			"layers", frame.Painted,
			"laid_out", frame.LaidOut,
			"duration", frame.Duration)
	case frame.Janky:
		o.logger.WarnContext(ctx, "frame over budget",
			"frame", number,
			"duration", frame.Duration,
			"budget", o.budget.FrameDuration())
	}
	return frame, nil
}

func (o *Owner) runTasks(lowest sched.Priority) int {
	n := o.tasks.ExecuteWithin(o.budget, lowest)
	o.executed.Add(int64(n))
	return n
}

// rebuild drains the rebuild set and asks the tree to rebuild each live
// node, then schedules it for layout.
func (o *Owner) rebuild(ctx context.Context, tree Tree) (int, error) {
	ids := o.rebuilds.Drain()
	n := 0
	for i, id := range ids {
		if !tree.Contains(id) {
			o.missing.Add(1)
			o.logger.DebugContext(ctx, "skipping rebuild of missing node", "node", id)
			continue
		}
		if err := tree.Rebuild(ctx, id); err != nil {
			if errors.Is(err, ErrNodeMissing) {
				o.missing.Add(1)
				continue
			}
			for _, rest := range ids[i+1:] {
				o.rebuilds.Mark(rest)
			}
			return n, phaseError(ferrors.CodeRebuildFailed, phaseRebuild, id, err)
		}
		o.RequestLayout(id)
		n++
	}
	o.rebuilt.Add(int64(n))
	return n, nil
}

// restorePaint reschedules the nodes behind layers that will not be
// published, since painting them already cleared their paint flags.
func (o *Owner) restorePaint(tree Tree, layers []Layer) {
	for _, l := range layers {
		tree.MarkNeedsPaint(l.Node)
		o.paint.MarkDirty(l.Node)
	}
}

func (o *Owner) fail(ctx context.Context, span trace.Span, phase string, err error) (Frame, error) {
	o.budget.Finish()
	o.failed.Add(1)
	o.observer.ObserveError(phase)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	o.logger.ErrorContext(ctx, "frame failed", "phase", phase, "error", err)
	return Frame{}, err
}

// Stats is a snapshot of an Owner's counters.
type Stats struct {
	Frames        uint64
	FailedFrames  int64
	JankyFrames   int64
	SkippedFrames int64
	JankRate      float64
	LastFrame     time.Duration
	Rebuilt       int64
	Missing       int64
	TasksExecuted int64
	TasksPending  int
	Layout        PassStats
	Paint         PassStats
	LayersCulled  int64
}

// Stats returns a snapshot of the owner's counters.
func (o *Owner) Stats() Stats {
	return Stats{
		Frames:        o.number.Load(),
		FailedFrames:  o.failed.Load(),
		JankyFrames:   o.budget.JankyFrames(),
		SkippedFrames: o.budget.SkippedFrames(),
		JankRate:      o.budget.JankRate(),
		LastFrame:     o.budget.LastFrame(),
		Rebuilt:       o.rebuilt.Load(),
		Missing:       o.missing.Load(),
		TasksExecuted: o.executed.Load(),
		TasksPending:  o.tasks.Len(),
		Layout:        o.layout.Stats(),
		Paint:         o.paint.Stats(),
		LayersCulled:  o.paint.Culled(),
	}
}

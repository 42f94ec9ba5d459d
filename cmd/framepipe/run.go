package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vango-dev/framepipe/internal/config"
	"github.com/vango-dev/framepipe/internal/present"
	"github.com/vango-dev/framepipe/internal/report"
	"github.com/vango-dev/framepipe/pkg/geom"
	"github.com/vango-dev/framepipe/pkg/hittest"
	"github.com/vango-dev/framepipe/pkg/node"
	"github.com/vango-dev/framepipe/pkg/pipeline"
	"github.com/vango-dev/framepipe/pkg/telemetry"
	"github.com/vango-dev/framepipe/pkg/tree"
)

const shutdownTimeout = 5 * time.Second

func runCmd(flags *rootFlags) *cobra.Command {
	var (
		frames   int
		duration time.Duration
		fps      int
		parallel int
		serve    bool
		addr     string
		dest     string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Drive the pipeline over a synthetic tree",
		Long: `Build a synthetic node tree and drive frames over it.

Producers mark nodes dirty, schedule rebuilds and enqueue tasks while the
frame loop builds a frame on every tick that has pending work. The run stops
after --frames frames, after --duration, or on interrupt.

Examples:
  framepipe run --frames=600
  framepipe run --duration=30s --serve --addr=:8080
  framepipe run --frames=120 --report=s3://bucket/runs/latest.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("frames") {
				cfg.Frame.Frames = frames
			}
			if cmd.Flags().Changed("duration") {
				cfg.Frame.Duration = duration
			}
			if cmd.Flags().Changed("fps") {
				cfg.Frame.TargetFPS = fps
			}
			if cmd.Flags().Changed("parallel") {
				cfg.Pipeline.ParallelLayout = parallel
			}
			if serve {
				cfg.Server.Enabled = true
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if dest != "" {
				cfg.Report.Dest = dest
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := newLogger(cfg.Log, os.Stderr)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, err := run(ctx, cfg, logger)
			if err != nil {
				return err
			}
			printSummary(res)
			return nil
		},
	}

	cmd.Flags().IntVarP(&frames, "frames", "n", 0, "Stop after this many frames (0 = no limit)")
	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "Stop after this long (0 = no limit)")
	cmd.Flags().IntVar(&fps, "fps", 0, "Target frame rate")
	cmd.Flags().IntVar(&parallel, "parallel", 0, "Layout workers per level")
	cmd.Flags().BoolVar(&serve, "serve", false, "Serve metrics and the frame stream over HTTP")
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address")
	cmd.Flags().StringVar(&dest, "report", "", "Write a run report to a path or s3://bucket/key")

	return cmd
}

// result is what a run hands back for printing.
type result struct {
	report *report.Report
	dest   string
}

// run wires the pipeline, tree, producers, presenter and optional HTTP
// server, and drives frames until a stop condition is met.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*result, error) {
	runID := uuid.NewString()
	logger = logger.With("run_id", runID)
	started := time.Now()

	shutdownTracing, err := telemetry.InitTracing(ctx, telemetry.TracingConfig{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		Headers:        cfg.Tracing.Headers,
		SampleRatio:    cfg.Tracing.SampleRatio,
		Attributes:     map[string]string{"framepipe.run_id": runID},
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	var (
		metrics  *telemetry.Collector
		observer pipeline.Observer = pipeline.NopObserver{}
	)
	if cfg.Metrics.Enabled {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics = telemetry.NewCollector(
			telemetry.WithRegistry(reg),
			telemetry.WithNamespace(cfg.Metrics.Namespace),
			telemetry.WithConstLabels(prometheus.Labels{"run_id": runID}),
		)
		observer = metrics
	}

	owner := pipeline.NewOwner(append(cfg.PipelineOptions(),
		pipeline.WithLogger(logger.With("component", "pipeline")),
		pipeline.WithObserver(observer),
	)...)
	if metrics != nil {
		metrics.WatchOwner(owner)
	}

	hitOpts := []hittest.Option[[]node.ID]{
		hittest.WithCellSize[[]node.ID](cfg.HitTest.CellSize),
		hittest.WithMaxEntries[[]node.ID](cfg.HitTest.MaxEntries),
	}
	if metrics != nil {
		hitOpts = append(hitOpts, hittest.WithObserver[[]node.ID](metrics.ObserveHitTest))
	}
	t := tree.New(
		tree.WithScheduler(owner),
		tree.WithHitTestCache(tree.NewHitTestCache(hitOpts...)),
		tree.WithLogger(logger.With("component", "tree")),
	)

	d, err := newDemo(t, owner, cfg.Demo)
	if err != nil {
		return nil, err
	}
	logger.Info("tree built",
		"nodes", t.Len(),
		"leaves", len(d.leaves),
		"components", len(d.components),
		"target_fps", cfg.Frame.TargetFPS)

	var subscribers func(int)
	var onPresent func(uint64)
	if metrics != nil {
		subscribers = metrics.SetSubscribers
		onPresent = metrics.ObservePresent
	}
	hub := present.NewHub(logger.With("component", "hub"), subscribers)
	defer hub.Close()

	interval := cfg.Frame.PresentInterval
	if interval == 0 {
		interval = cfg.FrameInterval()
	}
	presenter := present.NewPresenter(owner.Frames(),
		present.WithInterval(interval),
		present.WithSink(hub),
		present.WithPresentHook(onPresent),
		present.WithLogger(logger.With("component", "present")),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if cfg.Frame.Duration > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, cfg.Frame.Duration)
		defer cancel()
	}

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer cancel()
		return frameLoop(gctx, owner, t, cfg, logger)
	})
	g.Go(func() error {
		return presenter.Run(gctx)
	})
	for i := 0; i < cfg.Demo.Producers; i++ {
		g.Go(func() error {
			return d.produce(gctx, i)
		})
	}

	if cfg.Server.Enabled {
		srv := &http.Server{
			Addr: cfg.Server.Addr,
			Handler: present.NewRouter(present.RouterConfig{
				Presenter: presenter,
				Hub:       hub,
				Gatherer:  reg,
				Logger:    logger.With("component", "http"),
			}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("serving", "addr", cfg.Server.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	rep := &report.Report{
		RunID:      runID,
		Version:    version,
		StartedAt:  started,
		FinishedAt: time.Now(),
		TargetFPS:  cfg.Frame.TargetFPS,
		Nodes:      t.Len(),
	}
	rep.Collect(report.Sources{
		Owner:     owner,
		Presenter: presenter,
		HitTest:   t.HitTestStats,
	})
	logger.Info("run finished",
		"frames", rep.Frames.Built,
		"janky", rep.Frames.Janky,
		"presented", rep.Presents.Presented,
		"elapsed", rep.FinishedAt.Sub(started).Round(time.Millisecond))

	res := &result{report: rep}
	if cfg.Report.Dest != "" {
		// The run context may already be cancelled by an interrupt.
		ectx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		out, err := report.NewExporter().Export(ectx, rep, cfg.Report.Dest)
		if err != nil {
			return nil, err
		}
		res.dest = out.String()
	}
	return res, nil
}

// frameLoop builds a frame on every tick with pending work. It returns nil
// when ctx is done or the frame limit is reached. Failed frames are logged
// by the owner and retried on the next tick.
func frameLoop(ctx context.Context, owner *pipeline.Owner, t *tree.Tree, cfg *config.Config, logger *slog.Logger) error {
	ticker := time.NewTicker(cfg.FrameInterval())
	defer ticker.Stop()

	constraints := geom.Loose(viewport)
	built := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if !owner.HasPendingWork() {
			continue
		}
		if budget := owner.Budget(); budget.ShouldSkipFrame() {
			logger.Debug("skipping frame",
				"consecutive_misses", budget.ConsecutiveMisses(),
				"policy", budget.Policy().Mode)
			budget.SkipFrame()
			continue
		}
		if _, err := owner.BuildFrame(ctx, t, constraints); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		built++
		if cfg.Frame.Frames > 0 && built >= cfg.Frame.Frames {
			logger.Debug("frame limit reached", "frames", built)
			return nil
		}
	}
}

func printSummary(res *result) {
	r := res.report
	fmt.Println()
	success("Built %d frames in %s", r.Frames.Built, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	info("Janky:      %d (%.1f%%)", r.Frames.Janky, r.Frames.JankRate*100)
	info("Presented:  %d (%d dropped)", r.Presents.Presented, r.Presents.Dropped)
	info("Laid out:   %d nodes in %d passes", r.Layout.Processed, r.Layout.Passes)
	info("Painted:    %d nodes, %d layers culled", r.Paint.Processed, r.Frames.LayersCulled)
	info("Tasks:      %d run, %d pending", r.Tasks.Executed, r.Tasks.Pending)
	info("Hit test:   %.1f%% cache hit rate", r.HitTest.HitRate*100)
	if r.Frames.Failed > 0 {
		warn("%d frames failed", r.Frames.Failed)
	}
	if res.dest != "" {
		success("Report written to %s", res.dest)
	}
}

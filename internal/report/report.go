// Package report writes a JSON summary of a run to a local file or to S3.
package report

import (
	"encoding/json"
	"time"

	"github.com/vango-dev/framepipe/internal/present"
	"github.com/vango-dev/framepipe/pkg/hittest"
	"github.com/vango-dev/framepipe/pkg/pipeline"
	"github.com/vango-dev/framepipe/pkg/sched"
)

// Report summarizes one run.
type Report struct {
	RunID      string    `json:"run_id"`
	Version    string    `json:"version,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	TargetFPS  int       `json:"target_fps"`
	Nodes      int       `json:"nodes"`

	Frames   FrameStats    `json:"frames"`
	Layout   PassStats     `json:"layout"`
	Paint    PassStats     `json:"paint"`
	Tasks    TaskStats     `json:"tasks"`
	HitTest  HitTestStats  `json:"hit_test"`
	Presents present.Stats `json:"present"`
}

// FrameStats summarizes frame production.
type FrameStats struct {
	Built          uint64  `json:"built"`
	Failed         int64   `json:"failed"`
	Janky          int64   `json:"janky"`
	Skipped        int64   `json:"skipped"`
	JankRate       float64 `json:"jank_rate"`
	LastDurationMS float64 `json:"last_duration_ms"`
	Rebuilt        int64   `json:"rebuilt"`
	MissingNodes   int64   `json:"missing_nodes"`
	LayersCulled   int64   `json:"layers_culled"`
}

// PassStats summarizes one pipeline pass.
type PassStats struct {
	Passes    int64 `json:"passes"`
	Processed int64 `json:"processed"`
	Skipped   int64 `json:"skipped"`
	Missing   int64 `json:"missing"`
	Failures  int64 `json:"failures"`
	Requeued  int64 `json:"requeued"`
}

// TaskStats summarizes the task queue.
type TaskStats struct {
	Executed int64 `json:"executed"`
	Pending  int   `json:"pending"`
	Panics   int64 `json:"panics"`
}

// HitTestStats summarizes the hit-test cache.
type HitTestStats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Clears  int64   `json:"clears"`
	HitRate float64 `json:"hit_rate"`
}

// Sources holds the live components a report is read from. Nil fields
// leave their sections zero.
type Sources struct {
	Owner     *pipeline.Owner
	Presenter *present.Presenter
	HitTest   func() hittest.Stats
}

// Collect fills the statistics sections of r from src.
func (r *Report) Collect(src Sources) {
	if o := src.Owner; o != nil {
		s := o.Stats()
		r.Frames = FrameStats{
			Built:          s.Frames,
			Failed:         s.FailedFrames,
			Janky:          s.JankyFrames,
			Skipped:        s.SkippedFrames,
			JankRate:       s.JankRate,
			LastDurationMS: float64(s.LastFrame) / float64(time.Millisecond),
			Rebuilt:        s.Rebuilt,
			MissingNodes:   s.Missing,
			LayersCulled:   s.LayersCulled,
		}
		r.Layout = passStats(s.Layout)
		r.Paint = passStats(s.Paint)
		r.Tasks = taskStats(o.Tasks().Stats())
	}
	if p := src.Presenter; p != nil {
		r.Presents = p.Stats()
	}
	if src.HitTest != nil {
		h := src.HitTest()
		r.HitTest = HitTestStats{
			Hits:    h.Hits,
			Misses:  h.Misses,
			Clears:  h.Clears,
			HitRate: h.HitRate(),
		}
	}
}

func passStats(s pipeline.PassStats) PassStats {
	return PassStats{
		Passes:    s.Passes,
		Processed: s.Processed,
		Skipped:   s.Skipped,
		Missing:   s.Missing,
		Failures:  s.Failures,
		Requeued:  s.Requeued,
	}
}

func taskStats(s sched.QueueStats) TaskStats {
	return TaskStats{
		Executed: s.Executed,
		Pending:  s.Pending,
		Panics:   s.Panics,
	}
}

// Marshal returns the indented JSON encoding of r.
func (r *Report) Marshal() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

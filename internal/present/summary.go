package present

import (
	"time"

	"github.com/vango-dev/framepipe/pkg/pipeline"
)

// Summary is the JSON form of a frame sent to subscribers.
type Summary struct {
	Number     uint64    `json:"number"`
	Layers     int       `json:"layers"`
	Rebuilt    int       `json:"rebuilt"`
	LaidOut    int       `json:"laid_out"`
	Painted    int       `json:"painted"`
	Tasks      int       `json:"tasks"`
	DurationMS float64   `json:"duration_ms"`
	Janky      bool      `json:"janky"`
	BuiltAt    time.Time `json:"built_at"`
}

// Summarize returns the summary of f.
func Summarize(f pipeline.Frame) Summary {
	return Summary{
		Number:     f.Number,
		Layers:     len(f.Layers),
		Rebuilt:    f.Rebuilt,
		LaidOut:    f.LaidOut,
		Painted:    f.Painted,
		Tasks:      f.Tasks,
		DurationMS: float64(f.Duration) / float64(time.Millisecond),
		Janky:      f.Janky,
		BuiltAt:    f.BuiltAt,
	}
}

// Package sim drives a world frame by frame, collects metrics and retries
// diverged frames with a smaller step.
package sim

import (
	"context"
	"time"

	"github.com/san-kum/ipcsim/internal/world"
)

// Stepper is the part of a world the simulator drives.
type Stepper interface {
	Advance(ctx context.Context, opts ...world.AdvanceOption) error
	LastReport() world.FrameReport
	Frame() int
	Dt() float64
	Dump(ctx context.Context) error
}

type Metric interface {
	Name() string
	Observe(r world.FrameReport)
	Value() float64
	Reset()
}

type Config struct {
	Frames int
	// Dt overrides the world's step; zero keeps it.
	Dt float64
	// MaxRetries bounds how often one frame is retried at half the step
	// after it diverged.
	MaxRetries int
	MinDt      float64
	// DumpEvery stores a checkpoint every n committed frames; zero disables.
	DumpEvery int
}

type Result struct {
	Reports     []world.FrameReport
	Metrics     map[string]float64
	FramesTaken int
	Retries     int
	Elapsed     time.Duration
	Errors      []error
}

// Times returns the simulated time of every committed frame.
func (r *Result) Times() []float64 {
	out := make([]float64, len(r.Reports))
	for i, rep := range r.Reports {
		out[i] = rep.Time
	}
	return out
}

// Converged reports whether every committed frame converged.
func (r *Result) Converged() bool {
	for _, rep := range r.Reports {
		if !rep.Converged {
			return false
		}
	}
	return true
}

package world

import "time"

// Phase is where the world is within a frame.
type Phase int

const (
	Idle Phase = iota
	Predicting
	Assembling
	LineSearch
	Converged
	Diverged
	Committed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Predicting:
		return "predicting"
	case Assembling:
		return "assembling"
	case LineSearch:
		return "line_search"
	case Converged:
		return "converged"
	case Diverged:
		return "diverged"
	case Committed:
		return "committed"
	}
	return "unknown"
}

// FrameReport summarises one Advance call.
type FrameReport struct {
	Frame       int
	Time        float64
	Dt          float64
	Iterations  int
	LineSearch  int
	PCGIters    int
	Contacts    int
	Energy      float64
	Residual    float64
	MinGap      float64
	MaxVelocity float64
	Converged   bool
	Duration    time.Duration
}

// Observer is notified after every committed frame.
type Observer interface {
	OnFrame(r FrameReport)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(r FrameReport)

func (f ObserverFunc) OnFrame(r FrameReport) { f(r) }

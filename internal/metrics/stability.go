package metrics

import (
	"github.com/san-kum/ipcsim/internal/world"
)

// Stability is the fraction of frames whose fastest dof stayed below the
// threshold velocity.
type Stability struct {
	name       string
	threshold  float64
	violations int
	samples    int
}

func NewStability(threshold float64) *Stability {
	return &Stability{
		name:      "stability",
		threshold: threshold,
	}
}

func (s *Stability) Name() string {
	return s.name
}

func (s *Stability) Observe(r world.FrameReport) {
	s.samples++
	if r.MaxVelocity > s.threshold || !r.Converged {
		s.violations++
	}
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *Stability) Reset() {
	s.violations = 0
	s.samples = 0
}

// StepTime is the mean wall time of a frame in milliseconds.
type StepTime struct {
	name string
	m    mean
}

func NewStepTime() *StepTime {
	return &StepTime{name: "step_time_ms"}
}

func (s *StepTime) Name() string { return s.name }

func (s *StepTime) Observe(r world.FrameReport) {
	s.m.add(float64(r.Duration.Microseconds()) / 1e3)
}

func (s *StepTime) Value() float64 { return s.m.value() }
func (s *StepTime) Reset()         { s.m.reset() }

// Package metrics aggregates per-frame solver reports into run summaries.
package metrics

import (
	"github.com/san-kum/ipcsim/internal/sim"
	"github.com/san-kum/ipcsim/internal/world"
)

// Default is the metric set attached to every experiment run.
func Default() []sim.Metric {
	return []sim.Metric{
		NewNewtonIterations(),
		NewLineSearchSteps(),
		NewPeakContacts(),
		NewMinGap(),
		NewStepTime(),
		NewStability(10),
	}
}

type mean struct {
	sum     float64
	samples int
}

func (m *mean) add(v float64) {
	m.sum += v
	m.samples++
}

func (m *mean) value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.sum / float64(m.samples)
}

func (m *mean) reset() { *m = mean{} }

// NewtonIterations is the mean number of Newton iterations per frame.
type NewtonIterations struct {
	name string
	m    mean
}

func NewNewtonIterations() *NewtonIterations {
	return &NewtonIterations{name: "newton_iterations"}
}

func (n *NewtonIterations) Name() string                { return n.name }
func (n *NewtonIterations) Observe(r world.FrameReport) { n.m.add(float64(r.Iterations)) }
func (n *NewtonIterations) Value() float64              { return n.m.value() }
func (n *NewtonIterations) Reset()                      { n.m.reset() }

// LineSearchSteps is the mean number of energy evaluations the line
// search needed per frame.
type LineSearchSteps struct {
	name string
	m    mean
}

func NewLineSearchSteps() *LineSearchSteps {
	return &LineSearchSteps{name: "line_search_steps"}
}

func (l *LineSearchSteps) Name() string                { return l.name }
func (l *LineSearchSteps) Observe(r world.FrameReport) { l.m.add(float64(r.LineSearch)) }
func (l *LineSearchSteps) Value() float64              { return l.m.value() }
func (l *LineSearchSteps) Reset()                      { l.m.reset() }

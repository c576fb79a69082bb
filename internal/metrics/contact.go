package metrics

import (
	"math"

	"github.com/san-kum/ipcsim/internal/world"
)

type PeakContacts struct {
	name string
	peak int
}

func NewPeakContacts() *PeakContacts {
	return &PeakContacts{name: "peak_contacts"}
}

func (p *PeakContacts) Name() string { return p.name }

func (p *PeakContacts) Observe(r world.FrameReport) {
	if r.Contacts > p.peak {
		p.peak = r.Contacts
	}
}

func (p *PeakContacts) Value() float64 { return float64(p.peak) }
func (p *PeakContacts) Reset()         { p.peak = 0 }

// MinGap is the smallest contact gap seen over the run. Frames without
// contacts do not count; a run without any reports zero.
type MinGap struct {
	name string
	gap  float64
	seen bool
}

func NewMinGap() *MinGap {
	return &MinGap{name: "min_gap", gap: math.Inf(1)}
}

func (m *MinGap) Name() string { return m.name }

func (m *MinGap) Observe(r world.FrameReport) {
	if r.Contacts == 0 {
		return
	}
	m.seen = true
	m.gap = math.Min(m.gap, r.MinGap)
}

func (m *MinGap) Value() float64 {
	if !m.seen {
		return 0
	}
	return m.gap
}

func (m *MinGap) Reset() {
	m.gap = math.Inf(1)
	m.seen = false
}

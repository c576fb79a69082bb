package world

import (
	"context"
	"fmt"
	"strings"

	"github.com/san-kum/ipcsim/internal/dynamo"
	"github.com/san-kum/ipcsim/internal/geometry"
)

type SanityCheckResult int

const (
	Success SanityCheckResult = iota
	Warning
	Error
)

func (r SanityCheckResult) String() string {
	switch r {
	case Success:
		return "success"
	case Warning:
		return "warning"
	case Error:
		return "error"
	}
	return fmt.Sprintf("SanityCheckResult(%d)", int(r))
}

// closeFraction marks a contact as suspicious once its gap drops below
// this share of the barrier distance.
const closeFraction = 1e-2

// SanityChecker validates the current state, typically after state was
// pushed in through an accessor.
type SanityChecker struct {
	w        *World
	messages []string
	last     SanityCheckResult
}

func (s *SanityChecker) Messages() []string        { return s.messages }
func (s *SanityChecker) Result() SanityCheckResult { return s.last }

func (s *SanityChecker) add(r SanityCheckResult, format string, args ...any) {
	s.messages = append(s.messages, fmt.Sprintf("%s: %s", r, fmt.Sprintf(format, args...)))
	if r > s.last {
		s.last = r
	}
}

// Check runs every test and returns the worst result.
func (s *SanityChecker) Check() SanityCheckResult {
	s.messages, s.last = nil, Success
	l := s.w.lay
	if l == nil {
		s.add(Error, "world is not initialized")
		return s.last
	}

	if !l.q.IsValid() || !l.v.IsValid() {
		s.add(Error, "non-finite coordinates or velocities")
		return s.last
	}

	for i, t := range l.tets {
		x := points4(l.q, t.v)
		if geometry.TetVolume(x[0], x[1], x[2], x[3])*t.sign <= 0 {
			s.add(Error, "tetrahedron %d is inverted", i)
		}
	}
	for _, b := range l.bodies {
		_, A := affineParts(l.q, b.off)
		if A.Det() <= 0 {
			s.add(Error, "affine body %d/%d has det(A) = %g", b.slot.ID(), b.inst, A.Det())
		}
	}

	if s.w.contactEnabled() {
		ctx := context.Background()
		x := s.w.positions(l.q)
		contacts, err := s.w.detect(ctx, x)
		if err != nil {
			s.add(Error, "contact detection: %v", err)
			return s.last
		}
		for _, c := range contacts {
			switch {
			case c.Gap <= 0:
				s.add(Error, "%s contact %v penetrates by %g", c.Kind, c.V, -c.Gap)
			case c.Gap < closeFraction*c.DHat:
				s.add(Warning, "%s contact %v is within %g", c.Kind, c.V, c.Gap)
			}
		}
		hits, err := s.w.detector.Intersections(ctx, &l.mesh, x)
		if err != nil {
			s.add(Error, "intersection test: %v", err)
			return s.last
		}
		for _, h := range hits {
			s.add(Error, "edge %d crosses triangle %d", h[0], h[1])
		}
	}
	return s.last
}

// Report logs the messages of the last Check.
func (s *SanityChecker) Report() {
	log := s.w.logger
	switch s.last {
	case Success:
		log.Debug("sanity check passed", "frame", s.w.frame)
	case Warning:
		log.Warn("sanity check warnings", "frame", s.w.frame, "messages", strings.Join(s.messages, "; "))
	default:
		log.Error("sanity check failed", "frame", s.w.frame, "messages", strings.Join(s.messages, "; "))
	}
}

// Err is nil unless the last Check found an error.
func (s *SanityChecker) Err() error {
	if s.last < Error {
		return nil
	}
	msg := "sanity check"
	if len(s.messages) > 0 {
		msg = s.messages[0]
		if n := len(s.messages) - 1; n > 0 {
			msg += fmt.Sprintf(" (and %d more)", n)
		}
	}
	return fmt.Errorf("%s: %w", msg, dynamo.ErrSanityCheckFailed)
}

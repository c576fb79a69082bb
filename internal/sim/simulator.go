package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/san-kum/ipcsim/internal/dynamo"
	"github.com/san-kum/ipcsim/internal/world"
)

type Simulator struct {
	w         Stepper
	metrics   []Metric
	observers []world.Observer
}

func New(w Stepper) *Simulator {
	return &Simulator{
		w:         w,
		metrics:   make([]Metric, 0),
		observers: make([]world.Observer, 0),
	}
}

func (s *Simulator) AddMetric(m Metric)           { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o world.Observer) { s.observers = append(s.observers, o) }
func (s *Simulator) World() Stepper               { return s.w }

// Close releases the world when it holds resources.
func (s *Simulator) Close() error {
	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *Simulator) Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := s.validateConfig(cfg); err != nil {
		return nil, err
	}

	result := &Result{
		Reports: make([]world.FrameReport, 0, cfg.Frames),
		Metrics: make(map[string]float64),
		Errors:  make([]error, 0),
	}
	for _, m := range s.metrics {
		m.Reset()
	}

	start := time.Now()
	defer func() { result.Elapsed = time.Since(start) }()

	base := cfg.Dt
	if base == 0 {
		base = s.w.Dt()
	}
	dt := base
	retries := 0

	for result.FramesTaken < cfg.Frames {
		select {
		case <-ctx.Done():
			s.collect(result)
			return result, ctx.Err()
		default:
		}

		err := s.w.Advance(ctx, world.WithTimeStep(dt))
		if err != nil {
			if errors.Is(err, dynamo.ErrDiverged) && retries < cfg.MaxRetries && dt/2 >= cfg.MinDt {
				result.Errors = append(result.Errors, err)
				result.Retries++
				retries++
				dt /= 2
				continue
			}
			s.collect(result)
			return result, err
		}
		retries = 0

		rep := s.w.LastReport()
		for _, m := range s.metrics {
			m.Observe(rep)
		}
		for _, obs := range s.observers {
			obs.OnFrame(rep)
		}
		result.Reports = append(result.Reports, rep)
		result.FramesTaken++

		if cfg.DumpEvery > 0 && s.w.Frame()%cfg.DumpEvery == 0 {
			if err := s.w.Dump(ctx); err != nil {
				result.Errors = append(result.Errors, err)
			}
		}
		if dt < base {
			dt = math.Min(dt*2, base)
		}
	}

	s.collect(result)
	return result, nil
}

func (s *Simulator) collect(result *Result) {
	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
}

func (s *Simulator) validateConfig(cfg Config) error {
	if cfg.Frames <= 0 {
		return fmt.Errorf("frames must be positive, got %d: %w", cfg.Frames, dynamo.ErrInvalidConfig)
	}
	if cfg.Dt < 0 {
		return fmt.Errorf("dt must not be negative, got %f: %w", cfg.Dt, dynamo.ErrInvalidConfig)
	}
	if cfg.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got %d: %w", cfg.MaxRetries, dynamo.ErrInvalidConfig)
	}
	return nil
}

// RunWithCallback advances until cfg.Frames frames are committed or the
// callback returns false. Diverged frames are not retried.
func (s *Simulator) RunWithCallback(ctx context.Context, cfg Config, callback func(world.FrameReport) bool) error {
	if err := s.validateConfig(cfg); err != nil {
		return err
	}

	var opts []world.AdvanceOption
	if cfg.Dt > 0 {
		opts = append(opts, world.WithTimeStep(cfg.Dt))
	}
	for i := 0; i < cfg.Frames; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := s.w.Advance(ctx, opts...); err != nil {
			return err
		}
		rep := s.w.LastReport()
		for _, m := range s.metrics {
			m.Observe(rep)
		}
		if !callback(rep) {
			return nil
		}
	}
	return nil
}

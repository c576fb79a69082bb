package sim

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/san-kum/ipcsim/internal/dynamo"
	"github.com/san-kum/ipcsim/internal/world"
)

// fakeWorld commits every frame whose step is at most maxDt and diverges
// otherwise.
type fakeWorld struct {
	frame  int
	time   float64
	dt     float64
	maxDt  float64
	steps  []float64
	dumps  []int
	report world.FrameReport
	closed bool
}

func (f *fakeWorld) Advance(ctx context.Context, opts ...world.AdvanceOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dt := world.StepOf(f.dt, opts...)
	f.steps = append(f.steps, dt)
	if f.maxDt > 0 && dt > f.maxDt {
		return &dynamo.StepError{Frame: f.frame + 1, Phase: "diverged", Wrapped: dynamo.ErrDiverged}
	}
	f.frame++
	f.time += dt
	f.report = world.FrameReport{Frame: f.frame, Time: f.time, Dt: dt, Iterations: 2, Converged: true}
	return nil
}

func (f *fakeWorld) LastReport() world.FrameReport { return f.report }
func (f *fakeWorld) Frame() int                    { return f.frame }
func (f *fakeWorld) Dt() float64                   { return f.dt }
func (f *fakeWorld) Dump(context.Context) error {
	f.dumps = append(f.dumps, f.frame)
	return nil
}
func (f *fakeWorld) Close() error {
	f.closed = true
	return nil
}

type countMetric struct {
	count int
}

func (c *countMetric) Name() string                { return "count" }
func (c *countMetric) Observe(r world.FrameReport) { c.count++ }
func (c *countMetric) Value() float64              { return float64(c.count) }
func (c *countMetric) Reset()                      { c.count = 0 }

func TestSimulatorRun(t *testing.T) {
	w := &fakeWorld{dt: 0.01}
	s := New(w)
	metric := &countMetric{}
	s.AddMetric(metric)

	var observed []int
	s.AddObserver(world.ObserverFunc(func(r world.FrameReport) { observed = append(observed, r.Frame) }))

	result, err := s.Run(context.Background(), Config{Frames: 10, DumpEvery: 5})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if result.FramesTaken != 10 || len(result.Reports) != 10 {
		t.Errorf("expected 10 frames, got %d (%d reports)", result.FramesTaken, len(result.Reports))
	}
	if result.Metrics["count"] != 10 {
		t.Errorf("expected metric 10, got %f", result.Metrics["count"])
	}
	if len(observed) != 10 || observed[9] != 10 {
		t.Errorf("unexpected observer frames %v", observed)
	}
	if fmt.Sprint(w.dumps) != "[5 10]" {
		t.Errorf("expected dumps at 5 and 10, got %v", w.dumps)
	}
	if !result.Converged() {
		t.Error("expected all frames converged")
	}
	times := result.Times()
	if len(times) != 10 || times[9] < 0.0999 || times[9] > 0.1001 {
		t.Errorf("unexpected times %v", times)
	}
}

func TestSimulatorInvalidConfig(t *testing.T) {
	s := New(&fakeWorld{dt: 0.01})

	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero frames", Config{Frames: 0}},
		{"negative dt", Config{Frames: 1, Dt: -0.1}},
		{"negative retries", Config{Frames: 1, MaxRetries: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Run(context.Background(), tt.cfg)
			if !errors.Is(err, dynamo.ErrInvalidConfig) {
				t.Errorf("expected invalid config, got %v", err)
			}
		})
	}
}

func TestSimulatorRetriesWithSmallerStep(t *testing.T) {
	w := &fakeWorld{dt: 0.04, maxDt: 0.01}
	s := New(w)

	result, err := s.Run(context.Background(), Config{Frames: 2, MaxRetries: 3})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Retries != 3 {
		t.Errorf("expected 3 retries, got %d", result.Retries)
	}
	want := []float64{0.04, 0.02, 0.01, 0.02, 0.01}
	if fmt.Sprint(w.steps) != fmt.Sprint(want) {
		t.Errorf("steps %v, want %v", w.steps, want)
	}
	if len(result.Errors) != 3 {
		t.Errorf("expected 3 recorded divergences, got %d", len(result.Errors))
	}
}

func TestSimulatorGivesUp(t *testing.T) {
	w := &fakeWorld{dt: 0.04, maxDt: 0.001}
	s := New(w)

	result, err := s.Run(context.Background(), Config{Frames: 2, MaxRetries: 1})
	if !errors.Is(err, dynamo.ErrDiverged) {
		t.Fatalf("expected divergence, got %v", err)
	}
	if result.FramesTaken != 0 {
		t.Errorf("expected no frames, got %d", result.FramesTaken)
	}
}

func TestSimulatorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := New(&fakeWorld{dt: 0.01}).Run(ctx, Config{Frames: 5})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if result == nil || result.FramesTaken != 0 {
		t.Errorf("expected an empty partial result, got %+v", result)
	}
}

func TestRunWithCallbackStops(t *testing.T) {
	w := &fakeWorld{dt: 0.01}
	s := New(w)
	calls := 0
	err := s.RunWithCallback(context.Background(), Config{Frames: 10}, func(r world.FrameReport) bool {
		calls++
		return r.Frame < 3
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if calls != 3 || w.frame != 3 {
		t.Errorf("expected to stop after 3 frames, got %d calls at frame %d", calls, w.frame)
	}
}

func TestEnsemble(t *testing.T) {
	var built atomic.Int32
	worlds := make([]*fakeWorld, 4)
	for i := range worlds {
		worlds[i] = &fakeWorld{dt: 0.01 * float64(i+1)}
	}
	e := NewEnsemble(func(i int) (*Simulator, error) {
		built.Add(1)
		return New(worlds[i]), nil
	}, len(worlds))
	e.SetParallelism(2)

	results, err := e.Run(context.Background(), Config{Frames: 3})
	if err != nil {
		t.Fatalf("ensemble failed: %v", err)
	}
	if built.Load() != 4 || len(results) != 4 {
		t.Fatalf("expected 4 runs, built %d, got %d results", built.Load(), len(results))
	}
	for i, r := range results {
		if r.FramesTaken != 3 {
			t.Errorf("run %d took %d frames", i, r.FramesTaken)
		}
		if got := r.Reports[0].Dt; got != worlds[i].dt {
			t.Errorf("run %d used dt %f, want %f", i, got, worlds[i].dt)
		}
		if !worlds[i].closed {
			t.Errorf("run %d world not closed", i)
		}
	}
}

func TestEnsembleFactoryError(t *testing.T) {
	boom := errors.New("boom")
	e := NewEnsemble(func(i int) (*Simulator, error) {
		if i == 1 {
			return nil, boom
		}
		return New(&fakeWorld{dt: 0.01}), nil
	}, 3)
	if _, err := e.Run(context.Background(), Config{Frames: 1}); !errors.Is(err, boom) {
		t.Errorf("expected factory error, got %v", err)
	}
}

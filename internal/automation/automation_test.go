package automation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/ipcsim/internal/dynamo"
	"github.com/san-kum/ipcsim/internal/experiment"
	"github.com/san-kum/ipcsim/internal/storage"
	"github.com/san-kum/ipcsim/internal/world"
)

const scenarioYAML = `
name: smoke
description: two short drops
steps:
  - preset: falling_cube
    frames: 2
    save_as: first
  - preset: falling_cube
    frames: 3
    config:
      dt: "0.005"
`

func newRunner(t *testing.T) (*Runner, *storage.Store) {
	t.Helper()
	engine, err := world.NewEngine("cpu", t.TempDir(), world.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatal(err)
	}
	st := storage.New(t.TempDir())
	return NewRunner(experiment.NewRegistry(), engine, st), st
}

func TestLoadScenario(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.yaml")
	if err := os.WriteFile(path, []byte(scenarioYAML), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadScenario(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if s.Name != "smoke" || len(s.Steps) != 2 {
		t.Fatalf("unexpected scenario %+v", s)
	}
	if s.Steps[1].Config["dt"] != "0.005" {
		t.Errorf("expected dt override, got %v", s.Steps[1].Config)
	}

	empty := filepath.Join(dir, "empty.yaml")
	if err := os.WriteFile(empty, []byte("name: nothing\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadScenario(empty); !errors.Is(err, dynamo.ErrInvalidConfig) {
		t.Errorf("expected invalid config for empty scenario, got %v", err)
	}
}

func TestRunScenario(t *testing.T) {
	r, st := newRunner(t)
	s := &Scenario{
		Name: "smoke",
		Steps: []ScenarioStep{
			{Preset: "falling_cube", Frames: 2, SaveAs: "first"},
			{Preset: "falling_cube", Frames: 3, Config: map[string]string{"dt": "0.005"}},
		},
	}

	results, err := r.RunScenario(context.Background(), s)
	if err != nil {
		t.Fatalf("scenario failed: %v", err)
	}
	if len(results) != 2 || results[0].FramesTaken != 2 || results[1].FramesTaken != 3 {
		t.Fatalf("unexpected results %d", len(results))
	}
	if dt := results[1].Reports[0].Dt; dt != 0.005 {
		t.Errorf("expected dt 0.005, got %f", dt)
	}

	meta, err := st.Load("first")
	if err != nil {
		t.Fatalf("saved run missing: %v", err)
	}
	if meta.Preset != "falling_cube" || meta.Frames != 2 || meta.Backend != "cpu" {
		t.Errorf("unexpected metadata %+v", meta)
	}
}

func TestRunScenarioStopsOnError(t *testing.T) {
	r, _ := newRunner(t)
	s := &Scenario{Steps: []ScenarioStep{
		{Preset: "falling_cube", Frames: 1},
		{Preset: "missing", Frames: 1},
	}}
	results, err := r.RunScenario(context.Background(), s)
	if !errors.Is(err, dynamo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected the first step to be kept, got %d results", len(results))
	}
}

func TestRunSweep(t *testing.T) {
	r, _ := newRunner(t)
	sweep := &ParameterSweep{
		Preset:   "falling_cube",
		Key:      "dt",
		Min:      0.005,
		Max:      0.01,
		NumSteps: 2,
		Frames:   2,
		Parallel: 2,
	}
	results, err := r.RunSweep(context.Background(), sweep)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 points, got %d", len(results))
	}
	if results[0].Value != 0.005 || results[1].Value != 0.01 {
		t.Errorf("unexpected values %f, %f", results[0].Value, results[1].Value)
	}
	for _, res := range results {
		if res.Frames != 2 {
			t.Errorf("value %f took %d frames", res.Value, res.Frames)
		}
	}

	if _, err := r.RunSweep(context.Background(), &ParameterSweep{Preset: "falling_cube", Key: "dt"}); !errors.Is(err, dynamo.ErrInvalidConfig) {
		t.Errorf("expected invalid config for empty sweep, got %v", err)
	}
}

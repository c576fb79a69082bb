// Package automation runs scripted sequences of preset simulations and
// parameter sweeps over scene configuration keys.
package automation

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/san-kum/ipcsim/internal/dynamo"
	"github.com/san-kum/ipcsim/internal/experiment"
	"github.com/san-kum/ipcsim/internal/sim"
	"github.com/san-kum/ipcsim/internal/storage"
	"github.com/san-kum/ipcsim/internal/world"
	"gopkg.in/yaml.v3"
)

// Scenario defines a scripted simulation sequence
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep is a single step in a scenario
type ScenarioStep struct {
	Preset       string            `yaml:"preset"`
	Frames       int               `yaml:"frames"`
	Dt           float64           `yaml:"dt"`
	ConfigPreset string            `yaml:"config_preset"`
	Config       map[string]string `yaml:"config"`
	MaxRetries   int               `yaml:"max_retries"`
	// SaveAs stores the run under this id when the runner has a store.
	SaveAs string `yaml:"save_as"`
}

// LoadScenario loads a scenario from a YAML file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("%s: %v: %w", path, err, dynamo.ErrInvalidConfig)
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("%s: scenario has no steps: %w", path, dynamo.ErrInvalidConfig)
	}
	return &scenario, nil
}

type Runner struct {
	registry *experiment.Registry
	engine   *world.Engine
	store    *storage.Store
	logger   *slog.Logger
}

// NewRunner builds a runner; store may be nil.
func NewRunner(registry *experiment.Registry, engine *world.Engine, store *storage.Store) *Runner {
	return &Runner{registry: registry, engine: engine, store: store, logger: engine.Logger()}
}

// RunScenario executes all steps in order and stops at the first failure.
func (r *Runner) RunScenario(ctx context.Context, scenario *Scenario) ([]*sim.Result, error) {
	results := make([]*sim.Result, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		r.logger.Info("scenario step", "scenario", scenario.Name, "step", i+1, "of", len(scenario.Steps), "preset", step.Preset)

		cfg := experiment.Config{
			Preset:       step.Preset,
			Frames:       step.Frames,
			Dt:           step.Dt,
			ConfigPreset: step.ConfigPreset,
			Overrides:    step.Config,
			MaxRetries:   step.MaxRetries,
		}
		result, err := r.runOne(ctx, cfg, step.SaveAs)
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		results = append(results, result)
	}

	return results, nil
}

func (r *Runner) runOne(ctx context.Context, cfg experiment.Config, saveAs string) (*sim.Result, error) {
	exp := experiment.New(cfg, r.registry)
	if err := exp.Setup(r.engine); err != nil {
		return nil, err
	}
	defer exp.Close()

	result, err := exp.Run(ctx)
	if err != nil {
		return result, err
	}
	if saveAs != "" && r.store != nil {
		meta := storage.RunMetadata{
			ID:           saveAs,
			Preset:       cfg.Preset,
			Dt:           exp.World().Dt(),
			Backend:      r.engine.Backend().Name(),
			ConfigPreset: cfg.ConfigPreset,
			Config:       exp.Scene().Config().Flatten(),
		}
		if _, err := r.store.Save(meta, result); err != nil {
			return result, fmt.Errorf("save %s: %w", saveAs, err)
		}
	}
	return result, nil
}

// ParameterSweep runs one preset across evenly spaced values of a numeric
// configuration key.
type ParameterSweep struct {
	Preset   string
	Key      string
	Min      float64
	Max      float64
	NumSteps int
	Frames   int
	// Parallel bounds concurrent runs; zero uses GOMAXPROCS.
	Parallel int
}

// SweepResult holds results from a parameter sweep
type SweepResult struct {
	Value     float64
	Frames    int
	Retries   int
	Converged bool
	Metrics   map[string]float64
}

func (s *ParameterSweep) values() []float64 {
	if s.NumSteps == 1 {
		return []float64{s.Min}
	}
	step := (s.Max - s.Min) / float64(s.NumSteps-1)
	out := make([]float64, s.NumSteps)
	for i := range out {
		out[i] = s.Min + float64(i)*step
	}
	return out
}

// RunSweep executes a parameter sweep, one world per value.
func (r *Runner) RunSweep(ctx context.Context, sweep *ParameterSweep) ([]SweepResult, error) {
	if sweep.NumSteps < 1 {
		return nil, fmt.Errorf("sweep needs at least one step: %w", dynamo.ErrInvalidConfig)
	}
	if _, err := r.registry.Get(sweep.Preset); err != nil {
		return nil, err
	}
	values := sweep.values()

	ens := sim.NewEnsemble(func(i int) (*sim.Simulator, error) {
		exp := experiment.New(experiment.Config{
			Preset:    sweep.Preset,
			Overrides: map[string]string{sweep.Key: strconv.FormatFloat(values[i], 'g', -1, 64)},
		}, r.registry)
		if err := exp.Setup(r.engine); err != nil {
			return nil, fmt.Errorf("%s=%g: %w", sweep.Key, values[i], err)
		}
		return exp.Simulator(), nil
	}, len(values))
	ens.SetParallelism(sweep.Parallel)

	frames := sweep.Frames
	if frames <= 0 {
		p, _ := r.registry.Get(sweep.Preset)
		frames = p.Frames
	}
	runs, err := ens.Run(ctx, sim.Config{Frames: frames})
	if err != nil {
		return nil, err
	}

	results := make([]SweepResult, len(runs))
	for i, res := range runs {
		results[i] = SweepResult{
			Value:     values[i],
			Frames:    res.FramesTaken,
			Retries:   res.Retries,
			Converged: res.Converged(),
			Metrics:   res.Metrics,
		}
		r.logger.Info("sweep point", "key", sweep.Key, "value", values[i], "frames", res.FramesTaken)
	}
	return results, nil
}

// Package experiment turns named scene presets into ready-to-run
// simulators.
package experiment

import (
	"context"
	"fmt"
	"sort"

	"github.com/san-kum/ipcsim/internal/config"
	"github.com/san-kum/ipcsim/internal/dynamo"
	"github.com/san-kum/ipcsim/internal/metrics"
	"github.com/san-kum/ipcsim/internal/scene"
	"github.com/san-kum/ipcsim/internal/sim"
	"github.com/san-kum/ipcsim/internal/world"
)

type Config struct {
	Preset string
	// Frames defaults to the preset's suggestion.
	Frames int
	Dt     float64
	// ConfigPath is a YAML or TOML scene configuration file; ConfigPreset
	// names a config.Presets entry. A file wins over a named preset.
	ConfigPath   string
	ConfigPreset string
	// UseEnv applies IPC_* environment variables on top of the base config.
	UseEnv bool
	// Overrides are dotted keys applied last, as given on the command line.
	Overrides  map[string]string
	MaxRetries int
	DumpEvery  int
}

type Experiment struct {
	cfg       Config
	registry  *Registry
	preset    Preset
	scene     *scene.Scene
	world     *world.World
	simulator *sim.Simulator
}

func New(cfg Config, registry *Registry) *Experiment {
	return &Experiment{cfg: cfg, registry: registry}
}

// SceneConfig resolves the scene configuration of a preset without building it.
func (c Config) SceneConfig(p Preset) (*config.Config, error) {
	sc := config.DefaultConfig()
	switch {
	case c.ConfigPath != "":
		loaded, err := config.Load(c.ConfigPath)
		if err != nil {
			return nil, err
		}
		sc = loaded
	case c.ConfigPreset != "":
		sc = config.GetPreset(c.ConfigPreset)
		if sc == nil {
			return nil, fmt.Errorf("config preset %q: %w", c.ConfigPreset, dynamo.ErrNotFound)
		}
	}
	if c.UseEnv {
		if err := sc.ApplyEnv(); err != nil {
			return nil, err
		}
	}
	for _, k := range sortedKeys(p.Config) {
		if err := sc.Set(k, p.Config[k]); err != nil {
			return nil, fmt.Errorf("preset %s: %w", p.Name, err)
		}
	}
	for _, k := range sortedKeys(c.Overrides) {
		if err := sc.SetString(k, c.Overrides[k]); err != nil {
			return nil, err
		}
	}
	if c.Dt > 0 {
		if err := sc.Set("dt", c.Dt); err != nil {
			return nil, err
		}
	}
	return sc, sc.Validate()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Setup builds the preset scene and initialises a world on engine.
func (e *Experiment) Setup(engine *world.Engine) error {
	p, err := e.registry.Get(e.cfg.Preset)
	if err != nil {
		return err
	}
	e.preset = p

	sc, err := e.cfg.SceneConfig(p)
	if err != nil {
		return err
	}
	s := scene.New(sc)
	if err := p.Build(s); err != nil {
		return fmt.Errorf("build %s: %w", p.Name, err)
	}

	w := world.New(engine)
	if err := w.Init(s); err != nil {
		w.Close()
		return fmt.Errorf("init %s: %w", p.Name, err)
	}

	e.scene = s
	e.world = w
	e.simulator = sim.New(w)
	for _, m := range metrics.Default() {
		e.simulator.AddMetric(m)
	}
	return nil
}

func (e *Experiment) Frames() int {
	if e.cfg.Frames > 0 {
		return e.cfg.Frames
	}
	return e.preset.Frames
}

func (e *Experiment) Run(ctx context.Context) (*sim.Result, error) {
	if e.simulator == nil {
		return nil, fmt.Errorf("experiment %s: %w", e.cfg.Preset, dynamo.ErrNotInitialized)
	}
	return e.simulator.Run(ctx, sim.Config{
		Frames:     e.Frames(),
		MaxRetries: e.cfg.MaxRetries,
		MinDt:      1e-5,
		DumpEvery:  e.cfg.DumpEvery,
	})
}

func (e *Experiment) Preset() Preset            { return e.preset }
func (e *Experiment) Scene() *scene.Scene       { return e.scene }
func (e *Experiment) World() *world.World       { return e.world }
func (e *Experiment) Simulator() *sim.Simulator { return e.simulator }

func (e *Experiment) Close() error {
	if e.world == nil {
		return nil
	}
	return e.world.Close()
}

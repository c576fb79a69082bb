package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
	"github.com/san-kum/ipcsim/internal/dynamo"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDt          = 0.01
	DefaultDHat        = 0.01
	DefaultEpsVelocity = 0.01
	DefaultNewtonIter  = 1024
	DefaultVelocityTol = 0.05
	DefaultTransTol    = 0.1
	DefaultTolRate     = 1e-3
	DefaultLineSearch  = 8
)

// Collision detection methods.
const (
	LinearBVH    = "linear_bvh"
	StacklessBVH = "stackless_bvh"
	BruteForce   = "brute_force"
)

type Config struct {
	Dt                 float64                  `yaml:"dt" toml:"dt" env:"DT"`
	Gravity            []float64                `yaml:"gravity" toml:"gravity" env:"GRAVITY" envSeparator:","`
	Contact            ContactConfig            `yaml:"contact" toml:"contact" envPrefix:"CONTACT_"`
	Newton             NewtonConfig             `yaml:"newton" toml:"newton" envPrefix:"NEWTON_"`
	LinearSystem       LinearSystemConfig       `yaml:"linear_system" toml:"linear_system" envPrefix:"LINEAR_SYSTEM_"`
	LineSearch         LineSearchConfig         `yaml:"line_search" toml:"line_search" envPrefix:"LINE_SEARCH_"`
	CollisionDetection CollisionDetectionConfig `yaml:"collision_detection" toml:"collision_detection" envPrefix:"COLLISION_DETECTION_"`
	SanityCheck        SanityCheckConfig        `yaml:"sanity_check" toml:"sanity_check" envPrefix:"SANITY_CHECK_"`
	Extras             ExtrasConfig             `yaml:"extras" toml:"extras" envPrefix:"EXTRAS_"`

	locked bool
}

type ContactConfig struct {
	Enable       bool           `yaml:"enable" toml:"enable" env:"ENABLE"`
	DHat         float64        `yaml:"d_hat" toml:"d_hat" env:"D_HAT"`
	EpsVelocity  float64        `yaml:"eps_velocity" toml:"eps_velocity" env:"EPS_VELOCITY"`
	Constitution string         `yaml:"constitution" toml:"constitution" env:"CONSTITUTION"`
	Friction     FrictionConfig `yaml:"friction" toml:"friction" envPrefix:"FRICTION_"`
}

type FrictionConfig struct {
	Enable bool `yaml:"enable" toml:"enable" env:"ENABLE"`
}

type NewtonConfig struct {
	MaxIter      int     `yaml:"max_iter" toml:"max_iter" env:"MAX_ITER"`
	MinIter      int     `yaml:"min_iter" toml:"min_iter" env:"MIN_ITER"`
	VelocityTol  float64 `yaml:"velocity_tol" toml:"velocity_tol" env:"VELOCITY_TOL"`
	TransrateTol float64 `yaml:"transrate_tol" toml:"transrate_tol" env:"TRANSRATE_TOL"`
	CCDTol       float64 `yaml:"ccd_tol" toml:"ccd_tol" env:"CCD_TOL"`
}

type LinearSystemConfig struct {
	TolRate float64 `yaml:"tol_rate" toml:"tol_rate" env:"TOL_RATE"`
	Solver  string  `yaml:"solver" toml:"solver" env:"SOLVER"`
}

type LineSearchConfig struct {
	MaxIter      int  `yaml:"max_iter" toml:"max_iter" env:"MAX_ITER"`
	ReportEnergy bool `yaml:"report_energy" toml:"report_energy" env:"REPORT_ENERGY"`
}

type CollisionDetectionConfig struct {
	Method string `yaml:"method" toml:"method" env:"METHOD"`
}

type SanityCheckConfig struct {
	Enable bool `yaml:"enable" toml:"enable" env:"ENABLE"`
}

type ExtrasConfig struct {
	Debug      DebugConfig      `yaml:"debug" toml:"debug" envPrefix:"DEBUG_"`
	StrictMode StrictModeConfig `yaml:"strict_mode" toml:"strict_mode" envPrefix:"STRICT_MODE_"`
}

type DebugConfig struct {
	DumpSurface bool `yaml:"dump_surface" toml:"dump_surface" env:"DUMP_SURFACE"`
}

type StrictModeConfig struct {
	Enable bool `yaml:"enable" toml:"enable" env:"ENABLE"`
}

func DefaultConfig() *Config {
	return &Config{
		Dt:      DefaultDt,
		Gravity: []float64{0, -9.8, 0},
		Contact: ContactConfig{
			Enable:       true,
			DHat:         DefaultDHat,
			EpsVelocity:  DefaultEpsVelocity,
			Constitution: "ipc",
			Friction:     FrictionConfig{Enable: true},
		},
		Newton: NewtonConfig{
			MaxIter:      DefaultNewtonIter,
			MinIter:      1,
			VelocityTol:  DefaultVelocityTol,
			TransrateTol: DefaultTransTol,
			CCDTol:       1.0,
		},
		LinearSystem:       LinearSystemConfig{TolRate: DefaultTolRate, Solver: "pcg"},
		LineSearch:         LineSearchConfig{MaxIter: DefaultLineSearch},
		CollisionDetection: CollisionDetectionConfig{Method: LinearBVH},
		SanityCheck:        SanityCheckConfig{Enable: true},
	}
}

// Clone returns an unlocked copy.
func (c *Config) Clone() *Config {
	out := *c
	out.Gravity = append([]float64(nil), c.Gravity...)
	out.locked = false
	return &out
}

// Lock freezes the configuration; World.Init calls it.
func (c *Config) Lock()          { c.locked = true }
func (c *Config) IsLocked() bool { return c.locked }

func invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), dynamo.ErrInvalidConfig)
}

// Validate checks every value against its allowed range.
func (c *Config) Validate() error {
	if c.Dt <= 0 {
		return invalid("dt must be positive, got %g", c.Dt)
	}
	if len(c.Gravity) != 3 {
		return invalid("gravity must have 3 components, got %d", len(c.Gravity))
	}
	if c.Contact.DHat <= 0 {
		return invalid("contact/d_hat must be positive, got %g", c.Contact.DHat)
	}
	if c.Contact.EpsVelocity <= 0 {
		return invalid("contact/eps_velocity must be positive, got %g", c.Contact.EpsVelocity)
	}
	if c.Contact.Constitution != "ipc" {
		return invalid("contact/constitution %q is not supported", c.Contact.Constitution)
	}
	if c.Newton.MaxIter <= 0 {
		return invalid("newton/max_iter must be positive, got %d", c.Newton.MaxIter)
	}
	if c.Newton.MinIter < 0 || c.Newton.MinIter > c.Newton.MaxIter {
		return invalid("newton/min_iter must be in [0, max_iter], got %d", c.Newton.MinIter)
	}
	if c.Newton.VelocityTol <= 0 || c.Newton.TransrateTol <= 0 {
		return invalid("newton tolerances must be positive")
	}
	if c.Newton.CCDTol <= 0 || c.Newton.CCDTol > 1 {
		return invalid("newton/ccd_tol must be in (0, 1], got %g", c.Newton.CCDTol)
	}
	if c.LinearSystem.TolRate <= 0 {
		return invalid("linear_system/tol_rate must be positive, got %g", c.LinearSystem.TolRate)
	}
	if c.LinearSystem.Solver != "pcg" {
		return invalid("linear_system/solver %q is not supported", c.LinearSystem.Solver)
	}
	if c.LineSearch.MaxIter <= 0 {
		return invalid("line_search/max_iter must be positive, got %d", c.LineSearch.MaxIter)
	}
	switch c.CollisionDetection.Method {
	case LinearBVH, StacklessBVH, BruteForce:
	default:
		return invalid("collision_detection/method %q is not supported", c.CollisionDetection.Method)
	}
	return nil
}

// Load reads a YAML or TOML file over the defaults. Unknown keys fail.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("%s: %v: %w", path, err, dynamo.ErrInvalidConfig)
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("%s: %v: %w", path, err, dynamo.ErrInvalidConfig)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration as YAML or TOML by extension.
func Save(path string, cfg *Config) error {
	var data []byte
	var err error
	if strings.ToLower(filepath.Ext(path)) == ".toml" {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ApplyEnv overrides values from IPC_* environment variables
// (IPC_DT, IPC_CONTACT_D_HAT, IPC_NEWTON_MAX_ITER, ...).
func (c *Config) ApplyEnv() error {
	if c.locked {
		return invalid("config is locked")
	}
	if err := env.ParseWithOptions(c, env.Options{Prefix: "IPC_"}); err != nil {
		return fmt.Errorf("env: %v: %w", err, dynamo.ErrInvalidConfig)
	}
	return c.Validate()
}

package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/ipcsim/internal/dynamo"
	"github.com/san-kum/ipcsim/internal/scene"
)

// Builder populates a fresh scene.
type Builder func(s *scene.Scene) error

// Preset is a named, reproducible scene.
type Preset struct {
	Name        string
	Description string
	// Config holds dotted-key overrides applied before the scene is built.
	Config map[string]any
	// Frames is the suggested run length.
	Frames int
	Build  Builder
}

type Registry struct {
	presets map[string]Preset
}

func NewRegistry() *Registry {
	r := &Registry{presets: make(map[string]Preset)}
	for _, p := range builtinPresets() {
		if err := r.Register(p); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a preset; names are unique.
func (r *Registry) Register(p Preset) error {
	if p.Name == "" || p.Build == nil {
		return fmt.Errorf("preset %q needs a name and a builder: %w", p.Name, dynamo.ErrInvalidConfig)
	}
	if _, ok := r.presets[p.Name]; ok {
		return fmt.Errorf("preset %q: %w", p.Name, dynamo.ErrDuplicateName)
	}
	if p.Frames <= 0 {
		p.Frames = 100
	}
	r.presets[p.Name] = p
	return nil
}

func (r *Registry) Get(name string) (Preset, error) {
	p, ok := r.presets[name]
	if !ok {
		return Preset{}, fmt.Errorf("preset %q: %w", name, dynamo.ErrNotFound)
	}
	return p, nil
}

func (r *Registry) List() []string {
	names := make([]string, 0, len(r.presets))
	for name := range r.presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

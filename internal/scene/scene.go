// Package scene aggregates the objects, constitution and contact tables,
// animator and configuration that a world is initialised from.
package scene

import (
	"fmt"

	"github.com/san-kum/ipcsim/internal/config"
	"github.com/san-kum/ipcsim/internal/constitution"
	"github.com/san-kum/ipcsim/internal/contact"
	"github.com/san-kum/ipcsim/internal/dynamo"
	"github.com/san-kum/ipcsim/internal/geometry"
)

type Scene struct {
	cfg           *config.Config
	objects       *Objects
	constitutions *constitution.Tabular
	contacts      *contact.Tabular
	subscenes     *contact.SubsceneTabular
	animator      *Animator
	slots         []*geometry.Slot
	locked        bool
}

// New creates an empty scene. A nil cfg means config.DefaultConfig.
func New(cfg *config.Config) *Scene {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	s := &Scene{
		cfg:           cfg,
		constitutions: constitution.NewTabular(),
		contacts:      contact.NewTabular(),
		subscenes:     contact.NewSubsceneTabular(),
	}
	s.objects = &Objects{scene: s}
	s.animator = &Animator{scene: s}
	return s
}

func (s *Scene) Config() *config.Config                     { return s.cfg }
func (s *Scene) Objects() *Objects                          { return s.objects }
func (s *Scene) ConstitutionTabular() *constitution.Tabular { return s.constitutions }
func (s *Scene) ContactTabular() *contact.Tabular           { return s.contacts }
func (s *Scene) SubsceneTabular() *contact.SubsceneTabular  { return s.subscenes }
func (s *Scene) Animator() *Animator                        { return s.animator }

// Slots returns every geometry slot in creation order. Slot ids equal
// their index.
func (s *Scene) Slots() []*geometry.Slot { return s.slots }

// Slot returns the slot with the given id.
func (s *Scene) Slot(id int) (*geometry.Slot, error) {
	if id < 0 || id >= len(s.slots) {
		return nil, fmt.Errorf("geometry slot %d: %w", id, dynamo.ErrNotFound)
	}
	return s.slots[id], nil
}

// Lock freezes the scene layout and its configuration. World.Init calls it.
func (s *Scene) Lock() {
	s.locked = true
	s.cfg.Lock()
}

func (s *Scene) IsLocked() bool { return s.locked }

func (s *Scene) addSlot(geo, rest *geometry.Geometry) (*geometry.Slot, error) {
	if s.locked {
		return nil, fmt.Errorf("scene is initialised, cannot add geometry: %w", dynamo.ErrInvalidConfig)
	}
	if err := s.constitutions.InsertFrom(geo); err != nil {
		return nil, err
	}
	slot := geometry.NewSlot(len(s.slots), geo, rest)
	s.slots = append(s.slots, slot)
	return slot, nil
}

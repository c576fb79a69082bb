// Package contact holds the pairwise contact policy of a scene: friction
// and resistance per contact element pair, and the coarse subscene gate.
package contact

import (
	"fmt"

	"github.com/san-kum/ipcsim/internal/dynamo"
	"github.com/san-kum/ipcsim/internal/geometry"
)

// Model is the policy applied between two contact elements.
type Model struct {
	Friction   float64 `json:"friction" yaml:"friction"`
	Resistance float64 `json:"resistance" yaml:"resistance"`
	Enabled    bool    `json:"enabled" yaml:"enabled"`
}

// Element is an id handed out by a tabular. Applying it to a geometry
// tags all of its primitives.
type Element struct {
	ID   int
	Name string
	attr string
}

func (e Element) ApplyTo(g *geometry.Geometry) error {
	return geometry.SetMeta(g, e.attr, e.ID)
}

type pairKey [2]int

func key(a, b int) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{a, b}
}

// Tabular is the symmetric contact model table.
type Tabular struct {
	def      Model
	elements []Element
	pairs    map[pairKey]Model
}

func NewTabular() *Tabular {
	t := &Tabular{
		def:   Model{Friction: 0.5, Resistance: 1e9, Enabled: true},
		pairs: make(map[pairKey]Model),
	}
	t.elements = append(t.elements, Element{ID: 0, Name: "default", attr: geometry.ContactElementID})
	return t
}

// DefaultModel sets the fallback policy; enabled defaults to true.
func (t *Tabular) DefaultModel(friction, resistance float64, enabled ...bool) {
	t.def = Model{Friction: friction, Resistance: resistance, Enabled: len(enabled) == 0 || enabled[0]}
}

func (t *Tabular) Default() Model { return t.def }

func (t *Tabular) DefaultElement() Element { return t.elements[0] }

// Create allocates a new element id.
func (t *Tabular) Create(name string) Element {
	e := Element{ID: len(t.elements), Name: name, attr: geometry.ContactElementID}
	t.elements = append(t.elements, e)
	return e
}

// Insert overrides the model for the unordered pair (a, b).
func (t *Tabular) Insert(a, b Element, friction, resistance float64, enabled bool) error {
	if err := t.check(a.ID); err != nil {
		return err
	}
	if err := t.check(b.ID); err != nil {
		return err
	}
	t.pairs[key(a.ID, b.ID)] = Model{Friction: friction, Resistance: resistance, Enabled: enabled}
	return nil
}

func (t *Tabular) check(id int) error {
	if id < 0 || id >= len(t.elements) {
		return fmt.Errorf("contact element %d: %w", id, dynamo.ErrNotFound)
	}
	return nil
}

// At returns the explicit model for (a, b) or the default.
func (t *Tabular) At(a, b int) Model {
	if m, ok := t.pairs[key(a, b)]; ok {
		return m
	}
	return t.def
}

func (t *Tabular) Elements() []Element {
	out := make([]Element, len(t.elements))
	copy(out, t.elements)
	return out
}

// ElementCount is the number of allocated ids including the default.
func (t *Tabular) ElementCount() int { return len(t.elements) }

// Entry is one explicit row of a tabular.
type Entry struct {
	A, B  int
	Model Model
}

// Entries lists explicit pairs with A <= B.
func (t *Tabular) Entries() []Entry {
	out := make([]Entry, 0, len(t.pairs))
	for k, m := range t.pairs {
		out = append(out, Entry{A: k[0], B: k[1], Model: m})
	}
	return out
}

// SubsceneTabular gates contact between groups of bodies. Without an
// explicit entry an element contacts only itself.
type SubsceneTabular struct {
	elements []Element
	pairs    map[pairKey]bool
}

func NewSubsceneTabular() *SubsceneTabular {
	t := &SubsceneTabular{pairs: make(map[pairKey]bool)}
	t.elements = append(t.elements, Element{ID: 0, Name: "default", attr: geometry.SubsceneElementID})
	return t
}

func (t *SubsceneTabular) DefaultElement() Element { return t.elements[0] }

func (t *SubsceneTabular) Create(name string) Element {
	e := Element{ID: len(t.elements), Name: name, attr: geometry.SubsceneElementID}
	t.elements = append(t.elements, e)
	return e
}

func (t *SubsceneTabular) Insert(a, b Element, enabled bool) error {
	for _, id := range []int{a.ID, b.ID} {
		if id < 0 || id >= len(t.elements) {
			return fmt.Errorf("subscene element %d: %w", id, dynamo.ErrNotFound)
		}
	}
	t.pairs[key(a.ID, b.ID)] = enabled
	return nil
}

// Enabled reports whether elements a and b may contact.
func (t *SubsceneTabular) Enabled(a, b int) bool {
	if v, ok := t.pairs[key(a, b)]; ok {
		return v
	}
	return a == b
}

func (t *SubsceneTabular) ElementCount() int { return len(t.elements) }

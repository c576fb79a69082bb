package scene

import (
	"fmt"

	"github.com/san-kum/ipcsim/internal/dynamo"
	"github.com/san-kum/ipcsim/internal/geometry"
)

// Objects is the scene's object list.
type Objects struct {
	scene *Scene
	list  []*Object
}

// Object is a named owner of geometry slots. Names need not be unique.
type Object struct {
	id    int
	name  string
	geos  *Geometries
	scene *Scene
}

func (o *Objects) Create(name string) *Object {
	obj := &Object{id: len(o.list), name: name, scene: o.scene}
	obj.geos = &Geometries{object: obj}
	o.list = append(o.list, obj)
	return obj
}

func (o *Objects) Find(id int) (*Object, error) {
	if id < 0 || id >= len(o.list) {
		return nil, fmt.Errorf("object %d: %w", id, dynamo.ErrNotFound)
	}
	return o.list[id], nil
}

// FindByName returns the objects called name in creation order.
func (o *Objects) FindByName(name string) []*Object {
	var out []*Object
	for _, obj := range o.list {
		if obj.name == name {
			out = append(out, obj)
		}
	}
	return out
}

func (o *Objects) All() []*Object { return o.list }
func (o *Objects) Len() int       { return len(o.list) }

func (o *Object) ID() int                 { return o.id }
func (o *Object) Name() string            { return o.name }
func (o *Object) Geometries() *Geometries { return o.geos }

// Geometries holds the slots an object owns.
type Geometries struct {
	object *Object
	slots  []*geometry.Slot
}

// Create copies geo into a new slot. The rest geometry defaults to a copy
// of geo. Constitutions written on geo are registered with the scene.
func (g *Geometries) Create(geo *geometry.Geometry, rest ...*geometry.Geometry) (*geometry.Slot, error) {
	if geo == nil {
		return nil, fmt.Errorf("object %q: nil geometry: %w", g.object.name, dynamo.ErrIncompatibleGeometry)
	}
	cur := geo.Clone()
	var r *geometry.Geometry
	if len(rest) > 0 && rest[0] != nil {
		if rest[0].Shape() != geo.Shape() {
			return nil, fmt.Errorf("object %q: rest geometry shape differs: %w", g.object.name, dynamo.ErrShapeMismatch)
		}
		r = rest[0].Clone()
	} else {
		r = geo.Clone()
	}
	slot, err := g.object.scene.addSlot(cur, r)
	if err != nil {
		return nil, fmt.Errorf("object %q: %w", g.object.name, err)
	}
	g.slots = append(g.slots, slot)
	return slot, nil
}

func (g *Geometries) Slots() []*geometry.Slot { return g.slots }
func (g *Geometries) Len() int                { return len(g.slots) }

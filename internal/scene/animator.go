package scene

import (
	"fmt"

	"github.com/san-kum/ipcsim/internal/dynamo"
	"github.com/san-kum/ipcsim/internal/geometry"
)

// AnimateFunc writes aim targets and constraint flags for one object. It
// must not change topology or cardinality.
type AnimateFunc func(info UpdateInfo) error

// UpdateInfo is what an animation callback sees for one frame.
type UpdateInfo struct {
	object *Object
	frame  int
	dt     float64
}

func (u UpdateInfo) Object() *Object { return u.object }

// GeoSlots returns the current geometries of the object's slots.
func (u UpdateInfo) GeoSlots() []*geometry.Geometry {
	out := make([]*geometry.Geometry, 0, u.object.geos.Len())
	for _, s := range u.object.geos.slots {
		out = append(out, s.Geometry())
	}
	return out
}

// RestGeoSlots returns the rest geometries of the object's slots.
func (u UpdateInfo) RestGeoSlots() []*geometry.Geometry {
	out := make([]*geometry.Geometry, 0, u.object.geos.Len())
	for _, s := range u.object.geos.slots {
		out = append(out, s.Rest())
	}
	return out
}

// Frame is the index of the frame being advanced to.
func (u UpdateInfo) Frame() int    { return u.frame }
func (u UpdateInfo) Dt() float64   { return u.dt }
func (u UpdateInfo) Time() float64 { return u.dt * float64(u.frame) }

type animation struct {
	object *Object
	fn     AnimateFunc
}

// Animator runs per-object callbacks in insertion order before each solve.
type Animator struct {
	scene   *Scene
	entries []animation
}

func (a *Animator) Insert(obj *Object, fn AnimateFunc) error {
	if obj == nil || obj.scene != a.scene {
		return fmt.Errorf("animator: object not in scene: %w", dynamo.ErrNotFound)
	}
	if fn == nil {
		return fmt.Errorf("animator: nil callback for %q: %w", obj.name, dynamo.ErrInvalidConfig)
	}
	a.entries = append(a.entries, animation{object: obj, fn: fn})
	return nil
}

// Erase removes every callback of obj and reports whether any existed.
func (a *Animator) Erase(obj *Object) bool {
	kept := a.entries[:0]
	for _, e := range a.entries {
		if e.object != obj {
			kept = append(kept, e)
		}
	}
	removed := len(kept) != len(a.entries)
	a.entries = kept
	return removed
}

func (a *Animator) Len() int { return len(a.entries) }

// Step invokes every callback for frame. A callback that alters the shape
// of any of its slots fails the frame with ErrTopologyChanged.
func (a *Animator) Step(frame int, dt float64) error {
	for _, e := range a.entries {
		slots := e.object.geos.slots
		before := make([]geometry.Shape, len(slots))
		for i, s := range slots {
			before[i] = s.Geometry().Shape()
		}
		if err := e.fn(UpdateInfo{object: e.object, frame: frame, dt: dt}); err != nil {
			return fmt.Errorf("animate %q frame %d: %w", e.object.name, frame, err)
		}
		for i, s := range slots {
			if s.Geometry().Shape() != before[i] {
				return fmt.Errorf("animate %q frame %d, slot %d: %w", e.object.name, frame, s.ID(), dynamo.ErrTopologyChanged)
			}
		}
	}
	return nil
}

package world

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/ipcsim/internal/constitution"
	"github.com/san-kum/ipcsim/internal/dynamo"
	"github.com/san-kum/ipcsim/internal/geometry"
)

// Features exposes optional state accessors; a field is nil when the
// scene has nothing of that kind.
type Features struct {
	AffineBodyState    *AffineBodyStateAccessor
	FiniteElementState *FiniteElementStateAccessor
}

// AffineBodyStateAccessor reads and writes the state of every affine
// instance, one geometry instance per body in scene order.
type AffineBodyStateAccessor struct {
	w *World
}

func (a *AffineBodyStateAccessor) Count() int { return len(a.w.lay.bodies) }

// CreateGeometry returns a geometry with one instance per body and no
// attributes.
func (a *AffineBodyStateAccessor) CreateGeometry() *geometry.Geometry {
	g := geometry.New(geometry.SimplicialComplex, 3)
	_ = g.Instances().Resize(a.Count())
	_ = g.Instances().Destroy(geometry.Transform)
	return g
}

func (a *AffineBodyStateAccessor) check(g *geometry.Geometry) error {
	if n := g.Instances().Size(); n != a.Count() {
		return fmt.Errorf("accessor geometry has %d instances, world has %d bodies: %w", n, a.Count(), dynamo.ErrShapeMismatch)
	}
	return nil
}

// CopyTo fills the transform and velocity columns present on g.
func (a *AffineBodyStateAccessor) CopyTo(g *geometry.Geometry) error {
	if err := a.check(g); err != nil {
		return err
	}
	l := a.w.lay
	if tf := geometry.Lookup[mgl64.Mat4](g.Instances(), geometry.Transform); tf != nil {
		v := tf.View()
		for i, b := range l.bodies {
			v[i] = constitution.QToTransform(l.q[b.off : b.off+12])
		}
	}
	if vel := geometry.Lookup[mgl64.Mat4](g.Instances(), geometry.Velocity); vel != nil {
		v := vel.View()
		for i, b := range l.bodies {
			v[i] = velocityMatrix(l.v[b.off : b.off+12])
		}
	}
	return nil
}

// CopyFrom overwrites body state from the columns present on g.
func (a *AffineBodyStateAccessor) CopyFrom(g *geometry.Geometry) error {
	if err := a.check(g); err != nil {
		return err
	}
	l := a.w.lay
	if tf := geometry.Lookup[mgl64.Mat4](g.Instances(), geometry.Transform); tf != nil {
		for i, b := range l.bodies {
			q := constitution.TransformToQ(tf.CView()[i])
			copy(l.q[b.off:b.off+12], q[:])
		}
	}
	if vel := geometry.Lookup[mgl64.Mat4](g.Instances(), geometry.Velocity); vel != nil {
		for i, b := range l.bodies {
			v := constitution.TransformToQ(vel.CView()[i])
			copy(l.v[b.off:b.off+12], v[:])
		}
	}
	return nil
}

// FiniteElementStateAccessor reads and writes the vertices of every
// finite element geometry, concatenated in scene order.
type FiniteElementStateAccessor struct {
	w *World
}

func (a *FiniteElementStateAccessor) Count() int {
	n := 0
	for _, f := range a.w.lay.fems {
		n += f.n
	}
	return n
}

// CreateGeometry returns a point geometry with one vertex per finite
// element vertex and no attributes.
func (a *FiniteElementStateAccessor) CreateGeometry() *geometry.Geometry {
	g := geometry.New(geometry.SimplicialComplex, 0)
	_ = g.Vertices().Resize(a.Count())
	_ = g.Instances().Destroy(geometry.Transform)
	return g
}

func (a *FiniteElementStateAccessor) check(g *geometry.Geometry) error {
	if n := g.Vertices().Size(); n != a.Count() {
		return fmt.Errorf("accessor geometry has %d vertices, world has %d: %w", n, a.Count(), dynamo.ErrShapeMismatch)
	}
	return nil
}

func (a *FiniteElementStateAccessor) each(fn func(k, off int)) {
	k := 0
	for _, f := range a.w.lay.fems {
		for i := 0; i < f.n; i++ {
			fn(k, f.vertex(i))
			k++
		}
	}
}

func (a *FiniteElementStateAccessor) CopyTo(g *geometry.Geometry) error {
	if err := a.check(g); err != nil {
		return err
	}
	l := a.w.lay
	if pos := geometry.Lookup[mgl64.Vec3](g.Vertices(), geometry.Position); pos != nil {
		v := pos.View()
		a.each(func(k, off int) { v[k] = vec(l.q, off) })
	}
	if vel := geometry.Lookup[mgl64.Vec3](g.Vertices(), geometry.Velocity); vel != nil {
		v := vel.View()
		a.each(func(k, off int) { v[k] = vec(l.v, off) })
	}
	return nil
}

func (a *FiniteElementStateAccessor) CopyFrom(g *geometry.Geometry) error {
	if err := a.check(g); err != nil {
		return err
	}
	l := a.w.lay
	if pos := geometry.Lookup[mgl64.Vec3](g.Vertices(), geometry.Position); pos != nil {
		v := pos.CView()
		a.each(func(k, off int) { copy(l.q[off:off+3], v[k][:]) })
	}
	if vel := geometry.Lookup[mgl64.Vec3](g.Vertices(), geometry.Velocity); vel != nil {
		v := vel.CView()
		a.each(func(k, off int) { copy(l.v[off:off+3], v[k][:]) })
	}
	return nil
}

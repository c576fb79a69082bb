package world

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/ipcsim/internal/constitution"
	"github.com/san-kum/ipcsim/internal/geometry"
)

func flag(c *geometry.Column[int32], i int, def bool) bool {
	if c == nil {
		return def
	}
	return c.CView()[i] != 0
}

func gravityOf(g *geometry.Geometry, def mgl64.Vec3) mgl64.Vec3 {
	if col := geometry.Lookup[mgl64.Vec3](g.Meta(), geometry.Gravity); col != nil {
		return col.CView()[0]
	}
	return def
}

// syncAttributes reads the per-frame driving attributes the animator may
// have written. is_fixed is read once at Init.
func (w *World) syncAttributes() error {
	gravity := w.cfg.GravityVec()
	for _, b := range w.lay.bodies {
		g := b.slot.Geometry()
		inst := g.Instances()
		i := b.inst
		b.constrained = flag(geometry.Lookup[int32](inst, geometry.IsConstrained), i, false)
		b.dynamic = flag(geometry.Lookup[int32](inst, geometry.IsDynamic), i, true)
		b.kinetic = flag(geometry.Lookup[int32](inst, geometry.ExternalKinetic), i, false)
		b.gravity = gravityOf(g, gravity)
		if vel := geometry.Lookup[mgl64.Mat4](inst, geometry.Velocity); b.kinetic && vel != nil {
			b.kinVel = constitution.TransformToQ(vel.CView()[i])
		}

		b.target = nil
		if aim := geometry.Lookup[mgl64.Mat4](inst, geometry.AimTransform); aim != nil {
			b.aim = constitution.TransformToQ(aim.CView()[i])
			if sr := geometry.Lookup[mgl64.Vec2](inst, geometry.StrengthRatio); sr != nil {
				s := sr.CView()[i]
				b.target = targetWeight(b.mass, s[0], s[1])
			}
			if ms := geometry.Lookup[float64](inst, constitution.MotorStrength); ms != nil {
				s := ms.CView()[i]
				motor := targetWeight(b.mass, s, s)
				if b.target == nil {
					b.target = motor
				} else {
					b.target.Add(b.target, motor)
				}
			}
		}

		b.hasForce = false
		if f := geometry.Lookup[[12]float64](inst, geometry.ExternalForce); f != nil {
			b.force = f.CView()[i]
			for _, v := range b.force {
				if v != 0 {
					b.hasForce = true
					break
				}
			}
		}
	}

	for _, f := range w.lay.fems {
		g := f.slot.Geometry()
		v := g.Vertices()
		constrained := geometry.Lookup[int32](v, geometry.IsConstrained)
		aim := geometry.Lookup[mgl64.Vec3](v, geometry.AimPosition)
		strength := geometry.Lookup[float64](v, geometry.ConstraintStrength)
		perVertex := geometry.Lookup[mgl64.Vec3](v, geometry.Gravity)
		def := gravityOf(g, gravity)
		for i := 0; i < f.n; i++ {
			f.constrained[i] = flag(constrained, i, false) && aim != nil
			if aim != nil {
				f.aim[i] = aim.CView()[i]
			}
			f.strength[i] = 0
			if strength != nil {
				f.strength[i] = strength.CView()[i]
			}
			f.gravity[i] = def
			if perVertex != nil {
				f.gravity[i] = perVertex.CView()[i]
			}
		}
	}

	for _, a := range w.lay.artics {
		if err := a.sync(); err != nil {
			return err
		}
	}
	return nil
}

// predict fixes q_n and the inertial target q~ for a step of dt.
func (w *World) predict(dt float64) *frame {
	l := w.lay
	f := &frame{
		dt:       dt,
		qn:       append([]float64(nil), l.q...),
		qTilde:   make([]float64, len(l.q)),
		inertial: make([]bool, len(l.q)),
	}
	for i := range l.q {
		f.qTilde[i] = l.q[i] + dt*l.v[i]
		f.inertial[i] = true
	}
	for _, b := range l.bodies {
		qt := f.qTilde[b.off : b.off+12]
		switch {
		case b.kinetic:
			for k := range qt {
				qt[k] = l.q[b.off+k] + dt*b.kinVel[k]
			}
		case !b.dynamic:
			copy(qt, l.q[b.off:b.off+12])
		default:
			for k := 0; k < 3; k++ {
				qt[k] += dt * dt * b.gravity[k]
			}
		}
		if !b.dynamic && b.constrained && b.target != nil {
			for k := 0; k < 12; k++ {
				f.inertial[b.off+k] = false
			}
		}
	}
	for _, fg := range l.fems {
		for i := 0; i < fg.n; i++ {
			off := fg.vertex(i)
			for k := 0; k < 3; k++ {
				f.qTilde[off+k] += dt * dt * fg.gravity[i][k]
			}
		}
	}
	return f
}

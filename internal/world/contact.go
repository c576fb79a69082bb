package world

import (
	"context"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/ipcsim/internal/collision"
	"github.com/san-kum/ipcsim/internal/contact"
	"gonum.org/v1/gonum/mat"
)

// positions maps q to the collision vertices.
func (w *World) positions(q []float64) []mgl64.Vec3 {
	x := make([]mgl64.Vec3, len(w.lay.verts))
	for i := range w.lay.verts {
		x[i] = w.lay.verts[i].anchor.pos(q)
	}
	return x
}

func (w *World) contactEnabled() bool {
	return w.cfg.Contact.Enable && len(w.lay.verts) > 0
}

func (w *World) detect(ctx context.Context, x []mgl64.Vec3) ([]collision.Contact, error) {
	if !w.contactEnabled() {
		return nil, nil
	}
	return w.detector.Detect(ctx, &w.lay.mesh, x, w.cfg.Contact.DHat)
}

// model is the contact policy of a primitive, looked up by the contact
// elements of its two sides.
func (w *World) model(p collision.Primitive) contact.Model {
	l := w.lay
	a := l.verts[p.V[0]].elem
	var b int
	switch p.Kind {
	case collision.PH:
		b = l.planes[p.Plane].elem
	case collision.EE:
		b = l.verts[p.V[2]].elem
	default:
		b = l.verts[p.V[1]].elem
	}
	return w.scene.ContactTabular().At(a, b)
}

func (w *World) primitiveAnchors(p collision.Primitive) []anchor {
	n := p.Len()
	out := make([]anchor, n)
	for k := 0; k < n; k++ {
		out[k] = w.lay.verts[p.V[k]].anchor
	}
	return out
}

// barrier sums dt^2 kappa b(gap) over the active contacts. The Hessian
// keeps only the curvature of b along the distance gradient.
func (w *World) barrier(x []mgl64.Vec3, contacts []collision.Contact, a *assembler) float64 {
	s := w.cur.dt * w.cur.dt
	planes := w.lay.mesh.Planes
	return each(len(contacts), a, func(i int, a *assembler) float64 {
		c := &contacts[i]
		kappa := w.model(c.Primitive).Resistance
		ev := collision.Evaluate(c.Primitive, x, planes)
		gap := ev.D - c.Thickness
		b, db, ddb := collision.BarrierDerivatives(gap, c.DHat)
		if b == 0 && db == 0 {
			return 0
		}
		if a != nil && !math.IsInf(b, 0) {
			n := c.Len()
			g := make([]float64, 3*n)
			wn := make([]float64, 3*n)
			for k := 0; k < n; k++ {
				for d := 0; d < 3; d++ {
					wn[3*k+d] = ev.W[k] * ev.N[d]
					g[3*k+d] = s * kappa * db * wn[3*k+d]
				}
			}
			var h *mat.Dense
			if a.hess != nil {
				h = mat.NewDense(3*n, 3*n, nil)
				h.Outer(s*kappa*ddb, mat.NewVecDense(3*n, wn), mat.NewVecDense(3*n, wn))
			}
			a.addPoints(w.primitiveAnchors(c.Primitive), g, h)
		}
		return s * kappa * b
	})
}

// frictionElem is a contact frozen at frame start: normal force, tangent
// basis and the vertex positions the tangential slip is measured from.
type frictionElem struct {
	anchors []anchor
	w       [4]float64
	t1, t2  mgl64.Vec3
	muLam   float64
	x0      [4]mgl64.Vec3
}

func tangentBasis(n mgl64.Vec3) (mgl64.Vec3, mgl64.Vec3) {
	t1 := perpendicular(n)
	return t1, n.Cross(t1)
}

// lagFriction builds the friction elements from the contacts at q.
func (w *World) lagFriction(ctx context.Context, q []float64) error {
	w.cur.friction = nil
	if !w.contactEnabled() || !w.cfg.Contact.Friction.Enable {
		return nil
	}
	x := w.positions(q)
	contacts, err := w.detect(ctx, x)
	if err != nil {
		return err
	}
	for _, c := range contacts {
		m := w.model(c.Primitive)
		if m.Friction <= 0 {
			continue
		}
		ev := collision.Evaluate(c.Primitive, x, w.lay.mesh.Planes)
		_, db, _ := collision.BarrierDerivatives(ev.D-c.Thickness, c.DHat)
		lambda := -m.Resistance * db
		if lambda <= 0 || math.IsInf(lambda, 0) || ev.N.Len() == 0 {
			continue
		}
		fe := frictionElem{
			anchors: w.primitiveAnchors(c.Primitive),
			w:       ev.W,
			muLam:   m.Friction * lambda,
		}
		fe.t1, fe.t2 = tangentBasis(ev.N)
		for k := range fe.anchors {
			fe.x0[k] = x[c.V[k]]
		}
		w.cur.friction = append(w.cur.friction, fe)
	}
	return nil
}

// friction sums dt^2 mu lambda f0(|u|) with u the tangential relative
// displacement since frame start.
func (w *World) friction(q []float64, a *assembler) float64 {
	f := w.cur
	s := f.dt * f.dt
	eps := w.cfg.Contact.EpsVelocity * f.dt
	return each(len(f.friction), a, func(i int, a *assembler) float64 {
		fe := &f.friction[i]
		var rel mgl64.Vec3
		for k, an := range fe.anchors {
			rel = rel.Add(an.pos(q).Sub(fe.x0[k]).Mul(fe.w[k]))
		}
		u := mgl64.Vec2{fe.t1.Dot(rel), fe.t2.Dot(rel)}
		y := u.Len()
		e := s * fe.muLam * collision.FrictionF0(y, eps)
		if a == nil {
			return e
		}

		// Gradient and Hessian in the tangent plane.
		var coef float64
		var h2 mgl64.Mat2
		if y == 0 {
			coef = 2 / eps
			h2 = mgl64.Ident2().Mul(2 / eps)
		} else {
			coef = collision.FrictionF1(y, eps) / y
			uh := u.Mul(1 / y)
			uu := mgl64.Mat2{uh[0] * uh[0], uh[0] * uh[1], uh[1] * uh[0], uh[1] * uh[1]}
			if y < eps {
				h2 = mgl64.Ident2().Mul(coef).Sub(uu.Mul(y / (eps * eps)))
			} else {
				h2 = mgl64.Ident2().Sub(uu).Mul(1 / y)
			}
		}
		tu := fe.t1.Mul(u[0]).Add(fe.t2.Mul(u[1])).Mul(s * fe.muLam * coef)
		n := len(fe.anchors)
		g := make([]float64, 3*n)
		for k := 0; k < n; k++ {
			for d := 0; d < 3; d++ {
				g[3*k+d] = fe.w[k] * tu[d]
			}
		}
		var h *mat.Dense
		if a.hess != nil {
			// (w x T) H2 (w x T)^T with T = [t1 t2].
			wt := mat.NewDense(3*n, 2, nil)
			for k := 0; k < n; k++ {
				for d := 0; d < 3; d++ {
					wt.Set(3*k+d, 0, fe.w[k]*fe.t1[d])
					wt.Set(3*k+d, 1, fe.w[k]*fe.t2[d])
				}
			}
			m2 := mat.NewDense(2, 2, []float64{h2.At(0, 0), h2.At(0, 1), h2.At(1, 0), h2.At(1, 1)})
			var tmp mat.Dense
			tmp.Mul(wt, m2)
			h = mat.NewDense(3*n, 3*n, nil)
			h.Mul(&tmp, wt.T())
			h.Scale(s*fe.muLam, h)
		}
		a.addPoints(fe.anchors, g, h)
		return e
	})
}

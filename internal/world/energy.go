package world

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/ipcsim/internal/constitution"
	"gonum.org/v1/gonum/mat"
)

// frame holds what stays fixed during one Newton solve.
type frame struct {
	dt     float64
	qn     []float64
	qTilde []float64
	// inertial is false for kinematic bodies and vertices that are driven
	// purely by their constraints.
	inertial []bool
	friction []frictionElem
}

func diag3(s float64) *mat.DiagDense {
	return mat.NewDiagDense(3, []float64{s, s, s})
}

// inertia is 1/2 |q - q~|_M^2 over affine bodies and FEM vertices.
func (w *World) inertia(q []float64, a *assembler) float64 {
	l, f := w.lay, w.cur
	e := each(len(l.bodies), a, func(i int, a *assembler) float64 {
		b := l.bodies[i]
		if b.fixed || !f.inertial[b.off] {
			return 0
		}
		d := make([]float64, 12)
		for k := range d {
			d[k] = q[b.off+k] - f.qTilde[b.off+k]
		}
		var md mat.VecDense
		md.MulVec(b.mass, mat.NewVecDense(12, d))
		if a != nil {
			a.add(b.dofs, md.RawVector().Data, b.mass)
		}
		return 0.5 * mat.Dot(mat.NewVecDense(12, d), &md)
	})
	for _, fg := range l.fems {
		e += each(fg.n, a, func(i int, a *assembler) float64 {
			off := fg.vertex(i)
			if fg.fixed[i] || !f.inertial[off] {
				return 0
			}
			m := fg.mass[i]
			d := vec(q, off).Sub(vec(f.qTilde, off))
			if a != nil {
				a.add([]int{off, off + 1, off + 2}, []float64{m * d[0], m * d[1], m * d[2]}, diag3(m))
			}
			return 0.5 * m * d.Dot(d)
		})
	}
	return e
}

func points3(q []float64, v [3]int) [3]mgl64.Vec3 {
	return [3]mgl64.Vec3{vec(q, v[0]), vec(q, v[1]), vec(q, v[2])}
}

func points4(q []float64, v [4]int) [4]mgl64.Vec3 {
	return [4]mgl64.Vec3{vec(q, v[0]), vec(q, v[1]), vec(q, v[2]), vec(q, v[3])}
}

func dofsOf(v ...int) []int {
	out := make([]int, 0, 3*len(v))
	for _, o := range v {
		out = append(out, o, o+1, o+2)
	}
	return out
}

// elastic sums dt^2 times every internal potential.
func (w *World) elastic(q []float64, a *assembler) float64 {
	l := w.lay
	s := w.cur.dt * w.cur.dt

	e := each(len(l.bodies), a, func(i int, a *assembler) float64 {
		b := l.bodies[i]
		if b.fixed || b.kappa == 0 {
			return 0
		}
		qb := q[b.off : b.off+12]
		if a == nil {
			return s * constitution.OrthoEnergy(qb, b.kappa, b.volume)
		}
		en, g, h := constitution.OrthoElement(qb, b.kappa, b.volume)
		scale(s, g, h)
		a.add(b.dofs, g, h)
		return s * en
	})

	e += each(len(l.tets), a, func(i int, a *assembler) float64 {
		t := &l.tets[i]
		x := points4(q, t.v)
		if a == nil {
			return s * constitution.TetEnergy(x, t.dmInv, t.vol, t.mu, t.lambda)
		}
		en, g, h := constitution.TetElement(x, t.dmInv, t.vol, t.mu, t.lambda)
		scale(s, g, h)
		a.add(dofsOf(t.v[:]...), g, h)
		return s * en
	})

	e += each(len(l.shells), a, func(i int, a *assembler) float64 {
		t := &l.shells[i]
		x := points3(q, t.v)
		if a == nil {
			return s * constitution.ShellEnergy(x, t.bInv, t.weight, t.mu, t.lambda)
		}
		en, g, h := constitution.ShellElement(x, t.bInv, t.weight, t.mu, t.lambda)
		scale(s, g, h)
		a.add(dofsOf(t.v[:]...), g, h)
		return s * en
	})

	e += each(len(l.hinges), a, func(i int, a *assembler) float64 {
		t := &l.hinges[i]
		x := points4(q, t.v)
		if a == nil {
			return s * constitution.BendingEnergy(x, t.rest, t.weight)
		}
		en, g, h := constitution.BendingElement(x, t.rest, t.weight)
		scale(s, g, h)
		a.add(dofsOf(t.v[:]...), g, h)
		return s * en
	})

	e += each(len(l.springs), a, func(i int, a *assembler) float64 {
		t := &l.springs[i]
		x0, x1 := vec(q, t.v[0]), vec(q, t.v[1])
		if a == nil {
			return s * constitution.SpringEnergy(x0, x1, t.rest, t.kappa)
		}
		en, g, h := constitution.SpringElement(x0, x1, t.rest, t.kappa)
		scale(s, g, h)
		a.add(dofsOf(t.v[:]...), g, h)
		return s * en
	})

	e += each(len(l.rods), a, func(i int, a *assembler) float64 {
		t := &l.rods[i]
		x := points3(q, t.v)
		if a == nil {
			return s * constitution.RodBendingEnergy(x, t.rest, t.weight)
		}
		en, g, h := constitution.RodBendingElement(x, t.rest, t.weight)
		scale(s, g, h)
		a.add(dofsOf(t.v[:]...), g, h)
		return s * en
	})

	e += each(len(l.stitches), a, func(i int, a *assembler) float64 {
		t := &l.stitches[i]
		d := vec(q, t.a).Sub(vec(q, t.b))
		k := s * t.kappa
		if a != nil {
			g := []float64{k * d[0], k * d[1], k * d[2], -k * d[0], -k * d[1], -k * d[2]}
			var h *mat.Dense
			if a.hess != nil {
				h = pairBlock(k, mgl64.Ident3())
			}
			a.add(dofsOf(t.a, t.b), g, h)
		}
		return 0.5 * k * d.Dot(d)
	})
	return e
}

// constraints sums the soft constraints, the external body force and the
// joints. Only the external force carries dt^2; the others are already
// scaled by mass.
func (w *World) constraints(q []float64, a *assembler) float64 {
	l, f := w.lay, w.cur
	s := f.dt * f.dt

	e := each(len(l.bodies), a, func(i int, a *assembler) float64 {
		b := l.bodies[i]
		if b.fixed || !b.constrained {
			return 0
		}
		en := 0.0
		if b.target != nil {
			d := make([]float64, 12)
			for k := range d {
				d[k] = q[b.off+k] - b.aim[k]
			}
			var wd mat.VecDense
			wd.MulVec(b.target, mat.NewVecDense(12, d))
			en += 0.5 * mat.Dot(mat.NewVecDense(12, d), &wd)
			if a != nil {
				a.add(b.dofs, wd.RawVector().Data, b.target)
			}
		}
		if b.hasForce {
			g := make([]float64, 12)
			for k := range g {
				en -= s * b.force[k] * q[b.off+k]
				g[k] = -s * b.force[k]
			}
			if a != nil {
				a.add(b.dofs, g, nil)
			}
		}
		return en
	})

	for _, fg := range l.fems {
		e += each(fg.n, a, func(i int, a *assembler) float64 {
			if fg.fixed[i] || !fg.constrained[i] || fg.strength[i] == 0 {
				return 0
			}
			off := fg.vertex(i)
			k := fg.strength[i] * fg.mass[i]
			d := vec(q, off).Sub(fg.aim[i])
			if a != nil {
				a.add([]int{off, off + 1, off + 2}, []float64{k * d[0], k * d[1], k * d[2]}, diag3(k))
			}
			return 0.5 * k * d.Dot(d)
		})
	}

	e += each(len(l.joints), a, func(i int, a *assembler) float64 {
		return l.joints[i].energy(q, a)
	})
	for _, ar := range l.artics {
		e += ar.energy(q, f.qn, a)
	}
	return e
}

// targetWeight is S^1/2 M S^1/2 with S = diag(st x3, sr x9), the quadratic
// form pulling a body to its aim transform.
func targetWeight(m *mat.Dense, st, sr float64) *mat.Dense {
	sq := make([]float64, 12)
	for k := range sq {
		if k < 3 {
			sq[k] = math.Sqrt(st)
		} else {
			sq[k] = math.Sqrt(sr)
		}
	}
	out := mat.NewDense(12, 12, nil)
	for r := 0; r < 12; r++ {
		for c := 0; c < 12; c++ {
			out.Set(r, c, sq[r]*m.At(r, c)*sq[c])
		}
	}
	return out
}

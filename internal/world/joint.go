package world

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/ipcsim/internal/constitution"
	"github.com/san-kum/ipcsim/internal/dynamo"
	"github.com/san-kum/ipcsim/internal/geometry"
	"gonum.org/v1/gonum/mat"
)

// joint ties two affine bodies along an axis. Axis endpoints and the
// reference direction are stored in each body's local frame.
type joint struct {
	prismatic bool
	l, r      *body
	lp, rp    [2]mgl64.Vec3
	lref, rref mgl64.Vec3
	laxis     mgl64.Vec3
	k         float64
	length    float64
	rel       mgl64.Mat3

	// Lagged world axis, refreshed at frame start.
	axis mgl64.Vec3
}

func affineParts(q []float64, off int) (mgl64.Vec3, mgl64.Mat3) {
	t := vec(q, off)
	a := mgl64.Mat3FromRows(vec(q, off+3), vec(q, off+6), vec(q, off+9))
	return t, a
}

func (l *layout) addJoints(slot *geometry.Slot) error {
	g := slot.Geometry()
	uid := constitution.PrimaryUID(g)
	edges := g.EdgeTopo()
	e := g.Edges()
	lg := geometry.Lookup[int](e, geometry.LeftGeoID)
	rg := geometry.Lookup[int](e, geometry.RightGeoID)
	li := geometry.Lookup[int](e, geometry.LeftInstID)
	ri := geometry.Lookup[int](e, geometry.RightInstID)
	st := geometry.Lookup[float64](e, geometry.StrengthRatio)
	if edges == nil || lg == nil || rg == nil || li == nil || ri == nil || st == nil {
		return fmt.Errorf("joint without link attributes: %w", dynamo.ErrIncompatibleGeometry)
	}
	pos := g.WorldPositions(0)
	for i, ed := range edges.CView() {
		lb, ok := l.bodyIndex[[2]int{lg.CView()[i], li.CView()[i]}]
		if !ok {
			return fmt.Errorf("joint %d left body: %w", i, dynamo.ErrNotFound)
		}
		rb, ok := l.bodyIndex[[2]int{rg.CView()[i], ri.CView()[i]}]
		if !ok {
			return fmt.Errorf("joint %d right body: %w", i, dynamo.ErrNotFound)
		}
		p0, p1 := pos[ed[0]], pos[ed[1]]
		axis := p1.Sub(p0)
		if axis.Len() == 0 {
			return fmt.Errorf("joint %d has a zero length axis: %w", i, dynamo.ErrIncompatibleGeometry)
		}
		j := &joint{
			prismatic: uid == constitution.UIDPrismaticJoint,
			l:         l.bodies[lb],
			r:         l.bodies[rb],
			length:    axis.Len(),
		}
		j.k = st.CView()[i] * (j.l.m + j.r.m) / 2
		dir := axis.Normalize()
		ref := perpendicular(dir)

		tl, al := affineParts(l.q, j.l.off)
		tr, ar := affineParts(l.q, j.r.off)
		alInv, arInv := al.Inv(), ar.Inv()
		j.lp = [2]mgl64.Vec3{alInv.Mul3x1(p0.Sub(tl)), alInv.Mul3x1(p1.Sub(tl))}
		j.rp = [2]mgl64.Vec3{arInv.Mul3x1(p0.Sub(tr)), arInv.Mul3x1(p1.Sub(tr))}
		j.laxis = alInv.Mul3x1(dir)
		j.lref = alInv.Mul3x1(ref)
		j.rref = arInv.Mul3x1(ref)
		j.rel = alInv.Mul3(ar)
		j.axis = dir

		l.jointIndex[[2]int{slot.ID(), i}] = len(l.joints)
		l.joints = append(l.joints, j)
	}
	return nil
}

// perpendicular returns a unit vector orthogonal to unit n.
func perpendicular(n mgl64.Vec3) mgl64.Vec3 {
	a := mgl64.Vec3{1, 0, 0}
	if math.Abs(n[0]) > 0.9 {
		a = mgl64.Vec3{0, 1, 0}
	}
	return a.Sub(n.Mul(a.Dot(n))).Normalize()
}

// lag fixes the world axis from the left body at q.
func (j *joint) lag(q []float64) {
	_, al := affineParts(q, j.l.off)
	if d := al.Mul3x1(j.laxis); d.Len() > 0 {
		j.axis = d.Normalize()
	}
}

func (j *joint) anchors(k int) []anchor {
	return []anchor{
		{off: j.l.off, affine: true, rest: j.lp[k]},
		{off: j.r.off, affine: true, rest: j.rp[k]},
	}
}

// energy is 1/2 k sum |P (x_l - x_r)|^2 over both axis points, with P the
// identity for a revolute joint and the projection off the lagged axis for
// a prismatic one. A prismatic joint also keeps A_r = A_l R_rel.
func (j *joint) energy(q []float64, a *assembler) float64 {
	p := mgl64.Ident3()
	if j.prismatic {
		p = p.Sub(j.axis.OuterProd3(j.axis))
	}
	e := 0.0
	for k := 0; k < 2; k++ {
		an := j.anchors(k)
		d := p.Mul3x1(an[0].pos(q).Sub(an[1].pos(q)))
		e += 0.5 * j.k * d.Dot(d)
		if a != nil {
			g := []float64{j.k * d[0], j.k * d[1], j.k * d[2], -j.k * d[0], -j.k * d[1], -j.k * d[2]}
			var h *mat.Dense
			if a.hess != nil {
				h = pairBlock(j.k, p)
			}
			a.addPoints(an, g, h)
		}
	}
	if j.prismatic {
		e += j.rotation(q, a)
	}
	return e
}

// rotation is 1/2 kr |A_r - A_l R|_F^2, linear in the rotation dofs of
// both bodies, with kr = k L^2 so that it scales like the positional term.
func (j *joint) rotation(q []float64, a *assembler) float64 {
	kr := j.k * j.length * j.length
	lin := mat.NewDense(9, 18, nil)
	res := make([]float64, 9)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			row := 3*r + c
			v := q[j.r.off+3+row]
			lin.Set(row, 9+row, 1)
			for m := 0; m < 3; m++ {
				v -= q[j.l.off+3+3*r+m] * j.rel.At(m, c)
				lin.Set(row, 3*r+m, -j.rel.At(m, c))
			}
			res[row] = v
		}
	}
	e := 0.0
	for _, v := range res {
		e += v * v
	}
	e *= 0.5 * kr
	if a == nil {
		return e
	}
	dofs := make([]int, 0, 18)
	for d := 3; d < 12; d++ {
		dofs = append(dofs, j.l.off+d)
	}
	for d := 3; d < 12; d++ {
		dofs = append(dofs, j.r.off+d)
	}
	var g mat.VecDense
	g.MulVec(lin.T(), mat.NewVecDense(9, res))
	g.ScaleVec(kr, &g)
	if a.hess == nil {
		a.add(dofs, g.RawVector().Data, nil)
		return e
	}
	var h mat.Dense
	h.Mul(lin.T(), lin)
	h.Scale(kr, &h)
	a.add(dofs, g.RawVector().Data, &h)
	return e
}

// theta is the joint coordinate at q: the signed angle between the two
// reference directions about the lagged axis, or the slide along it.
func (j *joint) theta(q []float64) float64 {
	if j.prismatic {
		xl := anchor{off: j.l.off, affine: true, rest: j.lp[0]}.pos(q)
		xr := anchor{off: j.r.off, affine: true, rest: j.rp[0]}.pos(q)
		return j.axis.Dot(xr.Sub(xl))
	}
	_, al := affineParts(q, j.l.off)
	_, ar := affineParts(q, j.r.off)
	ul, ur := al.Mul3x1(j.lref), ar.Mul3x1(j.rref)
	ul = ul.Sub(j.axis.Mul(ul.Dot(j.axis)))
	ur = ur.Sub(j.axis.Mul(ur.Dot(j.axis)))
	return math.Atan2(j.axis.Dot(ul.Cross(ur)), ul.Dot(ur))
}

// articulation couples joint coordinates through a joint-space mass,
// linearised at the start of each frame.
type articulation struct {
	slot   *geometry.Slot
	joints []*joint
	bodies []*body

	dofs   []int
	g      *mat.Dense
	base   []float64
	target []float64
	mass   *mat.Dense
}

func (l *layout) addArticulation(slot *geometry.Slot) error {
	g := slot.Geometry()
	jc, err := g.FindCollection(geometry.JointCollection)
	if err != nil {
		return err
	}
	geoID := geometry.Lookup[int](jc, constitution.JointGeoID)
	index := geometry.Lookup[int](jc, constitution.JointIndex)
	if geoID == nil || index == nil {
		return fmt.Errorf("articulation without joint references: %w", dynamo.ErrIncompatibleGeometry)
	}
	a := &articulation{slot: slot}
	seen := make(map[*body]bool)
	for k := 0; k < jc.Size(); k++ {
		ji, ok := l.jointIndex[[2]int{geoID.CView()[k], index.CView()[k]}]
		if !ok {
			return fmt.Errorf("articulated joint %d/%d: %w", geoID.CView()[k], index.CView()[k], dynamo.ErrNotFound)
		}
		j := l.joints[ji]
		a.joints = append(a.joints, j)
		for _, b := range []*body{j.l, j.r} {
			if !seen[b] {
				seen[b] = true
				a.bodies = append(a.bodies, b)
			}
		}
	}
	for _, b := range a.bodies {
		a.dofs = append(a.dofs, b.dofs...)
	}
	n := len(a.joints)
	a.mass = mat.NewDense(n, n, nil)
	a.target = make([]float64, n)
	a.base = make([]float64, n)
	l.artics = append(l.artics, a)
	return nil
}

// sync reads the per-frame joint-space mass and target increments.
func (a *articulation) sync() error {
	g := a.slot.Geometry()
	jc, err := g.FindCollection(geometry.JointCollection)
	if err != nil {
		return err
	}
	jj, err := g.FindCollection(geometry.JointJointCollection)
	if err != nil {
		return err
	}
	n := len(a.joints)
	if dt := geometry.Lookup[float64](jc, constitution.DeltaThetaTilde); dt != nil {
		copy(a.target, dt.CView())
	}
	if m := geometry.Lookup[float64](jj, geometry.Mass); m != nil && m.Len() == n*n {
		for r := 0; r < n; r++ {
			for c := 0; c < n; c++ {
				a.mass.Set(r, c, m.CView()[r*n+c])
			}
		}
	}
	return nil
}

// linearize evaluates the joint coordinate Jacobian at q by central
// differences.
func (a *articulation) linearize(q []float64) {
	n := len(a.joints)
	a.g = mat.NewDense(n, len(a.dofs), nil)
	for k, j := range a.joints {
		a.base[k] = j.theta(q)
	}
	work := append([]float64(nil), q...)
	const h = 1e-6
	for c, d := range a.dofs {
		orig := work[d]
		work[d] = orig + h
		plus := make([]float64, n)
		for k, j := range a.joints {
			plus[k] = j.theta(work)
		}
		work[d] = orig - h
		for k, j := range a.joints {
			a.g.Set(k, c, (plus[k]-j.theta(work))/(2*h))
		}
		work[d] = orig
	}
}

// energy is 1/2 r^T M r with r = G (q - q_n) - delta_theta_tilde.
func (a *articulation) energy(q, qn []float64, asm *assembler) float64 {
	n := len(a.joints)
	dq := make([]float64, len(a.dofs))
	for c, d := range a.dofs {
		dq[c] = q[d] - qn[d]
	}
	var r mat.VecDense
	r.MulVec(a.g, mat.NewVecDense(len(dq), dq))
	r.SubVec(&r, mat.NewVecDense(n, a.target))
	var mr mat.VecDense
	mr.MulVec(a.mass, &r)
	e := 0.5 * mat.Dot(&r, &mr)
	if asm == nil {
		return e
	}
	var g mat.VecDense
	g.MulVec(a.g.T(), &mr)
	if asm.hess == nil {
		asm.add(a.dofs, g.RawVector().Data, nil)
		return e
	}
	var mg, h mat.Dense
	mg.Mul(a.mass, a.g)
	h.Mul(a.g.T(), &mg)
	asm.add(a.dofs, g.RawVector().Data, &h)
	return e
}

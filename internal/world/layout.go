package world

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/ipcsim/internal/collision"
	"github.com/san-kum/ipcsim/internal/constitution"
	"github.com/san-kum/ipcsim/internal/dynamo"
	"github.com/san-kum/ipcsim/internal/geometry"
	"github.com/san-kum/ipcsim/internal/linsys"
	"github.com/san-kum/ipcsim/internal/scene"
	"gonum.org/v1/gonum/mat"
)

const minThickness = 1e-3

// body is one affine instance.
type body struct {
	slot   *geometry.Slot
	inst   int
	off    int
	dofs   []int
	mass   *mat.Dense
	m      float64
	volume float64
	kappa  float64
	fixed  bool

	// Refreshed from the instance attributes every frame.
	constrained bool
	dynamic     bool
	kinetic     bool
	aim         [12]float64
	stc         bool
	strength    [2]float64
	motor       float64
	force       [12]float64
	hasForce    bool
	kinVel      [12]float64
	gravity     mgl64.Vec3
	target      *mat.Dense
}

// femGeo is one finite element geometry; vertex i owns q[off+3i : off+3i+3].
type femGeo struct {
	slot      *geometry.Slot
	uid       uint64
	off       int
	n         int
	mass      []float64
	fixed     []bool
	thickness float64

	constrained []bool
	aim         []mgl64.Vec3
	strength    []float64
	gravity     []mgl64.Vec3
}

func (f *femGeo) vertex(i int) int { return f.off + 3*i }

// cvert is a collision vertex.
type cvert struct {
	anchor anchor
	group  int
	self   bool
	elem   int
	sub    int
	free   bool
}

type planeInfo struct {
	elem int
	sub  int
}

type tetElem struct {
	v      [4]int
	dmInv  mgl64.Mat3
	vol    float64
	mu     float64
	lambda float64
	// sign of the rest volume; a tet is inverted once its current signed
	// volume disagrees.
	sign float64
}

type shellElem struct {
	v      [3]int
	bInv   mgl64.Mat2
	weight float64
	mu     float64
	lambda float64
}

type hingeElem struct {
	v      [4]int
	rest   float64
	weight float64
}

type springElem struct {
	v     [2]int
	rest  float64
	kappa float64
}

type rodElem struct {
	v      [3]int
	rest   mgl64.Vec3
	weight float64
}

type stitchElem struct {
	a, b  int
	kappa float64
}

type layout struct {
	q, v dynamo.Vector

	free   []int
	nsys   int
	blocks []linsys.Block

	bodies []*body
	fems   []*femGeo
	verts  []cvert
	planes []planeInfo
	mesh   collision.Mesh

	tets     []tetElem
	shells   []shellElem
	hinges   []hingeElem
	springs  []springElem
	rods     []rodElem
	stitches []stitchElem
	joints   []*joint
	artics   []*articulation

	bodyIndex  map[[2]int]int
	femIndex   map[int]*femGeo
	jointIndex map[[2]int]int

	groups int
}

func buildLayout(s *scene.Scene, logger *slog.Logger) (*layout, error) {
	l := &layout{
		bodyIndex:  make(map[[2]int]int),
		femIndex:   make(map[int]*femGeo),
		jointIndex: make(map[[2]int]int),
	}
	var jointSlots, stitchSlots, articSlots []*geometry.Slot
	for _, slot := range s.Slots() {
		g := slot.Geometry()
		if g.Type() == geometry.ImplicitGeometry {
			n, p, ok := g.HalfPlane()
			if !ok {
				logger.Warn("implicit geometry without half plane ignored", "slot", slot.ID())
				continue
			}
			l.mesh.Planes = append(l.mesh.Planes, collision.Plane{N: n, P: p})
			l.planes = append(l.planes, planeInfo{
				elem: metaInt(g, geometry.ContactElementID),
				sub:  metaInt(g, geometry.SubsceneElementID),
			})
			continue
		}
		uid := constitution.PrimaryUID(g)
		var err error
		switch {
		case uid == 0:
			logger.Debug("geometry without constitution ignored", "slot", slot.ID())
		case constitution.IsJoint(uid):
			jointSlots = append(jointSlots, slot)
		case uid == constitution.UIDSoftVertexStitch:
			stitchSlots = append(stitchSlots, slot)
		case uid == constitution.UIDExternalArticulationConstraint:
			articSlots = append(articSlots, slot)
		case uid == constitution.UIDAffineBody:
			err = l.addAffine(slot)
		case constitution.IsFEM(uid):
			err = l.addFEM(slot, uid)
		default:
			logger.Warn("unsupported primary constitution", "slot", slot.ID(), "uid", uid)
		}
		if err != nil {
			return nil, fmt.Errorf("slot %d: %w", slot.ID(), err)
		}
	}
	for _, slot := range jointSlots {
		if err := l.addJoints(slot); err != nil {
			return nil, fmt.Errorf("joint slot %d: %w", slot.ID(), err)
		}
	}
	for _, slot := range stitchSlots {
		if err := l.addStitch(slot); err != nil {
			return nil, fmt.Errorf("stitch slot %d: %w", slot.ID(), err)
		}
	}
	for _, slot := range articSlots {
		if err := l.addArticulation(slot); err != nil {
			return nil, fmt.Errorf("articulation slot %d: %w", slot.ID(), err)
		}
	}
	l.number()
	l.filters(s)
	return l, nil
}

func metaInt(g *geometry.Geometry, name string) int {
	if col := geometry.Lookup[int](g.Meta(), name); col != nil {
		return col.CView()[0]
	}
	return 0
}

// number assigns system indices to the dofs of free instances and vertices.
func (l *layout) number() {
	l.free = make([]int, len(l.q))
	for i := range l.free {
		l.free[i] = -1
	}
	for _, b := range l.bodies {
		if b.fixed {
			continue
		}
		l.blocks = append(l.blocks, linsys.Block{Start: l.nsys, Size: 12})
		for d := 0; d < 12; d++ {
			l.free[b.off+d] = l.nsys
			l.nsys++
		}
	}
	for _, f := range l.fems {
		for i := 0; i < f.n; i++ {
			if f.fixed[i] {
				continue
			}
			l.blocks = append(l.blocks, linsys.Block{Start: l.nsys, Size: 3})
			for d := 0; d < 3; d++ {
				l.free[f.vertex(i)+d] = l.nsys
				l.nsys++
			}
		}
	}
}

func (l *layout) filters(s *scene.Scene) {
	tab, sub := s.ContactTabular(), s.SubsceneTabular()
	l.mesh.Allow = func(a, b int) bool {
		va, vb := &l.verts[a], &l.verts[b]
		if !va.free && !vb.free {
			return false
		}
		if va.group == vb.group && !va.self {
			return false
		}
		if !sub.Enabled(va.sub, vb.sub) {
			return false
		}
		return tab.At(va.elem, vb.elem).Enabled
	}
	l.mesh.AllowPlane = func(v, pl int) bool {
		cv, p := &l.verts[v], l.planes[pl]
		if !cv.free || !sub.Enabled(cv.sub, p.sub) {
			return false
		}
		return tab.At(cv.elem, p.elem).Enabled
	}
}

// surfaceOf labels a copy of g when it carries no surface flags yet.
func surfaceOf(g *geometry.Geometry) *geometry.Geometry {
	if g.Vertices().Has(geometry.IsSurf) {
		return g
	}
	c := g.Clone()
	geometry.LabelSurface(c)
	return c
}

// addSurface registers the surface of g as collision primitives. anchorOf
// maps a local vertex index to its anchor.
func (l *layout) addSurface(g *geometry.Geometry, group int, self bool, free func(i int) bool, anchorOf func(i int) anchor) {
	surf := surfaceOf(g)
	thickness := g.MetaFloat(geometry.Thickness, 0)
	dhat := g.MetaFloat(geometry.DHat, 0)
	elem := metaInt(g, geometry.ContactElementID)
	sub := metaInt(g, geometry.SubsceneElementID)

	index := make(map[int]int)
	for _, i := range surf.SurfaceVertices() {
		index[i] = len(l.verts)
		l.mesh.Points = append(l.mesh.Points, len(l.verts))
		l.verts = append(l.verts, cvert{
			anchor: anchorOf(i),
			group:  group,
			self:   self,
			elem:   elem,
			sub:    sub,
			free:   free(i),
		})
		l.mesh.Thickness = append(l.mesh.Thickness, thickness)
		l.mesh.DHat = append(l.mesh.DHat, dhat)
	}
	if edges := surf.EdgeTopo(); edges != nil {
		all := edges.CView()
		for _, e := range surf.SurfaceEdges() {
			l.mesh.Edges = append(l.mesh.Edges, [2]int{index[all[e][0]], index[all[e][1]]})
		}
	}
	if tris := surf.TriangleTopo(); tris != nil {
		all := tris.CView()
		for _, t := range surf.SurfaceTriangles() {
			l.mesh.Tris = append(l.mesh.Tris, [3]int{index[all[t][0]], index[all[t][1]], index[all[t][2]]})
		}
	}
}

func (l *layout) addAffine(slot *geometry.Slot) error {
	g := slot.Geometry()
	pos := g.Positions()
	if pos == nil {
		return fmt.Errorf("affine body without positions: %w", dynamo.ErrIncompatibleGeometry)
	}
	rest := pos.CView()
	rho := g.MetaFloat(geometry.MassDensity, constitution.DefaultMassDensity)
	m, first, second, vol := affineMass(g, rest, rho)

	inst := g.Instances()
	tf := g.Transforms().CView()
	kappa := geometry.Lookup[float64](inst, geometry.Kappa)
	fixed := geometry.Lookup[int32](inst, geometry.IsFixed)
	vel := geometry.Lookup[mgl64.Mat4](inst, geometry.Velocity)

	for i := 0; i < inst.Size(); i++ {
		b := &body{
			slot:   slot,
			inst:   i,
			off:    len(l.q),
			mass:   affineMassMatrix(m, first, second),
			m:      m,
			volume: vol,
		}
		for d := 0; d < 12; d++ {
			b.dofs = append(b.dofs, b.off+d)
		}
		if kappa != nil {
			b.kappa = kappa.CView()[i]
		}
		b.fixed = fixed != nil && fixed.CView()[i] != 0
		q := constitution.TransformToQ(tf[i])
		l.q = append(l.q, q[:]...)
		var v [12]float64
		if vel != nil && !b.fixed {
			v = constitution.TransformToQ(vel.CView()[i])
		}
		l.v = append(l.v, v[:]...)

		l.bodyIndex[[2]int{slot.ID(), i}] = len(l.bodies)
		l.bodies = append(l.bodies, b)

		l.groups++
		off := b.off
		l.addSurface(g, l.groups, false,
			func(int) bool { return !b.fixed },
			func(k int) anchor { return anchor{off: off, affine: true, rest: rest[k]} })
	}
	return nil
}

// affineMass integrates density over the body volume, returning the mass,
// the first moment and the second moment about the local origin.
// Tetrahedra come from the tet topology, or from fanning a closed surface
// to its vertex centroid. Degenerate bodies fall back to point masses
// filling the bounding box volume.
func affineMass(g *geometry.Geometry, rest []mgl64.Vec3, rho float64) (float64, mgl64.Vec3, mgl64.Mat3, float64) {
	var tets [][4]mgl64.Vec3
	if col := g.TetTopo(); col != nil && g.Dim() == 3 {
		for _, t := range col.CView() {
			tets = append(tets, [4]mgl64.Vec3{rest[t[0]], rest[t[1]], rest[t[2]], rest[t[3]]})
		}
	} else if col := g.TriangleTopo(); col != nil {
		var c mgl64.Vec3
		for _, p := range rest {
			c = c.Add(p)
		}
		c = c.Mul(1 / float64(len(rest)))
		for _, t := range col.CView() {
			tets = append(tets, [4]mgl64.Vec3{c, rest[t[0]], rest[t[1]], rest[t[2]]})
		}
	}

	signed := 0.0
	for _, t := range tets {
		signed += geometry.TetVolume(t[0], t[1], t[2], t[3])
	}
	sign := 1.0
	if signed < 0 {
		sign = -1
	}
	if g.Dim() == 3 {
		sign = 0
	}

	var (
		m      float64
		first  mgl64.Vec3
		second mgl64.Mat3
		vol    float64
	)
	for _, t := range tets {
		v := geometry.TetVolume(t[0], t[1], t[2], t[3])
		if sign == 0 {
			v = math.Abs(v)
		} else {
			v *= sign
		}
		mt := rho * v
		sum := t[0].Add(t[1]).Add(t[2]).Add(t[3])
		first = first.Add(sum.Mul(mt / 4))
		outer := mgl64.Mat3{}
		for _, p := range t {
			outer = outer.Add(p.OuterProd3(p))
		}
		outer = outer.Add(sum.OuterProd3(sum))
		second = second.Add(outer.Mul(mt / 20))
		m += mt
		vol += v
	}
	if vol > 1e-12 {
		return m, first, second, vol
	}

	box := collision.BoxOf(rest...)
	ext := box.Max.Sub(box.Min)
	vol = math.Max(ext[0], minThickness) * math.Max(ext[1], minThickness) * math.Max(ext[2], minThickness)
	m = rho * vol
	mi := m / float64(len(rest))
	first, second = mgl64.Vec3{}, mgl64.Mat3{}
	for _, p := range rest {
		first = first.Add(p.Mul(mi))
		second = second.Add(p.OuterProd3(p).Mul(mi))
	}
	return m, first, second, vol
}

func affineMassMatrix(m float64, first mgl64.Vec3, second mgl64.Mat3) *mat.Dense {
	out := mat.NewDense(12, 12, nil)
	for i := 0; i < 3; i++ {
		out.Set(i, i, m)
		for c := 0; c < 3; c++ {
			out.Set(i, 3+3*i+c, first[c])
			out.Set(3+3*i+c, i, first[c])
			for d := 0; d < 3; d++ {
				out.Set(3+3*i+c, 3+3*i+d, second.At(c, d))
			}
		}
	}
	return out
}

func (l *layout) addFEM(slot *geometry.Slot, uid uint64) error {
	g := slot.Geometry()
	if g.Instances().Size() != 1 {
		return fmt.Errorf("finite element geometry with %d instances: %w", g.Instances().Size(), dynamo.ErrIncompatibleGeometry)
	}
	pos := g.Positions()
	if pos == nil {
		return fmt.Errorf("finite element geometry without positions: %w", dynamo.ErrIncompatibleGeometry)
	}
	world := g.WorldPositions(0)
	copy(pos.View(), world)
	g.Transforms().View()[0] = mgl64.Ident4()

	restGeo := slot.Rest()
	rest := world
	if restGeo != nil && restGeo.Positions() != nil && restGeo.Positions().Len() == len(world) {
		rest = restGeo.WorldPositions(0)
	}

	f := &femGeo{
		slot:        slot,
		uid:         uid,
		off:         len(l.q),
		n:           len(world),
		fixed:       make([]bool, len(world)),
		thickness:   g.MetaFloat(geometry.Thickness, 0),
		constrained: make([]bool, len(world)),
		aim:         make([]mgl64.Vec3, len(world)),
		strength:    make([]float64, len(world)),
		gravity:     make([]mgl64.Vec3, len(world)),
	}
	if col := geometry.Lookup[int32](g.Vertices(), geometry.IsFixed); col != nil {
		for i, v := range col.CView() {
			f.fixed[i] = v != 0
		}
	}
	vel := geometry.Lookup[mgl64.Vec3](g.Vertices(), geometry.Velocity)
	for i, p := range world {
		l.q = append(l.q, p[0], p[1], p[2])
		var v mgl64.Vec3
		if vel != nil && !f.fixed[i] {
			v = vel.CView()[i]
		}
		l.v = append(l.v, v[0], v[1], v[2])
	}

	rho := g.MetaFloat(geometry.MassDensity, constitution.DefaultMassDensity)
	f.mass = femMasses(g, rest, rho, f.thickness)
	if err := l.addElements(f, g, rest); err != nil {
		return err
	}

	l.femIndex[slot.ID()] = f
	l.fems = append(l.fems, f)
	l.groups++
	l.addSurface(g, l.groups, true,
		func(i int) bool { return !f.fixed[i] },
		func(i int) anchor { return anchor{off: f.vertex(i)} })
	return nil
}

// femMasses lumps density onto vertices by the geometry's dimension: tets
// a quarter of their volume each, shells a third of area times a
// thickness-derived height, rods half of each segment's tube and points a
// sphere of radius thickness.
func femMasses(g *geometry.Geometry, rest []mgl64.Vec3, rho, thickness float64) []float64 {
	mass := make([]float64, len(rest))
	r := math.Max(thickness, minThickness)
	switch {
	case g.Dim() == 3 && g.TetTopo() != nil:
		for _, t := range g.TetTopo().CView() {
			m := rho * math.Abs(geometry.TetVolume(rest[t[0]], rest[t[1]], rest[t[2]], rest[t[3]])) / 4
			for _, v := range t {
				mass[v] += m
			}
		}
	case g.Dim() == 2 && g.TriangleTopo() != nil:
		h := math.Max(2*thickness, minThickness)
		for _, t := range g.TriangleTopo().CView() {
			area := 0.5 * rest[t[1]].Sub(rest[t[0]]).Cross(rest[t[2]].Sub(rest[t[0]])).Len()
			m := rho * area * h / 3
			for _, v := range t {
				mass[v] += m
			}
		}
	case g.Dim() == 1 && g.EdgeTopo() != nil:
		for _, e := range g.EdgeTopo().CView() {
			m := rho * math.Pi * r * r * rest[e[1]].Sub(rest[e[0]]).Len() / 2
			mass[e[0]] += m
			mass[e[1]] += m
		}
	}
	point := rho * 4 / 3 * math.Pi * r * r * r
	for i := range mass {
		if mass[i] <= 0 {
			mass[i] = point
		}
	}
	return mass
}

func (l *layout) addElements(f *femGeo, g *geometry.Geometry, rest []mgl64.Vec3) error {
	switch f.uid {
	case constitution.UIDStableNeoHookean:
		tets := g.TetTopo()
		mu := geometry.Lookup[float64](g.Tetrahedra(), geometry.Mu)
		lambda := geometry.Lookup[float64](g.Tetrahedra(), geometry.Lambda)
		if tets == nil || mu == nil || lambda == nil {
			return fmt.Errorf("neo-hookean geometry without tets or moduli: %w", dynamo.ErrIncompatibleGeometry)
		}
		for i, t := range tets.CView() {
			x := [4]mgl64.Vec3{rest[t[0]], rest[t[1]], rest[t[2]], rest[t[3]]}
			dmInv, vol, ok := constitution.TetRest(x)
			if !ok {
				return fmt.Errorf("tet %d is degenerate: %w", i, dynamo.ErrIncompatibleGeometry)
			}
			sign := 1.0
			if geometry.TetVolume(x[0], x[1], x[2], x[3]) < 0 {
				sign = -1
			}
			l.tets = append(l.tets, tetElem{
				v:      [4]int{f.vertex(t[0]), f.vertex(t[1]), f.vertex(t[2]), f.vertex(t[3])},
				dmInv:  dmInv,
				vol:    vol,
				mu:     mu.CView()[i],
				lambda: lambda.CView()[i],
				sign:   sign,
			})
		}
	case constitution.UIDNeoHookeanShell:
		tris := g.TriangleTopo()
		mu := geometry.Lookup[float64](g.Triangles(), geometry.Mu)
		lambda := geometry.Lookup[float64](g.Triangles(), geometry.Lambda)
		if tris == nil || mu == nil || lambda == nil {
			return fmt.Errorf("shell geometry without triangles or moduli: %w", dynamo.ErrIncompatibleGeometry)
		}
		h := math.Max(2*f.thickness, minThickness)
		for i, t := range tris.CView() {
			bInv, area, ok := constitution.TriangleRest([3]mgl64.Vec3{rest[t[0]], rest[t[1]], rest[t[2]]})
			if !ok {
				return fmt.Errorf("triangle %d is degenerate: %w", i, dynamo.ErrIncompatibleGeometry)
			}
			l.shells = append(l.shells, shellElem{
				v:      [3]int{f.vertex(t[0]), f.vertex(t[1]), f.vertex(t[2])},
				bInv:   bInv,
				weight: area * h,
				mu:     mu.CView()[i],
				lambda: lambda.CView()[i],
			})
		}
	case constitution.UIDHookeanSpring:
		edges := g.EdgeTopo()
		kappa := geometry.Lookup[float64](g.Edges(), geometry.Kappa)
		if edges == nil || kappa == nil {
			return fmt.Errorf("spring geometry without edges or stiffness: %w", dynamo.ErrIncompatibleGeometry)
		}
		for i, e := range edges.CView() {
			l.springs = append(l.springs, springElem{
				v:     [2]int{f.vertex(e[0]), f.vertex(e[1])},
				rest:  rest[e[1]].Sub(rest[e[0]]).Len(),
				kappa: kappa.CView()[i],
			})
		}
	}

	if constitution.HasExtra(g, constitution.UIDDiscreteShellBending) {
		l.addHinges(f, g, rest)
	}
	if constitution.HasExtra(g, constitution.UIDKirchhoffRodBending) {
		l.addRods(f, g, rest)
	}
	return nil
}

// addHinges creates one bending element per interior edge shared by two
// triangles. Triangle one is (x0, x1, x2) and triangle two (x1, x0, x3).
func (l *layout) addHinges(f *femGeo, g *geometry.Geometry, rest []mgl64.Vec3) {
	tris := g.TriangleTopo()
	if tris == nil {
		return
	}
	stiff := make(map[[2]int]float64)
	if edges, k := g.EdgeTopo(), geometry.Lookup[float64](g.Edges(), geometry.BendingStiffness); edges != nil && k != nil {
		for i, e := range edges.CView() {
			stiff[sortedPair(e[0], e[1])] = k.CView()[i]
		}
	}
	type side struct {
		tri  int
		a, b int
		opp  int
	}
	adj := make(map[[2]int][]side)
	var order [][2]int
	for ti, t := range tris.CView() {
		for k := 0; k < 3; k++ {
			a, b, c := t[k], t[(k+1)%3], t[(k+2)%3]
			key := sortedPair(a, b)
			if _, ok := adj[key]; !ok {
				order = append(order, key)
			}
			adj[key] = append(adj[key], side{tri: ti, a: a, b: b, opp: c})
		}
	}
	for _, key := range order {
		sides := adj[key]
		if len(sides) != 2 {
			continue
		}
		k := stiff[key]
		if k == 0 {
			continue
		}
		s0, s1 := sides[0], sides[1]
		idx := [4]int{s0.a, s0.b, s0.opp, s1.opp}
		x := [4]mgl64.Vec3{rest[idx[0]], rest[idx[1]], rest[idx[2]], rest[idx[3]]}
		l.hinges = append(l.hinges, hingeElem{
			v:      [4]int{f.vertex(idx[0]), f.vertex(idx[1]), f.vertex(idx[2]), f.vertex(idx[3])},
			rest:   constitution.DihedralAngle(x[0], x[1], x[2], x[3]),
			weight: constitution.BendingWeight(k, x[0], x[1], x[2], x[3]),
		})
	}
}

// addRods creates a bending element at every vertex joining exactly two
// segments.
func (l *layout) addRods(f *femGeo, g *geometry.Geometry, rest []mgl64.Vec3) {
	edges := g.EdgeTopo()
	k := geometry.Lookup[float64](g.Vertices(), geometry.BendingStiffness)
	if edges == nil || k == nil {
		return
	}
	nbr := make([][]int, f.n)
	for _, e := range edges.CView() {
		nbr[e[0]] = append(nbr[e[0]], e[1])
		nbr[e[1]] = append(nbr[e[1]], e[0])
	}
	for v, ns := range nbr {
		if len(ns) != 2 || k.CView()[v] == 0 {
			continue
		}
		a, b := ns[0], ns[1]
		l0, l1 := rest[v].Sub(rest[a]).Len(), rest[b].Sub(rest[v]).Len()
		mean := (l0 + l1) / 2
		if mean == 0 {
			continue
		}
		l.rods = append(l.rods, rodElem{
			v:      [3]int{f.vertex(a), f.vertex(v), f.vertex(b)},
			rest:   constitution.CurvatureBinormal(rest[a], rest[v], rest[b]),
			weight: k.CView()[v] / mean,
		})
	}
}

func sortedPair(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}

func (l *layout) addStitch(slot *geometry.Slot) error {
	g := slot.Geometry()
	ids := geometry.Lookup[[2]int](g.Meta(), constitution.StitchGeoIDs)
	edges := g.EdgeTopo()
	kappa := geometry.Lookup[float64](g.Edges(), geometry.Kappa)
	if ids == nil || edges == nil || kappa == nil {
		return fmt.Errorf("stitch without slots, pairs or stiffness: %w", dynamo.ErrIncompatibleGeometry)
	}
	a, okA := l.femIndex[ids.CView()[0][0]]
	b, okB := l.femIndex[ids.CView()[0][1]]
	if !okA || !okB {
		return fmt.Errorf("stitched slots %v: %w", ids.CView()[0], dynamo.ErrNotFound)
	}
	for i, e := range edges.CView() {
		if e[0] >= a.n || e[1] >= b.n {
			return fmt.Errorf("stitch pair %v: %w", e, geometry.ErrBadIndex)
		}
		l.stitches = append(l.stitches, stitchElem{a: a.vertex(e[0]), b: b.vertex(e[1]), kappa: kappa.CView()[i]})
	}
	return nil
}

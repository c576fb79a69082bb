package experiment

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/ipcsim/internal/constitution"
	"github.com/san-kum/ipcsim/internal/geometry"
	"github.com/san-kum/ipcsim/internal/scene"
)

const (
	mpa = 1e6
	gpa = 1e9
)

func builtinPresets() []Preset {
	return []Preset{
		{Name: "falling_cube", Description: "an affine cube dropped on the ground", Frames: 100, Build: fallingCube},
		{Name: "cube_stack", Description: "three affine instances stacked with friction", Frames: 150, Build: cubeStack},
		{Name: "init_velocity", Description: "affine and soft cubes launched sideways over the ground", Frames: 100, Build: initVelocity,
			Config: map[string]any{"dt": 0.02}},
		{Name: "pressed_tet", Description: "a soft tetrahedron whose apex is driven by a soft position constraint", Frames: 100, Build: pressedTet,
			Config: map[string]any{"dt": 0.02}},
		{Name: "soft_transform", Description: "an affine cube spun in place by a soft transform constraint", Frames: 100, Build: softTransform},
		{Name: "motor", Description: "a bar driven about z by a rotating motor", Frames: 100, Build: motor,
			Config: map[string]any{"contact/friction/enable": false, "gravity": []float64{0, 0, 0}}},
		{Name: "pendulum", Description: "two links joined by a revolute joint, the first one fixed", Frames: 150, Build: pendulum},
		{Name: "prismatic", Description: "a block sliding down a prismatic joint onto the ground", Frames: 100, Build: prismatic},
		{Name: "articulation", Description: "revolute and prismatic joints driven through an external articulation", Frames: 100, Build: articulation,
			Config: map[string]any{"gravity": []float64{0, 0, 0}}},
		{Name: "cloth", Description: "a bending shell draped over a fixed cube", Frames: 150, Build: cloth},
		{Name: "stitch", Description: "two cloth panels sewn along one edge by soft vertex stitches", Frames: 100, Build: stitch},
		{Name: "rods", Description: "cantilever rods of increasing bending stiffness", Frames: 100, Build: rods},
		{Name: "particles", Description: "a column of particles settling on the ground", Frames: 100, Build: particles},
		{Name: "external_force", Description: "an affine cube pushed around by an orbiting external body force", Frames: 100, Build: externalForce,
			Config: map[string]any{"gravity": []float64{0, 0, 0}}},
		{Name: "subscene", Description: "a cube in its own subscene falls through the ground next to a colliding one", Frames: 60, Build: subscene},
		{Name: "mesh_d_hat", Description: "cubes of different resolution with contact distances estimated from their meshes", Frames: 100, Build: meshDHat},
	}
}

func addObject(s *scene.Scene, name string, geos ...*geometry.Geometry) (*scene.Object, []*geometry.Slot, error) {
	obj := s.Objects().Create(name)
	slots := make([]*geometry.Slot, 0, len(geos))
	for _, g := range geos {
		slot, err := obj.Geometries().Create(g)
		if err != nil {
			return nil, nil, err
		}
		slots = append(slots, slot)
	}
	return obj, slots, nil
}

func addGround(s *scene.Scene, height float64) error {
	_, _, err := addObject(s, "ground", geometry.Ground(height))
	return err
}

// affineBox builds a tetrahedral box bound as affine bodies with n instances.
func affineBox(extents mgl64.Vec3, n int, kappa float64) (*geometry.Geometry, error) {
	g := geometry.Box(extents, 1)
	geometry.LabelSurface(g)
	if n > 1 {
		if err := g.Instances().Resize(n); err != nil {
			return nil, err
		}
	}
	if err := constitution.NewAffineBody().ApplyTo(g, kappa); err != nil {
		return nil, err
	}
	return g, nil
}

func setInt(c *geometry.Collection, name string, i int, v int32) error {
	col, err := geometry.Find[int32](c, name)
	if err != nil {
		return err
	}
	col.View()[i] = v
	return nil
}

func place(g *geometry.Geometry, i int, x, y, z float64) {
	g.Transforms().View()[i] = mgl64.Translate3D(x, y, z)
}

func fallingCube(s *scene.Scene) error {
	s.ContactTabular().DefaultModel(0.5, 1*gpa)
	cube, err := affineBox(mgl64.Vec3{0.2, 0.2, 0.2}, 1, 100*mpa)
	if err != nil {
		return err
	}
	place(cube, 0, 0, 0.5, 0)
	if _, _, err := addObject(s, "cube", cube); err != nil {
		return err
	}
	return addGround(s, 0)
}

func cubeStack(s *scene.Scene) error {
	s.ContactTabular().DefaultModel(0.5, 1*gpa)
	cubes, err := affineBox(mgl64.Vec3{0.2, 0.2, 0.2}, 3, 100*mpa)
	if err != nil {
		return err
	}
	for i := 0; i < 3; i++ {
		place(cubes, i, 0.02*float64(i), 0.15+0.25*float64(i), 0)
	}
	if _, _, err := addObject(s, "stack", cubes); err != nil {
		return err
	}
	return addGround(s, 0)
}

func initVelocity(s *scene.Scene) error {
	s.ContactTabular().DefaultModel(0.5, 1*gpa)

	abd, err := affineBox(mgl64.Vec3{0.3, 0.3, 0.3}, 1, 10*mpa)
	if err != nil {
		return err
	}
	place(abd, 0, 0.5, 0.3, 0)
	vel, err := geometry.Find[mgl64.Mat4](abd.Instances(), geometry.Velocity)
	if err != nil {
		return err
	}
	// d/dt of the transform: only the translation column moves
	vel.View()[0] = mgl64.Mat4{14: 1}

	fem := geometry.Box(mgl64.Vec3{0.3, 0.3, 0.3}, 2, mgl64.Translate3D(-0.5, 0.3, 0))
	geometry.LabelSurface(fem)
	if err := constitution.NewStableNeoHookean().ApplyTo(fem, constitution.YoungsPoisson(1*mpa, 0.45), 1e3); err != nil {
		return err
	}
	fv, err := geometry.Find[mgl64.Vec3](fem.Vertices(), geometry.Velocity)
	if err != nil {
		return err
	}
	for i := range fv.View() {
		fv.View()[i] = mgl64.Vec3{0, 0, 1}
	}

	if _, _, err := addObject(s, "abd", abd); err != nil {
		return err
	}
	if _, _, err := addObject(s, "fem", fem); err != nil {
		return err
	}
	return addGround(s, 0)
}

func pressedTet(s *scene.Scene) error {
	s.ContactTabular().DefaultModel(0.1, 1*gpa)

	h := math.Sqrt(3) / 2
	tet, err := geometry.Tetmesh(
		[]mgl64.Vec3{{0, 1, 0}, {0, 0, 1}, {-h, 0, -0.5}, {h, 0, -0.5}},
		[][4]int{{0, 1, 2, 3}},
	)
	if err != nil {
		return err
	}
	geometry.LabelSurface(tet)
	if err := constitution.NewStableNeoHookean().ApplyTo(tet, constitution.YoungsPoisson(0.1*mpa, 0.49), 1e3); err != nil {
		return err
	}
	if err := constitution.NewSoftPositionConstraint().ApplyTo(tet, 100); err != nil {
		return err
	}

	obj, _, err := addObject(s, "tet", tet)
	if err != nil {
		return err
	}
	if err := addGround(s, -0.5); err != nil {
		return err
	}

	return s.Animator().Insert(obj, func(info scene.UpdateInfo) error {
		geo, rest := info.GeoSlots()[0], info.RestGeoSlots()[0]
		v := geo.Vertices()
		if err := setInt(v, geometry.IsConstrained, 0, 1); err != nil {
			return err
		}
		aim, err := geometry.Find[mgl64.Vec3](v, geometry.AimPosition)
		if err != nil {
			return err
		}
		y := -math.Sin(math.Pi * info.Time())
		aim.View()[0] = rest.Positions().CView()[0].Add(mgl64.Vec3{0, y, 0})
		return nil
	})
}

func softTransform(s *scene.Scene) error {
	cube, err := affineBox(mgl64.Vec3{0.3, 0.3, 0.3}, 1, 100*mpa)
	if err != nil {
		return err
	}
	place(cube, 0, 0, 0.5, 0)
	if err := constitution.NewSoftTransformConstraint().ApplyTo(cube, 100, 100); err != nil {
		return err
	}
	obj, _, err := addObject(s, "cube", cube)
	if err != nil {
		return err
	}
	if err := addGround(s, 0); err != nil {
		return err
	}

	return s.Animator().Insert(obj, func(info scene.UpdateInfo) error {
		inst := info.GeoSlots()[0].Instances()
		if err := setInt(inst, geometry.IsConstrained, 0, 1); err != nil {
			return err
		}
		aim, err := geometry.Find[mgl64.Mat4](inst, geometry.AimTransform)
		if err != nil {
			return err
		}
		aim.View()[0] = mgl64.Translate3D(0, 0.5, 0).Mul4(mgl64.HomogRotate3DY(math.Pi * info.Time()))
		return nil
	})
}

func motor(s *scene.Scene) error {
	s.ContactTabular().DefaultModel(0, 1*gpa)
	bar, err := affineBox(mgl64.Vec3{0.6, 0.1, 0.1}, 1, 100*mpa)
	if err != nil {
		return err
	}
	place(bar, 0, 0, 0.5, 0)
	rm := constitution.NewRotatingMotor()
	if err := rm.ApplyTo(bar, 100, mgl64.Vec3{0, 0, 1}, -0.2*math.Pi); err != nil {
		return err
	}
	obj, _, err := addObject(s, "bar", bar)
	if err != nil {
		return err
	}

	return s.Animator().Insert(obj, func(info scene.UpdateInfo) error {
		geo := info.GeoSlots()[0]
		if err := setInt(geo.Instances(), geometry.IsConstrained, 0, 1); err != nil {
			return err
		}
		return rm.Animate(geo, info.Dt())
	})
}

// links builds n affine boxes in a row along x, the first one fixed.
func links(n int, size mgl64.Vec3, gap float64, y float64) (*geometry.Geometry, error) {
	g, err := affineBox(size, n, 100*mpa)
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		place(g, i, float64(i)*(size[0]+gap), y, 0)
	}
	return g, setInt(g.Instances(), geometry.IsFixed, 0, 1)
}

// selfContactOff puts g in a contact element that ignores itself.
func selfContactOff(s *scene.Scene, name string, g *geometry.Geometry) error {
	ct := s.ContactTabular()
	e := ct.Create(name)
	if err := ct.Insert(e, e, 0, 1*gpa, false); err != nil {
		return err
	}
	return e.ApplyTo(g)
}

func pendulum(s *scene.Scene) error {
	size := mgl64.Vec3{0.25, 0.05, 0.05}
	chain, err := links(2, size, 0.05, 1)
	if err != nil {
		return err
	}
	if err := selfContactOff(s, "links", chain); err != nil {
		return err
	}
	_, slots, err := addObject(s, "links", chain)
	if err != nil {
		return err
	}

	hinge := size[0]/2 + 0.025
	joint, err := geometry.Linemesh([]mgl64.Vec3{{hinge, 1, -0.1}, {hinge, 1, 0.1}}, [][2]int{{0, 1}})
	if err != nil {
		return err
	}
	l := []*geometry.Slot{slots[0]}
	if err := constitution.NewRevoluteJoint().ApplyTo(joint, l, []int{0}, l, []int{1}, []float64{100}); err != nil {
		return err
	}
	_, _, err = addObject(s, "joint", joint)
	return err
}

func prismatic(s *scene.Scene) error {
	s.ContactTabular().DefaultModel(0.2, 1*gpa)
	blocks, err := affineBox(mgl64.Vec3{0.2, 0.2, 0.2}, 2, 100*mpa)
	if err != nil {
		return err
	}
	place(blocks, 0, 0, 0.6, 0)
	place(blocks, 1, 0.3, 0.6, 0)
	if err := setInt(blocks.Instances(), geometry.IsFixed, 0, 1); err != nil {
		return err
	}
	_, slots, err := addObject(s, "blocks", blocks)
	if err != nil {
		return err
	}

	// a slanted rail between the two blocks
	joint, err := geometry.Linemesh([]mgl64.Vec3{{0.15, 0.6, 0}, {0.25, 0.5, 0}}, [][2]int{{0, 1}})
	if err != nil {
		return err
	}
	l := []*geometry.Slot{slots[0]}
	if err := constitution.NewPrismaticJoint().ApplyTo(joint, l, []int{0}, l, []int{1}, []float64{100}); err != nil {
		return err
	}
	if _, _, err := addObject(s, "rail", joint); err != nil {
		return err
	}
	return addGround(s, 0)
}

func articulation(s *scene.Scene) error {
	s.ContactTabular().DefaultModel(0.05, 1*gpa)
	size := mgl64.Vec3{0.4, 0.4, 0.4}
	chain, err := affineBox(size, 3, 100*mpa)
	if err != nil {
		return err
	}
	for i := 0; i < 3; i++ {
		place(chain, i, 0, 0, 0.8*float64(i-1))
	}
	if err := setInt(chain.Instances(), geometry.IsFixed, 0, 1); err != nil {
		return err
	}
	_, slots, err := addObject(s, "links", chain)
	if err != nil {
		return err
	}
	l := []*geometry.Slot{slots[0]}

	rj, err := geometry.Linemesh([]mgl64.Vec3{{-0.5, 0, -0.4}, {0.5, 0, -0.4}}, [][2]int{{0, 1}})
	if err != nil {
		return err
	}
	if err := constitution.NewRevoluteJoint().ApplyTo(rj, l, []int{0}, l, []int{1}, []float64{100}); err != nil {
		return err
	}
	_, revolute, err := addObject(s, "revolute", rj)
	if err != nil {
		return err
	}

	pj, err := geometry.Linemesh([]mgl64.Vec3{{0, 0, 0}, {0, 0, 0.4}}, [][2]int{{0, 1}})
	if err != nil {
		return err
	}
	if err := constitution.NewPrismaticJoint().ApplyTo(pj, l, []int{1}, l, []int{2}, []float64{100}); err != nil {
		return err
	}
	_, prism, err := addObject(s, "prismatic", pj)
	if err != nil {
		return err
	}

	art, err := constitution.NewExternalArticulationConstraint().CreateGeometry(
		[]*geometry.Slot{revolute[0], prism[0]}, []int{0, 0})
	if err != nil {
		return err
	}
	mass := []float64{1e4, 5e3, 5e3, 1e4}
	if err := setJointMass(art, mass); err != nil {
		return err
	}
	obj, _, err := addObject(s, "articulation", art)
	if err != nil {
		return err
	}

	return s.Animator().Insert(obj, func(info scene.UpdateInfo) error {
		geo := info.GeoSlots()[0]
		jc, err := geo.FindCollection(geometry.JointCollection)
		if err != nil {
			return err
		}
		dtt, err := geometry.Find[float64](jc, constitution.DeltaThetaTilde)
		if err != nil {
			return err
		}
		v := dtt.View()
		v[0] = math.Pi / 6 * info.Dt()
		v[1] = 0
		return setJointMass(geo, mass)
	})
}

func setJointMass(g *geometry.Geometry, mass []float64) error {
	jj, err := g.FindCollection(geometry.JointJointCollection)
	if err != nil {
		return err
	}
	m, err := geometry.Find[float64](jj, geometry.Mass)
	if err != nil {
		return err
	}
	if m.Len() != len(mass) {
		return fmt.Errorf("joint mass has %d entries, want %d", m.Len(), len(mass))
	}
	copy(m.View(), mass)
	return nil
}

func shell(g *geometry.Geometry, bending float64) error {
	geometry.LabelSurface(g)
	if err := constitution.NewNeoHookeanShell().ApplyTo(g, constitution.YoungsPoisson(0.5*mpa, 0.49), 200, 1e-3); err != nil {
		return err
	}
	if bending > 0 {
		return constitution.NewDiscreteShellBending().ApplyTo(g, bending)
	}
	return nil
}

func cloth(s *scene.Scene) error {
	s.ContactTabular().DefaultModel(0.5, 1*gpa)
	sheet := geometry.Grid(8, 8, 1, mgl64.Translate3D(0, 0.6, 0))
	if err := shell(sheet, 1); err != nil {
		return err
	}
	if _, _, err := addObject(s, "cloth", sheet); err != nil {
		return err
	}

	table, err := affineBox(mgl64.Vec3{0.4, 0.4, 0.4}, 1, 100*mpa)
	if err != nil {
		return err
	}
	place(table, 0, 0, 0.25, 0)
	if err := setInt(table.Instances(), geometry.IsFixed, 0, 1); err != nil {
		return err
	}
	if _, _, err := addObject(s, "table", table); err != nil {
		return err
	}
	return addGround(s, 0)
}

func stitch(s *scene.Scene) error {
	s.ContactTabular().DefaultModel(0.5, 1*gpa)
	const n = 4
	front := geometry.Grid(n, n, 0.5, mgl64.Translate3D(0, 0.5, 0))
	back := geometry.Grid(n, n, 0.5, mgl64.Translate3D(0, 0.55, 0))
	for _, g := range []*geometry.Geometry{front, back} {
		if err := shell(g, 0); err != nil {
			return err
		}
	}
	_, slots, err := addObject(s, "panels", front, back)
	if err != nil {
		return err
	}

	// sew the first row of each panel
	pairs := make([][2]int, n+1)
	for i := range pairs {
		pairs[i] = [2]int{i, i}
	}
	seam, err := constitution.NewSoftVertexStitch().CreateGeometry([2]*geometry.Slot{slots[0], slots[1]}, pairs, 1e3)
	if err != nil {
		return err
	}
	if _, _, err := addObject(s, "seam", seam); err != nil {
		return err
	}
	return addGround(s, 0)
}

func rods(s *scene.Scene) error {
	s.ContactTabular().DefaultModel(0.05, 1*gpa)
	const segments = 7
	obj := s.Objects().Create("rods")
	for i := 0; i < 4; i++ {
		x := 0.04 * float64(i+1)
		rod := geometry.Polyline(mgl64.Vec3{x, 0.1, 0}, mgl64.Vec3{x, 0.1, 0.03 * segments}, segments)
		geometry.LabelSurface(rod)
		if err := constitution.NewHookeanSpring().ApplyTo(rod, 40e3); err != nil {
			return err
		}
		if err := constitution.NewKirchhoffRodBending().ApplyTo(rod, float64(i+1)*1e5); err != nil {
			return err
		}
		for _, v := range []int{0, 1} {
			if err := setInt(rod.Vertices(), geometry.IsFixed, v, 1); err != nil {
				return err
			}
		}
		if _, err := obj.Geometries().Create(rod); err != nil {
			return err
		}
	}
	return addGround(s, -0.1)
}

func particles(s *scene.Scene) error {
	s.ContactTabular().DefaultModel(0.2, 1*gpa)
	points := make([]mgl64.Vec3, 5)
	for i := range points {
		points[i] = mgl64.Vec3{0.01 * float64(i), 0.1 + 0.1*float64(i), 0}
	}
	pc := geometry.Pointcloud(points)
	if err := constitution.NewParticle().ApplyTo(pc, 1e3, 0.01); err != nil {
		return err
	}
	if _, _, err := addObject(s, "particles", pc); err != nil {
		return err
	}
	return addGround(s, 0)
}

func externalForce(s *scene.Scene) error {
	s.ContactTabular().DefaultModel(0.5, 1*gpa)
	cube, err := affineBox(mgl64.Vec3{0.2, 0.2, 0.2}, 1, 100*mpa)
	if err != nil {
		return err
	}
	place(cube, 0, 0, 0.2, 0)
	if err := constitution.NewAffineBodyExternalForce().ApplyTo(cube, [12]float64{}); err != nil {
		return err
	}
	obj, _, err := addObject(s, "cube", cube)
	if err != nil {
		return err
	}

	return s.Animator().Insert(obj, func(info scene.UpdateInfo) error {
		inst := info.GeoSlots()[0].Instances()
		if err := setInt(inst, geometry.IsConstrained, 0, 1); err != nil {
			return err
		}
		f, err := geometry.Find[[12]float64](inst, geometry.ExternalForce)
		if err != nil {
			return err
		}
		theta := math.Pi * info.Time()
		const magnitude = 10
		f.View()[0] = [12]float64{-magnitude * math.Cos(theta), 0, magnitude * math.Cos(theta)}
		return nil
	})
}

func subscene(s *scene.Scene) error {
	s.ContactTabular().DefaultModel(0.5, 1*gpa)
	solid, err := affineBox(mgl64.Vec3{0.2, 0.2, 0.2}, 1, 100*mpa)
	if err != nil {
		return err
	}
	place(solid, 0, -0.3, 0.3, 0)

	ghost, err := affineBox(mgl64.Vec3{0.2, 0.2, 0.2}, 1, 100*mpa)
	if err != nil {
		return err
	}
	place(ghost, 0, 0.3, 0.3, 0)
	if err := s.SubsceneTabular().Create("ghost").ApplyTo(ghost); err != nil {
		return err
	}

	if _, _, err := addObject(s, "solid", solid); err != nil {
		return err
	}
	if _, _, err := addObject(s, "ghost", ghost); err != nil {
		return err
	}
	return addGround(s, 0)
}

func meshDHat(s *scene.Scene) error {
	s.ContactTabular().DefaultModel(0.5, 1*gpa)
	obj := s.Objects().Create("cubes")
	for i, div := range []int{1, 2, 3} {
		g := geometry.Box(mgl64.Vec3{0.2, 0.2, 0.2}, div)
		geometry.LabelSurface(g)
		if err := constitution.NewAffineBody().ApplyTo(g, 100*mpa); err != nil {
			return err
		}
		place(g, 0, 0.4*float64(i-1), 0.3, 0)
		geometry.ComputeMeshDHat(g, 0.1)
		if _, err := obj.Geometries().Create(g); err != nil {
			return err
		}
	}
	return addGround(s, 0)
}

package constitution

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/ipcsim/internal/dynamo"
	"github.com/san-kum/ipcsim/internal/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyToIncompatibleGeometry(t *testing.T) {
	cube := geometry.Cube(1)
	cloth := geometry.Grid(2, 2, 1)
	rod := geometry.Polyline(mgl64.Vec3{}, mgl64.Vec3{1, 0, 0}, 3)
	points := geometry.Pointcloud([]mgl64.Vec3{{}})

	tests := []struct {
		name  string
		apply func() error
	}{
		{"shell on tets", func() error { return NewNeoHookeanShell().ApplyTo(cube.Clone(), DefaultModuli(), 100, 0.001) }},
		{"snh on cloth", func() error { return NewStableNeoHookean().ApplyTo(cloth.Clone(), DefaultModuli(), 1e3) }},
		{"spring on cloth", func() error { return NewHookeanSpring().ApplyTo(cloth.Clone(), 1e3) }},
		{"abd on rod", func() error { return NewAffineBody().ApplyTo(rod.Clone(), 1e6) }},
		{"particle on rod", func() error { return NewParticle().ApplyTo(rod.Clone(), 1e3, 0.01) }},
		{"bending on tets", func() error { return NewDiscreteShellBending().ApplyTo(cube.Clone(), 1) }},
		{"abd on ground", func() error { return NewAffineBody().ApplyTo(geometry.Ground(0), 1e6) }},
		{"spc without primary", func() error { return NewSoftPositionConstraint().ApplyTo(points.Clone(), 10) }},
		{"shell on non-manifold", func() error {
			fan, err := geometry.Trimesh(
				[]mgl64.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, -1, 0}, {0, 0, 1}},
				[][3]int{{0, 1, 2}, {1, 0, 3}, {0, 1, 4}},
			)
			require.NoError(t, err)
			return NewNeoHookeanShell().ApplyTo(fan, DefaultModuli(), 100, 0.001)
		}},
		{"stc on fem", func() error {
			g := cube.Clone()
			require.NoError(t, NewStableNeoHookean().ApplyTo(g, DefaultModuli(), 1e3))
			return NewSoftTransformConstraint().ApplyTo(g, 100, 100)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.apply(), dynamo.ErrIncompatibleGeometry)
		})
	}
}

func TestAffineBodyApplyTo(t *testing.T) {
	g := geometry.Cube(1)
	require.NoError(t, g.Instances().Resize(3))
	require.NoError(t, NewAffineBody().ApplyTo(g, 10*MPa))

	assert.Equal(t, UIDAffineBody, PrimaryUID(g))
	kappa, err := geometry.Find[float64](g.Instances(), geometry.Kappa)
	require.NoError(t, err)
	assert.Equal(t, []float64{1e7, 1e7, 1e7}, kappa.CView())

	fixed, err := geometry.Find[int32](g.Instances(), geometry.IsFixed)
	require.NoError(t, err)
	assert.Equal(t, 3, fixed.Len())

	require.NoError(t, NewSoftTransformConstraint().ApplyTo(g, 100, 50))
	require.NoError(t, NewRotatingMotor().ApplyTo(g, 100, mgl64.Vec3{2, 0, 0}, math.Pi))
	assert.True(t, HasExtra(g, UIDSoftTransformConstraint))
	assert.True(t, HasExtra(g, UIDRotatingMotor))

	tab := NewTabular()
	require.NoError(t, tab.InsertFrom(g))
	assert.Equal(t, []uint64{UIDAffineBody, UIDSoftTransformConstraint, UIDRotatingMotor}, tab.UIDs())
}

func TestRotatingMotorAnimate(t *testing.T) {
	g := geometry.Cube(1)
	rm := NewRotatingMotor()
	require.NoError(t, NewAffineBody().ApplyTo(g, 1e6))
	require.NoError(t, rm.ApplyTo(g, 100, mgl64.Vec3{0, 0, 1}, math.Pi/2))
	g.Transforms().View()[0] = mgl64.Translate3D(1, 2, 3)

	// unconstrained instances keep their aim
	require.NoError(t, rm.Animate(g, 1))
	aim := geometry.Lookup[mgl64.Mat4](g.Instances(), geometry.AimTransform)
	assert.Equal(t, mgl64.Ident4(), aim.CView()[0])

	geometry.Lookup[int32](g.Instances(), geometry.IsConstrained).View()[0] = 1
	require.NoError(t, rm.Animate(g, 1))
	m := aim.CView()[0]
	assert.InDelta(t, 1.0, m.At(0, 3), 1e-12)
	assert.InDelta(t, 2.0, m.At(1, 3), 1e-12)
	assert.InDelta(t, 0.0, m.At(0, 0), 1e-12)
	assert.InDelta(t, 1.0, m.At(1, 0), 1e-12)
}

func TestSoftPositionConstraintCopiesAim(t *testing.T) {
	g := geometry.Cube(1)
	require.NoError(t, NewStableNeoHookean().ApplyTo(g, YoungsPoisson(1e5, 0.3), 1e3))
	require.NoError(t, NewSoftPositionConstraint().ApplyTo(g, 100))

	aim, err := geometry.Find[mgl64.Vec3](g.Vertices(), geometry.AimPosition)
	require.NoError(t, err)
	assert.Equal(t, g.Positions().CView(), aim.CView())
}

func TestJointsAndArticulation(t *testing.T) {
	links := geometry.Cube(1)
	require.NoError(t, links.Instances().Resize(2))
	require.NoError(t, NewAffineBody().ApplyTo(links, 1e6))
	slot := geometry.NewSlot(0, links, links.Clone())

	joint, err := geometry.Linemesh([]mgl64.Vec3{{0, 0, 0}, {1, 0, 0}}, [][2]int{{0, 1}})
	require.NoError(t, err)

	err = NewRevoluteJoint().ApplyTo(joint, []*geometry.Slot{slot}, []int{0}, []*geometry.Slot{slot}, []int{5}, []float64{100})
	assert.ErrorIs(t, err, dynamo.ErrNotFound)

	require.NoError(t, NewRevoluteJoint().ApplyTo(joint, []*geometry.Slot{slot}, []int{0}, []*geometry.Slot{slot}, []int{1}, []float64{100}))
	jslot := geometry.NewSlot(1, joint, joint.Clone())

	_, err = NewExternalArticulationConstraint().CreateGeometry([]*geometry.Slot{slot}, []int{0})
	assert.ErrorIs(t, err, dynamo.ErrIncompatibleGeometry)

	art, err := NewExternalArticulationConstraint().CreateGeometry([]*geometry.Slot{jslot, jslot}, []int{0, 0})
	require.NoError(t, err)
	jj, err := art.FindCollection(geometry.JointJointCollection)
	require.NoError(t, err)
	mass, err := geometry.Find[float64](jj, geometry.Mass)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 0, 1}, mass.CView())
}

func TestYoungsPoisson(t *testing.T) {
	m := YoungsPoisson(1e6, 0.25)
	assert.InDelta(t, 4e5, m.Mu, 1e-6)
	assert.InDelta(t, 4e5, m.Lambda, 1e-6)
	assert.Equal(t, m, Lame(m.Mu, m.Lambda))
}

func TestLookupUnknownUID(t *testing.T) {
	_, err := Lookup(9999)
	assert.ErrorIs(t, err, dynamo.ErrNotFound)

	c, err := Lookup(UIDStableNeoHookean)
	require.NoError(t, err)
	assert.Equal(t, Primary, c.Kind())
}

func TestTransformQRoundTrip(t *testing.T) {
	m := mgl64.Translate3D(1, 2, 3).Mul4(mgl64.HomogRotate3D(0.3, mgl64.Vec3{0, 1, 0}))
	q := TransformToQ(m)
	back := QToTransform(q[:])
	assert.True(t, m.ApproxEqualThreshold(back, 1e-14))
	assert.Equal(t, 1.0, q[0])
}

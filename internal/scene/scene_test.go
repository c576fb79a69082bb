package scene

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/ipcsim/internal/config"
	"github.com/san-kum/ipcsim/internal/constitution"
	"github.com/san-kum/ipcsim/internal/dynamo"
	"github.com/san-kum/ipcsim/internal/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func affineCube(t *testing.T) *geometry.Geometry {
	t.Helper()
	g := geometry.Cube(1)
	geometry.LabelSurface(g)
	require.NoError(t, constitution.NewAffineBody().ApplyTo(g, 1e8))
	return g
}

func TestCreateSlotsRegistersConstitutions(t *testing.T) {
	s := New(nil)
	obj := s.Objects().Create("cube")
	slot, err := obj.Geometries().Create(affineCube(t))
	require.NoError(t, err)

	assert.Equal(t, 0, slot.ID())
	require.Len(t, s.Objects().All(), 1)
	assert.Equal(t, "cube", s.Objects().All()[0].Name())
	assert.True(t, s.ConstitutionTabular().Contains(constitution.UIDAffineBody))
	assert.Equal(t, slot.Geometry().Shape(), slot.Rest().Shape())
	assert.NotSame(t, slot.Geometry(), slot.Rest())

	other := s.Objects().Create("cube")
	slot2, err := other.Geometries().Create(affineCube(t))
	require.NoError(t, err)
	assert.Equal(t, 1, slot2.ID())
	assert.Len(t, s.Objects().FindByName("cube"), 2)
	assert.Len(t, s.Slots(), 2)

	got, err := s.Slot(1)
	require.NoError(t, err)
	assert.Same(t, slot2, got)
	_, err = s.Slot(5)
	assert.ErrorIs(t, err, dynamo.ErrNotFound)
}

func TestCreateCopiesGeometry(t *testing.T) {
	s := New(nil)
	g := affineCube(t)
	slot, err := s.Objects().Create("cube").Geometries().Create(g)
	require.NoError(t, err)

	g.Positions().View()[0] = mgl64.Vec3{9, 9, 9}
	assert.NotEqual(t, mgl64.Vec3{9, 9, 9}, slot.Geometry().Positions().CView()[0])
}

func TestCreateRejectsMismatchedRest(t *testing.T) {
	s := New(nil)
	_, err := s.Objects().Create("x").Geometries().Create(affineCube(t), geometry.Box(mgl64.Vec3{1, 1, 1}, 2))
	assert.ErrorIs(t, err, dynamo.ErrShapeMismatch)
}

func TestLockedScene(t *testing.T) {
	s := New(config.DefaultConfig())
	s.Lock()
	_, err := s.Objects().Create("late").Geometries().Create(affineCube(t))
	assert.ErrorIs(t, err, dynamo.ErrInvalidConfig)
	assert.ErrorIs(t, s.Config().Set("dt", 0.1), dynamo.ErrInvalidConfig)
}

func TestAnimatorOrderAndInfo(t *testing.T) {
	s := New(nil)
	a := s.Objects().Create("a")
	b := s.Objects().Create("b")
	_, err := a.Geometries().Create(affineCube(t))
	require.NoError(t, err)

	var order []string
	require.NoError(t, s.Animator().Insert(b, func(info UpdateInfo) error {
		order = append(order, "b")
		assert.Empty(t, info.GeoSlots())
		return nil
	}))
	require.NoError(t, s.Animator().Insert(a, func(info UpdateInfo) error {
		order = append(order, "a")
		assert.Len(t, info.GeoSlots(), 1)
		assert.Len(t, info.RestGeoSlots(), 1)
		assert.Equal(t, 3, info.Frame())
		assert.InDelta(t, 0.03, info.Time(), 1e-12)
		return nil
	}))

	require.NoError(t, s.Animator().Step(3, 0.01))
	assert.Equal(t, []string{"b", "a"}, order)

	assert.True(t, s.Animator().Erase(b))
	assert.False(t, s.Animator().Erase(b))
	assert.Equal(t, 1, s.Animator().Len())
}

func TestAnimatorWritesAim(t *testing.T) {
	s := New(nil)
	obj := s.Objects().Create("cube")
	g := affineCube(t)
	require.NoError(t, constitution.NewSoftTransformConstraint().ApplyTo(g, 100, 100))
	slot, err := obj.Geometries().Create(g)
	require.NoError(t, err)

	require.NoError(t, s.Animator().Insert(obj, func(info UpdateInfo) error {
		geo := info.GeoSlots()[0]
		aim, err := geometry.Find[mgl64.Mat4](geo.Instances(), geometry.AimTransform)
		if err != nil {
			return err
		}
		aim.View()[0] = mgl64.Translate3D(0, info.Time(), 0)
		return nil
	}))
	require.NoError(t, s.Animator().Step(10, 0.01))

	aim, err := geometry.Find[mgl64.Mat4](slot.Geometry().Instances(), geometry.AimTransform)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, aim.CView()[0].Col(3)[1], 1e-12)
}

func TestAnimatorDetectsTopologyChange(t *testing.T) {
	s := New(nil)
	obj := s.Objects().Create("cube")
	_, err := obj.Geometries().Create(affineCube(t))
	require.NoError(t, err)

	require.NoError(t, s.Animator().Insert(obj, func(info UpdateInfo) error {
		return info.GeoSlots()[0].Instances().Resize(2)
	}))
	err = s.Animator().Step(1, 0.01)
	assert.True(t, errors.Is(err, dynamo.ErrTopologyChanged), "got %v", err)
}

func TestAnimatorPropagatesCallbackError(t *testing.T) {
	s := New(nil)
	obj := s.Objects().Create("cube")
	boom := errors.New("boom")
	require.NoError(t, s.Animator().Insert(obj, func(UpdateInfo) error { return boom }))
	assert.ErrorIs(t, s.Animator().Step(1, 0.01), boom)
}

func TestAnimatorInsertValidation(t *testing.T) {
	s := New(nil)
	foreign := New(nil).Objects().Create("elsewhere")
	assert.ErrorIs(t, s.Animator().Insert(foreign, func(UpdateInfo) error { return nil }), dynamo.ErrNotFound)
	assert.ErrorIs(t, s.Animator().Insert(s.Objects().Create("x"), nil), dynamo.ErrInvalidConfig)
}

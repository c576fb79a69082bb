package geometry

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/ipcsim/internal/dynamo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateFind(t *testing.T) {
	g := Pointcloud([]mgl64.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}})

	col, err := Create(g.Vertices(), "temperature", 20.0)
	require.NoError(t, err)
	assert.Equal(t, 3, col.Len())
	assert.Equal(t, []float64{20, 20, 20}, col.CView())

	_, err = Create(g.Vertices(), "temperature", 0.0)
	assert.ErrorIs(t, err, dynamo.ErrDuplicateName)

	_, err = Find[float64](g.Vertices(), "pressure")
	assert.ErrorIs(t, err, dynamo.ErrNotFound)

	_, err = Find[int32](g.Vertices(), "temperature")
	assert.ErrorIs(t, err, dynamo.ErrTypeMismatch)
	assert.ErrorIs(t, err, dynamo.ErrNotFound)

	found, err := Find[float64](g.Vertices(), "temperature")
	require.NoError(t, err)
	assert.Same(t, col, found)
}

func TestResizeLaw(t *testing.T) {
	tests := []struct {
		name string
		from int
		to   int
	}{
		{"extend", 3, 7},
		{"truncate", 6, 2},
		{"same", 4, 4},
		{"empty", 3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCollection("vertices", tt.from, false)
			a, err := Create(c, "a", 1.5)
			require.NoError(t, err)
			b, err := Create(c, "b", mgl64.Vec3{1, 2, 3})
			require.NoError(t, err)

			av := a.View()
			for i := range av {
				av[i] = float64(i) * 10
			}

			require.NoError(t, c.Resize(tt.to))
			assert.Equal(t, tt.to, c.Size())
			assert.Equal(t, tt.to, a.Len())
			assert.Equal(t, tt.to, b.Len())

			for i := 0; i < tt.to; i++ {
				if i < tt.from {
					assert.Equal(t, float64(i)*10, a.CView()[i])
				} else {
					assert.Equal(t, 1.5, a.CView()[i])
				}
				assert.Equal(t, mgl64.Vec3{1, 2, 3}, b.CView()[i])
			}
		})
	}
}

func TestMetaIsFixedSize(t *testing.T) {
	g := New(SimplicialComplex, 0)
	assert.ErrorIs(t, g.Meta().Resize(2), dynamo.ErrShapeMismatch)
	assert.Equal(t, 1, g.Meta().Size())
}

func TestViewTracksDirty(t *testing.T) {
	g := Pointcloud([]mgl64.Vec3{{0, 0, 0}})
	pos := g.Positions()
	pos.ClearDirty()
	v0 := pos.Version()

	_ = pos.CView()
	assert.False(t, pos.IsDirty())
	assert.Equal(t, v0, pos.Version())

	pos.View()[0] = mgl64.Vec3{1, 1, 1}
	assert.True(t, pos.IsDirty())
	assert.Greater(t, pos.Version(), v0)
}

func TestCloneIsDeep(t *testing.T) {
	g := Cube(1)
	_ = SetMeta(g, ExtraConstitutionUIDs, UIDList{14})

	c := g.Clone()
	c.Positions().View()[0] = mgl64.Vec3{9, 9, 9}
	Lookup[UIDList](c.Meta(), ExtraConstitutionUIDs).View()[0][0] = 99

	assert.NotEqual(t, mgl64.Vec3{9, 9, 9}, g.Positions().CView()[0])
	assert.Equal(t, uint64(14), Lookup[UIDList](g.Meta(), ExtraConstitutionUIDs).CView()[0][0])
}

func TestDestroy(t *testing.T) {
	g := Cube(1)
	require.NoError(t, g.Vertices().Destroy(Position))
	assert.Nil(t, g.Positions())
	assert.ErrorIs(t, g.Vertices().Destroy(Position), dynamo.ErrNotFound)
}

func TestShapeDetectsTopologyChange(t *testing.T) {
	g := Cube(1)
	s0 := g.Shape()

	g.Positions().View()[0] = mgl64.Vec3{5, 5, 5}
	assert.Equal(t, s0, g.Shape(), "moving vertices must not change shape")

	g.TetTopo().View()[0][0], g.TetTopo().View()[0][1] = g.TetTopo().CView()[0][1], g.TetTopo().CView()[0][0]
	assert.NotEqual(t, s0, g.Shape())

	h := Cube(1)
	s1 := h.Shape()
	require.NoError(t, h.Instances().Resize(2))
	assert.NotEqual(t, s1, h.Shape())
}

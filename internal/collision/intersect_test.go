package collision

import (
	"context"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/ipcsim/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentTriangle(t *testing.T) {
	t0, t1, t2 := mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 0, 0}, mgl64.Vec3{0, 0, 1}
	cases := []struct {
		name string
		a, b mgl64.Vec3
		want bool
	}{
		{"through", mgl64.Vec3{0.2, -1, 0.2}, mgl64.Vec3{0.2, 1, 0.2}, true},
		{"short", mgl64.Vec3{0.2, 0.5, 0.2}, mgl64.Vec3{0.2, 1, 0.2}, false},
		{"outside", mgl64.Vec3{0.8, -1, 0.8}, mgl64.Vec3{0.8, 1, 0.8}, false},
		{"parallel", mgl64.Vec3{0, 0.1, 0}, mgl64.Vec3{1, 0.1, 0}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, SegmentTriangle(c.a, c.b, t0, t1, t2))
		})
	}
}

func TestIntersections(t *testing.T) {
	d, err := NewDetector(config.LinearBVH)
	require.NoError(t, err)
	x := []mgl64.Vec3{
		{0, 0, 0}, {1, 0, 0}, {0, 0, 1},
		{0.2, -1, 0.2}, {0.2, 1, 0.2},
		{3, -1, 3}, {3, 1, 3},
	}
	m := &Mesh{
		Edges: [][2]int{{3, 4}, {5, 6}, {0, 1}},
		Tris:  [][3]int{{0, 1, 2}},
	}
	got, err := d.Intersections(context.Background(), m, x)
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{0, 0}}, got)

	m.Allow = func(a, b int) bool { return false }
	got, err = d.Intersections(context.Background(), m, x)
	require.NoError(t, err)
	assert.Empty(t, got)
}

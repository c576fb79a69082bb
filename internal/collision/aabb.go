// Package collision finds contact primitives within the barrier distance
// and bounds Newton steps so that no primitive pair tunnels.
package collision

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

type AABB struct {
	Min, Max mgl64.Vec3
}

// EmptyAABB contains nothing; Expand grows it.
func EmptyAABB() AABB {
	inf := math.Inf(1)
	return AABB{Min: mgl64.Vec3{inf, inf, inf}, Max: mgl64.Vec3{-inf, -inf, -inf}}
}

func BoxOf(pts ...mgl64.Vec3) AABB {
	b := EmptyAABB()
	for _, p := range pts {
		b = b.Expand(p)
	}
	return b
}

func (b AABB) Expand(p mgl64.Vec3) AABB {
	for i := 0; i < 3; i++ {
		b.Min[i] = math.Min(b.Min[i], p[i])
		b.Max[i] = math.Max(b.Max[i], p[i])
	}
	return b
}

func (b AABB) Union(o AABB) AABB {
	for i := 0; i < 3; i++ {
		b.Min[i] = math.Min(b.Min[i], o.Min[i])
		b.Max[i] = math.Max(b.Max[i], o.Max[i])
	}
	return b
}

// Enlarge pads every side by r.
func (b AABB) Enlarge(r float64) AABB {
	pad := mgl64.Vec3{r, r, r}
	return AABB{Min: b.Min.Sub(pad), Max: b.Max.Add(pad)}
}

func (b AABB) Overlaps(o AABB) bool {
	for i := 0; i < 3; i++ {
		if b.Max[i] < o.Min[i] || o.Max[i] < b.Min[i] {
			return false
		}
	}
	return true
}

func (b AABB) Center() mgl64.Vec3 { return b.Min.Add(b.Max).Mul(0.5) }

func (b AABB) IsEmpty() bool { return b.Min[0] > b.Max[0] }

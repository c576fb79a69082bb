package collision

import (
	"context"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
)

// SegmentTriangle reports whether segment ab crosses triangle t0 t1 t2.
// Touching within eps counts as crossing.
func SegmentTriangle(a, b, t0, t1, t2 mgl64.Vec3) bool {
	const eps = 1e-12
	d := b.Sub(a)
	e1, e2 := t1.Sub(t0), t2.Sub(t0)
	h := d.Cross(e2)
	det := e1.Dot(h)
	if math.Abs(det) < eps {
		return false
	}
	inv := 1 / det
	s := a.Sub(t0)
	u := inv * s.Dot(h)
	if u < -eps || u > 1+eps {
		return false
	}
	qv := s.Cross(e1)
	v := inv * d.Dot(qv)
	if v < -eps || u+v > 1+eps {
		return false
	}
	t := inv * e2.Dot(qv)
	return t >= -eps && t <= 1+eps
}

// Intersections returns the (edge, triangle) index pairs of m whose
// simplices cross at positions x, ignoring pairs that share a vertex or
// that Allow rejects. Pairs are sorted.
func (d *Detector) Intersections(ctx context.Context, m *Mesh, x []mgl64.Vec3) ([][2]int, error) {
	tris := boxes(len(m.Tris), func(i int) AABB {
		t := m.Tris[i]
		return BoxOf(x[t[0]], x[t[1]], x[t[2]])
	})
	bvh := d.tree(tris)
	var out [][2]int
	for i, e := range m.Edges {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bvh.Query(BoxOf(x[e[0]], x[e[1]]), func(j int) {
			t := m.Tris[j]
			if sharesVertex(e[:], t[:]) || !m.allow(e[0], t[0]) {
				return
			}
			if SegmentTriangle(x[e[0]], x[e[1]], x[t[0]], x[t[1]], x[t[2]]) {
				out = append(out, [2]int{i, j})
			}
		})
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a][0] != out[b][0] {
			return out[a][0] < out[b][0]
		}
		return out[a][1] < out[b][1]
	})
	return out, nil
}

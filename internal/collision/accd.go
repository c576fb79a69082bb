package collision

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	// accdGap is the fraction of the initial gap ACCD keeps.
	accdGap     = 0.1
	accdMaxIter = 100000
)

// ACCD runs additive continuous collision detection on p moving from x
// along dx for step fractions in [0, tmax]. It returns the largest
// conservative fraction at which the gap to thickness xi stays positive.
func ACCD(p Primitive, x, dx []mgl64.Vec3, xi, tmax float64) float64 {
	n := p.Len()
	var x0, d [4]mgl64.Vec3
	var mean mgl64.Vec3
	for k := 0; k < n; k++ {
		x0[k] = x[p.V[k]]
		d[k] = dx[p.V[k]]
		mean = mean.Add(d[k])
	}
	mean = mean.Mul(1 / float64(n))
	la, lb := 0.0, 0.0
	sides := p.sides()
	for k := 0; k < n; k++ {
		d[k] = d[k].Sub(mean)
		if k < sides {
			la = math.Max(la, d[k].Len())
		} else {
			lb = math.Max(lb, d[k].Len())
		}
	}
	lp := la + lb
	if lp == 0 {
		return tmax
	}

	local := Primitive{Kind: p.Kind, V: [4]int{0, 1, 2, 3}}
	pos := make([]mgl64.Vec3, 4)
	dist := func(t float64) float64 {
		for k := 0; k < n; k++ {
			pos[k] = x0[k].Add(d[k].Mul(t))
		}
		return Evaluate(local, pos, nil).D
	}

	gap := func(dd float64) float64 { return (dd*dd - xi*xi) / (dd + xi) }
	dd := dist(0)
	if dd <= xi {
		return 0
	}
	g := accdGap * gap(dd)
	t := 0.0
	tl := (1 - accdGap) * gap(dd) / lp
	for it := 0; it < accdMaxIter; it++ {
		dd = dist(t + tl)
		if it > 0 && gap(dd) < g {
			break
		}
		t += tl
		if t > tmax {
			return tmax
		}
		tl = 0.9 * gap(dd) / lp
	}
	return t
}

// PlaneTOI bounds the step of a vertex moving by dx towards a half plane,
// keeping accdGap of its current gap above thickness xi.
func PlaneTOI(pl Plane, x, dx mgl64.Vec3, xi, tmax float64) float64 {
	d0 := pl.N.Dot(x.Sub(pl.P)) - xi
	v := pl.N.Dot(dx)
	if v >= 0 || d0 <= 0 {
		if d0 <= 0 && v < 0 {
			return 0
		}
		return tmax
	}
	if d0+v*tmax >= accdGap*d0 {
		return tmax
	}
	return (1 - accdGap) * d0 / -v
}

package collision

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

type Kind uint8

const (
	PP Kind = iota // point-point
	PE             // point-edge
	PT             // point-triangle
	EE             // edge-edge
	PH             // point-half plane
)

func (k Kind) String() string {
	return [...]string{"PP", "PE", "PT", "EE", "PH"}[k]
}

// Plane is an implicit half space n.(x - p) >= 0.
type Plane struct {
	N, P mgl64.Vec3
}

// Primitive is a pair of simplices. V holds global vertex indices: PP uses
// V[0:2], PE V[0:3] (point, edge), PT V[0:4] (point, triangle), EE V[0:4]
// (edge, edge) and PH V[0] with Plane.
type Primitive struct {
	Kind  Kind
	V     [4]int
	Plane int
}

func (p Primitive) Len() int {
	switch p.Kind {
	case PP:
		return 2
	case PE:
		return 3
	case PT, EE:
		return 4
	}
	return 1
}

// sides reports how many leading vertices belong to the first simplex.
func (p Primitive) sides() int {
	if p.Kind == EE {
		return 2
	}
	return 1
}

// Key identifies a primitive independently of vertex order inside each
// simplex.
type Key [5]int

func (p Primitive) Key() Key {
	k := Key{int(p.Kind), -1, -1, -1, -1}
	switch p.Kind {
	case PP:
		a, b := p.V[0], p.V[1]
		if a > b {
			a, b = b, a
		}
		k[1], k[2] = a, b
	case PE:
		a, b := sort2(p.V[1], p.V[2])
		k[1], k[2], k[3] = p.V[0], a, b
	case PT:
		a, b, c := sort3(p.V[1], p.V[2], p.V[3])
		k[1], k[2], k[3], k[4] = p.V[0], a, b, c
	case EE:
		a, b := sort2(p.V[0], p.V[1])
		c, d := sort2(p.V[2], p.V[3])
		if a > c || (a == c && b > d) {
			a, b, c, d = c, d, a, b
		}
		k[1], k[2], k[3], k[4] = a, b, c, d
	case PH:
		k[1], k[2] = p.V[0], p.Plane
	}
	return k
}

func sort2(a, b int) (int, int) {
	if a > b {
		return b, a
	}
	return a, b
}

func sort3(a, b, c int) (int, int, int) {
	a, b = sort2(a, b)
	b, c = sort2(b, c)
	a, b = sort2(a, b)
	return a, b, c
}

// Eval is the closest-point configuration of a primitive. The gradient of
// D with respect to vertex k of the primitive is W[k] * N.
type Eval struct {
	D float64
	N mgl64.Vec3
	W [4]float64
}

// Evaluate returns the unsigned distance of p at positions x. For PH the
// distance is signed along the plane normal.
func Evaluate(p Primitive, x []mgl64.Vec3, planes []Plane) Eval {
	var w [4]float64
	switch p.Kind {
	case PP:
		w = [4]float64{1, -1}
	case PE:
		t := pointEdge(x[p.V[0]], x[p.V[1]], x[p.V[2]])
		w = [4]float64{1, -(1 - t), -t}
	case PT:
		a, b, c := pointTriangle(x[p.V[0]], x[p.V[1]], x[p.V[2]], x[p.V[3]])
		w = [4]float64{1, -a, -b, -c}
	case EE:
		s, t := edgeEdge(x[p.V[0]], x[p.V[1]], x[p.V[2]], x[p.V[3]])
		w = [4]float64{1 - s, s, -(1 - t), -t}
	case PH:
		pl := planes[p.Plane]
		return Eval{D: pl.N.Dot(x[p.V[0]].Sub(pl.P)), N: pl.N, W: [4]float64{1}}
	}
	var diff mgl64.Vec3
	for k := 0; k < p.Len(); k++ {
		diff = diff.Add(x[p.V[k]].Mul(w[k]))
	}
	d := diff.Len()
	var n mgl64.Vec3
	if d > 0 {
		n = diff.Mul(1 / d)
	}
	return Eval{D: d, N: n, W: w}
}

// Classify reduces p to the lowest dimensional primitive realising its
// closest points, so that a contact found through several candidate
// pairs is counted once.
func Classify(p Primitive, x []mgl64.Vec3) Primitive {
	switch p.Kind {
	case PE:
		t := pointEdge(x[p.V[0]], x[p.V[1]], x[p.V[2]])
		switch t {
		case 0:
			return Primitive{Kind: PP, V: [4]int{p.V[0], p.V[1], -1, -1}}
		case 1:
			return Primitive{Kind: PP, V: [4]int{p.V[0], p.V[2], -1, -1}}
		}
	case PT:
		w := [3]float64{}
		w[0], w[1], w[2] = pointTriangle(x[p.V[0]], x[p.V[1]], x[p.V[2]], x[p.V[3]])
		var nz []int
		for i, v := range w {
			if v != 0 {
				nz = append(nz, p.V[i+1])
			}
		}
		switch len(nz) {
		case 1:
			return Primitive{Kind: PP, V: [4]int{p.V[0], nz[0], -1, -1}}
		case 2:
			return Primitive{Kind: PE, V: [4]int{p.V[0], nz[0], nz[1], -1}}
		}
	case EE:
		s, t := edgeEdge(x[p.V[0]], x[p.V[1]], x[p.V[2]], x[p.V[3]])
		sEnd, tEnd := s == 0 || s == 1, t == 0 || t == 1
		a := p.V[0]
		if s == 1 {
			a = p.V[1]
		}
		b := p.V[2]
		if t == 1 {
			b = p.V[3]
		}
		switch {
		case sEnd && tEnd:
			return Primitive{Kind: PP, V: [4]int{a, b, -1, -1}}
		case sEnd:
			return Primitive{Kind: PE, V: [4]int{a, p.V[2], p.V[3], -1}}
		case tEnd:
			return Primitive{Kind: PE, V: [4]int{b, p.V[0], p.V[1], -1}}
		}
	}
	return p
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// pointEdge returns the parameter of the point on segment ab closest to p.
func pointEdge(p, a, b mgl64.Vec3) float64 {
	ab := b.Sub(a)
	den := ab.Dot(ab)
	if den == 0 {
		return 0
	}
	return clamp01(p.Sub(a).Dot(ab) / den)
}

// pointTriangle returns barycentric weights of the point of abc closest
// to p. Weights on the boundary are exactly zero.
func pointTriangle(p, a, b, c mgl64.Vec3) (wa, wb, wc float64) {
	ab, ac, ap := b.Sub(a), c.Sub(a), p.Sub(a)
	d1, d2 := ab.Dot(ap), ac.Dot(ap)
	if d1 <= 0 && d2 <= 0 {
		return 1, 0, 0
	}
	bp := p.Sub(b)
	d3, d4 := ab.Dot(bp), ac.Dot(bp)
	if d3 >= 0 && d4 <= d3 {
		return 0, 1, 0
	}
	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		v := d1 / (d1 - d3)
		return 1 - v, v, 0
	}
	cp := p.Sub(c)
	d5, d6 := ab.Dot(cp), ac.Dot(cp)
	if d6 >= 0 && d5 <= d6 {
		return 0, 0, 1
	}
	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		w := d2 / (d2 - d6)
		return 1 - w, 0, w
	}
	va := d3*d6 - d5*d4
	if va <= 0 && d4-d3 >= 0 && d5-d6 >= 0 {
		w := (d4 - d3) / ((d4 - d3) + (d5 - d6))
		return 0, 1 - w, w
	}
	den := 1 / (va + vb + vc)
	v, w := vb*den, vc*den
	return 1 - v - w, v, w
}

// edgeEdge returns parameters s on p1q1 and t on p2q2 of the closest
// points between the two segments.
func edgeEdge(p1, q1, p2, q2 mgl64.Vec3) (s, t float64) {
	const eps = 1e-20
	d1, d2, r := q1.Sub(p1), q2.Sub(p2), p1.Sub(p2)
	a, e, f := d1.Dot(d1), d2.Dot(d2), d2.Dot(r)
	if a <= eps && e <= eps {
		return 0, 0
	}
	if a <= eps {
		return 0, clamp01(f / e)
	}
	c := d1.Dot(r)
	if e <= eps {
		return clamp01(-c / a), 0
	}
	b := d1.Dot(d2)
	den := a*e - b*b
	if den > 1e-12*a*e {
		s = clamp01((b*f - c*e) / den)
	}
	t = (b*s + f) / e
	switch {
	case t < 0:
		t = 0
		s = clamp01(-c / a)
	case t > 1:
		t = 1
		s = clamp01((b - c) / a)
	}
	return s, t
}

package collision

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/sync/errgroup"
)

// Mesh is the collision view of a whole scene: surface simplices indexed
// into one global vertex array, plus implicit half planes.
type Mesh struct {
	Points []int
	Edges  [][2]int
	Tris   [][3]int
	Planes []Plane

	// Per global vertex.
	Thickness []float64
	DHat      []float64

	// Allow decides whether the bodies owning vertices a and b may
	// touch. AllowPlane does the same for a vertex and a plane. Nil
	// means always.
	Allow      func(a, b int) bool
	AllowPlane func(v, plane int) bool
}

func (m *Mesh) allow(a, b int) bool {
	return m.Allow == nil || m.Allow(a, b)
}

func (m *Mesh) allowPlane(v, pl int) bool {
	return m.AllowPlane == nil || m.AllowPlane(v, pl)
}

func (m *Mesh) thickness(v int) float64 {
	if v < len(m.Thickness) {
		return m.Thickness[v]
	}
	return 0
}

func (m *Mesh) dhat(v int, def float64) float64 {
	if v < len(m.DHat) && m.DHat[v] > 0 {
		return m.DHat[v]
	}
	return def
}

func (m *Mesh) maxThickness() float64 {
	mx := 0.0
	for _, t := range m.Thickness {
		mx = math.Max(mx, t)
	}
	return mx
}

func (m *Mesh) maxDHat(def float64) float64 {
	mx := def
	for _, d := range m.DHat {
		mx = math.Max(mx, d)
	}
	return mx
}

// Thickness of a primitive: the sum of both sides' vertex thickness.
func (m *Mesh) PairThickness(p Primitive) float64 {
	if p.Kind == PH {
		return m.thickness(p.V[0])
	}
	return m.thickness(p.V[0]) + m.thickness(p.V[p.sides()])
}

// PairDHat is the smaller barrier distance of the two sides.
func (m *Mesh) PairDHat(p Primitive, def float64) float64 {
	if p.Kind == PH {
		return m.dhat(p.V[0], def)
	}
	return math.Min(m.dhat(p.V[0], def), m.dhat(p.V[p.sides()], def))
}

// Contact is an active primitive with its gap (distance minus thickness)
// below the pair's barrier distance.
type Contact struct {
	Primitive
	Gap       float64
	DHat      float64
	Thickness float64
}

// Detector owns one broad phase per primitive type and rebuilds them on
// every query.
type Detector struct {
	method string
}

func NewDetector(method string) (*Detector, error) {
	if _, err := NewBroadPhase(method); err != nil {
		return nil, err
	}
	return &Detector{method: method}, nil
}

func (d *Detector) Method() string { return d.method }

func (d *Detector) tree(boxes []AABB) BroadPhase {
	bp, _ := NewBroadPhase(d.method)
	bp.Build(boxes)
	return bp
}

func sharesVertex(a []int, b []int) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

type boxFn func(i int) AABB

func boxes(n int, fn boxFn) []AABB {
	out := make([]AABB, n)
	for i := range out {
		out[i] = fn(i)
	}
	return out
}

// candidates enumerates PT, PE, PP and EE pairs whose boxes overlap, one
// goroutine per pair type.
func (d *Detector) candidates(ctx context.Context, m *Mesh, point, edge, tri boxFn, visit func(p Primitive)) error {
	pointBoxes := boxes(len(m.Points), point)
	edgeBoxes := boxes(len(m.Edges), edge)
	triBoxes := boxes(len(m.Tris), tri)

	var mu sync.Mutex
	emit := func(local []Primitive) {
		mu.Lock()
		for _, p := range local {
			visit(p)
		}
		mu.Unlock()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		bvh := d.tree(triBoxes)
		var local []Primitive
		for i, v := range m.Points {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			bvh.Query(pointBoxes[i], func(j int) {
				t := m.Tris[j]
				if v == t[0] || v == t[1] || v == t[2] || !m.allow(v, t[0]) {
					return
				}
				local = append(local, Primitive{Kind: PT, V: [4]int{v, t[0], t[1], t[2]}})
			})
		}
		emit(local)
		return nil
	})
	g.Go(func() error {
		bvh := d.tree(edgeBoxes)
		var local []Primitive
		for i, v := range m.Points {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			bvh.Query(pointBoxes[i], func(j int) {
				e := m.Edges[j]
				if v == e[0] || v == e[1] || !m.allow(v, e[0]) {
					return
				}
				local = append(local, Primitive{Kind: PE, V: [4]int{v, e[0], e[1], -1}})
			})
		}
		emit(local)
		return nil
	})
	g.Go(func() error {
		bvh := d.tree(pointBoxes)
		var local []Primitive
		for i, v := range m.Points {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			bvh.Query(pointBoxes[i], func(j int) {
				u := m.Points[j]
				if u <= v || !m.allow(v, u) {
					return
				}
				local = append(local, Primitive{Kind: PP, V: [4]int{v, u, -1, -1}})
			})
		}
		emit(local)
		return nil
	})
	g.Go(func() error {
		bvh := d.tree(edgeBoxes)
		var local []Primitive
		for i, e := range m.Edges {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			bvh.Query(edgeBoxes[i], func(j int) {
				f := m.Edges[j]
				if j <= i || sharesVertex(e[:], f[:]) || !m.allow(e[0], f[0]) {
					return
				}
				local = append(local, Primitive{Kind: EE, V: [4]int{e[0], e[1], f[0], f[1]}})
			})
		}
		emit(local)
		return nil
	})
	return g.Wait()
}

// Detect returns the contacts at positions x, deduplicated by their
// closest feature and sorted by key. defDHat applies to vertices without
// their own barrier distance.
func (d *Detector) Detect(ctx context.Context, m *Mesh, x []mgl64.Vec3, defDHat float64) ([]Contact, error) {
	r := m.maxDHat(defDHat) + 2*m.maxThickness()
	point := func(i int) AABB { return BoxOf(x[m.Points[i]]).Enlarge(r) }
	edge := func(i int) AABB { e := m.Edges[i]; return BoxOf(x[e[0]], x[e[1]]).Enlarge(r / 2) }
	tri := func(i int) AABB { t := m.Tris[i]; return BoxOf(x[t[0]], x[t[1]], x[t[2]]) }

	seen := make(map[Key]Contact)
	visit := func(raw Primitive) {
		p := Classify(raw, x)
		k := p.Key()
		if _, ok := seen[k]; ok {
			return
		}
		xi := m.PairThickness(p)
		dh := m.PairDHat(p, defDHat)
		gap := Evaluate(p, x, m.Planes).D - xi
		if gap < dh {
			seen[k] = Contact{Primitive: p, Gap: gap, DHat: dh, Thickness: xi}
		}
	}
	// Point boxes carry the full padding, edges half of it so that edge
	// pairs within r overlap.
	if err := d.candidates(ctx, m, point, edge, tri, visit); err != nil {
		return nil, err
	}

	for pi, pl := range m.Planes {
		for _, v := range m.Points {
			if !m.allowPlane(v, pi) {
				continue
			}
			p := Primitive{Kind: PH, V: [4]int{v, -1, -1, -1}, Plane: pi}
			xi := m.PairThickness(p)
			dh := m.PairDHat(p, defDHat)
			gap := pl.N.Dot(x[v].Sub(pl.P)) - xi
			if gap < dh {
				seen[p.Key()] = Contact{Primitive: p, Gap: gap, DHat: dh, Thickness: xi}
			}
		}
	}

	out := make([]Contact, 0, len(seen))
	for _, c := range seen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return lessKey(out[i].Key(), out[j].Key()) })
	return out, nil
}

func lessKey(a, b Key) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// MaxStep returns the largest fraction alpha in [0, 1] of the step dx for
// which additive CCD proves no enabled primitive pair closes its gap.
func (d *Detector) MaxStep(ctx context.Context, m *Mesh, x, dx []mgl64.Vec3) (float64, error) {
	pad := m.maxThickness()
	swept := func(vs ...int) AABB {
		b := EmptyAABB()
		for _, v := range vs {
			b = b.Expand(x[v]).Expand(x[v].Add(dx[v]))
		}
		return b
	}
	point := func(i int) AABB { return swept(m.Points[i]).Enlarge(pad) }
	edge := func(i int) AABB { e := m.Edges[i]; return swept(e[0], e[1]).Enlarge(pad) }
	tri := func(i int) AABB { t := m.Tris[i]; return swept(t[0], t[1], t[2]).Enlarge(pad) }

	alpha := 1.0
	seen := make(map[Key]struct{})
	visit := func(p Primitive) {
		k := p.Key()
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		if t := ACCD(p, x, dx, m.PairThickness(p), alpha); t < alpha {
			alpha = t
		}
	}
	if err := d.candidates(ctx, m, point, edge, tri, visit); err != nil {
		return 0, err
	}
	for pi, pl := range m.Planes {
		for _, v := range m.Points {
			if !m.allowPlane(v, pi) {
				continue
			}
			if t := PlaneTOI(pl, x[v], dx[v], m.thickness(v), alpha); t < alpha {
				alpha = t
			}
		}
	}
	return alpha, nil
}

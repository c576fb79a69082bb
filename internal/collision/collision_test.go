package collision

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/ipcsim/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomBoxes(rng *rand.Rand, n int) []AABB {
	out := make([]AABB, n)
	for i := range out {
		c := mgl64.Vec3{rng.Float64() * 10, rng.Float64() * 10, rng.Float64() * 10}
		out[i] = BoxOf(c).Enlarge(rng.Float64() * 0.5)
	}
	return out
}

func TestBroadPhasesAgree(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	boxes := randomBoxes(rng, 300)
	queries := randomBoxes(rng, 50)

	ref := &BruteForce{}
	ref.Build(boxes)
	for _, method := range []string{config.LinearBVH, config.StacklessBVH} {
		t.Run(method, func(t *testing.T) {
			bp, err := NewBroadPhase(method)
			require.NoError(t, err)
			bp.Build(boxes)
			assert.Equal(t, len(boxes), bp.Len())
			for _, q := range queries {
				var want, got []int
				ref.Query(q, func(i int) { want = append(want, i) })
				bp.Query(q, func(i int) { got = append(got, i) })
				sort.Ints(got)
				assert.Equal(t, want, got)
			}
		})
	}
}

func TestBroadPhaseEdgeCases(t *testing.T) {
	for _, method := range []string{config.LinearBVH, config.StacklessBVH, config.BruteForce} {
		bp, err := NewBroadPhase(method)
		require.NoError(t, err)
		bp.Build(nil)
		bp.Query(BoxOf(mgl64.Vec3{}), func(int) { t.Errorf("%s: unexpected hit on empty tree", method) })

		same := []AABB{BoxOf(mgl64.Vec3{}), BoxOf(mgl64.Vec3{}), BoxOf(mgl64.Vec3{})}
		bp.Build(same)
		hits := 0
		bp.Query(BoxOf(mgl64.Vec3{}), func(int) { hits++ })
		assert.Equal(t, 3, hits, method)
	}
	_, err := NewBroadPhase("octree")
	assert.Error(t, err)
}

func TestEvaluateDistances(t *testing.T) {
	x := []mgl64.Vec3{
		{0.2, 1, 0.2}, // 0: point above triangle
		{0, 0, 0}, {1, 0, 0}, {0, 0, 1}, // 1-3 triangle in y=0
		{-1, 0.5, 2}, {1, 0.5, 2}, // 4-5 edge along x at z=2
		{0, 0.5, 1}, {0, 0.5, 3}, // 6-7 edge along z crossing 4-5
	}
	tests := []struct {
		name string
		p    Primitive
		want float64
	}{
		{"pp", Primitive{Kind: PP, V: [4]int{1, 2}}, 1},
		{"pe interior", Primitive{Kind: PE, V: [4]int{0, 1, 2}}, math.Hypot(1, 0.2)},
		{"pt interior", Primitive{Kind: PT, V: [4]int{0, 1, 2, 3}}, 1},
		{"ee crossing", Primitive{Kind: EE, V: [4]int{4, 5, 6, 7}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Evaluate(tt.p, x, nil).D, 1e-12)
		})
	}

	pl := []Plane{{N: mgl64.Vec3{0, 1, 0}, P: mgl64.Vec3{0, -1, 0}}}
	e := Evaluate(Primitive{Kind: PH, V: [4]int{0, -1, -1, -1}}, x, pl)
	assert.InDelta(t, 2, e.D, 1e-12)
}

func TestDistanceGradient(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for _, kind := range []Kind{PP, PE, PT, EE} {
		t.Run(kind.String(), func(t *testing.T) {
			x := make([]mgl64.Vec3, 4)
			for i := range x {
				x[i] = mgl64.Vec3{rng.Float64(), rng.Float64(), rng.Float64()}
			}
			x[0] = x[0].Add(mgl64.Vec3{0, 2, 0})
			if kind == EE {
				x[1] = x[1].Add(mgl64.Vec3{0, 2, 0})
			}
			p := Primitive{Kind: kind, V: [4]int{0, 1, 2, 3}}
			e := Evaluate(p, x, nil)
			const h = 1e-6
			for k := 0; k < p.Len(); k++ {
				for c := 0; c < 3; c++ {
					xp := append([]mgl64.Vec3(nil), x...)
					xm := append([]mgl64.Vec3(nil), x...)
					xp[k][c] += h
					xm[k][c] -= h
					fd := (Evaluate(p, xp, nil).D - Evaluate(p, xm, nil).D) / (2 * h)
					assert.InDelta(t, fd, e.W[k]*e.N[c], 1e-5, "vertex %d coord %d", k, c)
				}
			}
		})
	}
}

func TestClassify(t *testing.T) {
	x := []mgl64.Vec3{
		{-1, 1, -1}, // 0: beyond triangle corner 1
		{0, 0, 0}, {1, 0, 0}, {0, 0, 1},
		{0.5, 1, -1}, // 4: beyond edge 1-2
	}
	pp := Classify(Primitive{Kind: PT, V: [4]int{0, 1, 2, 3}}, x)
	assert.Equal(t, PP, pp.Kind)
	assert.Equal(t, [2]int{0, 1}, [2]int{pp.V[0], pp.V[1]})

	pe := Classify(Primitive{Kind: PT, V: [4]int{4, 1, 2, 3}}, x)
	assert.Equal(t, PE, pe.Kind)
	assert.Equal(t, Primitive{Kind: PE, V: [4]int{4, 2, 1, -1}}.Key(), pe.Key())
}

func TestKeyIgnoresOrder(t *testing.T) {
	a := Primitive{Kind: EE, V: [4]int{5, 4, 1, 2}}
	b := Primitive{Kind: EE, V: [4]int{1, 2, 4, 5}}
	assert.Equal(t, a.Key(), b.Key())
	c := Primitive{Kind: PT, V: [4]int{0, 3, 1, 2}}
	d := Primitive{Kind: PT, V: [4]int{0, 1, 2, 3}}
	assert.Equal(t, c.Key(), d.Key())
}

func TestBarrierDerivatives(t *testing.T) {
	const dhat = 0.01
	assert.Zero(t, Barrier(dhat, dhat))
	assert.True(t, math.IsInf(Barrier(0, dhat), 1))
	for _, s := range []float64{0.001, 0.004, 0.009} {
		b, db, ddb := BarrierDerivatives(s, dhat)
		assert.InDelta(t, Barrier(s, dhat), b, 1e-15)
		const h = 1e-8
		fd := (Barrier(s+h, dhat) - Barrier(s-h, dhat)) / (2 * h)
		assert.InDelta(t, fd, db, 1e-6*math.Max(1, math.Abs(db)))
		_, dbp, _ := BarrierDerivatives(s+h, dhat)
		_, dbm, _ := BarrierDerivatives(s-h, dhat)
		assert.InDelta(t, (dbp-dbm)/(2*h), ddb, 1e-4*math.Max(1, math.Abs(ddb)))
		assert.Less(t, db, 0.0)
		assert.Greater(t, ddb, 0.0)
	}
}

func TestFrictionSmoothing(t *testing.T) {
	const eps = 0.1
	assert.InDelta(t, eps/3, FrictionF0(0, eps), 1e-15)
	assert.InDelta(t, 0.5, FrictionF0(0.5, eps), 1e-15)
	assert.InDelta(t, FrictionF0(eps, eps), eps, 1e-12)
	assert.InDelta(t, 1, FrictionF1(eps, eps), 1e-12)
	assert.Zero(t, FrictionF1(0, eps))
}

func TestACCDPointThroughTriangle(t *testing.T) {
	x := []mgl64.Vec3{{0.2, 1, 0.2}, {0, 0, 0}, {1, 0, 0}, {0, 0, 1}}
	dx := []mgl64.Vec3{{0, -3, 0}, {}, {}, {}}
	p := Primitive{Kind: PT, V: [4]int{0, 1, 2, 3}}

	toi := ACCD(p, x, dx, 0, 1)
	assert.Greater(t, toi, 0.25)
	assert.Less(t, toi, 1.0/3)

	moved := []mgl64.Vec3{x[0].Add(dx[0].Mul(toi)), x[1], x[2], x[3]}
	assert.Greater(t, moved[0].Y(), 0.0)

	away := []mgl64.Vec3{{0, 1, 0}, {}, {}, {}}
	assert.Equal(t, 1.0, ACCD(p, x, away, 0, 1))
}

func TestACCDEdgeEdgeWithThickness(t *testing.T) {
	x := []mgl64.Vec3{{-1, 1, 0}, {1, 1, 0}, {0, 0, -1}, {0, 0, 1}}
	dx := []mgl64.Vec3{{0, -2, 0}, {0, -2, 0}, {}, {}}
	p := Primitive{Kind: EE, V: [4]int{0, 1, 2, 3}}
	toi := ACCD(p, x, dx, 0.1, 1)
	moved := []mgl64.Vec3{x[0].Add(dx[0].Mul(toi)), x[1].Add(dx[1].Mul(toi)), x[2], x[3]}
	assert.Greater(t, Evaluate(p, moved, nil).D, 0.1)
	assert.Less(t, toi, 0.45)
}

func TestPlaneTOI(t *testing.T) {
	pl := Plane{N: mgl64.Vec3{0, 1, 0}}
	assert.Equal(t, 1.0, PlaneTOI(pl, mgl64.Vec3{0, 1, 0}, mgl64.Vec3{0, -0.5, 0}, 0, 1))
	toi := PlaneTOI(pl, mgl64.Vec3{0, 1, 0}, mgl64.Vec3{0, -2, 0}, 0, 1)
	assert.InDelta(t, 0.45, toi, 1e-12)
	assert.Equal(t, 1.0, PlaneTOI(pl, mgl64.Vec3{0, 1, 0}, mgl64.Vec3{0, 2, 0}, 0, 1))
}

func twoTriangles(gap float64) ([]mgl64.Vec3, *Mesh) {
	x := []mgl64.Vec3{
		{0, 0, 0}, {1, 0, 0}, {0, 0, 1},
		{0.2, gap, 0.2}, {1.2, gap, 0.2}, {0.2, gap, 1.2},
	}
	m := &Mesh{
		Points: []int{0, 1, 2, 3, 4, 5},
		Edges:  [][2]int{{0, 1}, {1, 2}, {0, 2}, {3, 4}, {4, 5}, {3, 5}},
		Tris:   [][3]int{{0, 1, 2}, {3, 4, 5}},
		Allow:  func(a, b int) bool { return (a < 3) != (b < 3) },
	}
	return x, m
}

func TestDetect(t *testing.T) {
	for _, method := range []string{config.LinearBVH, config.StacklessBVH, config.BruteForce} {
		t.Run(method, func(t *testing.T) {
			d, err := NewDetector(method)
			require.NoError(t, err)

			x, m := twoTriangles(0.005)
			contacts, err := d.Detect(context.Background(), m, x, 0.01)
			require.NoError(t, err)
			require.NotEmpty(t, contacts)
			keys := make(map[Key]bool)
			for _, c := range contacts {
				assert.False(t, keys[c.Key()], "duplicate %v", c.Key())
				keys[c.Key()] = true
				assert.Less(t, c.Gap, c.DHat)
				assert.Greater(t, c.Gap, 0.0)
			}
			assert.True(t, keys[Primitive{Kind: PT, V: [4]int{3, 0, 1, 2}}.Key()])

			x, m = twoTriangles(0.5)
			contacts, err = d.Detect(context.Background(), m, x, 0.01)
			require.NoError(t, err)
			assert.Empty(t, contacts)
		})
	}
}

func TestDetectRespectsAllow(t *testing.T) {
	d, err := NewDetector(config.LinearBVH)
	require.NoError(t, err)
	x, m := twoTriangles(0.005)
	m.Allow = func(a, b int) bool { return false }
	contacts, err := d.Detect(context.Background(), m, x, 0.01)
	require.NoError(t, err)
	assert.Empty(t, contacts)
}

func TestDetectPlane(t *testing.T) {
	d, err := NewDetector(config.BruteForce)
	require.NoError(t, err)
	x := []mgl64.Vec3{{0, 0.004, 0}, {0, 1, 0}}
	m := &Mesh{
		Points:    []int{0, 1},
		Planes:    []Plane{{N: mgl64.Vec3{0, 1, 0}}},
		Thickness: []float64{0.001, 0.001},
	}
	contacts, err := d.Detect(context.Background(), m, x, 0.01)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, PH, contacts[0].Kind)
	assert.InDelta(t, 0.003, contacts[0].Gap, 1e-12)
}

func TestMaxStepPreventsTunneling(t *testing.T) {
	d, err := NewDetector(config.LinearBVH)
	require.NoError(t, err)
	x, m := twoTriangles(0.5)
	dx := make([]mgl64.Vec3, len(x))
	for i := 3; i < 6; i++ {
		dx[i] = mgl64.Vec3{0, -1, 0}
	}
	alpha, err := d.MaxStep(context.Background(), m, x, dx)
	require.NoError(t, err)
	assert.Greater(t, alpha, 0.0)
	assert.Less(t, alpha, 0.5)

	moved := make([]mgl64.Vec3, len(x))
	for i := range x {
		moved[i] = x[i].Add(dx[i].Mul(alpha))
	}
	e := Evaluate(Primitive{Kind: PT, V: [4]int{3, 0, 1, 2}}, moved, nil)
	assert.Greater(t, e.D, 0.0)

	m.Planes = []Plane{{N: mgl64.Vec3{0, 1, 0}, P: mgl64.Vec3{0, -0.1, 0}}}
	for i := range dx {
		dx[i] = mgl64.Vec3{0, -1, 0}
	}
	alpha, err = d.MaxStep(context.Background(), m, x, dx)
	require.NoError(t, err)
	assert.InDelta(t, 0.09, alpha, 1e-9)
}

func TestAABB(t *testing.T) {
	a := BoxOf(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 1, 1})
	b := BoxOf(mgl64.Vec3{1.05, 0, 0})
	assert.False(t, a.Overlaps(b))
	assert.True(t, a.Enlarge(0.1).Overlaps(b))
	assert.True(t, EmptyAABB().IsEmpty())
	assert.Equal(t, mgl64.Vec3{0.5, 0.5, 0.5}, a.Center())
}

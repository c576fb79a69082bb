package constitution

import (
	"math"
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/mat"
)

func checkGradient(t *testing.T, name string, x []float64, g []float64, energy func([]float64) float64, tol float64) {
	t.Helper()
	fd := numericGradient(x, 1e-6, energy)
	for i := range g {
		if math.Abs(fd[i]-g[i]) > tol*(1+math.Abs(g[i])) {
			t.Errorf("%s: grad[%d] = %g, finite difference %g", name, i, g[i], fd[i])
		}
	}
}

func checkPSD(t *testing.T, name string, h *mat.Dense) {
	t.Helper()
	n, _ := h.Dims()
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if math.Abs(h.At(i, j)-h.At(j, i)) > 1e-6*(1+math.Abs(h.At(i, j))) {
				t.Fatalf("%s: hessian not symmetric at (%d,%d)", name, i, j)
			}
			sym.SetSym(i, j, h.At(i, j))
		}
	}
	var es mat.EigenSym
	if !es.Factorize(sym, false) {
		t.Fatalf("%s: eigen decomposition failed", name)
	}
	for _, v := range es.Values(nil) {
		if v < -1e-6*mat.Norm(h, 2) {
			t.Errorf("%s: negative eigenvalue %g", name, v)
		}
	}
}

func perturbed(rng *rand.Rand, x []mgl64.Vec3, amp float64) []mgl64.Vec3 {
	out := make([]mgl64.Vec3, len(x))
	for i, v := range x {
		out[i] = v.Add(mgl64.Vec3{rng.Float64() - 0.5, rng.Float64() - 0.5, rng.Float64() - 0.5}.Mul(amp))
	}
	return out
}

func TestTetElement(t *testing.T) {
	rest := [4]mgl64.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	dmInv, vol, ok := TetRest(rest)
	if !ok || math.Abs(vol-1.0/6) > 1e-12 {
		t.Fatalf("rest volume = %g", vol)
	}
	mu, lambda := 1e4, 5e4

	if e := TetEnergy(rest, dmInv, vol, mu, lambda); math.Abs(e) > 1e-9 {
		t.Errorf("rest energy = %g, want 0", e)
	}

	rng := rand.New(rand.NewSource(1))
	x := perturbed(rng, rest[:], 0.2)
	var xs [4]mgl64.Vec3
	copy(xs[:], x)
	_, g, h := TetElement(xs, dmInv, vol, mu, lambda)

	energy := func(y []float64) float64 {
		var p [4]mgl64.Vec3
		for i := range p {
			p[i] = mgl64.Vec3{y[3*i], y[3*i+1], y[3*i+2]}
		}
		return TetEnergy(p, dmInv, vol, mu, lambda)
	}
	checkGradient(t, "snh", flatten(xs[:]), g, energy, 1e-4)
	checkPSD(t, "snh", h)
}

func TestShellElement(t *testing.T) {
	rest := [3]mgl64.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 0, 1}}
	bInv, area, ok := TriangleRest(rest)
	if !ok || math.Abs(area-0.5) > 1e-12 {
		t.Fatalf("rest area = %g", area)
	}
	if e := ShellEnergy(rest, bInv, area, 1e3, 1e3); math.Abs(e) > 1e-9 {
		t.Errorf("rest energy = %g, want 0", e)
	}

	x := [3]mgl64.Vec3{{0, 0, 0}, {1.2, 0.1, 0}, {0, 0.2, 0.9}}
	_, g, h := ShellElement(x, bInv, area, 1e3, 1e3)
	energy := func(y []float64) float64 {
		return area * shellEnergy(y, bInv, 1e3, 1e3)
	}
	checkGradient(t, "shell", flatten(x[:]), g, energy, 1e-4)
	checkPSD(t, "shell", h)
}

func TestSpringElement(t *testing.T) {
	for _, l := range []float64{0.5, 1.0, 1.5} {
		x0, x1 := mgl64.Vec3{0, 0, 0}, mgl64.Vec3{l * 0.6, l * 0.8, 0}
		_, g, h := SpringElement(x0, x1, 1, 100)
		energy := func(y []float64) float64 {
			return SpringEnergy(mgl64.Vec3{y[0], y[1], y[2]}, mgl64.Vec3{y[3], y[4], y[5]}, 1, 100)
		}
		checkGradient(t, "spring", []float64{x0[0], x0[1], x0[2], x1[0], x1[1], x1[2]}, g, energy, 1e-5)
		checkPSD(t, "spring", h)
	}
}

func TestDihedralAngle(t *testing.T) {
	x0, x1 := mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 0, 0}
	flat := DihedralAngle(x0, x1, mgl64.Vec3{0.5, 0, 1}, mgl64.Vec3{0.5, 0, -1})
	if math.Abs(flat) > 1e-12 {
		t.Errorf("flat hinge angle = %g", flat)
	}
	folded := DihedralAngle(x0, x1, mgl64.Vec3{0.5, 0, 1}, mgl64.Vec3{0.5, 1, 0})
	if math.Abs(math.Abs(folded)-math.Pi/2) > 1e-12 {
		t.Errorf("right angle hinge = %g", folded)
	}

	x := [4]mgl64.Vec3{x0, x1, {0.5, 0, 1}, {0.5, 0.3, -1}}
	_, _, h := BendingElement(x, 0, 10)
	checkPSD(t, "bending", h)
}

func TestOrthoElement(t *testing.T) {
	rot := mgl64.HomogRotate3D(0.7, mgl64.Vec3{1, 1, 0}.Normalize())
	q := TransformToQ(rot)
	if e := OrthoEnergy(q[:], 1e6, 1); e > 1e-12 {
		t.Errorf("rotation ortho energy = %g, want 0", e)
	}

	q[3] += 0.1
	q[7] -= 0.05
	_, g, h := OrthoElement(q[:], 100, 2)
	checkGradient(t, "ortho", q[:], g, func(y []float64) float64 { return OrthoEnergy(y, 100, 2) }, 1e-4)
	checkPSD(t, "ortho", h)
}

func TestProjectPSD(t *testing.T) {
	h := mat.NewDense(2, 2, []float64{1, 2, 2, 1})
	ProjectPSD(h)
	// eigenvalues 3 and -1; projection keeps 3 along (1,1)/sqrt2
	want := []float64{1.5, 1.5, 1.5, 1.5}
	for i, w := range want {
		if got := h.RawMatrix().Data[i]; math.Abs(got-w) > 1e-12 {
			t.Errorf("entry %d = %g, want %g", i, got, w)
		}
	}
}

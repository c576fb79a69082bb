package constitution

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/mat"
)

// SpringElement evaluates 1/2 kappa L (l/L - 1)^2 for an edge of rest length L.
// The transverse Hessian term is dropped under compression.
func SpringElement(x0, x1 mgl64.Vec3, restLen, kappa float64) (float64, []float64, *mat.Dense) {
	d := x1.Sub(x0)
	l := d.Len()
	strain := l/restLen - 1
	e := 0.5 * kappa * restLen * strain * strain

	g := make([]float64, 6)
	h := mat.NewDense(6, 6, nil)
	if l < 1e-12 {
		return e, g, h
	}
	n := d.Mul(1 / l)
	dEdl := kappa * strain
	for i := 0; i < 3; i++ {
		g[i] = -dEdl * n[i]
		g[3+i] = dEdl * n[i]
	}

	axial := kappa / restLen
	transverse := math.Max(dEdl/l, 0)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			v := axial * n[i] * n[j]
			if i == j {
				v += transverse
			}
			v -= transverse * n[i] * n[j]
			h.Set(i, j, v)
			h.Set(3+i, 3+j, v)
			h.Set(i, 3+j, -v)
			h.Set(3+i, j, -v)
		}
	}
	return e, g, h
}

func SpringEnergy(x0, x1 mgl64.Vec3, restLen, kappa float64) float64 {
	strain := x1.Sub(x0).Len()/restLen - 1
	return 0.5 * kappa * restLen * strain * strain
}

// DihedralAngle returns the signed angle between triangles (x0,x1,x2) and
// (x1,x0,x3) across the shared edge x0-x1; 0 when flat.
func DihedralAngle(x0, x1, x2, x3 mgl64.Vec3) float64 {
	e := x1.Sub(x0)
	n1 := e.Cross(x2.Sub(x0))
	n2 := x3.Sub(x0).Cross(e)
	el := e.Len()
	if el == 0 {
		return 0
	}
	return math.Atan2(e.Mul(1/el).Dot(n1.Cross(n2)), n1.Dot(n2))
}

// BendingWeight is the discrete shell weight k * 3|e|^2 / (A1 + A2).
func BendingWeight(k float64, x0, x1, x2, x3 mgl64.Vec3) float64 {
	e := x1.Sub(x0)
	a := 0.5*e.Cross(x2.Sub(x0)).Len() + 0.5*e.Cross(x3.Sub(x0)).Len()
	if a == 0 {
		return 0
	}
	return k * 3 * e.Dot(e) / a
}

func bendingEnergy(y []float64, restAngle, weight float64) float64 {
	v := func(i int) mgl64.Vec3 { return mgl64.Vec3{y[3*i], y[3*i+1], y[3*i+2]} }
	d := DihedralAngle(v(0), v(1), v(2), v(3)) - restAngle
	return weight * d * d
}

// BendingElement evaluates weight*(theta - restAngle)^2 over the hinge.
func BendingElement(x [4]mgl64.Vec3, restAngle, weight float64) (float64, []float64, *mat.Dense) {
	flat := flatten(x[:])
	s := x[1].Sub(x[0]).Len()
	if s == 0 {
		s = scaleOf(x[:])
	}
	energy := func(y []float64) float64 { return bendingEnergy(y, restAngle, weight) }
	grad := func(y []float64) []float64 { return numericGradient(y, 1e-6*s, energy) }
	e := energy(flat)
	g := grad(flat)
	h := numericHessian(flat, 1e-4*s, grad)
	ProjectPSD(h)
	return e, g, h
}

func BendingEnergy(x [4]mgl64.Vec3, restAngle, weight float64) float64 {
	return bendingEnergy(flatten(x[:]), restAngle, weight)
}

// CurvatureBinormal is 2 e0 x e1 / (|e0||e1| + e0.e1) at the joint of two segments.
func CurvatureBinormal(x0, x1, x2 mgl64.Vec3) mgl64.Vec3 {
	e0 := x1.Sub(x0)
	e1 := x2.Sub(x1)
	den := e0.Len()*e1.Len() + e0.Dot(e1)
	if den < 1e-20 {
		return mgl64.Vec3{}
	}
	return e0.Cross(e1).Mul(2 / den)
}

func rodEnergy(y []float64, rest mgl64.Vec3, weight float64) float64 {
	v := func(i int) mgl64.Vec3 { return mgl64.Vec3{y[3*i], y[3*i+1], y[3*i+2]} }
	d := CurvatureBinormal(v(0), v(1), v(2)).Sub(rest)
	return weight * d.Dot(d)
}

// RodBendingElement evaluates weight*|kb - kb_rest|^2 at an interior rod vertex.
func RodBendingElement(x [3]mgl64.Vec3, rest mgl64.Vec3, weight float64) (float64, []float64, *mat.Dense) {
	flat := flatten(x[:])
	s := scaleOf(x[:])
	energy := func(y []float64) float64 { return rodEnergy(y, rest, weight) }
	grad := func(y []float64) []float64 { return numericGradient(y, 1e-6*s, energy) }
	e := energy(flat)
	g := grad(flat)
	h := numericHessian(flat, 1e-4*s, grad)
	ProjectPSD(h)
	return e, g, h
}

func RodBendingEnergy(x [3]mgl64.Vec3, rest mgl64.Vec3, weight float64) float64 {
	return rodEnergy(flatten(x[:]), rest, weight)
}

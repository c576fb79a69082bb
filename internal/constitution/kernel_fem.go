package constitution

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/mat"
)

// TetRest precomputes the inverse rest shape matrix and rest volume.
func TetRest(x [4]mgl64.Vec3) (dmInv mgl64.Mat3, volume float64, ok bool) {
	dm := mgl64.Mat3FromCols(x[1].Sub(x[0]), x[2].Sub(x[0]), x[3].Sub(x[0]))
	det := dm.Det()
	if math.Abs(det) < 1e-20 {
		return dmInv, 0, false
	}
	return dm.Inv(), math.Abs(det) / 6, true
}

// TetF is the deformation gradient of a tet.
func TetF(x [4]mgl64.Vec3, dmInv mgl64.Mat3) mgl64.Mat3 {
	ds := mgl64.Mat3FromCols(x[1].Sub(x[0]), x[2].Sub(x[0]), x[3].Sub(x[0]))
	return ds.Mul3(dmInv)
}

// dFdx maps the vertex dofs of a simplex to vec(F) (column major).
// b is the inverse rest matrix with rows per edge vector.
func dFdx(b [][]float64, spatial int) *mat.Dense {
	edges := len(b)
	cols := len(b[0])
	nv := edges + 1
	out := mat.NewDense(spatial*cols, spatial*nv, nil)
	for j := 0; j < cols; j++ {
		b0 := 0.0
		for m := 0; m < edges; m++ {
			b0 -= b[m][j]
		}
		for i := 0; i < spatial; i++ {
			out.Set(j*spatial+i, i, b0)
			for m := 1; m < nv; m++ {
				out.Set(j*spatial+i, m*spatial+i, b[m-1][j])
			}
		}
	}
	return out
}

func mat3Rows(m mgl64.Mat3) [][]float64 {
	return [][]float64{
		{m.At(0, 0), m.At(0, 1), m.At(0, 2)},
		{m.At(1, 0), m.At(1, 1), m.At(1, 2)},
		{m.At(2, 0), m.At(2, 1), m.At(2, 2)},
	}
}

// SNHEnergy is the stable Neo-Hookean density
// mu/2 (tr(F^T F) - 3) - mu (J - 1) + lambda/2 (J - 1)^2.
func SNHEnergy(f mgl64.Mat3, mu, lambda float64) float64 {
	ic := 0.0
	for _, v := range f {
		ic += v * v
	}
	j := f.Det()
	return 0.5*mu*(ic-3) - mu*(j-1) + 0.5*lambda*(j-1)*(j-1)
}

func cross3(a mgl64.Vec3) [3][3]float64 {
	return [3][3]float64{
		{0, -a[2], a[1]},
		{a[2], 0, -a[0]},
		{-a[1], a[0], 0},
	}
}

// SNHDerivatives returns vec(dPsi/dF) and the PSD-projected 9x9 Hessian.
func SNHDerivatives(f mgl64.Mat3, mu, lambda float64) ([9]float64, *mat.Dense) {
	f0, f1, f2 := f.Col(0), f.Col(1), f.Col(2)
	j := f.Det()
	gj := [3]mgl64.Vec3{f1.Cross(f2), f2.Cross(f0), f0.Cross(f1)}

	var p [9]float64
	for c := 0; c < 3; c++ {
		for r := 0; r < 3; r++ {
			p[c*3+r] = mu*f[c*3+r] + (lambda*(j-1)-mu)*gj[c][r]
		}
	}

	h := mat.NewDense(9, 9, nil)
	for i := 0; i < 9; i++ {
		h.Set(i, i, mu)
	}
	for a := 0; a < 9; a++ {
		for b := 0; b < 9; b++ {
			h.Set(a, b, h.At(a, b)+lambda*gj[a/3][a%3]*gj[b/3][b%3])
		}
	}

	s := lambda*(j-1) - mu
	blocks := [3][3]*[3][3]float64{}
	pos := func(v mgl64.Vec3) *[3][3]float64 { m := cross3(v); return &m }
	neg := func(v mgl64.Vec3) *[3][3]float64 {
		m := cross3(v)
		for r := range m {
			for c := range m[r] {
				m[r][c] = -m[r][c]
			}
		}
		return &m
	}
	blocks[0][1], blocks[0][2] = neg(f2), pos(f1)
	blocks[1][0], blocks[1][2] = pos(f2), neg(f0)
	blocks[2][0], blocks[2][1] = neg(f1), pos(f0)
	for bi := 0; bi < 3; bi++ {
		for bj := 0; bj < 3; bj++ {
			blk := blocks[bi][bj]
			if blk == nil {
				continue
			}
			for r := 0; r < 3; r++ {
				for c := 0; c < 3; c++ {
					h.Set(bi*3+r, bj*3+c, h.At(bi*3+r, bj*3+c)+s*blk[r][c])
				}
			}
		}
	}
	ProjectPSD(h)
	return p, h
}

// TetElement evaluates one stable Neo-Hookean tet: energy, 12-gradient and
// PSD 12x12 Hessian, all scaled by the rest volume.
func TetElement(x [4]mgl64.Vec3, dmInv mgl64.Mat3, volume, mu, lambda float64) (float64, []float64, *mat.Dense) {
	f := TetF(x, dmInv)
	e := volume * SNHEnergy(f, mu, lambda)
	p, hf := SNHDerivatives(f, mu, lambda)

	d := dFdx(mat3Rows(dmInv), 3)
	pv := mat.NewVecDense(9, p[:])
	var g mat.VecDense
	g.MulVec(d.T(), pv)
	g.ScaleVec(volume, &g)

	var tmp, hx mat.Dense
	tmp.Mul(hf, d)
	hx.Mul(d.T(), &tmp)
	hx.Scale(volume, &hx)
	return e, g.RawVector().Data, &hx
}

// TetEnergy evaluates only the energy of a tet.
func TetEnergy(x [4]mgl64.Vec3, dmInv mgl64.Mat3, volume, mu, lambda float64) float64 {
	return volume * SNHEnergy(TetF(x, dmInv), mu, lambda)
}

// TriangleRest returns the 2x2 inverse rest matrix of a triangle in its own
// plane and its rest area.
func TriangleRest(x [3]mgl64.Vec3) (bInv mgl64.Mat2, area float64, ok bool) {
	e1 := x[1].Sub(x[0])
	e2 := x[2].Sub(x[0])
	n := e1.Cross(e2)
	area = 0.5 * n.Len()
	if area < 1e-20 || e1.Len() == 0 {
		return bInv, 0, false
	}
	u := e1.Normalize()
	v := n.Cross(u).Normalize()
	dm := mgl64.Mat2{e1.Len(), 0, e2.Dot(u), e2.Dot(v)}
	return dm.Inv(), area, true
}

func shellF(x []float64, bInv mgl64.Mat2) (f0, f1 mgl64.Vec3) {
	x0 := mgl64.Vec3{x[0], x[1], x[2]}
	d0 := mgl64.Vec3{x[3], x[4], x[5]}.Sub(x0)
	d1 := mgl64.Vec3{x[6], x[7], x[8]}.Sub(x0)
	f0 = d0.Mul(bInv.At(0, 0)).Add(d1.Mul(bInv.At(1, 0)))
	f1 = d0.Mul(bInv.At(0, 1)).Add(d1.Mul(bInv.At(1, 1)))
	return f0, f1
}

func shellEnergy(x []float64, bInv mgl64.Mat2, mu, lambda float64) float64 {
	f0, f1 := shellF(x, bInv)
	c00, c01, c11 := f0.Dot(f0), f0.Dot(f1), f1.Dot(f1)
	det := c00*c11 - c01*c01
	if det <= 0 {
		return math.Inf(1)
	}
	lnJ := 0.5 * math.Log(det)
	return 0.5*mu*(c00+c11-2) - mu*lnJ + 0.5*lambda*lnJ*lnJ
}

func shellGradient(x []float64, bInv mgl64.Mat2, mu, lambda float64) []float64 {
	f0, f1 := shellF(x, bInv)
	c00, c01, c11 := f0.Dot(f0), f0.Dot(f1), f1.Dot(f1)
	det := c00*c11 - c01*c01
	g := make([]float64, 9)
	if det <= 0 {
		return g
	}
	lnJ := 0.5 * math.Log(det)
	// P = mu F + (lambda lnJ - mu) F C^-1
	i00, i01, i11 := c11/det, -c01/det, c00/det
	s := lambda*lnJ - mu
	p0 := f0.Mul(mu).Add(f0.Mul(s * i00).Add(f1.Mul(s * i01)))
	p1 := f1.Mul(mu).Add(f0.Mul(s * i01).Add(f1.Mul(s * i11)))

	b := [2][2]float64{{bInv.At(0, 0), bInv.At(0, 1)}, {bInv.At(1, 0), bInv.At(1, 1)}}
	coef := [3][2]float64{
		{-(b[0][0] + b[1][0]), -(b[0][1] + b[1][1])},
		{b[0][0], b[0][1]},
		{b[1][0], b[1][1]},
	}
	for m := 0; m < 3; m++ {
		for i := 0; i < 3; i++ {
			g[m*3+i] = p0[i]*coef[m][0] + p1[i]*coef[m][1]
		}
	}
	return g
}

// ShellElement evaluates a Neo-Hookean membrane triangle; weight is rest
// area times thickness.
func ShellElement(x [3]mgl64.Vec3, bInv mgl64.Mat2, weight, mu, lambda float64) (float64, []float64, *mat.Dense) {
	flat := flatten(x[:])
	e := weight * shellEnergy(flat, bInv, mu, lambda)
	grad := func(y []float64) []float64 {
		g := shellGradient(y, bInv, mu, lambda)
		for i := range g {
			g[i] *= weight
		}
		return g
	}
	g := grad(flat)
	h := numericHessian(flat, 1e-7*scaleOf(x[:]), grad)
	ProjectPSD(h)
	return e, g, h
}

func ShellEnergy(x [3]mgl64.Vec3, bInv mgl64.Mat2, weight, mu, lambda float64) float64 {
	return weight * shellEnergy(flatten(x[:]), bInv, mu, lambda)
}

func flatten(x []mgl64.Vec3) []float64 {
	out := make([]float64, 0, 3*len(x))
	for _, v := range x {
		out = append(out, v[0], v[1], v[2])
	}
	return out
}

func scaleOf(x []mgl64.Vec3) float64 {
	s := 0.0
	for i := 1; i < len(x); i++ {
		s = math.Max(s, x[i].Sub(x[0]).Len())
	}
	if s == 0 {
		return 1
	}
	return s
}

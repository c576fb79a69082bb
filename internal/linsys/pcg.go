package linsys

import (
	"errors"
	"math"

	"github.com/san-kum/ipcsim/internal/compute"
	"gonum.org/v1/gonum/mat"
)

var ErrNotConverged = errors.New("linsys: pcg did not reach tolerance")

// Block is a contiguous range of unknowns preconditioned together: 12 per
// affine body, 3 per finite element vertex.
type Block struct {
	Start, Size int
}

type blockInverse struct {
	Block
	inv *mat.Dense
}

// Preconditioner applies the inverse of the block diagonal of A.
type Preconditioner struct {
	blocks []blockInverse
	diag   []float64
}

func NewBlockJacobi(a *CSR, blocks []Block) *Preconditioner {
	p := &Preconditioner{diag: make([]float64, a.N)}
	covered := make([]bool, a.N)
	for _, b := range blocks {
		d := a.Dense(b.Start, b.Size)
		var inv mat.Dense
		if err := inv.Inverse(d); err != nil {
			continue
		}
		p.blocks = append(p.blocks, blockInverse{Block: b, inv: &inv})
		for i := b.Start; i < b.Start+b.Size; i++ {
			covered[i] = true
		}
	}
	for i := 0; i < a.N; i++ {
		if covered[i] {
			continue
		}
		if v := a.At(i, i); v != 0 {
			p.diag[i] = 1 / v
		} else {
			p.diag[i] = 1
		}
	}
	return p
}

// Apply computes z = M^-1 r.
func (p *Preconditioner) Apply(r, z []float64) {
	for i := range r {
		z[i] = p.diag[i] * r[i]
	}
	for _, b := range p.blocks {
		rv := mat.NewVecDense(b.Size, r[b.Start:b.Start+b.Size])
		zv := mat.NewVecDense(b.Size, z[b.Start:b.Start+b.Size])
		zv.MulVec(b.inv, rv)
	}
}

type Result struct {
	Iterations        int
	Residual          float64
	NegativeCurvature bool
}

// PCG solves A x = b to relative residual tol. On negative curvature it
// returns the iterate so far, or the preconditioned gradient direction when
// no step has been taken yet.
func PCG(backend compute.Backend, a *CSR, b []float64, pre *Preconditioner, tol float64, maxIter int) ([]float64, Result, error) {
	n := a.N
	x := make([]float64, n)
	r := append([]float64(nil), b...)
	z := make([]float64, n)
	ap := make([]float64, n)

	bnorm := math.Sqrt(backend.Dot(b, b))
	if bnorm == 0 {
		return x, Result{}, nil
	}
	pre.Apply(r, z)
	p := append([]float64(nil), z...)
	rz := backend.Dot(r, z)

	res := Result{}
	for k := 0; k < maxIter; k++ {
		a.Mul(backend, p, ap)
		pap := backend.Dot(p, ap)
		if pap <= 0 {
			res.NegativeCurvature = true
			res.Iterations = k
			if k == 0 {
				copy(x, z)
			}
			return x, res, nil
		}
		alpha := rz / pap
		backend.Axpy(alpha, p, x)
		backend.Axpy(-alpha, ap, r)

		res.Iterations = k + 1
		res.Residual = math.Sqrt(backend.Dot(r, r)) / bnorm
		if res.Residual <= tol {
			return x, res, nil
		}

		pre.Apply(r, z)
		rzNew := backend.Dot(r, z)
		beta := rzNew / rz
		rz = rzNew
		for i := range p {
			p[i] = z[i] + beta*p[i]
		}
	}
	return x, res, ErrNotConverged
}

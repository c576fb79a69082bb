package constitution

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// ProjectPSD clamps the negative eigenvalues of a symmetric matrix to zero in place.
func ProjectPSD(h *mat.Dense) {
	n, _ := h.Dims()
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, 0.5*(h.At(i, j)+h.At(j, i)))
		}
	}

	var es mat.EigenSym
	if !es.Factorize(sym, true) {
		// leave only the non-negative diagonal if the factorization fails
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				if i != j {
					h.Set(i, j, 0)
				} else {
					h.Set(i, i, math.Max(h.At(i, i), 0))
				}
			}
		}
		return
	}

	vals := es.Values(nil)
	negative := false
	for _, v := range vals {
		if v < 0 {
			negative = true
			break
		}
	}
	if !negative {
		h.Copy(sym)
		return
	}

	var vecs mat.Dense
	es.VectorsTo(&vecs)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			sum := 0.0
			for k, v := range vals {
				if v > 0 {
					sum += vecs.At(i, k) * v * vecs.At(j, k)
				}
			}
			h.Set(i, j, sum)
		}
	}
}

// numericHessian differentiates an analytic gradient by central differences.
func numericHessian(x []float64, h float64, grad func(x []float64) []float64) *mat.Dense {
	n := len(x)
	out := mat.NewDense(n, n, nil)
	xp := make([]float64, n)
	for k := 0; k < n; k++ {
		copy(xp, x)
		xp[k] = x[k] + h
		gp := grad(xp)
		xp[k] = x[k] - h
		gm := grad(xp)
		for i := 0; i < n; i++ {
			out.Set(i, k, (gp[i]-gm[i])/(2*h))
		}
	}
	return out
}

// numericGradient differentiates an energy by central differences.
func numericGradient(x []float64, h float64, energy func(x []float64) float64) []float64 {
	n := len(x)
	g := make([]float64, n)
	xp := make([]float64, n)
	copy(xp, x)
	for k := 0; k < n; k++ {
		xp[k] = x[k] + h
		ep := energy(xp)
		xp[k] = x[k] - h
		em := energy(xp)
		xp[k] = x[k]
		g[k] = (ep - em) / (2 * h)
	}
	return g
}

package constitution

import "gonum.org/v1/gonum/mat"

// OrthoEnergy is kappa*V*sum_ij (a_i.a_j - delta_ij)^2 over the rows of A
// stored in q[3:12].
func OrthoEnergy(q []float64, kappa, volume float64) float64 {
	e := 0.0
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r := rowDot(q, i, j)
			if i == j {
				r -= 1
			}
			e += r * r
		}
	}
	return kappa * volume * e
}

func rowDot(q []float64, i, j int) float64 {
	return q[3+3*i]*q[3+3*j] + q[4+3*i]*q[4+3*j] + q[5+3*i]*q[5+3*j]
}

// OrthoElement returns the orthogonality energy, its 12-gradient and the
// PSD-projected 12x12 Hessian (translation block zero).
func OrthoElement(q []float64, kappa, volume float64) (float64, []float64, *mat.Dense) {
	var r [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i][j] = rowDot(q, i, j)
			if i == j {
				r[i][j] -= 1
			}
		}
	}
	a := func(i, c int) float64 { return q[3+3*i+c] }
	s := 4 * kappa * volume

	g := make([]float64, 12)
	for k := 0; k < 3; k++ {
		for c := 0; c < 3; c++ {
			sum := 0.0
			for j := 0; j < 3; j++ {
				sum += r[k][j] * a(j, c)
			}
			g[3+3*k+c] = s * sum
		}
	}

	// H_kl = 4 kappa V (delta_kl sum_j a_j a_j^T + a_l a_k^T + r_kl I)
	hb := mat.NewDense(9, 9, nil)
	for k := 0; k < 3; k++ {
		for l := 0; l < 3; l++ {
			for c := 0; c < 3; c++ {
				for d := 0; d < 3; d++ {
					v := a(l, c) * a(k, d)
					if k == l {
						for j := 0; j < 3; j++ {
							v += a(j, c) * a(j, d)
						}
					}
					if c == d {
						v += r[k][l]
					}
					hb.Set(3*k+c, 3*l+d, s*v)
				}
			}
		}
	}
	ProjectPSD(hb)

	h := mat.NewDense(12, 12, nil)
	for i := 0; i < 9; i++ {
		for j := 0; j < 9; j++ {
			h.Set(3+i, 3+j, hb.At(i, j))
		}
	}
	return OrthoEnergy(q, kappa, volume), g, h
}

// Package linsys assembles sparse Newton systems and solves them with a
// block-Jacobi preconditioned conjugate gradient.
package linsys

import (
	"sort"

	"github.com/san-kum/ipcsim/internal/compute"
	"gonum.org/v1/gonum/mat"
)

// Triplets accumulates (row, col, value) entries; duplicates are summed
// when converted to CSR.
type Triplets struct {
	n    int
	rows []int
	cols []int
	vals []float64
}

func NewTriplets(n int) *Triplets {
	return &Triplets{n: n}
}

func (t *Triplets) N() int   { return t.n }
func (t *Triplets) Len() int { return len(t.vals) }

func (t *Triplets) Add(i, j int, v float64) {
	if v == 0 {
		return
	}
	t.rows = append(t.rows, i)
	t.cols = append(t.cols, j)
	t.vals = append(t.vals, v)
}

// AddBlock scatters a dense element matrix. dofs[k] is the global row of
// local index k; negative entries are constrained and skipped.
func (t *Triplets) AddBlock(dofs []int, h mat.Matrix) {
	for a, ra := range dofs {
		if ra < 0 {
			continue
		}
		for b, rb := range dofs {
			if rb < 0 {
				continue
			}
			t.Add(ra, rb, h.At(a, b))
		}
	}
}

// Append merges other into t.
func (t *Triplets) Append(other *Triplets) {
	t.rows = append(t.rows, other.rows...)
	t.cols = append(t.cols, other.cols...)
	t.vals = append(t.vals, other.vals...)
}

type CSR struct {
	N      int
	RowPtr []int
	Cols   []int
	Vals   []float64
}

func (t *Triplets) CSR() *CSR {
	order := make([]int, len(t.vals))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		ia, ib := order[a], order[b]
		if t.rows[ia] != t.rows[ib] {
			return t.rows[ia] < t.rows[ib]
		}
		return t.cols[ia] < t.cols[ib]
	})

	m := &CSR{N: t.n, RowPtr: make([]int, t.n+1)}
	last := -1
	lastRow, lastCol := -1, -1
	for _, k := range order {
		r, c := t.rows[k], t.cols[k]
		if r == lastRow && c == lastCol {
			m.Vals[last] += t.vals[k]
			continue
		}
		m.Cols = append(m.Cols, c)
		m.Vals = append(m.Vals, t.vals[k])
		last = len(m.Vals) - 1
		lastRow, lastCol = r, c
		m.RowPtr[r+1]++
	}
	for i := 0; i < t.n; i++ {
		m.RowPtr[i+1] += m.RowPtr[i]
	}
	return m
}

// Mul computes y = A x on the given backend.
func (m *CSR) Mul(b compute.Backend, x, y []float64) {
	b.SpMV(m.RowPtr, m.Cols, m.Vals, x, y)
}

func (m *CSR) At(i, j int) float64 {
	lo, hi := m.RowPtr[i], m.RowPtr[i+1]
	k := lo + sort.SearchInts(m.Cols[lo:hi], j)
	if k < hi && m.Cols[k] == j {
		return m.Vals[k]
	}
	return 0
}

// Dense copies the diagonal block [start, start+size).
func (m *CSR) Dense(start, size int) *mat.Dense {
	d := mat.NewDense(size, size, nil)
	for i := 0; i < size; i++ {
		r := start + i
		for k := m.RowPtr[r]; k < m.RowPtr[r+1]; k++ {
			c := m.Cols[k] - start
			if c >= 0 && c < size {
				d.Set(i, c, m.Vals[k])
			}
		}
	}
	return d
}

package world

import (
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/ipcsim/internal/dynamo"
	"github.com/san-kum/ipcsim/internal/linsys"
	"gonum.org/v1/gonum/mat"
)

// anchor maps a world point linearly onto the generalized coordinates. A
// finite element vertex reads q[off:off+3]; a point on an affine body
// reads t + A rest from the 12 dofs starting at off.
type anchor struct {
	off    int
	affine bool
	rest   mgl64.Vec3
}

func (a anchor) width() int {
	if a.affine {
		return 12
	}
	return 3
}

// pos evaluates the point at q. Because the map is linear, pos applied to
// a step direction gives the point's displacement.
func (a anchor) pos(q []float64) mgl64.Vec3 {
	p := mgl64.Vec3{q[a.off], q[a.off+1], q[a.off+2]}
	if !a.affine {
		return p
	}
	for i := 0; i < 3; i++ {
		r := a.off + 3 + 3*i
		p[i] += q[r]*a.rest[0] + q[r+1]*a.rest[1] + q[r+2]*a.rest[2]
	}
	return p
}

// jacobian stacks the 3 x width blocks of the anchors. Dofs repeat when
// two anchors sit on the same body; scattering sums the duplicates.
func jacobian(anchors []anchor) ([]int, *mat.Dense) {
	n := 0
	for _, a := range anchors {
		n += a.width()
	}
	dofs := make([]int, 0, n)
	j := mat.NewDense(3*len(anchors), n, nil)
	col := 0
	for k, a := range anchors {
		for d := 0; d < a.width(); d++ {
			dofs = append(dofs, a.off+d)
		}
		for i := 0; i < 3; i++ {
			j.Set(3*k+i, col+i, 1)
			if a.affine {
				for c := 0; c < 3; c++ {
					j.Set(3*k+i, col+3+3*i+c, a.rest[c])
				}
			}
		}
		col += a.width()
	}
	return dofs, j
}

// assembler accumulates a gradient over all of q and, optionally, the
// Hessian restricted to free dofs in system numbering.
type assembler struct {
	free []int
	grad []float64
	hess *linsys.Triplets
}

func newAssembler(free []int, nsys int, withHessian bool) *assembler {
	a := &assembler{free: free, grad: make([]float64, len(free))}
	if withHessian {
		a.hess = linsys.NewTriplets(nsys)
	}
	return a
}

func (a *assembler) fork() *assembler {
	out := &assembler{free: a.free, grad: make([]float64, len(a.grad))}
	if a.hess != nil {
		out.hess = linsys.NewTriplets(a.hess.N())
	}
	return out
}

func (a *assembler) join(b *assembler) {
	for i, g := range b.grad {
		a.grad[i] += g
	}
	if a.hess != nil {
		a.hess.Append(b.hess)
	}
}

// add scatters an element gradient and Hessian given over q indices.
func (a *assembler) add(dofs []int, g []float64, h mat.Matrix) {
	for i, d := range dofs {
		a.grad[d] += g[i]
	}
	if a.hess == nil || h == nil {
		return
	}
	sys := make([]int, len(dofs))
	for i, d := range dofs {
		sys[i] = a.free[d]
	}
	a.hess.AddBlock(sys, h)
}

// addPoints maps a gradient and Hessian over stacked world points through
// their anchors.
func (a *assembler) addPoints(anchors []anchor, g []float64, h *mat.Dense) {
	vertexOnly := true
	for _, an := range anchors {
		if an.affine {
			vertexOnly = false
			break
		}
	}
	if vertexOnly {
		dofs := make([]int, 0, 3*len(anchors))
		for _, an := range anchors {
			dofs = append(dofs, an.off, an.off+1, an.off+2)
		}
		if h == nil {
			a.add(dofs, g, nil)
			return
		}
		a.add(dofs, g, h)
		return
	}

	dofs, j := jacobian(anchors)
	var gq mat.VecDense
	gq.MulVec(j.T(), mat.NewVecDense(len(g), g))
	if a.hess == nil || h == nil {
		a.add(dofs, gq.RawVector().Data, nil)
		return
	}
	var hj, hq mat.Dense
	hj.Mul(h, j)
	hq.Mul(j.T(), &hj)
	a.add(dofs, gq.RawVector().Data, &hq)
}

// each runs fn for every index in [0, n) across workers. With an
// assembler, every chunk scatters into its own fork; forks and partial
// energies are merged in index order so results do not depend on
// scheduling.
func each(n int, a *assembler, fn func(i int, a *assembler) float64) float64 {
	type part struct {
		start int
		sum   float64
		a     *assembler
	}
	var (
		mu    sync.Mutex
		parts []part
	)
	dynamo.ParallelFor(n, 64, func(start, end int) {
		var local *assembler
		if a != nil {
			local = a.fork()
		}
		sum := 0.0
		for i := start; i < end; i++ {
			sum += fn(i, local)
		}
		mu.Lock()
		parts = append(parts, part{start: start, sum: sum, a: local})
		mu.Unlock()
	})
	sort.Slice(parts, func(i, j int) bool { return parts[i].start < parts[j].start })
	total := 0.0
	for _, p := range parts {
		total += p.sum
		if a != nil {
			a.join(p.a)
		}
	}
	return total
}

// scale multiplies an element gradient and Hessian in place.
func scale(s float64, g []float64, h *mat.Dense) {
	for i := range g {
		g[i] *= s
	}
	if h != nil {
		h.Scale(s, h)
	}
}

func vec(q []float64, off int) mgl64.Vec3 {
	return mgl64.Vec3{q[off], q[off+1], q[off+2]}
}

// pairBlock is the 6x6 Hessian k [[P, -P], [-P, P]] of 1/2 k |P (x0 - x1)|^2.
func pairBlock(k float64, p mgl64.Mat3) *mat.Dense {
	h := mat.NewDense(6, 6, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			v := k * p.At(i, j)
			h.Set(i, j, v)
			h.Set(3+i, 3+j, v)
			h.Set(i, 3+j, -v)
			h.Set(3+i, j, -v)
		}
	}
	return h
}

package geometry

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

// ErrBadIndex indicates a simplex referencing a vertex that does not exist.
var ErrBadIndex = errors.New("geometry: simplex index out of range")

func newMesh(dim int, positions []mgl64.Vec3, pre []mgl64.Mat4) *Geometry {
	g := New(SimplicialComplex, dim)
	_ = g.vertices.Resize(len(positions))
	col, _ := Create(g.vertices, Position, mgl64.Vec3{})
	view := col.View()
	tf := mgl64.Ident4()
	for _, m := range pre {
		tf = m.Mul4(tf)
	}
	for i, p := range positions {
		view[i] = mgl64.TransformCoordinate(p, tf)
	}
	return g
}

func checkIndices(n int, idx []int) error {
	for _, i := range idx {
		if i < 0 || i >= n {
			return fmt.Errorf("vertex %d of %d: %w", i, n, ErrBadIndex)
		}
	}
	return nil
}

func setTopo[T any](c *Collection, items []T) {
	_ = c.Resize(len(items))
	col, _ := FindOrCreate(c, Topo, *new(T))
	copy(col.View(), items)
}

// Tetmesh builds a tetrahedral mesh. Optional transforms are applied to the
// positions in order.
func Tetmesh(positions []mgl64.Vec3, tets [][4]int, pre ...mgl64.Mat4) (*Geometry, error) {
	for _, t := range tets {
		if err := checkIndices(len(positions), t[:]); err != nil {
			return nil, fmt.Errorf("tetmesh: %w", err)
		}
	}
	g := newMesh(3, positions, pre)
	setTopo(g.tetrahedra, tets)
	return g, nil
}

// Trimesh builds a triangle mesh.
func Trimesh(positions []mgl64.Vec3, tris [][3]int, pre ...mgl64.Mat4) (*Geometry, error) {
	for _, f := range tris {
		if err := checkIndices(len(positions), f[:]); err != nil {
			return nil, fmt.Errorf("trimesh: %w", err)
		}
	}
	g := newMesh(2, positions, pre)
	setTopo(g.triangles, tris)
	return g, nil
}

// Linemesh builds a polyline / edge set.
func Linemesh(positions []mgl64.Vec3, edges [][2]int, pre ...mgl64.Mat4) (*Geometry, error) {
	for _, e := range edges {
		if err := checkIndices(len(positions), e[:]); err != nil {
			return nil, fmt.Errorf("linemesh: %w", err)
		}
	}
	g := newMesh(1, positions, pre)
	setTopo(g.edges, edges)
	return g, nil
}

// Pointcloud builds a set of isolated vertices.
func Pointcloud(positions []mgl64.Vec3, pre ...mgl64.Mat4) *Geometry {
	return newMesh(0, positions, pre)
}

// Ground builds an implicit half space {x : N.(x-P) >= 0} with P = height*N.
func Ground(height float64, normal ...mgl64.Vec3) *Geometry {
	n := mgl64.Vec3{0, 1, 0}
	if len(normal) > 0 && normal[0].Len() > 0 {
		n = normal[0].Normalize()
	}
	g := New(ImplicitGeometry, -1)
	_ = SetMeta(g, ImplicitNormal, n)
	_ = SetMeta(g, ImplicitPoint, n.Mul(height))
	return g
}

// HalfPlane returns the normal and point of an implicit geometry.
func (g *Geometry) HalfPlane() (n, p mgl64.Vec3, ok bool) {
	nc := Lookup[mgl64.Vec3](g.meta, ImplicitNormal)
	pc := Lookup[mgl64.Vec3](g.meta, ImplicitPoint)
	if g.typ != ImplicitGeometry || nc == nil || pc == nil {
		return n, p, false
	}
	return nc.CView()[0], pc.CView()[0], true
}

// Box builds an axis aligned tetrahedral box centred at the origin,
// subdivided into div cells per axis (at least 1), five tets per cell.
func Box(extents mgl64.Vec3, div int, pre ...mgl64.Mat4) *Geometry {
	if div < 1 {
		div = 1
	}
	n := div + 1
	idx := func(i, j, k int) int { return i + n*(j+n*k) }

	positions := make([]mgl64.Vec3, 0, n*n*n)
	for k := 0; k < n; k++ {
		for j := 0; j < n; j++ {
			for i := 0; i < n; i++ {
				positions = append(positions, mgl64.Vec3{
					extents[0] * (float64(i)/float64(div) - 0.5),
					extents[1] * (float64(j)/float64(div) - 0.5),
					extents[2] * (float64(k)/float64(div) - 0.5),
				})
			}
		}
	}

	tets := make([][4]int, 0, 5*div*div*div)
	for k := 0; k < div; k++ {
		for j := 0; j < div; j++ {
			for i := 0; i < div; i++ {
				c := [8]int{
					idx(i, j, k), idx(i+1, j, k), idx(i, j+1, k), idx(i+1, j+1, k),
					idx(i, j, k+1), idx(i+1, j, k+1), idx(i, j+1, k+1), idx(i+1, j+1, k+1),
				}
				// alternate the split so neighbouring cells share face diagonals
				if (i+j+k)%2 == 0 {
					tets = append(tets,
						[4]int{c[1], c[2], c[4], c[7]},
						[4]int{c[0], c[1], c[2], c[4]},
						[4]int{c[3], c[1], c[2], c[7]},
						[4]int{c[5], c[1], c[4], c[7]},
						[4]int{c[6], c[2], c[4], c[7]},
					)
				} else {
					tets = append(tets,
						[4]int{c[0], c[3], c[5], c[6]},
						[4]int{c[1], c[0], c[3], c[5]},
						[4]int{c[2], c[0], c[3], c[6]},
						[4]int{c[4], c[0], c[5], c[6]},
						[4]int{c[7], c[3], c[5], c[6]},
					)
				}
			}
		}
	}
	orientTets(positions, tets)

	g, _ := Tetmesh(positions, tets, pre...)
	return g
}

// Cube is a unit-divided box with equal sides.
func Cube(size float64, pre ...mgl64.Mat4) *Geometry {
	return Box(mgl64.Vec3{size, size, size}, 1, pre...)
}

// Grid builds an nx by nz triangulated sheet in the xz plane centred at the origin.
func Grid(nx, nz int, size float64, pre ...mgl64.Mat4) *Geometry {
	if nx < 1 {
		nx = 1
	}
	if nz < 1 {
		nz = 1
	}
	positions := make([]mgl64.Vec3, 0, (nx+1)*(nz+1))
	for k := 0; k <= nz; k++ {
		for i := 0; i <= nx; i++ {
			positions = append(positions, mgl64.Vec3{
				size * (float64(i)/float64(nx) - 0.5),
				0,
				size * (float64(k)/float64(nz) - 0.5),
			})
		}
	}
	tris := make([][3]int, 0, 2*nx*nz)
	for k := 0; k < nz; k++ {
		for i := 0; i < nx; i++ {
			a := i + (nx+1)*k
			b := a + 1
			c := a + nx + 1
			d := c + 1
			tris = append(tris, [3]int{a, c, b}, [3]int{b, c, d})
		}
	}
	g, _ := Trimesh(positions, tris, pre...)
	return g
}

// Polyline builds a straight rod of n segments from a to b.
func Polyline(a, b mgl64.Vec3, n int, pre ...mgl64.Mat4) *Geometry {
	if n < 1 {
		n = 1
	}
	positions := make([]mgl64.Vec3, n+1)
	edges := make([][2]int, n)
	for i := 0; i <= n; i++ {
		positions[i] = a.Add(b.Sub(a).Mul(float64(i) / float64(n)))
		if i < n {
			edges[i] = [2]int{i, i + 1}
		}
	}
	g, _ := Linemesh(positions, edges, pre...)
	return g
}

// TetVolume is the signed volume of a tetrahedron.
func TetVolume(a, b, c, d mgl64.Vec3) float64 {
	return b.Sub(a).Dot(c.Sub(a).Cross(d.Sub(a))) / 6
}

func orientTets(positions []mgl64.Vec3, tets [][4]int) {
	for i, t := range tets {
		if TetVolume(positions[t[0]], positions[t[1]], positions[t[2]], positions[t[3]]) < 0 {
			tets[i][2], tets[i][3] = t[3], t[2]
		}
	}
}

package geometry

import (
	"sort"

	"github.com/go-gl/mathgl/mgl64"
)

type faceKey [3]int

func sortedFace(a, b, c int) faceKey {
	k := [3]int{a, b, c}
	sort.Ints(k[:])
	return k
}

func sortedEdge(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}

// tetFaces lists each face with the opposite vertex last, wound so that the
// face normal points away from it for a positively oriented tet.
var tetFaces = [4][4]int{
	{1, 2, 3, 0},
	{0, 3, 2, 1},
	{0, 1, 3, 2},
	{0, 2, 1, 3},
}

// LabelSurface marks boundary vertices, edges and triangles with is_surf.
// Tet meshes get their boundary faces extracted into the triangle domain
// and every mesh gets its surface edges extracted when the edge domain is empty.
func LabelSurface(g *Geometry) {
	if g.typ != SimplicialComplex {
		return
	}

	if tets := g.TetTopo(); tets != nil && g.dim == 3 {
		type hit struct {
			face  [3]int
			count int
		}
		faces := make(map[faceKey]*hit)
		order := make([]faceKey, 0)
		for _, t := range tets.CView() {
			for _, f := range tetFaces {
				face := [3]int{t[f[0]], t[f[1]], t[f[2]]}
				key := sortedFace(face[0], face[1], face[2])
				h, ok := faces[key]
				if !ok {
					h = &hit{face: face}
					faces[key] = h
					order = append(order, key)
				}
				h.count++
			}
		}
		boundary := make([][3]int, 0)
		for _, key := range order {
			if h := faces[key]; h.count == 1 {
				boundary = append(boundary, h.face)
			}
		}
		if g.triangles.Size() == 0 {
			setTopo(g.triangles, boundary)
		}
	}

	if g.edges.Size() == 0 && g.triangles.Size() > 0 {
		setTopo(g.edges, uniqueEdges(g.TriangleTopo().CView()))
	}

	vsurf, _ := FindOrCreate(g.vertices, IsSurf, int32(0))
	vs := vsurf.View()
	for i := range vs {
		vs[i] = 0
	}

	if tris := g.TriangleTopo(); tris != nil {
		surfFaces := make(map[faceKey]bool)
		if g.dim == 3 {
			counts := make(map[faceKey]int)
			for _, t := range g.TetTopo().CView() {
				for _, f := range tetFaces {
					counts[sortedFace(t[f[0]], t[f[1]], t[f[2]])]++
				}
			}
			for k, c := range counts {
				if c == 1 {
					surfFaces[k] = true
				}
			}
		}
		fsurf, _ := FindOrCreate(g.triangles, IsSurf, int32(0))
		fs := fsurf.View()
		for i, f := range tris.CView() {
			if g.dim == 3 && !surfFaces[sortedFace(f[0], f[1], f[2])] {
				fs[i] = 0
				continue
			}
			fs[i] = 1
			vs[f[0]], vs[f[1]], vs[f[2]] = 1, 1, 1
		}
	}

	if edges := g.EdgeTopo(); edges != nil {
		surfEdges := make(map[[2]int]bool)
		if tris := g.TriangleTopo(); tris != nil {
			fs := Lookup[int32](g.triangles, IsSurf).CView()
			for i, f := range tris.CView() {
				if fs[i] == 0 {
					continue
				}
				surfEdges[sortedEdge(f[0], f[1])] = true
				surfEdges[sortedEdge(f[1], f[2])] = true
				surfEdges[sortedEdge(f[2], f[0])] = true
			}
		}
		esurf, _ := FindOrCreate(g.edges, IsSurf, int32(0))
		es := esurf.View()
		for i, e := range edges.CView() {
			if g.dim >= 2 && !surfEdges[sortedEdge(e[0], e[1])] {
				es[i] = 0
				continue
			}
			es[i] = 1
			vs[e[0]], vs[e[1]] = 1, 1
		}
	}

	if g.dim == 0 {
		for i := range vs {
			vs[i] = 1
		}
	}
}

func uniqueEdges(tris [][3]int) [][2]int {
	seen := make(map[[2]int]bool)
	out := make([][2]int, 0, len(tris)*3/2)
	for _, f := range tris {
		for _, e := range [][2]int{{f[0], f[1]}, {f[1], f[2]}, {f[2], f[0]}} {
			k := sortedEdge(e[0], e[1])
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}

// LabelTriangleOrient writes orient = +1 for outward and -1 for inward
// surface triangles. Tet meshes are judged against the owning tet, closed
// triangle meshes against their total signed volume.
func LabelTriangleOrient(g *Geometry) {
	tris := g.TriangleTopo()
	pos := g.Positions()
	if tris == nil || pos == nil {
		return
	}
	p := pos.CView()
	orient, _ := FindOrCreate(g.triangles, Orient, int32(1))
	ov := orient.View()

	if tets := g.TetTopo(); tets != nil && g.dim == 3 {
		opposite := make(map[faceKey]int)
		for _, t := range tets.CView() {
			for _, f := range tetFaces {
				opposite[sortedFace(t[f[0]], t[f[1]], t[f[2]])] = t[f[3]]
			}
		}
		for i, f := range tris.CView() {
			o, ok := opposite[sortedFace(f[0], f[1], f[2])]
			if !ok {
				ov[i] = 1
				continue
			}
			if TetVolume(p[f[0]], p[f[1]], p[f[2]], p[o]) > 0 {
				// opposite vertex lies on the normal side: inward
				ov[i] = -1
			} else {
				ov[i] = 1
			}
		}
		return
	}

	vol := 0.0
	for _, f := range tris.CView() {
		vol += TetVolume(mgl64.Vec3{}, p[f[0]], p[f[1]], p[f[2]])
	}
	sign := int32(1)
	if vol < 0 {
		sign = -1
	}
	for i := range ov {
		ov[i] = sign
	}
}

// FlipInwardTriangles returns a copy with every orient = -1 triangle
// rewound so that all surface normals point outward.
func FlipInwardTriangles(g *Geometry) *Geometry {
	out := g.Clone()
	orient := Lookup[int32](out.triangles, Orient)
	tris := out.TriangleTopo()
	if orient == nil || tris == nil {
		return out
	}
	ov := orient.View()
	tv := tris.View()
	for i := range tv {
		if ov[i] < 0 {
			tv[i][1], tv[i][2] = tv[i][2], tv[i][1]
			ov[i] = 1
		}
	}
	return out
}

// SurfaceTriangles returns indices of triangles flagged is_surf, or all
// triangles when the flag is absent.
func (g *Geometry) SurfaceTriangles() []int {
	return surfaceIndices(g.triangles)
}

// SurfaceEdges returns indices of edges flagged is_surf, or all edges.
func (g *Geometry) SurfaceEdges() []int {
	return surfaceIndices(g.edges)
}

// SurfaceVertices returns indices of vertices flagged is_surf, or all vertices.
func (g *Geometry) SurfaceVertices() []int {
	return surfaceIndices(g.vertices)
}

func surfaceIndices(c *Collection) []int {
	flag := Lookup[int32](c, IsSurf)
	out := make([]int, 0, c.Size())
	for i := 0; i < c.Size(); i++ {
		if flag == nil || flag.CView()[i] != 0 {
			out = append(out, i)
		}
	}
	return out
}

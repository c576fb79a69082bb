package geometry

import (
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/ipcsim/internal/dynamo"
)

type Type string

const (
	SimplicialComplex Type = "SimplicialComplex"
	ImplicitGeometry  Type = "ImplicitGeometry"
)

// Geometry is a mesh-like object with vertex, simplex, instance and meta
// attribute domains. Instances share topology; each is one body.
type Geometry struct {
	typ Type
	dim int

	vertices   *Collection
	edges      *Collection
	triangles  *Collection
	tetrahedra *Collection
	instances  *Collection
	meta       *Collection
	custom     map[string]*Collection
}

// New returns an empty geometry with one identity instance.
func New(typ Type, dim int) *Geometry {
	g := &Geometry{
		typ:        typ,
		dim:        dim,
		vertices:   newCollection("vertices", 0, false),
		edges:      newCollection("edges", 0, false),
		triangles:  newCollection("triangles", 0, false),
		tetrahedra: newCollection("tetrahedra", 0, false),
		instances:  newCollection("instances", 1, false),
		meta:       newCollection("meta", 1, true),
		custom:     make(map[string]*Collection),
	}
	_, _ = Create(g.instances, Transform, mgl64.Ident4())
	return g
}

func (g *Geometry) Type() Type { return g.typ }

// Dim is the highest simplex dimension: 0 points, 1 lines, 2 triangles, 3 tets.
// Implicit geometries report -1.
func (g *Geometry) Dim() int { return g.dim }

func (g *Geometry) Vertices() *Collection   { return g.vertices }
func (g *Geometry) Edges() *Collection      { return g.edges }
func (g *Geometry) Triangles() *Collection  { return g.triangles }
func (g *Geometry) Tetrahedra() *Collection { return g.tetrahedra }
func (g *Geometry) Instances() *Collection  { return g.instances }
func (g *Geometry) Meta() *Collection       { return g.meta }

// Simplices returns the collection of simplices of dimension d.
func (g *Geometry) Simplices(d int) *Collection {
	switch d {
	case 0:
		return g.vertices
	case 1:
		return g.edges
	case 2:
		return g.triangles
	case 3:
		return g.tetrahedra
	}
	return nil
}

// Collection returns a named custom collection, creating it on first use.
func (g *Geometry) Collection(name string) *Collection {
	c, ok := g.custom[name]
	if !ok {
		c = newCollection(name, 0, false)
		g.custom[name] = c
	}
	return c
}

// FindCollection returns a custom collection or ErrNotFound.
func (g *Geometry) FindCollection(name string) (*Collection, error) {
	c, ok := g.custom[name]
	if !ok {
		return nil, fmt.Errorf("collection %s: %w", name, dynamo.ErrNotFound)
	}
	return c, nil
}

func (g *Geometry) Positions() *Column[mgl64.Vec3] {
	return Lookup[mgl64.Vec3](g.vertices, Position)
}

func (g *Geometry) Transforms() *Column[mgl64.Mat4] {
	return Lookup[mgl64.Mat4](g.instances, Transform)
}

func (g *Geometry) EdgeTopo() *Column[[2]int] {
	return Lookup[[2]int](g.edges, Topo)
}

func (g *Geometry) TriangleTopo() *Column[[3]int] {
	return Lookup[[3]int](g.triangles, Topo)
}

func (g *Geometry) TetTopo() *Column[[4]int] {
	return Lookup[[4]int](g.tetrahedra, Topo)
}

// MetaFloat reads a float64 meta attribute, returning def when absent.
func (g *Geometry) MetaFloat(name string, def float64) float64 {
	if col := Lookup[float64](g.meta, name); col != nil {
		return col.CView()[0]
	}
	return def
}

// MetaUint reads a uint64 meta attribute, returning def when absent.
func (g *Geometry) MetaUint(name string, def uint64) uint64 {
	if col := Lookup[uint64](g.meta, name); col != nil {
		return col.CView()[0]
	}
	return def
}

// SetMeta writes a meta attribute, creating it when absent.
func SetMeta[T any](g *Geometry, name string, v T) error {
	col, err := FindOrCreate(g.meta, name, v)
	if err != nil {
		return err
	}
	col.View()[0] = v
	return nil
}

// Clone deep copies the geometry and all of its attributes.
func (g *Geometry) Clone() *Geometry {
	out := &Geometry{
		typ:        g.typ,
		dim:        g.dim,
		vertices:   g.vertices.clone(),
		edges:      g.edges.clone(),
		triangles:  g.triangles.clone(),
		tetrahedra: g.tetrahedra.clone(),
		instances:  g.instances.clone(),
		meta:       g.meta.clone(),
		custom:     make(map[string]*Collection, len(g.custom)),
	}
	for name, c := range g.custom {
		out.custom[name] = c.clone()
	}
	return out
}

// ClearDirty resets the dirty flag of every attribute in every domain.
func (g *Geometry) ClearDirty() {
	for _, c := range g.collections() {
		c.ClearDirty()
	}
}

func (g *Geometry) collections() []*Collection {
	out := []*Collection{g.vertices, g.edges, g.triangles, g.tetrahedra, g.instances, g.meta}
	names := make([]string, 0, len(g.custom))
	for name := range g.custom {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		out = append(out, g.custom[name])
	}
	return out
}

// Shape summarises cardinality and connectivity. Two shapes compare equal
// iff no domain was resized and no topology was rewritten.
type Shape struct {
	Counts   [6]int
	Custom   string
	TopoHash uint64
}

func (g *Geometry) Shape() Shape {
	s := Shape{Counts: [6]int{
		g.vertices.Size(), g.edges.Size(), g.triangles.Size(),
		g.tetrahedra.Size(), g.instances.Size(), g.meta.Size(),
	}}

	h := fnv.New64a()
	put := func(v int) {
		var b [8]byte
		for i := range b {
			b[i] = byte(uint64(v) >> (8 * i))
		}
		h.Write(b[:])
	}
	if col := g.EdgeTopo(); col != nil {
		for _, e := range col.CView() {
			put(e[0])
			put(e[1])
		}
	}
	if col := g.TriangleTopo(); col != nil {
		for _, f := range col.CView() {
			put(f[0])
			put(f[1])
			put(f[2])
		}
	}
	if col := g.TetTopo(); col != nil {
		for _, t := range col.CView() {
			put(t[0])
			put(t[1])
			put(t[2])
			put(t[3])
		}
	}
	s.TopoHash = h.Sum64()

	for _, c := range g.collections()[6:] {
		s.Custom += fmt.Sprintf("%s:%d;", c.Name(), c.Size())
	}
	return s
}

// WorldPositions returns vertex positions of instance i in world space.
func (g *Geometry) WorldPositions(i int) []mgl64.Vec3 {
	pos := g.Positions()
	if pos == nil {
		return nil
	}
	tf := mgl64.Ident4()
	if ts := g.Transforms(); ts != nil && i < ts.Len() {
		tf = ts.CView()[i]
	}
	src := pos.CView()
	out := make([]mgl64.Vec3, len(src))
	for k, p := range src {
		out[k] = mgl64.TransformCoordinate(p, tf)
	}
	return out
}

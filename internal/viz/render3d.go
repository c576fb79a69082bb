package viz

import (
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/ipcsim/internal/geometry"
	"github.com/san-kum/ipcsim/internal/scene"
)

// Camera orbits a target point at a fixed distance.
type Camera struct {
	Target     mgl64.Vec3
	Yaw, Pitch float64
	Distance   float64
	FOV        float64
	Zoom       float64
}

func NewCamera() *Camera {
	return &Camera{Yaw: 0.6, Pitch: 0.35, Distance: 6, FOV: math.Pi / 4, Zoom: 1}
}

func (c *Camera) Orbit(yaw, pitch float64) {
	c.Yaw += yaw
	c.Pitch = math.Max(-1.5, math.Min(1.5, c.Pitch+pitch))
}

func (c *Camera) ZoomIn()  { c.Zoom = math.Min(10, c.Zoom*1.2) }
func (c *Camera) ZoomOut() { c.Zoom = math.Max(0.1, c.Zoom/1.2) }

// Eye is the camera position in world space.
func (c *Camera) Eye() mgl64.Vec3 {
	d := c.Distance / c.Zoom
	cp := math.Cos(c.Pitch)
	return c.Target.Add(mgl64.Vec3{d * cp * math.Sin(c.Yaw), d * math.Sin(c.Pitch), d * cp * math.Cos(c.Yaw)})
}

// Fit aims the camera at the centre of lo..hi and backs off until the box
// fills the view.
func (c *Camera) Fit(lo, hi mgl64.Vec3) {
	c.Target = lo.Add(hi).Mul(0.5)
	r := math.Max(hi.Sub(lo).Len()/2, 0.1)
	c.Distance = 1.2 * r / math.Tan(c.FOV/2)
	c.Zoom = 1
}

func (c *Camera) viewProjection(sw, sh int) mgl64.Mat4 {
	view := mgl64.LookAtV(c.Eye(), c.Target, mgl64.Vec3{0, 1, 0})
	proj := mgl64.Perspective(c.FOV, float64(sw)/float64(sh), 0.01, 1e4)
	return proj.Mul4(view)
}

func project(vp mgl64.Mat4, p mgl64.Vec3, sw, sh int) (x, y int, depth float64, ok bool) {
	clip := vp.Mul4x1(p.Vec4(1))
	if clip.W() <= 1e-9 {
		return 0, 0, 0, false
	}
	ndc := clip.Vec3().Mul(1 / clip.W())
	x = int(math.Round((ndc.X() + 1) / 2 * float64(sw-1)))
	y = int(math.Round((1 - ndc.Y()) / 2 * float64(sh-1)))
	return x, y, ndc.Z(), x >= 0 && x < sw && y >= 0 && y < sh
}

// Project maps a world point onto an sw x sh dot grid. ok is false for
// points behind the camera or off screen.
func (c *Camera) Project(p mgl64.Vec3, sw, sh int) (x, y int, depth float64, ok bool) {
	return project(c.viewProjection(sw, sh), p, sw, sh)
}

type Edge struct {
	Start, End mgl64.Vec3
}

type Wireframe struct{ Edges []Edge }

func NewWireframe() *Wireframe               { return &Wireframe{} }
func (w *Wireframe) AddEdge(s, e mgl64.Vec3) { w.Edges = append(w.Edges, Edge{s, e}) }
func (w *Wireframe) AddPoint(p mgl64.Vec3)   { w.Edges = append(w.Edges, Edge{p, p}) }
func (w *Wireframe) Clear()                  { w.Edges = w.Edges[:0] }

// Bounds returns the axis aligned box around every edge end. ok is false
// for an empty wireframe.
func (w *Wireframe) Bounds() (lo, hi mgl64.Vec3, ok bool) {
	if len(w.Edges) == 0 {
		return lo, hi, false
	}
	lo, hi = w.Edges[0].Start, w.Edges[0].Start
	for _, e := range w.Edges {
		for _, p := range [2]mgl64.Vec3{e.Start, e.End} {
			for k := 0; k < 3; k++ {
				lo[k] = math.Min(lo[k], p[k])
				hi[k] = math.Max(hi[k], p[k])
			}
		}
	}
	return lo, hi, true
}

type projectedEdge struct {
	x1, y1, x2, y2 int
	depth          float64
}

// Render3D draws the wireframe far to near. Edges with one end off screen
// are still drawn; the canvas clips them.
func Render3D(c *Canvas, w *Wireframe, cam *Camera) {
	if c == nil || w == nil || cam == nil {
		return
	}
	sw, sh := c.DotsWide(), c.DotsHigh()
	vp := cam.viewProjection(sw, sh)
	proj := make([]projectedEdge, 0, len(w.Edges))
	for _, e := range w.Edges {
		x1, y1, d1, v1 := project(vp, e.Start, sw, sh)
		x2, y2, d2, v2 := project(vp, e.End, sw, sh)
		if v1 || v2 {
			proj = append(proj, projectedEdge{x1, y1, x2, y2, (d1 + d2) / 2})
		}
	}
	sort.Slice(proj, func(i, j int) bool { return proj[i].depth > proj[j].depth })
	for _, e := range proj {
		if e.x1 == e.x2 && e.y1 == e.y2 {
			c.Set(e.x1, e.y1)
		} else {
			c.DrawLine(e.x1, e.y1, e.x2, e.y2)
		}
	}
}

// SceneWireframe collects the world space surface edges of every geometry
// in the scene. Point clouds contribute their vertices and implicit
// half spaces a grid patch under the rest of the scene.
func SceneWireframe(s *scene.Scene) *Wireframe {
	w := NewWireframe()
	var planes []*geometry.Geometry
	for _, slot := range s.Slots() {
		g := slot.Geometry()
		if g.Type() == geometry.ImplicitGeometry {
			planes = append(planes, g)
			continue
		}
		addGeometry(w, g)
	}
	if len(planes) == 0 {
		return w
	}
	lo, hi, ok := w.Bounds()
	if !ok {
		lo, hi = mgl64.Vec3{-1, -1, -1}, mgl64.Vec3{1, 1, 1}
	}
	for _, g := range planes {
		if n, p, ok := g.HalfPlane(); ok {
			addPlane(w, n, p, lo, hi)
		}
	}
	return w
}

func addGeometry(w *Wireframe, g *geometry.Geometry) {
	edges := wireEdges(g)
	for inst := 0; inst < g.Instances().Size(); inst++ {
		pos := g.WorldPositions(inst)
		if len(edges) == 0 {
			for _, p := range pos {
				w.AddPoint(p)
			}
			continue
		}
		for _, e := range edges {
			w.AddEdge(pos[e[0]], pos[e[1]])
		}
	}
}

// wireEdges prefers labelled surface edges and falls back to the edges of
// triangles, then tetrahedra.
func wireEdges(g *geometry.Geometry) [][2]int {
	if topo := g.EdgeTopo(); topo != nil && g.Edges().Size() > 0 {
		all := topo.CView()
		surf := g.SurfaceEdges()
		out := make([][2]int, len(surf))
		for i, e := range surf {
			out[i] = all[e]
		}
		return out
	}
	seen := make(map[[2]int]bool)
	var out [][2]int
	add := func(a, b int) {
		if a > b {
			a, b = b, a
		}
		if k := [2]int{a, b}; !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	if topo := g.TriangleTopo(); topo != nil && g.Triangles().Size() > 0 {
		for _, t := range topo.CView() {
			add(t[0], t[1])
			add(t[1], t[2])
			add(t[2], t[0])
		}
		return out
	}
	if topo := g.TetTopo(); topo != nil {
		for _, t := range topo.CView() {
			for i := 0; i < 4; i++ {
				for j := i + 1; j < 4; j++ {
					add(t[i], t[j])
				}
			}
		}
	}
	return out
}

const planeLines = 8

func addPlane(w *Wireframe, n, p, lo, hi mgl64.Vec3) {
	centre := lo.Add(hi).Mul(0.5)
	centre = centre.Sub(n.Mul(centre.Sub(p).Dot(n)))
	size := math.Max(hi.Sub(lo).Len(), 1)

	ref := mgl64.Vec3{1, 0, 0}
	if math.Abs(n.Dot(ref)) > 0.9 {
		ref = mgl64.Vec3{0, 0, 1}
	}
	u := n.Cross(ref).Normalize().Mul(size / 2)
	v := n.Cross(u).Normalize().Mul(size / 2)
	for k := 0; k <= planeLines; k++ {
		t := 2*float64(k)/planeLines - 1
		w.AddEdge(centre.Add(u.Mul(t)).Sub(v), centre.Add(u.Mul(t)).Add(v))
		w.AddEdge(centre.Add(v.Mul(t)).Sub(u), centre.Add(v.Mul(t)).Add(u))
	}
}

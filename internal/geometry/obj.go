package geometry

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// WriteSurfaceOBJ writes the world-space surface of every instance of every
// geometry as one Wavefront OBJ stream. Triangles become faces and
// surface edges of line meshes become polylines.
func WriteSurfaceOBJ(w io.Writer, geos ...*Geometry) error {
	bw := bufio.NewWriter(w)
	base := 1

	ff := func(x float64) string { return strconv.FormatFloat(x, 'g', 10, 64) }

	for gi, g := range geos {
		if g.typ != SimplicialComplex || g.Positions() == nil {
			continue
		}
		for inst := 0; inst < g.instances.Size(); inst++ {
			fmt.Fprintf(bw, "o geo%d_inst%d\n", gi, inst)
			pos := g.WorldPositions(inst)
			for _, p := range pos {
				fmt.Fprintf(bw, "v %s %s %s\n", ff(p[0]), ff(p[1]), ff(p[2]))
			}
			if tris := g.TriangleTopo(); tris != nil {
				tv := tris.CView()
				for _, i := range g.SurfaceTriangles() {
					f := tv[i]
					fmt.Fprintf(bw, "f %d %d %d\n", f[0]+base, f[1]+base, f[2]+base)
				}
			}
			if edges := g.EdgeTopo(); edges != nil && g.dim == 1 {
				for _, e := range edges.CView() {
					fmt.Fprintf(bw, "l %d %d\n", e[0]+base, e[1]+base)
				}
			}
			base += len(pos)
		}
	}
	return bw.Flush()
}

package geometry

import "math"

// ComputeMeshDHat estimates a contact distance from mesh resolution: the
// mean surface edge length in world space, capped at maxDHat. The result is
// written to the d_hat meta attribute and returned.
func ComputeMeshDHat(g *Geometry, maxDHat float64) float64 {
	edges := g.EdgeTopo()
	if edges == nil || edges.Len() == 0 || g.Positions() == nil {
		_ = SetMeta(g, DHat, maxDHat)
		return maxDHat
	}

	p := g.WorldPositions(0)
	ev := edges.CView()
	sum, n := 0.0, 0
	for _, i := range g.SurfaceEdges() {
		e := ev[i]
		sum += p[e[0]].Sub(p[e[1]]).Len()
		n++
	}

	d := maxDHat
	if n > 0 {
		d = math.Min(maxDHat, sum/float64(n))
	}
	_ = SetMeta(g, DHat, d)
	return d
}

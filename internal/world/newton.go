package world

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/ipcsim/internal/collision"
	"github.com/san-kum/ipcsim/internal/dynamo"
	"github.com/san-kum/ipcsim/internal/linsys"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	armijo = 1e-4
	// Extra halvings allowed past the Armijo budget while the trial energy
	// is not finite.
	maxRescue = 50
)

// evaluate returns the incremental potential at q, scattering derivatives
// into a when it is non-nil.
func (w *World) evaluate(ctx context.Context, q []float64, a *assembler) (float64, []collision.Contact, error) {
	e := w.inertia(q, a) + w.elastic(q, a) + w.constraints(q, a)
	if !w.contactEnabled() {
		return e, nil, nil
	}
	x := w.positions(q)
	contacts, err := w.detect(ctx, x)
	if err != nil {
		return 0, nil, err
	}
	e += w.barrier(x, contacts, a)
	e += w.friction(q, a)
	return e, contacts, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (w *World) stepError(it int, phase Phase, err error) error {
	return &dynamo.StepError{Frame: w.frame + 1, Iterations: it, Phase: phase.String(), Wrapped: err}
}

// newton minimises the incremental potential from q_n and returns the
// minimiser. The world state is untouched.
func (w *World) newton(ctx context.Context, rep *FrameReport) ([]float64, error) {
	l, f, cfg := w.lay, w.cur, w.cfg
	q := append([]float64(nil), f.qn...)
	if l.nsys == 0 {
		rep.Converged = true
		return q, nil
	}

	for it := 0; ; it++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if it >= cfg.Newton.MaxIter {
			w.setPhase(Diverged)
			return nil, w.stepError(it, Diverged, fmt.Errorf("no convergence in %d iterations: %w", it, dynamo.ErrDiverged))
		}

		w.setPhase(Assembling)
		ictx, span := w.tracer.Start(ctx, "newton.iteration", trace.WithAttributes(attribute.Int("iteration", it)))
		asm := newAssembler(l.free, l.nsys, true)
		e, contacts, err := w.evaluate(ictx, q, asm)
		if err != nil {
			span.End()
			return nil, err
		}
		if !finite(e) {
			span.End()
			w.setPhase(Diverged)
			return nil, w.stepError(it, Assembling, fmt.Errorf("energy %v at iterate: %w", e, dynamo.ErrDiverged))
		}
		rep.Iterations = it + 1
		rep.Energy = e
		rep.Contacts = len(contacts)
		rep.MinGap = minGap(contacts)

		p, gp, err := w.direction(asm, rep)
		if err != nil {
			span.End()
			return nil, err
		}
		vmax, trans := w.stepSize(p)
		if it >= cfg.Newton.MinIter && vmax/f.dt < cfg.Newton.VelocityTol && trans/f.dt < cfg.Newton.TransrateTol {
			span.End()
			rep.Converged = true
			w.logger.Debug("newton converged", "frame", w.frame+1, "iterations", it, "energy", e)
			return q, nil
		}

		w.setPhase(LineSearch)
		alpha, ls, err := w.lineSearch(ictx, q, p, e, gp)
		rep.LineSearch += ls
		if err != nil {
			span.End()
			w.setPhase(Diverged)
			return nil, w.stepError(it, LineSearch, err)
		}
		for i := range q {
			q[i] += alpha * p[i]
		}
		span.SetAttributes(attribute.Float64("energy", e), attribute.Float64("alpha", alpha))
		span.End()
		w.logger.Debug("newton iteration", "frame", w.frame+1, "iteration", it, "energy", e, "alpha", alpha, "step", vmax)
	}
}

// direction solves H p = -g over the free dofs and scatters p back to q
// numbering. It falls back to steepest descent when the solve does not
// yield a descent direction.
func (w *World) direction(asm *assembler, rep *FrameReport) ([]float64, float64, error) {
	l := w.lay
	rhs := make([]float64, l.nsys)
	for d, s := range l.free {
		if s >= 0 {
			rhs[s] = -asm.grad[d]
		}
	}
	a := asm.hess.CSR()
	pre := linsys.NewBlockJacobi(a, l.blocks)
	maxIter := max(100, 2*l.nsys)
	sol, res, err := linsys.PCG(w.engine.backend, a, rhs, pre, w.cfg.LinearSystem.TolRate, maxIter)
	if err != nil && !errors.Is(err, linsys.ErrNotConverged) {
		return nil, 0, err
	}
	if err != nil {
		w.logger.Debug("pcg stopped early", "iterations", res.Iterations, "residual", res.Residual)
	}
	rep.PCGIters += res.Iterations
	rep.Residual = res.Residual

	gp := 0.0
	for i := range sol {
		gp -= rhs[i] * sol[i]
	}
	if gp >= 0 || !finite(gp) {
		copy(sol, rhs)
		gp = 0
		for _, r := range rhs {
			gp -= r * r
		}
	}
	p := make([]float64, len(l.free))
	for d, s := range l.free {
		if s >= 0 {
			p[d] = sol[s]
		}
	}
	return p, gp, nil
}

// stepSize returns the largest vertex displacement of step p and the
// largest change of any affine matrix entry.
func (w *World) stepSize(p []float64) (float64, float64) {
	vmax, trans := 0.0, 0.0
	for i := range w.lay.verts {
		vmax = math.Max(vmax, w.lay.verts[i].anchor.pos(p).Len())
	}
	for _, fg := range w.lay.fems {
		for i := 0; i < fg.n; i++ {
			vmax = math.Max(vmax, vec(p, fg.vertex(i)).Len())
		}
	}
	for _, b := range w.lay.bodies {
		vmax = math.Max(vmax, vec(p, b.off).Len())
		for k := 3; k < 12; k++ {
			trans = math.Max(trans, math.Abs(p[b.off+k]))
		}
	}
	return vmax, trans
}

// lineSearch bounds the step by CCD and backtracks from there.
func (w *World) lineSearch(ctx context.Context, q, p []float64, e0, gp float64) (float64, int, error) {
	ctx, span := w.tracer.Start(ctx, "newton.line_search")
	defer span.End()

	alpha := 1.0
	if w.contactEnabled() {
		toi, err := w.detector.MaxStep(ctx, &w.lay.mesh, w.positions(q), w.positions(p))
		if err != nil {
			return 0, 0, err
		}
		alpha = math.Min(1, w.cfg.Newton.CCDTol*toi)
	}
	if alpha <= 0 {
		return 0, 0, fmt.Errorf("continuous collision detection admits no step: %w", dynamo.ErrDiverged)
	}

	trial := make([]float64, len(q))
	res, err := backtrack(e0, gp, alpha, max(1, w.cfg.LineSearch.MaxIter), func(alpha float64) (float64, error) {
		for i := range q {
			trial[i] = q[i] + alpha*p[i]
		}
		e, _, err := w.evaluate(ctx, trial, nil)
		if err == nil && w.cfg.LineSearch.ReportEnergy {
			w.logger.Debug("line search", "alpha", alpha, "energy", e, "e0", e0)
		}
		return e, err
	})
	if err != nil {
		return 0, res.steps, err
	}
	if !res.armijo && res.energy > e0 {
		w.logger.Warn("line search accepted an energy increase",
			"frame", w.frame+1, "alpha", res.alpha, "energy", res.energy, "e0", e0)
	}
	span.SetAttributes(
		attribute.Float64("alpha", res.alpha),
		attribute.Int("steps", res.steps),
		attribute.Bool("armijo", res.armijo),
	)
	return res.alpha, res.steps, nil
}

type searchResult struct {
	alpha  float64
	energy float64
	steps  int
	armijo bool
}

// backtrack halves alpha until energy(alpha) meets the Armijo condition.
// Once budget trials are spent it returns the lowest finite energy seen;
// it keeps halving past the budget, up to maxRescue more times, only
// while no trial has been finite.
func backtrack(e0, gp, alpha float64, budget int, energy func(alpha float64) (float64, error)) (searchResult, error) {
	var best searchResult
	found := false
	steps := 0
	for ; steps < budget+maxRescue; steps++ {
		e, err := energy(alpha)
		if err != nil {
			return searchResult{steps: steps}, err
		}
		if finite(e) {
			if e <= e0+armijo*alpha*gp {
				return searchResult{alpha: alpha, energy: e, steps: steps + 1, armijo: true}, nil
			}
			if !found || e < best.energy {
				best = searchResult{alpha: alpha, energy: e}
				found = true
			}
		}
		if found && steps+1 >= budget {
			best.steps = steps + 1
			return best, nil
		}
		alpha /= 2
	}
	return searchResult{steps: steps}, fmt.Errorf("no finite energy along the search direction: %w", dynamo.ErrDiverged)
}

func minGap(contacts []collision.Contact) float64 {
	if len(contacts) == 0 {
		return 0
	}
	m := math.Inf(1)
	for _, c := range contacts {
		m = math.Min(m, c.Gap)
	}
	return m
}

// Package world advances a scene through time with an incremental
// potential contact solver: one Newton solve per frame over affine body
// and finite element coordinates, with CCD-filtered line search.
package world

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/san-kum/ipcsim/internal/checkpoint"
	"github.com/san-kum/ipcsim/internal/collision"
	"github.com/san-kum/ipcsim/internal/config"
	"github.com/san-kum/ipcsim/internal/constitution"
	"github.com/san-kum/ipcsim/internal/dynamo"
	"github.com/san-kum/ipcsim/internal/geometry"
	"github.com/san-kum/ipcsim/internal/scene"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type World struct {
	engine *Engine
	logger *slog.Logger
	tracer trace.Tracer

	scene    *scene.Scene
	cfg      *config.Config
	lay      *layout
	detector *collision.Detector
	cur      *frame

	frame int
	time  float64
	dt    float64
	phase Phase

	report    FrameReport
	observers []Observer

	// runID scopes this world's rows in the shared checkpoint database.
	runID  string
	memory *checkpoint.Memory
	store  checkpoint.Store

	sanity   *SanityChecker
	features Features
}

func New(engine *Engine) *World {
	w := &World{
		engine: engine,
		logger: engine.logger,
		tracer: engine.tracer,
		runID:  uuid.NewString(),
		memory: checkpoint.NewMemory(),
	}
	w.sanity = &SanityChecker{w: w}
	return w
}

func (w *World) AddObserver(o Observer) { w.observers = append(w.observers, o) }

func (w *World) Frame() int                    { return w.frame }
func (w *World) Time() float64                 { return w.time }
func (w *World) Dt() float64                   { return w.dt }
func (w *World) Phase() Phase                  { return w.phase }
func (w *World) LastReport() FrameReport       { return w.report }
func (w *World) Features() Features            { return w.features }
func (w *World) SanityChecker() *SanityChecker { return w.sanity }
func (w *World) Initialized() bool             { return w.lay != nil }
func (w *World) RunID() string                 { return w.runID }

func (w *World) setPhase(p Phase) {
	if w.phase != p {
		w.logger.Debug("phase", "frame", w.frame+1, "from", w.phase.String(), "to", p.String())
	}
	w.phase = p
}

// Init validates and locks the scene configuration, lays out the
// coordinates and, when enabled, rejects a scene that fails the sanity
// check.
func (w *World) Init(s *scene.Scene) error {
	if w.lay != nil {
		return fmt.Errorf("world already initialized: %w", dynamo.ErrInvalidConfig)
	}
	cfg := s.Config()
	if err := cfg.Validate(); err != nil {
		return err
	}
	det, err := collision.NewDetector(cfg.CollisionDetection.Method)
	if err != nil {
		return fmt.Errorf("collision detection: %w", err)
	}
	lay, err := buildLayout(s, w.logger)
	if err != nil {
		return err
	}
	cfg.Lock()
	s.Lock()

	// w.cfg is a locked copy; field writes on the scene's config after
	// Init do not reach the solver.
	frozen := cfg.Clone()
	frozen.Lock()
	w.scene, w.cfg, w.lay, w.detector = s, frozen, lay, det
	w.dt = cfg.Dt
	w.frame, w.time = 0, 0
	w.phase = Idle
	w.features = Features{}
	if len(lay.bodies) > 0 {
		w.features.AffineBodyState = &AffineBodyStateAccessor{w: w}
	}
	if len(lay.fems) > 0 {
		w.features.FiniteElementState = &FiniteElementStateAccessor{w: w}
	}
	w.writeBack()

	w.logger.Info("world initialized",
		"affine_bodies", len(lay.bodies),
		"fem_geometries", len(lay.fems),
		"run", w.runID,
		"dofs", len(lay.q),
		"free_dofs", lay.nsys,
		"collision_vertices", len(lay.verts),
		"planes", len(lay.mesh.Planes),
		"backend", w.engine.backend.Name())

	if cfg.SanityCheck.Enable {
		if res := w.sanity.Check(); res == Error {
			w.sanity.Report()
			w.lay = nil
			return w.sanity.Err()
		}
	}
	return nil
}

type advanceOptions struct {
	dt float64
}

type AdvanceOption func(*advanceOptions)

// WithTimeStep overrides the configured step for one Advance call.
func WithTimeStep(dt float64) AdvanceOption {
	return func(o *advanceOptions) { o.dt = dt }
}

// StepOf resolves the step a set of options selects, starting from def.
func StepOf(def float64, opts ...AdvanceOption) float64 {
	o := advanceOptions{dt: def}
	for _, opt := range opts {
		opt(&o)
	}
	return o.dt
}

// Advance runs the animator, solves one frame and commits it. When the
// solve fails nothing is committed and the frame index is unchanged. In
// strict mode the sanity check runs on the committed frame, so a failed
// check returns ErrSanityCheckFailed with the frame already advanced; the
// caller can Recover an earlier dump.
func (w *World) Advance(ctx context.Context, opts ...AdvanceOption) error {
	if w.lay == nil {
		return dynamo.ErrNotInitialized
	}
	o := advanceOptions{dt: StepOf(w.dt, opts...)}
	if o.dt <= 0 {
		return fmt.Errorf("time step %v: %w", o.dt, dynamo.ErrInvalidConfig)
	}

	ctx, span := w.tracer.Start(ctx, "world.Advance", trace.WithAttributes(
		attribute.Int("frame", w.frame+1),
		attribute.Float64("dt", o.dt),
	))
	defer span.End()
	start := time.Now()

	err := w.advance(ctx, o.dt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if w.phase != Diverged {
			w.setPhase(Idle)
		}
		w.logger.Warn("advance failed", "frame", w.frame+1, "err", err)
		return err
	}
	w.report.Duration = time.Since(start)
	span.SetAttributes(
		attribute.Int("iterations", w.report.Iterations),
		attribute.Int("contacts", w.report.Contacts),
	)
	for _, obs := range w.observers {
		obs.OnFrame(w.report)
	}
	if w.cfg.Extras.StrictMode.Enable {
		if res := w.sanity.Check(); res == Error {
			w.sanity.Report()
			return w.sanity.Err()
		}
	}
	return nil
}

func (w *World) advance(ctx context.Context, dt float64) error {
	w.writeBack()
	if err := w.scene.Animator().Step(w.frame+1, dt); err != nil {
		return err
	}
	if err := w.syncAttributes(); err != nil {
		return err
	}

	w.setPhase(Predicting)
	w.cur = w.predict(dt)
	for _, j := range w.lay.joints {
		j.lag(w.cur.qn)
	}
	for _, a := range w.lay.artics {
		a.linearize(w.cur.qn)
	}
	if err := w.lagFriction(ctx, w.cur.qn); err != nil {
		return err
	}

	rep := FrameReport{Frame: w.frame + 1, Dt: dt}
	q, err := w.newton(ctx, &rep)
	if err != nil {
		return err
	}
	w.setPhase(Converged)

	l := w.lay
	maxV := 0.0
	for i := range q {
		l.v[i] = (q[i] - w.cur.qn[i]) / dt
		maxV = math.Max(maxV, math.Abs(l.v[i]))
	}
	copy(l.q, q)
	w.frame++
	w.time += dt
	rep.Time = w.time
	rep.MaxVelocity = maxV
	w.report = rep
	w.setPhase(Committed)
	w.logger.Info("frame committed",
		"frame", w.frame,
		"iterations", rep.Iterations,
		"contacts", rep.Contacts,
		"energy", rep.Energy)

	if w.cfg.Extras.Debug.DumpSurface {
		path := filepath.Join(w.engine.workspace, fmt.Sprintf("surface_%05d.obj", w.frame))
		if err := w.WriteSurface(path); err != nil {
			w.logger.Warn("dump surface", "path", path, "err", err)
		}
	}
	return nil
}

// Retrieve writes the current state into the scene geometries: transforms
// and velocities of affine instances, positions and velocities of finite
// element vertices.
func (w *World) Retrieve() error {
	if w.lay == nil {
		return dynamo.ErrNotInitialized
	}
	w.writeBack()
	return nil
}

func velocityMatrix(v []float64) mgl64.Mat4 {
	m := constitution.QToTransform(v)
	m.Set(3, 3, 0)
	return m
}

func (w *World) writeBack() {
	l := w.lay
	for _, b := range l.bodies {
		g := b.slot.Geometry()
		g.Transforms().View()[b.inst] = constitution.QToTransform(l.q[b.off : b.off+12])
		if vel := geometry.Lookup[mgl64.Mat4](g.Instances(), geometry.Velocity); vel != nil {
			vel.View()[b.inst] = velocityMatrix(l.v[b.off : b.off+12])
		}
	}
	for _, f := range l.fems {
		g := f.slot.Geometry()
		pos := g.Positions().View()
		for i := 0; i < f.n; i++ {
			pos[i] = vec(l.q, f.vertex(i))
		}
		if vel := geometry.Lookup[mgl64.Vec3](g.Vertices(), geometry.Velocity); vel != nil {
			vv := vel.View()
			for i := 0; i < f.n; i++ {
				vv[i] = vec(l.v, f.vertex(i))
			}
		}
	}
}

// WriteSurface writes the current surfaces of every simulated geometry
// to an OBJ file.
func (w *World) WriteSurface(path string) error {
	if w.lay == nil {
		return dynamo.ErrNotInitialized
	}
	w.writeBack()
	var geos []*geometry.Geometry
	seen := make(map[*geometry.Slot]bool)
	for _, b := range w.lay.bodies {
		if !seen[b.slot] {
			seen[b.slot] = true
			geos = append(geos, b.slot.Geometry())
		}
	}
	for _, f := range w.lay.fems {
		geos = append(geos, f.slot.Geometry())
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := geometry.WriteSurfaceOBJ(file, geos...); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Close releases the checkpoint database, if one was opened.
func (w *World) Close() error {
	if w.store == nil {
		return nil
	}
	err := w.store.Close()
	w.store = nil
	return err
}

package world_test

import (
	"context"
	"errors"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/san-kum/ipcsim/internal/dynamo"
	"github.com/san-kum/ipcsim/internal/geometry"
	"github.com/san-kum/ipcsim/internal/scene"
	"github.com/san-kum/ipcsim/internal/world"
)

var _ = Describe("Engine", func() {
	It("rejects unknown backends", func() {
		_, err := world.NewEngine("quantum", GinkgoT().TempDir())
		Expect(err).To(MatchError(dynamo.ErrInvalidConfig))
	})

	It("creates the workspace", func() {
		e := newEngine()
		Expect(e.Workspace()).To(BeADirectory())
		Expect(e.Backend().Name()).NotTo(BeEmpty())
	})
})

var _ = Describe("World", func() {
	var (
		ctx context.Context
		s   *scene.Scene
		w   *world.World
	)

	BeforeEach(func() {
		ctx = context.Background()
		s = scene.New(newConfig())
		w = world.New(newEngine())
		DeferCleanup(func() { Expect(w.Close()).To(Succeed()) })
	})

	It("refuses to advance before Init", func() {
		Expect(w.Advance(ctx)).To(MatchError(dynamo.ErrNotInitialized))
		Expect(w.Retrieve()).To(MatchError(dynamo.ErrNotInitialized))
	})

	It("refuses a second Init", func() {
		Expect(w.Init(s)).To(Succeed())
		Expect(w.Init(s)).To(MatchError(dynamo.ErrInvalidConfig))
	})

	Context("with a falling cube", func() {
		var slot *geometry.Slot

		BeforeEach(func() {
			var err error
			slot, err = s.Objects().Create("cube").Geometries().Create(affineCube(0.2, mgl64.Vec3{0, 1, 0}))
			Expect(err).NotTo(HaveOccurred())
			Expect(w.Init(s)).To(Succeed())
		})

		It("locks the scene", func() {
			Expect(s.IsLocked()).To(BeTrue())
			Expect(s.Config().IsLocked()).To(BeTrue())
		})

		It("accelerates under gravity", func() {
			g := slot.Geometry()
			prevY := translation(g, 0)[1]
			prevV := 0.0
			for i := 0; i < 5; i++ {
				Expect(w.Advance(ctx)).To(Succeed())
				Expect(w.Retrieve()).To(Succeed())
				rep := w.LastReport()
				Expect(rep.Converged).To(BeTrue())
				Expect(rep.Frame).To(Equal(i + 1))

				y := translation(g, 0)[1]
				vel := geometry.Lookup[mgl64.Mat4](g.Instances(), geometry.Velocity).CView()[0].At(1, 3)
				Expect(y).To(BeNumerically("<", prevY))
				Expect(vel).To(BeNumerically("<", prevV))
				prevY, prevV = y, vel
			}
			Expect(w.Frame()).To(Equal(5))
			Expect(w.Time()).To(BeNumerically("~", 0.05, 1e-12))
			Expect(w.Phase()).To(Equal(world.Committed))
			Expect(prevV).To(BeNumerically("~", -5*9.8*0.01, 1e-3))
		})

		It("keeps the body rigid in free flight", func() {
			for i := 0; i < 3; i++ {
				Expect(w.Advance(ctx)).To(Succeed())
			}
			Expect(w.Retrieve()).To(Succeed())
			tf := slot.Geometry().Transforms().CView()[0]
			Expect(tf.Mat3().Det()).To(BeNumerically("~", 1, 1e-6))
		})

		It("honours a per-call time step", func() {
			Expect(w.Advance(ctx, world.WithTimeStep(0.005))).To(Succeed())
			Expect(w.LastReport().Dt).To(Equal(0.005))
			Expect(w.Time()).To(BeNumerically("~", 0.005, 1e-12))
			Expect(w.Advance(ctx, world.WithTimeStep(-1))).To(MatchError(dynamo.ErrInvalidConfig))
		})

		It("is idempotent on Retrieve", func() {
			Expect(w.Advance(ctx)).To(Succeed())
			Expect(w.Retrieve()).To(Succeed())
			first := slot.Geometry().Transforms().CView()[0]
			Expect(w.Retrieve()).To(Succeed())
			Expect(slot.Geometry().Transforms().CView()[0]).To(Equal(first))
		})

		It("does not commit a cancelled frame", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()
			err := w.Advance(cancelled)
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
			Expect(w.Frame()).To(Equal(0))
			Expect(w.Phase()).To(Equal(world.Idle))
		})

		It("notifies observers", func() {
			var frames []int
			w.AddObserver(world.ObserverFunc(func(r world.FrameReport) { frames = append(frames, r.Frame) }))
			Expect(w.Advance(ctx)).To(Succeed())
			Expect(w.Advance(ctx)).To(Succeed())
			Expect(frames).To(Equal([]int{1, 2}))
		})

		It("exposes the affine accessor only", func() {
			f := w.Features()
			Expect(f.AffineBodyState).NotTo(BeNil())
			Expect(f.FiniteElementState).To(BeNil())
			Expect(f.AffineBodyState.Count()).To(Equal(1))
		})

		It("round trips state through the accessor", func() {
			acc := w.Features().AffineBodyState
			geo := acc.CreateGeometry()
			Expect(geo.Instances().Has(geometry.Transform)).To(BeFalse())
			tf, err := geometry.Create(geo.Instances(), geometry.Transform, mgl64.Ident4())
			Expect(err).NotTo(HaveOccurred())

			Expect(acc.CopyTo(geo)).To(Succeed())
			tf.View()[0] = mgl64.Translate3D(0, 2, 0)
			Expect(acc.CopyFrom(geo)).To(Succeed())

			back := acc.CreateGeometry()
			col, err := geometry.Create(back.Instances(), geometry.Transform, mgl64.Ident4())
			Expect(err).NotTo(HaveOccurred())
			Expect(acc.CopyTo(back)).To(Succeed())
			Expect(col.CView()[0]).To(Equal(mgl64.Translate3D(0, 2, 0)))

			Expect(w.Retrieve()).To(Succeed())
			Expect(translation(slot.Geometry(), 0)).To(Equal(mgl64.Vec3{0, 2, 0}))

			Expect(geo.Instances().Resize(2)).To(Succeed())
			Expect(acc.CopyFrom(geo)).To(MatchError(dynamo.ErrShapeMismatch))
		})

		It("writes the surface as OBJ", func() {
			path := GinkgoT().TempDir() + "/cube.obj"
			Expect(w.WriteSurface(path)).To(Succeed())
			Expect(path).To(BeAnExistingFile())
		})
	})

	Context("on the ground", func() {
		var cube *geometry.Slot

		build := func(separate bool) {
			g := affineCube(0.2, mgl64.Vec3{0, 0.15, 0})
			if separate {
				Expect(s.SubsceneTabular().Create("falling").ApplyTo(g)).To(Succeed())
			}
			var err error
			cube, err = s.Objects().Create("cube").Geometries().Create(g)
			Expect(err).NotTo(HaveOccurred())
			addGround(s)
			Expect(w.Init(s)).To(Succeed())
		}

		It("comes to rest above the plane", func() {
			build(false)
			contacts := 0
			for i := 0; i < 30; i++ {
				Expect(w.Advance(ctx)).To(Succeed())
				contacts += w.LastReport().Contacts
			}
			Expect(w.Retrieve()).To(Succeed())
			Expect(lowestY(cube.Geometry(), 0)).To(BeNumerically(">", 0))
			Expect(lowestY(cube.Geometry(), 0)).To(BeNumerically("<", 0.02))
			Expect(contacts).To(BeNumerically(">", 0))
			Expect(w.SanityChecker().Check()).NotTo(Equal(world.Error))
		})

		It("falls through when the subscenes do not meet", func() {
			build(true)
			for i := 0; i < 30; i++ {
				Expect(w.Advance(ctx)).To(Succeed())
				Expect(w.LastReport().Contacts).To(BeZero())
			}
			Expect(w.Retrieve()).To(Succeed())
			Expect(lowestY(cube.Geometry(), 0)).To(BeNumerically("<", 0))
		})

		It("ignores config field writes after Init", func() {
			build(false)
			s.Config().Contact.Enable = false
			s.Config().Contact.DHat = 0
			for i := 0; i < 30; i++ {
				Expect(w.Advance(ctx)).To(Succeed())
			}
			Expect(w.Retrieve()).To(Succeed())
			Expect(lowestY(cube.Geometry(), 0)).To(BeNumerically(">", 0))
		})

		It("checks every committed frame in strict mode", func() {
			s.Config().Extras.StrictMode.Enable = true
			build(false)
			for i := 0; i < 10; i++ {
				Expect(w.Advance(ctx)).To(Succeed())
			}
			Expect(w.Frame()).To(Equal(10))
			Expect(w.SanityChecker().Result()).NotTo(Equal(world.Error))
		})

		It("recovers a dumped frame after a bad edit", func() {
			build(false)
			Expect(w.Dump(ctx)).To(Succeed())
			for i := 0; i < 3; i++ {
				Expect(w.Advance(ctx)).To(Succeed())
			}
			Expect(w.Retrieve()).To(Succeed())
			moved := translation(cube.Geometry(), 0)

			acc := w.Features().AffineBodyState
			geo := acc.CreateGeometry()
			tf, err := geometry.Create(geo.Instances(), geometry.Transform, mgl64.Ident4())
			Expect(err).NotTo(HaveOccurred())
			Expect(acc.CopyTo(geo)).To(Succeed())
			tf.View()[0] = mgl64.Translate3D(0, -1, 0)
			Expect(acc.CopyFrom(geo)).To(Succeed())

			checker := w.SanityChecker()
			Expect(checker.Check()).To(Equal(world.Error))
			Expect(checker.Messages()).NotTo(BeEmpty())
			Expect(checker.Err()).To(MatchError(dynamo.ErrSanityCheckFailed))

			Expect(w.Recover(ctx, 0)).To(Succeed())
			Expect(w.Frame()).To(Equal(0))
			Expect(w.Time()).To(BeZero())
			Expect(checker.Check()).To(Equal(world.Success))
			Expect(checker.Err()).NotTo(HaveOccurred())
			Expect(translation(cube.Geometry(), 0)).To(Equal(mgl64.Vec3{}))
			Expect(moved[1]).To(BeNumerically("<", 0))

			frames, err := w.DumpedFrames(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(frames).To(ContainElement(0))
			Expect(w.Recover(ctx, 99)).To(MatchError(dynamo.ErrNotFound))
		})

		It("rejects a penetrating scene at Init", func() {
			g := affineCube(0.2, mgl64.Vec3{0, 0, 0})
			_, err := s.Objects().Create("sunk").Geometries().Create(g)
			Expect(err).NotTo(HaveOccurred())
			addGround(s)
			Expect(w.Init(s)).To(MatchError(dynamo.ErrSanityCheckFailed))
			Expect(w.Initialized()).To(BeFalse())
		})
	})

	It("lets bodies in separate subscenes pass through each other", func() {
		left := affineCube(0.2, mgl64.Vec3{0, 1, 0})
		right := affineCube(0.2, mgl64.Vec3{0.1, 1, 0})
		Expect(s.SubsceneTabular().Create("left").ApplyTo(left)).To(Succeed())
		Expect(s.SubsceneTabular().Create("right").ApplyTo(right)).To(Succeed())
		a, err := s.Objects().Create("left").Geometries().Create(left)
		Expect(err).NotTo(HaveOccurred())
		b, err := s.Objects().Create("right").Geometries().Create(right)
		Expect(err).NotTo(HaveOccurred())
		Expect(w.Init(s)).To(Succeed())

		for i := 0; i < 5; i++ {
			Expect(w.Advance(ctx)).To(Succeed())
			Expect(w.LastReport().Contacts).To(BeZero())
		}
		Expect(w.Retrieve()).To(Succeed())
		va := geometry.Lookup[mgl64.Mat4](a.Geometry().Instances(), geometry.Velocity).CView()[0]
		vb := geometry.Lookup[mgl64.Mat4](b.Geometry().Instances(), geometry.Velocity).CView()[0]
		Expect(va.At(0, 3)).To(BeNumerically("~", 0, 1e-4))
		Expect(vb.At(0, 3)).To(BeNumerically("~", 0, 1e-4))
		Expect(va.At(1, 3)).To(BeNumerically("<", 0))
		Expect(va.At(1, 3)).To(BeNumerically("~", vb.At(1, 3), 1e-6))
	})

	It("leaves fixed instances in place", func() {
		g := affineCube(0.2, mgl64.Vec3{})
		Expect(g.Instances().Resize(2)).To(Succeed())
		g.Transforms().View()[0] = mgl64.Translate3D(0, 1, 0)
		g.Transforms().View()[1] = mgl64.Translate3D(2, 1, 0)
		geometry.Lookup[int32](g.Instances(), geometry.IsFixed).View()[0] = 1
		slot, err := s.Objects().Create("pair").Geometries().Create(g)
		Expect(err).NotTo(HaveOccurred())
		Expect(w.Init(s)).To(Succeed())

		for i := 0; i < 5; i++ {
			Expect(w.Advance(ctx)).To(Succeed())
		}
		Expect(w.Retrieve()).To(Succeed())
		Expect(translation(slot.Geometry(), 0)).To(Equal(mgl64.Vec3{0, 1, 0}))
		Expect(translation(slot.Geometry(), 1)[1]).To(BeNumerically("<", 1))
	})

	It("reports divergence without committing", func() {
		s.Config().Newton.MaxIter = 1
		_, err := s.Objects().Create("cube").Geometries().Create(affineCube(0.2, mgl64.Vec3{0, 1, 0}))
		Expect(err).NotTo(HaveOccurred())
		Expect(w.Init(s)).To(Succeed())

		err = w.Advance(ctx)
		Expect(err).To(MatchError(dynamo.ErrDiverged))
		var stepErr *dynamo.StepError
		Expect(errors.As(err, &stepErr)).To(BeTrue())
		Expect(stepErr.Frame).To(Equal(1))
		Expect(w.Frame()).To(Equal(0))
		Expect(w.Phase()).To(Equal(world.Diverged))
	})

	It("simulates a pinned cloth", func() {
		cloth := geometry.Grid(4, 4, 1, mgl64.Translate3D(0, 1, 0))
		Expect(applyCloth(cloth)).To(Succeed())
		slot, err := s.Objects().Create("cloth").Geometries().Create(cloth)
		Expect(err).NotTo(HaveOccurred())
		Expect(w.Init(s)).To(Succeed())

		acc := w.Features().FiniteElementState
		Expect(acc).NotTo(BeNil())
		Expect(acc.Count()).To(Equal(25))
		for i := 0; i < 3; i++ {
			Expect(w.Advance(ctx)).To(Succeed())
		}
		Expect(w.Retrieve()).To(Succeed())
		pos := slot.Geometry().Positions().CView()
		Expect(pos[0][1]).To(BeNumerically("~", 1, 1e-12))
		Expect(pos[12][1]).To(BeNumerically("<", 1))
		for _, p := range pos {
			Expect(math.IsNaN(p[1])).To(BeFalse())
		}
	})
})

var _ = Describe("Worlds sharing an engine", func() {
	It("keep their dumps apart", func() {
		ctx := context.Background()
		engine := newEngine()

		first := scene.New(newConfig())
		_, err := first.Objects().Create("a").Geometries().Create(affineCube(0.2, mgl64.Vec3{0, 1, 0}))
		Expect(err).NotTo(HaveOccurred())
		a := world.New(engine)
		DeferCleanup(func() { Expect(a.Close()).To(Succeed()) })
		Expect(a.Init(first)).To(Succeed())
		for i := 0; i < 3; i++ {
			Expect(a.Advance(ctx)).To(Succeed())
		}
		Expect(a.Dump(ctx)).To(Succeed())

		second := scene.New(newConfig())
		slot, err := second.Objects().Create("b").Geometries().Create(affineCube(0.2, mgl64.Vec3{2, 1, 0}))
		Expect(err).NotTo(HaveOccurred())
		b := world.New(engine)
		DeferCleanup(func() { Expect(b.Close()).To(Succeed()) })
		Expect(b.Init(second)).To(Succeed())
		Expect(b.RunID()).NotTo(Equal(a.RunID()))

		frames, err := b.DumpedFrames(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(frames).To(BeEmpty())
		Expect(b.Recover(ctx, 3)).To(MatchError(dynamo.ErrNotFound))
		Expect(b.Frame()).To(Equal(0))
		Expect(translation(slot.Geometry(), 0)).To(Equal(mgl64.Vec3{}))

		frames, err = a.DumpedFrames(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(frames).To(Equal([]int{3}))
		Expect(a.Recover(ctx, 3)).To(Succeed())
		Expect(a.Frame()).To(Equal(3))
	})
})

package constitution

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/ipcsim/internal/geometry"
)

// AffineBody restricts every instance to one affine map x = t + A x_rest,
// penalising non-orthogonal A with stiffness kappa.
type AffineBody struct{ variant }

func NewAffineBody() *AffineBody {
	return &AffineBody{variant{UIDAffineBody, "AffineBodyConstitution", Primary}}
}

// ApplyTo binds g as affine bodies. massDensity is optional (default 1e3).
func (c *AffineBody) ApplyTo(g *geometry.Geometry, kappa float64, massDensity ...float64) error {
	if err := requireDim(c, g, 2, 3); err != nil {
		return err
	}
	rho := DefaultMassDensity
	if len(massDensity) > 0 {
		rho = massDensity[0]
	}
	if err := setPrimary(c, g); err != nil {
		return err
	}
	if err := geometry.SetMeta(g, geometry.MassDensity, rho); err != nil {
		return err
	}
	inst := g.Instances()
	if _, err := fill(inst, geometry.Kappa, kappa); err != nil {
		return err
	}
	for _, err := range []error{
		ensure(inst, geometry.Velocity, mgl64.Mat4{}),
		ensure(inst, geometry.IsFixed, int32(0)),
		ensure(inst, geometry.IsConstrained, int32(0)),
		ensure(inst, geometry.IsDynamic, int32(1)),
		ensure(inst, geometry.ExternalKinetic, int32(0)),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

// SoftTransformConstraint pulls constrained instances towards
// aim_transform with strength ratio * body mass for translation and rotation.
type SoftTransformConstraint struct{ variant }

func NewSoftTransformConstraint() *SoftTransformConstraint {
	return &SoftTransformConstraint{variant{UIDSoftTransformConstraint, "SoftTransformConstraint", Extra}}
}

func (c *SoftTransformConstraint) ApplyTo(g *geometry.Geometry, translation, rotation float64) error {
	if err := requirePrimary(c, g, UIDAffineBody); err != nil {
		return err
	}
	return applyTransformTarget(c, g, geometry.StrengthRatio, mgl64.Vec2{translation, rotation})
}

func applyTransformTarget[T any](c Constitution, g *geometry.Geometry, name string, v T) error {
	if err := addExtra(c, g); err != nil {
		return err
	}
	inst := g.Instances()
	if _, err := fill(inst, name, v); err != nil {
		return err
	}
	if err := ensure(inst, geometry.IsConstrained, int32(0)); err != nil {
		return err
	}
	if inst.Has(geometry.AimTransform) {
		return nil
	}
	aim, err := geometry.Create(inst, geometry.AimTransform, mgl64.Ident4())
	if err != nil {
		return err
	}
	copy(aim.View(), g.Transforms().CView())
	return nil
}

// RotatingMotor spins constrained instances about an axis through their
// origin at a fixed angular velocity. Animate advances the aim each frame.
type RotatingMotor struct{ variant }

const MotorStrength = "motor_strength"

func NewRotatingMotor() *RotatingMotor {
	return &RotatingMotor{variant{UIDRotatingMotor, "RotatingMotor", Extra}}
}

func (c *RotatingMotor) ApplyTo(g *geometry.Geometry, strength float64, axis mgl64.Vec3, radPerSec float64) error {
	if err := requirePrimary(c, g, UIDAffineBody); err != nil {
		return err
	}
	if axis.Len() == 0 {
		return incompatible(c, g, "zero motor axis")
	}
	if err := applyTransformTarget(c, g, MotorStrength, strength); err != nil {
		return err
	}
	inst := g.Instances()
	if _, err := fill(inst, geometry.MotorAxis, axis.Normalize()); err != nil {
		return err
	}
	_, err := fill(inst, geometry.MotorRotVel, radPerSec)
	return err
}

// Animate rotates aim_transform of every constrained instance by
// motor_rot_vel*dt about its axis, pivoting at the current translation.
func (c *RotatingMotor) Animate(g *geometry.Geometry, dt float64) error {
	inst := g.Instances()
	axis, err := geometry.Find[mgl64.Vec3](inst, geometry.MotorAxis)
	if err != nil {
		return err
	}
	vel, err := geometry.Find[float64](inst, geometry.MotorRotVel)
	if err != nil {
		return err
	}
	aim, err := geometry.Find[mgl64.Mat4](inst, geometry.AimTransform)
	if err != nil {
		return err
	}
	constrained, err := geometry.Find[int32](inst, geometry.IsConstrained)
	if err != nil {
		return err
	}

	tf := g.Transforms().CView()
	av := aim.View()
	for i := range av {
		if constrained.CView()[i] == 0 {
			continue
		}
		angle := vel.CView()[i] * dt
		if math.IsNaN(angle) {
			continue
		}
		r := mgl64.HomogRotate3D(angle, axis.CView()[i])
		t := tf[i].Col(3).Vec3()
		pivot := mgl64.Translate3D(t[0], t[1], t[2]).Mul4(r).Mul4(mgl64.Translate3D(-t[0], -t[1], -t[2]))
		av[i] = pivot.Mul4(tf[i])
	}
	return nil
}

// AffineBodyExternalForce applies a generalized 12-dof force
// [f; f_A row0; f_A row1; f_A row2] per instance.
type AffineBodyExternalForce struct{ variant }

func NewAffineBodyExternalForce() *AffineBodyExternalForce {
	return &AffineBodyExternalForce{variant{UIDAffineBodyExternalForce, "AffineBodyExternalBodyForce", Extra}}
}

func (c *AffineBodyExternalForce) ApplyTo(g *geometry.Geometry, force [12]float64) error {
	if err := requirePrimary(c, g, UIDAffineBody); err != nil {
		return err
	}
	if err := addExtra(c, g); err != nil {
		return err
	}
	_, err := fill(g.Instances(), geometry.ExternalForce, force)
	return err
}

// TransformToQ flattens a transform into affine dofs [t, A row0, A row1, A row2].
func TransformToQ(m mgl64.Mat4) [12]float64 {
	var q [12]float64
	q[0], q[1], q[2] = m.At(0, 3), m.At(1, 3), m.At(2, 3)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			q[3+3*r+c] = m.At(r, c)
		}
	}
	return q
}

// QToTransform is the inverse of TransformToQ.
func QToTransform(q []float64) mgl64.Mat4 {
	m := mgl64.Ident4()
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			m.Set(r, c, q[3+3*r+c])
		}
		m.Set(r, 3, q[r])
	}
	return m
}

package constitution

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/ipcsim/internal/geometry"
)

// FEM-style primaries: every non-fixed vertex owns three dofs.
var femPrimaries = []uint64{UIDStableNeoHookean, UIDNeoHookeanShell, UIDHookeanSpring, UIDParticle, UIDEmpty}

// IsFEM reports whether uid is a per-vertex primary constitution.
func IsFEM(uid uint64) bool {
	for _, u := range femPrimaries {
		if u == uid {
			return true
		}
	}
	return false
}

func applyVertexState(g *geometry.Geometry, massDensity, thickness float64) error {
	if err := geometry.SetMeta(g, geometry.MassDensity, massDensity); err != nil {
		return err
	}
	if err := geometry.SetMeta(g, geometry.Thickness, thickness); err != nil {
		return err
	}
	v := g.Vertices()
	for _, err := range []error{
		ensure(v, geometry.Velocity, mgl64.Vec3{}),
		ensure(v, geometry.IsFixed, int32(0)),
		ensure(v, geometry.IsConstrained, int32(0)),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

// StableNeoHookean is the Smith et al. stable Neo-Hookean solid on tets.
type StableNeoHookean struct{ variant }

func NewStableNeoHookean() *StableNeoHookean {
	return &StableNeoHookean{variant{UIDStableNeoHookean, "StableNeoHookean", Primary}}
}

func (c *StableNeoHookean) ApplyTo(g *geometry.Geometry, moduli ElasticModuli, massDensity float64) error {
	if err := requireDim(c, g, 3); err != nil {
		return err
	}
	if err := setPrimary(c, g); err != nil {
		return err
	}
	if _, err := fill(g.Tetrahedra(), geometry.Mu, moduli.Mu); err != nil {
		return err
	}
	if _, err := fill(g.Tetrahedra(), geometry.Lambda, moduli.Lambda); err != nil {
		return err
	}
	return applyVertexState(g, massDensity, 0)
}

// NeoHookeanShell is a membrane Neo-Hookean model on triangles of the
// given thickness.
type NeoHookeanShell struct{ variant }

func NewNeoHookeanShell() *NeoHookeanShell {
	return &NeoHookeanShell{variant{UIDNeoHookeanShell, "NeoHookeanShell", Primary}}
}

func (c *NeoHookeanShell) ApplyTo(g *geometry.Geometry, moduli ElasticModuli, massDensity, thickness float64) error {
	if err := requireDim(c, g, 2); err != nil {
		return err
	}
	if err := requireManifold(c, g); err != nil {
		return err
	}
	if thickness < 0 {
		return incompatible(c, g, "negative thickness")
	}
	if err := setPrimary(c, g); err != nil {
		return err
	}
	if _, err := fill(g.Triangles(), geometry.Mu, moduli.Mu); err != nil {
		return err
	}
	if _, err := fill(g.Triangles(), geometry.Lambda, moduli.Lambda); err != nil {
		return err
	}
	return applyVertexState(g, massDensity, thickness)
}

// DiscreteShellBending penalises dihedral angle change across interior edges.
type DiscreteShellBending struct{ variant }

func NewDiscreteShellBending() *DiscreteShellBending {
	return &DiscreteShellBending{variant{UIDDiscreteShellBending, "DiscreteShellBending", Extra}}
}

func (c *DiscreteShellBending) ApplyTo(g *geometry.Geometry, bendingStiffness float64) error {
	if err := requireDim(c, g, 2); err != nil {
		return err
	}
	if err := addExtra(c, g); err != nil {
		return err
	}
	if g.Edges().Size() == 0 {
		geometry.LabelSurface(g)
	}
	_, err := fill(g.Edges(), geometry.BendingStiffness, bendingStiffness)
	return err
}

// HookeanSpring is a linear spring along every edge of a line mesh.
type HookeanSpring struct{ variant }

func NewHookeanSpring() *HookeanSpring {
	return &HookeanSpring{variant{UIDHookeanSpring, "HookeanSpring", Primary}}
}

// ApplyTo sets spring stiffness kappa. massDensity and thickness are
// optional (defaults 1e3 and 0.01).
func (c *HookeanSpring) ApplyTo(g *geometry.Geometry, kappa float64, massDensityThickness ...float64) error {
	if err := requireDim(c, g, 1); err != nil {
		return err
	}
	rho, thickness := DefaultMassDensity, 0.01
	if len(massDensityThickness) > 0 {
		rho = massDensityThickness[0]
	}
	if len(massDensityThickness) > 1 {
		thickness = massDensityThickness[1]
	}
	if err := setPrimary(c, g); err != nil {
		return err
	}
	if _, err := fill(g.Edges(), geometry.Kappa, kappa); err != nil {
		return err
	}
	return applyVertexState(g, rho, thickness)
}

// KirchhoffRodBending penalises the turning angle at interior rod vertices.
type KirchhoffRodBending struct{ variant }

func NewKirchhoffRodBending() *KirchhoffRodBending {
	return &KirchhoffRodBending{variant{UIDKirchhoffRodBending, "KirchhoffRodBending", Extra}}
}

func (c *KirchhoffRodBending) ApplyTo(g *geometry.Geometry, bendingStiffness float64) error {
	if err := requireDim(c, g, 1); err != nil {
		return err
	}
	if err := addExtra(c, g); err != nil {
		return err
	}
	_, err := fill(g.Vertices(), geometry.BendingStiffness, bendingStiffness)
	return err
}

// Particle is a point mass sphere of radius thickness.
type Particle struct{ variant }

func NewParticle() *Particle {
	return &Particle{variant{UIDParticle, "Particle", Primary}}
}

func (c *Particle) ApplyTo(g *geometry.Geometry, massDensity, thickness float64) error {
	if err := requireDim(c, g, 0); err != nil {
		return err
	}
	if err := setPrimary(c, g); err != nil {
		return err
	}
	return applyVertexState(g, massDensity, thickness)
}

// Empty gives vertices mass but no internal energy. Combined with a soft
// position constraint it drives kinematic collision proxies.
type Empty struct{ variant }

func NewEmpty() *Empty {
	return &Empty{variant{UIDEmpty, "Empty", Primary}}
}

func (c *Empty) ApplyTo(g *geometry.Geometry, thickness float64) error {
	if err := requireDim(c, g, 0, 1, 2, 3); err != nil {
		return err
	}
	if err := setPrimary(c, g); err != nil {
		return err
	}
	return applyVertexState(g, DefaultMassDensity, thickness)
}

// SoftPositionConstraint pulls constrained vertices to aim_position with
// strength ratio * vertex mass.
type SoftPositionConstraint struct{ variant }

func NewSoftPositionConstraint() *SoftPositionConstraint {
	return &SoftPositionConstraint{variant{UIDSoftPositionConstraint, "SoftPositionConstraint", Extra}}
}

func (c *SoftPositionConstraint) ApplyTo(g *geometry.Geometry, strengthRatio float64) error {
	if err := requirePrimary(c, g, femPrimaries...); err != nil {
		return err
	}
	if err := addExtra(c, g); err != nil {
		return err
	}
	v := g.Vertices()
	if _, err := fill(v, geometry.ConstraintStrength, strengthRatio); err != nil {
		return err
	}
	if err := ensure(v, geometry.IsConstrained, int32(0)); err != nil {
		return err
	}
	if v.Has(geometry.AimPosition) {
		return nil
	}
	aim, err := geometry.Create(v, geometry.AimPosition, mgl64.Vec3{})
	if err != nil {
		return err
	}
	copy(aim.View(), g.Positions().CView())
	return nil
}

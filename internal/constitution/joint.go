package constitution

import (
	"fmt"

	"github.com/san-kum/ipcsim/internal/dynamo"
	"github.com/san-kum/ipcsim/internal/geometry"
)

// Articulation attribute names.
const (
	JointGeoID      = "joint_geo_id"
	JointIndex      = "joint_index"
	DeltaThetaTilde = "delta_theta_tilde"
	StitchGeoIDs    = "stitch_geo_ids"
	StitchContacts  = "stitch_contact_elements"
)

// RevoluteJoint pins two affine instances together along an axis given
// by the edge endpoints; the bodies may rotate about it.
type RevoluteJoint struct{ variant }

func NewRevoluteJoint() *RevoluteJoint {
	return &RevoluteJoint{variant{UIDRevoluteJoint, "AffineBodyRevoluteJoint", Primary}}
}

func (c *RevoluteJoint) ApplyTo(g *geometry.Geometry, l []*geometry.Slot, lInst []int, r []*geometry.Slot, rInst []int, strength []float64) error {
	return applyJoint(c, g, l, lInst, r, rInst, strength)
}

// PrismaticJoint lets two affine instances slide along the edge axis while
// keeping their relative orientation.
type PrismaticJoint struct{ variant }

func NewPrismaticJoint() *PrismaticJoint {
	return &PrismaticJoint{variant{UIDPrismaticJoint, "AffineBodyPrismaticJoint", Primary}}
}

func (c *PrismaticJoint) ApplyTo(g *geometry.Geometry, l []*geometry.Slot, lInst []int, r []*geometry.Slot, rInst []int, strength []float64) error {
	return applyJoint(c, g, l, lInst, r, rInst, strength)
}

// IsJoint reports whether uid is a two-body joint.
func IsJoint(uid uint64) bool {
	return uid == UIDRevoluteJoint || uid == UIDPrismaticJoint
}

func applyJoint(c Constitution, g *geometry.Geometry, l []*geometry.Slot, lInst []int, r []*geometry.Slot, rInst []int, strength []float64) error {
	if err := requireDim(c, g, 1); err != nil {
		return err
	}
	n := g.Edges().Size()
	if len(l) != n || len(lInst) != n || len(r) != n || len(rInst) != n || len(strength) != n {
		return incompatible(c, g, fmt.Sprintf("need %d link entries per side", n))
	}
	for i := 0; i < n; i++ {
		for _, side := range []struct {
			slot *geometry.Slot
			inst int
		}{{l[i], lInst[i]}, {r[i], rInst[i]}} {
			if side.slot == nil {
				return incompatible(c, g, fmt.Sprintf("joint %d has a nil link", i))
			}
			lg := side.slot.Geometry()
			if PrimaryUID(lg) != UIDAffineBody {
				return incompatible(c, g, fmt.Sprintf("joint %d links a non affine body", i))
			}
			if side.inst < 0 || side.inst >= lg.Instances().Size() {
				return fmt.Errorf("joint %d instance %d: %w", i, side.inst, dynamo.ErrNotFound)
			}
		}
	}

	if err := setPrimary(c, g); err != nil {
		return err
	}
	e := g.Edges()
	lg, err := geometry.FindOrCreate(e, geometry.LeftGeoID, 0)
	if err != nil {
		return err
	}
	rg, err := geometry.FindOrCreate(e, geometry.RightGeoID, 0)
	if err != nil {
		return err
	}
	li, err := geometry.FindOrCreate(e, geometry.LeftInstID, 0)
	if err != nil {
		return err
	}
	ri, err := geometry.FindOrCreate(e, geometry.RightInstID, 0)
	if err != nil {
		return err
	}
	st, err := geometry.FindOrCreate(e, geometry.StrengthRatio, 0.0)
	if err != nil {
		return err
	}
	lgv, rgv, liv, riv, stv := lg.View(), rg.View(), li.View(), ri.View(), st.View()
	for i := 0; i < n; i++ {
		lgv[i], rgv[i] = l[i].ID(), r[i].ID()
		liv[i], riv[i] = lInst[i], rInst[i]
		stv[i] = strength[i]
	}
	return nil
}

// ExternalArticulationConstraint couples the generalized coordinates of
// several joints through a user-supplied joint-space mass matrix and
// drives them by per-frame target increments delta_theta_tilde.
type ExternalArticulationConstraint struct{ variant }

func NewExternalArticulationConstraint() *ExternalArticulationConstraint {
	return &ExternalArticulationConstraint{variant{UIDExternalArticulationConstraint, "ExternalArticulationConstraint", Primary}}
}

// CreateGeometry builds the articulation record for joints[k] edge indices[k].
// The joint_joint mass matrix is row major and starts as identity.
func (c *ExternalArticulationConstraint) CreateGeometry(joints []*geometry.Slot, indices []int) (*geometry.Geometry, error) {
	if len(joints) != len(indices) || len(joints) == 0 {
		return nil, fmt.Errorf("%s: %d joints with %d indices: %w", c.Name(), len(joints), len(indices), dynamo.ErrIncompatibleGeometry)
	}
	for k, s := range joints {
		jg := s.Geometry()
		if !IsJoint(PrimaryUID(jg)) {
			return nil, fmt.Errorf("%s: slot %d is not a joint: %w", c.Name(), s.ID(), dynamo.ErrIncompatibleGeometry)
		}
		if indices[k] < 0 || indices[k] >= jg.Edges().Size() {
			return nil, fmt.Errorf("%s: joint index %d of slot %d: %w", c.Name(), indices[k], s.ID(), dynamo.ErrNotFound)
		}
	}

	n := len(joints)
	g := geometry.New(geometry.SimplicialComplex, -1)
	if err := setPrimary(c, g); err != nil {
		return nil, err
	}

	jc := g.Collection(geometry.JointCollection)
	if err := jc.Resize(n); err != nil {
		return nil, err
	}
	geoID, _ := geometry.Create(jc, JointGeoID, 0)
	index, _ := geometry.Create(jc, JointIndex, 0)
	if _, err := geometry.Create(jc, DeltaThetaTilde, 0.0); err != nil {
		return nil, err
	}
	gv, iv := geoID.View(), index.View()
	for k, s := range joints {
		gv[k] = s.ID()
		iv[k] = indices[k]
	}

	jj := g.Collection(geometry.JointJointCollection)
	if err := jj.Resize(n * n); err != nil {
		return nil, err
	}
	mass, _ := geometry.Create(jj, geometry.Mass, 0.0)
	mv := mass.View()
	for k := 0; k < n; k++ {
		mv[k*n+k] = 1
	}
	return g, nil
}

// SoftVertexStitch ties vertex pairs of two FEM geometries with springs.
type SoftVertexStitch struct{ variant }

func NewSoftVertexStitch() *SoftVertexStitch {
	return &SoftVertexStitch{variant{UIDSoftVertexStitch, "SoftVertexStitch", Primary}}
}

// CreateGeometry returns a line geometry whose edge (i, j) ties vertex i of
// slots[0] to vertex j of slots[1]. contactElements, when given, are the
// contact element ids the stitched pair is simulated under.
func (c *SoftVertexStitch) CreateGeometry(slots [2]*geometry.Slot, pairs [][2]int, strength float64, contactElements ...int) (*geometry.Geometry, error) {
	for side, s := range slots {
		if s == nil || !IsFEM(PrimaryUID(s.Geometry())) {
			return nil, fmt.Errorf("%s: side %d is not a finite element geometry: %w", c.Name(), side, dynamo.ErrIncompatibleGeometry)
		}
	}
	na, nb := slots[0].Geometry().Vertices().Size(), slots[1].Geometry().Vertices().Size()
	for _, p := range pairs {
		if p[0] < 0 || p[0] >= na || p[1] < 0 || p[1] >= nb {
			return nil, fmt.Errorf("%s: pair %v: %w", c.Name(), p, geometry.ErrBadIndex)
		}
	}

	g := geometry.New(geometry.SimplicialComplex, 1)
	if err := setPrimary(c, g); err != nil {
		return nil, err
	}
	if err := g.Edges().Resize(len(pairs)); err != nil {
		return nil, err
	}
	topo, _ := geometry.Create(g.Edges(), geometry.Topo, [2]int{})
	copy(topo.View(), pairs)
	if _, err := fill(g.Edges(), geometry.Kappa, strength); err != nil {
		return nil, err
	}
	if err := geometry.SetMeta(g, StitchGeoIDs, [2]int{slots[0].ID(), slots[1].ID()}); err != nil {
		return nil, err
	}
	if len(contactElements) == 2 {
		if err := geometry.SetMeta(g, StitchContacts, [2]int{contactElements[0], contactElements[1]}); err != nil {
			return nil, err
		}
	}
	return g, nil
}

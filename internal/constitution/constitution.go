// Package constitution holds the closed set of material and constraint
// models a geometry can be bound to, together with their element energy
// kernels.
//
// Every variant is a plain record. ApplyTo validates the geometry's topology
// and writes the attributes the solver reads back at World.Init; the solver
// dispatches on UID through the registration table in this package.
package constitution

import (
	"fmt"
	"sort"
	"sync"

	"github.com/san-kum/ipcsim/internal/dynamo"
	"github.com/san-kum/ipcsim/internal/geometry"
)

// Kind separates constitutions that own a geometry's degrees of freedom
// from those stacked on top of one.
type Kind int

const (
	Primary Kind = iota
	Extra
)

func (k Kind) String() string {
	if k == Extra {
		return "extra"
	}
	return "primary"
}

// Builtin constitution ids.
const (
	UIDAffineBody                     uint64 = 1
	UIDEmpty                          uint64 = 9
	UIDStableNeoHookean               uint64 = 10
	UIDNeoHookeanShell                uint64 = 11
	UIDHookeanSpring                  uint64 = 12
	UIDParticle                       uint64 = 13
	UIDSoftPositionConstraint         uint64 = 14
	UIDKirchhoffRodBending            uint64 = 15
	UIDSoftTransformConstraint        uint64 = 16
	UIDDiscreteShellBending           uint64 = 17
	UIDRevoluteJoint                  uint64 = 18
	UIDRotatingMotor                  uint64 = 19
	UIDAffineBodyExternalForce        uint64 = 20
	UIDPrismaticJoint                 uint64 = 21
	UIDSoftVertexStitch               uint64 = 22
	UIDExternalArticulationConstraint uint64 = 23
)

// Constitution is implemented only by the variants of this package.
type Constitution interface {
	UID() uint64
	Name() string
	Kind() Kind
	constitution()
}

type variant struct {
	uid  uint64
	name string
	kind Kind
}

func (v variant) UID() uint64  { return v.uid }
func (v variant) Name() string { return v.name }
func (v variant) Kind() Kind   { return v.kind }
func (v variant) constitution() {}

var (
	registryMu sync.RWMutex
	registry   = map[uint64]Constitution{}
)

func register(c Constitution) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[c.UID()] = c
}

func init() {
	for _, c := range []Constitution{
		NewAffineBody(), NewEmpty(), NewStableNeoHookean(), NewNeoHookeanShell(),
		NewHookeanSpring(), NewParticle(), NewSoftPositionConstraint(),
		NewKirchhoffRodBending(), NewSoftTransformConstraint(), NewDiscreteShellBending(),
		NewRevoluteJoint(), NewRotatingMotor(), NewAffineBodyExternalForce(),
		NewPrismaticJoint(), NewSoftVertexStitch(), NewExternalArticulationConstraint(),
	} {
		register(c)
	}
}

// Lookup resolves a builtin constitution by id.
func Lookup(uid uint64) (Constitution, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	c, ok := registry[uid]
	if !ok {
		return nil, fmt.Errorf("constitution uid %d: %w", uid, dynamo.ErrNotFound)
	}
	return c, nil
}

// Tabular records the constitutions a scene uses.
type Tabular struct {
	entries map[uint64]Constitution
}

func NewTabular() *Tabular {
	return &Tabular{entries: make(map[uint64]Constitution)}
}

func (t *Tabular) Insert(c Constitution) {
	t.entries[c.UID()] = c
}

func (t *Tabular) Contains(uid uint64) bool {
	_, ok := t.entries[uid]
	return ok
}

func (t *Tabular) Find(uid uint64) (Constitution, error) {
	c, ok := t.entries[uid]
	if !ok {
		return nil, fmt.Errorf("constitution uid %d not in scene: %w", uid, dynamo.ErrNotFound)
	}
	return c, nil
}

// UIDs lists registered ids in ascending order.
func (t *Tabular) UIDs() []uint64 {
	out := make([]uint64, 0, len(t.entries))
	for uid := range t.entries {
		out = append(out, uid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// InsertFrom registers the primary and extra constitutions a geometry
// references.
func (t *Tabular) InsertFrom(g *geometry.Geometry) error {
	if uid := g.MetaUint(geometry.ConstitutionUID, 0); uid != 0 {
		c, err := Lookup(uid)
		if err != nil {
			return err
		}
		t.Insert(c)
	}
	if extras := geometry.Lookup[geometry.UIDList](g.Meta(), geometry.ExtraConstitutionUIDs); extras != nil {
		for _, uid := range extras.CView()[0] {
			c, err := Lookup(uid)
			if err != nil {
				return err
			}
			t.Insert(c)
		}
	}
	return nil
}

// PrimaryUID returns the id of the constitution owning g's dofs, or 0.
func PrimaryUID(g *geometry.Geometry) uint64 {
	return g.MetaUint(geometry.ConstitutionUID, 0)
}

// HasExtra reports whether an extra constitution was applied to g.
func HasExtra(g *geometry.Geometry, uid uint64) bool {
	extras := geometry.Lookup[geometry.UIDList](g.Meta(), geometry.ExtraConstitutionUIDs)
	return extras != nil && extras.CView()[0].Contains(uid)
}

func incompatible(c Constitution, g *geometry.Geometry, why string) error {
	return fmt.Errorf("%s on %s (dim %d): %s: %w", c.Name(), g.Type(), g.Dim(), why, dynamo.ErrIncompatibleGeometry)
}

func requireDim(c Constitution, g *geometry.Geometry, dims ...int) error {
	if g.Type() != geometry.SimplicialComplex || g.Positions() == nil {
		return incompatible(c, g, "requires a simplicial complex with positions")
	}
	for _, d := range dims {
		if g.Dim() == d {
			return nil
		}
	}
	return incompatible(c, g, fmt.Sprintf("requires dimension %v", dims))
}

// requireManifold rejects triangle meshes with an edge shared by more than
// two triangles.
func requireManifold(c Constitution, g *geometry.Geometry) error {
	topo := g.TriangleTopo()
	if topo == nil {
		return nil
	}
	incidence := make(map[[2]int]int)
	for _, t := range topo.CView() {
		for k := 0; k < 3; k++ {
			a, b := t[k], t[(k+1)%3]
			if a > b {
				a, b = b, a
			}
			incidence[[2]int{a, b}]++
			if n := incidence[[2]int{a, b}]; n > 2 {
				return incompatible(c, g, fmt.Sprintf("edge (%d, %d) is shared by %d triangles, requires a 2-manifold", a, b, n))
			}
		}
	}
	return nil
}

func requirePrimary(c Constitution, g *geometry.Geometry, uids ...uint64) error {
	have := PrimaryUID(g)
	for _, uid := range uids {
		if have == uid {
			return nil
		}
	}
	return incompatible(c, g, fmt.Sprintf("requires one of primary constitutions %v, have %d", uids, have))
}

func setPrimary(c Constitution, g *geometry.Geometry) error {
	return geometry.SetMeta(g, geometry.ConstitutionUID, c.UID())
}

func addExtra(c Constitution, g *geometry.Geometry) error {
	col, err := geometry.FindOrCreate(g.Meta(), geometry.ExtraConstitutionUIDs, geometry.UIDList(nil))
	if err != nil {
		return err
	}
	v := col.View()
	if !v[0].Contains(c.UID()) {
		v[0] = append(append(geometry.UIDList{}, v[0]...), c.UID())
	}
	return nil
}

func fill[T any](c *geometry.Collection, name string, v T) (*geometry.Column[T], error) {
	col, err := geometry.FindOrCreate(c, name, v)
	if err != nil {
		return nil, err
	}
	view := col.View()
	for i := range view {
		view[i] = v
	}
	return col, nil
}

// ensure creates an attribute with def if it is missing, leaving existing values.
func ensure[T any](c *geometry.Collection, name string, def T) error {
	_, err := geometry.FindOrCreate(c, name, def)
	return err
}

package geometry

import (
	"fmt"
	"reflect"

	"github.com/san-kum/ipcsim/internal/dynamo"
)

// Attribute is the type-erased side of a Column. Contents are only
// reachable through the typed column returned by Find or Create.
type Attribute interface {
	Name() string
	Len() int
	Version() uint64
	IsDirty() bool
	ClearDirty()
	TypeName() string

	resize(n int)
	clone() Attribute
}

// deepCopier lets slice-valued element types survive Geometry.Clone.
type deepCopier interface {
	deepCopy() any
}

// Column is a typed attribute of one collection. Its length always equals
// the cardinality of the owning collection.
type Column[T any] struct {
	name    string
	data    []T
	def     T
	version uint64
	dirty   bool
}

func newColumn[T any](name string, n int, def T) *Column[T] {
	data := make([]T, n)
	for i := range data {
		data[i] = def
	}
	return &Column[T]{name: name, data: data, def: def}
}

func (c *Column[T]) Name() string     { return c.name }
func (c *Column[T]) Len() int         { return len(c.data) }
func (c *Column[T]) Version() uint64  { return c.version }
func (c *Column[T]) IsDirty() bool    { return c.dirty }
func (c *Column[T]) ClearDirty()      { c.dirty = false }
func (c *Column[T]) Default() T       { return c.def }
func (c *Column[T]) TypeName() string { return reflect.TypeOf((*T)(nil)).Elem().String() }

// View returns the mutable backing slice and marks the column dirty.
func (c *Column[T]) View() []T {
	c.version++
	c.dirty = true
	return c.data
}

// CView returns the backing slice for reading. Writing through it bypasses
// dirty tracking and is not allowed.
func (c *Column[T]) CView() []T {
	return c.data
}

func (c *Column[T]) resize(n int) {
	switch {
	case n < len(c.data):
		var zero T
		for i := n; i < len(c.data); i++ {
			c.data[i] = zero
		}
		c.data = c.data[:n]
	case n > len(c.data):
		old := len(c.data)
		if n <= cap(c.data) {
			c.data = c.data[:n]
		} else {
			grown := make([]T, n)
			copy(grown, c.data)
			c.data = grown
		}
		for i := old; i < n; i++ {
			c.data[i] = c.copyValue(c.def)
		}
	default:
		return
	}
	c.version++
	c.dirty = true
}

func (c *Column[T]) copyValue(v T) T {
	if dc, ok := any(v).(deepCopier); ok {
		return dc.deepCopy().(T)
	}
	return v
}

func (c *Column[T]) clone() Attribute {
	out := &Column[T]{
		name:    c.name,
		data:    make([]T, len(c.data)),
		def:     c.copyValue(c.def),
		version: c.version,
	}
	for i, v := range c.data {
		out.data[i] = c.copyValue(v)
	}
	return out
}

// Collection is one attribute domain (vertices, edges, instances, ...).
type Collection struct {
	name  string
	size  int
	fixed bool
	order []string
	attrs map[string]Attribute
}

func newCollection(name string, size int, fixed bool) *Collection {
	return &Collection{
		name:  name,
		size:  size,
		fixed: fixed,
		attrs: make(map[string]Attribute),
	}
}

func (c *Collection) Name() string { return c.name }
func (c *Collection) Size() int    { return c.size }

// Names lists attributes in creation order.
func (c *Collection) Names() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

func (c *Collection) Has(name string) bool {
	_, ok := c.attrs[name]
	return ok
}

func (c *Collection) Lookup(name string) (Attribute, bool) {
	a, ok := c.attrs[name]
	return a, ok
}

// Resize changes the cardinality of every attribute at once. Indices below
// n keep their values; new indices take each attribute's default.
func (c *Collection) Resize(n int) error {
	if n < 0 {
		return fmt.Errorf("resize %s to %d: %w", c.name, n, dynamo.ErrShapeMismatch)
	}
	if c.fixed && n != c.size {
		return fmt.Errorf("resize %s: collection has fixed size %d: %w", c.name, c.size, dynamo.ErrShapeMismatch)
	}
	for _, name := range c.order {
		c.attrs[name].resize(n)
	}
	c.size = n
	return nil
}

// Destroy removes an attribute.
func (c *Collection) Destroy(name string) error {
	if _, ok := c.attrs[name]; !ok {
		return fmt.Errorf("%s.%s: %w", c.name, name, dynamo.ErrNotFound)
	}
	delete(c.attrs, name)
	for i, n := range c.order {
		if n == name {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

// ClearDirty resets dirty flags on every attribute.
func (c *Collection) ClearDirty() {
	for _, a := range c.attrs {
		a.ClearDirty()
	}
}

func (c *Collection) clone() *Collection {
	out := newCollection(c.name, c.size, c.fixed)
	out.order = append(out.order, c.order...)
	for name, a := range c.attrs {
		out.attrs[name] = a.clone()
	}
	return out
}

// Create adds a column at the collection's current cardinality.
func Create[T any](c *Collection, name string, def T) (*Column[T], error) {
	if _, ok := c.attrs[name]; ok {
		return nil, fmt.Errorf("%s.%s: %w", c.name, name, dynamo.ErrDuplicateName)
	}
	col := newColumn(name, c.size, def)
	c.attrs[name] = col
	c.order = append(c.order, name)
	return col, nil
}

// Find returns the typed column or fails with ErrNotFound. A column stored
// under the name with a different element type fails with ErrTypeMismatch,
// which also matches ErrNotFound.
func Find[T any](c *Collection, name string) (*Column[T], error) {
	a, ok := c.attrs[name]
	if !ok {
		return nil, fmt.Errorf("%s.%s: %w", c.name, name, dynamo.ErrNotFound)
	}
	col, ok := a.(*Column[T])
	if !ok {
		return nil, fmt.Errorf("%s.%s is %s, not %s: %w: %w", c.name, name, a.TypeName(), reflect.TypeOf((*T)(nil)).Elem().String(), dynamo.ErrTypeMismatch, dynamo.ErrNotFound)
	}
	return col, nil
}

// FindOrCreate returns the existing column or creates it with def.
func FindOrCreate[T any](c *Collection, name string, def T) (*Column[T], error) {
	if c.Has(name) {
		return Find[T](c, name)
	}
	return Create(c, name, def)
}

// Lookup is Find without the error, for optional attributes.
func Lookup[T any](c *Collection, name string) *Column[T] {
	col, err := Find[T](c, name)
	if err != nil {
		return nil
	}
	return col
}

// UIDList is a per-geometry list of extra constitution ids.
type UIDList []uint64

func (l UIDList) deepCopy() any {
	out := make(UIDList, len(l))
	copy(out, l)
	return out
}

func (l UIDList) Contains(uid uint64) bool {
	for _, u := range l {
		if u == uid {
			return true
		}
	}
	return false
}

package geometry

// Slot pairs a simulated geometry with its rest configuration under a
// scene-unique id.
type Slot struct {
	id   int
	geo  *Geometry
	rest *Geometry
}

func NewSlot(id int, geo, rest *Geometry) *Slot {
	return &Slot{id: id, geo: geo, rest: rest}
}

func (s *Slot) ID() int             { return s.id }
func (s *Slot) Geometry() *Geometry { return s.geo }
func (s *Slot) Rest() *Geometry     { return s.rest }

package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for scene setup and time stepping.
var (
	// ErrNotFound indicates a missing attribute, object, feature or snapshot.
	ErrNotFound = errors.New("ipc: not found")

	// ErrDuplicateName indicates an attribute or element name already in use.
	ErrDuplicateName = errors.New("ipc: duplicate name")

	// ErrTypeMismatch indicates an attribute exists with a different element
	// type. Lookups wrap it together with ErrNotFound.
	ErrTypeMismatch = errors.New("ipc: attribute type mismatch")

	// ErrIncompatibleGeometry indicates a constitution applied to the wrong topology.
	ErrIncompatibleGeometry = errors.New("ipc: incompatible geometry")

	// ErrShapeMismatch indicates a state geometry whose cardinality no longer matches the backend.
	ErrShapeMismatch = errors.New("ipc: shape mismatch")

	// ErrInvalidConfig indicates an unknown configuration key or an out of range value.
	ErrInvalidConfig = errors.New("ipc: invalid config")

	// ErrDiverged indicates Newton failed to converge within newton/max_iter.
	ErrDiverged = errors.New("ipc: newton diverged")

	// ErrSanityCheckFailed indicates penetration or invalid state after external mutation.
	ErrSanityCheckFailed = errors.New("ipc: sanity check failed")

	// ErrTopologyChanged indicates an animator altered topology or cardinality.
	ErrTopologyChanged = errors.New("ipc: topology changed by animator")

	// ErrNotInitialized indicates an operation on a world before Init.
	ErrNotInitialized = errors.New("ipc: world not initialized")
)

// StepError wraps a failure of World.Advance with the frame it happened on.
type StepError struct {
	Frame      int
	Iterations int
	Phase      string
	Wrapped    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("frame %d (%s, %d newton iterations): %v", e.Frame, e.Phase, e.Iterations, e.Wrapped)
}

func (e *StepError) Unwrap() error {
	return e.Wrapped
}

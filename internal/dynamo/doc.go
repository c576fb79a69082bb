// Package dynamo provides the primitives shared by every layer of the
// contact simulator.
//
//   - [Vector]: flat degree-of-freedom vector with the usual BLAS-1 helpers
//   - the error taxonomy ([ErrNotFound], [ErrDiverged], ...) and [StepError]
//   - [ParallelFor]: chunked fan-out used by element assembly
//
// # Thread Safety
//
// Vectors are plain slices and carry no locking. [ParallelFor] hands each
// worker a disjoint index range; callers must not write outside it.
package dynamo

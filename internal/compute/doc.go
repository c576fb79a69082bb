// Package compute provides the vector kernels used by the Newton linear
// solve.
//
// An engine picks its backend once, by name or automatically:
//
//   - CUDA: device detection through the CUDA runtime
//   - CPU: row-chunked parallel kernels over runtime.NumCPU workers
//
// The linear solver calls:
//
//	backend := compute.ByName("auto")
//	backend.SpMV(rowPtr, cols, vals, x, y)
//
// Build with CUDA support:
//
//	go build -tags cuda ./...
package compute

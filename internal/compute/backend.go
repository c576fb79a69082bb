package compute

// Backend runs the vector kernels of the Newton linear solve. Matrices are
// passed in compressed sparse row form.
type Backend interface {
	Name() string
	Available() bool
	SpMV(rowPtr, cols []int, vals, x, y []float64)
	Dot(a, b []float64) float64
	Axpy(alpha float64, x, y []float64)
	Cleanup()
}

// AutoSelectBackend prefers CUDA when a device is present.
func AutoSelectBackend() Backend {
	cuda := NewCUDABackend()
	if cuda.Available() {
		return cuda
	}
	return NewCPUBackend()
}

// ByName returns the named backend, falling back to the CPU.
func ByName(name string) Backend {
	switch name {
	case "cuda":
		if cuda := NewCUDABackend(); cuda.Available() {
			return cuda
		}
	case "", "auto":
		return AutoSelectBackend()
	}
	return NewCPUBackend()
}

//go:build !cuda

package compute

type CUDABackend struct{}

func NewCUDABackend() *CUDABackend {
	return &CUDABackend{}
}

func (c *CUDABackend) Name() string    { return "cuda (not available)" }
func (c *CUDABackend) Available() bool { return false }
func (c *CUDABackend) Cleanup()        {}

func (c *CUDABackend) SpMV(rowPtr, cols []int, vals, x, y []float64) {
	NewCPUBackend().SpMV(rowPtr, cols, vals, x, y)
}

func (c *CUDABackend) Dot(a, b []float64) float64 {
	return NewCPUBackend().Dot(a, b)
}

func (c *CUDABackend) Axpy(alpha float64, x, y []float64) {
	NewCPUBackend().Axpy(alpha, x, y)
}

package compute

import (
	"runtime"
	"sync"
)

// parallelThreshold is the row count below which kernels run serially.
const parallelThreshold = 2048

type CPUBackend struct {
	workers int
}

func NewCPUBackend() *CPUBackend {
	return &CPUBackend{
		workers: runtime.NumCPU(),
	}
}

func (c *CPUBackend) Name() string    { return "cpu" }
func (c *CPUBackend) Available() bool { return true }
func (c *CPUBackend) Cleanup()        {}

func (c *CPUBackend) chunks(n int, fn func(worker, start, end int)) {
	if n < parallelThreshold || c.workers <= 1 {
		fn(0, 0, n)
		return
	}
	var wg sync.WaitGroup
	chunkSize := (n + c.workers - 1) / c.workers

	for w := 0; w < c.workers; w++ {
		start := w * chunkSize
		if start >= n {
			break
		}
		end := start + chunkSize
		if end > n {
			end = n
		}
		wg.Add(1)
		go func(worker, start, end int) {
			defer wg.Done()
			fn(worker, start, end)
		}(w, start, end)
	}

	wg.Wait()
}

// SpMV computes y = A x.
func (c *CPUBackend) SpMV(rowPtr, cols []int, vals, x, y []float64) {
	rows := len(rowPtr) - 1
	c.chunks(rows, func(_, start, end int) {
		for i := start; i < end; i++ {
			sum := 0.0
			for k := rowPtr[i]; k < rowPtr[i+1]; k++ {
				sum += vals[k] * x[cols[k]]
			}
			y[i] = sum
		}
	})
}

func (c *CPUBackend) Dot(a, b []float64) float64 {
	partial := make([]float64, c.workers)
	c.chunks(len(a), func(worker, start, end int) {
		sum := 0.0
		for i := start; i < end; i++ {
			sum += a[i] * b[i]
		}
		partial[worker] = sum
	})
	total := 0.0
	for _, s := range partial {
		total += s
	}
	return total
}

// Axpy computes y += alpha x.
func (c *CPUBackend) Axpy(alpha float64, x, y []float64) {
	c.chunks(len(x), func(_, start, end int) {
		for i := start; i < end; i++ {
			y[i] += alpha * x[i]
		}
	})
}

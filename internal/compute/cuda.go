//go:build cuda

package compute

/*
#cgo CFLAGS: -I/opt/cuda/include
#cgo LDFLAGS: -L/opt/cuda/lib64 -lcudart
#include <stdio.h>
#include <stdlib.h>
#include <cuda_runtime_api.h>

static int device_count() {
	int n = 0;
	if (cudaGetDeviceCount(&n) != cudaSuccess) {
		return 0;
	}
	return n;
}

static void device_name(char* out, int len) {
	struct cudaDeviceProp prop;
	if (cudaGetDeviceProperties(&prop, 0) == cudaSuccess) {
		snprintf(out, len, "%s", prop.name);
	}
}
*/
import "C"
import "unsafe"

// CUDABackend reports the device; its kernels currently run on the host.
type CUDABackend struct {
	available  bool
	deviceName string
	cpu        *CPUBackend
}

func NewCUDABackend() *CUDABackend {
	count := int(C.device_count())
	name := ""
	if count > 0 {
		buf := (*C.char)(C.malloc(256))
		defer C.free(unsafe.Pointer(buf))
		*buf = 0
		C.device_name(buf, 256)
		name = C.GoString(buf)
	}
	return &CUDABackend{
		available:  count > 0,
		deviceName: name,
		cpu:        NewCPUBackend(),
	}
}

func (c *CUDABackend) Name() string {
	if c.available {
		return "cuda (" + c.deviceName + ")"
	}
	return "cuda (not available)"
}

func (c *CUDABackend) Available() bool { return c.available }
func (c *CUDABackend) Cleanup()        {}

func (c *CUDABackend) SpMV(rowPtr, cols []int, vals, x, y []float64) {
	c.cpu.SpMV(rowPtr, cols, vals, x, y)
}

func (c *CUDABackend) Dot(a, b []float64) float64 {
	return c.cpu.Dot(a, b)
}

func (c *CUDABackend) Axpy(alpha float64, x, y []float64) {
	c.cpu.Axpy(alpha, x, y)
}

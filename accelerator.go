package paranormal

import (
	"errors"
	"sync"
)

// ErrFallbackToCPU indicates the GPU accelerator cannot handle this operation.
// The caller falls back to CPU blending transparently.
var ErrFallbackToCPU = errors.New("paranormal: falling back to CPU rendering")

// GPURenderTarget provides pixel buffer access for GPU input and output.
// Data is premultiplied RGBA, 4 bytes per pixel, laid out row by row with
// the given Stride.
type GPURenderTarget struct {
	Data          []uint8
	Width, Height int
	Stride        int // bytes per row
}

func renderTarget(r *Raster) GPURenderTarget {
	return GPURenderTarget{Data: r.data, Width: r.width, Height: r.height, Stride: r.Stride()}
}

// OverlayAccelerator runs overlay programs on a GPU.
//
// When registered via RegisterAccelerator, OverlayFilter.Apply tries the
// accelerator first. If it returns ErrFallbackToCPU or any other error, the
// filter blends on the CPU instead.
//
// Users opt in through a blank import:
//
//	import _ "github.com/gogpu/paranormal/gpu"
type OverlayAccelerator interface {
	// Name returns the accelerator name (e.g., "wgpu-overlay").
	Name() string

	// Init initializes GPU resources. Called once during registration.
	Init() error

	// Close releases GPU resources.
	Close()

	// Overlay renders program with base and overlay as its two inputs and
	// writes the result into dst. All three targets share dimensions.
	Overlay(program ShaderProgram, dst, base, overlay GPURenderTarget) error
}

// DeviceProviderAware is implemented by accelerators that can reuse a GPU
// device owned by the host application instead of creating their own.
type DeviceProviderAware interface {
	SetDeviceProvider(provider any) error
}

var (
	accelMu sync.RWMutex
	accel   OverlayAccelerator
)

// RegisterAccelerator registers the GPU accelerator used by overlay filters.
//
// Only one accelerator can be registered; a later call replaces and closes
// the previous one. If a.Init fails the accelerator is not registered.
func RegisterAccelerator(a OverlayAccelerator) error {
	if a == nil {
		return errors.New("paranormal: accelerator must not be nil")
	}
	if err := a.Init(); err != nil {
		return err
	}
	propagateLogger(a, Logger())

	accelMu.Lock()
	old := accel
	accel = a
	accelMu.Unlock()
	if old != nil {
		old.Close()
	}
	Logger().Info("overlay accelerator registered", "name", a.Name())
	return nil
}

// UnregisterAccelerator closes and removes the registered accelerator.
func UnregisterAccelerator() {
	accelMu.Lock()
	old := accel
	accel = nil
	accelMu.Unlock()
	if old != nil {
		old.Close()
	}
}

// Accelerator returns the registered accelerator, or nil if none.
func Accelerator() OverlayAccelerator {
	accelMu.RLock()
	a := accel
	accelMu.RUnlock()
	return a
}

// SetAcceleratorDeviceProvider passes a host GPU device provider to the
// registered accelerator. It is a no-op when no accelerator is registered or
// the accelerator does not support device sharing.
func SetAcceleratorDeviceProvider(provider any) error {
	a := Accelerator()
	if a == nil {
		return nil
	}
	if dpa, ok := a.(DeviceProviderAware); ok {
		return dpa.SetDeviceProvider(provider)
	}
	return nil
}

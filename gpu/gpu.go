//go:build !nogpu

// Package gpu registers the wgpu overlay accelerator.
//
// With the accelerator registered, overlay filters run their shader program
// on the GPU and fall back to CPU blending when no device is available or a
// program cannot be compiled for it.
//
// Usage:
//
//	import _ "github.com/gogpu/paranormal/gpu" // enable GPU compositing
package gpu

import (
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/paranormal"
	gpuimpl "github.com/gogpu/paranormal/internal/gpu"
)

func init() {
	if err := paranormal.RegisterAccelerator(&gpuimpl.OverlayRenderer{}); err != nil {
		paranormal.Logger().Warn("GPU accelerator not available", "err", err)
	}
}

// SetDeviceProvider makes the accelerator share the host application's GPU
// device instead of opening its own. The provider must also expose
// HalDevice() and HalQueue() for direct HAL access.
func SetDeviceProvider(provider gpucontext.DeviceProvider) error {
	return paranormal.SetAcceleratorDeviceProvider(provider)
}

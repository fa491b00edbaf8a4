//go:build !nogpu

// Package gpu runs overlay shader programs on the GPU through wgpu/hal.
//
// OverlayRenderer implements paranormal.OverlayAccelerator. Each program is
// compiled once into a render pipeline: the vertex stage draws a single
// full-target triangle and the fragment stage reads the base and overlay
// pixels from two read-only storage buffers. The result is rendered into an
// RGBA8Unorm texture, copied into a staging buffer, and read back into the
// destination raster.
//
// This is an internal package; applications enable it with
//
//	import _ "github.com/gogpu/paranormal/gpu"
package gpu

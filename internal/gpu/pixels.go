//go:build !nogpu

package gpu

import "github.com/gogpu/paranormal"

// copyPitchAlignment is the BytesPerRow alignment required for
// texture-to-buffer copies.
const copyPitchAlignment = 256

func alignedBytesPerRow(width uint32) uint32 {
	return (width*4 + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)
}

// tightPixels returns the target's pixels without row padding. Each pixel is
// four bytes R, G, B, A, which the shader reads as a little-endian u32.
func tightPixels(t paranormal.GPURenderTarget) []byte {
	rowBytes := t.Width * 4
	if t.Stride == rowBytes {
		return t.Data[:rowBytes*t.Height]
	}
	out := make([]byte, rowBytes*t.Height)
	for y := 0; y < t.Height; y++ {
		copy(out[y*rowBytes:(y+1)*rowBytes], t.Data[y*t.Stride:])
	}
	return out
}

// unpadRows copies readback rows of pitch bytes into dst.
func unpadRows(readback []byte, pitch int, dst paranormal.GPURenderTarget) {
	rowBytes := dst.Width * 4
	for y := 0; y < dst.Height; y++ {
		copy(dst.Data[y*dst.Stride:y*dst.Stride+rowBytes], readback[y*pitch:y*pitch+rowBytes])
	}
}

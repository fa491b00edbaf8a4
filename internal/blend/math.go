// Package blend provides the per-pixel compositing operators used by the
// overlay filter.
//
// All operators work on premultiplied RGBA8 values. Division by 255 is done
// with Alvy Ray Smith's rounding formula so that CPU compositing is bit-for-bit
// reproducible across runs.
//
// References:
//   - Porter-Duff: "Compositing Digital Images" (1984)
//   - W3C Compositing and Blending Level 1: https://www.w3.org/TR/compositing-1/
package blend

// div255 divides x by 255, rounding to nearest, without using division.
//
// Formula: ((x + 128) + ((x + 128) >> 8)) >> 8
func div255(x uint16) uint16 {
	t := x + 128
	return (t + (t >> 8)) >> 8
}

// mulDiv255 multiplies two bytes and divides by 255.
func mulDiv255(a, b byte) byte {
	return byte(div255(uint16(a) * uint16(b)))
}

// addClamp adds two bytes and clamps to 255.
func addClamp(a, b byte) byte {
	sum := uint16(a) + uint16(b)
	if sum > 255 {
		return 255
	}
	return byte(sum)
}

// clamp255 clamps a uint16 to byte range [0, 255].
func clamp255(x uint16) byte {
	if x > 255 {
		return 255
	}
	return byte(x)
}

package blend

// Mode selects a compositing operator.
type Mode uint8

const (
	ModeSourceOver Mode = iota // Result: S + D*(1-Sa) [default]
	ModeSource                 // Result: S
	ModeMultiply               // Result: S*D + S*(1-Da) + D*(1-Sa)
	ModeScreen                 // Result: S + D - S*D
	ModePlus                   // Result: S + D (clamped to 255)
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeSourceOver:
		return "SourceOver"
	case ModeSource:
		return "Source"
	case ModeMultiply:
		return "Multiply"
	case ModeScreen:
		return "Screen"
	case ModePlus:
		return "Plus"
	default:
		return "Unknown"
	}
}

// Func is the signature for blend operations.
// All values are premultiplied alpha, 0-255.
//   - sr, sg, sb, sa: source (overlay) color
//   - dr, dg, db, da: destination (base) color
type Func func(sr, sg, sb, sa, dr, dg, db, da byte) (r, g, b, a byte)

// Get returns the blend function for the given mode.
// Unknown modes fall back to source-over.
func Get(mode Mode) Func {
	switch mode {
	case ModeSource:
		return blendSource
	case ModeMultiply:
		return blendMultiply
	case ModeScreen:
		return blendScreen
	case ModePlus:
		return blendPlus
	default:
		return blendSourceOver
	}
}

// Span blends overlay onto base pixel by pixel and writes the result into dst.
// All three slices hold RGBA8 pixels; dst may alias base. Only the common
// prefix of whole pixels is processed.
func Span(dst, base, overlay []byte, fn Func) {
	n := min(len(dst), len(base), len(overlay)) &^ 3
	for i := 0; i < n; i += 4 {
		dst[i], dst[i+1], dst[i+2], dst[i+3] = fn(
			overlay[i], overlay[i+1], overlay[i+2], overlay[i+3],
			base[i], base[i+1], base[i+2], base[i+3],
		)
	}
}

func blendSource(sr, sg, sb, sa, _, _, _, _ byte) (byte, byte, byte, byte) {
	return sr, sg, sb, sa
}

// blendSourceOver composites source over destination.
func blendSourceOver(sr, sg, sb, sa, dr, dg, db, da byte) (byte, byte, byte, byte) {
	invSa := 255 - sa
	return addClamp(sr, mulDiv255(dr, invSa)),
		addClamp(sg, mulDiv255(dg, invSa)),
		addClamp(sb, mulDiv255(db, invSa)),
		addClamp(sa, mulDiv255(da, invSa))
}

func blendMultiply(sr, sg, sb, sa, dr, dg, db, da byte) (byte, byte, byte, byte) {
	invSa, invDa := 255-sa, 255-da
	ch := func(s, d byte) byte {
		return addClamp(addClamp(mulDiv255(s, d), mulDiv255(s, invDa)), mulDiv255(d, invSa))
	}
	return ch(sr, dr), ch(sg, dg), ch(sb, db), unionAlpha(sa, da)
}

func blendScreen(sr, sg, sb, sa, dr, dg, db, da byte) (byte, byte, byte, byte) {
	ch := func(s, d byte) byte {
		return clamp255(uint16(s) + uint16(d) - uint16(mulDiv255(s, d)))
	}
	return ch(sr, dr), ch(sg, dg), ch(sb, db), unionAlpha(sa, da)
}

func blendPlus(sr, sg, sb, sa, dr, dg, db, da byte) (byte, byte, byte, byte) {
	return addClamp(sr, dr), addClamp(sg, dg), addClamp(sb, db), addClamp(sa, da)
}

// unionAlpha is Sa + Da - Sa*Da, the coverage of two overlapping layers.
func unionAlpha(sa, da byte) byte {
	return clamp255(uint16(sa) + uint16(da) - uint16(mulDiv255(sa, da)))
}

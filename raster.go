package paranormal

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"

	"golang.org/x/image/draw"
)

// Size is a canvas or raster size in pixels.
type Size struct {
	Width  int
	Height int
}

// Valid reports whether both dimensions are positive.
func (s Size) Valid() bool {
	return s.Width > 0 && s.Height > 0
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Raster is a fixed-size grid of premultiplied RGBA8 pixels, laid out row by
// row with no padding.
//
// Raster implements image.Image with color.RGBAModel.
type Raster struct {
	width  int
	height int
	data   []uint8
}

// NewRaster creates a fully transparent raster.
// It returns ErrInvalidSize if either dimension is not positive.
func NewRaster(width, height int) (*Raster, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	return &Raster{
		width:  width,
		height: height,
		data:   make([]uint8, width*height*4),
	}, nil
}

// NewRasterFromData wraps existing premultiplied RGBA8 pixel data without
// copying. len(data) must be exactly width*height*4.
func NewRasterFromData(width, height int, data []uint8) (*Raster, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	if len(data) != width*height*4 {
		return nil, fmt.Errorf("%w: %d bytes for %dx%d", ErrDimensionMismatch, len(data), width, height)
	}
	return &Raster{width: width, height: height, data: data}, nil
}

// Width returns the width of the raster.
func (r *Raster) Width() int { return r.width }

// Height returns the height of the raster.
func (r *Raster) Height() int { return r.height }

// Size returns the raster dimensions.
func (r *Raster) Size() Size { return Size{Width: r.width, Height: r.height} }

// Stride returns the number of bytes per row.
func (r *Raster) Stride() int { return r.width * 4 }

// Data returns the raw premultiplied RGBA8 pixel data.
func (r *Raster) Data() []uint8 { return r.data }

// SetRGBA sets a single pixel. Out-of-bounds coordinates are ignored.
func (r *Raster) SetRGBA(x, y int, c color.RGBA) {
	if x < 0 || x >= r.width || y < 0 || y >= r.height {
		return
	}
	i := (y*r.width + x) * 4
	r.data[i+0] = c.R
	r.data[i+1] = c.G
	r.data[i+2] = c.B
	r.data[i+3] = c.A
}

// RGBAAt returns a single pixel. Out-of-bounds coordinates yield transparent.
func (r *Raster) RGBAAt(x, y int) color.RGBA {
	if x < 0 || x >= r.width || y < 0 || y >= r.height {
		return color.RGBA{}
	}
	i := (y*r.width + x) * 4
	return color.RGBA{R: r.data[i+0], G: r.data[i+1], B: r.data[i+2], A: r.data[i+3]}
}

// Fill sets every pixel to c.
func (r *Raster) Fill(c color.RGBA) {
	for i := 0; i < len(r.data); i += 4 {
		r.data[i+0] = c.R
		r.data[i+1] = c.G
		r.data[i+2] = c.B
		r.data[i+3] = c.A
	}
}

// IsTransparent reports whether every pixel has zero alpha.
func (r *Raster) IsTransparent() bool {
	for i := 3; i < len(r.data); i += 4 {
		if r.data[i] != 0 {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (r *Raster) Clone() *Raster {
	data := make([]uint8, len(r.data))
	copy(data, r.data)
	return &Raster{width: r.width, height: r.height, data: data}
}

// Equal reports whether o has the same dimensions and pixels.
func (r *Raster) Equal(o *Raster) bool {
	if r == nil || o == nil {
		return r == o
	}
	return r.width == o.width && r.height == o.height && bytes.Equal(r.data, o.data)
}

// CopyFrom replaces r's pixels with src's.
// It returns ErrDimensionMismatch if the sizes differ.
func (r *Raster) CopyFrom(src *Raster) error {
	if src.width != r.width || src.height != r.height {
		return fmt.Errorf("%w: %v into %v", ErrDimensionMismatch, src.Size(), r.Size())
	}
	copy(r.data, src.data)
	return nil
}

// ToImage returns a copy of the raster as an *image.RGBA.
func (r *Raster) ToImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, r.width, r.height))
	copy(img.Pix, r.data)
	return img
}

// RasterFromImage converts any image into a raster of the same size.
func RasterFromImage(img image.Image) (*Raster, error) {
	b := img.Bounds()
	r, err := NewRaster(b.Dx(), b.Dy())
	if err != nil {
		return nil, err
	}
	dst := &image.RGBA{Pix: r.data, Stride: r.Stride(), Rect: image.Rect(0, 0, r.width, r.height)}
	draw.Draw(dst, dst.Rect, img, b.Min, draw.Src)
	return r, nil
}

// EncodePNG writes the raster as a PNG image.
func (r *Raster) EncodePNG(w io.Writer) error {
	return png.Encode(w, r.ToImage())
}

// SavePNG saves the raster to a PNG file.
func (r *Raster) SavePNG(path string) error {
	f, err := os.Create(path) //nolint:gosec // path is user-provided intentionally
	if err != nil {
		return err
	}
	if err := r.EncodePNG(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// At implements the image.Image interface.
func (r *Raster) At(x, y int) color.Color {
	return r.RGBAAt(x, y)
}

// Bounds implements the image.Image interface.
func (r *Raster) Bounds() image.Rectangle {
	return image.Rect(0, 0, r.width, r.height)
}

// ColorModel implements the image.Image interface.
func (r *Raster) ColorModel() color.Model {
	return color.RGBAModel
}

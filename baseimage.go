package paranormal

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"os"

	"github.com/h2non/filetype"
	_ "golang.org/x/image/bmp"  // register BMP decoder
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder
)

// BaseImageFallback is the color of the canvas used when a document has no
// loadable base image.
var BaseImageFallback = color.RGBA{R: 128, G: 128, B: 128, A: 255}

var baseImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/bmp":  true,
	"image/tiff": true,
	"image/webp": true,
}

// LoadBaseImage reads the image at path and returns it as a raster of the
// given canvas size, rescaling if the image has other dimensions.
// Every failure wraps ErrMissingBaseImage.
func LoadBaseImage(path string, size Size) (*Raster, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: no path", ErrMissingBaseImage)
	}
	if !size.Valid() {
		return nil, fmt.Errorf("%w: canvas %v", ErrInvalidSize, size)
	}
	data, err := os.ReadFile(path) //nolint:gosec // path comes from document settings
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMissingBaseImage, err)
	}
	return DecodeBaseImage(data, size)
}

// DecodeBaseImage decodes an encoded PNG, JPEG, GIF, BMP, TIFF, or WebP
// image into a raster of the given size.
func DecodeBaseImage(data []byte, size Size) (*Raster, error) {
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return nil, fmt.Errorf("%w: unrecognized file type", ErrMissingBaseImage)
	}
	if !baseImageTypes[kind.MIME.Value] {
		return nil, fmt.Errorf("%w: unsupported type %s", ErrMissingBaseImage, kind.MIME.Value)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrMissingBaseImage, kind.Extension, err)
	}

	b := img.Bounds()
	if b.Dx() == size.Width && b.Dy() == size.Height {
		return RasterFromImage(img)
	}
	r, err := NewRaster(size.Width, size.Height)
	if err != nil {
		return nil, err
	}
	dst := &image.RGBA{Pix: r.data, Stride: r.Stride(), Rect: image.Rect(0, 0, size.Width, size.Height)}
	draw.CatmullRom.Scale(dst, dst.Rect, img, b, draw.Src, nil)
	return r, nil
}

// fallbackBaseImage returns a solid BaseImageFallback canvas.
func fallbackBaseImage(size Size) (*Raster, error) {
	r, err := NewRaster(size.Width, size.Height)
	if err != nil {
		return nil, err
	}
	r.Fill(BaseImageFallback)
	return r, nil
}

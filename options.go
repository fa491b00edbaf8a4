package paranormal

import (
	"image/color"
)

// DefaultCanvasSize is the canvas of a new document when no size is given.
var DefaultCanvasSize = Size{Width: 512, Height: 512}

// DocumentOption configures a Document during OpenDocument.
// Use functional options to customize document behavior.
//
// Example:
//
//	// New 1024x1024 document on an in-memory store
//	doc, err := paranormal.OpenDocument(paranormal.NewMemoryStore(),
//	    paranormal.WithCanvasSize(1024, 1024))
//
//	// Custom overlay filter (dependency injection)
//	filter, _ := paranormal.NewOverlayFilterFromResource("Multiply")
//	doc, err := paranormal.OpenDocument(store, paranormal.WithFilter(filter))
type DocumentOption func(*documentOptions)

// documentOptions holds optional configuration for Document creation.
type documentOptions struct {
	size          Size
	baseImagePath string
	filter        *OverlayFilter
	preview       PreviewRenderer
	historyLimit  int
	prefs         Preferences
	watchBase     bool
	refraction    float32
}

// defaultDocumentOptions returns the default document options.
func defaultDocumentOptions() documentOptions {
	return documentOptions{
		size:       DefaultCanvasSize,
		prefs:      DefaultPreferences(),
		refraction: DefaultIndexOfRefraction,
	}
}

// WithCanvasSize sets the canvas of a newly initialized document.
// It has no effect when the store already holds a document.
func WithCanvasSize(width, height int) DocumentOption {
	return func(o *documentOptions) {
		o.size = Size{Width: width, Height: height}
	}
}

// WithBaseImagePath sets the base image of a newly initialized document.
func WithBaseImagePath(path string) DocumentOption {
	return func(o *documentOptions) {
		o.baseImagePath = path
	}
}

// WithRefraction sets the index of refraction of a newly initialized
// document.
func WithRefraction(v float32) DocumentOption {
	return func(o *documentOptions) {
		o.refraction = v
	}
}

// WithFilter sets the overlay filter used for compositing. The document
// does not close a filter passed this way. Without it the document builds
// and owns the default SpriteOverlay filter.
func WithFilter(f *OverlayFilter) DocumentOption {
	return func(o *documentOptions) {
		o.filter = f
	}
}

// WithPreviewRenderer sets the source of the live preview image.
func WithPreviewRenderer(p PreviewRenderer) DocumentOption {
	return func(o *documentOptions) {
		o.preview = p
	}
}

// WithHistoryLimit sets the number of undo entries kept.
func WithHistoryLimit(n int) DocumentOption {
	return func(o *documentOptions) {
		o.historyLimit = n
	}
}

// WithPreferences sets the initial brush preferences.
func WithPreferences(p Preferences) DocumentOption {
	return func(o *documentOptions) {
		o.prefs = p
	}
}

// WithBaseImageWatch watches the base image file and redraws the preview
// when it changes on disk.
func WithBaseImageWatch() DocumentOption {
	return func(o *documentOptions) {
		o.watchBase = true
	}
}

// EditorViewMode selects what the editor shows.
type EditorViewMode uint8

const (
	// ViewNormal shows the composited normal map.
	ViewNormal EditorViewMode = iota
	// ViewPreview shows the shaded preview.
	ViewPreview
)

func (m EditorViewMode) String() string {
	switch m {
	case ViewNormal:
		return "Normal"
	case ViewPreview:
		return "Preview"
	default:
		return "Unknown"
	}
}

// Preferences are the user's brush settings. They are not persisted with
// the document and are not undoable.
type Preferences struct {
	Color          color.NRGBA
	BrushSize      float32
	BrushOpacity   float32
	BrushHardness  float32
	GaussianRadius float32
}

// DefaultPreferences returns the brush settings of a new editor session:
// a flat-normal blue, size 30, fully opaque, hardness 0.9, blur radius 30.
func DefaultPreferences() Preferences {
	return Preferences{
		Color:          color.NRGBA{R: 128, G: 128, B: 255, A: 255},
		BrushSize:      30,
		BrushOpacity:   1,
		BrushHardness:  0.9,
		GaussianRadius: 30,
	}
}

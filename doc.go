// Package paranormal is the document core of a layered normal map editor.
//
// # Overview
//
// A Document owns a tree of raster layers and keeps a composited normal
// image up to date. Every visible layer is drawn over its parent with an
// overlay filter, in pre-order: children in order, each child's own
// subtree before the next sibling. Edits go through the Document so they
// can be undone, and every edit that changes pixels schedules a new
// composite on a background worker.
//
// # Quick Start
//
//	import "github.com/gogpu/paranormal"
//
//	doc, err := paranormal.OpenDocument(paranormal.NewMemoryStore(),
//	    paranormal.WithCanvasSize(512, 512))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer doc.Close()
//
//	layer, _ := doc.AddLayer(doc.Root())
//	_ = doc.UpdateLayerPixels(layer, bumps)
//
//	_ = doc.WaitForImage(ctx, doc.Generation())
//	doc.ExportImage().SavePNG("normal.png")
//
// # Compositing
//
// The Compositor renders on a single goroutine. Requests that arrive while
// a render is running replace each other; only the newest is rendered
// next. Each request carries a generation number and a published image
// never goes back to an older generation. When a render fails the previous
// image stays published.
//
// # Overlay Filters
//
// An OverlayFilter pairs a WGSL shader program with the CPU blend that
// reproduces it. The embedded programs are SpriteOverlay (premultiplied
// source-over, the default), Multiply, Screen, and Additive. Custom programs
// are compiled with naga when the filter is created.
//
// # GPU Acceleration
//
// Importing the gpu package registers a wgpu accelerator that runs filter
// programs on the GPU. Without it, or when a GPU is not available, filters
// blend on the CPU using a worker pool.
//
//	import _ "github.com/gogpu/paranormal/gpu"
//
// # Pixel Format
//
// Rasters hold premultiplied RGBA, 8 bits per channel, rows top to bottom.
package paranormal

// Version information
const (
	// Version is the current version of the library
	Version = "0.3.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 3

	// VersionPatch is the patch version
	VersionPatch = 0

	// VersionPrerelease is the prerelease identifier
	VersionPrerelease = ""
)

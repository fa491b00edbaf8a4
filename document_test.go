package paranormal

import (
	"context"
	"errors"
	"image/color"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestDocument opens a document on a fresh MemoryStore with a CPU-only
// filter and closes it when the test ends.
func openTestDocument(t *testing.T, opts ...DocumentOption) (*Document, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	opts = append([]DocumentOption{WithFilter(cpuFilter(BlendSourceOver))}, opts...)
	doc, err := OpenDocument(store, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = doc.Close() })
	return doc, store
}

func waitForImage(t *testing.T, doc *Document) *NormalImage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, doc.WaitForImage(ctx, doc.Generation()))
	img := doc.NormalImage()
	require.NotNil(t, img)
	return img
}

type stubPreview struct{ r *Raster }

func (p stubPreview) RenderedPreviewImage() *Raster { return p.r }

func TestOpenDocumentDefaults(t *testing.T) {
	doc, store := openTestDocument(t)

	assert.Equal(t, DefaultCanvasSize, doc.Size())
	assert.Equal(t, DefaultIndexOfRefraction, doc.Refraction())
	assert.Equal(t, RootLayerName, doc.Root().Name())
	require.Equal(t, 1, doc.Root().NumChildren())
	assert.Equal(t, DefaultLayerName, doc.Root().Child(0).Name())
	assert.Same(t, doc.Root().Child(0), doc.CurrentLayer())
	assert.True(t, doc.Root().Child(0).Raster().IsTransparent())
	assert.False(t, doc.CanUndo(), "setup must not be undoable")
	assert.Equal(t, DefaultPreferences(), doc.Preferences())
	assert.Equal(t, ViewNormal, doc.ViewMode())

	settings, err := store.FetchSettings()
	require.NoError(t, err)
	require.NotNil(t, settings)
	assert.Same(t, doc.Root(), settings.Root)
	refraction, err := store.FetchRefraction()
	require.NoError(t, err)
	assert.Equal(t, float32(0.8), refraction.IndexOfRefraction)

	img := waitForImage(t, doc)
	assert.NoError(t, doc.RenderErr())
	assert.True(t, img.Raster.IsTransparent())
	assert.Equal(t, DefaultCanvasSize, img.Raster.Size())
}

func TestOpenDocumentDefaultFilter(t *testing.T) {
	doc, err := OpenDocument(NewMemoryStore(), WithCanvasSize(4, 4))
	skipIfCompilerLimited(t, err)
	require.NoError(t, err)
	defer doc.Close()

	assert.Equal(t, DefaultShaderResource, doc.filter.Program().Name)
	assert.True(t, doc.ownsFilter)
}

func TestOpenDocumentReloadsStore(t *testing.T) {
	first, store := openTestDocument(t, WithCanvasSize(8, 4))
	l, err := first.AddLayer(first.Root())
	require.NoError(t, err)
	require.NoError(t, first.RenameLayer(l, "Detail"))
	require.NoError(t, first.SetRefraction(1.33))
	require.NoError(t, first.Close())

	doc, err := OpenDocument(store, WithFilter(cpuFilter(BlendSourceOver)), WithCanvasSize(99, 99))
	require.NoError(t, err)
	defer doc.Close()

	assert.Equal(t, Size{Width: 8, Height: 4}, doc.Size())
	assert.Equal(t, float32(1.33), doc.Refraction())
	found, ok := doc.Tree().Find(l.ID())
	require.True(t, ok)
	assert.Equal(t, "Detail", found.Name())
}

func TestOpenDocumentFetchError(t *testing.T) {
	store := NewMemoryStore()
	diskErr := errors.New("disk on fire")
	store.FetchErr = diskErr

	doc, err := OpenDocument(store, WithFilter(cpuFilter(BlendSourceOver)))
	assert.Nil(t, doc)
	assert.ErrorIs(t, err, ErrPersistenceFetch)
	assert.ErrorIs(t, err, diskErr)
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestOpenDocumentInvalidCanvas(t *testing.T) {
	store := NewMemoryStore()
	_, err := OpenDocument(store, WithFilter(cpuFilter(BlendSourceOver)), WithCanvasSize(0, 0))
	assert.ErrorIs(t, err, ErrInvalidSize)

	settings, _ := store.FetchSettings()
	assert.Nil(t, settings, "a failed open must not store a partial document")
}

func TestDocumentAddLayerZeroCanvas(t *testing.T) {
	doc, _ := openTestDocument(t, WithCanvasSize(2, 2))
	doc.tree.size = Size{}
	before := doc.Root().NumChildren()

	l, err := doc.AddLayer(doc.Root())
	assert.ErrorIs(t, err, ErrInvalidSize)
	assert.Nil(t, l)
	assert.Equal(t, before, doc.Root().NumChildren())
	assert.False(t, doc.CanUndo())
}

func TestDocumentScenarioTopmostOpaqueWins(t *testing.T) {
	doc, _ := openTestDocument(t, WithCanvasSize(4, 4))
	require.NoError(t, doc.RemoveLayer(doc.CurrentLayer()))

	l1, err := doc.AddLayer(doc.Root())
	require.NoError(t, err)
	l2, err := doc.AddLayer(doc.Root())
	require.NoError(t, err)
	require.NoError(t, doc.UpdateLayerPixels(l1, mustRaster(t, 4, 4, opaqueRed)))
	require.NoError(t, doc.UpdateLayerPixels(l2, mustRaster(t, 4, 4, opaqueBlue)))

	img := waitForImage(t, doc)
	assert.True(t, img.Raster.Equal(l2.Raster()), "composite should equal the top opaque layer")
	assert.Same(t, img.Raster, doc.ExportImage())
}

func TestDocumentMutationsScheduleRecompute(t *testing.T) {
	doc, _ := openTestDocument(t, WithCanvasSize(2, 2))
	layer := doc.CurrentLayer()

	var mu sync.Mutex
	var changes []Change
	doc.DocumentChanged.Subscribe(func(c Change) {
		mu.Lock()
		changes = append(changes, c)
		mu.Unlock()
	})

	gen := doc.Generation()
	require.NoError(t, doc.UpdateLayerPixels(layer, mustRaster(t, 2, 2, opaqueRed)))
	assert.Greater(t, doc.Generation(), gen, "pixel change should schedule a render")

	gen = doc.Generation()
	require.NoError(t, doc.RenameLayer(layer, "Renamed"))
	assert.Equal(t, gen, doc.Generation(), "renaming does not change the image")

	require.NoError(t, doc.SetLayerVisible(layer, false))
	assert.Greater(t, doc.Generation(), gen)

	img := waitForImage(t, doc)
	assert.True(t, img.Raster.IsTransparent(), "hidden layer should not contribute")

	mu.Lock()
	defer mu.Unlock()
	kinds := make([]ChangeKind, len(changes))
	for i, c := range changes {
		kinds[i] = c.Kind
		assert.Equal(t, layer.ID(), c.LayerID)
	}
	assert.Equal(t, []ChangeKind{ChangeLayerPixels, ChangeLayerRenamed, ChangeLayerVisibility}, kinds)
}

func TestDocumentUndoRedo(t *testing.T) {
	doc, _ := openTestDocument(t, WithCanvasSize(2, 2))
	layer := doc.CurrentLayer()

	require.NoError(t, doc.UpdateLayerPixels(layer, mustRaster(t, 2, 2, opaqueRed)))
	assert.Equal(t, opaqueRed, waitForImage(t, doc).Raster.RGBAAt(0, 0))

	require.NoError(t, doc.Undo())
	assert.True(t, waitForImage(t, doc).Raster.IsTransparent(), "undo should recompute the image")
	assert.True(t, doc.CanRedo())

	require.NoError(t, doc.Redo())
	assert.Equal(t, opaqueRed, waitForImage(t, doc).Raster.RGBAAt(1, 1))

	assert.ErrorIs(t, doc.Redo(), ErrNothingToRedo)
}

func TestDocumentGroupedEdit(t *testing.T) {
	doc, _ := openTestDocument(t, WithCanvasSize(2, 2))
	base := doc.CurrentLayer()

	doc.BeginEdit("Stroke")
	top, err := doc.AddLayer(doc.Root())
	require.NoError(t, err)
	require.NoError(t, doc.UpdateLayerPixels(top, mustRaster(t, 2, 2, opaqueBlue)))
	doc.EndEdit()

	assert.Equal(t, 1, doc.History().Len())
	assert.Equal(t, "Stroke", doc.History().UndoName())

	require.NoError(t, doc.Undo())
	assert.False(t, doc.Tree().Contains(top))
	assert.Same(t, base, doc.CurrentLayer())
}

func TestDocumentRemoveCurrentLayer(t *testing.T) {
	doc, _ := openTestDocument(t, WithCanvasSize(2, 2))
	def := doc.CurrentLayer()
	other, err := doc.AddLayer(doc.Root())
	require.NoError(t, err)

	require.NoError(t, doc.RemoveLayer(def))
	assert.Same(t, other, doc.CurrentLayer())

	assert.ErrorIs(t, doc.RemoveLayer(doc.Root()), ErrRootLayer)
	assert.ErrorIs(t, doc.SetCurrentLayer(def), ErrLayerNotFound)
}

func TestDocumentRefraction(t *testing.T) {
	doc, _ := openTestDocument(t, WithCanvasSize(2, 2))
	redraws := 0
	doc.PreviewNeedsRedraw.Subscribe(func(struct{}) { redraws++ })
	gen := doc.Generation()

	require.NoError(t, doc.SetRefraction(1.5))
	assert.Equal(t, float32(1.5), doc.Refraction())
	assert.Equal(t, 1, redraws)
	assert.Equal(t, gen, doc.Generation(), "refraction does not change the normal image")

	require.NoError(t, doc.Undo())
	assert.Equal(t, DefaultIndexOfRefraction, doc.Refraction())
}

func TestDocumentRefractionStored(t *testing.T) {
	doc, store := openTestDocument(t, WithCanvasSize(2, 2))
	stored := func() float32 {
		r, err := store.FetchRefraction()
		require.NoError(t, err)
		return r.IndexOfRefraction
	}

	require.NoError(t, doc.SetRefraction(1.5))
	assert.Equal(t, float32(1.5), stored())
	require.NoError(t, doc.Undo())
	assert.Equal(t, DefaultIndexOfRefraction, stored())
	require.NoError(t, doc.Redo())
	assert.Equal(t, float32(1.5), stored())
	require.NoError(t, doc.Close())

	reopened, err := OpenDocument(store, WithFilter(cpuFilter(BlendSourceOver)))
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, float32(1.5), reopened.Refraction())
}

func TestDocumentMissingLayer(t *testing.T) {
	doc, _ := openTestDocument(t, WithCanvasSize(2, 2))
	detached, err := CreateEmpty(Size{Width: 2, Height: 2})
	require.NoError(t, err)
	pixels := mustRaster(t, 2, 2, opaqueRed)

	for _, tt := range []struct {
		name  string
		layer *Layer
	}{
		{"nil", nil},
		{"detached", detached},
	} {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, doc.SetLayerVisible(tt.layer, false), ErrLayerNotFound)
			assert.ErrorIs(t, doc.RenameLayer(tt.layer, "Ghost"), ErrLayerNotFound)
			assert.ErrorIs(t, doc.UpdateLayerPixels(tt.layer, pixels), ErrLayerNotFound)
			assert.False(t, doc.CanUndo(), "failed edits are not recorded")
		})
	}
}

func TestDocumentEditorImage(t *testing.T) {
	preview := mustRaster(t, 2, 2, opaqueBlue)
	doc, _ := openTestDocument(t, WithCanvasSize(2, 2), WithPreviewRenderer(stubPreview{preview}))
	normal := waitForImage(t, doc).Raster

	assert.Same(t, normal, doc.CurrentEditorImage())

	redraws := 0
	doc.PreviewNeedsRedraw.Subscribe(func(struct{}) { redraws++ })
	doc.SetViewMode(ViewPreview)
	doc.SetViewMode(ViewPreview)
	assert.Equal(t, 1, redraws)
	assert.Same(t, preview, doc.CurrentEditorImage())
	assert.Same(t, normal, doc.ExportImage(), "export ignores the view mode")
}

func TestDocumentEditorImageWithoutPreview(t *testing.T) {
	doc, _ := openTestDocument(t, WithCanvasSize(2, 2))
	doc.SetViewMode(ViewPreview)
	assert.Nil(t, doc.CurrentEditorImage())
}

func TestDocumentBaseImageFallback(t *testing.T) {
	doc, _ := openTestDocument(t, WithCanvasSize(3, 2), WithBaseImagePath(filepath.Join(t.TempDir(), "missing.png")))

	img := doc.BaseImage()
	require.NotNil(t, img)
	assert.Equal(t, Size{Width: 3, Height: 2}, img.Size())
	assert.Equal(t, BaseImageFallback, img.RGBAAt(2, 1))
	assert.Same(t, img, doc.BaseImage(), "base image should be cached")
}

func TestDocumentBaseImageFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "base.png")
	require.NoError(t, mustRaster(t, 4, 4, opaqueRed).SavePNG(path))

	doc, _ := openTestDocument(t, WithCanvasSize(4, 4))
	assert.Equal(t, BaseImageFallback, doc.BaseImage().RGBAAt(0, 0))

	require.NoError(t, doc.SetBaseImagePath(path))
	assert.Equal(t, path, doc.Settings().BaseImagePath)
	assert.Equal(t, opaqueRed, doc.BaseImage().RGBAAt(0, 0), "changing the path should invalidate the cache")

	require.NoError(t, doc.Undo())
	assert.Equal(t, "", doc.Settings().BaseImagePath)
	assert.Equal(t, BaseImageFallback, doc.BaseImage().RGBAAt(3, 3))
}

func TestDocumentWatchesBaseImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "base.png")
	require.NoError(t, mustRaster(t, 2, 2, opaqueRed).SavePNG(path))

	doc, _ := openTestDocument(t, WithCanvasSize(2, 2), WithBaseImagePath(path), WithBaseImageWatch())
	require.Equal(t, opaqueRed, doc.BaseImage().RGBAAt(0, 0))

	redraw := make(chan struct{}, 16)
	doc.PreviewNeedsRedraw.Subscribe(func(struct{}) {
		select {
		case redraw <- struct{}{}:
		default:
		}
	})

	require.NoError(t, mustRaster(t, 2, 2, opaqueBlue).SavePNG(path))
	select {
	case <-redraw:
	case <-time.After(5 * time.Second):
		t.Fatal("no redraw after the base image changed on disk")
	}
	assert.Eventually(t, func() bool {
		return doc.BaseImage().RGBAAt(0, 0) == opaqueBlue
	}, 5*time.Second, 10*time.Millisecond)
}

func TestDocumentWatchStartsWhenBaseImageSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "base.png")
	doc, _ := openTestDocument(t, WithCanvasSize(2, 2), WithBaseImageWatch())
	assert.Nil(t, doc.watcher)

	require.NoError(t, doc.SetBaseImagePath(path))
	require.NotNil(t, doc.watcher)
	abs, err := filepath.Abs(path)
	require.NoError(t, err)
	assert.Equal(t, abs, doc.watcher.Path())

	require.NoError(t, doc.SetBaseImagePath(""))
	assert.Nil(t, doc.watcher)

	require.NoError(t, doc.Undo())
	require.NotNil(t, doc.watcher)
	assert.Equal(t, abs, doc.watcher.Path())
}

func TestDocumentNoWatchWithoutOption(t *testing.T) {
	doc, _ := openTestDocument(t, WithCanvasSize(2, 2))
	require.NoError(t, doc.SetBaseImagePath(filepath.Join(t.TempDir(), "base.png")))
	assert.Nil(t, doc.watcher)
}

func TestDocumentNormalImageChanged(t *testing.T) {
	doc, _ := openTestDocument(t, WithCanvasSize(2, 2))
	waitForImage(t, doc)

	got := make(chan *NormalImage, 4)
	doc.NormalImageChanged.Subscribe(func(img *NormalImage) { got <- img })

	require.NoError(t, doc.UpdateLayerPixels(doc.CurrentLayer(), mustRaster(t, 2, 2, color.RGBA{G: 200, A: 255})))
	select {
	case img := <-got:
		assert.Equal(t, color.RGBA{G: 200, A: 255}, img.Raster.RGBAAt(0, 0))
	case <-time.After(5 * time.Second):
		t.Fatal("NormalImageChanged not emitted")
	}
}

func TestDocumentCloseStopsRendering(t *testing.T) {
	doc, err := OpenDocument(NewMemoryStore(), WithFilter(cpuFilter(BlendSourceOver)), WithCanvasSize(2, 2))
	require.NoError(t, err)
	require.NoError(t, doc.Close())

	err = doc.WaitForImage(context.Background(), doc.Generation()+1)
	assert.ErrorIs(t, err, ErrCompositorClosed)
}

func TestDocumentSettingsCopy(t *testing.T) {
	doc, _ := openTestDocument(t, WithCanvasSize(5, 6))
	s := doc.Settings()
	s.BaseImagePath = "elsewhere.png"
	assert.Equal(t, "", doc.Settings().BaseImagePath)
	assert.Equal(t, 5, s.Width)
	assert.Equal(t, 6, s.Height)
}

package paranormal

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// PreviewRenderer produces the shaded preview shown in ViewPreview mode.
type PreviewRenderer interface {
	RenderedPreviewImage() *Raster
}

// Document is the state of one normal-map painting document: settings, the
// layer tree, refraction, and the composited normal image derived from them.
//
// All mutating methods must be called from a single goroutine. Each
// mutation is recorded in the document's history, reported through
// DocumentChanged, and, if it changes the tree, schedules one coalesced
// recompute of the normal image. NormalImage, ExportImage, and BaseImage
// may be called from any goroutine.
type Document struct {
	store      Store
	settings   *DocumentSettings
	refraction *Refraction // shared with the store
	tree       *Tree
	history    *History
	current    *Layer

	filter     *OverlayFilter
	ownsFilter bool
	compositor *Compositor
	preview    PreviewRenderer
	watcher    *BaseImageWatcher
	watchBase  bool

	prefs    Preferences
	viewMode EditorViewMode

	baseMu    sync.Mutex
	baseImage *Raster

	// DocumentChanged is emitted after every mutation, including undo and
	// redo.
	DocumentChanged Signal[Change]

	// NormalImageChanged is emitted on the compositor goroutine when a new
	// normal image is published.
	NormalImageChanged Signal[*NormalImage]

	// PreviewNeedsRedraw is emitted when something only the preview depends
	// on changes: refraction, base image, or the view mode.
	PreviewNeedsRedraw Signal[struct{}]

	cancels []func()
}

// OpenDocument loads the document held by store, or initializes a new one
// if the store is empty. A new document holds a root layer with one empty
// "Default Layer" child and a refraction of 0.8, and starts with an empty
// history.
//
// Fetch failures wrap ErrPersistenceFetch. OpenDocument schedules the first
// normal image render before returning.
func OpenDocument(store Store, opts ...DocumentOption) (*Document, error) {
	o := defaultDocumentOptions()
	for _, opt := range opts {
		opt(&o)
	}

	d := &Document{
		store:   store,
		history: NewHistory(o.historyLimit),
		preview:   o.preview,
		prefs:     o.prefs,
		watchBase: o.watchBase,
	}

	settings, err := store.FetchSettings()
	if err != nil {
		return nil, fmt.Errorf("%w: settings: %w", ErrPersistenceFetch, err)
	}

	d.filter = o.filter
	if d.filter == nil {
		if d.filter, err = NewOverlayFilter(); err != nil {
			return nil, err
		}
		d.ownsFilter = true
	}

	if settings == nil {
		err = d.setUpDefault(o)
	} else {
		err = d.load(settings)
	}
	if err != nil {
		if d.ownsFilter {
			d.filter.Close()
		}
		return nil, err
	}

	d.compositor = NewCompositor(d.filter)
	d.cancels = append(d.cancels,
		d.compositor.Changed.Subscribe(d.NormalImageChanged.Emit),
		d.DocumentChanged.Subscribe(d.onChange),
	)
	d.tree.OnDirty(d.DocumentChanged.Emit)

	if d.watchBase && d.settings.BaseImagePath != "" {
		if err := d.watchBaseImage(); err != nil {
			Logger().Warn("base image watch failed", "path", d.settings.BaseImagePath, "err", err)
		}
	}

	d.Recompute()
	Logger().Info("document opened", "size", d.tree.Size(), "layers", d.tree.Len())
	return d, nil
}

// setUpDefault creates the initial object graph and inserts it into the store.
func (d *Document) setUpDefault(o documentOptions) error {
	tree, err := NewTree(o.size)
	if err != nil {
		return err
	}
	def, err := tree.AddChild(tree.Root())
	if err != nil {
		return err
	}
	def.name = DefaultLayerName

	d.tree = tree
	d.current = def
	d.settings = &DocumentSettings{
		Width:         o.size.Width,
		Height:        o.size.Height,
		BaseImagePath: o.baseImagePath,
		Root:          tree.Root(),
	}
	d.refraction = &Refraction{IndexOfRefraction: o.refraction}
	if err := d.store.Insert(d.settings, d.refraction); err != nil {
		return fmt.Errorf("paranormal: store new document: %w", err)
	}
	d.history.Clear()
	return nil
}

func (d *Document) load(settings *DocumentSettings) error {
	tree, err := TreeFromRoot(settings.Size(), settings.Root)
	if err != nil {
		return err
	}
	refraction, err := d.store.FetchRefraction()
	if err != nil {
		return fmt.Errorf("%w: refraction: %w", ErrPersistenceFetch, err)
	}
	if refraction == nil {
		refraction = &Refraction{IndexOfRefraction: DefaultIndexOfRefraction}
		if err := d.store.Insert(settings, refraction); err != nil {
			return fmt.Errorf("paranormal: store refraction: %w", err)
		}
	}
	d.refraction = refraction
	d.settings = settings
	d.tree = tree
	if tree.Root().NumChildren() > 0 {
		d.current = tree.Root().Child(0)
	}
	return nil
}

func (d *Document) onChange(c Change) {
	switch {
	case c.Kind == ChangeLayerRemoved && d.current != nil && !d.tree.Contains(d.current):
		d.current = nil
		if d.tree.Root().NumChildren() > 0 {
			d.current = d.tree.Root().Child(0)
		}
	case c.Kind == ChangeSettings:
		d.invalidateBaseImage()
		d.PreviewNeedsRedraw.Emit(struct{}{})
	}
	if c.Kind.AffectsImage() {
		d.compositor.Schedule(d.tree)
	} else {
		d.PreviewNeedsRedraw.Emit(struct{}{})
	}
}

// Recompute schedules a render of the current tree and returns its
// generation.
func (d *Document) Recompute() uint64 {
	return d.compositor.Schedule(d.tree)
}

// WaitForImage blocks until the render of generation gen, or a newer one,
// has completed.
func (d *Document) WaitForImage(ctx context.Context, gen uint64) error {
	return d.compositor.Wait(ctx, gen)
}

// RenderErr returns the error of the most recent render. The normal image
// keeps the last successful composite when a render fails.
func (d *Document) RenderErr() error {
	return d.compositor.Err()
}

// Generation returns the generation of the most recently scheduled render.
func (d *Document) Generation() uint64 {
	return d.compositor.Generation()
}

// Settings returns a copy of the document settings.
func (d *Document) Settings() DocumentSettings { return *d.settings }

// Size returns the canvas size.
func (d *Document) Size() Size { return d.tree.Size() }

// Tree returns the layer tree. Mutate it through Document methods so edits
// are undoable.
func (d *Document) Tree() *Tree { return d.tree }

// Root returns the root layer.
func (d *Document) Root() *Layer { return d.tree.Root() }

// CurrentLayer returns the layer being painted, initially the bottom child
// of the root. It is nil when the root has no children.
func (d *Document) CurrentLayer() *Layer { return d.current }

// SetCurrentLayer selects the layer being painted.
func (d *Document) SetCurrentLayer(l *Layer) error {
	if !d.tree.Contains(l) {
		return fmt.Errorf("%w: %v", ErrLayerNotFound, l)
	}
	d.current = l
	return nil
}

// AddLayer appends a new empty layer on top of parent's children.
func (d *Document) AddLayer(parent *Layer) (*Layer, error) {
	cmd := &addChildCmd{tree: d.tree, parent: parent}
	if err := d.history.Do(cmd); err != nil {
		return nil, err
	}
	return cmd.layer, nil
}

// InsertLayer attaches a detached layer as parent's i-th child.
func (d *Document) InsertLayer(parent *Layer, i int, l *Layer) error {
	return d.history.Do(&insertLayerCmd{tree: d.tree, parent: parent, index: i, layer: l})
}

// RemoveLayer detaches l and its subtree.
func (d *Document) RemoveLayer(l *Layer) error {
	return d.history.Do(&removeLayerCmd{tree: d.tree, layer: l})
}

// SetLayerVisible shows or hides l.
func (d *Document) SetLayerVisible(l *Layer, visible bool) error {
	if l != nil && l.visible == visible {
		return nil
	}
	return d.history.Do(&setVisibleCmd{tree: d.tree, layer: l, visible: visible})
}

// RenameLayer renames l.
func (d *Document) RenameLayer(l *Layer, name string) error {
	return d.history.Do(&renameCmd{tree: d.tree, layer: l, name: name})
}

// UpdateLayerPixels replaces l's pixels with a copy of pixels, which must
// match the canvas size.
func (d *Document) UpdateLayerPixels(l *Layer, pixels *Raster) error {
	if pixels == nil {
		return fmt.Errorf("%w: nil pixels", ErrDimensionMismatch)
	}
	return d.history.Do(&updatePixelsCmd{tree: d.tree, layer: l, pixels: pixels.Clone()})
}

// Refraction returns the index of refraction.
func (d *Document) Refraction() float32 { return d.refraction.IndexOfRefraction }

// SetRefraction changes the index of refraction.
func (d *Document) SetRefraction(v float32) error {
	if v == d.refraction.IndexOfRefraction {
		return nil
	}
	return d.history.Do(&refractionCmd{doc: d, value: v})
}

func (d *Document) setRefraction(v float32) {
	d.refraction.IndexOfRefraction = v
	d.DocumentChanged.Emit(Change{Kind: ChangeRefraction})
}

// SetBaseImagePath changes the base image. An empty path removes it.
func (d *Document) SetBaseImagePath(path string) error {
	if path == d.settings.BaseImagePath {
		return nil
	}
	return d.history.Do(&baseImagePathCmd{doc: d, path: path})
}

func (d *Document) setBaseImagePath(path string) {
	d.settings.BaseImagePath = path
	if d.watcher != nil {
		_ = d.watcher.Close()
		d.watcher = nil
	}
	if d.watchBase && path != "" {
		if err := d.watchBaseImage(); err != nil {
			Logger().Warn("base image watch failed", "path", path, "err", err)
		}
	}
	d.DocumentChanged.Emit(Change{Kind: ChangeSettings})
}

// Undo reverts the most recent edit.
func (d *Document) Undo() error {
	_, err := d.history.Undo()
	return err
}

// Redo reapplies the most recently undone edit.
func (d *Document) Redo() error {
	_, err := d.history.Redo()
	return err
}

// CanUndo reports whether Undo would succeed.
func (d *Document) CanUndo() bool { return d.history.CanUndo() }

// CanRedo reports whether Redo would succeed.
func (d *Document) CanRedo() bool { return d.history.CanRedo() }

// BeginEdit groups the following edits into one undo entry until the
// matching EndEdit, as for a brush stroke.
func (d *Document) BeginEdit(name string) { d.history.BeginGroup(name) }

// EndEdit closes the group opened by BeginEdit.
func (d *Document) EndEdit() { d.history.EndGroup() }

// History returns the document's undo log.
func (d *Document) History() *History { return d.history }

// Preferences returns the brush preferences.
func (d *Document) Preferences() Preferences { return d.prefs }

// SetPreferences replaces the brush preferences.
func (d *Document) SetPreferences(p Preferences) { d.prefs = p }

// ViewMode returns the editor view mode.
func (d *Document) ViewMode() EditorViewMode { return d.viewMode }

// SetViewMode switches the editor between the normal map and the preview.
func (d *Document) SetViewMode(m EditorViewMode) {
	if m == d.viewMode {
		return
	}
	d.viewMode = m
	d.PreviewNeedsRedraw.Emit(struct{}{})
}

// NormalImage returns the most recently published composite, or nil before
// the first render completes.
func (d *Document) NormalImage() *NormalImage {
	return d.compositor.Current()
}

func (d *Document) normalRaster() *Raster {
	if img := d.NormalImage(); img != nil {
		return img.Raster
	}
	return nil
}

// PreviewImage returns the preview renderer's image, or nil without one.
func (d *Document) PreviewImage() *Raster {
	if d.preview == nil {
		return nil
	}
	return d.preview.RenderedPreviewImage()
}

// CurrentEditorImage returns the image the editor shows for the current
// view mode.
func (d *Document) CurrentEditorImage() *Raster {
	switch d.viewMode {
	case ViewPreview:
		return d.PreviewImage()
	default:
		return d.normalRaster()
	}
}

// ExportImage returns the normal image regardless of view mode.
func (d *Document) ExportImage() *Raster {
	return d.normalRaster()
}

// BaseImage returns the base image at canvas size. If the document has no
// base image or it cannot be loaded, BaseImage returns a mid-gray canvas.
// The result is cached until the base image path or file changes.
func (d *Document) BaseImage() *Raster {
	d.baseMu.Lock()
	defer d.baseMu.Unlock()
	if d.baseImage != nil {
		return d.baseImage
	}

	size := d.settings.Size()
	img, err := LoadBaseImage(d.settings.BaseImagePath, size)
	if err != nil {
		if errors.Is(err, ErrMissingBaseImage) && d.settings.BaseImagePath != "" {
			Logger().Info("base image unavailable, using default", "path", d.settings.BaseImagePath, "err", err)
		}
		if img, err = fallbackBaseImage(size); err != nil {
			Logger().Error("failed to create default base image", "size", size, "err", err)
			return nil
		}
	}
	d.baseImage = img
	return img
}

func (d *Document) invalidateBaseImage() {
	d.baseMu.Lock()
	d.baseImage = nil
	d.baseMu.Unlock()
}

func (d *Document) watchBaseImage() error {
	w, err := WatchBaseImage(d.settings.BaseImagePath, func() {
		d.invalidateBaseImage()
		d.PreviewNeedsRedraw.Emit(struct{}{})
	})
	if err != nil {
		return err
	}
	d.watcher = w
	return nil
}

// Close stops the compositor and the base image watcher and releases the
// document's own filter.
func (d *Document) Close() error {
	for _, cancel := range d.cancels {
		cancel()
	}
	d.cancels = nil
	d.tree.OnDirty(nil)
	d.compositor.Close()
	var err error
	if d.watcher != nil {
		err = d.watcher.Close()
		d.watcher = nil
	}
	if d.ownsFilter {
		d.filter.Close()
	}
	return err
}

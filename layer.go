package paranormal

import (
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// Default layer names used when a document is first initialized.
const (
	RootLayerName    = "Root Layer"
	DefaultLayerName = "Default Layer"
)

// Layer is a node in the paint layer tree. It owns a raster, its name and
// visibility, and an ordered list of children. The parent pointer is a
// back-reference only; a layer is owned by its parent's child list.
//
// Layers are mutated through Tree so that every change marks the tree dirty.
type Layer struct {
	id       uuid.UUID
	name     string
	visible  bool
	raster   *Raster
	children []*Layer
	parent   *Layer
}

// CreateEmpty returns a visible, unattached layer with a fully transparent
// raster of the given size.
func CreateEmpty(size Size) (*Layer, error) {
	r, err := NewRaster(size.Width, size.Height)
	if err != nil {
		return nil, err
	}
	return &Layer{id: uuid.New(), visible: true, raster: r}, nil
}

// NewLayerFromRaster returns a visible, unattached layer that takes ownership
// of r, typically pixels rendered by a painting context.
func NewLayerFromRaster(name string, r *Raster) (*Layer, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: nil raster", ErrInvalidSize)
	}
	return &Layer{id: uuid.New(), name: norm.NFC.String(name), visible: true, raster: r}, nil
}

// ID returns the layer's stable identifier.
func (l *Layer) ID() uuid.UUID { return l.id }

// Name returns the NFC-normalized layer name.
func (l *Layer) Name() string { return l.name }

// Visible reports whether the layer takes part in compositing.
func (l *Layer) Visible() bool { return l.visible }

// Raster returns the layer's own pixels. Callers must not modify them
// directly; use Tree.UpdateFromRenderedContext.
func (l *Layer) Raster() *Raster { return l.raster }

// Parent returns the parent layer, or nil for a root or detached layer.
func (l *Layer) Parent() *Layer { return l.parent }

// Children returns a copy of the ordered child list, bottom first.
func (l *Layer) Children() []*Layer {
	return append([]*Layer(nil), l.children...)
}

// NumChildren returns the number of direct children.
func (l *Layer) NumChildren() int { return len(l.children) }

// Child returns the i-th child, bottom first.
func (l *Layer) Child(i int) *Layer { return l.children[i] }

func (l *Layer) String() string {
	return fmt.Sprintf("Layer(%q, %s)", l.name, l.id)
}

func (l *Layer) indexInParent() int {
	if l.parent == nil {
		return -1
	}
	for i, c := range l.parent.children {
		if c == l {
			return i
		}
	}
	return -1
}

// walk visits l and its descendants in pre-order until fn returns false.
func (l *Layer) walk(depth int, fn func(*Layer, int) bool) bool {
	if !fn(l, depth) {
		return false
	}
	for _, c := range l.children {
		if !c.walk(depth+1, fn) {
			return false
		}
	}
	return true
}

// cloneVisible deep-copies l and its visible descendants. Parent pointers in
// the copy refer to copied layers.
func (l *Layer) cloneVisible(parent *Layer) *Layer {
	c := &Layer{
		id:      l.id,
		name:    l.name,
		visible: l.visible,
		raster:  l.raster.Clone(),
		parent:  parent,
	}
	for _, child := range l.children {
		if child.visible {
			c.children = append(c.children, child.cloneVisible(c))
		}
	}
	return c
}

// Tree is the layer hierarchy of one document canvas. Every layer in the
// tree has a raster of the canvas size.
//
// Tree is not safe for concurrent use; mutate it from a single goroutine and
// hand Snapshot results to other goroutines.
type Tree struct {
	size    Size
	root    *Layer
	index   map[uuid.UUID]*Layer
	onDirty func(Change)
}

// NewTree creates a tree holding only an empty root layer.
func NewTree(size Size) (*Tree, error) {
	root, err := CreateEmpty(size)
	if err != nil {
		return nil, err
	}
	root.name = RootLayerName
	return &Tree{
		size:  size,
		root:  root,
		index: map[uuid.UUID]*Layer{root.id: root},
	}, nil
}

// TreeFromRoot builds a tree around an existing detached root layer, such as
// one loaded from a Store. Every raster must match size.
func TreeFromRoot(size Size, root *Layer) (*Tree, error) {
	if !size.Valid() {
		return nil, fmt.Errorf("%w: canvas %v", ErrInvalidSize, size)
	}
	if root == nil {
		return nil, fmt.Errorf("%w: nil root", ErrLayerNotFound)
	}
	if root.parent != nil {
		return nil, fmt.Errorf("%w: root %s has a parent", ErrLayerAttached, root)
	}
	if err := checkSubtreeSize(root, size); err != nil {
		return nil, err
	}
	t := &Tree{size: size, root: root, index: make(map[uuid.UUID]*Layer)}
	t.indexSubtree(root)
	return t, nil
}

// Size returns the canvas size.
func (t *Tree) Size() Size { return t.size }

// Root returns the root layer.
func (t *Tree) Root() *Layer { return t.root }

// Len returns the number of layers in the tree, including the root.
func (t *Tree) Len() int { return len(t.index) }

// OnDirty sets the hook called after every mutation. Pass nil to remove it.
func (t *Tree) OnDirty(fn func(Change)) { t.onDirty = fn }

func (t *Tree) markDirty(kind ChangeKind, l *Layer) {
	if t.onDirty != nil {
		t.onDirty(Change{Kind: kind, LayerID: l.id})
	}
}

// Contains reports whether l is part of the tree.
func (t *Tree) Contains(l *Layer) bool {
	return l != nil && t.index[l.id] == l
}

// Find returns the layer with the given ID.
func (t *Tree) Find(id uuid.UUID) (*Layer, bool) {
	l, ok := t.index[id]
	return l, ok
}

// Walk visits every layer in compositing order (pre-order: a layer, then
// its children bottom first) until fn returns false. depth is 0 for the root.
func (t *Tree) Walk(fn func(l *Layer, depth int) bool) {
	t.root.walk(0, fn)
}

// AddChild appends a new empty layer of the canvas size on top of parent's
// children and returns it. On error the tree is unchanged.
func (t *Tree) AddChild(parent *Layer) (*Layer, error) {
	if !t.size.Valid() {
		return nil, fmt.Errorf("%w: canvas %v", ErrInvalidSize, t.size)
	}
	if !t.Contains(parent) {
		return nil, fmt.Errorf("%w: parent %v", ErrLayerNotFound, parent)
	}
	l, err := CreateEmpty(t.size)
	if err != nil {
		return nil, err
	}
	l.name = fmt.Sprintf("Layer %d", len(t.index))
	t.attach(parent, len(parent.children), l)
	return l, nil
}

// Insert attaches a detached layer, with its subtree, as parent's i-th child.
// An index outside [0, NumChildren] appends.
func (t *Tree) Insert(parent *Layer, i int, l *Layer) error {
	if l == nil {
		return fmt.Errorf("%w: nil layer", ErrLayerNotFound)
	}
	if l.parent != nil || l == t.root || t.Contains(l) {
		return fmt.Errorf("%w: %s", ErrLayerAttached, l)
	}
	if !t.Contains(parent) {
		return fmt.Errorf("%w: parent %v", ErrLayerNotFound, parent)
	}
	if err := checkSubtreeSize(l, t.size); err != nil {
		return err
	}
	if i < 0 || i > len(parent.children) {
		i = len(parent.children)
	}
	t.attach(parent, i, l)
	return nil
}

func (t *Tree) attach(parent *Layer, i int, l *Layer) {
	parent.children = append(parent.children, nil)
	copy(parent.children[i+1:], parent.children[i:])
	parent.children[i] = l
	l.parent = parent
	t.indexSubtree(l)
	t.markDirty(ChangeLayerAdded, l)
}

// Remove detaches l and its subtree from the tree. It returns the former
// parent and position so the removal can be reverted with Insert.
func (t *Tree) Remove(l *Layer) (parent *Layer, index int, err error) {
	if l == t.root {
		return nil, -1, ErrRootLayer
	}
	if !t.Contains(l) {
		return nil, -1, fmt.Errorf("%w: %v", ErrLayerNotFound, l)
	}
	parent, index = l.parent, l.indexInParent()
	parent.children = append(parent.children[:index:index], parent.children[index+1:]...)
	l.parent = nil
	l.walk(0, func(d *Layer, _ int) bool {
		delete(t.index, d.id)
		return true
	})
	t.markDirty(ChangeLayerRemoved, l)
	return parent, index, nil
}

// SetVisible shows or hides a layer and its subtree.
func (t *Tree) SetVisible(l *Layer, visible bool) error {
	if !t.Contains(l) {
		return fmt.Errorf("%w: %v", ErrLayerNotFound, l)
	}
	if l.visible == visible {
		return nil
	}
	l.visible = visible
	t.markDirty(ChangeLayerVisibility, l)
	return nil
}

// Rename sets the layer name, normalized to NFC.
func (t *Tree) Rename(l *Layer, name string) error {
	if !t.Contains(l) {
		return fmt.Errorf("%w: %v", ErrLayerNotFound, l)
	}
	name = norm.NFC.String(name)
	if l.name == name {
		return nil
	}
	l.name = name
	t.markDirty(ChangeLayerRenamed, l)
	return nil
}

// UpdateFromRenderedContext replaces the layer's pixels in place with
// externally rendered pixels of the canvas size.
func (t *Tree) UpdateFromRenderedContext(l *Layer, pixels *Raster) error {
	if !t.Contains(l) {
		return fmt.Errorf("%w: %v", ErrLayerNotFound, l)
	}
	if pixels == nil {
		return fmt.Errorf("%w: nil pixels", ErrDimensionMismatch)
	}
	if err := l.raster.CopyFrom(pixels); err != nil {
		return err
	}
	t.markDirty(ChangeLayerPixels, l)
	return nil
}

// Snapshot returns a deep copy of the root and its visible descendants.
// The copy shares no pixel memory with the tree and may be rendered on
// another goroutine while the tree keeps changing.
func (t *Tree) Snapshot() *Layer {
	return t.root.cloneVisible(nil)
}

func (t *Tree) indexSubtree(l *Layer) {
	l.walk(0, func(d *Layer, _ int) bool {
		t.index[d.id] = d
		return true
	})
}

func checkSubtreeSize(l *Layer, size Size) error {
	var err error
	l.walk(0, func(d *Layer, _ int) bool {
		if d.raster == nil || d.raster.Size() != size {
			got := Size{}
			if d.raster != nil {
				got = d.raster.Size()
			}
			err = fmt.Errorf("%w: layer %s is %v, canvas %v", ErrDimensionMismatch, d, got, size)
			return false
		}
		return true
	})
	return err
}

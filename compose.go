package paranormal

import (
	"fmt"
)

// RenderLayer flattens root and its descendants into a new raster.
//
// Compositing starts from root's own pixels; each visible child, rendered
// recursively with its own subtree, is then overlaid onto the running result
// in child order, so later siblings land on top. Invisible layers and their
// subtrees contribute nothing. An invisible root yields a transparent raster.
//
// RenderLayer does not modify the tree and is deterministic for a given
// tree and filter.
func RenderLayer(root *Layer, filter *OverlayFilter) (*Raster, error) {
	if root == nil {
		return nil, fmt.Errorf("%w: nil root", ErrLayerNotFound)
	}
	if filter == nil {
		return nil, fmt.Errorf("paranormal: render %s: nil filter", root)
	}
	if !root.visible {
		return NewRaster(root.raster.width, root.raster.height)
	}
	return renderSubtree(root, filter)
}

func renderSubtree(l *Layer, filter *OverlayFilter) (*Raster, error) {
	acc := l.raster.Clone()
	for _, child := range l.children {
		if !child.visible {
			continue
		}
		overlay := child.raster
		if len(child.children) > 0 {
			var err error
			if overlay, err = renderSubtree(child, filter); err != nil {
				return nil, err
			}
		}
		if err := filter.ApplyInto(acc, acc, overlay); err != nil {
			return nil, fmt.Errorf("paranormal: overlay %s: %w", child, err)
		}
	}
	return acc, nil
}

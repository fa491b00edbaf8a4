package paranormal

import "fmt"

// Tree edits recorded in a document's History.

type addChildCmd struct {
	tree   *Tree
	parent *Layer
	layer  *Layer // set on first Do
	index  int
}

func (c *addChildCmd) Name() string { return "Add Layer" }

func (c *addChildCmd) Do() error {
	if c.layer == nil {
		l, err := c.tree.AddChild(c.parent)
		if err != nil {
			return err
		}
		c.layer, c.index = l, c.parent.NumChildren()-1
		return nil
	}
	return c.tree.Insert(c.parent, c.index, c.layer)
}

func (c *addChildCmd) Undo() error {
	_, _, err := c.tree.Remove(c.layer)
	return err
}

type insertLayerCmd struct {
	tree   *Tree
	parent *Layer
	index  int
	layer  *Layer
}

func (c *insertLayerCmd) Name() string { return "Insert Layer" }

func (c *insertLayerCmd) Do() error {
	return c.tree.Insert(c.parent, c.index, c.layer)
}

func (c *insertLayerCmd) Undo() error {
	_, _, err := c.tree.Remove(c.layer)
	return err
}

type removeLayerCmd struct {
	tree   *Tree
	layer  *Layer
	parent *Layer
	index  int
}

func (c *removeLayerCmd) Name() string { return "Remove Layer" }

func (c *removeLayerCmd) Do() error {
	parent, index, err := c.tree.Remove(c.layer)
	if err != nil {
		return err
	}
	c.parent, c.index = parent, index
	return nil
}

func (c *removeLayerCmd) Undo() error {
	return c.tree.Insert(c.parent, c.index, c.layer)
}

type setVisibleCmd struct {
	tree    *Tree
	layer   *Layer
	visible bool
	prev    bool
}

func (c *setVisibleCmd) Name() string {
	if c.visible {
		return "Show Layer"
	}
	return "Hide Layer"
}

func (c *setVisibleCmd) Do() error {
	if !c.tree.Contains(c.layer) {
		return fmt.Errorf("%w: %v", ErrLayerNotFound, c.layer)
	}
	c.prev = c.layer.visible
	return c.tree.SetVisible(c.layer, c.visible)
}

func (c *setVisibleCmd) Undo() error { return c.tree.SetVisible(c.layer, c.prev) }

type renameCmd struct {
	tree  *Tree
	layer *Layer
	name  string
	prev  string
}

func (c *renameCmd) Name() string { return "Rename Layer" }

func (c *renameCmd) Do() error {
	if !c.tree.Contains(c.layer) {
		return fmt.Errorf("%w: %v", ErrLayerNotFound, c.layer)
	}
	c.prev = c.layer.name
	return c.tree.Rename(c.layer, c.name)
}

func (c *renameCmd) Undo() error { return c.tree.Rename(c.layer, c.prev) }

type updatePixelsCmd struct {
	tree   *Tree
	layer  *Layer
	pixels *Raster
	prev   *Raster
}

func (c *updatePixelsCmd) Name() string { return "Paint" }

func (c *updatePixelsCmd) Do() error {
	if !c.tree.Contains(c.layer) {
		return fmt.Errorf("%w: %v", ErrLayerNotFound, c.layer)
	}
	if c.layer.raster.Size() == c.pixels.Size() {
		c.prev = c.layer.raster.Clone()
	}
	return c.tree.UpdateFromRenderedContext(c.layer, c.pixels)
}

func (c *updatePixelsCmd) Undo() error {
	return c.tree.UpdateFromRenderedContext(c.layer, c.prev)
}

type refractionCmd struct {
	doc   *Document
	value float32
	prev  float32
}

func (c *refractionCmd) Name() string { return "Change Refraction" }

func (c *refractionCmd) Do() error {
	c.prev = c.doc.refraction.IndexOfRefraction
	c.doc.setRefraction(c.value)
	return nil
}

func (c *refractionCmd) Undo() error {
	c.doc.setRefraction(c.prev)
	return nil
}

type baseImagePathCmd struct {
	doc  *Document
	path string
	prev string
}

func (c *baseImagePathCmd) Name() string { return "Change Base Image" }

func (c *baseImagePathCmd) Do() error {
	c.prev = c.doc.settings.BaseImagePath
	c.doc.setBaseImagePath(c.path)
	return nil
}

func (c *baseImagePathCmd) Undo() error {
	c.doc.setBaseImagePath(c.prev)
	return nil
}

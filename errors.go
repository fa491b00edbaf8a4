package paranormal

import (
	"errors"
	"fmt"
)

// Errors returned by document, layer, and filter operations.
var (
	// ErrInvalidSize is returned when a width or height is not positive.
	ErrInvalidSize = errors.New("paranormal: invalid size")

	// ErrDimensionMismatch is returned when two rasters that must share
	// dimensions do not.
	ErrDimensionMismatch = errors.New("paranormal: dimension mismatch")

	// ErrShaderCompilation is returned when an overlay program does not
	// compile for the rendering backend.
	ErrShaderCompilation = errors.New("paranormal: shader compilation failed")

	// ErrShaderResourceNotFound is returned for an unknown named shader.
	ErrShaderResourceNotFound = errors.New("paranormal: shader resource not found")

	// ErrPersistenceFetch is returned when the store cannot load the document.
	ErrPersistenceFetch = errors.New("paranormal: persistence fetch failed")

	// ErrMissingBaseImage is returned when the base image cannot be loaded.
	// Documents recover from it by falling back to a mid-gray canvas.
	ErrMissingBaseImage = errors.New("paranormal: missing base image")

	// ErrRootLayer is returned when an operation would detach the root layer.
	ErrRootLayer = errors.New("paranormal: operation not allowed on root layer")

	// ErrLayerAttached is returned when inserting a layer that already has a parent.
	ErrLayerAttached = errors.New("paranormal: layer already attached")

	// ErrLayerNotFound is returned when a layer is not part of the tree.
	ErrLayerNotFound = errors.New("paranormal: layer not found")

	// ErrNothingToUndo is returned by Undo on an empty history.
	ErrNothingToUndo = errors.New("paranormal: nothing to undo")

	// ErrNothingToRedo is returned by Redo when no undone command remains.
	ErrNothingToRedo = errors.New("paranormal: nothing to redo")

	// ErrCompositorClosed is returned when waiting on a closed compositor.
	ErrCompositorClosed = errors.New("paranormal: compositor closed")

	// ErrGroupOpen is returned when history is modified while a group
	// started with BeginGroup is still open.
	ErrGroupOpen = errors.New("paranormal: history group still open")
)

// ShaderError describes an overlay program that failed validation.
// It matches ErrShaderCompilation with errors.Is.
type ShaderError struct {
	Program string // program name, or "inline" for source text
	Err     error  // underlying compiler error
}

func (e *ShaderError) Error() string {
	return fmt.Sprintf("paranormal: compile shader %q: %v", e.Program, e.Err)
}

// Unwrap returns the compiler error.
func (e *ShaderError) Unwrap() error { return e.Err }

// Is reports whether target is ErrShaderCompilation.
func (e *ShaderError) Is(target error) bool { return target == ErrShaderCompilation }

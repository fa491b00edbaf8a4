package paranormal

import (
	"embed"
	"fmt"
	"slices"
)

// Embedded WGSL sources for the named overlay programs.

//go:embed shaders/overlay_vertex.wgsl
var defaultVertexSource string

//go:embed shaders/overlay_fragment.wgsl
var overlayFragmentSource string

//go:embed shaders/blend_*.wgsl
var blendShaders embed.FS

// DefaultShaderResource is the program used by NewOverlayFilter.
const DefaultShaderResource = "SpriteOverlay"

// shaderResource maps a program name to its blend stage and the CPU blend
// mode that reproduces it.
type shaderResource struct {
	file string
	mode BlendMode
}

var shaderResources = map[string]shaderResource{
	"SpriteOverlay": {file: "shaders/blend_sprite_overlay.wgsl", mode: BlendSourceOver},
	"Multiply":      {file: "shaders/blend_multiply.wgsl", mode: BlendMultiply},
	"Screen":        {file: "shaders/blend_screen.wgsl", mode: BlendScreen},
	"Additive":      {file: "shaders/blend_additive.wgsl", mode: BlendAdditive},
}

// ShaderResources returns the names of the embedded overlay programs, sorted.
func ShaderResources() []string {
	names := make([]string, 0, len(shaderResources))
	for name := range shaderResources {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// DefaultVertexSource returns the full-screen-triangle vertex stage used by
// programs built from fragment source alone.
func DefaultVertexSource() string {
	return defaultVertexSource
}

// loadShaderResource assembles a named program from the embedded sources.
func loadShaderResource(name string) (ShaderProgram, BlendMode, error) {
	res, ok := shaderResources[name]
	if !ok {
		return ShaderProgram{}, 0, fmt.Errorf("%w: %q", ErrShaderResourceNotFound, name)
	}
	blendSrc, err := blendShaders.ReadFile(res.file)
	if err != nil {
		return ShaderProgram{}, 0, fmt.Errorf("%w: %q: %v", ErrShaderResourceNotFound, name, err)
	}
	return ShaderProgram{
		Name:     name,
		Vertex:   defaultVertexSource,
		Fragment: overlayFragmentSource + "\n" + string(blendSrc),
	}, res.mode, nil
}

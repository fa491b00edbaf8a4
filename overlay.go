package paranormal

import (
	"errors"
	"fmt"
	"image/color"
	"strings"
	"sync"

	"github.com/gogpu/naga"

	"github.com/gogpu/paranormal/internal/blend"
	"github.com/gogpu/paranormal/internal/parallel"
)

// BlendMode selects the CPU formula an overlay filter applies.
type BlendMode uint8

const (
	// BlendSourceOver covers the base with the overlay by the overlay's alpha.
	BlendSourceOver BlendMode = iota
	// BlendSource replaces the base with the overlay.
	BlendSource
	// BlendMultiply multiplies colors where both layers have coverage.
	BlendMultiply
	// BlendScreen inverts, multiplies, and inverts again.
	BlendScreen
	// BlendAdditive adds the layers, clamping each channel.
	BlendAdditive
)

func (m BlendMode) String() string {
	switch m {
	case BlendAdditive:
		return "Additive"
	default:
		return blend.Mode(m).String()
	}
}

// ShaderProgram is a two-stage WGSL overlay program.
//
// The vertex stage must define the entry point vs_main and the fragment stage
// fs_main. Fragment stages read their inputs from bind group 0:
//
//	@group(0) @binding(0) var<uniform> params: OverlayParams; // width, height: u32
//	@group(0) @binding(1) var<storage, read> base_pixels: array<u32>;
//	@group(0) @binding(2) var<storage, read> overlay_pixels: array<u32>;
//
// Pixels are premultiplied RGBA8 packed little-endian, indexed y*width+x.
type ShaderProgram struct {
	Name     string
	Vertex   string
	Fragment string
}

// Source returns the combined WGSL module.
func (p ShaderProgram) Source() string {
	return p.Vertex + "\n" + p.Fragment
}

// OverlayFilter combines two equal-sized rasters into one with a fixed
// per-pixel formula.
//
// The filter carries a shader program for GPU execution and a CPU blend
// function implementing the same formula. Apply uses the registered
// OverlayAccelerator when there is one and the CPU path otherwise.
//
// OverlayFilter is safe for concurrent use.
type OverlayFilter struct {
	program  ShaderProgram
	mode     BlendMode
	blendFn  blend.Func
	pool     *parallel.WorkerPool
	ownsPool bool
	useGPU   bool
}

// FilterOption configures an OverlayFilter during construction.
type FilterOption func(*filterOptions)

type filterOptions struct {
	mode    *BlendMode
	blendFn func(base, overlay color.RGBA) color.RGBA
	workers int
	noGPU   bool
}

// WithBlendMode sets the CPU blend formula. Named programs default to the
// formula of their shader; programs built from source default to
// BlendSourceOver.
func WithBlendMode(m BlendMode) FilterOption {
	return func(o *filterOptions) {
		o.mode = &m
	}
}

// WithBlendFunc sets a custom CPU blend function, overriding WithBlendMode.
// Both colors and the result are premultiplied.
func WithBlendFunc(fn func(base, overlay color.RGBA) color.RGBA) FilterOption {
	return func(o *filterOptions) {
		o.blendFn = fn
	}
}

// WithWorkers gives the filter its own CPU worker pool of n goroutines.
// Without it, filters share a pool sized to GOMAXPROCS. Call Close to
// release a dedicated pool.
func WithWorkers(n int) FilterOption {
	return func(o *filterOptions) {
		o.workers = n
	}
}

// WithoutGPU makes the filter ignore any registered accelerator.
func WithoutGPU() FilterOption {
	return func(o *filterOptions) {
		o.noGPU = true
	}
}

var (
	sharedPoolOnce sync.Once
	sharedPool     *parallel.WorkerPool
)

func defaultPool() *parallel.WorkerPool {
	sharedPoolOnce.Do(func() {
		sharedPool = parallel.NewWorkerPool(0)
	})
	return sharedPool
}

// NewOverlayFilter returns the default SpriteOverlay filter.
func NewOverlayFilter(opts ...FilterOption) (*OverlayFilter, error) {
	return NewOverlayFilterFromResource(DefaultShaderResource, opts...)
}

// NewOverlayFilterFromResource builds a filter from an embedded named
// program. See ShaderResources for the available names.
func NewOverlayFilterFromResource(name string, opts ...FilterOption) (*OverlayFilter, error) {
	program, mode, err := loadShaderResource(name)
	if err != nil {
		return nil, err
	}
	return newOverlayFilter(program, mode, opts)
}

// NewOverlayFilterFromFragment builds a filter from fragment source text,
// paired with the default full-screen vertex stage.
func NewOverlayFilterFromFragment(fragment string, opts ...FilterOption) (*OverlayFilter, error) {
	program := ShaderProgram{Name: "inline", Vertex: defaultVertexSource, Fragment: fragment}
	return newOverlayFilter(program, BlendSourceOver, opts)
}

// NewOverlayFilterFromSources builds a filter from an explicit vertex and
// fragment source pair.
func NewOverlayFilterFromSources(vertex, fragment string, opts ...FilterOption) (*OverlayFilter, error) {
	program := ShaderProgram{Name: "inline", Vertex: vertex, Fragment: fragment}
	return newOverlayFilter(program, BlendSourceOver, opts)
}

func newOverlayFilter(program ShaderProgram, mode BlendMode, opts []FilterOption) (*OverlayFilter, error) {
	var o filterOptions
	for _, opt := range opts {
		opt(&o)
	}
	if err := compileProgram(program); err != nil {
		return nil, err
	}

	if o.mode != nil {
		mode = *o.mode
	}
	f := &OverlayFilter{
		program: program,
		mode:    mode,
		blendFn: blend.Get(blend.Mode(mode)),
		useGPU:  !o.noGPU,
	}
	if o.blendFn != nil {
		f.blendFn = wrapBlendFunc(o.blendFn)
	}
	if o.workers > 0 {
		f.pool = parallel.NewWorkerPool(o.workers)
		f.ownsPool = true
	} else {
		f.pool = defaultPool()
	}
	return f, nil
}

// compileProgram validates the program against the WGSL compiler used by
// the GPU backend.
func compileProgram(p ShaderProgram) error {
	for _, entry := range []string{"fn vs_main", "fn fs_main"} {
		if !strings.Contains(p.Source(), entry) {
			return &ShaderError{Program: p.Name, Err: fmt.Errorf("missing entry point %q", strings.TrimPrefix(entry, "fn "))}
		}
	}
	if _, err := naga.Compile(p.Source()); err != nil {
		return &ShaderError{Program: p.Name, Err: err}
	}
	return nil
}

func wrapBlendFunc(fn func(base, overlay color.RGBA) color.RGBA) blend.Func {
	return func(sr, sg, sb, sa, dr, dg, db, da byte) (byte, byte, byte, byte) {
		c := fn(color.RGBA{R: dr, G: dg, B: db, A: da}, color.RGBA{R: sr, G: sg, B: sb, A: sa})
		return c.R, c.G, c.B, c.A
	}
}

// Program returns the filter's shader program.
func (f *OverlayFilter) Program() ShaderProgram { return f.program }

// Mode returns the CPU blend mode. It is not meaningful when the filter
// was built with WithBlendFunc.
func (f *OverlayFilter) Mode() BlendMode { return f.mode }

// Blend applies the filter's formula to a single pair of premultiplied pixels.
func (f *OverlayFilter) Blend(base, overlay color.RGBA) color.RGBA {
	r, g, b, a := f.blendFn(overlay.R, overlay.G, overlay.B, overlay.A, base.R, base.G, base.B, base.A)
	return color.RGBA{R: r, G: g, B: b, A: a}
}

// Apply blends overlay onto base and returns a new raster.
// It returns ErrDimensionMismatch if the inputs differ in size.
func (f *OverlayFilter) Apply(base, overlay *Raster) (*Raster, error) {
	if base.Size() != overlay.Size() {
		return nil, fmt.Errorf("%w: base %v, overlay %v", ErrDimensionMismatch, base.Size(), overlay.Size())
	}
	dst, err := NewRaster(base.width, base.height)
	if err != nil {
		return nil, err
	}
	if err := f.ApplyInto(dst, base, overlay); err != nil {
		return nil, err
	}
	return dst, nil
}

// ApplyInto blends overlay onto base and writes the result into dst.
// dst may be base itself.
func (f *OverlayFilter) ApplyInto(dst, base, overlay *Raster) error {
	if base.Size() != overlay.Size() || dst.Size() != base.Size() {
		return fmt.Errorf("%w: dst %v, base %v, overlay %v",
			ErrDimensionMismatch, dst.Size(), base.Size(), overlay.Size())
	}

	if f.useGPU {
		if a := Accelerator(); a != nil {
			err := a.Overlay(f.program, renderTarget(dst), renderTarget(base), renderTarget(overlay))
			if err == nil {
				return nil
			}
			if !errors.Is(err, ErrFallbackToCPU) {
				Logger().Warn("overlay accelerator failed, using CPU",
					"accelerator", a.Name(), "program", f.program.Name, "err", err)
			}
		}
	}

	f.applyCPU(dst, base, overlay)
	return nil
}

func (f *OverlayFilter) applyCPU(dst, base, overlay *Raster) {
	stride := dst.Stride()
	f.pool.ForRows(dst.height, func(y0, y1 int) {
		lo, hi := y0*stride, y1*stride
		blend.Span(dst.data[lo:hi], base.data[lo:hi], overlay.data[lo:hi], f.blendFn)
	})
}

// Close releases the filter's dedicated worker pool, if any.
func (f *OverlayFilter) Close() {
	if f.ownsPool {
		f.pool.Close()
	}
}

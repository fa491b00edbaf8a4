//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/paranormal"
	"github.com/gogpu/paranormal/internal/cache"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

const (
	// paramsSize is the uniform buffer size: width, height, and padding to
	// 16 bytes.
	paramsSize = 16

	fenceTimeout = 5 * time.Second

	// maxPipelines bounds the compiled programs kept per device.
	maxPipelines = 16
)

// OverlayRenderer runs overlay programs with wgpu/hal render pipelines.
// It implements paranormal.OverlayAccelerator.
//
// When no GPU is available Init still succeeds and Overlay returns
// paranormal.ErrFallbackToCPU, so filters blend on the CPU.
type OverlayRenderer struct {
	mu sync.Mutex

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue

	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipelines  *cache.Cache[programKey, *overlayPipeline]

	gpuReady       bool
	externalDevice bool // shared device, not destroyed on Close
}

var (
	_ paranormal.OverlayAccelerator  = (*OverlayRenderer)(nil)
	_ paranormal.DeviceProviderAware = (*OverlayRenderer)(nil)
)

// programKey identifies a compiled program. Two programs with the same name
// but different sources get separate pipelines.
type programKey struct {
	name, vertex, fragment string
}

type overlayPipeline struct {
	vertex   hal.ShaderModule
	fragment hal.ShaderModule
	pipeline hal.RenderPipeline
}

func (r *OverlayRenderer) Name() string { return "wgpu-overlay" }

// SetLogger is called by paranormal.SetLogger.
func (r *OverlayRenderer) SetLogger(l *slog.Logger) { setLogger(l) }

// Init opens a Vulkan device. A failure is logged and leaves the renderer
// in CPU fallback mode.
func (r *OverlayRenderer) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.initGPU(); err != nil {
		slogger().Warn("GPU init failed, using CPU fallback", "err", err)
	}
	return nil
}

// Ready reports whether a device is open and Overlay runs on the GPU.
func (r *OverlayRenderer) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gpuReady
}

func (r *OverlayRenderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destroyPipelines()
	if !r.externalDevice && r.device != nil {
		r.device.Destroy()
	}
	if r.instance != nil {
		r.instance.Destroy()
	}
	r.device = nil
	r.instance = nil
	r.queue = nil
	r.gpuReady = false
	r.externalDevice = false
}

// SetDeviceProvider switches the renderer to a GPU device owned by the host
// application. The provider must expose HalDevice() any and HalQueue() any
// returning hal.Device and hal.Queue.
func (r *OverlayRenderer) SetDeviceProvider(provider any) error {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return fmt.Errorf("wgpu-overlay: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return fmt.Errorf("wgpu-overlay: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return fmt.Errorf("wgpu-overlay: provider HalQueue is not hal.Queue")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.destroyPipelines()
	if !r.externalDevice && r.device != nil {
		r.device.Destroy()
	}
	if r.instance != nil {
		r.instance.Destroy()
		r.instance = nil
	}
	r.device = device
	r.queue = queue
	r.externalDevice = true

	if err := r.createLayouts(); err != nil {
		r.gpuReady = false
		return fmt.Errorf("wgpu-overlay: create layouts with shared device: %w", err)
	}
	r.gpuReady = true
	slogger().Info("switched to shared GPU device")
	return nil
}

// Overlay renders program over base and overlay and writes the result to
// dst. dst may share its pixels with base.
func (r *OverlayRenderer) Overlay(program paranormal.ShaderProgram, dst, base, overlay paranormal.GPURenderTarget) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.gpuReady {
		return paranormal.ErrFallbackToCPU
	}
	if base.Width != overlay.Width || base.Height != overlay.Height ||
		dst.Width != base.Width || dst.Height != base.Height {
		return fmt.Errorf("%w: %dx%d over %dx%d", paranormal.ErrDimensionMismatch,
			overlay.Width, overlay.Height, base.Width, base.Height)
	}
	if base.Width <= 0 || base.Height <= 0 {
		return paranormal.ErrFallbackToCPU
	}

	p, err := r.pipelineFor(program)
	if err != nil {
		return err
	}
	return r.render(p, dst, base, overlay)
}

func (r *OverlayRenderer) render(p *overlayPipeline, dst, base, overlay paranormal.GPURenderTarget) error {
	w, h := uint32(base.Width), uint32(base.Height) //nolint:gosec // dimensions always fit uint32
	pixelBytes := uint64(w) * uint64(h) * 4

	params := make([]byte, paramsSize)
	binary.LittleEndian.PutUint32(params[0:], w)
	binary.LittleEndian.PutUint32(params[4:], h)

	paramsBuf, err := r.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "overlay_params", Size: paramsSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create params buffer: %w", err)
	}
	defer r.device.DestroyBuffer(paramsBuf)

	baseBuf, err := r.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "overlay_base", Size: pixelBytes,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create base buffer: %w", err)
	}
	defer r.device.DestroyBuffer(baseBuf)

	overlayBuf, err := r.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "overlay_overlay", Size: pixelBytes,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create overlay buffer: %w", err)
	}
	defer r.device.DestroyBuffer(overlayBuf)

	r.queue.WriteBuffer(paramsBuf, 0, params)
	r.queue.WriteBuffer(baseBuf, 0, tightPixels(base))
	r.queue.WriteBuffer(overlayBuf, 0, tightPixels(overlay))

	bindGroup, err := r.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: "overlay_bind", Layout: r.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: paramsBuf.NativeHandle(), Offset: 0, Size: paramsSize}},
			{Binding: 1, Resource: gputypes.BufferBinding{Buffer: baseBuf.NativeHandle(), Offset: 0, Size: pixelBytes}},
			{Binding: 2, Resource: gputypes.BufferBinding{Buffer: overlayBuf.NativeHandle(), Offset: 0, Size: pixelBytes}},
		},
	})
	if err != nil {
		return fmt.Errorf("create bind group: %w", err)
	}
	defer r.device.DestroyBindGroup(bindGroup)

	target, err := r.device.CreateTexture(&hal.TextureDescriptor{
		Label:         "overlay_target",
		Size:          hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("create target texture: %w", err)
	}
	defer r.device.DestroyTexture(target)

	targetView, err := r.device.CreateTextureView(target, &hal.TextureViewDescriptor{Label: "overlay_target_view"})
	if err != nil {
		return fmt.Errorf("create target view: %w", err)
	}
	defer r.device.DestroyTextureView(targetView)

	pitch := alignedBytesPerRow(w)
	stagingSize := uint64(pitch) * uint64(h)
	stagingBuf, err := r.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "overlay_staging", Size: stagingSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create staging buffer: %w", err)
	}
	defer r.device.DestroyBuffer(stagingBuf)

	encoder, err := r.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "overlay_encoder"})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("overlay"); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}

	rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "overlay_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       targetView,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{R: 0, G: 0, B: 0, A: 0},
		}},
	})
	rp.SetPipeline(p.pipeline)
	rp.SetBindGroup(0, bindGroup, nil)
	rp.Draw(3, 1, 0, 0)
	rp.End()

	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: target,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})
	encoder.CopyTextureToBuffer(target, stagingBuf, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: pitch, RowsPerImage: h},
		TextureBase:  hal.ImageCopyTexture{Texture: target, MipLevel: 0},
		Size:         hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	}})

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer r.device.FreeCommandBuffer(cmdBuf)

	fence, err := r.device.CreateFence()
	if err != nil {
		return fmt.Errorf("create fence: %w", err)
	}
	defer r.device.DestroyFence(fence)
	if err := r.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	fenceOK, err := r.device.Wait(fence, 1, fenceTimeout)
	if err != nil || !fenceOK {
		return fmt.Errorf("wait for GPU: ok=%v err=%w", fenceOK, err)
	}

	readback := make([]byte, stagingSize)
	if err := r.queue.ReadBuffer(stagingBuf, 0, readback); err != nil {
		return fmt.Errorf("readback: %w", err)
	}
	unpadRows(readback, int(pitch), dst)
	return nil
}

// pipelineFor returns the cached pipeline for program, compiling it on
// first use.
func (r *OverlayRenderer) pipelineFor(program paranormal.ShaderProgram) (*overlayPipeline, error) {
	key := programKey{name: program.Name, vertex: program.Vertex, fragment: program.Fragment}
	if r.pipelines == nil {
		r.pipelines = cache.New(maxPipelines, func(_ programKey, p *overlayPipeline) {
			r.destroyPipeline(p)
		})
	}
	return r.pipelines.GetOrCreate(key, func() (*overlayPipeline, error) {
		return r.compile(program)
	})
}

func (r *OverlayRenderer) compile(program paranormal.ShaderProgram) (*overlayPipeline, error) {
	p := &overlayPipeline{}
	var err error
	p.vertex, err = r.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  program.Name + "_vertex",
		Source: hal.ShaderSource{WGSL: program.Vertex},
	})
	if err != nil {
		return nil, fmt.Errorf("compile %s vertex stage: %w", program.Name, err)
	}
	p.fragment, err = r.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  program.Name + "_fragment",
		Source: hal.ShaderSource{WGSL: program.Fragment},
	})
	if err != nil {
		r.destroyPipeline(p)
		return nil, fmt.Errorf("compile %s fragment stage: %w", program.Name, err)
	}

	p.pipeline, err = r.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  program.Name + "_pipeline",
		Layout: r.pipeLayout,
		Vertex: hal.VertexState{
			Module:     p.vertex,
			EntryPoint: "vs_main",
		},
		Fragment: &hal.FragmentState{
			Module:     p.fragment,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{{
				Format:    gputypes.TextureFormatRGBA8Unorm,
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		r.destroyPipeline(p)
		return nil, fmt.Errorf("create %s pipeline: %w", program.Name, err)
	}
	slogger().Debug("overlay pipeline compiled", "program", program.Name)
	return p, nil
}

func (r *OverlayRenderer) initGPU() error {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return fmt.Errorf("vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	r.instance = instance
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		return fmt.Errorf("no GPU adapters found")
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}
	r.device = openDev.Device
	r.queue = openDev.Queue
	if err := r.createLayouts(); err != nil {
		r.device.Destroy()
		r.device = nil
		r.queue = nil
		return fmt.Errorf("create layouts: %w", err)
	}
	r.gpuReady = true
	slogger().Info("GPU overlay renderer initialized", "adapter", selected.Info.Name)
	return nil
}

func (r *OverlayRenderer) createLayouts() error {
	bindLayout, err := r.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "overlay_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: 0, Visibility: gputypes.ShaderStageFragment, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}},
			{Binding: 1, Visibility: gputypes.ShaderStageFragment, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 2, Visibility: gputypes.ShaderStageFragment, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
		},
	})
	if err != nil {
		return fmt.Errorf("create bind group layout: %w", err)
	}
	r.bindLayout = bindLayout

	pipeLayout, err := r.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: "overlay_pipe_layout", BindGroupLayouts: []hal.BindGroupLayout{r.bindLayout},
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}
	r.pipeLayout = pipeLayout
	return nil
}

func (r *OverlayRenderer) destroyPipeline(p *overlayPipeline) {
	if p.pipeline != nil {
		r.device.DestroyRenderPipeline(p.pipeline)
	}
	if p.fragment != nil {
		r.device.DestroyShaderModule(p.fragment)
	}
	if p.vertex != nil {
		r.device.DestroyShaderModule(p.vertex)
	}
}

func (r *OverlayRenderer) destroyPipelines() {
	if r.device == nil {
		return
	}
	if r.pipelines != nil {
		r.pipelines.Clear()
	}
	if r.pipeLayout != nil {
		r.device.DestroyPipelineLayout(r.pipeLayout)
		r.pipeLayout = nil
	}
	if r.bindLayout != nil {
		r.device.DestroyBindGroupLayout(r.bindLayout)
		r.bindLayout = nil
	}
}

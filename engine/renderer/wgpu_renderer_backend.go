package renderer

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-shadow/common"
	"github.com/cogentcore/webgpu/wgpu"
)

// wgpuRendererBackendImpl runs the recorded command stream against a WebGPU
// device with no surface. Targets with a native WebGPU format become real
// textures and every BeginTarget/EndTarget pair becomes a render pass, so
// clears and stores of shadow and reflective shadow maps execute on the GPU.
// Draws stay recorded only: the engine has no mesh pipelines, the scene's
// fill callbacks own the geometry.
type wgpuRendererBackendImpl struct {
	*headlessRendererBackend

	mu       *sync.Mutex
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	textures map[TextureHandle]*wgpu.Texture
	views    map[TextureHandle]*wgpu.TextureView
	samplers map[SamplerHandle]*wgpu.Sampler

	// Frame state for the passes of the current outermost target.
	encoder *wgpu.CommandEncoder
	pass    *wgpu.RenderPassEncoder
	bound   []boundTarget
}

type boundTarget struct {
	outputs []TextureHandle
	depth   TextureHandle
}

var _ RendererBackend = &wgpuRendererBackendImpl{}

// newWGPURendererBackend requests an adapter and a device. It fails on
// machines without a WebGPU capable adapter.
func newWGPURendererBackend(caps Capabilities, forceFallbackAdapter bool) (*wgpuRendererBackendImpl, error) {
	w := &wgpuRendererBackendImpl{
		headlessRendererBackend: newHeadlessRendererBackend(caps),
		mu:                      &sync.Mutex{},
		instance:                wgpu.CreateInstance(nil),
		textures:                make(map[TextureHandle]*wgpu.Texture),
		views:                   make(map[TextureHandle]*wgpu.TextureView),
		samplers:                make(map[SamplerHandle]*wgpu.Sampler),
	}

	a, err := w.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: forceFallbackAdapter,
	})
	if err != nil {
		w.instance.Release()
		return nil, fmt.Errorf("failed to request adapter: %w", err)
	}
	w.adapter = a

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Shadow Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: wgpu.DefaultLimits(),
		},
	})
	if err != nil {
		a.Release()
		w.instance.Release()
		return nil, fmt.Errorf("failed to request device: %w", err)
	}
	w.device = d
	w.queue = d.GetQueue()
	return w, nil
}

func (b *wgpuRendererBackendImpl) CreateTarget(handle TextureHandle, desc TargetDescriptor) error {
	if err := b.headlessRendererBackend.CreateTarget(handle, desc); err != nil {
		return err
	}
	format, native := desc.Format.WGPUFormat()
	if !native {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: desc.Name,
		Size: wgpu.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: max(desc.MipLevels, 1),
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        format,
		Usage:         wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopySrc,
	})
	if err != nil {
		b.headlessRendererBackend.ReleaseTarget(handle)
		return fmt.Errorf("failed to create %s texture %q: %w", desc.Format, desc.Name, err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		b.headlessRendererBackend.ReleaseTarget(handle)
		return fmt.Errorf("failed to create %s texture view %q: %w", desc.Format, desc.Name, err)
	}
	b.textures[handle] = tex
	b.views[handle] = view
	return nil
}

func (b *wgpuRendererBackendImpl) ReleaseTarget(handle TextureHandle) {
	b.headlessRendererBackend.ReleaseTarget(handle)

	b.mu.Lock()
	defer b.mu.Unlock()
	if v, ok := b.views[handle]; ok {
		v.Release()
		delete(b.views, handle)
	}
	if t, ok := b.textures[handle]; ok {
		t.Release()
		delete(b.textures, handle)
	}
}

func (b *wgpuRendererBackendImpl) CreateSampler(handle SamplerHandle, desc common.SamplerStagingData) {
	b.headlessRendererBackend.CreateSampler(handle, desc)

	b.mu.Lock()
	defer b.mu.Unlock()
	samp, err := b.device.CreateSampler(&wgpu.SamplerDescriptor{
		AddressModeU:  desc.AddressModeU,
		AddressModeV:  desc.AddressModeV,
		AddressModeW:  desc.AddressModeW,
		MagFilter:     desc.MagFilter,
		MinFilter:     desc.MinFilter,
		MipmapFilter:  desc.MipmapFilter,
		LodMinClamp:   desc.LodMinClamp,
		LodMaxClamp:   common.Coalesce(desc.LodMaxClamp, 32.0),
		Compare:       desc.Compare,
		MaxAnisotropy: common.Coalesce(desc.MaxAnisotropy, 1),
	})
	if err != nil {
		return
	}
	b.samplers[handle] = samp
}

func (b *wgpuRendererBackendImpl) BeginTarget(outputs []TextureHandle, depth TextureHandle) {
	b.headlessRendererBackend.BeginTarget(outputs, depth)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.endPass()
	b.bound = append(b.bound, boundTarget{outputs: outputs, depth: depth})
	if b.encoder == nil {
		encoder, err := b.device.CreateCommandEncoder(nil)
		if err != nil {
			return
		}
		b.encoder = encoder
	}
	b.beginPass(0)
}

func (b *wgpuRendererBackendImpl) EndTarget() {
	b.headlessRendererBackend.EndTarget()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.endPass()
	if len(b.bound) > 0 {
		b.bound = b.bound[:len(b.bound)-1]
	}
	if len(b.bound) > 0 {
		b.beginPass(0)
		return
	}
	b.submit()
}

func (b *wgpuRendererBackendImpl) Record(ev Event) {
	b.headlessRendererBackend.Record(ev)
	if ev.Kind != EventClear {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pass == nil {
		return
	}
	b.endPass()
	b.beginPass(ClearFlags(ev.Value))
}

// beginPass opens a render pass on the innermost bound target. Channels
// named in clear are cleared to zero color and far depth, the rest load.
func (b *wgpuRendererBackendImpl) beginPass(clear ClearFlags) {
	if b.encoder == nil || len(b.bound) == 0 {
		return
	}
	top := b.bound[len(b.bound)-1]

	colorLoad := wgpu.LoadOpLoad
	if clear&ClearTarget != 0 {
		colorLoad = wgpu.LoadOpClear
	}
	var colors []wgpu.RenderPassColorAttachment
	for _, h := range top.outputs {
		view, ok := b.views[h]
		if !ok {
			continue
		}
		colors = append(colors, wgpu.RenderPassColorAttachment{
			View:    view,
			LoadOp:  colorLoad,
			StoreOp: wgpu.StoreOpStore,
		})
	}

	desc := &wgpu.RenderPassDescriptor{ColorAttachments: colors}
	if view, ok := b.views[top.depth]; ok {
		depthLoad := wgpu.LoadOpLoad
		if clear&ClearDepth != 0 {
			depthLoad = wgpu.LoadOpClear
		}
		desc.DepthStencilAttachment = &wgpu.RenderPassDepthStencilAttachment{
			View:            view,
			DepthLoadOp:     depthLoad,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: 1.0,
		}
	}
	if len(colors) == 0 && desc.DepthStencilAttachment == nil {
		return
	}
	b.pass = b.encoder.BeginRenderPass(desc)
}

func (b *wgpuRendererBackendImpl) endPass() {
	if b.pass == nil {
		return
	}
	b.pass.End()
	b.pass.Release()
	b.pass = nil
}

func (b *wgpuRendererBackendImpl) submit() {
	if b.encoder == nil {
		return
	}
	commandBuffer, err := b.encoder.Finish(nil)
	b.encoder.Release()
	b.encoder = nil
	if err != nil {
		return
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()
}

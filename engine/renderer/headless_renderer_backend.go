package renderer

import (
	"fmt"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxy-shadow/common"
	"github.com/cogentcore/webgpu/wgpu"
)

type headlessTarget struct {
	desc   TargetDescriptor
	format wgpu.TextureFormat
	native bool
}

type headlessRendererBackend struct {
	mu *sync.Mutex

	caps     Capabilities
	targets  map[TextureHandle]headlessTarget
	samplers map[SamplerHandle]common.SamplerStagingData
	events   []Event

	// failCreate makes CreateTarget fail for formats listed here; tests use it
	// to simulate device allocation failures.
	failCreate map[BufferFormat]bool
}

var _ RendererBackend = &headlessRendererBackend{}

func newHeadlessRendererBackend(caps Capabilities) *headlessRendererBackend {
	return &headlessRendererBackend{
		mu:         &sync.Mutex{},
		caps:       caps,
		targets:    make(map[TextureHandle]headlessTarget),
		samplers:   make(map[SamplerHandle]common.SamplerStagingData),
		failCreate: make(map[BufferFormat]bool),
	}
}

func (b *headlessRendererBackend) CreateTarget(handle TextureHandle, desc TargetDescriptor) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failCreate[desc.Format] {
		return fmt.Errorf("create %s target %q: device out of memory", desc.Format, desc.Name)
	}
	if !b.caps.IsSupported(desc.Type, desc.Format) {
		return fmt.Errorf("create %s target %q: format %s not supported", desc.Type, desc.Name, desc.Format)
	}
	format, native := desc.Format.WGPUFormat()
	b.targets[handle] = headlessTarget{desc: desc, format: format, native: native}
	b.events = append(b.events, Event{Kind: EventCreateTarget, Label: desc.Name, Targets: []TextureHandle{handle}})
	return nil
}

func (b *headlessRendererBackend) ReleaseTarget(handle TextureHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.targets[handle]; !ok {
		return
	}
	delete(b.targets, handle)
	b.events = append(b.events, Event{Kind: EventReleaseTarget, Targets: []TextureHandle{handle}})
}

func (b *headlessRendererBackend) CreateSampler(handle SamplerHandle, desc common.SamplerStagingData) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samplers[handle] = desc
}

func (b *headlessRendererBackend) BeginTarget(outputs []TextureHandle, depth TextureHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, Event{Kind: EventBeginTarget, Targets: slices.Clone(outputs), Depth: depth})
}

func (b *headlessRendererBackend) EndTarget() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, Event{Kind: EventEndTarget})
}

func (b *headlessRendererBackend) Record(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

func (b *headlessRendererBackend) ColorWriteMask(channels uint32) wgpu.ColorWriteMask {
	masks := []wgpu.ColorWriteMask{wgpu.ColorWriteMaskRed, wgpu.ColorWriteMaskGreen, wgpu.ColorWriteMaskBlue, wgpu.ColorWriteMaskAlpha}
	if channels >= 4 {
		return wgpu.ColorWriteMaskAll
	}
	var m wgpu.ColorWriteMask
	for i := uint32(0); i < channels; i++ {
		m |= masks[i]
	}
	return m
}

func (b *headlessRendererBackend) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.events)
}

func (b *headlessRendererBackend) ResetEvents() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = b.events[:0]
}

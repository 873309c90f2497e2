package renderer

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-shadow/common"
	"github.com/Carmen-Shannon/oxy-shadow/engine/camera"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-logr/logr"
)

// MaxTextureSlots is the number of shader input slots for textures and samplers.
const MaxTextureSlots = 16

type targetBinding struct {
	outputs []TextureHandle
	depth   TextureHandle
}

type slotBackup struct {
	lo, hi   uint32
	textures []TextureHandle
	samplers []SamplerHandle
}

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	backendType RendererBackendType
	backend     RendererBackend
	caps        Capabilities
	log         logr.Logger

	nextTexture TextureHandle
	targets     map[TextureHandle]TargetDescriptor

	nextSampler  SamplerHandle
	samplerCache map[common.SamplerStagingData]SamplerHandle

	targetStack []targetBinding
	textures    [MaxTextureSlots]TextureHandle
	samplers    [MaxTextureSlots]SamplerHandle
	textureBkp  []slotBackup
	samplerBkp  []slotBackup

	states      [stateCount]uint32
	colorWrites wgpu.ColorWriteMask
	cullMode    wgpu.CullMode
	cam         camera.Camera

	failCreate []BufferFormat

	fallbackAdapter bool
}

// Renderer is the device collaborator of the lighting pipeline.
//
// It owns every texture and sampler created for shadow and reflectance
// buffers, tracks the bound render targets and shader inputs, and exposes the
// format capability queries the resource pool uses to pick buffer formats.
// Commands are forwarded to a RendererBackend which may be a real device or
// the recording headless backend.
type Renderer interface {
	// BackendType returns the backend implementation in use.
	BackendType() RendererBackendType

	// FormatCapabilities returns what the device can do with a format for a buffer type.
	//
	// Parameters:
	//   - t: the buffer type
	//   - f: the format
	//
	// Returns:
	//   - FormatCaps: the caps, 0 if unsupported
	FormatCapabilities(t BufferType, f BufferFormat) FormatCaps

	// MaxAnisotropy returns the highest anisotropy level the device supports.
	MaxAnisotropy() uint16

	// CreateTarget allocates a render target or depth buffer.
	//
	// Parameters:
	//   - desc: the texture to create
	//
	// Returns:
	//   - TextureHandle: the new texture
	//   - error: an error if the format is unsupported or allocation failed
	CreateTarget(desc TargetDescriptor) (TextureHandle, error)

	// ReleaseTarget frees a texture. Releasing the null handle or an unknown handle is a no-op.
	//
	// Parameters:
	//   - h: the texture to free
	ReleaseTarget(h TextureHandle)

	// TargetDescriptor returns the descriptor a live texture was created with.
	//
	// Parameters:
	//   - h: the texture
	//
	// Returns:
	//   - TargetDescriptor: the descriptor
	//   - bool: false if h is not a live texture
	TargetDescriptor(h TextureHandle) (TargetDescriptor, bool)

	// LiveTargets returns the number of textures currently allocated.
	LiveTargets() int

	// CreateSamplerState returns a sampler for the configuration, reusing an
	// existing sampler when one with identical settings was created before.
	//
	// Parameters:
	//   - desc: the sampler configuration
	//
	// Returns:
	//   - SamplerHandle: the sampler
	CreateSamplerState(desc common.SamplerStagingData) SamplerHandle

	// BeginTargetRender binds outputs and depth for subsequent draws. Calls nest.
	//
	// Parameters:
	//   - outputs: the color targets, null handles are skipped
	//   - depth: the depth buffer, or the null handle
	//
	// Returns:
	//   - bool: false if no valid output or depth buffer was given
	BeginTargetRender(outputs []TextureHandle, depth TextureHandle) bool

	// EndTargetRender unbinds the outputs of the matching BeginTargetRender.
	//
	// Returns:
	//   - bool: false if no target render is active
	EndTargetRender() bool

	// TargetDepth returns the number of active BeginTargetRender calls.
	TargetDepth() int

	// Clear clears the bound attachments.
	//
	// Parameters:
	//   - flags: which attachments to clear
	//   - color: the clear color (RGBA)
	//   - depth: the clear depth
	Clear(flags ClearFlags, color [4]float32, depth float32)

	// SetSystemState sets a pipeline state value.
	SetSystemState(s SystemState, v uint32)

	// SystemState returns a pipeline state value.
	SystemState(s SystemState) uint32

	// SetColorWrites sets the channel write mask for the bound outputs.
	SetColorWrites(mask wgpu.ColorWriteMask)

	// ColorWrites returns the current channel write mask.
	ColorWrites() wgpu.ColorWriteMask

	// ColorWriteMask returns the mask enabling the first channels channels.
	ColorWriteMask(channels uint32) wgpu.ColorWriteMask

	// SetCullMode sets the face culling mode.
	SetCullMode(mode wgpu.CullMode)

	// CullMode returns the face culling mode.
	CullMode() wgpu.CullMode

	// SetTexture binds a texture to a shader input slot.
	//
	// Parameters:
	//   - slot: the slot, must be below MaxTextureSlots
	//   - h: the texture, or the null handle to unbind
	SetTexture(slot uint32, h TextureHandle)

	// Texture returns the texture bound at slot.
	Texture(slot uint32) TextureHandle

	// SetSamplerState binds a sampler to a shader input slot.
	SetSamplerState(slot uint32, h SamplerHandle)

	// SamplerState returns the sampler bound at slot.
	SamplerState(slot uint32) SamplerHandle

	// BackupTextures saves the textures bound in slots [lo, hi). Backups nest.
	BackupTextures(lo, hi uint32)

	// RestoreTextures restores the most recent BackupTextures.
	//
	// Returns:
	//   - bool: false if there is no backup
	RestoreTextures() bool

	// BackupSamplers saves the samplers bound in slots [lo, hi). Backups nest.
	BackupSamplers(lo, hi uint32)

	// RestoreSamplers restores the most recent BackupSamplers.
	//
	// Returns:
	//   - bool: false if there is no backup
	RestoreSamplers() bool

	// Camera returns the active camera.
	Camera() camera.Camera

	// SetCamera replaces the active camera.
	SetCamera(c camera.Camera)

	// SetConstantBuffer uploads a named constant block.
	//
	// Parameters:
	//   - name: the block name
	//   - data: the packed block contents
	SetConstantBuffer(name string, data []byte)

	// ProcessImage runs an image processing operation.
	//
	// Parameters:
	//   - op: the operation
	//
	// Returns:
	//   - bool: false if the output or any input is not a live texture
	ProcessImage(op ImageOp) bool

	// Draw records a draw of count primitives or objects.
	Draw(label string, count uint32)

	// VPLTextureDimensions returns the size of the virtual point light texture.
	VPLTextureDimensions() (uint32, uint32)

	// SetVPLData hands the depth and normal maps of a reflective shadow map to
	// the virtual point light injection stage.
	SetVPLData(depth, normal TextureHandle)

	// Events returns the commands recorded by the backend.
	Events() []Event

	// ResetEvents clears the backend command log.
	ResetEvents()
}

var _ Renderer = &renderer{}

// NewRenderer creates a Renderer for the requested backend. A WGPU renderer
// that finds no device logs the error and records commands only.
//
// Parameters:
//   - backendType: the backend implementation
//   - options: builder options
//
// Returns:
//   - Renderer: the renderer
func NewRenderer(backendType RendererBackendType, options ...RendererBuilderOption) Renderer {
	r := &renderer{
		mu:           &sync.Mutex{},
		backendType:  backendType,
		caps:         DesktopCapabilities(),
		log:          logr.Discard(),
		targets:      make(map[TextureHandle]TargetDescriptor),
		samplerCache: make(map[common.SamplerStagingData]SamplerHandle),
		colorWrites:  wgpu.ColorWriteMaskAll,
		cullMode:     wgpu.CullModeBack,
		cam:          camera.NewCamera(),
	}

	for _, opt := range options {
		opt(r)
	}

	hb := newHeadlessRendererBackend(r.caps)
	for _, f := range r.failCreate {
		hb.failCreate[f] = true
	}
	r.backend = hb

	if backendType == BackendTypeWGPU {
		wb, err := newWGPURendererBackend(r.caps, r.fallbackAdapter)
		if err != nil {
			r.log.Error(err, "no WebGPU device, recording commands only")
			r.backendType = BackendTypeHeadless
			return r
		}
		wb.failCreate = hb.failCreate
		r.backend = wb
	}
	return r
}

func (r *renderer) BackendType() RendererBackendType {
	return r.backendType
}

func (r *renderer) FormatCapabilities(t BufferType, f BufferFormat) FormatCaps {
	return r.caps.FormatCaps(t, f)
}

func (r *renderer) MaxAnisotropy() uint16 {
	return r.caps.MaxAnisotropy
}

func (r *renderer) CreateTarget(desc TargetDescriptor) (TextureHandle, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return 0, fmt.Errorf("create target %q: zero size %dx%d", desc.Name, desc.Width, desc.Height)
	}
	if desc.Format == FormatUnknown {
		return 0, fmt.Errorf("create target %q: unknown format", desc.Name)
	}

	r.mu.Lock()
	r.nextTexture++
	h := r.nextTexture
	r.mu.Unlock()

	if err := r.backend.CreateTarget(h, desc); err != nil {
		r.log.V(1).Info("target creation failed", "name", desc.Name, "format", desc.Format.String(), "error", err.Error())
		return 0, err
	}

	r.mu.Lock()
	r.targets[h] = desc
	r.mu.Unlock()
	return h, nil
}

func (r *renderer) ReleaseTarget(h TextureHandle) {
	if !h.IsValid() {
		return
	}
	r.mu.Lock()
	_, ok := r.targets[h]
	delete(r.targets, h)
	for i := range r.textures {
		if r.textures[i] == h {
			r.textures[i] = 0
		}
	}
	r.mu.Unlock()
	if ok {
		r.backend.ReleaseTarget(h)
	}
}

func (r *renderer) TargetDescriptor(h TextureHandle) (TargetDescriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.targets[h]
	return d, ok
}

func (r *renderer) LiveTargets() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.targets)
}

func (r *renderer) CreateSamplerState(desc common.SamplerStagingData) SamplerHandle {
	desc.MaxAnisotropy = min(max(desc.MaxAnisotropy, 1), max(r.caps.MaxAnisotropy, 1))

	r.mu.Lock()
	if h, ok := r.samplerCache[desc]; ok {
		r.mu.Unlock()
		return h
	}
	r.nextSampler++
	h := r.nextSampler
	r.samplerCache[desc] = h
	r.mu.Unlock()

	r.backend.CreateSampler(h, desc)
	return h
}

func (r *renderer) BeginTargetRender(outputs []TextureHandle, depth TextureHandle) bool {
	r.mu.Lock()
	valid := make([]TextureHandle, 0, len(outputs))
	for _, o := range outputs {
		if _, ok := r.targets[o]; ok {
			valid = append(valid, o)
		}
	}
	if _, ok := r.targets[depth]; !ok {
		depth = 0
	}
	if len(valid) == 0 && !depth.IsValid() {
		r.mu.Unlock()
		return false
	}
	r.targetStack = append(r.targetStack, targetBinding{outputs: valid, depth: depth})
	r.mu.Unlock()

	r.backend.BeginTarget(valid, depth)
	return true
}

func (r *renderer) EndTargetRender() bool {
	r.mu.Lock()
	if len(r.targetStack) == 0 {
		r.mu.Unlock()
		return false
	}
	r.targetStack = r.targetStack[:len(r.targetStack)-1]
	r.mu.Unlock()

	r.backend.EndTarget()
	return true
}

func (r *renderer) TargetDepth() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.targetStack)
}

func (r *renderer) Clear(flags ClearFlags, color [4]float32, depth float32) {
	r.backend.Record(Event{Kind: EventClear, Value: uint32(flags)})
}

func (r *renderer) SetSystemState(s SystemState, v uint32) {
	if s < 0 || s >= stateCount {
		return
	}
	r.mu.Lock()
	r.states[s] = v
	r.mu.Unlock()
	r.backend.Record(Event{Kind: EventSetState, State: s, Value: v})
}

func (r *renderer) SystemState(s SystemState) uint32 {
	if s < 0 || s >= stateCount {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[s]
}

func (r *renderer) SetColorWrites(mask wgpu.ColorWriteMask) {
	r.mu.Lock()
	r.colorWrites = mask
	r.mu.Unlock()
	r.backend.Record(Event{Kind: EventSetColorWrites, Value: uint32(mask)})
}

func (r *renderer) ColorWrites() wgpu.ColorWriteMask {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.colorWrites
}

func (r *renderer) ColorWriteMask(channels uint32) wgpu.ColorWriteMask {
	return r.backend.ColorWriteMask(channels)
}

func (r *renderer) SetCullMode(mode wgpu.CullMode) {
	r.mu.Lock()
	r.cullMode = mode
	r.mu.Unlock()
	r.backend.Record(Event{Kind: EventSetCullMode, Value: uint32(mode)})
}

func (r *renderer) CullMode() wgpu.CullMode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cullMode
}

func (r *renderer) SetTexture(slot uint32, h TextureHandle) {
	if slot >= MaxTextureSlots {
		return
	}
	r.mu.Lock()
	r.textures[slot] = h
	r.mu.Unlock()
	r.backend.Record(Event{Kind: EventSetTexture, Slot: slot, Targets: []TextureHandle{h}})
}

func (r *renderer) Texture(slot uint32) TextureHandle {
	if slot >= MaxTextureSlots {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.textures[slot]
}

func (r *renderer) SetSamplerState(slot uint32, h SamplerHandle) {
	if slot >= MaxTextureSlots {
		return
	}
	r.mu.Lock()
	r.samplers[slot] = h
	r.mu.Unlock()
	r.backend.Record(Event{Kind: EventSetSampler, Slot: slot, Sampler: h})
}

func (r *renderer) SamplerState(slot uint32) SamplerHandle {
	if slot >= MaxTextureSlots {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.samplers[slot]
}

func (r *renderer) BackupTextures(lo, hi uint32) {
	hi = min(hi, MaxTextureSlots)
	r.mu.Lock()
	defer r.mu.Unlock()
	b := slotBackup{lo: lo, hi: hi}
	if lo < hi {
		b.textures = append([]TextureHandle(nil), r.textures[lo:hi]...)
	}
	r.textureBkp = append(r.textureBkp, b)
}

func (r *renderer) RestoreTextures() bool {
	r.mu.Lock()
	if len(r.textureBkp) == 0 {
		r.mu.Unlock()
		return false
	}
	b := r.textureBkp[len(r.textureBkp)-1]
	r.textureBkp = r.textureBkp[:len(r.textureBkp)-1]
	r.mu.Unlock()

	for i, h := range b.textures {
		r.SetTexture(b.lo+uint32(i), h)
	}
	return true
}

func (r *renderer) BackupSamplers(lo, hi uint32) {
	hi = min(hi, MaxTextureSlots)
	r.mu.Lock()
	defer r.mu.Unlock()
	b := slotBackup{lo: lo, hi: hi}
	if lo < hi {
		b.samplers = append([]SamplerHandle(nil), r.samplers[lo:hi]...)
	}
	r.samplerBkp = append(r.samplerBkp, b)
}

func (r *renderer) RestoreSamplers() bool {
	r.mu.Lock()
	if len(r.samplerBkp) == 0 {
		r.mu.Unlock()
		return false
	}
	b := r.samplerBkp[len(r.samplerBkp)-1]
	r.samplerBkp = r.samplerBkp[:len(r.samplerBkp)-1]
	r.mu.Unlock()

	for i, h := range b.samplers {
		r.SetSamplerState(b.lo+uint32(i), h)
	}
	return true
}

func (r *renderer) Camera() camera.Camera {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cam
}

func (r *renderer) SetCamera(c camera.Camera) {
	if c == nil {
		return
	}
	r.mu.Lock()
	r.cam = c
	r.mu.Unlock()
	u := c.Uniform()
	r.backend.Record(Event{Kind: EventSetCamera, Bytes: u.Size()})
	r.SetConstantBuffer("camera", u.Marshal())
}

func (r *renderer) SetConstantBuffer(name string, data []byte) {
	r.backend.Record(Event{Kind: EventSetConstants, Label: name, Bytes: len(data)})
}

func (r *renderer) ProcessImage(op ImageOp) bool {
	r.mu.Lock()
	_, ok := r.targets[op.Output]
	for _, in := range op.Inputs {
		if _, live := r.targets[in]; !live {
			ok = false
		}
	}
	r.mu.Unlock()
	if !ok {
		r.log.V(1).Info("image operation skipped, invalid texture", "op", op.Kind.String())
		return false
	}
	r.backend.Record(Event{Kind: EventImage, Image: op, Targets: append([]TextureHandle{op.Output}, op.Inputs...)})
	return true
}

func (r *renderer) Draw(label string, count uint32) {
	r.backend.Record(Event{Kind: EventDraw, Label: label, Count: count})
}

func (r *renderer) VPLTextureDimensions() (uint32, uint32) {
	return r.caps.VPLWidth, r.caps.VPLHeight
}

func (r *renderer) SetVPLData(depth, normal TextureHandle) {
	r.backend.Record(Event{Kind: EventSetVPLData, Targets: []TextureHandle{depth, normal}})
}

func (r *renderer) Events() []Event {
	return r.backend.Events()
}

func (r *renderer) ResetEvents() {
	r.backend.ResetEvents()
}

// Package pool owns the physical shadow and reflective shadow map textures
// shared by every light in a scene and hands them out to generators per frame.
package pool

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxy-shadow/common"
	"github.com/Carmen-Shannon/oxy-shadow/engine/frame"
	"github.com/Carmen-Shannon/oxy-shadow/engine/renderer"
	"github.com/go-logr/logr"
	"go.uber.org/multierr"
)

var (
	// ErrUnsupportedFormat is returned when the device cannot create a resource's format.
	ErrUnsupportedFormat = errors.New("pool: format unsupported")
	// ErrMemoryLimit is returned when a Cached resource would exceed the pool memory limit.
	ErrMemoryLimit = errors.New("pool: memory limit exceeded")
	// ErrSharedLimit is returned when a format and size already has the maximum number of Shared resources.
	ErrSharedLimit = errors.New("pool: shared resource limit reached")
	// ErrResolution is returned for sizes outside the configured range.
	ErrResolution = errors.New("pool: resolution out of range")
	// ErrConfiguring is returned for configuration calls made in the wrong state.
	ErrConfiguring = errors.New("pool: configuration state")
)

const bytesPerMB = 1048576

// Pool is the shadow map texture pool.
//
// All methods must be called from the frame thread. Resources returned by
// Resource are read without locking.
type Pool interface {
	// BeginConfigure clears the pool and starts a configuration pass. The system
	// maps (one Shared depth map and one Shared single channel render target per
	// power-of-two size) are queued immediately.
	//
	// Parameters:
	//   - cfg: the pool sizing
	//
	// Returns:
	//   - error: ErrConfiguring if a pass is already open, or a validation error for cfg
	BeginConfigure(cfg Config) error

	// AddDefaultMaps queues a Shared copy of every Cached description at every
	// pool size. These are the default resources handed out when no Cached
	// resource is free.
	//
	// Parameters:
	//   - descs: the descriptions of one shadow method
	AddDefaultMaps(descs []Description)

	// AddCachedMaps queues count sets of the Cached descriptions at one size.
	//
	// Parameters:
	//   - descs: the descriptions of one shadow method
	//   - resolution: the size of the maps
	//   - count: how many sets to add
	AddCachedMaps(descs []Description, resolution, count uint32)

	// AddMaps queues plain render targets of one format and registers a
	// resample chain for that format.
	//
	// Parameters:
	//   - category: Cached or Shared
	//   - format: the render target format
	//   - resolution: the size of the maps
	//   - count: how many maps to add
	AddMaps(category Category, format renderer.BufferFormat, resolution, count uint32)

	// EndConfigure creates every queued resource and resample chain. Resources
	// skipped for memory or shared limits are logged, not returned.
	//
	// Returns:
	//   - error: the combined creation failures, or nil
	EndConfigure() error

	// IsConfiguring reports whether a configuration pass is open.
	//
	// Returns:
	//   - bool: true between BeginConfigure and EndConfigure
	IsConfiguring() bool

	// Config returns the active configuration.
	//
	// Returns:
	//   - Config: the sizing passed to BeginConfigure
	Config() Config

	// MemoryConsumption returns the bytes used by Cached resources.
	//
	// Returns:
	//   - uint64: the byte count
	MemoryConsumption() uint64

	// SharedDepthFormat returns the depth format of the Shared system depth maps.
	//
	// Returns:
	//   - DepthFormat: the format
	//   - bool: false if the device has no usable depth format
	SharedDepthFormat() (DepthFormat, bool)

	// ResampleChain returns the scratch chain for a format, creating it with a
	// log line when it was not registered during configuration.
	//
	// Parameters:
	//   - format: the render target format
	//
	// Returns:
	//   - ResampleChain: the chain
	//   - bool: false if the chain could not be created
	ResampleChain(format renderer.BufferFormat) (ResampleChain, bool)

	// Clear releases every resource and resample chain.
	Clear()

	// ResetAvailability clears the channel assignments of every Cached resource
	// holding dt (or every resource for DataTypeAny). Fill history is kept so
	// ReassignResources can restore last frame's assignments.
	//
	// Parameters:
	//   - dt: the data type to reset
	ResetAvailability(dt DataType)

	// GetResource finds a resource for one description. A Cached request takes
	// the never-assigned or least recently assigned matching resource with enough
	// free channels, then tries to allocate a new one, and finally falls back to
	// the first Shared resource of the same format and size not in exclude.
	//
	// Parameters:
	//   - desc: the request
	//   - exclude: Shared resources already handed to this request
	//
	// Returns:
	//   - Resource: the resource, or nil if nothing fits
	GetResource(desc Description, exclude map[ResourceHandle]bool) Resource

	// AssignResources releases everything owner holds and assigns a fresh
	// resource for each description.
	//
	// Parameters:
	//   - descs: the requests, in order
	//   - owner: the requester
	//   - dt: the requester's data type
	//
	// Returns:
	//   - []ResourceHandle: one handle per description
	//   - int: how many Cached requests received a default (Shared) resource
	//   - bool: false if some description could not be served at all
	AssignResources(descs []Description, owner OwnerID, dt DataType) ([]ResourceHandle, int, bool)

	// ReassignResources tries to give owner back the resources it held and
	// filled last frame. It fails if any Cached resource was lost to another
	// requester, in which case the caller must release and reassign.
	//
	// Parameters:
	//   - descs: the requests, in order
	//   - owner: the requester
	//   - dt: the requester's data type
	//   - held: the handles the requester held last frame
	//
	// Returns:
	//   - []ResourceHandle: the reassigned handles
	//   - bool: true if every resource was recovered
	ReassignResources(descs []Description, owner OwnerID, dt DataType, held []ResourceHandle) ([]ResourceHandle, bool)

	// ReleaseResources returns every channel owner holds to the pool. Releasing
	// an owner that holds nothing is a no-op.
	//
	// Parameters:
	//   - owner: the requester
	ReleaseResources(owner OwnerID)

	// Resource looks up a resource by handle.
	//
	// Parameters:
	//   - h: the handle
	//
	// Returns:
	//   - Resource: the resource, or nil for an invalid handle
	Resource(h ResourceHandle) Resource

	// Resources returns every resource in creation order.
	//
	// Returns:
	//   - []Resource: the resources
	Resources() []Resource

	// BestRenderTargetFormat picks the widest supported render target format for
	// a precision (0, 8, 16, 24 or 32 bits; 0 means best available) and a
	// channel count (1, 2 or 4).
	//
	// Parameters:
	//   - precision: the bits per channel
	//   - channels: the channel count
	//
	// Returns:
	//   - renderer.BufferFormat: the format, or FormatUnknown if none is supported
	BestRenderTargetFormat(precision, channels uint32) renderer.BufferFormat

	// BestDepthFormat picks the first supported depth format of a precision
	// (0 means 24) that has the requested read capabilities.
	//
	// Parameters:
	//   - precision: 16, 24 or 32 bits
	//   - sample, gather, compare: the required read capabilities
	//   - stencilBits: the minimum stencil bits
	//
	// Returns:
	//   - DepthFormat: the format
	//   - bool: false if nothing matches
	BestDepthFormat(precision uint32, sample, gather, compare bool, stencilBits uint32) (DepthFormat, bool)

	// BestReadableDepthFormat picks a depth format that can be gathered, or else sampled.
	//
	// Parameters:
	//   - precision: 16, 24 or 32 bits
	//   - stencilBits: the minimum stencil bits
	//
	// Returns:
	//   - DepthFormat: the format
	//   - bool: false if no readable depth format exists
	BestReadableDepthFormat(precision, stencilBits uint32) (DepthFormat, bool)
}

type poolImpl struct {
	mu  *sync.Mutex
	ctx *frame.Context
	log logr.Logger

	cfg             Config
	configuring     bool
	pending         []Description
	resampleFormats []renderer.BufferFormat

	arena  []*resourceImpl
	cached []map[renderer.BufferFormat][]ResourceHandle
	shared []map[renderer.BufferFormat][]ResourceHandle
	chains map[renderer.BufferFormat]ResampleChain

	depthFormats   [3][]DepthFormat
	sharedDepth    DepthFormat
	hasSharedDepth bool

	memory    uint64
	assignSeq uint64
}

var _ Pool = &poolImpl{}

// NewPool creates an empty, unconfigured pool.
//
// Parameters:
//   - ctx: the frame context supplying the renderer and clock
//   - options: functional options configuring the pool
//
// Returns:
//   - Pool: the new pool
func NewPool(ctx *frame.Context, options ...PoolBuilderOption) Pool {
	if ctx == nil || ctx.Renderer == nil {
		panic("pool: NewPool requires a frame context with a Renderer")
	}
	p := &poolImpl{
		mu:     &sync.Mutex{},
		ctx:    ctx,
		log:    ctx.Logger.WithName("pool"),
		chains: make(map[renderer.BufferFormat]ResampleChain),
	}
	for _, option := range options {
		option(p)
	}
	p.depthFormats = buildDepthFormats(ctx.Renderer)
	return p
}

func (p *poolImpl) BeginConfigure(cfg Config) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.configuring {
		return fmt.Errorf("begin configure: already configuring: %w", ErrConfiguring)
	}
	if cfg.MinResolution == 0 || cfg.MaxResolution < cfg.MinResolution {
		return fmt.Errorf("begin configure: min %d max %d: %w", cfg.MinResolution, cfg.MaxResolution, ErrResolution)
	}
	if !isPow2(cfg.MinResolution) || !isPow2(cfg.MaxResolution) {
		return fmt.Errorf("begin configure: sizes %d..%d must be powers of two: %w", cfg.MinResolution, cfg.MaxResolution, ErrResolution)
	}

	p.clear()
	p.cfg = cfg
	p.configuring = true
	levels := common.Log2(cfg.MaxResolution) + 1
	p.cached = make([]map[renderer.BufferFormat][]ResourceHandle, levels)
	p.shared = make([]map[renderer.BufferFormat][]ResourceHandle, levels)
	for i := range p.cached {
		p.cached[i] = make(map[renderer.BufferFormat][]ResourceHandle)
		p.shared[i] = make(map[renderer.BufferFormat][]ResourceHandle)
	}
	p.depthFormats = buildDepthFormats(p.ctx.Renderer)
	p.addSystemMaps()
	return nil
}

func isPow2(v uint32) bool {
	return v != 0 && v&(v-1) == 0
}

func (p *poolImpl) addSystemMaps() {
	rtFormat := p.BestRenderTargetFormat(0, 1)
	depth, ok := p.bestReadableDepthFormat(24, 0)
	if !ok {
		depth, ok = p.bestDepthFormat(0, false, false, false, 0)
	}
	p.sharedDepth, p.hasSharedDepth = depth, ok

	for level := common.Log2(p.cfg.MinResolution); level <= common.Log2(p.cfg.MaxResolution); level++ {
		res := uint32(1) << level
		if ok {
			t := renderer.BufferTypeDepthStencil
			if depth.Caps.Has(renderer.CapsCanGather) || depth.Caps.Has(renderer.CapsCanSample) {
				t = renderer.BufferTypeShadowMap
			}
			p.pending = append(p.pending, Description{
				Category: CategoryShared,
				Target:   renderer.TargetDescriptor{Type: t, Format: depth.Format, Width: res, Height: res, MipLevels: 1},
				Sampler:  depth.Sampler,
				Role:     RoleDepthMap,
			})
		}
		if rtFormat != renderer.FormatUnknown {
			p.pending = append(p.pending, Description{
				Category: CategoryShared,
				Target:   renderer.TargetDescriptor{Type: renderer.BufferTypeRenderTarget, Format: rtFormat, Width: res, Height: res, MipLevels: 1},
				Sampler:  common.PointClampSampler(),
				Role:     RoleColorMap,
			})
		}
	}
}

// sized copies d to a square of res, expanding its mip chain unless it is single level.
func sized(d Description, category Category, res uint32) Description {
	d.Category = category
	d.Target.Width, d.Target.Height = res, res
	if d.Target.MipLevels != 1 {
		d.Target.MipLevels = common.Log2(res) + 1
	}
	return d
}

func (p *poolImpl) AddDefaultMaps(descs []Description) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.configuring {
		p.log.Error(ErrConfiguring, "AddDefaultMaps called outside a configuration pass")
		return
	}
	for level := common.Log2(p.cfg.MinResolution); level <= common.Log2(p.cfg.MaxResolution); level++ {
		for _, d := range descs {
			if d.Category == CategoryCached {
				p.pending = append(p.pending, sized(d, CategoryShared, 1<<level))
			}
		}
	}
}

func (p *poolImpl) AddCachedMaps(descs []Description, resolution, count uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.configuring {
		p.log.Error(ErrConfiguring, "AddCachedMaps called outside a configuration pass")
		return
	}
	if count == 0 {
		return
	}
	if p.cfg.MemoryLimitMB == 0 {
		p.log.V(1).Info("cannot add cached maps because the pool is disabled (memory limit 0)")
		return
	}
	if resolution > p.cfg.MaxResolution {
		p.log.V(1).Info("ignoring cached maps larger than the pool maximum", "count", count, "resolution", resolution, "max", p.cfg.MaxResolution)
		return
	}
	for i := uint32(0); i < count; i++ {
		for _, d := range descs {
			if d.Category == CategoryCached {
				p.pending = append(p.pending, sized(d, CategoryCached, resolution))
			}
		}
	}
}

func (p *poolImpl) AddMaps(category Category, format renderer.BufferFormat, resolution, count uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.configuring {
		p.log.Error(ErrConfiguring, "AddMaps called outside a configuration pass")
		return
	}
	if count == 0 {
		return
	}
	if category == CategoryCached && p.cfg.MemoryLimitMB == 0 {
		p.log.V(1).Info("cannot add cached maps because the pool is disabled (memory limit 0)")
		return
	}
	if resolution > p.cfg.MaxResolution {
		p.log.V(1).Info("ignoring maps larger than the pool maximum", "count", count, "resolution", resolution, "max", p.cfg.MaxResolution)
		return
	}
	d := Description{
		Category: category,
		Target:   renderer.TargetDescriptor{Type: renderer.BufferTypeRenderTarget, Format: format, Width: resolution, Height: resolution, MipLevels: 1},
		Sampler:  common.PointClampSampler(),
	}
	for i := uint32(0); i < count; i++ {
		p.pending = append(p.pending, d)
	}
	if !slices.Contains(p.resampleFormats, format) {
		p.resampleFormats = append(p.resampleFormats, format)
	}
}

func (p *poolImpl) EndConfigure() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.configuring {
		return fmt.Errorf("end configure: not configuring: %w", ErrConfiguring)
	}

	var errs error
	for _, d := range p.pending {
		if _, err := p.createResource(d); err != nil {
			switch {
			case errors.Is(err, ErrSharedLimit):
			case errors.Is(err, ErrMemoryLimit):
				p.log.V(1).Info("skipped pool allocation", "reason", err.Error())
			default:
				p.log.Error(err, "pool resource creation failed")
				errs = multierr.Append(errs, err)
			}
		}
	}
	for _, f := range p.resampleFormats {
		if _, err := p.createResampleChain(f); err != nil {
			p.log.Error(err, "resample chain creation failed", "format", f.String())
			errs = multierr.Append(errs, err)
		}
	}
	p.pending = nil
	p.configuring = false

	p.log.V(1).Info("pool configured", "resources", len(p.arena), "memoryBytes", p.memory)
	return errs
}

func (p *poolImpl) IsConfiguring() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.configuring
}

func (p *poolImpl) Config() Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

func (p *poolImpl) MemoryConsumption() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.memory
}

func (p *poolImpl) SharedDepthFormat() (DepthFormat, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sharedDepth, p.hasSharedDepth
}

func (p *poolImpl) ResampleChain(format renderer.BufferFormat) (ResampleChain, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.chains[format]; ok {
		return c, true
	}
	c, err := p.createResampleChain(format)
	if err != nil {
		p.log.Error(err, "resample chain unavailable", "format", format.String())
		return ResampleChain{}, false
	}
	p.log.V(1).Info("dynamic allocation of a resample chain; register the format during configuration", "format", format.String())
	return c, true
}

// createResampleChain allocates a Shared target at the maximum size. Chains
// live outside the Shared lookup tables so they are never handed out as
// default resources.
func (p *poolImpl) createResampleChain(format renderer.BufferFormat) (ResampleChain, error) {
	res := p.cfg.MaxResolution
	if res == 0 {
		return ResampleChain{}, fmt.Errorf("resample chain %s: pool not configured: %w", format, ErrResolution)
	}
	target := renderer.TargetDescriptor{
		Name:      fmt.Sprintf("Pool(Resample)_%dx%d_%s", res, res, format),
		Type:      renderer.BufferTypeRenderTarget,
		Format:    format,
		Width:     res,
		Height:    res,
		MipLevels: 1,
	}
	if p.ctx.Renderer.FormatCapabilities(target.Type, format) == 0 {
		return ResampleChain{}, fmt.Errorf("resample chain %s: %w", format, ErrUnsupportedFormat)
	}
	tex, err := p.ctx.Renderer.CreateTarget(target)
	if err != nil {
		return ResampleChain{}, fmt.Errorf("resample chain %s: %w", format, err)
	}
	h := ResourceHandle(len(p.arena))
	p.arena = append(p.arena, newResource(h, CategoryShared, target, tex))
	c := ResampleChain{Format: format, Resolution: res, Resource: h, Texture: tex}
	p.chains[format] = c
	return c, nil
}

func (p *poolImpl) createResource(d Description) (*resourceImpl, error) {
	t := d.Target
	if t.Height == 0 {
		t.Height = t.Width
	}
	level := common.Log2(t.Width)
	if t.Width == 0 || int(level) >= len(p.cached) {
		return nil, fmt.Errorf("create %dx%d %s: %w", t.Width, t.Height, t.Format, ErrResolution)
	}
	if p.ctx.Renderer.FormatCapabilities(t.Type, t.Format) == 0 {
		return nil, fmt.Errorf("create %dx%d %s: %w", t.Width, t.Height, t.Format, ErrUnsupportedFormat)
	}
	size := t.ByteSize()
	if d.Category == CategoryCached && p.memory+size > uint64(p.cfg.MemoryLimitMB)*bytesPerMB {
		return nil, fmt.Errorf("create %dx%d %s within %d MB: %w", t.Width, t.Height, t.Format, p.cfg.MemoryLimitMB, ErrMemoryLimit)
	}

	table := p.cached
	if d.Category == CategoryShared {
		table = p.shared
		if uint32(len(table[level][t.Format])) >= p.cfg.MaxSharedPerType {
			return nil, fmt.Errorf("create %dx%d %s: %w", t.Width, t.Height, t.Format, ErrSharedLimit)
		}
	}

	t.Name = fmt.Sprintf("Pool(%s)_%dx%d_%s", d.Category, t.Width, t.Height, t.Format)
	tex, err := p.ctx.Renderer.CreateTarget(t)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", t.Name, err)
	}

	h := ResourceHandle(len(p.arena))
	r := newResource(h, d.Category, t, tex)
	p.arena = append(p.arena, r)
	table[level][t.Format] = append(table[level][t.Format], h)
	if d.Category == CategoryCached {
		p.memory += size
	}
	return r, nil
}

func (p *poolImpl) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clear()
}

func (p *poolImpl) clear() {
	for _, r := range p.arena {
		p.ctx.Renderer.ReleaseTarget(r.texture)
	}
	p.arena = nil
	p.cached = nil
	p.shared = nil
	clear(p.chains)
	p.pending = nil
	p.resampleFormats = nil
	p.memory = 0
	p.hasSharedDepth = false
	p.sharedDepth = DepthFormat{}
	p.configuring = false
}

func (p *poolImpl) ResetAvailability(dt DataType) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, level := range p.cached {
		for _, handles := range level {
			for _, h := range handles {
				r := p.arena[h]
				if dt == DataTypeAny || r.isAssignedType(dt) {
					r.clearAssignments()
				}
			}
		}
	}
}

func (p *poolImpl) GetResource(desc Description, exclude map[ResourceHandle]bool) Resource {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r := p.getResource(desc, exclude, desc.ChannelCount, true, true); r != nil {
		return r
	}
	return nil
}

func (p *poolImpl) getResource(desc Description, exclude map[ResourceHandle]bool, count uint32, autoCreate, autoDefault bool) *resourceImpl {
	t := desc.Target
	level := common.Log2(t.Width)
	if t.Width == 0 || int(level) >= len(p.cached) {
		p.log.Error(ErrResolution, "resolution not available in the pool", "width", t.Width, "format", t.Format.String())
		return nil
	}
	if count == 0 {
		count = t.Format.Channels()
	}

	if desc.Category == CategoryCached {
		var best *resourceImpl
		for _, h := range p.cached[level][t.Format] {
			r := p.arena[h]
			if r.available < count {
				continue
			}
			if r.lastAssigned == 0 {
				return r
			}
			if best == nil || r.lastAssigned < best.lastAssigned {
				best = r
			}
		}
		if best != nil {
			return best
		}

		if autoCreate {
			if r, err := p.createResource(desc); err == nil {
				p.log.V(1).Info("dynamic pool allocation after configuration; consider growing the pool", "width", t.Width, "height", t.Height, "format", t.Format.String())
				return r
			}
		}
		if !autoDefault {
			return nil
		}
	}

	for _, h := range p.shared[level][t.Format] {
		if !exclude[h] {
			return p.arena[h]
		}
	}

	p.log.V(1).Info("no default resource available; resource selection failed", "width", t.Width, "height", t.Height, "format", t.Format.String())
	return nil
}

func (p *poolImpl) AssignResources(descs []Description, owner OwnerID, dt DataType) ([]ResourceHandle, int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.releaseResources(owner)

	exclude := make(map[ResourceHandle]bool)
	defaults := 0
	out := make([]ResourceHandle, len(descs))
	now := p.ctx.Frame()
	for i, d := range descs {
		r := p.getResource(d, exclude, d.ChannelCount, true, true)
		if r == nil {
			p.log.Error(ErrResolution, "failed to find a valid resource", "slot", i, "role", d.Role.String(), "format", d.Target.Format.String(), "width", d.Target.Width)
			p.releaseResources(owner)
			return nil, defaults, false
		}
		out[i] = r.handle
		if r.category == CategoryShared {
			exclude[r.handle] = true
			if d.Category == CategoryCached {
				defaults++
			}
			continue
		}
		p.assignSeq++
		r.assign(owner, dt, d.ChannelCount, 0, p.assignSeq, now)
	}
	return out, defaults, true
}

func (p *poolImpl) ReassignResources(descs []Description, owner OwnerID, dt DataType, held []ResourceHandle) ([]ResourceHandle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(descs) == 0 || len(held) == 0 {
		return nil, false
	}
	if len(descs) != len(held) {
		for _, h := range held {
			if r := p.resource(h); r != nil {
				r.unassign(owner)
			}
		}
		return nil, false
	}

	prev := make([]ChannelMask, len(held))
	matches := 0
	for i, h := range held {
		r := p.resource(h)
		if r == nil {
			continue
		}
		d := descs[i]
		if d.ChannelCount != 0 {
			prev[i] = r.ChannelMask(owner)
		}
		if d.Category == CategoryCached {
			if r.category != d.Category {
				continue
			}
			if !r.WasPreviousOwner(owner, prev[i]) {
				continue
			}
			if !r.canAccommodate(d.Target.Type, d.Target.Format, d.Target.Width, d.ChannelCount, dt) {
				continue
			}
			if prev[i] != 0 && !r.channelsAvailable(prev[i]) {
				continue
			}
		}
		r.unassign(owner)
		matches++
	}
	if matches != len(held) {
		return nil, false
	}

	exclude := make(map[ResourceHandle]bool)
	out := make([]ResourceHandle, len(held))
	now := p.ctx.Frame()
	for i, d := range descs {
		if d.Category == CategoryShared {
			r := p.getResource(d, exclude, 0, true, true)
			if r == nil {
				p.log.Error(ErrResolution, "shared resource vanished during reassignment", "slot", i)
				p.releaseResources(owner)
				return nil, false
			}
			exclude[r.handle] = true
			out[i] = r.handle
			continue
		}
		r := p.arena[held[i]]
		p.assignSeq++
		r.assign(owner, dt, d.ChannelCount, prev[i], p.assignSeq, now)
		out[i] = r.handle
	}
	return out, true
}

func (p *poolImpl) ReleaseResources(owner OwnerID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releaseResources(owner)
}

func (p *poolImpl) releaseResources(owner OwnerID) {
	for _, r := range p.arena {
		r.unassign(owner)
	}
}

func (p *poolImpl) Resource(h ResourceHandle) Resource {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r := p.resource(h); r != nil {
		return r
	}
	return nil
}

func (p *poolImpl) resource(h ResourceHandle) *resourceImpl {
	if h < 0 || int(h) >= len(p.arena) {
		return nil
	}
	return p.arena[h]
}

func (p *poolImpl) Resources() []Resource {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Resource, len(p.arena))
	for i, r := range p.arena {
		out[i] = r
	}
	return out
}

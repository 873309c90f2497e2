package shadow

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-shadow/common"
	"github.com/Carmen-Shannon/oxy-shadow/engine/camera"
	"github.com/Carmen-Shannon/oxy-shadow/engine/frame"
	"github.com/Carmen-Shannon/oxy-shadow/engine/lighting/pool"
	"github.com/Carmen-Shannon/oxy-shadow/engine/renderer"
	"github.com/Carmen-Shannon/oxy-shadow/engine/visibility"
	"github.com/chewxy/math32"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-logr/logr"
)

// ErrNoResources is logged when the pool cannot serve a generator at all.
var ErrNoResources = errors.New("shadow: pool could not supply resources")

// textureBias maps clip space xy [-1,1] to texture space [0,1] with y flipped.
var textureBias = [16]float32{
	0.5, 0, 0, 0,
	0, -0.5, 0, 0,
	0, 0, 1, 0,
	0.5, 0.5, 0, 1,
}

var nextOwner atomic.Uint64

// Split is the depth range of the scene camera a parallel light covers.
type Split struct {
	Near float32
	Far  float32
}

type generatorState int

const (
	stateUnassigned generatorState = iota
	stateConfigured
	stateWriting
	stateReading
)

func (s generatorState) String() string {
	switch s {
	case stateConfigured:
		return "configured"
	case stateWriting:
		return "writing"
	case stateReading:
		return "reading"
	}
	return "unassigned"
}

// Generator owns the shadow (or reflective shadow) map state of one light
// frustum: its resource descriptions and pool assignments, the write, post
// and read operation lists, the frustum camera and visibility set, and the
// begin/pass/end protocols that fill and sample the maps.
//
// A Generator is driven from the frame thread only. Calls that break the
// write/read protocol are logged as invariant violations and return false
// (or -1) without touching renderer state.
type Generator interface {
	// Kind returns whether the generator fills shadow maps or reflective shadow maps.
	//
	// Returns:
	//   - Kind: the generator kind
	Kind() Kind

	// Name returns the generator's display name.
	//
	// Returns:
	//   - string: "<light>.Generator[<frustum>]"
	Name() string

	// Owner returns the identity the generator holds pool resources under.
	//
	// Returns:
	//   - pool.OwnerID: the owner id
	Owner() pool.OwnerID

	// Method returns the method flags requested by the last Update.
	//
	// Returns:
	//   - Method: the requested flags
	Method() Method

	// HardwareMethod returns the method flags actually in effect, after edge
	// masks were dropped for lack of a Cached resource and translucency added.
	//
	// Returns:
	//   - Method: the effective flags
	HardwareMethod() Method

	// Settings returns the merged settings of the last Update.
	//
	// Returns:
	//   - Settings: the settings
	Settings() Settings

	// Resolution returns the size of the maps the read pass samples.
	//
	// Returns:
	//   - uint32: the resolution in texels
	Resolution() uint32

	// WriteResolution returns the size of the maps the write passes fill. It
	// differs from Resolution when a box filter downsamples the fill.
	//
	// Returns:
	//   - uint32: the resolution in texels
	WriteResolution() uint32

	// Camera returns the frustum camera. Lights place it; parallel splits fit
	// its projection during BeginWrite.
	//
	// Returns:
	//   - camera.Camera: the camera
	Camera() camera.Camera

	// Visibility returns the caster set computed by ComputeVisibilitySet.
	//
	// Returns:
	//   - visibility.Set: the set
	Visibility() visibility.Set

	// WritePassCount returns the number of write passes a fill runs.
	//
	// Returns:
	//   - int: the pass count
	WritePassCount() int

	// EdgeMaskChannels returns the channels of the edge map the generator owns.
	//
	// Returns:
	//   - pool.ChannelMask: the channel mask
	EdgeMaskChannels() pool.ChannelMask

	// EdgeMaskChannelCount returns the number of owned edge map channels.
	//
	// Returns:
	//   - uint32: the channel count
	EdgeMaskChannelCount() uint32

	// UsesEdgeMask reports whether an edge mask is computed and read.
	//
	// Returns:
	//   - bool: true if the effective method has a mask bit and an edge slot exists
	UsesEdgeMask() bool

	// SupportsEdgeMaps reports whether the read shader has an edge map slot.
	//
	// Returns:
	//   - bool: true if the edge slot is bound
	SupportsEdgeMaps() bool

	// UsesTranslucency reports whether a translucent caster pass and color map are used.
	//
	// Returns:
	//   - bool: true if both the preset and the light enable translucency and a color slot exists
	UsesTranslucency() bool

	// UsesStatistics reports whether the method filters a statistics map.
	//
	// Returns:
	//   - bool: true for VSM, ESM and EVSM
	UsesStatistics() bool

	// ContainsRenderableObjects reports whether the last visibility pass found casters.
	//
	// Returns:
	//   - bool: true if the visibility set is not empty
	ContainsRenderableObjects() bool

	// ShouldRegenerate reports whether the maps must be filled this frame.
	//
	// Returns:
	//   - bool: the regenerate flag set by ComputeVisibilitySet
	ShouldRegenerate() bool

	// RequiresDefaultResource reports whether the last assignment received a
	// Shared stand-in for a Cached description.
	//
	// Returns:
	//   - bool: true if any default resource was assigned
	RequiresDefaultResource() bool

	// Revision counts the description rebuilds performed by Update.
	//
	// Returns:
	//   - uint64: the rebuild count
	Revision() uint64

	// Descriptions returns a copy of the resolved resource descriptions.
	//
	// Returns:
	//   - []pool.Description: the descriptions
	Descriptions() []pool.Description

	// Resources returns a copy of the assigned pool handles, one per description.
	//
	// Returns:
	//   - []pool.ResourceHandle: the handles, or nil when unassigned
	Resources() []pool.ResourceHandle

	// ResourceIndex finds the first description with a role.
	//
	// Parameters:
	//   - role: the role to look for
	//
	// Returns:
	//   - int: the description index, or -1
	ResourceIndex(role pool.Role) int

	// Texture returns the renderer texture assigned to a description.
	//
	// Parameters:
	//   - i: the description index
	//
	// Returns:
	//   - renderer.TextureHandle: the texture, or the null handle
	Texture(i int) renderer.TextureHandle

	// Operations returns copies of the write, post and read operation lists.
	//
	// Returns:
	//   - write, post, read: the operation lists
	Operations() (write, post, read []Operation)

	// Update reconfigures the generator. Descriptions are rebuilt only when the
	// resolution, the requested flags or (with an edge mask) the filter radius
	// changed. A resolution change releases the held resources.
	//
	// Parameters:
	//   - resolution: the write resolution
	//   - sys: the technique preset
	//   - light: the light's tuning
	//   - descs: the preset's resource descriptions
	//   - flags: the requested method flags
	//
	// Returns:
	//   - bool: false if the arguments are unusable or a write or read is in progress
	Update(resolution uint32, sys SettingsSystem, light SettingsLight, descs []pool.Description, flags Method) bool

	// AssignResources requests fresh resources and rebuilds the operations,
	// unless last frame's resources were recovered by ReassignResources.
	//
	// Returns:
	//   - FillResult: CanFill, MustFill, CannotFill or DoNothing
	AssignResources() FillResult

	// ReassignResources tries to recover last frame's resources. On failure
	// every resource is released and AssignResources must follow.
	//
	// Returns:
	//   - bool: true if every resource was recovered
	ReassignResources() bool

	// ReleaseResources returns every held resource to the pool.
	ReleaseResources()

	// ComputeVisibilitySet culls objects into the caster set and decides
	// whether the maps must be regenerated.
	//
	// Parameters:
	//   - sceneCam: the scene camera, used for parallel splits
	//   - objects: the scene objects
	//   - split: the depth range of a parallel split, or nil to cull against the generator camera
	//
	// Returns:
	//   - bool: false if nothing is visible
	ComputeVisibilitySet(sceneCam camera.Camera, objects []visibility.Object, split *Split) bool

	// BeginWrite starts a fill: captures the active camera, fits a parallel
	// split projection, activates the generator camera and backs up texture
	// and sampler slots 0..15.
	//
	// Parameters:
	//   - split: the depth range to fit, or nil to keep the camera as placed
	//   - fixed: fit a rotation invariant sphere instead of the receiver bounds
	//
	// Returns:
	//   - int: the number of write passes, or -1 on a protocol violation
	BeginWrite(split *Split, fixed bool) int

	// BeginWritePass binds a write pass's inputs and targets and applies its
	// clear, color write and cull state.
	//
	// Parameters:
	//   - i: the pass index
	//
	// Returns:
	//   - bool: false if the pass could not start
	BeginWritePass(i int) bool

	// EndWritePass unbinds the current pass's targets.
	//
	// Returns:
	//   - bool: false if no pass was open
	EndWritePass() bool

	// EndWrite runs the post operations and restores the slots and camera
	// saved by BeginWrite. It must follow every successful BeginWrite.
	//
	// Returns:
	//   - bool: false on a protocol violation or a failed post operation
	EndWrite() bool

	// BeginRead binds the read inputs, uploads the texture projection and
	// constants and publishes the shading states.
	//
	// Parameters:
	//   - attenuation: the distance fade scale
	//   - minDistance, maxDistance: the distance fade range
	//   - texProj: a replacement for the clip to texture bias, or nil
	//
	// Returns:
	//   - bool: false on a protocol violation
	BeginRead(attenuation, minDistance, maxDistance float32, texProj *[16]float32) bool

	// EndRead unbinds the read inputs and clears the tap states.
	EndRead()
}

type generatorImpl struct {
	mu   *sync.Mutex
	ctx  *frame.Context
	log  logr.Logger
	pool pool.Pool
	src  Source

	kind    Kind
	owner   pool.OwnerID
	name    string
	frustum int

	slots          Slots
	lighting       LightingConstants
	workers        worker.DynamicWorkerPool
	randomTexture  renderer.TextureHandle
	maskCachedOnly bool

	settings   Settings
	digest     uint64
	resolution uint32
	method     Method
	methodHW   Method

	descriptions []pool.Description
	resources    []pool.ResourceHandle
	samplers     []renderer.SamplerHandle
	writeOps     []Operation
	postOps      []Operation
	readOps      []Operation

	cam        camera.Camera
	sceneCam   camera.Camera
	visibility visibility.Set
	split      Split

	state               generatorState
	currentWritePass    int
	lastVisibilityFrame int64
	regenerate          bool
	descriptionDirty    bool
	reassigned          bool
	defaultCount        int
	revision            uint64

	maskChannels pool.ChannelMask
	maskDirty    bool

	sphereSplit  Split
	sphereRadius float32

	attenuation float32
	minDistance float32
	maxDistance float32
	texProj     [16]float32

	rsm *reflectanceState
}

var _ Generator = &generatorImpl{}

// NewGenerator creates a shadow map generator for one frustum of a light.
//
// Parameters:
//   - ctx: the frame context supplying the renderer, clock and logger
//   - p: the pool the generator takes its maps from
//   - src: the light the generator renders for
//   - options: functional options configuring the generator
//
// Returns:
//   - Generator: the new generator, unassigned until Update and AssignResources
func NewGenerator(ctx *frame.Context, p pool.Pool, src Source, options ...GeneratorBuilderOption) Generator {
	return newGenerator(ctx, p, src, KindShadowMap, options)
}

// NewReflectanceGenerator creates a reflective shadow map generator for one
// frustum of a light.
//
// Parameters:
//   - ctx: the frame context supplying the renderer, clock and logger
//   - p: the pool the generator takes its maps from
//   - src: the light the generator renders for
//   - options: functional options configuring the generator
//
// Returns:
//   - Generator: the new generator
func NewReflectanceGenerator(ctx *frame.Context, p pool.Pool, src Source, options ...GeneratorBuilderOption) Generator {
	return newGenerator(ctx, p, src, KindReflectiveShadowMap, options)
}

func newGenerator(ctx *frame.Context, p pool.Pool, src Source, kind Kind, options []GeneratorBuilderOption) *generatorImpl {
	if ctx == nil || ctx.Renderer == nil || p == nil || src == nil {
		panic("shadow: a generator requires a frame context with a Renderer, a pool and a source")
	}
	g := &generatorImpl{
		mu:                  &sync.Mutex{},
		ctx:                 ctx,
		log:                 ctx.Logger.WithName("generator"),
		pool:                p,
		src:                 src,
		kind:                kind,
		owner:               pool.OwnerID(nextOwner.Add(1)),
		slots:               DefaultSlots(),
		cam:                 camera.NewCamera(),
		currentWritePass:    -1,
		lastVisibilityFrame: frame.NeverFrame,
		descriptionDirty:    true,
		attenuation:         1,
	}
	for _, option := range options {
		option(g)
	}
	if kind == KindReflectiveShadowMap {
		g.rsm = &reflectanceState{}
	}

	light := src.Name()
	if light == "" {
		light = "{Global}"
	}
	g.name = fmt.Sprintf("%s.Generator[%d]", light, g.frustum)

	setOptions := []visibility.SetBuilderOption{visibility.WithLogger(g.log)}
	if g.workers != nil {
		setOptions = append(setOptions, visibility.WithWorkerPool(g.workers))
	}
	g.visibility = visibility.NewSet(g.name, setOptions...)
	return g
}

func (g *generatorImpl) Kind() Kind {
	return g.kind
}

func (g *generatorImpl) Name() string {
	return g.name
}

func (g *generatorImpl) Owner() pool.OwnerID {
	return g.owner
}

func (g *generatorImpl) Method() Method {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.method
}

func (g *generatorImpl) HardwareMethod() Method {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.methodHW
}

func (g *generatorImpl) Settings() Settings {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.settings
}

func (g *generatorImpl) Resolution() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.readResolution()
}

func (g *generatorImpl) WriteResolution() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.resolution
}

func (g *generatorImpl) readResolution() uint32 {
	if g.rsm != nil && g.rsm.finalResolution != 0 {
		return g.rsm.finalResolution
	}
	return g.resolution
}

func (g *generatorImpl) Camera() camera.Camera {
	return g.cam
}

func (g *generatorImpl) Visibility() visibility.Set {
	return g.visibility
}

func (g *generatorImpl) WritePassCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.writeOps)
}

func (g *generatorImpl) EdgeMaskChannels() pool.ChannelMask {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.maskChannels
}

func (g *generatorImpl) EdgeMaskChannelCount() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.maskChannels.Count()
}

func (g *generatorImpl) UsesEdgeMask() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.usesEdgeMask()
}

func (g *generatorImpl) usesEdgeMask() bool {
	return g.kind == KindShadowMap && g.methodHW.Any(MaskBits) && g.slots.Edge >= 0
}

func (g *generatorImpl) SupportsEdgeMaps() bool {
	return g.slots.Edge >= 0
}

func (g *generatorImpl) UsesTranslucency() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.usesTranslucency()
}

func (g *generatorImpl) usesTranslucency() bool {
	return g.kind == KindShadowMap && g.settings.Translucency && g.slots.Color >= 0
}

func (g *generatorImpl) UsesStatistics() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.kind == KindShadowMap && g.methodHW.IsStatistical()
}

func (g *generatorImpl) ContainsRenderableObjects() bool {
	return !g.visibility.IsEmpty()
}

func (g *generatorImpl) ShouldRegenerate() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.regenerate
}

func (g *generatorImpl) RequiresDefaultResource() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.defaultCount > 0
}

func (g *generatorImpl) Revision() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.revision
}

func (g *generatorImpl) Descriptions() []pool.Description {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.descriptions)
}

func (g *generatorImpl) Resources() []pool.ResourceHandle {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.resources)
}

func (g *generatorImpl) ResourceIndex(role pool.Role) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.resourceIndex(role)
}

func (g *generatorImpl) resourceIndex(role pool.Role) int {
	for i, d := range g.descriptions {
		if d.Role == role {
			return i
		}
	}
	return -1
}

func (g *generatorImpl) Texture(i int) renderer.TextureHandle {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.texture(i)
}

func (g *generatorImpl) texture(i int) renderer.TextureHandle {
	if i < 0 || i >= len(g.resources) {
		return 0
	}
	r := g.pool.Resource(g.resources[i])
	if r == nil {
		return 0
	}
	return r.Texture()
}

func (g *generatorImpl) sampler(i int) renderer.SamplerHandle {
	if i < 0 || i >= len(g.samplers) {
		return 0
	}
	return g.samplers[i]
}

func (g *generatorImpl) Operations() (write, post, read []Operation) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.writeOps), slices.Clone(g.postOps), slices.Clone(g.readOps)
}

func (g *generatorImpl) busy() bool {
	return g.state == stateWriting || g.state == stateReading
}

func (g *generatorImpl) Update(resolution uint32, sys SettingsSystem, light SettingsLight, descs []pool.Description, flags Method) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !common.Assert(g.log, !g.busy(), "update during a write or read sequence", "generator", g.name, "state", g.state.String()) {
		return false
	}
	if resolution == 0 || len(descs) == 0 {
		g.log.V(1).Info("ignoring update without a resolution or descriptions", "generator", g.name, "resolution", resolution, "descriptions", len(descs))
		return false
	}

	merged := MergeSettings(sys, light)
	digest := merged.Digest()
	if !g.descriptionDirty && digest == g.digest && resolution == g.resolution && flags == g.method &&
		(g.rsm == nil || g.rsm.vtf == g.src.IndirectMethod().Has(IndirectVTF)) {
		return true
	}

	prevRadius := g.settings.FilterRadius
	settingsChanged := digest != g.digest
	g.settings = merged
	g.digest = digest
	g.normalizeMaskThreshold()

	if flags != g.method {
		g.method = flags
		g.descriptionDirty = true
	}
	if resolution != g.resolution {
		g.releaseResources()
		g.resolution = resolution
		g.descriptionDirty = true
	}
	if g.usesEdgeMask() && prevRadius != merged.FilterRadius {
		g.descriptionDirty = true
	}
	if g.rsm != nil {
		g.updateReflectance()
	}
	if !g.descriptionDirty {
		// Operations carry cull mode and write state from the settings.
		if settingsChanged && len(g.resources) > 0 {
			g.buildOperations()
		}
		return true
	}

	g.rebuildDescriptions(descs)
	return true
}

// normalizeMaskThreshold rescales the edge mask threshold into the filter
// distance range.
func (g *generatorImpl) normalizeMaskThreshold() {
	span := g.settings.FilterDistanceFar - g.settings.FilterDistanceNear
	if g.settings.MaskType != 0 && span > 0 {
		g.settings.MaskThreshold /= span
	}
}

// edgeMaskShift returns how many halvings the edge mask is smaller than the
// shadow map: ceil(log2(kernel/3)) with kernel = 2*ceil(r)+1.
func edgeMaskShift(radius float32) uint32 {
	kernel := 2*uint32(max(0, math32.Ceil(radius))) + 1
	var shift uint32
	for 3<<shift < kernel {
		shift++
	}
	return shift
}

func (g *generatorImpl) rebuildDescriptions(descs []pool.Description) {
	g.methodHW = g.method
	g.descriptions = slices.Clone(descs)
	for i := range g.descriptions {
		d := &g.descriptions[i]
		res := g.resolution
		if d.Role == pool.RoleEdgeMap {
			res = max(g.resolution>>edgeMaskShift(g.settings.FilterRadius), 1)
		}
		d.Target.Width, d.Target.Height = res, res
		if d.Target.MipLevels != 1 {
			d.Target.MipLevels = common.Log2(res) + 1
		}
	}

	if g.usesTranslucency() {
		g.descriptions = append(g.descriptions, pool.Description{
			Category: pool.CategoryCached,
			Target: renderer.TargetDescriptor{
				Type:      renderer.BufferTypeRenderTarget,
				Format:    g.pool.BestRenderTargetFormat(8, 4),
				Width:     g.resolution,
				Height:    g.resolution,
				MipLevels: 1,
			},
			Sampler: common.LinearClampSampler(),
			Role:    pool.RoleColorMap,
		})
		g.methodHW |= MethodTranslucency
	}
	if g.rsm != nil {
		g.rebuildReflectanceDescriptions()
	}

	g.samplers = make([]renderer.SamplerHandle, len(g.descriptions))
	for i, d := range g.descriptions {
		g.samplers[i] = g.ctx.Renderer.CreateSamplerState(d.Sampler)
	}

	g.resources = nil
	g.writeOps, g.postOps, g.readOps = nil, nil, nil
	g.state = stateUnassigned
	g.reassigned = false
	g.descriptionDirty = false
	g.revision++
	g.log.V(1).Info("descriptions rebuilt", "generator", g.name, "method", g.methodHW.String(), "resolution", g.resolution, "count", len(g.descriptions))
}

func (g *generatorImpl) AssignResources() FillResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !common.Assert(g.log, !g.busy(), "assign during a write or read sequence", "generator", g.name, "state", g.state.String()) {
		return FillDoNothing
	}
	g.defaultCount = 0
	if g.reassigned {
		g.reassigned = false
		return FillCanFill
	}
	if !common.Assert(g.log, !g.descriptionDirty && len(g.descriptions) > 0, "assign before update", "generator", g.name) {
		return FillDoNothing
	}

	g.methodHW = g.methodHW&^MaskBits | g.method&MaskBits
	handles, defaults, ok := g.pool.AssignResources(g.descriptions, g.owner, g.kind.DataType())
	if !ok {
		g.log.Error(ErrNoResources, "no resources for this frame, the light is skipped", "generator", g.name, "method", g.methodHW.String(), "resolution", g.resolution)
		g.resources = nil
		g.writeOps, g.postOps, g.readOps = nil, nil, nil
		g.state = stateUnassigned
		return FillDoNothing
	}
	g.resources = handles
	g.defaultCount = defaults
	g.updateEdgeMask(true)
	g.buildOperations()
	g.state = stateConfigured

	if defaults > 0 {
		g.log.V(1).Info("default resources assigned, fill deferred", "generator", g.name, "defaults", defaults)
		return FillCannotFill
	}
	return FillMustFill
}

func (g *generatorImpl) ReassignResources() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.reassigned = false
	if !common.Assert(g.log, !g.busy(), "reassign during a write or read sequence", "generator", g.name, "state", g.state.String()) {
		return false
	}
	if g.descriptionDirty || len(g.resources) == 0 {
		return false
	}

	handles, ok := g.pool.ReassignResources(g.descriptions, g.owner, g.kind.DataType(), g.resources)
	if !ok {
		g.releaseResources()
		return false
	}
	if !slices.Equal(handles, g.resources) {
		g.resources = handles
		g.buildOperations()
	}
	g.updateEdgeMask(false)
	g.reassigned = true
	g.state = stateConfigured
	return true
}

func (g *generatorImpl) ReleaseResources() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !common.Assert(g.log, !g.busy(), "release during a write or read sequence", "generator", g.name, "state", g.state.String()) {
		return
	}
	g.releaseResources()
}

func (g *generatorImpl) releaseResources() {
	g.pool.ReleaseResources(g.owner)
	g.resources = nil
	g.writeOps, g.postOps, g.readOps = nil, nil, nil
	g.reassigned = false
	g.defaultCount = 0
	g.state = stateUnassigned
}

// updateEdgeMask refreshes the owned edge map channels. A Shared edge map is
// refused when only Cached masks are allowed, which turns the mask off.
func (g *generatorImpl) updateEdgeMask(fresh bool) {
	i := g.resourceIndex(pool.RoleEdgeMap)
	if i < 0 || i >= len(g.resources) || !g.methodHW.Any(MaskBits) {
		g.maskChannels = pool.ChannelNone
		g.maskDirty = false
		return
	}
	r := g.pool.Resource(g.resources[i])
	if r == nil {
		g.maskChannels = pool.ChannelNone
		return
	}

	var mask pool.ChannelMask
	if r.Category() == pool.CategoryShared {
		if g.maskCachedOnly {
			g.methodHW &^= MaskBits
			g.maskChannels = pool.ChannelNone
			g.maskDirty = false
			return
		}
		mask = pool.ChannelMask(1)<<r.ChannelCount() - 1
	} else {
		mask = r.ChannelMask(g.owner)
	}
	if fresh || mask != g.maskChannels {
		g.maskDirty = true
	}
	g.maskChannels = mask
}

func (g *generatorImpl) buildOperations() {
	g.writeOps, g.postOps, g.readOps = nil, nil, nil
	switch g.kind {
	case KindReflectiveShadowMap:
		g.buildReflectanceOperations()
	default:
		g.buildShadowOperations()
	}
	common.Assert(g.log, len(g.readOps) == 1, "a generator supports exactly one read operation", "generator", g.name, "reads", len(g.readOps))
}

func (g *generatorImpl) buildShadowOperations() {
	hw := g.methodHW

	depthIdx, targetIdx := -1, -1
	for i, d := range g.descriptions {
		switch {
		case depthIdx < 0 && d.Target.Type.IsDepth():
			depthIdx = i
		case targetIdx < 0 && d.Role == pool.RoleDepthMap && d.Target.Type == renderer.BufferTypeRenderTarget:
			targetIdx = i
		}
	}
	statsIdx := g.resourceIndex(pool.RoleStatisticsMap)
	edgeIdx := g.resourceIndex(pool.RoleEdgeMap)
	colorIdx := g.resourceIndex(pool.RoleColorMap)

	write := newOperation(OpDrawOpaqueShadowCasters)
	write.ClearFlags = renderer.ClearDepth
	write.ColorWrites = wgpu.ColorWriteMaskNone
	write.CullMode = g.settings.CullMode
	if hw.Has(MethodNormalOffset) {
		write.CullMode = wgpu.CullModeBack
	}
	// Hardware paths sample the depth buffer itself. Their color target only
	// receives depth when an edge mask is derived from it.
	readable := depthIdx >= 0 && g.descriptions[depthIdx].Category != pool.CategoryShared
	hardware := hw.Has(MethodHardware) && readable
	if depthIdx >= 0 {
		write.DepthStencil = g.texture(depthIdx)
	}
	if targetIdx >= 0 {
		write.Outputs = []renderer.TextureHandle{g.texture(targetIdx)}
		write.ClearFlags |= renderer.ClearTarget
		write.ClearColor = clearWhite
		if !hardware {
			write.ColorWrites = wgpu.ColorWriteMaskAll
		}
	}

	readIdx := targetIdx
	if hardware || readIdx < 0 && readable {
		readIdx = depthIdx
	}

	read := newOperation(OpComputeShadows)
	depthInput := Input{Slot: g.slots.Depth, Texture: g.texture(readIdx), Sampler: g.sampler(readIdx)}
	edgeSource := depthInput
	if hardware && targetIdx >= 0 {
		edgeSource = Input{Slot: g.slots.Depth, Texture: g.texture(targetIdx), Sampler: g.sampler(targetIdx)}
	}

	switch {
	case hw.IsStatistical() && statsIdx >= 0:
		write.CullMode = wgpu.CullModeFront
		stats := newOperation(OpComputeStatistics)
		stats.Inputs = []Input{depthInput}
		stats.Outputs = []renderer.TextureHandle{g.texture(statsIdx)}
		g.postOps = append(g.postOps, stats)
		read.Inputs = append(read.Inputs, Input{Slot: g.slots.Depth, Texture: g.texture(statsIdx), Sampler: g.sampler(statsIdx)})
	case readIdx >= 0:
		read.Inputs = append(read.Inputs, depthInput)
	}

	if g.usesEdgeMask() && edgeIdx >= 0 {
		if hw.Any(MethodCompare|MethodGather) && targetIdx >= 0 {
			write.ColorWrites = wgpu.ColorWriteMaskAll
		}
		edge := newOperation(OpComputeEdgeMask)
		edge.Inputs = []Input{edgeSource}
		edge.Outputs = []renderer.TextureHandle{g.texture(edgeIdx)}
		g.postOps = append(g.postOps, edge)
		read.Inputs = append(read.Inputs, Input{Slot: g.slots.Edge, Texture: g.texture(edgeIdx), Sampler: g.sampler(edgeIdx)})
	}
	g.writeOps = append(g.writeOps, write)

	if g.usesTranslucency() && colorIdx >= 0 {
		tr := newOperation(OpDrawTransparentShadowCasters)
		tr.DepthStencil = write.DepthStencil
		tr.Outputs = []renderer.TextureHandle{g.texture(colorIdx)}
		tr.ClearFlags = renderer.ClearTarget
		tr.ClearColor = clearWhite
		tr.CullMode = write.CullMode
		g.writeOps = append(g.writeOps, tr)
		read.Inputs = append(read.Inputs, Input{Slot: g.slots.Color, Texture: g.texture(colorIdx), Sampler: g.sampler(colorIdx)})

		if g.usesEdgeMask() && edgeIdx >= 0 {
			merge := newOperation(OpMergeColorAndEdge)
			merge.Inputs = []Input{{Slot: -1, Texture: g.texture(edgeIdx)}}
			merge.Outputs = []renderer.TextureHandle{g.texture(colorIdx)}
			g.postOps = append(g.postOps, merge)
		}
	}
	g.readOps = append(g.readOps, read)
}

func (g *generatorImpl) ComputeVisibilitySet(sceneCam camera.Camera, objects []visibility.Object, split *Split) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.ctx.Frame()
	last := g.lastVisibilityFrame
	g.regenerate = last == frame.NeverFrame || g.src.DirtyFrame() >= last || g.visibility.IsObjectDirtySince(last)
	wasEmpty := g.visibility.IsEmpty()

	q := visibility.Query{Filter: visibility.FilterRenderable | visibility.FilterCasters, Frame: now}
	if split != nil && sceneCam != nil {
		g.split = *split
		q.Frustum = sceneCam.Split(split.Near, split.Far).Frustum()
		q.SkipPlanes = upstreamPlanes(q.Frustum, g.src.Direction())
	} else {
		g.split = Split{}
		q.Frustum = g.cam.Frustum()
	}
	g.visibility.Compute(objects, q)
	g.lastVisibilityFrame = now

	if g.visibility.IsEmpty() {
		g.regenerate = false
		return false
	}
	if !g.regenerate && (wasEmpty || g.visibility.IsObjectDirtySince(last)) {
		g.regenerate = true
	}
	return true
}

// upstreamPlanes returns the planes a caster outside the split may lie behind
// while still shadowing it: those whose inward normal faces along the light.
func upstreamPlanes(f common.Frustum, dir [3]float32) uint8 {
	var mask uint8
	for i, p := range f.Planes {
		if common.Dot3(p.Normal, dir) > 0 {
			mask |= 1 << i
		}
	}
	return mask
}

func (g *generatorImpl) BeginWrite(split *Split, fixed bool) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !common.Assert(g.log, g.state == stateConfigured, "BeginWrite requires assigned resources outside a write or read", "generator", g.name, "state", g.state.String()) {
		return -1
	}
	r := g.ctx.Renderer
	g.sceneCam = r.Camera()

	if split != nil && g.sceneCam != nil {
		corners, ok := g.sceneCam.Split(split.Near, split.Far).Corners()
		if ok {
			if fixed {
				g.fitSphere(*split, corners)
			} else {
				g.fitBounds(corners)
			}
		}
	}

	r.SetCamera(g.cam)
	r.BackupSamplers(0, renderer.MaxTextureSlots)
	r.BackupTextures(0, renderer.MaxTextureSlots)
	g.state = stateWriting
	g.currentWritePass = -1
	return len(g.writeOps)
}

func (g *generatorImpl) BeginWritePass(i int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !common.Assert(g.log, g.state == stateWriting, "BeginWritePass outside BeginWrite/EndWrite", "generator", g.name, "state", g.state.String()) {
		return false
	}
	if !common.Assert(g.log, g.currentWritePass < 0, "BeginWritePass while a pass is open", "generator", g.name, "open", g.currentWritePass) {
		return false
	}
	if !common.Assert(g.log, i >= 0 && i < len(g.writeOps), "write pass out of range", "generator", g.name, "pass", i, "passes", len(g.writeOps)) {
		return false
	}

	r := g.ctx.Renderer
	op := &g.writeOps[i]
	g.setInputs(op.Inputs)
	if op.bindsTargets() && !r.BeginTargetRender(op.Outputs, op.DepthStencil) {
		g.log.V(1).Info("write pass skipped, targets could not be bound", "generator", g.name, "pass", i, "op", op.Type.String())
		return false
	}
	if op.ClearFlags != 0 {
		r.Clear(op.ClearFlags, op.ClearColor, op.ClearDepth)
	}
	r.SetColorWrites(op.ColorWrites)
	r.SetCullMode(op.CullMode)
	g.currentWritePass = i
	return true
}

func (g *generatorImpl) EndWritePass() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !common.Assert(g.log, g.state == stateWriting && g.currentWritePass >= 0, "EndWritePass without an open pass", "generator", g.name) {
		return false
	}
	return g.endWritePass()
}

func (g *generatorImpl) endWritePass() bool {
	ok := true
	if g.writeOps[g.currentWritePass].bindsTargets() {
		ok = g.ctx.Renderer.EndTargetRender()
	}
	g.currentWritePass = -1
	return ok
}

func (g *generatorImpl) EndWrite() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !common.Assert(g.log, g.state == stateWriting, "EndWrite without BeginWrite", "generator", g.name, "state", g.state.String()) {
		return false
	}
	if !common.Assert(g.log, g.currentWritePass < 0, "EndWrite with an open write pass", "generator", g.name, "open", g.currentWritePass) {
		g.endWritePass()
	}

	ok := true
	for i := range g.postOps {
		if !g.executePostOperation(&g.postOps[i]) {
			g.log.V(1).Info("post operation failed", "generator", g.name, "op", g.postOps[i].Type.String())
			ok = false
		}
	}

	r := g.ctx.Renderer
	r.RestoreSamplers()
	r.RestoreTextures()
	if g.sceneCam != nil {
		r.SetCamera(g.sceneCam)
	}
	g.sceneCam = nil
	g.regenerate = false
	g.state = stateConfigured
	return ok
}

func (g *generatorImpl) setInputs(inputs []Input) {
	r := g.ctx.Renderer
	for _, in := range inputs {
		if in.Slot < 0 {
			continue
		}
		r.SetTexture(uint32(in.Slot), in.Texture)
		r.SetSamplerState(uint32(in.Slot), in.Sampler)
	}
}

func (g *generatorImpl) executePostOperation(op *Operation) bool {
	switch op.Type {
	case OpComputeStatistics:
		return g.computeStatistics(op)
	case OpComputeEdgeMask:
		return g.computeEdgeMask(op)
	case OpMergeColorAndEdge:
		return g.ctx.Renderer.ProcessImage(renderer.ImageOp{
			Kind:     renderer.ImageCopyEdgeToColor,
			Inputs:   []renderer.TextureHandle{op.Inputs[0].Texture},
			Output:   op.Outputs[0],
			Channels: wgpu.ColorWriteMaskAlpha,
		})
	case OpDownsampleRSMMin, OpDownsampleRSMMax, OpDownsampleRSMAvg:
		return g.downsampleReflectance(op)
	case OpMergeDepthNormal:
		return g.mergeDepthNormal(op)
	}
	g.log.V(1).Info("unknown post operation", "generator", g.name, "op", op.Type.String())
	return false
}

// chainLevel returns the resample chain mip whose size is res.
func chainLevel(chain pool.ResampleChain, res uint32) uint32 {
	top, lvl := common.Log2(chain.Resolution), common.Log2(res)
	if lvl >= top {
		return 0
	}
	return top - lvl
}

func (g *generatorImpl) computeStatistics(op *Operation) bool {
	i := g.resourceIndex(pool.RoleStatisticsMap)
	if i < 0 {
		return false
	}
	desc := g.descriptions[i]
	chain, ok := g.pool.ResampleChain(desc.Target.Format)
	if !ok {
		return false
	}

	r := g.ctx.Renderer
	level := chainLevel(chain, desc.Target.Width)
	taps := 2*uint32(max(0, g.settings.FilterRadius*max(g.settings.FilterBlurFactor, 0))) + 1
	stats := op.Outputs[0]
	ok = true
	for pass := uint32(0); pass < max(g.settings.FilterPasses, 1); pass++ {
		src := op.Inputs[0].Texture
		if pass > 0 {
			src = stats
		}
		ok = r.ProcessImage(renderer.ImageOp{Kind: renderer.ImageBlurVertical, Inputs: []renderer.TextureHandle{src}, Output: chain.Texture, Level: level, Taps: taps}) && ok
		ok = r.ProcessImage(renderer.ImageOp{Kind: renderer.ImageBlurHorizontal, Inputs: []renderer.TextureHandle{chain.Texture}, Output: stats, Taps: taps}) && ok
	}
	if desc.Target.MipLevels > 1 {
		ok = r.ProcessImage(renderer.ImageOp{Kind: renderer.ImageGenerateMips, Output: stats}) && ok
	}
	return ok
}

func (g *generatorImpl) computeEdgeMask(op *Operation) bool {
	if !g.maskDirty {
		return true
	}
	i := g.resourceIndex(pool.RoleEdgeMap)
	if i < 0 {
		return false
	}
	desc := g.descriptions[i]
	chain, ok := g.pool.ResampleChain(desc.Target.Format)
	if !ok {
		return false
	}

	r := g.ctx.Renderer
	start, end := chainLevel(chain, g.resolution), chainLevel(chain, desc.Target.Width)
	ok = r.ProcessImage(renderer.ImageOp{Kind: renderer.ImageEdgeDetect, Inputs: []renderer.TextureHandle{op.Inputs[0].Texture}, Output: chain.Texture, Level: start})

	kind := renderer.ImageDownsampleAverage
	if g.methodHW.Has(MethodDepthExtentsMask) {
		kind = renderer.ImageDownsampleMax
	}
	for level := start; level < end; level++ {
		ok = r.ProcessImage(renderer.ImageOp{Kind: kind, Inputs: []renderer.TextureHandle{chain.Texture}, Output: chain.Texture, Level: level + 1}) && ok
	}
	ok = r.ProcessImage(renderer.ImageOp{
		Kind:     renderer.ImageBlend,
		Inputs:   []renderer.TextureHandle{chain.Texture},
		Output:   op.Outputs[0],
		Level:    end,
		Channels: wgpu.ColorWriteMask(g.maskChannels),
	}) && ok
	g.maskDirty = false
	return ok
}

func (g *generatorImpl) BeginRead(attenuation, minDistance, maxDistance float32, texProj *[16]float32) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !common.Assert(g.log, g.state == stateConfigured, "BeginRead requires assigned resources outside a write or read", "generator", g.name, "state", g.state.String()) {
		return false
	}
	if !common.Assert(g.log, len(g.readOps) == 1, "BeginRead without a read operation", "generator", g.name) {
		return false
	}

	g.attenuation, g.minDistance, g.maxDistance = attenuation, minDistance, maxDistance
	g.setInputs(g.readOps[0].Inputs)

	bias := textureBias
	if texProj != nil {
		bias = *texProj
	}
	g.texProj = common.Mul4Array(bias, g.cam.ViewProjectionMatrix())
	if g.lighting != nil {
		g.lighting.SetTexProjMatrix(g.texProj)
		g.lighting.ApplyLightingConstants()
	}

	switch g.kind {
	case KindReflectiveShadowMap:
		g.beginReflectanceRead()
	default:
		g.setShadowConstants()
		r := g.ctx.Renderer
		r.SetSystemState(renderer.StateShadowMethod, uint32(g.methodHW))
		r.SetSystemState(renderer.StatePrimaryTaps, g.settings.PrimarySamples)
		r.SetSystemState(renderer.StateSecondaryTaps, g.settings.SecondarySamples)
	}
	g.state = stateReading
	return true
}

func (g *generatorImpl) setShadowConstants() {
	s := g.settings
	res := float32(g.resolution)
	c := GPUShadowConstants{
		Attenuation: [4]float32{g.minDistance, g.maxDistance, g.attenuation, 1 - g.attenuation},
		Split:       [4]float32{g.split.Near, g.split.Far, s.MaskThreshold, 0},
		TextureSize: [4]float32{res, res, 1 / res, 1 / res},
		Bias:        [4]float32{s.DepthBiasSW, s.SlopeScaleBias, s.NormalBiasSurface, s.NormalBiasLight},
	}
	if g.methodHW.IsStatistical() {
		c.Filter = [4]float32{s.MinimumVariance, s.Exponent, s.MinimumCutoff, 0}
	} else {
		var z float32
		if span := s.FilterDistanceFar - s.FilterDistanceNear; span > 0 {
			z = 1 / span
		}
		c.Filter = [4]float32{s.FilterRadiusNear, s.FilterRadiusFar, z, s.FilterDistanceNear * z}
	}

	n := 0
	for ch := 0; ch < 4 && n < 2; ch++ {
		if g.maskChannels&(1<<ch) == 0 {
			continue
		}
		if n == 0 {
			c.EdgeChannelMask0[ch] = 1
		} else {
			c.EdgeChannelMask1[ch] = 1
		}
		n++
	}
	g.ctx.Renderer.SetConstantBuffer("_cbShadow", c.Marshal())
}

func (g *generatorImpl) EndRead() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !common.Assert(g.log, g.state == stateReading, "EndRead without BeginRead", "generator", g.name, "state", g.state.String()) {
		return
	}
	r := g.ctx.Renderer
	r.SetSystemState(renderer.StatePrimaryTaps, 0)
	r.SetSystemState(renderer.StateSecondaryTaps, 0)
	for _, in := range g.readOps[0].Inputs {
		if in.Slot < 0 {
			continue
		}
		r.SetTexture(uint32(in.Slot), 0)
		r.SetSamplerState(uint32(in.Slot), 0)
	}
	g.state = stateConfigured
}

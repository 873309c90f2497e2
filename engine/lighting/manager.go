package lighting

import (
	"fmt"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxy-shadow/common"
	"github.com/Carmen-Shannon/oxy-shadow/engine/camera"
	"github.com/Carmen-Shannon/oxy-shadow/engine/frame"
	"github.com/Carmen-Shannon/oxy-shadow/engine/lighting/grid"
	"github.com/Carmen-Shannon/oxy-shadow/engine/lighting/pool"
	"github.com/Carmen-Shannon/oxy-shadow/engine/lighting/shadow"
	"github.com/Carmen-Shannon/oxy-shadow/engine/profiler"
	"github.com/Carmen-Shannon/oxy-shadow/engine/renderer"
	"github.com/Carmen-Shannon/oxy-shadow/engine/visibility"
	"github.com/go-logr/logr"
	"github.com/magiconair/properties"
	"go.uber.org/multierr"
)

// Profiler section names.
const (
	SectionShadowMaps = "Shadow Map Population"
	SectionIndirect   = "RSM Population"
	SectionLights     = "Lights"
)

// DefaultSystemLOD is the shadow and indirect system LOD of a new manager.
const DefaultSystemLOD int32 = 100

const (
	randomTextureName = "Lighting.RandomRotations"
	randomTextureSize = 32
	// dynamicWarmupFrames is the number of frames during which every light counts as static.
	dynamicWarmupFrames = 10
)

// LightingOptions selects how ProcessLights shades the scene.
type LightingOptions struct {
	Deferred     bool
	ApplyShadows bool
	ViewSpace    bool
}

// Stats counts the work done by the manager since the last ResetStats.
type Stats struct {
	LightsProcessed  int
	ShadowFills      int
	IndirectFills    int
	WritePasses      int
	CacheHits        int
	Deferred         int
	CallbackFailures int
}

// Manager owns the shadow resource pool and the shadow settings table, and
// drives lights through shadow map population, reflective shadow map
// population and lighting.
type Manager interface {
	shadow.LightingConstants

	// Pool returns the shadow resource pool.
	//
	// Returns:
	//   - pool.Pool: the pool
	Pool() pool.Pool

	// Context returns the frame context the manager renders with.
	//
	// Returns:
	//   - *frame.Context: the context
	Context() *frame.Context

	// BeginShadowConfigure starts a pool configuration and clears the settings table.
	//
	// Parameters:
	//   - cfg: the pool configuration
	//
	// Returns:
	//   - error: an error if the pool rejects the configuration
	BeginShadowConfigure(cfg pool.Config) error

	// AddDefaultMaps registers the default resources of a method with the pool.
	//
	// Parameters:
	//   - method: the method flags the settings are generated from
	//
	// Returns:
	//   - error: an error if the method is not supported by the device
	AddDefaultMaps(method shadow.Method) error

	// AddCachedMaps preallocates cached resources for a method.
	//
	// Parameters:
	//   - method: the method flags the settings are generated from
	//   - resolution: the map resolution
	//   - count: the number of resource sets
	//
	// Returns:
	//   - error: an error if the method is not supported by the device
	AddCachedMaps(method shadow.Method, resolution, count uint32) error

	// AddCachedFormatMaps preallocates cached resources of one format.
	//
	// Parameters:
	//   - format: the buffer format
	//   - resolution: the map resolution
	//   - count: the number of resources
	AddCachedFormatMaps(format renderer.BufferFormat, resolution, count uint32)

	// EndShadowConfigure allocates the pool and loads the shadow settings table.
	//
	// Returns:
	//   - error: the joined pool and settings errors
	EndShadowConfigure() error

	// LoadShadowSettings adds the entries of a settings table. Invalid entries
	// are skipped and reported.
	//
	// Parameters:
	//   - p: the settings table
	//
	// Returns:
	//   - error: the joined entry errors, including ErrNoDefaultSettings
	LoadShadowSettings(p *properties.Properties) error

	// AddShadowSettings validates and adds a named entry. An existing entry of
	// the same name is kept.
	//
	// Parameters:
	//   - name: the entry name
	//   - s: the preset
	//
	// Returns:
	//   - error: an error wrapping ErrSettingsInvalid if the device cannot run the preset
	AddShadowSettings(name string, s shadow.SettingsSystem) error

	// SetDefaultShadowSettings names the entry used when no LOD entry qualifies.
	//
	// Parameters:
	//   - name: the entry name
	SetDefaultShadowSettings(name string)

	// ShadowSettings returns copies of the table entries, sorted by name.
	//
	// Returns:
	//   - []SettingsEntry: the entries
	ShadowSettings() []SettingsEntry

	// ValidateShadowSettings checks a preset against the device, downgrading
	// optional features the device lacks.
	//
	// Parameters:
	//   - s: the preset
	//
	// Returns:
	//   - shadow.SettingsSystem: the preset the device runs
	//   - error: an error wrapping ErrSettingsInvalid if the preset cannot run
	ValidateShadowSettings(s shadow.SettingsSystem) (shadow.SettingsSystem, error)

	// ResourceDescriptions returns the pool resources and method flags of a preset.
	//
	// Parameters:
	//   - s: the preset
	//
	// Returns:
	//   - []pool.Description: the resource descriptions
	//   - shadow.Method: the method flags including the chosen hardware path
	//   - error: an error wrapping ErrSettingsInvalid if the preset cannot run
	ResourceDescriptions(s shadow.SettingsSystem) ([]pool.Description, shadow.Method, error)

	// GenerateShadowSettings builds a preset from method flags.
	//
	// Parameters:
	//   - flags: the method flags
	//
	// Returns:
	//   - shadow.SettingsSystem: the preset
	GenerateShadowSettings(flags shadow.Method) shadow.SettingsSystem

	// GetShadowSettings picks the table entry for a light's LOD list.
	//
	// Parameters:
	//   - lods: the light's LOD to entry mapping
	//   - reflective: whether the indirect system LOD applies
	//
	// Returns:
	//   - int: the LOD index, DefaultSettingsIndex or NoSettingsIndex
	//   - SettingsEntry: a copy of the entry
	GetShadowSettings(lods []shadow.LOD, reflective bool) (int, SettingsEntry)

	// MaxShadowResolution returns the largest map resolution the pool serves.
	//
	// Returns:
	//   - uint32: the resolution in pixels
	MaxShadowResolution() uint32

	// ShadowSystemLOD returns the current shadow system LOD.
	ShadowSystemLOD() int32

	// SetShadowSystemLOD sets the shadow system LOD.
	SetShadowSystemLOD(lod int32)

	// IndirectSystemLOD returns the current indirect system LOD.
	IndirectSystemLOD() int32

	// SetIndirectSystemLOD sets the indirect system LOD.
	SetIndirectSystemLOD(lod int32)

	// IndirectMethod returns the indirect lighting method pushed to lights.
	IndirectMethod() shadow.IndirectMethod

	// SetIndirectMethod sets the indirect lighting method pushed to lights.
	SetIndirectMethod(m shadow.IndirectMethod)

	// AddRadianceGrid creates a radiance grid cascade. Cascades are indexed in
	// creation order, finest first.
	//
	// Parameters:
	//   - options: grid builder options
	//
	// Returns:
	//   - grid.Grid: the grid
	AddRadianceGrid(options ...grid.GridBuilderOption) grid.Grid

	// Grids returns the radiance grid cascades.
	Grids() []grid.Grid

	// Update pushes the indirect method to the lights and refreshes the grids
	// with the current static and dynamic light lists.
	//
	// Parameters:
	//   - cam: the scene camera
	//   - lights: the scene lights
	Update(cam camera.Camera, lights []Light)

	// ProcessShadowMaps culls casters, recovers last frame's maps when
	// reassign is set and fills the shadow maps that need it.
	//
	// Parameters:
	//   - cam: the scene camera
	//   - lights: the scene lights
	//   - objects: the scene objects
	//   - reassign: whether cached maps are recovered first
	//   - fill: the draw callback, or nil to assign without filling
	ProcessShadowMaps(cam camera.Camera, lights []Light, objects []visibility.Object, reassign bool, fill Callback)

	// UpdateIndirectMaps recovers or fills the reflective shadow maps of lights.
	//
	// Parameters:
	//   - lights: the lights
	//   - reassign: whether cached maps are recovered first
	//   - filter: the data type whose availability is reset before recovering
	//   - fill: the draw callback, or nil to assign without filling
	UpdateIndirectMaps(lights []Light, reassign bool, filter pool.DataType, fill Callback)

	// ProcessLights shades the scene with the runtime lights.
	//
	// Parameters:
	//   - cam: the scene camera
	//   - lights: the scene lights
	//   - opts: the lighting options
	//   - light: the callback run for FillShadowMap and processLight passes
	//   - process: the callback run before and after all lights
	ProcessLights(cam camera.Camera, lights []Light, opts LightingOptions, light, process Callback)

	// ProcessTasks runs the radiance grid tasks due this frame.
	ProcessTasks()

	// SetIndirectCallback sets the draw callback used by reflective fills
	// scheduled by the grids.
	SetIndirectCallback(cb Callback)

	// SetConstant stores a lighting constant, converting positions, directions
	// and projections to view space when view space lighting is active.
	//
	// Parameters:
	//   - name: one of the Constant* names
	//   - value: [3]float32 for vectors, [4]float32 for the mask, [16]float32 for the matrix
	//
	// Returns:
	//   - bool: false if the name is unknown or the value has the wrong type
	SetConstant(name string, value any) bool

	// Constants returns the current lighting constant block.
	Constants() GPULightingConstants

	// RandomTexture returns the rotation texture shared by the generators.
	RandomTexture() renderer.TextureHandle

	// Stats returns the counters.
	Stats() Stats

	// ResetStats zeroes the counters.
	ResetStats()
}

// managerImpl guards only its own tables with mu. Lights call back into the
// manager, so mu is never held while a light or a callback runs.
type managerImpl struct {
	mu  *sync.Mutex
	ctx *frame.Context
	log logr.Logger

	pool     pool.Pool
	profiler *profiler.Profiler

	settings    map[string]*SettingsEntry
	resolved    map[uint64]resolvedSettings
	defaultName string
	source      *properties.Properties
	sourceFile  string

	shadowLOD      int32
	indirectLOD    int32
	indirectMethod shadow.IndirectMethod
	dynamicTime    float64

	grids      []grid.Grid
	indirectCb Callback

	constants GPULightingConstants
	random    renderer.TextureHandle
	stats     Stats
}

var _ Manager = &managerImpl{}

// NewManager creates a lighting manager with its own shadow resource pool.
//
// Parameters:
//   - ctx: the frame context
//   - options: builder options
//
// Returns:
//   - Manager: the manager
func NewManager(ctx *frame.Context, options ...ManagerBuilderOption) Manager {
	m := &managerImpl{
		mu:          &sync.Mutex{},
		ctx:         ctx,
		log:         ctx.Logger.WithName("lighting"),
		settings:    make(map[string]*SettingsEntry),
		resolved:    make(map[uint64]resolvedSettings),
		shadowLOD:   DefaultSystemLOD,
		indirectLOD: DefaultSystemLOD,
		dynamicTime: 1.5,
	}
	m.constants.TextureProjection = common.IdentityMatrix()

	for _, opt := range options {
		opt(m)
	}
	m.pool = pool.NewPool(ctx, pool.WithLogger(m.log))

	h, err := ctx.Renderer.CreateTarget(renderer.TargetDescriptor{
		Name:      randomTextureName,
		Type:      renderer.BufferTypeRenderTarget,
		Format:    renderer.FormatBGRA8Unorm,
		Width:     randomTextureSize,
		Height:    randomTextureSize,
		MipLevels: 1,
	})
	if err != nil {
		m.log.Error(err, "failed to create the random rotation texture")
	}
	m.random = h
	return m
}

func (m *managerImpl) Pool() pool.Pool {
	return m.pool
}

func (m *managerImpl) Context() *frame.Context {
	return m.ctx
}

func (m *managerImpl) BeginShadowConfigure(cfg pool.Config) error {
	m.mu.Lock()
	clear(m.settings)
	clear(m.resolved)
	m.defaultName = ""
	m.mu.Unlock()
	return m.pool.BeginConfigure(cfg)
}

func (m *managerImpl) AddDefaultMaps(method shadow.Method) error {
	descs, _, err := m.ResourceDescriptions(m.GenerateShadowSettings(method))
	if err != nil {
		return fmt.Errorf("default maps for %s: %w", method, err)
	}
	m.pool.AddDefaultMaps(descs)
	return nil
}

func (m *managerImpl) AddCachedMaps(method shadow.Method, resolution, count uint32) error {
	descs, _, err := m.ResourceDescriptions(m.GenerateShadowSettings(method))
	if err != nil {
		return fmt.Errorf("cached maps for %s: %w", method, err)
	}
	m.pool.AddCachedMaps(descs, resolution, count)
	return nil
}

func (m *managerImpl) AddCachedFormatMaps(format renderer.BufferFormat, resolution, count uint32) {
	m.pool.AddMaps(pool.CategoryCached, format, resolution, count)
}

func (m *managerImpl) EndShadowConfigure() error {
	errs := m.pool.EndConfigure()

	src := m.source
	if src == nil && m.sourceFile != "" {
		p, err := LoadShadowConfigFile(m.sourceFile)
		if err != nil {
			return multierr.Append(errs, err)
		}
		src = p
	}
	if src == nil {
		p, err := properties.LoadString(DefaultShadowConfig)
		if err != nil {
			return multierr.Append(errs, fmt.Errorf("failed to parse the default shadow settings: %w", err))
		}
		src = p
	}
	return multierr.Append(errs, m.LoadShadowSettings(src))
}

func (m *managerImpl) ShadowSystemLOD() int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shadowLOD
}

func (m *managerImpl) SetShadowSystemLOD(lod int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shadowLOD = lod
}

func (m *managerImpl) IndirectSystemLOD() int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.indirectLOD
}

func (m *managerImpl) SetIndirectSystemLOD(lod int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indirectLOD = lod
}

func (m *managerImpl) IndirectMethod() shadow.IndirectMethod {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.indirectMethod
}

func (m *managerImpl) SetIndirectMethod(method shadow.IndirectMethod) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indirectMethod = method
}

func (m *managerImpl) AddRadianceGrid(options ...grid.GridBuilderOption) grid.Grid {
	m.mu.Lock()
	defer m.mu.Unlock()
	opts := append([]grid.GridBuilderOption{grid.WithLogger(m.log), grid.WithCascade(len(m.grids))}, options...)
	g := grid.NewGrid(m.ctx, m.indirectMethod, opts...)
	m.grids = append(m.grids, g)
	return g
}

func (m *managerImpl) Grids() []grid.Grid {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.grids)
}

func (m *managerImpl) SetIndirectCallback(cb Callback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indirectCb = cb
}

func (m *managerImpl) RandomTexture() renderer.TextureHandle {
	return m.random
}

func (m *managerImpl) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func (m *managerImpl) ResetStats() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = Stats{}
}

func (m *managerImpl) count(f func(s *Stats)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f(&m.stats)
}

func (m *managerImpl) invoke(cb Callback, args CallbackArgs) bool {
	res := cb(args)
	if res.IsOk() {
		return true
	}
	name := ""
	if args.Light != nil {
		name = args.Light.Name()
	}
	m.log.Error(res.Err(), "render callback failed", "context", args.Context, "light", name, "pass", args.Pass)
	m.count(func(s *Stats) { s.CallbackFailures++ })
	return false
}

// isDynamic reports whether a light changed recently enough to be treated as moving.
func (m *managerImpl) isDynamic(l Light) bool {
	clock := m.ctx.Clock
	f := clock.Frame()
	if f <= dynamicWarmupFrames || l.DirtyFrame() < 0 {
		return false
	}
	rate := clock.FrameRate()
	if rate <= 0 {
		return f-l.DirtyFrame() <= 1
	}
	return float64(f-l.DirtyFrame())/rate < m.dynamicTime
}

func (m *managerImpl) Update(cam camera.Camera, lights []Light) {
	method := m.IndirectMethod()
	var static, dynamic []grid.Light
	for _, l := range lights {
		l.SetIndirectMethod(method)
		l.UpdateIndirectSettings()
		if m.isDynamic(l) {
			dynamic = append(dynamic, l)
		} else {
			static = append(static, l)
		}
	}

	grids := m.Grids()
	for i := len(grids) - 1; i >= 0; i-- {
		grids[i].Update(cam, 0)
		grids[i].AddLights(static, dynamic)
	}
}

func (m *managerImpl) ProcessShadowMaps(cam camera.Camera, lights []Light, objects []visibility.Object, reassign bool, fill Callback) {
	m.profiler.BeginProcess(SectionShadowMaps)
	defer m.profiler.EndProcess(SectionShadowMaps)

	for _, l := range lights {
		l.ComputeShadowSets(cam, objects)
	}

	if reassign {
		m.pool.ResetAvailability(shadow.KindShadowMap.DataType())
		for _, l := range lights {
			if l.IsShadowSource() {
				l.ReassignShadowMaps()
			}
		}
	}

	if fill == nil {
		return
	}
	for _, l := range lights {
		if !l.IsShadowSource() {
			continue
		}
		passes := l.BeginShadowFill()
		if passes < 0 {
			switch l.ShadowFillResult() {
			case shadow.FillCannotFill:
				m.count(func(s *Stats) { s.Deferred++ })
			case shadow.FillCanFill:
				m.count(func(s *Stats) { s.CacheHits++ })
			}
			continue
		}
		m.count(func(s *Stats) { s.ShadowFills++ })
		for pass := range passes {
			set, ok := l.BeginShadowFillPass(pass)
			if !ok {
				continue
			}
			m.count(func(s *Stats) { s.WritePasses++ })
			m.invoke(fill, CallbackArgs{Context: ContextFillShadowMap, Light: l, Visibility: set, Pass: pass})
			l.EndShadowFillPass()
		}
		l.EndShadowFill()
	}
}

func (m *managerImpl) UpdateIndirectMaps(lights []Light, reassign bool, filter pool.DataType, fill Callback) {
	m.profiler.BeginProcess(SectionIndirect)
	defer m.profiler.EndProcess(SectionIndirect)

	if reassign {
		m.pool.ResetAvailability(filter)
		for _, l := range lights {
			l.ReassignIndirectMaps()
		}
	}

	if fill == nil {
		return
	}
	for _, l := range lights {
		passes := l.BeginIndirectFill()
		if passes < 0 {
			continue
		}
		m.count(func(s *Stats) { s.IndirectFills++ })
		for pass := range passes {
			set, ok := l.BeginIndirectFillPass(pass)
			if !ok {
				continue
			}
			m.count(func(s *Stats) { s.WritePasses++ })
			m.invoke(fill, CallbackArgs{Context: ContextFillReflectiveShadowMap, Light: l, Visibility: set, Pass: pass})
			l.EndIndirectFillPass()
		}
		l.EndIndirectFill()
	}
}

func (m *managerImpl) ProcessLights(cam camera.Camera, lights []Light, opts LightingOptions, light, process Callback) {
	m.profiler.BeginProcess(SectionLights)
	defer m.profiler.EndProcess(SectionLights)

	r := m.ctx.Renderer
	var viewSpace uint32
	if opts.ViewSpace {
		viewSpace = 1
	}
	r.SetSystemState(renderer.StateViewSpaceLighting, viewSpace)

	var shadowed, plain []Light
	for _, l := range lights {
		if l.LightingStage() != StageRuntime || l.ShadowStage() == StagePrecomputed {
			continue
		}
		if opts.ApplyShadows && l.IsShadowSource() {
			shadowed = append(shadowed, l)
		} else {
			plain = append(plain, l)
		}
	}

	if process != nil {
		m.invoke(process, CallbackArgs{Context: ContextSetupLightingInputs, Pass: -1})
	}
	for _, l := range shadowed {
		m.processLight(l, true, opts.Deferred, light)
	}
	for _, l := range plain {
		m.processLight(l, false, opts.Deferred, light)
	}
	if process != nil {
		m.invoke(process, CallbackArgs{Context: ContextCleanupLighting, Pass: -1})
	}
}

func (m *managerImpl) processLight(l Light, applyShadows, deferred bool, cb Callback) {
	passes := l.BeginLighting(applyShadows, deferred)
	if passes < 0 {
		return
	}
	for pass := range passes {
		op, set := l.BeginLightingPass(pass)
		switch op {
		case OpAbort:
			continue
		case OpFillShadowMap:
			if cb != nil {
				m.invoke(cb, CallbackArgs{Context: ContextFillShadowMap, Light: l, Visibility: set, Pass: pass})
			}
		case OpProcessLight:
			if cb != nil {
				m.invoke(cb, CallbackArgs{Context: ContextProcessLight, Light: l, Visibility: set, Pass: pass})
			}
		}
		l.EndLightingPass()
	}
	l.EndLighting()
	m.count(func(s *Stats) { s.LightsProcessed++ })
}

// taskLights returns the lights a task covers, skipping lights already collected.
func taskLights(g grid.Grid, t grid.Task, seen map[uint64]struct{}) []Light {
	all := g.Lights(t.Static)
	if len(all) == 0 {
		return nil
	}
	start := max(0, t.LightStart)
	end := min(len(all)-1, t.LightEnd)

	var out []Light
	for _, gl := range all[start : end+1] {
		l, ok := gl.(Light)
		if !ok {
			continue
		}
		if _, dup := seen[l.ID()]; dup {
			continue
		}
		seen[l.ID()] = struct{}{}
		out = append(out, l)
	}
	return out
}

// ProcessTasks drains the RSM tasks due this frame from every grid into one
// reassignment sweep and one fill, so a single availability reset covers all
// lights. The grids run their remaining tasks afterwards.
func (m *managerImpl) ProcessTasks() {
	f := m.ctx.Frame()
	m.mu.Lock()
	grids := slices.Clone(m.grids)
	cb := m.indirectCb
	m.mu.Unlock()

	var reassign, fill []Light
	seenReassign := make(map[uint64]struct{})
	seenFill := make(map[uint64]struct{})
	for _, g := range grids {
		for _, t := range g.TakeTasks(f, grid.TaskReassignRSMs, grid.TaskFillRSMs) {
			switch t.Type {
			case grid.TaskReassignRSMs:
				reassign = append(reassign, taskLights(g, t, seenReassign)...)
			case grid.TaskFillRSMs:
				fill = append(fill, taskLights(g, t, seenFill)...)
			}
		}
	}

	if len(reassign) > 0 {
		m.UpdateIndirectMaps(reassign, true, shadow.KindReflectiveShadowMap.DataType(), nil)
	}
	if len(fill) > 0 && cb != nil {
		r := m.ctx.Renderer
		viewSpace := r.SystemState(renderer.StateViewSpaceLighting)
		hdr := r.SystemState(renderer.StateHDRLighting)
		r.SetSystemState(renderer.StateViewSpaceLighting, 0)
		r.SetSystemState(renderer.StateHDRLighting, 0)
		m.UpdateIndirectMaps(fill, false, pool.DataTypeAny, cb)
		r.SetSystemState(renderer.StateViewSpaceLighting, viewSpace)
		r.SetSystemState(renderer.StateHDRLighting, hdr)
	}

	for _, g := range grids {
		if !g.ProcessTasks() {
			m.log.V(1).Info("radiance grid tasks incomplete", "grid", g.Name(), "frame", f)
		}
	}
}

// viewMatrix returns the active camera's view matrix when view space lighting
// is on, or nil.
func (m *managerImpl) viewMatrix() []float32 {
	r := m.ctx.Renderer
	if r.SystemState(renderer.StateViewSpaceLighting) == 0 {
		return nil
	}
	view := common.IdentityMatrix()
	if cam := r.Camera(); cam != nil {
		view = cam.ViewMatrix()
	}
	return view[:]
}

func (m *managerImpl) SetConstant(name string, value any) bool {
	view := m.viewMatrix()

	m.mu.Lock()
	defer m.mu.Unlock()
	switch name {
	case ConstantLightPosition:
		v, ok := value.([3]float32)
		if !ok {
			return false
		}
		if view != nil {
			v = common.TransformCoord(view, v)
		}
		m.constants.Position = v
	case ConstantLightDirection:
		v, ok := value.([3]float32)
		if !ok {
			return false
		}
		if view != nil {
			v = common.Normalize3(common.TransformNormal(view, v))
		}
		m.constants.Direction = v
	case ConstantAttenuationBufferMask:
		v, ok := value.([4]float32)
		if !ok {
			return false
		}
		m.constants.AttenuationBufferMask = v
	case ConstantTexProjMatrix:
		v, ok := value.([16]float32)
		if !ok {
			return false
		}
		m.constants.TextureProjection = m.toViewSpace(v, view)
	default:
		return false
	}
	return true
}

// toViewSpace rebases a world space projection onto view space positions.
func (m *managerImpl) toViewSpace(texProj [16]float32, view []float32) [16]float32 {
	if view == nil {
		return texProj
	}
	var inv [16]float32
	if !common.Invert4(inv[:], view) {
		m.log.V(1).Info("singular view matrix, texture projection left in world space")
		return texProj
	}
	return common.Mul4Array(texProj, inv)
}

func (m *managerImpl) SetTexProjMatrix(texProj [16]float32) {
	m.SetConstant(ConstantTexProjMatrix, texProj)
}

func (m *managerImpl) ApplyLightingConstants() {
	m.mu.Lock()
	data := m.constants.Marshal()
	m.mu.Unlock()
	m.ctx.Renderer.SetConstantBuffer(cbLightingName, data)
}

func (m *managerImpl) Constants() GPULightingConstants {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.constants
}

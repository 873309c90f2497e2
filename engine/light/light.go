package light

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-shadow/common"
	"github.com/Carmen-Shannon/oxy-shadow/engine/camera"
	"github.com/Carmen-Shannon/oxy-shadow/engine/frame"
	"github.com/Carmen-Shannon/oxy-shadow/engine/lighting"
	"github.com/Carmen-Shannon/oxy-shadow/engine/lighting/shadow"
	"github.com/Carmen-Shannon/oxy-shadow/engine/visibility"
	"github.com/chewxy/math32"
	"github.com/go-logr/logr"
)

// LightType identifies the kind of light source.
type LightType int

const (
	// LightTypeDirectional represents a light with no position, only direction.
	// Its shadow map covers a parallel split of the scene camera.
	LightTypeDirectional LightType = iota

	// LightTypePoint represents a light that emits in all directions from a
	// position. Point lights never cast shadows.
	LightTypePoint

	// LightTypeSpot represents a light that emits in a cone from a position
	// along a direction. It owns a shadow map and a reflective shadow map.
	LightTypeSpot
)

func (t LightType) String() string {
	switch t {
	case LightTypeDirectional:
		return "Directional"
	case LightTypePoint:
		return "Point"
	case LightTypeSpot:
		return "Spot"
	}
	return "Unknown"
}

// ParseLightType converts a light type name into a LightType.
//
// Parameters:
//   - s: "directional", "point" or "spot", in any case
//
// Returns:
//   - LightType: the light type
//   - error: an error if the name is unknown
func ParseLightType(s string) (LightType, error) {
	for _, t := range []LightType{LightTypeDirectional, LightTypePoint, LightTypeSpot} {
		if strings.EqualFold(s, t.String()) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown light type %q", s)
}

const (
	// coneEpsilon keeps the inner cone strictly inside the outer cone.
	coneEpsilon float32 = 0.001
	// fadeEpsilon is the smallest fade distance that enables a fade.
	fadeEpsilon float32 = 0.001
	// nearRangeScale places the spot frustum's near plane at 1% of the range.
	nearRangeScale float32 = 0.01
)

var nextID atomic.Uint64

// fade is a distance range over which a term falls from 1 to 0.
type fade struct {
	Min float32
	Max float32
}

func (f fade) enabled() bool {
	return f.Min > fadeEpsilon || f.Max > fadeEpsilon
}

// at returns the fade factor at distance d, and false once d is past Max.
func (f fade) at(d float32) (float32, bool) {
	if !f.enabled() {
		return 1, true
	}
	if d > f.Max {
		return 0, false
	}
	if d <= f.Min {
		return 1, true
	}
	return common.Clamp((f.Max-d)/(f.Max-f.Min), 0, 1), true
}

// opPass is one entry of a pass list: the work it runs and the generator
// write pass it maps to.
type opPass struct {
	op  lighting.LightingOp
	sub int
}

// passState tracks one begin/pass/end sequence. current is -2 when no
// sequence is open and -1 between passes.
type passState struct {
	passes  []opPass
	current int
	writing bool
	reading bool
}

func idle() passState {
	return passState{current: -2}
}

func (s *passState) open(passes []opPass) {
	s.passes = passes
	s.current = -1
	s.writing = false
	s.reading = false
}

// lightImpl is the implementation of the Light interface.
type lightImpl struct {
	mu      *sync.Mutex
	ctx     *frame.Context
	log     logr.Logger
	manager lighting.Manager
	workers worker.DynamicWorkerPool

	id        uint64
	name      string
	lightType LightType
	dirty     int64

	position     [3]float32
	direction    [3]float32
	color        [3]float32
	hdrScale     float32
	ambientFar   float32
	innerRange   float32
	outerRange   float32
	innerCone    float32 // full angle in degrees
	outerCone    float32 // full angle in degrees
	falloff      float32
	enabled      bool
	castsShadows bool

	lightingStage  lighting.Stage
	shadowStage    lighting.Stage
	indirectMethod shadow.IndirectMethod

	shadowDistance   float32
	shadowFade       fade
	shadowLODFade    fade
	shadowLODs       []shadow.LOD
	shadowSettings   []shadow.SettingsLight
	indirectLODs     []shadow.LOD
	indirectSettings []shadow.SettingsLight

	shadowGen   shadow.Generator
	indirectGen shadow.Generator

	computeShadows    bool
	computeIndirect   bool
	shadowAttenuation float32
	shadowLODScale    float32
	split             shadow.Split
	fillResult        shadow.FillResult

	shadowFill       passState
	indirectFill     passState
	lightingPass     passState
	indirectLighting passState
	applyShadows     bool
	deferred         bool
}

// Light is a scene light node. It drives its shadow and reflective shadow map
// generators through the protocols the lighting manager runs each frame.
//
// Every setter marks the light dirty on the current frame, which makes its
// generators regenerate their maps.
type Light interface {
	lighting.Light

	// Type returns the kind of light source.
	//
	// Returns:
	//   - LightType: the light type
	Type() LightType

	// InnerRange returns the distance up to which the light is not attenuated.
	//
	// Returns:
	//   - float32: the inner range
	InnerRange() float32

	// SpotCone returns the full inner and outer cone angles of a spot light.
	//
	// Returns:
	//   - inner, outer: the angles in degrees
	SpotCone() (inner, outer float32)

	// Enabled returns whether this light is active for rendering.
	//
	// Returns:
	//   - bool: true if the light is enabled
	Enabled() bool

	// CastsShadows returns whether this light is eligible for shadow map generation.
	//
	// Returns:
	//   - bool: true if the light casts shadows
	CastsShadows() bool

	// IsIndirectSource reports whether the light feeds the indirect lighting stage.
	//
	// Returns:
	//   - bool: true if the light has indirect settings with a non-zero intensity
	IsIndirectSource() bool

	// ShadowAttenuation returns the shadow distance fade computed by the last
	// ComputeShadowSets.
	//
	// Returns:
	//   - float32: 1 inside the fade start, falling to 0 at its end
	ShadowAttenuation() float32

	// ShadowLODScale returns the shadow detail scale computed by the last
	// ComputeShadowSets.
	//
	// Returns:
	//   - float32: 1 inside the LOD fade start, falling to 0 at its end
	ShadowLODScale() float32

	// ShadowSplit returns the scene camera depth range covered by a
	// directional light's shadow map.
	//
	// Returns:
	//   - shadow.Split: the split, zero for other light types
	ShadowSplit() shadow.Split

	// ShadowGenerator returns the shadow map generator.
	//
	// Returns:
	//   - shadow.Generator: the generator, or nil for point lights
	ShadowGenerator() shadow.Generator

	// IndirectGenerator returns the reflective shadow map generator.
	//
	// Returns:
	//   - shadow.Generator: the generator, or nil unless the light is a spot light
	IndirectGenerator() shadow.Generator

	// ComputeIndirectSets culls the objects the reflective shadow map draws.
	//
	// Parameters:
	//   - cam: the scene camera
	//   - objects: the scene objects
	ComputeIndirectSets(cam camera.Camera, objects []visibility.Object)

	// BeginIndirectLighting starts injecting the light's reflective shadow map
	// into the indirect lighting stage.
	//
	// Returns:
	//   - int: the number of passes, or -1 if the light is skipped
	BeginIndirectLighting() int

	// BeginIndirectLightingPass starts one indirect lighting pass.
	//
	// Parameters:
	//   - pass: the pass index
	//
	// Returns:
	//   - lighting.LightingOp: the work to run for the pass
	//   - visibility.Set: the objects the pass draws
	BeginIndirectLightingPass(pass int) (lighting.LightingOp, visibility.Set)

	// EndIndirectLightingPass ends the current indirect lighting pass.
	EndIndirectLightingPass()

	// EndIndirectLighting ends the indirect lighting sequence.
	EndIndirectLighting()

	// SetName sets the display name of the light.
	//
	// Parameters:
	//   - name: the name
	SetName(name string)

	// SetPosition sets the world-space position of the light.
	//
	// Parameters:
	//   - x, y, z: position components
	SetPosition(x, y, z float32)

	// SetDirection sets the direction of the light and normalizes it.
	//
	// Parameters:
	//   - x, y, z: direction components (will be normalized)
	SetDirection(x, y, z float32)

	// SetColor sets the RGB diffuse color of the light.
	//
	// Parameters:
	//   - r, g, b: color components
	SetColor(r, g, b float32)

	// SetIntensity sets the HDR multiplier of the diffuse color.
	//
	// Parameters:
	//   - intensity: the intensity value
	SetIntensity(intensity float32)

	// SetRange sets the attenuation ranges of the light.
	//
	// Parameters:
	//   - inner: the distance up to which the light is not attenuated
	//   - outer: the distance past which the light has no effect
	SetRange(inner, outer float32)

	// SetSpotCone sets the full inner and outer cone angles of a spot light.
	// An inner angle not smaller than the outer one is clamped just inside it.
	//
	// Parameters:
	//   - innerDeg: inner cone angle in degrees
	//   - outerDeg: outer cone angle in degrees
	SetSpotCone(innerDeg, outerDeg float32)

	// SetEnabled enables or disables the light for rendering.
	//
	// Parameters:
	//   - enabled: true to enable
	SetEnabled(enabled bool)

	// SetCastsShadows sets whether the light is eligible for shadow mapping.
	//
	// Parameters:
	//   - castsShadows: true to enable shadow casting
	SetCastsShadows(castsShadows bool)

	// SetStages sets when the light's lighting and shadows are produced.
	//
	// Parameters:
	//   - lightingStage: the lighting stage
	//   - shadowStage: the shadow stage
	SetStages(lightingStage, shadowStage lighting.Stage)

	// SetShadowFade sets the camera distance range over which shadows fade out.
	//
	// Parameters:
	//   - minDistance, maxDistance: the fade range, both zero to disable
	SetShadowFade(minDistance, maxDistance float32)

	// SetShadowDistance sets how far along the scene camera a directional
	// light's shadows reach.
	//
	// Parameters:
	//   - d: the distance, or 0 for the camera far plane
	SetShadowDistance(d float32)

	// Release returns the light's maps to the shadow pool.
	Release()
}

var _ Light = &lightImpl{}

// NewLight creates a new Light of the specified type with sensible defaults and
// any provided options applied. Directional and spot lights receive a shadow
// generator, spot lights also a reflective shadow map generator.
//
// Parameters:
//   - m: the lighting manager owning the shadow pool and settings table
//   - lightType: the kind of light to create (directional, point, or spot)
//   - opts: variadic list of LightBuilderOption functions to configure the light
//
// Returns:
//   - Light: a new Light instance
func NewLight(m lighting.Manager, lightType LightType, opts ...LightBuilderOption) Light {
	ctx := m.Context()
	l := &lightImpl{
		mu:                &sync.Mutex{},
		ctx:               ctx,
		log:               ctx.Logger.WithName("light"),
		manager:           m,
		id:                nextID.Add(1),
		lightType:         lightType,
		dirty:             ctx.Frame(),
		direction:         [3]float32{0, -1, 0},
		color:             [3]float32{1, 1, 1},
		hdrScale:          1,
		ambientFar:        1,
		outerRange:        10,
		innerCone:         50,
		outerCone:         70,
		falloff:           1,
		enabled:           true,
		lightingStage:     lighting.StageRuntime,
		shadowStage:       lighting.StageRuntime,
		indirectMethod:    m.IndirectMethod(),
		shadowDistance:    100,
		shadowAttenuation: 1,
		shadowLODScale:    1,
		shadowFill:        idle(),
		indirectFill:      idle(),
		lightingPass:      idle(),
		indirectLighting:  idle(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.innerCone, l.outerCone = clampCone(l.innerCone, l.outerCone)
	if l.name == "" {
		l.name = fmt.Sprintf("%s%d", l.lightType, l.id)
	}

	genOptions := []shadow.GeneratorBuilderOption{
		shadow.WithLogger(l.log),
		shadow.WithLightingConstants(m),
	}
	if l.workers != nil {
		genOptions = append(genOptions, shadow.WithWorkerPool(l.workers))
	}
	if lightType != LightTypePoint {
		l.shadowGen = shadow.NewGenerator(ctx, m.Pool(), l, genOptions...)
	}
	if lightType == LightTypeSpot {
		rsmOptions := append(genOptions, shadow.WithRandomTexture(m.RandomTexture()))
		l.indirectGen = shadow.NewReflectanceGenerator(ctx, m.Pool(), l, rsmOptions...)
	}
	l.placeFrustum()
	return l
}

// clampCone limits the outer cone to (0, 179] degrees and keeps the inner
// cone strictly inside it.
func clampCone(inner, outer float32) (float32, float32) {
	outer = common.Clamp(outer, coneEpsilon, 179)
	inner = max(inner, 0)
	if inner >= outer {
		inner = max(0, outer-coneEpsilon)
	}
	return inner, outer
}

// upFor returns an up vector that is not parallel to dir.
func upFor(dir [3]float32) [3]float32 {
	if math32.Abs(dir[1]) > 0.99 {
		return [3]float32{0, 0, 1}
	}
	return [3]float32{0, 1, 0}
}

// placeFrustum points the spot light's generator cameras along the cone.
func (l *lightImpl) placeFrustum() {
	if l.lightType != LightTypeSpot {
		return
	}
	l.mu.Lock()
	pos, dir := l.position, l.direction
	fov := l.outerCone * math32.Pi / 180
	far := max(l.outerRange, fadeEpsilon)
	l.mu.Unlock()

	near := far * nearRangeScale
	for _, g := range []shadow.Generator{l.shadowGen, l.indirectGen} {
		cam := g.Camera()
		cam.SetPerspective(fov, 1, near, far)
		cam.LookAt(pos, common.Add3(pos, dir), upFor(dir))
	}
}

// touch marks the light dirty on the current frame. The caller holds mu.
func (l *lightImpl) touch() {
	l.dirty = l.ctx.Frame()
}

func (l *lightImpl) ID() uint64 {
	return l.id
}

func (l *lightImpl) Name() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.name
}

func (l *lightImpl) Type() LightType {
	return l.lightType
}

func (l *lightImpl) DirtyFrame() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dirty
}

func (l *lightImpl) IsDirectional() bool {
	return l.lightType == LightTypeDirectional
}

func (l *lightImpl) Position() [3]float32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.position
}

func (l *lightImpl) Direction() [3]float32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.direction
}

func (l *lightImpl) DiffuseColor() [3]float32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.color
}

func (l *lightImpl) DiffuseHDRScale() float32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hdrScale
}

func (l *lightImpl) AmbientFarHDRScale() float32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ambientFar
}

func (l *lightImpl) InnerRange() float32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.innerRange
}

func (l *lightImpl) OuterRange() float32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.outerRange
}

func (l *lightImpl) SpotCone() (float32, float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.innerCone, l.outerCone
}

func (l *lightImpl) Enabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

func (l *lightImpl) CastsShadows() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.castsShadows
}

func (l *lightImpl) LightingStage() lighting.Stage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lightingStage
}

func (l *lightImpl) ShadowStage() lighting.Stage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.shadowStage
}

func (l *lightImpl) IndirectMethod() shadow.IndirectMethod {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.indirectMethod
}

func (l *lightImpl) SetIndirectMethod(m shadow.IndirectMethod) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.indirectMethod = m
}

func (l *lightImpl) IsShadowSource() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.computeShadows
}

func (l *lightImpl) IsIndirectSource() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.isIndirectSource()
}

// isIndirectSource requires mu.
func (l *lightImpl) isIndirectSource() bool {
	if l.indirectGen == nil || len(l.indirectLODs) == 0 {
		return false
	}
	if len(l.indirectSettings) == 0 {
		return true
	}
	for _, s := range l.indirectSettings {
		if s.Intensity > 0 {
			return true
		}
	}
	return false
}

func (l *lightImpl) ShadowAttenuation() float32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.shadowAttenuation
}

func (l *lightImpl) ShadowLODScale() float32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.shadowLODScale
}

func (l *lightImpl) ShadowSplit() shadow.Split {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.split
}

func (l *lightImpl) ShadowFillResult() shadow.FillResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fillResult
}

func (l *lightImpl) ShadowGenerator() shadow.Generator {
	return l.shadowGen
}

func (l *lightImpl) IndirectGenerator() shadow.Generator {
	return l.indirectGen
}

func (l *lightImpl) SetName(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.name = name
	l.touch()
}

func (l *lightImpl) SetPosition(x, y, z float32) {
	l.mu.Lock()
	l.position = [3]float32{x, y, z}
	l.touch()
	l.mu.Unlock()
	l.placeFrustum()
}

func (l *lightImpl) SetDirection(x, y, z float32) {
	l.mu.Lock()
	l.direction = common.Normalize3([3]float32{x, y, z})
	l.touch()
	l.mu.Unlock()
	l.placeFrustum()
}

func (l *lightImpl) SetColor(r, g, b float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.color = [3]float32{r, g, b}
	l.touch()
}

func (l *lightImpl) SetIntensity(intensity float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hdrScale = intensity
	l.touch()
}

func (l *lightImpl) SetRange(inner, outer float32) {
	l.mu.Lock()
	l.innerRange = max(0, min(inner, outer))
	l.outerRange = max(outer, 0)
	l.touch()
	l.mu.Unlock()
	l.placeFrustum()
}

func (l *lightImpl) SetSpotCone(innerDeg, outerDeg float32) {
	l.mu.Lock()
	l.innerCone, l.outerCone = clampCone(innerDeg, outerDeg)
	l.touch()
	l.mu.Unlock()
	l.placeFrustum()
}

func (l *lightImpl) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = enabled
	l.touch()
}

func (l *lightImpl) SetCastsShadows(castsShadows bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.castsShadows = castsShadows
	l.touch()
}

func (l *lightImpl) SetStages(lightingStage, shadowStage lighting.Stage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lightingStage, l.shadowStage = lightingStage, shadowStage
	l.touch()
}

func (l *lightImpl) SetShadowFade(minDistance, maxDistance float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.shadowFade = fade{Min: minDistance, Max: maxDistance}
	l.touch()
}

func (l *lightImpl) SetShadowDistance(d float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.shadowDistance = max(d, 0)
	l.touch()
}

func (l *lightImpl) Release() {
	for _, g := range []shadow.Generator{l.shadowGen, l.indirectGen} {
		if g != nil {
			g.ReleaseResources()
		}
	}
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-shadow/engine/camera"
	"github.com/Carmen-Shannon/oxy-shadow/engine/frame"
	"github.com/Carmen-Shannon/oxy-shadow/engine/game_object"
	"github.com/Carmen-Shannon/oxy-shadow/engine/light"
	"github.com/Carmen-Shannon/oxy-shadow/engine/lighting"
	"github.com/Carmen-Shannon/oxy-shadow/engine/lighting/grid"
	"github.com/Carmen-Shannon/oxy-shadow/engine/lighting/pool"
	"github.com/Carmen-Shannon/oxy-shadow/engine/lighting/shadow"
	"github.com/Carmen-Shannon/oxy-shadow/engine/profiler"
	"github.com/Carmen-Shannon/oxy-shadow/engine/renderer"
	"github.com/Carmen-Shannon/oxy-shadow/engine/scene"
	"github.com/chewxy/math32"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-logr/logr"
	"go.uber.org/multierr"
)

const degToRad = math32.Pi / 180

// BuildOptions carries what the description does not: the logger, the
// profiler and command line overrides.
type BuildOptions struct {
	Logger   logr.Logger
	Profiler *profiler.Profiler
	// Settings overrides Scene.Settings when set.
	Settings string
	// Backend overrides Scene.Backend when set.
	Backend string
	// Workers sizes the pool shared by the lights and the camera visibility
	// set. Zero means one worker.
	Workers int
}

// Capabilities returns the renderer capability profile of a name.
//
// Parameters:
//   - name: "desktop" or "minimal" in any case, empty for desktop
//
// Returns:
//   - renderer.Capabilities: the profile
//   - error: an unknown name
func Capabilities(name string) (renderer.Capabilities, error) {
	switch strings.ToLower(name) {
	case "", "desktop":
		return renderer.DesktopCapabilities(), nil
	case "minimal":
		return renderer.MinimalCapabilities(), nil
	}
	return renderer.Capabilities{}, fmt.Errorf("unknown capability profile %q", name)
}

func parseStage(s string) (lighting.Stage, error) {
	if s == "" {
		return lighting.StageRuntime, nil
	}
	for _, st := range []lighting.Stage{lighting.StageRuntime, lighting.StagePrecomputed, lighting.StageNone} {
		if strings.EqualFold(s, st.String()) {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q", s)
}

func parseCullMode(s string) (wgpu.CullMode, error) {
	switch strings.ToLower(s) {
	case "", "back":
		return wgpu.CullModeBack, nil
	case "front":
		return wgpu.CullModeFront, nil
	case "none":
		return wgpu.CullModeNone, nil
	}
	return 0, fmt.Errorf("unknown cull mode %q", s)
}

// settingsLight applies the overrides to the default light tuning.
func (ls LightSettings) settingsLight() shadow.SettingsLight {
	out := shadow.DefaultSettingsLight()
	if ls.ResolutionAdjust != nil {
		out.ResolutionAdjust = *ls.ResolutionAdjust
	}
	if ls.Intensity != nil {
		out.Intensity = *ls.Intensity
	}
	out.CullMode, _ = parseCullMode(ls.CullMode)
	if ls.DepthBias != nil {
		out.DepthBiasSW = *ls.DepthBias
		out.DepthBiasHW = *ls.DepthBias
	}
	if ls.SlopeScaleBias != nil {
		out.SlopeScaleBias = *ls.SlopeScaleBias
	}
	if ls.NormalBias != nil {
		out.NormalBiasSurface = *ls.NormalBias
		out.NormalBiasLight = *ls.NormalBias
	}
	if ls.FilterBlurFactor != nil {
		out.FilterBlurFactor = *ls.FilterBlurFactor
	}
	if fd := ls.FilterDistance; fd != nil {
		out.FilterDistanceNear, out.FilterDistanceFar = fd[0], fd[1]
	}
	if ls.MaskThreshold != nil {
		out.MaskThreshold = *ls.MaskThreshold
	}
	out.Translucency = ls.Translucency
	return out
}

func settingsLights(in []LightSettings) []shadow.SettingsLight {
	out := make([]shadow.SettingsLight, 0, len(in))
	for _, ls := range in {
		out = append(out, ls.settingsLight())
	}
	return out
}

// NewRenderer creates the renderer with the description's backend and
// capability profile.
//
// Parameters:
//   - log: the renderer logger
//
// Returns:
//   - renderer.Renderer: the renderer
//   - error: an unknown backend or capability profile
func (s *Scene) NewRenderer(log logr.Logger) (renderer.Renderer, error) {
	caps, err := Capabilities(s.Capabilities)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScene, err)
	}
	backend, err := renderer.ParseBackendType(s.Backend)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScene, err)
	}
	return renderer.NewRenderer(backend,
		renderer.WithCapabilities(caps),
		renderer.WithLogger(log),
	), nil
}

// Build creates the lighting manager, the pool, the radiance grids, the
// lights and the objects, and returns the scene holding them. Rejected
// settings entries are logged. Any other configuration error fails the
// build, including a table without a usable default entry.
//
// Parameters:
//   - opts: the logger, profiler and overrides
//
// Returns:
//   - scene.Scene: the configured scene
//   - error: the first fatal configuration error
func (s *Scene) Build(opts BuildOptions) (scene.Scene, error) {
	log := opts.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	rdesc := *s
	if opts.Backend != "" {
		rdesc.Backend = opts.Backend
	}
	r, err := rdesc.NewRenderer(log)
	if err != nil {
		return nil, err
	}
	ctx := frame.NewContext(r, frame.NewClock(), log)

	indirect, err := shadow.ParseIndirectMethod(s.IndirectMethod)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScene, err)
	}
	mopts := []lighting.ManagerBuilderOption{
		lighting.WithLogger(log),
		lighting.WithIndirectMethod(indirect),
	}
	if opts.Profiler != nil {
		mopts = append(mopts, lighting.WithProfiler(opts.Profiler))
	}
	settings := s.Settings
	if opts.Settings != "" {
		settings = opts.Settings
	}
	if settings != "" {
		mopts = append(mopts, lighting.WithShadowSettingsFile(settings))
	}
	if s.ShadowLOD != nil {
		mopts = append(mopts, lighting.WithShadowSystemLOD(*s.ShadowLOD))
	}
	if s.IndirectLOD != nil {
		mopts = append(mopts, lighting.WithIndirectSystemLOD(*s.IndirectLOD))
	}
	m := lighting.NewManager(ctx, mopts...)

	cfg := pool.DefaultConfig()
	if s.Pool != nil {
		cfg = *s.Pool
	}
	if err := m.BeginShadowConfigure(cfg); err != nil {
		return nil, fmt.Errorf("failed to configure the shadow pool: %w", err)
	}
	if err := m.EndShadowConfigure(); err != nil {
		for _, e := range multierr.Errors(err) {
			if errors.Is(e, lighting.ErrNoDefaultSettings) || !errors.Is(e, lighting.ErrSettingsInvalid) {
				return nil, fmt.Errorf("failed to configure shadows: %w", err)
			}
			log.Error(e, "shadow configuration entry rejected")
		}
	}

	for _, g := range s.Grids {
		gopts := []grid.GridBuilderOption{grid.WithDimensions(g.Dimensions[0], g.Dimensions[1], g.Dimensions[2])}
		if g.CellSize > 0 {
			gopts = append(gopts, grid.WithCellSize(g.CellSize))
		}
		if g.Padding > 0 {
			gopts = append(gopts, grid.WithPadding(g.Padding))
		}
		if g.DynamicUpdateFrames > 0 {
			gopts = append(gopts, grid.WithDynamicUpdateFrames(g.DynamicUpdateFrames))
		}
		m.AddRadianceGrid(gopts...)
	}

	workers := worker.NewDynamicWorkerPool(max(opts.Workers, 1), 256, 1*time.Second)
	lights := make(map[string]light.Light, len(s.Lights))
	all := make([]light.Light, 0, len(s.Lights))
	for _, lc := range s.Lights {
		l, err := lc.build(m, log, workers)
		if err != nil {
			return nil, err
		}
		if lc.Name != "" {
			lights[lc.Name] = l
		}
		all = append(all, l)
	}

	objects := make([]game_object.GameObject, 0, len(s.Objects))
	for _, oc := range s.Objects {
		objects = append(objects, oc.build(lights[oc.Light]))
	}

	name := s.Name
	if name == "" {
		name = "scene"
	}
	lopts := lighting.LightingOptions{
		Deferred:     s.Lighting.Deferred,
		ApplyShadows: s.Lighting.ApplyShadows == nil || *s.Lighting.ApplyShadows,
		ViewSpace:    s.Lighting.ViewSpace,
	}
	return scene.NewScene(name, s.Camera.build(), m,
		scene.WithLogger(log),
		scene.WithWorkerPool(workers),
		scene.WithLightingOptions(lopts),
		scene.WithCullingDisabled(s.CullingOff),
		scene.WithLights(all...),
		scene.WithObjects(objects...),
	), nil
}

func (c Camera) build() camera.Camera {
	fov, aspect, near, far := c.Fov, c.Aspect, c.Near, c.Far
	if fov <= 0 {
		fov = 60
	}
	if aspect <= 0 {
		aspect = 16.0 / 9.0
	}
	if near <= 0 {
		near = 0.1
	}
	if far <= near {
		far = 100
	}
	opts := []camera.CameraBuilderOption{camera.WithPerspective(fov*degToRad, aspect, near, far)}
	if o := c.Orbit; o != nil {
		ctrl := camera.NewOrbitController(
			camera.WithRadius(o.Radius),
			camera.WithElevation(o.Elevation*degToRad),
			camera.WithTarget(c.Target[0], c.Target[1], c.Target[2]),
			camera.WithOrbitSpeed(o.Speed*degToRad),
		)
		return camera.NewCamera(append(opts, camera.WithController(ctrl))...)
	}
	return camera.NewCamera(append(opts, camera.WithLookAt(c.Eye, c.Target, [3]float32{0, 1, 0}))...)
}

func (lc Light) build(m lighting.Manager, log logr.Logger, workers worker.DynamicWorkerPool) (light.Light, error) {
	t, err := light.ParseLightType(lc.Type)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScene, err)
	}
	stage, err := parseStage(lc.Stage)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScene, err)
	}
	shadowStage, err := parseStage(lc.ShadowStage)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScene, err)
	}

	opts := []light.LightBuilderOption{
		light.WithLogger(log),
		light.WithWorkerPool(workers),
		light.WithPosition(lc.Position[0], lc.Position[1], lc.Position[2]),
		light.WithCastsShadows(lc.CastsShadows),
		light.WithStages(stage, shadowStage),
	}
	if lc.Name != "" {
		opts = append(opts, light.WithName(lc.Name))
	}
	if d := lc.Direction; d != nil {
		opts = append(opts, light.WithDirection(d[0], d[1], d[2]))
	}
	if c := lc.Color; c != nil {
		opts = append(opts, light.WithColor(c[0], c[1], c[2]))
	}
	if lc.Intensity != nil {
		opts = append(opts, light.WithIntensity(*lc.Intensity))
	}
	if r := lc.Range; r != nil {
		opts = append(opts, light.WithRange(r[0], r[1]))
	}
	if c := lc.Cone; c != nil {
		opts = append(opts, light.WithSpotCone(c[0], c[1]))
	}
	if lc.Enabled != nil {
		opts = append(opts, light.WithEnabled(*lc.Enabled))
	}
	if lc.ShadowDistance != nil {
		opts = append(opts, light.WithShadowDistance(*lc.ShadowDistance))
	}
	if f := lc.ShadowFade; f != nil {
		opts = append(opts, light.WithShadowFade(f[0], f[1]))
	}
	if f := lc.ShadowLODFade; f != nil {
		opts = append(opts, light.WithShadowLODFade(f[0], f[1]))
	}
	if lc.AmbientFarScale != nil {
		opts = append(opts, light.WithAmbientFarHDRScale(*lc.AmbientFarScale))
	}
	if len(lc.ShadowLODs) > 0 {
		opts = append(opts, light.WithShadowLODs(lc.ShadowLODs, settingsLights(lc.ShadowSettings)...))
	}
	if len(lc.IndirectLODs) > 0 {
		opts = append(opts, light.WithIndirectLODs(lc.IndirectLODs, settingsLights(lc.IndirectSettings)...))
	}
	return light.NewLight(m, t, opts...), nil
}

func (oc Object) build(carried light.Light) game_object.GameObject {
	opts := []game_object.GameObjectBuilderOption{
		game_object.WithPosition(oc.Position[0], oc.Position[1], oc.Position[2]),
		game_object.WithRotation(oc.Rotation[0]*degToRad, oc.Rotation[1]*degToRad, oc.Rotation[2]*degToRad),
		game_object.WithRotationSpeed(oc.RotationSpeed[0]*degToRad, oc.RotationSpeed[1]*degToRad, oc.RotationSpeed[2]*degToRad),
	}
	if oc.Name != "" {
		opts = append(opts, game_object.WithName(oc.Name))
	}
	if sc := oc.Scale; sc != nil {
		opts = append(opts, game_object.WithScale(sc[0], sc[1], sc[2]))
	}
	if h := oc.HalfExtents; h != nil {
		opts = append(opts, game_object.WithHalfExtents(h[0], h[1], h[2]))
	}
	casts, receives := true, true
	if oc.CastsShadows != nil {
		casts = *oc.CastsShadows
	}
	if oc.ReceivesShadows != nil {
		receives = *oc.ReceivesShadows
	}
	opts = append(opts, game_object.WithShadows(casts, receives))
	if carried != nil {
		opts = append(opts, game_object.WithLight(carried))
	}
	return game_object.NewGameObject(opts...)
}

package scene

import (
	"fmt"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-shadow/engine/camera"
	"github.com/Carmen-Shannon/oxy-shadow/engine/frame"
	"github.com/Carmen-Shannon/oxy-shadow/engine/game_object"
	"github.com/Carmen-Shannon/oxy-shadow/engine/light"
	"github.com/Carmen-Shannon/oxy-shadow/engine/lighting"
	"github.com/Carmen-Shannon/oxy-shadow/engine/renderer"
	"github.com/Carmen-Shannon/oxy-shadow/engine/visibility"
	"github.com/go-logr/logr"
)

// DefaultFrameDelta is the clock step of a frame when Frame is given no delta.
const DefaultFrameDelta = 1.0 / 60

// cullAllPlanes skips every frustum plane, keeping all renderable objects.
const cullAllPlanes uint8 = 0x3f

// FrameStats is the work one lighting frame did.
type FrameStats struct {
	Frame            int64
	Visible          int
	LightsProcessed  int
	ShadowFills      int
	IndirectFills    int
	WritePasses      int
	CacheHits        int
	Deferred         int
	CallbackFailures int
	Draws            int
	PoolMemory       uint64
	Duration         time.Duration
}

// Scene composes a camera, a lighting manager, its lights and the objects
// they shade. One call to Frame runs one lighting frame against the
// manager's renderer.
// Thread-safe for concurrent access, though Frame itself must not run concurrently.
type Scene interface {
	// Name returns the scene's identifier.
	Name() string

	// SetName sets the scene's identifier.
	SetName(name string)

	// Active returns whether this scene is currently active for rendering.
	Active() bool

	// SetActive sets whether this scene is active for rendering.
	SetActive(active bool)

	// Camera returns the scene's camera.
	Camera() camera.Camera

	// SetCamera replaces the scene's camera.
	//
	// Parameters:
	//   - cam: the new camera
	SetCamera(cam camera.Camera)

	// Manager returns the lighting manager the scene renders with.
	Manager() lighting.Manager

	// Renderer returns the manager's renderer.
	Renderer() renderer.Renderer

	// Context returns the manager's frame context.
	Context() *frame.Context

	// LightingOptions returns how lights are processed.
	LightingOptions() lighting.LightingOptions

	// SetLightingOptions sets how lights are processed.
	//
	// Parameters:
	//   - opts: the lighting options
	SetLightingOptions(opts lighting.LightingOptions)

	// CullingDisabled returns whether camera culling is skipped.
	CullingDisabled() bool

	// SetCullingDisabled sets whether camera culling is skipped. With culling
	// disabled every renderable object is visible to the camera.
	//
	// Parameters:
	//   - disabled: true to skip camera culling
	SetCullingDisabled(disabled bool)

	// AddLight adds a light to the scene.
	//
	// Parameters:
	//   - l: the light
	AddLight(l light.Light)

	// RemoveLight removes a light and releases its shadow resources.
	//
	// Parameters:
	//   - l: the light
	RemoveLight(l light.Light)

	// Lights returns the scene lights in insertion order.
	//
	// Returns:
	//   - []light.Light: a copy of the light list
	Lights() []light.Light

	// Add registers an object, assigning it an ID if it has none. An attached
	// light is added along with it.
	//
	// Parameters:
	//   - obj: the object
	//
	// Returns:
	//   - uint64: the object's ID
	Add(obj game_object.GameObject) uint64

	// Get returns the object with the given ID, or nil.
	//
	// Parameters:
	//   - id: the object ID
	//
	// Returns:
	//   - game_object.GameObject: the object or nil
	Get(id uint64) game_object.GameObject

	// Remove detaches the object with the given ID. Shadow maps that saw it
	// are regenerated on the next frame.
	//
	// Parameters:
	//   - id: the object ID
	Remove(id uint64)

	// Clear removes every object.
	Clear()

	// Count returns the number of registered objects.
	Count() int

	// Objects returns the registered objects in insertion order.
	Objects() []game_object.GameObject

	// Visibility returns the camera visibility set of the last frame.
	Visibility() visibility.Set

	// Frame advances the clock and runs one lighting frame.
	//
	// Parameters:
	//   - dt: the clock step in seconds, DefaultFrameDelta if <= 0
	//
	// Returns:
	//   - FrameStats: the work the frame did
	Frame(dt float64) FrameStats

	// Release frees the shadow resources of every light.
	Release()
}

type scene struct {
	mu *sync.RWMutex

	name   string
	active bool
	log    logr.Logger

	cam     camera.Camera
	manager lighting.Manager

	registry map[uint64]game_object.GameObject
	order    []uint64
	nextID   uint64
	pending  []game_object.GameObject

	lights   []light.Light
	lighting lighting.LightingOptions

	cullingDisabled bool
	visible         visibility.Set

	// computePool fans camera culling out over a bounded set of reusable goroutines.
	computePool    worker.DynamicWorkerPool
	computeWorkers int
}

var _ Scene = &scene{}

// NewScene creates a Scene rendering through the manager's renderer. The
// camera and manager are required and NewScene panics if either is nil.
// The manager's indirect callback is pointed at the scene's fill callback.
//
// Parameters:
//   - name: the name of the scene
//   - cam: the camera to attach (must not be nil)
//   - m: the lighting manager (must not be nil)
//   - options: functional options to further configure the scene
//
// Returns:
//   - Scene: the newly created scene
func NewScene(name string, cam camera.Camera, m lighting.Manager, options ...SceneBuilderOption) Scene {
	if cam == nil {
		panic("scene: NewScene requires a non-nil Camera")
	}
	if m == nil {
		panic("scene: NewScene requires a non-nil lighting Manager")
	}

	s := &scene{
		mu:             &sync.RWMutex{},
		name:           name,
		log:            m.Context().Logger.WithName("scene"),
		cam:            cam,
		manager:        m,
		registry:       make(map[uint64]game_object.GameObject),
		nextID:         1,
		lighting:       lighting.LightingOptions{ApplyShadows: true},
		computeWorkers: max(runtime.NumCPU()-1, 1),
	}

	for _, option := range options {
		option(s)
	}

	if s.computePool == nil {
		// Queue size of 256 leaves headroom for large object lists split into chunks.
		s.computePool = worker.NewDynamicWorkerPool(s.computeWorkers, 256, 1*time.Second)
	}
	s.visible = visibility.NewSet(name+".Camera", visibility.WithWorkerPool(s.computePool), visibility.WithLogger(s.log))

	pending := s.pending
	s.pending = nil
	for _, obj := range pending {
		s.Add(obj)
	}
	m.SetIndirectCallback(s.fill)
	return s
}

func (s *scene) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

func (s *scene) SetName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
}

func (s *scene) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *scene) SetActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = active
}

func (s *scene) Camera() camera.Camera {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cam
}

func (s *scene) SetCamera(cam camera.Camera) {
	if cam == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cam = cam
}

func (s *scene) Manager() lighting.Manager {
	return s.manager
}

func (s *scene) Renderer() renderer.Renderer {
	return s.manager.Context().Renderer
}

func (s *scene) Context() *frame.Context {
	return s.manager.Context()
}

func (s *scene) LightingOptions() lighting.LightingOptions {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lighting
}

func (s *scene) SetLightingOptions(opts lighting.LightingOptions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lighting = opts
}

func (s *scene) CullingDisabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cullingDisabled
}

func (s *scene) SetCullingDisabled(disabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cullingDisabled = disabled
}

func (s *scene) AddLight(l light.Light) {
	if l == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Contains(s.lights, l) {
		return
	}
	s.lights = append(s.lights, l)
}

func (s *scene) RemoveLight(l light.Light) {
	s.mu.Lock()
	i := slices.Index(s.lights, l)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	s.lights = slices.Delete(s.lights, i, i+1)
	s.mu.Unlock()
	l.Release()
}

func (s *scene) Lights() []light.Light {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.lights)
}

func (s *scene) Add(obj game_object.GameObject) uint64 {
	s.mu.Lock()
	id := obj.ID()
	if id == 0 {
		id = s.nextID
		obj.SetID(id)
	}
	s.nextID = max(s.nextID, id+1)
	if _, exists := s.registry[id]; !exists {
		s.order = append(s.order, id)
	}
	s.registry[id] = obj
	s.mu.Unlock()

	obj.SetClock(s.manager.Context().Clock)
	if l := obj.Light(); l != nil {
		s.AddLight(l)
	}
	return id
}

func (s *scene) Get(id uint64) game_object.GameObject {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry[id]
}

func (s *scene) Remove(id uint64) {
	s.mu.Lock()
	obj, ok := s.registry[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.registry, id)
	s.order = slices.DeleteFunc(s.order, func(o uint64) bool { return o == id })
	s.mu.Unlock()

	obj.Detach()
	if l := obj.Light(); l != nil {
		s.RemoveLight(l)
	}
}

func (s *scene) Clear() {
	s.mu.RLock()
	ids := slices.Clone(s.order)
	s.mu.RUnlock()
	for _, id := range ids {
		s.Remove(id)
	}
}

func (s *scene) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.registry)
}

func (s *scene) Objects() []game_object.GameObject {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]game_object.GameObject, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.registry[id])
	}
	return out
}

func (s *scene) Visibility() visibility.Set {
	return s.visible
}

func (s *scene) Release() {
	for _, l := range s.Lights() {
		l.Release()
	}
}

func (s *scene) Frame(dt float64) FrameStats {
	if dt <= 0 {
		dt = DefaultFrameDelta
	}
	start := time.Now()
	ctx := s.manager.Context()
	r := ctx.Renderer

	s.mu.RLock()
	cam := s.cam
	lights := slices.Clone(s.lights)
	opts := s.lighting
	skip := uint8(0)
	if s.cullingDisabled {
		skip = cullAllPlanes
	}
	s.mu.RUnlock()

	r.ResetEvents()
	ctx.Clock.Advance(dt)
	f := ctx.Frame()

	if ctrl := cam.Controller(); ctrl != nil {
		ctrl.Advance(float32(dt))
		cam.Update()
	}

	gameObjects := s.Objects()
	objects := make([]visibility.Object, 0, len(gameObjects))
	for _, obj := range gameObjects {
		obj.Advance(float32(dt))
		objects = append(objects, obj)
	}
	s.visible.Compute(objects, visibility.Query{
		Frustum:    cam.Frustum(),
		SkipPlanes: skip,
		Filter:     visibility.FilterRenderable,
		Frame:      f,
	})

	managed := make([]lighting.Light, 0, len(lights))
	for _, l := range lights {
		l.ComputeIndirectSets(cam, objects)
		managed = append(managed, l)
	}

	s.manager.ResetStats()
	s.manager.Update(cam, managed)
	s.manager.ProcessTasks()
	s.manager.ProcessShadowMaps(cam, managed, objects, true, s.fill)
	s.manager.ProcessLights(cam, managed, opts, s.processLight, s.setupLighting)

	ms := s.manager.Stats()
	stats := FrameStats{
		Frame:            f,
		Visible:          s.visible.Len(),
		LightsProcessed:  ms.LightsProcessed,
		ShadowFills:      ms.ShadowFills,
		IndirectFills:    ms.IndirectFills,
		WritePasses:      ms.WritePasses,
		CacheHits:        ms.CacheHits,
		Deferred:         ms.Deferred,
		CallbackFailures: ms.CallbackFailures,
		PoolMemory:       s.manager.Pool().MemoryConsumption(),
		Duration:         time.Since(start),
	}
	for _, e := range r.Events() {
		if e.Kind == renderer.EventDraw {
			stats.Draws++
		}
	}
	if s.log.V(1).Enabled() {
		s.log.V(1).Info("frame", "scene", s.Name(), "frame", f, "lights", stats.LightsProcessed,
			"fills", stats.ShadowFills, "cacheHits", stats.CacheHits, "deferred", stats.Deferred)
	}
	return stats
}

// drawLabel names a recorded draw after the callback context and light.
func drawLabel(args lighting.CallbackArgs) string {
	if args.Light == nil {
		return args.Context
	}
	return fmt.Sprintf("%s.%s.%d", args.Light.Name(), args.Context, args.Pass)
}

// fill draws the casters of a shadow or reflective shadow map pass.
func (s *scene) fill(args lighting.CallbackArgs) lighting.Result {
	if args.Visibility == nil {
		return lighting.Failed("no visibility set for " + args.Context)
	}
	s.Renderer().Draw(drawLabel(args), uint32(args.Visibility.Len()))
	return lighting.Ok()
}

// processLight draws the receivers of a lighting pass. Forward passes carry
// no set of their own and shade what the camera sees.
func (s *scene) processLight(args lighting.CallbackArgs) lighting.Result {
	if args.Context == lighting.ContextFillShadowMap {
		return s.fill(args)
	}
	set := args.Visibility
	if set == nil {
		set = s.visible
	}
	s.Renderer().Draw(drawLabel(args), uint32(set.Len()))
	return lighting.Ok()
}

func (s *scene) setupLighting(args lighting.CallbackArgs) lighting.Result {
	s.log.V(2).Info("lighting inputs", "context", args.Context)
	return lighting.Ok()
}

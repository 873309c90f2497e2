// Package grid keeps the task queue of a radiance grid cascade: it tracks the
// grid volume around the camera, decides which lights reach it, and schedules
// the reflective shadow map refreshes and integration steps the lighting
// manager and the grid's integrator run frame by frame.
package grid

import (
	"fmt"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxy-shadow/common"
	"github.com/Carmen-Shannon/oxy-shadow/engine/camera"
	"github.com/Carmen-Shannon/oxy-shadow/engine/frame"
	"github.com/Carmen-Shannon/oxy-shadow/engine/lighting/shadow"
	"github.com/Carmen-Shannon/oxy-shadow/engine/renderer"
	"github.com/chewxy/math32"
	"github.com/go-logr/logr"
)

// warmupFrames is the number of frames during which the dynamic grid is
// refreshed every frame to hide startup popping.
const warmupFrames = 30

// Grid is one cascade of a radiance grid.
type Grid interface {
	// Name returns the grid's display name.
	//
	// Returns:
	//   - string: "RadianceGrid[<cascade>]"
	Name() string

	// Cascade returns the cascade index, 0 being the finest.
	//
	// Returns:
	//   - int: the cascade index
	Cascade() int

	// Method returns the indirect method the grid serves.
	//
	// Returns:
	//   - shadow.IndirectMethod: the method
	Method() shadow.IndirectMethod

	// CellSize returns the world size of one cell.
	//
	// Returns:
	//   - float32: the cell size
	CellSize() float32

	// Bounds returns the world volume computed by the last Update.
	//
	// Returns:
	//   - common.BoundingBox: the grid volume
	Bounds() common.BoundingBox

	// CellShift returns how many cells the volume moved in the last Update.
	//
	// Returns:
	//   - [3]float32: the shift per axis
	CellShift() [3]float32

	// IsDirty reports whether the last Update moved the volume.
	//
	// Returns:
	//   - bool: true if the grid moved
	IsDirty() bool

	// IsStaticDirty reports whether the last AddLights changed the static light set.
	//
	// Returns:
	//   - bool: true if a full static refresh was scheduled
	IsStaticDirty() bool

	// IsDynamicDirty reports whether a dynamic gather or injection ran since the last Update.
	//
	// Returns:
	//   - bool: true if the dynamic grid changed this frame
	IsDynamicDirty() bool

	// Update snaps the grid volume to the camera. The volume is offset along
	// the view direction so that only the padding cells lie behind the camera.
	//
	// Parameters:
	//   - cam: the scene camera
	//   - snap: the snapping step, or 0 to snap to the cell size
	Update(cam camera.Camera, snap float32)

	// AffectsGrid reports whether a light contributes to the current volume.
	//
	// Parameters:
	//   - l: the light
	//
	// Returns:
	//   - bool: true if the light must be gathered
	AffectsGrid(l Light) bool

	// AddLights replaces the grid's light lists with the lights that affect it
	// and schedules static refreshes and reprojections as needed.
	//
	// Parameters:
	//   - static: lights that have not changed recently
	//   - dynamic: lights that changed recently
	AddLights(static, dynamic []Light)

	// Lights returns the static or dynamic light list.
	//
	// Parameters:
	//   - static: which list to return
	//
	// Returns:
	//   - []Light: a copy of the list
	Lights(static bool) []Light

	// Tasks returns a copy of the queued tasks.
	//
	// Returns:
	//   - []Task: the queue
	Tasks() []Task

	// AddTask queues a task unless an identical one is already queued. The
	// light end index is clamped to the light list.
	//
	// Parameters:
	//   - t: the task
	//
	// Returns:
	//   - bool: false if the task was already queued
	AddTask(t Task) bool

	// TakeTasks removes and returns the queued tasks of the given types due on a frame.
	//
	// Parameters:
	//   - f: the frame
	//   - types: the task types to take
	//
	// Returns:
	//   - []Task: the removed tasks in queue order
	TakeTasks(f int64, types ...TaskType) []Task

	// ProcessTasks runs and removes every task due on the current frame.
	// Dynamic gathers reschedule the next dynamic refresh.
	//
	// Returns:
	//   - bool: false if an integration step failed
	ProcessTasks() bool
}

type gridImpl struct {
	mu         *sync.Mutex
	ctx        *frame.Context
	log        logr.Logger
	integrator Integrator

	name                string
	method              shadow.IndirectMethod
	cascade             int
	dimensions          [3]int32
	cellSize            float32
	padding             int32
	dynamicUpdateFrames int64

	bounds common.BoundingBox
	shift  [3]float32

	static  []Light
	dynamic []Light
	tasks   []Task

	gridDirty          bool
	staticDirty        bool
	dynamicDirty       bool
	dynamicInitialized bool
}

var _ Grid = &gridImpl{}

// NewGrid creates a radiance grid cascade and queues its initial refreshes:
// a full static and dynamic gather on frame 1, and a staggered dynamic
// refresh on frame 2 + cascade. Propagation volumes treat every light as
// dynamic and inject and propagate instead of gathering.
//
// Parameters:
//   - ctx: the frame context supplying the renderer, clock and logger
//   - method: the indirect method the grid serves
//   - options: functional options configuring the grid
//
// Returns:
//   - Grid: the new grid
func NewGrid(ctx *frame.Context, method shadow.IndirectMethod, options ...GridBuilderOption) Grid {
	if ctx == nil || ctx.Renderer == nil {
		panic("grid: a radiance grid requires a frame context with a Renderer")
	}
	g := &gridImpl{
		mu:                  &sync.Mutex{},
		ctx:                 ctx,
		log:                 ctx.Logger.WithName("grid"),
		method:              method,
		dimensions:          [3]int32{32, 32, 32},
		cellSize:            1,
		padding:             1,
		dynamicUpdateFrames: 15,
		bounds:              common.EmptyBoundingBox(),
	}
	for _, option := range options {
		option(g)
	}
	if g.integrator == nil {
		g.integrator = NewRendererIntegrator(ctx.Renderer)
	}
	g.name = fmt.Sprintf("RadianceGrid[%d]", g.cascade)

	stagger := int64(1 + g.cascade + 1)
	if method.Base() == shadow.IndirectPropagationVolumes {
		for _, f := range []int64{1, stagger} {
			g.schedule(f, false, TaskReassignRSMs, TaskFillRSMs, TaskInjectRSMs, TaskPropagate)
		}
	} else {
		g.schedule(1, true, TaskReassignRSMs, TaskFillRSMs, TaskGatherRSMs)
		for _, f := range []int64{1, stagger} {
			g.schedule(f, false, TaskReassignRSMs, TaskFillRSMs, TaskGatherRSMs)
		}
	}
	return g
}

func (g *gridImpl) Name() string {
	return g.name
}

func (g *gridImpl) Cascade() int {
	return g.cascade
}

func (g *gridImpl) Method() shadow.IndirectMethod {
	return g.method
}

func (g *gridImpl) CellSize() float32 {
	return g.cellSize
}

func (g *gridImpl) Bounds() common.BoundingBox {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.bounds
}

func (g *gridImpl) CellShift() [3]float32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.shift
}

func (g *gridImpl) IsDirty() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gridDirty
}

func (g *gridImpl) IsStaticDirty() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.staticDirty
}

func (g *gridImpl) IsDynamicDirty() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dynamicDirty
}

func (g *gridImpl) isPropagation() bool {
	return g.method.Base() == shadow.IndirectPropagationVolumes
}

// gridExtents places the grid along one axis so that at least padding cells
// lie behind the camera when it looks down the axis.
func gridExtents(pos, dir, size float32, cells, padding int32) (lo, hi float32) {
	half := cells / 2
	n := half - int32(dir*float32(padding-half))
	n = min(n, cells-padding)
	n = max(n, padding)
	hi = pos + float32(n)*(size/float32(cells))
	return hi - size, hi
}

func (g *gridImpl) Update(cam camera.Camera, snap float32) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if snap <= 0 {
		snap = g.cellSize
	}
	g.gridDirty, g.staticDirty, g.dynamicDirty = false, false, false

	prev := g.bounds
	pos := cam.Position()
	dir := cam.Direction()
	next := g.bounds
	for axis := range 3 {
		snapped := math32.Floor(pos[axis]/snap) * snap
		size := float32(g.dimensions[axis]) * g.cellSize
		next.Min[axis], next.Max[axis] = gridExtents(snapped, dir[axis], size, g.dimensions[axis], g.padding)
	}
	g.bounds = next

	g.shift = [3]float32{}
	if prev.IsEmpty() {
		g.gridDirty = true
		return
	}
	for axis := range 3 {
		delta := next.Min[axis] - prev.Min[axis]
		if math32.Abs(delta) > 1e-5 {
			g.gridDirty = true
		}
		g.shift[axis] = delta / g.cellSize
	}
	if g.gridDirty {
		g.log.V(1).Info("grid moved", "grid", g.name, "shift", g.shift)
	}
}

func (g *gridImpl) AffectsGrid(l Light) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.affects(l)
}

func (g *gridImpl) affects(l Light) bool {
	hdr := g.ctx.Renderer.SystemState(renderer.StateHDRLighting) > 0
	return AffectsBounds(l, g.bounds, hdr)
}

func (g *gridImpl) AddLights(static, dynamic []Light) {
	g.mu.Lock()
	defer g.mu.Unlock()

	previous := make(map[uint64]struct{}, len(g.static))
	for _, l := range g.static {
		previous[l.ID()] = struct{}{}
	}

	g.static, g.dynamic = g.static[:0], g.dynamic[:0]
	added := 0
	for _, l := range static {
		if !g.affects(l) {
			continue
		}
		g.static = append(g.static, l)
		if _, ok := previous[l.ID()]; !ok {
			added++
		}
	}
	for _, l := range dynamic {
		if g.affects(l) {
			g.dynamic = append(g.dynamic, l)
		}
	}

	if g.isPropagation() {
		g.dynamic = append(g.dynamic, g.static...)
		g.static = g.static[:0]
		return
	}

	f := g.ctx.Frame()
	g.staticDirty = added > 0 || len(g.static) != len(previous)
	if g.staticDirty {
		g.log.V(1).Info("static lights changed", "grid", g.name, "static", len(g.static), "added", added)
		g.schedule(f, true, TaskReassignRSMs, TaskFillRSMs, TaskGatherRSMs)
	}
	if g.gridDirty && f > 1 {
		if len(g.static) > 0 && !g.staticDirty {
			g.schedule(f, true, TaskReassignRSMs, TaskFillRSMs, TaskReprojectGrid)
		}
		if len(g.dynamic) > 0 {
			g.schedule(f, false, TaskReassignRSMs, TaskFillRSMs, TaskReprojectGrid)
		}
	}
}

func (g *gridImpl) Lights(static bool) []Light {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.lights(static))
}

func (g *gridImpl) lights(static bool) []Light {
	if static {
		return g.static
	}
	return g.dynamic
}

func (g *gridImpl) Tasks() []Task {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.tasks)
}

func (g *gridImpl) AddTask(t Task) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addTask(t)
}

func (g *gridImpl) addTask(t Task) bool {
	t.LightEnd = max(0, min(t.LightEnd, len(g.lights(t.Static))-1))
	if slices.ContainsFunc(g.tasks, t.matches) {
		return false
	}
	g.tasks = append(g.tasks, t)
	return true
}

func (g *gridImpl) schedule(f int64, static bool, types ...TaskType) {
	for _, typ := range types {
		g.addTask(Task{Type: typ, Frame: f, Static: static, LightEnd: AllLights})
	}
}

func (g *gridImpl) TakeTasks(f int64, types ...TaskType) []Task {
	g.mu.Lock()
	defer g.mu.Unlock()

	var taken []Task
	g.tasks = slices.DeleteFunc(g.tasks, func(t Task) bool {
		if t.Frame != f || !slices.Contains(types, t.Type) {
			return false
		}
		taken = append(taken, t)
		return true
	})
	return taken
}

func (g *gridImpl) ProcessTasks() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	f := g.ctx.Frame()
	var due []Task
	g.tasks = slices.DeleteFunc(g.tasks, func(t Task) bool {
		if t.Frame != f {
			return false
		}
		due = append(due, t)
		return true
	})

	ok := true
	for _, t := range due {
		if !g.processTask(t) {
			g.log.Error(nil, "radiance grid task failed", "grid", g.name, "task", t.Type.String(), "static", t.Static, "frame", t.Frame)
			ok = false
		}
	}
	return ok
}

func (g *gridImpl) processTask(t Task) bool {
	lights := g.lights(t.Static)
	switch t.Type {
	case TaskGatherRSMs, TaskInjectRSMs:
		ok := true
		if len(lights) > 0 {
			if !t.Static {
				g.dynamicDirty = true
			}
			if g.isPropagation() {
				ok = g.integrator.Inject(g.volume(), lights, t.Static)
			} else {
				ok = g.integrator.Gather(g.volume(), lights, t.Static)
			}
		}
		if !t.Static {
			if g.dynamicInitialized {
				g.rescheduleDynamic(t.Frame)
			}
			g.dynamicInitialized = true
		}
		return ok
	case TaskReprojectGrid:
		return g.integrator.Reproject(g.volume(), lights, t.Static)
	case TaskPropagate:
		return g.integrator.Propagate(g.volume(), t.Static)
	}
	return true
}

func (g *gridImpl) volume() Volume {
	return Volume{
		Name:       g.name,
		Cascade:    g.cascade,
		Bounds:     g.bounds,
		Dimensions: g.dimensions,
		CellSize:   g.cellSize,
		Shift:      g.shift,
	}
}

// rescheduleDynamic queues the next dynamic refresh. The maps are refilled
// one frame before the gather, or on the gather frame itself when refreshing
// every frame, since the manager drains its fills before the grid runs.
func (g *gridImpl) rescheduleDynamic(from int64) {
	rate := g.dynamicUpdateFrames
	if g.ctx.Frame() < warmupFrames {
		rate = 1
	}
	rate = max(rate, 1)
	fill := from + max(rate-1, 1)
	g.schedule(fill, false, TaskReassignRSMs, TaskFillRSMs)
	if g.isPropagation() {
		g.schedule(from+rate, false, TaskInjectRSMs, TaskPropagate)
	} else {
		g.schedule(from+rate, false, TaskGatherRSMs)
	}
}

package engine

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-shadow/engine/profiler"
	"github.com/Carmen-Shannon/oxy-shadow/engine/scene"
	"github.com/go-logr/logr"
)

// engine implements the Engine interface.
// Drives the registered scenes one lighting frame per tick.
type engine struct {
	mu *sync.Mutex

	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	running bool
	log     logr.Logger

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	profiler         *profiler.Profiler
	profilingEnabled bool

	engineTickRate time.Duration
	paced          bool
	frameBudget    int
	tickCallback   func(deltaTime float32)
	frameCallback  func(key int, stats scene.FrameStats)

	scenes map[int]scene.Scene
}

// Engine is the main entry point for the engine.
// It runs the frame loop that steps every active scene's lighting pipeline.
type Engine interface {
	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// Profiler returns the profiler the engine ticks. Lighting managers built
	// with it report their section timings in the same log line.
	//
	// Returns:
	//   - *profiler.Profiler: the profiler
	Profiler() *profiler.Profiler

	// SetTickRate sets the engine tick rate in frames per second.
	// Each frame advances the scene clocks by one tick.
	//
	// Parameters:
	//   - fps: target frames per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetFrameBudget sets how many frames Run executes before returning.
	//
	// Parameters:
	//   - frames: the frame count, 0 to run until the context ends
	SetFrameBudget(frames int)

	// SetTickCallback registers the function called before each frame.
	// Use this for moving lights and objects between frames.
	//
	// Parameters:
	//   - callback: function receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetFrameCallback registers the function called after each scene frame.
	//
	// Parameters:
	//   - callback: function receiving the scene key and the frame stats
	SetFrameCallback(callback func(key int, stats scene.FrameStats))

	// AddScene registers a scene at the given z-index key.
	// Scenes are stepped in ascending key order.
	//
	// Parameters:
	//   - key: the z-index determining frame order (lower runs first)
	//   - s: the Scene to register
	AddScene(key int, s scene.Scene)

	// RemoveScene removes the scene at the given z-index key.
	//
	// Parameters:
	//   - key: the z-index of the scene to remove
	RemoveScene(key int)

	// Scene retrieves the scene registered at the given z-index key.
	// Returns nil if no scene exists at that key.
	//
	// Parameters:
	//   - key: the z-index of the scene to retrieve
	//
	// Returns:
	//   - scene.Scene: the scene at the key, or nil if not found
	Scene(key int) scene.Scene

	// Scenes returns a copy of all registered scenes keyed by z-index.
	//
	// Returns:
	//   - map[int]scene.Scene: a copy of the scenes map
	Scenes() map[int]scene.Scene

	// Run executes frames until the frame budget is spent, Quit is called or
	// ctx ends. Paced engines wait for the tick between frames, unpaced
	// engines run frames back to back with the same fixed delta.
	//
	// Parameters:
	//   - ctx: the context bounding the loop
	//
	// Returns:
	//   - error: ctx's error if it ended the loop, or the panic a frame raised
	Run(ctx context.Context) error

	// Quit signals the frame loop to stop.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()
}

// NewEngine creates a new Engine instance with the provided options.
// The engine ticks at 60Hz, paced, with no frame budget.
//
// Parameters:
//   - options: functional options for engine configuration (profiling, tick rate, etc.)
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(options ...EngineBuilderOption) Engine {
	e := &engine{
		mu:              &sync.Mutex{},
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		scenes:          make(map[int]scene.Scene),
		log:             logr.Discard(),
		profiler:        profiler.NewProfiler(),
		engineTickRate:  time.Second / 60,
		paced:           true,
	}

	for _, opt := range options {
		opt(e)
	}
	return e
}

func (e *engine) Profiler() *profiler.Profiler {
	return e.profiler
}

// Quit signals the frame loop to stop.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
	})
}

func (e *engine) Run(ctx context.Context) (err error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine is already running")
	}
	e.running = true
	rate, budget, paced := e.engineTickRate, e.frameBudget, e.paced
	e.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("frame loop recovered from panic: %v", r)
			e.log.Error(err, "frame loop stopped")
		}
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	ticker := time.NewTicker(rate)
	defer ticker.Stop()

	for frames := 0; budget == 0 || frames < budget; frames++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.quitChannel:
			return nil
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			rate = newRate
		default:
		}

		if paced {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-e.quitChannel:
				return nil
			case <-ticker.C:
			}
		}
		e.frame(rate.Seconds())
	}
	return nil
}

// frame runs the tick callback and one frame of every active scene in
// ascending z-index order.
func (e *engine) frame(dt float64) {
	e.mu.Lock()
	keys := slices.Sorted(maps.Keys(e.scenes))
	scenes := make([]scene.Scene, 0, len(keys))
	for _, k := range keys {
		scenes = append(scenes, e.scenes[k])
	}
	tick, onFrame := e.tickCallback, e.frameCallback
	profiling := e.profilingEnabled
	e.mu.Unlock()

	if tick != nil {
		tick(float32(dt))
	}
	for i, s := range scenes {
		if !s.Active() {
			continue
		}
		stats := s.Frame(dt)
		if onFrame != nil {
			onFrame(keys[i], stats)
		}
	}
	if profiling && e.profiler != nil {
		e.profiler.Tick()
	}
}

// EnableProfiler enables performance profiling output to the log.
func (e *engine) EnableProfiler() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profilingEnabled = true
}

// DisableProfiler disables performance profiling output.
func (e *engine) DisableProfiler() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profilingEnabled = false
}

// SetTickRate sets the engine tick rate in frames per second.
// If the engine is running, the change takes effect on the next frame.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	e.mu.Lock()
	running := e.running
	if !running {
		e.engineTickRate = newRate
	}
	e.mu.Unlock()
	if !running {
		return
	}

	// Non-blocking send - if channel is full, replace the pending value
	select {
	case e.tickRateChannel <- newRate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- newRate
	}
}

func (e *engine) SetFrameBudget(frames int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frameBudget = max(frames, 0)
}

// SetTickCallback registers the function called before each frame.
func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tickCallback = callback
}

func (e *engine) SetFrameCallback(callback func(key int, stats scene.FrameStats)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frameCallback = callback
}

func (e *engine) AddScene(key int, s scene.Scene) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scenes[key] = s
}

func (e *engine) RemoveScene(key int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.scenes, key)
}

func (e *engine) Scene(key int) scene.Scene {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scenes[key]
}

func (e *engine) Scenes() map[int]scene.Scene {
	e.mu.Lock()
	defer e.mu.Unlock()
	return maps.Clone(e.scenes)
}

package engine

import (
	"time"

	"github.com/Carmen-Shannon/oxy-shadow/engine/profiler"
	"github.com/Carmen-Shannon/oxy-shadow/engine/scene"
	"github.com/go-logr/logr"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithProfiling enables or disables performance profiling output.
//
// Parameters:
//   - enabled: if true, enables performance profiling
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled = enabled
	}
}

// WithProfiler replaces the engine's profiler.
//
// Parameters:
//   - p: the profiler
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiler(p *profiler.Profiler) EngineBuilderOption {
	return func(e *engine) {
		if p != nil {
			e.profiler = p
		}
	}
}

// WithLogger sets the engine logger.
//
// Parameters:
//   - l: the logger
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithLogger(l logr.Logger) EngineBuilderOption {
	return func(e *engine) {
		e.log = l.WithName("engine")
	}
}

// WithTickRate sets the engine tick rate in frames per second.
// Values <= 0 will be treated as the default (60Hz).
//
// Parameters:
//   - fps: target ticks per second (default 60)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTickRate(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			fps = 60.0
		}
		e.engineTickRate = time.Duration(float64(time.Second) / fps)
	}
}

// WithPacing sets whether Run waits for the tick between frames. Unpaced
// engines still advance scene clocks by one tick per frame.
//
// Parameters:
//   - paced: false to run frames back to back
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithPacing(paced bool) EngineBuilderOption {
	return func(e *engine) {
		e.paced = paced
	}
}

// WithFrameBudget sets how many frames Run executes before returning.
//
// Parameters:
//   - frames: the frame count, 0 to run until the context ends
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithFrameBudget(frames int) EngineBuilderOption {
	return func(e *engine) {
		e.frameBudget = max(frames, 0)
	}
}

// WithScene registers a scene at the given z-index key during engine construction.
// Scenes are stepped in ascending key order.
//
// Parameters:
//   - key: the z-index determining frame order (lower runs first)
//   - s: the Scene to register
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithScene(key int, s scene.Scene) EngineBuilderOption {
	return func(e *engine) {
		e.scenes[key] = s
	}
}

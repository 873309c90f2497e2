package scene

import (
	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-shadow/engine/game_object"
	"github.com/Carmen-Shannon/oxy-shadow/engine/light"
	"github.com/Carmen-Shannon/oxy-shadow/engine/lighting"
	"github.com/go-logr/logr"
)

// SceneBuilderOption is a functional option for configuring a Scene.
// Use the With* functions to create options.
type SceneBuilderOption func(s *scene)

// WithActive sets whether the scene is active for rendering.
//
// Parameters:
//   - active: whether the scene is active
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithActive(active bool) SceneBuilderOption {
	return func(s *scene) {
		s.active = active
	}
}

// WithLogger sets the scene logger. The default is the manager's context logger.
//
// Parameters:
//   - l: the logger
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithLogger(l logr.Logger) SceneBuilderOption {
	return func(s *scene) {
		s.log = l.WithName("scene")
	}
}

// WithObjects adds initial objects to the scene.
// Objects without IDs will be assigned new IDs, and attached lights are added.
//
// Parameters:
//   - objects: the objects to add
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithObjects(objects ...game_object.GameObject) SceneBuilderOption {
	return func(s *scene) {
		s.pending = append(s.pending, objects...)
	}
}

// WithLights adds initial lights to the scene.
//
// Parameters:
//   - lights: the lights to add
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithLights(lights ...light.Light) SceneBuilderOption {
	return func(s *scene) {
		for _, l := range lights {
			if l != nil {
				s.lights = append(s.lights, l)
			}
		}
	}
}

// WithLightingOptions sets how lights are processed. The default applies
// shadows with forward lighting in world space.
//
// Parameters:
//   - opts: the lighting options
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithLightingOptions(opts lighting.LightingOptions) SceneBuilderOption {
	return func(s *scene) {
		s.lighting = opts
	}
}

// WithComputeWorkers sets the number of worker goroutines camera culling is
// spread over. Defaults to runtime.NumCPU()-1.
//
// Parameters:
//   - n: the number of compute workers (minimum 1)
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithComputeWorkers(n int) SceneBuilderOption {
	return func(s *scene) {
		if n < 1 {
			n = 1
		}
		s.computeWorkers = n
	}
}

// WithCullingDisabled disables camera frustum culling for the scene. When set
// to true every renderable object counts as visible to the camera.
// By default culling is enabled (disabled = false).
//
// Parameters:
//   - disabled: true to disable frustum culling, false to enable it (default)
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithCullingDisabled(disabled bool) SceneBuilderOption {
	return func(s *scene) {
		s.cullingDisabled = disabled
	}
}

// WithWorkerPool shares an existing worker pool for camera culling, typically
// the one the scene's lights cull their casters on. WithComputeWorkers is
// ignored when a pool is given.
//
// Parameters:
//   - p: the worker pool
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithWorkerPool(p worker.DynamicWorkerPool) SceneBuilderOption {
	return func(s *scene) {
		s.computePool = p
	}
}

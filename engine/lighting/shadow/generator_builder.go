package shadow

import (
	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-shadow/engine/renderer"
	"github.com/go-logr/logr"
)

// GeneratorBuilderOption is a function that configures a generator during construction.
type GeneratorBuilderOption func(*generatorImpl)

// WithLogger is an option builder that sets the generator's logger.
//
// Parameters:
//   - l: the logger
//
// Returns:
//   - GeneratorBuilderOption: a function that applies the logger option to a generatorImpl
func WithLogger(l logr.Logger) GeneratorBuilderOption {
	return func(g *generatorImpl) {
		g.log = l.WithName("generator")
	}
}

// WithSlots is an option builder that sets the shader slots the read pass binds.
//
// Parameters:
//   - s: the slot layout; negative slots disable the features that need them
//
// Returns:
//   - GeneratorBuilderOption: a function that applies the slots option to a generatorImpl
func WithSlots(s Slots) GeneratorBuilderOption {
	return func(g *generatorImpl) {
		g.slots = s
	}
}

// WithLightingConstants is an option builder that sets the receiver of the
// texture projection matrix uploaded by BeginRead.
//
// Parameters:
//   - lc: the lighting constants, usually the lighting manager
//
// Returns:
//   - GeneratorBuilderOption: a function that applies the option to a generatorImpl
func WithLightingConstants(lc LightingConstants) GeneratorBuilderOption {
	return func(g *generatorImpl) {
		g.lighting = lc
	}
}

// WithFrustumIndex is an option builder that sets the index of the light
// frustum the generator serves, used in its name.
//
// Parameters:
//   - i: the frustum index
//
// Returns:
//   - GeneratorBuilderOption: a function that applies the option to a generatorImpl
func WithFrustumIndex(i int) GeneratorBuilderOption {
	return func(g *generatorImpl) {
		g.frustum = i
	}
}

// WithWorkerPool is an option builder that lets the visibility set cull on a worker pool.
//
// Parameters:
//   - p: the worker pool
//
// Returns:
//   - GeneratorBuilderOption: a function that applies the option to a generatorImpl
func WithWorkerPool(p worker.DynamicWorkerPool) GeneratorBuilderOption {
	return func(g *generatorImpl) {
		g.workers = p
	}
}

// WithRandomTexture is an option builder that sets the rotation texture a
// reflective shadow map read binds to the random slot.
//
// Parameters:
//   - h: the texture
//
// Returns:
//   - GeneratorBuilderOption: a function that applies the option to a generatorImpl
func WithRandomTexture(h renderer.TextureHandle) GeneratorBuilderOption {
	return func(g *generatorImpl) {
		g.randomTexture = h
	}
}

// WithMaskCachedOnly is an option builder that refuses Shared edge maps. A
// generator that receives one runs without its edge mask for that frame.
//
// Parameters:
//   - cachedOnly: true to refuse Shared edge maps
//
// Returns:
//   - GeneratorBuilderOption: a function that applies the option to a generatorImpl
func WithMaskCachedOnly(cachedOnly bool) GeneratorBuilderOption {
	return func(g *generatorImpl) {
		g.maskCachedOnly = cachedOnly
	}
}

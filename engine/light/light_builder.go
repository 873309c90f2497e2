package light

import (
	"slices"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-shadow/common"
	"github.com/Carmen-Shannon/oxy-shadow/engine/lighting"
	"github.com/Carmen-Shannon/oxy-shadow/engine/lighting/shadow"
	"github.com/chewxy/math32"
	"github.com/go-logr/logr"
)

// LightBuilderOption is a function that configures a Light instance during construction.
type LightBuilderOption func(*lightImpl)

// WithName is an option builder that sets the display name of the light.
// The default is the light type followed by its id.
//
// Parameters:
//   - name: the name
//
// Returns:
//   - LightBuilderOption: a function that applies the name option to a lightImpl
func WithName(name string) LightBuilderOption {
	return func(l *lightImpl) {
		l.name = name
	}
}

// WithLogger is an option builder that sets the logger of the light and its generators.
//
// Parameters:
//   - log: the logger
//
// Returns:
//   - LightBuilderOption: a function that applies the logger option to a lightImpl
func WithLogger(log logr.Logger) LightBuilderOption {
	return func(l *lightImpl) {
		l.log = log.WithName("light")
	}
}

// WithPosition is an option builder that sets the world-space position of the light.
//
// Parameters:
//   - x: the x position component
//   - y: the y position component
//   - z: the z position component
//
// Returns:
//   - LightBuilderOption: a function that applies the position option to a lightImpl
func WithPosition(x, y, z float32) LightBuilderOption {
	return func(l *lightImpl) {
		l.position = [3]float32{x, y, z}
	}
}

// WithDirection is an option builder that sets the direction of the light.
// The direction is normalized before storing.
//
// Parameters:
//   - x: the x direction component
//   - y: the y direction component
//   - z: the z direction component
//
// Returns:
//   - LightBuilderOption: a function that applies the direction option to a lightImpl
func WithDirection(x, y, z float32) LightBuilderOption {
	return func(l *lightImpl) {
		l.direction = common.Normalize3([3]float32{x, y, z})
	}
}

// WithColor is an option builder that sets the RGB diffuse color of the light.
//
// Parameters:
//   - r: the red color component
//   - g: the green color component
//   - b: the blue color component
//
// Returns:
//   - LightBuilderOption: a function that applies the color option to a lightImpl
func WithColor(r, g, b float32) LightBuilderOption {
	return func(l *lightImpl) {
		l.color = [3]float32{r, g, b}
	}
}

// WithIntensity is an option builder that sets the HDR multiplier of the diffuse color.
//
// Parameters:
//   - intensity: the intensity value
//
// Returns:
//   - LightBuilderOption: a function that applies the intensity option to a lightImpl
func WithIntensity(intensity float32) LightBuilderOption {
	return func(l *lightImpl) {
		l.hdrScale = intensity
	}
}

// WithAmbientFarHDRScale is an option builder that sets the far ambient
// multiplier radiance grids weigh the light with.
//
// Parameters:
//   - scale: the multiplier
//
// Returns:
//   - LightBuilderOption: a function that applies the ambient option to a lightImpl
func WithAmbientFarHDRScale(scale float32) LightBuilderOption {
	return func(l *lightImpl) {
		l.ambientFar = scale
	}
}

// WithRange is an option builder that sets the attenuation ranges for point
// and spot lights.
//
// Parameters:
//   - inner: the distance up to which the light is not attenuated
//   - outer: the distance past which the light has no effect
//
// Returns:
//   - LightBuilderOption: a function that applies the range option to a lightImpl
func WithRange(inner, outer float32) LightBuilderOption {
	return func(l *lightImpl) {
		l.outerRange = max(outer, 0)
		l.innerRange = max(0, min(inner, l.outerRange))
	}
}

// WithSpotCone is an option builder that sets the full inner and outer cone
// angles of a spot light in degrees. The outer angle is also the field of view
// of the light's shadow frustum.
//
// Parameters:
//   - innerDeg: inner cone angle in degrees
//   - outerDeg: outer cone angle in degrees
//
// Returns:
//   - LightBuilderOption: a function that applies the spot cone option to a lightImpl
func WithSpotCone(innerDeg, outerDeg float32) LightBuilderOption {
	return func(l *lightImpl) {
		l.innerCone, l.outerCone = innerDeg, outerDeg
	}
}

// WithFalloff is an option builder that sets the spot cone falloff exponent.
//
// Parameters:
//   - falloff: the exponent
//
// Returns:
//   - LightBuilderOption: a function that applies the falloff option to a lightImpl
func WithFalloff(falloff float32) LightBuilderOption {
	return func(l *lightImpl) {
		l.falloff = falloff
	}
}

// WithEnabled is an option builder that sets whether the light is active for rendering.
//
// Parameters:
//   - enabled: true to enable the light
//
// Returns:
//   - LightBuilderOption: a function that applies the enabled option to a lightImpl
func WithEnabled(enabled bool) LightBuilderOption {
	return func(l *lightImpl) {
		l.enabled = enabled
	}
}

// WithCastsShadows is an option builder that sets whether the light is eligible for
// shadow map generation. Point lights ignore it.
//
// Parameters:
//   - castsShadows: true to enable shadow casting
//
// Returns:
//   - LightBuilderOption: a function that applies the shadow casting option to a lightImpl
func WithCastsShadows(castsShadows bool) LightBuilderOption {
	return func(l *lightImpl) {
		l.castsShadows = castsShadows
	}
}

// WithStages is an option builder that sets when the light's lighting and
// shadows are produced. Both default to runtime.
//
// Parameters:
//   - lightingStage: the lighting stage
//   - shadowStage: the shadow stage
//
// Returns:
//   - LightBuilderOption: a function that applies the stage option to a lightImpl
func WithStages(lightingStage, shadowStage lighting.Stage) LightBuilderOption {
	return func(l *lightImpl) {
		l.lightingStage, l.shadowStage = lightingStage, shadowStage
	}
}

// WithShadowLODs is an option builder that maps system LODs to shadow settings
// entries. settings[i] tunes the entry selected through lods[i]; missing
// tunings use shadow.DefaultSettingsLight.
//
// Parameters:
//   - lods: the LOD to entry mapping
//   - settings: the per LOD light tuning
//
// Returns:
//   - LightBuilderOption: a function that applies the shadow LOD option to a lightImpl
func WithShadowLODs(lods []shadow.LOD, settings ...shadow.SettingsLight) LightBuilderOption {
	return func(l *lightImpl) {
		l.shadowLODs = slices.Clone(lods)
		l.shadowSettings = slices.Clone(settings)
	}
}

// WithIndirectLODs is an option builder that maps indirect system LODs to
// reflective shadow map entries. A light without indirect LODs is not an
// indirect source.
//
// Parameters:
//   - lods: the LOD to entry mapping
//   - settings: the per LOD light tuning, whose Intensity enables the light
//
// Returns:
//   - LightBuilderOption: a function that applies the indirect LOD option to a lightImpl
func WithIndirectLODs(lods []shadow.LOD, settings ...shadow.SettingsLight) LightBuilderOption {
	return func(l *lightImpl) {
		l.indirectLODs = slices.Clone(lods)
		l.indirectSettings = slices.Clone(settings)
	}
}

// WithShadowFade is an option builder that sets the camera distance range
// over which shadows fade out. Past maxDistance the light stops casting.
//
// Parameters:
//   - minDistance: the distance the fade starts at
//   - maxDistance: the distance the fade ends at
//
// Returns:
//   - LightBuilderOption: a function that applies the fade option to a lightImpl
func WithShadowFade(minDistance, maxDistance float32) LightBuilderOption {
	return func(l *lightImpl) {
		l.shadowFade = fade{Min: minDistance, Max: maxDistance}
	}
}

// WithShadowLODFade is an option builder that sets the camera distance range
// over which the shadow LOD scale falls from 1 to 0.
//
// Parameters:
//   - minDistance: the distance the scale starts falling at
//   - maxDistance: the distance the scale reaches 0 at
//
// Returns:
//   - LightBuilderOption: a function that applies the LOD fade option to a lightImpl
func WithShadowLODFade(minDistance, maxDistance float32) LightBuilderOption {
	return func(l *lightImpl) {
		l.shadowLODFade = fade{Min: minDistance, Max: maxDistance}
	}
}

// WithShadowDistance is an option builder that sets how far along the scene
// camera a directional light's shadows reach. The default is 100.
//
// Parameters:
//   - d: the distance, or 0 for the camera far plane
//
// Returns:
//   - LightBuilderOption: a function that applies the distance option to a lightImpl
func WithShadowDistance(d float32) LightBuilderOption {
	return func(l *lightImpl) {
		l.shadowDistance = max(d, 0)
	}
}

// WithWorkerPool is an option builder that lets the light's generators cull
// on a worker pool.
//
// Parameters:
//   - p: the worker pool
//
// Returns:
//   - LightBuilderOption: a function that applies the worker pool option to a lightImpl
func WithWorkerPool(p worker.DynamicWorkerPool) LightBuilderOption {
	return func(l *lightImpl) {
		l.workers = p
	}
}

// cosHalfDeg returns the cosine of half an angle given in degrees.
func cosHalfDeg(deg float32) float32 {
	return math32.Cos(deg * math32.Pi / 360)
}

package renderer

import (
	"github.com/Carmen-Shannon/oxy-shadow/engine/camera"
	"github.com/go-logr/logr"
)

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithCapabilities replaces the device capability profile. The default is DesktopCapabilities.
//
// Parameters:
//   - caps: the capability profile
//
// Returns:
//   - RendererBuilderOption: a function that applies the capabilities option to a renderer
func WithCapabilities(caps Capabilities) RendererBuilderOption {
	return func(r *renderer) {
		r.caps = caps
	}
}

// WithLogger sets the logger used for warnings about rejected commands.
//
// Parameters:
//   - l: the logger
//
// Returns:
//   - RendererBuilderOption: a function that applies the logger option to a renderer
func WithLogger(l logr.Logger) RendererBuilderOption {
	return func(r *renderer) {
		r.log = l.WithName("renderer")
	}
}

// WithCamera sets the initial active camera.
//
// Parameters:
//   - c: the camera
//
// Returns:
//   - RendererBuilderOption: a function that applies the camera option to a renderer
func WithCamera(c camera.Camera) RendererBuilderOption {
	return func(r *renderer) {
		if c != nil {
			r.cam = c
		}
	}
}

// WithFailingFormats makes target creation fail for the given formats even
// though the capability profile reports them as supported. It simulates device
// memory exhaustion.
//
// Parameters:
//   - formats: the formats whose allocations fail
//
// Returns:
//   - RendererBuilderOption: a function that applies the option to a renderer
func WithFailingFormats(formats ...BufferFormat) RendererBuilderOption {
	return func(r *renderer) {
		r.failCreate = append(r.failCreate, formats...)
	}
}

// WithFallbackAdapter makes the WGPU backend request the software fallback
// adapter instead of a hardware one.
//
// Parameters:
//   - force: true to request the fallback adapter
//
// Returns:
//   - RendererBuilderOption: a function that applies the option to a renderer
func WithFallbackAdapter(force bool) RendererBuilderOption {
	return func(r *renderer) {
		r.fallbackAdapter = force
	}
}

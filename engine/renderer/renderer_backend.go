package renderer

import (
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-shadow/common"
	"github.com/cogentcore/webgpu/wgpu"
)

// RendererBackendType identifies the device implementation used by the Renderer.
type RendererBackendType int

const (
	// BackendTypeHeadless selects the recording backend. It creates no device
	// objects and appends every command to an in-memory event log, which makes
	// the lighting pipeline runnable in tests and in the command line tool.
	BackendTypeHeadless RendererBackendType = iota

	// BackendTypeWGPU records like the headless backend and also allocates
	// the targets as WebGPU textures and runs each bound target as a render
	// pass on an offscreen device.
	BackendTypeWGPU
)

func (t RendererBackendType) String() string {
	switch t {
	case BackendTypeHeadless:
		return "headless"
	case BackendTypeWGPU:
		return "wgpu"
	}
	return "unknown"
}

// ParseBackendType converts a backend name into a RendererBackendType.
//
// Parameters:
//   - s: "headless" or "wgpu" in any case, empty for headless
//
// Returns:
//   - RendererBackendType: the backend type
//   - error: an error if the name is unknown
func ParseBackendType(s string) (RendererBackendType, error) {
	if s == "" {
		return BackendTypeHeadless, nil
	}
	for _, t := range []RendererBackendType{BackendTypeHeadless, BackendTypeWGPU} {
		if strings.EqualFold(s, t.String()) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown renderer backend %q", s)
}

// RendererBackend is the device level half of the Renderer. The Renderer
// front end validates calls and tracks bound state; the backend performs
// (or records) the resulting commands.
type RendererBackend interface {
	// CreateTarget allocates a texture for the descriptor.
	//
	// Parameters:
	//   - handle: the handle assigned by the front end
	//   - desc: the texture to create
	//
	// Returns:
	//   - error: an error if the device could not create the texture
	CreateTarget(handle TextureHandle, desc TargetDescriptor) error

	// ReleaseTarget frees a texture created by CreateTarget.
	//
	// Parameters:
	//   - handle: the texture to free
	ReleaseTarget(handle TextureHandle)

	// CreateSampler realises a sampler state.
	//
	// Parameters:
	//   - handle: the handle assigned by the front end
	//   - desc: the sampler configuration
	CreateSampler(handle SamplerHandle, desc common.SamplerStagingData)

	// BeginTarget binds color outputs and a depth buffer.
	//
	// Parameters:
	//   - outputs: the color targets (may be empty for depth-only passes)
	//   - depth: the depth buffer, or the null handle
	BeginTarget(outputs []TextureHandle, depth TextureHandle)

	// EndTarget restores the previously bound outputs.
	EndTarget()

	// Record appends a state or draw command.
	//
	// Parameters:
	//   - ev: the command
	Record(ev Event)

	// ColorWriteMask converts channel indices into a write mask understood by the device.
	//
	// Parameters:
	//   - channels: the channel count to enable starting from red
	//
	// Returns:
	//   - wgpu.ColorWriteMask: the mask
	ColorWriteMask(channels uint32) wgpu.ColorWriteMask

	// Events returns a copy of the recorded command log.
	//
	// Returns:
	//   - []Event: the commands in submission order
	Events() []Event

	// ResetEvents clears the command log.
	ResetEvents()
}

package shadow

import (
	"github.com/Carmen-Shannon/oxy-shadow/engine/lighting/pool"
	"github.com/Carmen-Shannon/oxy-shadow/engine/renderer"
	"github.com/cogentcore/webgpu/wgpu"
)

// Kind distinguishes the two generator variants.
type Kind int

const (
	// KindShadowMap generators fill depth based shadow maps.
	KindShadowMap Kind = 1
	// KindReflectiveShadowMap generators fill depth, normal and color maps for indirect lighting.
	KindReflectiveShadowMap Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindShadowMap:
		return "ShadowMap"
	case KindReflectiveShadowMap:
		return "ReflectiveShadowMap"
	}
	return "Unknown"
}

// DataType returns the pool data type a generator of this kind stores.
func (k Kind) DataType() pool.DataType {
	return pool.DataType(k)
}

// FillResult is the outcome of a fresh resource assignment.
type FillResult uint32

const (
	// FillDoNothing means the pool could not serve the generator at all.
	FillDoNothing FillResult = 0
	// FillCannotFill means a default resource stands in for a Cached one and
	// the maps must not be filled this frame.
	FillCannotFill FillResult = 1 << 0
	// FillCanFill means last frame's resources were recovered; filling is only
	// needed if the generator must regenerate.
	FillCanFill FillResult = 1 << 1
	// FillMustFill means fresh resources were assigned and must be filled.
	FillMustFill FillResult = 1 << 2
)

func (r FillResult) String() string {
	switch r {
	case FillDoNothing:
		return "DoNothing"
	case FillCannotFill:
		return "CannotFill"
	case FillCanFill:
		return "CanFill"
	case FillMustFill:
		return "MustFill"
	}
	return "Unknown"
}

// OpType tags an operation.
type OpType uint32

const (
	OpDrawOpaqueShadowCasters OpType = iota
	OpDrawTransparentShadowCasters
	OpDrawAllShadowCasters
	OpDownsampleDepthMin
	OpDownsampleDepthMax
	OpDownsampleDepthAvg
	OpDownsampleDepthMinMax
	OpComputeEdgeMask
	OpComputeStatistics
	OpMergeColorAndEdge
	OpComputeShadows
)

// Reflectance operations.
const (
	OpWriteGBuffer OpType = iota + 100
	OpReadGBuffer
	OpDownsampleRSMMin
	OpDownsampleRSMMax
	OpDownsampleRSMAvg
	OpMergeDepthNormal
)

func (t OpType) String() string {
	switch t {
	case OpDrawOpaqueShadowCasters:
		return "DrawOpaqueShadowCasters"
	case OpDrawTransparentShadowCasters:
		return "DrawTransparentShadowCasters"
	case OpDrawAllShadowCasters:
		return "DrawAllShadowCasters"
	case OpDownsampleDepthMin:
		return "DownsampleDepthMin"
	case OpDownsampleDepthMax:
		return "DownsampleDepthMax"
	case OpDownsampleDepthAvg:
		return "DownsampleDepthAvg"
	case OpDownsampleDepthMinMax:
		return "DownsampleDepthMinMax"
	case OpComputeEdgeMask:
		return "ComputeEdgeMask"
	case OpComputeStatistics:
		return "ComputeStatistics"
	case OpMergeColorAndEdge:
		return "MergeColorAndEdge"
	case OpComputeShadows:
		return "ComputeShadows"
	case OpWriteGBuffer:
		return "WriteGBuffer"
	case OpReadGBuffer:
		return "ReadGBuffer"
	case OpDownsampleRSMMin:
		return "DownsampleRSMMin"
	case OpDownsampleRSMMax:
		return "DownsampleRSMMax"
	case OpDownsampleRSMAvg:
		return "DownsampleRSMAvg"
	case OpMergeDepthNormal:
		return "MergeDepthNormal"
	}
	return "Unknown"
}

// Input binds a texture and sampler to a shader slot.
type Input struct {
	Slot    int32
	Texture renderer.TextureHandle
	Sampler renderer.SamplerHandle
}

// Operation is one step of a generator's write, post or read list.
type Operation struct {
	Type    OpType
	Inputs  []Input
	Outputs []renderer.TextureHandle
	// DepthStencil is the depth attachment, or the null handle.
	DepthStencil renderer.TextureHandle
	ClearFlags   renderer.ClearFlags
	ClearColor   [4]float32
	ClearDepth   float32
	ColorWrites  wgpu.ColorWriteMask
	CullMode     wgpu.CullMode
}

func newOperation(t OpType) Operation {
	return Operation{
		Type:        t,
		ClearDepth:  1,
		ColorWrites: wgpu.ColorWriteMaskAll,
		CullMode:    wgpu.CullModeBack,
	}
}

// bindsTargets reports whether the operation renders into anything.
func (op *Operation) bindsTargets() bool {
	return len(op.Outputs) > 0 || op.DepthStencil.IsValid()
}

// clearWhite is the 0xffffffff clear color.
var clearWhite = [4]float32{1, 1, 1, 1}

// Slots are the shader input slots a generator binds its maps to. A negative
// slot means the shader has no such input and the features needing it are
// unavailable.
type Slots struct {
	Depth  int32
	Edge   int32
	Color  int32
	Custom int32
	Random int32
}

// DefaultSlots places the shadow inputs above the slots a deferred G-buffer uses.
func DefaultSlots() Slots {
	return Slots{Depth: 8, Edge: 9, Color: 10, Custom: 11, Random: 12}
}

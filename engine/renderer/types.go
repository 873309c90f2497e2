package renderer

import (
	"github.com/cogentcore/webgpu/wgpu"
)

// TextureHandle identifies a texture (render target or depth buffer) owned by
// the Renderer. The zero handle is the null texture.
type TextureHandle uint32

// IsValid reports whether the handle refers to a texture.
func (h TextureHandle) IsValid() bool { return h != 0 }

// SamplerHandle identifies a cached sampler state. The zero handle means
// "no sampler bound".
type SamplerHandle uint32

// TargetDescriptor describes a texture the Renderer should create.
type TargetDescriptor struct {
	Name      string
	Type      BufferType
	Format    BufferFormat
	Width     uint32
	Height    uint32
	MipLevels uint32
}

// ByteSize returns the memory footprint of the described texture including
// its mip chain.
func (d TargetDescriptor) ByteSize() uint64 {
	var total uint64
	w, h := uint64(d.Width), uint64(d.Height)
	levels := max(d.MipLevels, 1)
	for i := uint32(0); i < levels; i++ {
		total += w * h * uint64(d.Format.BytesPerPixel())
		w = max(w/2, 1)
		h = max(h/2, 1)
	}
	return total
}

// ClearFlags select which attachments a Clear call touches.
type ClearFlags uint32

const (
	ClearTarget  ClearFlags = 0x1
	ClearDepth   ClearFlags = 0x2
	ClearStencil ClearFlags = 0x4
)

// SystemState names a piece of pipeline state that shaders or draw code key off.
type SystemState int

const (
	StateHDRLighting SystemState = iota
	StateViewSpaceLighting
	StateShadowMethod
	StatePrimaryTaps
	StateSecondaryTaps
	StateLightType
	StateIndirectMethod
	stateCount
)

func (s SystemState) String() string {
	switch s {
	case StateHDRLighting:
		return "HDRLighting"
	case StateViewSpaceLighting:
		return "ViewSpaceLighting"
	case StateShadowMethod:
		return "ShadowMethod"
	case StatePrimaryTaps:
		return "PrimaryTaps"
	case StateSecondaryTaps:
		return "SecondaryTaps"
	case StateLightType:
		return "LightType"
	case StateIndirectMethod:
		return "IndirectMethod"
	}
	return "Unknown"
}

// Rect is an integer pixel rectangle.
type Rect struct {
	X, Y, Width, Height int32
}

// ImageOpKind identifies an image processing operation.
type ImageOpKind int

const (
	ImageResample ImageOpKind = iota
	ImageBlurHorizontal
	ImageBlurVertical
	ImageBlend
	ImageGenerateMips
	ImageDownsampleMax
	ImageDownsampleMin
	ImageDownsampleAverage
	ImageDownsampleDefault
	ImageMergeDepthNormal
	ImageCopyEdgeToColor
	ImageEdgeDetect
)

func (k ImageOpKind) String() string {
	switch k {
	case ImageResample:
		return "Resample"
	case ImageBlurHorizontal:
		return "BlurH"
	case ImageBlurVertical:
		return "BlurV"
	case ImageBlend:
		return "Blend"
	case ImageGenerateMips:
		return "GenerateMips"
	case ImageDownsampleMax:
		return "DownsampleMax"
	case ImageDownsampleMin:
		return "DownsampleMin"
	case ImageDownsampleAverage:
		return "DownsampleAverage"
	case ImageDownsampleDefault:
		return "DownsampleDefault"
	case ImageMergeDepthNormal:
		return "MergeDepthNormal"
	case ImageCopyEdgeToColor:
		return "CopyEdgeToColor"
	case ImageEdgeDetect:
		return "EdgeDetect"
	}
	return "Unknown"
}

// ImageOp describes a full-screen image processing step from one or more
// input textures into an output texture.
type ImageOp struct {
	Kind     ImageOpKind
	Inputs   []TextureHandle
	Output   TextureHandle
	Level    uint32
	Channels wgpu.ColorWriteMask
	// Taps is the filter kernel width for blur operations.
	Taps uint32
}

// EventKind classifies a recorded backend command.
type EventKind int

const (
	EventCreateTarget EventKind = iota
	EventReleaseTarget
	EventBeginTarget
	EventEndTarget
	EventClear
	EventSetTexture
	EventSetSampler
	EventSetState
	EventSetColorWrites
	EventSetCullMode
	EventSetCamera
	EventSetConstants
	EventImage
	EventDraw
	EventSetVPLData
)

func (k EventKind) String() string {
	switch k {
	case EventCreateTarget:
		return "CreateTarget"
	case EventReleaseTarget:
		return "ReleaseTarget"
	case EventBeginTarget:
		return "BeginTarget"
	case EventEndTarget:
		return "EndTarget"
	case EventClear:
		return "Clear"
	case EventSetTexture:
		return "SetTexture"
	case EventSetSampler:
		return "SetSampler"
	case EventSetState:
		return "SetState"
	case EventSetColorWrites:
		return "SetColorWrites"
	case EventSetCullMode:
		return "SetCullMode"
	case EventSetCamera:
		return "SetCamera"
	case EventSetConstants:
		return "SetConstants"
	case EventImage:
		return "Image"
	case EventDraw:
		return "Draw"
	case EventSetVPLData:
		return "SetVPLData"
	}
	return "Unknown"
}

// Event is one command recorded by a backend. Only the fields relevant to
// the Kind are populated.
type Event struct {
	Kind    EventKind
	Label   string
	Targets []TextureHandle
	Depth   TextureHandle
	Slot    uint32
	Sampler SamplerHandle
	State   SystemState
	Value   uint32
	Image   ImageOp
	Count   uint32
	Bytes   int
}

package renderer

import (
	"github.com/cogentcore/webgpu/wgpu"
)

// BufferType identifies the role a render buffer is created for. Format
// capabilities are queried per buffer type because the same format can be
// usable as a render target but not as a depth buffer.
type BufferType int

const (
	// BufferTypeRenderTarget is a color attachment that can later be sampled.
	BufferTypeRenderTarget BufferType = iota

	// BufferTypeDepthStencil is a depth (and optional stencil) attachment that
	// is never read by shaders.
	BufferTypeDepthStencil

	// BufferTypeShadowMap is a depth attachment that is also bound as a shader
	// input, either with hardware comparison, gather or raw reads.
	BufferTypeShadowMap
)

func (t BufferType) String() string {
	switch t {
	case BufferTypeRenderTarget:
		return "RenderTarget"
	case BufferTypeDepthStencil:
		return "DepthStencil"
	case BufferTypeShadowMap:
		return "ShadowMap"
	}
	return "Unknown"
}

// IsDepth reports whether the buffer type is bound as a depth attachment.
func (t BufferType) IsDepth() bool {
	return t == BufferTypeDepthStencil || t == BufferTypeShadowMap
}

// BufferFormat is the pixel format of a render buffer.
type BufferFormat int

const (
	FormatUnknown BufferFormat = iota

	FormatR32Uint
	FormatRG32Uint
	FormatRGBA32Uint
	FormatR32Float
	FormatRG32Float
	FormatRGBA32Float
	FormatR16Uint
	FormatRG16Uint
	FormatRGBA16Uint
	FormatR16Unorm
	FormatRG16Unorm
	FormatRGBA16Unorm
	FormatR16Float
	FormatRG16Float
	FormatRGBA16Float
	FormatR24UnormX8
	FormatR24G8
	FormatBGRA8Unorm

	FormatDF16
	FormatD16
	FormatDF24
	FormatD24FloatS8
	FormatD24UnormS8
	FormatD24UnormX8
	FormatINTZ
	FormatRAWZ
	FormatD32Float
)

type formatInfo struct {
	name          string
	channels      uint32
	bytesPerPixel uint32
	depthBits     uint32
	stencilBits   uint32
	wgpu          wgpu.TextureFormat
	hasWGPU       bool
}

var formatTable = map[BufferFormat]formatInfo{
	FormatR32Uint:     {name: "R32_UInt", channels: 1, bytesPerPixel: 4, wgpu: wgpu.TextureFormatR32Uint, hasWGPU: true},
	FormatRG32Uint:    {name: "R32G32_UInt", channels: 2, bytesPerPixel: 8, wgpu: wgpu.TextureFormatRG32Uint, hasWGPU: true},
	FormatRGBA32Uint:  {name: "R32G32B32A32_UInt", channels: 4, bytesPerPixel: 16, wgpu: wgpu.TextureFormatRGBA32Uint, hasWGPU: true},
	FormatR32Float:    {name: "R32_Float", channels: 1, bytesPerPixel: 4, wgpu: wgpu.TextureFormatR32Float, hasWGPU: true},
	FormatRG32Float:   {name: "R32G32_Float", channels: 2, bytesPerPixel: 8, wgpu: wgpu.TextureFormatRG32Float, hasWGPU: true},
	FormatRGBA32Float: {name: "R32G32B32A32_Float", channels: 4, bytesPerPixel: 16, wgpu: wgpu.TextureFormatRGBA32Float, hasWGPU: true},
	FormatR16Uint:     {name: "R16_UInt", channels: 1, bytesPerPixel: 2},
	FormatRG16Uint:    {name: "R16G16_UInt", channels: 2, bytesPerPixel: 4},
	FormatRGBA16Uint:  {name: "R16G16B16A16_UInt", channels: 4, bytesPerPixel: 8, wgpu: wgpu.TextureFormatRGBA16Uint, hasWGPU: true},
	FormatR16Unorm:    {name: "R16", channels: 1, bytesPerPixel: 2},
	FormatRG16Unorm:   {name: "R16G16", channels: 2, bytesPerPixel: 4},
	FormatRGBA16Unorm: {name: "R16G16B16A16", channels: 4, bytesPerPixel: 8},
	FormatR16Float:    {name: "R16_Float", channels: 1, bytesPerPixel: 2},
	FormatRG16Float:   {name: "R16G16_Float", channels: 2, bytesPerPixel: 4},
	FormatRGBA16Float: {name: "R16G16B16A16_Float", channels: 4, bytesPerPixel: 8, wgpu: wgpu.TextureFormatRGBA16Float, hasWGPU: true},
	FormatR24UnormX8:  {name: "R24_UNorm_X8_Typeless", channels: 1, bytesPerPixel: 4},
	FormatR24G8:       {name: "R24G8_Typeless", channels: 1, bytesPerPixel: 4},
	FormatBGRA8Unorm:  {name: "B8G8R8A8", channels: 4, bytesPerPixel: 4, wgpu: wgpu.TextureFormatBGRA8Unorm, hasWGPU: true},

	FormatDF16:       {name: "DF16", channels: 1, bytesPerPixel: 2, depthBits: 16},
	FormatD16:        {name: "D16", channels: 1, bytesPerPixel: 2, depthBits: 16},
	FormatDF24:       {name: "DF24", channels: 1, bytesPerPixel: 4, depthBits: 24},
	FormatD24FloatS8: {name: "D24_Float_S8_UInt", channels: 1, bytesPerPixel: 4, depthBits: 24, stencilBits: 8},
	FormatD24UnormS8: {name: "D24_UNorm_S8_UInt", channels: 1, bytesPerPixel: 4, depthBits: 24, stencilBits: 8},
	FormatD24UnormX8: {name: "D24_UNorm_X8_Typeless", channels: 1, bytesPerPixel: 4, depthBits: 24, wgpu: wgpu.TextureFormatDepth24Plus, hasWGPU: true},
	FormatINTZ:       {name: "INTZ", channels: 1, bytesPerPixel: 4, depthBits: 24, stencilBits: 8},
	FormatRAWZ:       {name: "RAWZ", channels: 1, bytesPerPixel: 4, depthBits: 24, stencilBits: 8},
	FormatD32Float:   {name: "D32_Float", channels: 1, bytesPerPixel: 4, depthBits: 32, wgpu: wgpu.TextureFormatDepth32Float, hasWGPU: true},
}

func (f BufferFormat) String() string {
	if info, ok := formatTable[f]; ok {
		return info.name
	}
	return "Unknown"
}

// Channels returns the number of independently writable channels of the format.
// Depth formats count as a single channel.
func (f BufferFormat) Channels() uint32 {
	return formatTable[f].channels
}

// BytesPerPixel returns the storage size of a single texel, or 0 for FormatUnknown.
func (f BufferFormat) BytesPerPixel() uint32 {
	return formatTable[f].bytesPerPixel
}

// DepthBits returns the depth precision of a depth format, or 0 for color formats.
func (f BufferFormat) DepthBits() uint32 {
	return formatTable[f].depthBits
}

// StencilBits returns the stencil precision of a depth format.
func (f BufferFormat) StencilBits() uint32 {
	return formatTable[f].stencilBits
}

// WGPUFormat maps the format onto the WebGPU texture format used when the
// buffer is realised on a WebGPU device.
//
// Returns:
//   - wgpu.TextureFormat: the matching WebGPU format
//   - bool: false when WebGPU has no equivalent (for example INTZ or packed 16-bit targets)
func (f BufferFormat) WGPUFormat() (wgpu.TextureFormat, bool) {
	info, ok := formatTable[f]
	if !ok || !info.hasWGPU {
		return wgpu.TextureFormatRGBA8Unorm, false
	}
	return info.wgpu, true
}

// FormatCaps is a bit set describing what the hardware can do with a
// (buffer type, format) pair.
type FormatCaps uint32

const (
	CapsCanWrite          FormatCaps = 0x1
	CapsCanSample         FormatCaps = 0x2
	CapsCanAutoGenMipMaps FormatCaps = 0x4
	CapsCanCompare        FormatCaps = 0x8
	CapsCanGather         FormatCaps = 0x10
	CapsCanGatherCompare  FormatCaps = 0x20
	CapsCanLinearMagnify  FormatCaps = 0x40
	CapsCanLinearMinify   FormatCaps = 0x80
	CapsCanLinearFilter   FormatCaps = CapsCanLinearMagnify | CapsCanLinearMinify
)

// Has reports whether every bit of want is present.
func (c FormatCaps) Has(want FormatCaps) bool {
	return c&want == want
}

// Capabilities describes the format support and sampler limits of a device.
// The zero value supports nothing.
type Capabilities struct {
	// Formats maps a buffer type to the supported formats and their caps.
	Formats map[BufferType]map[BufferFormat]FormatCaps
	// MaxAnisotropy is the highest anisotropic filtering level supported.
	MaxAnisotropy uint16
	// VPLWidth and VPLHeight are the dimensions of the virtual point light
	// texture used by propagation-volume indirect lighting.
	VPLWidth, VPLHeight uint32
}

// FormatCaps returns the caps of a format for a buffer type. Unsupported
// combinations return 0.
func (c Capabilities) FormatCaps(t BufferType, f BufferFormat) FormatCaps {
	if c.Formats == nil {
		return 0
	}
	if t == BufferTypeShadowMap {
		t = BufferTypeDepthStencil
	}
	return c.Formats[t][f]
}

// IsSupported reports whether the format can be created for the buffer type.
func (c Capabilities) IsSupported(t BufferType, f BufferFormat) bool {
	return c.FormatCaps(t, f) != 0
}

// DesktopCapabilities returns a profile modelled on a current desktop GPU
// through WebGPU: float depth with hardware compare and gather, 32/16-bit
// float and integer targets, 16x anisotropy.
//
// Returns:
//   - Capabilities: the capability profile
func DesktopCapabilities() Capabilities {
	rtFilter := CapsCanWrite | CapsCanSample | CapsCanLinearFilter | CapsCanAutoGenMipMaps
	rtPoint := CapsCanWrite | CapsCanSample
	return Capabilities{
		Formats: map[BufferType]map[BufferFormat]FormatCaps{
			BufferTypeDepthStencil: {
				FormatD16:        CapsCanWrite | CapsCanSample | CapsCanCompare | CapsCanLinearFilter,
				FormatD24UnormS8: CapsCanWrite | CapsCanSample | CapsCanCompare | CapsCanGather | CapsCanGatherCompare,
				FormatD24UnormX8: CapsCanWrite | CapsCanSample | CapsCanCompare,
				FormatD32Float:   CapsCanWrite | CapsCanSample | CapsCanCompare | CapsCanGather | CapsCanGatherCompare | CapsCanLinearFilter,
			},
			BufferTypeRenderTarget: {
				FormatR32Uint:     rtPoint,
				FormatRG32Uint:    rtPoint,
				FormatRGBA32Uint:  rtPoint,
				FormatR32Float:    rtFilter,
				FormatRG32Float:   rtFilter,
				FormatRGBA32Float: rtFilter,
				FormatR16Float:    rtFilter,
				FormatRG16Float:   rtFilter,
				FormatRGBA16Float: rtFilter,
				FormatRG16Unorm:   rtFilter,
				FormatBGRA8Unorm:  rtFilter,
			},
		},
		MaxAnisotropy: 16,
		VPLWidth:      1024,
		VPLHeight:     1024,
	}
}

// MinimalCapabilities returns a profile with no readable depth formats and
// only 8-bit and half-float targets. It exercises every fallback path of the
// shadow pipeline: depth is written to a plain depth-stencil buffer and
// copied to a color target for manual filtering.
//
// Returns:
//   - Capabilities: the capability profile
func MinimalCapabilities() Capabilities {
	return Capabilities{
		Formats: map[BufferType]map[BufferFormat]FormatCaps{
			BufferTypeDepthStencil: {
				FormatD24UnormS8: CapsCanWrite,
			},
			BufferTypeRenderTarget: {
				FormatR16Float:   CapsCanWrite | CapsCanSample,
				FormatBGRA8Unorm: CapsCanWrite | CapsCanSample | CapsCanLinearFilter,
			},
		},
		MaxAnisotropy: 1,
		VPLWidth:      256,
		VPLHeight:     256,
	}
}

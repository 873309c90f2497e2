package shadow

import (
	"encoding/binary"
	"math"
	"unsafe"
)

// GPUShadowConstants is the packed shadow read constant block.
// Size: 112 bytes.
type GPUShadowConstants struct {
	Attenuation      [4]float32 // offset   0: min distance, max distance, scale, 1 - scale
	Split            [4]float32 // offset  16: split near, split far, edge mask threshold, 0
	TextureSize      [4]float32 // offset  32: width, height, 1/width, 1/height
	EdgeChannelMask0 [4]float32 // offset  48: one-hot mask of the first edge channel
	EdgeChannelMask1 [4]float32 // offset  64: one-hot mask of the second edge channel
	Bias             [4]float32 // offset  80: depth bias, slope scale, normal bias surface, normal bias light
	Filter           [4]float32 // offset  96: statistics or radius/distance filter values
}

// Size returns the size of the GPUShadowConstants struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (112)
func (g *GPUShadowConstants) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUShadowConstants struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPUShadowConstants) Marshal() []byte {
	buf := make([]byte, g.Size())
	off := 0
	for _, v := range [][4]float32{g.Attenuation, g.Split, g.TextureSize, g.EdgeChannelMask0, g.EdgeChannelMask1, g.Bias, g.Filter} {
		off = putFloats(buf, off, v[:])
	}
	return buf
}

// GPURSMConstants is the packed reflective shadow map constant block.
// Size: 240 bytes.
type GPURSMConstants struct {
	TextureSize           [4]float32  // offset   0: width, height, 1/width, 1/height
	TextureScaleBias      [4]float32  // offset  16: scale into the VPL texture
	ScreenToViewScaleBias [4]float32  // offset  32: clip xy to view xy
	DepthUnpack           [4]float32  // offset  48: linear depth decode
	Position              [3]float32  // offset  64: light world position
	SampleRadius          float32     // offset  76: sampling radius
	Direction             [3]float32  // offset  80: light world direction
	GeometryBias          float32     // offset  92: virtual point light bias
	Color                 [3]float32  // offset  96: light color times intensity
	_pad                  float32     // offset 108: padding
	TextureProjection     [16]float32 // offset 112: light view-projection
	InverseView           [16]float32 // offset 176: light view to world
}

// Size returns the size of the GPURSMConstants struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (240)
func (g *GPURSMConstants) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPURSMConstants struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPURSMConstants) Marshal() []byte {
	buf := make([]byte, g.Size())
	off := putFloats(buf, 0, g.TextureSize[:])
	off = putFloats(buf, off, g.TextureScaleBias[:])
	off = putFloats(buf, off, g.ScreenToViewScaleBias[:])
	off = putFloats(buf, off, g.DepthUnpack[:])
	off = putFloats(buf, off, g.Position[:])
	off = putFloats(buf, off, []float32{g.SampleRadius})
	off = putFloats(buf, off, g.Direction[:])
	off = putFloats(buf, off, []float32{g.GeometryBias})
	off = putFloats(buf, off, g.Color[:])
	off += 4
	off = putFloats(buf, off, g.TextureProjection[:])
	putFloats(buf, off, g.InverseView[:])
	return buf
}

func putFloats(buf []byte, off int, v []float32) int {
	for _, f := range v {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(f))
		off += 4
	}
	return off
}

package lighting

import (
	"encoding/binary"
	"math"
	"unsafe"
)

// Constant block names understood by SetConstant.
const (
	ConstantLightPosition         = "_lightPosition"
	ConstantLightDirection        = "_lightDirection"
	ConstantAttenuationBufferMask = "_lightAttenuationBufferMask"
	ConstantTexProjMatrix         = "_lightTexProjMatrix"
)

// cbLightingName is the renderer constant buffer the block is uploaded to.
const cbLightingName = "cbLighting"

// GPULightingConstants is the packed per light lighting system block.
// Size: 112 bytes.
type GPULightingConstants struct {
	TextureProjection     [16]float32 // offset   0: world (or view) to shadow texture
	Position              [3]float32  // offset  64: light position
	_pad0                 float32     // offset  76: padding
	Direction             [3]float32  // offset  80: light direction
	_pad1                 float32     // offset  92: padding
	AttenuationBufferMask [4]float32  // offset  96: channel selecting the light's attenuation
}

// Size returns the size of the GPULightingConstants struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (112)
func (g *GPULightingConstants) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPULightingConstants struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPULightingConstants) Marshal() []byte {
	buf := make([]byte, g.Size())
	off := 0
	for _, v := range g.TextureProjection {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
		off += 4
	}
	for _, v := range [][]float32{g.Position[:], {0}, g.Direction[:], {0}, g.AttenuationBufferMask[:]} {
		for _, f := range v {
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(f))
			off += 4
		}
	}
	return buf
}

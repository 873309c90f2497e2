package light

import (
	"encoding/binary"
	"math"
	"unsafe"
)

// Constant buffer names the light blocks are uploaded to.
const (
	cbLightName     = "cbLight"
	cbSpotLightName = "cbSpotLight"
)

// GPULightConstants is the per light attenuation block shared by every light type.
// Size: 48 bytes.
type GPULightConstants struct {
	Direction    [3]float32 // offset  0: world space light direction
	_pad0        float32    // offset 12: padding
	Attenuation  [4]float32 // offset 16: inner range, outer range, 1/(outer-inner), -inner/(outer-inner)
	ClipDistance [2]float32 // offset 32: near and far clip distance of the light volume
	_pad1        [2]float32 // offset 40: padding to 48 bytes
}

// Size returns the size of the GPULightConstants struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (48)
func (g *GPULightConstants) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPULightConstants struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 48-byte buffer ready for GPU upload
func (g *GPULightConstants) Marshal() []byte {
	buf := make([]byte, g.Size())
	putFloats(buf[0:], g.Direction[:]...)
	putFloats(buf[16:], g.Attenuation[:]...)
	putFloats(buf[32:], g.ClipDistance[:]...)
	return buf
}

// GPUSpotLightConstants holds the cone falloff terms of a spot light.
// Size: 16 bytes.
type GPUSpotLightConstants struct {
	// SpotTerms is -1/(cos(outer/2)-cos(inner/2)), cos(outer/2)/(cos(outer/2)-cos(inner/2)), falloff, 0.
	SpotTerms [4]float32
}

// Size returns the size of the GPUSpotLightConstants struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (16)
func (g *GPUSpotLightConstants) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUSpotLightConstants struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 16-byte buffer ready for GPU upload
func (g *GPUSpotLightConstants) Marshal() []byte {
	buf := make([]byte, g.Size())
	putFloats(buf, g.SpotTerms[:]...)
	return buf
}

func putFloats(buf []byte, values ...float32) {
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
}

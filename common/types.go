// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

import (
	"github.com/cogentcore/webgpu/wgpu"
)

// SamplerStagingData holds the configuration for a sampler state pending creation.
// Resource descriptions carry one of these so the renderer can build (or reuse) the
// matching sampler state when a generator binds the resource as a shader input.
type SamplerStagingData struct {
	// AddressModeU, AddressModeV, AddressModeW specify the addressing mode for texture coordinates outside the [0, 1] range in each dimension (U, V, W).
	AddressModeU, AddressModeV, AddressModeW wgpu.AddressMode
	// MagFilter and MinFilter specify the filtering mode for magnification and minification.
	MagFilter, MinFilter wgpu.FilterMode
	// MipmapFilter specifies the filtering mode for mipmap level selection.
	MipmapFilter wgpu.MipmapFilterMode
	// LodMinClamp and LodMaxClamp specify the minimum and maximum level of detail (LOD) for mipmapping.
	LodMinClamp, LodMaxClamp float32
	// Compare specifies the comparison function for comparison samplers, used in shadow mapping and similar techniques.
	Compare wgpu.CompareFunction
	// MaxAnisotropy specifies the maximum anisotropy level for anisotropic filtering, which can improve texture quality at oblique viewing angles.
	MaxAnisotropy uint16
}

// PointClampSampler returns a nearest-filtered, clamp-to-edge sampler with no mipmapping.
//
// Returns:
//   - SamplerStagingData: the sampler configuration
func PointClampSampler() SamplerStagingData {
	return SamplerStagingData{
		AddressModeU:  wgpu.AddressModeClampToEdge,
		AddressModeV:  wgpu.AddressModeClampToEdge,
		AddressModeW:  wgpu.AddressModeClampToEdge,
		MagFilter:     wgpu.FilterModeNearest,
		MinFilter:     wgpu.FilterModeNearest,
		MipmapFilter:  wgpu.MipmapFilterModeNearest,
		LodMaxClamp:   0,
		Compare:       wgpu.CompareFunctionUndefined,
		MaxAnisotropy: 1,
	}
}

// LinearClampSampler returns a bilinear, clamp-to-edge sampler with no mipmapping.
//
// Returns:
//   - SamplerStagingData: the sampler configuration
func LinearClampSampler() SamplerStagingData {
	s := PointClampSampler()
	s.MagFilter = wgpu.FilterModeLinear
	s.MinFilter = wgpu.FilterModeLinear
	return s
}

// TrilinearClampSampler returns a linear filtered, clamp-to-edge sampler that also
// blends between mip levels.
//
// Returns:
//   - SamplerStagingData: the sampler configuration
func TrilinearClampSampler() SamplerStagingData {
	s := LinearClampSampler()
	s.MipmapFilter = wgpu.MipmapFilterModeLinear
	s.LodMaxClamp = 32
	return s
}

// AnisotropicClampSampler returns a trilinear sampler with anisotropic filtering.
//
// Parameters:
//   - maxAnisotropy: the anisotropy level, clamped to at least 1
//
// Returns:
//   - SamplerStagingData: the sampler configuration
func AnisotropicClampSampler(maxAnisotropy uint16) SamplerStagingData {
	s := TrilinearClampSampler()
	s.MaxAnisotropy = max(maxAnisotropy, 1)
	return s
}

// CompareClampSampler returns a linear comparison sampler (hardware PCF) with
// a less-than depth test.
//
// Returns:
//   - SamplerStagingData: the sampler configuration
func CompareClampSampler() SamplerStagingData {
	s := LinearClampSampler()
	s.Compare = wgpu.CompareFunctionLess
	return s
}

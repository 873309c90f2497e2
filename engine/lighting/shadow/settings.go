package shadow

import (
	"encoding/binary"
	"math"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/twmb/murmur3"
)

// SettingsSystem is a shadow technique preset: the part of the settings that
// is shared by every light using the preset and that decides which resources
// a generator needs.
type SettingsSystem struct {
	Method              Method
	ResolutionAdjust    uint32
	Precision           uint32
	PrimarySamples      uint32
	SecondarySamples    uint32
	Anisotropy          uint32
	MSAASamples         uint32
	AutoGenerateMipmaps bool
	Jitter              bool
	Rotate              bool
	BoxFilter           bool
	BilinearFiltering   bool
	TrilinearFiltering  bool
	NormalOffset        bool
	FilterPasses        uint32
	FilterRadius        float32
	FilterRadiusNear    float32
	FilterRadiusFar     float32
	// MaskType is MethodEdgeMask, MethodDepthExtentsMask or 0.
	MaskType      Method
	MaskPrecision uint32
	Translucency  bool
}

// SettingsLight holds the per light tuning values.
type SettingsLight struct {
	Method             Method
	ResolutionAdjust   uint32
	CullMode           wgpu.CullMode
	FilterBlurFactor   float32
	FilterDistanceNear float32
	FilterDistanceFar  float32
	DepthBiasSW        float32
	DepthBiasHW        float32
	SlopeScaleBias     float32
	NormalBiasSurface  float32
	NormalBiasLight    float32
	MinimumVariance    float32
	Exponent           float32
	MinimumCutoff      float32
	MaskThreshold      float32
	ProjectCell        bool
	Intensity          float32
	Translucency       bool
}

// DefaultSettingsLight returns the light tuning used when a light does not
// override anything.
func DefaultSettingsLight() SettingsLight {
	return SettingsLight{
		CullMode:           wgpu.CullModeBack,
		FilterBlurFactor:   1,
		FilterDistanceNear: 0,
		FilterDistanceFar:  100,
		DepthBiasSW:        0.001,
		SlopeScaleBias:     1,
		MinimumVariance:    0.0001,
		Exponent:           40,
		MinimumCutoff:      0.2,
		MaskThreshold:      0.1,
		Intensity:          1,
	}
}

// Settings is the merged view of a preset and a light's tuning that a
// generator works from.
type Settings struct {
	Method             Method
	ResolutionAdjust   uint32
	Precision          uint32
	CullMode           wgpu.CullMode
	PrimarySamples     uint32
	SecondarySamples   uint32
	Anisotropy         uint32
	MSAASamples        uint32
	Jitter             bool
	Rotate             bool
	BoxFilter          bool
	BilinearFiltering  bool
	TrilinearFiltering bool
	FilterRadius       float32
	FilterBlurFactor   float32
	FilterPasses       uint32
	FilterRadiusNear   float32
	FilterRadiusFar    float32
	FilterDistanceNear float32
	FilterDistanceFar  float32
	DepthBiasSW        float32
	DepthBiasHW        float32
	SlopeScaleBias     float32
	NormalBiasSurface  float32
	NormalBiasLight    float32
	MinimumVariance    float32
	Exponent           float32
	MaskType           Method
	MaskPrecision      uint32
	MaskThreshold      float32
	ProjectCell        bool
	Intensity          float32
	Translucency       bool
	MinimumCutoff      float32
}

// MergeSettings combines a preset with a light's tuning. Resolution adjusts
// add up and translucency needs both sides to enable it.
//
// Parameters:
//   - s: the preset
//   - l: the light tuning
//
// Returns:
//   - Settings: the merged settings
func MergeSettings(s SettingsSystem, l SettingsLight) Settings {
	return Settings{
		Method:             s.Method,
		ResolutionAdjust:   s.ResolutionAdjust + l.ResolutionAdjust,
		Precision:          s.Precision,
		CullMode:           l.CullMode,
		PrimarySamples:     s.PrimarySamples,
		SecondarySamples:   s.SecondarySamples,
		Anisotropy:         s.Anisotropy,
		MSAASamples:        s.MSAASamples,
		Jitter:             s.Jitter,
		Rotate:             s.Rotate,
		BoxFilter:          s.BoxFilter,
		BilinearFiltering:  s.BilinearFiltering,
		TrilinearFiltering: s.TrilinearFiltering,
		FilterRadius:       s.FilterRadius,
		FilterBlurFactor:   l.FilterBlurFactor,
		FilterPasses:       s.FilterPasses,
		FilterRadiusNear:   s.FilterRadiusNear,
		FilterRadiusFar:    s.FilterRadiusFar,
		FilterDistanceNear: l.FilterDistanceNear,
		FilterDistanceFar:  l.FilterDistanceFar,
		DepthBiasSW:        l.DepthBiasSW,
		DepthBiasHW:        l.DepthBiasHW,
		SlopeScaleBias:     l.SlopeScaleBias,
		NormalBiasSurface:  l.NormalBiasSurface,
		NormalBiasLight:    l.NormalBiasLight,
		MinimumVariance:    l.MinimumVariance,
		Exponent:           l.Exponent,
		MaskType:           s.MaskType,
		MaskPrecision:      s.MaskPrecision,
		MaskThreshold:      l.MaskThreshold,
		ProjectCell:        l.ProjectCell,
		Intensity:          l.Intensity,
		Translucency:       s.Translucency && l.Translucency,
		MinimumCutoff:      l.MinimumCutoff,
	}
}

// Digest returns a 64-bit fingerprint of every field that affects resource
// descriptions, operation lists or constants.
func (s Settings) Digest() uint64 {
	b := make([]byte, 0, 160)
	u := func(v uint32) { b = binary.LittleEndian.AppendUint32(b, v) }
	f := func(v float32) { u(math.Float32bits(v)) }
	t := func(v bool) {
		if v {
			b = append(b, 1)
		} else {
			b = append(b, 0)
		}
	}

	u(uint32(s.Method))
	u(s.ResolutionAdjust)
	u(s.Precision)
	u(uint32(s.CullMode))
	u(s.PrimarySamples)
	u(s.SecondarySamples)
	u(s.Anisotropy)
	u(s.MSAASamples)
	t(s.Jitter)
	t(s.Rotate)
	t(s.BoxFilter)
	t(s.BilinearFiltering)
	t(s.TrilinearFiltering)
	f(s.FilterRadius)
	f(s.FilterBlurFactor)
	u(s.FilterPasses)
	f(s.FilterRadiusNear)
	f(s.FilterRadiusFar)
	f(s.FilterDistanceNear)
	f(s.FilterDistanceFar)
	f(s.DepthBiasSW)
	f(s.DepthBiasHW)
	f(s.SlopeScaleBias)
	f(s.NormalBiasSurface)
	f(s.NormalBiasLight)
	f(s.MinimumVariance)
	f(s.Exponent)
	u(uint32(s.MaskType))
	u(s.MaskPrecision)
	f(s.MaskThreshold)
	t(s.ProjectCell)
	f(s.Intensity)
	t(s.Translucency)
	f(s.MinimumCutoff)
	return murmur3.Sum64(b)
}

// Digest returns a 64-bit fingerprint of the preset.
func (s SettingsSystem) Digest() uint64 {
	return MergeSettings(s, SettingsLight{Translucency: true}).Digest()
}

// LOD maps a level of detail to a named preset.
type LOD struct {
	Level int32  `yaml:"level"`
	Name  string `yaml:"name"`
}

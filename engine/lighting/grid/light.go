package grid

import (
	"github.com/Carmen-Shannon/oxy-shadow/common"
	"github.com/chewxy/math32"
)

// Light is what a radiance grid needs to know about an indirect light.
type Light interface {
	// ID returns the light's unique identifier.
	//
	// Returns:
	//   - uint64: the identifier
	ID() uint64

	// IsDirectional reports whether the light is a parallel light with no position.
	//
	// Returns:
	//   - bool: true for directional lights
	IsDirectional() bool

	// Position returns the light's world space position.
	//
	// Returns:
	//   - [3]float32: the position
	Position() [3]float32

	// OuterRange returns the distance past which the light has no effect.
	//
	// Returns:
	//   - float32: the range
	OuterRange() float32

	// DiffuseColor returns the light's diffuse color.
	//
	// Returns:
	//   - [3]float32: linear RGB
	DiffuseColor() [3]float32

	// DiffuseHDRScale returns the diffuse multiplier used with HDR lighting.
	//
	// Returns:
	//   - float32: the scale
	DiffuseHDRScale() float32

	// AmbientFarHDRScale returns the light's far ambient multiplier.
	//
	// Returns:
	//   - float32: the scale
	AmbientFarHDRScale() float32
}

// Intensity thresholds below which a light outside its range is ignored.
const (
	ThresholdHDR float32 = 0.01
	ThresholdLDR float32 = 0.001
)

// AffectsBounds reports whether a light contributes to a grid volume.
// Directional lights always do. Other lights do when they sit inside the
// volume, reach it with their range, or their attenuated peak intensity at
// the closest point of the volume exceeds the threshold.
//
// Parameters:
//   - l: the light
//   - bounds: the grid volume
//   - hdr: whether HDR lighting is active
//
// Returns:
//   - bool: true if the light must be gathered into the grid
func AffectsBounds(l Light, bounds common.BoundingBox, hdr bool) bool {
	if l.IsDirectional() {
		return true
	}
	pos := l.Position()
	if bounds.Contains(pos) {
		return true
	}
	d := common.Length3(common.Sub3(bounds.ClosestPoint(pos), pos))
	if d < l.OuterRange() {
		return true
	}

	c := l.DiffuseColor()
	intensity := math32.Max(c[0], math32.Max(c[1], c[2]))
	threshold := ThresholdLDR
	if hdr {
		intensity *= l.DiffuseHDRScale()
		threshold = ThresholdHDR
	}
	intensity *= l.AmbientFarHDRScale()
	if d > 0 {
		intensity /= d * d
	}
	return intensity > threshold
}

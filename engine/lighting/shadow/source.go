package shadow

import (
	"fmt"
	"strings"
)

// IndirectMethod selects how reflective shadow maps are consumed by the
// indirect lighting stage.
type IndirectMethod uint32

const (
	IndirectNone               IndirectMethod = 0
	IndirectRadianceHints      IndirectMethod = 1 << 1
	IndirectPropagationVolumes IndirectMethod = 1 << 2
	IndirectScreenSpaceGI      IndirectMethod = 1 << 3

	IndirectOcclusion2D IndirectMethod = 1 << 10
	IndirectOcclusion3D IndirectMethod = 1 << 11
	IndirectVTF         IndirectMethod = 1 << 12
	IndirectR2VB        IndirectMethod = 1 << 13
)

// Has reports whether every bit of want is set.
func (m IndirectMethod) Has(want IndirectMethod) bool {
	return m&want == want
}

// Base returns the method without its sampling modifiers.
func (m IndirectMethod) Base() IndirectMethod {
	return m & (IndirectRadianceHints | IndirectPropagationVolumes | IndirectScreenSpaceGI)
}

func (m IndirectMethod) String() string {
	switch m.Base() {
	case IndirectRadianceHints:
		return "RadianceHints"
	case IndirectPropagationVolumes:
		return "PropagationVolumes"
	case IndirectScreenSpaceGI:
		return "ScreenSpaceGI"
	}
	return "None"
}

var indirectNames = []struct {
	name string
	bit  IndirectMethod
}{
	{"RadianceHints", IndirectRadianceHints},
	{"PropagationVolumes", IndirectPropagationVolumes},
	{"ScreenSpaceGI", IndirectScreenSpaceGI},
	{"Occlusion2D", IndirectOcclusion2D},
	{"Occlusion3D", IndirectOcclusion3D},
	{"VTF", IndirectVTF},
	{"R2VB", IndirectR2VB},
}

// ParseIndirectMethod parses a flag list such as "RadianceHints|VTF".
// An empty string or "None" is IndirectNone.
//
// Parameters:
//   - s: the text to parse
//
// Returns:
//   - IndirectMethod: the parsed bits
//   - error: an error naming the first unknown token
func ParseIndirectMethod(s string) (IndirectMethod, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "None") {
		return IndirectNone, nil
	}
	var m IndirectMethod
	for _, tok := range strings.Split(s, "|") {
		tok = strings.TrimSpace(tok)
		found := false
		for _, n := range indirectNames {
			if strings.EqualFold(tok, n.name) {
				m |= n.bit
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown indirect method %q", tok)
		}
	}
	return m, nil
}

// Source is the light a generator renders for.
type Source interface {
	// ID returns the light's unique identifier.
	//
	// Returns:
	//   - uint64: the identifier
	ID() uint64

	// Name returns the light's display name, possibly empty.
	//
	// Returns:
	//   - string: the name
	Name() string

	// DirtyFrame returns the frame on which the light was last modified.
	//
	// Returns:
	//   - int64: the frame counter
	DirtyFrame() int64

	// Direction returns the light's world space direction (its Z axis).
	//
	// Returns:
	//   - [3]float32: the unit direction
	Direction() [3]float32

	// DiffuseColor returns the light's diffuse color.
	//
	// Returns:
	//   - [3]float32: linear RGB
	DiffuseColor() [3]float32

	// DiffuseHDRScale returns the multiplier applied to the diffuse color when
	// HDR lighting is active.
	//
	// Returns:
	//   - float32: the scale
	DiffuseHDRScale() float32

	// IndirectMethod returns the indirect lighting method the light feeds.
	//
	// Returns:
	//   - IndirectMethod: the method
	IndirectMethod() IndirectMethod
}

// LightingConstants receives the per light texture projection before a read
// pass. The lighting manager implements it.
type LightingConstants interface {
	// SetTexProjMatrix stores the world to shadow texture transform.
	//
	// Parameters:
	//   - m: the column-major matrix
	SetTexProjMatrix(m [16]float32)

	// ApplyLightingConstants uploads the lighting constant block.
	ApplyLightingConstants()
}

// Package shadow builds and drives the per light frustum shadow map and
// reflective shadow map generators: resource negotiation with the pool, the
// write/post/read operation lists, and the begin/pass/end protocols.
package shadow

import (
	"fmt"
	"strconv"
	"strings"
)

// Method is a set of shadow technique bits. The low bits select the base
// technique, the rest describe precision, hardware paths and modifiers.
type Method uint32

const (
	MethodDepth       Method = 1 << 1
	MethodVariance    Method = 1 << 2
	MethodExponential Method = 1 << 3
	MethodReflective  Method = 1 << 4

	MethodBits16        Method = 1 << 9
	MethodBits24        Method = 1 << 10
	MethodBits32        Method = 1 << 11
	MethodExtentsBits16 Method = 1 << 12

	MethodPrecomputed      Method = 1 << 13
	MethodPrecomputedAlpha Method = 1 << 14

	MethodHardware Method = 1 << 16
	MethodCompare  Method = 1 << 17
	MethodGather   Method = 1 << 18
	MethodRAWZ     Method = 1 << 19

	MethodDepthReads       Method = 1 << 20
	MethodSoftShadows      Method = 1 << 21
	MethodContactHardening Method = 1 << 22
	MethodEdgeMask         Method = 1 << 23
	MethodDepthExtentsMask Method = 1 << 24
	MethodTranslucency     Method = 1 << 25
	MethodJitter           Method = 1 << 26
	MethodRotate           Method = 1 << 27
	MethodManual2x2        Method = 1 << 28
	MethodNormalOffset     Method = 1 << 29
	MethodBoxFilter        Method = 1 << 30
)

// Technique presets.
const (
	PCF  = MethodDepth
	PCSS = MethodDepth | MethodSoftShadows | MethodContactHardening
	VSM  = MethodVariance
	ESM  = MethodExponential
	EVSM = MethodExponential | MethodVariance
	RSM  = MethodReflective

	AllMethods = PCF | PCSS | VSM | ESM | EVSM | RSM
)

// MaskBits are the edge mask selectors.
const MaskBits = MethodEdgeMask | MethodDepthExtentsMask

var presetNames = []struct {
	name   string
	method Method
}{
	{"PCSS", PCSS},
	{"EVSM", EVSM},
	{"PCF", PCF},
	{"VSM", VSM},
	{"ESM", ESM},
	{"RSM", RSM},
}

var flagNames = []struct {
	name string
	bit  Method
}{
	{"Bits16", MethodBits16},
	{"Bits24", MethodBits24},
	{"Bits32", MethodBits32},
	{"ExtentsBits16", MethodExtentsBits16},
	{"Precomputed", MethodPrecomputed},
	{"PrecomputedAlpha", MethodPrecomputedAlpha},
	{"Hardware", MethodHardware},
	{"Compare", MethodCompare},
	{"Gather", MethodGather},
	{"RAWZ", MethodRAWZ},
	{"DepthReads", MethodDepthReads},
	{"EdgeMask", MethodEdgeMask},
	{"DepthExtentsMask", MethodDepthExtentsMask},
	{"Translucency", MethodTranslucency},
	{"Jitter", MethodJitter},
	{"Rotate", MethodRotate},
	{"Manual2x2", MethodManual2x2},
	{"NormalOffset", MethodNormalOffset},
	{"BoxFilter", MethodBoxFilter},
}

// Has reports whether every bit of want is set.
func (m Method) Has(want Method) bool {
	return m&want == want
}

// Any reports whether at least one bit of want is set.
func (m Method) Any(want Method) bool {
	return m&want != 0
}

// Preset returns the technique preset contained in m, checking the widest
// presets first, or 0 if none matches.
func (m Method) Preset() Method {
	for _, p := range presetNames {
		if m.Has(p.method) {
			return p.method
		}
	}
	return 0
}

// IsStatistical reports whether the method filters a statistics map (VSM, ESM, EVSM).
func (m Method) IsStatistical() bool {
	return m.Any(MethodVariance | MethodExponential)
}

func (m Method) String() string {
	if m == 0 {
		return "None"
	}
	var parts []string
	rest := m
	if p := m.Preset(); p != 0 {
		for _, pn := range presetNames {
			if pn.method == p {
				parts = append(parts, pn.name)
				break
			}
		}
		rest &^= p
	}
	for _, f := range flagNames {
		if rest&f.bit != 0 {
			parts = append(parts, f.name)
			rest &^= f.bit
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

// ParseMethod parses a preset or flag list such as "PCF", "EVSM|Jitter" or a
// plain integer bit set.
//
// Parameters:
//   - s: the text to parse
//
// Returns:
//   - Method: the parsed bits
//   - error: an error naming the first unknown token
func ParseMethod(s string) (Method, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if v, err := strconv.ParseUint(s, 0, 32); err == nil {
		return Method(v), nil
	}
	var m Method
	for _, tok := range strings.Split(s, "|") {
		tok = strings.TrimSpace(tok)
		found := false
		for _, p := range presetNames {
			if strings.EqualFold(tok, p.name) {
				m |= p.method
				found = true
				break
			}
		}
		if !found {
			for _, f := range flagNames {
				if strings.EqualFold(tok, f.name) {
					m |= f.bit
					found = true
					break
				}
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown shadow method %q", tok)
		}
	}
	return m, nil
}

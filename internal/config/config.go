// Package config reads the YAML scene description the CLI runs and builds
// the lighting manager, lights, objects and scene it describes.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/Carmen-Shannon/oxy-shadow/engine/light"
	"github.com/Carmen-Shannon/oxy-shadow/engine/lighting/pool"
	"github.com/Carmen-Shannon/oxy-shadow/engine/lighting/shadow"
	"github.com/Carmen-Shannon/oxy-shadow/engine/renderer"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// ErrInvalidScene is wrapped by every validation error.
var ErrInvalidScene = errors.New("invalid scene")

// Scene is the root of a scene description.
type Scene struct {
	Name string `yaml:"name"`
	// Frames is how many frames the CLI runs when no --frames flag is given.
	Frames   int     `yaml:"frames"`
	TickRate float64 `yaml:"tickRate"`
	// Settings is a shadow settings properties file, resolved relative to the
	// scene file. Empty uses the built-in table.
	Settings       string       `yaml:"settings"`
	Capabilities   string       `yaml:"capabilities"`
	Backend        string       `yaml:"backend"`
	Pool           *pool.Config `yaml:"pool"`
	ShadowLOD      *int32       `yaml:"shadowLOD"`
	IndirectLOD    *int32       `yaml:"indirectLOD"`
	IndirectMethod string       `yaml:"indirectMethod"`
	Lighting       Lighting     `yaml:"lighting"`
	CullingOff     bool         `yaml:"cullingDisabled"`
	Camera         Camera       `yaml:"camera"`
	Grids          []Grid       `yaml:"grids"`
	Lights         []Light      `yaml:"lights"`
	Objects        []Object     `yaml:"objects"`
}

// Lighting mirrors lighting.LightingOptions. ApplyShadows defaults to true.
type Lighting struct {
	Deferred     bool  `yaml:"deferred"`
	ApplyShadows *bool `yaml:"applyShadows"`
	ViewSpace    bool  `yaml:"viewSpace"`
}

// Camera places the scene camera. Angles are in degrees.
type Camera struct {
	Eye    [3]float32 `yaml:"eye"`
	Target [3]float32 `yaml:"target"`
	Fov    float32    `yaml:"fov"`
	Aspect float32    `yaml:"aspect"`
	Near   float32    `yaml:"near"`
	Far    float32    `yaml:"far"`
	Orbit  *Orbit     `yaml:"orbit"`
}

// Orbit attaches an orbit controller circling the camera target.
type Orbit struct {
	Radius    float32 `yaml:"radius"`
	Elevation float32 `yaml:"elevation"`
	Speed     float32 `yaml:"speed"`
}

// Grid describes one radiance grid cascade.
type Grid struct {
	Dimensions          [3]int32 `yaml:"dimensions"`
	CellSize            float32  `yaml:"cellSize"`
	Padding             int32    `yaml:"padding"`
	DynamicUpdateFrames int64    `yaml:"dynamicUpdateFrames"`
}

// Light describes one light. Cone angles are full angles in degrees.
type Light struct {
	Name             string          `yaml:"name"`
	Type             string          `yaml:"type"`
	Position         [3]float32      `yaml:"position"`
	Direction        *[3]float32     `yaml:"direction"`
	Color            *[3]float32     `yaml:"color"`
	Intensity        *float32        `yaml:"intensity"`
	Range            *[2]float32     `yaml:"range"`
	Cone             *[2]float32     `yaml:"cone"`
	Enabled          *bool           `yaml:"enabled"`
	CastsShadows     bool            `yaml:"castsShadows"`
	Stage            string          `yaml:"stage"`
	ShadowStage      string          `yaml:"shadowStage"`
	ShadowDistance   *float32        `yaml:"shadowDistance"`
	ShadowFade       *[2]float32     `yaml:"shadowFade"`
	ShadowLODFade    *[2]float32     `yaml:"shadowLODFade"`
	ShadowLODs       []shadow.LOD    `yaml:"shadowLODs"`
	ShadowSettings   []LightSettings `yaml:"shadowSettings"`
	IndirectLODs     []shadow.LOD    `yaml:"indirectLODs"`
	IndirectSettings []LightSettings `yaml:"indirectSettings"`
	AmbientFarScale  *float32        `yaml:"ambientFarScale"`
}

// LightSettings overrides fields of shadow.DefaultSettingsLight for one LOD.
type LightSettings struct {
	ResolutionAdjust *uint32     `yaml:"resolutionAdjust"`
	Intensity        *float32    `yaml:"intensity"`
	CullMode         string      `yaml:"cullMode"`
	DepthBias        *float32    `yaml:"depthBias"`
	SlopeScaleBias   *float32    `yaml:"slopeScaleBias"`
	NormalBias       *float32    `yaml:"normalBias"`
	FilterBlurFactor *float32    `yaml:"filterBlurFactor"`
	FilterDistance   *[2]float32 `yaml:"filterDistance"`
	MaskThreshold    *float32    `yaml:"maskThreshold"`
	Translucency     bool        `yaml:"translucency"`
}

// Object describes one scene object. Rotations are in degrees.
type Object struct {
	Name            string      `yaml:"name"`
	Position        [3]float32  `yaml:"position"`
	Scale           *[3]float32 `yaml:"scale"`
	Rotation        [3]float32  `yaml:"rotation"`
	RotationSpeed   [3]float32  `yaml:"rotationSpeed"`
	HalfExtents     *[3]float32 `yaml:"halfExtents"`
	CastsShadows    *bool       `yaml:"castsShadows"`
	ReceivesShadows *bool       `yaml:"receivesShadows"`
	// Light names a light the object carries.
	Light string `yaml:"light"`
}

// Load reads and validates a scene description. A relative Settings path is
// resolved against the scene file's directory.
//
// Parameters:
//   - path: the YAML file
//
// Returns:
//   - *Scene: the description
//   - error: a read, parse or validation error
func Load(path string) (*Scene, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scene %s: %w", path, err)
	}
	s, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("scene %s: %w", path, err)
	}
	if s.Settings != "" && !filepath.IsAbs(s.Settings) {
		s.Settings = filepath.Join(filepath.Dir(path), s.Settings)
	}
	return s, nil
}

// Parse decodes and validates a scene description. Unknown keys are errors.
//
// Parameters:
//   - content: the YAML document
//
// Returns:
//   - *Scene: the description
//   - error: a parse or validation error
func Parse(content []byte) (*Scene, error) {
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	var s Scene
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidScene, fmt.Sprintf(format, args...))
}

// Validate checks the description, reporting every problem found.
//
// Returns:
//   - error: the joined errors, each wrapping ErrInvalidScene
func (s *Scene) Validate() error {
	var errs error
	if s.Frames < 0 {
		errs = multierr.Append(errs, invalid("frames must not be negative"))
	}
	if s.TickRate < 0 {
		errs = multierr.Append(errs, invalid("tickRate must not be negative"))
	}
	if _, err := Capabilities(s.Capabilities); err != nil {
		errs = multierr.Append(errs, invalid("%v", err))
	}
	if _, err := renderer.ParseBackendType(s.Backend); err != nil {
		errs = multierr.Append(errs, invalid("%v", err))
	}
	if _, err := shadow.ParseIndirectMethod(s.IndirectMethod); err != nil {
		errs = multierr.Append(errs, invalid("%v", err))
	}
	if p := s.Pool; p != nil && p.MinResolution > p.MaxResolution {
		errs = multierr.Append(errs, invalid("pool minResolution %d exceeds maxResolution %d", p.MinResolution, p.MaxResolution))
	}
	if c := s.Camera; c.Near < 0 || (c.Far > 0 && c.Far <= c.Near) {
		errs = multierr.Append(errs, invalid("camera near %v and far %v do not form a range", c.Near, c.Far))
	}

	names := make(map[string]bool, len(s.Lights))
	for i, l := range s.Lights {
		where := fmt.Sprintf("lights[%d]", i)
		if l.Name != "" {
			where = fmt.Sprintf("light %q", l.Name)
			if names[l.Name] {
				errs = multierr.Append(errs, invalid("%s is declared twice", where))
			}
			names[l.Name] = true
		}
		if _, err := light.ParseLightType(l.Type); err != nil {
			errs = multierr.Append(errs, invalid("%s: %v", where, err))
		}
		for _, st := range []string{l.Stage, l.ShadowStage} {
			if _, err := parseStage(st); err != nil {
				errs = multierr.Append(errs, invalid("%s: %v", where, err))
			}
		}
		if r := l.Range; r != nil && (r[0] < 0 || r[1] < r[0]) {
			errs = multierr.Append(errs, invalid("%s: range %v is not an inner, outer pair", where, *r))
		}
		if len(l.ShadowSettings) > len(l.ShadowLODs) || len(l.IndirectSettings) > len(l.IndirectLODs) {
			errs = multierr.Append(errs, invalid("%s: more settings than LODs", where))
		}
		for _, ls := range slices.Concat(l.ShadowSettings, l.IndirectSettings) {
			if _, err := parseCullMode(ls.CullMode); err != nil {
				errs = multierr.Append(errs, invalid("%s: %v", where, err))
			}
		}
	}

	for i, o := range s.Objects {
		if o.Light != "" && !names[o.Light] {
			errs = multierr.Append(errs, invalid("objects[%d] carries unknown light %q", i, o.Light))
		}
	}
	return errs
}

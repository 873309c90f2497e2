package lighting

import (
	"errors"

	"github.com/Carmen-Shannon/oxy-shadow/engine/camera"
	"github.com/Carmen-Shannon/oxy-shadow/engine/lighting/grid"
	"github.com/Carmen-Shannon/oxy-shadow/engine/lighting/shadow"
	"github.com/Carmen-Shannon/oxy-shadow/engine/visibility"
)

// Stage tells at which point of the pipeline a light's lighting or shadows
// are produced.
type Stage int

const (
	StageRuntime Stage = iota
	StagePrecomputed
	StageNone
)

func (s Stage) String() string {
	switch s {
	case StageRuntime:
		return "Runtime"
	case StagePrecomputed:
		return "Precomputed"
	}
	return "None"
}

// LightingOp is the work a lighting pass asks the manager to run.
type LightingOp int

const (
	OpNone LightingOp = iota
	// OpFillShadowMap fills a shadow map inline because the light was given a
	// default resource it could not fill up front.
	OpFillShadowMap
	// OpProcessLight shades the receivers of the light.
	OpProcessLight
	// OpAbort skips the pass without ending it.
	OpAbort
)

func (o LightingOp) String() string {
	switch o {
	case OpFillShadowMap:
		return "FillShadowMap"
	case OpProcessLight:
		return "ProcessLight"
	case OpAbort:
		return "Abort"
	}
	return "None"
}

// Light is a scene light the manager drives through the shadow fill,
// indirect fill and lighting protocols.
//
// Every Begin* call that returns a non-negative pass count must be followed by
// the matching End* call.
type Light interface {
	shadow.Source
	grid.Light

	// IsShadowSource reports whether the light casts shadows this frame.
	//
	// Returns:
	//   - bool: true if the light owns a shadow generator and shadows are enabled
	IsShadowSource() bool

	// LightingStage returns when the light's direct lighting is produced.
	//
	// Returns:
	//   - Stage: the lighting stage
	LightingStage() Stage

	// ShadowStage returns when the light's shadows are produced.
	//
	// Returns:
	//   - Stage: the shadow stage
	ShadowStage() Stage

	// SetIndirectMethod selects the indirect lighting method the light feeds.
	//
	// Parameters:
	//   - m: the method
	SetIndirectMethod(m shadow.IndirectMethod)

	// UpdateIndirectSettings picks the reflective shadow map preset for the
	// indirect system LOD and reconfigures the light's reflectance generator.
	UpdateIndirectSettings()

	// ComputeShadowSets culls the shadow casters of the light, picks the shadow
	// preset for the shadow system LOD and reconfigures the light's generators.
	//
	// Parameters:
	//   - cam: the scene camera
	//   - objects: the scene objects
	ComputeShadowSets(cam camera.Camera, objects []visibility.Object)

	// ReassignShadowMaps tries to recover last frame's shadow maps.
	//
	// Returns:
	//   - bool: true if the maps were recovered
	ReassignShadowMaps() bool

	// ReassignIndirectMaps tries to recover last frame's reflective shadow maps.
	//
	// Returns:
	//   - bool: true if the maps were recovered or none are needed
	ReassignIndirectMaps() bool

	// ShadowFillResult returns the outcome of the last shadow map assignment.
	//
	// Returns:
	//   - shadow.FillResult: the result recorded by BeginShadowFill
	ShadowFillResult() shadow.FillResult

	// BeginShadowFill assigns shadow maps and starts a fill.
	//
	// Returns:
	//   - int: the number of fill passes, or -1 if nothing must be filled
	BeginShadowFill() int

	// BeginShadowFillPass starts one fill pass.
	//
	// Parameters:
	//   - pass: the pass index
	//
	// Returns:
	//   - visibility.Set: the casters to draw
	//   - bool: false if the pass must be skipped
	BeginShadowFillPass(pass int) (visibility.Set, bool)

	// EndShadowFillPass ends the current fill pass.
	EndShadowFillPass()

	// EndShadowFill ends the fill.
	EndShadowFill()

	// BeginIndirectFill assigns reflective shadow maps and starts a fill.
	//
	// Returns:
	//   - int: the number of fill passes, or -1 if nothing must be filled
	BeginIndirectFill() int

	// BeginIndirectFillPass starts one reflective fill pass.
	//
	// Parameters:
	//   - pass: the pass index
	//
	// Returns:
	//   - visibility.Set: the objects to draw
	//   - bool: false if the pass must be skipped
	BeginIndirectFillPass(pass int) (visibility.Set, bool)

	// EndIndirectFillPass ends the current reflective fill pass.
	EndIndirectFillPass()

	// EndIndirectFill ends the reflective fill.
	EndIndirectFill()

	// BeginLighting starts shading with the light.
	//
	// Parameters:
	//   - applyShadows: whether the shadow maps are read
	//   - deferred: whether the receivers are shaded from a G-buffer
	//
	// Returns:
	//   - int: the number of lighting passes, or -1 if the light is skipped
	BeginLighting(applyShadows, deferred bool) int

	// BeginLightingPass starts one lighting pass.
	//
	// Parameters:
	//   - pass: the pass index
	//
	// Returns:
	//   - LightingOp: the work to run for the pass
	//   - visibility.Set: the objects the pass draws
	BeginLightingPass(pass int) (LightingOp, visibility.Set)

	// EndLightingPass ends the current lighting pass.
	EndLightingPass()

	// EndLighting ends shading with the light.
	EndLighting()
}

// Callback names passed to render callbacks.
const (
	ContextFillShadowMap           = "FillShadowMap"
	ContextFillReflectiveShadowMap = "FillReflectiveShadowMap"
	ContextProcessLight            = "processLight"
	ContextSetupLightingInputs     = "SetupLightingInputs"
	ContextCleanupLighting         = "CleanupLighting"
)

// CallbackArgs is the argument record handed to a render callback.
type CallbackArgs struct {
	Context    string
	Light      Light
	Visibility visibility.Set
	Pass       int
}

// Result is the outcome of a render callback.
type Result struct {
	err error
}

// Ok is the result of a callback that rendered its pass.
//
// Returns:
//   - Result: the success result
func Ok() Result {
	return Result{}
}

// Failed is the result of a callback that could not render its pass.
//
// Parameters:
//   - reason: what went wrong
//
// Returns:
//   - Result: the failure result
func Failed(reason string) Result {
	return Result{err: errors.New(reason)}
}

// IsOk reports whether the callback succeeded.
func (r Result) IsOk() bool {
	return r.err == nil
}

// Err returns the failure reason, or nil.
func (r Result) Err() error {
	return r.err
}

// Callback draws the geometry of one pass. It runs to completion before the
// pass driver resumes and must not call back into the light or its generators.
type Callback func(args CallbackArgs) Result

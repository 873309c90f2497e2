package grid

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-shadow/common"
	"github.com/Carmen-Shannon/oxy-shadow/engine/renderer"
)

// Volume is a snapshot of a grid cascade handed to its integrator.
type Volume struct {
	Name       string
	Cascade    int
	Bounds     common.BoundingBox
	Dimensions [3]int32
	CellSize   float32
	// Shift is the movement of the last Update in cells.
	Shift [3]float32
}

// Integrator runs the numeric steps of a radiance grid. The grid decides when
// each step runs; the integrator decides how.
type Integrator interface {
	// Gather accumulates the lights' reflective shadow maps into the grid.
	//
	// Parameters:
	//   - v: the grid volume
	//   - lights: the lights to gather
	//   - static: whether the static or the dynamic grid is written
	//
	// Returns:
	//   - bool: false if the step failed
	Gather(v Volume, lights []Light, static bool) bool

	// Inject splats the lights' reflective shadow maps into a propagation volume.
	//
	// Parameters:
	//   - v: the grid volume
	//   - lights: the lights to inject
	//   - static: whether the static or the dynamic grid is written
	//
	// Returns:
	//   - bool: false if the step failed
	Inject(v Volume, lights []Light, static bool) bool

	// Propagate spreads injected radiance through the volume.
	//
	// Parameters:
	//   - v: the grid volume
	//   - static: whether the static or the dynamic grid is propagated
	//
	// Returns:
	//   - bool: false if the step failed
	Propagate(v Volume, static bool) bool

	// Reproject shifts the grid contents by v.Shift and gathers the lights
	// into the cells that scrolled in.
	//
	// Parameters:
	//   - v: the grid volume
	//   - lights: the lights to gather into new cells
	//   - static: whether the static or the dynamic grid is reprojected
	//
	// Returns:
	//   - bool: false if the step failed
	Reproject(v Volume, lights []Light, static bool) bool
}

// rendererIntegrator records every step as a draw on the renderer. It is the
// integrator of headless scenes.
type rendererIntegrator struct {
	r renderer.Renderer
}

var _ Integrator = &rendererIntegrator{}

// NewRendererIntegrator creates an integrator that issues one labelled draw
// per step, with the light count as the draw count.
//
// Parameters:
//   - r: the renderer
//
// Returns:
//   - Integrator: the integrator
func NewRendererIntegrator(r renderer.Renderer) Integrator {
	return &rendererIntegrator{r: r}
}

func label(v Volume, step string, static bool) string {
	kind := "Dynamic"
	if static {
		kind = "Static"
	}
	return fmt.Sprintf("%s.%s(%s)", v.Name, step, kind)
}

func (i *rendererIntegrator) Gather(v Volume, lights []Light, static bool) bool {
	i.r.Draw(label(v, "Gather", static), uint32(len(lights)))
	return true
}

func (i *rendererIntegrator) Inject(v Volume, lights []Light, static bool) bool {
	i.r.Draw(label(v, "Inject", static), uint32(len(lights)))
	return true
}

func (i *rendererIntegrator) Propagate(v Volume, static bool) bool {
	i.r.Draw(label(v, "Propagate", static), 1)
	return true
}

func (i *rendererIntegrator) Reproject(v Volume, lights []Light, static bool) bool {
	i.r.Draw(label(v, "Reproject", static), uint32(len(lights)))
	return true
}

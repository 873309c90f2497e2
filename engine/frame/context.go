// Package frame carries the per-scene context handed to the lighting
// pipeline: the renderer, the frame clock and the logger.
package frame

import (
	"github.com/Carmen-Shannon/oxy-shadow/engine/renderer"
	"github.com/go-logr/logr"
)

// Context bundles the collaborators every lighting component needs. It is
// created once per scene and passed to the manager, pool and generators at
// construction.
type Context struct {
	Renderer renderer.Renderer
	Clock    Clock
	Logger   logr.Logger
}

// NewContext creates a Context. A nil clock is replaced with a new Clock.
//
// Parameters:
//   - r: the renderer
//   - c: the frame clock
//   - l: the logger
//
// Returns:
//   - *Context: the context
func NewContext(r renderer.Renderer, c Clock, l logr.Logger) *Context {
	if c == nil {
		c = NewClock()
	}
	if l.GetSink() == nil {
		l = logr.Discard()
	}
	return &Context{Renderer: r, Clock: c, Logger: l}
}

// Frame returns the current frame counter.
func (c *Context) Frame() int64 {
	return c.Clock.Frame()
}

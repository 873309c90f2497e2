package profiler

import (
	"time"

	"github.com/go-logr/logr"
)

// ProfilerBuilderOption is a functional option applied to a profiler during construction.
type ProfilerBuilderOption func(*Profiler)

// WithLogger sets the sink that receives section timings on every logged tick.
//
// Parameters:
//   - l: the logger
//
// Returns:
//   - ProfilerBuilderOption: a function that applies the logger option to a profiler
func WithLogger(l logr.Logger) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.log = l.WithName("profiler")
	}
}

// WithUpdateInterval sets how often statistics are logged.
//
// Parameters:
//   - d: the interval
//
// Returns:
//   - ProfilerBuilderOption: a function that applies the interval option to a profiler
func WithUpdateInterval(d time.Duration) ProfilerBuilderOption {
	return func(p *Profiler) {
		if d > 0 {
			p.updateInterval = d
		}
	}
}

// WithClock replaces the wall clock used to time sections.
//
// Parameters:
//   - now: the time source
//
// Returns:
//   - ProfilerBuilderOption: a function that applies the clock option to a profiler
func WithClock(now func() time.Time) ProfilerBuilderOption {
	return func(p *Profiler) {
		if now != nil {
			p.now = now
			p.lastTime = now()
		}
	}
}

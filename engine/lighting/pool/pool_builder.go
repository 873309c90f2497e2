package pool

import (
	"github.com/go-logr/logr"
)

// PoolBuilderOption is a functional option applied to a pool during construction via NewPool.
type PoolBuilderOption func(*poolImpl)

// WithLogger overrides the logger taken from the frame context.
//
// Parameters:
//   - l: the logger
//
// Returns:
//   - PoolBuilderOption: a function that applies the logger option to a pool
func WithLogger(l logr.Logger) PoolBuilderOption {
	return func(p *poolImpl) {
		p.log = l.WithName("pool")
	}
}

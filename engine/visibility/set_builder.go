package visibility

import (
	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/go-logr/logr"
)

// SetBuilderOption is a functional option applied to a set during construction via NewSet.
type SetBuilderOption func(*setImpl)

// WithWorkerPool fans culling out over the given pool. Without a pool the set culls on the calling goroutine.
//
// Parameters:
//   - pool: the worker pool shared with the owning scene
//
// Returns:
//   - SetBuilderOption: a function that applies the pool option to a set
func WithWorkerPool(pool worker.DynamicWorkerPool) SetBuilderOption {
	return func(s *setImpl) {
		s.pool = pool
	}
}

// WithChunkSize sets how many candidates one pool task culls. Values below 1 are ignored.
//
// Parameters:
//   - n: the chunk size
//
// Returns:
//   - SetBuilderOption: a function that applies the chunk size option to a set
func WithChunkSize(n int) SetBuilderOption {
	return func(s *setImpl) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// WithLogger sets the logger used for culling diagnostics.
//
// Parameters:
//   - l: the logger
//
// Returns:
//   - SetBuilderOption: a function that applies the logger option to a set
func WithLogger(l logr.Logger) SetBuilderOption {
	return func(s *setImpl) {
		s.log = l.WithName("visibility")
	}
}

package grid

import (
	"github.com/go-logr/logr"
)

// GridBuilderOption is a function that configures a grid during construction.
type GridBuilderOption func(*gridImpl)

// WithLogger is an option builder that sets the grid's logger.
//
// Parameters:
//   - l: the logger
//
// Returns:
//   - GridBuilderOption: a function that applies the logger option to a gridImpl
func WithLogger(l logr.Logger) GridBuilderOption {
	return func(g *gridImpl) {
		g.log = l.WithName("grid")
	}
}

// WithCascade is an option builder that sets the cascade index. Each cascade
// staggers its first dynamic refresh by one more frame.
//
// Parameters:
//   - i: the cascade index, 0 being the finest
//
// Returns:
//   - GridBuilderOption: a function that applies the cascade option to a gridImpl
func WithCascade(i int) GridBuilderOption {
	return func(g *gridImpl) {
		g.cascade = max(i, 0)
	}
}

// WithDimensions is an option builder that sets the number of cells per axis.
//
// Parameters:
//   - x, y, z: the cell counts
//
// Returns:
//   - GridBuilderOption: a function that applies the dimensions option to a gridImpl
func WithDimensions(x, y, z int32) GridBuilderOption {
	return func(g *gridImpl) {
		g.dimensions = [3]int32{max(x, 1), max(y, 1), max(z, 1)}
	}
}

// WithCellSize is an option builder that sets the world size of a cell.
//
// Parameters:
//   - size: the cell size, ignored unless positive
//
// Returns:
//   - GridBuilderOption: a function that applies the cell size option to a gridImpl
func WithCellSize(size float32) GridBuilderOption {
	return func(g *gridImpl) {
		if size > 0 {
			g.cellSize = size
		}
	}
}

// WithPadding is an option builder that sets the minimum number of cells kept
// behind the camera.
//
// Parameters:
//   - cells: the padding
//
// Returns:
//   - GridBuilderOption: a function that applies the padding option to a gridImpl
func WithPadding(cells int32) GridBuilderOption {
	return func(g *gridImpl) {
		g.padding = max(cells, 0)
	}
}

// WithDynamicUpdateFrames is an option builder that sets how many frames pass
// between dynamic refreshes once the warmup is over.
//
// Parameters:
//   - n: the refresh interval in frames
//
// Returns:
//   - GridBuilderOption: a function that applies the option to a gridImpl
func WithDynamicUpdateFrames(n int64) GridBuilderOption {
	return func(g *gridImpl) {
		g.dynamicUpdateFrames = max(n, 1)
	}
}

// WithIntegrator is an option builder that sets the strategy running the
// gather, inject, propagate and reproject steps.
//
// Parameters:
//   - i: the integrator
//
// Returns:
//   - GridBuilderOption: a function that applies the integrator option to a gridImpl
func WithIntegrator(i Integrator) GridBuilderOption {
	return func(g *gridImpl) {
		g.integrator = i
	}
}

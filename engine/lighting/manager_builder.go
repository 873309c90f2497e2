package lighting

import (
	"github.com/Carmen-Shannon/oxy-shadow/engine/lighting/shadow"
	"github.com/Carmen-Shannon/oxy-shadow/engine/profiler"
	"github.com/go-logr/logr"
	"github.com/magiconair/properties"
)

// ManagerBuilderOption is a functional option applied to a manager during construction via NewManager.
type ManagerBuilderOption func(*managerImpl)

// WithLogger sets the logger of the manager and its pool. The default is the frame context's logger.
//
// Parameters:
//   - l: the logger
//
// Returns:
//   - ManagerBuilderOption: a function that applies the logger option to a manager
func WithLogger(l logr.Logger) ManagerBuilderOption {
	return func(m *managerImpl) {
		m.log = l.WithName("lighting")
	}
}

// WithProfiler times the shadow, indirect and lighting phases.
//
// Parameters:
//   - p: the profiler
//
// Returns:
//   - ManagerBuilderOption: a function that applies the profiler option to a manager
func WithProfiler(p *profiler.Profiler) ManagerBuilderOption {
	return func(m *managerImpl) {
		m.profiler = p
	}
}

// WithShadowSettings sets the settings table loaded by EndShadowConfigure.
//
// Parameters:
//   - p: the settings table
//
// Returns:
//   - ManagerBuilderOption: a function that applies the settings option to a manager
func WithShadowSettings(p *properties.Properties) ManagerBuilderOption {
	return func(m *managerImpl) {
		m.source = p
	}
}

// WithShadowSettingsFile sets the properties file EndShadowConfigure loads the settings table from.
//
// Parameters:
//   - path: the file path
//
// Returns:
//   - ManagerBuilderOption: a function that applies the settings file option to a manager
func WithShadowSettingsFile(path string) ManagerBuilderOption {
	return func(m *managerImpl) {
		m.sourceFile = path
	}
}

// WithIndirectCallback sets the draw callback of reflective fills scheduled by the grids.
//
// Parameters:
//   - cb: the callback
//
// Returns:
//   - ManagerBuilderOption: a function that applies the callback option to a manager
func WithIndirectCallback(cb Callback) ManagerBuilderOption {
	return func(m *managerImpl) {
		m.indirectCb = cb
	}
}

// WithShadowSystemLOD sets the initial shadow system LOD.
//
// Parameters:
//   - lod: the LOD
//
// Returns:
//   - ManagerBuilderOption: a function that applies the LOD option to a manager
func WithShadowSystemLOD(lod int32) ManagerBuilderOption {
	return func(m *managerImpl) {
		m.shadowLOD = lod
	}
}

// WithIndirectSystemLOD sets the initial indirect system LOD.
//
// Parameters:
//   - lod: the LOD
//
// Returns:
//   - ManagerBuilderOption: a function that applies the LOD option to a manager
func WithIndirectSystemLOD(lod int32) ManagerBuilderOption {
	return func(m *managerImpl) {
		m.indirectLOD = lod
	}
}

// WithIndirectMethod sets the indirect lighting method pushed to lights.
//
// Parameters:
//   - method: the method
//
// Returns:
//   - ManagerBuilderOption: a function that applies the method option to a manager
func WithIndirectMethod(method shadow.IndirectMethod) ManagerBuilderOption {
	return func(m *managerImpl) {
		m.indirectMethod = method
	}
}

// WithDynamicTimeThreshold sets how many seconds after its last change a light
// still counts as dynamic. The default is 1.5.
//
// Parameters:
//   - seconds: the threshold
//
// Returns:
//   - ManagerBuilderOption: a function that applies the threshold option to a manager
func WithDynamicTimeThreshold(seconds float64) ManagerBuilderOption {
	return func(m *managerImpl) {
		if seconds > 0 {
			m.dynamicTime = seconds
		}
	}
}

// Package visibility holds the visible-object sets that lights and cameras
// compute each frame, along with the dirty-epoch queries the shadow pipeline
// uses to decide when a shadow map has to be regenerated.
package visibility

import (
	"github.com/Carmen-Shannon/oxy-shadow/common"
)

// Object is a scene entity that can be culled into a Set.
type Object interface {
	// ID returns the object's unique identifier within its scene.
	//
	// Returns:
	//   - uint64: the identifier
	ID() uint64

	// Name returns the object's display name.
	//
	// Returns:
	//   - string: the name
	Name() string

	// WorldBounds returns the object's world space bounding box.
	//
	// Returns:
	//   - common.BoundingBox: the bounds
	WorldBounds() common.BoundingBox

	// DirtyFrame returns the frame on which the object was last modified.
	//
	// Returns:
	//   - int64: the frame counter, or frame.NeverFrame when the object was never modified
	DirtyFrame() int64

	// Alive reports whether the object is still part of its scene. An object that
	// was removed stays reachable from sets computed before the removal.
	//
	// Returns:
	//   - bool: false once the object has been removed
	Alive() bool

	// CastsShadows reports whether the object renders into shadow maps.
	//
	// Returns:
	//   - bool: true if the object is a shadow caster
	CastsShadows() bool

	// ReceivesShadows reports whether the object samples shadow maps during lighting.
	//
	// Returns:
	//   - bool: true if the object is a shadow receiver
	ReceivesShadows() bool

	// IsRenderable reports whether the object has anything to draw.
	//
	// Returns:
	//   - bool: true if the object is renderable
	IsRenderable() bool
}

// IsDirtySince reports whether o was modified on or after frame.
//
// Parameters:
//   - o: the object to test
//   - frame: the epoch to compare against
//
// Returns:
//   - bool: true if the object's dirty frame is not older than frame
func IsDirtySince(o Object, frame int64) bool {
	return o.DirtyFrame() >= frame
}

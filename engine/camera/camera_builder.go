package camera

import (
	"github.com/Carmen-Shannon/oxy-shadow/common"
)

type CameraBuilderOption func(*cameraImpl)

// WithUp sets the camera's up vector.
//
// Parameters:
//   - x, y, z: up vector components
//
// Returns:
//   - CameraBuilderOption: a function that sets the camera's up vector
func WithUp(x, y, z float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.up = [3]float32{x, y, z}
	}
}

// WithPerspective configures a perspective projection.
//
// Parameters:
//   - fov: vertical field of view in radians
//   - aspect: width / height
//   - near, far: clip plane distances
//
// Returns:
//   - CameraBuilderOption: a function that sets the projection
func WithPerspective(fov, aspect, near, far float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.projection = ProjectionPerspective
		c.fov, c.aspect, c.near, c.far = fov, aspect, near, far
	}
}

// WithOrthographic configures an off-center orthographic projection.
//
// Parameters:
//   - left, right, bottom, top: view space extents
//   - near, far: clip plane distances
//
// Returns:
//   - CameraBuilderOption: a function that sets the projection
func WithOrthographic(left, right, bottom, top, near, far float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.projection = ProjectionOrthographic
		c.orthoRect = [4]float32{left, right, bottom, top}
		if top != bottom {
			c.aspect = (right - left) / (top - bottom)
		}
		c.near, c.far = near, far
	}
}

// WithLookAt places the camera with an explicit eye, target and up vector.
//
// Parameters:
//   - eye: the eye position
//   - target: the look-at point
//   - up: the up hint
//
// Returns:
//   - CameraBuilderOption: a function that sets the view transform
func WithLookAt(eye, target, up [3]float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.up = up
		c.explicitView = true
		common.LookAt(c.viewMatrix[:], eye[0], eye[1], eye[2], target[0], target[1], target[2], up[0], up[1], up[2])
	}
}

// WithController attaches a controller that drives the camera's view transform.
//
// Parameters:
//   - ctrl: the camera controller
//
// Returns:
//   - CameraBuilderOption: a function that sets the controller
func WithController(ctrl CameraController) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.controller = ctrl
		c.explicitView = false
	}
}

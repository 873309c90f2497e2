package camera

import (
	"math"
	"sync"

	"github.com/Carmen-Shannon/oxy-shadow/common"
)

// Projection selects how a camera maps view space to clip space.
type Projection int

const (
	// ProjectionPerspective uses a symmetric perspective frustum (fov, aspect).
	ProjectionPerspective Projection = iota

	// ProjectionOrthographic uses an off-center orthographic box.
	ProjectionOrthographic
)

type cameraImpl struct {
	mu *sync.Mutex

	up [3]float32

	projection Projection
	fov        float32
	aspect     float32
	near       float32
	far        float32
	orthoRect  [4]float32 // left, right, bottom, top

	// explicitView is set when the view matrix was supplied directly rather
	// than derived from a controller.
	explicitView bool

	viewMatrix                  [16]float32
	projectionMatrix            [16]float32
	viewProjectionMatrix        [16]float32
	inverseViewMatrix           [16]float32
	inverseViewProjectionMatrix [16]float32

	controller CameraController
}

// Camera holds projection settings and a view transform and derives the
// matrices, frustum and corner points used by culling and shadow fitting.
//
// The view transform comes either from an attached CameraController (updated
// through Update) or from SetView / LookAt for cameras that are placed by
// code, such as the light cameras of shadow generators.
type Camera interface {
	// Up returns the camera's up vector.
	//
	// Returns:
	//   - x, y, z: up vector components
	Up() (x, y, z float32)

	// Fov returns the vertical field of view in radians. Orthographic cameras return 0.
	Fov() float32

	// Aspect returns the aspect ratio (width / height).
	Aspect() float32

	// Near returns the near clipping plane distance.
	Near() float32

	// Far returns the far clipping plane distance.
	Far() float32

	// Projection returns the projection kind.
	Projection() Projection

	// OrthoRect returns the left, right, bottom and top extents of an orthographic camera.
	OrthoRect() [4]float32

	// Position returns the world space eye position.
	//
	// Returns:
	//   - [3]float32: the eye position
	Position() [3]float32

	// Direction returns the normalized world space view direction.
	//
	// Returns:
	//   - [3]float32: the forward vector
	Direction() [3]float32

	// ViewMatrix returns the world to view transform.
	ViewMatrix() [16]float32

	// ProjectionMatrix returns the view to clip transform.
	ProjectionMatrix() [16]float32

	// ViewProjectionMatrix returns Projection * View.
	ViewProjectionMatrix() [16]float32

	// InverseViewMatrix returns the view to world transform.
	InverseViewMatrix() [16]float32

	// InverseViewProjectionMatrix returns the clip to world transform.
	InverseViewProjectionMatrix() [16]float32

	// SetUp sets the camera's up vector.
	SetUp(x, y, z float32)

	// SetPerspective switches to a perspective projection.
	//
	// Parameters:
	//   - fov: vertical field of view in radians
	//   - aspect: width / height
	//   - near, far: clip plane distances
	SetPerspective(fov, aspect, near, far float32)

	// SetOrthographic switches to an off-center orthographic projection.
	//
	// Parameters:
	//   - left, right, bottom, top: view space extents
	//   - near, far: clip plane distances
	SetOrthographic(left, right, bottom, top, near, far float32)

	// SetNearFar changes only the clip plane distances.
	SetNearFar(near, far float32)

	// SetView sets the world to view transform directly and detaches the controller.
	//
	// Parameters:
	//   - view: the view matrix (column-major)
	SetView(view [16]float32)

	// LookAt places the camera at eye looking toward target and detaches the controller.
	//
	// Parameters:
	//   - eye: the eye position
	//   - target: the look-at point
	//   - up: the up hint
	LookAt(eye, target, up [3]float32)

	// Frustum returns the world space culling frustum.
	Frustum() common.Frustum

	// Corners returns the eight world space frustum corners, near plane first.
	//
	// Returns:
	//   - [8][3]float32: the corners
	//   - bool: false if the view-projection matrix is singular
	Corners() ([8][3]float32, bool)

	// Split returns a copy of the camera restricted to the depth range [near, far].
	//
	// Parameters:
	//   - near, far: the clip plane distances of the copy
	//
	// Returns:
	//   - Camera: the split camera
	Split(near, far float32) Camera

	// Clone returns an independent copy of the camera.
	Clone() Camera

	// Controller returns the attached controller, or nil.
	Controller() CameraController

	// SetController attaches a controller that drives the view transform on Update.
	SetController(ctrl CameraController)

	// Update recomputes the view transform from the controller.
	Update()

	// Uniform returns the packed camera constants for upload.
	Uniform() GPUCameraUniform
}

var _ Camera = &cameraImpl{}

// NewCamera creates a perspective camera at the origin looking down -Z.
//
// Parameters:
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the newly created camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		mu:         &sync.Mutex{},
		up:         [3]float32{0, 1, 0},
		projection: ProjectionPerspective,
		fov:        45.0 * (math.Pi / 180.0),
		aspect:     1.0,
		near:       0.1,
		far:        100.0,
		viewMatrix: common.IdentityMatrix(),
	}
	for _, option := range options {
		option(c)
	}
	c.updateMatrices()
	return c
}

func (c *cameraImpl) Up() (x, y, z float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.up[0], c.up[1], c.up[2]
}

func (c *cameraImpl) Fov() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.projection == ProjectionOrthographic {
		return 0
	}
	return c.fov
}

func (c *cameraImpl) Aspect() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aspect
}

func (c *cameraImpl) Near() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.near
}

func (c *cameraImpl) Far() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.far
}

func (c *cameraImpl) Projection() Projection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projection
}

func (c *cameraImpl) OrthoRect() [4]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.orthoRect
}

func (c *cameraImpl) Position() [3]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return [3]float32{c.inverseViewMatrix[12], c.inverseViewMatrix[13], c.inverseViewMatrix[14]}
}

func (c *cameraImpl) Direction() [3]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return common.Normalize3([3]float32{-c.inverseViewMatrix[8], -c.inverseViewMatrix[9], -c.inverseViewMatrix[10]})
}

func (c *cameraImpl) ViewMatrix() [16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewMatrix
}

func (c *cameraImpl) ProjectionMatrix() [16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projectionMatrix
}

func (c *cameraImpl) ViewProjectionMatrix() [16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewProjectionMatrix
}

func (c *cameraImpl) InverseViewMatrix() [16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inverseViewMatrix
}

func (c *cameraImpl) InverseViewProjectionMatrix() [16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inverseViewProjectionMatrix
}

func (c *cameraImpl) SetUp(x, y, z float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.up = [3]float32{x, y, z}
	c.updateMatrices()
}

func (c *cameraImpl) SetPerspective(fov, aspect, near, far float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.projection = ProjectionPerspective
	c.fov, c.aspect, c.near, c.far = fov, aspect, near, far
	c.updateMatrices()
}

func (c *cameraImpl) SetOrthographic(left, right, bottom, top, near, far float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.projection = ProjectionOrthographic
	c.orthoRect = [4]float32{left, right, bottom, top}
	if top != bottom {
		c.aspect = (right - left) / (top - bottom)
	}
	c.near, c.far = near, far
	c.updateMatrices()
}

func (c *cameraImpl) SetNearFar(near, far float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.near, c.far = near, far
	c.updateMatrices()
}

func (c *cameraImpl) SetView(view [16]float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controller = nil
	c.explicitView = true
	c.viewMatrix = view
	c.updateMatrices()
}

func (c *cameraImpl) LookAt(eye, target, up [3]float32) {
	var view [16]float32
	common.LookAt(view[:], eye[0], eye[1], eye[2], target[0], target[1], target[2], up[0], up[1], up[2])

	c.mu.Lock()
	defer c.mu.Unlock()
	c.controller = nil
	c.explicitView = true
	c.up = up
	c.viewMatrix = view
	c.updateMatrices()
}

func (c *cameraImpl) Frustum() common.Frustum {
	c.mu.Lock()
	defer c.mu.Unlock()
	return common.ExtractFrustumFromMatrix(c.viewProjectionMatrix[:])
}

func (c *cameraImpl) Corners() ([8][3]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return common.FrustumCorners(c.viewProjectionMatrix[:])
}

func (c *cameraImpl) Split(near, far float32) Camera {
	s := c.clone()
	s.near, s.far = near, far
	s.updateMatrices()
	return s
}

func (c *cameraImpl) Clone() Camera {
	return c.clone()
}

func (c *cameraImpl) clone() *cameraImpl {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := *c
	s.mu = &sync.Mutex{}
	s.controller = nil
	s.explicitView = true
	return &s
}

func (c *cameraImpl) Controller() CameraController {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controller
}

func (c *cameraImpl) SetController(ctrl CameraController) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controller = ctrl
	c.explicitView = false
	c.updateMatrices()
}

func (c *cameraImpl) Update() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.controller == nil {
		return
	}
	c.updateMatrices()
}

func (c *cameraImpl) Uniform() GPUCameraUniform {
	c.mu.Lock()
	defer c.mu.Unlock()
	return GPUCameraUniform{
		ViewProj:       c.viewProjectionMatrix,
		CameraPosition: [3]float32{c.inverseViewMatrix[12], c.inverseViewMatrix[13], c.inverseViewMatrix[14]},
		Near:           c.near,
		Far:            c.far,
	}
}

// updateMatrices recalculates every derived matrix. When a controller is
// attached the view matrix is rebuilt from its position and target first.
// Caller must hold the mutex.
func (c *cameraImpl) updateMatrices() {
	if c.controller != nil && !c.explicitView {
		px, py, pz := c.controller.Position()
		tx, ty, tz := c.controller.Target()
		common.LookAt(c.viewMatrix[:],
			px, py, pz,
			tx, ty, tz,
			c.up[0], c.up[1], c.up[2],
		)
	}

	switch c.projection {
	case ProjectionOrthographic:
		r := c.orthoRect
		common.Ortho(c.projectionMatrix[:], r[0], r[1], r[2], r[3], c.near, c.far)
	default:
		common.Perspective(c.projectionMatrix[:], c.fov, c.aspect, c.near, c.far)
	}

	common.Mul4(c.viewProjectionMatrix[:], c.projectionMatrix[:], c.viewMatrix[:])
	if !common.Invert4(c.inverseViewMatrix[:], c.viewMatrix[:]) {
		c.inverseViewMatrix = common.IdentityMatrix()
	}
	if !common.Invert4(c.inverseViewProjectionMatrix[:], c.viewProjectionMatrix[:]) {
		c.inverseViewProjectionMatrix = common.IdentityMatrix()
	}
}

package game_object

import (
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-shadow/common"
	"github.com/Carmen-Shannon/oxy-shadow/engine/frame"
	"github.com/Carmen-Shannon/oxy-shadow/engine/light"
	"github.com/Carmen-Shannon/oxy-shadow/engine/visibility"
	"github.com/chewxy/math32"
)

type gameObject struct {
	mu *sync.Mutex

	id      uint64
	name    string
	enabled atomic.Bool
	alive   atomic.Bool
	clock   frame.Clock
	dirty   int64

	position      [3]float32
	scale         [3]float32
	rotation      [3]float32
	rotationSpeed [3]float32
	halfExtents   [3]float32

	castsShadows    bool
	receivesShadows bool

	attachedLight light.Light
}

// GameObject is a scene entity the lighting pipeline culls into visibility
// sets. Every transform change stamps the object's dirty epoch with the
// current frame so shadow maps that saw it are regenerated.
type GameObject interface {
	visibility.Object

	// SetID sets the object's unique identifier.
	//
	// Parameters:
	//   - id: the ID to assign
	SetID(id uint64)

	// SetName sets the object's display name.
	//
	// Parameters:
	//   - name: the name
	SetName(name string)

	// Enabled returns whether this object is enabled for rendering.
	//
	// Returns:
	//   - bool: true if enabled
	Enabled() bool

	// SetEnabled sets whether the object is enabled for rendering.
	//
	// Parameters:
	//   - enabled: true to enable
	SetEnabled(enabled bool)

	// SetClock binds the clock dirty epochs are read from and marks the object dirty.
	// The scene calls it when the object is added.
	//
	// Parameters:
	//   - c: the frame clock
	SetClock(c frame.Clock)

	// Detach marks the object as removed from its scene.
	Detach()

	// Position returns the world-space position.
	//
	// Returns:
	//   - x, y, z: position components
	Position() (x, y, z float32)

	// Rotation returns the Euler rotation in radians.
	//
	// Returns:
	//   - rx, ry, rz: rotation angles
	Rotation() (rx, ry, rz float32)

	// RotationSpeed returns the rotation applied per second by Advance.
	//
	// Returns:
	//   - rx, ry, rz: rotation speed values in radians per second
	RotationSpeed() (rx, ry, rz float32)

	// Scale returns the scale.
	//
	// Returns:
	//   - sx, sy, sz: scale components
	Scale() (sx, sy, sz float32)

	// SetPosition moves the object. An attached light follows it.
	//
	// Parameters:
	//   - x, y, z: new position components
	SetPosition(x, y, z float32)

	// SetRotation sets the Euler rotation.
	//
	// Parameters:
	//   - rx, ry, rz: rotation angles in radians
	SetRotation(rx, ry, rz float32)

	// SetRotationSpeed sets the rotation applied per second by Advance.
	//
	// Parameters:
	//   - rx, ry, rz: rotation speed values in radians per second
	SetRotationSpeed(rx, ry, rz float32)

	// SetScale sets the scale.
	//
	// Parameters:
	//   - sx, sy, sz: scale components
	SetScale(sx, sy, sz float32)

	// SetCastsShadows sets whether the object renders into shadow maps.
	SetCastsShadows(casts bool)

	// SetReceivesShadows sets whether the object samples shadow maps.
	SetReceivesShadows(receives bool)

	// Advance applies the rotation speed over dt seconds. A still object keeps
	// its dirty epoch.
	//
	// Parameters:
	//   - dt: elapsed time in seconds
	Advance(dt float32)

	// Light returns the light attached to this object, or nil.
	Light() light.Light

	// SetLight attaches a light that follows the object's position.
	//
	// Parameters:
	//   - l: the light, or nil to detach
	SetLight(l light.Light)
}

var _ GameObject = &gameObject{}

// NewGameObject creates a GameObject with a unit box as its local bounds.
// It casts and receives shadows unless told otherwise.
//
// Parameters:
//   - options: builder options
//
// Returns:
//   - GameObject: the object
func NewGameObject(options ...GameObjectBuilderOption) GameObject {
	g := &gameObject{
		mu:              &sync.Mutex{},
		dirty:           frame.NeverFrame,
		scale:           [3]float32{1, 1, 1},
		halfExtents:     [3]float32{0.5, 0.5, 0.5},
		castsShadows:    true,
		receivesShadows: true,
	}
	g.enabled.Store(true)
	g.alive.Store(true)
	for _, opt := range options {
		opt(g)
	}
	if g.attachedLight != nil {
		g.attachedLight.SetPosition(g.position[0], g.position[1], g.position[2])
	}
	return g
}

// touch stamps the dirty epoch. Callers hold mu.
func (g *gameObject) touch() {
	if g.clock == nil {
		g.dirty = 0
		return
	}
	g.dirty = g.clock.Frame()
}

func (g *gameObject) ID() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.id
}

func (g *gameObject) Name() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.name
}

func (g *gameObject) WorldBounds() common.BoundingBox {
	g.mu.Lock()
	defer g.mu.Unlock()
	m := g.worldMatrix()
	return common.NewBoundingBox([3]float32{}, g.halfExtents).Transform(m[:])
}

// worldMatrix composes translation, Y-X-Z rotation and scale. Callers hold mu.
func (g *gameObject) worldMatrix() [16]float32 {
	sx, cx := math32.Sincos(g.rotation[0])
	sy, cy := math32.Sincos(g.rotation[1])
	sz, cz := math32.Sincos(g.rotation[2])

	// R = Ry * Rx * Rz, columns scaled by the object scale.
	r := [9]float32{
		cy*cz + sy*sx*sz, cx * sz, -sy*cz + cy*sx*sz,
		-cy*sz + sy*sx*cz, cx * cz, sy*sz + cy*sx*cz,
		sy * cx, -sx, cy * cx,
	}
	var m [16]float32
	for c := range 3 {
		for row := range 3 {
			m[c*4+row] = r[c*3+row] * g.scale[c]
		}
	}
	m[12], m[13], m[14], m[15] = g.position[0], g.position[1], g.position[2], 1
	return m
}

func (g *gameObject) DirtyFrame() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dirty
}

func (g *gameObject) Alive() bool {
	return g.alive.Load()
}

func (g *gameObject) CastsShadows() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.castsShadows
}

func (g *gameObject) ReceivesShadows() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.receivesShadows
}

func (g *gameObject) IsRenderable() bool {
	return g.enabled.Load() && g.alive.Load()
}

func (g *gameObject) SetID(id uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.id = id
}

func (g *gameObject) SetName(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.name = name
}

func (g *gameObject) Enabled() bool {
	return g.enabled.Load()
}

func (g *gameObject) SetEnabled(enabled bool) {
	if g.enabled.Swap(enabled) == enabled {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.touch()
}

func (g *gameObject) SetClock(c frame.Clock) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clock = c
	g.touch()
}

func (g *gameObject) Detach() {
	g.alive.Store(false)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.touch()
}

func (g *gameObject) Position() (x, y, z float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.position[0], g.position[1], g.position[2]
}

func (g *gameObject) Rotation() (rx, ry, rz float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rotation[0], g.rotation[1], g.rotation[2]
}

func (g *gameObject) RotationSpeed() (rx, ry, rz float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rotationSpeed[0], g.rotationSpeed[1], g.rotationSpeed[2]
}

func (g *gameObject) Scale() (sx, sy, sz float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.scale[0], g.scale[1], g.scale[2]
}

func (g *gameObject) SetPosition(x, y, z float32) {
	g.mu.Lock()
	g.position = [3]float32{x, y, z}
	g.touch()
	l := g.attachedLight
	g.mu.Unlock()

	if l != nil {
		l.SetPosition(x, y, z)
	}
}

func (g *gameObject) SetRotation(rx, ry, rz float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rotation = [3]float32{rx, ry, rz}
	g.touch()
}

func (g *gameObject) SetRotationSpeed(rx, ry, rz float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rotationSpeed = [3]float32{rx, ry, rz}
}

func (g *gameObject) SetScale(sx, sy, sz float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scale = [3]float32{sx, sy, sz}
	g.touch()
}

func (g *gameObject) SetCastsShadows(casts bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.castsShadows = casts
	g.touch()
}

func (g *gameObject) SetReceivesShadows(receives bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.receivesShadows = receives
	g.touch()
}

func (g *gameObject) Advance(dt float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if dt <= 0 || g.rotationSpeed == [3]float32{} {
		return
	}
	for i := range 3 {
		g.rotation[i] += g.rotationSpeed[i] * dt
	}
	g.touch()
}

func (g *gameObject) Light() light.Light {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.attachedLight
}

func (g *gameObject) SetLight(l light.Light) {
	g.mu.Lock()
	g.attachedLight = l
	pos := g.position
	g.mu.Unlock()

	if l != nil {
		l.SetPosition(pos[0], pos[1], pos[2])
	}
}

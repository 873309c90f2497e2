package frame

import (
	"sync"
)

// NeverFrame marks a frame counter that has not been set yet.
const NeverFrame int64 = -1

// Clock is the frame clock shared by every lighting component. Frame numbers
// and times come from here instead of a global timer, which keeps dirty epoch
// comparisons explicit and testable.
type Clock interface {
	// Frame returns the current frame counter. It is 0 before the first Advance.
	Frame() int64

	// Time returns the simulated time in seconds since the clock started.
	Time() float64

	// Delta returns the duration of the last frame in seconds.
	Delta() float64

	// FrameRate returns the smoothed frames per second, or 0 before the first
	// frame with a non-zero delta.
	FrameRate() float64

	// Advance starts a new frame.
	//
	// Parameters:
	//   - dt: the duration of the finished frame in seconds
	Advance(dt float64)
}

type clockImpl struct {
	mu *sync.Mutex

	frame     int64
	time      float64
	delta     float64
	frameRate float64
}

var _ Clock = &clockImpl{}

// NewClock creates a clock at frame 0, time 0.
//
// Returns:
//   - Clock: the clock
func NewClock() Clock {
	return &clockImpl{mu: &sync.Mutex{}}
}

func (c *clockImpl) Frame() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frame
}

func (c *clockImpl) Time() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.time
}

func (c *clockImpl) Delta() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delta
}

func (c *clockImpl) FrameRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frameRate
}

func (c *clockImpl) Advance(dt float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if dt < 0 {
		dt = 0
	}
	c.frame++
	c.time += dt
	c.delta = dt
	if dt > 0 {
		fps := 1 / dt
		if c.frameRate == 0 {
			c.frameRate = fps
		} else {
			c.frameRate = c.frameRate*0.9 + fps*0.1
		}
	}
}

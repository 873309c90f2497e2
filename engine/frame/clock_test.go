package frame

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-shadow/engine/renderer"
	"github.com/go-logr/logr"
)

func TestClockAdvance(t *testing.T) {
	c := NewClock()
	if c.Frame() != 0 || c.FrameRate() != 0 {
		t.Fatalf("fresh clock frame=%d rate=%v", c.Frame(), c.FrameRate())
	}
	c.Advance(0.5)
	c.Advance(0.5)
	if c.Frame() != 2 {
		t.Errorf("frame = %d, want 2", c.Frame())
	}
	if c.Time() != 1 {
		t.Errorf("time = %v, want 1", c.Time())
	}
	if c.FrameRate() != 2 {
		t.Errorf("frame rate = %v, want 2", c.FrameRate())
	}
	c.Advance(-1)
	if c.Delta() != 0 || c.Time() != 1 {
		t.Errorf("negative delta applied: delta=%v time=%v", c.Delta(), c.Time())
	}
}

func TestNewContextDefaults(t *testing.T) {
	ctx := NewContext(renderer.NewRenderer(renderer.BackendTypeHeadless), nil, logr.Logger{})
	if ctx.Clock == nil {
		t.Fatal("nil clock not replaced")
	}
	if ctx.Frame() != 0 {
		t.Errorf("frame = %d", ctx.Frame())
	}
	ctx.Logger.Info("discarded")
}

package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-shadow/engine/camera"
	"github.com/Carmen-Shannon/oxy-shadow/engine/frame"
	"github.com/Carmen-Shannon/oxy-shadow/engine/game_object"
	"github.com/Carmen-Shannon/oxy-shadow/engine/lighting"
	"github.com/Carmen-Shannon/oxy-shadow/engine/renderer"
	"github.com/Carmen-Shannon/oxy-shadow/engine/scene"
	"github.com/go-logr/logr"
	"github.com/google/go-cmp/cmp"
)

func newScene(t *testing.T, name string, active bool) scene.Scene {
	t.Helper()
	r := renderer.NewRenderer(renderer.BackendTypeHeadless)
	ctx := frame.NewContext(r, frame.NewClock(), logr.Discard())
	m := lighting.NewManager(ctx)
	cam := camera.NewCamera(camera.WithLookAt([3]float32{0, 2, 10}, [3]float32{}, [3]float32{0, 1, 0}))
	return scene.NewScene(name, cam, m,
		scene.WithActive(active),
		scene.WithComputeWorkers(1),
		scene.WithObjects(game_object.NewGameObject()),
	)
}

type frameRecord struct {
	Key   int
	Frame int64
}

func TestRunFrameBudget(t *testing.T) {
	e := NewEngine(WithPacing(false), WithFrameBudget(3), WithTickRate(30))
	e.AddScene(2, newScene(t, "overlay", true))
	e.AddScene(1, newScene(t, "world", true))
	e.AddScene(0, newScene(t, "paused", false))

	var got []frameRecord
	var ticks int
	e.SetTickCallback(func(dt float32) { ticks++ })
	e.SetFrameCallback(func(key int, stats scene.FrameStats) {
		got = append(got, frameRecord{Key: key, Frame: stats.Frame})
	})

	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	want := []frameRecord{{1, 1}, {2, 1}, {1, 2}, {2, 2}, {1, 3}, {2, 3}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
	if ticks != 3 {
		t.Errorf("tick callback ran %d times, want 3", ticks)
	}
	if f := e.Scene(0).Context().Frame(); f != 0 {
		t.Errorf("inactive scene advanced to frame %d", f)
	}
}

func TestRunStops(t *testing.T) {
	t.Run("canceled context", func(t *testing.T) {
		e := NewEngine(WithPacing(false))
		e.AddScene(0, newScene(t, "world", true))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := e.Run(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	})

	t.Run("quit from a tick", func(t *testing.T) {
		e := NewEngine(WithPacing(false))
		s := newScene(t, "world", true)
		e.AddScene(0, s)
		e.SetTickCallback(func(float32) {
			if s.Context().Frame() >= 4 {
				e.Quit()
				e.Quit()
			}
		})
		if err := e.Run(context.Background()); err != nil {
			t.Fatalf("Run() = %v", err)
		}
		if f := s.Context().Frame(); f != 5 {
			t.Errorf("scene stopped at frame %d, want 5", f)
		}
	})

	t.Run("panicking frame", func(t *testing.T) {
		e := NewEngine(WithPacing(false), WithFrameBudget(1))
		e.SetTickCallback(func(float32) { panic("boom") })
		if err := e.Run(context.Background()); err == nil {
			t.Error("Run() = nil, want the recovered panic")
		}
	})
}

package game_object

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-shadow/common"
	"github.com/Carmen-Shannon/oxy-shadow/engine/frame"
	"github.com/Carmen-Shannon/oxy-shadow/engine/light"
	"github.com/Carmen-Shannon/oxy-shadow/engine/lighting"
	"github.com/Carmen-Shannon/oxy-shadow/engine/renderer"
	"github.com/chewxy/math32"
	"github.com/go-logr/logr"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestWorldBounds(t *testing.T) {
	tests := []struct {
		name    string
		options []GameObjectBuilderOption
		want    common.BoundingBox
	}{
		{
			name:    "unit box",
			options: nil,
			want:    common.NewBoundingBox([3]float32{}, [3]float32{0.5, 0.5, 0.5}),
		},
		{
			name:    "translated and scaled",
			options: []GameObjectBuilderOption{WithPosition(1, 2, 3), WithScale(2, 4, 2)},
			want:    common.NewBoundingBox([3]float32{1, 2, 3}, [3]float32{1, 2, 1}),
		},
		{
			name:    "quarter turn about y swaps x and z",
			options: []GameObjectBuilderOption{WithHalfExtents(3, 1, 1), WithRotation(0, math32.Pi/2, 0)},
			want:    common.NewBoundingBox([3]float32{}, [3]float32{1, 1, 3}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewGameObject(tt.options...).WorldBounds()
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateApprox(0, 1e-5)); diff != "" {
				t.Errorf("WorldBounds() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDirtyEpoch(t *testing.T) {
	clock := frame.NewClock()
	obj := NewGameObject(WithName("crate"))
	if got := obj.DirtyFrame(); got != frame.NeverFrame {
		t.Fatalf("DirtyFrame() before binding = %d, want %d", got, frame.NeverFrame)
	}

	clock.Advance(1.0 / 60)
	obj.SetClock(clock)
	if got := obj.DirtyFrame(); got != 1 {
		t.Fatalf("DirtyFrame() after SetClock = %d, want 1", got)
	}

	clock.Advance(1.0 / 60)
	obj.Advance(1)
	if got := obj.DirtyFrame(); got != 1 {
		t.Errorf("DirtyFrame() after a still Advance = %d, want 1", got)
	}

	obj.SetRotationSpeed(0, 1, 0)
	obj.Advance(0.5)
	if got := obj.DirtyFrame(); got != 2 {
		t.Errorf("DirtyFrame() after a spinning Advance = %d, want 2", got)
	}
	if _, ry, _ := obj.Rotation(); ry != 0.5 {
		t.Errorf("Rotation() y = %v, want 0.5", ry)
	}

	clock.Advance(1.0 / 60)
	obj.SetEnabled(true)
	if got := obj.DirtyFrame(); got != 2 {
		t.Errorf("DirtyFrame() after a no-op SetEnabled = %d, want 2", got)
	}
	obj.SetPosition(0, 1, 0)
	if got := obj.DirtyFrame(); got != 3 {
		t.Errorf("DirtyFrame() after SetPosition = %d, want 3", got)
	}
}

func TestDetach(t *testing.T) {
	obj := NewGameObject()
	if !obj.Alive() || !obj.IsRenderable() {
		t.Fatal("a new object should be alive and renderable")
	}
	obj.SetEnabled(false)
	if obj.IsRenderable() {
		t.Error("a disabled object should not be renderable")
	}
	obj.SetEnabled(true)
	obj.Detach()
	if obj.Alive() || obj.IsRenderable() {
		t.Error("a detached object should be neither alive nor renderable")
	}
}

func TestAttachedLightFollows(t *testing.T) {
	r := renderer.NewRenderer(renderer.BackendTypeHeadless, renderer.WithCapabilities(renderer.DesktopCapabilities()))
	ctx := frame.NewContext(r, frame.NewClock(), logr.Discard())
	m := lighting.NewManager(ctx)

	l := light.NewLight(m, light.LightTypePoint)
	obj := NewGameObject(WithPosition(1, 2, 3), WithLight(l))
	if diff := cmp.Diff([3]float32{1, 2, 3}, l.Position()); diff != "" {
		t.Errorf("light position after construction mismatch (-want +got):\n%s", diff)
	}

	obj.SetPosition(4, 5, 6)
	if diff := cmp.Diff([3]float32{4, 5, 6}, l.Position()); diff != "" {
		t.Errorf("light position after SetPosition mismatch (-want +got):\n%s", diff)
	}

	obj.SetLight(nil)
	obj.SetPosition(0, 0, 0)
	if diff := cmp.Diff([3]float32{4, 5, 6}, l.Position()); diff != "" {
		t.Errorf("detached light moved (-want +got):\n%s", diff)
	}
}

package common

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/google/go-cmp/cmp"
)

func TestBoundingBoxExtendAndIntersect(t *testing.T) {
	b := EmptyBoundingBox()
	if !b.IsEmpty() {
		t.Fatal("empty box reports non-empty")
	}
	b.Extend(NewBoundingBox([3]float32{0, 0, 0}, [3]float32{1, 1, 1}))
	b.Extend(NewBoundingBox([3]float32{4, 0, 0}, [3]float32{1, 1, 1}))
	want := BoundingBox{Min: [3]float32{-1, -1, -1}, Max: [3]float32{5, 1, 1}}
	if diff := cmp.Diff(want, b); diff != "" {
		t.Errorf("extend (-want +got):\n%s", diff)
	}

	o := NewBoundingBox([3]float32{5, 0, 0}, [3]float32{1, 2, 2})
	got := b.Intersect(o)
	want = BoundingBox{Min: [3]float32{4, -1, -1}, Max: [3]float32{5, 1, 1}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("intersect (-want +got):\n%s", diff)
	}

	far := NewBoundingBox([3]float32{50, 0, 0}, [3]float32{1, 1, 1})
	if !b.Intersect(far).IsEmpty() {
		t.Error("disjoint boxes produced a non-empty intersection")
	}
}

func TestBoundingBoxClosestPoint(t *testing.T) {
	b := NewBoundingBox([3]float32{0, 0, 0}, [3]float32{1, 1, 1})
	if got := b.ClosestPoint([3]float32{3, 0.5, -4}); got != [3]float32{1, 0.5, -1} {
		t.Errorf("closest point = %v", got)
	}
	if !b.Contains([3]float32{0.5, -0.5, 1}) {
		t.Error("point on face not contained")
	}
}

func TestFrustumTestAABB(t *testing.T) {
	var view, proj, vp [16]float32
	LookAt(view[:], 0, 0, 0, 0, 0, -1, 0, 1, 0)
	Perspective(proj[:], math32.Pi/2, 1, 1, 100)
	Mul4(vp[:], proj[:], view[:])
	f := ExtractFrustumFromMatrix(vp[:])

	inside := NewBoundingBox([3]float32{0, 0, -10}, [3]float32{1, 1, 1})
	behind := NewBoundingBox([3]float32{0, 0, 10}, [3]float32{1, 1, 1})
	if !f.TestAABB(inside, 0) {
		t.Error("box in front of camera culled")
	}
	if f.TestAABB(behind, 0) {
		t.Error("box behind camera not culled")
	}
	// Skipping the near plane lets the box behind the camera through only if
	// it is inside the side planes, which it is not for a 90 degree frustum.
	if f.TestAABB(behind, 1<<FrustumNear) {
		t.Error("box behind camera should still fail the side planes")
	}
}

func TestFrustumCorners(t *testing.T) {
	var view, proj, vp [16]float32
	LookAt(view[:], 0, 0, 0, 0, 0, -1, 0, 1, 0)
	Perspective(proj[:], math32.Pi/2, 1, 1, 10)
	Mul4(vp[:], proj[:], view[:])
	corners, ok := FrustumCorners(vp[:])
	if !ok {
		t.Fatal("corners failed")
	}
	if diff := cmp.Diff([3]float32{-1, -1, -1}, corners[0], approx); diff != "" {
		t.Errorf("near corner (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([3]float32{10, 10, -10}, corners[6], approx); diff != "" {
		t.Errorf("far corner (-want +got):\n%s", diff)
	}
}

package common

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var approx = cmpopts.EquateApprox(0, 1e-4)

func TestMul4Identity(t *testing.T) {
	var m [16]float32
	LookAt(m[:], 1, 2, 3, 0, 0, 0, 0, 1, 0)
	got := Mul4Array(IdentityMatrix(), m)
	if diff := cmp.Diff(m, got, approx); diff != "" {
		t.Errorf("identity * m mismatch (-want +got):\n%s", diff)
	}
}

func TestInvert4RoundTrip(t *testing.T) {
	var proj, inv [16]float32
	Perspective(proj[:], math32.Pi/3, 1.5, 0.1, 100)
	if !Invert4(inv[:], proj[:]) {
		t.Fatal("perspective matrix reported singular")
	}
	got := Mul4Array(proj, inv)
	if diff := cmp.Diff(IdentityMatrix(), got, approx); diff != "" {
		t.Errorf("proj * inv mismatch (-want +got):\n%s", diff)
	}
}

func TestInvert4Singular(t *testing.T) {
	var zero, out [16]float32
	out[0] = 7
	if Invert4(out[:], zero[:]) {
		t.Fatal("zero matrix inverted")
	}
	if out[0] != 7 {
		t.Errorf("output modified on singular input: %v", out[0])
	}
}

func TestOrthoMapsDepthRange(t *testing.T) {
	var m [16]float32
	Ortho(m[:], -10, 10, -5, 5, 1, 101)
	near := TransformCoord(m[:], [3]float32{10, 5, -1})
	far := TransformCoord(m[:], [3]float32{-10, -5, -101})
	if diff := cmp.Diff([3]float32{1, 1, 0}, near, approx); diff != "" {
		t.Errorf("near corner (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([3]float32{-1, -1, 1}, far, approx); diff != "" {
		t.Errorf("far corner (-want +got):\n%s", diff)
	}
}

func TestTransformNormalIgnoresTranslation(t *testing.T) {
	m := IdentityMatrix()
	m[12], m[13], m[14] = 5, 6, 7
	got := TransformNormal(m[:], [3]float32{0, 1, 0})
	if diff := cmp.Diff([3]float32{0, 1, 0}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestLog2(t *testing.T) {
	tests := []struct {
		in   uint32
		want uint32
	}{
		{0, 0}, {1, 0}, {2, 1}, {3, 1}, {256, 8}, {2048, 11}, {4095, 11},
	}
	for _, tt := range tests {
		if got := Log2(tt.in); got != tt.want {
			t.Errorf("Log2(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

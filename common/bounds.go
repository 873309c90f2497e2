package common

import (
	"github.com/chewxy/math32"
)

// BoundingBox is an axis-aligned box. A box whose Min exceeds its Max on any
// axis is empty; EmptyBoundingBox returns the canonical empty box that grows
// correctly under Extend.
type BoundingBox struct {
	Min [3]float32
	Max [3]float32
}

// EmptyBoundingBox returns a box that contains nothing.
//
// Returns:
//   - BoundingBox: the inverted infinite box
func EmptyBoundingBox() BoundingBox {
	inf := math32.Inf(1)
	return BoundingBox{
		Min: [3]float32{inf, inf, inf},
		Max: [3]float32{-inf, -inf, -inf},
	}
}

// NewBoundingBox builds a box from a center and half extents.
//
// Parameters:
//   - center: the box center
//   - halfExtents: half the size along each axis
//
// Returns:
//   - BoundingBox: the box
func NewBoundingBox(center, halfExtents [3]float32) BoundingBox {
	return BoundingBox{
		Min: [3]float32{center[0] - halfExtents[0], center[1] - halfExtents[1], center[2] - halfExtents[2]},
		Max: [3]float32{center[0] + halfExtents[0], center[1] + halfExtents[1], center[2] + halfExtents[2]},
	}
}

// IsEmpty reports whether the box contains no points.
func (b BoundingBox) IsEmpty() bool {
	return b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] || b.Min[2] > b.Max[2]
}

// Center returns the box center.
func (b BoundingBox) Center() [3]float32 {
	return [3]float32{(b.Min[0] + b.Max[0]) * 0.5, (b.Min[1] + b.Max[1]) * 0.5, (b.Min[2] + b.Max[2]) * 0.5}
}

// Extents returns the half size of the box along each axis.
func (b BoundingBox) Extents() [3]float32 {
	return [3]float32{(b.Max[0] - b.Min[0]) * 0.5, (b.Max[1] - b.Min[1]) * 0.5, (b.Max[2] - b.Min[2]) * 0.5}
}

// ExtendPoint grows the box to contain p.
func (b *BoundingBox) ExtendPoint(p [3]float32) {
	for a := 0; a < 3; a++ {
		b.Min[a] = math32.Min(b.Min[a], p[a])
		b.Max[a] = math32.Max(b.Max[a], p[a])
	}
}

// Extend grows the box to contain o. Empty boxes are ignored.
func (b *BoundingBox) Extend(o BoundingBox) {
	if o.IsEmpty() {
		return
	}
	b.ExtendPoint(o.Min)
	b.ExtendPoint(o.Max)
}

// Intersect returns the overlap of two boxes. The result is empty when they
// do not overlap.
//
// Parameters:
//   - o: the other box
//
// Returns:
//   - BoundingBox: the intersection
func (b BoundingBox) Intersect(o BoundingBox) BoundingBox {
	var r BoundingBox
	for a := 0; a < 3; a++ {
		r.Min[a] = math32.Max(b.Min[a], o.Min[a])
		r.Max[a] = math32.Min(b.Max[a], o.Max[a])
	}
	return r
}

// Contains reports whether p lies inside the box (inclusive).
func (b BoundingBox) Contains(p [3]float32) bool {
	return p[0] >= b.Min[0] && p[0] <= b.Max[0] &&
		p[1] >= b.Min[1] && p[1] <= b.Max[1] &&
		p[2] >= b.Min[2] && p[2] <= b.Max[2]
}

// ClosestPoint returns the point of the box nearest to p.
func (b BoundingBox) ClosestPoint(p [3]float32) [3]float32 {
	var r [3]float32
	for a := 0; a < 3; a++ {
		r[a] = math32.Max(b.Min[a], math32.Min(p[a], b.Max[a]))
	}
	return r
}

// Transform returns the axis-aligned box enclosing the eight transformed
// corners of b.
//
// Parameters:
//   - m: the transform (16 elements, column-major)
//
// Returns:
//   - BoundingBox: the enclosing box in the target space
func (b BoundingBox) Transform(m []float32) BoundingBox {
	if b.IsEmpty() {
		return b
	}
	r := EmptyBoundingBox()
	for i := 0; i < 8; i++ {
		c := [3]float32{b.Min[0], b.Min[1], b.Min[2]}
		if i&1 != 0 {
			c[0] = b.Max[0]
		}
		if i&2 != 0 {
			c[1] = b.Max[1]
		}
		if i&4 != 0 {
			c[2] = b.Max[2]
		}
		r.ExtendPoint(TransformCoord(m, c))
	}
	return r
}

// BoundingBoxFromPoints returns the smallest box containing every point.
func BoundingBoxFromPoints(points ...[3]float32) BoundingBox {
	r := EmptyBoundingBox()
	for _, p := range points {
		r.ExtendPoint(p)
	}
	return r
}

package shadow

import (
	"github.com/Carmen-Shannon/oxy-shadow/common"
	"github.com/chewxy/math32"
)

// lightOrigin is the fixed eye of parallel light cameras. Keeping it constant
// makes the light view a pure rotation of world space, so texel snapping in
// view space is stable while the scene camera moves.
var lightOrigin = [3]float32{0, 15000, 0}

// lookAlongLight orients the generator camera along the light direction and
// returns the resulting view matrix.
func (g *generatorImpl) lookAlongLight() [16]float32 {
	dir := common.Normalize3(g.src.Direction())
	up := [3]float32{0, 1, 0}
	if math32.Abs(dir[1]) > 0.99 {
		up = [3]float32{0, 0, 1}
	}
	g.cam.LookAt(lightOrigin, common.Add3(lightOrigin, dir), up)
	return g.cam.ViewMatrix()
}

// fitSphere fits the projection to the bounding sphere of the split corners.
// The sphere does not change when the scene camera rotates, and the window
// centre is snapped to whole texels, so static shadows do not shimmer.
func (g *generatorImpl) fitSphere(split Split, corners [8][3]float32) {
	var center [3]float32
	for _, c := range corners {
		center = common.Add3(center, c)
	}
	center = common.Scale3(center, 1.0/8)

	if split != g.sphereSplit || g.sphereRadius == 0 {
		var radius float32
		for _, c := range corners {
			radius = math32.Max(radius, common.Length3(common.Sub3(c, center)))
		}
		g.sphereSplit, g.sphereRadius = split, radius
	}
	radius := g.sphereRadius

	view := g.lookAlongLight()
	vc := common.TransformCoord(view[:], center)

	res := float32(max(g.resolution, 1))
	border := math32.Max(0, (g.settings.FilterRadius-1)/2)
	size := 2 * radius * (res + border) / res
	texel := size / res
	cx := vc[0] - math32.Mod(vc[0], texel)
	cy := vc[1] - math32.Mod(vc[1], texel)
	half := size / 2

	near := -(vc[2] + radius)
	if casters := g.visibility.CasterBounds().Transform(view[:]); !casters.IsEmpty() {
		near = math32.Min(near, -casters.Max[2])
	}
	far := -(vc[2] - radius)
	if far <= near {
		far = near + 1
	}
	g.cam.SetOrthographic(cx-half, cx+half, cy-half, cy+half, near, far)
}

// fitBounds fits the projection tightly to the receivers inside the split and
// pulls the near plane back to the casters that shadow them.
func (g *generatorImpl) fitBounds(corners [8][3]float32) {
	view := g.lookAlongLight()

	splitBox := common.BoundingBoxFromPoints(corners[:]...)
	receivers := g.visibility.ReceiverBounds().Intersect(splitBox)
	if receivers.IsEmpty() {
		receivers = splitBox
	}
	vr := receivers.Transform(view[:])

	near := -vr.Max[2]
	if casters := g.visibility.CasterBounds().Transform(view[:]); !casters.IsEmpty() {
		near = math32.Min(near, -casters.Max[2])
	}
	far := -vr.Min[2]
	if far <= near {
		far = near + 1
	}
	g.cam.SetOrthographic(vr.Min[0], vr.Max[0], vr.Min[1], vr.Max[1], near, far)
}

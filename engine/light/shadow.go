package light

import (
	"github.com/Carmen-Shannon/oxy-shadow/common"
	"github.com/Carmen-Shannon/oxy-shadow/engine/camera"
	"github.com/Carmen-Shannon/oxy-shadow/engine/lighting"
	"github.com/Carmen-Shannon/oxy-shadow/engine/lighting/shadow"
	"github.com/Carmen-Shannon/oxy-shadow/engine/renderer"
	"github.com/Carmen-Shannon/oxy-shadow/engine/visibility"
)

// resolution returns the map size for a total resolution adjustment:
// the pool maximum halved adjust times, but never below the pool minimum.
func (l *lightImpl) resolution(adjust uint32) uint32 {
	maxRes := l.manager.MaxShadowResolution()
	if maxRes == 0 {
		return 0
	}
	top := common.Log2(maxRes)
	res := uint32(1) << (top - min(adjust, top))
	return max(res, l.manager.Pool().Config().MinResolution)
}

// lightSettings returns the light tuning for a settings index.
func lightSettings(index int, settings []shadow.SettingsLight) shadow.SettingsLight {
	if index >= 0 && index < len(settings) {
		return settings[index]
	}
	return shadow.DefaultSettingsLight()
}

// configure picks the preset for the light's LOD list and pushes it to a
// generator. Reflective generators only accept RSM presets, shadow
// generators only accept the others.
func (l *lightImpl) configure(g shadow.Generator, lods []shadow.LOD, settings []shadow.SettingsLight, reflective bool) bool {
	index, entry := l.manager.GetShadowSettings(lods, reflective)
	if index == lighting.NoSettingsIndex {
		l.log.V(1).Info("no shadow settings qualify", "light", l.Name(), "reflective", reflective)
		return false
	}
	if entry.Settings.Method.Has(shadow.RSM) != reflective {
		l.log.V(1).Info("shadow settings do not match the generator", "light", l.Name(), "entry", entry.Name, "reflective", reflective)
		return false
	}
	ls := lightSettings(index, settings)
	res := l.resolution(ls.ResolutionAdjust + entry.Settings.ResolutionAdjust)
	return g.Update(res, entry.Settings, ls, entry.Descriptions, entry.Flags)
}

// computeLevelOfDetail applies the shadow distance fades for the camera and
// selects the shadow preset for the current system LOD.
func (l *lightImpl) computeLevelOfDetail(cam camera.Camera) bool {
	l.mu.Lock()
	compute := l.shadowGen != nil && l.enabled && l.castsShadows && l.shadowStage == lighting.StageRuntime
	var d float32
	if l.lightType != LightTypeDirectional && cam != nil {
		d = common.Length3(common.Sub3(cam.Position(), l.position))
	}
	atten, inside := l.shadowFade.at(d)
	lodScale, _ := l.shadowLODFade.at(d)
	if l.lightType == LightTypeDirectional {
		atten, inside, lodScale = 1, true, 1
	}
	if !inside {
		compute = false
	}
	l.shadowAttenuation = atten
	l.shadowLODScale = lodScale
	if !compute {
		l.shadowLODScale = 1
	}
	lods, settings := l.shadowLODs, l.shadowSettings
	l.mu.Unlock()

	if compute {
		compute = l.configure(l.shadowGen, lods, settings, false)
	}
	return compute
}

// shadowSplit returns the scene camera range a directional light covers.
func (l *lightImpl) shadowSplit(cam camera.Camera) (shadow.Split, bool) {
	l.mu.Lock()
	distance := l.shadowDistance
	l.mu.Unlock()

	split := shadow.Split{Near: cam.Near(), Far: cam.Far()}
	if distance > 0 {
		split.Far = min(split.Far, distance)
	}
	return split, split.Far > split.Near
}

func (l *lightImpl) ComputeShadowSets(cam camera.Camera, objects []visibility.Object) {
	compute := l.computeLevelOfDetail(cam)
	var split shadow.Split
	if compute {
		switch l.lightType {
		case LightTypeDirectional:
			if cam == nil {
				compute = false
				break
			}
			var ok bool
			if split, ok = l.shadowSplit(cam); !ok {
				compute = false
				break
			}
			compute = l.shadowGen.ComputeVisibilitySet(cam, objects, &split)
		default:
			compute = l.shadowGen.ComputeVisibilitySet(cam, objects, nil)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.computeShadows = compute
	l.split = split
}

func (l *lightImpl) UpdateIndirectSettings() {
	l.mu.Lock()
	want := l.enabled && l.lightingStage == lighting.StageRuntime && l.isIndirectSource() &&
		l.indirectMethod.Base() != shadow.IndirectNone
	lods, settings := l.indirectLODs, l.indirectSettings
	l.mu.Unlock()

	if want {
		want = l.configure(l.indirectGen, lods, settings, true)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.computeIndirect = want
}

func (l *lightImpl) ComputeIndirectSets(cam camera.Camera, objects []visibility.Object) {
	l.mu.Lock()
	compute := l.computeIndirect
	l.mu.Unlock()
	if !compute {
		return
	}
	l.indirectGen.ComputeVisibilitySet(cam, objects, nil)
}

func (l *lightImpl) ReassignShadowMaps() bool {
	if !l.IsShadowSource() || !l.shadowGen.ContainsRenderableObjects() {
		if l.shadowGen != nil {
			l.shadowGen.ReleaseResources()
		}
		return false
	}
	return l.shadowGen.ReassignResources()
}

func (l *lightImpl) ReassignIndirectMaps() bool {
	l.mu.Lock()
	compute := l.computeIndirect
	l.mu.Unlock()
	if !compute || !l.indirectGen.ContainsRenderableObjects() {
		if l.indirectGen != nil {
			l.indirectGen.ReleaseResources()
		}
		return true
	}
	return l.indirectGen.ReassignResources()
}

// updateLightConstants uploads the light's attenuation and cone blocks.
func (l *lightImpl) updateLightConstants() {
	l.mu.Lock()
	inner, outer := l.innerRange, l.outerRange
	dir := l.direction
	innerCone, outerCone, falloff := l.innerCone, l.outerCone, l.falloff
	l.mu.Unlock()

	if outer <= 0 {
		outer = fadeEpsilon
	}
	if inner >= outer {
		inner = outer - fadeEpsilon
	}
	span := outer - inner
	c := GPULightConstants{
		Direction:    dir,
		Attenuation:  [4]float32{inner, outer, 1 / span, -inner / span},
		ClipDistance: [2]float32{1, outer},
	}
	r := l.ctx.Renderer
	r.SetSystemState(renderer.StateLightType, uint32(l.lightType))
	r.SetConstantBuffer(cbLightName, c.Marshal())

	if l.lightType != LightTypeSpot {
		return
	}
	cosTheta := cosHalfDeg(innerCone)
	cosPhi := cosHalfDeg(outerCone)
	recip := 1 / (cosPhi - cosTheta)
	s := GPUSpotLightConstants{SpotTerms: [4]float32{-recip, cosPhi * recip, falloff, 0}}
	r.SetConstantBuffer(cbSpotLightName, s.Marshal())
}

// updateSystemConstants stores the light's position and direction in the
// lighting manager's constant block.
func (l *lightImpl) updateSystemConstants() {
	l.mu.Lock()
	pos, dir := l.position, l.direction
	l.mu.Unlock()

	l.manager.SetConstant(lighting.ConstantLightPosition, pos)
	l.manager.SetConstant(lighting.ConstantLightDirection, dir)
	l.manager.SetConstant(lighting.ConstantAttenuationBufferMask, [4]float32{1, 0, 0, 0})
}

// fillPasses returns one FillShadowMap pass per generator write pass.
func fillPasses(n int) []opPass {
	passes := make([]opPass, 0, n+1)
	for i := range n {
		passes = append(passes, opPass{op: lighting.OpFillShadowMap, sub: i})
	}
	return passes
}

// writeSplit returns the split and fitting mode BeginWrite runs with.
func (l *lightImpl) writeSplit() (*shadow.Split, bool) {
	if l.lightType != LightTypeDirectional {
		return nil, false
	}
	l.mu.Lock()
	split := l.split
	l.mu.Unlock()
	return &split, true
}

func (l *lightImpl) BeginShadowFill() int {
	l.mu.Lock()
	if !l.computeShadows || l.shadowFill.current > -2 {
		l.fillResult = shadow.FillDoNothing
		l.mu.Unlock()
		return -1
	}
	l.mu.Unlock()

	l.updateLightConstants()
	res := l.shadowGen.AssignResources()

	l.mu.Lock()
	l.fillResult = res
	l.mu.Unlock()
	switch {
	case res == shadow.FillDoNothing, res&shadow.FillCannotFill != 0:
		return -1
	case res&shadow.FillCanFill != 0 && !l.shadowGen.ShouldRegenerate():
		return -1
	}
	n := l.shadowGen.WritePassCount()
	if n == 0 {
		return -1
	}
	l.openFill(&l.shadowFill, n)
	return n
}

func (l *lightImpl) BeginShadowFillPass(pass int) (visibility.Set, bool) {
	return l.beginFillPass(l.shadowGen, &l.shadowFill, pass)
}

func (l *lightImpl) EndShadowFillPass() {
	l.endFillPass(l.shadowGen, &l.shadowFill)
}

func (l *lightImpl) EndShadowFill() {
	l.endFill(l.shadowGen, &l.shadowFill)
}

func (l *lightImpl) BeginIndirectFill() int {
	l.mu.Lock()
	if !l.computeIndirect || l.indirectFill.current > -2 {
		l.mu.Unlock()
		return -1
	}
	l.mu.Unlock()

	g := l.indirectGen
	if g.Visibility().IsEmpty() {
		l.openFill(&l.indirectFill, 0)
		return 0
	}

	l.updateLightConstants()
	res := g.AssignResources()
	switch {
	case res == shadow.FillDoNothing:
		return -1
	case res&shadow.FillCannotFill != 0, res&shadow.FillCanFill != 0 && !g.ShouldRegenerate():
		l.openFill(&l.indirectFill, 0)
		return 0
	}
	n := g.WritePassCount()
	if n == 0 {
		return -1
	}
	l.openFill(&l.indirectFill, n)
	return n
}

func (l *lightImpl) BeginIndirectFillPass(pass int) (visibility.Set, bool) {
	return l.beginFillPass(l.indirectGen, &l.indirectFill, pass)
}

func (l *lightImpl) EndIndirectFillPass() {
	l.endFillPass(l.indirectGen, &l.indirectFill)
}

func (l *lightImpl) EndIndirectFill() {
	l.endFill(l.indirectGen, &l.indirectFill)
}

func (l *lightImpl) openFill(s *passState, n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.open(fillPasses(n))
}

// beginWrite opens the generator write for the first sub pass and starts the
// write pass. It returns false if the generator refused either step.
func (l *lightImpl) beginWrite(g shadow.Generator, s *passState, sub int) bool {
	if sub == 0 {
		split, fixed := l.writeSplit()
		if g != l.shadowGen {
			split, fixed = nil, false
		}
		if g.BeginWrite(split, fixed) < 0 {
			return false
		}
		l.mu.Lock()
		s.writing = true
		l.mu.Unlock()
	}
	return g.BeginWritePass(sub)
}

func (l *lightImpl) beginFillPass(g shadow.Generator, s *passState, pass int) (visibility.Set, bool) {
	l.mu.Lock()
	if s.current != -1 || pass < 0 || pass >= len(s.passes) {
		l.mu.Unlock()
		return nil, false
	}
	sub := s.passes[pass].sub
	l.mu.Unlock()

	if !l.beginWrite(g, s, sub) {
		return nil, false
	}
	l.mu.Lock()
	s.current = pass
	l.mu.Unlock()
	return g.Visibility(), true
}

func (l *lightImpl) endFillPass(g shadow.Generator, s *passState) {
	l.mu.Lock()
	cur := s.current
	if cur < 0 || cur >= len(s.passes) {
		l.mu.Unlock()
		return
	}
	sub := s.passes[cur].sub
	s.current = -1
	l.mu.Unlock()

	last := sub == g.WritePassCount()-1
	if last {
		l.mu.Lock()
		s.writing = false
		l.mu.Unlock()
	}

	g.EndWritePass()
	if last {
		g.EndWrite()
	}
}

func (l *lightImpl) endFill(g shadow.Generator, s *passState) {
	l.mu.Lock()
	cur := s.current
	l.mu.Unlock()
	if cur == -2 {
		return
	}
	if cur != -1 {
		l.endFillPass(g, s)
	}

	l.mu.Lock()
	writing := s.writing
	*s = idle()
	l.mu.Unlock()
	if writing {
		g.EndWrite()
	}
}

package light

import (
	"github.com/Carmen-Shannon/oxy-shadow/engine/lighting"
	"github.com/Carmen-Shannon/oxy-shadow/engine/lighting/shadow"
	"github.com/Carmen-Shannon/oxy-shadow/engine/visibility"
)

func (l *lightImpl) BeginLighting(applyShadows, deferred bool) int {
	l.mu.Lock()
	if l.lightingPass.current > -2 || !l.enabled || l.lightingStage != lighting.StageRuntime {
		l.mu.Unlock()
		return -1
	}
	if !l.computeShadows {
		applyShadows = false
	}
	l.mu.Unlock()

	l.updateLightConstants()
	l.updateSystemConstants()
	if !applyShadows {
		l.manager.ApplyLightingConstants()
	}

	var passes []opPass
	if applyShadows && l.shadowGen.RequiresDefaultResource() {
		passes = fillPasses(l.shadowGen.WritePassCount())
	}
	passes = append(passes, opPass{op: lighting.OpProcessLight})

	l.mu.Lock()
	defer l.mu.Unlock()
	l.lightingPass.open(passes)
	l.applyShadows = applyShadows
	l.deferred = deferred
	return len(passes)
}

func (l *lightImpl) BeginLightingPass(pass int) (lighting.LightingOp, visibility.Set) {
	l.mu.Lock()
	s := &l.lightingPass
	if s.current != -1 || pass < 0 || pass >= len(s.passes) {
		l.mu.Unlock()
		return lighting.OpAbort, nil
	}
	p := s.passes[pass]
	applyShadows, deferred := l.applyShadows, l.deferred
	atten, fadeRange := l.shadowAttenuation, l.shadowFade
	name := l.name
	l.mu.Unlock()

	var set visibility.Set
	switch p.op {
	case lighting.OpFillShadowMap:
		if l.beginWrite(l.shadowGen, s, p.sub) {
			set = l.shadowGen.Visibility()
		} else {
			p.op = lighting.OpNone
		}
	case lighting.OpProcessLight:
		reading := applyShadows && l.shadowGen.BeginRead(atten, fadeRange.Min, fadeRange.Max, nil)
		l.mu.Lock()
		s.reading = reading
		l.mu.Unlock()
		if deferred {
			// The light volume is drawn here, the callback has nothing to draw.
			l.ctx.Renderer.Draw(name+".LightShape", 1)
			p.op = lighting.OpNone
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	s.passes[pass] = p
	s.current = pass
	return p.op, set
}

func (l *lightImpl) EndLightingPass() {
	l.endLightingPass(l.shadowGen, &l.lightingPass)
}

func (l *lightImpl) EndLighting() {
	l.endLighting(l.shadowGen, &l.lightingPass)
}

func (l *lightImpl) BeginIndirectLighting() int {
	l.mu.Lock()
	if !l.computeIndirect || l.indirectLighting.current > -2 {
		l.mu.Unlock()
		return -1
	}
	l.mu.Unlock()

	l.updateLightConstants()
	var passes []opPass
	if l.indirectGen.RequiresDefaultResource() {
		passes = fillPasses(l.indirectGen.WritePassCount())
	}
	passes = append(passes, opPass{op: lighting.OpProcessLight})

	l.mu.Lock()
	defer l.mu.Unlock()
	l.indirectLighting.open(passes)
	return len(passes)
}

func (l *lightImpl) BeginIndirectLightingPass(pass int) (lighting.LightingOp, visibility.Set) {
	l.mu.Lock()
	s := &l.indirectLighting
	if s.current != -1 || pass < 0 || pass >= len(s.passes) {
		l.mu.Unlock()
		return lighting.OpAbort, nil
	}
	p := s.passes[pass]
	l.mu.Unlock()

	g := l.indirectGen
	var set visibility.Set
	switch p.op {
	case lighting.OpFillShadowMap:
		if l.beginWrite(g, s, p.sub) {
			set = g.Visibility()
		} else {
			p.op = lighting.OpNone
		}
	case lighting.OpProcessLight:
		reading := g.BeginRead(1, 0, 0, nil)
		l.mu.Lock()
		s.reading = reading
		l.mu.Unlock()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	s.passes[pass] = p
	s.current = pass
	return p.op, set
}

func (l *lightImpl) EndIndirectLightingPass() {
	l.endLightingPass(l.indirectGen, &l.indirectLighting)
}

func (l *lightImpl) EndIndirectLighting() {
	l.endLighting(l.indirectGen, &l.indirectLighting)
}

func (l *lightImpl) endLightingPass(g shadow.Generator, s *passState) {
	l.mu.Lock()
	cur := s.current
	if cur < 0 || cur >= len(s.passes) {
		l.mu.Unlock()
		return
	}
	p := s.passes[cur]
	s.current = -1
	reading := s.reading
	s.reading = false
	writing := s.writing
	l.mu.Unlock()

	switch {
	case p.op == lighting.OpFillShadowMap:
		g.EndWritePass()
		if writing && p.sub == g.WritePassCount()-1 {
			g.EndWrite()
			l.mu.Lock()
			s.writing = false
			l.mu.Unlock()
		}
	case reading:
		g.EndRead()
	}
}

func (l *lightImpl) endLighting(g shadow.Generator, s *passState) {
	l.mu.Lock()
	cur := s.current
	l.mu.Unlock()
	if cur == -2 {
		return
	}
	if cur != -1 {
		l.endLightingPass(g, s)
	}

	l.mu.Lock()
	writing := s.writing
	*s = idle()
	l.mu.Unlock()
	if writing {
		g.EndWrite()
	}
}

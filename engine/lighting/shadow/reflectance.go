package shadow

import (
	"github.com/Carmen-Shannon/oxy-shadow/common"
	"github.com/Carmen-Shannon/oxy-shadow/engine/lighting/pool"
	"github.com/Carmen-Shannon/oxy-shadow/engine/renderer"
)

// reflectanceState holds what only reflective shadow map generators need.
type reflectanceState struct {
	// finalResolution is the size the read pass samples: primarySamples with a
	// box filter, the write resolution otherwise.
	finalResolution uint32
	vtf             bool
	randomSampler   renderer.SamplerHandle
}

var gbufferRoles = [3]pool.Role{pool.RoleDepthMap, pool.RoleNormalMap, pool.RoleColorMap}

// reflectanceTargets returns the description indices of the written G-buffer
// (depth, normal, color) and of the maps the read pass samples. Without a box
// filter both are the same.
func (g *generatorImpl) reflectanceTargets() (written, final [3]int) {
	for k := range written {
		written[k], final[k] = -1, -1
	}
	for i, d := range g.descriptions {
		if d.Target.Type != renderer.BufferTypeRenderTarget {
			continue
		}
		for k, role := range gbufferRoles {
			if d.Role != role {
				continue
			}
			switch {
			case written[k] < 0:
				written[k] = i
			case final[k] < 0:
				final[k] = i
			}
		}
	}
	for k := range final {
		if final[k] < 0 {
			final[k] = written[k]
		}
	}
	return written, final
}

func (g *generatorImpl) updateReflectance() {
	final := g.resolution
	if g.settings.BoxFilter && g.settings.PrimarySamples > 0 {
		final = g.settings.PrimarySamples
	}
	if final != g.rsm.finalResolution {
		g.rsm.finalResolution = final
		g.descriptionDirty = true
	}
	if vtf := g.src.IndirectMethod().Has(IndirectVTF); vtf != g.rsm.vtf {
		g.rsm.vtf = vtf
		g.descriptionDirty = true
	}
}

func (g *generatorImpl) rebuildReflectanceDescriptions() {
	written, final := g.reflectanceTargets()
	for k := range final {
		if final[k] < 0 || final[k] == written[k] {
			continue
		}
		d := &g.descriptions[final[k]]
		d.Target.Width, d.Target.Height = g.rsm.finalResolution, g.rsm.finalResolution
		d.Target.MipLevels = 1
	}
	if g.settings.BoxFilter {
		g.methodHW |= MethodBoxFilter
	}

	if g.rsm.vtf {
		g.descriptions = append(g.descriptions, pool.Description{
			Category: pool.CategoryCached,
			Target: renderer.TargetDescriptor{
				Type:      renderer.BufferTypeRenderTarget,
				Format:    renderer.FormatRGBA16Float,
				Width:     g.rsm.finalResolution,
				Height:    g.rsm.finalResolution,
				MipLevels: 1,
			},
			Sampler: common.PointClampSampler(),
			Role:    pool.RoleDepthNormalMap,
		})
	}
	if g.rsm.randomSampler == 0 {
		g.rsm.randomSampler = g.ctx.Renderer.CreateSamplerState(common.PointClampSampler())
	}
}

func (g *generatorImpl) buildReflectanceOperations() {
	written, final := g.reflectanceTargets()

	write := newOperation(OpWriteGBuffer)
	for i, d := range g.descriptions {
		if d.Target.Type.IsDepth() {
			write.DepthStencil = g.texture(i)
			break
		}
	}
	for _, i := range written {
		if i >= 0 {
			write.Outputs = append(write.Outputs, g.texture(i))
		}
	}
	write.ClearFlags = renderer.ClearTarget | renderer.ClearDepth
	write.ClearColor = clearWhite
	g.writeOps = append(g.writeOps, write)

	if written != final {
		down := newOperation(OpDownsampleRSMAvg)
		for k := range written {
			if written[k] < 0 {
				continue
			}
			down.Inputs = append(down.Inputs, Input{Slot: -1, Texture: g.texture(written[k])})
			down.Outputs = append(down.Outputs, g.texture(final[k]))
		}
		g.postOps = append(g.postOps, down)
	}

	read := newOperation(OpReadGBuffer)
	depth, normal, color := final[0], final[1], final[2]
	if dn := g.resourceIndex(pool.RoleDepthNormalMap); g.rsm.vtf && dn >= 0 {
		merge := newOperation(OpMergeDepthNormal)
		merge.Inputs = []Input{{Slot: -1, Texture: g.texture(depth)}, {Slot: -1, Texture: g.texture(normal)}}
		merge.Outputs = []renderer.TextureHandle{g.texture(dn)}
		g.postOps = append(g.postOps, merge)
		read.Inputs = append(read.Inputs,
			Input{Slot: g.slots.Depth, Texture: g.texture(dn), Sampler: g.sampler(dn)},
			Input{Slot: g.slots.Color, Texture: g.texture(color), Sampler: g.sampler(color)},
		)
	} else {
		read.Inputs = append(read.Inputs,
			Input{Slot: g.slots.Depth, Texture: g.texture(depth), Sampler: g.sampler(depth)},
			Input{Slot: g.slots.Custom, Texture: g.texture(normal), Sampler: g.sampler(normal)},
			Input{Slot: g.slots.Color, Texture: g.texture(color), Sampler: g.sampler(color)},
		)
	}
	if g.randomTexture.IsValid() {
		read.Inputs = append(read.Inputs, Input{Slot: g.slots.Random, Texture: g.randomTexture, Sampler: g.rsm.randomSampler})
	}
	g.readOps = append(g.readOps, read)
}

func (g *generatorImpl) downsampleReflectance(op *Operation) bool {
	kind := renderer.ImageDownsampleAverage
	switch op.Type {
	case OpDownsampleRSMMin:
		kind = renderer.ImageDownsampleMin
	case OpDownsampleRSMMax:
		kind = renderer.ImageDownsampleMax
	}
	ok := true
	for i, in := range op.Inputs {
		if i >= len(op.Outputs) {
			break
		}
		ok = g.ctx.Renderer.ProcessImage(renderer.ImageOp{Kind: kind, Inputs: []renderer.TextureHandle{in.Texture}, Output: op.Outputs[i]}) && ok
	}
	return ok
}

func (g *generatorImpl) mergeDepthNormal(op *Operation) bool {
	inputs := make([]renderer.TextureHandle, len(op.Inputs))
	for i, in := range op.Inputs {
		inputs[i] = in.Texture
	}
	return g.ctx.Renderer.ProcessImage(renderer.ImageOp{Kind: renderer.ImageMergeDepthNormal, Inputs: inputs, Output: op.Outputs[0]})
}

func (g *generatorImpl) beginReflectanceRead() {
	r := g.ctx.Renderer
	method := g.src.IndirectMethod()
	r.SetSystemState(renderer.StateIndirectMethod, uint32(method))

	if method.Base() == IndirectPropagationVolumes {
		_, final := g.reflectanceTargets()
		r.SetVPLData(g.texture(final[0]), g.texture(final[1]))
	} else {
		var sampling uint32
		switch {
		case g.settings.ProjectCell:
			sampling = 1
		case g.settings.BoxFilter:
			sampling = 2
		}
		r.SetSystemState(renderer.StateShadowMethod, sampling)
		r.SetSystemState(renderer.StatePrimaryTaps, g.settings.PrimarySamples)
		r.SetSystemState(renderer.StateSecondaryTaps, g.settings.SecondarySamples)
	}
	g.setReflectanceConstants()
}

func (g *generatorImpl) setReflectanceConstants() {
	r := g.ctx.Renderer
	s := g.settings
	res := float32(max(g.readResolution(), 1))

	var scaleBias [4]float32
	if w, h := r.VPLTextureDimensions(); w > 0 && h > 0 {
		scaleBias = [4]float32{res / float32(w), res / float32(h), 0, 0}
	}

	proj := g.cam.ProjectionMatrix()
	var screenToView [4]float32
	if proj[0] != 0 && proj[5] != 0 {
		screenToView = [4]float32{1 / proj[0], 1 / proj[5], -proj[12] / proj[0], -proj[13] / proj[5]}
	}

	near, far := g.cam.Near(), g.cam.Far()
	span := far - near

	color := common.Scale3(g.src.DiffuseColor(), s.Intensity)
	if r.SystemState(renderer.StateHDRLighting) > 0 {
		color = common.Scale3(color, g.src.DiffuseHDRScale())
	}

	c := GPURSMConstants{
		TextureSize:           [4]float32{res, res, 1 / res, 1 / res},
		TextureScaleBias:      scaleBias,
		ScreenToViewScaleBias: screenToView,
		DepthUnpack:           [4]float32{span, span / 255, span / 65535, near},
		Position:              g.cam.Position(),
		SampleRadius:          s.FilterRadius,
		Direction:             g.cam.Direction(),
		GeometryBias:          s.MinimumCutoff,
		Color:                 color,
		TextureProjection:     g.cam.ViewProjectionMatrix(),
		InverseView:           g.cam.InverseViewMatrix(),
	}
	r.SetConstantBuffer("_cbRSM", c.Marshal())
}

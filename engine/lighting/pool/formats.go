package pool

import (
	"github.com/Carmen-Shannon/oxy-shadow/common"
	"github.com/Carmen-Shannon/oxy-shadow/engine/renderer"
	"github.com/cogentcore/webgpu/wgpu"
)

// depthCandidates lists every depth format the pool knows, in preference order.
var depthCandidates = []renderer.BufferFormat{
	renderer.FormatDF16,
	renderer.FormatD16,
	renderer.FormatDF24,
	renderer.FormatD24FloatS8,
	renderer.FormatD24UnormS8,
	renderer.FormatD24UnormX8,
	renderer.FormatINTZ,
	renderer.FormatRAWZ,
	renderer.FormatD32Float,
}

// renderTargetChains maps channel count, then precision, to the formats tried in order.
var renderTargetChains = map[uint32]map[uint32][]renderer.BufferFormat{
	1: {
		0:  {renderer.FormatR32Uint, renderer.FormatR32Float, renderer.FormatR16Uint, renderer.FormatR16Unorm, renderer.FormatR16Float, renderer.FormatBGRA8Unorm},
		8:  {renderer.FormatBGRA8Unorm},
		16: {renderer.FormatR16Uint, renderer.FormatR16Unorm, renderer.FormatR16Float},
		24: {renderer.FormatR24UnormX8, renderer.FormatR24G8},
		32: {renderer.FormatR32Uint, renderer.FormatR32Float},
	},
	2: {
		0:  {renderer.FormatRG32Uint, renderer.FormatRG32Float, renderer.FormatRG16Uint, renderer.FormatRG16Unorm, renderer.FormatRG16Float},
		16: {renderer.FormatRG16Uint, renderer.FormatRG16Unorm, renderer.FormatRG16Float},
		32: {renderer.FormatRG32Uint, renderer.FormatRG32Float},
	},
	4: {
		0:  {renderer.FormatRGBA32Uint, renderer.FormatRGBA32Float, renderer.FormatRGBA16Uint, renderer.FormatRGBA16Unorm, renderer.FormatRGBA16Float, renderer.FormatBGRA8Unorm},
		8:  {renderer.FormatBGRA8Unorm},
		16: {renderer.FormatRGBA16Uint, renderer.FormatRGBA16Unorm, renderer.FormatRGBA16Float},
		32: {renderer.FormatRGBA32Uint, renderer.FormatRGBA32Float},
	},
}

// buildDepthFormats sorts the supported depth formats into 16, 24 and 32 bit
// buckets and attaches the sampler state each one is read with.
func buildDepthFormats(r renderer.Renderer) [3][]DepthFormat {
	var out [3][]DepthFormat
	for _, f := range depthCandidates {
		caps := r.FormatCapabilities(renderer.BufferTypeDepthStencil, f)
		if caps == 0 {
			continue
		}
		df := DepthFormat{
			Format:      f,
			DepthBits:   f.DepthBits(),
			StencilBits: f.StencilBits(),
			Caps:        caps,
			Sampler:     common.PointClampSampler(),
		}
		// Compare reads always filter linearly; plain reads and gathers use point sampling.
		if caps.Has(renderer.CapsCanCompare) {
			df.Sampler = common.CompareClampSampler()
			df.Sampler.MipmapFilter = wgpu.MipmapFilterModeNearest
		}
		switch df.DepthBits {
		case 16:
			out[0] = append(out[0], df)
		case 24:
			out[1] = append(out[1], df)
		case 32:
			out[2] = append(out[2], df)
		}
	}
	return out
}

func (p *poolImpl) BestRenderTargetFormat(precision, channels uint32) renderer.BufferFormat {
	for _, f := range renderTargetChains[channels][precision] {
		if p.ctx.Renderer.FormatCapabilities(renderer.BufferTypeRenderTarget, f) != 0 {
			return f
		}
	}
	return renderer.FormatUnknown
}

func (p *poolImpl) BestDepthFormat(precision uint32, sample, gather, compare bool, stencilBits uint32) (DepthFormat, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bestDepthFormat(precision, sample, gather, compare, stencilBits)
}

func (p *poolImpl) bestDepthFormat(precision uint32, sample, gather, compare bool, stencilBits uint32) (DepthFormat, bool) {
	if precision == 0 {
		precision = 24
	}
	bucket := 0
	switch precision {
	case 24:
		bucket = 1
	case 32:
		bucket = 2
	}
	for _, df := range p.depthFormats[bucket] {
		if sample && !df.Caps.Has(renderer.CapsCanSample) {
			continue
		}
		if gather && !df.Caps.Has(renderer.CapsCanGather) {
			continue
		}
		if compare && !df.Caps.Has(renderer.CapsCanCompare) {
			continue
		}
		if stencilBits > df.StencilBits {
			continue
		}
		return df, true
	}
	return DepthFormat{}, false
}

func (p *poolImpl) BestReadableDepthFormat(precision, stencilBits uint32) (DepthFormat, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bestReadableDepthFormat(precision, stencilBits)
}

func (p *poolImpl) bestReadableDepthFormat(precision, stencilBits uint32) (DepthFormat, bool) {
	if df, ok := p.bestDepthFormat(precision, false, true, false, stencilBits); ok {
		return df, true
	}
	return p.bestDepthFormat(precision, true, false, false, stencilBits)
}

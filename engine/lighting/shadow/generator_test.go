package shadow

import (
	"math"
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-shadow/common"
	"github.com/Carmen-Shannon/oxy-shadow/engine/camera"
	"github.com/Carmen-Shannon/oxy-shadow/engine/frame"
	"github.com/Carmen-Shannon/oxy-shadow/engine/lighting/pool"
	"github.com/Carmen-Shannon/oxy-shadow/engine/renderer"
	"github.com/Carmen-Shannon/oxy-shadow/engine/visibility"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/google/go-cmp/cmp"
)

type fakeSource struct {
	id       uint64
	name     string
	dirty    int64
	dir      [3]float32
	color    [3]float32
	hdr      float32
	indirect IndirectMethod
}

func (s *fakeSource) ID() uint64                     { return s.id }
func (s *fakeSource) Name() string                   { return s.name }
func (s *fakeSource) DirtyFrame() int64              { return s.dirty }
func (s *fakeSource) Direction() [3]float32          { return s.dir }
func (s *fakeSource) DiffuseColor() [3]float32       { return s.color }
func (s *fakeSource) DiffuseHDRScale() float32       { return s.hdr }
func (s *fakeSource) IndirectMethod() IndirectMethod { return s.indirect }

type fakeObject struct {
	id     uint64
	bounds common.BoundingBox
	dirty  int64
}

func (o *fakeObject) ID() uint64                      { return o.id }
func (o *fakeObject) Name() string                    { return "object" }
func (o *fakeObject) WorldBounds() common.BoundingBox { return o.bounds }
func (o *fakeObject) DirtyFrame() int64               { return o.dirty }
func (o *fakeObject) Alive() bool                     { return true }
func (o *fakeObject) CastsShadows() bool              { return true }
func (o *fakeObject) ReceivesShadows() bool           { return true }
func (o *fakeObject) IsRenderable() bool              { return true }

type fakeLighting struct {
	texProj [16]float32
	applied int
}

func (l *fakeLighting) SetTexProjMatrix(m [16]float32) { l.texProj = m }
func (l *fakeLighting) ApplyLightingConstants()        { l.applied++ }

type env struct {
	r   renderer.Renderer
	ctx *frame.Context
	p   pool.Pool
}

func newEnv(t *testing.T, caps renderer.Capabilities) env {
	t.Helper()
	r := renderer.NewRenderer(renderer.BackendTypeHeadless, renderer.WithCapabilities(caps))
	ctx := frame.NewContext(r, frame.NewClock(), logr.Discard())
	p := pool.NewPool(ctx)
	if err := p.BeginConfigure(pool.Config{MemoryLimitMB: 16, MinResolution: 64, MaxResolution: 512, MaxSharedPerType: 2}); err != nil {
		t.Fatalf("BeginConfigure: %v", err)
	}
	if err := p.EndConfigure(); err != nil {
		t.Fatalf("EndConfigure: %v", err)
	}
	return env{r: r, ctx: ctx, p: p}
}

func (e env) newGenerator(src Source, options ...GeneratorBuilderOption) *generatorImpl {
	return NewGenerator(e.ctx, e.p, src, options...).(*generatorImpl)
}

func compareDescs(t *testing.T, p pool.Pool) []pool.Description {
	t.Helper()
	df, ok := p.BestDepthFormat(24, false, false, true, 0)
	if !ok {
		t.Fatal("no compare depth format")
	}
	return []pool.Description{{
		Category: pool.CategoryCached,
		Target:   renderer.TargetDescriptor{Type: renderer.BufferTypeShadowMap, Format: df.Format, MipLevels: 1},
		Sampler:  df.Sampler,
		Role:     pool.RoleDepthMap,
	}}
}

func sharedDepthDesc(t *testing.T, p pool.Pool) pool.Description {
	t.Helper()
	df, ok := p.SharedDepthFormat()
	if !ok {
		t.Fatal("no shared depth format")
	}
	return pool.Description{
		Category: pool.CategoryShared,
		Target:   renderer.TargetDescriptor{Type: renderer.BufferTypeDepthStencil, Format: df.Format, MipLevels: 1},
		Role:     pool.RoleDepthStencilBuffer,
	}
}

func targetDesc(format renderer.BufferFormat, role pool.Role) pool.Description {
	return pool.Description{
		Category: pool.CategoryCached,
		Target:   renderer.TargetDescriptor{Type: renderer.BufferTypeRenderTarget, Format: format, MipLevels: 1},
		Sampler:  common.PointClampSampler(),
		Role:     role,
	}
}

func manualDescs(t *testing.T, p pool.Pool) []pool.Description {
	t.Helper()
	return []pool.Description{sharedDepthDesc(t, p), targetDesc(p.BestRenderTargetFormat(0, 1), pool.RoleDepthMap)}
}

func edgeDesc() pool.Description {
	d := targetDesc(renderer.FormatRG16Unorm, pool.RoleEdgeMap)
	d.ChannelCount = 1
	return d
}

var casters = []visibility.Object{
	&fakeObject{id: 1, bounds: common.NewBoundingBox([3]float32{0, 0, -50}, [3]float32{2, 2, 2})},
	&fakeObject{id: 2, bounds: common.NewBoundingBox([3]float32{5, 0, -40}, [3]float32{1, 1, 1})},
}

func readSlots(ops []Operation) []int32 {
	var out []int32
	for _, in := range ops[0].Inputs {
		out = append(out, in.Slot)
	}
	return out
}

func opTypes(ops []Operation) []OpType {
	var out []OpType
	for _, op := range ops {
		out = append(out, op.Type)
	}
	return out
}

func TestBuildOperations(t *testing.T) {
	e := newEnv(t, renderer.DesktopCapabilities())

	type want struct {
		writes    []OpType
		posts     []OpType
		reads     []int32
		cull      wgpu.CullMode
		colors    wgpu.ColorWriteMask
		outputs   int
		hwHas     Method
		descCount int
	}
	tests := []struct {
		name  string
		sys   SettingsSystem
		light SettingsLight
		descs func() []pool.Description
		flags Method
		want  want
	}{
		{
			name:  "compare",
			sys:   SettingsSystem{Method: PCF},
			light: DefaultSettingsLight(),
			descs: func() []pool.Description { return compareDescs(t, e.p) },
			flags: PCF | MethodHardware | MethodCompare,
			want: want{
				writes: []OpType{OpDrawOpaqueShadowCasters}, reads: []int32{8},
				cull: wgpu.CullModeBack, colors: wgpu.ColorWriteMaskNone, hwHas: MethodCompare, descCount: 1,
			},
		},
		{
			name:  "compare with a shared depth copy",
			sys:   SettingsSystem{Method: PCF},
			light: DefaultSettingsLight(),
			descs: func() []pool.Description {
				return append(compareDescs(t, e.p), pool.Description{
					Category: pool.CategoryShared,
					Target:   renderer.TargetDescriptor{Type: renderer.BufferTypeRenderTarget, Format: e.p.BestRenderTargetFormat(0, 1), MipLevels: 1},
					Sampler:  common.PointClampSampler(),
					Role:     pool.RoleDepthMap,
				})
			},
			flags: PCF | MethodHardware | MethodCompare,
			want: want{
				writes: []OpType{OpDrawOpaqueShadowCasters}, reads: []int32{8},
				cull: wgpu.CullModeBack, colors: wgpu.ColorWriteMaskNone, outputs: 1, hwHas: MethodCompare, descCount: 2,
			},
		},
		{
			name:  "manual reads",
			sys:   SettingsSystem{Method: PCF},
			light: DefaultSettingsLight(),
			descs: func() []pool.Description { return manualDescs(t, e.p) },
			flags: PCF | MethodDepthReads | MethodManual2x2,
			want: want{
				writes: []OpType{OpDrawOpaqueShadowCasters}, reads: []int32{8},
				cull: wgpu.CullModeBack, colors: wgpu.ColorWriteMaskAll, outputs: 1, hwHas: MethodManual2x2, descCount: 2,
			},
		},
		{
			name:  "statistics cull front faces",
			sys:   SettingsSystem{Method: VSM, FilterRadius: 2, FilterPasses: 1},
			light: DefaultSettingsLight(),
			descs: func() []pool.Description {
				return []pool.Description{
					sharedDepthDesc(t, e.p),
					targetDesc(renderer.FormatRG32Float, pool.RoleDepthMap),
					targetDesc(renderer.FormatRG32Float, pool.RoleStatisticsMap),
				}
			},
			flags: VSM,
			want: want{
				writes: []OpType{OpDrawOpaqueShadowCasters}, posts: []OpType{OpComputeStatistics}, reads: []int32{8},
				cull: wgpu.CullModeFront, colors: wgpu.ColorWriteMaskAll, outputs: 1, hwHas: VSM, descCount: 3,
			},
		},
		{
			name:  "edge mask",
			sys:   SettingsSystem{Method: PCF, FilterRadius: 4, MaskType: MethodEdgeMask},
			light: DefaultSettingsLight(),
			descs: func() []pool.Description { return append(compareDescs(t, e.p), edgeDesc()) },
			flags: PCF | MethodHardware | MethodCompare | MethodEdgeMask,
			want: want{
				writes: []OpType{OpDrawOpaqueShadowCasters}, posts: []OpType{OpComputeEdgeMask}, reads: []int32{8, 9},
				cull: wgpu.CullModeBack, colors: wgpu.ColorWriteMaskNone, hwHas: MethodEdgeMask, descCount: 2,
			},
		},
		{
			name: "translucency",
			sys:  SettingsSystem{Method: PCF, Translucency: true},
			light: func() SettingsLight {
				l := DefaultSettingsLight()
				l.Translucency = true
				return l
			}(),
			descs: func() []pool.Description { return compareDescs(t, e.p) },
			flags: PCF | MethodHardware | MethodCompare,
			want: want{
				writes: []OpType{OpDrawOpaqueShadowCasters, OpDrawTransparentShadowCasters}, reads: []int32{8, 10},
				cull: wgpu.CullModeBack, colors: wgpu.ColorWriteMaskNone, hwHas: MethodTranslucency, descCount: 2,
			},
		},
		{
			name: "translucency with edge mask",
			sys:  SettingsSystem{Method: PCF, Translucency: true, FilterRadius: 1, MaskType: MethodEdgeMask},
			light: func() SettingsLight {
				l := DefaultSettingsLight()
				l.Translucency = true
				return l
			}(),
			descs: func() []pool.Description { return append(compareDescs(t, e.p), edgeDesc()) },
			flags: PCF | MethodHardware | MethodCompare | MethodEdgeMask,
			want: want{
				writes: []OpType{OpDrawOpaqueShadowCasters, OpDrawTransparentShadowCasters},
				posts:  []OpType{OpComputeEdgeMask, OpMergeColorAndEdge}, reads: []int32{8, 9, 10},
				cull: wgpu.CullModeBack, colors: wgpu.ColorWriteMaskNone, hwHas: MethodTranslucency | MethodEdgeMask, descCount: 3,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := e.newGenerator(&fakeSource{name: "spot"})
			if !g.Update(256, tt.sys, tt.light, tt.descs(), tt.flags) {
				t.Fatal("Update() = false")
			}
			if got := g.AssignResources(); got != FillMustFill {
				t.Fatalf("AssignResources() = %v, want MustFill", got)
			}
			defer g.ReleaseResources()

			write, post, read := g.Operations()
			if diff := cmp.Diff(tt.want.writes, opTypes(write)); diff != "" {
				t.Errorf("write ops mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.want.posts, opTypes(post)); diff != "" {
				t.Errorf("post ops mismatch (-want +got):\n%s", diff)
			}
			if len(read) != 1 {
				t.Fatalf("read ops = %d, want 1", len(read))
			}
			if diff := cmp.Diff(tt.want.reads, readSlots(read)); diff != "" {
				t.Errorf("read slots mismatch (-want +got):\n%s", diff)
			}
			if write[0].CullMode != tt.want.cull {
				t.Errorf("cull mode = %v, want %v", write[0].CullMode, tt.want.cull)
			}
			if write[0].ColorWrites != tt.want.colors {
				t.Errorf("color writes = %v, want %v", write[0].ColorWrites, tt.want.colors)
			}
			if len(write[0].Outputs) != tt.want.outputs {
				t.Errorf("outputs = %d, want %d", len(write[0].Outputs), tt.want.outputs)
			}
			if !write[0].DepthStencil.IsValid() {
				t.Error("write pass has no depth attachment")
			}
			if !g.HardwareMethod().Has(tt.want.hwHas) {
				t.Errorf("HardwareMethod() = %v, want it to contain %v", g.HardwareMethod(), tt.want.hwHas)
			}
			if got := len(g.Descriptions()); got != tt.want.descCount {
				t.Errorf("descriptions = %d, want %d", got, tt.want.descCount)
			}
			for _, in := range read[0].Inputs {
				if !in.Texture.IsValid() {
					t.Errorf("read input at slot %d has no texture", in.Slot)
				}
			}
			if tt.flags.Has(MethodHardware) && read[0].Inputs[0].Texture != g.Texture(0) {
				t.Errorf("hardware read samples %d, want the depth buffer %d", read[0].Inputs[0].Texture, g.Texture(0))
			}
		})
	}
}

func TestMinimalCapabilitiesReadDepthManually(t *testing.T) {
	e := newEnv(t, renderer.MinimalCapabilities())
	if _, ok := e.p.BestReadableDepthFormat(24, 0); ok {
		t.Fatal("minimal profile should have no readable depth format")
	}
	if _, ok := e.p.BestDepthFormat(24, false, false, true, 0); ok {
		t.Fatal("minimal profile should have no compare depth format")
	}

	g := e.newGenerator(&fakeSource{name: "spot"})
	g.Update(256, SettingsSystem{Method: PCF}, DefaultSettingsLight(), manualDescs(t, e.p), PCF|MethodDepthReads|MethodManual2x2)
	if got := g.AssignResources(); got != FillMustFill {
		t.Fatalf("AssignResources() = %v, want MustFill", got)
	}
	hw := g.HardwareMethod()
	if !hw.Has(MethodDepthReads|MethodManual2x2) || hw.Any(MethodHardware|MethodCompare) {
		t.Errorf("HardwareMethod() = %v, want DepthReads|Manual2x2 without Hardware|Compare", hw)
	}
	_, _, read := g.Operations()
	if got, want := read[0].Inputs[0].Texture, g.Texture(1); got != want {
		t.Errorf("depth input = %d, want the color copy %d", got, want)
	}
}

func TestEdgeMaskShift(t *testing.T) {
	tests := []struct {
		radius float32
		want   uint32
	}{
		{0, 0},
		{1, 0},
		{1.5, 1},
		{2, 1},
		{4, 2},
		{10, 3},
	}
	for _, tt := range tests {
		if got := edgeMaskShift(tt.radius); got != tt.want {
			t.Errorf("edgeMaskShift(%v) = %d, want %d", tt.radius, got, tt.want)
		}
	}
}

func TestEdgeMaskPostOperation(t *testing.T) {
	e := newEnv(t, renderer.DesktopCapabilities())
	g := e.newGenerator(&fakeSource{name: "spot"})
	sys := SettingsSystem{Method: PCF, FilterRadius: 4, MaskType: MethodEdgeMask}
	g.Update(256, sys, DefaultSettingsLight(), append(compareDescs(t, e.p), edgeDesc()), PCF|MethodHardware|MethodCompare|MethodEdgeMask)

	if w := g.Descriptions()[1].Target.Width; w != 64 {
		t.Fatalf("edge map width = %d, want 64", w)
	}
	if g.AssignResources() != FillMustFill {
		t.Fatal("AssignResources() did not return MustFill")
	}
	if got := g.EdgeMaskChannelCount(); got != 1 {
		t.Fatalf("EdgeMaskChannelCount() = %d, want 1", got)
	}

	e.r.ResetEvents()
	if n := g.BeginWrite(nil, false); n != 1 {
		t.Fatalf("BeginWrite() = %d, want 1", n)
	}
	g.BeginWritePass(0)
	g.EndWritePass()
	if !g.EndWrite() {
		t.Fatal("EndWrite() = false")
	}

	var kinds []renderer.ImageOpKind
	var levels []uint32
	for _, ev := range e.r.Events() {
		if ev.Kind == renderer.EventImage {
			kinds = append(kinds, ev.Image.Kind)
			levels = append(levels, ev.Image.Level)
		}
	}
	wantKinds := []renderer.ImageOpKind{renderer.ImageEdgeDetect, renderer.ImageDownsampleAverage, renderer.ImageDownsampleAverage, renderer.ImageBlend}
	if diff := cmp.Diff(wantKinds, kinds); diff != "" {
		t.Errorf("image ops mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]uint32{1, 2, 3, 3}, levels); diff != "" {
		t.Errorf("image levels mismatch (-want +got):\n%s", diff)
	}

	// A clean mask is not recomputed.
	e.r.ResetEvents()
	g.BeginWrite(nil, false)
	g.EndWrite()
	for _, ev := range e.r.Events() {
		if ev.Kind == renderer.EventImage {
			t.Fatalf("unexpected image op %v for a clean edge mask", ev.Image.Kind)
		}
	}
}

func TestMaskCachedOnlyDropsSharedMask(t *testing.T) {
	r := renderer.NewRenderer(renderer.BackendTypeHeadless, renderer.WithCapabilities(renderer.DesktopCapabilities()))
	ctx := frame.NewContext(r, frame.NewClock(), logr.Discard())
	p := pool.NewPool(ctx)
	descs := append(compareDescs(t, p), edgeDesc())
	if err := p.BeginConfigure(pool.Config{MemoryLimitMB: 0, MinResolution: 64, MaxResolution: 256, MaxSharedPerType: 2}); err != nil {
		t.Fatal(err)
	}
	p.AddDefaultMaps(descs)
	if err := p.EndConfigure(); err != nil {
		t.Fatal(err)
	}

	g := NewGenerator(ctx, p, &fakeSource{name: "spot"}, WithMaskCachedOnly(true)).(*generatorImpl)
	g.Update(256, SettingsSystem{Method: PCF, MaskType: MethodEdgeMask}, DefaultSettingsLight(), descs, PCF|MethodHardware|MethodCompare|MethodEdgeMask)
	if got := g.AssignResources(); got != FillCannotFill {
		t.Fatalf("AssignResources() = %v, want CannotFill", got)
	}
	if !g.RequiresDefaultResource() {
		t.Error("RequiresDefaultResource() = false")
	}
	if g.HardwareMethod().Any(MaskBits) || g.UsesEdgeMask() {
		t.Errorf("HardwareMethod() = %v, want the mask dropped", g.HardwareMethod())
	}
	if !g.Method().Has(MethodEdgeMask) {
		t.Error("the requested method lost its mask bit")
	}
}

func TestWriteRestoresBindingsAndCamera(t *testing.T) {
	e := newEnv(t, renderer.MinimalCapabilities())
	sceneCam := camera.NewCamera()
	e.r.SetCamera(sceneCam)
	e.r.SetTexture(8, 4242)
	e.r.SetSamplerState(8, 7)

	g := e.newGenerator(&fakeSource{name: "spot"})
	g.Update(256, SettingsSystem{Method: PCF}, DefaultSettingsLight(), manualDescs(t, e.p), PCF|MethodDepthReads|MethodManual2x2)
	g.AssignResources()

	e.r.ResetEvents()
	n := g.BeginWrite(nil, false)
	if n != 1 {
		t.Fatalf("BeginWrite() = %d, want 1", n)
	}
	if e.r.Camera() != g.Camera() {
		t.Error("generator camera not active during the write")
	}
	for i := 0; i < n; i++ {
		if !g.BeginWritePass(i) {
			t.Fatalf("BeginWritePass(%d) = false", i)
		}
		// A forward fill clobbers the deferred inputs.
		e.r.SetTexture(8, 1)
		e.r.SetSamplerState(8, 1)
		if !g.EndWritePass() {
			t.Fatalf("EndWritePass() = false")
		}
	}
	if !g.EndWrite() {
		t.Fatal("EndWrite() = false")
	}

	if got := e.r.Texture(8); got != 4242 {
		t.Errorf("texture slot 8 = %d, want 4242", got)
	}
	if got := e.r.SamplerState(8); got != 7 {
		t.Errorf("sampler slot 8 = %d, want 7", got)
	}
	if e.r.Camera() != sceneCam {
		t.Error("scene camera not restored")
	}
	if d := e.r.TargetDepth(); d != 0 {
		t.Errorf("TargetDepth() = %d, want 0", d)
	}
	if e.r.RestoreTextures() || e.r.RestoreSamplers() {
		t.Error("backups left on the stack after EndWrite")
	}

	var kinds []renderer.EventKind
	for _, ev := range e.r.Events() {
		switch ev.Kind {
		case renderer.EventSetCamera, renderer.EventBeginTarget, renderer.EventEndTarget, renderer.EventClear:
			kinds = append(kinds, ev.Kind)
		}
	}
	want := []renderer.EventKind{renderer.EventSetCamera, renderer.EventBeginTarget, renderer.EventClear, renderer.EventEndTarget, renderer.EventSetCamera}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Errorf("event order mismatch (-want +got):\n%s", diff)
	}
}

func TestCacheHitSkipsFill(t *testing.T) {
	e := newEnv(t, renderer.DesktopCapabilities())
	src := &fakeSource{name: "spot"}
	g := e.newGenerator(src)
	g.Update(256, SettingsSystem{Method: PCF}, DefaultSettingsLight(), compareDescs(t, e.p), PCF|MethodHardware|MethodCompare)

	e.ctx.Clock.Advance(1.0 / 60)
	if !g.ComputeVisibilitySet(nil, casters, nil) {
		t.Fatal("ComputeVisibilitySet() = false, want casters visible")
	}
	if !g.ShouldRegenerate() {
		t.Fatal("first frame must regenerate")
	}
	if got := g.AssignResources(); got != FillMustFill {
		t.Fatalf("AssignResources() = %v, want MustFill", got)
	}
	held := g.Resources()
	g.BeginWrite(nil, false)
	g.BeginWritePass(0)
	g.EndWritePass()
	g.EndWrite()

	e.ctx.Clock.Advance(1.0 / 60)
	e.p.ResetAvailability(KindShadowMap.DataType())
	g.ComputeVisibilitySet(nil, casters, nil)
	if !g.ReassignResources() {
		t.Fatal("ReassignResources() = false on an unchanged scene")
	}
	if diff := cmp.Diff(held, g.Resources()); diff != "" {
		t.Errorf("reassigned resources mismatch (-want +got):\n%s", diff)
	}
	if g.ShouldRegenerate() {
		t.Error("ShouldRegenerate() = true on an unchanged scene")
	}
	if got := g.AssignResources(); got != FillCanFill {
		t.Errorf("AssignResources() after reassignment = %v, want CanFill", got)
	}
}

func TestRegenerateEpochs(t *testing.T) {
	e := newEnv(t, renderer.DesktopCapabilities())
	src := &fakeSource{name: "spot"}
	moving := &fakeObject{id: 3, bounds: common.NewBoundingBox([3]float32{0, 0, -30}, [3]float32{1, 1, 1})}
	objects := append([]visibility.Object{moving}, casters...)
	g := e.newGenerator(src)

	e.ctx.Clock.Advance(1)
	g.ComputeVisibilitySet(nil, objects, nil)

	e.ctx.Clock.Advance(1)
	g.ComputeVisibilitySet(nil, objects, nil)
	if g.ShouldRegenerate() {
		t.Fatal("static scene regenerated")
	}

	e.ctx.Clock.Advance(1)
	moving.dirty = e.ctx.Frame()
	g.ComputeVisibilitySet(nil, objects, nil)
	if !g.ShouldRegenerate() {
		t.Error("moved caster did not trigger regeneration")
	}

	// The epoch is inclusive, so the frame after a change refills once more.
	e.ctx.Clock.Advance(1)
	g.ComputeVisibilitySet(nil, objects, nil)
	e.ctx.Clock.Advance(1)
	g.ComputeVisibilitySet(nil, objects, nil)
	if g.ShouldRegenerate() {
		t.Error("regenerated again without changes")
	}

	e.ctx.Clock.Advance(1)
	src.dirty = e.ctx.Frame()
	g.ComputeVisibilitySet(nil, objects, nil)
	if !g.ShouldRegenerate() {
		t.Error("light change did not trigger regeneration")
	}

	e.ctx.Clock.Advance(1)
	if g.ComputeVisibilitySet(nil, nil, nil) {
		t.Error("ComputeVisibilitySet() = true for an empty scene")
	}
	if g.ShouldRegenerate() || g.ContainsRenderableObjects() {
		t.Error("an empty set must not regenerate")
	}
}

func TestUpdateIsIdempotent(t *testing.T) {
	e := newEnv(t, renderer.DesktopCapabilities())
	g := e.newGenerator(&fakeSource{name: "spot"})
	descs := compareDescs(t, e.p)
	flags := PCF | MethodHardware | MethodCompare
	sys := SettingsSystem{Method: PCF, PrimarySamples: 4}

	g.Update(256, sys, DefaultSettingsLight(), descs, flags)
	g.AssignResources()
	held := g.Resources()
	e.p.ResetAvailability(KindShadowMap.DataType())
	if !g.ReassignResources() {
		t.Fatal("ReassignResources() = false")
	}

	for i := 0; i < 2; i++ {
		if !g.Update(256, sys, DefaultSettingsLight(), descs, flags) {
			t.Fatalf("Update #%d = false", i)
		}
	}
	if got := g.Revision(); got != 1 {
		t.Errorf("Revision() = %d, want 1", got)
	}
	if diff := cmp.Diff(held, g.Resources()); diff != "" {
		t.Errorf("resources changed by a no-op update (-want +got):\n%s", diff)
	}

	// Tuning that does not touch descriptions keeps them too.
	light := DefaultSettingsLight()
	light.DepthBiasSW = 0.01
	g.Update(256, sys, light, descs, flags)
	if got := g.Revision(); got != 1 {
		t.Errorf("Revision() after a bias change = %d, want 1", got)
	}
	if got := g.Settings().DepthBiasSW; got != 0.01 {
		t.Errorf("DepthBiasSW = %v, want 0.01", got)
	}
}

func TestTuningChangeRebuildsOperations(t *testing.T) {
	e := newEnv(t, renderer.DesktopCapabilities())
	g := e.newGenerator(&fakeSource{name: "spot"})
	descs := compareDescs(t, e.p)
	flags := PCF | MethodHardware | MethodCompare
	sys := SettingsSystem{Method: PCF}

	g.Update(256, sys, DefaultSettingsLight(), descs, flags)
	g.AssignResources()
	write, _, _ := g.Operations()
	if len(write) == 0 || write[0].CullMode != wgpu.CullModeBack {
		t.Fatalf("initial write operations = %+v, want back face culling", write)
	}
	held := g.Resources()

	light := DefaultSettingsLight()
	light.CullMode = wgpu.CullModeFront
	if !g.Update(256, sys, light, descs, flags) {
		t.Fatal("Update() = false")
	}
	if got := g.Revision(); got != 1 {
		t.Errorf("Revision() = %d, want the descriptions kept", got)
	}
	if diff := cmp.Diff(held, g.Resources()); diff != "" {
		t.Errorf("resources changed by a tuning update (-want +got):\n%s", diff)
	}
	write, _, _ = g.Operations()
	if write[0].CullMode != wgpu.CullModeFront {
		t.Errorf("write cull mode = %v, want front after the tuning change", write[0].CullMode)
	}
}

func TestResolutionChangeReleases(t *testing.T) {
	e := newEnv(t, renderer.DesktopCapabilities())
	g := e.newGenerator(&fakeSource{name: "spot"})
	descs := compareDescs(t, e.p)
	flags := PCF | MethodHardware | MethodCompare

	g.Update(256, SettingsSystem{Method: PCF}, DefaultSettingsLight(), descs, flags)
	g.AssignResources()
	old := g.Resources()[0]

	g.Update(512, SettingsSystem{Method: PCF}, DefaultSettingsLight(), descs, flags)
	if got := g.Resources(); got != nil {
		t.Errorf("Resources() after a resolution change = %v, want nil", got)
	}
	for _, o := range e.p.Resource(old).Owners() {
		if o == g.Owner() {
			t.Error("old resource still owned by the generator")
		}
	}
	if got := g.Revision(); got != 2 {
		t.Errorf("Revision() = %d, want 2", got)
	}
	if w := g.Descriptions()[0].Target.Width; w != 512 {
		t.Errorf("description width = %d, want 512", w)
	}
	if g.ReassignResources() {
		t.Error("ReassignResources() succeeded without resources")
	}
	if got := g.AssignResources(); got != FillMustFill {
		t.Fatalf("AssignResources() = %v, want MustFill", got)
	}
	if w := e.p.Resource(g.Resources()[0]).Descriptor().Width; w != 512 {
		t.Errorf("assigned width = %d, want 512", w)
	}
}

func TestMaskThresholdNormalized(t *testing.T) {
	e := newEnv(t, renderer.DesktopCapabilities())
	g := e.newGenerator(&fakeSource{name: "spot"})
	light := DefaultSettingsLight()
	light.FilterDistanceNear, light.FilterDistanceFar, light.MaskThreshold = 10, 60, 5
	sys := SettingsSystem{Method: PCF, MaskType: MethodEdgeMask}
	descs := append(compareDescs(t, e.p), edgeDesc())

	g.Update(256, sys, light, descs, PCF|MethodEdgeMask)
	light.DepthBiasSW = 0.5
	g.Update(256, sys, light, descs, PCF|MethodEdgeMask)
	if got := g.Settings().MaskThreshold; math.Abs(float64(got-0.1)) > 1e-6 {
		t.Errorf("MaskThreshold = %v, want 0.1", got)
	}
}

func TestContractViolations(t *testing.T) {
	e := newEnv(t, renderer.DesktopCapabilities())
	var logs []string
	l := funcr.New(func(prefix, args string) { logs = append(logs, prefix+" "+args) }, funcr.Options{})
	g := e.newGenerator(&fakeSource{name: "spot"}, WithLogger(l))

	if n := g.BeginWrite(nil, false); n != -1 {
		t.Errorf("BeginWrite() before assignment = %d, want -1", n)
	}
	if g.BeginWritePass(0) || g.EndWritePass() || g.EndWrite() {
		t.Error("write protocol accepted calls outside BeginWrite")
	}
	if g.BeginRead(1, 0, 0, nil) {
		t.Error("BeginRead() before assignment = true")
	}
	if g.AssignResources() != FillDoNothing {
		t.Error("AssignResources() before Update did not return DoNothing")
	}
	if e.r.RestoreTextures() {
		t.Error("a rejected BeginWrite pushed a backup")
	}

	g.Update(256, SettingsSystem{Method: PCF}, DefaultSettingsLight(), compareDescs(t, e.p), PCF|MethodHardware|MethodCompare)
	g.AssignResources()
	if g.BeginWrite(nil, false) != 1 {
		t.Fatal("BeginWrite() failed after assignment")
	}
	if g.BeginRead(1, 0, 0, nil) {
		t.Error("BeginRead() during a write = true")
	}
	if g.Update(512, SettingsSystem{Method: PCF}, DefaultSettingsLight(), compareDescs(t, e.p), PCF) {
		t.Error("Update() during a write = true")
	}
	if g.BeginWritePass(5) {
		t.Error("BeginWritePass(5) = true")
	}
	g.BeginWritePass(0)
	if g.BeginWritePass(0) {
		t.Error("BeginWritePass() with an open pass = true")
	}
	if !g.EndWrite() {
		t.Error("EndWrite() with an open pass = false")
	}
	if d := e.r.TargetDepth(); d != 0 {
		t.Errorf("TargetDepth() = %d, want 0", d)
	}
	g.EndRead()

	joined := strings.Join(logs, "\n")
	for _, want := range []string{"BeginWrite requires assigned resources", "EndWrite with an open write pass", "EndRead without BeginRead"} {
		if !strings.Contains(joined, want) {
			t.Errorf("log output missing %q", want)
		}
	}
}

func TestBeginReadPublishesConstants(t *testing.T) {
	e := newEnv(t, renderer.DesktopCapabilities())
	lc := &fakeLighting{}
	g := e.newGenerator(&fakeSource{name: "spot"}, WithLightingConstants(lc))
	g.Update(256, SettingsSystem{Method: PCF, PrimarySamples: 8, SecondarySamples: 4}, DefaultSettingsLight(), compareDescs(t, e.p), PCF|MethodHardware|MethodCompare)
	g.AssignResources()

	e.r.ResetEvents()
	if !g.BeginRead(0.5, 10, 50, nil) {
		t.Fatal("BeginRead() = false")
	}
	want := common.Mul4Array(textureBias, g.Camera().ViewProjectionMatrix())
	if diff := cmp.Diff(want, lc.texProj); diff != "" {
		t.Errorf("texture projection mismatch (-want +got):\n%s", diff)
	}
	if lc.applied != 1 {
		t.Errorf("ApplyLightingConstants calls = %d, want 1", lc.applied)
	}
	if got := e.r.SystemState(renderer.StatePrimaryTaps); got != 8 {
		t.Errorf("PrimaryTaps = %d, want 8", got)
	}
	if got := e.r.SystemState(renderer.StateShadowMethod); Method(got) != g.HardwareMethod() {
		t.Errorf("ShadowMethod state = %v, want %v", Method(got), g.HardwareMethod())
	}
	if got := e.r.Texture(8); got != g.Texture(0) {
		t.Errorf("depth slot = %d, want %d", got, g.Texture(0))
	}

	var constants int
	for _, ev := range e.r.Events() {
		if ev.Kind == renderer.EventSetConstants && ev.Label == "_cbShadow" {
			constants = ev.Bytes
		}
	}
	if constants != 112 {
		t.Errorf("_cbShadow bytes = %d, want 112", constants)
	}

	g.EndRead()
	if got := e.r.Texture(8); got != 0 {
		t.Errorf("depth slot after EndRead = %d, want 0", got)
	}
	if got := e.r.SystemState(renderer.StatePrimaryTaps); got != 0 {
		t.Errorf("PrimaryTaps after EndRead = %d, want 0", got)
	}

	identity := common.IdentityMatrix()
	g.BeginRead(1, 0, 0, &identity)
	if diff := cmp.Diff(g.Camera().ViewProjectionMatrix(), lc.texProj); diff != "" {
		t.Errorf("override projection mismatch (-want +got):\n%s", diff)
	}
	g.EndRead()
}

func TestParallelSplitFitsSphere(t *testing.T) {
	e := newEnv(t, renderer.DesktopCapabilities())
	sceneCam := camera.NewCamera(
		camera.WithPerspective(math.Pi/3, 1.5, 0.5, 200),
		camera.WithLookAt([3]float32{0, 5, 20}, [3]float32{0, 0, 0}, [3]float32{0, 1, 0}),
	)
	e.r.SetCamera(sceneCam)
	src := &fakeSource{name: "sun", dir: common.Normalize3([3]float32{0.3, -1, 0.2})}
	objects := []visibility.Object{
		&fakeObject{id: 1, bounds: common.NewBoundingBox([3]float32{0, 0, 0}, [3]float32{3, 3, 3})},
	}

	g := e.newGenerator(src)
	g.Update(256, SettingsSystem{Method: PCF}, DefaultSettingsLight(), compareDescs(t, e.p), PCF|MethodHardware|MethodCompare)
	split := Split{Near: 1, Far: 40}
	if !g.ComputeVisibilitySet(sceneCam, objects, &split) {
		t.Fatal("ComputeVisibilitySet() = false")
	}
	g.AssignResources()
	if g.BeginWrite(&split, true) != 1 {
		t.Fatal("BeginWrite() failed")
	}
	if g.Camera().Projection() != camera.ProjectionOrthographic {
		t.Error("split camera is not orthographic")
	}

	corners, ok := sceneCam.Split(split.Near, split.Far).Corners()
	if !ok {
		t.Fatal("split corners unavailable")
	}
	vp := g.Camera().ViewProjectionMatrix()
	const tol = 1.01
	for i, c := range corners {
		p := common.TransformCoord(vp[:], c)
		if math.Abs(float64(p[0])) > tol || math.Abs(float64(p[1])) > tol {
			t.Errorf("corner %d projects outside the shadow map: %v", i, p)
		}
		if p[2] < -0.01 || p[2] > tol {
			t.Errorf("corner %d depth %v outside [0,1]", i, p[2])
		}
	}
	g.EndWrite()
	if e.r.Camera() != sceneCam {
		t.Error("scene camera not restored")
	}
}

func rsmDescs(t *testing.T, p pool.Pool) []pool.Description {
	t.Helper()
	return []pool.Description{
		sharedDepthDesc(t, p),
		targetDesc(renderer.FormatR32Float, pool.RoleDepthMap),
		targetDesc(renderer.FormatRGBA16Float, pool.RoleNormalMap),
		targetDesc(renderer.FormatBGRA8Unorm, pool.RoleColorMap),
		targetDesc(renderer.FormatR32Float, pool.RoleDepthMap),
		targetDesc(renderer.FormatRGBA16Float, pool.RoleNormalMap),
		targetDesc(renderer.FormatBGRA8Unorm, pool.RoleColorMap),
	}
}

func TestReflectanceOperations(t *testing.T) {
	e := newEnv(t, renderer.DesktopCapabilities())
	random, err := e.r.CreateTarget(renderer.TargetDescriptor{Type: renderer.BufferTypeRenderTarget, Format: renderer.FormatBGRA8Unorm, Width: 64, Height: 64, MipLevels: 1})
	if err != nil {
		t.Fatalf("CreateTarget: %v", err)
	}

	tests := []struct {
		name       string
		sys        SettingsSystem
		indirect   IndirectMethod
		descs      []pool.Description
		resolution uint32
		posts      []OpType
		reads      []int32
		count      int
		images     int
	}{
		{
			name:       "full resolution",
			sys:        SettingsSystem{Method: RSM, PrimarySamples: 64},
			indirect:   IndirectRadianceHints,
			descs:      rsmDescs(t, e.p)[:4],
			resolution: 256,
			reads:      []int32{8, 11, 10, 12},
			count:      4,
		},
		{
			name:       "box filter",
			sys:        SettingsSystem{Method: RSM, BoxFilter: true, PrimarySamples: 64},
			indirect:   IndirectRadianceHints,
			descs:      rsmDescs(t, e.p),
			resolution: 64,
			posts:      []OpType{OpDownsampleRSMAvg},
			reads:      []int32{8, 11, 10, 12},
			count:      7,
			images:     3,
		},
		{
			name:       "vertex texture fetch",
			sys:        SettingsSystem{Method: RSM, BoxFilter: true, PrimarySamples: 64},
			indirect:   IndirectPropagationVolumes | IndirectVTF,
			descs:      rsmDescs(t, e.p),
			resolution: 64,
			posts:      []OpType{OpDownsampleRSMAvg, OpMergeDepthNormal},
			reads:      []int32{8, 10, 12},
			count:      8,
			images:     4,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{name: "spot", color: [3]float32{1, 1, 1}, hdr: 1, indirect: tt.indirect}
			g := NewReflectanceGenerator(e.ctx, e.p, src, WithRandomTexture(random)).(*generatorImpl)
			if !g.Update(256, tt.sys, DefaultSettingsLight(), tt.descs, RSM) {
				t.Fatal("Update() = false")
			}
			if got := g.AssignResources(); got != FillMustFill {
				t.Fatalf("AssignResources() = %v, want MustFill", got)
			}
			defer g.ReleaseResources()

			if got := g.Resolution(); got != tt.resolution {
				t.Errorf("Resolution() = %d, want %d", got, tt.resolution)
			}
			if got := len(g.Descriptions()); got != tt.count {
				t.Errorf("descriptions = %d, want %d", got, tt.count)
			}
			if tt.sys.BoxFilter != g.HardwareMethod().Has(MethodBoxFilter) {
				t.Errorf("HardwareMethod() = %v, box filter bit mismatch", g.HardwareMethod())
			}

			write, post, read := g.Operations()
			if len(write) != 1 || write[0].Type != OpWriteGBuffer || len(write[0].Outputs) != 3 {
				t.Fatalf("write ops = %+v, want one G-buffer write with 3 outputs", write)
			}
			if diff := cmp.Diff(tt.posts, opTypes(post)); diff != "" {
				t.Errorf("post ops mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.reads, readSlots(read)); diff != "" {
				t.Errorf("read slots mismatch (-want +got):\n%s", diff)
			}

			e.r.ResetEvents()
			g.BeginWrite(nil, false)
			g.BeginWritePass(0)
			g.EndWritePass()
			if !g.EndWrite() {
				t.Error("EndWrite() = false")
			}
			var images int
			for _, ev := range e.r.Events() {
				if ev.Kind == renderer.EventImage {
					images++
				}
			}
			if images != tt.images {
				t.Errorf("image ops = %d, want %d", images, tt.images)
			}

			e.r.ResetEvents()
			if !g.BeginRead(1, 0, 0, nil) {
				t.Fatal("BeginRead() = false")
			}
			var rsm int
			var vpl []renderer.TextureHandle
			for _, ev := range e.r.Events() {
				switch {
				case ev.Kind == renderer.EventSetConstants && ev.Label == "_cbRSM":
					rsm = ev.Bytes
				case ev.Kind == renderer.EventSetVPLData:
					vpl = ev.Targets
				}
			}
			if rsm != 240 {
				t.Errorf("_cbRSM bytes = %d, want 240", rsm)
			}
			if tt.indirect.Base() == IndirectPropagationVolumes {
				want := []renderer.TextureHandle{g.Texture(4), g.Texture(5)}
				if diff := cmp.Diff(want, vpl); diff != "" {
					t.Errorf("VPL data mismatch (-want +got):\n%s", diff)
				}
			} else if vpl != nil {
				t.Errorf("unexpected VPL data %v", vpl)
			}
			if got := e.r.SystemState(renderer.StateIndirectMethod); IndirectMethod(got) != tt.indirect {
				t.Errorf("IndirectMethod state = %v, want %v", IndirectMethod(got), tt.indirect)
			}
			g.EndRead()
		})
	}
}

func TestConstantBlockSizes(t *testing.T) {
	var s GPUShadowConstants
	if got := s.Size(); got != 112 || len(s.Marshal()) != 112 {
		t.Errorf("GPUShadowConstants size = %d, marshalled %d, want 112", got, len(s.Marshal()))
	}
	var r GPURSMConstants
	if got := r.Size(); got != 240 || len(r.Marshal()) != 240 {
		t.Errorf("GPURSMConstants size = %d, marshalled %d, want 240", got, len(r.Marshal()))
	}
}

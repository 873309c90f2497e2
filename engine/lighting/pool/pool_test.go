package pool

import (
	"errors"
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-shadow/engine/frame"
	"github.com/Carmen-Shannon/oxy-shadow/engine/renderer"
	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/multierr"
)

var testConfig = Config{MemoryLimitMB: 1, MinResolution: 64, MaxResolution: 256, MaxSharedPerType: 2}

func newTestPool(t *testing.T, caps renderer.Capabilities, ropts ...renderer.RendererBuilderOption) (Pool, *frame.Context) {
	t.Helper()
	ropts = append([]renderer.RendererBuilderOption{renderer.WithCapabilities(caps)}, ropts...)
	r := renderer.NewRenderer(renderer.BackendTypeHeadless, ropts...)
	ctx := frame.NewContext(r, frame.NewClock(), logr.Discard())
	return NewPool(ctx), ctx
}

func cachedDesc(format renderer.BufferFormat, res, channels uint32) Description {
	return Description{
		Category:     CategoryCached,
		Target:       renderer.TargetDescriptor{Type: renderer.BufferTypeRenderTarget, Format: format, Width: res, Height: res, MipLevels: 1},
		ChannelCount: channels,
		Role:         RoleStatisticsMap,
	}
}

func configure(t *testing.T, p Pool, fn func()) {
	t.Helper()
	if err := p.BeginConfigure(testConfig); err != nil {
		t.Fatalf("BeginConfigure: %v", err)
	}
	if fn != nil {
		fn()
	}
	if err := p.EndConfigure(); err != nil {
		t.Fatalf("EndConfigure: %v", err)
	}
}

func TestFormatNegotiation(t *testing.T) {
	tests := []struct {
		name         string
		caps         renderer.Capabilities
		wantRT1      renderer.BufferFormat
		wantRT2      renderer.BufferFormat
		wantRT8      renderer.BufferFormat
		wantReadable renderer.BufferFormat
		readableOK   bool
		wantCompare  renderer.BufferFormat
		compareOK    bool
	}{
		{
			name:         "desktop",
			caps:         renderer.DesktopCapabilities(),
			wantRT1:      renderer.FormatR32Uint,
			wantRT2:      renderer.FormatRG16Unorm,
			wantRT8:      renderer.FormatBGRA8Unorm,
			wantReadable: renderer.FormatD24UnormS8,
			readableOK:   true,
			wantCompare:  renderer.FormatD16,
			compareOK:    true,
		},
		{
			name:    "minimal",
			caps:    renderer.MinimalCapabilities(),
			wantRT1: renderer.FormatR16Float,
			wantRT2: renderer.FormatUnknown,
			wantRT8: renderer.FormatBGRA8Unorm,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newTestPool(t, tt.caps)
			if got := p.BestRenderTargetFormat(0, 1); got != tt.wantRT1 {
				t.Errorf("RT(0,1) = %s, want %s", got, tt.wantRT1)
			}
			if got := p.BestRenderTargetFormat(16, 2); got != tt.wantRT2 {
				t.Errorf("RT(16,2) = %s, want %s", got, tt.wantRT2)
			}
			if got := p.BestRenderTargetFormat(8, 4); got != tt.wantRT8 {
				t.Errorf("RT(8,4) = %s, want %s", got, tt.wantRT8)
			}
			if got := p.BestRenderTargetFormat(24, 2); got != renderer.FormatUnknown {
				t.Errorf("RT(24,2) = %s, want unknown", got)
			}
			df, ok := p.BestReadableDepthFormat(24, 0)
			if ok != tt.readableOK || (ok && df.Format != tt.wantReadable) {
				t.Errorf("readable depth = %s/%v, want %s/%v", df.Format, ok, tt.wantReadable, tt.readableOK)
			}
			df, ok = p.BestDepthFormat(16, true, false, true, 0)
			if ok != tt.compareOK || (ok && df.Format != tt.wantCompare) {
				t.Errorf("compare depth = %s/%v, want %s/%v", df.Format, ok, tt.wantCompare, tt.compareOK)
			}
			if _, ok := p.BestDepthFormat(0, false, false, false, 8); !ok {
				t.Error("a 24-bit depth format with stencil must exist")
			}
		})
	}
}

func TestSystemMaps(t *testing.T) {
	p, _ := newTestPool(t, renderer.MinimalCapabilities())
	configure(t, p, nil)

	df, ok := p.SharedDepthFormat()
	if !ok || df.Format != renderer.FormatD24UnormS8 {
		t.Fatalf("shared depth = %s/%v", df.Format, ok)
	}

	var got []string
	for _, r := range p.Resources() {
		if r.Category() != CategoryShared {
			t.Errorf("%s: system maps must be Shared", r.Descriptor().Name)
		}
		got = append(got, r.Descriptor().Name)
	}
	want := []string{
		"Pool(Shared)_64x64_D24_UNorm_S8_UInt", "Pool(Shared)_64x64_R16_Float",
		"Pool(Shared)_128x128_D24_UNorm_S8_UInt", "Pool(Shared)_128x128_R16_Float",
		"Pool(Shared)_256x256_D24_UNorm_S8_UInt", "Pool(Shared)_256x256_R16_Float",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("system maps (-want +got):\n%s", diff)
	}
	// Depth that cannot be read is a plain depth-stencil buffer.
	if typ := p.Resources()[0].Descriptor().Type; typ != renderer.BufferTypeDepthStencil {
		t.Errorf("shared depth type = %s", typ)
	}
	if p.MemoryConsumption() != 0 {
		t.Errorf("shared maps must not count against memory, got %d", p.MemoryConsumption())
	}
}

func TestAssignExclusivityAndDefaults(t *testing.T) {
	p, _ := newTestPool(t, renderer.DesktopCapabilities())
	descs := []Description{cachedDesc(renderer.FormatRGBA32Float, 256, 0)}
	configure(t, p, func() {
		p.AddCachedMaps(descs, 256, 1)
		p.AddDefaultMaps(descs)
	})
	if p.MemoryConsumption() != 256*256*16 {
		t.Fatalf("memory = %d", p.MemoryConsumption())
	}

	h1, def1, ok := p.AssignResources(descs, 1, 0)
	if !ok || def1 != 0 {
		t.Fatalf("owner 1: ok=%v defaults=%d", ok, def1)
	}
	if p.Resource(h1[0]).Category() != CategoryCached {
		t.Fatal("owner 1 must receive the cached map")
	}

	// The 1 MB budget is spent, so owner 2 falls back to the default map.
	h2, def2, ok := p.AssignResources(descs, 2, 0)
	if !ok || def2 != 1 {
		t.Fatalf("owner 2: ok=%v defaults=%d", ok, def2)
	}
	if r := p.Resource(h2[0]); r.Category() != CategoryShared || r.Descriptor().Width != 256 {
		t.Fatalf("owner 2 got %s", r.Descriptor().Name)
	}

	for _, r := range p.Resources() {
		if r.Category() != CategoryCached {
			continue
		}
		for ch, o := range r.Owners() {
			if o != 1 {
				t.Errorf("%s channel %d held by %d", r.Descriptor().Name, ch, o)
			}
		}
	}

	p.ReleaseResources(1)
	p.ReleaseResources(1)
	if got := p.Resource(h1[0]).AvailableChannels(); got != 4 {
		t.Errorf("available after release = %d, want 4", got)
	}
}

func TestReassignCacheAffinity(t *testing.T) {
	p, ctx := newTestPool(t, renderer.DesktopCapabilities())
	descs := []Description{cachedDesc(renderer.FormatRGBA32Float, 256, 0)}
	configure(t, p, func() {
		p.AddCachedMaps(descs, 256, 1)
		p.AddDefaultMaps(descs)
	})

	held, _, ok := p.AssignResources(descs, 1, 0)
	if !ok {
		t.Fatal("assign failed")
	}

	// Next frame: nothing else claimed the map, so owner 1 keeps it.
	ctx.Clock.Advance(1.0 / 60)
	p.ResetAvailability(DataTypeAny)
	again, ok := p.ReassignResources(descs, 1, 0, held)
	if !ok {
		t.Fatal("reassign must succeed on a cache hit")
	}
	if diff := cmp.Diff(held, again); diff != "" {
		t.Errorf("reassigned handles (-want +got):\n%s", diff)
	}
	if got := p.Resource(held[0]).LastFillFrame(1); got != ctx.Frame() {
		t.Errorf("last fill frame = %d, want %d", got, ctx.Frame())
	}

	// Next frame: owner 2 claims the map first, so owner 1 misses.
	ctx.Clock.Advance(1.0 / 60)
	p.ResetAvailability(DataTypeAny)
	if _, def, ok := p.AssignResources(descs, 2, 0); !ok || def != 0 {
		t.Fatalf("owner 2: ok=%v defaults=%d", ok, def)
	}
	if _, ok := p.ReassignResources(descs, 1, 0, again); ok {
		t.Fatal("reassign must fail once another owner filled the map")
	}

	// A description count mismatch always fails.
	if _, ok := p.ReassignResources(append(descs, descs[0]), 2, 0, held); ok {
		t.Error("reassign with a different description count must fail")
	}
	if _, ok := p.ReassignResources(descs, 2, 0, nil); ok {
		t.Error("reassign with nothing held must fail")
	}
}

func TestChannelPacking(t *testing.T) {
	p, _ := newTestPool(t, renderer.DesktopCapabilities())
	mask := cachedDesc(renderer.FormatBGRA8Unorm, 128, 1)
	mask.Role = RoleEdgeMap
	descs := []Description{mask}
	configure(t, p, func() {
		p.AddCachedMaps(descs, 128, 1)
	})

	var shared ResourceHandle = NoResource
	for owner := OwnerID(1); owner <= 4; owner++ {
		h, def, ok := p.AssignResources(descs, owner, 3)
		if !ok || def != 0 {
			t.Fatalf("owner %d: ok=%v defaults=%d", owner, ok, def)
		}
		if shared == NoResource {
			shared = h[0]
		}
		if h[0] != shared {
			t.Fatalf("owner %d got a different map", owner)
		}
		if got, want := p.Resource(shared).ChannelMask(owner), ChannelMask(1)<<(owner-1); got != want {
			t.Errorf("owner %d mask = %b, want %b", owner, got, want)
		}
	}

	// All four channels are taken; a fifth owner forces a dynamic allocation.
	h5, _, ok := p.AssignResources(descs, 5, 3)
	if !ok || h5[0] == shared {
		t.Fatalf("owner 5 must get a new map, ok=%v", ok)
	}

	// A reset of another data type leaves the packing alone.
	p.ResetAvailability(9)
	if p.Resource(shared).AvailableChannels() != 0 {
		t.Error("reset of an unrelated data type cleared assignments")
	}

	// After a matching reset owner 3 reclaims exactly its old channel.
	p.ResetAvailability(3)
	held := []ResourceHandle{shared}
	if _, ok := p.ReassignResources(descs, 3, 3, held); !ok {
		t.Fatal("owner 3 reassign failed")
	}
	if got := p.Resource(shared).ChannelMask(3); got != ChannelBlue {
		t.Errorf("owner 3 mask = %b, want blue", got)
	}
	if got := p.Resource(shared).Owners(); got[2] != 3 || got[0] != NoOwner {
		t.Errorf("owners = %v", got)
	}
}

func TestAssignWithMismatchedPreviousMask(t *testing.T) {
	r := newResource(0, CategoryCached, renderer.TargetDescriptor{
		Type: renderer.BufferTypeRenderTarget, Format: renderer.FormatBGRA8Unorm, Width: 64, Height: 64, MipLevels: 1,
	}, 0)

	// A two-channel previous mask with a one-channel request takes one channel.
	got := r.assign(1, 3, 1, ChannelRed|ChannelGreen, 1, 0)
	if got != ChannelRed {
		t.Errorf("mask = %b, want red", got)
	}
	if r.AvailableChannels() != 3 {
		t.Errorf("available = %d, want 3", r.AvailableChannels())
	}

	// A one-channel previous mask with a two-channel request takes two channels.
	got = r.assign(2, 3, 2, ChannelBlue, 2, 0)
	if got != ChannelGreen|ChannelBlue {
		t.Errorf("mask = %b, want green|blue", got)
	}
	if r.AvailableChannels() != 1 {
		t.Errorf("available = %d, want 1", r.AvailableChannels())
	}

	// Bits beyond the texture's channels are ignored.
	got = r.assign(3, 3, 1, ChannelAlpha|1<<7, 3, 0)
	if got != ChannelAlpha {
		t.Errorf("mask = %b, want alpha", got)
	}
	if r.AvailableChannels() != 0 {
		t.Errorf("available = %d, want 0", r.AvailableChannels())
	}
	if diff := cmp.Diff([]OwnerID{1, 2, 2, 3}, r.Owners()); diff != "" {
		t.Errorf("owners (-want +got):\n%s", diff)
	}

	r.unassign(2)
	if r.AvailableChannels() != 2 {
		t.Errorf("available after unassign = %d, want 2", r.AvailableChannels())
	}
	if r.assign(4, 3, 3, ChannelNone, 4, 0) != ChannelNone {
		t.Error("three channels granted with two free")
	}
}

func TestConfigureErrors(t *testing.T) {
	p, _ := newTestPool(t, renderer.DesktopCapabilities())
	if err := p.EndConfigure(); !errors.Is(err, ErrConfiguring) {
		t.Errorf("EndConfigure without Begin = %v", err)
	}
	if err := p.BeginConfigure(Config{MinResolution: 100, MaxResolution: 256}); !errors.Is(err, ErrResolution) {
		t.Errorf("non power of two = %v", err)
	}
	if err := p.BeginConfigure(testConfig); err != nil {
		t.Fatal(err)
	}
	if err := p.BeginConfigure(testConfig); !errors.Is(err, ErrConfiguring) {
		t.Errorf("nested BeginConfigure = %v", err)
	}

	failing, _ := newTestPool(t, renderer.DesktopCapabilities(), renderer.WithFailingFormats(renderer.FormatRGBA16Float))
	if err := failing.BeginConfigure(testConfig); err != nil {
		t.Fatal(err)
	}
	failing.AddCachedMaps([]Description{cachedDesc(renderer.FormatRGBA16Float, 64, 0)}, 64, 2)
	err := failing.EndConfigure()
	if err == nil {
		t.Fatal("expected creation failures")
	}
	if n := len(multierr.Errors(err)); n != 2 {
		t.Errorf("got %d combined errors, want 2", n)
	}
}

func TestResampleChains(t *testing.T) {
	var lines []string
	logger := funcr.New(func(prefix, args string) {
		lines = append(lines, prefix+" "+args)
	}, funcr.Options{Verbosity: 1})

	r := renderer.NewRenderer(renderer.BackendTypeHeadless)
	p := NewPool(frame.NewContext(r, nil, logr.Discard()), WithLogger(logger))
	configure(t, p, func() {
		p.AddMaps(CategoryShared, renderer.FormatRG16Unorm, 128, 1)
	})

	c, ok := p.ResampleChain(renderer.FormatRG16Unorm)
	if !ok || c.Resolution != 256 || !c.Texture.IsValid() {
		t.Fatalf("registered chain = %+v ok=%v", c, ok)
	}
	for _, l := range lines {
		if strings.Contains(l, "dynamic allocation of a resample chain") {
			t.Fatal("registered chain logged as dynamic")
		}
	}

	if _, ok := p.ResampleChain(renderer.FormatRG32Float); !ok {
		t.Fatal("on-demand chain failed")
	}
	found := false
	for _, l := range lines {
		if strings.Contains(l, "dynamic allocation of a resample chain") {
			found = true
		}
	}
	if !found {
		t.Errorf("missing dynamic chain log, got %v", lines)
	}

	// Chains are never handed out as default resources.
	d := cachedDesc(renderer.FormatRG32Float, 256, 0)
	d.Category = CategoryShared
	if res := p.GetResource(d, nil); res != nil {
		t.Errorf("resample chain returned as a shared resource: %s", res.Descriptor().Name)
	}

	live := r.LiveTargets()
	p.Clear()
	if r.LiveTargets() != 0 || live == 0 {
		t.Errorf("live targets %d -> %d after Clear", live, r.LiveTargets())
	}
}

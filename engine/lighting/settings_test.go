package lighting

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-shadow/common"
	"github.com/Carmen-Shannon/oxy-shadow/engine/frame"
	"github.com/Carmen-Shannon/oxy-shadow/engine/lighting/pool"
	"github.com/Carmen-Shannon/oxy-shadow/engine/lighting/shadow"
	"github.com/Carmen-Shannon/oxy-shadow/engine/renderer"
	"github.com/go-logr/logr"
	"github.com/google/go-cmp/cmp"
	"github.com/magiconair/properties"
	"go.uber.org/multierr"
)

var testPoolConfig = pool.Config{MemoryLimitMB: 16, MinResolution: 64, MaxResolution: 512, MaxSharedPerType: 2}

func newTestManager(t *testing.T, caps renderer.Capabilities, options ...ManagerBuilderOption) *managerImpl {
	t.Helper()
	r := renderer.NewRenderer(renderer.BackendTypeHeadless, renderer.WithCapabilities(caps))
	ctx := frame.NewContext(r, frame.NewClock(), logr.Discard())
	m := NewManager(ctx, options...).(*managerImpl)
	if err := m.BeginShadowConfigure(testPoolConfig); err != nil {
		t.Fatalf("BeginShadowConfigure: %v", err)
	}
	return m
}

func mustProperties(t *testing.T, s string) *properties.Properties {
	t.Helper()
	p, err := properties.LoadString(s)
	if err != nil {
		t.Fatalf("LoadString: %v", err)
	}
	return p
}

func entryNames(entries []SettingsEntry) []string {
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return names
}

func TestDefaultShadowConfigDesktop(t *testing.T) {
	m := newTestManager(t, renderer.DesktopCapabilities())
	if err := m.EndShadowConfigure(); err != nil {
		t.Fatalf("EndShadowConfigure: %v", err)
	}

	want := []string{"EVSM_Medium", "PCF_High", "PCF_Low", "PCSS_High", "RSM_High", "RSM_Low"}
	entries := m.ShadowSettings()
	if diff := cmp.Diff(want, entryNames(entries)); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
	for _, e := range entries {
		if e.Default != (e.Name == "PCF_Low") {
			t.Errorf("%s: Default = %v", e.Name, e.Default)
		}
	}
}

func TestDefaultShadowConfigMinimalDevice(t *testing.T) {
	m := newTestManager(t, renderer.MinimalCapabilities())
	err := m.EndShadowConfigure()
	if !errors.Is(err, ErrSettingsInvalid) {
		t.Fatalf("EndShadowConfigure error = %v, want ErrSettingsInvalid", err)
	}
	if errors.Is(err, ErrNoDefaultSettings) {
		t.Fatalf("the default entry should survive on a minimal device: %v", err)
	}

	if diff := cmp.Diff([]string{"PCF_High", "PCF_Low"}, entryNames(m.ShadowSettings())); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadShadowSettingsMissingDefault(t *testing.T) {
	m := newTestManager(t, renderer.DesktopCapabilities())
	p := mustProperties(t, `
Global.NumEntries = 2
Entries.Entry0 = Broken
Entries.Entry1 = Fine
Broken.Default = yes
Broken.Method = NotAMethod
Fine.Method = PCF
Fine.Resolution = 1
`)
	err := m.LoadShadowSettings(p)
	if !errors.Is(err, ErrNoDefaultSettings) {
		t.Errorf("error = %v, want ErrNoDefaultSettings", err)
	}
	if !errors.Is(err, ErrSettingsInvalid) {
		t.Errorf("error = %v, want ErrSettingsInvalid", err)
	}

	idx, e := m.GetShadowSettings(nil, false)
	if idx != NoSettingsIndex || e.Name != "" {
		t.Errorf("GetShadowSettings = %d %q, want NoSettingsIndex", idx, e.Name)
	}
}

func TestReadSettingsFields(t *testing.T) {
	p := mustProperties(t, `
Soft.Method = PCSS
Soft.Resolution = 2
Soft.Precision = 32
Soft.PrimarySamples = 16
Soft.Jitter = on
Soft.FilterRadius = 2.5
Soft.MaskType = DepthExtentsMask
Soft.MaskPrecision = 16
`)
	s, isDefault, err := readSettings(p, "Soft")
	if err != nil {
		t.Fatalf("readSettings: %v", err)
	}
	if isDefault {
		t.Error("Soft is not the default")
	}
	want := shadow.SettingsSystem{
		Method:           shadow.PCSS,
		ResolutionAdjust: 2,
		Precision:        32,
		PrimarySamples:   16,
		Jitter:           true,
		FilterRadius:     2.5,
		MaskType:         shadow.MethodDepthExtentsMask,
		MaskPrecision:    16,
	}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}

	bad := mustProperties(t, "Bad.Method = PCF\nBad.Resolution = -3\nBad.FilterRadius = wide\nBad.PrimarySamples = 4294967296\n")
	_, _, err = readSettings(bad, "Bad")
	if !errors.Is(err, ErrSettingsInvalid) {
		t.Errorf("readSettings(Bad) error = %v, want ErrSettingsInvalid", err)
	}
	if got := len(multierr.Errors(err)); got != 3 {
		t.Errorf("readSettings(Bad) reported %d problems, want 3:\n%v", got, err)
	}
}

func TestResourceDescriptionsHardwareCompare(t *testing.T) {
	m := newTestManager(t, renderer.DesktopCapabilities())
	descs, flags, err := m.ResourceDescriptions(shadow.SettingsSystem{Method: shadow.PCF, Rotate: true})
	if err != nil {
		t.Fatalf("ResourceDescriptions: %v", err)
	}

	wantFlags := shadow.PCF | shadow.MethodHardware | shadow.MethodCompare | shadow.MethodRotate
	if flags != wantFlags {
		t.Errorf("flags = %s, want %s", flags, wantFlags)
	}
	if len(descs) != 2 {
		t.Fatalf("got %d descriptions, want 2", len(descs))
	}
	depth := descs[0]
	if depth.Category != pool.CategoryCached || depth.Target.Type != renderer.BufferTypeShadowMap || depth.Target.Format != renderer.FormatD24UnormS8 {
		t.Errorf("depth description = %+v", depth)
	}
	if descs[1].Category != pool.CategoryShared || descs[1].Role != pool.RoleDepthMap {
		t.Errorf("depth copy description = %+v", descs[1])
	}
}

func TestResourceDescriptionsSoftwareFallback(t *testing.T) {
	m := newTestManager(t, renderer.MinimalCapabilities())
	descs, flags, err := m.ResourceDescriptions(shadow.SettingsSystem{Method: shadow.PCF})
	if err != nil {
		t.Fatalf("ResourceDescriptions: %v", err)
	}
	if flags != shadow.PCF|shadow.MethodDepthReads|shadow.MethodManual2x2 {
		t.Errorf("flags = %s, want PCF|DepthReads|Manual2x2", flags)
	}
	if flags.Any(shadow.MethodHardware | shadow.MethodCompare) {
		t.Errorf("flags = %s, want neither Hardware nor Compare", flags)
	}

	want := []pool.Description{
		{
			Category: pool.CategoryShared,
			Target:   renderer.TargetDescriptor{Type: renderer.BufferTypeDepthStencil, Format: renderer.FormatD24UnormS8, MipLevels: 1},
			Role:     pool.RoleDepthStencilBuffer,
		},
		{
			Category: pool.CategoryCached,
			Target:   renderer.TargetDescriptor{Type: renderer.BufferTypeRenderTarget, Format: renderer.FormatR16Float, MipLevels: 1},
			Sampler:  common.PointClampSampler(),
			Role:     pool.RoleDepthMap,
		},
	}
	if diff := cmp.Diff(want, descs); diff != "" {
		t.Errorf("descriptions mismatch (-want +got):\n%s", diff)
	}
}

func TestResourceDescriptionsStatistics(t *testing.T) {
	m := newTestManager(t, renderer.DesktopCapabilities())
	s := shadow.SettingsSystem{
		Method:              shadow.EVSM,
		Precision:           16,
		Anisotropy:          64,
		AutoGenerateMipmaps: true,
		TrilinearFiltering:  true,
	}

	validated, err := m.ValidateShadowSettings(s)
	if err != nil {
		t.Fatalf("ValidateShadowSettings: %v", err)
	}
	if validated.Anisotropy != 16 {
		t.Errorf("Anisotropy = %d, want it clamped to 16", validated.Anisotropy)
	}

	descs, flags, err := m.ResourceDescriptions(s)
	if err != nil {
		t.Fatalf("ResourceDescriptions: %v", err)
	}
	if !flags.Has(shadow.EVSM | shadow.MethodBits16) {
		t.Errorf("flags = %s", flags)
	}
	var stats *pool.Description
	for i := range descs {
		if descs[i].Role == pool.RoleStatisticsMap {
			stats = &descs[i]
		}
	}
	if stats == nil {
		t.Fatal("no statistics map description")
	}
	if stats.Target.Format != renderer.FormatRGBA16Float {
		t.Errorf("statistics format = %s", stats.Target.Format)
	}
	if stats.Target.MipLevels != 0 {
		t.Errorf("statistics MipLevels = %d, want a full chain", stats.Target.MipLevels)
	}
	if stats.Sampler != common.AnisotropicClampSampler(16) {
		t.Errorf("statistics sampler = %+v", stats.Sampler)
	}
}

func TestValidateRejectsUnfilterableStatistics(t *testing.T) {
	m := newTestManager(t, renderer.DesktopCapabilities())
	// 32-bit statistics resolve to integer targets, which cannot filter.
	_, err := m.ValidateShadowSettings(shadow.SettingsSystem{Method: shadow.VSM, Precision: 32, BilinearFiltering: true})
	if !errors.Is(err, ErrSettingsInvalid) {
		t.Errorf("error = %v, want ErrSettingsInvalid", err)
	}
	if _, err := m.ValidateShadowSettings(shadow.SettingsSystem{}); !errors.Is(err, ErrSettingsInvalid) {
		t.Errorf("empty method error = %v, want ErrSettingsInvalid", err)
	}
}

func TestResourceDescriptionsReflectiveBoxFilter(t *testing.T) {
	m := newTestManager(t, renderer.DesktopCapabilities())
	descs, flags, err := m.ResourceDescriptions(shadow.SettingsSystem{Method: shadow.RSM, BoxFilter: true})
	if err != nil {
		t.Fatalf("ResourceDescriptions: %v", err)
	}
	if flags != shadow.RSM|shadow.MethodBoxFilter {
		t.Errorf("flags = %s", flags)
	}

	var roles []pool.Role
	for _, d := range descs {
		roles = append(roles, d.Role)
	}
	want := []pool.Role{
		pool.RoleDepthStencilBuffer,
		pool.RoleDepthMap, pool.RoleNormalMap, pool.RoleColorMap,
		pool.RoleDepthMap, pool.RoleNormalMap, pool.RoleColorMap,
	}
	if diff := cmp.Diff(want, roles); diff != "" {
		t.Errorf("roles mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateShadowSettings(t *testing.T) {
	m := newTestManager(t, renderer.DesktopCapabilities())
	tests := []struct {
		name  string
		flags shadow.Method
		want  shadow.SettingsSystem
	}{
		{
			name:  "pcss with extents mask",
			flags: shadow.PCSS | shadow.MethodBits32 | shadow.MethodDepthExtentsMask | shadow.MethodExtentsBits16 | shadow.MethodJitter,
			want: shadow.SettingsSystem{
				Method:        shadow.PCSS,
				Precision:     32,
				MaskType:      shadow.MethodDepthExtentsMask,
				MaskPrecision: 16,
				Jitter:        true,
			},
		},
		{
			name:  "evsm",
			flags: shadow.EVSM | shadow.MethodBits16,
			want:  shadow.SettingsSystem{Method: shadow.EVSM, Precision: 16},
		},
		{
			name:  "pcf with edge mask",
			flags: shadow.PCF | shadow.MethodEdgeMask | shadow.MethodRotate | shadow.MethodTranslucency,
			want: shadow.SettingsSystem{
				Method:        shadow.PCF,
				MaskType:      shadow.MethodEdgeMask,
				MaskPrecision: 8,
				Rotate:        true,
				Translucency:  true,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, m.GenerateShadowSettings(tt.flags)); diff != "" {
				t.Errorf("settings mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGetShadowSettings(t *testing.T) {
	m := newTestManager(t, renderer.DesktopCapabilities(), WithShadowSystemLOD(50), WithIndirectSystemLOD(10))
	if err := m.EndShadowConfigure(); err != nil {
		t.Fatalf("EndShadowConfigure: %v", err)
	}

	lods := []shadow.LOD{
		{Level: 20, Name: "PCF_High"},
		{Level: 40, Name: "PCSS_High"},
		{Level: 45, Name: "Missing"},
		{Level: 60, Name: "EVSM_Medium"},
	}
	tests := []struct {
		name       string
		lods       []shadow.LOD
		reflective bool
		wantIndex  int
		wantName   string
	}{
		{name: "closest level below the system LOD", lods: lods, wantIndex: 1, wantName: "PCSS_High"},
		{name: "indirect LOD below every level", lods: lods, reflective: true, wantIndex: DefaultSettingsIndex, wantName: "PCF_Low"},
		{name: "empty table", wantIndex: DefaultSettingsIndex, wantName: "PCF_Low"},
		{name: "reflective table", lods: []shadow.LOD{{Level: 0, Name: "RSM_Low"}, {Level: 5, Name: "RSM_High"}}, reflective: true, wantIndex: 1, wantName: "RSM_High"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, e := m.GetShadowSettings(tt.lods, tt.reflective)
			if idx != tt.wantIndex || e.Name != tt.wantName {
				t.Errorf("GetShadowSettings = %d %q, want %d %q", idx, e.Name, tt.wantIndex, tt.wantName)
			}
		})
	}
}

func TestGetShadowSettingsReturnsCopies(t *testing.T) {
	m := newTestManager(t, renderer.DesktopCapabilities())
	if err := m.EndShadowConfigure(); err != nil {
		t.Fatalf("EndShadowConfigure: %v", err)
	}

	_, e := m.GetShadowSettings([]shadow.LOD{{Level: 0, Name: "PCF_High"}}, false)
	if len(e.Descriptions) == 0 {
		t.Fatal("PCF_High has no descriptions")
	}
	e.Descriptions[0].Target.Format = renderer.FormatUnknown
	e.Settings.PrimarySamples = 99

	_, again := m.GetShadowSettings([]shadow.LOD{{Level: 0, Name: "PCF_High"}}, false)
	if again.Descriptions[0].Target.Format == renderer.FormatUnknown || again.Settings.PrimarySamples == 99 {
		t.Error("modifying a returned entry changed the table")
	}
}

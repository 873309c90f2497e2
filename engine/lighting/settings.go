package lighting

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/oxy-shadow/common"
	"github.com/Carmen-Shannon/oxy-shadow/engine/lighting/pool"
	"github.com/Carmen-Shannon/oxy-shadow/engine/lighting/shadow"
	"github.com/Carmen-Shannon/oxy-shadow/engine/renderer"
	"github.com/jinzhu/copier"
	"github.com/magiconair/properties"
	"go.uber.org/multierr"
)

var (
	// ErrNoDefaultSettings is returned when the settings table has no usable default entry.
	ErrNoDefaultSettings = errors.New("lighting: no default shadow settings")
	// ErrSettingsInvalid is returned for a settings entry the device cannot run or the file cannot describe.
	ErrSettingsInvalid = errors.New("lighting: invalid shadow settings")
)

// GetShadowSettings results that are not LOD table indices.
const (
	// DefaultSettingsIndex means no LOD entry qualified and the default entry was returned.
	DefaultSettingsIndex = -2
	// NoSettingsIndex means neither a LOD entry nor the default entry exists.
	NoSettingsIndex = -1
)

// SettingsEntry is a validated row of the shadow settings table.
type SettingsEntry struct {
	Name         string
	Default      bool
	Settings     shadow.SettingsSystem
	Descriptions []pool.Description
	Flags        shadow.Method
}

type resolvedSettings struct {
	settings shadow.SettingsSystem
	descs    []pool.Description
	flags    shadow.Method
	err      error
}

// DefaultShadowConfig is the settings table used when none is configured.
const DefaultShadowConfig = `
Global.NumEntries = 6
Entries.Entry0 = PCF_Low
Entries.Entry1 = PCF_High
Entries.Entry2 = PCSS_High
Entries.Entry3 = EVSM_Medium
Entries.Entry4 = RSM_Low
Entries.Entry5 = RSM_High

PCF_Low.Default = 1
PCF_Low.Method = PCF
PCF_Low.Resolution = 2
PCF_Low.PrimarySamples = 4
PCF_Low.FilterRadius = 1

PCF_High.Method = PCF
PCF_High.Resolution = 1
PCF_High.PrimarySamples = 16
PCF_High.Rotate = 1
PCF_High.FilterRadius = 2
PCF_High.MaskType = EdgeMask

PCSS_High.Method = PCSS
PCSS_High.Resolution = 0
PCSS_High.Precision = 32
PCSS_High.PrimarySamples = 16
PCSS_High.SecondarySamples = 16
PCSS_High.Jitter = 1
PCSS_High.FilterRadius = 3
PCSS_High.FilterRadiusNear = 1
PCSS_High.FilterRadiusFar = 6
PCSS_High.MaskType = DepthExtentsMask
PCSS_High.MaskPrecision = 16

EVSM_Medium.Method = EVSM
EVSM_Medium.Resolution = 1
EVSM_Medium.Precision = 16
EVSM_Medium.BilinearFiltering = 1
EVSM_Medium.TrilinearFiltering = 1
EVSM_Medium.AutoGenMips = 1
EVSM_Medium.FilterPasses = 1
EVSM_Medium.FilterRadius = 2

RSM_Low.Method = RSM
RSM_Low.Resolution = 3
RSM_Low.PrimarySamples = 16
RSM_Low.BoxFilter = 1

RSM_High.Method = RSM
RSM_High.Resolution = 2
RSM_High.PrimarySamples = 32
RSM_High.BoxFilter = 1
`

// LoadShadowConfigFile reads a shadow settings table from a properties file.
//
// Parameters:
//   - path: the file path
//
// Returns:
//   - *properties.Properties: the parsed table
//   - error: an error if the file cannot be read or parsed
func LoadShadowConfigFile(path string) (*properties.Properties, error) {
	p, err := properties.LoadFile(path, properties.UTF8)
	if err != nil {
		return nil, fmt.Errorf("failed to load shadow settings %s: %w", path, err)
	}
	return p, nil
}

// statisticsChannels returns the statistics map channel count of a method.
func statisticsChannels(preset shadow.Method) uint32 {
	switch preset {
	case shadow.EVSM:
		return 4
	case shadow.VSM:
		return 2
	}
	return 1
}

func (m *managerImpl) maskFormat(s shadow.SettingsSystem) renderer.BufferFormat {
	if s.MaskType == shadow.MethodDepthExtentsMask && s.MaskPrecision == 16 {
		return m.pool.BestRenderTargetFormat(16, 2)
	}
	return m.pool.BestRenderTargetFormat(8, 4)
}

func (m *managerImpl) ValidateShadowSettings(s shadow.SettingsSystem) (shadow.SettingsSystem, error) {
	r := m.ctx.Renderer
	preset := s.Method.Preset()

	switch {
	case preset == shadow.PCF || preset == shadow.PCSS:
		if s.Precision != 0 {
			if _, ok := m.pool.BestReadableDepthFormat(s.Precision, 0); !ok &&
				m.pool.BestRenderTargetFormat(s.Precision, 1) == renderer.FormatUnknown {
				return s, fmt.Errorf("%w: no readable depth or single channel target at %d bits", ErrSettingsInvalid, s.Precision)
			}
		}

	case preset.IsStatistical():
		channels := statisticsChannels(preset)
		depth := m.pool.BestRenderTargetFormat(s.Precision, 1)
		stats := m.pool.BestRenderTargetFormat(s.Precision, channels)
		if depth == renderer.FormatUnknown || stats == renderer.FormatUnknown {
			return s, fmt.Errorf("%w: no %d channel statistics target at %d bits", ErrSettingsInvalid, channels, s.Precision)
		}

		caps := r.FormatCapabilities(renderer.BufferTypeRenderTarget, stats)
		linear := caps.Has(renderer.CapsCanLinearFilter)
		if s.BilinearFiltering && !linear {
			return s, fmt.Errorf("%w: %s cannot be filtered linearly", ErrSettingsInvalid, stats)
		}
		if s.TrilinearFiltering && !linear {
			m.log.V(1).Info("trilinear filtering unsupported, disabled", "format", stats.String())
			s.TrilinearFiltering = false
		}
		if s.Anisotropy > 0 && uint32(r.MaxAnisotropy()) < s.Anisotropy {
			m.log.V(1).Info("anisotropy reduced to the device maximum", "requested", s.Anisotropy, "max", r.MaxAnisotropy())
			s.Anisotropy = uint32(r.MaxAnisotropy())
			if s.Anisotropy <= 1 {
				s.Anisotropy = 0
			}
		}
		if s.AutoGenerateMipmaps && !caps.Has(renderer.CapsCanAutoGenMipMaps) {
			m.log.V(1).Info("mipmap generation unsupported, disabled", "format", stats.String())
			s.AutoGenerateMipmaps = false
		}

	case preset == shadow.RSM:
		if r.FormatCapabilities(renderer.BufferTypeRenderTarget, renderer.FormatR32Float) == 0 ||
			m.pool.BestRenderTargetFormat(8, 4) == renderer.FormatUnknown {
			return s, fmt.Errorf("%w: reflective shadow maps need R32 float and 8-bit four channel targets", ErrSettingsInvalid)
		}

	default:
		return s, fmt.Errorf("%w: unknown method %s", ErrSettingsInvalid, s.Method)
	}

	if s.MaskType != 0 && m.maskFormat(s) == renderer.FormatUnknown {
		return s, fmt.Errorf("%w: no edge mask target for %s", ErrSettingsInvalid, s.MaskType)
	}
	return s, nil
}

func (m *managerImpl) ResourceDescriptions(s shadow.SettingsSystem) ([]pool.Description, shadow.Method, error) {
	key := s.Digest()
	m.mu.Lock()
	cached, ok := m.resolved[key]
	m.mu.Unlock()
	if !ok {
		cached = m.resolve(s)
		m.mu.Lock()
		m.resolved[key] = cached
		m.mu.Unlock()
	}
	if cached.err != nil {
		return nil, 0, cached.err
	}
	return slices.Clone(cached.descs), cached.flags, nil
}

// resolve validates s and builds its resource descriptions and method flags.
func (m *managerImpl) resolve(s shadow.SettingsSystem) resolvedSettings {
	s, err := m.ValidateShadowSettings(s)
	if err != nil {
		return resolvedSettings{settings: s, err: err}
	}
	shared, ok := m.pool.SharedDepthFormat()
	if !ok {
		return resolvedSettings{settings: s, err: fmt.Errorf("%w: the pool has no shared depth format", ErrSettingsInvalid)}
	}

	point := common.PointClampSampler()
	linear := common.LinearClampSampler()
	trilinear := common.TrilinearClampSampler()
	aniso := common.AnisotropicClampSampler(uint16(min(uint32(m.ctx.Renderer.MaxAnisotropy()), s.Anisotropy)))

	preset := s.Method.Preset()
	flags := preset
	switch s.Precision {
	case 16:
		flags |= shadow.MethodBits16
	case 24:
		flags |= shadow.MethodBits24
	case 32:
		flags |= shadow.MethodBits32
	}

	sharedDepth := pool.Description{
		Category: pool.CategoryShared,
		Target: renderer.TargetDescriptor{
			Type:      renderer.BufferTypeDepthStencil,
			Format:    shared.Format,
			MipLevels: 1,
		},
		Role: pool.RoleDepthStencilBuffer,
	}
	if shared.Caps.Has(renderer.CapsCanGather) || shared.Caps.Has(renderer.CapsCanSample) {
		sharedDepth.Target.Type = renderer.BufferTypeShadowMap
	}
	target := func(category pool.Category, format renderer.BufferFormat, sampler common.SamplerStagingData, role pool.Role) pool.Description {
		return pool.Description{
			Category: category,
			Target: renderer.TargetDescriptor{
				Type:      renderer.BufferTypeRenderTarget,
				Format:    format,
				MipLevels: 1,
			},
			Sampler: sampler,
			Role:    role,
		}
	}
	readableDepth := func(df pool.DepthFormat) pool.Description {
		return pool.Description{
			Category: pool.CategoryCached,
			Target: renderer.TargetDescriptor{
				Type:      renderer.BufferTypeShadowMap,
				Format:    df.Format,
				MipLevels: 1,
			},
			Sampler: df.Sampler,
			Role:    pool.RoleDepthStencilBuffer,
		}
	}

	var descs []pool.Description
	switch {
	case preset == shadow.PCF || preset == shadow.PCSS:
		depthCopy := target(pool.CategoryShared, m.pool.BestRenderTargetFormat(0, 1), point, pool.RoleDepthMap)
		if df, ok := m.pool.BestDepthFormat(s.Precision, false, false, true, 0); ok && preset == shadow.PCF {
			descs = append(descs, readableDepth(df), depthCopy)
			flags |= shadow.MethodHardware | shadow.MethodCompare
		} else if df, ok := m.pool.BestReadableDepthFormat(s.Precision, 0); ok {
			descs = append(descs, readableDepth(df), depthCopy)
			if df.Caps.Has(renderer.CapsCanGather) {
				flags |= shadow.MethodHardware | shadow.MethodGather
			} else {
				flags |= shadow.MethodHardware | shadow.MethodDepthReads
			}
			if df.Format == renderer.FormatRAWZ {
				flags |= shadow.MethodRAWZ
			}
			flags |= shadow.MethodManual2x2
		} else {
			descs = append(descs, sharedDepth, target(pool.CategoryCached, m.pool.BestRenderTargetFormat(s.Precision, 1), point, pool.RoleDepthMap))
			flags |= shadow.MethodDepthReads | shadow.MethodManual2x2
		}

	case preset.IsStatistical():
		stats := target(pool.CategoryCached, m.pool.BestRenderTargetFormat(s.Precision, statisticsChannels(preset)), point, pool.RoleStatisticsMap)
		switch {
		case s.Anisotropy > 0:
			stats.Sampler = aniso
		case s.TrilinearFiltering:
			stats.Sampler = trilinear
		case s.BilinearFiltering:
			stats.Sampler = linear
		default:
			flags |= shadow.MethodManual2x2
		}
		if s.AutoGenerateMipmaps {
			stats.Target.MipLevels = 0
		}
		descs = append(descs, sharedDepth, target(pool.CategoryShared, m.pool.BestRenderTargetFormat(s.Precision, 1), point, pool.RoleDepthMap), stats)

	case preset == shadow.RSM:
		color := m.pool.BestRenderTargetFormat(8, 4)
		descs = append(descs,
			sharedDepth,
			target(pool.CategoryCached, renderer.FormatR32Float, point, pool.RoleDepthMap),
			target(pool.CategoryCached, color, point, pool.RoleNormalMap),
			target(pool.CategoryCached, color, point, pool.RoleColorMap),
		)
		if s.BoxFilter {
			descs = append(descs, descs[1], descs[2], descs[3])
		}
	}

	if s.MaskType != 0 {
		mask := target(pool.CategoryCached, m.maskFormat(s), point, pool.RoleEdgeMap)
		if s.MaskType == shadow.MethodDepthExtentsMask {
			mask.ChannelCount = 2
			flags |= shadow.MethodDepthExtentsMask
			if s.MaskPrecision == 16 {
				flags |= shadow.MethodExtentsBits16
			}
		} else {
			mask.Sampler = linear
			mask.ChannelCount = 1
			flags |= shadow.MethodEdgeMask
		}
		descs = append(descs, mask)
	}

	if s.Jitter {
		flags |= shadow.MethodJitter
	}
	if s.Rotate {
		flags |= shadow.MethodRotate
	}
	if s.BoxFilter {
		flags |= shadow.MethodBoxFilter
	}
	if s.NormalOffset {
		flags |= shadow.MethodNormalOffset
	}
	return resolvedSettings{settings: s, descs: descs, flags: flags}
}

func (m *managerImpl) GenerateShadowSettings(flags shadow.Method) shadow.SettingsSystem {
	var s shadow.SettingsSystem
	s.Method = flags.Preset()

	switch {
	case flags.Has(shadow.MethodBits16):
		s.Precision = 16
	case flags.Has(shadow.MethodBits24):
		s.Precision = 24
	case flags.Has(shadow.MethodBits32):
		s.Precision = 32
	}

	switch {
	case flags.Has(shadow.MethodDepthExtentsMask):
		s.MaskType = shadow.MethodDepthExtentsMask
		s.MaskPrecision = 8
		if flags.Has(shadow.MethodExtentsBits16) {
			s.MaskPrecision = 16
		}
	case flags.Has(shadow.MethodEdgeMask):
		s.MaskType = shadow.MethodEdgeMask
		s.MaskPrecision = 8
	}

	s.Jitter = flags.Has(shadow.MethodJitter)
	s.Rotate = flags.Has(shadow.MethodRotate)
	s.NormalOffset = flags.Has(shadow.MethodNormalOffset)
	s.Translucency = flags.Has(shadow.MethodTranslucency)
	s.BoxFilter = flags.Has(shadow.MethodBoxFilter)
	return s
}

func (m *managerImpl) AddShadowSettings(name string, s shadow.SettingsSystem) error {
	m.mu.Lock()
	_, exists := m.settings[name]
	m.mu.Unlock()
	if exists {
		return nil
	}

	key := s.Digest()
	res := m.resolve(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolved[key] = res
	if res.err != nil {
		return fmt.Errorf("shadow settings %q: %w", name, res.err)
	}
	m.settings[name] = &SettingsEntry{
		Name:         name,
		Settings:     res.settings,
		Descriptions: res.descs,
		Flags:        res.flags,
	}
	return nil
}

func (m *managerImpl) SetDefaultShadowSettings(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultName = name
}

// entryReader reads the keys of one settings entry and collects parse errors.
type entryReader struct {
	p    *properties.Properties
	name string
	err  error
}

func (r *entryReader) key(field string) (string, bool) {
	k := r.name + "." + field
	_, ok := r.p.Get(k)
	return k, ok
}

func (r *entryReader) uint(field string) uint32 {
	k, ok := r.key(field)
	if !ok {
		return 0
	}
	raw, _ := r.p.Get(k)
	v, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || v > math.MaxUint32 {
		r.err = multierr.Append(r.err, fmt.Errorf("%w: %s is not an unsigned integer", ErrSettingsInvalid, k))
		return 0
	}
	return uint32(v)
}

func (r *entryReader) float(field string) float32 {
	k, ok := r.key(field)
	if !ok {
		return 0
	}
	raw, _ := r.p.Get(k)
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		r.err = multierr.Append(r.err, fmt.Errorf("%w: %s is not a number", ErrSettingsInvalid, k))
		return 0
	}
	return float32(v)
}

func (r *entryReader) bool(field string) bool {
	k, _ := r.key(field)
	return r.p.GetBool(k, false)
}

func (r *entryReader) method(field string) shadow.Method {
	k, ok := r.key(field)
	if !ok {
		return 0
	}
	v, err := shadow.ParseMethod(r.p.GetString(k, ""))
	if err != nil {
		r.err = multierr.Append(r.err, fmt.Errorf("%w: %s: %w", ErrSettingsInvalid, k, err))
	}
	return v
}

func readSettings(p *properties.Properties, name string) (shadow.SettingsSystem, bool, error) {
	r := &entryReader{p: p, name: name}
	s := shadow.SettingsSystem{
		Method:              r.method("Method").Preset(),
		ResolutionAdjust:    r.uint("Resolution"),
		Precision:           r.uint("Precision"),
		PrimarySamples:      r.uint("PrimarySamples"),
		SecondarySamples:    r.uint("SecondarySamples"),
		Anisotropy:          r.uint("Anisotropy"),
		MSAASamples:         r.uint("MSAASamples"),
		AutoGenerateMipmaps: r.bool("AutoGenMips"),
		Jitter:              r.bool("Jitter"),
		Rotate:              r.bool("Rotate"),
		BoxFilter:           r.bool("BoxFilter"),
		BilinearFiltering:   r.bool("BilinearFiltering"),
		TrilinearFiltering:  r.bool("TrilinearFiltering"),
		NormalOffset:        r.bool("NormalOffset"),
		FilterPasses:        r.uint("FilterPasses"),
		FilterRadius:        r.float("FilterRadius"),
		FilterRadiusNear:    r.float("FilterRadiusNear"),
		FilterRadiusFar:     r.float("FilterRadiusFar"),
		MaskType:            r.method("MaskType") & shadow.MaskBits,
		MaskPrecision:       r.uint("MaskPrecision"),
		Translucency:        r.bool("Translucency"),
	}
	if s.Method == 0 {
		r.err = multierr.Append(r.err, fmt.Errorf("%w: %s.Method is missing", ErrSettingsInvalid, name))
	}
	return s, r.bool("Default"), r.err
}

func (m *managerImpl) LoadShadowSettings(p *properties.Properties) error {
	var errs error
	n := p.GetInt("Global.NumEntries", 0)
	for i := range n {
		key := fmt.Sprintf("Entries.Entry%d", i)
		name := p.GetString(key, "")
		if name == "" {
			errs = multierr.Append(errs, fmt.Errorf("%w: %s is missing", ErrSettingsInvalid, key))
			continue
		}

		s, isDefault, err := readSettings(p, name)
		if isDefault {
			m.SetDefaultShadowSettings(name)
		}
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if err := m.AddShadowSettings(name, s); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.settings[m.defaultName]; !ok {
		errs = multierr.Append(errs, fmt.Errorf("%w: %q", ErrNoDefaultSettings, m.defaultName))
	}
	m.log.Info("shadow settings loaded", "entries", n, "valid", len(m.settings), "default", m.defaultName)
	return errs
}

func (m *managerImpl) ShadowSettings() []SettingsEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SettingsEntry, 0, len(m.settings))
	for _, e := range m.settings {
		out = append(out, m.copyEntry(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// copyEntry returns a deep copy of a table entry so callers cannot alter the table.
func (m *managerImpl) copyEntry(e *SettingsEntry) SettingsEntry {
	var out SettingsEntry
	if err := copier.CopyWithOption(&out, e, copier.Option{DeepCopy: true}); err != nil {
		m.log.Error(err, "failed to copy shadow settings", "entry", e.Name)
		out = *e
		out.Descriptions = slices.Clone(e.Descriptions)
	}
	out.Default = e.Name == m.defaultName
	return out
}

func (m *managerImpl) GetShadowSettings(lods []shadow.LOD, reflective bool) (int, SettingsEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.shadowLOD
	if reflective {
		current = m.indirectLOD
	}

	index := NoSettingsIndex
	best := int64(math.MaxInt64)
	var found *SettingsEntry
	for i, lod := range lods {
		if lod.Level > current {
			continue
		}
		delta := int64(current) - int64(lod.Level)
		if delta >= best {
			continue
		}
		if e, ok := m.settings[lod.Name]; ok {
			found, best, index = e, delta, i
		}
	}

	if found == nil {
		e, ok := m.settings[m.defaultName]
		if !ok {
			return NoSettingsIndex, SettingsEntry{}
		}
		found, index = e, DefaultSettingsIndex
	}
	return index, m.copyEntry(found)
}

func (m *managerImpl) MaxShadowResolution() uint32 {
	return m.pool.Config().MaxResolution
}

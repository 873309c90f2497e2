// Package report renders the CLI's tables.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Carmen-Shannon/oxy-shadow/engine/lighting"
	"github.com/Carmen-Shannon/oxy-shadow/engine/renderer"
	"github.com/Carmen-Shannon/oxy-shadow/engine/scene"
	"github.com/aquasecurity/table"
)

// Frame is one scene frame of a run.
type Frame struct {
	Scene string
	Stats scene.FrameStats
}

var capNames = []struct {
	caps renderer.FormatCaps
	name string
}{
	{renderer.CapsCanWrite, "write"},
	{renderer.CapsCanSample, "sample"},
	{renderer.CapsCanAutoGenMipMaps, "mips"},
	{renderer.CapsCanCompare, "compare"},
	{renderer.CapsCanGather, "gather"},
	{renderer.CapsCanGatherCompare, "gather-compare"},
	{renderer.CapsCanLinearFilter, "linear"},
}

func capsString(c renderer.FormatCaps) string {
	var parts []string
	for _, cn := range capNames {
		if c.Has(cn.caps) {
			parts = append(parts, cn.name)
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ",")
}

func newTable(w io.Writer, headers ...string) *table.Table {
	tbl := table.New(w)
	tbl.SetColumnMaxWidth(40)
	tbl.SetBorders(false)
	tbl.SetHeaders(headers...)
	return tbl
}

// Frames writes one row per scene frame followed by a totals row.
//
// Parameters:
//   - w: the destination
//   - frames: the frames in run order
func Frames(w io.Writer, frames []Frame) {
	tbl := newTable(w, "Scene", "Frame", "Visible", "Lights", "Fills", "Indirect", "Writes", "Cached", "Deferred", "Failed", "Draws", "Pool KiB", "Time")

	var total scene.FrameStats
	for _, f := range frames {
		s := f.Stats
		tbl.AddRow(f.Scene,
			fmt.Sprint(s.Frame),
			fmt.Sprint(s.Visible),
			fmt.Sprint(s.LightsProcessed),
			fmt.Sprint(s.ShadowFills),
			fmt.Sprint(s.IndirectFills),
			fmt.Sprint(s.WritePasses),
			fmt.Sprint(s.CacheHits),
			fmt.Sprint(s.Deferred),
			fmt.Sprint(s.CallbackFailures),
			fmt.Sprint(s.Draws),
			fmt.Sprint(s.PoolMemory/1024),
			s.Duration.Round(time.Microsecond).String(),
		)
		total.LightsProcessed += s.LightsProcessed
		total.ShadowFills += s.ShadowFills
		total.IndirectFills += s.IndirectFills
		total.WritePasses += s.WritePasses
		total.CacheHits += s.CacheHits
		total.Deferred += s.Deferred
		total.CallbackFailures += s.CallbackFailures
		total.Draws += s.Draws
		total.Duration += s.Duration
	}
	if len(frames) > 1 {
		tbl.AddRow("total", "", "",
			fmt.Sprint(total.LightsProcessed),
			fmt.Sprint(total.ShadowFills),
			fmt.Sprint(total.IndirectFills),
			fmt.Sprint(total.WritePasses),
			fmt.Sprint(total.CacheHits),
			fmt.Sprint(total.Deferred),
			fmt.Sprint(total.CallbackFailures),
			fmt.Sprint(total.Draws),
			"",
			total.Duration.Round(time.Microsecond).String(),
		)
	}
	tbl.Render()
}

// Formats writes the supported formats of a capability profile, grouped by
// buffer type.
//
// Parameters:
//   - w: the destination
//   - caps: the capability profile
func Formats(w io.Writer, caps renderer.Capabilities) {
	tbl := newTable(w, "Buffer", "Format", "Bytes", "Caps")
	for _, t := range []renderer.BufferType{renderer.BufferTypeRenderTarget, renderer.BufferTypeDepthStencil} {
		for f := renderer.FormatUnknown + 1; f <= renderer.FormatD32Float; f++ {
			c := caps.FormatCaps(t, f)
			if c == 0 {
				continue
			}
			tbl.AddRow(t.String(), f.String(), fmt.Sprint(f.BytesPerPixel()), capsString(c))
		}
	}
	tbl.Render()
	fmt.Fprintf(w, "max anisotropy %d, VPL texture %dx%d\n", caps.MaxAnisotropy, caps.VPLWidth, caps.VPLHeight)
}

// Settings writes the loaded shadow settings table and the resources each
// entry needs. The default entry is marked with an asterisk.
//
// Parameters:
//   - w: the destination
//   - entries: the settings table
func Settings(w io.Writer, entries []lighting.SettingsEntry) {
	tbl := newTable(w, "Entry", "Method", "Adjust", "Precision", "Samples", "Resources")
	for _, e := range entries {
		name := e.Name
		if e.Default {
			name += " *"
		}
		res := make([]string, 0, len(e.Descriptions))
		for _, d := range e.Descriptions {
			res = append(res, fmt.Sprintf("%s %s", d.Role, d.Target.Format))
		}
		tbl.AddRow(name,
			e.Flags.String(),
			fmt.Sprint(e.Settings.ResolutionAdjust),
			fmt.Sprint(e.Settings.Precision),
			fmt.Sprintf("%d/%d", e.Settings.PrimarySamples, e.Settings.SecondarySamples),
			strings.Join(res, ", "),
		)
	}
	tbl.Render()
}

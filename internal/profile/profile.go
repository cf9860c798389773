// Package profile holds the static table of transcode profiles and the
// GPU-mode fallback logic that picks an effective encoder at dispatch time.
package profile

import "strings"

// Profile is a named (video_codec, preset, quality) triple.
type Profile struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	VideoCodec  string `json:"video_codec"`
	Preset      string `json:"preset"`
	Quality     string `json:"quality"`
	GPU         bool   `json:"gpu"`
}

// DefaultID is used whenever a configured profile id is unknown.
const DefaultID = "nvenc_max"

// table is the static profile set from the specification. Order matters for
// List, which preserves it for the /api/profiles response.
var table = []Profile{
	{ID: "nvenc_max", Label: "NVENC H.265 — Max quality", VideoCodec: "hevc_nvenc", Preset: "p7", Quality: "19", GPU: true},
	{ID: "nvenc_high", Label: "NVENC H.265 — High quality", VideoCodec: "hevc_nvenc", Preset: "p6", Quality: "23", GPU: true},
	{ID: "nvenc_balanced", Label: "NVENC H.265 — Balanced", VideoCodec: "hevc_nvenc", Preset: "p4", Quality: "26", GPU: true},
	{ID: "h264_nvenc", Label: "NVENC H.264 — High quality", VideoCodec: "h264_nvenc", Preset: "p6", Quality: "20", GPU: true},
	{ID: "cpu_slow", Label: "CPU H.265 — Max quality", VideoCodec: "libx265", Preset: "slow", Quality: "22", GPU: false},
	{ID: "cpu_medium", Label: "CPU H.265 — Balanced", VideoCodec: "libx265", Preset: "medium", Quality: "24", GPU: false},
	{ID: "cpu_fast", Label: "CPU H.265 — Fast", VideoCodec: "libx265", Preset: "fast", Quality: "26", GPU: false},
	{ID: "h264_cpu", Label: "CPU H.264 — Balanced", VideoCodec: "libx264", Preset: "medium", Quality: "22", GPU: false},
}

var byID = func() map[string]Profile {
	m := make(map[string]Profile, len(table))
	for _, p := range table {
		m[p.ID] = p
	}
	return m
}()

// Get returns the profile for id, falling back to DefaultID when id is
// unrecognised.
func Get(id string) Profile {
	if p, ok := byID[id]; ok {
		return p
	}
	return byID[DefaultID]
}

// List returns the full profile table in display order.
func List() []Profile {
	out := make([]Profile, len(table))
	copy(out, table)
	return out
}

// IsHEVCFamily returns true if codec targets the HEVC/H.265 family.
func IsHEVCFamily(codec string) bool {
	return strings.Contains(codec, "hevc") || strings.Contains(codec, "265")
}

// IsH264Family returns true if codec targets the H.264 family.
func IsH264Family(codec string) bool {
	return strings.Contains(codec, "h264") || strings.Contains(codec, "264")
}

// EffectiveCodec applies the gpu_mode downgrade: an *_nvenc codec is
// downgraded to its CPU equivalent unless gpuMode is "nvidia". The profile
// id persisted in settings is never rewritten — only the codec used to
// build the transcoder command line changes.
func EffectiveCodec(videoCodec, gpuMode string) string {
	if !strings.Contains(videoCodec, "nvenc") {
		return videoCodec
	}
	if strings.ToLower(gpuMode) == "nvidia" {
		return videoCodec
	}
	if IsHEVCFamily(videoCodec) {
		return "libx265"
	}
	return "libx264"
}

// IsNVENC reports whether codec is one of the NVENC hardware encoders.
func IsNVENC(codec string) bool {
	return strings.Contains(codec, "nvenc")
}

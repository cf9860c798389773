// Package library scans configured library directories for video files
// eligible for transcoding and tracks per-library scan progress.
package library

import (
	"path/filepath"
	"strings"

	"github.com/shrync/shrync/internal/ffmpeg"
)

// VideoExtensions is the set of file extensions the scanner and watcher
// recognise as transcodable media, matched case-insensitively.
var VideoExtensions = map[string]bool{
	".mkv": true, ".mp4": true, ".avi": true, ".mov": true,
	".m4v": true, ".ts": true, ".wmv": true, ".flv": true,
}

// HasVideoExtension reports whether path's extension is one of
// VideoExtensions.
func HasVideoExtension(path string) bool {
	return VideoExtensions[strings.ToLower(filepath.Ext(path))]
}

// IsTempArtifact reports whether name is a temp file left behind by an
// in-flight or interrupted transcode.
func IsTempArtifact(name string) bool {
	return strings.Contains(name, ffmpeg.TempMarker)
}

// UnderCacheDir reports whether path lies inside cacheDir. An empty
// cacheDir means no cache directory is configured, so nothing qualifies.
func UnderCacheDir(path, cacheDir string) bool {
	if cacheDir == "" {
		return false
	}
	return strings.Contains(path, cacheDir)
}

// MatchesProfileFamily reports whether codec already belongs to the
// codec family that videoCodec targets (hevc vs h264), per the profile's
// un-downgraded video_codec — the scanner and watcher check against the
// configured target family, not the gpu_mode-adjusted effective codec.
func MatchesProfileFamily(codec, videoCodec string) bool {
	codec = strings.ToLower(codec)
	if strings.Contains(videoCodec, "hevc") {
		return codec == "hevc" || codec == "h265"
	}
	if strings.Contains(videoCodec, "h264") {
		return codec == "h264"
	}
	return false
}

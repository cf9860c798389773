package ffmpeg

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TempMarker is the substring the scanner and watcher use to recognise and
// skip temp artifacts left behind by an interrupted transcode.
const TempMarker = "_shrync_"

// BuildTempPath computes the temp output path for a job: it lives in
// cacheDir if one is configured, or alongside the source file otherwise.
// jobID's first 8 characters disambiguate concurrent jobs touching
// same-named files in different libraries.
func BuildTempPath(sourcePath, cacheDir, jobID string) string {
	base := filepath.Base(sourcePath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	short := jobID
	if len(short) > 8 {
		short = short[:8]
	}
	name := fmt.Sprintf("%s%s%s.mkv", stem, TempMarker, short)

	dir := cacheDir
	if dir == "" {
		dir = filepath.Dir(sourcePath)
	}
	return filepath.Join(dir, name)
}

// FinalizeTranscode atomically replaces sourcePath with tempPath: it
// deletes the source and renames temp into its place. On rename failure
// the temp file is removed if still present and the Dutch user-facing
// error string is returned verbatim for persistence into history.
func FinalizeTranscode(sourcePath, tempPath string) (newSize int64, err error) {
	info, statErr := os.Stat(tempPath)
	if statErr != nil {
		return 0, fmt.Errorf("temp file missing: %w", statErr)
	}

	if err := os.Remove(sourcePath); err != nil {
		return 0, fmt.Errorf("remove original: %w", err)
	}

	if err := os.Rename(tempPath, sourcePath); err != nil {
		os.Remove(tempPath)
		return 0, fmt.Errorf("Bestand verplaatsen mislukt: %s", err)
	}

	return info.Size(), nil
}

// Package ffmpeg wraps the external ffprobe-compatible inspector and
// ffmpeg-compatible transcoder processes. All paths are passed as separate
// argv entries; nothing here ever composes a shell string.
package ffmpeg

import (
	"context"
	"encoding/json"
	"os/exec"
	"strconv"
	"time"
)

const probeTimeout = 30 * time.Second

// UnknownCodec is returned by CodecOf whenever the codec cannot be
// determined — a timed-out probe, a spawn failure, or malformed output.
// Callers interpret it as "needs conversion".
const UnknownCodec = "unknown"

// ffprobeOutput is the subset of ffprobe's JSON report this package reads.
type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

type ffprobeStream struct {
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
}

// Prober wraps ffprobe invocations.
type Prober struct {
	ffprobePath string
}

// NewProber returns a Prober that invokes the binary at ffprobePath.
func NewProber(ffprobePath string) *Prober {
	return &Prober{ffprobePath: ffprobePath}
}

func (p *Prober) probe(ctx context.Context, path string) (*ffprobeOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}

	var result ffprobeOutput
	if err := json.Unmarshal(out, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CodecOf returns the first video stream's codec name, or UnknownCodec on
// any failure including a 30s timeout.
func (p *Prober) CodecOf(ctx context.Context, path string) string {
	out, err := p.probe(ctx, path)
	if err != nil {
		return UnknownCodec
	}
	for _, stream := range out.Streams {
		if stream.CodecType == "video" {
			if stream.CodecName == "" {
				return UnknownCodec
			}
			return stream.CodecName
		}
	}
	return UnknownCodec
}

// DurationOf returns the container duration in seconds, or 0 on any failure.
func (p *Prober) DurationOf(ctx context.Context, path string) float64 {
	out, err := p.probe(ctx, path)
	if err != nil || out.Format.Duration == "" {
		return 0
	}
	d, err := strconv.ParseFloat(out.Format.Duration, 64)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

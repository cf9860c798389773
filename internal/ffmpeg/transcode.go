package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/shrync/shrync/internal/logger"
)

// Params describes one transcode invocation.
type Params struct {
	FFmpegPath     string
	InputPath      string
	OutputPath     string
	EffectiveCodec string // already gpu_mode-downgraded
	Preset         string
	Quality        string
	AudioCodec     string // "copy" or an explicit codec token
	DurationSec    float64

	// OnProgress is invoked from the stdout reader goroutine on every
	// fps= frame. Implementations must not block.
	OnProgress func(progress int, fps float64, eta string)
}

// Result is what a completed (successful or failed) transcode produced.
type Result struct {
	ExitCode   int
	StderrTail string // last ~1KiB of stderr, trimmed
}

// Session is a running transcoder process. Kill terminates the child; Wait
// blocks until it exits and the stdout/stderr readers have drained.
type Session struct {
	cmd    *exec.Cmd
	done   chan struct{}
	result Result
	waitMu sync.Mutex
}

// Kill terminates the child process. Safe to call at most once; the worker
// observes the resulting non-zero exit via Wait.
func (s *Session) Kill() error {
	if s.cmd.Process == nil {
		return nil
	}
	return s.cmd.Process.Kill()
}

// Wait blocks until the process exits and both readers have finished.
func (s *Session) Wait() Result {
	<-s.done
	return s.result
}

// tailBuffer keeps only the last n bytes ever written to it.
type tailBuffer struct {
	mu  sync.Mutex
	n   int
	buf bytes.Buffer
}

func newTailBuffer(n int) *tailBuffer {
	return &tailBuffer{n: n}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if extra := t.buf.Len() - t.n; extra > 0 {
		t.buf.Next(extra)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}

// stderrTailBytes keeps at least the last 1 KiB of stderr, per the
// transcoder's drain contract.
const stderrTailBytes = 1024

// Transcoder spawns the external ffmpeg-compatible transcoder binary.
type Transcoder struct{}

// NewTranscoder returns a Transcoder. The binary path is supplied per call
// via Params so it can change with GPU_MODE without reconstructing state.
func NewTranscoder() *Transcoder {
	return &Transcoder{}
}

// Start builds the argument vector for p (NVENC vs CPU distinguished by
// EffectiveCodec), spawns the child and returns a Session immediately —
// it does not wait for completion.
func (t *Transcoder) Start(ctx context.Context, p Params) (*Session, error) {
	args := buildArgs(p)
	cmd := exec.CommandContext(ctx, p.FFmpegPath, args...)

	logger.Debug("ffmpeg command", "args", strings.Join(args, " "))

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderrTail := newTailBuffer(stderrTailBytes)
	cmd.Stderr = stderrTail

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	session := &Session{cmd: cmd, done: make(chan struct{})}

	var stdoutDone sync.WaitGroup
	stdoutDone.Add(1)
	go func() {
		defer stdoutDone.Done()
		drainProgress(stdout, p)
	}()

	go func() {
		stdoutDone.Wait()
		waitErr := cmd.Wait()
		exitCode := 0
		if waitErr != nil {
			if exitErr, ok := waitErr.(*exec.ExitError); ok {
				exitCode = exitErr.ExitCode()
			} else {
				exitCode = -1
			}
		}
		session.result = Result{
			ExitCode:   exitCode,
			StderrTail: strings.TrimSpace(stderrTail.String()),
		}
		close(session.done)
	}()

	return session, nil
}

// buildArgs assembles the ffmpeg argument vector. NVENC codecs use
// constqp rate control; CPU codecs use crf. Both share the input/output
// framing, subtitle copy and progress-on-stdout plumbing.
func buildArgs(p Params) []string {
	audioCodec := p.AudioCodec
	if audioCodec == "" {
		audioCodec = "copy"
	}

	args := []string{
		"-y",
		"-i", p.InputPath,
		"-c:v", p.EffectiveCodec,
		"-preset", p.Preset,
	}

	if IsNVENC(p.EffectiveCodec) {
		args = append(args, "-rc", "constqp", "-qp", p.Quality, "-b:v", "0")
	} else {
		args = append(args, "-crf", p.Quality)
	}

	args = append(args,
		"-c:a", audioCodec,
		"-c:s", "copy",
		"-progress", "pipe:1",
		"-nostats",
		p.OutputPath,
	)
	return args
}

// IsNVENC reports whether codec is one of the NVENC hardware encoders.
// Mirrors profile.IsNVENC without importing internal/profile, since this
// package only ever sees the already-resolved codec token.
func IsNVENC(codec string) bool {
	return strings.Contains(codec, "nvenc")
}

// drainProgress reads key=value progress frames from stdout and invokes
// p.OnProgress on every fps= frame, computing progress/eta per the
// transcoder's progress protocol.
func drainProgress(stdout interface{ Read([]byte) (int, error) }, p Params) {
	scanner := bufio.NewScanner(stdout)
	var currentSec float64
	var fps float64

	for scanner.Scan() {
		line := scanner.Text()
		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}
		key, value := line[:idx], line[idx+1:]

		switch key {
		case "out_time_us":
			if value != "N/A" {
				if us, err := strconv.ParseInt(value, 10, 64); err == nil {
					currentSec = float64(us) / 1_000_000
				}
			}
		case "fps":
			if value == "N/A" {
				continue
			}
			parsed, err := strconv.ParseFloat(value, 64)
			if err != nil {
				continue
			}
			fps = parsed
			if p.OnProgress != nil {
				p.OnProgress(computeProgress(currentSec, p.DurationSec), fps, computeETA(currentSec, fps, p.DurationSec))
			}
		}
	}
}

// computeProgress implements progress = min(floor(current/duration*100), 99).
func computeProgress(currentSec, durationSec float64) int {
	if durationSec <= 0 {
		return 0
	}
	pct := math.Floor(currentSec / durationSec * 100)
	if pct > 99 {
		pct = 99
	}
	if pct < 0 {
		pct = 0
	}
	return int(pct)
}

// computeETA implements remaining_sec = floor((duration-current)/fps*25).
// The ×25 factor reflects an upstream heuristic and is preserved verbatim
// for behavioural parity rather than corrected to a real frame rate.
func computeETA(currentSec, fps, durationSec float64) string {
	if durationSec <= 0 || fps <= 0 {
		return ""
	}
	remaining := math.Floor((durationSec - currentSec) / fps * 25)
	if remaining < 0 {
		remaining = 0
	}
	m := int64(remaining) / 60
	s := int64(remaining) % 60
	return fmt.Sprintf("%dm%ds", m, s)
}

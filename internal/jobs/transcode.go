package jobs

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shrync/shrync/internal/ffmpeg"
	"github.com/shrync/shrync/internal/logger"
	"github.com/shrync/shrync/internal/profile"
	"github.com/shrync/shrync/internal/store"
)

// Config is the set of runtime knobs the transcode step needs that live
// outside the job row itself.
type Config struct {
	FFmpegPath  string
	FFprobePath string
	CacheDir    string
	GPUMode     string
}

// Transcode runs the single-job state machine for jobID: claim, spawn,
// stream progress, finalise or roll back. slot is the worker's stable
// slot name, used as the Active Job Slots key.
func Transcode(ctx context.Context, st store.Store, prober *ffmpeg.Prober, transcoder *ffmpeg.Transcoder,
	slots *Slots, slot, jobID string, cfg Config) {

	job, err := st.GetQueueJob(jobID)
	if err != nil {
		logger.Warn("transcode: job vanished before claim", "job_id", jobID, "error", err)
		return
	}

	if _, statErr := os.Stat(job.FilePath); statErr != nil {
		recordError(st, job, 0, msgFileNotFound)
		return
	}

	tempPath := ffmpeg.BuildTempPath(job.FilePath, cfg.CacheDir, jobID)

	profileID, _, _ := st.GetSetting("conversion_profile")
	if profileID == "" {
		profileID = profile.DefaultID
	}
	p := profile.Get(profileID)
	effectiveCodec := profile.EffectiveCodec(p.VideoCodec, cfg.GPUMode)

	audioCodec, _, _ := st.GetSetting("audio_codec")
	if audioCodec == "" {
		audioCodec = "copy"
	}

	duration := prober.DurationOf(ctx, job.FilePath)

	originalSize := job.FileSize
	if info, err := os.Stat(job.FilePath); err == nil {
		originalSize = info.Size()
	}
	startedAt := time.Now()
	if err := st.MarkProcessing(jobID, startedAt, originalSize); err != nil {
		logger.Warn("transcode: mark processing failed", "job_id", jobID, "error", err)
		return
	}

	session, err := transcoder.Start(ctx, ffmpeg.Params{
		FFmpegPath:     cfg.FFmpegPath,
		InputPath:      job.FilePath,
		OutputPath:     tempPath,
		EffectiveCodec: effectiveCodec,
		Preset:         p.Preset,
		Quality:        p.Quality,
		AudioCodec:     audioCodec,
		DurationSec:    duration,
		OnProgress: func(progress int, fps float64, eta string) {
			if err := st.UpdateProgress(jobID, progress, fps, eta); err != nil {
				logger.Warn("transcode: progress update failed", "job_id", jobID, "error", err)
			}
		},
	})
	if err != nil {
		logger.Error("transcode: spawn failed", "job_id", jobID, "error", err)
		os.Remove(tempPath)
		recordError(st, job, originalSize, err.Error())
		return
	}

	slots.Set(slot, jobID, session)
	result := session.Wait()
	slots.Clear(slot)

	elapsed := int64(time.Since(startedAt).Seconds())

	if _, statErr := os.Stat(tempPath); result.ExitCode == 0 && statErr == nil {
		newSize, finalizeErr := ffmpeg.FinalizeTranscode(job.FilePath, tempPath)
		if finalizeErr != nil {
			recordErrorWithDuration(st, job, originalSize, elapsed, finalizeErr.Error())
			return
		}
		recordSuccess(st, job, originalSize, newSize, elapsed)
		return
	}

	os.Remove(tempPath)
	errMsg := result.StderrTail
	if errMsg == "" {
		errMsg = fmt.Sprintf("ffmpeg returncode: %d", result.ExitCode)
	}
	recordErrorWithDuration(st, job, originalSize, elapsed, errMsg)
}

func recordError(st store.Store, job *store.QueueJob, originalSize int64, msg string) {
	recordErrorWithDuration(st, job, originalSize, 0, msg)
}

func recordErrorWithDuration(st store.Store, job *store.QueueJob, originalSize int64, elapsed int64, msg string) {
	entry := &store.HistoryEntry{
		ID:              uuid.NewString(),
		LibraryID:       job.LibraryID,
		FilePath:        job.FilePath,
		OriginalSize:    originalSize,
		NewSize:         0,
		DurationSeconds: elapsed,
		Status:          store.HistoryError,
		ErrorMsg:        &msg,
		FinishedAt:      time.Now(),
	}
	if err := st.AppendHistory(entry); err != nil {
		logger.Error("transcode: append history failed", "job_id", job.ID, "error", err)
	}
	if err := st.DeleteQueueJob(job.ID); err != nil {
		logger.Error("transcode: delete queue job failed", "job_id", job.ID, "error", err)
	}
	logger.Error("transcode failed", "job_id", job.ID, "path", job.FilePath, "error", msg)
}

func recordSuccess(st store.Store, job *store.QueueJob, originalSize, newSize int64, elapsed int64) {
	entry := &store.HistoryEntry{
		ID:              uuid.NewString(),
		LibraryID:       job.LibraryID,
		FilePath:        job.FilePath,
		OriginalSize:    originalSize,
		NewSize:         newSize,
		DurationSeconds: elapsed,
		Status:          store.HistorySuccess,
		FinishedAt:      time.Now(),
	}
	if err := st.AppendHistory(entry); err != nil {
		logger.Error("transcode: append history failed", "job_id", job.ID, "error", err)
	}
	if err := st.DeleteQueueJob(job.ID); err != nil {
		logger.Error("transcode: delete queue job failed", "job_id", job.ID, "error", err)
	}
	logger.Info("transcode succeeded", "job_id", job.ID, "path", job.FilePath,
		"original_size", originalSize, "new_size", newSize, "elapsed_s", elapsed)
}

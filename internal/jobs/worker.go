package jobs

import (
	"context"
	"time"

	"github.com/shrync/shrync/internal/logger"
)

const (
	idleSleep    = 3 * time.Second
	pausedSleep  = 1 * time.Second
	failureSleep = 5 * time.Second
)

// runWorker implements the per-worker loop: snapshot active ids, claim
// the oldest pending row not in that snapshot, hand it to Transcode, repeat.
func runWorker(ctx context.Context, p *Pool, slot string) {
	logger.Info("worker ready", "slot", slot)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if p.Paused() {
			if sleepOrDone(ctx, pausedSleep) {
				return
			}
			continue
		}

		jobID, err := nextJobID(p)
		if err != nil {
			logger.Error("worker error", "slot", slot, "error", err)
			if sleepOrDone(ctx, failureSleep) {
				return
			}
			continue
		}
		if jobID == "" {
			if sleepOrDone(ctx, idleSleep) {
				return
			}
			continue
		}

		Transcode(ctx, p.store, p.prober, p.transcoder, p.slots, slot, jobID, p.cfg())
	}
}

// nextJobID selects the oldest pending row not currently claimed by
// another worker's Active Job Slot.
func nextJobID(p *Pool) (string, error) {
	excludeIDs := p.slots.ActiveJobIDs()
	job, err := p.store.OldestPendingExcluding(excludeIDs)
	if err != nil {
		return "", err
	}
	if job == nil {
		return "", nil
	}
	return job.ID, nil
}

// sleepOrDone sleeps for d, returning true if ctx was cancelled first.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return true
	case <-timer.C:
		return false
	}
}

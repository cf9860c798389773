package jobs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/shrync/shrync/internal/ffmpeg"
	"github.com/shrync/shrync/internal/logger"
	"github.com/shrync/shrync/internal/store"
)

// MinWorkers and MaxWorkers bound the max_workers setting.
const (
	MinWorkers = 1
	MaxWorkers = 3
)

// ClampWorkerCount clamps n to [MinWorkers, MaxWorkers].
func ClampWorkerCount(n int) int {
	if n < MinWorkers {
		return MinWorkers
	}
	if n > MaxWorkers {
		return MaxWorkers
	}
	return n
}

// Pool owns a set of worker goroutines and can be resized or paused at
// runtime. Resizing stops the existing set and starts a fresh one; an
// in-flight transcode is not interrupted by this since Transcode runs to
// completion independent of the worker loop that dispatched it — the
// Active Job Slots entry is cleared only when it actually finishes.
type Pool struct {
	store      store.Store
	prober     *ffmpeg.Prober
	transcoder *ffmpeg.Transcoder
	slots      *Slots
	cfg        func() Config

	paused atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool returns a Pool ready to be resized (started) with Resize.
// cfg is called fresh for every dispatched job so settings changes
// (profile, audio codec, gpu mode) take effect without a restart.
func NewPool(st store.Store, prober *ffmpeg.Prober, transcoder *ffmpeg.Transcoder, cfg func() Config) *Pool {
	return &Pool{
		store:      st,
		prober:     prober,
		transcoder: transcoder,
		slots:      NewSlots(),
		cfg:        cfg,
	}
}

// Pause prevents workers from dispatching new jobs without cancelling any
// in-flight transcode.
func (p *Pool) Pause() { p.paused.Store(true) }

// Resume allows workers to resume dispatching.
func (p *Pool) Resume() { p.paused.Store(false) }

// Paused reports whether the pool is currently paused.
func (p *Pool) Paused() bool { return p.paused.Load() }

// Slots exposes the Active Job Slots map, e.g. for the API's kill-on-delete
// path.
func (p *Pool) Slots() *Slots { return p.slots }

// Resize stops any existing workers at their next idle point and starts n
// (clamped to [1,3]) fresh ones.
func (p *Pool) Resize(n int) {
	n = ClampWorkerCount(n)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
		p.wg.Wait()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	for i := 1; i <= n; i++ {
		slotName := fmt.Sprintf("Worker-%d", i)
		p.wg.Add(1)
		go func(slot string) {
			defer p.wg.Done()
			runWorker(ctx, p, slot)
		}(slotName)
	}
	logger.Info("worker pool resized", "workers", n)
}

// Stop halts all workers and waits for them to reach their idle point.
func (p *Pool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.wg.Wait()
		p.cancel = nil
	}
}

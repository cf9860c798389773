package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shrync/shrync/internal/store"
)

type fakeStore struct {
	store.Store
	mu   sync.Mutex
	libs []*store.Library
}

func (f *fakeStore) ListEnabledLibraries() ([]*store.Library, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*store.Library, len(f.libs))
	copy(out, f.libs)
	return out, nil
}

func (f *fakeStore) setLibraries(libs []*store.Library) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.libs = libs
}

func TestSyncAddsOneCronEntryPerEnabledLibrary(t *testing.T) {
	st := &fakeStore{libs: []*store.Library{
		{ID: "lib-1", ScanInterval: 3600},
		{ID: "lib-2", ScanInterval: 7200},
	}}
	s := New(st, func(context.Context, string) error { return nil })

	if err := s.sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(s.entries) != 2 {
		t.Fatalf("expected 2 cron entries, got %d", len(s.entries))
	}
}

func TestSyncRemovesEntriesForDeletedOrDisabledLibraries(t *testing.T) {
	st := &fakeStore{libs: []*store.Library{{ID: "lib-1", ScanInterval: 60}}}
	s := New(st, func(context.Context, string) error { return nil })
	if err := s.sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(s.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(s.entries))
	}

	st.setLibraries(nil)
	if err := s.sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(s.entries) != 0 {
		t.Errorf("expected entries cleared once library disappears, got %d", len(s.entries))
	}
}

func TestSyncDefaultsNonPositiveIntervalToOneHour(t *testing.T) {
	st := &fakeStore{libs: []*store.Library{{ID: "lib-1", ScanInterval: 0}}}
	s := New(st, func(context.Context, string) error { return nil })
	if err := s.sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(s.entries) != 1 {
		t.Fatalf("expected the zero-interval library to still get an entry, got %d", len(s.entries))
	}
}

func TestSyncLeavesUnchangedEntryInPlace(t *testing.T) {
	st := &fakeStore{libs: []*store.Library{{ID: "lib-1", ScanInterval: 3600}}}
	s := New(st, func(context.Context, string) error { return nil })
	if err := s.sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	before := s.entries["lib-1"]

	// A resync with the same interval must not remove and re-add the
	// entry: robfig/cron's @every schedule fires at "time of AddFunc plus
	// the interval", so repeatedly re-adding an unchanged entry on every
	// resync tick would perpetually push its fire time out and it would
	// never elapse for any interval longer than the resync cadence.
	if err := s.sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	after := s.entries["lib-1"]
	if before != after {
		t.Errorf("expected unchanged entry preserved, got new entry id %v (was %v)", after, before)
	}
}

func TestSyncReAddsEntryWhenIntervalChanges(t *testing.T) {
	st := &fakeStore{libs: []*store.Library{{ID: "lib-1", ScanInterval: 3600}}}
	s := New(st, func(context.Context, string) error { return nil })
	if err := s.sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	before := s.entries["lib-1"]

	st.setLibraries([]*store.Library{{ID: "lib-1", ScanInterval: 60}})
	if err := s.sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	after := s.entries["lib-1"]
	if before == after {
		t.Error("expected a changed interval to produce a new cron entry")
	}
	if s.intervals["lib-1"] != 60 {
		t.Errorf("expected tracked interval updated to 60, got %d", s.intervals["lib-1"])
	}
}

func TestStartTriggersScanThroughCron(t *testing.T) {
	st := &fakeStore{libs: []*store.Library{{ID: "lib-1", ScanInterval: 1}}}

	called := make(chan string, 4)
	s := New(st, func(_ context.Context, libraryID string) error {
		called <- libraryID
		return nil
	})

	s.Start(context.Background())
	defer s.Stop()

	select {
	case id := <-called:
		if id != "lib-1" {
			t.Errorf("expected scan for lib-1, got %q", id)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for scheduled scan to fire")
	}
}

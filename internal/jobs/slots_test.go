package jobs

import "testing"

type fakeKiller struct{ killed bool }

func (f *fakeKiller) Kill() error {
	f.killed = true
	return nil
}

func TestSlotsActiveJobIDsReflectsSetAndClear(t *testing.T) {
	s := NewSlots()
	s.Set("Worker-1", "job-a", &fakeKiller{})
	s.Set("Worker-2", "job-b", &fakeKiller{})

	ids := s.ActiveJobIDs()
	if len(ids) != 2 {
		t.Fatalf("expected 2 active ids, got %d", len(ids))
	}

	s.Clear("Worker-1")
	ids = s.ActiveJobIDs()
	if len(ids) != 1 || ids[0] != "job-b" {
		t.Errorf("expected only job-b active after clear, got %v", ids)
	}
}

func TestSlotsKillTerminatesRegisteredHandle(t *testing.T) {
	s := NewSlots()
	k := &fakeKiller{}
	s.Set("Worker-1", "job-a", k)

	if !s.Kill("job-a") {
		t.Fatal("expected Kill to find the registered handle")
	}
	if !k.killed {
		t.Error("expected handle.Kill to have been invoked")
	}
}

func TestSlotsKillReturnsFalseForUnknownJob(t *testing.T) {
	s := NewSlots()
	if s.Kill("does-not-exist") {
		t.Error("expected Kill to return false for an unregistered job id")
	}
}

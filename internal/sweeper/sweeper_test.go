package sweeper

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeRegistry struct {
	mu      sync.Mutex
	idle    []string
	active  int
	gotAges []time.Duration
}

func (f *fakeRegistry) EvictIdle(maxAge time.Duration) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotAges = append(f.gotAges, maxAge)
	out := f.idle
	f.idle = nil
	return out
}

func (f *fakeRegistry) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

type fakeRecorder struct {
	active  int
	evicted int
}

func (r *fakeRecorder) SetActiveSessions(n int) { r.active = n }
func (r *fakeRecorder) RecordEvictions(n int)   { r.evicted += n }

func TestSweep(t *testing.T) {
	reg := &fakeRegistry{idle: []string{"a", "b"}, active: 3}
	rec := &fakeRecorder{}
	s, err := New(reg, rec, "", time.Hour, zap.NewNop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	got := s.Sweep()
	if len(got) != 2 {
		t.Fatalf("expected 2 evictions, got %v", got)
	}
	if rec.evicted != 2 || rec.active != 3 {
		t.Errorf("recorder = %+v", rec)
	}
	if reg.gotAges[0] != time.Hour {
		t.Errorf("max age = %v", reg.gotAges[0])
	}
	if s.LastRun().IsZero() {
		t.Error("last run not recorded")
	}

	if got := s.Sweep(); len(got) != 0 {
		t.Errorf("second sweep evicted %v", got)
	}
	if rec.evicted != 2 {
		t.Errorf("evicted counter = %d", rec.evicted)
	}
}

func TestSweep_NilRecorder(t *testing.T) {
	s, err := New(&fakeRegistry{idle: []string{"x"}}, nil, "", 0, zap.NewNop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := s.Sweep(); len(got) != 1 {
		t.Errorf("got %v", got)
	}
}

func TestNew_BadSchedule(t *testing.T) {
	if _, err := New(&fakeRegistry{}, nil, "every so often", time.Hour, zap.NewNop()); err == nil {
		t.Fatal("expected schedule error")
	}
}

func TestStartStop(t *testing.T) {
	s, err := New(&fakeRegistry{}, nil, "@every 1h", time.Hour, zap.NewNop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("second start: %v", err)
	}
	s.Stop()
	s.Stop()
}

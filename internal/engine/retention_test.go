package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeExpirer struct {
	mu      sync.Mutex
	cutoffs []time.Time
	count   int
	err     error
	swept   chan time.Time
}

func (f *fakeExpirer) ExpireShortTerm(ctx context.Context, cutoff time.Time) (int, error) {
	f.mu.Lock()
	f.cutoffs = append(f.cutoffs, cutoff)
	f.mu.Unlock()

	if f.swept != nil {
		select {
		case f.swept <- cutoff:
		default:
		}
	}
	return f.count, f.err
}

func TestSweepUsesTTLCutoff(t *testing.T) {
	store := &fakeExpirer{count: 4}
	m := NewRetentionManager(store, 48*time.Hour, time.Hour)
	fixed := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	count, err := m.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if count != 4 {
		t.Errorf("Sweep() count = %d, want 4", count)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.cutoffs) != 1 {
		t.Fatalf("ExpireShortTerm called %d times, want 1", len(store.cutoffs))
	}
	want := fixed.Add(-48 * time.Hour)
	if !store.cutoffs[0].Equal(want) {
		t.Errorf("cutoff = %v, want %v", store.cutoffs[0], want)
	}
}

func TestSweepStoreFailure(t *testing.T) {
	store := &fakeExpirer{err: errors.New("db down")}
	m := NewRetentionManager(store, time.Hour, time.Hour)

	_, err := m.Sweep(context.Background())
	if err == nil || !strings.Contains(err.Error(), "failed to expire") {
		t.Errorf("Sweep() error = %v, want expire failure", err)
	}
}

func TestRetentionManagerSweepsOnInterval(t *testing.T) {
	store := &fakeExpirer{swept: make(chan time.Time, 8)}
	m := NewRetentionManager(store, time.Hour, 5*time.Millisecond)

	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	select {
	case <-store.swept:
	case <-time.After(2 * time.Second):
		t.Fatal("no sweep within interval")
	}
}

func TestRetentionManagerStartTwice(t *testing.T) {
	m := NewRetentionManager(&fakeExpirer{}, time.Hour, time.Hour)
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	if err := m.Start(); err == nil {
		t.Error("second Start() succeeded, want error")
	}
}

func TestRetentionManagerStopIdempotent(t *testing.T) {
	m := NewRetentionManager(&fakeExpirer{}, time.Hour, time.Hour)
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	m.Stop()
	m.Stop()
}

func TestNewRetentionManagerDefaults(t *testing.T) {
	m := NewRetentionManager(&fakeExpirer{}, 0, 0)
	if m.ttl != 7*24*time.Hour {
		t.Errorf("ttl = %v, want 168h", m.ttl)
	}
	if m.interval != time.Hour {
		t.Errorf("interval = %v, want 1h", m.interval)
	}
}

package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

const sweepTimeout = 30 * time.Second

// ShortTermExpirer deletes short-term memories older than a cutoff.
type ShortTermExpirer interface {
	ExpireShortTerm(ctx context.Context, cutoff time.Time) (int, error)
}

// RetentionManager periodically expires short-term memories that were never
// consolidated, typically from conversations that went quiet before reaching
// a consolidation trigger. Long-term and personality memories are never
// expired.
type RetentionManager struct {
	store    ShortTermExpirer
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewRetentionManager creates a retention manager. Non-positive ttl or
// interval take defaults (7 days ttl, 1h interval).
func NewRetentionManager(store ShortTermExpirer, ttl, interval time.Duration) *RetentionManager {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &RetentionManager{
		store:    store,
		ttl:      ttl,
		interval: interval,
		now:      time.Now,
	}
}

// Start launches the background sweep loop.
func (m *RetentionManager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("retention manager already started")
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.running = true

	go m.loop()
	log.Printf("retention: started (ttl=%v, interval=%v)", m.ttl, m.interval)
	return nil
}

// Stop halts the sweep loop and waits for an in-flight sweep to finish.
func (m *RetentionManager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stop)
	done := m.done
	m.mu.Unlock()

	<-done
	log.Println("retention: stopped")
}

func (m *RetentionManager) loop() {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			if _, err := m.Sweep(context.Background()); err != nil {
				log.Printf("retention: sweep failed: %v", err)
			}
		}
	}
}

// Sweep expires short-term memories older than the TTL once and returns the
// number deleted. Also exposed through the ops API for manual runs.
func (m *RetentionManager) Sweep(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	cutoff := m.now().UTC().Add(-m.ttl)
	count, err := m.store.ExpireShortTerm(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to expire short-term memories: %w", err)
	}
	if count > 0 {
		log.Printf("retention: expired %d short-term memories older than %v", count, m.ttl)
	}
	return count, nil
}

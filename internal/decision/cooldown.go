package decision

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/chorus-chat/chorus/internal/storage"
)

// CooldownTracker gates responses per (entity, context) by the entity's
// configured cooldown. Reads are advisory; the authoritative gate is
// TryMarkResponded, a single conditional upsert that at most one of any set
// of concurrent evaluations wins.
type CooldownTracker struct {
	store storage.CooldownStore
	now   func() time.Time
}

// NewCooldownTracker creates a tracker over the given store.
func NewCooldownTracker(store storage.CooldownStore) *CooldownTracker {
	return &CooldownTracker{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// IsOnCooldown reports whether a prior response in this context occurred
// within cooldown of now. A store error counts as on-cooldown: when the
// cooldown state is unknown, staying silent is the safe failure mode.
func (t *CooldownTracker) IsOnCooldown(ctx context.Context, entityID string, cooldown time.Duration, contextKey string) bool {
	if cooldown <= 0 {
		return false
	}

	rec, err := t.store.GetCooldown(ctx, entityID, contextKey)
	if errors.Is(err, storage.ErrNotFound) {
		return false
	}
	if err != nil {
		log.Printf("decision: cooldown check failed for %s %s, treating as on cooldown: %v", entityID, contextKey, err)
		return true
	}

	return rec.Elapsed(t.now()) < cooldown
}

// TryMarkResponded atomically claims the response slot for (entity, context).
// It returns true when this caller won the slot, false when another response
// inside the cooldown window already holds it. cooldown <= 0 records the
// response unconditionally.
func (t *CooldownTracker) TryMarkResponded(ctx context.Context, entityID, contextKey string, cooldown time.Duration) (bool, error) {
	accepted, err := t.store.TryMarkResponded(ctx, entityID, contextKey, cooldown, t.now())
	if err != nil {
		return false, fmt.Errorf("failed to mark responded: %w", err)
	}
	return accepted, nil
}

// MarkResponded records a response without a cooldown condition. Used by
// callers that send replies for entities with no cooldown configured, so the
// record stays fresh if a cooldown is configured later.
func (t *CooldownTracker) MarkResponded(ctx context.Context, entityID, contextKey string) error {
	_, err := t.TryMarkResponded(ctx, entityID, contextKey, 0)
	return err
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/chorus-chat/chorus/internal/storage"
	"github.com/chorus-chat/chorus/pkg/types"
)

// GetCooldown returns the last recorded response time for the
// entity/context pair, or ErrNotFound when none exists.
func (s *Store) GetCooldown(ctx context.Context, entityID, contextKey string) (*types.CooldownRecord, error) {
	if entityID == "" || contextKey == "" {
		return nil, storage.ErrInvalidInput
	}

	var record types.CooldownRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT entity_id, context_key, last_response_at
		FROM ai_cooldowns
		WHERE entity_id = ? AND context_key = ?
	`, entityID, contextKey).Scan(&record.EntityID, &record.ContextKey, &record.LastResponseAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: cooldown %s/%s", storage.ErrNotFound, entityID, contextKey)
		}
		return nil, fmt.Errorf("sqlite: failed to load cooldown: %w", err)
	}
	return &record, nil
}

// TryMarkResponded records a response timestamp if and only if the
// cooldown window has elapsed. The conditional upsert makes the
// check-and-set a single statement, so concurrent callers race on the
// database rather than in process: exactly one of them updates the row
// inside a live window.
func (s *Store) TryMarkResponded(ctx context.Context, entityID, contextKey string, cooldown time.Duration, now time.Time) (bool, error) {
	if entityID == "" || contextKey == "" {
		return false, storage.ErrInvalidInput
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	threshold := now.Add(-cooldown)

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO ai_cooldowns (entity_id, context_key, last_response_at)
		VALUES (?, ?, ?)
		ON CONFLICT (entity_id, context_key) DO UPDATE
		SET last_response_at = excluded.last_response_at
		WHERE ai_cooldowns.last_response_at <= ?
	`, entityID, contextKey, now, threshold)
	if err != nil {
		return false, fmt.Errorf("sqlite: failed to mark response: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: failed to read upsert result: %w", err)
	}
	return affected > 0, nil
}

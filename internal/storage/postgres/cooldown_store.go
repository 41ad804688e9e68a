package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/chorus-chat/chorus/internal/storage"
	"github.com/chorus-chat/chorus/pkg/types"
)

// GetCooldown returns the last-response record for (entity, context key).
func (s *Store) GetCooldown(ctx context.Context, entityID, contextKey string) (*types.CooldownRecord, error) {
	if entityID == "" || contextKey == "" {
		return nil, fmt.Errorf("%w: entity ID and context key are required", storage.ErrInvalidInput)
	}

	var record types.CooldownRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT entity_id, context_key, last_response_at
		FROM ai_cooldowns
		WHERE entity_id = $1 AND context_key = $2
	`, entityID, contextKey).Scan(&record.EntityID, &record.ContextKey, &record.LastResponseAt)

	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to get cooldown: %w", err)
	}
	return &record, nil
}

// TryMarkResponded records a response as one conditional upsert: the update
// arm only fires when the previous response falls outside the cooldown
// window, so two concurrent accept paths cannot both win. RowsAffected
// distinguishes the winner (1) from the loser (0).
func (s *Store) TryMarkResponded(ctx context.Context, entityID, contextKey string, cooldown time.Duration, now time.Time) (bool, error) {
	if entityID == "" || contextKey == "" {
		return false, fmt.Errorf("%w: entity ID and context key are required", storage.ErrInvalidInput)
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	threshold := now.Add(-cooldown)

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO ai_cooldowns (entity_id, context_key, last_response_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (entity_id, context_key) DO UPDATE
		SET last_response_at = EXCLUDED.last_response_at
		WHERE ai_cooldowns.last_response_at <= $4
	`, entityID, contextKey, now, threshold)
	if err != nil {
		return false, fmt.Errorf("postgres: failed to mark responded: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("postgres: failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

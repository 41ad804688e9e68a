package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chorus-chat/chorus/internal/storage"
	"github.com/chorus-chat/chorus/pkg/types"
)

const entitySelectColumns = `
	id, username, display_name, created_at, updated_at,
	system_prompt, model_name, temperature, max_tokens,
	room_response_strategy, conversation_response_strategy,
	response_probability, cooldown_seconds, status, is_active, current_room_id
`

// CreateEntity persists a new AI entity. Usernames are unique; a
// duplicate returns ErrDuplicate.
func (s *Store) CreateEntity(ctx context.Context, entity *types.AIEntity) error {
	if entity == nil {
		return storage.ErrInvalidInput
	}
	if err := entity.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	if entity.ID == "" {
		entity.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = now
	}
	entity.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ai_entities (
			id, username, display_name, created_at, updated_at,
			system_prompt, model_name, temperature, max_tokens,
			room_response_strategy, conversation_response_strategy,
			response_probability, cooldown_seconds, status, is_active, current_room_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entity.ID,
		entity.Username,
		nullString(entity.DisplayName),
		entity.CreatedAt,
		entity.UpdatedAt,
		entity.SystemPrompt,
		entity.ModelName,
		entity.Temperature,
		entity.MaxTokens,
		string(entity.RoomResponseStrategy),
		string(entity.ConversationResponseStrategy),
		entity.ResponseProbability,
		nullInt(entity.CooldownSeconds),
		string(entity.Status),
		entity.IsActive,
		nullString(entity.CurrentRoomID),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: username %q", storage.ErrDuplicate, entity.Username)
		}
		return fmt.Errorf("sqlite: failed to create entity: %w", err)
	}
	return nil
}

// GetEntity loads an entity by ID.
func (s *Store) GetEntity(ctx context.Context, id string) (*types.AIEntity, error) {
	if id == "" {
		return nil, storage.ErrInvalidInput
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT `+entitySelectColumns+`
		FROM ai_entities
		WHERE id = ?
	`, id)
	return scanEntityRow(row, id)
}

// GetEntityByUsername loads an entity by its unique username.
func (s *Store) GetEntityByUsername(ctx context.Context, username string) (*types.AIEntity, error) {
	if username == "" {
		return nil, storage.ErrInvalidInput
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT `+entitySelectColumns+`
		FROM ai_entities
		WHERE username = ?
	`, username)
	return scanEntityRow(row, username)
}

// ListEntities returns all entities ordered by username.
func (s *Store) ListEntities(ctx context.Context) ([]*types.AIEntity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entitySelectColumns+`
		FROM ai_entities
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list entities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entities []*types.AIEntity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: row iteration failed: %w", err)
	}
	return entities, nil
}

// UpdateEntity overwrites a stored entity's configuration.
func (s *Store) UpdateEntity(ctx context.Context, entity *types.AIEntity) error {
	if entity == nil || entity.ID == "" {
		return storage.ErrInvalidInput
	}
	if err := entity.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	entity.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE ai_entities SET
			username = ?,
			display_name = ?,
			updated_at = ?,
			system_prompt = ?,
			model_name = ?,
			temperature = ?,
			max_tokens = ?,
			room_response_strategy = ?,
			conversation_response_strategy = ?,
			response_probability = ?,
			cooldown_seconds = ?,
			status = ?,
			is_active = ?,
			current_room_id = ?
		WHERE id = ?
	`,
		entity.Username,
		nullString(entity.DisplayName),
		entity.UpdatedAt,
		entity.SystemPrompt,
		entity.ModelName,
		entity.Temperature,
		entity.MaxTokens,
		string(entity.RoomResponseStrategy),
		string(entity.ConversationResponseStrategy),
		entity.ResponseProbability,
		nullInt(entity.CooldownSeconds),
		string(entity.Status),
		entity.IsActive,
		nullString(entity.CurrentRoomID),
		entity.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: username %q", storage.ErrDuplicate, entity.Username)
		}
		return fmt.Errorf("sqlite: failed to update entity: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to read update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: entity %s", storage.ErrNotFound, entity.ID)
	}
	return nil
}

// DeleteEntity removes an entity along with its cooldown records.
// Memories are removed by the ON DELETE CASCADE on ai_memories.
func (s *Store) DeleteEntity(ctx context.Context, id string) error {
	if id == "" {
		return storage.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM ai_cooldowns WHERE entity_id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: failed to delete cooldowns: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM ai_entities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete entity: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to read delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: entity %s", storage.ErrNotFound, id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: failed to commit entity delete: %w", err)
	}
	return nil
}

func scanEntityRow(row *sql.Row, key string) (*types.AIEntity, error) {
	entity, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: entity %s", storage.ErrNotFound, key)
		}
		return nil, err
	}
	return entity, nil
}

func scanEntity(row rowScanner) (*types.AIEntity, error) {
	var entity types.AIEntity
	var displayName, currentRoomID sql.NullString
	var cooldownSeconds sql.NullInt64
	var roomStrategy, convStrategy, status string

	err := row.Scan(
		&entity.ID,
		&entity.Username,
		&displayName,
		&entity.CreatedAt,
		&entity.UpdatedAt,
		&entity.SystemPrompt,
		&entity.ModelName,
		&entity.Temperature,
		&entity.MaxTokens,
		&roomStrategy,
		&convStrategy,
		&entity.ResponseProbability,
		&cooldownSeconds,
		&status,
		&entity.IsActive,
		&currentRoomID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("sqlite: failed to scan entity row: %w", err)
	}

	entity.DisplayName = displayName.String
	entity.CurrentRoomID = currentRoomID.String
	entity.RoomResponseStrategy = types.RoomStrategy(roomStrategy)
	entity.ConversationResponseStrategy = types.ConversationStrategy(convStrategy)
	entity.Status = types.EntityStatus(status)
	if cooldownSeconds.Valid {
		seconds := int(cooldownSeconds.Int64)
		entity.CooldownSeconds = &seconds
	}
	return &entity, nil
}

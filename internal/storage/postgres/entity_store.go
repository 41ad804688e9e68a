package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chorus-chat/chorus/internal/storage"
	"github.com/chorus-chat/chorus/pkg/types"
)

const entitySelectColumns = `
	id, username, display_name, system_prompt, model_name, temperature,
	max_tokens, room_response_strategy, conversation_response_strategy,
	response_probability, cooldown_seconds, status, is_active,
	current_room_id, created_at, updated_at
`

// CreateEntity persists a new AI entity.
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
			id, username, display_name, system_prompt, model_name,
			temperature, max_tokens, room_response_strategy,
			conversation_response_strategy, response_probability,
			cooldown_seconds, status, is_active, current_room_id,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		entity.ID,
		entity.Username,
		nullString(entity.DisplayName),
		nullString(entity.SystemPrompt),
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
		entity.CreatedAt,
		entity.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: username %q", storage.ErrDuplicate, entity.Username)
		}
		return fmt.Errorf("postgres: failed to create entity: %w", err)
	}
	return nil
}

// GetEntity retrieves an entity by ID.
func (s *Store) GetEntity(ctx context.Context, id string) (*types.AIEntity, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entitySelectColumns+` FROM ai_entities WHERE id = $1`, id)
	return scanEntityRow(row)
}

// GetEntityByUsername retrieves an entity by its unique username.
func (s *Store) GetEntityByUsername(ctx context.Context, username string) (*types.AIEntity, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", storage.ErrInvalidInput)
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entitySelectColumns+` FROM ai_entities WHERE username = $1`, username)
	return scanEntityRow(row)
}

// ListEntities returns all entities ordered by username.
func (s *Store) ListEntities(ctx context.Context) ([]*types.AIEntity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entitySelectColumns+` FROM ai_entities ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list entities: %w", err)
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
		return nil, fmt.Errorf("postgres: row iteration failed: %w", err)
	}
	return entities, nil
}

// UpdateEntity overwrites an entity's configuration.
func (s *Store) UpdateEntity(ctx context.Context, entity *types.AIEntity) error {
	if entity == nil || entity.ID == "" {
		return fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}
	if err := entity.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	entity.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE ai_entities SET
			username = $2, display_name = $3, system_prompt = $4,
			model_name = $5, temperature = $6, max_tokens = $7,
			room_response_strategy = $8, conversation_response_strategy = $9,
			response_probability = $10, cooldown_seconds = $11, status = $12,
			is_active = $13, current_room_id = $14, updated_at = $15
		WHERE id = $1
	`,
		entity.ID,
		entity.Username,
		nullString(entity.DisplayName),
		nullString(entity.SystemPrompt),
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
		entity.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: username %q", storage.ErrDuplicate, entity.Username)
		}
		return fmt.Errorf("postgres: failed to update entity: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: failed to get rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteEntity removes the entity; memories cascade via the foreign key and
// cooldowns are cleared explicitly.
func (s *Store) DeleteEntity(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM ai_cooldowns WHERE entity_id = $1`, id); err != nil {
		return fmt.Errorf("postgres: failed to delete entity cooldowns: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`DELETE FROM ai_entities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete entity: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: failed to get rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: failed to commit entity delete: %w", err)
	}
	return nil
}

func scanEntityRow(row *sql.Row) (*types.AIEntity, error) {
	entity, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to get entity: %w", err)
	}
	return entity, nil
}

func scanEntity(row rowScanner) (*types.AIEntity, error) {
	var entity types.AIEntity
	var displayName, systemPrompt, currentRoomID sql.NullString
	var cooldownSeconds sql.NullInt64
	var roomStrategy, convStrategy, status string

	err := row.Scan(
		&entity.ID,
		&entity.Username,
		&displayName,
		&systemPrompt,
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
		&entity.CreatedAt,
		&entity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	entity.DisplayName = displayName.String
	entity.SystemPrompt = systemPrompt.String
	entity.CurrentRoomID = currentRoomID.String
	entity.RoomResponseStrategy = types.RoomStrategy(roomStrategy)
	entity.ConversationResponseStrategy = types.ConversationStrategy(convStrategy)
	entity.Status = types.EntityStatus(status)
	if cooldownSeconds.Valid {
		v := int(cooldownSeconds.Int64)
		entity.CooldownSeconds = &v
	}

	return &entity, nil
}

// nullInt maps a nil pointer to NULL for optional integer columns.
func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/chorus-chat/chorus/internal/storage"
	"github.com/chorus-chat/chorus/pkg/types"
)

// memorySelectColumns is the canonical SELECT column list for ai_memories.
// It must match the scan order in scanMemoryRow.
const memorySelectColumns = `
	id, entity_id, user_ids, conversation_id, summary, content, keywords,
	memory_type, importance_score, metadata, access_count, last_accessed_at,
	created_at
`

// Create persists a new memory, assigning an ID when empty. The embedding,
// when present and pgvector is available, is written in the same transaction.
func (s *Store) Create(ctx context.Context, memory *types.Memory) error {
	if memory == nil {
		return storage.ErrInvalidInput
	}
	if memory.EntityID == "" {
		return fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}
	if !types.IsValidMemoryType(memory.Type()) {
		return fmt.Errorf("%w: memory metadata must carry a valid type", storage.ErrInvalidInput)
	}

	if memory.ID == "" {
		memory.ID = uuid.NewString()
	}
	if memory.CreatedAt.IsZero() {
		memory.CreatedAt = time.Now().UTC()
	}

	userIDsJSON, err := json.Marshal(memory.UserIDs)
	if err != nil {
		return fmt.Errorf("postgres: failed to marshal user_ids: %w", err)
	}
	contentJSON, err := json.Marshal(memory.Content)
	if err != nil {
		return fmt.Errorf("postgres: failed to marshal content: %w", err)
	}
	keywordsJSON, err := json.Marshal(memory.Keywords)
	if err != nil {
		return fmt.Errorf("postgres: failed to marshal keywords: %w", err)
	}
	metadataJSON, err := json.Marshal(memory.Metadata)
	if err != nil {
		return fmt.Errorf("postgres: failed to marshal metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const insertSQL = `
		INSERT INTO ai_memories (
			id, entity_id, user_ids, conversation_id, summary, content,
			keywords, memory_type, fact_hash, importance_score, metadata,
			access_count, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 0, $12)
	`
	_, err = tx.ExecContext(ctx, insertSQL,
		memory.ID,
		memory.EntityID,
		string(userIDsJSON),
		nullString(memory.ConversationID),
		memory.Summary,
		string(contentJSON),
		string(keywordsJSON),
		string(memory.Type()),
		nullString(memory.FactHash()),
		memory.ImportanceScore,
		string(metadataJSON),
		memory.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: fact hash already stored for entity", storage.ErrDuplicate)
		}
		return fmt.Errorf("postgres: failed to insert memory: %w", err)
	}

	if len(memory.Embedding) > 0 && s.pgvectorAvailable {
		vec := pgvector.NewVector(memory.Embedding)
		if _, err := tx.ExecContext(ctx,
			`UPDATE ai_memories SET embedding = $1 WHERE id = $2`,
			vec, memory.ID,
		); err != nil {
			return fmt.Errorf("postgres: failed to store embedding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: failed to commit memory: %w", err)
	}
	return nil
}

// Get retrieves a memory by ID.
func (s *Store) Get(ctx context.Context, id string) (*types.Memory, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+memorySelectColumns+` FROM ai_memories WHERE id = $1`, id)

	memory, err := scanMemoryRow(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to get memory: %w", err)
	}
	return memory, nil
}

// ListByEntity returns an entity's memories ordered by importance then
// recency.
func (s *Store) ListByEntity(ctx context.Context, entityID string, limit int) ([]*types.Memory, error) {
	if entityID == "" {
		return nil, fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}
	if limit < 1 {
		limit = storage.DefaultSearchLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+memorySelectColumns+`
		FROM ai_memories
		WHERE entity_id = $1
		ORDER BY importance_score DESC, created_at DESC
		LIMIT $2
	`, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list memories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanMemoryRows(rows)
}

// ShortTermChunks returns short_term memories for (entity, conversation)
// ordered by chunk index.
func (s *Store) ShortTermChunks(ctx context.Context, entityID, conversationID string) ([]*types.Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+memorySelectColumns+`
		FROM ai_memories
		WHERE entity_id = $1 AND conversation_id = $2 AND memory_type = $3
	`, entityID, conversationID, string(types.MemoryTypeShortTerm))
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to load short-term chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	chunks, err := scanMemoryRows(rows)
	if err != nil {
		return nil, err
	}

	// Chunk index lives in metadata, so order here rather than in SQL.
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].ChunkIndex() < chunks[j].ChunkIndex()
	})
	return chunks, nil
}

// DeleteShortTerm removes consumed short_term chunks for the entity and
// conversation.
func (s *Store) DeleteShortTerm(ctx context.Context, entityID, conversationID string) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM ai_memories
		WHERE entity_id = $1 AND conversation_id = $2 AND memory_type = $3
	`, entityID, conversationID, string(types.MemoryTypeShortTerm))
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to delete short-term chunks: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// ExpireShortTerm removes stale short_term memories across all entities.
func (s *Store) ExpireShortTerm(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM ai_memories
		WHERE memory_type = $1 AND created_at < $2
	`, string(types.MemoryTypeShortTerm), cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to expire short-term memories: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// FindLongTermByFactHash looks up a deduplicated fact for the entity.
func (s *Store) FindLongTermByFactHash(ctx context.Context, entityID, factHash string) (*types.Memory, error) {
	if entityID == "" || factHash == "" {
		return nil, fmt.Errorf("%w: entity ID and fact hash are required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+memorySelectColumns+`
		FROM ai_memories
		WHERE entity_id = $1 AND fact_hash = $2 AND memory_type = $3
	`, entityID, factHash, string(types.MemoryTypeLongTerm))

	memory, err := scanMemoryRow(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to find fact by hash: %w", err)
	}
	return memory, nil
}

// IncrementAccessCount atomically bumps the access counter.
func (s *Store) IncrementAccessCount(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE ai_memories
		SET access_count = access_count + 1, last_accessed_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to increment access count: %w", err)
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

// DeleteByEntity removes all memories owned by an entity.
func (s *Store) DeleteByEntity(ctx context.Context, entityID string) (int, error) {
	if entityID == "" {
		return 0, fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM ai_memories WHERE entity_id = $1`, entityID)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to delete entity memories: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for the shared scan helper.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanMemoryRow maps one ai_memories row onto a types.Memory. The column
// order must match memorySelectColumns.
func scanMemoryRow(row rowScanner) (*types.Memory, error) {
	var memory types.Memory
	var userIDsJSON, contentJSON, keywordsJSON, metadataJSON sql.NullString
	var conversationID sql.NullString
	var memoryType string
	var lastAccessedAt sql.NullTime

	err := row.Scan(
		&memory.ID,
		&memory.EntityID,
		&userIDsJSON,
		&conversationID,
		&memory.Summary,
		&contentJSON,
		&keywordsJSON,
		&memoryType,
		&memory.ImportanceScore,
		&metadataJSON,
		&memory.AccessCount,
		&lastAccessedAt,
		&memory.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if userIDsJSON.Valid && userIDsJSON.String != "" {
		if err := json.Unmarshal([]byte(userIDsJSON.String), &memory.UserIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal user_ids: %w", err)
		}
	}
	if contentJSON.Valid && contentJSON.String != "" {
		if err := json.Unmarshal([]byte(contentJSON.String), &memory.Content); err != nil {
			return nil, fmt.Errorf("failed to unmarshal content: %w", err)
		}
	}
	if keywordsJSON.Valid && keywordsJSON.String != "" {
		if err := json.Unmarshal([]byte(keywordsJSON.String), &memory.Keywords); err != nil {
			return nil, fmt.Errorf("failed to unmarshal keywords: %w", err)
		}
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &memory.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	// Keep the discriminator visible even when metadata was stored empty.
	if memory.Metadata == nil {
		memory.Metadata = map[string]interface{}{types.MetaType: memoryType}
	}

	if conversationID.Valid {
		memory.ConversationID = conversationID.String
	}
	if lastAccessedAt.Valid {
		memory.LastAccessedAt = &lastAccessedAt.Time
	}

	return &memory, nil
}

func scanMemoryRows(rows *sql.Rows) ([]*types.Memory, error) {
	var memories []*types.Memory
	for rows.Next() {
		memory, err := scanMemoryRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan memory row: %w", err)
		}
		memories = append(memories, memory)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: row iteration failed: %w", err)
	}
	return memories, nil
}

// nullString maps "" to NULL for optional text columns.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

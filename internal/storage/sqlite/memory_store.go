package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chorus-chat/chorus/internal/storage"
	"github.com/chorus-chat/chorus/pkg/types"
)

// memorySelectColumns is the canonical SELECT column list for ai_memories.
// It must match the scan order in scanMemoryRow.
const memorySelectColumns = `
	id, entity_id, user_ids, conversation_id, summary, content, keywords,
	memory_type, importance_score, metadata, embedding, access_count,
	last_accessed_at, created_at
`

// Create persists a new memory, assigning an ID when empty.
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
		return fmt.Errorf("sqlite: failed to marshal user_ids: %w", err)
	}
	contentJSON, err := json.Marshal(memory.Content)
	if err != nil {
		return fmt.Errorf("sqlite: failed to marshal content: %w", err)
	}
	keywordsJSON, err := json.Marshal(memory.Keywords)
	if err != nil {
		return fmt.Errorf("sqlite: failed to marshal keywords: %w", err)
	}
	metadataJSON, err := json.Marshal(memory.Metadata)
	if err != nil {
		return fmt.Errorf("sqlite: failed to marshal metadata: %w", err)
	}

	var embeddingJSON sql.NullString
	if len(memory.Embedding) > 0 {
		raw, err := json.Marshal(memory.Embedding)
		if err != nil {
			return fmt.Errorf("sqlite: failed to marshal embedding: %w", err)
		}
		embeddingJSON = sql.NullString{String: string(raw), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ai_memories (
			id, entity_id, user_ids, conversation_id, summary, content,
			keywords, memory_type, fact_hash, importance_score, metadata,
			embedding, access_count, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
	`,
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
		embeddingJSON,
		memory.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: fact hash already stored for entity", storage.ErrDuplicate)
		}
		return fmt.Errorf("sqlite: failed to insert memory: %w", err)
	}
	return nil
}

// Get retrieves a memory by ID.
func (s *Store) Get(ctx context.Context, id string) (*types.Memory, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+memorySelectColumns+` FROM ai_memories WHERE id = ?`, id)

	memory, err := scanMemoryRow(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get memory: %w", err)
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
		WHERE entity_id = ?
		ORDER BY importance_score DESC, created_at DESC
		LIMIT ?
	`, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list memories: %w", err)
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
		WHERE entity_id = ? AND conversation_id = ? AND memory_type = ?
	`, entityID, conversationID, string(types.MemoryTypeShortTerm))
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to load short-term chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	chunks, err := scanMemoryRows(rows)
	if err != nil {
		return nil, err
	}

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
		WHERE entity_id = ? AND conversation_id = ? AND memory_type = ?
	`, entityID, conversationID, string(types.MemoryTypeShortTerm))
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to delete short-term chunks: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// ExpireShortTerm removes stale short_term memories across all entities.
func (s *Store) ExpireShortTerm(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM ai_memories
		WHERE memory_type = ? AND created_at < ?
	`, string(types.MemoryTypeShortTerm), cutoff)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to expire short-term memories: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to get rows affected: %w", err)
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
		WHERE entity_id = ? AND fact_hash = ? AND memory_type = ?
	`, entityID, factHash, string(types.MemoryTypeLongTerm))

	memory, err := scanMemoryRow(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to find fact by hash: %w", err)
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
		SET access_count = access_count + 1, last_accessed_at = ?
		WHERE id = ?
	`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to increment access count: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to get rows affected: %w", err)
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
		`DELETE FROM ai_memories WHERE entity_id = ?`, entityID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to delete entity memories: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to get rows affected: %w", err)
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
	var embeddingJSON, conversationID sql.NullString
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
		&embeddingJSON,
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
	if embeddingJSON.Valid && embeddingJSON.String != "" {
		if err := json.Unmarshal([]byte(embeddingJSON.String), &memory.Embedding); err != nil {
			return nil, fmt.Errorf("failed to unmarshal embedding: %w", err)
		}
	}

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
			return nil, fmt.Errorf("sqlite: failed to scan memory row: %w", err)
		}
		memories = append(memories, memory)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: row iteration failed: %w", err)
	}
	return memories, nil
}

// nullString maps "" to NULL for optional text columns.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullInt maps a nil pointer to NULL for optional integer columns.
func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

// isUniqueViolation reports whether err is a SQLite uniqueness violation.
// modernc.org/sqlite surfaces these as "constraint failed: UNIQUE ...".
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}

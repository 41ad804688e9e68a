package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/chorus-chat/chorus/internal/storage"
	"github.com/chorus-chat/chorus/pkg/types"
)

// keywordScanLimit caps the candidate rows fetched for keyword ranking.
const keywordScanLimit = 500

// VectorSearch performs cosine-distance search over the entity's embedded
// memories using pgvector. Results come back nearest first; ties break by
// importance then recency. Rows without an embedding never match.
func (s *Store) VectorSearch(ctx context.Context, entityID string, embedding []float32, opts storage.SearchOptions) ([]*types.Memory, error) {
	if entityID == "" {
		return nil, fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("%w: query embedding is required", storage.ErrInvalidInput)
	}
	if !s.pgvectorAvailable {
		return nil, fmt.Errorf("postgres: vector search requires the pgvector extension")
	}
	opts.Normalize()

	where, args := buildFilters(entityID, opts)
	where = append(where, "embedding IS NOT NULL")

	args = append(args, pgvector.NewVector(embedding))
	orderParam := len(args)
	args = append(args, opts.Limit)
	limitParam := len(args)

	query := `
		SELECT ` + memorySelectColumns + `
		FROM ai_memories
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY embedding <=> $` + strconv.Itoa(orderParam) + `::vector,
			importance_score DESC, created_at DESC
		LIMIT $` + strconv.Itoa(limitParam)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: vector search failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanMemoryRows(rows)
}

// KeywordSearch fetches the filtered candidate set and ranks it with the
// shared term scorer, so lexical ranking matches the SQLite backend exactly.
func (s *Store) KeywordSearch(ctx context.Context, entityID string, query string, opts storage.SearchOptions) ([]*types.Memory, error) {
	if entityID == "" {
		return nil, fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}
	opts.Normalize()

	where, args := buildFilters(entityID, opts)
	args = append(args, keywordScanLimit)

	querySQL := `
		SELECT ` + memorySelectColumns + `
		FROM ai_memories
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_at DESC
		LIMIT $` + strconv.Itoa(len(args))

	rows, err := s.db.QueryContext(ctx, querySQL, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: keyword search failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates, err := scanMemoryRows(rows)
	if err != nil {
		return nil, err
	}

	return storage.RankByKeywords(candidates, query, opts.Limit), nil
}

// buildFilters translates SearchOptions into WHERE clauses with positional
// parameters starting at $1.
func buildFilters(entityID string, opts storage.SearchOptions) ([]string, []interface{}) {
	where := []string{"entity_id = $1"}
	args := []interface{}{entityID}

	if opts.ConversationID != "" {
		args = append(args, opts.ConversationID)
		where = append(where, fmt.Sprintf("conversation_id = $%d", len(args)))
	}
	if opts.ExcludeConversationID != "" {
		args = append(args, opts.ExcludeConversationID)
		// NULL-safe: global memories (no conversation) stay included.
		where = append(where, fmt.Sprintf("(conversation_id IS NULL OR conversation_id != $%d)", len(args)))
	}
	if opts.UserID != "" {
		userJSON, _ := json.Marshal([]string{opts.UserID})
		args = append(args, string(userJSON))
		where = append(where, fmt.Sprintf("user_ids @> $%d::jsonb", len(args)))
	}
	if opts.MemoryType != "" {
		args = append(args, string(opts.MemoryType))
		where = append(where, fmt.Sprintf("memory_type = $%d", len(args)))
	}

	return where, args
}

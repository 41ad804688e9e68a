package sqlite

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/chorus-chat/chorus/internal/storage"
	"github.com/chorus-chat/chorus/pkg/types"
)

// keywordScanLimit caps the candidate rows fetched for keyword ranking.
const keywordScanLimit = 500

// VectorSearch ranks the entity's embedded memories by cosine similarity.
// Embeddings are loaded into Go memory; there is no vector index here, which
// is acceptable at the per-entity row counts this backend serves.
func (s *Store) VectorSearch(ctx context.Context, entityID string, embedding []float32, opts storage.SearchOptions) ([]*types.Memory, error) {
	if entityID == "" {
		return nil, fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("%w: query embedding is required", storage.ErrInvalidInput)
	}
	opts.Normalize()

	candidates, err := s.fetchCandidates(ctx, entityID, opts, "embedding IS NOT NULL", 0)
	if err != nil {
		return nil, err
	}

	type scored struct {
		memory     *types.Memory
		similarity float64
	}

	ranked := make([]scored, 0, len(candidates))
	for _, m := range candidates {
		if len(m.Embedding) != len(embedding) {
			continue
		}
		ranked = append(ranked, scored{
			memory:     m,
			similarity: cosineSimilarity(embedding, m.Embedding),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].similarity != ranked[j].similarity {
			return ranked[i].similarity > ranked[j].similarity
		}
		if ranked[i].memory.ImportanceScore != ranked[j].memory.ImportanceScore {
			return ranked[i].memory.ImportanceScore > ranked[j].memory.ImportanceScore
		}
		return ranked[i].memory.CreatedAt.After(ranked[j].memory.CreatedAt)
	})

	if len(ranked) > opts.Limit {
		ranked = ranked[:opts.Limit]
	}

	result := make([]*types.Memory, len(ranked))
	for i, r := range ranked {
		result[i] = r.memory
	}
	return result, nil
}

// KeywordSearch fetches the filtered candidate set and ranks it with the
// shared term scorer, matching the PostgreSQL backend's behavior.
func (s *Store) KeywordSearch(ctx context.Context, entityID string, query string, opts storage.SearchOptions) ([]*types.Memory, error) {
	if entityID == "" {
		return nil, fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}
	opts.Normalize()

	candidates, err := s.fetchCandidates(ctx, entityID, opts, "", keywordScanLimit)
	if err != nil {
		return nil, err
	}

	return storage.RankByKeywords(candidates, query, opts.Limit), nil
}

// fetchCandidates runs the shared filter query. extraWhere is appended
// verbatim when non-empty; limit 0 means no LIMIT clause.
func (s *Store) fetchCandidates(ctx context.Context, entityID string, opts storage.SearchOptions, extraWhere string, limit int) ([]*types.Memory, error) {
	where := []string{"entity_id = ?"}
	args := []interface{}{entityID}

	if opts.ConversationID != "" {
		where = append(where, "conversation_id = ?")
		args = append(args, opts.ConversationID)
	}
	if opts.ExcludeConversationID != "" {
		// NULL-safe: global memories (no conversation) stay included.
		where = append(where, "(conversation_id IS NULL OR conversation_id != ?)")
		args = append(args, opts.ExcludeConversationID)
	}
	if opts.UserID != "" {
		where = append(where, "EXISTS (SELECT 1 FROM json_each(ai_memories.user_ids) WHERE json_each.value = ?)")
		args = append(args, opts.UserID)
	}
	if opts.MemoryType != "" {
		where = append(where, "memory_type = ?")
		args = append(args, string(opts.MemoryType))
	}
	if extraWhere != "" {
		where = append(where, extraWhere)
	}

	query := `
		SELECT ` + memorySelectColumns + `
		FROM ai_memories
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: candidate query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanMemoryRows(rows)
}

// cosineSimilarity computes cosine similarity between two equal-length
// vectors. Returns 0 when either vector has zero magnitude.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

package memory

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/chorus-chat/chorus/internal/llm"
	"github.com/chorus-chat/chorus/internal/storage"
	"github.com/chorus-chat/chorus/pkg/types"
)

// PersonalityService stores persona documents as personality memories. Uploads
// are chunked, embedded in one batch, and stored entity-global: no user scope
// and no conversation, so every retrieval sees them.
type PersonalityService struct {
	memories    storage.MemoryStore
	embedder    llm.EmbeddingGenerator
	keywords    llm.KeywordExtractor
	chunker     llm.Chunker
	chunkSize   int
	overlap     int
	maxKeywords int
	now         func() time.Time
}

// NewPersonalityService creates a personality upload service. chunkSize and
// overlap are token estimates passed to the chunker.
func NewPersonalityService(memories storage.MemoryStore, embedder llm.EmbeddingGenerator, keywords llm.KeywordExtractor, chunker llm.Chunker, chunkSize, overlap, maxKeywords int) *PersonalityService {
	if maxKeywords <= 0 {
		maxKeywords = 10
	}
	return &PersonalityService{
		memories:    memories,
		embedder:    embedder,
		keywords:    keywords,
		chunker:     chunker,
		chunkSize:   chunkSize,
		overlap:     overlap,
		maxKeywords: maxKeywords,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// UploadPersonality chunks text and persists each piece as a personality
// memory tagged with category and chunk ordinals. Extra metadata from meta is
// carried through; reserved keys (type, category, chunk ordinals) win over
// caller-supplied values. meta["importance"] sets the importance score.
func (s *PersonalityService) UploadPersonality(ctx context.Context, entityID, text, category string, meta map[string]interface{}) ([]*types.Memory, error) {
	if entityID == "" {
		return nil, fmt.Errorf("entity id is required")
	}
	if category == "" {
		return nil, fmt.Errorf("category is required")
	}

	pieces := s.chunker.Split(text, s.chunkSize, s.overlap)
	if len(pieces) == 0 {
		return nil, fmt.Errorf("personality text is empty")
	}

	embeddings, err := s.embedder.EmbedBatch(ctx, pieces)
	if err != nil {
		return nil, fmt.Errorf("personality embedding failed: %w", err)
	}
	if len(embeddings) != len(pieces) {
		return nil, fmt.Errorf("personality embedding returned %d vectors for %d chunks", len(embeddings), len(pieces))
	}

	importance := 1.0
	if v, ok := meta["importance"].(float64); ok {
		importance = clamp01(v)
	}

	created := make([]*types.Memory, 0, len(pieces))
	for i, piece := range pieces {
		keywords, err := s.keywords.ExtractKeywords(ctx, piece, s.maxKeywords, "en")
		if err != nil {
			log.Printf("memory: keyword extraction failed for personality chunk %d: %v", i, err)
			keywords = nil
		}

		metadata := make(map[string]interface{}, len(meta)+4)
		for k, v := range meta {
			if k == "importance" {
				continue
			}
			metadata[k] = v
		}
		metadata[types.MetaType] = string(types.MemoryTypePersonality)
		metadata[types.MetaCategory] = category
		metadata[types.MetaChunkIndex] = i
		metadata[types.MetaTotalChunks] = len(pieces)

		memory := &types.Memory{
			ID:              uuid.New().String(),
			EntityID:        entityID,
			CreatedAt:       s.now(),
			Summary:         truncateSummary(piece),
			Content:         map[string]interface{}{"text": piece},
			Keywords:        keywords,
			Embedding:       embeddings[i],
			ImportanceScore: importance,
			Metadata:        metadata,
		}

		if err := s.memories.Create(ctx, memory); err != nil {
			return created, fmt.Errorf("failed to store personality chunk %d: %w", i, err)
		}
		created = append(created, memory)
	}

	log.Printf("memory: uploaded personality for entity %s: category %s, %d chunk(s)", entityID, category, len(created))
	return created, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

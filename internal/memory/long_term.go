package memory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/chorus-chat/chorus/internal/llm"
	"github.com/chorus-chat/chorus/internal/storage"
	"github.com/chorus-chat/chorus/pkg/types"
)

// LongTermService consolidates conversation content into durable facts. Facts
// are extracted by the chat model, deduplicated by normalized-content hash,
// embedded, and persisted as long_term memories.
type LongTermService struct {
	memories    storage.MemoryStore
	messages    storage.MessageStore
	chat        llm.ChatGenerator
	embedder    llm.EmbeddingGenerator
	keywords    llm.KeywordExtractor
	chunker     llm.Chunker
	maxKeywords int
	now         func() time.Time
}

// NewLongTermService creates a long-term consolidation service.
func NewLongTermService(memories storage.MemoryStore, messages storage.MessageStore, chat llm.ChatGenerator, embedder llm.EmbeddingGenerator, keywords llm.KeywordExtractor, chunker llm.Chunker, maxKeywords int) *LongTermService {
	if maxKeywords <= 0 {
		maxKeywords = 10
	}
	return &LongTermService{
		memories:    memories,
		messages:    messages,
		chat:        chat,
		embedder:    embedder,
		keywords:    keywords,
		chunker:     chunker,
		maxKeywords: maxKeywords,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CreateLongTermFromChunks extracts facts from the given short-term chunks and
// persists them as long_term memories, then deletes the consumed chunks.
//
// The sequencing matters: extraction and storage complete before any deletion,
// so a provider or store failure leaves the short-term chunks intact and the
// operation safe to retry. Dedup by fact hash makes the retry idempotent.
func (s *LongTermService) CreateLongTermFromChunks(ctx context.Context, entityID string, userIDs []string, conversationID string, stmChunks []*types.Memory) ([]*types.Memory, error) {
	if err := validateIDs(entityID, conversationID); err != nil {
		return nil, err
	}
	if len(stmChunks) == 0 {
		return nil, nil
	}

	var transcript string
	for _, chunk := range stmChunks {
		transcript += chunkTranscript(chunk)
	}
	if transcript == "" {
		return nil, nil
	}

	facts, err := s.extractFacts(ctx, transcript)
	if err != nil {
		return nil, err
	}

	created, err := s.storeFacts(ctx, entityID, userIDs, conversationID, facts)
	if err != nil {
		return created, err
	}

	deleted, err := s.memories.DeleteShortTerm(ctx, entityID, conversationID)
	if err != nil {
		return created, fmt.Errorf("failed to delete consumed short-term chunks: %w", err)
	}
	log.Printf("memory: consolidated %d fact(s) from %d chunk(s) for entity %s, deleted %d short-term", len(created), len(stmChunks), entityID, deleted)
	return created, nil
}

// CreateLongTermArchive consolidates an entire conversation history in one
// pass, independent of incremental chunking. History is split with the
// caller-supplied chunk size and overlap and each piece runs through the same
// extraction path. Nothing is deleted; existing facts dedup naturally.
func (s *LongTermService) CreateLongTermArchive(ctx context.Context, entityID string, userIDs []string, conversationID string, chunkSize, overlap int) ([]*types.Memory, error) {
	if err := validateIDs(entityID, conversationID); err != nil {
		return nil, err
	}

	history, err := s.messages.History(ctx, types.ConversationContext(conversationID))
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation history: %w", err)
	}

	eligible := make([]*types.Message, 0, len(history))
	for _, msg := range history {
		if msg.IsSystem() {
			continue
		}
		eligible = append(eligible, msg)
	}
	if len(eligible) == 0 {
		return nil, nil
	}

	pieces := s.chunker.Split(renderTranscript(eligible), chunkSize, overlap)

	var all []*types.Memory
	for _, piece := range pieces {
		facts, err := s.extractFacts(ctx, piece)
		if err != nil {
			return all, err
		}
		created, err := s.storeFacts(ctx, entityID, userIDs, conversationID, facts)
		all = append(all, created...)
		if err != nil {
			return all, err
		}
	}

	log.Printf("memory: archived conversation %s for entity %s: %d message(s), %d piece(s), %d fact(s)", conversationID, entityID, len(eligible), len(pieces), len(all))
	return all, nil
}

// extractFacts runs one fact-extraction call over the transcript. A provider
// failure propagates; a response the parser cannot make sense of yields zero
// facts without an error, since a confused model is not a retryable condition.
func (s *LongTermService) extractFacts(ctx context.Context, transcript string) ([]llm.FactResponse, error) {
	prompt := llm.FactExtractionPrompt(transcript)
	response, err := s.chat.Generate(ctx, []llm.ChatMessage{{Role: "user", Content: prompt}}, "", 0, 0)
	if err != nil {
		return nil, fmt.Errorf("fact extraction failed: %w", err)
	}

	facts, err := llm.ParseFactResponse(response)
	if err != nil {
		log.Printf("memory: unparseable fact extraction response, storing nothing: %v", err)
		return nil, nil
	}
	return facts, nil
}

// storeFacts deduplicates, embeds, and persists extracted facts. Known facts
// are skipped before any embedding call is spent on them.
func (s *LongTermService) storeFacts(ctx context.Context, entityID string, userIDs []string, conversationID string, facts []llm.FactResponse) ([]*types.Memory, error) {
	if len(facts) == 0 {
		return nil, nil
	}

	seen := make(map[string]bool, len(facts))
	novel := make([]llm.FactResponse, 0, len(facts))
	hashes := make([]string, 0, len(facts))

	for _, fact := range facts {
		hash := NormalizedFactHash(fact.Text)
		if seen[hash] {
			continue
		}
		seen[hash] = true

		_, err := s.memories.FindLongTermByFactHash(ctx, entityID, hash)
		if err == nil {
			continue // already known
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("fact dedup lookup failed: %w", err)
		}

		novel = append(novel, fact)
		hashes = append(hashes, hash)
	}
	if len(novel) == 0 {
		return nil, nil
	}

	texts := make([]string, len(novel))
	for i, fact := range novel {
		texts[i] = fact.Text
	}
	embeddings, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("fact embedding failed: %w", err)
	}
	if len(embeddings) != len(novel) {
		return nil, fmt.Errorf("fact embedding returned %d vectors for %d texts", len(embeddings), len(novel))
	}

	created := make([]*types.Memory, 0, len(novel))
	for i, fact := range novel {
		keywords, err := s.keywords.ExtractKeywords(ctx, fact.Text, s.maxKeywords, "en")
		if err != nil {
			log.Printf("memory: keyword extraction failed for fact: %v", err)
			keywords = nil
		}

		summary := fact.Theme
		if summary == "" {
			summary = truncateSummary(fact.Text)
		}

		content := map[string]interface{}{"text": fact.Text}
		if len(fact.Participants) > 0 {
			content["participants"] = fact.Participants
		}

		memory := &types.Memory{
			ID:              uuid.New().String(),
			EntityID:        entityID,
			CreatedAt:       s.now(),
			UserIDs:         userIDs,
			ConversationID:  conversationID,
			Summary:         summary,
			Content:         map[string]interface{}{"fact": content},
			Keywords:        keywords,
			Embedding:       embeddings[i],
			ImportanceScore: fact.Importance,
			Metadata: map[string]interface{}{
				types.MetaType:     string(types.MemoryTypeLongTerm),
				types.MetaFactHash: hashes[i],
			},
		}

		if err := s.memories.Create(ctx, memory); err != nil {
			return created, fmt.Errorf("failed to store long-term fact: %w", err)
		}
		created = append(created, memory)
	}
	return created, nil
}

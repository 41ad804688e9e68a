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

// ShortTermService turns conversation history into short-term memory chunks.
// Chunks carry the raw messages and extractor keywords but no embedding;
// keyword search covers them until consolidation promotes their content to
// long-term facts.
type ShortTermService struct {
	memories    storage.MemoryStore
	messages    storage.MessageStore
	keywords    llm.KeywordExtractor
	chunkWindow int
	maxKeywords int
	now         func() time.Time
}

// NewShortTermService creates a short-term memory service. chunkWindow is the
// number of non-system messages per chunk; maxKeywords caps extraction.
func NewShortTermService(memories storage.MemoryStore, messages storage.MessageStore, keywords llm.KeywordExtractor, chunkWindow, maxKeywords int) *ShortTermService {
	if chunkWindow <= 0 {
		chunkWindow = 24
	}
	if maxKeywords <= 0 {
		maxKeywords = 10
	}
	return &ShortTermService{
		memories:    memories,
		messages:    messages,
		keywords:    keywords,
		chunkWindow: chunkWindow,
		maxKeywords: maxKeywords,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CreateShortTermChunk persists one short-term memory covering chunkMessages.
// startIdx and endIdx are the message ordinals the chunk spans, recorded in
// metadata so operators can trace a chunk back to its slice of history.
func (s *ShortTermService) CreateShortTermChunk(ctx context.Context, entityID string, userIDs []string, conversationID string, chunkMessages []*types.Message, chunkIndex, startIdx, endIdx int) (*types.Memory, error) {
	if err := validateIDs(entityID, conversationID); err != nil {
		return nil, err
	}
	if len(chunkMessages) == 0 {
		return nil, fmt.Errorf("chunk requires at least one message")
	}

	entries := make([]map[string]interface{}, 0, len(chunkMessages))
	for _, msg := range chunkMessages {
		entries = append(entries, map[string]interface{}{
			"sender": msg.SenderName,
			"text":   msg.Content,
		})
	}

	transcript := renderTranscript(chunkMessages)
	keywords, err := s.keywords.ExtractKeywords(ctx, transcript, s.maxKeywords, "en")
	if err != nil {
		// Keywords improve retrieval but are not worth failing the chunk over.
		log.Printf("memory: keyword extraction failed for chunk %d of conversation %s: %v", chunkIndex, conversationID, err)
		keywords = nil
	}

	memory := &types.Memory{
		ID:             uuid.New().String(),
		EntityID:       entityID,
		CreatedAt:      s.now(),
		UserIDs:        userIDs,
		ConversationID: conversationID,
		Summary:        truncateSummary(transcript),
		Content: map[string]interface{}{
			"messages":      entries,
			"message_count": len(chunkMessages),
		},
		Keywords:        keywords,
		ImportanceScore: 1.0,
		Metadata: map[string]interface{}{
			types.MetaType:         string(types.MemoryTypeShortTerm),
			types.MetaChunkIndex:   chunkIndex,
			types.MetaMessageRange: fmt.Sprintf("%d-%d", startIdx, endIdx),
		},
	}

	if err := s.memories.Create(ctx, memory); err != nil {
		return nil, fmt.Errorf("failed to store short-term chunk: %w", err)
	}
	return memory, nil
}

// ProcessConversation chunks any complete message windows that have not been
// chunked yet. It counts non-system history, derives how many complete chunks
// the conversation should have, and creates only the missing ones. Repeated
// runs over the same history are no-ops.
func (s *ShortTermService) ProcessConversation(ctx context.Context, entityID, conversationID string) (int, error) {
	if err := validateIDs(entityID, conversationID); err != nil {
		return 0, err
	}

	history, err := s.messages.History(ctx, types.ConversationContext(conversationID))
	if err != nil {
		return 0, fmt.Errorf("failed to load conversation history: %w", err)
	}

	eligible := make([]*types.Message, 0, len(history))
	for _, msg := range history {
		if msg.IsSystem() {
			continue
		}
		eligible = append(eligible, msg)
	}

	expected := len(eligible) / s.chunkWindow
	if expected == 0 {
		return 0, nil
	}

	existing, err := s.memories.ShortTermChunks(ctx, entityID, conversationID)
	if err != nil {
		return 0, fmt.Errorf("failed to list existing chunks: %w", err)
	}
	if len(existing) >= expected {
		return 0, nil
	}

	created := 0
	for idx := len(existing); idx < expected; idx++ {
		start := idx * s.chunkWindow
		end := start + s.chunkWindow
		chunk := eligible[start:end]

		if _, err := s.CreateShortTermChunk(ctx, entityID, distinctUserIDs(chunk), conversationID, chunk, idx, start, end-1); err != nil {
			return created, err
		}
		created++
	}

	if created > 0 {
		log.Printf("memory: created %d short-term chunk(s) for entity %s conversation %s", created, entityID, conversationID)
	}
	return created, nil
}

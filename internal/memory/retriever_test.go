package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/chorus-chat/chorus/internal/llm"
	"github.com/chorus-chat/chorus/pkg/types"
)

func seedShortTerm(t *testing.T, store *mockMemoryStore, id, conversationID, summary string) *types.Memory {
	t.Helper()
	m := &types.Memory{
		ID:              id,
		EntityID:        "entity-1",
		CreatedAt:       time.Now().UTC(),
		UserIDs:         []string{"user-1"},
		ConversationID:  conversationID,
		Summary:         summary,
		Content:         map[string]interface{}{"messages": []map[string]interface{}{}},
		ImportanceScore: 1.0,
		Metadata:        map[string]interface{}{types.MetaType: string(types.MemoryTypeShortTerm)},
	}
	if err := store.Create(context.Background(), m); err != nil {
		t.Fatalf("failed to seed short-term %s: %v", id, err)
	}
	return m
}

func seedLongTerm(t *testing.T, store *mockMemoryStore, id, conversationID, summary string, importance float64) *types.Memory {
	t.Helper()
	m := &types.Memory{
		ID:              id,
		EntityID:        "entity-1",
		CreatedAt:       time.Now().UTC(),
		UserIDs:         []string{"user-1"},
		ConversationID:  conversationID,
		Summary:         summary,
		Content:         map[string]interface{}{"fact": map[string]interface{}{"text": summary}},
		Embedding:       []float32{1, 0, 0},
		ImportanceScore: importance,
		Metadata: map[string]interface{}{
			types.MetaType:     string(types.MemoryTypeLongTerm),
			types.MetaFactHash: NormalizedFactHash(id),
		},
	}
	if err := store.Create(context.Background(), m); err != nil {
		t.Fatalf("failed to seed long-term %s: %v", id, err)
	}
	return m
}

func seedPersonality(t *testing.T, store *mockMemoryStore, id, summary string) *types.Memory {
	t.Helper()
	m := &types.Memory{
		ID:              id,
		EntityID:        "entity-1",
		CreatedAt:       time.Now().UTC(),
		Summary:         summary,
		Content:         map[string]interface{}{"text": summary},
		Embedding:       []float32{0, 1, 0},
		ImportanceScore: 1.0,
		Metadata:        map[string]interface{}{types.MetaType: string(types.MemoryTypePersonality)},
	}
	if err := store.Create(context.Background(), m); err != nil {
		t.Fatalf("failed to seed personality %s: %v", id, err)
	}
	return m
}

func TestRetrieveForPromptLayerScoping(t *testing.T) {
	store := newMockMemoryStore()
	r := NewRetriever(store, &fakeEmbedder{}, DefaultRetrieverConfig())

	_, err := r.RetrieveForPrompt(context.Background(), "entity-1", "user-1", "conv-1", "marathon training")
	if err != nil {
		t.Fatalf("RetrieveForPrompt failed: %v", err)
	}

	if len(store.vectorOpts) != 3 {
		t.Fatalf("expected one vector search per layer, got %d", len(store.vectorOpts))
	}

	stm := store.vectorOpts[0]
	if stm.MemoryType != types.MemoryTypeShortTerm || stm.ConversationID != "conv-1" || stm.UserID != "user-1" {
		t.Errorf("short-term scope wrong: %+v", stm)
	}
	if stm.Limit != 5 {
		t.Errorf("expected candidate limit 5, got %d", stm.Limit)
	}

	ltm := store.vectorOpts[1]
	if ltm.MemoryType != types.MemoryTypeLongTerm || ltm.ExcludeConversationID != "conv-1" || ltm.UserID != "user-1" {
		t.Errorf("long-term scope wrong: %+v", ltm)
	}
	if ltm.ConversationID != "" {
		t.Error("long-term search must not be pinned to the active conversation")
	}

	pers := store.vectorOpts[2]
	if pers.MemoryType != types.MemoryTypePersonality || pers.UserID != "" || pers.ConversationID != "" || pers.ExcludeConversationID != "" {
		t.Errorf("personality search must be entity-global: %+v", pers)
	}

	if len(store.keywordOpts) != 3 {
		t.Errorf("expected one keyword search per layer, got %d", len(store.keywordOpts))
	}
}

func TestRetrieveForPromptGroupsByLayer(t *testing.T) {
	store := newMockMemoryStore()
	seedShortTerm(t, store, "stm-1", "conv-1", "marathon chatter just now")
	seedLongTerm(t, store, "ltm-1", "conv-old", "Maria is training for a marathon", 0.8)
	seedPersonality(t, store, "pers-1", "loves talking about marathon history")

	r := NewRetriever(store, &fakeEmbedder{}, DefaultRetrieverConfig())
	result, err := r.RetrieveForPrompt(context.Background(), "entity-1", "user-1", "conv-1", "marathon training")
	if err != nil {
		t.Fatalf("RetrieveForPrompt failed: %v", err)
	}

	if len(result.ShortTerm) != 1 || result.ShortTerm[0].ID != "stm-1" {
		t.Errorf("expected short-term result, got %v", result.ShortTerm)
	}
	if len(result.LongTerm) != 1 || result.LongTerm[0].ID != "ltm-1" {
		t.Errorf("expected long-term result, got %v", result.LongTerm)
	}
	if len(result.Personality) != 1 || result.Personality[0].ID != "pers-1" {
		t.Errorf("expected personality result, got %v", result.Personality)
	}
	if result.Empty() {
		t.Error("result should not be empty")
	}
}

func TestRetrieveForPromptExcludesActiveConversationFacts(t *testing.T) {
	store := newMockMemoryStore()
	seedLongTerm(t, store, "ltm-here", "conv-1", "fact about the marathon from this conversation", 0.9)
	seedLongTerm(t, store, "ltm-old", "conv-old", "older marathon fact", 0.5)

	r := NewRetriever(store, &fakeEmbedder{}, DefaultRetrieverConfig())
	result, err := r.RetrieveForPrompt(context.Background(), "entity-1", "user-1", "conv-1", "marathon")
	if err != nil {
		t.Fatalf("RetrieveForPrompt failed: %v", err)
	}

	if len(result.LongTerm) != 1 || result.LongTerm[0].ID != "ltm-old" {
		t.Errorf("facts from the active conversation must be excluded, got %v", result.LongTerm)
	}
}

func TestRetrieveForPromptHybridFusion(t *testing.T) {
	store := newMockMemoryStore()
	// ltm-vec ranks first on vector but matches no keyword; ltm-both ranks
	// second on vector and first on keyword. Appearing in both lists wins.
	seedLongTerm(t, store, "ltm-vec", "conv-old", "unrelated cooking notes", 0.5)
	seedLongTerm(t, store, "ltm-both", "conv-old", "marathon training schedule", 0.5)
	store.vectorRank = []string{"ltm-vec", "ltm-both"}

	r := NewRetriever(store, &fakeEmbedder{}, DefaultRetrieverConfig())
	result, err := r.RetrieveForPrompt(context.Background(), "entity-1", "user-1", "conv-1", "marathon training plans")
	if err != nil {
		t.Fatalf("RetrieveForPrompt failed: %v", err)
	}

	if len(result.LongTerm) != 2 {
		t.Fatalf("expected both facts, got %d", len(result.LongTerm))
	}
	if result.LongTerm[0].ID != "ltm-both" {
		t.Errorf("hybrid hit should outrank vector-only hit, got %s first", result.LongTerm[0].ID)
	}
}

func TestRetrieveForPromptCapsTotal(t *testing.T) {
	store := newMockMemoryStore()
	for i := 0; i < 3; i++ {
		seedShortTerm(t, store, fmt.Sprintf("stm-%d", i), "conv-1", "marathon talk")
	}
	for i := 0; i < 4; i++ {
		seedLongTerm(t, store, fmt.Sprintf("ltm-%d", i), "conv-old", "marathon fact", 0.5)
	}
	seedPersonality(t, store, "pers-1", "marathon lore")

	cfg := DefaultRetrieverConfig()
	cfg.MaxRetrieved = 3
	r := NewRetriever(store, &fakeEmbedder{}, cfg)

	result, err := r.RetrieveForPrompt(context.Background(), "entity-1", "user-1", "conv-1", "marathon")
	if err != nil {
		t.Fatalf("RetrieveForPrompt failed: %v", err)
	}
	if got := len(result.All()); got != 3 {
		t.Errorf("expected exactly 3 results, got %d", got)
	}
}

func TestRetrieveForPromptGuaranteesShortTerm(t *testing.T) {
	store := newMockMemoryStore()
	seedLongTerm(t, store, "ltm-1", "conv-old", "marathon fact one", 0.9)
	seedLongTerm(t, store, "ltm-2", "conv-old", "marathon fact two", 0.8)
	seedShortTerm(t, store, "stm-1", "conv-1", "marathon talk in progress")

	// A deliberately weak short-term boost would push the chunk out of the
	// top slots; the guarantee must bring it back.
	cfg := DefaultRetrieverConfig()
	cfg.ShortTermBoost = 0.1
	cfg.MaxRetrieved = 2
	cfg.GuaranteedShortTerm = 1
	r := NewRetriever(store, &fakeEmbedder{}, cfg)

	result, err := r.RetrieveForPrompt(context.Background(), "entity-1", "user-1", "conv-1", "marathon")
	if err != nil {
		t.Fatalf("RetrieveForPrompt failed: %v", err)
	}

	if len(result.All()) != 2 {
		t.Fatalf("expected 2 results, got %d", len(result.All()))
	}
	if len(result.ShortTerm) != 1 || result.ShortTerm[0].ID != "stm-1" {
		t.Errorf("guaranteed short-term slot missing: %v", result.ShortTerm)
	}
	if len(result.LongTerm) != 1 || result.LongTerm[0].ID != "ltm-1" {
		t.Errorf("the top-ranked fact should keep its slot, got %v", result.LongTerm)
	}
}

func TestRetrieveForPromptNoShortTermAvailable(t *testing.T) {
	store := newMockMemoryStore()
	seedLongTerm(t, store, "ltm-1", "conv-old", "marathon fact", 0.5)

	r := NewRetriever(store, &fakeEmbedder{}, DefaultRetrieverConfig())
	result, err := r.RetrieveForPrompt(context.Background(), "entity-1", "user-1", "conv-1", "marathon")
	if err != nil {
		t.Fatalf("RetrieveForPrompt failed: %v", err)
	}
	if len(result.ShortTerm) != 0 {
		t.Errorf("no short-term exists, got %v", result.ShortTerm)
	}
	if len(result.LongTerm) != 1 {
		t.Errorf("expected the long-term fact, got %v", result.LongTerm)
	}
}

func TestRetrieveForPromptWithoutConversationSkipsShortTerm(t *testing.T) {
	store := newMockMemoryStore()
	seedShortTerm(t, store, "stm-1", "conv-1", "marathon talk")
	seedLongTerm(t, store, "ltm-1", "conv-old", "marathon fact", 0.5)

	r := NewRetriever(store, &fakeEmbedder{}, DefaultRetrieverConfig())
	result, err := r.RetrieveForPrompt(context.Background(), "entity-1", "user-1", "", "marathon")
	if err != nil {
		t.Fatalf("RetrieveForPrompt failed: %v", err)
	}

	if len(store.vectorOpts) != 2 {
		t.Errorf("expected searches for long-term and personality only, got %d", len(store.vectorOpts))
	}
	if len(result.ShortTerm) != 0 {
		t.Errorf("short-term chunks from other conversations must not leak: %v", result.ShortTerm)
	}
	if len(result.LongTerm) != 1 {
		t.Errorf("expected the long-term fact, got %v", result.LongTerm)
	}
}

func TestRetrieveForPromptEmbedFailure(t *testing.T) {
	store := newMockMemoryStore()
	embedder := &fakeEmbedder{err: fmt.Errorf("%w: embeddings offline", llm.ErrProviderFailure)}
	r := NewRetriever(store, embedder, DefaultRetrieverConfig())

	_, err := r.RetrieveForPrompt(context.Background(), "entity-1", "user-1", "conv-1", "marathon")
	if err == nil {
		t.Fatal("expected embedding failure")
	}
	if !errors.Is(err, llm.ErrProviderFailure) {
		t.Errorf("error should wrap the provider failure, got %v", err)
	}
	if len(store.vectorOpts) != 0 {
		t.Error("no search should run after a failed embedding")
	}
}

func TestRetrieveForPromptEmbedsQueryOnce(t *testing.T) {
	store := newMockMemoryStore()
	seedLongTerm(t, store, "ltm-1", "conv-old", "marathon fact", 0.5)
	embedder := &fakeEmbedder{}
	r := NewRetriever(store, embedder, DefaultRetrieverConfig())

	if _, err := r.RetrieveForPrompt(context.Background(), "entity-1", "user-1", "conv-1", "marathon"); err != nil {
		t.Fatalf("RetrieveForPrompt failed: %v", err)
	}
	if len(embedder.singles) != 1 {
		t.Errorf("query must be embedded exactly once, got %d calls", len(embedder.singles))
	}
}

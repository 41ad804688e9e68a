package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/chorus-chat/chorus/pkg/types"
)

func newShortTermFixture(window int) (*ShortTermService, *mockMemoryStore, *mockMessageStore) {
	memories := newMockMemoryStore()
	messages := newMockMessageStore()
	svc := NewShortTermService(memories, messages, &fakeKeywords{}, window, 10)
	return svc, memories, messages
}

func TestCreateShortTermChunk(t *testing.T) {
	svc, memories, _ := newShortTermFixture(24)

	msgs := []*types.Message{
		userMsg("conv-1", "user-1", "Maria", "I started training for the marathon"),
		userMsg("conv-1", "user-2", "Tom", "How far along are you?"),
		userMsg("conv-1", "user-1", "Maria", "Twelve miles this morning"),
	}

	memory, err := svc.CreateShortTermChunk(context.Background(), "entity-1", []string{"user-1", "user-2"}, "conv-1", msgs, 0, 0, 2)
	if err != nil {
		t.Fatalf("CreateShortTermChunk failed: %v", err)
	}

	if memory.Type() != types.MemoryTypeShortTerm {
		t.Errorf("expected short_term type, got %q", memory.Type())
	}
	if memory.ChunkIndex() != 0 {
		t.Errorf("expected chunk index 0, got %d", memory.ChunkIndex())
	}
	if got := memory.Metadata[types.MetaMessageRange]; got != "0-2" {
		t.Errorf("expected message range 0-2, got %v", got)
	}
	if memory.ConversationID != "conv-1" {
		t.Errorf("expected conversation conv-1, got %q", memory.ConversationID)
	}
	if len(memory.UserIDs) != 2 {
		t.Errorf("expected 2 user ids, got %v", memory.UserIDs)
	}
	if len(memory.Embedding) != 0 {
		t.Error("short-term chunks must not carry an embedding")
	}
	if len(memory.Keywords) == 0 {
		t.Error("expected extractor keywords on the chunk")
	}

	entries, ok := memory.Content["messages"].([]map[string]interface{})
	if !ok {
		t.Fatalf("expected messages payload, got %T", memory.Content["messages"])
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 message entries, got %d", len(entries))
	}
	if entries[0]["sender"] != "Maria" || entries[0]["text"] != "I started training for the marathon" {
		t.Errorf("unexpected first entry: %v", entries[0])
	}
	if memory.Content["message_count"] != 3 {
		t.Errorf("expected message_count 3, got %v", memory.Content["message_count"])
	}

	if len(memories.ofType(types.MemoryTypeShortTerm)) != 1 {
		t.Error("chunk was not persisted")
	}
}

func TestCreateShortTermChunkKeywordFailureTolerated(t *testing.T) {
	memories := newMockMemoryStore()
	svc := NewShortTermService(memories, newMockMessageStore(), &fakeKeywords{err: errors.New("extractor down")}, 24, 10)

	msgs := []*types.Message{userMsg("conv-1", "user-1", "Maria", "hello there")}
	memory, err := svc.CreateShortTermChunk(context.Background(), "entity-1", []string{"user-1"}, "conv-1", msgs, 0, 0, 0)
	if err != nil {
		t.Fatalf("chunk creation should tolerate keyword failure: %v", err)
	}
	if len(memory.Keywords) != 0 {
		t.Errorf("expected no keywords, got %v", memory.Keywords)
	}
}

func TestCreateShortTermChunkValidation(t *testing.T) {
	svc, _, _ := newShortTermFixture(24)
	msgs := []*types.Message{userMsg("conv-1", "user-1", "Maria", "hi")}

	if _, err := svc.CreateShortTermChunk(context.Background(), "", []string{"user-1"}, "conv-1", msgs, 0, 0, 0); err == nil {
		t.Error("expected error for empty entity id")
	}
	if _, err := svc.CreateShortTermChunk(context.Background(), "entity-1", []string{"user-1"}, "", msgs, 0, 0, 0); err == nil {
		t.Error("expected error for empty conversation id")
	}
	if _, err := svc.CreateShortTermChunk(context.Background(), "entity-1", []string{"user-1"}, "conv-1", nil, 0, 0, 0); err == nil {
		t.Error("expected error for empty chunk")
	}
}

func TestProcessConversationCreatesCompleteChunks(t *testing.T) {
	svc, memories, messages := newShortTermFixture(4)
	ctx := context.Background()

	// 10 messages with a window of 4: two complete chunks, two left over.
	for i := 0; i < 10; i++ {
		name, uid := "Maria", "user-1"
		if i%2 == 1 {
			name, uid = "Tom", "user-2"
		}
		messages.Append(ctx, userMsg("conv-1", uid, name, "message number "+string(rune('a'+i))))
	}

	created, err := svc.ProcessConversation(ctx, "entity-1", "conv-1")
	if err != nil {
		t.Fatalf("ProcessConversation failed: %v", err)
	}
	if created != 2 {
		t.Fatalf("expected 2 chunks created, got %d", created)
	}

	chunks, err := memories.ShortTermChunks(ctx, "entity-1", "conv-1")
	if err != nil {
		t.Fatalf("ShortTermChunks failed: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 stored chunks, got %d", len(chunks))
	}
	if got := chunks[0].Metadata[types.MetaMessageRange]; got != "0-3" {
		t.Errorf("first chunk range: expected 0-3, got %v", got)
	}
	if got := chunks[1].Metadata[types.MetaMessageRange]; got != "4-7" {
		t.Errorf("second chunk range: expected 4-7, got %v", got)
	}
	if len(chunks[0].UserIDs) != 2 {
		t.Errorf("expected both participants in chunk scope, got %v", chunks[0].UserIDs)
	}

	// Re-running over unchanged history is a no-op.
	created, err = svc.ProcessConversation(ctx, "entity-1", "conv-1")
	if err != nil {
		t.Fatalf("second ProcessConversation failed: %v", err)
	}
	if created != 0 {
		t.Errorf("expected idempotent re-run, got %d new chunks", created)
	}
}

func TestProcessConversationExcludesSystemMessages(t *testing.T) {
	svc, memories, messages := newShortTermFixture(4)
	ctx := context.Background()

	messages.Append(ctx, userMsg("conv-1", "user-1", "Maria", "one"))
	messages.Append(ctx, systemMsg("conv-1", "Maria joined the conversation"))
	messages.Append(ctx, userMsg("conv-1", "user-1", "Maria", "two"))
	messages.Append(ctx, systemMsg("conv-1", "Tom joined the conversation"))
	messages.Append(ctx, userMsg("conv-1", "user-2", "Tom", "three"))
	messages.Append(ctx, userMsg("conv-1", "user-1", "Maria", "four"))

	created, err := svc.ProcessConversation(ctx, "entity-1", "conv-1")
	if err != nil {
		t.Fatalf("ProcessConversation failed: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected 1 chunk from 4 non-system messages, got %d", created)
	}

	chunks, _ := memories.ShortTermChunks(ctx, "entity-1", "conv-1")
	entries := chunks[0].Content["messages"].([]map[string]interface{})
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	for _, e := range entries {
		if text := e["text"].(string); text == "Maria joined the conversation" || text == "Tom joined the conversation" {
			t.Errorf("system notice leaked into chunk: %q", text)
		}
	}
}

func TestProcessConversationWaitsForCompleteWindow(t *testing.T) {
	svc, _, messages := newShortTermFixture(4)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		messages.Append(ctx, userMsg("conv-1", "user-1", "Maria", "partial"))
	}

	created, err := svc.ProcessConversation(ctx, "entity-1", "conv-1")
	if err != nil {
		t.Fatalf("ProcessConversation failed: %v", err)
	}
	if created != 0 {
		t.Errorf("expected no chunk for an incomplete window, got %d", created)
	}
}

func TestProcessConversationResumesFromExistingChunks(t *testing.T) {
	svc, memories, messages := newShortTermFixture(4)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		messages.Append(ctx, userMsg("conv-1", "user-1", "Maria", "early"))
	}
	if _, err := svc.ProcessConversation(ctx, "entity-1", "conv-1"); err != nil {
		t.Fatalf("initial run failed: %v", err)
	}

	for i := 0; i < 4; i++ {
		messages.Append(ctx, userMsg("conv-1", "user-2", "Tom", "later"))
	}
	created, err := svc.ProcessConversation(ctx, "entity-1", "conv-1")
	if err != nil {
		t.Fatalf("resumed run failed: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected exactly 1 new chunk, got %d", created)
	}

	chunks, _ := memories.ShortTermChunks(ctx, "entity-1", "conv-1")
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks total, got %d", len(chunks))
	}
	if chunks[1].ChunkIndex() != 1 {
		t.Errorf("expected resumed chunk index 1, got %d", chunks[1].ChunkIndex())
	}
	if got := chunks[1].Metadata[types.MetaMessageRange]; got != "4-7" {
		t.Errorf("expected resumed range 4-7, got %v", got)
	}
}

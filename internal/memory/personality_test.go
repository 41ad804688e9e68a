package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/chorus-chat/chorus/pkg/types"
)

func newPersonalityFixture(chunker *fakeChunker) (*PersonalityService, *mockMemoryStore, *fakeEmbedder) {
	memories := newMockMemoryStore()
	embedder := &fakeEmbedder{}
	svc := NewPersonalityService(memories, embedder, &fakeKeywords{}, chunker, 500, 50, 10)
	return svc, memories, embedder
}

func TestUploadPersonality(t *testing.T) {
	chunker := &fakeChunker{pieces: []string{"Sokrates questions everything.", "He answers questions with questions."}}
	svc, memories, embedder := newPersonalityFixture(chunker)

	meta := map[string]interface{}{"source": "sokrates.md", "importance": 0.9}
	created, err := svc.UploadPersonality(context.Background(), "entity-1", "full persona text", "philosophy", meta)
	if err != nil {
		t.Fatalf("UploadPersonality failed: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(created))
	}

	if len(chunker.calls) != 1 || chunker.calls[0].size != 500 || chunker.calls[0].overlap != 50 {
		t.Errorf("chunker should receive configured size/overlap: %+v", chunker.calls)
	}
	if len(embedder.batches) != 1 || len(embedder.batches[0]) != 2 {
		t.Fatalf("expected one embedding batch with both pieces, got %v", embedder.batches)
	}

	for i, m := range created {
		if m.Type() != types.MemoryTypePersonality {
			t.Errorf("chunk %d: expected personality type, got %q", i, m.Type())
		}
		if got := m.Metadata[types.MetaCategory]; got != "philosophy" {
			t.Errorf("chunk %d: expected category philosophy, got %v", i, got)
		}
		if m.ChunkIndex() != i {
			t.Errorf("chunk %d: chunk index %d", i, m.ChunkIndex())
		}
		if got := m.Metadata[types.MetaTotalChunks]; got != 2 {
			t.Errorf("chunk %d: expected total_chunks 2, got %v", i, got)
		}
		if got := m.Metadata["source"]; got != "sokrates.md" {
			t.Errorf("chunk %d: caller metadata should carry through, got %v", i, got)
		}
		if _, ok := m.Metadata["importance"]; ok {
			t.Errorf("chunk %d: importance belongs in the score, not metadata", i)
		}
		if m.ImportanceScore != 0.9 {
			t.Errorf("chunk %d: expected importance 0.9, got %v", i, m.ImportanceScore)
		}
		if len(m.Embedding) == 0 {
			t.Errorf("chunk %d: missing embedding", i)
		}
		if len(m.UserIDs) != 0 || m.ConversationID != "" {
			t.Errorf("chunk %d: personality memories are entity-global", i)
		}
	}

	if len(memories.ofType(types.MemoryTypePersonality)) != 2 {
		t.Error("chunks were not persisted")
	}
}

func TestUploadPersonalityReservedMetadataWins(t *testing.T) {
	chunker := &fakeChunker{pieces: []string{"single chunk"}}
	svc, _, _ := newPersonalityFixture(chunker)

	meta := map[string]interface{}{
		types.MetaType:        "long_term",
		types.MetaCategory:    "impostor",
		types.MetaChunkIndex:  99,
		types.MetaTotalChunks: 99,
	}
	created, err := svc.UploadPersonality(context.Background(), "entity-1", "text", "values", meta)
	if err != nil {
		t.Fatalf("UploadPersonality failed: %v", err)
	}

	m := created[0]
	if m.Type() != types.MemoryTypePersonality {
		t.Errorf("caller metadata must not override the type, got %q", m.Type())
	}
	if got := m.Metadata[types.MetaCategory]; got != "values" {
		t.Errorf("caller metadata must not override the category, got %v", got)
	}
	if m.ChunkIndex() != 0 {
		t.Errorf("caller metadata must not override chunk ordinals, got %d", m.ChunkIndex())
	}
}

func TestUploadPersonalityImportanceClamped(t *testing.T) {
	chunker := &fakeChunker{pieces: []string{"chunk"}}
	svc, _, _ := newPersonalityFixture(chunker)

	created, err := svc.UploadPersonality(context.Background(), "entity-1", "text", "values", map[string]interface{}{"importance": 3.5})
	if err != nil {
		t.Fatalf("UploadPersonality failed: %v", err)
	}
	if created[0].ImportanceScore != 1.0 {
		t.Errorf("expected clamped importance 1.0, got %v", created[0].ImportanceScore)
	}
}

func TestUploadPersonalityValidation(t *testing.T) {
	svc, _, _ := newPersonalityFixture(&fakeChunker{})

	if _, err := svc.UploadPersonality(context.Background(), "", "text", "values", nil); err == nil {
		t.Error("expected error for empty entity id")
	}
	if _, err := svc.UploadPersonality(context.Background(), "entity-1", "text", "", nil); err == nil {
		t.Error("expected error for empty category")
	}
	if _, err := svc.UploadPersonality(context.Background(), "entity-1", "   ", "values", nil); err == nil {
		t.Error("expected error for empty text")
	}
}

func TestUploadPersonalityEmbedFailure(t *testing.T) {
	chunker := &fakeChunker{pieces: []string{"chunk"}}
	svc, memories, embedder := newPersonalityFixture(chunker)
	embedder.err = errors.New("embedder unavailable")

	if _, err := svc.UploadPersonality(context.Background(), "entity-1", "text", "values", nil); err == nil {
		t.Fatal("expected embedding error")
	}
	if len(memories.all()) != 0 {
		t.Error("nothing should be stored after a failed embedding")
	}
}

package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/chorus-chat/chorus/pkg/types"
)

// newTestStore creates an in-memory SQLite store. NewStore runs the full
// Schema, so no additional DDL is needed in tests.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// seedEntity creates an entity with defaults. Memories reference entities
// with an enforced foreign key, so most tests need one.
func seedEntity(t *testing.T, store *Store, username string) *types.AIEntity {
	t.Helper()
	entity := types.NewAIEntity(username)
	if err := store.CreateEntity(context.Background(), entity); err != nil {
		t.Fatalf("failed to seed entity %q: %v", username, err)
	}
	return entity
}

// buildMemory assembles a memory with the metadata layout the memory
// services produce.
func buildMemory(entityID, conversationID string, memType types.MemoryType, summary string) *types.Memory {
	return &types.Memory{
		EntityID:        entityID,
		ConversationID:  conversationID,
		Summary:         summary,
		Content:         map[string]interface{}{"text": summary},
		ImportanceScore: 1.0,
		CreatedAt:       time.Now().UTC(),
		Metadata:        map[string]interface{}{types.MetaType: string(memType)},
	}
}

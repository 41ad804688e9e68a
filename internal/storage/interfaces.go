// Package storage provides composable storage interfaces for the Chorus
// decision and memory core.
//
// The layer is split into small, focused interfaces (memories, messages,
// entities, cooldowns) that backends implement independently. PostgreSQL is
// the production backend; SQLite serves local development and tests; Redis
// optionally serves cooldowns alone.
package storage

import (
	"context"
	"time"

	"github.com/chorus-chat/chorus/pkg/types"
)

// MemoryStore provides lifecycle and retrieval operations for memories.
type MemoryStore interface {
	// Create persists a new memory. The ID is assigned when empty.
	Create(ctx context.Context, memory *types.Memory) error

	// Get retrieves a memory by ID. Returns ErrNotFound when absent.
	Get(ctx context.Context, id string) (*types.Memory, error)

	// ListByEntity returns an entity's memories ordered by importance
	// descending, then creation time descending.
	ListByEntity(ctx context.Context, entityID string, limit int) ([]*types.Memory, error)

	// VectorSearch returns memories nearest to the query embedding,
	// nearest first, restricted to the entity and any filters in opts.
	// Memories without an embedding are never returned. Distance ties
	// break by importance descending, then creation time descending.
	VectorSearch(ctx context.Context, entityID string, embedding []float32, opts SearchOptions) ([]*types.Memory, error)

	// KeywordSearch returns memories whose summary or keywords match terms
	// of the query, ranked by match count then importance. Used as the
	// lexical half of hybrid retrieval.
	KeywordSearch(ctx context.Context, entityID string, query string, opts SearchOptions) ([]*types.Memory, error)

	// ShortTermChunks returns the entity's short_term memories for a
	// conversation, ordered by chunk index ascending.
	ShortTermChunks(ctx context.Context, entityID, conversationID string) ([]*types.Memory, error)

	// DeleteShortTerm removes all short_term memories for the entity and
	// conversation, returning the number deleted.
	DeleteShortTerm(ctx context.Context, entityID, conversationID string) (int, error)

	// ExpireShortTerm removes short_term memories created before the
	// cutoff, across all entities, returning the number deleted.
	ExpireShortTerm(ctx context.Context, cutoff time.Time) (int, error)

	// FindLongTermByFactHash looks up the entity's long_term memory with
	// the given fact hash. Returns ErrNotFound when no such fact exists.
	FindLongTermByFactHash(ctx context.Context, entityID, factHash string) (*types.Memory, error)

	// IncrementAccessCount atomically bumps access_count and
	// last_accessed_at for the memory. Returns ErrNotFound when absent.
	IncrementAccessCount(ctx context.Context, id string) error

	// DeleteByEntity removes every memory owned by the entity, returning
	// the number deleted. Used by entity cascade.
	DeleteByEntity(ctx context.Context, entityID string) (int, error)

	// Close releases any resources held by the store.
	Close() error
}

// MessageStore provides the bounded history reads the core needs plus the
// append used to persist generated replies.
type MessageStore interface {
	// Append persists a new message.
	Append(ctx context.Context, msg *types.Message) error

	// RecentHistory returns up to limit most recent messages for the
	// context in chronological order (oldest first).
	RecentHistory(ctx context.Context, chatCtx types.ChatContext, limit int) ([]*types.Message, error)

	// History returns the full message window for the context in
	// chronological order. Callers filter system notices as needed.
	History(ctx context.Context, chatCtx types.ChatContext) ([]*types.Message, error)
}

// EntityStore manages AI entity configuration rows.
type EntityStore interface {
	// CreateEntity persists a new entity. Returns ErrDuplicate when the
	// username is taken.
	CreateEntity(ctx context.Context, entity *types.AIEntity) error

	// GetEntity retrieves an entity by ID. Returns ErrNotFound when absent.
	GetEntity(ctx context.Context, id string) (*types.AIEntity, error)

	// GetEntityByUsername retrieves an entity by its unique username.
	GetEntityByUsername(ctx context.Context, username string) (*types.AIEntity, error)

	// ListEntities returns all entities ordered by username.
	ListEntities(ctx context.Context) ([]*types.AIEntity, error)

	// UpdateEntity overwrites an existing entity's configuration.
	UpdateEntity(ctx context.Context, entity *types.AIEntity) error

	// DeleteEntity removes the entity and cascades its memories and
	// cooldowns.
	DeleteEntity(ctx context.Context, id string) error
}

// CooldownStore tracks last-response times per (entity, context key).
//
// TryMarkResponded is the single conditional upsert required by the
// concurrency model: two concurrent accept paths for the same key must not
// both succeed within the cooldown window.
type CooldownStore interface {
	// GetCooldown returns the record for (entityID, contextKey), or
	// ErrNotFound when the entity has never responded there.
	GetCooldown(ctx context.Context, entityID, contextKey string) (*types.CooldownRecord, error)

	// TryMarkResponded records a response at now iff no prior response
	// exists within the cooldown window, as one atomic insert-or-update.
	// It returns true when the mark was recorded, false when a concurrent
	// or recent response already holds the window. A zero cooldown always
	// records and returns true.
	TryMarkResponded(ctx context.Context, entityID, contextKey string, cooldown time.Duration, now time.Time) (bool, error)
}

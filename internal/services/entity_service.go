// Package services holds the write-side application services the ops API
// exposes. The decision and memory core reads entity configuration; all
// mutation goes through here.
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chorus-chat/chorus/internal/storage"
	"github.com/chorus-chat/chorus/pkg/types"
)

// EntityService manages AI entity configuration. Validation happens here so
// every write path (HTTP handlers, setup tooling) enforces the same bounds.
type EntityService struct {
	store storage.EntityStore
	now   func() time.Time
}

// NewEntityService creates an entity service over the given store.
func NewEntityService(store storage.EntityStore) *EntityService {
	return &EntityService{
		store: store,
		now:   time.Now,
	}
}

// Create validates and persists a new entity. The ID and timestamps are
// assigned here; behavior defaults are the caller's concern (the handlers
// start from types.NewAIEntity and overlay the request). Returns
// storage.ErrDuplicate when the username is taken.
func (s *EntityService) Create(ctx context.Context, entity *types.AIEntity) error {
	if entity == nil {
		return fmt.Errorf("entity is required")
	}

	entity.Username = strings.TrimSpace(entity.Username)
	if err := entity.Validate(); err != nil {
		return fmt.Errorf("invalid entity: %w", err)
	}

	if entity.ID == "" {
		entity.ID = uuid.New().String()
	}
	now := s.now().UTC()
	entity.CreatedAt = now
	entity.UpdatedAt = now

	if err := s.store.CreateEntity(ctx, entity); err != nil {
		return fmt.Errorf("failed to create entity %q: %w", entity.Username, err)
	}
	return nil
}

// Get retrieves an entity by ID.
func (s *EntityService) Get(ctx context.Context, id string) (*types.AIEntity, error) {
	if id == "" {
		return nil, fmt.Errorf("entity id is required")
	}
	return s.store.GetEntity(ctx, id)
}

// GetByUsername retrieves an entity by its unique username.
func (s *EntityService) GetByUsername(ctx context.Context, username string) (*types.AIEntity, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	return s.store.GetEntityByUsername(ctx, username)
}

// List returns all entities ordered by username.
func (s *EntityService) List(ctx context.Context) ([]*types.AIEntity, error) {
	return s.store.ListEntities(ctx)
}

// Update validates and overwrites an existing entity's configuration. The
// creation timestamp and username survive from the stored row; UpdatedAt is
// bumped.
func (s *EntityService) Update(ctx context.Context, entity *types.AIEntity) error {
	if entity == nil || entity.ID == "" {
		return fmt.Errorf("entity id is required")
	}

	existing, err := s.store.GetEntity(ctx, entity.ID)
	if err != nil {
		return fmt.Errorf("failed to load entity %s: %w", entity.ID, err)
	}

	// Username is the mention-detection handle; renames would silently
	// change decision behavior, so they are rejected.
	entity.Username = strings.TrimSpace(entity.Username)
	if entity.Username == "" {
		entity.Username = existing.Username
	}
	if entity.Username != existing.Username {
		return fmt.Errorf("username cannot be changed (is %q)", existing.Username)
	}

	if err := entity.Validate(); err != nil {
		return fmt.Errorf("invalid entity: %w", err)
	}

	entity.CreatedAt = existing.CreatedAt
	entity.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateEntity(ctx, entity); err != nil {
		return fmt.Errorf("failed to update entity %s: %w", entity.ID, err)
	}
	return nil
}

// SetStatus flips an entity's presence without touching the rest of its
// configuration.
func (s *EntityService) SetStatus(ctx context.Context, id string, status types.EntityStatus) error {
	if status != types.EntityOnline && status != types.EntityOffline {
		return fmt.Errorf("unknown entity status %q", status)
	}

	entity, err := s.store.GetEntity(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load entity %s: %w", id, err)
	}

	entity.Status = status
	if status == types.EntityOffline {
		entity.CurrentRoomID = ""
	}
	entity.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateEntity(ctx, entity); err != nil {
		return fmt.Errorf("failed to update entity %s: %w", id, err)
	}
	return nil
}

// Delete removes the entity. The store cascades its memories and cooldowns.
func (s *EntityService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("entity id is required")
	}
	if err := s.store.DeleteEntity(ctx, id); err != nil {
		return fmt.Errorf("failed to delete entity %s: %w", id, err)
	}
	return nil
}

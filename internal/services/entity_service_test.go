package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/chorus-chat/chorus/internal/storage"
	"github.com/chorus-chat/chorus/pkg/types"
)

type mockEntityStore struct {
	byID      map[string]*types.AIEntity
	createErr error
	updateErr error
	deleteErr error
	deleted   []string
}

func newMockEntityStore() *mockEntityStore {
	return &mockEntityStore{byID: make(map[string]*types.AIEntity)}
}

func (m *mockEntityStore) CreateEntity(ctx context.Context, entity *types.AIEntity) error {
	if m.createErr != nil {
		return m.createErr
	}
	for _, e := range m.byID {
		if e.Username == entity.Username {
			return storage.ErrDuplicate
		}
	}
	stored := *entity
	m.byID[entity.ID] = &stored
	return nil
}

func (m *mockEntityStore) GetEntity(ctx context.Context, id string) (*types.AIEntity, error) {
	e, ok := m.byID[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *e
	return &copied, nil
}

func (m *mockEntityStore) GetEntityByUsername(ctx context.Context, username string) (*types.AIEntity, error) {
	for _, e := range m.byID {
		if e.Username == username {
			copied := *e
			return &copied, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *mockEntityStore) ListEntities(ctx context.Context) ([]*types.AIEntity, error) {
	out := make([]*types.AIEntity, 0, len(m.byID))
	for _, e := range m.byID {
		copied := *e
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (m *mockEntityStore) UpdateEntity(ctx context.Context, entity *types.AIEntity) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.byID[entity.ID]; !ok {
		return storage.ErrNotFound
	}
	stored := *entity
	m.byID[entity.ID] = &stored
	return nil
}

func (m *mockEntityStore) DeleteEntity(ctx context.Context, id string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.byID[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.byID, id)
	m.deleted = append(m.deleted, id)
	return nil
}

var _ storage.EntityStore = (*mockEntityStore)(nil)

func fixedEntityService(store *mockEntityStore) (*EntityService, time.Time) {
	svc := NewEntityService(store)
	fixed := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	return svc, fixed
}

func TestCreateAssignsIDAndTimestamps(t *testing.T) {
	store := newMockEntityStore()
	svc, fixed := fixedEntityService(store)

	entity := types.NewAIEntity("  sokrates  ")
	if err := svc.Create(context.Background(), entity); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if entity.ID == "" {
		t.Error("ID not assigned")
	}
	if entity.Username != "sokrates" {
		t.Errorf("Username = %q, want trimmed %q", entity.Username, "sokrates")
	}
	if !entity.CreatedAt.Equal(fixed) || !entity.UpdatedAt.Equal(fixed) {
		t.Errorf("timestamps = %v/%v, want %v", entity.CreatedAt, entity.UpdatedAt, fixed)
	}
	if _, err := store.GetEntity(context.Background(), entity.ID); err != nil {
		t.Errorf("entity not persisted: %v", err)
	}
}

func TestCreateRejectsInvalidConfiguration(t *testing.T) {
	svc, _ := fixedEntityService(newMockEntityStore())

	cases := []struct {
		name   string
		mutate func(*types.AIEntity)
	}{
		{"empty username", func(e *types.AIEntity) { e.Username = "   " }},
		{"temperature too high", func(e *types.AIEntity) { e.Temperature = 2.5 }},
		{"probability out of range", func(e *types.AIEntity) { e.ResponseProbability = 1.2 }},
		{"negative cooldown", func(e *types.AIEntity) { v := -1; e.CooldownSeconds = &v }},
		{"cooldown above cap", func(e *types.AIEntity) { v := 7200; e.CooldownSeconds = &v }},
		{"unknown strategy", func(e *types.AIEntity) { e.RoomResponseStrategy = "always_shout" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			entity := types.NewAIEntity("sokrates")
			tc.mutate(entity)
			if err := svc.Create(context.Background(), entity); err == nil {
				t.Error("Create() accepted invalid entity")
			}
		})
	}
}

func TestCreateDuplicateUsername(t *testing.T) {
	store := newMockEntityStore()
	svc, _ := fixedEntityService(store)

	if err := svc.Create(context.Background(), types.NewAIEntity("sokrates")); err != nil {
		t.Fatalf("first Create() error = %v", err)
	}
	err := svc.Create(context.Background(), types.NewAIEntity("sokrates"))
	if !errors.Is(err, storage.ErrDuplicate) {
		t.Errorf("Create() error = %v, want ErrDuplicate", err)
	}
}

func TestUpdatePreservesCreationAndBumpsUpdated(t *testing.T) {
	store := newMockEntityStore()
	svc, fixed := fixedEntityService(store)

	entity := types.NewAIEntity("sokrates")
	if err := svc.Create(context.Background(), entity); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	later := fixed.Add(time.Hour)
	svc.now = func() time.Time { return later }

	entity.Temperature = 1.1
	entity.SystemPrompt = "You are a philosopher."
	if err := svc.Update(context.Background(), entity); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	stored, err := store.GetEntity(context.Background(), entity.ID)
	if err != nil {
		t.Fatalf("GetEntity() error = %v", err)
	}
	if stored.Temperature != 1.1 {
		t.Errorf("Temperature = %v, want 1.1", stored.Temperature)
	}
	if !stored.CreatedAt.Equal(fixed) {
		t.Errorf("CreatedAt = %v, want preserved %v", stored.CreatedAt, fixed)
	}
	if !stored.UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt = %v, want %v", stored.UpdatedAt, later)
	}
}

func TestUpdateRejectsUsernameChange(t *testing.T) {
	store := newMockEntityStore()
	svc, _ := fixedEntityService(store)

	entity := types.NewAIEntity("sokrates")
	if err := svc.Create(context.Background(), entity); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	entity.Username = "platon"
	err := svc.Update(context.Background(), entity)
	if err == nil || !strings.Contains(err.Error(), "username cannot be changed") {
		t.Errorf("Update() error = %v, want username rejection", err)
	}
}

func TestUpdateFillsEmptyUsernameFromStored(t *testing.T) {
	store := newMockEntityStore()
	svc, _ := fixedEntityService(store)

	entity := types.NewAIEntity("sokrates")
	if err := svc.Create(context.Background(), entity); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	entity.Username = ""
	if err := svc.Update(context.Background(), entity); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	stored, _ := store.GetEntity(context.Background(), entity.ID)
	if stored.Username != "sokrates" {
		t.Errorf("Username = %q, want %q", stored.Username, "sokrates")
	}
}

func TestUpdateMissingEntity(t *testing.T) {
	svc, _ := fixedEntityService(newMockEntityStore())

	entity := types.NewAIEntity("sokrates")
	entity.ID = "missing"
	err := svc.Update(context.Background(), entity)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Update() error = %v, want ErrNotFound", err)
	}
}

func TestSetStatus(t *testing.T) {
	store := newMockEntityStore()
	svc, _ := fixedEntityService(store)

	entity := types.NewAIEntity("sokrates")
	entity.CurrentRoomID = "room-1"
	if err := svc.Create(context.Background(), entity); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := svc.SetStatus(context.Background(), entity.ID, types.EntityOffline); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	stored, _ := store.GetEntity(context.Background(), entity.ID)
	if stored.Status != types.EntityOffline {
		t.Errorf("Status = %q, want offline", stored.Status)
	}
	if stored.CurrentRoomID != "" {
		t.Errorf("CurrentRoomID = %q, want cleared on offline", stored.CurrentRoomID)
	}

	if err := svc.SetStatus(context.Background(), entity.ID, "away"); err == nil {
		t.Error("SetStatus() accepted unknown status")
	}
}

func TestListOrdersByUsername(t *testing.T) {
	store := newMockEntityStore()
	svc, _ := fixedEntityService(store)

	for _, name := range []string{"zeno", "aristoteles", "platon"} {
		if err := svc.Create(context.Background(), types.NewAIEntity(name)); err != nil {
			t.Fatalf("Create(%s) error = %v", name, err)
		}
	}

	entities, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	got := make([]string, len(entities))
	for i, e := range entities {
		got[i] = e.Username
	}
	want := []string{"aristoteles", "platon", "zeno"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("List() order = %v, want %v", got, want)
		}
	}
}

func TestDelete(t *testing.T) {
	store := newMockEntityStore()
	svc, _ := fixedEntityService(store)

	entity := types.NewAIEntity("sokrates")
	if err := svc.Create(context.Background(), entity); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := svc.Delete(context.Background(), entity.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.GetEntity(context.Background(), entity.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("entity still present after delete: %v", err)
	}

	if err := svc.Delete(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Delete(missing) error = %v, want ErrNotFound", err)
	}
}

func TestGetByUsername(t *testing.T) {
	store := newMockEntityStore()
	svc, _ := fixedEntityService(store)

	entity := types.NewAIEntity("sokrates")
	if err := svc.Create(context.Background(), entity); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := svc.GetByUsername(context.Background(), " sokrates ")
	if err != nil {
		t.Fatalf("GetByUsername() error = %v", err)
	}
	if got.ID != entity.ID {
		t.Errorf("GetByUsername() ID = %q, want %q", got.ID, entity.ID)
	}

	if _, err := svc.GetByUsername(context.Background(), ""); err == nil {
		t.Error("GetByUsername() accepted empty username")
	}
}

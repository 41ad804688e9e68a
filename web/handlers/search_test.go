package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chorus-chat/chorus/internal/storage"
	"github.com/chorus-chat/chorus/pkg/types"
	"github.com/chorus-chat/chorus/web/handlers"
	"github.com/stretchr/testify/assert"
)

// fakeMemoryStore serves canned memories. Search calls record their
// arguments so tests can assert what the handler asked for.
type fakeMemoryStore struct {
	memories       []*types.Memory
	byID           map[string]*types.Memory
	keywordResults []*types.Memory
	vectorResults  []*types.Memory

	lastEntityID  string
	lastQuery     string
	lastEmbedding []float32
	lastOpts      storage.SearchOptions
	lastLimit     int

	searchErr error
}

func (s *fakeMemoryStore) Create(ctx context.Context, memory *types.Memory) error { return nil }

func (s *fakeMemoryStore) Get(ctx context.Context, id string) (*types.Memory, error) {
	if m, ok := s.byID[id]; ok {
		return m, nil
	}
	return nil, storage.ErrNotFound
}

func (s *fakeMemoryStore) ListByEntity(ctx context.Context, entityID string, limit int) ([]*types.Memory, error) {
	s.lastEntityID = entityID
	s.lastLimit = limit
	return s.memories, nil
}

func (s *fakeMemoryStore) VectorSearch(ctx context.Context, entityID string, embedding []float32, opts storage.SearchOptions) ([]*types.Memory, error) {
	s.lastEntityID = entityID
	s.lastEmbedding = embedding
	s.lastOpts = opts
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return s.vectorResults, nil
}

func (s *fakeMemoryStore) KeywordSearch(ctx context.Context, entityID string, query string, opts storage.SearchOptions) ([]*types.Memory, error) {
	s.lastEntityID = entityID
	s.lastQuery = query
	s.lastOpts = opts
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return s.keywordResults, nil
}

func (s *fakeMemoryStore) ShortTermChunks(ctx context.Context, entityID, conversationID string) ([]*types.Memory, error) {
	return nil, nil
}

func (s *fakeMemoryStore) DeleteShortTerm(ctx context.Context, entityID, conversationID string) (int, error) {
	return 0, nil
}

func (s *fakeMemoryStore) ExpireShortTerm(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, nil
}

func (s *fakeMemoryStore) FindLongTermByFactHash(ctx context.Context, entityID, factHash string) (*types.Memory, error) {
	return nil, storage.ErrNotFound
}

func (s *fakeMemoryStore) IncrementAccessCount(ctx context.Context, id string) error { return nil }

func (s *fakeMemoryStore) DeleteByEntity(ctx context.Context, entityID string) (int, error) {
	return 0, nil
}

func (s *fakeMemoryStore) Close() error { return nil }

// fakeEmbedder returns a fixed embedding for any text.
type fakeEmbedder struct {
	embedding []float32
	err       error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.embedding, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		e, err := f.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func (f *fakeEmbedder) GetModel() string { return "fake-embed" }

func testMemory(id, summary string) *types.Memory {
	return &types.Memory{
		ID:        id,
		EntityID:  "ent-1",
		Summary:   summary,
		Content:   map[string]interface{}{"fact": summary},
		Metadata:  map[string]interface{}{types.MetaType: string(types.MemoryTypeLongTerm)},
		CreatedAt: time.Now().UTC(),
	}
}

func TestListMemories(t *testing.T) {
	store := &fakeMemoryStore{
		memories: []*types.Memory{testMemory("mem-1", "likes chess"), testMemory("mem-2", "lives in Athens")},
	}
	h := handlers.NewMemoryHandler(store, nil)

	req := httptest.NewRequest("GET", "/api/memories?entity_id=ent-1", nil)
	w := httptest.NewRecorder()

	h.ListMemories(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ent-1", store.lastEntityID)
	assert.Equal(t, 20, store.lastLimit)

	var resp struct {
		Memories []*types.Memory `json:"memories"`
		Total    int             `json:"total"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
}

func TestListMemories_RequiresEntityID(t *testing.T) {
	h := handlers.NewMemoryHandler(&fakeMemoryStore{}, nil)

	req := httptest.NewRequest("GET", "/api/memories", nil)
	w := httptest.NewRecorder()

	h.ListMemories(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "entity_id is required")
}

func TestListMemories_ClampsLimit(t *testing.T) {
	store := &fakeMemoryStore{}
	h := handlers.NewMemoryHandler(store, nil)

	req := httptest.NewRequest("GET", "/api/memories?entity_id=ent-1&limit=5000", nil)
	w := httptest.NewRecorder()

	h.ListMemories(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, storage.MaxSearchLimit, store.lastLimit)
}

func TestGetMemory(t *testing.T) {
	store := &fakeMemoryStore{byID: map[string]*types.Memory{"mem-1": testMemory("mem-1", "likes chess")}}
	h := handlers.NewMemoryHandler(store, nil)

	req := httptest.NewRequest("GET", "/api/memories/mem-1", nil)
	req.SetPathValue("id", "mem-1")
	w := httptest.NewRecorder()

	h.GetMemory(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "likes chess")
}

func TestGetMemory_NotFound(t *testing.T) {
	h := handlers.NewMemoryHandler(&fakeMemoryStore{}, nil)

	req := httptest.NewRequest("GET", "/api/memories/missing", nil)
	req.SetPathValue("id", "missing")
	w := httptest.NewRecorder()

	h.GetMemory(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSearchMemories_KeywordDefault(t *testing.T) {
	store := &fakeMemoryStore{keywordResults: []*types.Memory{testMemory("mem-1", "likes chess")}}
	h := handlers.NewMemoryHandler(store, nil)

	req := httptest.NewRequest("GET", "/api/memories/search?entity_id=ent-1&q=chess&type=long_term", nil)
	w := httptest.NewRecorder()

	h.SearchMemories(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "chess", store.lastQuery)
	assert.Equal(t, types.MemoryTypeLongTerm, store.lastOpts.MemoryType)
	assert.Contains(t, w.Body.String(), `"kind":"keyword"`)
}

func TestSearchMemories_Vector(t *testing.T) {
	store := &fakeMemoryStore{vectorResults: []*types.Memory{testMemory("mem-1", "likes chess")}}
	embedder := &fakeEmbedder{embedding: []float32{0.1, 0.2, 0.3}}
	h := handlers.NewMemoryHandler(store, embedder)

	req := httptest.NewRequest("GET", "/api/memories/search?entity_id=ent-1&q=chess&kind=vector", nil)
	w := httptest.NewRecorder()

	h.SearchMemories(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, store.lastEmbedding)
	assert.Contains(t, w.Body.String(), `"kind":"vector"`)
}

func TestSearchMemories_VectorUnavailableWithoutEmbedder(t *testing.T) {
	h := handlers.NewMemoryHandler(&fakeMemoryStore{}, nil)

	req := httptest.NewRequest("GET", "/api/memories/search?entity_id=ent-1&q=chess&kind=vector", nil)
	w := httptest.NewRecorder()

	h.SearchMemories(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSearchMemories_VectorEmbedFailure(t *testing.T) {
	embedder := &fakeEmbedder{err: assert.AnError}
	h := handlers.NewMemoryHandler(&fakeMemoryStore{}, embedder)

	req := httptest.NewRequest("GET", "/api/memories/search?entity_id=ent-1&q=chess&kind=vector", nil)
	w := httptest.NewRecorder()

	h.SearchMemories(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "query embedding failed")
}

func TestSearchMemories_UnknownKind(t *testing.T) {
	h := handlers.NewMemoryHandler(&fakeMemoryStore{}, nil)

	req := httptest.NewRequest("GET", "/api/memories/search?entity_id=ent-1&q=chess&kind=hybrid", nil)
	w := httptest.NewRecorder()

	h.SearchMemories(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "kind must be keyword or vector")
}

func TestSearchMemories_RequiresQuery(t *testing.T) {
	h := handlers.NewMemoryHandler(&fakeMemoryStore{}, nil)

	req := httptest.NewRequest("GET", "/api/memories/search?entity_id=ent-1", nil)
	w := httptest.NewRecorder()

	h.SearchMemories(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "q is required")
}

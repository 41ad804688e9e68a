package handlers

import (
	"errors"
	"net/http"

	"github.com/chorus-chat/chorus/internal/llm"
	"github.com/chorus-chat/chorus/internal/storage"
	"github.com/chorus-chat/chorus/pkg/types"
)

// MemoryHandler handles read-only memory inspection endpoints. Search runs
// against one layer at a time; kind "vector" needs the embedding provider
// and answers 503 when it is down.
type MemoryHandler struct {
	memories storage.MemoryStore
	embedder llm.EmbeddingGenerator
}

// NewMemoryHandler creates a memory inspection handler. embedder may be nil;
// vector search is then unavailable.
func NewMemoryHandler(memories storage.MemoryStore, embedder llm.EmbeddingGenerator) *MemoryHandler {
	return &MemoryHandler{memories: memories, embedder: embedder}
}

// ListMemories handles GET /api/memories — an entity's memories by
// importance.
//
// Query parameters:
//   - entity_id — required
//   - limit     — default 20, max 100
func (h *MemoryHandler) ListMemories(w http.ResponseWriter, r *http.Request) {
	entityID := r.URL.Query().Get("entity_id")
	if entityID == "" {
		respondError(w, http.StatusBadRequest, "entity_id is required", nil)
		return
	}
	limit := queryInt(r, "limit", 20, storage.MaxSearchLimit)

	memories, err := h.memories.ListByEntity(r.Context(), entityID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list memories", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"memories": memories,
		"total":    len(memories),
	})
}

// GetMemory handles GET /api/memories/{id}.
func (h *MemoryHandler) GetMemory(w http.ResponseWriter, r *http.Request) {
	memory, err := h.memories.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "memory not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load memory", err)
		return
	}
	respondJSON(w, http.StatusOK, memory)
}

// SearchMemories handles GET /api/memories/search — keyword or vector search
// within an entity's memories, mirroring what retrieval sees.
//
// Query parameters:
//   - entity_id       — required
//   - q               — required search query
//   - kind            — "keyword" (default) or "vector"
//   - type            — optional layer filter (short_term, long_term, personality)
//   - conversation_id — optional conversation filter
//   - user_id         — optional user filter
//   - limit           — default 10, max 100
func (h *MemoryHandler) SearchMemories(w http.ResponseWriter, r *http.Request) {
	entityID := r.URL.Query().Get("entity_id")
	if entityID == "" {
		respondError(w, http.StatusBadRequest, "entity_id is required", nil)
		return
	}
	query := r.URL.Query().Get("q")
	if query == "" {
		respondError(w, http.StatusBadRequest, "q is required", nil)
		return
	}

	opts := storage.SearchOptions{
		ConversationID: r.URL.Query().Get("conversation_id"),
		UserID:         r.URL.Query().Get("user_id"),
		MemoryType:     types.MemoryType(r.URL.Query().Get("type")),
		Limit:          queryInt(r, "limit", storage.DefaultSearchLimit, storage.MaxSearchLimit),
	}

	var (
		results []*types.Memory
		err     error
	)
	kind := r.URL.Query().Get("kind")
	switch kind {
	case "", "keyword":
		kind = "keyword"
		results, err = h.memories.KeywordSearch(r.Context(), entityID, query, opts)
	case "vector":
		if h.embedder == nil {
			respondError(w, http.StatusServiceUnavailable, "vector search unavailable", nil)
			return
		}
		var embedding []float32
		embedding, err = h.embedder.Embed(r.Context(), query)
		if err != nil {
			respondError(w, http.StatusServiceUnavailable, "query embedding failed", err)
			return
		}
		results, err = h.memories.VectorSearch(r.Context(), entityID, embedding, opts)
	default:
		respondError(w, http.StatusBadRequest, "kind must be keyword or vector", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "search failed", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"total":   len(results),
		"query":   query,
		"kind":    kind,
	})
}

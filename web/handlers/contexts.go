package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/chorus-chat/chorus/internal/assembler"
	"github.com/chorus-chat/chorus/internal/storage"
)

// ContextBuilder assembles a generation-ready prompt bundle.
type ContextBuilder interface {
	BuildFullContext(ctx context.Context, req assembler.ContextRequest) (*assembler.AssembledContext, error)
}

// ContextHandler handles POST /api/contexts/preview: the exact prompt bundle
// an entity would receive for a reply in the given context, without calling
// the generation provider. Retrieved memories still get their access counts
// bumped, same as a live reply.
type ContextHandler struct {
	entities entityResolver
	builder  ContextBuilder
}

// NewContextHandler creates a context preview handler.
func NewContextHandler(entities entityResolver, builder ContextBuilder) *ContextHandler {
	return &ContextHandler{entities: entities, builder: builder}
}

// ContextPreviewRequest is the JSON body for POST /api/contexts/preview. The
// target entity is named by entity_id or username. Exactly one of room_id and
// conversation_id scopes the history window.
type ContextPreviewRequest struct {
	EntityID string `json:"entity_id"`
	Username string `json:"username"`

	RoomID          string `json:"room_id"`
	ConversationID  string `json:"conversation_id"`
	UserID          string `json:"user_id"`
	IncludeMemories bool   `json:"include_memories"`
	MaxMessages     int    `json:"max_messages"`
}

// PreviewMessage is one history entry in wire form.
type PreviewMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ContextPreviewResponse is the assembled bundle in wire form.
type ContextPreviewResponse struct {
	Messages     []PreviewMessage `json:"messages"`
	MemoryDigest string           `json:"memory_digest,omitempty"`
	SystemPrompt string           `json:"system_prompt"`
}

// Preview handles POST /api/contexts/preview.
func (h *ContextHandler) Preview(w http.ResponseWriter, r *http.Request) {
	if h.builder == nil {
		respondError(w, http.StatusServiceUnavailable, "context assembly is not available", nil)
		return
	}

	var req ContextPreviewRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if (req.RoomID == "") == (req.ConversationID == "") {
		respondError(w, http.StatusBadRequest, "exactly one of room_id and conversation_id is required", nil)
		return
	}

	entity, err := resolveEntity(r.Context(), h.entities, req.EntityID, req.Username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "entity not found", nil)
			return
		}
		respondError(w, http.StatusBadRequest, "failed to resolve entity", err)
		return
	}

	assembled, err := h.builder.BuildFullContext(r.Context(), assembler.ContextRequest{
		Entity:          entity,
		RoomID:          req.RoomID,
		ConversationID:  req.ConversationID,
		UserID:          req.UserID,
		IncludeMemories: req.IncludeMemories,
		MaxMessages:     req.MaxMessages,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "context assembly failed", err)
		return
	}

	resp := ContextPreviewResponse{
		Messages:     make([]PreviewMessage, 0, len(assembled.Messages)),
		MemoryDigest: assembled.MemoryDigest,
		SystemPrompt: assembled.SystemPrompt,
	}
	for _, m := range assembled.Messages {
		resp.Messages = append(resp.Messages, PreviewMessage{Role: m.Role, Content: m.Content})
	}
	respondJSON(w, http.StatusOK, resp)
}

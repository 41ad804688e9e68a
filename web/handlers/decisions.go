package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/chorus-chat/chorus/internal/storage"
	"github.com/chorus-chat/chorus/pkg/types"
)

// DecisionEvaluator runs a should-respond evaluation without side effects.
type DecisionEvaluator interface {
	DryRun(ctx context.Context, entity *types.AIEntity, msg *types.Message, chatCtx types.ChatContext) (*types.DecisionTrace, error)
}

// entityResolver finds entities by id or username.
type entityResolver interface {
	Get(ctx context.Context, id string) (*types.AIEntity, error)
	GetByUsername(ctx context.Context, username string) (*types.AIEntity, error)
}

// DecisionHandler handles POST /api/decisions/dry-run: "would this entity
// respond to this message?" without touching cooldown state.
type DecisionHandler struct {
	entities entityResolver
	engine   DecisionEvaluator
}

// NewDecisionHandler creates a decision dry-run handler.
func NewDecisionHandler(entities entityResolver, engine DecisionEvaluator) *DecisionHandler {
	return &DecisionHandler{entities: entities, engine: engine}
}

// DryRunRequest is the JSON body for POST /api/decisions/dry-run. The target
// entity is named by entity_id or username. Exactly one of room_id and
// conversation_id scopes the message.
type DryRunRequest struct {
	EntityID string `json:"entity_id"`
	Username string `json:"username"`

	Content        string `json:"content"`
	SenderUserID   string `json:"sender_user_id"`
	SenderAIID     string `json:"sender_ai_id"`
	SenderName     string `json:"sender_name"`
	RoomID         string `json:"room_id"`
	ConversationID string `json:"conversation_id"`
}

// DryRun handles POST /api/decisions/dry-run.
func (h *DecisionHandler) DryRun(w http.ResponseWriter, r *http.Request) {
	var req DryRunRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Content == "" {
		respondError(w, http.StatusBadRequest, "content is required", nil)
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

	msg := &types.Message{
		Content:        req.Content,
		SenderUserID:   req.SenderUserID,
		SenderAIID:     req.SenderAIID,
		SenderName:     req.SenderName,
		RoomID:         req.RoomID,
		ConversationID: req.ConversationID,
		Type:           types.MessageTypeText,
		SentAt:         time.Now().UTC(),
	}
	if msg.SenderUserID == "" && msg.SenderAIID == "" {
		msg.SenderUserID = "dry-run-user"
	}

	trace, err := h.engine.DryRun(r.Context(), entity, msg, msg.Context())
	if err != nil {
		respondError(w, http.StatusBadRequest, "evaluation failed", err)
		return
	}
	respondJSON(w, http.StatusOK, trace)
}

// resolveEntity finds the entity a request names by id or username.
func resolveEntity(ctx context.Context, entities entityResolver, entityID, username string) (*types.AIEntity, error) {
	switch {
	case entityID != "":
		return entities.Get(ctx, entityID)
	case username != "":
		return entities.GetByUsername(ctx, username)
	default:
		return nil, errors.New("entity_id or username is required")
	}
}

package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/chorus-chat/chorus/internal/storage"
	"github.com/chorus-chat/chorus/pkg/types"
)

// EntityManager is the slice of the entity service the handlers consume.
type EntityManager interface {
	Create(ctx context.Context, entity *types.AIEntity) error
	Get(ctx context.Context, id string) (*types.AIEntity, error)
	List(ctx context.Context) ([]*types.AIEntity, error)
	Update(ctx context.Context, entity *types.AIEntity) error
	SetStatus(ctx context.Context, id string, status types.EntityStatus) error
	Delete(ctx context.Context, id string) error
}

// EntityHandler handles the /api/entities endpoints.
type EntityHandler struct {
	entities EntityManager
}

// NewEntityHandler creates an entity handler.
func NewEntityHandler(entities EntityManager) *EntityHandler {
	return &EntityHandler{entities: entities}
}

// EntityRequest is the JSON body for entity create/update. Absent fields
// keep their defaults (create) or stored values (update).
type EntityRequest struct {
	Username                     *string  `json:"username"`
	DisplayName                  *string  `json:"display_name"`
	SystemPrompt                 *string  `json:"system_prompt"`
	ModelName                    *string  `json:"model_name"`
	Temperature                  *float64 `json:"temperature"`
	MaxTokens                    *int     `json:"max_tokens"`
	RoomResponseStrategy         *string  `json:"room_response_strategy"`
	ConversationResponseStrategy *string  `json:"conversation_response_strategy"`
	ResponseProbability          *float64 `json:"response_probability"`
	CooldownSeconds              *int     `json:"cooldown_seconds"`
	IsActive                     *bool    `json:"is_active"`
}

// apply overlays the request's set fields onto an entity.
func (req *EntityRequest) apply(e *types.AIEntity) {
	if req.Username != nil {
		e.Username = *req.Username
	}
	if req.DisplayName != nil {
		e.DisplayName = *req.DisplayName
	}
	if req.SystemPrompt != nil {
		e.SystemPrompt = *req.SystemPrompt
	}
	if req.ModelName != nil {
		e.ModelName = *req.ModelName
	}
	if req.Temperature != nil {
		e.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		e.MaxTokens = *req.MaxTokens
	}
	if req.RoomResponseStrategy != nil {
		e.RoomResponseStrategy = types.RoomStrategy(*req.RoomResponseStrategy)
	}
	if req.ConversationResponseStrategy != nil {
		e.ConversationResponseStrategy = types.ConversationStrategy(*req.ConversationResponseStrategy)
	}
	if req.ResponseProbability != nil {
		e.ResponseProbability = *req.ResponseProbability
	}
	if req.CooldownSeconds != nil {
		// Zero clears the limit; negatives fall through to validation.
		if *req.CooldownSeconds == 0 {
			e.CooldownSeconds = nil
		} else {
			v := *req.CooldownSeconds
			e.CooldownSeconds = &v
		}
	}
	if req.IsActive != nil {
		e.IsActive = *req.IsActive
	}
}

// ListEntities handles GET /api/entities.
func (h *EntityHandler) ListEntities(w http.ResponseWriter, r *http.Request) {
	entities, err := h.entities.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list entities", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"entities": entities,
		"total":    len(entities),
	})
}

// CreateEntity handles POST /api/entities.
func (h *EntityHandler) CreateEntity(w http.ResponseWriter, r *http.Request) {
	var req EntityRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Username == nil || *req.Username == "" {
		respondError(w, http.StatusBadRequest, "username is required", nil)
		return
	}

	entity := types.NewAIEntity(*req.Username)
	req.apply(entity)

	if err := h.entities.Create(r.Context(), entity); err != nil {
		switch {
		case errors.Is(err, storage.ErrDuplicate):
			respondError(w, http.StatusConflict, "username already taken", err)
		default:
			respondError(w, http.StatusBadRequest, "failed to create entity", err)
		}
		return
	}
	respondJSON(w, http.StatusCreated, entity)
}

// GetEntity handles GET /api/entities/{id}.
func (h *EntityHandler) GetEntity(w http.ResponseWriter, r *http.Request) {
	entity, err := h.entities.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "entity not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load entity", err)
		return
	}
	respondJSON(w, http.StatusOK, entity)
}

// UpdateEntity handles PUT /api/entities/{id}.
func (h *EntityHandler) UpdateEntity(w http.ResponseWriter, r *http.Request) {
	var req EntityRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	entity, err := h.entities.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "entity not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load entity", err)
		return
	}

	req.apply(entity)
	if err := h.entities.Update(r.Context(), entity); err != nil {
		respondError(w, http.StatusBadRequest, "failed to update entity", err)
		return
	}
	respondJSON(w, http.StatusOK, entity)
}

// StatusRequest is the JSON body for PUT /api/entities/{id}/status.
type StatusRequest struct {
	Status string `json:"status"`
}

// SetEntityStatus handles PUT /api/entities/{id}/status.
func (h *EntityHandler) SetEntityStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	err := h.entities.SetStatus(r.Context(), r.PathValue("id"), types.EntityStatus(req.Status))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "entity not found", nil)
			return
		}
		respondError(w, http.StatusBadRequest, "failed to set status", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": req.Status})
}

// DeleteEntity handles DELETE /api/entities/{id}. Memories and cooldowns
// cascade.
func (h *EntityHandler) DeleteEntity(w http.ResponseWriter, r *http.Request) {
	if err := h.entities.Delete(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "entity not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to delete entity", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

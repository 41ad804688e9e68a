package types

import (
	"fmt"
	"time"
)

// Temperature, token, and cooldown bounds for entity configuration.
const (
	MinTemperature = 0.0
	MaxTemperature = 2.0
	MinMaxTokens   = 1
	MaxMaxTokens   = 8192
	MaxCooldownSec = 3600
)

// Defaults applied by NewAIEntity.
const (
	DefaultModelName           = "gpt-4o-mini"
	DefaultTemperature         = 0.7
	DefaultMaxTokens           = 1024
	DefaultResponseProbability = 0.3
)

// AIEntity is an AI chat participant: its identity plus the behavior
// configuration consulted by the response decision engine. The decision and
// memory core only reads entities; writes go through the entity service.
type AIEntity struct {
	// Core identification fields
	ID          string    `json:"id"`                     // Unique identifier
	Username    string    `json:"username"`               // Unique handle, used for mention detection
	DisplayName string    `json:"display_name,omitempty"` // Optional presentation name
	CreatedAt   time.Time `json:"created_at"`             // Creation timestamp
	UpdatedAt   time.Time `json:"updated_at"`             // Last update timestamp

	// Generation parameters
	SystemPrompt string  `json:"system_prompt,omitempty"` // Persona instructions fed to the model
	ModelName    string  `json:"model_name"`              // Provider model identifier
	Temperature  float64 `json:"temperature"`             // Sampling temperature, 0.0-2.0
	MaxTokens    int     `json:"max_tokens"`              // Output token cap

	// Response behavior
	RoomResponseStrategy         RoomStrategy         `json:"room_response_strategy"`         // Policy in room contexts
	ConversationResponseStrategy ConversationStrategy `json:"conversation_response_strategy"` // Policy in conversation contexts
	ResponseProbability          float64              `json:"response_probability"`           // Draw probability for RoomProbabilistic, 0.0-1.0
	CooldownSeconds              *int                 `json:"cooldown_seconds,omitempty"`     // Minimum seconds between responses per context; nil = unlimited

	// Presence
	Status        EntityStatus `json:"status"`                    // online or offline
	IsActive      bool         `json:"is_active"`                 // Soft enable/disable flag
	CurrentRoomID string       `json:"current_room_id,omitempty"` // Room the entity is present in, if any
}

// NewAIEntity creates an entity with the standard behavior defaults.
func NewAIEntity(username string) *AIEntity {
	now := time.Now().UTC()
	return &AIEntity{
		Username:                     username,
		ModelName:                    DefaultModelName,
		Temperature:                  DefaultTemperature,
		MaxTokens:                    DefaultMaxTokens,
		RoomResponseStrategy:         RoomMentionOnly,
		ConversationResponseStrategy: ConvOnQuestions,
		ResponseProbability:          DefaultResponseProbability,
		Status:                       EntityOnline,
		IsActive:                     true,
		CreatedAt:                    now,
		UpdatedAt:                    now,
	}
}

// Validate checks that the entity's configuration is internally consistent.
func (e *AIEntity) Validate() error {
	if e.Username == "" {
		return fmt.Errorf("username is required")
	}
	if e.Temperature < MinTemperature || e.Temperature > MaxTemperature {
		return fmt.Errorf("temperature %.2f out of range [%.1f, %.1f]", e.Temperature, MinTemperature, MaxTemperature)
	}
	if e.MaxTokens < MinMaxTokens || e.MaxTokens > MaxMaxTokens {
		return fmt.Errorf("max_tokens %d out of range [%d, %d]", e.MaxTokens, MinMaxTokens, MaxMaxTokens)
	}
	if e.ResponseProbability < 0 || e.ResponseProbability > 1 {
		return fmt.Errorf("response_probability %.2f out of range [0, 1]", e.ResponseProbability)
	}
	if e.CooldownSeconds != nil {
		if *e.CooldownSeconds < 0 || *e.CooldownSeconds > MaxCooldownSec {
			return fmt.Errorf("cooldown_seconds %d out of range [0, %d]", *e.CooldownSeconds, MaxCooldownSec)
		}
	}
	if !IsValidRoomStrategy(e.RoomResponseStrategy) {
		return fmt.Errorf("unknown room response strategy %q", e.RoomResponseStrategy)
	}
	if !IsValidConversationStrategy(e.ConversationResponseStrategy) {
		return fmt.Errorf("unknown conversation response strategy %q", e.ConversationResponseStrategy)
	}
	return nil
}

// Name returns the display name when set, falling back to the username.
func (e *AIEntity) Name() string {
	if e.DisplayName != "" {
		return e.DisplayName
	}
	return e.Username
}

package types

import "time"

// DecisionTrace records how a single should-respond evaluation resolved.
// Produced by the decision engine for logging and the ops dry-run endpoint.
type DecisionTrace struct {
	EntityID   string `json:"entity_id"`
	MessageID  string `json:"message_id,omitempty"`
	ContextKey string `json:"context_key"`
	Strategy   string `json:"strategy"` // Strategy that made the call, or "" when short-circuited earlier

	Mentioned  bool `json:"mentioned"`
	IsQuestion bool `json:"is_question"`
	OnCooldown bool `json:"on_cooldown"`
	OwnMessage bool `json:"own_message"`

	Respond     bool      `json:"respond"`
	Reason      string    `json:"reason"` // Short human-readable explanation
	EvaluatedAt time.Time `json:"evaluated_at"`
}

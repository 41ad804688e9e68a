package types

import "time"

// CooldownRecord tracks the last accepted response by an entity in one
// context. It is written only through the conditional mark-responded upsert.
type CooldownRecord struct {
	EntityID       string    `json:"entity_id"`
	ContextKey     string    `json:"context_key"` // ChatContext.Key() form, e.g. "room:17"
	LastResponseAt time.Time `json:"last_response_at"`
}

// Elapsed reports how long ago the last response happened, relative to now.
func (c *CooldownRecord) Elapsed(now time.Time) time.Duration {
	return now.Sub(c.LastResponseAt)
}

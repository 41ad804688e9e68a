package types

import "time"

// Memory is a unit of recall owned by one AI entity. The content payload
// shape depends on the layer: short_term carries the raw chunk messages,
// long_term carries an extracted fact, personality carries document text.
type Memory struct {
	// Core identification fields
	ID        string    `json:"id"`         // Unique identifier
	EntityID  string    `json:"entity_id"`  // Owning AI entity
	CreatedAt time.Time `json:"created_at"` // Creation timestamp

	// Scope
	UserIDs        []string `json:"user_ids,omitempty"`        // Participants the memory concerns
	ConversationID string   `json:"conversation_id,omitempty"` // Source conversation, empty for global memories

	// Content
	Summary  string                 `json:"summary"`            // Human-readable one-liner
	Content  map[string]interface{} `json:"content"`            // Structured payload, shape depends on type
	Keywords []string               `json:"keywords,omitempty"` // Extractor-derived keywords

	// Retrieval
	Embedding       []float32              `json:"embedding,omitempty"` // Vector for similarity search; absent on short_term
	ImportanceScore float64                `json:"importance_score"`    // 0.0-1.0, used as ranking tiebreak
	Metadata        map[string]interface{} `json:"metadata,omitempty"`  // Includes the type discriminator

	// Quality signals
	AccessCount    int        `json:"access_count"`               // Times returned to a prompt
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"` // Most recent retrieval
}

// Type returns the memory layer recorded in metadata, or "" when absent.
func (m *Memory) Type() MemoryType {
	if m.Metadata == nil {
		return ""
	}
	if t, ok := m.Metadata[MetaType].(string); ok {
		return MemoryType(t)
	}
	if t, ok := m.Metadata[MetaType].(MemoryType); ok {
		return t
	}
	return ""
}

// FactHash returns the dedup digest of a long-term memory, or "" when absent.
func (m *Memory) FactHash() string {
	if m.Metadata == nil {
		return ""
	}
	if h, ok := m.Metadata[MetaFactHash].(string); ok {
		return h
	}
	return ""
}

// ChunkIndex returns the chunk ordinal of a short-term or personality
// memory. JSON round-trips land numbers as float64, so both forms are
// accepted. Returns -1 when absent.
func (m *Memory) ChunkIndex() int {
	if m.Metadata == nil {
		return -1
	}
	switch v := m.Metadata[MetaChunkIndex].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return -1
}

// FactText returns the extracted fact text of a long-term memory, or ""
// for other layers.
func (m *Memory) FactText() string {
	if m.Content == nil {
		return ""
	}
	fact, ok := m.Content["fact"].(map[string]interface{})
	if !ok {
		return ""
	}
	text, _ := fact["text"].(string)
	return text
}

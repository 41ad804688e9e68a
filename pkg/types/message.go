package types

import (
	"fmt"
	"time"
)

// Message is one immutable chat message. Exactly one sender field and
// exactly one context field are set.
type Message struct {
	ID      string `json:"id"`
	Content string `json:"content"`

	// Sender: user XOR AI entity
	SenderUserID string `json:"sender_user_id,omitempty"`
	SenderAIID   string `json:"sender_ai_id,omitempty"`
	SenderName   string `json:"sender_name,omitempty"` // Display handle resolved at write time

	// Context: room XOR conversation
	RoomID         string `json:"room_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`

	Type        MessageType `json:"type"`
	SentAt      time.Time   `json:"sent_at"`
	InReplyToID string      `json:"in_reply_to_id,omitempty"`
}

// Validate enforces the sender and context exclusivity rules.
func (m *Message) Validate() error {
	if (m.SenderUserID == "") == (m.SenderAIID == "") {
		return fmt.Errorf("message requires exactly one sender (user or AI)")
	}
	if (m.RoomID == "") == (m.ConversationID == "") {
		return fmt.Errorf("message requires exactly one context (room or conversation)")
	}
	return nil
}

// SentBy reports whether the message was sent by the given AI entity.
func (m *Message) SentBy(entityID string) bool {
	return m.SenderAIID != "" && m.SenderAIID == entityID
}

// IsSystem reports whether this is a system notice rather than dialogue.
func (m *Message) IsSystem() bool {
	return m.Type == MessageTypeSystem
}

// Context returns the message's chat context tag.
func (m *Message) Context() ChatContext {
	return ChatContext{RoomID: m.RoomID, ConversationID: m.ConversationID}
}

// ChatContext tags the scope a message or cooldown lives in: a room or a
// conversation, never both. The zero value is invalid.
type ChatContext struct {
	RoomID         string `json:"room_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// RoomContext builds a room-scoped context tag.
func RoomContext(roomID string) ChatContext {
	return ChatContext{RoomID: roomID}
}

// ConversationContext builds a conversation-scoped context tag.
func ConversationContext(conversationID string) ChatContext {
	return ChatContext{ConversationID: conversationID}
}

// Validate rejects contexts that name neither or both scopes.
func (c ChatContext) Validate() error {
	if (c.RoomID == "") == (c.ConversationID == "") {
		return fmt.Errorf("context requires exactly one of room or conversation")
	}
	return nil
}

// IsRoom reports whether this is a room context.
func (c ChatContext) IsRoom() bool {
	return c.RoomID != ""
}

// Key returns the stable cooldown key for this context, e.g. "room:17" or
// "conv:42".
func (c ChatContext) Key() string {
	if c.RoomID != "" {
		return "room:" + c.RoomID
	}
	return "conv:" + c.ConversationID
}

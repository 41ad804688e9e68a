// Package types defines the core data structures for the Chorus AI chat
// participant system: entities, messages, memories, cooldowns, and the
// enumerations that configure response behavior.
package types

// MemoryType discriminates the three memory layers stored for an entity.
type MemoryType string

// Memory layer constants
const (
	// MemoryTypeShortTerm is a transient summary of a bounded recent
	// message window, pending consolidation into long-term facts.
	MemoryTypeShortTerm MemoryType = "short_term"

	// MemoryTypeLongTerm is a durable, deduplicated, embedded fact
	// retrievable by similarity search.
	MemoryTypeLongTerm MemoryType = "long_term"

	// MemoryTypePersonality is background knowledge uploaded from persona
	// documents, global to the entity.
	MemoryTypePersonality MemoryType = "personality"
)

// ValidMemoryTypes is a slice of all valid memory types for validation.
var ValidMemoryTypes = []MemoryType{
	MemoryTypeShortTerm,
	MemoryTypeLongTerm,
	MemoryTypePersonality,
}

// IsValidMemoryType checks if the given value is a known memory type.
func IsValidMemoryType(t MemoryType) bool {
	for _, valid := range ValidMemoryTypes {
		if t == valid {
			return true
		}
	}
	return false
}

// RoomStrategy selects how an entity decides to respond in room contexts.
type RoomStrategy string

// Room response strategies
const (
	// RoomNoResponse never responds in rooms.
	RoomNoResponse RoomStrategy = "room_no_response"

	// RoomMentionOnly responds only when the entity's username appears in
	// the message content.
	RoomMentionOnly RoomStrategy = "room_mention_only"

	// RoomProbabilistic responds with probability 1.0 when mentioned,
	// otherwise with the entity's configured response probability.
	RoomProbabilistic RoomStrategy = "room_probabilistic"

	// RoomActive responds to every substantive message; very short
	// messages are ignored unless the entity is mentioned.
	RoomActive RoomStrategy = "room_active"
)

// ValidRoomStrategies is a slice of all valid room strategies for validation.
var ValidRoomStrategies = []RoomStrategy{
	RoomNoResponse,
	RoomMentionOnly,
	RoomProbabilistic,
	RoomActive,
}

// IsValidRoomStrategy checks if the given value is a known room strategy.
func IsValidRoomStrategy(s RoomStrategy) bool {
	for _, valid := range ValidRoomStrategies {
		if s == valid {
			return true
		}
	}
	return false
}

// ConversationStrategy selects how an entity decides to respond in private
// or group conversations.
type ConversationStrategy string

// Conversation response strategies
const (
	// ConvNoResponse never responds in conversations.
	ConvNoResponse ConversationStrategy = "conv_no_response"

	// ConvEveryMessage responds to every message.
	ConvEveryMessage ConversationStrategy = "conv_every_message"

	// ConvOnQuestions responds only to messages classified as questions.
	ConvOnQuestions ConversationStrategy = "conv_on_questions"

	// ConvSmart responds when mentioned or when the message is a question.
	ConvSmart ConversationStrategy = "conv_smart"
)

// ValidConversationStrategies is a slice of all valid conversation
// strategies for validation.
var ValidConversationStrategies = []ConversationStrategy{
	ConvNoResponse,
	ConvEveryMessage,
	ConvOnQuestions,
	ConvSmart,
}

// IsValidConversationStrategy checks if the given value is a known
// conversation strategy.
func IsValidConversationStrategy(s ConversationStrategy) bool {
	for _, valid := range ValidConversationStrategies {
		if s == valid {
			return true
		}
	}
	return false
}

// EntityStatus represents an entity's presence state.
type EntityStatus string

// Entity presence constants
const (
	EntityOnline  EntityStatus = "online"
	EntityOffline EntityStatus = "offline"
)

// MessageType distinguishes user dialogue from system notices.
type MessageType string

// Message type constants. System messages are excluded from memory
// consolidation windows.
const (
	MessageTypeText   MessageType = "text"
	MessageTypeSystem MessageType = "system"
)

// Metadata keys used in Memory.Metadata.
const (
	// MetaType holds the MemoryType discriminator.
	MetaType = "type"

	// MetaFactHash holds the normalized-content digest used to deduplicate
	// long-term facts per entity.
	MetaFactHash = "fact_hash"

	// MetaChunkIndex holds the zero-based index of a short-term or
	// personality chunk.
	MetaChunkIndex = "chunk_index"

	// MetaMessageRange holds the "start-end" message index range covered
	// by a short-term chunk.
	MetaMessageRange = "message_range"

	// MetaCategory holds the persona category of a personality memory.
	MetaCategory = "category"

	// MetaTotalChunks holds the chunk count of a personality upload.
	MetaTotalChunks = "total_chunks"
)

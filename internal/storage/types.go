package storage

import (
	"errors"

	"github.com/chorus-chat/chorus/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicate indicates a uniqueness violation, e.g. an entity
	// username that is already taken.
	ErrDuplicate = errors.New("duplicate resource")
)

// SearchOptions narrows vector and keyword search. All fields are optional;
// the entity scope is a required argument on the search calls themselves.
type SearchOptions struct {
	// ConversationID restricts results to one conversation.
	ConversationID string

	// ExcludeConversationID drops memories from the given conversation.
	// Memories with no conversation at all are kept (NULL-safe).
	ExcludeConversationID string

	// UserID restricts results to memories concerning the given user.
	UserID string

	// MemoryType restricts results to one memory layer.
	MemoryType types.MemoryType

	// Limit caps the result count. Normalize applies the default.
	Limit int
}

// Default and maximum result caps for search calls.
const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 100
)

// Normalize applies the default and maximum limit.
func (o *SearchOptions) Normalize() {
	if o.Limit < 1 {
		o.Limit = DefaultSearchLimit
	}
	if o.Limit > MaxSearchLimit {
		o.Limit = MaxSearchLimit
	}
}

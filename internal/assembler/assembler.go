// Package assembler builds the LLM-ready context for a reply: the recent
// message window, the retrieved memory digest, and the composed system
// prompt. The entity is a conversation participant, not an assistant, so
// every history entry goes in with role "user" and a sender label; the
// persona lives entirely in the system prompt.
package assembler

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/chorus-chat/chorus/internal/llm"
	"github.com/chorus-chat/chorus/internal/memory"
	"github.com/chorus-chat/chorus/pkg/types"
)

// DefaultMaxMessages bounds the recent history window.
const DefaultMaxMessages = 20

// HistoryProvider supplies the bounded recent message window.
type HistoryProvider interface {
	RecentHistory(ctx context.Context, chatCtx types.ChatContext, limit int) ([]*types.Message, error)
}

// Retriever selects memories for prompt injection.
type Retriever interface {
	RetrieveForPrompt(ctx context.Context, entityID, userID, conversationID, query string) (*memory.TierResult, error)
}

// AccessTracker records that a memory was surfaced to a prompt.
type AccessTracker interface {
	IncrementAccessCount(ctx context.Context, id string) error
}

// ContextRequest describes one context assembly. Exactly one of RoomID and
// ConversationID must be set.
type ContextRequest struct {
	Entity         *types.AIEntity
	RoomID         string
	ConversationID string

	// UserID scopes memory retrieval. Empty means no personalized
	// memories; rooms usually leave it empty.
	UserID string

	// IncludeMemories enables digest retrieval when a user is in scope.
	IncludeMemories bool

	// MaxMessages overrides the history window cap when positive.
	MaxMessages int
}

// AssembledContext is the generation-ready bundle.
type AssembledContext struct {
	// Messages is the recent window, oldest first, all role "user".
	Messages []llm.ChatMessage

	// MemoryDigest is the rendered memory sections, empty when retrieval
	// was skipped, failed, or found nothing.
	MemoryDigest string

	// SystemPrompt is the entity prompt, digest, and response instructions
	// composed in final form.
	SystemPrompt string
}

// Assembler builds contexts from stored history and retrieved memories.
type Assembler struct {
	messages    HistoryProvider
	memories    AccessTracker
	retriever   Retriever
	maxMessages int
}

// NewAssembler creates a context assembler. maxMessages <= 0 takes the
// default window of 20.
func NewAssembler(messages HistoryProvider, memories AccessTracker, retriever Retriever, maxMessages int) *Assembler {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &Assembler{
		messages:    messages,
		memories:    memories,
		retriever:   retriever,
		maxMessages: maxMessages,
	}
}

// BuildFullContext assembles the message window and, when enabled and a user
// is in scope, the memory digest. Retrieval failure degrades to a context
// without memories; the reply path never fails because recall did.
func (a *Assembler) BuildFullContext(ctx context.Context, req ContextRequest) (*AssembledContext, error) {
	if req.Entity == nil {
		return nil, fmt.Errorf("entity is required")
	}
	chatCtx := types.ChatContext{RoomID: req.RoomID, ConversationID: req.ConversationID}
	if err := chatCtx.Validate(); err != nil {
		return nil, err
	}

	limit := req.MaxMessages
	if limit <= 0 {
		limit = a.maxMessages
	}
	history, err := a.messages.RecentHistory(ctx, chatCtx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent history: %w", err)
	}

	msgs := make([]llm.ChatMessage, 0, len(history))
	for _, m := range history {
		msgs = append(msgs, llm.ChatMessage{
			Role:    "user",
			Content: senderLabel(m, req.Entity) + ": " + m.Content,
		})
	}

	digest := ""
	if req.IncludeMemories && req.UserID != "" && len(msgs) > 0 && a.retriever != nil {
		// The newest message is the retrieval query.
		query := msgs[len(msgs)-1].Content
		result, err := a.retriever.RetrieveForPrompt(ctx, req.Entity.ID, req.UserID, req.ConversationID, query)
		if err != nil {
			log.Printf("assembler: memory retrieval failed for entity %s: %v", req.Entity.ID, err)
		} else {
			a.markAccessed(ctx, result)
			digest = FormatMemoryDigest(result)
		}
	}

	return &AssembledContext{
		Messages:     msgs,
		MemoryDigest: digest,
		SystemPrompt: ComposeSystemPrompt(req.Entity.SystemPrompt, digest, req.Entity.Username),
	}, nil
}

// senderLabel names the sender the way the entity should see it: itself as
// "You", everyone else by display name.
func senderLabel(m *types.Message, entity *types.AIEntity) string {
	if m.SentBy(entity.ID) {
		return "You"
	}
	if m.SenderName != "" {
		return m.SenderName
	}
	return "Unknown"
}

// markAccessed bumps access tracking for every retrieved memory. Failures are
// logged and ignored; tracking is a quality signal, not a dependency.
func (a *Assembler) markAccessed(ctx context.Context, result *memory.TierResult) {
	if a.memories == nil || result == nil {
		return
	}
	for _, m := range result.All() {
		if err := a.memories.IncrementAccessCount(ctx, m.ID); err != nil {
			log.Printf("assembler: access tracking failed for memory %s: %v", m.ID, err)
		}
	}
}

// FormatMemoryDigest renders retrieved memories as markdown sections with
// usage instructions, grouped by layer. Returns "" for an empty result.
func FormatMemoryDigest(result *memory.TierResult) string {
	if result == nil || result.Empty() {
		return ""
	}

	var lines []string
	lines = append(lines,
		"# YOUR MEMORY LAYERS",
		"Use these memories to personalize your responses and maintain conversation continuity:",
		"")

	if len(result.ShortTerm) > 0 {
		lines = append(lines,
			"## Recent Context (this conversation):",
			"Use this for immediate conversation flow and continuity. Reference recent topics naturally.")
		for _, m := range result.ShortTerm {
			lines = append(lines, "- "+m.Summary)
		}
		lines = append(lines, "")
	}

	if len(result.LongTerm) > 0 {
		lines = append(lines,
			"## Past Interactions:",
			"Draw on these when relevant to show you remember previous conversations. Don't force references, but acknowledge shared history when appropriate.")
		for _, m := range result.LongTerm {
			lines = append(lines, "- "+m.Summary)
		}
		lines = append(lines, "")
	}

	if len(result.Personality) > 0 {
		lines = append(lines,
			"## Your Core Knowledge & Perspective:",
			"These define your foundational understanding and worldview. Let these inform your responses naturally without explicitly citing them.")
		for _, m := range result.Personality {
			lines = append(lines, "- "+m.Summary)
		}
	}

	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

// ComposeSystemPrompt builds the final system prompt: persona, optional
// memory digest, and the response instruction that forbids name-prefix
// parroting.
func ComposeSystemPrompt(basePrompt, memoryDigest, username string) string {
	prompt := strings.TrimSpace(basePrompt)
	if memoryDigest != "" {
		prompt = prompt + "\n\n" + memoryDigest
	}
	return prompt + "\n\n" + fmt.Sprintf(
		"IMPORTANT: You respond directly as part of the conversation.\nNEVER begin your responses with your name '%s:' or similar prefix formats.\nRespond naturally and directly.",
		username)
}

package llm

import (
	"context"
	"errors"
)

// ErrProviderFailure marks any transport, status, or decode failure from an
// LLM provider. Callers branch on it with errors.Is; a failure is never the
// same thing as an empty completion.
var ErrProviderFailure = errors.New("llm provider failure")

// ChatMessage is a single turn handed to a ChatGenerator.
// Role is "user" or "assistant"; system instructions travel separately.
type ChatMessage struct {
	Role    string
	Content string
}

// ChatGenerator is the interface for multi-turn chat completion.
// Generate returns the assistant text for the given history and system prompt.
// An error always wraps ErrProviderFailure (or ErrCircuitOpen); empty output
// with a nil error is a valid, distinct outcome.
type ChatGenerator interface {
	Generate(ctx context.Context, messages []ChatMessage, systemPrompt string, temperature float64, maxTokens int) (string, error)
	GetModel() string
}

// EmbeddingGenerator is the interface for generating vector embeddings.
// Vector dimensionality is fixed process-wide by the configured model.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	GetModel() string
}

// KeywordExtractor extracts salient terms from text for keyword search.
type KeywordExtractor interface {
	ExtractKeywords(ctx context.Context, text string, max int, language string) ([]string, error)
}

// Chunker splits long text into overlapping pieces for archival consolidation
// and personality uploads. Sizes are in estimated tokens.
type Chunker interface {
	Split(text string, chunkSize, overlap int) []string
}

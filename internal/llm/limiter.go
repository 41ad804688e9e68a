package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitedChatGenerator throttles an underlying ChatGenerator to a
// sustained requests-per-second rate. Wait blocks until a slot is free or the
// context is done, so provider quotas are respected without dropping work.
type RateLimitedChatGenerator struct {
	inner   ChatGenerator
	limiter *rate.Limiter
}

// NewRateLimitedChatGenerator wraps gen with a limiter allowing reqPerSec
// sustained requests and a burst of one.
func NewRateLimitedChatGenerator(gen ChatGenerator, reqPerSec float64) *RateLimitedChatGenerator {
	return &RateLimitedChatGenerator{
		inner:   gen,
		limiter: rate.NewLimiter(rate.Limit(reqPerSec), 1),
	}
}

// Generate waits for a rate limit slot, then delegates to the inner client.
func (g *RateLimitedChatGenerator) Generate(ctx context.Context, messages []ChatMessage, systemPrompt string, temperature float64, maxTokens int) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("chat rate limiter: %w", err)
	}
	return g.inner.Generate(ctx, messages, systemPrompt, temperature, maxTokens)
}

// GetModel returns the inner client's model name.
func (g *RateLimitedChatGenerator) GetModel() string {
	return g.inner.GetModel()
}

// RateLimitedEmbeddingGenerator throttles an underlying EmbeddingGenerator.
// A batch call consumes one slot regardless of batch size.
type RateLimitedEmbeddingGenerator struct {
	inner   EmbeddingGenerator
	limiter *rate.Limiter
}

// NewRateLimitedEmbeddingGenerator wraps gen with a limiter allowing reqPerSec
// sustained requests and a burst of one.
func NewRateLimitedEmbeddingGenerator(gen EmbeddingGenerator, reqPerSec float64) *RateLimitedEmbeddingGenerator {
	return &RateLimitedEmbeddingGenerator{
		inner:   gen,
		limiter: rate.NewLimiter(rate.Limit(reqPerSec), 1),
	}
}

// Embed waits for a rate limit slot, then delegates to the inner client.
func (g *RateLimitedEmbeddingGenerator) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embedding rate limiter: %w", err)
	}
	return g.inner.Embed(ctx, text)
}

// EmbedBatch waits for a rate limit slot, then delegates to the inner client.
func (g *RateLimitedEmbeddingGenerator) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embedding rate limiter: %w", err)
	}
	return g.inner.EmbedBatch(ctx, texts)
}

// GetModel returns the inner client's model name.
func (g *RateLimitedEmbeddingGenerator) GetModel() string {
	return g.inner.GetModel()
}

// Compile-time assertions.
var (
	_ ChatGenerator      = (*RateLimitedChatGenerator)(nil)
	_ EmbeddingGenerator = (*RateLimitedEmbeddingGenerator)(nil)
)

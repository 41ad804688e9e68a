package llm

import (
	"fmt"

	"github.com/chorus-chat/chorus/internal/config"
)

// NewChatGenerator creates the chat client for the configured provider,
// wrapped with the provider rate limiter when one is configured.
func NewChatGenerator(cfg config.LLMConfig) (ChatGenerator, error) {
	var gen ChatGenerator
	switch cfg.Provider {
	case "openai":
		gen = NewOpenAIClient(OpenAIConfig{APIKey: cfg.OpenAIAPIKey, Model: cfg.OpenAIModel, BaseURL: cfg.OpenAIBaseURL})
	case "anthropic":
		gen = NewAnthropicClient(AnthropicConfig{APIKey: cfg.AnthropicAPIKey, Model: cfg.AnthropicModel})
	case "ollama", "":
		gen = NewOllamaClient(OllamaConfig{BaseURL: cfg.OllamaURL, Model: cfg.OllamaModel})
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
	if cfg.RequestsPerSecond > 0 {
		gen = NewRateLimitedChatGenerator(gen, cfg.RequestsPerSecond)
	}
	return gen, nil
}

// NewEmbeddingGenerator creates the embedding client for the configured
// provider. Anthropic has no embeddings endpoint, so an anthropic chat
// provider gets its embeddings from OpenAI when a key is set and from Ollama
// otherwise.
func NewEmbeddingGenerator(cfg config.LLMConfig) (EmbeddingGenerator, error) {
	var gen EmbeddingGenerator
	switch cfg.Provider {
	case "openai":
		gen = NewOpenAIEmbeddingClient(OpenAIEmbeddingConfig{APIKey: cfg.OpenAIAPIKey, Model: cfg.OpenAIEmbeddingModel, BaseURL: cfg.OpenAIBaseURL})
	case "anthropic":
		if cfg.OpenAIAPIKey != "" {
			gen = NewOpenAIEmbeddingClient(OpenAIEmbeddingConfig{APIKey: cfg.OpenAIAPIKey, Model: cfg.OpenAIEmbeddingModel, BaseURL: cfg.OpenAIBaseURL})
		} else {
			gen = NewOllamaClient(OllamaConfig{BaseURL: cfg.OllamaURL, Model: cfg.OllamaEmbeddingModel})
		}
	case "ollama", "":
		gen = NewOllamaClient(OllamaConfig{BaseURL: cfg.OllamaURL, Model: cfg.OllamaEmbeddingModel})
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
	if cfg.RequestsPerSecond > 0 {
		gen = NewRateLimitedEmbeddingGenerator(gen, cfg.RequestsPerSecond)
	}
	return gen, nil
}

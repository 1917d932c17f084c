package ai

import (
	"fmt"

	"go.uber.org/zap"
)

// Config holds AI provider configuration
type Config struct {
	Provider ProviderType // "openai", "ollama" or "auto"

	// OpenAI config
	OpenAIAPIKey         string
	OpenAIBaseURL        string
	OpenAIChatModel      string
	OpenAIEmbeddingModel string

	// Ollama config
	OllamaBaseURL    string // e.g., "http://localhost:11434"
	OllamaModel      string // e.g., "llama3", "mistral"
	OllamaEmbedModel string // e.g., "nomic-embed-text"

	// Dimensions is the embedding dimension shared by all providers.
	Dimensions int
}

// NewService creates a Service based on the config. This is the factory
// function - switch AI provider by changing config.Provider. "auto" wires
// OpenAI as primary with Ollama fallback when an API key is present, Ollama
// alone otherwise.
func NewService(cfg Config, logger *zap.Logger) (Service, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		return NewOpenAIService(OpenAIConfig{
			APIKey:         cfg.OpenAIAPIKey,
			BaseURL:        cfg.OpenAIBaseURL,
			ChatModel:      cfg.OpenAIChatModel,
			EmbeddingModel: cfg.OpenAIEmbeddingModel,
			Dimensions:     cfg.Dimensions,
		})

	case ProviderOllama:
		return NewOllamaService(cfg.OllamaBaseURL, cfg.OllamaModel, cfg.OllamaEmbedModel, cfg.Dimensions), nil

	case ProviderAuto, "":
		ollama := NewOllamaService(cfg.OllamaBaseURL, cfg.OllamaModel, cfg.OllamaEmbedModel, cfg.Dimensions)
		if cfg.OpenAIAPIKey == "" {
			return ollama, nil
		}
		primary, err := NewOpenAIService(OpenAIConfig{
			APIKey:         cfg.OpenAIAPIKey,
			BaseURL:        cfg.OpenAIBaseURL,
			ChatModel:      cfg.OpenAIChatModel,
			EmbeddingModel: cfg.OpenAIEmbeddingModel,
			Dimensions:     cfg.Dimensions,
		})
		if err != nil {
			return nil, err
		}
		return NewFallbackService(primary, ollama, logger), nil

	default:
		return nil, fmt.Errorf("unsupported AI provider: %s", cfg.Provider)
	}
}

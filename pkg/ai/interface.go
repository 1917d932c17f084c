package ai

import "context"

// Embedder computes a fixed-dimension vector for a text. The dimension is
// fixed per deployment by the configured embedding model; all stored vectors
// used in one similarity computation must share it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimensions returns the vector dimension of the configured model.
	Dimensions() int
}

// Summarizer produces a short free-text summary of a message.
// Implement this interface to add new AI providers (OpenAI, Ollama, etc.)
type Summarizer interface {
	Summarize(ctx context.Context, subject, body string) (string, error)
}

// Service combines both enrichment capabilities behind one provider.
type Service interface {
	Embedder
	Summarizer
}

// ProviderType represents the AI provider type
type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai"
	ProviderOllama ProviderType = "ollama"
	ProviderAuto   ProviderType = "auto"
)

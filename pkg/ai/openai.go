package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIService implements Service using the OpenAI API (or any
// OpenAI-compatible endpoint via BaseURL).
type OpenAIService struct {
	client         *openai.Client
	chatModel      string
	embeddingModel string
	dimensions     int
}

// OpenAIConfig holds OpenAI provider configuration.
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	EmbeddingModel string
	Dimensions     int
}

// NewOpenAIService creates a new OpenAI-backed Service.
func NewOpenAIService(cfg OpenAIConfig) (*OpenAIService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required for OpenAI provider")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	chatModel := cfg.ChatModel
	if chatModel == "" {
		chatModel = openai.GPT4oMini
	}
	embeddingModel := cfg.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = string(openai.SmallEmbedding3)
	}
	dimensions := cfg.Dimensions
	if dimensions <= 0 {
		dimensions = 768
	}

	return &OpenAIService{
		client:         openai.NewClientWithConfig(clientConfig),
		chatModel:      chatModel,
		embeddingModel: embeddingModel,
		dimensions:     dimensions,
	}, nil
}

func (s *OpenAIService) Dimensions() int {
	return s.dimensions
}

func (s *OpenAIService) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := s.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      openai.EmbeddingModel(s.embeddingModel),
		Dimensions: s.dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding request failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("empty embedding result")
	}
	return resp.Data[0].Embedding, nil
}

func (s *OpenAIService) Summarize(ctx context.Context, subject, body string) (string, error) {
	prompt := fmt.Sprintf(`Summarize the following message in at most two sentences.
State only the main point and any concrete action item or deadline. No commentary.

Subject: %s

%s`, subject, body)

	resp, err := s.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: s.chatModel,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			MaxTokens:   150,
			Temperature: 0.3,
		},
	)
	if err != nil {
		return "", fmt.Errorf("openai summarization failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty completion result")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

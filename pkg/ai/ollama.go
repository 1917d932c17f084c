package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// OllamaService implements Service using a local Ollama instance.
type OllamaService struct {
	baseURL    string
	model      string
	embedModel string
	dimensions int
	httpClient *http.Client
}

// NewOllamaService creates a new Ollama service
func NewOllamaService(baseURL, model, embedModel string, dimensions int) *OllamaService {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3"
	}
	if embedModel == "" {
		embedModel = "nomic-embed-text"
	}
	if dimensions <= 0 {
		dimensions = 768
	}
	return &OllamaService{
		baseURL:    baseURL,
		model:      model,
		embedModel: embedModel,
		dimensions: dimensions,
		httpClient: &http.Client{},
	}
}

func (o *OllamaService) Dimensions() int {
	return o.dimensions
}

// Embed implements Embedder via Ollama's /api/embeddings endpoint.
func (o *OllamaService) Embed(ctx context.Context, text string) ([]float32, error) {
	payload := map[string]interface{}{
		"model":  o.embedModel,
		"prompt": text,
	}

	respBody, err := o.post(ctx, "/api/embeddings", payload)
	if err != nil {
		return nil, err
	}

	var result struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("ollama returned an empty embedding")
	}

	vec := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

// Summarize implements Summarizer via Ollama's /api/generate endpoint.
func (o *OllamaService) Summarize(ctx context.Context, subject, body string) (string, error) {
	prompt := fmt.Sprintf(`Summarize the following message in at most two sentences.
State only the main point and any concrete action item or deadline. No commentary.

Subject: %s

%s

SUMMARY:`, subject, body)

	payload := map[string]interface{}{
		"model":  o.model,
		"prompt": prompt,
		"stream": false,
		"options": map[string]interface{}{
			"temperature": 0.3,
			"num_predict": 100,
		},
	}

	respBody, err := o.post(ctx, "/api/generate", payload)
	if err != nil {
		return "", err
	}

	var result struct {
		Response string `json:"response"`
		Done     bool   `json:"done"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	return strings.TrimSpace(result.Response), nil
}

func (o *OllamaService) post(ctx context.Context, path string, payload map[string]interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

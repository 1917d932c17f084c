package ai

import (
	"context"
	"fmt"
	"net"
	"strings"

	"go.uber.org/zap"
)

// FallbackService routes between the hosted provider and a local Ollama
// instance. OpenAI is tried first for both embeddings and summaries; on
// connection or quota errors the call falls back to Ollama when available.
type FallbackService struct {
	primary Service
	ollama  *OllamaService
	logger  *zap.Logger
}

// NewFallbackService creates a new fallback service with both providers
func NewFallbackService(primary Service, ollama *OllamaService, logger *zap.Logger) *FallbackService {
	return &FallbackService{
		primary: primary,
		ollama:  ollama,
		logger:  logger,
	}
}

// isConnectionError checks if the error is a network/connection error
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	if _, ok := err.(net.Error); ok {
		return true
	}

	errStr := strings.ToLower(err.Error())
	connectionIndicators := []string{
		"connection refused",
		"no such host",
		"network is unreachable",
		"connection reset",
		"timeout",
		"dial tcp",
		"eof",
	}
	for _, indicator := range connectionIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}

	return false
}

// isQuotaError checks if the error indicates API quota exhaustion (429)
func isQuotaError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	quotaIndicators := []string{
		"429",
		"quota",
		"rate limit",
		"too many requests",
		"resource exhausted",
	}
	for _, indicator := range quotaIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}

	return false
}

func (f *FallbackService) Dimensions() int {
	if f.primary != nil {
		return f.primary.Dimensions()
	}
	return f.ollama.Dimensions()
}

// Embed tries the primary provider first, falls back to Ollama on connection
// or quota errors. Note that the two providers must be configured with the
// same vector dimension for fallback embeddings to be comparable.
func (f *FallbackService) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.primary != nil {
		vec, err := f.primary.Embed(ctx, text)
		if err == nil {
			return vec, nil
		}
		if f.ollama == nil {
			return nil, err
		}
		if isConnectionError(err) || isQuotaError(err) {
			f.logger.Warn("primary embedding provider unavailable, falling back to ollama", zap.Error(err))
		} else {
			f.logger.Warn("primary embedding provider error, falling back to ollama", zap.Error(err))
		}
	}

	if f.ollama != nil {
		return f.ollama.Embed(ctx, text)
	}

	return nil, fmt.Errorf("no AI provider available for embeddings")
}

// Summarize tries the primary provider first, falls back to Ollama.
func (f *FallbackService) Summarize(ctx context.Context, subject, body string) (string, error) {
	if f.primary != nil {
		result, err := f.primary.Summarize(ctx, subject, body)
		if err == nil {
			return result, nil
		}
		if f.ollama == nil {
			return "", err
		}
		if isQuotaError(err) {
			f.logger.Warn("primary provider quota exhausted, falling back to ollama", zap.Error(err))
		} else {
			f.logger.Warn("primary provider error, falling back to ollama", zap.Error(err))
		}
	}

	if f.ollama != nil {
		return f.ollama.Summarize(ctx, subject, body)
	}

	return "", fmt.Errorf("no AI provider available for summarization")
}

package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	messagedomain "clientmail-backend/internal/message/domain"
	"clientmail-backend/internal/message/repository"
	"clientmail-backend/pkg/ai"

	"go.uber.org/zap"
)

const (
	// bodyCharBudget caps the body text sent to the embedding provider so a
	// long message cannot blow the model's token limit.
	bodyCharBudget = 6000
	truncationMark = "... [truncated]"

	defaultEmbedBatchSize = 10
	defaultBatchDelay     = 500 * time.Millisecond
	defaultSimilarLimit   = 10
)

// SimilarOptions narrows a semantic search to the same address and date
// predicates the deterministic matcher uses.
type SimilarOptions struct {
	Domains []string
	Emails  []string
	Start   time.Time
	End     time.Time
	Limit   int
}

// EmbeddingPipeline computes vector embeddings for stored messages and runs
// cosine-similarity search over them. Embedding generation is an idempotent
// catch-up pass driven by the processed_for_vector flag: a failed message is
// simply picked up again on the next run.
type EmbeddingPipeline struct {
	repo       repository.MessageRepository
	embedder   ai.Embedder
	logger     *zap.Logger
	batchSize  int
	batchDelay time.Duration
}

// NewEmbeddingPipeline creates a new EmbeddingPipeline.
func NewEmbeddingPipeline(repo repository.MessageRepository, embedder ai.Embedder, logger *zap.Logger) *EmbeddingPipeline {
	return &EmbeddingPipeline{
		repo:       repo,
		embedder:   embedder,
		logger:     logger,
		batchSize:  defaultEmbedBatchSize,
		batchDelay: defaultBatchDelay,
	}
}

// SetBatching overrides batch size and inter-batch delay (used by tests and
// by deployments with stricter provider rate limits).
func (p *EmbeddingPipeline) SetBatching(size int, delay time.Duration) {
	if size > 0 {
		p.batchSize = size
	}
	p.batchDelay = delay
}

// GenerateEmbeddings embeds up to limit unprocessed messages in fixed-size
// batches with a short delay between batches. A per-message failure is logged
// and skipped; the message stays unprocessed and is retried on the next run.
// Returns the number of messages successfully embedded.
func (p *EmbeddingPipeline) GenerateEmbeddings(ctx context.Context, limit int) (int, error) {
	if p.embedder == nil {
		return 0, fmt.Errorf("no embedding provider configured")
	}

	messages, err := p.repo.FindUnprocessed(limit)
	if err != nil {
		return 0, fmt.Errorf("failed to load unprocessed messages: %w", err)
	}
	if len(messages) == 0 {
		return 0, nil
	}

	processed := 0
	for start := 0; start < len(messages); start += p.batchSize {
		end := start + p.batchSize
		if end > len(messages) {
			end = len(messages)
		}

		for _, msg := range messages[start:end] {
			vec, err := p.embedder.Embed(ctx, EmbeddingText(msg))
			if err != nil {
				p.logger.Warn("failed to embed message, will retry on next run",
					zap.String("message_id", msg.ID),
					zap.Error(err))
				continue
			}
			if err := p.repo.UpdateEmbedding(msg.ID, vec); err != nil {
				p.logger.Error("failed to store embedding",
					zap.String("message_id", msg.ID),
					zap.Error(err))
				continue
			}
			processed++
		}

		if end < len(messages) && p.batchDelay > 0 {
			time.Sleep(p.batchDelay)
		}
	}

	p.logger.Info("embedding pass finished",
		zap.Int("candidates", len(messages)),
		zap.Int("embedded", processed))
	return processed, nil
}

// EmbedMessage embeds a single message and stores the vector. Used by the
// per-client processing job, which walks an explicit message set instead of
// the unprocessed backlog.
func (p *EmbeddingPipeline) EmbedMessage(ctx context.Context, msg *messagedomain.Message) error {
	if p.embedder == nil {
		return fmt.Errorf("no embedding provider configured")
	}
	vec, err := p.embedder.Embed(ctx, EmbeddingText(msg))
	if err != nil {
		return fmt.Errorf("failed to embed message %s: %w", msg.ID, err)
	}
	if err := p.repo.UpdateEmbedding(msg.ID, vec); err != nil {
		return fmt.Errorf("failed to store embedding for %s: %w", msg.ID, err)
	}
	return nil
}

// FindSimilar embeds the query and ranks candidate messages by cosine
// similarity against their stored vectors. Callers must tolerate an empty
// result (provider outage) by falling back to the keyword path.
func (p *EmbeddingPipeline) FindSimilar(ctx context.Context, query string, opts SimilarOptions) ([]*messagedomain.Message, error) {
	query = strings.TrimSpace(query)
	if query == "" || p.embedder == nil {
		return []*messagedomain.Message{}, nil
	}

	queryVec, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	candidates, err := p.repo.FindEmbedded(repository.RelevanceQuery{
		Domains: opts.Domains,
		Emails:  opts.Emails,
		Start:   opts.Start,
		End:     opts.End,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded messages: %w", err)
	}

	type scored struct {
		msg   *messagedomain.Message
		score float64
	}

	results := make([]scored, 0, len(candidates))
	for _, msg := range candidates {
		if msg.Embedding == nil {
			continue
		}
		results = append(results, scored{
			msg:   msg,
			score: CosineSimilarity(queryVec, msg.Embedding.Slice()),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultSimilarLimit
	}
	if limit > len(results) {
		limit = len(results)
	}

	out := make([]*messagedomain.Message, 0, limit)
	for _, r := range results[:limit] {
		out = append(out, r.msg)
	}
	return out, nil
}

// EmbeddingText builds the text sent to the embedding provider: subject,
// summary when present, and the body truncated to a fixed character budget.
func EmbeddingText(msg *messagedomain.Message) string {
	var b strings.Builder
	b.WriteString("Subject: ")
	b.WriteString(msg.Subject)
	if msg.Summary != nil && *msg.Summary != "" {
		b.WriteString("\n\nSummary: ")
		b.WriteString(*msg.Summary)
	}
	body := msg.Body
	if len(body) > bodyCharBudget {
		body = body[:bodyCharBudget] + truncationMark
	}
	b.WriteString("\n\nBody: ")
	b.WriteString(body)
	return b.String()
}

// CosineSimilarity calculates cosine similarity between two vectors. It is 0
// when the vectors differ in length or either has zero norm; this is a
// defensive default, not an error.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

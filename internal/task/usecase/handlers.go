package usecase

import (
	"context"
	"fmt"
	"time"

	messagedomain "clientmail-backend/internal/message/domain"
	"clientmail-backend/internal/task/domain"

	"go.uber.org/zap"
)

// run dispatches a task to its handler by parameter type.
func (q *Queue) run(ctx context.Context, task *domain.Task) (string, error) {
	switch p := task.Params.(type) {
	case domain.GenerateEmbeddingsParams:
		return q.generateEmbeddings(ctx, p)
	case domain.SummarizeMessagesParams:
		return q.summarizeMessages(ctx, p)
	case domain.ProcessNewMessagesParams:
		return q.processNewMessages(ctx, p)
	case domain.ProcessClientMessagesParams:
		return q.processClientMessages(ctx, task.ID, p)
	default:
		return "", fmt.Errorf("unknown task type %q", task.Type())
	}
}

func (q *Queue) generateEmbeddings(ctx context.Context, p domain.GenerateEmbeddingsParams) (string, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = defaultJobLimit
	}
	n, err := q.pipeline.GenerateEmbeddings(ctx, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("embedded %d messages", n), nil
}

func (q *Queue) summarizeMessages(ctx context.Context, p domain.SummarizeMessagesParams) (string, error) {
	if q.summarizer == nil {
		return "", fmt.Errorf("no summary provider configured")
	}
	limit := p.Limit
	if limit <= 0 {
		limit = defaultJobLimit
	}

	messages, err := q.messageRepo.FindWithoutSummary(limit)
	if err != nil {
		return "", fmt.Errorf("failed to load messages without summary: %w", err)
	}

	done := 0
	for _, msg := range messages {
		if err := q.summarizeOne(ctx, msg); err != nil {
			q.logger.Warn("failed to summarize message, will retry on next run",
				zap.String("message_id", msg.ID),
				zap.Error(err))
			continue
		}
		done++
	}
	return fmt.Sprintf("summarized %d of %d messages", done, len(messages)), nil
}

// processNewMessages is the post-fetch enrichment pass: summaries first so
// embeddings can include them, then embeddings.
func (q *Queue) processNewMessages(ctx context.Context, p domain.ProcessNewMessagesParams) (string, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = defaultJobLimit
	}

	summarized := 0
	if q.summarizer != nil {
		messages, err := q.messageRepo.FindWithoutSummary(limit)
		if err != nil {
			return "", fmt.Errorf("failed to load messages without summary: %w", err)
		}
		for _, msg := range messages {
			if err := q.summarizeOne(ctx, msg); err != nil {
				q.logger.Warn("failed to summarize message, will retry on next run",
					zap.String("message_id", msg.ID),
					zap.Error(err))
				continue
			}
			summarized++
		}
	}

	embedded, err := q.pipeline.GenerateEmbeddings(ctx, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("summarized %d, embedded %d messages", summarized, embedded), nil
}

// processClientMessages fetches a client's correspondence from the provider,
// mirrors it locally and enriches every message in fixed-size batches,
// reporting progress after the fetch and after each batch.
func (q *Queue) processClientMessages(ctx context.Context, taskID string, p domain.ProcessClientMessagesParams) (string, error) {
	if q.provider == nil {
		q.failProgress(taskID, "no mail provider configured")
		return "", fmt.Errorf("no mail provider configured")
	}

	fetchCtx, cancel := context.WithTimeout(ctx, q.providerTimeout)
	fetched, err := q.provider.FetchMessages(fetchCtx, messagedomain.AddressFilter{
		Domains: p.Domains,
		Emails:  p.Emails,
	}, p.Start, p.End, defaultProviderPage)
	cancel()
	if err != nil {
		q.failProgress(taskID, err.Error())
		return "", fmt.Errorf("provider fetch failed: %w", err)
	}

	for _, msg := range fetched {
		if _, err := q.messageRepo.InsertIfAbsent(msg); err != nil {
			q.logger.Error("failed to persist fetched message",
				zap.String("message_id", msg.ID),
				zap.Error(err))
		}
	}

	q.updateProgress(taskID, 10, len(fetched), 0)

	q.mu.Lock()
	batchSize := q.clientBatchSize
	delay := q.batchDelay
	q.mu.Unlock()

	batches := (len(fetched) + batchSize - 1) / batchSize
	processed := 0
	for b := 0; b < batches; b++ {
		start := b * batchSize
		end := start + batchSize
		if end > len(fetched) {
			end = len(fetched)
		}

		for _, msg := range fetched[start:end] {
			if err := q.enrichOne(ctx, msg); err != nil {
				q.logger.Warn("failed to enrich message",
					zap.String("message_id", msg.ID),
					zap.Error(err))
			}
			processed++
		}

		q.updateProgress(taskID, 10+90*(b+1)/batches, len(fetched), processed)

		if b+1 < batches && delay > 0 {
			time.Sleep(delay)
		}
	}

	q.completeProgress(taskID, len(fetched))
	return fmt.Sprintf("processed %d messages for client %s", len(fetched), p.ClientID), nil
}

// enrichOne summarizes then embeds a single message. Summary failures do not
// block the embedding; both are retried by later catch-up passes.
func (q *Queue) enrichOne(ctx context.Context, msg *messagedomain.Message) error {
	if q.summarizer != nil && (msg.Summary == nil || *msg.Summary == "") {
		if err := q.summarizeOne(ctx, msg); err != nil {
			q.logger.Warn("failed to summarize message",
				zap.String("message_id", msg.ID),
				zap.Error(err))
		}
	}
	return q.pipeline.EmbedMessage(ctx, msg)
}

func (q *Queue) summarizeOne(ctx context.Context, msg *messagedomain.Message) error {
	summary, err := q.summarizer.Summarize(ctx, msg.Subject, msg.Body)
	if err != nil {
		return err
	}
	if len(summary) > summaryCharCap {
		summary = summary[:summaryCharCap]
	}
	if err := q.messageRepo.UpdateSummary(msg.ID, summary); err != nil {
		return err
	}
	msg.Summary = &summary
	return nil
}

func (q *Queue) updateProgress(taskID string, percent, total, processed int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	p, ok := q.progress[taskID]
	if !ok {
		return
	}
	if percent > p.Progress {
		p.Progress = percent
	}
	p.Total = total
	p.Processed = processed
	p.UpdatedAt = time.Now()
}

func (q *Queue) completeProgress(taskID string, total int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	p, ok := q.progress[taskID]
	if !ok {
		return
	}
	p.Status = domain.TaskStatusCompleted
	p.Progress = 100
	p.Total = total
	p.Processed = total
	p.UpdatedAt = time.Now()
}

func (q *Queue) failProgress(taskID string, errMsg string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	p, ok := q.progress[taskID]
	if !ok {
		return
	}
	p.Status = domain.TaskStatusFailed
	p.Error = errMsg
	p.UpdatedAt = time.Now()
}

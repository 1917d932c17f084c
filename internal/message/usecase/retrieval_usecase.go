package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	messagedomain "clientmail-backend/internal/message/domain"
	"clientmail-backend/internal/message/repository"
	taskdomain "clientmail-backend/internal/task/domain"
	"clientmail-backend/pkg/mailaddr"

	"go.uber.org/zap"
)

const (
	defaultFetchLimit      = 50
	defaultProviderTimeout = 30 * time.Second
	defaultProviderPage    = 100
)

// TaskEnqueuer hands enrichment work to the background queue without blocking
// the retrieval path.
type TaskEnqueuer interface {
	Enqueue(params taskdomain.TaskParams) (string, error)
}

// FetchParams describes one retrieval request for a client's correspondence.
type FetchParams struct {
	Domains  []string
	Emails   []string
	Start    time.Time
	End      time.Time
	Query    string
	Semantic bool
	Limit    int
}

// FetchResult carries the merged message set plus provenance: whether the
// external provider contributed data and whether semantic ranking was
// actually applied.
type FetchResult struct {
	Messages     []*messagedomain.Message
	FromProvider bool
	SemanticUsed bool
}

// RetrievalOrchestrator is the entry point used by report generation. It
// combines locally stored messages, semantic search results and freshly
// fetched provider messages into one deduplicated, ordered collection, and
// triggers background enrichment for anything newly observed.
type RetrievalOrchestrator struct {
	repo            repository.MessageRepository
	pipeline        *EmbeddingPipeline
	provider        messagedomain.MailProvider
	queue           TaskEnqueuer
	logger          *zap.Logger
	providerTimeout time.Duration
	providerPage    int
}

// NewRetrievalOrchestrator creates a new RetrievalOrchestrator. Provider and
// queue may be nil; both paths then degrade to store-only behavior.
func NewRetrievalOrchestrator(
	repo repository.MessageRepository,
	pipeline *EmbeddingPipeline,
	provider messagedomain.MailProvider,
	queue TaskEnqueuer,
	logger *zap.Logger,
) *RetrievalOrchestrator {
	return &RetrievalOrchestrator{
		repo:            repo,
		pipeline:        pipeline,
		provider:        provider,
		queue:           queue,
		logger:          logger,
		providerTimeout: defaultProviderTimeout,
		providerPage:    defaultProviderPage,
	}
}

// SetProviderTimeout overrides the per-call provider timeout.
func (o *RetrievalOrchestrator) SetProviderTimeout(d time.Duration) {
	if d > 0 {
		o.providerTimeout = d
	}
}

// Fetch runs the full retrieval pass. Provider and embedding failures are
// expected operational conditions: they are logged and absorbed, and the
// caller still receives the best-effort store-backed result. Only invalid
// input or a store failure propagates.
func (o *RetrievalOrchestrator) Fetch(ctx context.Context, params FetchParams) (*FetchResult, error) {
	if !params.Start.IsZero() && !params.End.IsZero() && params.End.Before(params.Start) {
		return nil, fmt.Errorf("invalid date range: end %s before start %s",
			params.End.Format(time.RFC3339), params.Start.Format(time.RFC3339))
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultFetchLimit
	}

	domains := mailaddr.ExpandDomains(params.Domains, params.Emails)
	emails := make([]string, 0, len(params.Emails))
	for _, e := range params.Emails {
		emails = append(emails, mailaddr.NormalizeEmail(e))
	}

	// The deterministic matcher always runs; semantic ranking augments it
	// rather than replacing it, since the embedding provider can be down or
	// return nothing.
	keyword := ""
	if !params.Semantic {
		keyword = params.Query
	}
	stored, err := o.repo.SearchRelevant(repository.RelevanceQuery{
		Domains: domains,
		Emails:  emails,
		Start:   params.Start,
		End:     params.End,
		Keyword: keyword,
		Limit:   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("store query failed: %w", err)
	}

	semanticUsed := false
	base := stored
	if params.Semantic && params.Query != "" && o.pipeline != nil {
		similar, err := o.pipeline.FindSimilar(ctx, params.Query, SimilarOptions{
			Domains: domains,
			Emails:  emails,
			Start:   params.Start,
			End:     params.End,
			Limit:   limit,
		})
		if err != nil {
			o.logger.Warn("semantic search unavailable, using deterministic results", zap.Error(err))
		} else if len(similar) > 0 {
			base = similar
			semanticUsed = true
		}
	}

	fetched := o.fetchFromProvider(ctx, domains, emails, params.Start, params.End)
	fromProvider := len(fetched) > 0

	newMessages := o.persistNew(fetched)

	combined := MergeByID(base, fetched)
	if !semanticUsed {
		sort.SliceStable(combined, func(i, j int) bool {
			return combined[i].Date.After(combined[j].Date)
		})
	}
	if len(combined) > limit {
		combined = combined[:limit]
	}

	o.enqueueEnrichment(newMessages)

	return &FetchResult{
		Messages:     combined,
		FromProvider: fromProvider,
		SemanticUsed: semanticUsed,
	}, nil
}

// fetchFromProvider mirrors provider messages in range, best effort. A
// provider failure or timeout degrades to store-only results.
func (o *RetrievalOrchestrator) fetchFromProvider(ctx context.Context, domains, emails []string, start, end time.Time) []*messagedomain.Message {
	if o.provider == nil {
		return nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, o.providerTimeout)
	defer cancel()

	fetched, err := o.provider.FetchMessages(fetchCtx, messagedomain.AddressFilter{
		Domains: domains,
		Emails:  emails,
	}, start, end, o.providerPage)
	if err != nil {
		o.logger.Warn("mail provider unavailable, returning store-only results", zap.Error(err))
		return nil
	}

	// Sort newest first so merged provider messages keep the collection's
	// order when appended after semantic hits.
	sort.SliceStable(fetched, func(i, j int) bool {
		return fetched[i].Date.After(fetched[j].Date)
	})
	return fetched
}

// persistNew inserts provider messages not yet mirrored locally (checked by
// id) and returns the ones that were actually new.
func (o *RetrievalOrchestrator) persistNew(fetched []*messagedomain.Message) []*messagedomain.Message {
	var inserted []*messagedomain.Message
	for _, msg := range fetched {
		ok, err := o.repo.InsertIfAbsent(msg)
		if err != nil {
			o.logger.Error("failed to persist fetched message",
				zap.String("message_id", msg.ID),
				zap.Error(err))
			continue
		}
		if ok {
			inserted = append(inserted, msg)
		}
	}
	return inserted
}

// enqueueEnrichment schedules embedding and summary generation for newly
// observed messages. Queue absence or a full queue never fails the fetch.
func (o *RetrievalOrchestrator) enqueueEnrichment(newMessages []*messagedomain.Message) {
	if o.queue == nil || len(newMessages) == 0 {
		return
	}
	taskID, err := o.queue.Enqueue(taskdomain.ProcessNewMessagesParams{Limit: len(newMessages)})
	if err != nil {
		o.logger.Warn("failed to enqueue enrichment task", zap.Error(err))
		return
	}
	o.logger.Info("queued enrichment for new messages",
		zap.String("task_id", taskID),
		zap.Int("count", len(newMessages)))
}

// MergeByID concatenates message collections preserving order, dropping
// duplicates by id (first occurrence wins).
func MergeByID(collections ...[]*messagedomain.Message) []*messagedomain.Message {
	size := 0
	for _, c := range collections {
		size += len(c)
	}
	out := make([]*messagedomain.Message, 0, size)
	seen := make(map[string]bool, size)
	for _, c := range collections {
		for _, msg := range c {
			if seen[msg.ID] {
				continue
			}
			seen[msg.ID] = true
			out = append(out, msg)
		}
	}
	return out
}

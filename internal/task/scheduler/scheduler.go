package scheduler

import (
	"time"

	"clientmail-backend/internal/task/domain"

	"go.uber.org/zap"
)

// Enqueuer is the slice of the queue the scheduler needs.
type Enqueuer interface {
	Enqueue(params domain.TaskParams) (string, error)
}

// EnrichmentScheduler periodically enqueues a catch-up enrichment pass so
// messages whose embedding or summary failed earlier are retried without
// operator intervention.
type EnrichmentScheduler struct {
	queue    Enqueuer
	logger   *zap.Logger
	interval time.Duration
	limit    int
	stopChan chan struct{}
}

// NewEnrichmentScheduler creates a new scheduler. Interval defaults to
// 15 minutes, limit to 50 messages per pass.
func NewEnrichmentScheduler(queue Enqueuer, logger *zap.Logger, interval time.Duration, limit int) *EnrichmentScheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if limit <= 0 {
		limit = 50
	}
	return &EnrichmentScheduler{
		queue:    queue,
		logger:   logger,
		interval: interval,
		limit:    limit,
		stopChan: make(chan struct{}),
	}
}

// Start begins the scheduler loop in a background goroutine.
func (s *EnrichmentScheduler) Start() {
	s.logger.Info("starting enrichment scheduler",
		zap.Duration("interval", s.interval),
		zap.Int("limit", s.limit))

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.enqueuePass()
			case <-s.stopChan:
				s.logger.Info("enrichment scheduler stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *EnrichmentScheduler) Stop() {
	close(s.stopChan)
}

func (s *EnrichmentScheduler) enqueuePass() {
	taskID, err := s.queue.Enqueue(domain.ProcessNewMessagesParams{Limit: s.limit})
	if err != nil {
		s.logger.Warn("failed to enqueue enrichment pass", zap.Error(err))
		return
	}
	s.logger.Debug("enqueued enrichment pass", zap.String("task_id", taskID))
}

package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	messagedomain "clientmail-backend/internal/message/domain"
	messagerepo "clientmail-backend/internal/message/repository"
	messageusecase "clientmail-backend/internal/message/usecase"
	"clientmail-backend/internal/task/domain"
	"clientmail-backend/pkg/ai"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultRetention       = 30 * time.Minute
	defaultJanitorInterval = 5 * time.Minute
	defaultClientBatchSize = 20
	defaultBatchDelay      = 200 * time.Millisecond
	defaultJobLimit        = 50
	defaultProviderTimeout = 30 * time.Second
	defaultProviderPage    = 100
	summaryCharCap         = 300
)

// ErrNilParams is returned when Enqueue is called without a parameter
// payload.
var ErrNilParams = errors.New("task params must not be nil")

// Queue is the in-process asynchronous task queue: FIFO, a single concurrent
// worker, in-memory only. Tasks are best-effort by design - a restart loses
// them, and re-enrichment catches up from the processed_for_vector flags and
// null-summary checks.
type Queue struct {
	messageRepo messagerepo.MessageRepository
	pipeline    *messageusecase.EmbeddingPipeline
	summarizer  ai.Summarizer
	provider    messagedomain.MailProvider
	logger      *zap.Logger

	mu           sync.Mutex
	tasks        map[string]*domain.Task
	order        []string // enqueue order, drives FIFO pick
	progress     map[string]*domain.TaskProgress // keyed by task id
	workerActive bool

	retention       time.Duration
	clientBatchSize int
	batchDelay      time.Duration
	providerTimeout time.Duration

	stopJanitor chan struct{}
	janitorOnce sync.Once
}

// NewQueue creates a new Queue. Provider and summarizer may be nil; the
// corresponding handlers then degrade (client processing fails fast, summary
// passes are skipped).
func NewQueue(
	messageRepo messagerepo.MessageRepository,
	pipeline *messageusecase.EmbeddingPipeline,
	summarizer ai.Summarizer,
	provider messagedomain.MailProvider,
	logger *zap.Logger,
) *Queue {
	q := &Queue{
		messageRepo:     messageRepo,
		pipeline:        pipeline,
		summarizer:      summarizer,
		provider:        provider,
		logger:          logger,
		tasks:           make(map[string]*domain.Task),
		progress:        make(map[string]*domain.TaskProgress),
		retention:       defaultRetention,
		clientBatchSize: defaultClientBatchSize,
		batchDelay:      defaultBatchDelay,
		providerTimeout: defaultProviderTimeout,
		stopJanitor:     make(chan struct{}),
	}
	go q.janitor(defaultJanitorInterval)
	return q
}

// SetBatching overrides the per-client batch size and inter-batch delay.
func (q *Queue) SetBatching(size int, delay time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if size > 0 {
		q.clientBatchSize = size
	}
	q.batchDelay = delay
}

// SetRetention overrides the terminal-task retention window.
func (q *Queue) SetRetention(d time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if d > 0 {
		q.retention = d
	}
}

// Stop stops the background janitor. In-flight tasks run to completion.
func (q *Queue) Stop() {
	q.janitorOnce.Do(func() { close(q.stopJanitor) })
}

// Enqueue appends a new pending task and returns its id immediately; it never
// blocks on execution. The single worker loop is started lazily.
func (q *Queue) Enqueue(params domain.TaskParams) (string, error) {
	if params == nil {
		return "", ErrNilParams
	}

	now := time.Now()
	task := &domain.Task{
		ID:        uuid.New().String(),
		Params:    params,
		Status:    domain.TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	q.mu.Lock()
	q.tasks[task.ID] = task
	q.order = append(q.order, task.ID)
	if p, ok := params.(domain.ProcessClientMessagesParams); ok {
		q.progress[task.ID] = &domain.TaskProgress{
			TaskID:    task.ID,
			ClientID:  p.ClientID,
			Status:    domain.TaskStatusPending,
			StartedAt: now,
			UpdatedAt: now,
		}
	}
	startWorker := !q.workerActive
	if startWorker {
		q.workerActive = true
	}
	q.mu.Unlock()

	if startWorker {
		go q.workerLoop()
	}

	q.logger.Info("task enqueued",
		zap.String("task_id", task.ID),
		zap.String("type", string(task.Type())))
	return task.ID, nil
}

// GetTaskStatus returns a snapshot of the task, or nil when unknown (never
// created, or already purged).
func (q *Queue) GetTaskStatus(taskID string) *domain.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	task, ok := q.tasks[taskID]
	if !ok {
		return nil
	}
	snapshot := *task
	return &snapshot
}

// GetClientProcessingStatus returns a snapshot of the progress record for a
// process-client-emails task, or nil when unknown.
func (q *Queue) GetClientProcessingStatus(taskID string) *domain.TaskProgress {
	q.mu.Lock()
	defer q.mu.Unlock()
	p, ok := q.progress[taskID]
	if !ok {
		return nil
	}
	snapshot := *p
	return &snapshot
}

// GetLatestClientProcessingStatus returns a snapshot of the most recently
// updated progress record for the client, or nil when none exists.
func (q *Queue) GetLatestClientProcessingStatus(clientID string) *domain.TaskProgress {
	q.mu.Lock()
	defer q.mu.Unlock()
	var latest *domain.TaskProgress
	for _, p := range q.progress {
		if p.ClientID != clientID {
			continue
		}
		if latest == nil || p.UpdatedAt.After(latest.UpdatedAt) {
			latest = p
		}
	}
	if latest == nil {
		return nil
	}
	snapshot := *latest
	return &snapshot
}

// workerLoop drains pending tasks one at a time and exits when none remain.
// Exactly one loop is active at any moment, guarded by workerActive.
func (q *Queue) workerLoop() {
	for {
		task := q.nextPending()
		if task == nil {
			return
		}

		result, err := q.run(context.Background(), task)

		q.mu.Lock()
		if err != nil {
			task.Status = domain.TaskStatusFailed
			task.Error = err.Error()
		} else {
			task.Status = domain.TaskStatusCompleted
			task.Result = result
		}
		task.UpdatedAt = time.Now()
		q.mu.Unlock()

		if err != nil {
			q.logger.Error("task failed",
				zap.String("task_id", task.ID),
				zap.String("type", string(task.Type())),
				zap.Error(err))
		} else {
			q.logger.Info("task completed",
				zap.String("task_id", task.ID),
				zap.String("type", string(task.Type())))
		}

		q.sweepLocked()
	}
}

// nextPending atomically picks the oldest pending task and marks it
// processing, or deactivates the worker when the queue is drained.
func (q *Queue) nextPending() *domain.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, id := range q.order {
		task, ok := q.tasks[id]
		if !ok {
			continue
		}
		if task.Status != domain.TaskStatusPending {
			continue
		}
		q.order = q.order[i+1:]
		task.Status = domain.TaskStatusProcessing
		task.UpdatedAt = time.Now()
		if p, ok := q.progress[task.ID]; ok {
			p.Status = domain.TaskStatusProcessing
			p.UpdatedAt = task.UpdatedAt
		}
		return task
	}

	q.order = nil
	q.workerActive = false
	return nil
}

// janitor periodically purges terminal tasks older than the retention
// window.
func (q *Queue) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			q.sweepLocked()
		case <-q.stopJanitor:
			return
		}
	}
}

// sweepLocked purges terminal tasks past retention, unless a still-running
// progress record references them. Progress records leave together with
// their task.
func (q *Queue) sweepLocked() {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := time.Now().Add(-q.retention)
	for id, task := range q.tasks {
		if !task.Status.Terminal() || task.UpdatedAt.After(cutoff) {
			continue
		}
		if p, ok := q.progress[id]; ok && !p.Status.Terminal() {
			continue
		}
		delete(q.tasks, id)
		delete(q.progress, id)
	}
}

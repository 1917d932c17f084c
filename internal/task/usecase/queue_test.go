package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	messagedomain "clientmail-backend/internal/message/domain"
	"clientmail-backend/internal/message/repository"
	messageusecase "clientmail-backend/internal/message/usecase"
	"clientmail-backend/internal/task/domain"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubRepo struct {
	mu       sync.Mutex
	messages map[string]*messagedomain.Message
	// limits records FindUnprocessed calls, used to observe execution order.
	limits []int
}

func newStubRepo(msgs ...*messagedomain.Message) *stubRepo {
	r := &stubRepo{messages: make(map[string]*messagedomain.Message)}
	for _, m := range msgs {
		r.messages[m.ID] = m
	}
	return r
}

func (r *stubRepo) GetByID(id string) (*messagedomain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.messages[id], nil
}

func (r *stubRepo) InsertIfAbsent(msg *messagedomain.Message) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.messages[msg.ID]; ok {
		return false, nil
	}
	r.messages[msg.ID] = msg
	return true, nil
}

func (r *stubRepo) UpdateSummary(id, summary string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg, ok := r.messages[id]; ok {
		msg.Summary = &summary
	}
	return nil
}

func (r *stubRepo) UpdateEmbedding(id string, embedding []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg, ok := r.messages[id]; ok {
		vec := pgvector.NewVector(embedding)
		msg.Embedding = &vec
		msg.ProcessedForVector = true
	}
	return nil
}

func (r *stubRepo) all() []*messagedomain.Message {
	var out []*messagedomain.Message
	for _, msg := range r.messages {
		out = append(out, msg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *stubRepo) SearchRelevant(q repository.RelevanceQuery) ([]*messagedomain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.all(), nil
}

func (r *stubRepo) FindEmbedded(q repository.RelevanceQuery) ([]*messagedomain.Message, error) {
	return nil, nil
}

func (r *stubRepo) FindUnprocessed(limit int) ([]*messagedomain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limits = append(r.limits, limit)
	var out []*messagedomain.Message
	for _, msg := range r.all() {
		if !msg.ProcessedForVector {
			out = append(out, msg)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *stubRepo) FindWithoutSummary(limit int) ([]*messagedomain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*messagedomain.Message
	for _, msg := range r.all() {
		if msg.Summary == nil {
			out = append(out, msg)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *stubRepo) HasColumns(names ...string) bool { return true }

func (r *stubRepo) recordedLimits() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.limits))
	copy(out, r.limits)
	return out
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}
func (stubEmbedder) Dimensions() int { return 3 }

type stubSummarizer struct{ err error }

func (s stubSummarizer) Summarize(_ context.Context, subject, _ string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "summary of " + subject, nil
}

type stubProvider struct {
	messages []*messagedomain.Message
	err      error
}

func (p *stubProvider) FetchMessages(_ context.Context, _ messagedomain.AddressFilter, _, _ time.Time, _ int) ([]*messagedomain.Message, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.messages, nil
}

func testMessage(id string) *messagedomain.Message {
	return &messagedomain.Message{
		ID:          id,
		Subject:     "subject " + id,
		FromAddress: "alice@acme.com",
		ToAddress:   "me@ourfirm.com",
		Date:        time.Now(),
		Body:        "body " + id,
	}
}

func newTestQueue(t *testing.T, repo *stubRepo, provider messagedomain.MailProvider) *Queue {
	t.Helper()
	pipeline := messageusecase.NewEmbeddingPipeline(repo, stubEmbedder{}, zap.NewNop())
	pipeline.SetBatching(10, 0)
	q := NewQueue(repo, pipeline, stubSummarizer{}, provider, zap.NewNop())
	q.SetBatching(20, 0)
	t.Cleanup(q.Stop)
	return q
}

func waitTerminal(t *testing.T, q *Queue, taskID string) *domain.Task {
	t.Helper()
	require.Eventually(t, func() bool {
		task := q.GetTaskStatus(taskID)
		return task != nil && task.Status.Terminal()
	}, 2*time.Second, 5*time.Millisecond)
	return q.GetTaskStatus(taskID)
}

func TestEnqueueRejectsNilParams(t *testing.T) {
	q := newTestQueue(t, newStubRepo(), nil)
	_, err := q.Enqueue(nil)
	assert.ErrorIs(t, err, ErrNilParams)
}

func TestGenerateEmbeddingsTaskCompletes(t *testing.T) {
	repo := newStubRepo(testMessage("m1"), testMessage("m2"))
	q := newTestQueue(t, repo, nil)

	taskID, err := q.Enqueue(domain.GenerateEmbeddingsParams{Limit: 10})
	require.NoError(t, err)

	task := waitTerminal(t, q, taskID)
	assert.Equal(t, domain.TaskStatusCompleted, task.Status)
	assert.Equal(t, "embedded 2 messages", task.Result)

	for _, msg := range repo.all() {
		assert.True(t, msg.ProcessedForVector)
	}
}

func TestTasksRunInEnqueueOrder(t *testing.T) {
	repo := newStubRepo()
	q := newTestQueue(t, repo, nil)

	var last string
	for _, limit := range []int{11, 12, 13} {
		id, err := q.Enqueue(domain.GenerateEmbeddingsParams{Limit: limit})
		require.NoError(t, err)
		last = id
	}
	waitTerminal(t, q, last)

	// All three must be done by now since execution is single-worker FIFO.
	assert.Equal(t, []int{11, 12, 13}, repo.recordedLimits())
}

func TestUnknownTaskStatus(t *testing.T) {
	q := newTestQueue(t, newStubRepo(), nil)
	assert.Nil(t, q.GetTaskStatus("no-such-task"))
	assert.Nil(t, q.GetClientProcessingStatus("no-such-task"))
	assert.Nil(t, q.GetLatestClientProcessingStatus("no-such-client"))
}

func TestProcessClientMessages(t *testing.T) {
	fetched := make([]*messagedomain.Message, 0, 45)
	for i := 0; i < 45; i++ {
		fetched = append(fetched, testMessage(fmt.Sprintf("m%02d", i)))
	}
	repo := newStubRepo()
	q := newTestQueue(t, repo, &stubProvider{messages: fetched})

	taskID, err := q.Enqueue(domain.ProcessClientMessagesParams{
		ClientID: "client-1",
		Domains:  []string{"acme.com"},
	})
	require.NoError(t, err)

	task := waitTerminal(t, q, taskID)
	assert.Equal(t, domain.TaskStatusCompleted, task.Status)

	progress := q.GetClientProcessingStatus(taskID)
	require.NotNil(t, progress)
	assert.Equal(t, domain.TaskStatusCompleted, progress.Status)
	assert.Equal(t, 100, progress.Progress)
	assert.Equal(t, 45, progress.Total)
	assert.Equal(t, 45, progress.Processed)

	// Every fetched message was mirrored and enriched.
	assert.Len(t, repo.all(), 45)
	for _, msg := range repo.all() {
		assert.True(t, msg.ProcessedForVector)
		require.NotNil(t, msg.Summary)
	}

	latest := q.GetLatestClientProcessingStatus("client-1")
	require.NotNil(t, latest)
	assert.Equal(t, taskID, latest.TaskID)
}

func TestProcessClientMessagesCompletesDespiteSummaryFailures(t *testing.T) {
	fetched := make([]*messagedomain.Message, 0, 45)
	for i := 0; i < 45; i++ {
		fetched = append(fetched, testMessage(fmt.Sprintf("m%02d", i)))
	}
	repo := newStubRepo()
	pipeline := messageusecase.NewEmbeddingPipeline(repo, stubEmbedder{}, zap.NewNop())
	pipeline.SetBatching(10, 0)
	q := NewQueue(repo, pipeline, stubSummarizer{err: fmt.Errorf("summary provider down")}, &stubProvider{messages: fetched}, zap.NewNop())
	q.SetBatching(20, 0)
	t.Cleanup(q.Stop)

	taskID, err := q.Enqueue(domain.ProcessClientMessagesParams{ClientID: "client-1"})
	require.NoError(t, err)

	task := waitTerminal(t, q, taskID)
	assert.Equal(t, domain.TaskStatusCompleted, task.Status)

	progress := q.GetClientProcessingStatus(taskID)
	require.NotNil(t, progress)
	assert.Equal(t, 100, progress.Progress)
	assert.Equal(t, domain.TaskStatusCompleted, progress.Status)

	// Embeddings still land; summaries stay null for the next catch-up pass.
	for _, msg := range repo.all() {
		assert.True(t, msg.ProcessedForVector)
		assert.Nil(t, msg.Summary)
	}
}

func TestProcessClientMessagesProviderFailure(t *testing.T) {
	q := newTestQueue(t, newStubRepo(), &stubProvider{err: fmt.Errorf("gmail unreachable")})

	taskID, err := q.Enqueue(domain.ProcessClientMessagesParams{ClientID: "client-1"})
	require.NoError(t, err)

	task := waitTerminal(t, q, taskID)
	assert.Equal(t, domain.TaskStatusFailed, task.Status)
	assert.Contains(t, task.Error, "gmail unreachable")

	progress := q.GetClientProcessingStatus(taskID)
	require.NotNil(t, progress)
	assert.Equal(t, domain.TaskStatusFailed, progress.Status)
	assert.Contains(t, progress.Error, "gmail unreachable")
}

func TestProcessClientMessagesWithoutProvider(t *testing.T) {
	q := newTestQueue(t, newStubRepo(), nil)

	taskID, err := q.Enqueue(domain.ProcessClientMessagesParams{ClientID: "client-1"})
	require.NoError(t, err)

	task := waitTerminal(t, q, taskID)
	assert.Equal(t, domain.TaskStatusFailed, task.Status)
}

func TestTerminalTasksPurgedAfterRetention(t *testing.T) {
	repo := newStubRepo()
	q := newTestQueue(t, repo, nil)
	q.SetRetention(50 * time.Millisecond)

	first, err := q.Enqueue(domain.GenerateEmbeddingsParams{Limit: 1})
	require.NoError(t, err)
	waitTerminal(t, q, first)

	time.Sleep(100 * time.Millisecond)

	// The sweep after the next task's run purges the expired one.
	second, err := q.Enqueue(domain.GenerateEmbeddingsParams{Limit: 1})
	require.NoError(t, err)
	waitTerminal(t, q, second)

	require.Eventually(t, func() bool {
		return q.GetTaskStatus(first) == nil
	}, 2*time.Second, 5*time.Millisecond)
	assert.NotNil(t, q.GetTaskStatus(second))
}

func TestSummarizeMessagesTask(t *testing.T) {
	repo := newStubRepo(testMessage("m1"))
	q := newTestQueue(t, repo, nil)

	taskID, err := q.Enqueue(domain.SummarizeMessagesParams{Limit: 10})
	require.NoError(t, err)

	task := waitTerminal(t, q, taskID)
	assert.Equal(t, domain.TaskStatusCompleted, task.Status)

	msg, _ := repo.GetByID("m1")
	require.NotNil(t, msg.Summary)
	assert.Equal(t, "summary of subject m1", *msg.Summary)
}

func TestProcessNewMessagesTask(t *testing.T) {
	repo := newStubRepo(testMessage("m1"), testMessage("m2"))
	q := newTestQueue(t, repo, nil)

	taskID, err := q.Enqueue(domain.ProcessNewMessagesParams{Limit: 10})
	require.NoError(t, err)

	task := waitTerminal(t, q, taskID)
	assert.Equal(t, domain.TaskStatusCompleted, task.Status)

	for _, msg := range repo.all() {
		assert.True(t, msg.ProcessedForVector)
		require.NotNil(t, msg.Summary)
	}
}

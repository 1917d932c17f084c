package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	messagedomain "clientmail-backend/internal/message/domain"
	"clientmail-backend/internal/message/repository"
	taskdomain "clientmail-backend/internal/task/domain"

	"github.com/pgvector/pgvector-go"
)

// fakeMessageRepo is an in-memory MessageRepository for tests.
type fakeMessageRepo struct {
	mu       sync.Mutex
	messages map[string]*messagedomain.Message

	searchErr error
	updateErr error
	lastQuery repository.RelevanceQuery
}

func newFakeMessageRepo(msgs ...*messagedomain.Message) *fakeMessageRepo {
	r := &fakeMessageRepo{messages: make(map[string]*messagedomain.Message)}
	for _, m := range msgs {
		r.messages[m.ID] = m
	}
	return r
}

func (r *fakeMessageRepo) GetByID(id string) (*messagedomain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.messages[id], nil
}

func (r *fakeMessageRepo) InsertIfAbsent(msg *messagedomain.Message) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.messages[msg.ID]; ok {
		return false, nil
	}
	r.messages[msg.ID] = msg
	return true, nil
}

func (r *fakeMessageRepo) UpdateSummary(id, summary string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg, ok := r.messages[id]; ok {
		msg.Summary = &summary
	}
	return nil
}

func (r *fakeMessageRepo) UpdateEmbedding(id string, embedding []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	if msg, ok := r.messages[id]; ok {
		vec := pgvector.NewVector(embedding)
		msg.Embedding = &vec
		msg.ProcessedForVector = true
	}
	return nil
}

func (r *fakeMessageRepo) matching(q repository.RelevanceQuery) []*messagedomain.Message {
	var out []*messagedomain.Message
	for _, msg := range r.messages {
		if !q.Start.IsZero() && msg.Date.Before(q.Start) {
			continue
		}
		if !q.End.IsZero() && msg.Date.After(q.End) {
			continue
		}
		out = append(out, msg)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date)
	})
	return out
}

func (r *fakeMessageRepo) SearchRelevant(q repository.RelevanceQuery) ([]*messagedomain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastQuery = q
	if r.searchErr != nil {
		return nil, r.searchErr
	}
	out := r.matching(q)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *fakeMessageRepo) FindEmbedded(q repository.RelevanceQuery) ([]*messagedomain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*messagedomain.Message
	for _, msg := range r.matching(q) {
		if msg.ProcessedForVector && msg.Embedding != nil {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) FindUnprocessed(limit int) ([]*messagedomain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*messagedomain.Message
	for _, msg := range r.matching(repository.RelevanceQuery{}) {
		if !msg.ProcessedForVector {
			out = append(out, msg)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) FindWithoutSummary(limit int) ([]*messagedomain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*messagedomain.Message
	for _, msg := range r.matching(repository.RelevanceQuery{}) {
		if msg.Summary == nil || *msg.Summary == "" {
			out = append(out, msg)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) HasColumns(names ...string) bool { return true }

// fakeEmbedder maps exact texts to fixed vectors; unknown texts get a
// default. Set failFor to make one text error.
type fakeEmbedder struct {
	vectors map[string][]float32
	def     []float32
	failFor string
}

func (e *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.failFor != "" && text == e.failFor {
		return nil, fmt.Errorf("embedding provider unavailable")
	}
	if vec, ok := e.vectors[text]; ok {
		return vec, nil
	}
	return e.def, nil
}

func (e *fakeEmbedder) Dimensions() int { return len(e.def) }

// fakeProvider returns a fixed message set, or an error.
type fakeProvider struct {
	messages []*messagedomain.Message
	err      error
	calls    int
}

func (p *fakeProvider) FetchMessages(_ context.Context, _ messagedomain.AddressFilter, _, _ time.Time, _ int) ([]*messagedomain.Message, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.messages, nil
}

// fakeQueue records enqueued params.
type fakeQueue struct {
	mu     sync.Mutex
	params []taskdomain.TaskParams
}

func (q *fakeQueue) Enqueue(params taskdomain.TaskParams) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.params = append(q.params, params)
	return fmt.Sprintf("task-%d", len(q.params)), nil
}

func msgAt(id string, date time.Time) *messagedomain.Message {
	return &messagedomain.Message{
		ID:          id,
		Subject:     "subject " + id,
		FromAddress: "alice@acme.com",
		ToAddress:   "me@ourfirm.com",
		Date:        date,
		Body:        "body " + id,
	}
}

package domain

import "time"

// TaskType represents the kind of asynchronous enrichment work.
type TaskType string

const (
	TaskGenerateEmbeddings    TaskType = "generate-embeddings"
	TaskSummarizeMessages     TaskType = "summarize-emails"
	TaskProcessNewMessages    TaskType = "process-new-emails"
	TaskProcessClientMessages TaskType = "process-client-emails"
)

// TaskStatus represents the current state of a task. Transitions are
// monotonic: pending -> processing -> (completed | failed). A task never
// returns to pending after leaving it.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Terminal reports whether the status is final.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// TaskParams is the tagged-variant parameter payload of a task. Each task
// type carries its own strongly-typed struct; the queue dispatches on the
// concrete type rather than on strings.
type TaskParams interface {
	TaskType() TaskType
}

// GenerateEmbeddingsParams asks for up to Limit unprocessed messages to be
// embedded.
type GenerateEmbeddingsParams struct {
	Limit int `json:"limit"`
}

func (GenerateEmbeddingsParams) TaskType() TaskType { return TaskGenerateEmbeddings }

// SummarizeMessagesParams asks for up to Limit messages without a summary to
// be summarized.
type SummarizeMessagesParams struct {
	Limit int `json:"limit"`
}

func (SummarizeMessagesParams) TaskType() TaskType { return TaskSummarizeMessages }

// ProcessNewMessagesParams runs both enrichment passes over recently
// observed messages.
type ProcessNewMessagesParams struct {
	Limit int `json:"limit"`
}

func (ProcessNewMessagesParams) TaskType() TaskType { return TaskProcessNewMessages }

// ProcessClientMessagesParams mirrors and enriches a client's provider
// messages for a date range, with granular progress tracking.
type ProcessClientMessagesParams struct {
	ClientID string    `json:"client_id"`
	Domains  []string  `json:"domains"`
	Emails   []string  `json:"emails"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

func (ProcessClientMessagesParams) TaskType() TaskType { return TaskProcessClientMessages }

// Task is one unit of asynchronous work tracked through its lifecycle.
// Instances live in the queue's in-memory arena; a process restart loses
// them, which is acceptable because every job is re-derivable from the
// processed_for_vector flags and null-summary checks.
type Task struct {
	ID        string     `json:"id"`
	Params    TaskParams `json:"params"`
	Status    TaskStatus `json:"status"`
	Result    string     `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Type returns the task's type tag.
func (t *Task) Type() TaskType {
	if t.Params == nil {
		return ""
	}
	return t.Params.TaskType()
}

// TaskProgress is the granular per-client view of a process-client-emails
// task. Progress is 0-100 and non-decreasing until the status is terminal.
type TaskProgress struct {
	TaskID    string     `json:"task_id"`
	ClientID  string     `json:"client_id"`
	Status    TaskStatus `json:"status"`
	Progress  int        `json:"progress"`
	Total     int        `json:"total"`
	Processed int        `json:"processed"`
	StartedAt time.Time  `json:"started_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Error     string     `json:"error,omitempty"`
}

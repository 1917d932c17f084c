package repository

import (
	"time"

	messagedomain "clientmail-backend/internal/message/domain"
)

// RelevanceQuery describes one relevance-matching pass over the local store.
// Domains and Emails must be normalized before they reach the repository.
type RelevanceQuery struct {
	Domains []string
	Emails  []string
	Start   time.Time
	End     time.Time
	// Keyword is the free-text fallback: case-insensitive substring match
	// over subject and body. Only consulted when no semantic ranking is in
	// play.
	Keyword string
	Limit   int
}

// MessageRepository defines the interface for the local message store. All
// dynamic predicates are bound as query parameters; interpolating values into
// query text is a contract violation.
type MessageRepository interface {
	// GetByID returns the message, or nil when not stored.
	GetByID(id string) (*messagedomain.Message, error)
	// InsertIfAbsent stores the message unless its id already exists.
	// Returns true when a row was inserted.
	InsertIfAbsent(msg *messagedomain.Message) (bool, error)
	// UpdateSummary sets the free-text summary for a message.
	UpdateSummary(id, summary string) error
	// UpdateEmbedding stores the vector and flips processed_for_vector.
	UpdateEmbedding(id string, embedding []float32) error
	// SearchRelevant returns messages matching the client's addresses in any
	// role within the date range, ordered by date descending.
	SearchRelevant(q RelevanceQuery) ([]*messagedomain.Message, error)
	// FindEmbedded returns messages with stored vectors matching the same
	// address and date predicates (keyword ignored).
	FindEmbedded(q RelevanceQuery) ([]*messagedomain.Message, error)
	// FindUnprocessed returns up to limit messages awaiting embedding.
	FindUnprocessed(limit int) ([]*messagedomain.Message, error)
	// FindWithoutSummary returns up to limit messages awaiting summarization.
	FindWithoutSummary(limit int) ([]*messagedomain.Message, error)
	// HasColumns probes the schema for optional columns (older installations
	// lack cc/bcc). A missing column reduces fidelity, it is not an error.
	HasColumns(names ...string) bool
}

package domain

import (
	"context"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// Message is one piece of correspondence mirrored from the mail provider.
// The ID is the provider-assigned message id and is immutable once created.
// Summary and Embedding are populated later by background enrichment tasks;
// ProcessedForVector is true iff Embedding is non-null.
type Message struct {
	ID                 string           `json:"id" gorm:"primaryKey"`
	Subject            string           `json:"subject"`
	FromAddress        string           `json:"from" gorm:"index"`
	ToAddress          string           `json:"to" gorm:"index"`
	CcAddresses        pq.StringArray   `json:"cc,omitempty" gorm:"type:text[]"`
	BccAddresses       pq.StringArray   `json:"bcc,omitempty" gorm:"type:text[]"`
	Date               time.Time        `json:"date" gorm:"index"`
	Body               string           `json:"body" gorm:"type:text"`
	Summary            *string          `json:"summary,omitempty" gorm:"type:text"`
	Labels             pq.StringArray   `json:"labels,omitempty" gorm:"type:text[]"`
	Embedding          *pgvector.Vector `json:"-" gorm:"type:vector(768)"`
	ProcessedForVector bool             `json:"processed_for_vector" gorm:"default:false;index"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Message) TableName() string {
	return "messages"
}

// Recipients returns every recipient address of the message (to + cc + bcc).
func (m *Message) Recipients() []string {
	out := make([]string, 0, 1+len(m.CcAddresses)+len(m.BccAddresses))
	if m.ToAddress != "" {
		out = append(out, m.ToAddress)
	}
	out = append(out, m.CcAddresses...)
	out = append(out, m.BccAddresses...)
	return out
}

// AddressFilter narrows a provider fetch to a client's normalized domains and
// email addresses.
type AddressFilter struct {
	Domains []string
	Emails  []string
}

// MailProvider is the external mail source. Fetches are paginated internally;
// implementations return the full matching set for the range, bounded by
// pageSize per underlying request. Provider failure is an expected operational
// condition: callers degrade to store-only results.
type MailProvider interface {
	FetchMessages(ctx context.Context, filter AddressFilter, start, end time.Time, pageSize int) ([]*Message, error)
}

package domain

import (
	"time"

	"github.com/lib/pq"
)

// Client is a configured correspondence counterparty. Domains and Emails are
// stored normalized (lowercased, no "@" prefix); matching always operates on
// the normalized forms. The client-management surface owns mutation; this
// backend reads only.
type Client struct {
	ID        string         `json:"id" gorm:"primaryKey"`
	Name      string         `json:"name" gorm:"not null"`
	Domains   pq.StringArray `json:"domains" gorm:"type:text[]"`
	Emails    pq.StringArray `json:"emails" gorm:"type:text[]"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Client) TableName() string {
	return "clients"
}

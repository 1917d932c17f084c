package repository

import (
	clientdomain "clientmail-backend/internal/client/domain"
	"clientmail-backend/pkg/mailaddr"

	"gorm.io/gorm"
)

// ClientRepository is the read-only view of configured clients.
type ClientRepository interface {
	// GetByID returns the client, or nil when it does not exist.
	GetByID(id string) (*clientdomain.Client, error)
	// GetAll returns every configured client.
	GetAll() ([]*clientdomain.Client, error)
}

// clientRepository implements ClientRepository interface
type clientRepository struct {
	db *gorm.DB
}

// NewClientRepository creates a new instance of clientRepository
func NewClientRepository(db *gorm.DB) ClientRepository {
	return &clientRepository{
		db: db,
	}
}

func (r *clientRepository) GetByID(id string) (*clientdomain.Client, error) {
	var client clientdomain.Client
	err := r.db.Where("id = ?", id).First(&client).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	normalize(&client)
	return &client, nil
}

func (r *clientRepository) GetAll() ([]*clientdomain.Client, error) {
	var clients []*clientdomain.Client
	if err := r.db.Order("name asc").Find(&clients).Error; err != nil {
		return nil, err
	}
	for _, c := range clients {
		normalize(c)
	}
	return clients, nil
}

// normalize re-applies the canonical forms on read. Rows are written
// normalized by the client-management surface, but older rows may predate the
// rule.
func normalize(c *clientdomain.Client) {
	for i, d := range c.Domains {
		c.Domains[i] = mailaddr.NormalizeDomain(d)
	}
	for i, e := range c.Emails {
		c.Emails[i] = mailaddr.NormalizeEmail(e)
	}
}

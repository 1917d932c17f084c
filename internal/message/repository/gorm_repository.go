package repository

import (
	"strings"
	"sync"

	messagedomain "clientmail-backend/internal/message/domain"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// messageRepository implements MessageRepository on PostgreSQL via GORM.
type messageRepository struct {
	db *gorm.DB

	colMu   sync.Mutex
	colSeen map[string]bool
}

// NewMessageRepository creates a new instance of messageRepository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{
		db:      db,
		colSeen: make(map[string]bool),
	}
}

func (r *messageRepository) GetByID(id string) (*messagedomain.Message, error) {
	var msg messagedomain.Message
	err := r.db.Where("id = ?", id).First(&msg).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepository) InsertIfAbsent(msg *messagedomain.Message) (bool, error) {
	result := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(msg)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *messageRepository) UpdateSummary(id, summary string) error {
	return r.db.Model(&messagedomain.Message{}).
		Where("id = ?", id).
		Update("summary", summary).Error
}

func (r *messageRepository) UpdateEmbedding(id string, embedding []float32) error {
	vec := pgvector.NewVector(embedding)
	return r.db.Model(&messagedomain.Message{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"embedding":            vec,
			"processed_for_vector": true,
		}).Error
}

func (r *messageRepository) SearchRelevant(q RelevanceQuery) ([]*messagedomain.Message, error) {
	tx := r.applyRelevance(r.db, q, true)

	var messages []*messagedomain.Message
	tx = tx.Order("date DESC")
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	if err := tx.Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *messageRepository) FindEmbedded(q RelevanceQuery) ([]*messagedomain.Message, error) {
	tx := r.applyRelevance(r.db, q, false).
		Where("processed_for_vector = ? AND embedding IS NOT NULL", true)

	var messages []*messagedomain.Message
	if err := tx.Order("date DESC").Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *messageRepository) FindUnprocessed(limit int) ([]*messagedomain.Message, error) {
	var messages []*messagedomain.Message
	err := r.db.Where("processed_for_vector = ?", false).
		Order("date ASC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *messageRepository) FindWithoutSummary(limit int) ([]*messagedomain.Message, error) {
	var messages []*messagedomain.Message
	err := r.db.Where("summary IS NULL OR summary = ''").
		Order("date ASC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// HasColumns probes (and caches) whether every named column exists on the
// messages table. Older installations predate the cc/bcc columns.
func (r *messageRepository) HasColumns(names ...string) bool {
	r.colMu.Lock()
	defer r.colMu.Unlock()
	for _, name := range names {
		has, ok := r.colSeen[name]
		if !ok {
			has = r.db.Migrator().HasColumn(&messagedomain.Message{}, name)
			r.colSeen[name] = has
		}
		if !has {
			return false
		}
	}
	return true
}

// applyRelevance appends the address, date and (optionally) keyword
// predicates to tx. Every dynamic value is bound as a parameter; the SQL text
// is assembled only from fixed fragments.
func (r *messageRepository) applyRelevance(tx *gorm.DB, q RelevanceQuery, withKeyword bool) *gorm.DB {
	hasCc := r.HasColumns("cc_addresses")
	hasBcc := r.HasColumns("bcc_addresses")

	var conds []string
	var args []interface{}

	for _, d := range q.Domains {
		atPattern := "%@" + d
		subPattern := "%." + d
		conds = append(conds, "(from_address LIKE ? OR from_address LIKE ? OR to_address LIKE ? OR to_address LIKE ?)")
		args = append(args, atPattern, subPattern, atPattern, subPattern)
		if hasCc {
			conds = append(conds, "EXISTS (SELECT 1 FROM unnest(cc_addresses) AS cc_addr WHERE cc_addr LIKE ? OR cc_addr LIKE ?)")
			args = append(args, atPattern, subPattern)
		}
		if hasBcc {
			conds = append(conds, "EXISTS (SELECT 1 FROM unnest(bcc_addresses) AS bcc_addr WHERE bcc_addr LIKE ? OR bcc_addr LIKE ?)")
			args = append(args, atPattern, subPattern)
		}
	}

	for _, e := range q.Emails {
		conds = append(conds, "(from_address = ? OR to_address = ?)")
		args = append(args, e, e)
		if hasCc {
			conds = append(conds, "? = ANY(cc_addresses)")
			args = append(args, e)
		}
		if hasBcc {
			conds = append(conds, "? = ANY(bcc_addresses)")
			args = append(args, e)
		}
	}

	if len(conds) > 0 {
		tx = tx.Where("("+strings.Join(conds, " OR ")+")", args...)
	}

	if !q.Start.IsZero() {
		tx = tx.Where("date >= ?", q.Start)
	}
	if !q.End.IsZero() {
		tx = tx.Where("date <= ?", q.End)
	}

	if withKeyword && q.Keyword != "" {
		pattern := "%" + q.Keyword + "%"
		tx = tx.Where("(subject ILIKE ? OR body ILIKE ?)", pattern, pattern)
	}

	return tx
}

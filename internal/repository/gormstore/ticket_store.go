package gormstore

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/psds-microservice/cityfix-service/internal/errs"
	"github.com/psds-microservice/cityfix-service/internal/model"
	"github.com/psds-microservice/cityfix-service/internal/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ repository.TicketStore = (*TicketStore)(nil)

type TicketStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewTicketStore(db *gorm.DB) *TicketStore {
	return &TicketStore{db: db, now: repository.UTCNow}
}

// WithClock replaces the clock used for ids and timestamps.
func (s *TicketStore) WithClock(now func() time.Time) *TicketStore {
	s.now = now
	return s
}

func (s *TicketStore) Create(ctx context.Context, t *model.Ticket) (string, error) {
	if strings.TrimSpace(t.Title) == "" {
		return "", fmt.Errorf("%w: title is required", errs.ErrBadInput)
	}
	if t.TenantID == "" {
		return "", fmt.Errorf("%w: tenant_id is required", errs.ErrBadInput)
	}
	now := s.now().UTC()
	t.ID = repository.NewTicketID(now)
	if t.Status == "" {
		t.Status = model.TicketStatusReceived
	}
	t.CreatedAt = now
	t.UpdatedAt = now
	t.Normalize()
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		return "", repository.Unavailable(err)
	}
	return t.ID, nil
}

func (s *TicketStore) GetByID(ctx context.Context, id string) (*model.Ticket, error) {
	var t model.Ticket
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrTicketNotFound
		}
		return nil, repository.Unavailable(err)
	}
	t.Normalize()
	return &t, nil
}

func (s *TicketStore) filtered(ctx context.Context, f repository.TicketFilter) *gorm.DB {
	tx := s.db.WithContext(ctx).Model(&model.Ticket{})
	if f.Status != "" {
		tx = tx.Where("status = ?", f.Status)
	}
	if f.TenantID != "" {
		tx = tx.Where("tenant_id = ?", f.TenantID)
	}
	if f.OperatorID != "" {
		tx = tx.Where("operator_id = ?", f.OperatorID)
	}
	if f.AuthorID != "" {
		tx = tx.Where("author_id = ?", f.AuthorID)
	}
	if f.Category != "" {
		tx = tx.Where("category = ?", f.Category)
	}
	return tx
}

func (s *TicketStore) List(ctx context.Context, f repository.TicketFilter) iter.Seq2[model.Ticket, error] {
	return func(yield func(model.Ticket, error) bool) {
		tx := s.filtered(ctx, f).Order("created_at DESC").Order("id DESC")
		if f.Limit > 0 {
			tx = tx.Limit(f.Limit)
		}
		if f.Offset > 0 {
			tx = tx.Offset(f.Offset)
		}
		rows, err := tx.Rows()
		if err != nil {
			yield(model.Ticket{}, repository.Unavailable(err))
			return
		}
		defer rows.Close()
		for rows.Next() {
			var t model.Ticket
			if err := tx.ScanRows(rows, &t); err != nil {
				yield(model.Ticket{}, repository.Unavailable(err))
				return
			}
			t.Normalize()
			if !yield(t, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(model.Ticket{}, repository.Unavailable(err))
		}
	}
}

func (s *TicketStore) Count(ctx context.Context, f repository.TicketFilter) (int64, error) {
	var total int64
	if err := s.filtered(ctx, f).Count(&total).Error; err != nil {
		return 0, repository.Unavailable(err)
	}
	return total, nil
}

func (s *TicketStore) matched(tx *gorm.DB, m repository.TicketMatch) *gorm.DB {
	tx = tx.Where("id = ?", m.ID)
	if m.TenantID != "" {
		tx = tx.Where("tenant_id = ?", m.TenantID)
	}
	if m.AuthorID != "" {
		tx = tx.Where("author_id = ?", m.AuthorID)
	}
	if len(m.Statuses) > 0 {
		tx = tx.Where("status IN ?", m.Statuses)
	}
	return tx
}

// UpdateStatus applies p with a single UPDATE so readers never observe half of it.
func (s *TicketStore) UpdateStatus(ctx context.Context, m repository.TicketMatch, p repository.TicketPatch) (bool, error) {
	changes := map[string]interface{}{"updated_at": s.now().UTC()}
	if p.Status != nil {
		changes["status"] = *p.Status
	}
	if p.OperatorID != nil {
		changes["operator_id"] = *p.OperatorID
	}
	res := s.matched(s.db.WithContext(ctx).Model(&model.Ticket{}), m).Updates(changes)
	if res.Error != nil {
		return false, repository.Unavailable(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *TicketStore) AppendPhoto(ctx context.Context, m repository.TicketMatch, url string) (bool, error) {
	return s.appendTo(ctx, m, func(t *model.Ticket) map[string]interface{} {
		t.Photos = append(t.Photos, url)
		return map[string]interface{}{"photos": t.Photos}
	})
}

func (s *TicketStore) AppendComment(ctx context.Context, m repository.TicketMatch, c model.Comment) (bool, error) {
	return s.appendTo(ctx, m, func(t *model.Ticket) map[string]interface{} {
		t.Comments = append(t.Comments, c)
		return map[string]interface{}{"comments": t.Comments}
	})
}

// appendTo does a locked read-modify-write of one ticket inside a transaction.
func (s *TicketStore) appendTo(ctx context.Context, m repository.TicketMatch, mutate func(t *model.Ticket) map[string]interface{}) (bool, error) {
	found := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		if tx.Dialector.Name() != "sqlite" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var t model.Ticket
		if err := s.matched(q, m).First(&t).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		found = true
		changes := mutate(&t)
		changes["updated_at"] = s.now().UTC()
		return tx.Model(&model.Ticket{}).Where("id = ?", t.ID).Updates(changes).Error
	})
	if err != nil {
		return false, repository.Unavailable(err)
	}
	return found, nil
}

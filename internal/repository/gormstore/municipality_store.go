package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/psds-microservice/cityfix-service/internal/errs"
	"github.com/psds-microservice/cityfix-service/internal/geo"
	"github.com/psds-microservice/cityfix-service/internal/model"
	"github.com/psds-microservice/cityfix-service/internal/repository"
	"gorm.io/gorm"
)

var _ repository.MunicipalityStore = (*MunicipalityStore)(nil)

// MunicipalityStore keeps boundaries as GeoJSON next to their bounding box.
// Containment narrows candidates with the box in SQL and tests the polygon in process.
type MunicipalityStore struct {
	db *gorm.DB
}

func NewMunicipalityStore(db *gorm.DB) *MunicipalityStore {
	return &MunicipalityStore{db: db}
}

func (s *MunicipalityStore) Create(ctx context.Context, m *model.Municipality) error {
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("municipality %q: %w", m.Slug, errs.ErrDuplicate)
		}
		return repository.Unavailable(err)
	}
	return nil
}

// isUniqueViolation also matches drivers whose errors gorm does not translate.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}

func (s *MunicipalityStore) GetByID(ctx context.Context, id string) (*model.Municipality, error) {
	var m model.Municipality
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrMunicipalityNotFound
		}
		return nil, repository.Unavailable(err)
	}
	m.Normalize()
	return &m, nil
}

func (s *MunicipalityStore) List(ctx context.Context) ([]model.Municipality, error) {
	var items []model.Municipality
	if err := s.db.WithContext(ctx).Order("created_at ASC").Order("id ASC").Find(&items).Error; err != nil {
		return nil, repository.Unavailable(err)
	}
	for i := range items {
		items[i].Normalize()
	}
	return items, nil
}

func (s *MunicipalityStore) FindContaining(ctx context.Context, p orb.Point) (*model.Municipality, error) {
	var candidates []model.Municipality
	err := s.db.WithContext(ctx).
		Where("min_lng <= ? AND max_lng >= ?", p.Lon(), p.Lon()).
		Where("min_lat <= ? AND max_lat >= ?", p.Lat(), p.Lat()).
		Order("created_at ASC").Order("id ASC").
		Find(&candidates).Error
	if err != nil {
		return nil, repository.Unavailable(err)
	}
	for i := range candidates {
		mp, err := geo.DecodeBoundary(candidates[i].Boundary)
		if err != nil {
			return nil, fmt.Errorf("municipality %s: %w", candidates[i].ID, err)
		}
		if geo.Contains(mp, p) {
			candidates[i].Normalize()
			return &candidates[i], nil
		}
	}
	return nil, nil
}

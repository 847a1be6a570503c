package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/psds-microservice/cityfix-service/internal/errs"
	"github.com/psds-microservice/cityfix-service/internal/geo"
	"github.com/psds-microservice/cityfix-service/internal/logger"
	"github.com/psds-microservice/cityfix-service/internal/model"
	"github.com/psds-microservice/cityfix-service/internal/repository"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// RegisterMunicipalityInput is the schema accepted when onboarding a municipality.
type RegisterMunicipalityInput struct {
	Name         string          `json:"name" validate:"required,max=255"`
	Boundary     json.RawMessage `json:"boundary" validate:"required"`
	ManagerID    string          `json:"managerId" validate:"omitempty,max=64"`
	PrimaryColor string          `json:"primaryColor" validate:"omitempty,hexcolor"`
}

type MunicipalityService struct {
	store repository.MunicipalityStore
	cache ResolutionCache
	now   func() time.Time
}

// NewMunicipalityService returns the registry service. cache may be nil.
func NewMunicipalityService(store repository.MunicipalityStore, cache ResolutionCache) *MunicipalityService {
	return &MunicipalityService{store: store, cache: cache, now: repository.UTCNow}
}

// Register validates the boundary, derives slug and bounding box and persists the
// municipality. Overlapping an existing boundary is allowed: lookups prefer the
// municipality registered first.
func (s *MunicipalityService) Register(ctx context.Context, in RegisterMunicipalityInput) (*model.Municipality, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	name, err := sanitizeField("name", in.Name, 255)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", errs.ErrBadInput)
	}
	mp, err := geo.ParseBoundary(in.Boundary)
	if err != nil {
		return nil, err
	}
	encoded, err := geo.EncodeBoundary(mp)
	if err != nil {
		return nil, fmt.Errorf("encode boundary: %w", err)
	}
	slugged := slug.Make(name)
	if slugged == "" {
		return nil, fmt.Errorf("%w: name %q has no usable characters", errs.ErrBadInput, name)
	}

	bound := mp.Bound()
	m := &model.Municipality{
		ID:           uuid.NewString(),
		Name:         name,
		Slug:         slugged,
		Boundary:     datatypes.JSON(encoded),
		MinLng:       bound.Min.Lon(),
		MinLat:       bound.Min.Lat(),
		MaxLng:       bound.Max.Lon(),
		MaxLat:       bound.Max.Lat(),
		ManagerID:    in.ManagerID,
		PrimaryColor: in.PrimaryColor,
		CreatedAt:    s.now(),
	}
	if err := s.store.Create(ctx, m); err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx)
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			log.Warn("resolution cache invalidation failed", zap.Error(err))
		}
	}
	log.Info("municipality registered",
		zap.String("municipality_id", m.ID),
		zap.String("slug", m.Slug),
	)
	return m, nil
}

func (s *MunicipalityService) Get(ctx context.Context, id string) (*model.Municipality, error) {
	if id == "" {
		return nil, errs.ErrMunicipalityNotFound
	}
	return s.store.GetByID(ctx, id)
}

// List returns municipalities in registration order.
func (s *MunicipalityService) List(ctx context.Context) ([]model.Municipality, error) {
	return s.store.List(ctx)
}

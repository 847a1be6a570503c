package service

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psds-microservice/cityfix-service/internal/errs"
	"github.com/psds-microservice/cityfix-service/internal/model"
	"github.com/psds-microservice/cityfix-service/internal/repository"
)

func TestResolver_Springfield(t *testing.T) {
	f := newFixture(t)
	springfield := f.register(t, "Springfield", springfieldBoundary)
	ctx := context.Background()

	res, err := f.resolver.Resolve(ctx, ptr(5), ptr(5))
	require.NoError(t, err)
	assert.Equal(t, Resolution{TenantID: springfield.ID, Name: "Springfield"}, res)

	_, err = f.resolver.Resolve(ctx, ptr(50), ptr(50))
	assert.ErrorIs(t, err, errs.ErrUnresolved)
}

func TestResolver_BadInput(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Springfield", springfieldBoundary)
	ctx := context.Background()

	tests := []struct {
		name     string
		lng, lat *float64
	}{
		{"missing lat", ptr(5), nil},
		{"missing lng", nil, ptr(5)},
		{"NaN", ptr(math.NaN()), ptr(5)},
		{"infinite", ptr(5), ptr(math.Inf(1))},
		{"lng out of range", ptr(181), ptr(5)},
		{"lat out of range", ptr(5), ptr(-91)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.resolver.Resolve(ctx, tt.lng, tt.lat)
			assert.ErrorIs(t, err, errs.ErrBadInput)
		})
	}
	assert.Zero(t, f.cache.gets, "invalid input must not reach the cache")
}

func TestResolver_OverlapOldestRegistrationWins(t *testing.T) {
	f := newFixture(t)
	first := f.register(t, "Springfield", springfieldBoundary)
	f.register(t, "Springfield Heights", `{"type":"Polygon","coordinates":[[[5,5],[5,15],[15,15],[15,5],[5,5]]]}`)

	for i := 0; i < 3; i++ {
		res, err := f.resolver.Resolve(context.Background(), ptr(7), ptr(7))
		require.NoError(t, err)
		assert.Equal(t, first.ID, res.TenantID)
	}
}

func TestResolver_CacheHitAndInvalidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.resolver.Resolve(ctx, ptr(25), ptr(5))
	require.ErrorIs(t, err, errs.ErrUnresolved)
	assert.Len(t, f.cache.entries, 1, "uncovered points are cached too")

	// Registering bumps the generation, so the cached miss is not reused.
	shelbyville := f.register(t, "Shelbyville", shelbyvilleBoundary)
	assert.Equal(t, 1, f.cache.invalidated)

	res, err := f.resolver.Resolve(ctx, ptr(25), ptr(5))
	require.NoError(t, err)
	assert.Equal(t, shelbyville.ID, res.TenantID)

	// Served from cache even when the store is unreachable.
	cached := NewResolver(failingMunicipalities{}, f.cache, nil)
	res, err = cached.Resolve(ctx, ptr(25), ptr(5))
	require.NoError(t, err)
	assert.Equal(t, shelbyville.ID, res.TenantID)
}

func TestResolver_StoreUnavailable(t *testing.T) {
	r := NewResolver(failingMunicipalities{}, nil, nil)
	_, err := r.Resolve(context.Background(), ptr(5), ptr(5))
	assert.ErrorIs(t, err, errs.ErrStoreUnavailable)
}

type failingMunicipalities struct{}

func (failingMunicipalities) Create(context.Context, *model.Municipality) error {
	return repository.Unavailable(errors.New("connection refused"))
}

func (failingMunicipalities) GetByID(context.Context, string) (*model.Municipality, error) {
	return nil, repository.Unavailable(errors.New("connection refused"))
}

func (failingMunicipalities) List(context.Context) ([]model.Municipality, error) {
	return nil, repository.Unavailable(errors.New("connection refused"))
}

func (failingMunicipalities) FindContaining(context.Context, orb.Point) (*model.Municipality, error) {
	return nil, repository.Unavailable(errors.New("connection refused"))
}

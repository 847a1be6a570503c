package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/psds-microservice/cityfix-service/internal/errs"
	"github.com/psds-microservice/cityfix-service/internal/geo"
	"github.com/psds-microservice/cityfix-service/internal/logger"
	"github.com/psds-microservice/cityfix-service/internal/metrics"
	"github.com/psds-microservice/cityfix-service/internal/repository"
	"go.uber.org/zap"
)

// Resolution is the tenant owning a point. An empty TenantID marks an uncovered point
// when stored in a ResolutionCache.
type Resolution struct {
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
}

func (r Resolution) Covered() bool {
	return r.TenantID != ""
}

// ResolutionCache memoizes resolutions per registry generation. Registering a
// municipality bumps the generation, which retires every cached entry at once.
type ResolutionCache interface {
	Generation(ctx context.Context) (int64, error)
	Get(ctx context.Context, gen int64, p orb.Point) (Resolution, bool, error)
	Set(ctx context.Context, gen int64, p orb.Point, r Resolution) error
	Invalidate(ctx context.Context) error
}

// TenantResolver is the lookup the ticket service depends on.
type TenantResolver interface {
	Resolve(ctx context.Context, lng, lat *float64) (Resolution, error)
}

type Resolver struct {
	store   repository.MunicipalityStore
	cache   ResolutionCache
	metrics *metrics.Metrics
}

var _ TenantResolver = (*Resolver)(nil)

// NewResolver returns a resolver over store. cache and m may be nil.
func NewResolver(store repository.MunicipalityStore, cache ResolutionCache, m *metrics.Metrics) *Resolver {
	return &Resolver{store: store, cache: cache, metrics: m}
}

// Resolve maps a coordinate to the municipality that owns it. Missing or invalid
// coordinates fail with errs.ErrBadInput before any lookup; an uncovered point fails
// with errs.ErrUnresolved.
func (r *Resolver) Resolve(ctx context.Context, lng, lat *float64) (Resolution, error) {
	if lng == nil || lat == nil {
		r.metrics.ObserveResolution(metrics.OutcomeBadInput)
		return Resolution{}, fmt.Errorf("%w: lat and lng are required", errs.ErrBadInput)
	}
	p, err := geo.NewPoint(*lng, *lat)
	if err != nil {
		r.metrics.ObserveResolution(metrics.OutcomeBadInput)
		return Resolution{}, err
	}

	gen, cached := r.lookupCache(ctx, p)
	if cached != nil {
		return r.outcome(*cached)
	}

	m, err := r.store.FindContaining(ctx, p)
	if err != nil {
		r.metrics.ObserveResolution(metrics.OutcomeError)
		if errors.Is(err, errs.ErrStoreUnavailable) {
			return Resolution{}, err
		}
		return Resolution{}, fmt.Errorf("resolve (%g, %g): %w", p.Lon(), p.Lat(), err)
	}
	var res Resolution
	if m != nil {
		res = Resolution{TenantID: m.ID, Name: m.Name}
	}
	if gen >= 0 {
		if err := r.cache.Set(ctx, gen, p, res); err != nil {
			logger.FromContext(ctx).Warn("resolution cache write failed", zap.Error(err))
		}
	}
	return r.outcome(res)
}

// lookupCache returns the generation to write back under (-1 when the cache is
// off or failing) and the cached resolution, if any.
func (r *Resolver) lookupCache(ctx context.Context, p orb.Point) (int64, *Resolution) {
	if r.cache == nil {
		return -1, nil
	}
	gen, err := r.cache.Generation(ctx)
	if err != nil {
		logger.FromContext(ctx).Warn("resolution cache unavailable", zap.Error(err))
		return -1, nil
	}
	res, ok, err := r.cache.Get(ctx, gen, p)
	if err != nil {
		logger.FromContext(ctx).Warn("resolution cache read failed", zap.Error(err))
		return gen, nil
	}
	r.metrics.ObserveCacheLookup(ok)
	if !ok {
		return gen, nil
	}
	return gen, &res
}

func (r *Resolver) outcome(res Resolution) (Resolution, error) {
	if !res.Covered() {
		r.metrics.ObserveResolution(metrics.OutcomeUnresolved)
		return Resolution{}, errs.ErrUnresolved
	}
	r.metrics.ObserveResolution(metrics.OutcomeResolved)
	return res, nil
}

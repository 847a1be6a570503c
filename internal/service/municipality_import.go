package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb/geojson"
	"github.com/psds-microservice/cityfix-service/internal/errs"
	"github.com/psds-microservice/cityfix-service/internal/model"
)

// ParseMunicipalityFeatures reads a GeoJSON Feature or FeatureCollection whose
// features carry a "name" property and optional "managerId" and "primaryColor".
func ParseMunicipalityFeatures(raw []byte) ([]RegisterMunicipalityInput, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrBadInput, err)
	}

	var features []*geojson.Feature
	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrBadInput, err)
		}
		features = fc.Features
	case "Feature":
		f, err := geojson.UnmarshalFeature(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrBadInput, err)
		}
		features = []*geojson.Feature{f}
	default:
		return nil, fmt.Errorf("%w: expected Feature or FeatureCollection, got %q", errs.ErrBadInput, head.Type)
	}
	if len(features) == 0 {
		return nil, fmt.Errorf("%w: no features", errs.ErrBadInput)
	}

	out := make([]RegisterMunicipalityInput, 0, len(features))
	for i, f := range features {
		if f.Geometry == nil {
			return nil, fmt.Errorf("%w: feature %d has no geometry", errs.ErrBadInput, i)
		}
		boundary, err := geojson.NewGeometry(f.Geometry).MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("%w: feature %d: %v", errs.ErrBadInput, i, err)
		}
		out = append(out, RegisterMunicipalityInput{
			Name:         f.Properties.MustString("name", ""),
			Boundary:     boundary,
			ManagerID:    f.Properties.MustString("managerId", ""),
			PrimaryColor: f.Properties.MustString("primaryColor", ""),
		})
	}
	return out, nil
}

// Import registers every municipality in raw. A failing feature does not stop
// the rest; the joined error names each failure.
func (s *MunicipalityService) Import(ctx context.Context, raw []byte) ([]*model.Municipality, error) {
	inputs, err := ParseMunicipalityFeatures(raw)
	if err != nil {
		return nil, err
	}
	var (
		created []*model.Municipality
		failed  []error
	)
	for _, in := range inputs {
		m, err := s.Register(ctx, in)
		if err != nil {
			failed = append(failed, fmt.Errorf("%q: %w", in.Name, err))
			continue
		}
		created = append(created, m)
	}
	return created, errors.Join(failed...)
}

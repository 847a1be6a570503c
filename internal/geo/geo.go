// Package geo validates coordinates and municipal boundaries and answers
// point-in-polygon containment for them.
//
// Boundaries are GeoJSON Polygon or MultiPolygon geometries (a Feature wrapping
// one is accepted too) in WGS84 longitude, latitude order. Containment is planar,
// which is accurate at municipal scale.
package geo

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/psds-microservice/cityfix-service/internal/errs"
)

// NewPoint checks that lng, lat form a finite WGS84 coordinate.
func NewPoint(lng, lat float64) (orb.Point, error) {
	if err := checkCoordinate(lng, lat); err != nil {
		return orb.Point{}, fmt.Errorf("%w: %v", errs.ErrBadInput, err)
	}
	return orb.Point{lng, lat}, nil
}

func checkCoordinate(lng, lat float64) error {
	if math.IsNaN(lng) || math.IsNaN(lat) || math.IsInf(lng, 0) || math.IsInf(lat, 0) {
		return fmt.Errorf("coordinate must be finite")
	}
	if lng < -180 || lng > 180 {
		return fmt.Errorf("longitude %v out of range [-180,180]", lng)
	}
	if lat < -90 || lat > 90 {
		return fmt.Errorf("latitude %v out of range [-90,90]", lat)
	}
	return nil
}

// ParseBoundary decodes a GeoJSON boundary into a multipolygon and validates it.
func ParseBoundary(raw []byte) (orb.MultiPolygon, error) {
	mp, err := DecodeBoundary(raw)
	if err != nil {
		return nil, err
	}
	if err := ValidateBoundary(mp); err != nil {
		return nil, err
	}
	return mp, nil
}

// DecodeBoundary decodes without validating; use it for boundaries that were
// validated when they were stored.
func DecodeBoundary(raw []byte) (orb.MultiPolygon, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidBoundary, err)
	}

	var g orb.Geometry
	switch head.Type {
	case "Feature":
		f, err := geojson.UnmarshalFeature(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrInvalidBoundary, err)
		}
		g = f.Geometry
	default:
		gg, err := geojson.UnmarshalGeometry(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrInvalidBoundary, err)
		}
		g = gg.Geometry()
	}

	var mp orb.MultiPolygon
	switch v := g.(type) {
	case orb.Polygon:
		mp = orb.MultiPolygon{v}
	case orb.MultiPolygon:
		mp = v
	default:
		return nil, fmt.Errorf("%w: geometry type %q is not Polygon or MultiPolygon", errs.ErrInvalidBoundary, head.Type)
	}
	return mp, nil
}

// EncodeBoundary renders mp as a GeoJSON geometry; a single polygon is written as Polygon.
func EncodeBoundary(mp orb.MultiPolygon) ([]byte, error) {
	var g orb.Geometry = mp
	if len(mp) == 1 {
		g = mp[0]
	}
	return geojson.NewGeometry(g).MarshalJSON()
}

// ValidateBoundary requires every ring to be closed, to have at least four
// positions and a non-zero area, and not to cross itself.
func ValidateBoundary(mp orb.MultiPolygon) error {
	if len(mp) == 0 {
		return fmt.Errorf("%w: no polygons", errs.ErrInvalidBoundary)
	}
	for pi, poly := range mp {
		if len(poly) == 0 {
			return fmt.Errorf("%w: polygon %d has no rings", errs.ErrInvalidBoundary, pi)
		}
		for ri, ring := range poly {
			if err := validateRing(ring); err != nil {
				return fmt.Errorf("%w: polygon %d ring %d: %v", errs.ErrInvalidBoundary, pi, ri, err)
			}
		}
	}
	return nil
}

func validateRing(ring orb.Ring) error {
	if len(ring) < 4 {
		return fmt.Errorf("needs at least 4 positions, got %d", len(ring))
	}
	for _, p := range ring {
		if err := checkCoordinate(p.Lon(), p.Lat()); err != nil {
			return err
		}
	}
	if !ring.Closed() {
		return fmt.Errorf("ring is not closed")
	}
	if planar.Area(ring) == 0 {
		return fmt.Errorf("ring has zero area")
	}
	if selfIntersects(ring) {
		return fmt.Errorf("ring intersects itself")
	}
	return nil
}

// selfIntersects reports whether two non-adjacent edges of the closed ring touch.
func selfIntersects(ring orb.Ring) bool {
	n := len(ring) - 1 // edges
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if j == i+1 || (i == 0 && j == n-1) {
				continue
			}
			if segmentsIntersect(ring[i], ring[i+1], ring[j], ring[j+1]) {
				return true
			}
		}
	}
	return false
}

func segmentsIntersect(p1, p2, q1, q2 orb.Point) bool {
	d1 := orientation(q1, q2, p1)
	d2 := orientation(q1, q2, p2)
	d3 := orientation(p1, p2, q1)
	d4 := orientation(p1, p2, q2)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) && ((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	switch {
	case d1 == 0 && onSegment(q1, q2, p1):
		return true
	case d2 == 0 && onSegment(q1, q2, p2):
		return true
	case d3 == 0 && onSegment(p1, p2, q1):
		return true
	case d4 == 0 && onSegment(p1, p2, q2):
		return true
	}
	return false
}

func orientation(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

// onSegment assumes c is collinear with a-b.
func onSegment(a, b, c orb.Point) bool {
	return math.Min(a[0], b[0]) <= c[0] && c[0] <= math.Max(a[0], b[0]) &&
		math.Min(a[1], b[1]) <= c[1] && c[1] <= math.Max(a[1], b[1])
}

// Contains reports whether p lies inside mp. Points inside a hole are outside.
func Contains(mp orb.MultiPolygon, p orb.Point) bool {
	return planar.MultiPolygonContains(mp, p)
}

package geo

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psds-microservice/cityfix-service/internal/errs"
)

const springfield = `{"type":"Polygon","coordinates":[[[0,0],[0,10],[10,10],[10,0],[0,0]]]}`

func TestParseBoundary_Containment(t *testing.T) {
	mp, err := ParseBoundary([]byte(springfield))
	require.NoError(t, err)

	assert.True(t, Contains(mp, orb.Point{5, 5}))
	assert.False(t, Contains(mp, orb.Point{50, 50}))
	assert.False(t, Contains(mp, orb.Point{-0.5, 5}))
}

func TestParseBoundary_Feature(t *testing.T) {
	raw := `{"type":"Feature","properties":{"name":"Springfield"},"geometry":` + springfield + `}`
	mp, err := ParseBoundary([]byte(raw))
	require.NoError(t, err)
	assert.Len(t, mp, 1)
}

func TestParseBoundary_MultiPolygonWithHole(t *testing.T) {
	raw := `{"type":"MultiPolygon","coordinates":[
		[[[0,0],[0,10],[10,10],[10,0],[0,0]],[[4,4],[6,4],[6,6],[4,6],[4,4]]],
		[[[20,20],[20,30],[30,30],[30,20],[20,20]]]
	]}`
	mp, err := ParseBoundary([]byte(raw))
	require.NoError(t, err)

	assert.True(t, Contains(mp, orb.Point{2, 2}))
	assert.False(t, Contains(mp, orb.Point{5, 5}), "point in hole")
	assert.True(t, Contains(mp, orb.Point{25, 25}))
	assert.False(t, Contains(mp, orb.Point{15, 15}))
}

func TestParseBoundary_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{`},
		{"point geometry", `{"type":"Point","coordinates":[1,2]}`},
		{"open ring", `{"type":"Polygon","coordinates":[[[0,0],[0,10],[10,10],[10,0]]]}`},
		{"too few positions", `{"type":"Polygon","coordinates":[[[0,0],[0,10],[0,0]]]}`},
		{"bowtie", `{"type":"Polygon","coordinates":[[[0,0],[10,10],[10,0],[0,10],[0,0]]]}`},
		{"zero area", `{"type":"Polygon","coordinates":[[[0,0],[5,5],[10,10],[0,0]]]}`},
		{"latitude out of range", `{"type":"Polygon","coordinates":[[[0,0],[0,100],[10,100],[10,0],[0,0]]]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBoundary([]byte(tt.raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, errs.ErrInvalidBoundary)
		})
	}
}

func TestEncodeBoundary_RoundTripsPolygon(t *testing.T) {
	mp, err := ParseBoundary([]byte(springfield))
	require.NoError(t, err)

	raw, err := EncodeBoundary(mp)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"type":"Polygon"`)

	again, err := ParseBoundary(raw)
	require.NoError(t, err)
	assert.Equal(t, mp, again)
}

func TestNewPoint(t *testing.T) {
	p, err := NewPoint(12.5, 41.9)
	require.NoError(t, err)
	assert.Equal(t, orb.Point{12.5, 41.9}, p)

	for _, c := range [][2]float64{
		{math.NaN(), 0},
		{0, math.Inf(1)},
		{181, 0},
		{0, -91},
	} {
		_, err := NewPoint(c[0], c[1])
		assert.ErrorIs(t, err, errs.ErrBadInput)
	}
}

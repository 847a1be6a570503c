package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psds-microservice/cityfix-service/internal/errs"
)

func TestMunicipalityService_Register(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m, err := f.municipalities.Register(ctx, RegisterMunicipalityInput{
		Name:         "San Giovanni <b>in</b> Fiore",
		Boundary:     json.RawMessage(`{"type":"Feature","properties":{},"geometry":` + springfieldBoundary + `}`),
		ManagerID:    "mgr-1",
		PrimaryColor: "#1e40af",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "San Giovanni in Fiore", m.Name)
	assert.Equal(t, "san-giovanni-in-fiore", m.Slug)
	assert.Equal(t, 0.0, m.MinLng)
	assert.Equal(t, 0.0, m.MinLat)
	assert.Equal(t, 10.0, m.MaxLng)
	assert.Equal(t, 10.0, m.MaxLat)
	assert.JSONEq(t, springfieldBoundary, string(m.Boundary), "stored as the bare geometry")

	got, err := f.municipalities.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.Slug, got.Slug)
	assert.Equal(t, "mgr-1", got.ManagerID)

	list, err := f.municipalities.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, m.ID, list[0].ID)
}

func TestMunicipalityService_RegisterRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		in      RegisterMunicipalityInput
		wantErr error
	}{
		{
			name:    "missing name",
			in:      RegisterMunicipalityInput{Boundary: json.RawMessage(springfieldBoundary)},
			wantErr: errs.ErrBadInput,
		},
		{
			name:    "markup only name",
			in:      RegisterMunicipalityInput{Name: "<i></i>", Boundary: json.RawMessage(springfieldBoundary)},
			wantErr: errs.ErrBadInput,
		},
		{
			name:    "missing boundary",
			in:      RegisterMunicipalityInput{Name: "Springfield"},
			wantErr: errs.ErrBadInput,
		},
		{
			name:    "bad color",
			in:      RegisterMunicipalityInput{Name: "Springfield", Boundary: json.RawMessage(springfieldBoundary), PrimaryColor: "blue"},
			wantErr: errs.ErrBadInput,
		},
		{
			name:    "open ring",
			in:      RegisterMunicipalityInput{Name: "Springfield", Boundary: json.RawMessage(`{"type":"Polygon","coordinates":[[[0,0],[0,10],[10,10],[10,0]]]}`)},
			wantErr: errs.ErrInvalidBoundary,
		},
		{
			name:    "bow tie",
			in:      RegisterMunicipalityInput{Name: "Springfield", Boundary: json.RawMessage(`{"type":"Polygon","coordinates":[[[0,0],[10,10],[10,0],[0,10],[0,0]]]}`)},
			wantErr: errs.ErrInvalidBoundary,
		},
		{
			name:    "point geometry",
			in:      RegisterMunicipalityInput{Name: "Springfield", Boundary: json.RawMessage(`{"type":"Point","coordinates":[5,5]}`)},
			wantErr: errs.ErrInvalidBoundary,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.municipalities.Register(ctx, tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	list, err := f.municipalities.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, f.cache.invalidated)
}

func TestMunicipalityService_DuplicateSlug(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Springfield", springfieldBoundary)

	_, err := f.municipalities.Register(context.Background(), RegisterMunicipalityInput{
		Name:     "SPRINGFIELD",
		Boundary: json.RawMessage(shelbyvilleBoundary),
	})
	assert.ErrorIs(t, err, errs.ErrDuplicate)
}

func TestMunicipalityService_GetUnknown(t *testing.T) {
	f := newFixture(t)
	_, err := f.municipalities.Get(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, errs.ErrMunicipalityNotFound)
}

func TestMunicipalityService_NameKeepsPlainText(t *testing.T) {
	f := newFixture(t)
	m := f.register(t, "Bar & Grill d'Italia", springfieldBoundary)
	assert.Equal(t, "Bar & Grill d'Italia", m.Name)
	assert.NotContains(t, m.Slug, "amp")
	assert.NotContains(t, m.Slug, "39")
	assert.Contains(t, m.Slug, "grill")

	got, err := f.municipalities.Get(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.Name, got.Name)
}

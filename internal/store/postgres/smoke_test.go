//go:build postgres

package postgres

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/icon-grid-etl/internal/domain"
)

// These tests hit a real PostgreSQL instance with the icon schema applied and
// require a valid DATABASE_URL env var.
// Run with: go test -tags=postgres ./internal/store/postgres/ -v -count=1

func smokeStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Fatal("DATABASE_URL must be set to run smoke tests")
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := Connect(context.Background(), dsn, "icon", 2, logger)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestSmoke_FileRoundTrip(t *testing.T) {
	s := smokeStore(t)
	ctx := context.Background()

	run := time.Date(2018, time.October, 9, 12, 0, 0, 0, time.UTC)
	rec := domain.NewFileRecord(run, 5, domain.Temperature2m)
	rec.SufficientSize = true
	rec.Decompressed = true
	rec.Validity = domain.ValidityValid
	rec.MissingCoordinates = 7

	require.NoError(t, s.SaveFile(ctx, rec))

	got, err := s.FindFile(ctx, rec.Name)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.Name, got.Name)
	assert.Equal(t, run, got.ModelRun)
	assert.Equal(t, domain.Temperature2m, got.Parameter)
	assert.Equal(t, domain.ValidityValid, got.Validity)
	assert.Equal(t, 7, got.MissingCoordinates)
}

func TestSmoke_FindFileAbsent(t *testing.T) {
	s := smokeStore(t)

	got, err := s.FindFile(context.Background(), "no-such-file")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSmoke_ObservationRoundTrip(t *testing.T) {
	s := smokeStore(t)
	ctx := context.Background()

	coords, err := s.CoordinatesInRect(ctx, domain.DefaultRect)
	require.NoError(t, err)
	require.NotEmpty(t, coords, "seed the coordinate catalog first")

	at := time.Date(2018, time.October, 9, 15, 0, 0, 0, time.UTC)
	o := domain.NewObservation(at, coords[0])
	v := 283.15
	o.Set(domain.Temperature2m, &v)

	require.NoError(t, s.UpsertObservations(ctx, []*domain.Observation{o}))

	found, err := s.FindObservations(ctx, []int{coords[0].ID}, at)
	require.NoError(t, err)
	require.NotNil(t, found[coords[0].ID])
	assert.Equal(t, v, *found[coords[0].ID].Get(domain.Temperature2m))
}

func TestSmoke_Renew(t *testing.T) {
	s := smokeStore(t)
	assert.NoError(t, s.Renew(context.Background()))
}

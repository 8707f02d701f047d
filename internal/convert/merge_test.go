package convert

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/icon-grid-etl/internal/domain"
	"github.com/couchcryptid/icon-grid-etl/internal/store"
)

func fv(v float64) *float64 { return &v }

func TestApply(t *testing.T) {
	run := time.Date(2018, time.October, 9, 12, 0, 0, 0, time.UTC)
	c1 := domain.Coordinate{ID: 1, Latitude: 52.5, Longitude: 13.4}
	c2 := domain.Coordinate{ID: 2, Latitude: 48.1, Longitude: 11.6}

	results := []*domain.ExtractionResult{
		{Parameter: domain.Temperature2m, Valid: true, Values: map[domain.Coordinate]*float64{
			c1: fv(283.15),
			c2: nil,
		}},
		{Parameter: domain.Albedo, Valid: true, Values: map[domain.Coordinate]*float64{
			c1: fv(12),
		}},
		{Parameter: domain.Roughness, Valid: false, Values: map[domain.Coordinate]*float64{
			c1: fv(99),
		}},
	}

	fresh, newValues := Apply(results, run, 3)

	assert.True(t, newValues)
	require.Len(t, fresh, 1, "coordinates with only nil values get no observation")

	o := fresh[1]
	require.NotNil(t, o)
	assert.Equal(t, run.Add(3*time.Hour), o.Time)
	assert.Equal(t, 283.15, *o.Get(domain.Temperature2m))
	assert.Equal(t, 12.0, *o.Get(domain.Albedo))
	assert.Nil(t, o.Get(domain.Roughness), "invalid results contribute nothing")
}

func TestApply_NoValues(t *testing.T) {
	run := time.Date(2018, time.October, 9, 12, 0, 0, 0, time.UTC)
	results := []*domain.ExtractionResult{
		{Parameter: domain.Temperature2m, Valid: true, Values: map[domain.Coordinate]*float64{}},
		{Parameter: domain.Albedo, Valid: false},
	}

	fresh, newValues := Apply(results, run, 0)

	assert.False(t, newValues)
	assert.Empty(t, fresh)
}

func TestMerge_InterpolatesIntoExisting(t *testing.T) {
	at := time.Date(2018, time.October, 9, 15, 0, 0, 0, time.UTC)
	coord := domain.Coordinate{ID: 1, Latitude: 52.5, Longitude: 13.4}

	s := store.NewMemoryStore([]domain.Coordinate{coord})
	existing := domain.NewObservation(at, coord)
	existing.Set(domain.Temperature2m, fv(280))
	require.NoError(t, s.UpsertObservations(context.Background(), []*domain.Observation{existing}))

	fresh := domain.NewObservation(at, coord)
	fresh.Set(domain.Temperature2m, fv(290))

	m := NewMerger(s, 0.67)
	merged, err := m.Merge(context.Background(), map[int]*domain.Observation{1: fresh})

	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.InDelta(t, 280*0.33+290*0.67, *merged[0].Get(domain.Temperature2m), 1e-9)
}

func TestMerge_NoHistoryTakesFreshValues(t *testing.T) {
	at := time.Date(2018, time.October, 9, 15, 0, 0, 0, time.UTC)
	coord := domain.Coordinate{ID: 1, Latitude: 52.5, Longitude: 13.4}

	s := store.NewMemoryStore([]domain.Coordinate{coord})
	fresh := domain.NewObservation(at, coord)
	fresh.Set(domain.Temperature2m, fv(290))

	m := NewMerger(s, 0.67)
	merged, err := m.Merge(context.Background(), map[int]*domain.Observation{1: fresh})

	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.Equal(t, 290.0, *merged[0].Get(domain.Temperature2m))
}

package domain

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func TestInterpolateValue(t *testing.T) {
	got := InterpolateValue(f(0.1063), f(0.0001), 0.67)
	require.NotNil(t, got)
	assert.InDelta(t, 0.1063*0.33+0.0001*0.67, *got, 1e-9)
}

func TestInterpolateValue_RatioExtremes(t *testing.T) {
	got := InterpolateValue(f(10), f(20), 0)
	require.NotNil(t, got)
	assert.Equal(t, 10.0, *got, "ratio 0 keeps the earlier value")

	got = InterpolateValue(f(10), f(20), 1)
	require.NotNil(t, got)
	assert.Equal(t, 20.0, *got, "ratio 1 takes the newer value")
}

func TestInterpolateValue_NilRules(t *testing.T) {
	assert.Nil(t, InterpolateValue(nil, nil, 0.67))

	got := InterpolateValue(f(5), nil, 0.67)
	require.NotNil(t, got)
	assert.Equal(t, 5.0, *got, "nil newer keeps the earlier value unweighted")

	got = InterpolateValue(nil, f(7), 0.67)
	require.NotNil(t, got)
	assert.Equal(t, 7.0, *got, "nil earlier takes the newer value unweighted")
}

func TestObservation_SetIgnoresNil(t *testing.T) {
	o := NewObservation(time.Now(), Coordinate{ID: 1})
	o.Set(Temperature2m, f(283.15))
	o.Set(Temperature2m, nil)

	require.NotNil(t, o.Get(Temperature2m))
	assert.Equal(t, 283.15, *o.Get(Temperature2m))
}

func TestObservation_Interpolate_KeepsIdentity(t *testing.T) {
	at := time.Date(2018, time.October, 9, 15, 0, 0, 0, time.UTC)
	coord := Coordinate{ID: 42, Latitude: 52.5, Longitude: 13.4}

	earlier := NewObservation(at, coord)
	earlier.Set(Temperature2m, f(280))
	earlier.Set(Albedo, f(12))

	newer := NewObservation(at, coord)
	newer.Set(Temperature2m, f(290))
	newer.Set(Pressure20m, f(101325))

	earlier.Interpolate(newer, 0.67)

	assert.Equal(t, coord, earlier.Coordinate)
	assert.InDelta(t, 280*0.33+290*0.67, *earlier.Get(Temperature2m), 1e-9)
	assert.Equal(t, 12.0, *earlier.Get(Albedo), "slot absent in newer survives")
	assert.Equal(t, 101325.0, *earlier.Get(Pressure20m), "slot absent in earlier is taken over")
	assert.Nil(t, earlier.Get(Roughness))
}

func TestAverageObservations(t *testing.T) {
	a := &Observation{}
	a.Set(Temperature2m, f(280))
	a.Set(Albedo, f(10))

	b := &Observation{}
	b.Set(Temperature2m, f(290))

	avg := AverageObservations(a, b)

	want := &Observation{}
	want.Set(Temperature2m, f(285))
	want.Set(Albedo, f(10))

	if diff := cmp.Diff(want, avg); diff != "" {
		t.Errorf("average mismatch (-want +got):\n%s", diff)
	}
}

func TestRect_Contains(t *testing.T) {
	assert.True(t, DefaultRect.Contains(GridPoint{Latitude: 52.5, Longitude: 13.4}))
	assert.False(t, DefaultRect.Contains(GridPoint{Latitude: 40.0, Longitude: 13.4}))
	assert.False(t, DefaultRect.Contains(GridPoint{Latitude: 52.5, Longitude: 25.0}))
}

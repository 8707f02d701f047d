package domain

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

var testRun = time.Date(2018, time.October, 9, 12, 0, 0, 0, time.UTC)

func TestFileName(t *testing.T) {
	assert.Equal(t,
		"icon-eu_europe_regular-lat-lon_single-level_2018100912_011_ASWDIFD_S",
		FileName(testRun, 11, DiffuseRadiationDown))
	assert.Equal(t,
		"icon-eu_europe_regular-lat-lon_model-level_2018100912_000_60_P",
		FileName(testRun, 0, Pressure20m))
}

func TestFileRecord_Paths(t *testing.T) {
	rec := NewFileRecord(testRun, 3, Temperature2m)

	assert.Equal(t, "2018100912", rec.RunFolder())
	assert.Equal(t, rec.Name+".grib2", rec.DecodedName())
	assert.Equal(t, rec.Name+".grib2.bz2", rec.ArchiveName())
	assert.Equal(t, filepath.Join("downloads", "2018100912", rec.ArchiveName()), rec.ArchivePath("downloads"))
	assert.Equal(t, filepath.Join("downloads", "2018100912", rec.DecodedName()), rec.DecodedPath("downloads"))
}

func TestFileRecord_SourceURL(t *testing.T) {
	rec := NewFileRecord(testRun, 11, DiffuseRadiationDown)
	assert.Equal(t,
		"https://opendata.dwd.de/weather/nwp/icon-eu/grib/12/aswdifd_s/"+
			"icon-eu_europe_regular-lat-lon_single-level_2018100912_011_ASWDIFD_S.grib2.bz2",
		rec.SourceURL())

	rec = NewFileRecord(time.Date(2018, time.October, 9, 3, 0, 0, 0, time.UTC), 0, Pressure65m)
	assert.Contains(t, rec.SourceURL(), "/03/p/")
}

func TestFileRecord_Retryable(t *testing.T) {
	rec := NewFileRecord(testRun, 0, Albedo)
	assert.True(t, rec.Retryable())

	rec.DownloadFails = 3
	assert.False(t, rec.Retryable(), "retry budget exhausted")

	rec.DownloadFails = 1
	rec.SufficientSize = true
	assert.False(t, rec.Retryable(), "complete downloads are never retried")
}

func TestFileRecord_StaleAndAbandoned(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testRun.Add(12 * time.Hour))
	rec := NewFileRecord(testRun, 0, Albedo)

	assert.False(t, rec.Stale(clock.Now()))
	assert.False(t, rec.Abandoned(clock.Now()))

	clock.Advance(13 * time.Hour)
	assert.True(t, rec.Stale(clock.Now()), "run older than a day is stale")
	assert.True(t, rec.Abandoned(clock.Now()))

	// The gates are independent: a recent run with a blown retry budget is
	// abandoned without being stale.
	fresh := NewFileRecord(clock.Now(), 0, Albedo)
	fresh.DownloadFails = 4
	assert.False(t, fresh.Stale(clock.Now()))
	assert.True(t, fresh.Abandoned(clock.Now()))
}

func TestFileRecord_Usable(t *testing.T) {
	rec := NewFileRecord(testRun, 0, Albedo)
	assert.False(t, rec.Usable(), "truncated download")

	rec.SufficientSize = true
	assert.True(t, rec.Usable())

	rec.Validity = ValidityInvalid
	assert.False(t, rec.Usable())

	rec.Validity = ValidityValid
	assert.True(t, rec.Usable())
}

func TestValidity_String(t *testing.T) {
	assert.Equal(t, "unknown", ValidityUnknown.String())
	assert.Equal(t, "valid", ValidityValid.String())
	assert.Equal(t, "invalid", ValidityInvalid.String())
}

package convert

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/icon-grid-etl/internal/domain"
	"github.com/couchcryptid/icon-grid-etl/internal/observability"
)

var extractRun = time.Date(2018, time.October, 9, 12, 0, 0, 0, time.UTC)

var testCatalog = []domain.Coordinate{
	{ID: 1, Latitude: 52.5, Longitude: 13.4, Kind: domain.KindICON},
	{ID: 2, Latitude: 48.1, Longitude: 11.6, Kind: domain.KindICON},
	{ID: 3, Latitude: 53.6, Longitude: 10.0, Kind: domain.KindICON},
}

// fakeDecoder writes an executable script that prints the given stdout and
// exits with the given code, standing in for grib_get_data.
func fakeDecoder(t *testing.T, stdout string, exitCode int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "grib_get_data")
	script := "#!/bin/sh\ncat <<'EOF'\n" + stdout + "EOF\nexit " + strconv.Itoa(exitCode) + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func newTestExtractor(t *testing.T, decoderPath string) (*Extractor, string, *domain.FileRecord) {
	t.Helper()
	dir := t.TempDir()
	rec := domain.NewFileRecord(extractRun, 0, domain.Temperature2m)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, rec.RunFolder()), 0o755))
	require.NoError(t, os.WriteFile(rec.DecodedPath(dir), []byte("grib"), 0o644))
	e := NewExtractor(decoderPath, "null", dir, testCatalog, slog.Default(), observability.NewMetricsForTesting())
	return e, dir, rec
}

func TestExtract(t *testing.T) {
	decoder := fakeDecoder(t, `Latitude Longitude Value
52.5 13.4 283.15
48.1 11.6 null
`, 0)
	e, _, rec := newTestExtractor(t, decoder)

	res, err := e.Extract(context.Background(), rec)

	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, domain.Temperature2m, res.Parameter)
	require.Len(t, res.Values, len(testCatalog))

	require.NotNil(t, res.Values[testCatalog[0]])
	assert.Equal(t, 283.15, *res.Values[testCatalog[0]])
	assert.Nil(t, res.Values[testCatalog[1]], "sentinel value maps to nil")
	assert.Nil(t, res.Values[testCatalog[2]], "uncovered catalog coordinate maps to nil")
	assert.Equal(t, 2, res.Missing)
}

func TestExtract_LegacyHeader(t *testing.T) {
	decoder := fakeDecoder(t, `Latitude, Longitude, Value
52.5 13.4 283.15
`, 0)
	e, _, rec := newTestExtractor(t, decoder)

	res, err := e.Extract(context.Background(), rec)

	require.NoError(t, err)
	assert.True(t, res.Valid)
	require.NotNil(t, res.Values[testCatalog[0]])
	assert.Equal(t, 283.15, *res.Values[testCatalog[0]])
}

func TestExtract_SkipsMalformedLines(t *testing.T) {
	decoder := fakeDecoder(t, `Latitude Longitude Value
52.5 13.4 283.15
garbage line with too many fields here
48.1 11.6 not-a-number
1 2
`, 0)
	e, _, rec := newTestExtractor(t, decoder)

	res, err := e.Extract(context.Background(), rec)

	require.NoError(t, err)
	assert.True(t, res.Valid, "scattered bad lines do not invalidate the file")
	require.NotNil(t, res.Values[testCatalog[0]])
	assert.Nil(t, res.Values[testCatalog[1]])
}

func TestExtract_NoDataLinesIsInvalid(t *testing.T) {
	decoder := fakeDecoder(t, "Latitude Longitude Value\n", 0)
	e, _, rec := newTestExtractor(t, decoder)

	res, err := e.Extract(context.Background(), rec)

	require.NoError(t, err)
	assert.False(t, res.Valid, "a header with zero decoder entries must invalidate the file")
	assert.Empty(t, res.Values)
}

func TestExtract_MissingHeaderIsInvalid(t *testing.T) {
	decoder := fakeDecoder(t, "52.5 13.4 283.15\n", 0)
	e, _, rec := newTestExtractor(t, decoder)

	res, err := e.Extract(context.Background(), rec)

	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Empty(t, res.Values)
}

func TestExtract_DecoderFailureIsInvalid(t *testing.T) {
	decoder := fakeDecoder(t, "", 1)
	e, _, rec := newTestExtractor(t, decoder)

	res, err := e.Extract(context.Background(), rec)

	require.NoError(t, err)
	assert.False(t, res.Valid)
}

func TestExtract_DecoderNotFoundIsInvalid(t *testing.T) {
	e, _, rec := newTestExtractor(t, "/nonexistent/grib_get_data")

	res, err := e.Extract(context.Background(), rec)

	require.NoError(t, err)
	assert.False(t, res.Valid, "an unlaunchable decoder degrades the file, not the run")
}

func TestExtract_GoneDecodedFileAborts(t *testing.T) {
	decoder := fakeDecoder(t, "Latitude Longitude Value\n", 0)
	e, dir, rec := newTestExtractor(t, decoder)
	require.NoError(t, os.Remove(rec.DecodedPath(dir)))

	_, err := e.Extract(context.Background(), rec)

	require.Error(t, err)
	assert.True(t, rec.DecodedDeleted)
	assert.True(t, rec.ArchiveDeleted)
}

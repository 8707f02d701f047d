package convert

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/couchcryptid/icon-grid-etl/internal/domain"
	"github.com/couchcryptid/icon-grid-etl/internal/observability"
)

// Extractor runs the external GRIB decoder over decoded files and turns its
// tabular output into per-coordinate values keyed against the coordinate
// catalog.
type Extractor struct {
	decoderPath  string
	missingValue string
	dir          string
	catalog      map[domain.GridPoint]domain.Coordinate
	logger       *slog.Logger
	metrics      *observability.Metrics
}

// NewExtractor creates an extractor re-keying decoder output against the
// given catalog coordinates.
func NewExtractor(decoderPath, missingValue, dir string, coords []domain.Coordinate, logger *slog.Logger, metrics *observability.Metrics) *Extractor {
	catalog := make(map[domain.GridPoint]domain.Coordinate, len(coords))
	for _, c := range coords {
		catalog[c.Point()] = c
	}
	return &Extractor{
		decoderPath:  decoderPath,
		missingValue: missingValue,
		dir:          dir,
		catalog:      catalog,
		logger:       logger,
		metrics:      metrics,
	}
}

// Extract decodes one file into an ExtractionResult. Decoder failures and
// garbled output yield an invalid result, not an error; an error is returned
// only when the decoded file is gone from disk, which means the whole
// timestep's bookkeeping is off and extraction consumption should abort.
func (e *Extractor) Extract(ctx context.Context, rec *domain.FileRecord) (*domain.ExtractionResult, error) {
	timer := prometheus.NewTimer(e.metrics.ExtractionDuration)
	defer timer.ObserveDuration()

	path := rec.DecodedPath(e.dir)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			rec.DecodedDeleted = true
			rec.ArchiveDeleted = true
			return nil, fmt.Errorf("decoded file %s is gone from disk", rec.Name)
		}
		return nil, fmt.Errorf("stat decoded file %s: %w", rec.Name, err)
	}

	args := []string{"-m", e.missingValue}
	if !rec.Parameter.SingleLevel() {
		args = append(args, "-w", fmt.Sprintf("bottomLevel=%d", rec.Parameter.Level()))
	}
	args = append(args, path)

	cmd := exec.CommandContext(ctx, e.decoderPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	invalid := func() *domain.ExtractionResult {
		e.metrics.FilesExtracted.WithLabelValues("invalid").Inc()
		return &domain.ExtractionResult{Parameter: rec.Parameter, Valid: false}
	}

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			e.logger.Error("decoder exited with failure",
				"file", rec.Name, "exit_code", exitErr.ExitCode(), "stderr", strings.TrimSpace(stderr.String()))
		} else {
			e.logger.Error("decoder could not be launched, check that DECODER_PATH points at grib_get_data",
				"file", rec.Name, "decoder", e.decoderPath, "error", err)
		}
		return invalid(), nil
	}
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		e.logger.Debug("decoder stderr", "file", rec.Name, "stderr", msg)
	}

	values, ok := e.parse(&stdout, rec.Name)
	if !ok {
		return invalid(), nil
	}
	if len(values) == 0 {
		e.logger.Error("decoder output contained no data lines", "file", rec.Name)
		return invalid(), nil
	}

	result := &domain.ExtractionResult{
		Parameter: rec.Parameter,
		Values:    make(map[domain.Coordinate]*float64, len(e.catalog)),
		Valid:     true,
	}
	for point, coord := range e.catalog {
		v, found := values[point]
		if !found || v == nil {
			result.Missing++
		}
		result.Values[coord] = v
	}
	e.metrics.FilesExtracted.WithLabelValues("valid").Inc()
	return result, nil
}

// parse reads the decoder's whitespace-separated latitude/longitude/value
// table. A recognizable header line is required; without it the output is
// treated as structurally broken and the file as invalid.
func (e *Extractor) parse(out *bytes.Buffer, name string) (map[domain.GridPoint]*float64, bool) {
	scanner := bufio.NewScanner(out)
	if !scanner.Scan() || !validHeader(scanner.Text()) {
		e.logger.Error("decoder output has no recognizable header", "file", name)
		return nil, false
	}

	values := make(map[domain.GridPoint]*float64)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			e.logger.Warn("skipping malformed decoder line", "file", name, "line", line)
			continue
		}
		lat, latErr := strconv.ParseFloat(fields[0], 64)
		lon, lonErr := strconv.ParseFloat(fields[1], 64)
		if latErr != nil || lonErr != nil {
			e.logger.Warn("skipping line with unparseable coordinates", "file", name, "line", line)
			continue
		}
		point := domain.GridPoint{Latitude: lat, Longitude: lon}
		if strings.EqualFold(fields[2], e.missingValue) {
			values[point] = nil
			continue
		}
		v, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			e.logger.Warn("skipping line with unparseable value", "file", name, "line", line)
			continue
		}
		values[point] = &v
	}
	if err := scanner.Err(); err != nil {
		e.logger.Error("reading decoder output failed", "file", name, "error", err)
		return nil, false
	}
	return values, true
}

// validHeader accepts both the current "Latitude Longitude Value" header and
// the comma-separated form older decoder builds print.
func validHeader(line string) bool {
	normalized := strings.Join(strings.Fields(strings.ReplaceAll(line, ",", " ")), " ")
	return strings.EqualFold(normalized, "Latitude Longitude Value")
}

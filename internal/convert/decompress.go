// Package convert implements the ICON-EU conversion pipeline: decompressing
// downloaded archives, extracting parameter grids through the GRIB decoder,
// merging them into observations and persisting the result.
package convert

import (
	"compress/bzip2"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/couchcryptid/icon-grid-etl/internal/domain"
	"github.com/couchcryptid/icon-grid-etl/internal/observability"
)

// Decompressor turns downloaded .bz2 archives into decoded GRIB2 files on
// disk. It only mutates the FileRecord it was handed; persisting the record
// is the caller's job.
type Decompressor struct {
	dir     string
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewDecompressor creates a decompressor writing into the working directory.
func NewDecompressor(dir string, logger *slog.Logger, metrics *observability.Metrics) *Decompressor {
	return &Decompressor{dir: dir, logger: logger, metrics: metrics}
}

// Decompress unpacks the record's archive next to it and marks the record
// decompressed. A missing archive flags ArchiveDeleted so the record is not
// retried forever against a file that no longer exists. It returns false when
// the decoded file did not materialize.
func (d *Decompressor) Decompress(rec *domain.FileRecord) bool {
	archive, err := os.Open(rec.ArchivePath(d.dir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			rec.ArchiveDeleted = true
			d.logger.Warn("archive vanished before decompression", "file", rec.Name)
		} else {
			d.logger.Error("opening archive failed", "file", rec.Name, "error", err)
		}
		d.metrics.DecompressionErrors.Inc()
		return false
	}
	defer archive.Close()

	decoded, err := os.Create(rec.DecodedPath(d.dir))
	if err != nil {
		d.logger.Error("creating decoded file failed", "file", rec.Name, "error", err)
		d.metrics.DecompressionErrors.Inc()
		return false
	}
	defer decoded.Close()

	if _, err := io.Copy(decoded, bzip2.NewReader(archive)); err != nil {
		d.logger.Error("decompression failed", "file", rec.Name, "error", err)
		d.metrics.DecompressionErrors.Inc()
		// Leave no truncated decoded file behind for the decoder to trip on.
		decoded.Close()
		if rmErr := os.Remove(rec.DecodedPath(d.dir)); rmErr != nil {
			d.logger.Error("removing truncated decoded file failed", "file", rec.Name, "error", rmErr)
		}
		return false
	}

	rec.Decompressed = true
	d.metrics.FilesDecompressed.Inc()
	d.logger.Debug("archive decompressed", "file", rec.Name)
	return true
}

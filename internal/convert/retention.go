package convert

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/couchcryptid/icon-grid-etl/internal/domain"
	"github.com/couchcryptid/icon-grid-etl/internal/observability"
)

// Eraser applies the fault-tolerance verdict to extracted files and deletes
// their on-disk artifacts once nothing will read them again. Deletion is
// opt-in; with it disabled files pile up for manual inspection.
type Eraser struct {
	dir            string
	faultTolerance float64
	deleteFiles    bool
	catalogSize    int
	logger         *slog.Logger
	metrics        *observability.Metrics
}

// NewEraser creates an eraser judging files against the given catalog size.
func NewEraser(dir string, faultTolerance float64, deleteFiles bool, catalogSize int, logger *slog.Logger, metrics *observability.Metrics) *Eraser {
	return &Eraser{
		dir:            dir,
		faultTolerance: faultTolerance,
		deleteFiles:    deleteFiles,
		catalogSize:    catalogSize,
		logger:         logger,
		metrics:        metrics,
	}
}

// Validate marks the record persisted when its missing-coordinate ratio stays
// below the fault tolerance. Rejected files keep Persisted false and stay on
// disk until abandonment cleanup picks them up.
func (e *Eraser) Validate(rec *domain.FileRecord) {
	if e.catalogSize == 0 {
		return
	}
	ratio := float64(rec.MissingCoordinates) / float64(e.catalogSize)
	if ratio < e.faultTolerance {
		rec.Persisted = true
		e.metrics.FilesPersisted.Inc()
		return
	}
	e.metrics.FilesRejected.Inc()
	e.logger.Warn("file rejected, too many coordinates missing",
		"file", rec.Name, "missing_percent", ratio*100)
}

// Erase removes the record's on-disk artifacts that are no longer needed.
// The archive goes once it has been decompressed. The decoded file goes once
// the record is persisted, invalid, or was never a complete download; its
// removal resets Decompressed so a later retry starts from the archive again.
func (e *Eraser) Erase(rec *domain.FileRecord) {
	if !e.deleteFiles {
		return
	}
	if rec.Decompressed && !rec.ArchiveDeleted {
		if e.remove(rec.ArchivePath(e.dir), rec.Name) {
			rec.ArchiveDeleted = true
		}
	}
	done := rec.Persisted || rec.Validity == domain.ValidityInvalid || !rec.SufficientSize
	if done && !rec.DecodedDeleted {
		if e.remove(rec.DecodedPath(e.dir), rec.Name) {
			rec.DecodedDeleted = true
			rec.Decompressed = false
		}
	}
}

func (e *Eraser) remove(path, name string) bool {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		e.logger.Error("deleting file failed", "file", name, "path", path, "error", err)
		return false
	}
	e.metrics.FilesErased.Inc()
	return true
}

// Package store defines the persistence boundary the conversion pipeline
// consumes. The pipeline only ever needs find-by-key, batched upserts and a
// handful of aggregate queries; schema management lives with the
// implementations.
package store

import (
	"context"
	"time"

	"github.com/couchcryptid/icon-grid-etl/internal/domain"
)

// FileStore tracks per-file lifecycle records.
type FileStore interface {
	// FindFile returns the record for the given file name, or nil if the
	// file has never been seen.
	FindFile(ctx context.Context, name string) (*domain.FileRecord, error)
	// SaveFile inserts or fully updates a record keyed by its name.
	SaveFile(ctx context.Context, rec *domain.FileRecord) error
	// OldestUnprocessedModelRun returns the oldest model run that still has
	// downloaded but unpersisted, not-known-invalid files. ok is false when
	// there is nothing to process.
	OldestUnprocessedModelRun(ctx context.Context) (run time.Time, ok bool, err error)
	// NewestDownloadedModelRun returns the newest model run any record
	// exists for. ok is false when the store is empty.
	NewestDownloadedModelRun(ctx context.Context) (run time.Time, ok bool, err error)
}

// CoordinateStore serves the read-only coordinate catalog.
type CoordinateStore interface {
	// CoordinatesInRect lists catalog coordinates inside the bounding box.
	CoordinatesInRect(ctx context.Context, r domain.Rect) ([]domain.Coordinate, error)
}

// ObservationStore persists merged observations.
type ObservationStore interface {
	// FindObservations bulk-loads persisted observations for the given
	// coordinate IDs at one timestamp, keyed by coordinate ID.
	FindObservations(ctx context.Context, coordinateIDs []int, at time.Time) (map[int]*domain.Observation, error)
	// UpsertObservations writes observations keyed by (coordinate, time),
	// updating all parameter columns on conflict. Implementations batch
	// internally; a failed batch must not abort its siblings.
	UpsertObservations(ctx context.Context, obs []*domain.Observation) error
	// Renew flushes and recycles the underlying session so per-connection
	// resource growth stays bounded over a long run.
	Renew(ctx context.Context) error
}

// Store is the full persistence surface the run driver wires up.
type Store interface {
	FileStore
	CoordinateStore
	ObservationStore
	Close()
}

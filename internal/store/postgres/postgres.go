// Package postgres implements the store interfaces on PostgreSQL via pgx.
//
// Schema expectations: a coordinates table with stable surrogate IDs, a files
// table keyed by file name, and a weather table keyed by
// (coordinate_id, time) with one column per tracked parameter.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/icon-grid-etl/internal/domain"
)

// batchSize is the number of rows per upsert statement and per lookup chunk.
const batchSize = 500

// Store is a pgx-backed implementation of store.Store.
type Store struct {
	pool    *pgxpool.Pool
	schema  string
	logger  *slog.Logger
	workers int
}

// Connect opens a pool for the given DSN and verifies connectivity. A failure
// here is run-fatal by design: the pipeline must not start without its store.
func Connect(ctx context.Context, dsn, schema string, workers int, logger *slog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if workers <= 0 {
		workers = 1
	}
	if int(cfg.MaxConns) < workers+1 {
		cfg.MaxConns = int32(workers + 1)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool, schema: sanitizeIdent(schema), logger: logger, workers: workers}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Renew recycles all pooled connections after a timestep so a long run does
// not accumulate per-connection state on the server side.
func (s *Store) Renew(ctx context.Context) error {
	s.pool.Reset()
	return s.pool.Ping(ctx)
}

func (s *Store) FindFile(ctx context.Context, name string) (*domain.FileRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT name, modelrun, timestep, parameter, download_fails, sufficient_size,
		       download_date, decompressed, missing_coordinates, valid_file, persisted,
		       archivefile_deleted, decodedfile_deleted
		FROM %s.files WHERE name = $1`, s.schema), name)

	var rec domain.FileRecord
	var paramColumn string
	var validFile *bool
	err := row.Scan(&rec.Name, &rec.ModelRun, &rec.Timestep, &paramColumn,
		&rec.DownloadFails, &rec.SufficientSize, &rec.DownloadDate, &rec.Decompressed,
		&rec.MissingCoordinates, &validFile, &rec.Persisted,
		&rec.ArchiveDeleted, &rec.DecodedDeleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find file %s: %w", name, err)
	}
	rec.ModelRun = rec.ModelRun.UTC()
	if rec.Parameter, err = domain.ParseParameter(paramColumn); err != nil {
		return nil, fmt.Errorf("find file %s: %w", name, err)
	}
	rec.Validity = validityFromBool(validFile)
	return &rec, nil
}

func (s *Store) SaveFile(ctx context.Context, rec *domain.FileRecord) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s.files
			(name, modelrun, timestep, parameter, download_fails, sufficient_size,
			 download_date, decompressed, missing_coordinates, valid_file, persisted,
			 archivefile_deleted, decodedfile_deleted)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (name) DO UPDATE SET
			download_fails = excluded.download_fails,
			sufficient_size = excluded.sufficient_size,
			download_date = excluded.download_date,
			decompressed = excluded.decompressed,
			missing_coordinates = excluded.missing_coordinates,
			valid_file = excluded.valid_file,
			persisted = excluded.persisted,
			archivefile_deleted = excluded.archivefile_deleted,
			decodedfile_deleted = excluded.decodedfile_deleted`, s.schema),
		rec.Name, rec.ModelRun.UTC(), rec.Timestep, rec.Parameter.Column(),
		rec.DownloadFails, rec.SufficientSize, rec.DownloadDate, rec.Decompressed,
		rec.MissingCoordinates, validityToBool(rec.Validity), rec.Persisted,
		rec.ArchiveDeleted, rec.DecodedDeleted)
	if err != nil {
		return fmt.Errorf("save file %s: %w", rec.Name, err)
	}
	return nil
}

func (s *Store) OldestUnprocessedModelRun(ctx context.Context) (time.Time, bool, error) {
	return s.scanRunTime(ctx, fmt.Sprintf(`
		SELECT MIN(modelrun) FROM %s.files
		WHERE sufficient_size AND NOT persisted
		  AND (valid_file IS NULL OR valid_file)`, s.schema))
}

func (s *Store) NewestDownloadedModelRun(ctx context.Context) (time.Time, bool, error) {
	return s.scanRunTime(ctx, fmt.Sprintf(`SELECT MAX(modelrun) FROM %s.files`, s.schema))
}

func (s *Store) scanRunTime(ctx context.Context, query string) (time.Time, bool, error) {
	var run *time.Time
	if err := s.pool.QueryRow(ctx, query).Scan(&run); err != nil {
		return time.Time{}, false, fmt.Errorf("model run query: %w", err)
	}
	if run == nil {
		return time.Time{}, false, nil
	}
	return run.UTC(), true, nil
}

func (s *Store) CoordinatesInRect(ctx context.Context, r domain.Rect) ([]domain.Coordinate, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, latitude, longitude, coordinate_type FROM %s.icon_coordinates
		WHERE coordinate_type = 'ICON'
		  AND latitude BETWEEN $1 AND $2
		  AND longitude BETWEEN $3 AND $4
		ORDER BY id`, s.schema),
		r.MinLatitude, r.MaxLatitude, r.MinLongitude, r.MaxLongitude)
	if err != nil {
		return nil, fmt.Errorf("load coordinates: %w", err)
	}
	defer rows.Close()

	var coords []domain.Coordinate
	for rows.Next() {
		var c domain.Coordinate
		if err := rows.Scan(&c.ID, &c.Latitude, &c.Longitude, &c.Kind); err != nil {
			return nil, fmt.Errorf("scan coordinate: %w", err)
		}
		coords = append(coords, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load coordinates: %w", err)
	}
	return coords, nil
}

func (s *Store) FindObservations(ctx context.Context, coordinateIDs []int, at time.Time) (map[int]*domain.Observation, error) {
	cols := make([]string, 0, domain.NumParameters)
	for _, p := range domain.Parameters() {
		cols = append(cols, "w."+p.Column())
	}
	query := fmt.Sprintf(`
		SELECT w.time, w.coordinate_id, c.latitude, c.longitude, c.coordinate_type, %s
		FROM %s.weather w
		JOIN %s.icon_coordinates c ON w.coordinate_id = c.id
		WHERE w.time = $1 AND w.coordinate_id = ANY($2)`,
		strings.Join(cols, ", "), s.schema, s.schema)

	found := make(map[int]*domain.Observation, len(coordinateIDs))
	for _, chunk := range chunkInts(coordinateIDs, batchSize) {
		rows, err := s.pool.Query(ctx, query, at.UTC(), chunk)
		if err != nil {
			return nil, fmt.Errorf("find observations: %w", err)
		}
		if err := scanObservations(rows, found); err != nil {
			return nil, err
		}
	}
	return found, nil
}

func scanObservations(rows pgx.Rows, into map[int]*domain.Observation) error {
	defer rows.Close()
	for rows.Next() {
		var o domain.Observation
		dest := make([]any, 0, 5+domain.NumParameters)
		dest = append(dest, &o.Time, &o.Coordinate.ID, &o.Coordinate.Latitude,
			&o.Coordinate.Longitude, &o.Coordinate.Kind)
		for i := range o.Values {
			dest = append(dest, &o.Values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("scan observation: %w", err)
		}
		o.Time = o.Time.UTC()
		into[o.Coordinate.ID] = &o
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("find observations: %w", err)
	}
	return nil
}

// UpsertObservations writes the observations in independent batches of 500,
// each in its own transaction on the persistence pool. A failed batch is
// logged and does not roll back or block its siblings.
func (s *Store) UpsertObservations(ctx context.Context, obs []*domain.Observation) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, batch := range chunkObservations(obs, batchSize) {
		batch := batch
		g.Go(func() error {
			if err := s.upsertBatch(ctx, batch); err != nil {
				// Sibling batches keep going; the affected files simply
				// fail validation on the next pass.
				s.logger.Error("observation batch upsert failed",
					"batch_size", len(batch), "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *Store) upsertBatch(ctx context.Context, batch []*domain.Observation) error {
	query, args := upsertObservationsSQL(s.schema, batch)
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// upsertObservationsSQL builds one multi-row upsert keyed by
// (coordinate_id, time), updating every parameter column on conflict.
func upsertObservationsSQL(schema string, batch []*domain.Observation) (string, []any) {
	params := domain.Parameters()
	cols := make([]string, 0, 2+len(params))
	cols = append(cols, "time", "coordinate_id")
	for _, p := range params {
		cols = append(cols, p.Column())
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s.weather (%s)\nVALUES ", schema, strings.Join(cols, ", "))

	args := make([]any, 0, len(batch)*len(cols))
	for i, o := range batch {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := range cols {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", len(args)+j+1)
		}
		b.WriteByte(')')
		args = append(args, o.Time.UTC(), o.Coordinate.ID)
		for _, p := range params {
			args = append(args, o.Get(p))
		}
	}

	b.WriteString("\nON CONFLICT (coordinate_id, time) DO UPDATE SET ")
	for i, p := range params {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s = excluded.%s", p.Column(), p.Column())
	}
	return b.String(), args
}

func validityFromBool(v *bool) domain.Validity {
	switch {
	case v == nil:
		return domain.ValidityUnknown
	case *v:
		return domain.ValidityValid
	default:
		return domain.ValidityInvalid
	}
}

func validityToBool(v domain.Validity) *bool {
	switch v {
	case domain.ValidityValid:
		t := true
		return &t
	case domain.ValidityInvalid:
		f := false
		return &f
	default:
		return nil
	}
}

func chunkInts(xs []int, n int) [][]int {
	var chunks [][]int
	for len(xs) > n {
		chunks = append(chunks, xs[:n])
		xs = xs[n:]
	}
	if len(xs) > 0 {
		chunks = append(chunks, xs)
	}
	return chunks
}

func chunkObservations(xs []*domain.Observation, n int) [][]*domain.Observation {
	var chunks [][]*domain.Observation
	for len(xs) > n {
		chunks = append(chunks, xs[:n])
		xs = xs[n:]
	}
	if len(xs) > 0 {
		chunks = append(chunks, xs)
	}
	return chunks
}

// sanitizeIdent keeps schema names to a conservative identifier charset; the
// schema comes from configuration, not user input, but it is interpolated
// into SQL text.
func sanitizeIdent(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "public"
	}
	return b.String()
}

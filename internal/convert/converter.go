package convert

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/icon-grid-etl/internal/domain"
	"github.com/couchcryptid/icon-grid-etl/internal/observability"
	"github.com/couchcryptid/icon-grid-etl/internal/store"
)

// modelRunInterval is the spacing between ICON-EU model runs.
const modelRunInterval = 3 * time.Hour

// Config carries the conversion settings. Stages receive it explicitly; there
// is no process-global configuration state.
type Config struct {
	Directory          string
	Timesteps          int
	FaultTolerance     float64
	InterpolationRatio float64
	MissingValue       string
	DecoderPath        string
	DeleteAfterConvert bool
	Bounds             domain.Rect

	// Optional explicit run window overriding the store-derived range.
	From  *time.Time
	Until *time.Time
}

// TimestepSummary describes one converted timestep for downstream consumers.
type TimestepSummary struct {
	ModelRun        time.Time `json:"model_run"`
	Timestep        int       `json:"timestep"`
	FilesConverted  int       `json:"files_converted"`
	FilesRejected   int       `json:"files_rejected"`
	Observations    int       `json:"observations"`
	DurationSeconds float64   `json:"duration_seconds"`
}

// Publisher emits timestep summaries to an external system. May be nil.
type Publisher interface {
	PublishTimestep(ctx context.Context, s TimestepSummary) error
}

// Progress is a snapshot of how far the conversion has advanced. Ready flips
// once the first timestep has been fully processed; ModelRun and Timestep
// then point at the most recently completed one.
type Progress struct {
	Ready    bool
	ModelRun time.Time
	Timestep int
}

// Converter walks model runs oldest to newest and converts every downloaded
// file of every timestep into interpolated observations.
type Converter struct {
	cfg       Config
	store     store.Store
	logger    *slog.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock
	publisher Publisher

	mu       sync.Mutex
	progress Progress

	decompressWorkers int
	extractWorkers    int
	eraseWorkers      int
}

// NewConverter wires a converter. publisher may be nil when summary
// publishing is disabled.
func NewConverter(cfg Config, s store.Store, logger *slog.Logger, metrics *observability.Metrics, clock clockwork.Clock, publisher Publisher) *Converter {
	ncpu := runtime.NumCPU()
	return &Converter{
		cfg:               cfg,
		store:             s,
		logger:            logger,
		metrics:           metrics,
		clock:             clock,
		publisher:         publisher,
		decompressWorkers: atLeastOne(ncpu / 3),
		extractWorkers:    atLeastOne(ncpu / 2),
		eraseWorkers:      atLeastOne(ncpu / 3),
	}
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// Ready reports whether at least one timestep has been fully processed.
func (c *Converter) Ready() bool {
	return c.Progress().Ready
}

// Progress returns the current conversion progress snapshot. It backs the
// HTTP readiness probe.
func (c *Converter) Progress() Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress
}

func (c *Converter) markConverted(run time.Time, ts int) {
	c.mu.Lock()
	c.progress = Progress{Ready: true, ModelRun: run, Timestep: ts}
	c.mu.Unlock()
}

// Run converts all pending model runs and returns when the window is
// exhausted or the context is cancelled. Store failures while establishing
// the window or the catalog are fatal; per-file trouble is absorbed into the
// file's lifecycle record instead.
func (c *Converter) Run(ctx context.Context) error {
	c.metrics.ConverterRunning.Set(1)
	defer c.metrics.ConverterRunning.Set(0)

	coords, err := c.store.CoordinatesInRect(ctx, c.cfg.Bounds)
	if err != nil {
		return fmt.Errorf("loading coordinate catalog: %w", err)
	}
	if len(coords) == 0 {
		return fmt.Errorf("no coordinates within %+v, seed the catalog first", c.cfg.Bounds)
	}
	c.logger.Info("coordinate catalog loaded", "coordinates", len(coords))

	first, last, ok, err := c.runWindow(ctx)
	if err != nil {
		return err
	}
	if !ok {
		c.logger.Info("no model runs pending conversion")
		return nil
	}
	c.logger.Info("converting model runs", "from", first, "until", last)

	extractor := NewExtractor(c.cfg.DecoderPath, c.cfg.MissingValue, c.cfg.Directory, coords, c.logger, c.metrics)
	merger := NewMerger(c.store, c.cfg.InterpolationRatio)
	decompressor := NewDecompressor(c.cfg.Directory, c.logger, c.metrics)
	eraser := NewEraser(c.cfg.Directory, c.cfg.FaultTolerance, c.cfg.DeleteAfterConvert, len(coords), c.logger, c.metrics)

	for run := first; !run.After(last); run = run.Add(modelRunInterval) {
		started := c.clock.Now()
		for ts := 0; ts < c.cfg.Timesteps; ts++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			c.handleTimestep(ctx, run, ts, decompressor, extractor, merger, eraser)
			c.markConverted(run, ts)
		}
		c.logger.Info("model run converted", "model_run", run, "elapsed", c.clock.Since(started).String())
	}
	return nil
}

// runWindow determines the inclusive range of model runs to convert, either
// from the explicit configuration window or from the store.
func (c *Converter) runWindow(ctx context.Context) (time.Time, time.Time, bool, error) {
	if c.cfg.From != nil && c.cfg.Until != nil {
		return c.cfg.From.UTC(), c.cfg.Until.UTC(), true, nil
	}
	oldest, haveOldest, err := c.store.OldestUnprocessedModelRun(ctx)
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("finding oldest unprocessed model run: %w", err)
	}
	newest, haveNewest, err := c.store.NewestDownloadedModelRun(ctx)
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("finding newest downloaded model run: %w", err)
	}
	if !haveOldest || !haveNewest {
		return time.Time{}, time.Time{}, false, nil
	}
	return oldest.UTC(), newest.UTC(), true, nil
}

// handleTimestep moves every downloaded file of one (model run, timestep)
// pair as far through the pipeline as it can get. Failures degrade the files
// involved, never the run as a whole.
func (c *Converter) handleTimestep(ctx context.Context, run time.Time, ts int, decompressor *Decompressor, extractor *Extractor, merger *Merger, eraser *Eraser) {
	timer := prometheus.NewTimer(c.metrics.TimestepDuration)
	defer timer.ObserveDuration()
	started := c.clock.Now()

	tracked := c.openFiles(ctx, run, ts, eraser)
	if len(tracked) == 0 {
		return
	}
	defer c.saveFiles(ctx, tracked)

	c.decompressFiles(tracked, decompressor)

	eligible := make([]*domain.FileRecord, 0, len(tracked))
	for _, rec := range tracked {
		if rec.Decompressed && !rec.Persisted && rec.Validity != domain.ValidityInvalid {
			eligible = append(eligible, rec)
		}
	}
	if len(eligible) == 0 {
		c.logger.Debug("no files eligible for extraction", "model_run", run, "timestep", ts)
		return
	}

	results, extractionOK := c.extractFiles(ctx, eligible, extractor)
	if !extractionOK {
		c.renew(ctx)
		return
	}

	fresh, newValues := Apply(results, run, ts)
	if !newValues {
		c.logger.Warn("extraction produced no values, skipping timestep",
			"model_run", run, "timestep", ts)
		c.renew(ctx)
		return
	}

	merged, err := merger.Merge(ctx, fresh)
	if err != nil {
		c.logger.Error("merging observations failed", "model_run", run, "timestep", ts, "error", err)
		c.renew(ctx)
		return
	}
	if err := c.store.UpsertObservations(ctx, merged); err != nil {
		c.logger.Error("persisting observations failed", "model_run", run, "timestep", ts, "error", err)
		c.renew(ctx)
		return
	}
	c.metrics.ObservationsUpserted.Add(float64(len(merged)))

	persisted, rejected := c.settleFiles(eligible, eraser)
	c.renew(ctx)

	c.publishSummary(ctx, TimestepSummary{
		ModelRun:        run,
		Timestep:        ts,
		FilesConverted:  persisted,
		FilesRejected:   rejected,
		Observations:    len(merged),
		DurationSeconds: c.clock.Since(started).Seconds(),
	})
	c.logger.Info("timestep converted",
		"model_run", run, "timestep", ts,
		"files", len(eligible), "rejected", rejected, "observations", len(merged))
}

// openFiles loads the lifecycle records of every tracked parameter file for
// the timestep. Files nobody ever downloaded have no record and are skipped.
// Abandoned downloads get their leftovers cleaned up here since no later
// stage will ever touch them.
func (c *Converter) openFiles(ctx context.Context, run time.Time, ts int, eraser *Eraser) []*domain.FileRecord {
	var tracked []*domain.FileRecord
	for _, p := range domain.Parameters() {
		rec, err := c.store.FindFile(ctx, domain.FileName(run, ts, p))
		if err != nil {
			c.logger.Error("loading file record failed", "parameter", p.String(), "error", err)
			continue
		}
		if rec == nil {
			continue
		}
		if !rec.Usable() && rec.Abandoned(c.clock.Now()) {
			if !c.cfg.DeleteAfterConvert {
				c.logger.Info("abandoned file kept on disk, enable DELETE_AFTER_CONVERT to reclaim space",
					"file", rec.Name)
			}
			eraser.Erase(rec)
			c.saveFiles(ctx, []*domain.FileRecord{rec})
			continue
		}
		tracked = append(tracked, rec)
	}
	return tracked
}

// decompressFiles unpacks all pending archives with a bounded worker pool
// and waits for the whole batch before extraction starts.
func (c *Converter) decompressFiles(tracked []*domain.FileRecord, decompressor *Decompressor) {
	var g errgroup.Group
	g.SetLimit(c.decompressWorkers)
	for _, rec := range tracked {
		if !rec.Usable() || rec.Persisted || rec.Decompressed || rec.ArchiveDeleted {
			continue
		}
		rec := rec
		g.Go(func() error {
			// A failure with the archive still on disk means the archive
			// itself is bad; invalidate so it is not retried every run.
			if !decompressor.Decompress(rec) && !rec.ArchiveDeleted {
				rec.Validity = domain.ValidityInvalid
				c.logger.Debug("file state change", "file", rec.Name, "validity", rec.Validity.String(), "reason", "decompression failed")
			}
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers report through the record, not errors
}

// extractFiles runs the decoder over all eligible files concurrently and
// consumes results as they complete. A result that could not be produced at
// all aborts consumption for the timestep since bookkeeping can no longer be
// trusted.
func (c *Converter) extractFiles(ctx context.Context, eligible []*domain.FileRecord, extractor *Extractor) ([]*domain.ExtractionResult, bool) {
	type extraction struct {
		rec    *domain.FileRecord
		result *domain.ExtractionResult
		err    error
	}
	completions := make(chan extraction, len(eligible))

	var g errgroup.Group
	g.SetLimit(c.extractWorkers)
	for _, rec := range eligible {
		rec := rec
		g.Go(func() error {
			result, err := extractor.Extract(ctx, rec)
			completions <- extraction{rec: rec, result: result, err: err}
			return nil
		})
	}
	go func() {
		g.Wait() //nolint:errcheck
		close(completions)
	}()

	results := make([]*domain.ExtractionResult, 0, len(eligible))
	for ex := range completions {
		if ex.err != nil {
			c.logger.Error("extraction aborted", "file", ex.rec.Name, "error", ex.err)
			return nil, false
		}
		if ex.result.Valid {
			ex.rec.Validity = domain.ValidityValid
			ex.rec.MissingCoordinates = ex.result.Missing
		} else {
			ex.rec.Validity = domain.ValidityInvalid
			c.logger.Debug("file state change", "file", ex.rec.Name, "validity", ex.rec.Validity.String(), "reason", "unusable decoder output")
		}
		results = append(results, ex.result)
	}
	return results, true
}

// settleFiles applies the fault-tolerance verdict and erases spent artifacts,
// blocking until deletion finishes so the next timestep starts from a clean
// directory. Returns how many files were persisted and rejected.
func (c *Converter) settleFiles(eligible []*domain.FileRecord, eraser *Eraser) (persisted, rejected int) {
	for _, rec := range eligible {
		if rec.Validity == domain.ValidityValid {
			eraser.Validate(rec)
		}
		if rec.Persisted {
			persisted++
		} else {
			rejected++
		}
	}
	var g errgroup.Group
	g.SetLimit(c.eraseWorkers)
	for _, rec := range eligible {
		rec := rec
		g.Go(func() error {
			eraser.Erase(rec)
			return nil
		})
	}
	g.Wait() //nolint:errcheck
	return persisted, rejected
}

func (c *Converter) saveFiles(ctx context.Context, recs []*domain.FileRecord) {
	for _, rec := range recs {
		if err := c.store.SaveFile(ctx, rec); err != nil {
			c.logger.Error("saving file record failed", "file", rec.Name, "error", err)
		}
	}
}

// renew recycles the store session so a long conversion never rides a
// connection past its useful life.
func (c *Converter) renew(ctx context.Context) {
	if err := c.store.Renew(ctx); err != nil {
		c.logger.Error("renewing store session failed", "error", err)
	}
}

func (c *Converter) publishSummary(ctx context.Context, s TimestepSummary) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.PublishTimestep(ctx, s); err != nil {
		c.logger.Error("publishing timestep summary failed",
			"model_run", s.ModelRun, "timestep", s.Timestep, "error", err)
	}
}

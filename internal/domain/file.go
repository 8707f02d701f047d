package domain

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// MinArchiveSize is the smallest archive size in bytes considered a complete
// download. Anything below this is treated as a truncated fetch.
const MinArchiveSize = 10_000

// maxDownloadAttempts bounds retries for a single archive before the download
// boundary gives up on it.
const maxDownloadAttempts = 3

// RunFolderFormat renders a model run timestamp as its download folder name,
// e.g. 2018100918 for the 2018-10-09 18:00 UTC run.
const RunFolderFormat = "2006010215"

// sourceBaseURL is where the upstream publishes ICON-EU archives.
const sourceBaseURL = "https://opendata.dwd.de/weather/nwp/icon-eu/grib/"

// Validity is the extraction verdict for a file. The zero value means the
// file has not been evaluated yet.
type Validity int

const (
	ValidityUnknown Validity = iota
	ValidityValid
	ValidityInvalid
)

func (v Validity) String() string {
	switch v {
	case ValidityValid:
		return "valid"
	case ValidityInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// FileRecord tracks the lifecycle of one (model run, timestep, parameter)
// archive through download, decompression, extraction and persistence. It is
// the single source of truth for retry and fault-tolerance decisions; records
// are never deleted, only flagged as files are erased from disk.
type FileRecord struct {
	Name      string
	ModelRun  time.Time
	Timestep  int
	Parameter Parameter

	DownloadFails  int
	SufficientSize bool
	DownloadDate   *time.Time

	Decompressed       bool
	MissingCoordinates int
	Validity           Validity
	Persisted          bool

	ArchiveDeleted bool
	DecodedDeleted bool
}

// NewFileRecord creates a fresh record for the given file key.
func NewFileRecord(modelRun time.Time, timestep int, p Parameter) *FileRecord {
	return &FileRecord{
		Name:      FileName(modelRun, timestep, p),
		ModelRun:  modelRun,
		Timestep:  timestep,
		Parameter: p,
	}
}

// FileName builds the published file name for a file key, e.g.
// icon-eu_europe_regular-lat-lon_single-level_2018100912_011_ASWDIFD_S.
func FileName(modelRun time.Time, timestep int, p Parameter) string {
	return fmt.Sprintf("%s%s_%03d_%s",
		p.FilePrefix(), modelRun.UTC().Format(RunFolderFormat), timestep, p.FileToken())
}

// RunFolder is the per-model-run directory name under the working directory.
func (f *FileRecord) RunFolder() string {
	return f.ModelRun.UTC().Format(RunFolderFormat)
}

// ArchiveName is the compressed archive file name.
func (f *FileRecord) ArchiveName() string {
	return f.DecodedName() + ".bz2"
}

// DecodedName is the decompressed GRIB2 file name.
func (f *FileRecord) DecodedName() string {
	return f.Name + ".grib2"
}

// ArchivePath locates the archive under the given working directory.
func (f *FileRecord) ArchivePath(dir string) string {
	return filepath.Join(dir, f.RunFolder(), f.ArchiveName())
}

// DecodedPath locates the decompressed file under the given working directory.
func (f *FileRecord) DecodedPath(dir string) string {
	return filepath.Join(dir, f.RunFolder(), f.DecodedName())
}

// SourceURL is the upstream download location for the archive.
func (f *FileRecord) SourceURL() string {
	return fmt.Sprintf("%s%02d/%s/%s",
		sourceBaseURL, f.ModelRun.UTC().Hour(), strings.ToLower(f.Parameter.SourceName()), f.ArchiveName())
}

// Retryable reports whether the download boundary may attempt this file
// again. It is one of two independent abandonment gates; see Stale.
func (f *FileRecord) Retryable() bool {
	return !f.SufficientSize && f.DownloadFails < maxDownloadAttempts
}

// Stale reports whether the file's model run is older than one day, the
// second abandonment gate. The two gates are intentionally not folded into a
// combined state: a stale file with few failures stays stale, and a file past
// its retry budget stays abandoned even for a recent run.
func (f *FileRecord) Stale(now time.Time) bool {
	return f.ModelRun.Before(now.AddDate(0, 0, -1))
}

// Abandoned reports whether the cleanup pass should stop waiting for this
// file: either the retry budget is exhausted or the run has gone stale.
func (f *FileRecord) Abandoned(now time.Time) bool {
	return f.DownloadFails > maxDownloadAttempts || f.Stale(now)
}

// Usable reports whether the file may enter the decompression stage.
func (f *FileRecord) Usable() bool {
	return f.SufficientSize && f.Validity != ValidityInvalid
}

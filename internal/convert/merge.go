package convert

import (
	"context"
	"fmt"
	"time"

	"github.com/couchcryptid/icon-grid-etl/internal/domain"
	"github.com/couchcryptid/icon-grid-etl/internal/store"
)

// Merger folds freshly extracted values into whatever observations already
// exist for the same coordinates and timestamp, using weighted interpolation
// so overlapping model runs blend instead of overwrite.
type Merger struct {
	store store.ObservationStore
	ratio float64
}

// NewMerger creates a merger reading existing rows from the given store.
func NewMerger(s store.ObservationStore, interpolationRatio float64) *Merger {
	return &Merger{store: s, ratio: interpolationRatio}
}

// Apply distributes extraction results onto fresh observations, one per
// catalog coordinate, stamped at the model run plus timestep hours. It
// reports whether any slot actually received a non-nil value; a timestep
// where nothing was assigned is not worth persisting.
func Apply(results []*domain.ExtractionResult, modelRun time.Time, timestep int) (map[int]*domain.Observation, bool) {
	at := modelRun.Add(time.Duration(timestep) * time.Hour).UTC()
	fresh := make(map[int]*domain.Observation)
	newValues := false
	for _, res := range results {
		if !res.Valid {
			continue
		}
		for coord, v := range res.Values {
			if v == nil {
				continue
			}
			o, ok := fresh[coord.ID]
			if !ok {
				o = domain.NewObservation(at, coord)
				fresh[coord.ID] = o
			}
			o.Set(res.Parameter, v)
			newValues = true
		}
	}
	return fresh, newValues
}

// Merge interpolates the fresh observations into persisted rows with the
// same coordinate and timestamp. Rows that already exist keep their identity
// and receive the blend; coordinates without history take the fresh values
// unchanged. The result is the slice to upsert.
func (m *Merger) Merge(ctx context.Context, fresh map[int]*domain.Observation) ([]*domain.Observation, error) {
	byTime := make(map[time.Time][]*domain.Observation)
	for _, o := range fresh {
		byTime[o.Time] = append(byTime[o.Time], o)
	}

	var out []*domain.Observation
	for at, batch := range byTime {
		ids := make([]int, len(batch))
		for i, o := range batch {
			ids[i] = o.Coordinate.ID
		}
		existing, err := m.store.FindObservations(ctx, ids, at)
		if err != nil {
			return nil, fmt.Errorf("loading observations at %s: %w", at, err)
		}
		for _, o := range batch {
			if prev, ok := existing[o.Coordinate.ID]; ok {
				prev.Interpolate(o, m.ratio)
				out = append(out, prev)
				continue
			}
			out = append(out, o)
		}
	}
	return out, nil
}

// Package cleaning removes duplicates, imputes missing values and aligns
// raw battery telemetry to a fixed time grid.
package cleaning

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/sreeram77/battery-pm/internal/table"
)

// ErrInvalidTimestamp is returned when the time column cannot be parsed
var ErrInvalidTimestamp = errors.New("invalid timestamp")

// DefaultInterval is the width of an alignment bucket
const DefaultInterval = time.Minute

// Cleaner applies the cleaning steps to telemetry tables
type Cleaner struct {
	logger zerolog.Logger
}

// NewCleaner creates a new Cleaner
func NewCleaner(logger zerolog.Logger) *Cleaner {
	return &Cleaner{logger: logger}
}

// Clean removes duplicate rows and then fills missing numeric values with
// the column mean.
func (c *Cleaner) Clean(t *table.Table) *table.Table {
	return c.FillMissingWithMean(c.RemoveDuplicates(t))
}

// RemoveDuplicates drops rows that repeat an earlier row across all columns.
// The first occurrence is kept and survivors stay in their original order.
// Missing values compare equal to each other. Timestamps compare by instant
// and zone offset, including fractional seconds.
func (c *Cleaner) RemoveDuplicates(t *table.Table) *table.Table {
	seen := make(map[string]struct{}, t.Len())
	keep := make([]int, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		key := t.RowKey(i)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keep = append(keep, i)
	}

	c.logger.Info().
		Int("removed", t.Len()-len(keep)).
		Msg("Duplicate rows removed")
	return t.Take(keep)
}

// FillMissingWithMean replaces missing entries of every numeric column with
// the mean of that column's non-missing values. The mean is computed once per
// column before any replacement. Columns with no observed values stay missing.
func (c *Cleaner) FillMissingWithMean(t *table.Table) *table.Table {
	out := t
	for _, col := range t.Columns() {
		if col.Kind != table.Numeric {
			continue
		}

		observed := make([]float64, 0, len(col.Nums))
		for _, v := range col.Nums {
			if !math.IsNaN(v) {
				observed = append(observed, v)
			}
		}
		if len(observed) == len(col.Nums) || len(observed) == 0 {
			continue
		}

		mean := stat.Mean(observed, nil)
		filled := make([]float64, len(col.Nums))
		for i, v := range col.Nums {
			if math.IsNaN(v) {
				v = mean
			}
			filled[i] = v
		}

		// Replacing a column of the same length cannot fail
		out, _ = out.WithColumn(table.NewNumeric(col.Name, filled))
		c.logger.Info().
			Str("column", col.Name).
			Int("filled", len(col.Nums)-len(observed)).
			Float64("mean", mean).
			Msg("Missing values filled with mean")
	}
	return out
}

// AlignToGrid buckets rows by their timestamp floored to interval and emits
// one row per non-empty bucket, in ascending time order. The bucket row holds
// the bucket start and the mean of every numeric column (missing values are
// skipped). Buckets without source rows produce no output row; the grid is
// not densified. Non-numeric columns other than timeColumn are dropped.
func (c *Cleaner) AlignToGrid(t *table.Table, timeColumn string, interval time.Duration) (*table.Table, error) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	times, err := parseTimeColumn(t, timeColumn)
	if err != nil {
		return nil, err
	}

	// Group row indices by bucket start, keyed by the UTC instant so rows
	// carrying different zone offsets share a bucket
	buckets := make(map[int64][]int)
	for i, ts := range times {
		start := ts.UTC().Truncate(interval).UnixNano()
		buckets[start] = append(buckets[start], i)
	}

	keys := make([]int64, 0, len(buckets))
	for start := range buckets {
		keys = append(keys, start)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i] < keys[j]
	})
	starts := make([]time.Time, len(keys))
	for i, k := range keys {
		starts[i] = time.Unix(0, k).UTC()
	}

	cols := []*table.Column{table.NewTime(timeColumn, starts)}
	var dropped []string
	for _, col := range t.Columns() {
		if col.Name == timeColumn {
			continue
		}
		if col.Kind != table.Numeric {
			dropped = append(dropped, col.Name)
			continue
		}

		means := make([]float64, len(starts))
		for b, k := range keys {
			means[b] = bucketMean(col.Nums, buckets[k])
		}
		cols = append(cols, table.NewNumeric(col.Name, means))
	}

	if len(dropped) > 0 {
		c.logger.Debug().Strs("columns", dropped).Msg("Non-numeric columns dropped during alignment")
	}
	c.logger.Info().
		Dur("interval", interval).
		Int("input_rows", t.Len()).
		Int("output_rows", len(starts)).
		Msg("Time-series data aligned")

	return table.New(cols...)
}

// parseTimeColumn returns the timestamps of the named column, parsing text if needed
func parseTimeColumn(t *table.Table, name string) ([]time.Time, error) {
	col, err := t.Column(name)
	if err != nil {
		return nil, err
	}

	switch col.Kind {
	case table.Time:
		for i, ts := range col.Times {
			if ts.IsZero() {
				return nil, fmt.Errorf("%w: row %d of %q is empty", ErrInvalidTimestamp, i, name)
			}
		}
		return col.Times, nil
	case table.Text:
		out := make([]time.Time, len(col.Texts))
		for i, s := range col.Texts {
			ts, err := table.ParseTime(s)
			if err != nil {
				return nil, fmt.Errorf("%w: row %d of %q: %v", ErrInvalidTimestamp, i, name, err)
			}
			out[i] = ts
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: column %q is %s", ErrInvalidTimestamp, name, col.Kind)
	}
}

// bucketMean averages values at the given rows, skipping missing values
func bucketMean(values []float64, rows []int) float64 {
	var sum float64
	var n int
	for _, i := range rows {
		if math.IsNaN(values[i]) {
			continue
		}
		sum += values[i]
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

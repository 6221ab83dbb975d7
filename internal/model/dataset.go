package model

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/sreeram77/battery-pm/internal/table"
)

// DefaultTarget is the regression target column
const DefaultTarget = "remaining_useful_life"

// ErrInsufficientData is returned when too few complete rows remain to train
var ErrInsufficientData = errors.New("insufficient data")

// Dataset is a dense feature matrix with its target vector
type Dataset struct {
	Features []string
	X        [][]float64
	Y        []float64
}

// Len returns the number of samples
func (d Dataset) Len() int {
	return len(d.Y)
}

// Subset returns the samples at the given indices
func (d Dataset) Subset(indices []int) Dataset {
	out := Dataset{
		Features: d.Features,
		X:        make([][]float64, len(indices)),
		Y:        make([]float64, len(indices)),
	}
	for i, idx := range indices {
		out.X[i] = d.X[idx]
		out.Y[i] = d.Y[idx]
	}
	return out
}

// BuildDataset uses every numeric column except target as a feature.
// Rows with a missing feature or target are dropped; the number of dropped
// rows is returned alongside the dataset.
func BuildDataset(t *table.Table, target string) (Dataset, int, error) {
	y, err := t.Numeric(target)
	if err != nil {
		return Dataset{}, 0, fmt.Errorf("target: %w", err)
	}

	var names []string
	var cols [][]float64
	for _, c := range t.Columns() {
		if c.Kind != table.Numeric || c.Name == target {
			continue
		}
		names = append(names, c.Name)
		cols = append(cols, c.Nums)
	}
	if len(names) == 0 {
		return Dataset{}, 0, fmt.Errorf("%w: no numeric feature columns", ErrInsufficientData)
	}

	ds := Dataset{Features: names}
	dropped := 0
rows:
	for i := 0; i < t.Len(); i++ {
		if math.IsNaN(y[i]) {
			dropped++
			continue
		}
		row := make([]float64, len(cols))
		for j, col := range cols {
			if math.IsNaN(col[i]) {
				dropped++
				continue rows
			}
			row[j] = col[i]
		}
		ds.X = append(ds.X, row)
		ds.Y = append(ds.Y, y[i])
	}

	return ds, dropped, nil
}

// TrainTestSplit shuffles n sample indices with a seeded generator and
// returns the train and test partitions. The test partition holds
// ceil(testSize*n) samples.
func TrainTestSplit(n int, testSize float64, seed uint64) ([]int, []int, error) {
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, fmt.Errorf("test size must be in (0, 1), got %v", testSize)
	}

	nTest := int(math.Ceil(testSize * float64(n)))
	if nTest < 1 || n-nTest < 1 {
		return nil, nil, fmt.Errorf("%w: cannot split %d samples with test size %v", ErrInsufficientData, n, testSize)
	}

	rng := rand.New(rand.NewPCG(seed, seed))
	perm := rng.Perm(n)
	return perm[nTest:], perm[:nTest], nil
}

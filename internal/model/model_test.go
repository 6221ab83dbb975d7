package model

import (
	"math"
	"math/cmplx"
	"math/rand/v2"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/sreeram77/battery-pm/internal/artifact"
	"github.com/sreeram77/battery-pm/internal/table"
)

// linearDataset returns y = 2*x0 + x1 + 1 over uniformly drawn inputs
func linearDataset(n int, seed uint64) Dataset {
	rng := rand.New(rand.NewPCG(seed, seed))
	ds := Dataset{Features: []string{"a", "b"}}
	for i := 0; i < n; i++ {
		x := []float64{rng.Float64() * 10, rng.Float64() * 10}
		ds.X = append(ds.X, x)
		ds.Y = append(ds.Y, 2*x[0]+x[1]+1)
	}
	return ds
}

func TestBuildDataset(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tbl := table.MustNew(
		table.NewTime("timestamp", []time.Time{start, start.Add(time.Minute), start.Add(2 * time.Minute), start.Add(3 * time.Minute)}),
		table.NewNumeric("voltage", []float64{3.9, 3.8, math.NaN(), 3.6}),
		table.NewText("battery", []string{"a", "a", "a", "a"}),
		table.NewNumeric("current", []float64{1, 2, 3, 4}),
		table.NewNumeric(DefaultTarget, []float64{100, math.NaN(), 98, 97}),
	)

	ds, dropped, err := BuildDataset(tbl, DefaultTarget)
	require.NoError(t, err)

	assert.Equal(t, []string{"voltage", "current"}, ds.Features)
	assert.Equal(t, 2, dropped)
	assert.Equal(t, [][]float64{{3.9, 1}, {3.6, 4}}, ds.X)
	assert.Equal(t, []float64{100, 97}, ds.Y)

	t.Run("missing target", func(t *testing.T) {
		_, _, err := BuildDataset(tbl, "nope")
		assert.ErrorIs(t, err, table.ErrColumnNotFound)
	})

	t.Run("no feature columns", func(t *testing.T) {
		only := table.MustNew(table.NewNumeric(DefaultTarget, []float64{1, 2}))
		_, _, err := BuildDataset(only, DefaultTarget)
		assert.ErrorIs(t, err, ErrInsufficientData)
	})
}

func TestTrainTestSplit(t *testing.T) {
	train, test, err := TrainTestSplit(10, 0.2, 42)
	require.NoError(t, err)
	assert.Len(t, train, 8)
	assert.Len(t, test, 2)

	all := append(append([]int{}, train...), test...)
	sort.Ints(all)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, all)

	t.Run("deterministic for a seed", func(t *testing.T) {
		train2, test2, err := TrainTestSplit(10, 0.2, 42)
		require.NoError(t, err)
		assert.Equal(t, train, train2)
		assert.Equal(t, test, test2)
	})

	t.Run("test size rounds up", func(t *testing.T) {
		_, test, err := TrainTestSplit(11, 0.2, 1)
		require.NoError(t, err)
		assert.Len(t, test, 3)
	})

	t.Run("invalid inputs", func(t *testing.T) {
		_, _, err := TrainTestSplit(10, 0, 1)
		assert.Error(t, err)
		_, _, err = TrainTestSplit(10, 1, 1)
		assert.Error(t, err)
		_, _, err = TrainTestSplit(1, 0.2, 1)
		assert.ErrorIs(t, err, ErrInsufficientData)
	})
}

func TestForest(t *testing.T) {
	t.Run("learns a step function", func(t *testing.T) {
		ds := Dataset{Features: []string{"x"}}
		for i := 0; i < 100; i++ {
			ds.X = append(ds.X, []float64{float64(i)})
			y := 0.0
			if i >= 50 {
				y = 10
			}
			ds.Y = append(ds.Y, y)
		}

		f, err := FitForest(ds, ForestConfig{NEstimators: 10, MaxDepth: 12, MinSamplesLeaf: 1, Seed: 42})
		require.NoError(t, err)
		assert.Len(t, f.Trees, 10)
		assert.InDelta(t, 0, f.Predict([]float64{10}), 1e-9)
		assert.InDelta(t, 10, f.Predict([]float64{90}), 1e-9)
	})

	t.Run("constant target yields single leaf trees", func(t *testing.T) {
		ds := Dataset{
			Features: []string{"x"},
			X:        [][]float64{{1}, {2}, {3}},
			Y:        []float64{7, 7, 7},
		}
		f, err := FitForest(ds, ForestConfig{NEstimators: 3})
		require.NoError(t, err)
		for _, tree := range f.Trees {
			assert.Len(t, tree.Nodes, 1)
		}
		assert.Equal(t, 7.0, f.Predict([]float64{100}))
	})

	t.Run("depth limit bounds the tree", func(t *testing.T) {
		f, err := FitForest(linearDataset(50, 1), ForestConfig{NEstimators: 5, MaxDepth: 1, Seed: 1})
		require.NoError(t, err)
		for _, tree := range f.Trees {
			assert.LessOrEqual(t, len(tree.Nodes), 3)
		}
	})

	t.Run("deterministic for a seed", func(t *testing.T) {
		ds := linearDataset(40, 3)
		cfg := ForestConfig{NEstimators: 5, MaxDepth: 6, Seed: 9}
		a, err := FitForest(ds, cfg)
		require.NoError(t, err)
		b, err := FitForest(ds, cfg)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("empty training set", func(t *testing.T) {
		_, err := FitForest(Dataset{Features: []string{"x"}}, ForestConfig{})
		assert.ErrorIs(t, err, ErrInsufficientData)
	})
}

func TestSequence(t *testing.T) {
	ds := linearDataset(200, 7)
	cfg := DefaultTrainConfig().Sequence
	cfg.Seed = 42

	s, err := FitSequence(ds, cfg)
	require.NoError(t, err)

	t.Run("shapes", func(t *testing.T) {
		assert.Equal(t, ds.Features, s.FeatureNames())
		assert.Len(t, s.Input, cfg.Units)
		assert.Len(t, s.Recurrent, cfg.Units*cfg.Units)
		assert.Len(t, s.Readout, cfg.Units+1)
	})

	t.Run("reservoir has target spectral radius", func(t *testing.T) {
		var eig mat.Eigen
		require.True(t, eig.Factorize(mat.NewDense(s.Units, s.Units, s.Recurrent), mat.EigenNone))
		var radius float64
		for _, v := range eig.Values(nil) {
			radius = math.Max(radius, cmplx.Abs(v))
		}
		assert.InDelta(t, cfg.SpectralRadius, radius, 1e-6)
	})

	t.Run("fits a smooth target", func(t *testing.T) {
		score, err := Evaluate(s, ds)
		require.NoError(t, err)
		assert.Greater(t, score.R2, 0.9)
	})

	t.Run("deterministic for a seed", func(t *testing.T) {
		again, err := FitSequence(ds, cfg)
		require.NoError(t, err)
		assert.Equal(t, s.Readout, again.Readout)
	})

	t.Run("constant feature is not scaled by zero", func(t *testing.T) {
		flat := Dataset{
			Features: []string{"a", "b"},
			X:        [][]float64{{1, 5}, {2, 5}, {3, 5}},
			Y:        []float64{1, 2, 3},
		}
		m, err := FitSequence(flat, SequenceConfig{Units: 5, Seed: 1})
		require.NoError(t, err)
		assert.Equal(t, 1.0, m.Std[1])
		assert.False(t, math.IsNaN(m.Predict([]float64{2, 5})))
	})
}

func TestTrainer_TrainTable(t *testing.T) {
	ds := linearDataset(100, 11)
	a := make([]float64, ds.Len())
	b := make([]float64, ds.Len())
	for i, x := range ds.X {
		a[i], b[i] = x[0], x[1]
	}
	tbl := table.MustNew(
		table.NewNumeric("a", a),
		table.NewNumeric("b", b),
		table.NewNumeric(DefaultTarget, ds.Y),
	)

	cfg := DefaultTrainConfig()
	cfg.Forest.NEstimators = 20
	tr := NewTrainer(zerolog.Nop(), cfg)

	res, err := tr.TrainTable(tbl)
	require.NoError(t, err)

	assert.Equal(t, 80, res.Report.TrainRows)
	assert.Equal(t, 20, res.Report.TestRows)
	assert.Equal(t, []string{"a", "b"}, res.Report.Features)
	assert.Greater(t, res.Report.Regression.R2, 0.5)
	assert.Greater(t, res.Report.Sequence.R2, 0.5)
	assert.Equal(t, []string{"a", "b"}, res.Forest.FeatureNames())
	assert.Equal(t, []string{"a", "b"}, res.Sequence.FeatureNames())
}

func TestPersist(t *testing.T) {
	dir := t.TempDir()
	store := artifact.NewStore(zerolog.Nop())
	ds := linearDataset(30, 5)

	forest, err := FitForest(ds, ForestConfig{NEstimators: 5, MaxDepth: 4, Seed: 1})
	require.NoError(t, err)
	seq, err := FitSequence(ds, SequenceConfig{Units: 8, Seed: 1})
	require.NoError(t, err)

	forestPath := filepath.Join(dir, "models", "regression_model.json")
	seqPath := filepath.Join(dir, "models", "sequence_model.json")
	require.NoError(t, store.SaveJSON(forest, forestPath))
	require.NoError(t, store.SaveJSON(seq, seqPath))

	t.Run("round trip preserves predictions", func(t *testing.T) {
		f, err := LoadForest(store, forestPath)
		require.NoError(t, err)
		s, err := LoadSequence(store, seqPath)
		require.NoError(t, err)

		for _, x := range ds.X[:5] {
			assert.Equal(t, forest.Predict(x), f.Predict(x))
			assert.InDelta(t, seq.Predict(x), s.Predict(x), 1e-9)
		}
	})

	t.Run("missing artifact", func(t *testing.T) {
		_, err := LoadForest(store, filepath.Join(dir, "nope.json"))
		assert.ErrorIs(t, err, artifact.ErrFileNotFound)
		_, err = LoadSequence(store, filepath.Join(dir, "nope.json"))
		assert.ErrorIs(t, err, artifact.ErrFileNotFound)
	})

	t.Run("inconsistent artifact", func(t *testing.T) {
		broken := *seq
		broken.Readout = broken.Readout[:2]
		path := filepath.Join(dir, "broken.json")
		require.NoError(t, store.SaveJSON(&broken, path))

		_, err := LoadSequence(store, path)
		assert.ErrorIs(t, err, ErrInvalidModel)

		require.NoError(t, store.SaveJSON(&Forest{Features: []string{"a"}}, path))
		_, err = LoadForest(store, path)
		assert.ErrorIs(t, err, ErrInvalidModel)
	})
}

package model

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrSingularSystem is returned when the readout cannot be solved
var ErrSingularSystem = errors.New("singular readout system")

// SequenceConfig holds sequence regressor hyperparameters
type SequenceConfig struct {
	Units          int
	SpectralRadius float64
	InputScale     float64
	Ridge          float64
	Seed           uint64
}

// Sequence reads a feature vector as an ordered sequence, one scalar per
// step, through a fixed tanh recurrent reservoir. Only the linear readout
// over the final reservoir state is trained.
type Sequence struct {
	Features []string  `json:"features"`
	Mean     []float64 `json:"mean"`
	Std      []float64 `json:"std"`
	Units    int       `json:"units"`
	Input    []float64 `json:"input_weights"`
	Bias     []float64 `json:"bias"`
	// Recurrent is the Units x Units reservoir matrix in row-major order
	Recurrent []float64 `json:"recurrent_weights"`
	// Readout has Units weights followed by the intercept
	Readout []float64 `json:"readout"`
}

// FeatureNames implements Regressor
func (s *Sequence) FeatureNames() []string {
	return s.Features
}

// Predict implements Regressor
func (s *Sequence) Predict(x []float64) float64 {
	h := s.state(x)
	out := s.Readout[s.Units]
	for i, v := range h {
		out += s.Readout[i] * v
	}
	return out
}

// state runs the reservoir over x and returns the final hidden state
func (s *Sequence) state(x []float64) []float64 {
	h := make([]float64, s.Units)
	next := make([]float64, s.Units)
	for j, v := range x {
		u := (v - s.Mean[j]) / s.Std[j]
		for i := 0; i < s.Units; i++ {
			a := s.Input[i]*u + s.Bias[i]
			row := s.Recurrent[i*s.Units : (i+1)*s.Units]
			for k, hk := range h {
				a += row[k] * hk
			}
			next[i] = math.Tanh(a)
		}
		h, next = next, h
	}
	return h
}

// FitSequence trains a sequence regressor on ds
func FitSequence(ds Dataset, cfg SequenceConfig) (*Sequence, error) {
	if ds.Len() == 0 {
		return nil, fmt.Errorf("%w: empty training set", ErrInsufficientData)
	}
	if cfg.Units <= 0 {
		cfg.Units = 50
	}
	if cfg.SpectralRadius <= 0 {
		cfg.SpectralRadius = 0.9
	}
	if cfg.InputScale <= 0 {
		cfg.InputScale = 0.5
	}
	if cfg.Ridge <= 0 {
		cfg.Ridge = 1e-3
	}

	nFeatures := len(ds.Features)
	s := &Sequence{
		Features: ds.Features,
		Mean:     make([]float64, nFeatures),
		Std:      make([]float64, nFeatures),
		Units:    cfg.Units,
		Input:    make([]float64, cfg.Units),
		Bias:     make([]float64, cfg.Units),
	}

	col := make([]float64, ds.Len())
	for j := 0; j < nFeatures; j++ {
		for i, row := range ds.X {
			col[i] = row[j]
		}
		s.Mean[j], s.Std[j] = stat.PopMeanStdDev(col, nil)
		if s.Std[j] == 0 || math.IsNaN(s.Std[j]) {
			s.Std[j] = 1
		}
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, uint64(cfg.Units)))
	for i := range s.Input {
		s.Input[i] = cfg.InputScale * (2*rng.Float64() - 1)
		s.Bias[i] = 0.1 * (2*rng.Float64() - 1)
	}
	recurrent, err := reservoir(rng, cfg.Units, cfg.SpectralRadius)
	if err != nil {
		return nil, err
	}
	s.Recurrent = recurrent

	// Design matrix of final states with an intercept column
	p := cfg.Units + 1
	states := mat.NewDense(ds.Len(), p, nil)
	for i, x := range ds.X {
		h := s.state(x)
		for k, v := range h {
			states.Set(i, k, v)
		}
		states.Set(i, cfg.Units, 1)
	}

	readout, err := ridge(states, ds.Y, cfg.Ridge)
	if err != nil {
		return nil, err
	}
	s.Readout = readout
	return s, nil
}

// reservoir draws a random square matrix and rescales it to the target
// spectral radius
func reservoir(rng *rand.Rand, n int, radius float64) ([]float64, error) {
	data := make([]float64, n*n)
	for i := range data {
		data[i] = rng.Float64() - 0.5
	}

	var eig mat.Eigen
	if ok := eig.Factorize(mat.NewDense(n, n, data), mat.EigenNone); !ok {
		return nil, errors.New("reservoir eigendecomposition failed")
	}
	var current float64
	for _, v := range eig.Values(nil) {
		current = math.Max(current, cmplx.Abs(v))
	}
	if current == 0 {
		return data, nil
	}

	scale := radius / current
	for i := range data {
		data[i] *= scale
	}
	return data, nil
}

// ridge solves (AᵀA + λI) w = Aᵀy
func ridge(a *mat.Dense, y []float64, lambda float64) ([]float64, error) {
	_, p := a.Dims()

	gram := mat.NewSymDense(p, nil)
	gram.SymOuterK(1, a.T())
	for i := 0; i < p; i++ {
		gram.SetSym(i, i, gram.At(i, i)+lambda)
	}

	var rhs mat.VecDense
	rhs.MulVec(a.T(), mat.NewVecDense(len(y), y))

	var chol mat.Cholesky
	if ok := chol.Factorize(gram); !ok {
		return nil, ErrSingularSystem
	}
	var w mat.VecDense
	if err := chol.SolveVecTo(&w, &rhs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingularSystem, err)
	}

	out := make([]float64, p)
	for i := range out {
		out[i] = w.AtVec(i)
	}
	return out, nil
}

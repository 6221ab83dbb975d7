// Package metrics scores regression predictions.
package metrics

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrEmptyInput is returned when no observations are supplied
	ErrEmptyInput = errors.New("empty input")
	// ErrLengthMismatch is returned when true and predicted series differ in length
	ErrLengthMismatch = errors.New("length mismatch")
)

// Result holds the evaluation metrics of a set of predictions.
// R2 is NaN when the true values have zero variance.
type Result struct {
	MAE float64
	R2  float64
}

type resultJSON struct {
	MAE *float64 `json:"MAE"`
	R2  *float64 `json:"R²"`
}

// MarshalJSON encodes the result with keys "MAE" and "R²"; NaN becomes null
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{MAE: finite(r.MAE), R2: finite(r.R2)})
}

// UnmarshalJSON decodes a result, mapping null back to NaN
func (r *Result) UnmarshalJSON(data []byte) error {
	var raw resultJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.MAE, r.R2 = math.NaN(), math.NaN()
	if raw.MAE != nil {
		r.MAE = *raw.MAE
	}
	if raw.R2 != nil {
		r.R2 = *raw.R2
	}
	return nil
}

// Compute returns the mean absolute error and coefficient of determination
// of yPred against yTrue.
func Compute(yTrue, yPred []float64) (Result, error) {
	if len(yTrue) == 0 {
		return Result{}, ErrEmptyInput
	}
	if len(yTrue) != len(yPred) {
		return Result{}, fmt.Errorf("%w: %d true values, %d predictions", ErrLengthMismatch, len(yTrue), len(yPred))
	}

	residuals := make([]float64, len(yTrue))
	floats.SubTo(residuals, yTrue, yPred)

	var absSum, ssRes float64
	for _, r := range residuals {
		absSum += math.Abs(r)
		ssRes += r * r
	}
	mae := absSum / float64(len(yTrue))

	mean := stat.Mean(yTrue, nil)
	var ssTot float64
	for _, y := range yTrue {
		d := y - mean
		ssTot += d * d
	}

	r2 := math.NaN()
	if ssTot != 0 {
		r2 = 1 - ssRes/ssTot
	}

	return Result{MAE: mae, R2: r2}, nil
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

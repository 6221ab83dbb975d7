package plotting

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"

	"github.com/sreeram77/battery-pm/internal/features"
	"github.com/sreeram77/battery-pm/internal/table"
)

// Bins is the bucket count used for distribution charts
const Bins = 30

// EDA chart file names
const (
	SOCOverTimeFile             = "soc_over_time.png"
	TemperatureDistributionFile = "temperature_distribution.png"
	CorrelationHeatmapFile      = "correlation_heatmap.png"
)

// timesOrNil returns the time column, or nil when t has none
func timesOrNil(t *table.Table, timeColumn string) []time.Time {
	times, err := t.Times(timeColumn)
	if err != nil {
		return nil
	}
	return times
}

// FeatureOverTime plots a numeric column against the time column
func FeatureOverTime(t *table.Table, timeColumn, column string) (*plot.Plot, error) {
	values, err := t.Numeric(column)
	if err != nil {
		return nil, err
	}
	return Line(column+" Over Time", "Time", column, timesOrNil(t, timeColumn), values)
}

// SOCOverTime plots the state of charge against the time column
func SOCOverTime(t *table.Table, timeColumn string) (*plot.Plot, error) {
	soc, err := t.Numeric(features.ColStateOfCharge)
	if err != nil {
		return nil, err
	}
	return Line("Battery State of Charge Over Time", "Time", "State of Charge (%)", timesOrNil(t, timeColumn), soc)
}

// TemperatureDistribution plots a histogram of the temperature column
func TemperatureDistribution(t *table.Table) (*plot.Plot, error) {
	temp, err := t.Numeric(features.ColTemperature)
	if err != nil {
		return nil, err
	}
	return Histogram("Battery Temperature Distribution", "Temperature (°C)", temp, Bins)
}

// CorrelationHeatmap plots the Pearson correlation of every numeric column
func CorrelationHeatmap(t *table.Table) (*plot.Plot, error) {
	names, matrix, err := CorrelationMatrix(t)
	if err != nil {
		return nil, err
	}
	return Heatmap("Feature Correlation Heatmap", names, matrix)
}

// CorrelationMatrix returns the pairwise Pearson correlation of the numeric
// columns of t. Each pair uses only rows where both values are present; a
// pair with fewer than two such rows or zero variance is NaN.
func CorrelationMatrix(t *table.Table) ([]string, [][]float64, error) {
	names := t.NumericNames()
	if len(names) == 0 {
		return nil, nil, fmt.Errorf("%w: no numeric columns", ErrNoData)
	}

	cols := make([][]float64, len(names))
	for i, name := range names {
		cols[i], _ = t.Numeric(name)
	}

	matrix := make([][]float64, len(names))
	for i := range matrix {
		matrix[i] = make([]float64, len(names))
	}
	for i := range names {
		for j := i; j < len(names); j++ {
			r := pairwiseCorrelation(cols[i], cols[j])
			matrix[i][j] = r
			matrix[j][i] = r
		}
	}
	return names, matrix, nil
}

func pairwiseCorrelation(a, b []float64) float64 {
	x := make([]float64, 0, len(a))
	y := make([]float64, 0, len(b))
	for i := range a {
		if math.IsNaN(a[i]) || math.IsNaN(b[i]) {
			continue
		}
		x = append(x, a[i])
		y = append(y, b[i])
	}
	if len(x) < 2 {
		return math.NaN()
	}
	return stat.Correlation(x, y, nil)
}

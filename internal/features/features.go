// Package features derives engineered columns from cleaned battery telemetry.
//
// Every function is pure: it returns a new table and leaves its input as is.
// Engineer applies the derivations in a fixed order:
//
//	depth of discharge -> charge/discharge rate -> cumulative energy -> rolling averages -> lags
//
// Rolling and lag columns start with undefined (NaN) rows.
package features

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/sreeram77/battery-pm/internal/table"
)

// Required telemetry columns
const (
	ColStateOfCharge = "state_of_charge"
	ColCurrent       = "current"
	ColVoltage       = "voltage"
	ColTemperature   = "temperature"
)

// Derived column names
const (
	ColDepthOfDischarge = "depth_of_discharge"
	ColChargeRate       = "charge_rate"
	ColDischargeRate    = "discharge_rate"
	ColCumulativeEnergy = "cumulative_energy"
)

var (
	// ErrMissingColumn is returned when a required input column is absent
	ErrMissingColumn = errors.New("missing required column")
	// ErrInvalidOption is returned for non-positive windows or lags
	ErrInvalidOption = errors.New("invalid feature option")
)

// RequiredColumns lists the columns Engineer expects in its input
var RequiredColumns = []string{ColCurrent, ColVoltage, ColTemperature, ColStateOfCharge}

// Options selects the rolling and lag features to derive
type Options struct {
	RollingColumn string
	Windows       []int
	LagColumn     string
	Lags          []int
}

// DefaultOptions derives a 5-row temperature average
// and state-of-charge lags of 1, 2 and 3 rows.
func DefaultOptions() Options {
	return Options{
		RollingColumn: ColTemperature,
		Windows:       []int{5},
		LagColumn:     ColStateOfCharge,
		Lags:          []int{1, 2, 3},
	}
}

// RollingName returns the name of the rolling average column for col and window
func RollingName(col string, window int) string {
	return fmt.Sprintf("%s_rolling_avg_%d", col, window)
}

// LagName returns the name of the lag column for col and offset
func LagName(col string, lag int) string {
	return fmt.Sprintf("%s_lag_%d", col, lag)
}

// Engineer runs the full derivation pipeline
type Engineer struct {
	logger zerolog.Logger
	opts   Options
}

// NewEngineer creates a new feature engineer
func NewEngineer(logger zerolog.Logger, opts Options) *Engineer {
	return &Engineer{logger: logger, opts: opts}
}

// Apply validates the required columns and derives every feature column
func (e *Engineer) Apply(t *table.Table) (*table.Table, error) {
	if err := requireColumns(t, RequiredColumns...); err != nil {
		return nil, err
	}

	out, err := DepthOfDischarge(t)
	if err != nil {
		return nil, err
	}
	e.logger.Info().Msg("Depth of Discharge (DoD) calculated")

	if out, err = ChargeDischargeRates(out); err != nil {
		return nil, err
	}
	e.logger.Info().Msg("Charge and discharge rates calculated")

	if out, err = CumulativeEnergy(out); err != nil {
		return nil, err
	}
	e.logger.Info().Msg("Cumulative energy throughput calculated")

	for _, w := range e.opts.Windows {
		if out, err = RollingAverage(out, e.opts.RollingColumn, w); err != nil {
			return nil, err
		}
		e.logger.Info().
			Str("feature", RollingName(e.opts.RollingColumn, w)).
			Msg("Rolling average feature created")
	}

	if len(e.opts.Lags) > 0 {
		if out, err = Lagged(out, e.opts.LagColumn, e.opts.Lags); err != nil {
			return nil, err
		}
		for _, k := range e.opts.Lags {
			e.logger.Info().
				Str("feature", LagName(e.opts.LagColumn, k)).
				Msg("Lagged feature created")
		}
	}

	return out, nil
}

// DepthOfDischarge adds depth_of_discharge = 100 - state_of_charge
func DepthOfDischarge(t *table.Table) (*table.Table, error) {
	soc, err := numeric(t, ColStateOfCharge)
	if err != nil {
		return nil, err
	}

	dod := make([]float64, len(soc))
	for i, v := range soc {
		dod[i] = 100 - v
	}
	return t.WithColumn(table.NewNumeric(ColDepthOfDischarge, dod))
}

// ChargeDischargeRates splits current into a non-negative charge rate
// (positive current) and a non-negative discharge rate (magnitude of negative
// current). At most one of the pair is nonzero in a row.
func ChargeDischargeRates(t *table.Table) (*table.Table, error) {
	current, err := numeric(t, ColCurrent)
	if err != nil {
		return nil, err
	}

	charge := make([]float64, len(current))
	discharge := make([]float64, len(current))
	for i, v := range current {
		switch {
		case v > 0:
			charge[i] = v
		case v < 0:
			discharge[i] = -v
		}
	}

	out, err := t.WithColumn(table.NewNumeric(ColChargeRate, charge))
	if err != nil {
		return nil, err
	}
	return out.WithColumn(table.NewNumeric(ColDischargeRate, discharge))
}

// CumulativeEnergy adds the running sum of voltage*current in row order.
// Missing products are skipped, so the running sum carries over them.
func CumulativeEnergy(t *table.Table) (*table.Table, error) {
	voltage, err := numeric(t, ColVoltage)
	if err != nil {
		return nil, err
	}
	current, err := numeric(t, ColCurrent)
	if err != nil {
		return nil, err
	}

	cum := make([]float64, len(voltage))
	var sum float64
	for i := range voltage {
		p := voltage[i] * current[i]
		if math.IsNaN(p) {
			cum[i] = math.NaN()
			continue
		}
		sum += p
		cum[i] = sum
	}
	return t.WithColumn(table.NewNumeric(ColCumulativeEnergy, cum))
}

// RollingAverage adds <col>_rolling_avg_<window>, the mean of the trailing
// window values including the current row. The first window-1 rows, and any
// row whose window holds a missing value, are undefined (NaN).
func RollingAverage(t *table.Table, col string, window int) (*table.Table, error) {
	if window <= 0 {
		return nil, fmt.Errorf("%w: window must be positive, got %d", ErrInvalidOption, window)
	}
	values, err := numeric(t, col)
	if err != nil {
		return nil, err
	}

	return t.WithColumn(table.NewNumeric(RollingName(col, window), Rolling(values, window)))
}

// Rolling computes the trailing mean series for values
func Rolling(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		if i < window-1 {
			out[i] = math.NaN()
			continue
		}
		win := values[i-window+1 : i+1]
		if hasNaN(win) {
			out[i] = math.NaN()
			continue
		}
		out[i] = stat.Mean(win, nil)
	}
	return out
}

// Lagged adds one <col>_lag_<k> column per offset k, holding the value from
// k rows earlier. The first k rows are undefined (NaN).
func Lagged(t *table.Table, col string, lags []int) (*table.Table, error) {
	values, err := numeric(t, col)
	if err != nil {
		return nil, err
	}

	out := t
	for _, k := range lags {
		if k <= 0 {
			return nil, fmt.Errorf("%w: lag must be positive, got %d", ErrInvalidOption, k)
		}
		if out, err = out.WithColumn(table.NewNumeric(LagName(col, k), Shift(values, k))); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Shift returns values delayed by k rows, padding the head with NaN
func Shift(values []float64, k int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		if i < k {
			out[i] = math.NaN()
			continue
		}
		out[i] = values[i-k]
	}
	return out
}

func requireColumns(t *table.Table, names ...string) error {
	for _, name := range names {
		if !t.Has(name) {
			return fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}
	return nil
}

func numeric(t *table.Table, name string) ([]float64, error) {
	if !t.Has(name) {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
	}
	return t.Numeric(name)
}

func hasNaN(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

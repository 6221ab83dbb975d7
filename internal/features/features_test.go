package features

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sreeram77/battery-pm/internal/table"
)

func telemetry() *table.Table {
	return table.MustNew(
		table.NewNumeric(ColStateOfCharge, []float64{100, 95, 90, 85.5, 80, 76, 70, 64}),
		table.NewNumeric(ColCurrent, []float64{2, -1.5, 0, -3, 4, -2, 1, -0.5}),
		table.NewNumeric(ColVoltage, []float64{4.2, 4.1, 4.0, 3.9, 3.8, 3.7, 3.6, 3.5}),
		table.NewNumeric(ColTemperature, []float64{20, 22, 24, 26, 28, 30, 29, 27}),
	)
}

func column(t *testing.T, tbl *table.Table, name string) []float64 {
	t.Helper()
	v, err := tbl.Numeric(name)
	require.NoError(t, err)
	return v
}

func TestDepthOfDischarge(t *testing.T) {
	out, err := DepthOfDischarge(telemetry())
	require.NoError(t, err)

	soc := column(t, out, ColStateOfCharge)
	dod := column(t, out, ColDepthOfDischarge)
	for i := range soc {
		assert.Equal(t, 100.0, soc[i]+dod[i], "row %d", i)
	}
}

func TestChargeDischargeRates(t *testing.T) {
	out, err := ChargeDischargeRates(telemetry())
	require.NoError(t, err)

	current := column(t, out, ColCurrent)
	charge := column(t, out, ColChargeRate)
	discharge := column(t, out, ColDischargeRate)

	for i, c := range current {
		switch {
		case c == 0:
			assert.Zero(t, charge[i], "row %d", i)
			assert.Zero(t, discharge[i], "row %d", i)
		case c > 0:
			assert.Equal(t, c, charge[i], "row %d", i)
			assert.Zero(t, discharge[i], "row %d", i)
		default:
			assert.Zero(t, charge[i], "row %d", i)
			assert.Equal(t, -c, discharge[i], "row %d", i)
		}
		assert.GreaterOrEqual(t, charge[i], 0.0)
		assert.GreaterOrEqual(t, discharge[i], 0.0)
	}
}

func TestCumulativeEnergy(t *testing.T) {
	tbl := table.MustNew(
		table.NewNumeric(ColVoltage, []float64{2, 3, 4, 5}),
		table.NewNumeric(ColCurrent, []float64{1, -1, math.NaN(), 2}),
	)

	out, err := CumulativeEnergy(tbl)
	require.NoError(t, err)

	cum := column(t, out, ColCumulativeEnergy)
	assert.Equal(t, 2.0, cum[0])
	assert.Equal(t, -1.0, cum[1])
	assert.True(t, math.IsNaN(cum[2]))
	assert.Equal(t, 9.0, cum[3])
}

func TestRollingAverage(t *testing.T) {
	const window = 3
	src := telemetry()
	out, err := RollingAverage(src, ColTemperature, window)
	require.NoError(t, err)

	temp := column(t, out, ColTemperature)
	rolling := column(t, out, RollingName(ColTemperature, window))

	t.Run("leading rows are undefined", func(t *testing.T) {
		for i := 0; i < window-1; i++ {
			assert.True(t, math.IsNaN(rolling[i]), "row %d", i)
		}
		assert.False(t, math.IsNaN(rolling[window-1]))
	})

	t.Run("matches the manual trailing mean", func(t *testing.T) {
		for _, i := range []int{2, 4, 7} {
			want := (temp[i] + temp[i-1] + temp[i-2]) / 3
			assert.InDelta(t, want, rolling[i], 1e-12, "row %d", i)
		}
	})

	t.Run("multiple windows do not interfere", func(t *testing.T) {
		both, err := RollingAverage(out, ColTemperature, 5)
		require.NoError(t, err)
		assert.Equal(t, rolling, column(t, both, RollingName(ColTemperature, window)))
		five := column(t, both, RollingName(ColTemperature, 5))
		assert.Equal(t, 4, countNaN(five))
	})

	t.Run("rejects non-positive windows", func(t *testing.T) {
		_, err := RollingAverage(src, ColTemperature, 0)
		assert.ErrorIs(t, err, ErrInvalidOption)
	})

	t.Run("window containing a gap is undefined", func(t *testing.T) {
		r := Rolling([]float64{1, math.NaN(), 3, 4, 5}, 2)
		assert.Equal(t, 5, len(r))
		assert.True(t, math.IsNaN(r[1]))
		assert.True(t, math.IsNaN(r[2]))
		assert.Equal(t, 3.5, r[3])
	})
}

func TestLagged(t *testing.T) {
	src := telemetry()
	out, err := Lagged(src, ColStateOfCharge, []int{1, 2, 3})
	require.NoError(t, err)

	soc := column(t, out, ColStateOfCharge)
	for _, k := range []int{1, 2, 3} {
		lag := column(t, out, LagName(ColStateOfCharge, k))
		for i := range lag {
			if i < k {
				assert.True(t, math.IsNaN(lag[i]), "lag %d row %d", k, i)
				continue
			}
			assert.Equal(t, soc[i-k], lag[i], "lag %d row %d", k, i)
		}
	}

	_, err = Lagged(src, ColStateOfCharge, []int{-1})
	assert.ErrorIs(t, err, ErrInvalidOption)
}

func TestEngineer_Apply(t *testing.T) {
	e := NewEngineer(zerolog.Nop(), DefaultOptions())

	t.Run("derives every feature column", func(t *testing.T) {
		src := telemetry()
		out, err := e.Apply(src)
		require.NoError(t, err)

		assert.Equal(t, []string{
			ColStateOfCharge, ColCurrent, ColVoltage, ColTemperature,
			ColDepthOfDischarge, ColChargeRate, ColDischargeRate, ColCumulativeEnergy,
			"temperature_rolling_avg_5",
			"state_of_charge_lag_1", "state_of_charge_lag_2", "state_of_charge_lag_3",
		}, out.Names())
		assert.Equal(t, src.Len(), out.Len())
		assert.Len(t, src.Names(), 4)
	})

	t.Run("missing required column is fatal", func(t *testing.T) {
		for _, missing := range RequiredColumns {
			var cols []*table.Column
			for _, c := range telemetry().Columns() {
				if c.Name != missing {
					cols = append(cols, c)
				}
			}
			_, err := e.Apply(table.MustNew(cols...))
			assert.ErrorIs(t, err, ErrMissingColumn, missing)
		}
	})
}

func countNaN(values []float64) int {
	n := 0
	for _, v := range values {
		if math.IsNaN(v) {
			n++
		}
	}
	return n
}

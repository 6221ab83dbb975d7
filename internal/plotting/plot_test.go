package plotting

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/plot"

	"github.com/sreeram77/battery-pm/internal/features"
	"github.com/sreeram77/battery-pm/internal/table"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func telemetry() *table.Table {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	times := make([]time.Time, 6)
	for i := range times {
		times[i] = start.Add(time.Duration(i) * time.Minute)
	}
	return table.MustNew(
		table.NewTime("timestamp", times),
		table.NewNumeric(features.ColStateOfCharge, []float64{100, 90, 80, math.NaN(), 60, 50}),
		table.NewNumeric(features.ColTemperature, []float64{20, 22, 24, 26, 28, 30}),
		table.NewNumeric(features.ColVoltage, []float64{4.2, 4.1, 4.0, 3.9, 3.8, 3.7}),
		table.NewNumeric("constant", []float64{1, 1, 1, 1, 1, 1}),
	)
}

func renderPNG(t *testing.T, p *plot.Plot) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, WritePNG(p, &buf))
	require.True(t, bytes.HasPrefix(buf.Bytes(), pngMagic), "output is not a PNG")
	return buf.Bytes()
}

func TestLine(t *testing.T) {
	tbl := telemetry()

	t.Run("time axis", func(t *testing.T) {
		p, err := SOCOverTime(tbl, "timestamp")
		require.NoError(t, err)
		assert.Equal(t, "Battery State of Charge Over Time", p.Title.Text)
		renderPNG(t, p)
	})

	t.Run("index axis without a time column", func(t *testing.T) {
		p, err := Line("SOC", "Row", "SOC", nil, []float64{1, 2, 3})
		require.NoError(t, err)
		renderPNG(t, p)
	})

	t.Run("feature over time", func(t *testing.T) {
		p, err := FeatureOverTime(tbl, "timestamp", features.ColVoltage)
		require.NoError(t, err)
		assert.Equal(t, "voltage Over Time", p.Title.Text)
		assert.Equal(t, features.ColVoltage, p.Y.Label.Text)
	})

	t.Run("unknown column", func(t *testing.T) {
		_, err := FeatureOverTime(tbl, "timestamp", "nope")
		assert.ErrorIs(t, err, table.ErrColumnNotFound)
	})

	t.Run("all values missing", func(t *testing.T) {
		_, err := Line("x", "x", "y", nil, []float64{math.NaN()})
		assert.ErrorIs(t, err, ErrNoData)
	})

	t.Run("length mismatch", func(t *testing.T) {
		_, err := Line("x", "x", "y", []time.Time{time.Now()}, []float64{1, 2})
		assert.Error(t, err)
	})
}

func TestHistogram(t *testing.T) {
	p, err := TemperatureDistribution(telemetry())
	require.NoError(t, err)
	assert.Equal(t, "Frequency", p.Y.Label.Text)
	renderPNG(t, p)

	_, err = Histogram("x", "x", []float64{1}, 0)
	assert.Error(t, err)

	_, err = Histogram("x", "x", []float64{math.NaN()}, 30)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestCorrelationMatrix(t *testing.T) {
	names, matrix, err := CorrelationMatrix(telemetry())
	require.NoError(t, err)

	assert.Equal(t, []string{features.ColStateOfCharge, features.ColTemperature, features.ColVoltage, "constant"}, names)

	// Perfectly linear pairs
	assert.InDelta(t, 1, matrix[1][1], 1e-12)
	assert.InDelta(t, -1, matrix[1][2], 1e-12)
	assert.InDelta(t, -1, matrix[0][1], 1e-12, "pairwise rows skip the missing SOC")

	// Symmetric
	for i := range matrix {
		for j := range matrix {
			if math.IsNaN(matrix[i][j]) {
				assert.True(t, math.IsNaN(matrix[j][i]))
				continue
			}
			assert.Equal(t, matrix[i][j], matrix[j][i])
		}
	}

	// Zero variance column is undefined
	assert.True(t, math.IsNaN(matrix[3][0]))
	assert.True(t, math.IsNaN(matrix[3][3]))
}

func TestCorrelationHeatmap(t *testing.T) {
	p, err := CorrelationHeatmap(telemetry())
	require.NoError(t, err)
	renderPNG(t, p)

	_, err = Heatmap("x", []string{"a", "b"}, [][]float64{{1, 0}})
	assert.Error(t, err)

	_, err = CorrelationHeatmap(table.MustNew(table.NewText("name", []string{"a"})))
	assert.ErrorIs(t, err, ErrNoData)
}

func TestSavePNG(t *testing.T) {
	p, err := Line("x", "x", "y", nil, []float64{1, 2, 3})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "eda_plots", SOCOverTimeFile)
	require.NoError(t, SavePNG(p, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, pngMagic))
}

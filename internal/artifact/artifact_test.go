package artifact

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/sreeram77/battery-pm/internal/table"
)

const sampleCSV = `timestamp,state_of_charge,current,voltage,temperature,battery_id
2024-01-01 00:00:10,80,1.5,3.7,25,A
2024-01-01 00:00:40,79.5,,3.6,25.5,A
2024-01-01T00:01:05Z,79,-2,3.65,NaN,B
`

func TestReadTable(t *testing.T) {
	tbl, err := ReadTable(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	assert.Equal(t, 3, tbl.Len())
	assert.Equal(t, []string{"timestamp", "state_of_charge", "current", "voltage", "temperature", "battery_id"}, tbl.Names())

	ts, err := tbl.Column("timestamp")
	require.NoError(t, err)
	assert.Equal(t, table.Time, ts.Kind)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 1, 5, 0, time.UTC), ts.Times[2])

	current, err := tbl.Numeric("current")
	require.NoError(t, err)
	assert.Equal(t, 1.5, current[0])
	assert.True(t, math.IsNaN(current[1]))

	temp, err := tbl.Numeric("temperature")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(temp[2]))

	id, err := tbl.Column("battery_id")
	require.NoError(t, err)
	assert.Equal(t, table.Text, id.Kind)
}

func TestReadTable_Malformed(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		_, err := ReadTable(strings.NewReader(""))
		assert.ErrorIs(t, err, ErrParse)
	})

	t.Run("ragged rows", func(t *testing.T) {
		_, err := ReadTable(strings.NewReader("a,b\n1,2\n3\n"))
		assert.ErrorIs(t, err, ErrParse)
	})
}

func TestStore_LoadTable(t *testing.T) {
	store := NewStore(zerolog.Nop())

	t.Run("missing file", func(t *testing.T) {
		_, err := store.LoadTable(filepath.Join(t.TempDir(), "nope.csv"))
		assert.ErrorIs(t, err, ErrFileNotFound)
	})

	t.Run("round trip", func(t *testing.T) {
		dir := t.TempDir()
		src := filepath.Join(dir, "in.csv")
		require.NoError(t, os.WriteFile(src, []byte(sampleCSV), 0644))

		tbl, err := store.LoadTable(src)
		require.NoError(t, err)

		dst := filepath.Join(dir, "nested", "out", "copy.csv")
		require.NoError(t, store.SaveTable(tbl, dst))

		again, err := store.LoadTable(dst)
		require.NoError(t, err)
		assert.Equal(t, tbl.Names(), again.Names())
		assert.Equal(t, tbl.Len(), again.Len())
		assert.Equal(t, tbl.Row(0), again.Row(0))
	})

	t.Run("round trip keeps sub-second timestamps", func(t *testing.T) {
		dir := t.TempDir()
		src := filepath.Join(dir, "in.csv")
		raw := "timestamp,voltage\n" +
			"2024-01-01T10:00:00.100+02:00,3.7\n" +
			"2024-01-01T10:00:00.900+02:00,3.8\n"
		require.NoError(t, os.WriteFile(src, []byte(raw), 0644))

		tbl, err := store.LoadTable(src)
		require.NoError(t, err)

		dst := filepath.Join(dir, "out.csv")
		require.NoError(t, store.SaveTable(tbl, dst))

		again, err := store.LoadTable(dst)
		require.NoError(t, err)
		want, _ := tbl.Times("timestamp")
		got, err := again.Times("timestamp")
		require.NoError(t, err)
		require.Len(t, got, 2)
		for i := range want {
			assert.True(t, want[i].Equal(got[i]), "row %d: %s != %s", i, want[i], got[i])
		}
	})
}

func TestStore_JSON(t *testing.T) {
	store := NewStore(zerolog.Nop())
	dir := t.TempDir()

	t.Run("save creates directories and load decodes", func(t *testing.T) {
		path := filepath.Join(dir, "a", "b", "config.json")
		in := map[string]any{"lags": []int{1, 2, 3}, "window": 5}
		require.NoError(t, store.SaveJSON(in, path))

		var out map[string]any
		require.NoError(t, store.LoadJSON(path, &out))
		assert.Equal(t, float64(5), out["window"])
	})

	t.Run("missing file", func(t *testing.T) {
		var out map[string]any
		err := store.LoadJSON(filepath.Join(dir, "missing.json"), &out)
		assert.ErrorIs(t, err, ErrFileNotFound)
		assert.NotErrorIs(t, err, ErrParse)
	})

	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

		var out map[string]any
		err := store.LoadJSON(path, &out)
		assert.ErrorIs(t, err, ErrParse)
		assert.NotErrorIs(t, err, ErrFileNotFound)
	})
}

func TestStore_ExportXLSX(t *testing.T) {
	store := NewStore(zerolog.Nop())
	tbl := table.MustNew(
		table.NewText("battery_id", []string{"A", "B"}),
		table.NewNumeric("state_of_charge", []float64{80, math.NaN()}),
	)

	path := filepath.Join(t.TempDir(), "export", "features.xlsx")
	require.NoError(t, store.ExportXLSX(tbl, path, "features"))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("features")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"battery_id", "state_of_charge"}, rows[0])
	assert.Equal(t, []string{"A", "80"}, rows[1])
	assert.Equal(t, []string{"B"}, rows[2])
}

func TestObjectStore(t *testing.T) {
	t.Run("requires endpoint and bucket", func(t *testing.T) {
		_, err := NewObjectStore(zerolog.Nop(), ObjectStoreConfig{})
		assert.Error(t, err)
	})

	t.Run("keys are prefixed", func(t *testing.T) {
		store, err := NewObjectStore(zerolog.Nop(), ObjectStoreConfig{
			Endpoint: "localhost:9000",
			Bucket:   "models",
			Prefix:   "/runs/latest/",
		})
		require.NoError(t, err)
		assert.Equal(t, "runs/latest/metrics.json", store.ObjectKey("metrics.json"))
	})
}

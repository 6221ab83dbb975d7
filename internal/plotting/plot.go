// Package plotting renders telemetry charts as PNG images.
package plotting

import (
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/sreeram77/battery-pm/internal/artifact"
)

// ErrNoData is returned when a chart has nothing to draw
var ErrNoData = errors.New("no data to plot")

const (
	// Width and Height are the default PNG dimensions
	Width  = 10 * vg.Inch
	Height = 6 * vg.Inch

	timeFormat = "2006-01-02\n15:04"
)

// Line plots values against times. When times is nil the row index is
// used as the x axis. Points with a NaN value are skipped.
func Line(title, xLabel, yLabel string, times []time.Time, values []float64) (*plot.Plot, error) {
	if times != nil && len(times) != len(values) {
		return nil, fmt.Errorf("%d times for %d values", len(times), len(values))
	}

	xys := make(plotter.XYs, 0, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		x := float64(i)
		if times != nil {
			if times[i].IsZero() {
				continue
			}
			x = float64(times[i].Unix())
		}
		xys = append(xys, plotter.XY{X: x, Y: v})
	}
	if len(xys) == 0 {
		return nil, ErrNoData
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel
	if times != nil {
		p.X.Tick.Marker = plot.TimeTicks{Format: timeFormat}
	}
	p.Add(plotter.NewGrid())

	line, err := plotter.NewLine(xys)
	if err != nil {
		return nil, fmt.Errorf("line: %w", err)
	}
	p.Add(line)
	p.Legend.Add(yLabel, line)
	p.Legend.Top = true

	return p, nil
}

// Histogram plots the distribution of values in bins buckets. NaN values
// are ignored.
func Histogram(title, xLabel string, values []float64, bins int) (*plot.Plot, error) {
	if bins <= 0 {
		return nil, fmt.Errorf("bins must be positive, got %d", bins)
	}

	finite := make(plotter.Values, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return nil, ErrNoData
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = "Frequency"

	h, err := plotter.NewHist(finite, bins)
	if err != nil {
		return nil, fmt.Errorf("histogram: %w", err)
	}
	p.Add(h)

	return p, nil
}

// matrixGrid adapts a square matrix to plotter.GridXYZ. Row 0 is drawn at
// the top.
type matrixGrid struct {
	m [][]float64
}

func (g matrixGrid) Dims() (c, r int)   { return len(g.m), len(g.m) }
func (g matrixGrid) Z(c, r int) float64 { return g.m[len(g.m)-1-r][c] }
func (g matrixGrid) X(c int) float64    { return float64(c) }
func (g matrixGrid) Y(r int) float64    { return float64(r) }

// Heatmap draws a labelled square matrix of values in [-1, 1], annotating
// each cell with its value
func Heatmap(title string, names []string, matrix [][]float64) (*plot.Plot, error) {
	n := len(names)
	if n == 0 {
		return nil, ErrNoData
	}
	if len(matrix) != n {
		return nil, fmt.Errorf("%d names for %d rows", n, len(matrix))
	}
	for i, row := range matrix {
		if len(row) != n {
			return nil, fmt.Errorf("row %d has %d values, expected %d", i, len(row), n)
		}
	}

	cm := moreland.SmoothBlueRed()
	cm.SetMin(-1)
	cm.SetMax(1)

	grid := matrixGrid{m: matrix}
	hm := plotter.NewHeatMap(grid, cm.Palette(255))
	hm.Min, hm.Max = -1, 1

	p := plot.New()
	p.Title.Text = title
	p.Add(hm)

	// Cell annotations
	points := make(plotter.XYs, 0, n*n)
	labels := make([]string, 0, n*n)
	for c := 0; c < n; c++ {
		for r := 0; r < n; r++ {
			points = append(points, plotter.XY{X: grid.X(c), Y: grid.Y(r)})
			labels = append(labels, fmt.Sprintf("%.2f", grid.Z(c, r)))
		}
	}
	annotations, err := plotter.NewLabels(plotter.XYLabels{XYs: points, Labels: labels})
	if err != nil {
		return nil, fmt.Errorf("labels: %w", err)
	}
	p.Add(annotations)

	xTicks := make([]plot.Tick, n)
	yTicks := make([]plot.Tick, n)
	for i, name := range names {
		xTicks[i] = plot.Tick{Value: float64(i), Label: name}
		yTicks[i] = plot.Tick{Value: float64(n - 1 - i), Label: name}
	}
	p.X.Tick.Marker = plot.ConstantTicks(xTicks)
	p.Y.Tick.Marker = plot.ConstantTicks(yTicks)
	p.X.Tick.Label.Rotation = math.Pi / 4

	return p, nil
}

// WritePNG renders p as a PNG of the default size to w
func WritePNG(p *plot.Plot, w io.Writer) error {
	wt, err := p.WriterTo(Width, Height, "png")
	if err != nil {
		return fmt.Errorf("render png: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// SavePNG renders p to path, creating parent directories
func SavePNG(p *plot.Plot, path string) error {
	if err := artifact.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := p.Save(Width, Height, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

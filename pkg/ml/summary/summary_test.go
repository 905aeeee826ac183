package summary

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterAndLoad(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	for step := range 5 {
		w.Write(Point{MetricName: "Generator Loss", Short: "G", MetricType: TypeLoss, Step: float64(step), Value: 1 / float64(step+1)})
	}
	w.Write(Point{MetricName: "Learning Rate", Short: "LR", MetricType: "optimizer", Step: 4, Value: 0.0002})
	require.NoError(t, w.Close())
	require.Error(t, w.Close(), "closing twice")

	// A second session appends.
	w = NewWriter(dir)
	w.Write(Point{MetricName: "Generator Loss", Short: "G", MetricType: TypeLoss, Step: 5, Value: 0.1})
	require.NoError(t, w.Close())

	raw, err := LoadPointsFromDir(dir)
	require.NoError(t, err)
	require.Len(t, raw, 7)
	assert.Equal(t, 0.1, raw[6].Value)

	points := NewPoints(raw)
	assert.Equal(t, []float64{0, 1, 2, 3, 4, 5}, points.Steps())
	assert.Equal(t, []string{"Generator Loss", "Learning Rate"}, points.MetricsNames())
	steps, values := points.Metric("Generator Loss")
	assert.Equal(t, []float64{0, 1, 2, 3, 4, 5}, steps)
	assert.Equal(t, 1.0, values[0])

	table := points.TableForMetrics("Generator Loss")
	assert.Contains(t, table, "Generator Loss")
	assert.NotContains(t, table, "Learning Rate")
}

func TestWriterFailure(t *testing.T) {
	w := NewWriter(filepath.Join(t.TempDir(), "missing"))
	w.Write(Point{MetricName: "Generator Loss", Step: 1})
	assert.Error(t, w.Close())
}

func TestLoadPointsMissingFile(t *testing.T) {
	_, err := LoadPoints(filepath.Join(t.TempDir(), TrainingPointsFileName))
	assert.Error(t, err)
}

func TestPlotLoss(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	for step := range 10 {
		w.Write(Point{MetricName: "Generator Loss", MetricType: TypeLoss, Step: float64(step), Value: 1 / float64(step+1)})
	}
	require.NoError(t, w.Close())
	require.NoError(t, PlotLoss(dir))

	contents, err := os.ReadFile(filepath.Join(dir, PlotFileName))
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(contents))
	require.NoError(t, err)
	assert.Greater(t, img.Bounds().Dx(), 0)

	// Nothing to plot.
	assert.Error(t, PlotMetrics(NewPoints(nil), TypeLoss, filepath.Join(dir, "empty.png")))
}

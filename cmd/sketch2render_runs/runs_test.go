package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gomlx/sketch2render/pkg/ml/checkpoints"
	"github.com/gomlx/sketch2render/pkg/ml/summary"
	"github.com/gomlx/sketch2render/pkg/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunNames(t *testing.T) {
	assert.Equal(t, []string{"003"}, runNames("/tmp/checkpoints/003"))
	assert.Equal(t, []string{"000", "001"}, runNames("/tmp/checkpoints/000", "/tmp/checkpoints/001"))
	assert.Equal(t, []string{"a...000", "b...001"}, runNames("/tmp/a/000", "/tmp/b/001"))
	assert.Equal(t, []string{"a", "b"}, runNames("/tmp/a/000", "/tmp/b/000"))
}

// writeRun creates a run with a run information file, a couple of checkpoints, and training metrics.
func writeRun(t *testing.T, checkpointBase, summaryBase, run string, learningRate float64) string {
	checkpointPath := filepath.Join(checkpointBase, run)
	require.NoError(t, os.MkdirAll(checkpointPath, 0755))
	config := pipeline.DefaultConfig()
	config.LearningRate = learningRate
	info := pipeline.RunInfo{Run: run, SessionID: "session-" + run, StartTime: time.Now(), Config: config}
	contents, err := json.Marshal(info)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(checkpointPath, pipeline.RunFileName), contents, 0644))

	handler := checkpoints.New(checkpointPath, 0)
	for _, iteration := range []int64{10, 20} {
		_, err := handler.Save(iteration, map[string]int{"x": 1})
		require.NoError(t, err)
	}

	require.NoError(t, os.MkdirAll(filepath.Join(summaryBase, run), 0755))
	w := summary.NewWriter(filepath.Join(summaryBase, run))
	for step := range 3 {
		w.Write(summary.Point{MetricName: "Generator Loss", Short: "loss", MetricType: summary.TypeLoss,
			Step: float64(step), Value: learningRate * float64(3-step)})
	}
	require.NoError(t, w.Close())
	return checkpointPath
}

func TestReports(t *testing.T) {
	base := t.TempDir()
	checkpointBase, summaryBase := filepath.Join(base, "checkpoints"), filepath.Join(base, "summaries")
	paths := []string{
		writeRun(t, checkpointBase, summaryBase, "000", 0.5),
		writeRun(t, checkpointBase, summaryBase, "001", 0.25),
		filepath.Join(checkpointBase, "002"), // Empty run.
	}
	reports := loadRuns(paths, summaryBase)
	require.Len(t, reports, 3)
	assert.Equal(t, "000", reports[0].Name)
	assert.Equal(t, "session-000", reports[0].Info.SessionID)
	assert.Len(t, reports[0].Checkpoints, 2)
	assert.Greater(t, reports[0].LatestSize, int64(0))
	assert.Nil(t, reports[2].Info)

	summaryText := summaryTable(reports).Render()
	assert.Contains(t, summaryText, "session-001")
	assert.Contains(t, summaryText, "latest iteration")

	table := configTable(reports)
	text := table.Render()
	assert.Contains(t, text, "LearningRate")
	assert.Contains(t, text, "0.25")
	// Only LearningRate differs.
	assert.Len(t, table.Reds, 1)

	points, err := mergedPoints(reports, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"000: Generator Loss", "001: Generator Loss"}, points.MetricsNames())
	_, err = mergedPoints(reports, "accuracy")
	require.Error(t, err)
	_, err = mergedPoints(reports, "(")
	require.Error(t, err)

	plotFile := filepath.Join(base, "plot.png")
	require.NoError(t, plotLoss(points, plotFile))
	assert.FileExists(t, plotFile)
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package summary records metrics collected during training in a run's summary directory, and
// renders them as tables and plots.
//
// Points are stored one JSON object per line in TrainingPointsFileName, so a continued training
// session simply appends to the same file.
package summary

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/gomlx/sketch2render/pkg/support/fsutil"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// TrainingPointsFileName is the file name within a summary directory that stores the points collected during training.
const TrainingPointsFileName = "training_plot_points.json"

// Metric types.
const (
	TypeLoss = "loss"
)

// Point is one measurement of a metric.
type Point struct {
	// MetricName of this point, e.g. "Generator Loss".
	MetricName string

	// Short name, used in table headers.
	Short string

	// MetricType, e.g. "loss". Similar metric types are plotted together.
	MetricType string

	// Step is the training step this metric was measured at.
	Step float64

	// Value is the metric captured.
	Value float64
}

// LoadPointsFromDir loads the points saved in the TrainingPointsFileName of a summary directory.
func LoadPointsFromDir(summaryDir string) ([]Point, error) {
	summaryDir = fsutil.MustReplaceTildeInDir(summaryDir)
	return LoadPoints(filepath.Join(summaryDir, TrainingPointsFileName))
}

// LoadPoints parses all points saved in the given file.
func LoadPoints(filePath string) ([]Point, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read summary file %q", filePath)
	}
	defer func() { _ = f.Close() }()

	dec := json.NewDecoder(f)
	var points []Point
	for {
		var point Point
		err := dec.Decode(&point)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "error while decoding summary file %q", filePath)
		}
		points = append(points, point)
	}
	return points, nil
}

// Writer appends points to a file from a background goroutine, so training is not blocked by the disk.
//
// If writing fails, following points are discarded and the error is returned by Close.
type Writer struct {
	points  chan Point
	errChan chan error
	closed  bool
}

// NewWriter creates a Writer that appends to the TrainingPointsFileName of summaryDir.
// The directory must exist.
func NewWriter(summaryDir string) *Writer {
	filePath := filepath.Join(fsutil.MustReplaceTildeInDir(summaryDir), TrainingPointsFileName)
	w := &Writer{
		points:  make(chan Point, 100),
		errChan: make(chan error, 1),
	}
	go w.run(filePath)
	return w
}

func (w *Writer) run(filePath string) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0664)
	if err != nil {
		err = errors.Wrapf(err, "failed to open summary file %q for append", filePath)
		klog.Errorf("Error: %v", err)
	}
	enc := json.NewEncoder(f)
	for point := range w.points {
		if err != nil {
			continue
		}
		if err = enc.Encode(point); err != nil {
			err = errors.Wrapf(err, "failed to encode point %v", point)
			klog.Errorf("Error: %v", err)
		}
	}
	if f != nil {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}
	w.errChan <- err
}

// Write queues the point to be written.
func (w *Writer) Write(point Point) {
	w.points <- point
}

// Close waits for the queued points to be written and returns the first error, if any.
// It must be called only once, and no more points can be written afterwards.
func (w *Writer) Close() error {
	if w.closed {
		return errors.New("summary.Writer closed twice")
	}
	w.closed = true
	close(w.points)
	return <-w.errChan
}

// Points is a collection of Point indexed by their Step.
type Points map[float64][]Point

// NewPoints creates a Points object from individual points.
func NewPoints(rawPoints []Point) Points {
	points := make(Points)
	for _, p := range rawPoints {
		points[p.Step] = append(points[p.Step], p)
	}
	return points
}

// Steps returns the sorted steps with points.
func (points Points) Steps() []float64 {
	return slices.Sorted(maps.Keys(points))
}

// Map executes fn on all points, in Step order.
func (points Points) Map(fn func(p *Point)) {
	for _, step := range points.Steps() {
		stepPoints := points[step]
		for ii := range stepPoints {
			fn(&stepPoints[ii])
		}
	}
}

// Metric returns the steps and values of the given metric, in Step order.
func (points Points) Metric(metricName string) (steps, values []float64) {
	points.Map(func(p *Point) {
		if p.MetricName == metricName {
			steps = append(steps, p.Step)
			values = append(values, p.Value)
		}
	})
	return
}

// MetricsNames returns the names of the metrics in the collection, sorted by their type and then by their name.
func (points Points) MetricsNames() []string {
	nameToType := make(map[string]string)
	points.Map(func(p *Point) {
		nameToType[p.MetricName] = p.MetricType
	})
	names := slices.Sorted(maps.Keys(nameToType))
	sort.SliceStable(names, func(i, j int) bool {
		return nameToType[names[i]] < nameToType[names[j]]
	})
	return names
}

// TableForMetrics returns a table with the first column being the Step followed by one column per metric.
// If metrics is empty, all metrics are included.
func (points Points) TableForMetrics(metrics ...string) string {
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	headerStyle := lipgloss.NewStyle().Padding(0, 1).Bold(true).Reverse(true)
	table := lgtable.New().
		Border(lipgloss.RoundedBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == lgtable.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	if len(metrics) == 0 {
		metrics = points.MetricsNames()
	}
	table.Headers(append([]string{"Step"}, metrics...)...)
	for _, step := range points.Steps() {
		row := make([]string, 1+len(metrics))
		row[0] = fmt.Sprintf("%.0f", step)
		for _, pt := range points[step] {
			if idx := slices.Index(metrics, pt.MetricName); idx != -1 {
				row[idx+1] = fmt.Sprintf("%f", pt.Value)
			}
		}
		table.Row(row...)
	}
	return table.String()
}

// String implements fmt.Stringer.
func (points Points) String() string {
	return points.TableForMetrics()
}

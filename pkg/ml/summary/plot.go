// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package summary

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/gomlx/sketch2render/pkg/support/fsutil"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// PlotFileName is the default file name, within a summary directory, of the loss plot.
const PlotFileName = "loss.png"

// Plot size.
var (
	PlotWidth  = 8 * vg.Inch
	PlotHeight = 5 * vg.Inch
)

// PlotMetrics draws one line per metric of the given type (e.g. TypeLoss) over the steps, and saves it
// to filePath. The format is taken from the file extension (".png", ".svg", ".pdf", ...).
func PlotMetrics(points Points, metricType, filePath string) error {
	p := plot.New()
	p.Title.Text = metricType
	p.X.Label.Text = "Step"
	p.Y.Label.Text = metricType
	p.Add(plotter.NewGrid())

	var count int
	for _, name := range points.MetricsNames() {
		steps, values := points.Metric(name)
		if len(steps) == 0 || !isMetricType(points, name, metricType) {
			continue
		}
		xys := make(plotter.XYs, len(steps))
		for ii := range steps {
			xys[ii].X, xys[ii].Y = steps[ii], values[ii]
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return errors.Wrapf(err, "failed to plot metric %q", name)
		}
		line.Color = plotutil.Color(count)
		p.Add(line)
		p.Legend.Add(name, line)
		count++
	}
	if count == 0 {
		return errors.Errorf("no points of metric type %q to plot", metricType)
	}

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(filePath)), ".")
	writerTo, err := p.WriterTo(PlotWidth, PlotHeight, format)
	if err != nil {
		return errors.Wrapf(err, "failed to render plot to %q", filePath)
	}
	return fsutil.WriteAtomic(filePath, func(w io.Writer) error {
		_, err := writerTo.WriteTo(w)
		return err
	})
}

// PlotLoss plots the loss metrics saved in summaryDir into its PlotFileName.
func PlotLoss(summaryDir string) error {
	raw, err := LoadPointsFromDir(summaryDir)
	if err != nil {
		return err
	}
	return PlotMetrics(NewPoints(raw), TypeLoss, filepath.Join(summaryDir, PlotFileName))
}

func isMetricType(points Points, metricName, metricType string) bool {
	found := false
	points.Map(func(p *Point) {
		if p.MetricName == metricName && p.MetricType == metricType {
			found = true
		}
	})
	return found
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"regexp"

	"github.com/gomlx/sketch2render/pkg/ml/summary"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// mergedPoints loads the training metrics of all runs. With more than one run, metric names are prefixed
// with the run name. If namesRegexp is not empty, only metrics whose name or short name match it are kept.
func mergedPoints(reports []*runReport, namesRegexp string) (summary.Points, error) {
	var matcher *regexp.Regexp
	if namesRegexp != "" {
		var err error
		matcher, err = regexp.Compile(namesRegexp)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid -metrics_names=%q", namesRegexp)
		}
	}
	var all []summary.Point
	for _, r := range reports {
		points, err := summary.LoadPointsFromDir(r.SummaryDir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				klog.Warningf("run %s has no training metrics in %q", r.Name, r.SummaryDir)
				continue
			}
			return nil, err
		}
		for _, point := range points {
			if matcher != nil && !matcher.MatchString(point.MetricName) && !matcher.MatchString(point.Short) {
				continue
			}
			if len(reports) > 1 {
				point.MetricName = fmt.Sprintf("%s: %s", r.Name, point.MetricName)
				point.Short = fmt.Sprintf("%s: %s", r.Name, point.Short)
			}
			all = append(all, point)
		}
	}
	if len(all) == 0 {
		return nil, errors.Errorf("no training metrics found in %d run(s)", len(reports))
	}
	return summary.NewPoints(all), nil
}

// plotLoss plots the loss metrics of the merged points into filePath.
func plotLoss(points summary.Points, filePath string) error {
	return summary.PlotMetrics(points, summary.TypeLoss, filePath)
}

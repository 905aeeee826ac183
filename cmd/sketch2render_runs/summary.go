// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/sketch2render/pkg/ml/checkpoints"
	"github.com/gomlx/sketch2render/pkg/pipeline"
	"k8s.io/klog/v2"
)

// runReport holds what is known about one run.
type runReport struct {
	Name                       string
	CheckpointPath, SummaryDir string

	// Info is nil if the run has no information file (see pipeline.RunFileName).
	Info *pipeline.RunInfo

	// Checkpoints are the base names of the checkpoints, oldest first.
	Checkpoints []string

	// LatestSize is the size in bytes of the latest checkpoint.
	LatestSize int64
}

// loadRuns collects the reports of the runs in the given checkpoint paths. Missing information is
// logged and left empty.
func loadRuns(paths []string, summaryBase string) []*runReport {
	names := runNames(paths...)
	reports := make([]*runReport, len(paths))
	for ii, checkpointPath := range paths {
		r := &runReport{
			Name:           names[ii],
			CheckpointPath: checkpointPath,
			SummaryDir:     filepath.Join(summaryBase, filepath.Base(checkpointPath)),
		}
		reports[ii] = r
		info, err := pipeline.LoadRunInfo(checkpointPath)
		if err != nil {
			klog.V(1).Infof("run %s: %v", r.Name, err)
		} else {
			r.Info = info
		}
		r.Checkpoints, err = checkpoints.New(checkpointPath, 0).List()
		if err != nil {
			klog.Warningf("run %s: %v", r.Name, err)
		}
		if len(r.Checkpoints) > 0 {
			latest := filepath.Join(checkpointPath, r.Checkpoints[len(r.Checkpoints)-1]+checkpoints.JsonNameSuffix)
			if stat, err := os.Stat(latest); err == nil {
				r.LatestSize = stat.Size()
			}
		}
	}
	return reports
}

// summaryTable has one column per run.
func summaryTable(reports []*runReport) *reportTable {
	table := newReportTable(lipgloss.Right, lipgloss.Left)
	numCols := len(reports) + 1
	rows := map[string][]string{}
	labels := []string{"run", "session", "started", "# checkpoints", "latest iteration", "checkpoint size"}
	for _, label := range labels {
		rows[label] = make([]string, numCols)
		rows[label][0] = label
	}
	for ii, r := range reports {
		col := ii + 1
		rows["run"][col] = r.Name
		if r.Info != nil {
			rows["session"][col] = r.Info.SessionID
			rows["started"][col] = r.Info.StartTime.Format("2006-01-02 15:04:05")
		}
		rows["# checkpoints"][col] = humanize.Comma(int64(len(r.Checkpoints)))
		if len(r.Checkpoints) > 0 {
			iteration, err := checkpoints.IterationOf(r.Checkpoints[len(r.Checkpoints)-1])
			if err == nil {
				rows["latest iteration"][col] = humanize.Comma(iteration)
			}
			rows["checkpoint size"][col] = humanize.Bytes(uint64(r.LatestSize))
		}
	}
	for _, label := range labels {
		table.Row(false, rows[label]...)
	}
	return table
}

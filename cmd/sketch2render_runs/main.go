// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// sketch2render_runs reports on the training runs of sketch2render: their checkpoints, configuration,
// and training metrics. Several runs can be compared side by side.
//
// Usage:
//
//	sketch2render_runs [flags] [<checkpoint_dir>/<run> ...]
//
// If no run is given, all runs in -checkpoint_dir are reported.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gomlx/sketch2render/pkg/pipeline"
	"github.com/gomlx/sketch2render/pkg/runs"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

var (
	flagCheckpointDir = flag.String("checkpoint_dir", pipeline.DefaultConfig().CheckpointDir,
		"Base directory of the runs' checkpoints, used if no run is given.")
	flagSummaryDir = flag.String("summary_dir", pipeline.DefaultConfig().SummaryDir,
		"Base directory of the runs' training summaries.")
	flagSummary = flag.Bool("summary", true, "Display a summary of the runs and their checkpoints.")
	flagConfig  = flag.Bool("config", false, "Lists the configuration each run was trained with, "+
		"highlighting the values that differ.")
	flagMetrics      = flag.Bool("metrics", false, "Lists the training metrics of the runs.")
	flagMetricsNames = flag.String("metrics_names", "", "Regular expression selecting the metrics "+
		"(by name or short name) included in -metrics and -plot.")
	flagPlot     = flag.Bool("plot", false, "Plots the loss of the runs into -plot_file.")
	flagPlotFile = flag.String("plot_file", "loss_comparison.png",
		"File where to save the plot. The format is given by its extension (.png, .svg or .pdf).")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	paths := flag.Args()
	if len(paths) == 0 {
		ids := must.M1(runs.NewRegistry(nil).Runs(*flagCheckpointDir))
		if len(ids) == 0 {
			klog.Errorf("No runs found in -checkpoint_dir=%q. See 'sketch2render_runs -help'", *flagCheckpointDir)
			os.Exit(1)
		}
		for _, id := range ids {
			paths = append(paths, filepath.Join(*flagCheckpointDir, runs.Format(id)))
		}
	}
	reports := loadRuns(paths, *flagSummaryDir)
	if *flagSummary {
		fmt.Println(titleStyle.Render("Summary"))
		fmt.Println(summaryTable(reports).Render())
	}
	if *flagConfig {
		fmt.Println(titleStyle.Render("Configuration"))
		fmt.Println(configTable(reports).Render())
	}
	if *flagMetrics || *flagPlot {
		points, err := mergedPoints(reports, *flagMetricsNames)
		if err != nil {
			klog.Fatalf("Failed to collect metrics: %+v", err)
		}
		if *flagMetrics {
			fmt.Println(titleStyle.Render("Metrics"))
			fmt.Println(points.TableForMetrics())
		}
		if *flagPlot {
			must.M(plotLoss(points, *flagPlotFile))
			fmt.Printf("Plot saved to %q\n", *flagPlotFile)
		}
	}
}

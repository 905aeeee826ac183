// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// sketch2render_eval evaluates a trained run on the sketches in -test_images_folder, writing into the
// run's test images directory the grid of the sketches, one grid per latent sample, and for each sketch
// the grid of its versions and the visualization of the model's abstract representation.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/gomlx/sketch2render/pkg/ml/model/projector"
	"github.com/gomlx/sketch2render/pkg/pipeline"
	"github.com/gomlx/sketch2render/ui/commandline"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

func main() {
	config := pipeline.DefaultConfig()
	config.RegisterFlags(flag.CommandLine)
	settings := commandline.CreateSettingsFlag(flag.CommandLine, "")
	appFlags := commandline.FlagNames(flag.CommandLine)
	klog.InitFlags(nil)
	flag.Parse()
	_ = must.M1(commandline.ParseSettings(flag.CommandLine, *settings))
	fmt.Println(commandline.SprintFlags(flag.CommandLine, appFlags...))

	projectorConfig := projector.DefaultConfig()
	projectorConfig.ImageSize = config.ImageSize
	driver := must.M1(pipeline.New(config, projector.Factory(projectorConfig)))
	driver.NewProgress = func(description string, total int) pipeline.Progress {
		return commandline.NewProgressBar(description, total)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	report, err := driver.Evaluate(ctx)
	if err != nil {
		klog.Fatalf("Failed with error: %+v", err)
	}
	fmt.Printf("Run %s: %d images written to %q\n", report.Run, len(report.Files), report.OutputDir)
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// sketch2render trains a generator of rendered images from sketches (-is_train=true, the default), or
// samples a few versions of each test sketch, side by side with the sketch, with a trained run.
//
// Runs are numbered directories under -checkpoint_dir and -summary_dir. See sketch2render_eval to
// evaluate a run, and sketch2render_runs to inspect them.
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
	projectorConfig.Seed = config.RandomSeed
	driver, err := pipeline.New(config, projector.Factory(projectorConfig))
	if err != nil {
		klog.Fatalf("Failed with error: %+v", err)
	}
	driver.NewProgress = func(description string, total int) pipeline.Progress {
		return commandline.NewProgressBar(description, total)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if err = driver.Run(ctx); err != nil {
		klog.Fatalf("Failed with error: %+v", err)
	}
}

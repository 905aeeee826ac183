// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/sketch2render/pkg/ml/data"
	"github.com/gomlx/sketch2render/pkg/ml/model"
	"github.com/gomlx/sketch2render/pkg/runs"
	"github.com/gomlx/sketch2render/pkg/support/fsutil"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Files written by Train in the run's checkpoint directory.
const (
	ArgsFileName = "args.txt"
	RunFileName  = "run.json"
)

// RunInfo is saved in RunFileName each time a training session starts.
type RunInfo struct {
	Run       string
	SessionID string
	StartTime time.Time
	Config    Config
}

// TrainReport describes a training session.
type TrainReport struct {
	RunInfo
	Layout runs.Layout

	// Steps is the number of training steps run in this session.
	Steps int64
}

// Train trains a model on the pairs of images in Config.TrainSketchesFolder and Config.TrainRenderedFolder.
//
// If Config.ContinueFrom is empty a new run is allocated, otherwise training continues on the given run.
func (d *Driver) Train(ctx context.Context) (report *TrainReport, err error) {
	config := d.config
	run := config.ContinueFrom
	if run == "" {
		run, err = d.registry.Next(config.CheckpointDir, config.SummaryDir)
		if err != nil {
			return nil, err
		}
	}
	layout := runs.Layout{CheckpointDir: config.CheckpointDir, SummaryDir: config.SummaryDir, Run: run}
	sketches, rendered, err := listPairs(config.TrainSketchesFolder, config.TrainRenderedFolder)
	if err != nil {
		return nil, err
	}
	if len(sketches) < config.BatchSize {
		return nil, errors.Wrapf(ErrConfig, "batch_size=%d is larger than the %d training examples",
			config.BatchSize, len(sketches))
	}

	if err = layout.Create(); err != nil {
		return nil, err
	}
	report = &TrainReport{
		RunInfo: RunInfo{Run: run, SessionID: uuid.NewString(), StartTime: time.Now(), Config: config},
		Layout:  layout,
	}
	if err = writeArgs(layout.CheckpointPath(), os.Args[1:]); err != nil {
		return nil, err
	}
	if err = writeRunInfo(layout.CheckpointPath(), &report.RunInfo); err != nil {
		return nil, err
	}
	// Batches are taken from a continuous stream of epochs, only the final incomplete one is dropped.
	totalSteps := len(sketches) * config.Epoch / config.BatchSize
	klog.Infof("Training run %s (session %s): %s pairs of images, %s steps",
		run, report.SessionID, humanize.Comma(int64(len(sketches))), humanize.Comma(int64(totalSteps)))

	opts := model.TrainingSession().WithParallelism(config.Parallelism)
	m, err := d.newModel(opts, config.BatchSize)
	if err != nil {
		return nil, err
	}
	producer, err := data.New(ctx, data.Config{
		Paths:        sketches,
		TargetPaths:  rendered,
		Size:         m.ImageSize(),
		Whiten:       data.WhitenSketch,
		TargetColor:  m.OutputChannels() >= 3,
		TargetWhiten: data.WhitenRange,
		Augment:      true,
		Shuffle:      true,
		Seed:         config.RandomSeed,
		BatchSize:    config.BatchSize,
		NumEpochs:    config.Epoch,
		Parallelism:  config.Parallelism,
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		stopErr := producer.Stop()
		if err == nil && stopErr != nil {
			err = stopErr
		}
	}()

	progress := d.progress("Training", totalSteps)
	defer progress.Close()
	spec := model.TrainSpec{
		CheckpointDir:         layout.CheckpointPath(),
		SummaryDir:            layout.SummaryPath(),
		Producer:              producer,
		Epochs:                config.Epoch,
		LearningRate:          config.LearningRate,
		Beta1:                 config.Beta1,
		BatchSize:             config.BatchSize,
		CheckpointEvery:       config.CheckpointEvery,
		CheckpointKeep:        config.CheckpointKeep,
		ContinueFromIteration: config.ContinueFromIteration,
		Seed:                  config.RandomSeed,
		OnStep: func(step int64, loss float64) {
			report.Steps++
			progress.SetMetric("Global Step", humanize.Comma(step))
			progress.SetMetric("Loss", fmt.Sprintf("%.6f", loss))
			progress.Add(1)
		},
	}
	var trainErr error
	panicErr := exceptions.TryCatch[error](func() { trainErr = m.Train(ctx, spec) })
	if panicErr != nil {
		trainErr = panicErr
	}
	if trainErr != nil {
		return nil, errors.WithMessagef(trainErr, "training run %s", run)
	}
	klog.Infof("Run %s: trained for %s steps", run, humanize.Comma(report.Steps))
	return report, nil
}

// listPairs lists the sketches and, for each, the rendered image with the same file name.
func listPairs(sketchesFolder, renderedFolder string) (sketches, rendered []string, err error) {
	sketches, err = listSketches(sketchesFolder, "train_sketches_folder")
	if err != nil {
		return nil, nil, err
	}
	renderedFolder = fsutil.MustReplaceTildeInDir(renderedFolder)
	rendered = make([]string, len(sketches))
	for ii, sketch := range sketches {
		rendered[ii] = filepath.Join(renderedFolder, filepath.Base(sketch))
		exists, err := fsutil.FileExists(rendered[ii])
		if err != nil {
			return nil, nil, err
		}
		if !exists {
			return nil, nil, errors.Wrapf(ErrConfig, "sketch %q has no rendered counterpart %q", sketch, rendered[ii])
		}
	}
	return sketches, rendered, nil
}

// writeArgs saves the command-line arguments to ArgsFileName in dir, if it doesn't exist yet.
// Otherwise, it warns about arguments that changed since the run was created.
func writeArgs(dir string, args []string) error {
	argsPath := filepath.Join(dir, ArgsFileName)
	original, err := os.ReadFile(argsPath)
	if os.IsNotExist(err) {
		return fsutil.WriteAtomic(argsPath, func(w io.Writer) error {
			_, err := io.WriteString(w, strings.Join(args, "\n"))
			return err
		})
	}
	if err != nil {
		return errors.Wrapf(err, "failed to read %q", argsPath)
	}
	var originalArgs []string
	if len(original) > 0 {
		originalArgs = strings.Split(string(original), "\n")
	}
	for _, arg := range originalArgs {
		if !slices.Contains(args, arg) {
			klog.Warningf("argument %q used when the run was created is missing", arg)
		}
	}
	for _, arg := range args {
		if !slices.Contains(originalArgs, arg) {
			klog.Warningf("argument %q was not used when the run was created", arg)
		}
	}
	return nil
}

// writeRunInfo saves info to RunFileName in dir, replacing the previous one.
func writeRunInfo(dir string, info *RunInfo) error {
	return fsutil.WriteAtomic(filepath.Join(dir, RunFileName), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	})
}

// LoadRunInfo reads the RunFileName of a run's checkpoint directory.
func LoadRunInfo(checkpointPath string) (*RunInfo, error) {
	filePath := filepath.Join(checkpointPath, RunFileName)
	contents, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read run information")
	}
	var info RunInfo
	if err = json.Unmarshal(contents, &info); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %q", filePath)
	}
	return &info, nil
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/sketch2render/pkg/core/images"
	"github.com/gomlx/sketch2render/pkg/ml/latent"
	"github.com/gomlx/sketch2render/pkg/ml/model"
	"github.com/gomlx/sketch2render/pkg/mosaic"
	"github.com/gomlx/sketch2render/pkg/runs"
	"github.com/gomlx/sketch2render/pkg/support/fsutil"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// SampleFileSuffixFormat is appended to the base name (with extension) of each sketch to name the images
// written by Sample.
const SampleFileSuffixFormat = "_%03d_with_image.png"

// SampleReport lists what Sample did.
type SampleReport struct {
	// Run sampled.
	Run string

	// OutputDir where the images were written (Config.SampleOutputFolder).
	OutputDir string

	// Files written, in order.
	Files []string
}

// Sample writes Config.NumVersions variations of each sketch in Config.TestImagesFolder to
// Config.SampleOutputFolder, each one side by side with the sketch it was generated from.
//
// The latent vectors are drawn once with Config.RandomSeed, and shared by all sketches: version i of every
// sketch uses the same latent vector.
func (d *Driver) Sample(ctx context.Context) (report *SampleReport, err error) {
	config := d.config
	run, err := d.registry.Resolve(config.CheckpointDir, config.ContinueFrom)
	if err != nil {
		return nil, errors.WithMessage(err, "can't select run to sample from")
	}
	layout := runs.Layout{CheckpointDir: config.CheckpointDir, SummaryDir: config.SummaryDir, Run: run}
	files, err := listSketches(config.TestImagesFolder, "test_images_folder")
	if err != nil {
		return nil, err
	}

	const batchSize = 1
	m, err := d.newModel(model.InferenceSession(), batchSize)
	if err != nil {
		return nil, err
	}
	if err = d.loadModel(m, layout); err != nil {
		return nil, err
	}
	z, err := latent.Sample(config.RandomSeed, config.NumVersions, batchSize, m.LatentDim())
	if err != nil {
		return nil, err
	}

	report = &SampleReport{Run: run, OutputDir: fsutil.MustReplaceTildeInDir(config.SampleOutputFolder)}
	if err = fsutil.MkdirAll(report.OutputDir); err != nil {
		return nil, err
	}
	producer, err := d.sketchProducer(ctx, files, m.ImageSize(), batchSize)
	if err != nil {
		return nil, err
	}
	defer func() {
		stopErr := producer.Stop()
		if err == nil && stopErr != nil {
			err = stopErr
		}
	}()

	progress := d.progress("Sampling", len(files)*len(z))
	defer progress.Close()
	for idx := 0; ; idx++ {
		var sketch *images.Batch
		sketch, err = producer.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if idx >= len(files) {
			return nil, errors.Errorf("producer yielded more than the %d sketches given", len(files))
		}
		base := filepath.Base(files[idx])
		progress.SetMetric("Sketch", base)
		for ii, sampleZ := range z {
			generated, _, err := generate(ctx, m, sketch, sampleZ)
			if err != nil {
				return nil, errors.WithMessagef(err, "generating version #%d of %q", ii, files[idx])
			}
			var pair *images.Batch
			err = exceptions.TryCatch[error](func() {
				pair = images.Concat(generated, sketchesForDisplay(sketch, generated.Channels))
			})
			if err != nil {
				return nil, err
			}
			filePath := filepath.Join(report.OutputDir, base+fmt.Sprintf(SampleFileSuffixFormat, ii))
			err = mosaic.Save(filePath, pair, mosaic.SideBySide[0], mosaic.SideBySide[1], mosaic.Options{})
			if err != nil {
				return nil, err
			}
			report.Files = append(report.Files, filePath)
			progress.Add(1)
		}
	}
	klog.Infof("Done: %d files written to %q", len(report.Files), report.OutputDir)
	return report, nil
}

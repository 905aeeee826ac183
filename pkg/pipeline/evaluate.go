// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gomlx/sketch2render/pkg/core/images"
	"github.com/gomlx/sketch2render/pkg/ml/latent"
	"github.com/gomlx/sketch2render/pkg/ml/model"
	"github.com/gomlx/sketch2render/pkg/mosaic"
	"github.com/gomlx/sketch2render/pkg/runs"
	"github.com/gomlx/sketch2render/pkg/support/fsutil"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Names of the files written by Evaluate.
const (
	SketchesFileName = "sketches.png"
	SampleFileFormat = "%03d_img.png"

	DifferentRandomsSuffix       = "_different_randoms.png"
	AbstractRepresentationSuffix = "_abstract_representation.png"
)

// EvalReport lists what Evaluate did.
type EvalReport struct {
	// Run evaluated.
	Run string

	// OutputDir where the images were written.
	OutputDir string

	// Files written, in order.
	Files []string
}

// Evaluate generates images for all sketches in Config.TestImagesFolder with the model restored from a run,
// and writes in the run's test images directory (see runs.Layout.TestImagesPath):
//
//   - SketchesFileName: the grid with the sketches.
//   - For each of Config.NumSamples latent vectors (shared by all sketches), the grid with the images
//     generated from all sketches, named after SampleFileFormat.
//   - For each sketch, the grid with the images generated from all latent vectors (DifferentRandomsSuffix),
//     and the grid with each channel of the model's abstract representation of the sketch for the first latent
//     vector (AbstractRepresentationSuffix).
//
// All sketches are processed in one batch.
func (d *Driver) Evaluate(ctx context.Context) (report *EvalReport, err error) {
	config := d.config
	run, err := d.registry.Resolve(config.CheckpointDir, config.ContinueFrom)
	if err != nil {
		return nil, errors.WithMessage(err, "can't select run to evaluate")
	}
	layout := runs.Layout{CheckpointDir: config.CheckpointDir, SummaryDir: config.SummaryDir, Run: run}
	klog.Infof("Restoring from %q", layout.CheckpointPath())

	files, err := listSketches(config.TestImagesFolder, "test_images_folder")
	if err != nil {
		return nil, err
	}
	batchSize := len(files)
	m, err := d.newModel(model.InferenceSession(), batchSize)
	if err != nil {
		return nil, err
	}
	if err = d.loadModel(m, layout); err != nil {
		return nil, err
	}
	z, err := latent.Sample(config.RandomSeed, config.NumSamples, batchSize, m.LatentDim())
	if err != nil {
		return nil, err
	}

	report = &EvalReport{Run: run, OutputDir: layout.TestImagesPath()}
	if err = fsutil.MkdirAll(report.OutputDir); err != nil {
		return nil, err
	}
	klog.Infof("Writing output to %q", report.OutputDir)

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

	sketches, err := producer.Next(ctx)
	if err == io.EOF {
		klog.Infof("Done: no sketches to evaluate")
		return report, nil
	}
	if err != nil {
		return nil, err
	}
	save := func(name string, batch *images.Batch, rows, cols int, opts mosaic.Options) error {
		filePath := filepath.Join(report.OutputDir, name)
		if err := mosaic.Save(filePath, batch, rows, cols, opts); err != nil {
			return err
		}
		report.Files = append(report.Files, filePath)
		return nil
	}
	rows, cols := mosaic.GridSize(batchSize)
	if err = save(SketchesFileName, sketches, rows, cols, mosaic.Options{Invert: true}); err != nil {
		return nil, err
	}

	perSketch, abstract, err := d.sampleAll(ctx, m, sketches, z, func(ii int, generated *images.Batch) error {
		return save(fmt.Sprintf(SampleFileFormat, ii), generated, rows, cols, mosaic.Options{})
	})
	if err != nil {
		return nil, err
	}

	rows, cols = mosaic.GridSize(config.NumSamples)
	for jj, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		if err = save(name+DifferentRandomsSuffix, perSketch[jj], rows, cols, mosaic.Options{}); err != nil {
			return nil, err
		}
		if abstract == nil {
			continue
		}
		// Each channel of the abstract representation is displayed as a gray image.
		channels := abstract.ChannelsAsImages(jj)
		channelRows, channelCols := mosaic.GridSize(channels.Count)
		err = save(name+AbstractRepresentationSuffix, channels, channelRows, channelCols, mosaic.Options{Channels: 1})
		if err != nil {
			return nil, err
		}
	}
	klog.Infof("Done: %d files written to %q", len(report.Files), report.OutputDir)
	return report, nil
}

// sampleAll generates images for the sketches with each of the latent vectors in z, calling onSample with
// the images generated for each one. It returns the images generated for each sketch, and the abstract
// representation for the first latent vector.
func (d *Driver) sampleAll(ctx context.Context, m model.Model, sketches *images.Batch, z [][][]float32,
	onSample func(ii int, generated *images.Batch) error) (perSketch []*images.Batch, abstract *images.Batch, err error) {
	progress := d.progress("Sampling", len(z))
	defer progress.Close()
	perSketch = make([]*images.Batch, sketches.Count)
	for ii, sampleZ := range z {
		if err = ctx.Err(); err != nil {
			return nil, nil, err
		}
		generated, sampleAbstract, err := generate(ctx, m, sketches, sampleZ)
		if err != nil {
			return nil, nil, errors.WithMessagef(err, "generating sample #%d", ii)
		}
		if ii == 0 {
			abstract = sampleAbstract
			for jj := range perSketch {
				perSketch[jj] = images.New(len(z), generated.Height, generated.Width, generated.Channels)
			}
		} else if !perSketch[0].SameImageShape(generated) {
			return nil, nil, errors.Errorf("model generated images %s for sample #%d, but %s for sample #0",
				generated, ii, perSketch[0])
		}
		if err = onSample(ii, generated); err != nil {
			return nil, nil, err
		}
		for jj := range perSketch {
			perSketch[jj].SetImage(ii, generated, jj)
		}
		progress.Add(1)
	}
	return perSketch, abstract, nil
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package pipeline implements the drivers of the sketch to rendered image generator:
//
//   - Train: allocates a new (or continued) run and hands the training data to the model.
//   - Evaluate: generates, for a folder of sketches, a grid per latent sample, a grid of the
//     variations per sketch, and a visualization of the model's abstract representation.
//   - Sample: writes a few variations of each sketch side by side with the sketch itself.
//
// The model itself is given by a model.Factory, so the drivers only orchestrate runs, inputs and outputs.
package pipeline

import (
	"context"
	"os"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/sketch2render/pkg/core/images"
	"github.com/gomlx/sketch2render/pkg/ml/data"
	"github.com/gomlx/sketch2render/pkg/ml/model"
	"github.com/gomlx/sketch2render/pkg/runs"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ImageExt is the extension of the image files read.
const ImageExt = ".png"

// Progress reports the progress of a long loop, e.g. commandline.ProgressBar.
type Progress interface {
	Add(amount int)
	SetMetric(name, value string)
	Close()
}

// ProgressFactory creates a Progress for total units of work.
type ProgressFactory func(description string, total int) Progress

type noProgress struct{}

func (noProgress) Add(int)                  {}
func (noProgress) SetMetric(string, string) {}
func (noProgress) Close()                   {}

// Driver runs the pipelines for one Config.
type Driver struct {
	config   Config
	factory  model.Factory
	registry *runs.Registry

	// NewProgress, if set, is used to display the progress of the sampling loops and of training.
	NewProgress ProgressFactory
}

// New creates a Driver for the validated config, creating models with factory.
func New(config Config, factory model.Factory) (*Driver, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if factory == nil {
		return nil, errors.Wrap(ErrConfig, "no model factory given")
	}
	return &Driver{config: config, factory: factory, registry: runs.NewRegistry(nil)}, nil
}

// WithRegistry sets the Registry used to find runs. The default reads the filesystem.
func (d *Driver) WithRegistry(registry *runs.Registry) *Driver {
	d.registry = registry
	return d
}

// Config returns the configuration of the Driver.
func (d *Driver) Config() Config {
	return d.config
}

// Run trains if Config.IsTrain, otherwise it samples.
func (d *Driver) Run(ctx context.Context) error {
	if d.config.IsTrain {
		_, err := d.Train(ctx)
		return err
	}
	_, err := d.Sample(ctx)
	return err
}

func (d *Driver) progress(description string, total int) Progress {
	if d.NewProgress == nil {
		return noProgress{}
	}
	return d.NewProgress(description, total)
}

// newModel creates a model, converting panics into errors.
func (d *Driver) newModel(opts model.SessionOptions, batchSize int) (m model.Model, err error) {
	panicErr := exceptions.TryCatch[error](func() { m, err = d.factory(opts, batchSize) })
	if panicErr != nil {
		return nil, errors.WithMessage(panicErr, "failed to create model")
	}
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create model")
	}
	if m.ImageSize() != d.config.ImageSize {
		return nil, errors.Wrapf(ErrConfig, "image_size=%d, but the model takes images of size %d",
			d.config.ImageSize, m.ImageSize())
	}
	klog.V(1).Infof("created model with %s for batches of %d", opts, batchSize)
	return m, nil
}

// loadModel restores the checkpoint selected by Config.ContinueFromIteration from the run.
func (d *Driver) loadModel(m model.Model, layout runs.Layout) error {
	iteration := d.config.ContinueFromIteration
	var err error
	panicErr := exceptions.TryCatch[error](func() { err = m.Load(layout.CheckpointPath(), iteration) })
	if panicErr != nil {
		err = panicErr
	}
	if err != nil {
		if iteration == "" {
			iteration = "latest"
		}
		return errors.WithMessagef(err, "failed to restore run %q (iteration %s) from %q",
			layout.Run, iteration, layout.CheckpointDir)
	}
	return nil
}

// generate runs the model on the sketches, converting panics into errors and checking the shapes returned.
func generate(ctx context.Context, m model.Model, sketches *images.Batch, z [][]float32) (generated, abstract *images.Batch, err error) {
	panicErr := exceptions.TryCatch[error](func() { generated, abstract, err = m.Generate(ctx, sketches, z) })
	if panicErr != nil {
		return nil, nil, errors.WithMessage(panicErr, "model failed to generate images")
	}
	if err != nil {
		return nil, nil, err
	}
	if generated == nil || generated.Count != sketches.Count {
		return nil, nil, errors.Errorf("model generated %v for sketches %s", generated, sketches)
	}
	if abstract != nil && abstract.Count != sketches.Count {
		return nil, nil, errors.Errorf("model abstract representation %s doesn't match sketches %s", abstract, sketches)
	}
	return generated, abstract, nil
}

// sketchProducer creates a Producer over the sketch files, in order, without augmentation.
func (d *Driver) sketchProducer(ctx context.Context, files []string, imageSize, batchSize int) (*data.Producer, error) {
	return data.New(ctx, data.Config{
		Paths:       files,
		Size:        imageSize,
		Whiten:      data.WhitenSketch,
		BatchSize:   batchSize,
		NumEpochs:   1,
		Parallelism: d.config.Parallelism,
	})
}

// listSketches returns the sorted image files in folder, or a configuration error if there are none.
func listSketches(folder, flagName string) ([]string, error) {
	files, err := data.ListImages(folder, ImageExt)
	if errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrapf(ErrConfig, "%s=%q doesn't exist", flagName, folder)
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "listing %s", flagName)
	}
	if len(files) == 0 {
		return nil, errors.Wrapf(ErrConfig, "no %q files found in %s=%q", ImageExt, flagName, folder)
	}
	return files, nil
}

// sketchesForDisplay converts sketches whitened with data.WhitenSketch back to regular intensities in
// [-1, 1] (white paper is +1), with the given number of channels.
func sketchesForDisplay(sketches *images.Batch, channels int) *images.Batch {
	display := sketches.Clone()
	for ii, v := range display.Data {
		display.Data[ii] = -v
	}
	if channels > 1 {
		display = display.ExpandChannels(channels)
	}
	return display
}

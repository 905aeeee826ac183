// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package model defines the contract between the drivers (see package pipeline) and the conditional
// generator that converts sketches into rendered images.
//
// The drivers only orchestrate: they build batches of sketches, sample shared latent vectors, resolve
// runs and checkpoints, and write the outputs. Everything about the network itself (architecture, losses,
// optimization, the format of its checkpoints) lives behind the Model interface.
//
// Example:
//
//	m, err := projector.Factory(model.InferenceSession(), len(files))
//	if err != nil { ... }
//	if err = m.Load(checkpointPath, ""); err != nil { ... }  // Latest checkpoint.
//	generated, abstract, err := m.Generate(ctx, sketches, z)
package model

import (
	"context"
	"fmt"
	"runtime"

	"github.com/gomlx/sketch2render/pkg/core/images"
	"github.com/gomlx/sketch2render/pkg/ml/data"
	"github.com/pkg/errors"
)

// ErrCheckpointNotFound is returned by Model.Load when the requested checkpoint doesn't exist.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// Model is a conditional generator of rendered images from sketches and latent vectors.
type Model interface {
	// LatentDim is the dimension of the latent vectors.
	LatentDim() int

	// ImageSize is the height and width of the images generated. Sketches must be of this size.
	ImageSize() int

	// OutputChannels of the images generated, usually 3 (RGB).
	OutputChannels() int

	// Generate converts a batch of sketches into rendered images, using one latent vector per sketch.
	// It also returns the internal abstract representation of each sketch, shaped (count, h, w, channels).
	//
	// Values of the generated images are in [-1, 1].
	Generate(ctx context.Context, sketches *images.Batch, z [][]float32) (generated, abstract *images.Batch, err error)

	// Load the model weights from the checkpoints in checkpointDir. If iteration is empty, the latest
	// checkpoint is used. It returns an error wrapping ErrCheckpointNotFound if it doesn't exist.
	Load(checkpointDir, iteration string) error

	// Train the model, saving checkpoints and summaries as configured by spec.
	Train(ctx context.Context, spec TrainSpec) error
}

// SessionOptions configures the compute resources used by a Model.
type SessionOptions struct {
	// MaxParallelism is the number of goroutines used for computation. If <= 0, it uses runtime.NumCPU().
	MaxParallelism int

	// MemoryFraction is the fraction of the accelerator memory the model is allowed to reserve.
	// Pure CPU models may ignore it.
	MemoryFraction float64
}

// TrainingSession returns the options used when training: all the resources available.
func TrainingSession() SessionOptions {
	return SessionOptions{MaxParallelism: runtime.NumCPU(), MemoryFraction: 1.0}
}

// InferenceSession returns the minimal options used for evaluation and sampling, so inference can run
// along with other jobs.
func InferenceSession() SessionOptions {
	return SessionOptions{MaxParallelism: 1, MemoryFraction: 0.01}
}

// WithParallelism returns a copy of the options with MaxParallelism set to n, if n > 0.
func (o SessionOptions) WithParallelism(n int) SessionOptions {
	if n > 0 {
		o.MaxParallelism = n
	}
	return o
}

// String implements fmt.Stringer.
func (o SessionOptions) String() string {
	return fmt.Sprintf("SessionOptions{parallelism=%d, memory=%.0f%%}", o.MaxParallelism, 100*o.MemoryFraction)
}

// Factory creates a Model for the given session options and batch size.
type Factory func(opts SessionOptions, batchSize int) (Model, error)

// TrainSpec holds everything a Model needs to train.
type TrainSpec struct {
	// CheckpointDir and SummaryDir of the run: where checkpoints and training metrics are written.
	CheckpointDir, SummaryDir string

	// Producer of (sketch, rendered) batches. It's owned by the caller, who stops it.
	Producer *data.Producer

	// Epochs is the number of passes over the training data. The Producer is configured accordingly.
	Epochs int

	// LearningRate and Beta1 of the Adam optimizer.
	LearningRate, Beta1 float64

	// BatchSize of the training batches.
	BatchSize int

	// CheckpointEvery saves a checkpoint every so many steps. A checkpoint is always saved at the end.
	CheckpointEvery int

	// CheckpointKeep is the number of checkpoints to keep. If <= 0, all are kept.
	CheckpointKeep int

	// Iteration to continue training from, if not empty. See Model.Load.
	ContinueFromIteration string

	// Seed for the random initialization of the model.
	Seed int64

	// OnStep, if not nil, is called after each training step with the step number and loss.
	OnStep func(step int64, loss float64)
}

// CheckShapes verifies that sketches and z are compatible with m. It's meant to be used by Model
// implementations and drivers to fail early on shape or configuration mismatches.
func CheckShapes(m Model, sketches *images.Batch, z [][]float32) error {
	if sketches == nil {
		return errors.New("nil batch of sketches")
	}
	size := m.ImageSize()
	if sketches.Height != size || sketches.Width != size {
		return errors.Errorf("sketches %s don't match model image size %dx%d", sketches, size, size)
	}
	if len(z) != sketches.Count {
		return errors.Errorf("got %d latent vectors for %d sketches", len(z), sketches.Count)
	}
	for ii, v := range z {
		if len(v) != m.LatentDim() {
			return errors.Errorf("latent vector #%d has dimension %d, model wants %d", ii, len(v), m.LatentDim())
		}
	}
	return nil
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"fmt"

	"github.com/gomlx/sketch2render/pkg/ml/latent"
	"github.com/pkg/errors"
)

// ErrConfig is wrapped by all configuration errors.
var ErrConfig = errors.New("invalid configuration")

// Config of the drivers. It's built once, usually from flags, and not changed afterwards.
type Config struct {
	// CheckpointDir and SummaryDir are the base directories of the runs.
	CheckpointDir, SummaryDir string

	// ContinueFrom selects a run. If empty, training starts a new run and evaluation uses the latest one.
	ContinueFrom string

	// ContinueFromIteration selects the checkpoint within the run. If empty, the latest is used.
	ContinueFromIteration string

	// RandomSeed of the latent vectors sampled.
	RandomSeed int64

	// NumSamples is the number of latent vectors sampled during evaluation.
	NumSamples int

	// TestImagesFolder holds the sketches (".png" files) to evaluate or sample.
	TestImagesFolder string

	// Training hyperparameters.
	Epoch               int
	LearningRate, Beta1 float64
	BatchSize           int

	// IsTrain selects training in Run, otherwise sampling.
	IsTrain bool

	// TrainSketchesFolder and TrainRenderedFolder hold the training pairs, matched by file name.
	TrainSketchesFolder, TrainRenderedFolder string

	// SampleOutputFolder is where Sample writes the side-by-side images.
	SampleOutputFolder string

	// NumVersions is the number of latent vectors sampled per sketch by Sample.
	NumVersions int

	// ImageSize of the (square) images fed to the model.
	ImageSize int

	// Parallelism of image decoding and training. If 0, the number of CPUs is used.
	Parallelism int

	// CheckpointEvery saves a checkpoint every so many training steps. CheckpointKeep is the
	// number of checkpoints kept, or all of them if 0.
	CheckpointEvery, CheckpointKeep int
}

// DefaultConfig returns the default configuration, also used as the default values of the flags.
func DefaultConfig() Config {
	return Config{
		CheckpointDir:       "checkpoint_sketches_to_rendered",
		SummaryDir:          "summary_sketches_to_rendered",
		RandomSeed:          42,
		NumSamples:          latent.MaxSamples,
		TestImagesFolder:    "test_sketches",
		Epoch:               25,
		LearningRate:        0.0002,
		Beta1:               0.5,
		BatchSize:           64,
		IsTrain:             true,
		TrainSketchesFolder: "train_sketches",
		TrainRenderedFolder: "train_rendered",
		SampleOutputFolder:  "test_sketches_to_rendered_out",
		NumVersions:         10,
		ImageSize:           64,
		CheckpointEvery:     500,
		CheckpointKeep:      5,
	}
}

func configErrorf(format string, args ...any) error {
	return errors.Wrap(ErrConfig, fmt.Sprintf(format, args...))
}

// Validate checks the configuration. Errors wrap ErrConfig.
func (c Config) Validate() error {
	switch {
	case c.CheckpointDir == "":
		return configErrorf("checkpoint_dir must be set")
	case c.SummaryDir == "":
		return configErrorf("summary_dir must be set")
	case c.NumSamples <= 0:
		return configErrorf("num_samples must be positive, got %d", c.NumSamples)
	case c.Epoch <= 0:
		return configErrorf("epoch must be positive, got %d", c.Epoch)
	case c.LearningRate <= 0:
		return configErrorf("learning_rate must be positive, got %g", c.LearningRate)
	case c.Beta1 < 0 || c.Beta1 >= 1:
		return configErrorf("beta1 must be in [0, 1), got %g", c.Beta1)
	case c.BatchSize <= 0:
		return configErrorf("batch_size must be positive, got %d", c.BatchSize)
	case c.NumVersions <= 0:
		return configErrorf("num_versions must be positive, got %d", c.NumVersions)
	case c.ImageSize <= 0:
		return configErrorf("image_size must be positive, got %d", c.ImageSize)
	case c.Parallelism < 0:
		return configErrorf("parallelism must be >= 0, got %d", c.Parallelism)
	case c.CheckpointEvery < 0 || c.CheckpointKeep < 0:
		return configErrorf("checkpoint_every and checkpoint_keep must be >= 0")
	}
	return nil
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package pipeline

import "flag"

// RegisterFlags defines in fs one flag per field of the Config, using the current values of config
// as defaults. After fs is parsed, config holds the values of the flags.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.CheckpointDir, "checkpoint_dir", c.CheckpointDir, "Base directory of the checkpoints of the runs.")
	fs.StringVar(&c.SummaryDir, "summary_dir", c.SummaryDir, "Base directory of the training summaries of the runs.")
	fs.StringVar(&c.ContinueFrom, "continue_from", c.ContinueFrom,
		"Run to continue training, evaluate or sample from. If empty, training starts a new run, "+
			"and evaluation and sampling use the latest run.")
	fs.StringVar(&c.ContinueFromIteration, "continue_from_iteration", c.ContinueFromIteration,
		"Iteration of the checkpoint to restore. If empty, the latest checkpoint of the run is used.")
	fs.Int64Var(&c.RandomSeed, "random_seed", c.RandomSeed, "Seed of the latent vectors sampled and of the "+
		"training data shuffling and augmentation.")
	fs.IntVar(&c.NumSamples, "num_samples", c.NumSamples, "Number of latent vectors sampled during evaluation.")
	fs.StringVar(&c.TestImagesFolder, "test_images_folder", c.TestImagesFolder,
		"Folder with the sketches (\".png\" files) to evaluate or sample.")
	fs.IntVar(&c.Epoch, "epoch", c.Epoch, "Number of training epochs.")
	fs.Float64Var(&c.LearningRate, "learning_rate", c.LearningRate, "Learning rate of the Adam optimizer.")
	fs.Float64Var(&c.Beta1, "beta1", c.Beta1, "Momentum term (beta1) of the Adam optimizer.")
	fs.IntVar(&c.BatchSize, "batch_size", c.BatchSize, "Training batch size.")
	fs.BoolVar(&c.IsTrain, "is_train", c.IsTrain, "Train if true, otherwise sample.")
	fs.StringVar(&c.TrainSketchesFolder, "train_sketches_folder", c.TrainSketchesFolder,
		"Folder with the training sketches.")
	fs.StringVar(&c.TrainRenderedFolder, "train_rendered_folder", c.TrainRenderedFolder,
		"Folder with the rendered images, with the same file names as their sketches.")
	fs.StringVar(&c.SampleOutputFolder, "sample_output_folder", c.SampleOutputFolder,
		"Folder where sampling writes the generated images side by side with their sketches.")
	fs.IntVar(&c.NumVersions, "num_versions", c.NumVersions, "Number of versions generated for each sketch when sampling.")
	fs.IntVar(&c.ImageSize, "image_size", c.ImageSize, "Height and width of the images fed to the model.")
	fs.IntVar(&c.Parallelism, "parallelism", c.Parallelism,
		"Number of images decoded in parallel and of training goroutines. If 0, the number of CPUs is used.")
	fs.IntVar(&c.CheckpointEvery, "checkpoint_every", c.CheckpointEvery, "Save a checkpoint every so many training steps.")
	fs.IntVar(&c.CheckpointKeep, "checkpoint_keep", c.CheckpointKeep, "Number of checkpoints to keep. If 0, all are kept.")
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package projector implements a small conditional generator of rendered images from sketches,
// in pure Go.
//
// It has two stages:
//
//   - An abstract representation: the sketch is average-pooled by PoolSize and projected into
//     AbstractChannels feature maps with tanh(gain[c] * pooled + bias[c] + latentWeights[c] · z).
//     These parameters are drawn once from Config.Seed and never trained, so the latent vector z
//     changes the abstract representation (and hence the output) in a fixed way.
//   - A color head: each output channel k is tanh(sketchGain[k] * sketch + Σ_c mix[k][c] * abstract[c] + bias[k]),
//     computed at full resolution. These are the trainable weights.
//
// It's small enough to train in seconds on a CPU, and it implements model.Model, so the training,
// evaluation and sampling drivers can run end-to-end.
package projector

import (
	"context"
	"math"
	"math/rand"

	"github.com/gomlx/sketch2render/internal/workerspool"
	"github.com/gomlx/sketch2render/pkg/core/images"
	"github.com/gomlx/sketch2render/pkg/ml/checkpoints"
	"github.com/gomlx/sketch2render/pkg/ml/model"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// PoolSize is the reduction factor of the abstract representation, in each spatial dimension.
const PoolSize = 4

// Config of the projector.
type Config struct {
	ImageSize        int
	LatentDim        int
	AbstractChannels int
	OutputChannels   int

	// Seed used to draw the (fixed) abstract projection and the initial values of the head.
	Seed int64
}

// DefaultConfig returns the configuration used by the command-line tools.
func DefaultConfig() Config {
	return Config{
		ImageSize:        64,
		LatentDim:        100,
		AbstractChannels: 16,
		OutputChannels:   3,
		Seed:             1,
	}
}

// Validate the configuration.
func (c Config) Validate() error {
	if c.ImageSize < PoolSize || c.ImageSize%PoolSize != 0 {
		return errors.Errorf("projector: image size %d must be a positive multiple of %d", c.ImageSize, PoolSize)
	}
	if c.LatentDim <= 0 || c.AbstractChannels <= 0 || c.OutputChannels <= 0 {
		return errors.Errorf("projector: invalid dimensions (latent=%d, abstract channels=%d, output channels=%d)",
			c.LatentDim, c.AbstractChannels, c.OutputChannels)
	}
	return nil
}

// Params are the weights of the projector, saved in the checkpoints.
type Params struct {
	Config Config

	// Fixed abstract projection, one entry per abstract channel.
	AbstractGain, AbstractBias []float64
	AbstractLatent             [][]float64

	// Head holds the trainable weights. For output channel k, the values at k*HeadStride() are the
	// mixing weights over the abstract channels, followed by the sketch gain and the bias.
	Head []float64
}

// HeadStride is the number of head weights per output channel.
func (c Config) HeadStride() int {
	return c.AbstractChannels + 2
}

// newParams draws the initial parameters from config.Seed.
func newParams(config Config) *Params {
	rng := rand.New(rand.NewSource(config.Seed))
	p := &Params{
		Config:         config,
		AbstractGain:   make([]float64, config.AbstractChannels),
		AbstractBias:   make([]float64, config.AbstractChannels),
		AbstractLatent: make([][]float64, config.AbstractChannels),
		Head:           make([]float64, config.OutputChannels*config.HeadStride()),
	}
	latentScale := 1.0 / math.Sqrt(float64(config.LatentDim))
	for c := range config.AbstractChannels {
		gain := 0.5 + 1.5*rng.Float64()
		if rng.Intn(2) == 0 {
			gain = -gain
		}
		p.AbstractGain[c] = gain
		p.AbstractBias[c] = rng.Float64() - 0.5
		p.AbstractLatent[c] = make([]float64, config.LatentDim)
		for d := range config.LatentDim {
			p.AbstractLatent[c][d] = rng.NormFloat64() * latentScale
		}
	}
	mixScale := 1.0 / math.Sqrt(float64(config.AbstractChannels))
	stride := config.HeadStride()
	for k := range config.OutputChannels {
		for c := range config.AbstractChannels {
			p.Head[k*stride+c] = rng.NormFloat64() * mixScale
		}
	}
	return p
}

// checkConsistency verifies the params loaded from a checkpoint match the configuration.
func (p *Params) checkConsistency(config Config) error {
	if p.Config.ImageSize != config.ImageSize || p.Config.LatentDim != config.LatentDim ||
		p.Config.AbstractChannels != config.AbstractChannels || p.Config.OutputChannels != config.OutputChannels {
		return errors.Errorf("checkpoint was saved with %+v, incompatible with model configured with %+v", p.Config, config)
	}
	if len(p.AbstractGain) != config.AbstractChannels || len(p.AbstractBias) != config.AbstractChannels ||
		len(p.AbstractLatent) != config.AbstractChannels || len(p.Head) != config.OutputChannels*config.HeadStride() {
		return errors.New("checkpoint has malformed parameters")
	}
	for _, weights := range p.AbstractLatent {
		if len(weights) != config.LatentDim {
			return errors.New("checkpoint has malformed latent weights")
		}
	}
	return nil
}

// Model is the projector implementation of model.Model.
type Model struct {
	config    Config
	opts      model.SessionOptions
	batchSize int
	pool      *workerspool.Pool
	params    *Params
	adam      *adam
}

var _ model.Model = (*Model)(nil)

// New creates a projector Model with freshly initialized parameters.
// If batchSize > 0, Generate only accepts batches of that size.
func New(config Config, opts model.SessionOptions, batchSize int) (*Model, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	pool := workerspool.New()
	if opts.MaxParallelism > 0 {
		pool = workerspool.NewWithParallelism(opts.MaxParallelism)
	}
	klog.V(1).Infof("projector: creating model with %+v, %s, batch size %d", config, opts, batchSize)
	return &Model{
		config:    config,
		opts:      opts,
		batchSize: batchSize,
		pool:      pool,
		params:    newParams(config),
	}, nil
}

// Factory returns a model.Factory that creates projectors with the given configuration.
func Factory(config Config) model.Factory {
	return func(opts model.SessionOptions, batchSize int) (model.Model, error) {
		return New(config, opts, batchSize)
	}
}

// LatentDim implements model.Model.
func (m *Model) LatentDim() int { return m.config.LatentDim }

// ImageSize implements model.Model.
func (m *Model) ImageSize() int { return m.config.ImageSize }

// OutputChannels implements model.Model.
func (m *Model) OutputChannels() int { return m.config.OutputChannels }

// Params returns the current parameters. They must not be changed.
func (m *Model) Params() *Params { return m.params }

// checkpointState is what is saved in each checkpoint.
type checkpointState struct {
	Params *Params
	Adam   *adam `json:",omitempty"`
}

// Load implements model.Model.
func (m *Model) Load(checkpointDir, iteration string) error {
	var state checkpointState
	loadedIteration, err := checkpoints.New(checkpointDir, 0).Load(iteration, &state)
	if err != nil {
		if errors.Is(err, checkpoints.ErrNotFound) {
			return errors.Wrapf(model.ErrCheckpointNotFound, "%v", err)
		}
		return err
	}
	if state.Params == nil {
		return errors.Errorf("checkpoint in %q (iteration %d) has no parameters", checkpointDir, loadedIteration)
	}
	if err = state.Params.checkConsistency(m.config); err != nil {
		return errors.WithMessagef(err, "loading checkpoint from %q", checkpointDir)
	}
	m.params = state.Params
	m.adam = state.Adam
	klog.Infof("projector: loaded checkpoint from %q at iteration %d", checkpointDir, loadedIteration)
	return nil
}

// checkInputs verifies the shapes of the sketches and latent vectors.
func (m *Model) checkInputs(sketches *images.Batch, z [][]float32) error {
	if err := model.CheckShapes(m, sketches, z); err != nil {
		return err
	}
	if sketches.Channels != 1 {
		return errors.Errorf("projector takes single channel sketches, got %s", sketches)
	}
	if m.batchSize > 0 && sketches.Count != m.batchSize {
		return errors.Errorf("model was built for batches of %d, got %s", m.batchSize, sketches)
	}
	return nil
}

// Generate implements model.Model.
func (m *Model) Generate(ctx context.Context, sketches *images.Batch, z [][]float32) (generated, abstract *images.Batch, err error) {
	if err = m.checkInputs(sketches, z); err != nil {
		return nil, nil, err
	}
	size, reduced := m.config.ImageSize, m.config.ImageSize/PoolSize
	generated = images.New(sketches.Count, size, size, m.config.OutputChannels)
	abstract = images.New(sketches.Count, reduced, reduced, m.config.AbstractChannels)
	err = m.pool.ForEach(ctx, sketches.Count, func(ii int) {
		m.params.abstractMap(sketches.Pixels(ii), z[ii], abstract.Pixels(ii))
		m.params.head(sketches.Pixels(ii), abstract.Pixels(ii), generated.Pixels(ii))
	})
	if err != nil {
		return nil, nil, err
	}
	return generated, abstract, nil
}

// abstractMap computes the abstract representation of one sketch into out, shaped (size/PoolSize, size/PoolSize, C).
func (p *Params) abstractMap(sketch []float32, z []float32, out []float32) {
	config := p.Config
	size, reduced := config.ImageSize, config.ImageSize/PoolSize
	numChannels := config.AbstractChannels

	// Latent contribution is the same for every position.
	latentBias := make([]float64, numChannels)
	for c := range numChannels {
		var sum float64
		for d, v := range z {
			sum += p.AbstractLatent[c][d] * float64(v)
		}
		latentBias[c] = p.AbstractBias[c] + sum
	}

	norm := 1.0 / float64(PoolSize*PoolSize)
	for y := range reduced {
		for x := range reduced {
			var pooled float64
			for dy := range PoolSize {
				row := (y*PoolSize + dy) * size
				for dx := range PoolSize {
					pooled += float64(sketch[row+x*PoolSize+dx])
				}
			}
			pooled *= norm
			base := (y*reduced + x) * numChannels
			for c := range numChannels {
				out[base+c] = float32(math.Tanh(p.AbstractGain[c]*pooled + latentBias[c]))
			}
		}
	}
}

// head computes the output image of one sketch into out, given its abstract representation.
func (p *Params) head(sketch, abstract []float32, out []float32) {
	config := p.Config
	size, reduced := config.ImageSize, config.ImageSize/PoolSize
	numAbstract, numOutput := config.AbstractChannels, config.OutputChannels
	stride := config.HeadStride()
	for y := range size {
		for x := range size {
			features := abstract[((y/PoolSize)*reduced+x/PoolSize)*numAbstract:][:numAbstract]
			s := float64(sketch[y*size+x])
			for k := range numOutput {
				weights := p.Head[k*stride : (k+1)*stride]
				pre := weights[numAbstract]*s + weights[numAbstract+1]
				for c, f := range features {
					pre += weights[c] * float64(f)
				}
				out[(y*size+x)*numOutput+k] = float32(math.Tanh(pre))
			}
		}
	}
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package projector

import (
	"context"
	"io"
	"math"
	"math/rand"

	"github.com/gomlx/sketch2render/pkg/core/images"
	"github.com/gomlx/sketch2render/pkg/ml/checkpoints"
	"github.com/gomlx/sketch2render/pkg/ml/latent"
	"github.com/gomlx/sketch2render/pkg/ml/model"
	"github.com/gomlx/sketch2render/pkg/ml/summary"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"k8s.io/klog/v2"
)

// Loss metric recorded in the summaries.
const (
	LossMetricName  = "Generator Loss"
	LossMetricShort = "G"
)

// adam holds the state of the Adam optimizer for the head weights.
type adam struct {
	Step int64
	M, V []float64
}

const (
	adamBeta2   = 0.999
	adamEpsilon = 1e-8
)

func newAdam(size int) *adam {
	return &adam{M: make([]float64, size), V: make([]float64, size)}
}

// update applies one step of Adam to params, given their gradient.
func (o *adam) update(params, grad []float64, learningRate, beta1 float64) {
	o.Step++
	floats.Scale(beta1, o.M)
	floats.AddScaled(o.M, 1-beta1, grad)
	squared := make([]float64, len(grad))
	floats.MulTo(squared, grad, grad)
	floats.Scale(adamBeta2, o.V)
	floats.AddScaled(o.V, 1-adamBeta2, squared)

	correction1 := 1 - math.Pow(beta1, float64(o.Step))
	correction2 := 1 - math.Pow(adamBeta2, float64(o.Step))
	for ii := range params {
		mHat := o.M[ii] / correction1
		vHat := o.V[ii] / correction2
		params[ii] -= learningRate * mHat / (math.Sqrt(vHat) + adamEpsilon)
	}
}

// lossAndGradient runs the model on the sketches and returns the mean squared error against the
// targets and its gradient with respect to the head weights.
func (m *Model) lossAndGradient(ctx context.Context, sketches, targets *images.Batch, z [][]float32) (float64, []float64, error) {
	if err := m.checkInputs(sketches, z); err != nil {
		return 0, nil, err
	}
	config := m.config
	if targets == nil || targets.Count != sketches.Count || targets.Height != config.ImageSize ||
		targets.Width != config.ImageSize || targets.Channels != config.OutputChannels {
		return 0, nil, errors.Errorf("targets %s don't match sketches %s with %d output channels",
			targets, sketches, config.OutputChannels)
	}
	generated, abstract, err := m.Generate(ctx, sketches, z)
	if err != nil {
		return 0, nil, err
	}

	numValues := float64(len(generated.Data))
	numAbstract, numOutput := config.AbstractChannels, config.OutputChannels
	size, reduced, stride := config.ImageSize, config.ImageSize/PoolSize, config.HeadStride()
	losses := make([]float64, sketches.Count)
	grads := make([][]float64, sketches.Count)
	err = m.pool.ForEach(ctx, sketches.Count, func(ii int) {
		grad := make([]float64, len(m.params.Head))
		sketch, features, out, target := sketches.Pixels(ii), abstract.Pixels(ii), generated.Pixels(ii), targets.Pixels(ii)
		var loss float64
		for y := range size {
			for x := range size {
				f := features[((y/PoolSize)*reduced+x/PoolSize)*numAbstract:][:numAbstract]
				s := float64(sketch[y*size+x])
				for k := range numOutput {
					pos := (y*size+x)*numOutput + k
					o := float64(out[pos])
					diff := o - float64(target[pos])
					loss += diff * diff
					// d(loss)/d(pre-activation), with tanh' = 1 - o².
					g := 2 * diff / numValues * (1 - o*o)
					weights := grad[k*stride : (k+1)*stride]
					for c, v := range f {
						weights[c] += g * float64(v)
					}
					weights[numAbstract] += g * s
					weights[numAbstract+1] += g
				}
			}
		}
		losses[ii] = loss / numValues
		grads[ii] = grad
	})
	if err != nil {
		return 0, nil, err
	}
	total := make([]float64, len(m.params.Head))
	for _, grad := range grads {
		floats.Add(total, grad)
	}
	return floats.Sum(losses), total, nil
}

// TrainStep runs one optimization step on the batch, and returns the loss before the update.
func (m *Model) TrainStep(ctx context.Context, sketches, targets *images.Batch, z [][]float32, learningRate, beta1 float64) (float64, error) {
	loss, grad, err := m.lossAndGradient(ctx, sketches, targets, z)
	if err != nil {
		return 0, err
	}
	if m.adam == nil {
		m.adam = newAdam(len(m.params.Head))
	}
	m.adam.update(m.params.Head, grad, learningRate, beta1)
	return loss, nil
}

// Train implements model.Model.
//
// It continues from the checkpoint in spec.CheckpointDir if there is one (at spec.ContinueFromIteration,
// or the latest).
func (m *Model) Train(ctx context.Context, spec model.TrainSpec) error {
	if spec.Producer == nil {
		return errors.New("projector.Train requires a Producer")
	}
	handler := checkpoints.New(spec.CheckpointDir, spec.CheckpointKeep)
	loaded := false
	if existing, err := handler.List(); err != nil {
		return err
	} else if len(existing) > 0 {
		if err = m.Load(spec.CheckpointDir, spec.ContinueFromIteration); err != nil {
			return err
		}
		loaded = true
	} else if spec.ContinueFromIteration != "" {
		return errors.Wrapf(model.ErrCheckpointNotFound, "no checkpoints in %q to continue from iteration %s",
			spec.CheckpointDir, spec.ContinueFromIteration)
	}
	if m.adam == nil {
		m.adam = newAdam(len(m.params.Head))
	}
	startStep := m.adam.Step
	savedStep := int64(-1) // Step of the last checkpoint saved or loaded.
	if loaded {
		savedStep = startStep
	}

	writer := summary.NewWriter(spec.SummaryDir)
	save := func() error {
		if _, err := handler.Save(m.adam.Step, &checkpointState{Params: m.params, Adam: m.adam}); err != nil {
			return err
		}
		savedStep = m.adam.Step
		return nil
	}

	rng := rand.New(rand.NewSource(spec.Seed + startStep))
	var err error
	for {
		var sketches, targets *images.Batch
		sketches, targets, err = spec.Producer.NextPair(ctx)
		if err == io.EOF {
			err = nil
			break
		}
		if err != nil {
			break
		}
		z := make([][]float32, sketches.Count)
		for ii := range z {
			z[ii] = latent.Draw(rng, m.config.LatentDim)
		}
		var loss float64
		loss, err = m.TrainStep(ctx, sketches, targets, z, spec.LearningRate, spec.Beta1)
		if err != nil {
			break
		}
		step := m.adam.Step
		writer.Write(summary.Point{
			MetricName: LossMetricName,
			Short:      LossMetricShort,
			MetricType: summary.TypeLoss,
			Step:       float64(step),
			Value:      loss,
		})
		if spec.OnStep != nil {
			spec.OnStep(step, loss)
		}
		klog.V(2).Infof("projector: step %d, loss %.6f", step, loss)
		if spec.CheckpointEvery > 0 && step%int64(spec.CheckpointEvery) == 0 {
			if err = save(); err != nil {
				break
			}
		}
	}
	if writerErr := writer.Close(); err == nil {
		err = writerErr
	}
	if err != nil {
		return errors.WithMessagef(err, "training stopped at step %d", m.adam.Step)
	}
	if m.adam.Step != savedStep {
		if err = save(); err != nil {
			return err
		}
	}
	if m.adam.Step > startStep {
		if err = summary.PlotLoss(spec.SummaryDir); err != nil {
			klog.Warningf("projector: failed to plot loss: %+v", err)
		}
	}
	klog.Infof("projector: trained %d steps (now at step %d)", m.adam.Step-startStep, m.adam.Step)
	return nil
}

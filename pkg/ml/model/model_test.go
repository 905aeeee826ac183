package model

import (
	"context"
	"runtime"
	"testing"

	"github.com/gomlx/sketch2render/pkg/core/images"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type shapeOnlyModel struct{}

func (shapeOnlyModel) LatentDim() int      { return 3 }
func (shapeOnlyModel) ImageSize() int      { return 4 }
func (shapeOnlyModel) OutputChannels() int { return 3 }
func (shapeOnlyModel) Generate(context.Context, *images.Batch, [][]float32) (*images.Batch, *images.Batch, error) {
	return nil, nil, nil
}
func (shapeOnlyModel) Load(string, string) error               { return nil }
func (shapeOnlyModel) Train(context.Context, TrainSpec) error { return nil }

func TestSessionOptions(t *testing.T) {
	training := TrainingSession()
	assert.Equal(t, runtime.NumCPU(), training.MaxParallelism)
	assert.Equal(t, 1.0, training.MemoryFraction)

	inference := InferenceSession()
	assert.Equal(t, 1, inference.MaxParallelism)
	assert.Equal(t, 0.01, inference.MemoryFraction)
	assert.Equal(t, "SessionOptions{parallelism=1, memory=1%}", inference.String())

	assert.Equal(t, 7, inference.WithParallelism(7).MaxParallelism)
	assert.Equal(t, 1, inference.WithParallelism(0).MaxParallelism)
}

func TestCheckShapes(t *testing.T) {
	var m shapeOnlyModel
	sketches := images.New(2, 4, 4, 1)
	z := [][]float32{{0, 0, 0}, {1, 1, 1}}
	require.NoError(t, CheckShapes(m, sketches, z))

	assert.Error(t, CheckShapes(m, nil, z))
	assert.Error(t, CheckShapes(m, images.New(2, 8, 8, 1), z))
	assert.Error(t, CheckShapes(m, sketches, z[:1]))
	assert.Error(t, CheckShapes(m, sketches, [][]float32{{0, 0, 0}, {1, 1}}))
}

package checkpoints

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testParams struct {
	Weights []float32
	Bias    float64
}

func TestSaveAndLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run", "000")
	h := New(dir, 0)

	_, err := h.Latest()
	require.ErrorIs(t, err, ErrNotFound, "missing directory has no checkpoints")

	for step := int64(100); step <= 300; step += 100 {
		name, err := h.Save(step, &testParams{Weights: []float32{float32(step), 1}, Bias: float64(step) / 2})
		require.NoError(t, err)
		iteration, err := IterationOf(name)
		require.NoError(t, err)
		assert.Equal(t, step, iteration)
	}
	list, err := h.List()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"checkpoint-n0000000-step-00000100",
		"checkpoint-n0000001-step-00000200",
		"checkpoint-n0000002-step-00000300",
	}, list)

	var params testParams
	iteration, err := h.Load("", &params)
	require.NoError(t, err)
	assert.Equal(t, int64(300), iteration)
	assert.Equal(t, testParams{Weights: []float32{300, 1}, Bias: 150}, params)

	iteration, err = h.Load("200", &params)
	require.NoError(t, err)
	assert.Equal(t, int64(200), iteration)
	assert.Equal(t, testParams{Weights: []float32{200, 1}, Bias: 100}, params)

	_, err = h.Load("250", &params)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "250")

	_, err = h.Find("abc")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestKeep(t *testing.T) {
	dir := t.TempDir()
	h := New(dir, 2)
	for step := range int64(5) {
		_, err := h.Save(step*10, map[string]int64{"step": step})
		require.NoError(t, err)
	}
	// Unrelated files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "args.txt"), []byte("-epoch=1"), 0644))

	list, err := h.List()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"checkpoint-n0000003-step-00000030",
		"checkpoint-n0000004-step-00000040",
	}, list)

	// Counting continues from the existing checkpoints with a new handler.
	name, err := New(dir, 0).Save(50, nil)
	require.NoError(t, err)
	assert.Equal(t, "checkpoint-n0000005-step-00000050", name)
}

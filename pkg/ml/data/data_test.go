package data

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/gomlx/sketch2render/pkg/core/images"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testImageSize = 8

// writeGrayImages writes one uniform gray PNG per level, named img_00.png, img_01.png, ...
func writeGrayImages(t *testing.T, dir string, levels ...uint8) []string {
	paths := make([]string, len(levels))
	for ii, level := range levels {
		img := image.NewGray(image.Rect(0, 0, testImageSize, testImageSize))
		for pos := range img.Pix {
			img.Pix[pos] = level
		}
		// Mark the left column, so flips are detectable.
		for y := range testImageSize {
			img.SetGray(0, y, color.Gray{Y: 255 - level})
		}
		paths[ii] = filepath.Join(dir, fmt.Sprintf("img_%02d.png", ii))
		f, err := os.Create(paths[ii])
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, img))
		require.NoError(t, f.Close())
	}
	return paths
}

// centerLevels returns the value at the center of each image in the batch, scaled back to [0, 255].
func centerLevels(b *images.Batch) []int {
	levels := make([]int, b.Count)
	for ii := range b.Count {
		levels[ii] = int(b.At(ii, testImageSize/2, testImageSize/2, 0)*255 + 0.5)
	}
	return levels
}

func drain(t *testing.T, p *Producer) [][]int {
	var all [][]int
	for {
		batch, err := p.Next(context.Background())
		if err == io.EOF {
			return all
		}
		require.NoError(t, err)
		all = append(all, centerLevels(batch))
	}
}

func TestProducerOrderAndExhaustion(t *testing.T) {
	paths := writeGrayImages(t, t.TempDir(), 10, 20, 30, 40, 50)
	p, err := New(context.Background(), Config{
		Paths:       paths,
		Size:        testImageSize,
		BatchSize:   2,
		NumEpochs:   1,
		Parallelism: 3,
	})
	require.NoError(t, err)

	// The final incomplete batch (with 1 image) is dropped.
	assert.Equal(t, [][]int{{10, 20}, {30, 40}}, drain(t, p))

	// Exhaustion is reported repeatedly, and stopping is clean.
	_, err = p.Next(context.Background())
	assert.Equal(t, io.EOF, err)
	require.NoError(t, p.Stop())
	assert.Equal(t, 0, p.Running())
	require.NoError(t, p.Stop(), "Stop is idempotent")
}

func TestProducerAcrossEpochs(t *testing.T) {
	paths := writeGrayImages(t, t.TempDir(), 10, 20, 30)
	p, err := New(context.Background(), Config{Paths: paths, Size: testImageSize, BatchSize: 2, NumEpochs: 2})
	require.NoError(t, err)
	defer func() { _ = p.Stop() }()
	assert.Equal(t, [][]int{{10, 20}, {30, 10}, {20, 30}}, drain(t, p))
}

func TestProducerBatchShape(t *testing.T) {
	paths := writeGrayImages(t, t.TempDir(), 0, 255)
	for _, colorImages := range []bool{false, true} {
		p, err := New(context.Background(), Config{
			Paths: paths, Size: 4, BatchSize: 2, NumEpochs: 1, Color: colorImages, Whiten: WhitenRange})
		require.NoError(t, err)
		batch, err := p.Next(context.Background())
		require.NoError(t, err)
		wantChannels := 1
		if colorImages {
			wantChannels = 3
		}
		assert.Equal(t, fmt.Sprintf("images.Batch[2, 4, 4, %d]", wantChannels), batch.String())
		for _, v := range batch.Data {
			assert.True(t, v >= -1.001 && v <= 1.001, "value %f out of whitened range", v)
		}
		require.NoError(t, p.Stop())
	}
}

func TestProducerStopMidStream(t *testing.T) {
	paths := writeGrayImages(t, t.TempDir(), 10, 20, 30, 40)
	p, err := New(context.Background(), Config{
		Paths:     paths,
		Size:      testImageSize,
		BatchSize: 2,
		NumEpochs: 0, // Loops forever.
		Capacity:  1,
	})
	require.NoError(t, err)
	batch, err := p.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{10, 20}, centerLevels(batch))

	require.NoError(t, p.Stop())
	assert.Equal(t, 0, p.Running(), "all background goroutines must have exited")
	_, err = p.Next(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}

func TestProducerParentContextCancelled(t *testing.T) {
	paths := writeGrayImages(t, t.TempDir(), 10, 20)
	ctx, cancel := context.WithCancel(context.Background())
	p, err := New(ctx, Config{Paths: paths, Size: testImageSize, BatchSize: 1, Capacity: 1})
	require.NoError(t, err)
	cancel()
	select {
	case <-p.done:
	case <-time.After(5 * time.Second):
		t.Fatal("background goroutine did not exit after the context was cancelled")
	}
	assert.Equal(t, 0, p.Running())

	// Cancellation is reported as such, never as the end of the input. A batch buffered before the
	// cancellation may still be returned first.
	err = nil
	for ii := 0; err == nil; ii++ {
		require.LessOrEqual(t, ii, 1, "only one batch could be buffered")
		_, err = p.Next(context.Background())
	}
	assert.NotEqual(t, io.EOF, err)
	assert.True(t, errors.Is(err, context.Canceled), "unexpected error %v", err)
	_, err = p.Next(context.Background())
	assert.True(t, errors.Is(err, context.Canceled), "unexpected error %v", err)
	_, err = p.Next(ctx)
	assert.True(t, errors.Is(err, context.Canceled), "unexpected error %v", err)
	assert.True(t, errors.Is(p.Stop(), context.Canceled))
}

func TestProducerReaderError(t *testing.T) {
	dir := t.TempDir()
	paths := writeGrayImages(t, dir, 10)
	paths = append(paths, filepath.Join(dir, "missing.png"))
	p, err := New(context.Background(), Config{Paths: paths, Size: testImageSize, BatchSize: 2, NumEpochs: 1})
	require.NoError(t, err)
	_, err = p.Next(context.Background())
	require.Error(t, err)
	assert.NotEqual(t, io.EOF, err)
	assert.Contains(t, err.Error(), "missing.png")
	stopErr := p.Stop()
	assert.Equal(t, err, stopErr)
	assert.Equal(t, 0, p.Running())
}

func TestProducerShuffleIsSeeded(t *testing.T) {
	levels := []uint8{10, 20, 30, 40, 50, 60, 70, 80}
	paths := writeGrayImages(t, t.TempDir(), levels...)
	read := func(seed int64) []int {
		p, err := New(context.Background(), Config{
			Paths: paths, Size: testImageSize, BatchSize: len(paths), NumEpochs: 1, Shuffle: true, Seed: seed})
		require.NoError(t, err)
		defer func() { require.NoError(t, p.Stop()) }()
		all := drain(t, p)
		require.Len(t, all, 1)
		return all[0]
	}
	first := read(7)
	assert.Equal(t, first, read(7))
	sorted := append([]int(nil), first...)
	sort.Ints(sorted)
	assert.Equal(t, []int{10, 20, 30, 40, 50, 60, 70, 80}, sorted, "shuffle must be a permutation")
}

func TestProducerPairsShareAugmentation(t *testing.T) {
	paths := writeGrayImages(t, t.TempDir(), 10, 60, 110, 160)
	config := Config{
		Paths:       paths,
		TargetPaths: paths,
		Size:        testImageSize,
		BatchSize:   4,
		NumEpochs:   1,
		Augment:     true,
		Seed:        3,
	}
	p, err := New(context.Background(), config)
	require.NoError(t, err)
	inputs, targets, err := p.NextPair(context.Background())
	require.NoError(t, err)
	assert.Equal(t, inputs.Data, targets.Data, "inputs and targets must have the same augmentation")
	require.NoError(t, p.Stop())

	// Same seed, same augmentations.
	p, err = New(context.Background(), config)
	require.NoError(t, err)
	again, _, err := p.NextPair(context.Background())
	require.NoError(t, err)
	assert.Equal(t, inputs.Data, again.Data)
	require.NoError(t, p.Stop())

	// NextPair without targets fails.
	config.TargetPaths = nil
	p, err = New(context.Background(), config)
	require.NoError(t, err)
	_, _, err = p.NextPair(context.Background())
	assert.Error(t, err)
	require.NoError(t, p.Stop())
}

func TestConfigValidate(t *testing.T) {
	valid := Config{Paths: []string{"a.png"}, Size: 8, BatchSize: 1}
	require.NoError(t, valid.Validate())
	for name, mutate := range map[string]func(c *Config){
		"no paths":       func(c *Config) { c.Paths = nil },
		"bad size":       func(c *Config) { c.Size = 0 },
		"bad batch size": func(c *Config) { c.BatchSize = 0 },
		"bad epochs":     func(c *Config) { c.NumEpochs = -1 },
		"bad targets":    func(c *Config) { c.TargetPaths = []string{"a.png", "b.png"} },
	} {
		c := valid
		mutate(&c)
		assert.Error(t, c.Validate(), name)
		_, err := New(context.Background(), c)
		assert.Error(t, err, name)
	}
}

func TestListImages(t *testing.T) {
	dir := t.TempDir()
	paths := writeGrayImages(t, dir, 1, 2, 3)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0644))
	found, err := ListImages(dir, ".png")
	require.NoError(t, err)
	assert.Equal(t, paths, found)
}

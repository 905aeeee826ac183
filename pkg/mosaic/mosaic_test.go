package mosaic

import (
	"bytes"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/sketch2render/pkg/core/images"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridSize(t *testing.T) {
	for count, want := range map[int]int{0: 0, 1: 1, 2: 2, 3: 2, 4: 2, 5: 3, 9: 3, 10: 4, 64: 8} {
		rows, cols := GridSize(count)
		assert.Equal(t, want, rows, "count=%d", count)
		assert.Equal(t, want, cols, "count=%d", count)
		assert.GreaterOrEqual(t, rows*cols, count)
	}
}

// solidBatch returns count images of size 2x3 where image ii has all values set to levels[ii].
func solidBatch(levels ...float32) *images.Batch {
	b := images.New(len(levels), 2, 3, 1)
	for ii, level := range levels {
		pixels := b.Pixels(ii)
		for jj := range pixels {
			pixels[jj] = level
		}
	}
	return b
}

func TestComposeLayout(t *testing.T) {
	// Levels -1, 0, 1 map to 0, 128, 255.
	batch := solidBatch(-1, 0, 1)
	for _, grid := range [][2]int{{2, 2}, {1, 3}, {3, 1}, {2, 3}} {
		rows, cols := grid[0], grid[1]
		canvas, err := Compose(batch, rows, cols, Options{})
		require.NoError(t, err)
		require.Equal(t, cols*3, canvas.Bounds().Dx())
		require.Equal(t, rows*2, canvas.Bounds().Dy())

		wantLevels := []uint8{0, 128, 255}
		for cell := range rows * cols {
			row, col := cell/cols, cell%cols
			got := canvas.NRGBAAt(col*3+1, row*2+1)
			if cell < batch.Count {
				level := wantLevels[cell]
				assert.Equal(t, color.NRGBA{R: level, G: level, B: level, A: 255}, got,
					"grid %v, cell %d", grid, cell)
			} else {
				assert.Equal(t, color.NRGBA{A: 255}, got, "grid %v, surplus cell %d must be blank", grid, cell)
			}
		}
	}
}

func TestComposeErrors(t *testing.T) {
	_, err := Compose(solidBatch(0, 0, 0), 1, 2, Options{})
	assert.Error(t, err, "grid too small")
	_, err = Compose(nil, 1, 1, Options{})
	assert.Error(t, err)
	_, err = Compose(solidBatch(0), 0, 1, Options{})
	assert.Error(t, err)

	// Two channels can't be displayed, unless only the first is used.
	twoChannels := images.New(2, 2, 2, 2)
	_, err = Compose(twoChannels, 1, 2, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 channels")
	_, err = Compose(twoChannels, 1, 2, Options{Channels: 1})
	assert.NoError(t, err)

	filePath := filepath.Join(t.TempDir(), "grid.png")
	assert.Error(t, SaveGrid(filePath, nil, Options{}))
	assert.Error(t, Save(filePath, twoChannels, 1, 2, Options{}))
	assert.NoFileExists(t, filePath)
}

func TestComposeSingleChannelAndInvert(t *testing.T) {
	b := images.New(1, 1, 1, 3)
	b.Data = []float32{1, -1, -1}
	canvas, err := Compose(b, 1, 1, Options{Channels: 1})
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 255, G: 255, B: 255, A: 255}, canvas.NRGBAAt(0, 0))

	canvas, err = Compose(b, 1, 1, Options{Channels: 1, Invert: true})
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{A: 255}, canvas.NRGBAAt(0, 0))

	canvas, err = Compose(b, 1, 1, Options{})
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, canvas.NRGBAAt(0, 0))
}

func TestSaveIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "grid.png")
	batch := solidBatch(-1, -0.5, 0, 0.5, 1)

	require.NoError(t, SaveGrid(filePath, batch, Options{}))
	first, err := os.ReadFile(filePath)
	require.NoError(t, err)
	require.NoError(t, SaveGrid(filePath, batch, Options{}))
	second, err := os.ReadFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	img, err := png.Decode(bytes.NewReader(first))
	require.NoError(t, err)
	assert.Equal(t, 3*3, img.Bounds().Dx())
	assert.Equal(t, 3*2, img.Bounds().Dy())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

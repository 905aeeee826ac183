// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package mosaic tiles batches of images into a single grid image and saves it as PNG.
//
// Images are laid out in row-major order: image ii goes to row ii/cols and column ii%cols.
// Cells beyond the number of images are left blank (black).
package mosaic

import (
	"image"
	"image/color"
	"image/draw"
	"io"
	"math"

	"github.com/disintegration/imaging"
	"github.com/gomlx/sketch2render/pkg/core/images"
	"github.com/gomlx/sketch2render/pkg/support/fsutil"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// SideBySide is the grid used to compare two images: 1 row by 2 columns.
var SideBySide = [2]int{1, 2}

// GridSize returns a square-ish grid that fits count images: ceil(sqrt(count)) on each axis.
func GridSize(count int) (rows, cols int) {
	if count <= 0 {
		return 0, 0
	}
	side := int(math.Ceil(math.Sqrt(float64(count))))
	return side, side
}

// Options for composing a mosaic.
type Options struct {
	// Channels to display: 0 uses the channels of the batch. If set to 1, only the first channel is
	// used and replicated across RGB.
	Channels int

	// Invert intensities, used to visualize activations.
	Invert bool
}

// Compose tiles the images of batch into a rows x cols grid.
//
// Values are mapped from [-1, 1] to [0, 255] (clipped). It returns an error if the grid has
// fewer cells than images, or if the images can't be displayed with their number of channels.
func Compose(batch *images.Batch, rows, cols int, opts Options) (*image.NRGBA, error) {
	if batch == nil || batch.Count == 0 {
		return nil, errors.New("mosaic.Compose: no images given")
	}
	if rows <= 0 || cols <= 0 {
		return nil, errors.Errorf("mosaic.Compose: invalid grid %dx%d", rows, cols)
	}
	if rows*cols < batch.Count {
		return nil, errors.Errorf("mosaic.Compose: grid %dx%d has only %d cells, but %d images were given",
			rows, cols, rows*cols, batch.Count)
	}
	if opts.Channels == 1 && batch.Channels != 1 {
		batch = firstChannel(batch)
	}
	if batch.Channels != 1 && batch.Channels != 3 && batch.Channels != 4 {
		return nil, errors.Errorf("mosaic.Compose: can't display images with %d channels, only 1, 3 or 4 are supported "+
			"(use Options.Channels=1 to display only the first one)", batch.Channels)
	}
	canvas := image.NewNRGBA(image.Rect(0, 0, cols*batch.Width, rows*batch.Height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.NRGBA{A: 255}), image.Point{}, draw.Src)
	toImage := images.ToImage().Invert(opts.Invert)
	for ii := range batch.Count {
		row, col := ii/cols, ii%cols
		tile := toImage.Single(batch, ii)
		at := image.Pt(col*batch.Width, row*batch.Height)
		draw.Draw(canvas, tile.Bounds().Add(at), tile, image.Point{}, draw.Src)
	}
	return canvas, nil
}

// Save composes the mosaic (see Compose) and writes it as a PNG to filePath, overwriting any previous file.
//
// The file is written to a temporary file first and then renamed, so filePath never holds a partially
// written image.
func Save(filePath string, batch *images.Batch, rows, cols int, opts Options) error {
	canvas, err := Compose(batch, rows, cols, opts)
	if err != nil {
		return errors.WithMessagef(err, "while saving %q", filePath)
	}
	err = fsutil.WriteAtomic(filePath, func(w io.Writer) error {
		return imaging.Encode(w, canvas, imaging.PNG)
	})
	if err != nil {
		return err
	}
	klog.V(2).Infof("saved %dx%d mosaic of %s to %q", rows, cols, batch, filePath)
	return nil
}

// SaveGrid is like Save, using GridSize(batch.Count) for the grid.
func SaveGrid(filePath string, batch *images.Batch, opts Options) error {
	if batch == nil {
		return errors.Errorf("mosaic.SaveGrid: no images given for %q", filePath)
	}
	rows, cols := GridSize(batch.Count)
	return Save(filePath, batch, rows, cols, opts)
}

// firstChannel returns a single-channel copy of the batch with only its first channel.
func firstChannel(batch *images.Batch) *images.Batch {
	out := images.New(batch.Count, batch.Height, batch.Width, 1)
	for pos := range out.Data {
		out.Data[pos] = batch.Data[pos*batch.Channels]
	}
	return out
}

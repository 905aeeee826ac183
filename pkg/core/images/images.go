// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package images holds Batch, a dense batch of images stored as float32 values, and
// provides functions to transform images back and forth from batches.
//
// A Batch is shaped `[count, height, width, channels]` ("channels last"), laid out in row-major order.
package images

import (
	"fmt"
	"image"
	"image/color"

	"github.com/gomlx/exceptions"
)

// Batch of images with the same size and number of channels.
type Batch struct {
	Count, Height, Width, Channels int

	// Data holds the values in `[count, height, width, channels]` row-major order.
	Data []float32
}

// New creates a zero-filled Batch with the given dimensions.
//
// It panics if any of the dimensions is not positive.
func New(count, height, width, channels int) *Batch {
	if count <= 0 || height <= 0 || width <= 0 || channels <= 0 {
		exceptions.Panicf("images.New(%d, %d, %d, %d): cannot create a batch with a dimension <= 0",
			count, height, width, channels)
	}
	return &Batch{
		Count:    count,
		Height:   height,
		Width:    width,
		Channels: channels,
		Data:     make([]float32, count*height*width*channels),
	}
}

// String implements fmt.Stringer.
func (b *Batch) String() string {
	return fmt.Sprintf("images.Batch[%d, %d, %d, %d]", b.Count, b.Height, b.Width, b.Channels)
}

// ImageSize is the number of values of one image in the batch.
func (b *Batch) ImageSize() int {
	return b.Height * b.Width * b.Channels
}

// SameImageShape returns whether other has images of the same height, width and channels.
func (b *Batch) SameImageShape(other *Batch) bool {
	return b.Height == other.Height && b.Width == other.Width && b.Channels == other.Channels
}

func (b *Batch) offset(idx, y, x, c int) int {
	return ((idx*b.Height+y)*b.Width+x)*b.Channels + c
}

// At returns the value at the given position.
func (b *Batch) At(idx, y, x, c int) float32 {
	return b.Data[b.offset(idx, y, x, c)]
}

// Set the value at the given position.
func (b *Batch) Set(idx, y, x, c int, v float32) {
	b.Data[b.offset(idx, y, x, c)] = v
}

// Pixels returns the flat values of image idx, shaped `[height, width, channels]`.
// It shares the storage with the batch.
func (b *Batch) Pixels(idx int) []float32 {
	if idx < 0 || idx >= b.Count {
		exceptions.Panicf("%s.Pixels(%d): index out of range", b, idx)
	}
	size := b.ImageSize()
	return b.Data[idx*size : (idx+1)*size]
}

// Image returns a batch with only image idx. It shares the storage with b.
func (b *Batch) Image(idx int) *Batch {
	return &Batch{Count: 1, Height: b.Height, Width: b.Width, Channels: b.Channels, Data: b.Pixels(idx)}
}

// SetImage copies the image srcIdx of src into position idx of b.
//
// It panics if the image shapes differ.
func (b *Batch) SetImage(idx int, src *Batch, srcIdx int) {
	if !b.SameImageShape(src) {
		exceptions.Panicf("%s.SetImage(%d, %s, %d): images have different shapes", b, idx, src, srcIdx)
	}
	copy(b.Pixels(idx), src.Pixels(srcIdx))
}

// Clone returns a deep copy of the batch.
func (b *Batch) Clone() *Batch {
	c := *b
	c.Data = make([]float32, len(b.Data))
	copy(c.Data, b.Data)
	return &c
}

// ChannelsAsImages takes image idx, shaped `[height, width, channels]`, and returns a batch with one
// single-channel image per channel, shaped `[channels, height, width, 1]`.
//
// It's used to visualize each activation channel separately.
func (b *Batch) ChannelsAsImages(idx int) *Batch {
	out := New(b.Channels, b.Height, b.Width, 1)
	pixels := b.Pixels(idx)
	plane := b.Height * b.Width
	for pos := range plane {
		for c := range b.Channels {
			out.Data[c*plane+pos] = pixels[pos*b.Channels+c]
		}
	}
	return out
}

// ExpandChannels returns a copy of a single-channel batch with the value replicated to `channels` channels.
// If the batch already has `channels` channels, it is returned as is.
func (b *Batch) ExpandChannels(channels int) *Batch {
	if b.Channels == channels {
		return b
	}
	if b.Channels != 1 {
		exceptions.Panicf("%s.ExpandChannels(%d): only single channel batches can be expanded", b, channels)
	}
	out := New(b.Count, b.Height, b.Width, channels)
	for pos, v := range b.Data {
		for c := range channels {
			out.Data[pos*channels+c] = v
		}
	}
	return out
}

// Concat concatenates batches along the count axis. All batches must have the same image shape.
func Concat(batches ...*Batch) *Batch {
	if len(batches) == 0 {
		exceptions.Panicf("images.Concat requires at least one batch")
	}
	count := 0
	for _, b := range batches {
		if !b.SameImageShape(batches[0]) {
			exceptions.Panicf("images.Concat: %s and %s have different image shapes", batches[0], b)
		}
		count += b.Count
	}
	out := New(count, batches[0].Height, batches[0].Width, batches[0].Channels)
	pos := 0
	for _, b := range batches {
		pos += copy(out.Data[pos:], b.Data)
	}
	return out
}

// ToBatchConfig holds the configuration returned by the ToBatch function. Once
// configured, use Single or Batch to actually convert.
type ToBatchConfig struct {
	channels int
	maxValue float64
}

// ToBatch converts images to a Batch.
//
// It returns a configuration object that can be further configured. Once set, use Single or Batch
// methods to convert an image or a batch of images.
// By default, it converts to 3 channels (RGB) with values in [0, 1].
func ToBatch() *ToBatchConfig {
	return &ToBatchConfig{channels: 3, maxValue: 1.0}
}

// Gray configures the conversion to a single luminance channel.
//
// It returns the ToBatchConfig object, so configuration calls can be cascaded.
func (tb *ToBatchConfig) Gray() *ToBatchConfig {
	tb.channels = 1
	return tb
}

// WithAlpha configures the conversion to include the alpha channel, so the converted batch will
// have 4 channels. The default is dropping the alpha channel.
func (tb *ToBatchConfig) WithAlpha() *ToBatchConfig {
	tb.channels = 4
	return tb
}

// MaxValue sets the value of a saturated channel. It defaults to 1.0.
func (tb *ToBatchConfig) MaxValue(v float64) *ToBatchConfig {
	tb.maxValue = v
	return tb
}

// Single converts the given img to a Batch with one image.
func (tb *ToBatchConfig) Single(img image.Image) *Batch {
	return tb.Batch([]image.Image{img})
}

// Batch converts the given images to a Batch shaped `[len(imgs), height, width, channels]`.
//
// It panics if the images have different sizes.
func (tb *ToBatchConfig) Batch(imgs []image.Image) *Batch {
	if len(imgs) == 0 {
		exceptions.Panicf("images.ToBatch requires at least one image")
	}
	imgSize := imgs[0].Bounds().Size()
	b := New(len(imgs), imgSize.Y, imgSize.X, tb.channels)
	scale := tb.maxValue / float64(0xFFFF) // color.RGBA() returns 16 bits values packaged in uint32.
	pos := 0
	for imgIdx, img := range imgs {
		bounds := img.Bounds()
		if !bounds.Size().Eq(imgSize) {
			exceptions.Panicf("image[%d] has size %s, but image[0] has size %s -- they must all be the same",
				imgIdx, bounds.Size(), imgSize)
		}
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				c := img.At(x, y)
				switch tb.channels {
				case 1:
					gray := color.Gray16Model.Convert(c).(color.Gray16)
					b.Data[pos] = float32(float64(gray.Y) * scale)
					pos++
				default:
					r, g, bl, a := c.RGBA()
					channels := [4]uint32{r, g, bl, a}
					for _, v := range channels[:tb.channels] {
						b.Data[pos] = float32(float64(v) * scale)
						pos++
					}
				}
			}
		}
	}
	return b
}

// ToImageConfig holds the configuration returned by the ToImage function. Once
// configured, use Single or Batch to actually convert a Batch to image(s).
type ToImageConfig struct {
	minValue, maxValue float64
	invert             bool
}

// ToImage returns a configuration that can be used to convert a Batch to images.
// By default, it maps values in the range [-1, 1] (the range of a `tanh` generator output) to [0, 255],
// clipping values outside the range.
//
// Single channel batches are converted to gray RGB images, 3 channel batches to RGB and 4 channels to RGBA.
func ToImage() *ToImageConfig {
	return &ToImageConfig{minValue: -1, maxValue: 1}
}

// Range sets the values mapped to black (minValue) and to full intensity (maxValue).
func (ti *ToImageConfig) Range(minValue, maxValue float64) *ToImageConfig {
	ti.minValue, ti.maxValue = minValue, maxValue
	return ti
}

// Invert the intensities: minValue is mapped to full intensity and maxValue to black.
func (ti *ToImageConfig) Invert(invert bool) *ToImageConfig {
	ti.invert = invert
	return ti
}

// Level converts one value to an 8-bit intensity.
func (ti *ToImageConfig) Level(v float32) uint8 {
	r := ti.maxValue - ti.minValue
	if r <= 0 {
		r = 1
	}
	f := (float64(v) - ti.minValue) / r
	if f < 0 {
		f = 0
	} else if f > 1 {
		f = 1
	}
	if ti.invert {
		f = 1 - f
	}
	return uint8(f*255.0 + 0.5)
}

// Single converts image idx of the batch to an *image.NRGBA.
func (ti *ToImageConfig) Single(b *Batch, idx int) *image.NRGBA {
	if b.Channels != 1 && b.Channels != 3 && b.Channels != 4 {
		exceptions.Panicf("images.ToImage invalid batch %s: only images with 1, 3 or 4 channels are supported", b)
	}
	img := image.NewNRGBA(image.Rect(0, 0, b.Width, b.Height))
	pixels := b.Pixels(idx)
	pos := 0
	for y := range b.Height {
		for x := range b.Width {
			var c color.NRGBA
			c.A = 255
			switch b.Channels {
			case 1:
				level := ti.Level(pixels[pos])
				c.R, c.G, c.B = level, level, level
			case 3:
				c.R, c.G, c.B = ti.Level(pixels[pos]), ti.Level(pixels[pos+1]), ti.Level(pixels[pos+2])
			case 4:
				c.R, c.G, c.B = ti.Level(pixels[pos]), ti.Level(pixels[pos+1]), ti.Level(pixels[pos+2])
				c.A = ti.Level(pixels[pos+3])
			}
			pos += b.Channels
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// Batch converts all images in the batch.
func (ti *ToImageConfig) Batch(b *Batch) []image.Image {
	imgs := make([]image.Image, b.Count)
	for ii := range b.Count {
		imgs[ii] = ti.Single(b, ii)
	}
	return imgs
}

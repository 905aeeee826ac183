// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package data

import (
	"image"
	"image/color"
	"math"
	"math/rand"

	"github.com/disintegration/imaging"
	"github.com/gomlx/sketch2render/pkg/core/images"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// Whitening is the normalization applied to the values of each image, after they are converted to [0, 1].
type Whitening int

const (
	// WhitenNone keeps values in [0, 1].
	WhitenNone Whitening = iota

	// WhitenRange maps values linearly to [-1, 1].
	WhitenRange

	// WhitenSketch maps values to [-1, 1] inverting them, so dark strokes are +1 and the white paper is -1.
	WhitenSketch

	// WhitenPerImage normalizes each channel of each image to zero mean and unit variance.
	WhitenPerImage
)

var whiteningNames = []string{"none", "range", "sketch", "per_image"}

// String implements fmt.Stringer.
func (w Whitening) String() string {
	if w < 0 || int(w) >= len(whiteningNames) {
		return "Whitening(invalid)"
	}
	return whiteningNames[w]
}

// Apply the whitening to the images of the batch, in place.
func (w Whitening) Apply(b *images.Batch) {
	switch w {
	case WhitenNone:
	case WhitenRange:
		for ii, v := range b.Data {
			b.Data[ii] = 2*v - 1
		}
	case WhitenSketch:
		for ii, v := range b.Data {
			b.Data[ii] = 1 - 2*v
		}
	case WhitenPerImage:
		plane := b.Height * b.Width
		minStdDev := 1.0 / math.Sqrt(float64(plane))
		values := make([]float64, plane)
		for idx := range b.Count {
			pixels := b.Pixels(idx)
			for c := range b.Channels {
				for pos := range plane {
					values[pos] = float64(pixels[pos*b.Channels+c])
				}
				mean, stdDev := stat.MeanStdDev(values, nil)
				if math.IsNaN(stdDev) || stdDev < minStdDev {
					stdDev = minStdDev
				}
				for pos := range plane {
					pixels[pos*b.Channels+c] = float32((values[pos] - mean) / stdDev)
				}
			}
		}
	}
}

// Augmentation parameters.
const (
	// MaxRotationDegrees is the largest rotation applied, in either direction.
	MaxRotationDegrees = 5.0

	// MaxHueShift is the largest hue shift (in degrees) applied to color images.
	MaxHueShift = 15.0

	// MaxSaturationScale is the largest relative change of saturation applied to color images.
	MaxSaturationScale = 0.15
)

// augmentation holds one random draw of the transformations applied to an example. The same
// augmentation is applied to a sketch and its rendered target, so they stay aligned.
type augmentation struct {
	flip            bool
	angle           float64
	hueShift        float64
	saturationScale float64
}

func drawAugmentation(rng *rand.Rand) augmentation {
	return augmentation{
		flip:            rng.Intn(2) == 1,
		angle:           (2*rng.Float64() - 1) * MaxRotationDegrees,
		hueShift:        (2*rng.Float64() - 1) * MaxHueShift,
		saturationScale: 1 + (2*rng.Float64()-1)*MaxSaturationScale,
	}
}

// geometry applies the flip and rotation, keeping the image size.
func (a augmentation) geometry(img image.Image, background color.Color) image.Image {
	size := img.Bounds().Size()
	if a.flip {
		img = imaging.FlipH(img)
	}
	if a.angle != 0 {
		img = imaging.Rotate(img, a.angle, background)
		img = imaging.CropCenter(img, size.X, size.Y)
	}
	return img
}

// jitterColors shifts the hue and scales the saturation of every pixel.
func (a augmentation) jitterColors(img image.Image) *image.NRGBA {
	out := imaging.Clone(img)
	bounds := out.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			original := out.NRGBAAt(x, y)
			c, ok := colorful.MakeColor(original)
			if !ok {
				continue // Fully transparent.
			}
			h, s, v := c.Hsv()
			h = math.Mod(h+a.hueShift+360, 360)
			s = math.Min(1, math.Max(0, s*a.saturationScale))
			r, g, b := colorful.Hsv(h, s, v).Clamped().RGB255()
			out.SetNRGBA(x, y, color.NRGBA{R: r, G: g, B: b, A: original.A})
		}
	}
	return out
}

// imageSpec describes how one image of an example is loaded.
type imageSpec struct {
	size   int
	color  bool
	whiten Whitening
}

// load reads, resizes, optionally augments, converts and whitens one image.
func (spec imageSpec) load(filePath string, aug *augmentation) (*images.Batch, error) {
	img, err := imaging.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read image %q", filePath)
	}
	var result image.Image = imaging.Resize(img, spec.size, spec.size, imaging.Lanczos)
	if aug != nil {
		result = aug.geometry(result, color.White)
		if spec.color {
			result = aug.jitterColors(result)
		}
	}
	toBatch := images.ToBatch()
	if !spec.color {
		toBatch = toBatch.Gray()
	}
	b := toBatch.Single(result)
	spec.whiten.Apply(b)
	return b, nil
}

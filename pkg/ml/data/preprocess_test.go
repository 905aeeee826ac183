package data

import (
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/gomlx/sketch2render/pkg/core/images"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/stat"
)

func TestWhiteningString(t *testing.T) {
	assert.Equal(t, "sketch", WhitenSketch.String())
	assert.Equal(t, "per_image", WhitenPerImage.String())
	assert.Equal(t, "Whitening(invalid)", Whitening(17).String())
}

func TestWhiteningApply(t *testing.T) {
	newBatch := func() *images.Batch {
		b := images.New(1, 1, 4, 1)
		b.Data = []float32{0, 0.25, 0.5, 1}
		return b
	}

	b := newBatch()
	WhitenNone.Apply(b)
	assert.Equal(t, []float32{0, 0.25, 0.5, 1}, b.Data)

	b = newBatch()
	WhitenRange.Apply(b)
	assert.Equal(t, []float32{-1, -0.5, 0, 1}, b.Data)

	b = newBatch()
	WhitenSketch.Apply(b)
	assert.Equal(t, []float32{1, 0.5, 0, -1}, b.Data)

	b = newBatch()
	WhitenPerImage.Apply(b)
	values := make([]float64, len(b.Data))
	for ii, v := range b.Data {
		values[ii] = float64(v)
	}
	mean, stdDev := stat.MeanStdDev(values, nil)
	assert.InDelta(t, 0.0, mean, 1e-6)
	assert.InDelta(t, 1.0, stdDev, 1e-5)

	// Constant images don't blow up.
	b = images.New(1, 2, 2, 1)
	WhitenPerImage.Apply(b)
	for _, v := range b.Data {
		assert.InDelta(t, 0.0, v, 1e-6)
	}
}

func TestAugmentationKeepsSize(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for y := range 16 {
		for x := range 16 {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 16), G: 100, B: uint8(y * 16), A: 255})
		}
	}
	rng := rand.New(rand.NewSource(1))
	for range 5 {
		aug := drawAugmentation(rng)
		assert.LessOrEqual(t, aug.angle, MaxRotationDegrees)
		assert.GreaterOrEqual(t, aug.angle, -MaxRotationDegrees)
		out := aug.geometry(img, color.White)
		assert.Equal(t, img.Bounds().Size(), out.Bounds().Size())
		jittered := aug.jitterColors(out)
		assert.Equal(t, img.Bounds().Size(), jittered.Bounds().Size())
	}

	flipOnly := augmentation{flip: true, saturationScale: 1}
	flipped := flipOnly.geometry(img, color.White)
	assert.Equal(t, img.At(15, 3), flipped.At(0, 3))

	// No hue shift nor saturation change keeps the colors (up to rounding).
	identity := augmentation{saturationScale: 1}
	same := identity.jitterColors(img)
	for _, pos := range [][2]int{{0, 0}, {5, 9}, {15, 15}} {
		want := img.NRGBAAt(pos[0], pos[1])
		got := same.NRGBAAt(pos[0], pos[1])
		assert.InDelta(t, want.R, got.R, 1)
		assert.InDelta(t, want.G, got.G, 1)
		assert.InDelta(t, want.B, got.B, 1)
	}
}

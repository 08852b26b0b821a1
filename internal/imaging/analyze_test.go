package imaging

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

// squareOnWhite is a white canvas with a centered dark square, the shape of
// a typical token or card scan.
func squareOnWhite(canvas, square int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, canvas, canvas))
	for y := 0; y < canvas; y++ {
		for x := 0; x < canvas; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}
	off := (canvas - square) / 2
	for y := off; y < off+square; y++ {
		for x := off; x < off+square; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 40, G: 40, B: 40, A: 255})
		}
	}
	return img
}

func checkerboard(size int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			v := uint8(0)
			if (x+y)%2 == 0 {
				v = 255
			}
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func TestAnalyze_UniformBackground(t *testing.T) {
	a := Analyze(squareOnWhite(100, 40))

	assert.Equal(t, 100, a.Width)
	assert.Equal(t, 100, a.Height)
	assert.False(t, a.HasAlpha)
	assert.True(t, a.UniformBackground, "pure white border has near-zero stddev")
	assert.False(t, a.ComplexEdges, "a single square has a sparse edge perimeter")
	assert.InDelta(t, 1.0, a.AspectRatio, 1e-9)
}

func TestAnalyze_DetectsAlpha(t *testing.T) {
	img := squareOnWhite(20, 8)
	img.SetNRGBA(0, 0, color.NRGBA{A: 0})

	a := Analyze(img)
	assert.True(t, a.HasAlpha)
}

func TestAnalyze_ComplexEdges(t *testing.T) {
	a := Analyze(checkerboard(40))

	assert.True(t, a.ComplexEdges, "checkerboard saturates the high-pass response")
	assert.Greater(t, a.EdgeDensity, complexEdgeDensity)
}

func TestAnalyze_NoisyBorderNotUniform(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 30, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 30; x++ {
			v := uint8(0)
			if (x*7+y*13)%3 == 0 {
				v = 200
			}
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}

	a := Analyze(img)
	assert.False(t, a.UniformBackground)
}

func TestAnalyze_EmptyImage(t *testing.T) {
	a := Analyze(image.NewNRGBA(image.Rect(0, 0, 0, 0)))
	assert.Equal(t, 0, a.Width)
	assert.False(t, a.UniformBackground)
}

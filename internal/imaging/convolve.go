package imaging

import (
	"image"
	"image/draw"
	"math"
)

// ToNRGBA converts any image to NRGBA, the working format of the pipeline.
func ToNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok {
		return n
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// Luminance returns the per-pixel luma of img as a flat float slice in [0,255].
func Luminance(img *image.NRGBA) []float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.NRGBAAt(b.Min.X+x, b.Min.Y+y)
			out[y*w+x] = 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
		}
	}
	return out
}

// Convolve3x3 applies a 3x3 kernel to a luma plane. Border pixels are left at
// zero.
func Convolve3x3(src []float64, w, h int, kernel [9]float64) []float64 {
	out := make([]float64, len(src))
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			var sum float64
			k := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					sum += src[(y+dy)*w+(x+dx)] * kernel[k]
					k++
				}
			}
			out[y*w+x] = sum
		}
	}
	return out
}

// HighPassKernel is the Laplacian used for edge density and sharpness.
var HighPassKernel = [9]float64{
	0, -1, 0,
	-1, 4, -1,
	0, -1, 0,
}

// SobelXKernel and SobelYKernel are the directional kernels used by the
// advanced edge method.
var (
	SobelXKernel = [9]float64{-1, 0, 1, -2, 0, 2, -1, 0, 1}
	SobelYKernel = [9]float64{-1, -2, -1, 0, 0, 0, 1, 2, 1}
)

// BoxBlurKernel is a cheap denoise pass.
var BoxBlurKernel = [9]float64{
	1.0 / 9, 1.0 / 9, 1.0 / 9,
	1.0 / 9, 1.0 / 9, 1.0 / 9,
	1.0 / 9, 1.0 / 9, 1.0 / 9,
}

// MeanStddev returns the mean and standard deviation of vals.
func MeanStddev(vals []float64) (mean, stddev float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))
	for _, v := range vals {
		d := v - mean
		stddev += d * d
	}
	return mean, math.Sqrt(stddev / float64(len(vals)))
}

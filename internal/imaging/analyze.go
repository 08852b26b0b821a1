package imaging

import (
	"image"
	"math"
)

// Analysis summarizes the traits that drive background-removal method
// selection.
type Analysis struct {
	Width  int
	Height int
	// HasAlpha is true when any pixel is not fully opaque.
	HasAlpha bool
	// BorderStddev is the average per-channel standard deviation of the
	// border pixels. Low values indicate a uniform background.
	BorderStddev float64
	UniformBackground bool
	// EdgeDensity is the fraction of pixels whose high-pass response exceeds
	// the edge threshold.
	EdgeDensity  float64
	ComplexEdges bool
	AspectRatio  float64
}

const (
	// uniformStddevThreshold bounds the border stddev below which the
	// background is considered uniform.
	uniformStddevThreshold = 12.0
	// edgeResponseThreshold is the high-pass magnitude that counts a pixel
	// as an edge pixel.
	edgeResponseThreshold = 40.0
	// complexEdgeDensity is the edge-pixel fraction above which an image is
	// treated as having complex edges.
	complexEdgeDensity = 0.12
)

// Analyze computes the selection traits for a decoded image.
func Analyze(img image.Image) Analysis {
	n := ToNRGBA(img)
	b := n.Bounds()
	w, h := b.Dx(), b.Dy()

	a := Analysis{Width: w, Height: h}
	if w == 0 || h == 0 {
		return a
	}
	a.AspectRatio = float64(w) / float64(h)

	a.HasAlpha = hasTransparentPixel(n)

	a.BorderStddev = borderStddev(n)
	a.UniformBackground = a.BorderStddev < uniformStddevThreshold

	luma := Luminance(n)
	edges := Convolve3x3(luma, w, h, HighPassKernel)
	edgeCount := 0
	for _, v := range edges {
		if math.Abs(v) > edgeResponseThreshold {
			edgeCount++
		}
	}
	a.EdgeDensity = float64(edgeCount) / float64(len(edges))
	a.ComplexEdges = a.EdgeDensity > complexEdgeDensity

	return a
}

func hasTransparentPixel(img *image.NRGBA) bool {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.NRGBAAt(x, y).A < 255 {
				return true
			}
		}
	}
	return false
}

// borderStddev averages the per-channel stddev over the one-pixel border.
func borderStddev(img *image.NRGBA) float64 {
	b := img.Bounds()
	var rs, gs, bs []float64
	collect := func(x, y int) {
		c := img.NRGBAAt(x, y)
		rs = append(rs, float64(c.R))
		gs = append(gs, float64(c.G))
		bs = append(bs, float64(c.B))
	}
	for x := b.Min.X; x < b.Max.X; x++ {
		collect(x, b.Min.Y)
		collect(x, b.Max.Y-1)
	}
	for y := b.Min.Y + 1; y < b.Max.Y-1; y++ {
		collect(b.Min.X, y)
		collect(b.Max.X-1, y)
	}

	_, sr := MeanStddev(rs)
	_, sg := MeanStddev(gs)
	_, sb := MeanStddev(bs)
	return (sr + sg + sb) / 3
}

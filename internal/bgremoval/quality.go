package bgremoval

import (
	"image"

	"github.com/tabletopforge/component-extractor/internal/imaging"
)

// qualityWeights are the configured blend of the three sub-scores.
type qualityWeights struct {
	edgeSharpness float64
	cleanliness   float64
	preservation  float64
}

// scoreQuality estimates how well a removal attempt isolated the component.
// Always in [0,1].
func scoreQuality(out *image.NRGBA, w qualityWeights) float64 {
	q := w.edgeSharpness*edgeSharpness(out) +
		w.cleanliness*backgroundCleanliness(out) +
		w.preservation*componentPreservation(out)
	if q < 0 {
		return 0
	}
	if q > 1 {
		return 1
	}
	return q
}

// edgeSharpness is the normalized variance of the high-pass filtered image.
func edgeSharpness(img *image.NRGBA) float64 {
	b := img.Bounds()
	lum := imaging.Luminance(img)
	edges := imaging.Convolve3x3(lum, b.Dx(), b.Dy(), imaging.HighPassKernel)
	_, stddev := imaging.MeanStddev(edges)

	s := stddev / 32.0
	if s > 1 {
		s = 1
	}
	return s
}

// backgroundCleanliness scores the fraction of near-transparent pixels.
// 20-60% removed is optimal; almost nothing or almost everything removed is
// penalized.
func backgroundCleanliness(img *image.NRGBA) float64 {
	b := img.Bounds()
	total := b.Dx() * b.Dy()
	if total == 0 {
		return 0
	}

	transparent := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.NRGBAAt(x, y).A < 26 {
				transparent++
			}
		}
	}
	frac := float64(transparent) / float64(total)

	switch {
	case frac >= 0.2 && frac <= 0.6:
		return 1.0
	case frac < 0.1:
		return frac / 0.1 * 0.3
	case frac < 0.2:
		return 0.3 + (frac-0.1)/0.1*0.7
	case frac <= 0.8:
		return 1.0 - (frac-0.6)/0.2*0.5
	default:
		s := 0.5 - (frac-0.8)/0.2*0.4
		if s < 0 {
			return 0
		}
		return s
	}
}

// componentPreservation rewards keeping a substantial opaque region with a
// sane aspect ratio.
func componentPreservation(img *image.NRGBA) float64 {
	b := img.Bounds()
	total := b.Dx() * b.Dy()
	if total == 0 {
		return 0
	}

	opaque := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.NRGBAAt(x, y).A >= 26 {
				opaque++
			}
		}
	}

	areaScore := float64(opaque) / float64(total) / 0.3
	if areaScore > 1 {
		areaScore = 1
	}

	aspectScore := 0.25
	if b.Dy() > 0 {
		aspect := float64(b.Dx()) / float64(b.Dy())
		if aspect >= 0.2 && aspect <= 5.0 {
			aspectScore = 1.0
		}
	}

	return 0.6*areaScore + 0.4*aspectScore
}

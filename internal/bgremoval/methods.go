package bgremoval

import (
	"image"
	"image/color"
	"math"

	"github.com/tabletopforge/component-extractor/internal/imaging"
)

// MethodKind identifies a removal strategy.
type MethodKind string

const (
	MethodColorThreshold MethodKind = "COLOR_THRESHOLD"
	MethodEdgeBasic      MethodKind = "EDGE_DETECTION_BASIC"
	MethodEdgeAdvanced   MethodKind = "EDGE_DETECTION_ADVANCED"
	MethodAISegmentation MethodKind = "AI_SEGMENTATION"
	MethodFallback       MethodKind = "FALLBACK"
)

// method is the closed set of removal strategies. Apply returns one or more
// trial outputs; the engine scores them all and keeps the best.
type method interface {
	Kind() MethodKind
	Apply(img *image.NRGBA) []*image.NRGBA
}

// selectMethod is the deterministic decision table driven by image analysis.
func selectMethod(a imaging.Analysis, bgThreshold uint8) method {
	switch {
	case a.HasAlpha:
		return &aiSegmentation{}
	case a.UniformBackground:
		return &colorThreshold{base: bgThreshold}
	case a.ComplexEdges:
		return &edgeAdvanced{}
	default:
		return &edgeBasic{}
	}
}

// colorThreshold clears pixels whose luminance meets a threshold. Several
// thresholds around the configured base are trialed.
type colorThreshold struct {
	base uint8
}

func (m *colorThreshold) Kind() MethodKind { return MethodColorThreshold }

func (m *colorThreshold) Apply(img *image.NRGBA) []*image.NRGBA {
	trials := []int{int(m.base), int(m.base) - 10, int(m.base) - 20, int(m.base) + 5}
	outs := make([]*image.NRGBA, 0, len(trials))
	for _, t := range trials {
		if t < 128 || t > 255 {
			continue
		}
		out := cloneNRGBA(img)
		b := out.Bounds()
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				c := out.NRGBAAt(x, y)
				if luma(c) >= float64(t) {
					c.A = 0
					out.SetNRGBA(x, y, c)
				}
			}
		}
		outs = append(outs, out)
	}
	return outs
}

// aiSegmentation handles images that already carry transparency: it trials
// several candidate background colors and clears pixels close to each,
// keeping existing alpha intact.
type aiSegmentation struct{}

func (m *aiSegmentation) Kind() MethodKind { return MethodAISegmentation }

func (m *aiSegmentation) Apply(img *image.NRGBA) []*image.NRGBA {
	candidates := []color.NRGBA{
		{R: 255, G: 255, B: 255, A: 255},
		{R: 0, G: 0, B: 0, A: 255},
		cornerColor(img),
	}
	outs := make([]*image.NRGBA, 0, len(candidates))
	for _, bg := range candidates {
		out := cloneNRGBA(img)
		b := out.Bounds()
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				c := out.NRGBAAt(x, y)
				if c.A == 0 {
					continue
				}
				if colorDistance(c, bg) < 30 {
					c.A = 0
					out.SetNRGBA(x, y, c)
				}
			}
		}
		outs = append(outs, out)
	}
	return outs
}

// edgeBasic masks with a simple high-pass kernel: pixels with no edge
// response whose luminance matches the border estimate are background.
type edgeBasic struct{}

func (m *edgeBasic) Kind() MethodKind { return MethodEdgeBasic }

func (m *edgeBasic) Apply(img *image.NRGBA) []*image.NRGBA {
	lum := imaging.Luminance(img)
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	edges := imaging.Convolve3x3(lum, w, h, imaging.HighPassKernel)
	return []*image.NRGBA{maskBackground(img, lum, edges, 40, 35)}
}

// edgeAdvanced denoises with a box blur, then applies directional kernels for
// a stronger edge estimate.
type edgeAdvanced struct{}

func (m *edgeAdvanced) Kind() MethodKind { return MethodEdgeAdvanced }

func (m *edgeAdvanced) Apply(img *image.NRGBA) []*image.NRGBA {
	lum := imaging.Luminance(img)
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	smooth := imaging.Convolve3x3(lum, w, h, imaging.BoxBlurKernel)
	gx := imaging.Convolve3x3(smooth, w, h, imaging.SobelXKernel)
	gy := imaging.Convolve3x3(smooth, w, h, imaging.SobelYKernel)

	mag := make([]float64, len(smooth))
	for i := range mag {
		mag[i] = math.Hypot(gx[i], gy[i])
	}
	return []*image.NRGBA{maskBackground(img, lum, mag, 60, 30)}
}

// fallbackMethod is the unconditional conservative last resort: it only
// clears pixels very close to the border color, so the pipeline always
// terminates with some output.
type fallbackMethod struct{}

func (m *fallbackMethod) Kind() MethodKind { return MethodFallback }

func (m *fallbackMethod) Apply(img *image.NRGBA) []*image.NRGBA {
	bg := cornerColor(img)
	out := cloneNRGBA(img)
	b := out.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := out.NRGBAAt(x, y)
			if colorDistance(c, bg) < 8 {
				c.A = 0
				out.SetNRGBA(x, y, c)
			}
		}
	}
	return []*image.NRGBA{out}
}

// maskBackground clears pixels with edge response below edgeTol whose
// luminance is within lumaTol of the border mean.
func maskBackground(img *image.NRGBA, lum, edges []float64, edgeTol, lumaTol float64) *image.NRGBA {
	out := cloneNRGBA(img)
	b := out.Bounds()
	w := b.Dx()

	bgLuma := borderMeanLuma(lum, w, b.Dy())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if math.Abs(edges[i]) < edgeTol && math.Abs(lum[i]-bgLuma) < lumaTol {
				c := out.NRGBAAt(b.Min.X+x, b.Min.Y+y)
				c.A = 0
				out.SetNRGBA(b.Min.X+x, b.Min.Y+y, c)
			}
		}
	}
	return out
}

func borderMeanLuma(lum []float64, w, h int) float64 {
	var sum float64
	var n int
	for x := 0; x < w; x++ {
		sum += lum[x] + lum[(h-1)*w+x]
		n += 2
	}
	for y := 1; y < h-1; y++ {
		sum += lum[y*w] + lum[y*w+w-1]
		n += 2
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func cornerColor(img *image.NRGBA) color.NRGBA {
	b := img.Bounds()
	corners := []color.NRGBA{
		img.NRGBAAt(b.Min.X, b.Min.Y),
		img.NRGBAAt(b.Max.X-1, b.Min.Y),
		img.NRGBAAt(b.Min.X, b.Max.Y-1),
		img.NRGBAAt(b.Max.X-1, b.Max.Y-1),
	}
	var r, g, bl int
	for _, c := range corners {
		r += int(c.R)
		g += int(c.G)
		bl += int(c.B)
	}
	return color.NRGBA{R: uint8(r / 4), G: uint8(g / 4), B: uint8(bl / 4), A: 255}
}

func colorDistance(a, b color.NRGBA) float64 {
	dr := float64(a.R) - float64(b.R)
	dg := float64(a.G) - float64(b.G)
	db := float64(a.B) - float64(b.B)
	return math.Sqrt(dr*dr + dg*dg + db*db)
}

func luma(c color.NRGBA) float64 {
	return 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
}

func cloneNRGBA(img *image.NRGBA) *image.NRGBA {
	out := image.NewNRGBA(img.Bounds())
	copy(out.Pix, img.Pix)
	return out
}

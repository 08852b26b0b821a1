// Package imaging provides the raster primitives the pipeline needs: format
// probing, lossless normalization to PNG, and the pixel analysis used by
// background removal.
package imaging

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// Info describes a raster file without fully decoding it.
type Info struct {
	Width     int
	Height    int
	SizeBytes int64
	Format    string // normalized extension without dot: png, jpeg, ppm, ...
	HasAlpha  bool
}

// pnmExts are the netpbm extensions the stdlib image registry does not cover.
var pnmExts = map[string]bool{"ppm": true, "pgm": true, "pbm": true, "pnm": true}

// Probe reads enough of the file to report dimensions, format and alpha
// capability.
func Probe(path string) (*Info, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat image: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	ext := NormalizeFormat(path)

	if pnmExts[ext] {
		img, err := DecodePNM(f)
		if err != nil {
			return nil, err
		}
		b := img.Bounds()
		return &Info{
			Width:     b.Dx(),
			Height:    b.Dy(),
			SizeBytes: st.Size(),
			Format:    ext,
			HasAlpha:  false,
		}, nil
	}

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s config: %w", ext, err)
	}

	return &Info{
		Width:     cfg.Width,
		Height:    cfg.Height,
		SizeBytes: st.Size(),
		Format:    format,
		HasAlpha:  modelHasAlpha(cfg.ColorModel),
	}, nil
}

// NormalizeFormat returns the lowercase extension of path without the dot,
// with jpg folded into jpeg.
func NormalizeFormat(path string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext == "jpg" {
		ext = "jpeg"
	}
	if ext == "tif" {
		ext = "tiff"
	}
	return ext
}

func modelHasAlpha(m color.Model) bool {
	// PNG truecolor-with-alpha decodes as NRGBA; opaque truecolor as RGBA.
	switch m {
	case color.NRGBAModel, color.NRGBA64Model, color.AlphaModel, color.Alpha16Model:
		return true
	}
	return false
}

package imaging

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/tabletopforge/component-extractor/internal/executor"
	"github.com/tabletopforge/component-extractor/internal/observability"
)

// Normalizer converts non-web-safe raster formats to PNG. Conversion failure
// is never fatal; callers keep the original file.
type Normalizer struct {
	exec        *executor.Executor
	convertTool string
	logger      *observability.Logger
}

// NewNormalizer creates a Normalizer. convertTool is the allowlisted
// ImageMagick entry point used for formats Go cannot decode (JP2).
func NewNormalizer(exec *executor.Executor, convertTool string, logger *observability.Logger) *Normalizer {
	return &Normalizer{exec: exec, convertTool: convertTool, logger: logger}
}

// needsConversion lists the formats the web cannot display.
var needsConversion = map[string]bool{
	"ppm": true, "pgm": true, "pbm": true, "pnm": true,
	"tiff": true, "bmp": true,
	"jp2": true, "jpx": true, "jpf": true,
}

// NeedsConversion reports whether the file's format is non-web-safe.
func NeedsConversion(path string) bool {
	return needsConversion[NormalizeFormat(path)]
}

// Normalize converts path to a PNG sibling file inside workDir and returns
// the new path. If the format is already web-safe, or conversion fails, the
// original path is returned with converted=false.
func (n *Normalizer) Normalize(ctx context.Context, path, workDir string) (outPath string, converted bool) {
	format := NormalizeFormat(path)
	if !needsConversion[format] {
		return path, false
	}

	target := strings.TrimSuffix(path, filepath.Ext(path)) + ".png"

	var err error
	switch format {
	case "ppm", "pgm", "pbm", "pnm", "tiff", "bmp":
		err = n.convertInProcess(path, target, format)
	default:
		// JP2 family: no pack decoder, route through ImageMagick.
		err = n.convertWithTool(ctx, path, target, workDir)
	}

	if err != nil {
		n.logger.Warn().Err(err).Str("path", path).Str("format", format).
			Msg("Format conversion failed, keeping original")
		os.Remove(target)
		return path, false
	}

	os.Remove(path)
	return target, true
}

func (n *Normalizer) convertInProcess(src, dst, format string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer f.Close()

	var img image.Image
	switch format {
	case "tiff":
		img, err = tiff.Decode(f)
	case "bmp":
		img, err = bmp.Decode(f)
	default:
		img, err = DecodePNM(f)
	}
	if err != nil {
		return fmt.Errorf("decode %s: %w", format, err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if err := png.Encode(out, img); err != nil {
		out.Close()
		return fmt.Errorf("encode png: %w", err)
	}
	return out.Close()
}

func (n *Normalizer) convertWithTool(ctx context.Context, src, dst, workDir string) error {
	srcRel, err := filepath.Rel(workDir, src)
	if err != nil {
		return fmt.Errorf("relativize %s: %w", src, err)
	}
	dstRel, err := filepath.Rel(workDir, dst)
	if err != nil {
		return fmt.Errorf("relativize %s: %w", dst, err)
	}

	if !n.exec.Available(n.convertTool) {
		return fmt.Errorf("convert tool %q not available", n.convertTool)
	}

	_, err = n.exec.Execute(ctx, executor.Invocation{
		Command: n.convertTool,
		Args:    []string{srcRel, dstRel},
		WorkDir: workDir,
	})
	if err != nil {
		return fmt.Errorf("convert via %s: %w", n.convertTool, err)
	}
	return nil
}

// Package bgremoval implements the adaptive background-removal engine:
// analyze, select a strategy, attempt, score, retry with backoff, and fall
// back conservatively so every image terminates with some output.
package bgremoval

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "image/jpeg"

	"github.com/tabletopforge/component-extractor/internal/config"
	"github.com/tabletopforge/component-extractor/internal/imaging"
	"github.com/tabletopforge/component-extractor/internal/observability"
)

// Attempt is the terminal record of processing one image.
type Attempt struct {
	Method        MethodKind `json:"method"`
	Quality       float64    `json:"quality"`
	ComponentType string     `json:"componentType"`
	OutputPath    string     `json:"outputPath"`
	Retries       int        `json:"retries"`
	FallbackUsed  bool       `json:"fallbackUsed"`
}

// Engine runs the removal state machine. All tuning knobs come from
// configuration.
type Engine struct {
	cfg    config.RemovalConfig
	logger *observability.Logger
}

// NewEngine creates an Engine.
func NewEngine(cfg config.RemovalConfig, logger *observability.Logger) *Engine {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if len(cfg.RetryBackoff) == 0 {
		cfg.RetryBackoff = []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}
	}
	if cfg.DefaultQualityThreshold <= 0 {
		cfg.DefaultQualityThreshold = 0.75
	}
	return &Engine{cfg: cfg, logger: logger}
}

// threshold returns the acceptance threshold for a component type.
func (e *Engine) threshold(componentType string) float64 {
	if t, ok := e.cfg.QualityThresholds[componentType]; ok {
		return t
	}
	return e.cfg.DefaultQualityThreshold
}

// Process removes the background of the image at path, writing the result as
// a PNG sibling. The attempt always terminates with an output: quality below
// the threshold after all retries triggers the conservative fallback method.
func (e *Engine) Process(ctx context.Context, path, componentType string, bgThreshold uint8) (*Attempt, error) {
	img, err := loadNRGBA(path)
	if err != nil {
		return nil, fmt.Errorf("load image: %w", err)
	}

	// Analyzed -> MethodSelected
	analysis := imaging.Analyze(img)
	m := selectMethod(analysis, bgThreshold)
	accept := e.threshold(componentType)
	weights := qualityWeights{
		edgeSharpness: e.cfg.EdgeSharpnessWeight,
		cleanliness:   e.cfg.CleanlinessWeight,
		preservation:  e.cfg.PreservationWeight,
	}

	log := e.logger.WithOperation("bg_removal")

	// Attempted -> {Accepted | Retrying}
	var best *image.NRGBA
	bestQuality := -1.0
	retries := 0
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			retries++
			if err := e.backoff(ctx, attempt-1); err != nil {
				return nil, err
			}
		}

		for _, out := range m.Apply(img) {
			if q := scoreQuality(out, weights); q > bestQuality {
				best, bestQuality = out, q
			}
		}

		if bestQuality >= accept {
			break
		}
		log.Debug().Str("method", string(m.Kind())).Float64("quality", bestQuality).
			Float64("threshold", accept).Int("attempt", attempt).
			Msg("Quality below threshold")
	}

	result := &Attempt{
		Method:        m.Kind(),
		Quality:       bestQuality,
		ComponentType: componentType,
		Retries:       retries,
	}

	// Still below threshold: FallbackUsed. The conservative method's output
	// is used unconditionally so the pipeline always produces something.
	if bestQuality < accept {
		fb := (&fallbackMethod{}).Apply(img)[0]
		best = fb
		result.Method = MethodFallback
		result.Quality = scoreQuality(fb, weights)
		result.FallbackUsed = true
		log.Debug().Float64("quality", result.Quality).Msg("Using conservative fallback")
	}

	outPath := derivedPath(path)
	if err := writePNG(outPath, best); err != nil {
		return nil, err
	}
	result.OutputPath = outPath
	return result, nil
}

// backoff sleeps for the configured interval, honoring cancellation.
func (e *Engine) backoff(ctx context.Context, n int) error {
	if n >= len(e.cfg.RetryBackoff) {
		n = len(e.cfg.RetryBackoff) - 1
	}
	d := e.cfg.RetryBackoff[n]
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func derivedPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + "_nobg.png"
}

func loadNRGBA(path string) (*image.NRGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var img image.Image
	if ext := imaging.NormalizeFormat(path); ext == "ppm" || ext == "pgm" || ext == "pbm" {
		img, err = imaging.DecodePNM(f)
	} else {
		img, _, err = image.Decode(f)
	}
	if err != nil {
		return nil, err
	}
	return imaging.ToNRGBA(img), nil
}

func writePNG(path string, img *image.NRGBA) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode png: %w", err)
	}
	return f.Close()
}

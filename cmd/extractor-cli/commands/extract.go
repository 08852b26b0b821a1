package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tabletopforge/component-extractor/cmd/extractor-cli/ui"
	"github.com/tabletopforge/component-extractor/pkg/pipeline"
)

var (
	extractDPI         int
	extractNoTrim      bool
	extractNoConvert   bool
	extractBgRemove    bool
	extractBgThreshold int
	extractMinWidth    int
	extractMinHeight   int
	extractMaxAspect   float64
	extractBoostPages  []int
	extractBoostFactor float64
	extractTopN        int
	extractTimeout     time.Duration
)

var extractCmd = &cobra.Command{
	Use:   "extract <pdf-or-url>",
	Short: "Extract component images from a rulebook PDF",
	Long: `Extract candidate component images from a single rulebook PDF,
given as a local path or an allowlisted URL.`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().IntVar(&extractDPI, "dpi", 0, "snapshot render DPI (default from config)")
	extractCmd.Flags().BoolVar(&extractNoTrim, "no-trim", false, "skip uniform border trimming")
	extractCmd.Flags().BoolVar(&extractNoConvert, "no-convert", false, "keep non-web-safe formats as extracted")
	extractCmd.Flags().BoolVar(&extractBgRemove, "bg-remove", false, "remove image backgrounds")
	extractCmd.Flags().IntVar(&extractBgThreshold, "bg-threshold", 0, "background luminance threshold (1-255)")
	extractCmd.Flags().IntVar(&extractMinWidth, "min-width", 0, "drop candidates narrower than this")
	extractCmd.Flags().IntVar(&extractMinHeight, "min-height", 0, "drop candidates shorter than this")
	extractCmd.Flags().Float64Var(&extractMaxAspect, "max-aspect", 0, "drop candidates with a higher aspect ratio")
	extractCmd.Flags().IntSliceVar(&extractBoostPages, "boost-pages", nil, "page numbers to boost in ranking")
	extractCmd.Flags().Float64Var(&extractBoostFactor, "boost-factor", 0, "score multiplier for boosted pages")
	extractCmd.Flags().IntVar(&extractTopN, "top-n", 0, "maximum number of results")
	extractCmd.Flags().DurationVar(&extractTimeout, "timeout", 10*time.Minute, "overall extraction timeout")
	rootCmd.AddCommand(extractCmd)
}

func extractOptions() pipeline.Options {
	opts := pipeline.Options{
		DPI:         extractDPI,
		BgRemove:    extractBgRemove,
		BgThreshold: extractBgThreshold,
		MinWidth:    extractMinWidth,
		MinHeight:   extractMinHeight,
		MaxAspect:   extractMaxAspect,
		BoostPages:  extractBoostPages,
		BoostFactor: extractBoostFactor,
		TopN:        extractTopN,
	}
	if extractNoTrim {
		f := false
		opts.Trim = &f
	}
	if extractNoConvert {
		f := false
		opts.ConvertUnsupported = &f
	}
	return opts
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), extractTimeout)
	defer cancel()

	p, _, err := newPipeline()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ui.Init(noColor)

	var spin *ui.Spinner
	if !jsonMode {
		ui.Section("Component Extraction")
		ui.Info("Source: %s", args[0])
		spin = ui.NewSpinner("Extracting component images...")
		spin.Start()
	}

	result := p.Extract(ctx, args[0], extractOptions())

	if spin != nil {
		spin.Stop()
	}

	if jsonMode {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	return displayResult(result)
}

func displayResult(result *pipeline.Result) error {
	if result.Error != "" {
		ui.Error("Extraction failed: %s", result.Error)
		if result.Details != "" {
			ui.Info("%s", result.Details)
		}
		return fmt.Errorf("%s", result.Error)
	}

	if result.ToolsUnavailable {
		ui.Warning("No extraction tools available on this host (install poppler-utils)")
		return nil
	}

	ui.Success("Extracted %d component images from %d pages (%s, cache %s, %dms)",
		result.CandidateCount, result.Pages, result.Source, result.CacheStatus, result.DurationMs)

	if len(result.Images) == 0 {
		return nil
	}

	rows := make([][]string, 0, len(result.Images))
	for _, img := range result.Images {
		page := "-"
		if img.Page != nil {
			page = strconv.Itoa(*img.Page)
		}
		rows = append(rows, []string{
			img.Path,
			fmt.Sprintf("%dx%d", img.Width, img.Height),
			page,
			string(img.Source),
			fmt.Sprintf("%.2f", img.Score),
		})
	}
	ui.Table([]string{"PATH", "SIZE", "PAGE", "SOURCE", "SCORE"}, rows)
	return nil
}

package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tabletopforge/component-extractor/cmd/extractor-cli/ui"
	"github.com/tabletopforge/component-extractor/pkg/pipeline"
)

var warmTimeout time.Duration

var warmCmd = &cobra.Command{
	Use:   "warm <dir-or-pdf>...",
	Short: "Pre-populate the result cache for a set of rulebooks",
	Long: `Run extraction for each rulebook so later requests hit the cache.
Only useful with a shared cache driver such as redis; the in-memory cache
does not outlive the process.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWarm,
}

func init() {
	warmCmd.Flags().DurationVar(&warmTimeout, "timeout", 30*time.Minute, "overall warm timeout")
	rootCmd.AddCommand(warmCmd)
}

func runWarm(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), warmTimeout)
	defer cancel()

	sources, err := expandSources(args)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return fmt.Errorf("no PDF files found in %v", args)
	}

	p, cfg, err := newPipeline()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ui.Init(noColor)
	if cfg.Cache.Driver != "redis" {
		ui.Warning("Cache driver is %q; warmed entries will not outlive this process", cfg.Cache.Driver)
	}

	bar := ui.NewProgressBar(int64(len(sources)), "warming")
	stored, hits, failed := 0, 0, 0
	for _, src := range sources {
		res := p.Extract(ctx, src, extractOptions())
		switch {
		case res.Error != "":
			failed++
		case res.CacheStatus == pipeline.CacheHit:
			hits++
		default:
			stored++
		}
		bar.Add(1)
	}
	bar.Finish()

	ui.Success("Warmed %d rulebooks (%d stored, %d already cached, %d failed)",
		len(sources), stored, hits, failed)
	if failed > 0 {
		return fmt.Errorf("%d rulebooks failed", failed)
	}
	return nil
}

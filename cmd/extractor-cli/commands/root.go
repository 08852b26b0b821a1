// Package commands implements the extractor CLI commands.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tabletopforge/component-extractor/internal/cache"
	"github.com/tabletopforge/component-extractor/internal/config"
	"github.com/tabletopforge/component-extractor/internal/observability"
	"github.com/tabletopforge/component-extractor/pkg/pipeline"
)

var (
	cfgFile  string
	verbose  bool
	noColor  bool
	jsonMode bool
)

var rootCmd = &cobra.Command{
	Use:   "extractor",
	Short: "Board-game component extractor - pull component images from rulebook PDFs",
	Long: `The extractor pulls candidate component images (cards, tokens, boards,
dice, figures) out of board-game rulebook PDFs. It extracts embedded raster
objects where the PDF has them and falls back to page snapshots where it
does not, then filters, ranks, and optionally removes backgrounds.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVar(&jsonMode, "json", false, "emit results as JSON")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// newPipeline builds the pipeline from the configured file and environment.
func newPipeline() (*pipeline.Pipeline, *config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}

	level := cfg.Observability.LogLevel
	if !verbose {
		// Keep tool chatter out of interactive output.
		level = "warn"
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:       level,
		Format:      "console",
		ServiceName: cfg.Observability.ServiceName,
	})

	var client cache.Client
	if cfg.Cache.Driver == "redis" {
		client, err = cache.NewRedisClient(cfg.Cache.Redis)
		if err != nil {
			logger.Warn().Err(err).Msg("Redis unavailable, using memory cache")
			client = cache.NewMemoryClient(cfg.Cache.MaxEntries)
		}
	} else {
		client = cache.NewMemoryClient(cfg.Cache.MaxEntries)
	}

	return pipeline.New(cfg, logger, client), cfg, nil
}

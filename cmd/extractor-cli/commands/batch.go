package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/tabletopforge/component-extractor/cmd/extractor-cli/ui"
	"github.com/tabletopforge/component-extractor/pkg/pipeline"
)

var (
	batchWorkers int
	batchTimeout time.Duration
)

var batchCmd = &cobra.Command{
	Use:   "batch <dir-or-pdf>...",
	Short: "Extract component images from multiple rulebook PDFs",
	Long: `Run extraction over several rulebooks. Directory arguments are expanded
to the PDF files directly inside them. A shared pipeline keeps the tool
concurrency ceiling global across all rulebooks.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().IntVar(&batchWorkers, "workers", 2, "rulebooks processed in parallel")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 30*time.Minute, "overall batch timeout")
	rootCmd.AddCommand(batchCmd)
}

type batchOutcome struct {
	Source string           `json:"source"`
	Result *pipeline.Result `json:"result"`
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	sources, err := expandSources(args)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return fmt.Errorf("no PDF files found in %v", args)
	}

	p, _, err := newPipeline()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ui.Init(noColor)

	workers := batchWorkers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(sources) {
		workers = len(sources)
	}

	var progress *ui.BatchProgress
	var bar interface{ Increment() }
	if !jsonMode {
		ui.Section("Batch Extraction")
		ui.Info("%d rulebooks, %d workers", len(sources), workers)
		progress = ui.NewBatchProgress()
		bar = progress.AddBar("rulebooks", int64(len(sources)))
	}

	workChan := make(chan int, len(sources))
	for i := range sources {
		workChan <- i
	}
	close(workChan)

	outcomes := make([]batchOutcome, len(sources))
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range workChan {
				res := p.Extract(ctx, sources[i], extractOptions())
				outcomes[i] = batchOutcome{Source: sources[i], Result: res}
				if bar != nil {
					bar.Increment()
				}
			}
		}()
	}
	wg.Wait()

	if progress != nil {
		progress.Wait()
	}

	if jsonMode {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(outcomes)
	}

	failed := 0
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		status := "ok"
		if o.Result.Error != "" {
			status = o.Result.Error
			failed++
		} else if o.Result.ToolsUnavailable {
			status = "tools unavailable"
		}
		rows = append(rows, []string{
			filepath.Base(o.Source),
			fmt.Sprintf("%d", o.Result.CandidateCount),
			o.Result.CacheStatus,
			status,
		})
	}
	ui.Table([]string{"RULEBOOK", "IMAGES", "CACHE", "STATUS"}, rows)

	if failed > 0 {
		ui.Warning("%d of %d rulebooks failed", failed, len(outcomes))
		return fmt.Errorf("%d rulebooks failed", failed)
	}
	ui.Success("Processed %d rulebooks", len(outcomes))
	return nil
}

// expandSources flattens directory arguments into the PDFs directly inside
// them; file and URL arguments pass through.
func expandSources(args []string) ([]string, error) {
	var sources []string
	for _, arg := range args {
		st, err := os.Stat(arg)
		if err != nil || !st.IsDir() {
			sources = append(sources, arg)
			continue
		}

		matches, err := filepath.Glob(filepath.Join(arg, "*.pdf"))
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", arg, err)
		}
		sources = append(sources, matches...)
	}
	return sources, nil
}

package ui

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// BatchProgress renders per-file progress for batch runs using a multi-bar
// display.
type BatchProgress struct {
	progress *mpb.Progress
}

// NewBatchProgress creates a multi-bar progress display.
func NewBatchProgress() *BatchProgress {
	return &BatchProgress{progress: mpb.New(mpb.WithWidth(64))}
}

// AddBar registers a bar for one unit of batch work.
func (b *BatchProgress) AddBar(name string, total int64) *mpb.Bar {
	return b.progress.AddBar(total,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DSyncSpaceR}),
			decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.Percentage(decor.WC{W: 5}),
			decor.OnComplete(decor.Elapsed(decor.ET_STYLE_GO, decor.WC{W: 12}), " done"),
		),
	)
}

// Wait blocks until all bars complete.
func (b *BatchProgress) Wait() {
	b.progress.Wait()
}

// Table displays data in a formatted table.
func Table(headers []string, rows [][]string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, strings.Join(headers, "\t"))

	separators := make([]string, len(headers))
	for i, h := range headers {
		separators[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(w, strings.Join(separators, "\t"))

	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	w.Flush()
}

// Section displays a section header.
func Section(title string) {
	fmt.Fprintf(os.Stdout, "\n%s\n", title)
	fmt.Fprintf(os.Stdout, "%s\n\n", strings.Repeat("=", len(title)))
}

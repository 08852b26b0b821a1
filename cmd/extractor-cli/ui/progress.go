// Package ui provides user interface components for the extractor CLI.
package ui

import (
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
)

var noColorFlag bool

// Init applies global UI settings.
func Init(noColor bool) {
	noColorFlag = noColor
	if noColor {
		color.NoColor = true
	}
}

// Spinner wraps a spinner instance for indeterminate progress display.
type Spinner struct {
	spinner *spinner.Spinner
}

// NewSpinner creates a new spinner with the given message.
func NewSpinner(message string) *Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message
	s.Writer = os.Stderr
	return &Spinner{spinner: s}
}

// Start starts the spinner animation.
func (s *Spinner) Start() {
	s.spinner.Start()
}

// Stop stops the spinner animation and clears the line.
func (s *Spinner) Stop() {
	s.spinner.Stop()
}

// UpdateMessage updates the spinner's message.
func (s *Spinner) UpdateMessage(message string) {
	s.spinner.Suffix = " " + message
}

// ProgressBar wraps a progressbar instance for deterministic progress display.
type ProgressBar struct {
	bar *progressbar.ProgressBar
}

// NewProgressBar creates a new progress bar with the given total and description.
func NewProgressBar(total int64, description string) *ProgressBar {
	bar := progressbar.NewOptions64(
		total,
		progressbar.OptionSetWidth(50),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
	return &ProgressBar{bar: bar}
}

// Add increments the progress bar.
func (p *ProgressBar) Add(n int) {
	_ = p.bar.Add(n)
}

// Finish completes the progress bar.
func (p *ProgressBar) Finish() {
	_ = p.bar.Finish()
}

// Success displays a success message.
func Success(format string, args ...interface{}) {
	if noColorFlag {
		fmt.Printf("✓ %s\n", fmt.Sprintf(format, args...))
		return
	}
	color.New(color.FgGreen).Printf("✓ %s\n", fmt.Sprintf(format, args...))
}

// Error displays an error message to stderr.
func Error(format string, args ...interface{}) {
	if noColorFlag {
		fmt.Fprintf(os.Stderr, "✗ %s\n", fmt.Sprintf(format, args...))
		return
	}
	color.New(color.FgRed).Fprintf(os.Stderr, "✗ %s\n", fmt.Sprintf(format, args...))
}

// Warning displays a warning message.
func Warning(format string, args ...interface{}) {
	if noColorFlag {
		fmt.Printf("⚠ %s\n", fmt.Sprintf(format, args...))
		return
	}
	color.New(color.FgYellow).Printf("⚠ %s\n", fmt.Sprintf(format, args...))
}

// Info displays an informational message.
func Info(format string, args ...interface{}) {
	if noColorFlag {
		fmt.Printf("ℹ %s\n", fmt.Sprintf(format, args...))
		return
	}
	color.New(color.FgCyan).Printf("ℹ %s\n", fmt.Sprintf(format, args...))
}

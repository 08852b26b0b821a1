package bgremoval

import (
	"context"
	"fmt"
	"sync"

	"github.com/tabletopforge/component-extractor/internal/imaging"
)

// BatchItem is one image queued for background removal.
type BatchItem struct {
	Path          string
	ComponentType string
	BgThreshold   uint8
}

// BatchResult is the per-image outcome. Exactly one of Attempt, SkipReason,
// or Err is meaningful; skipped and failed images are reported, never
// silently dropped.
type BatchResult struct {
	Path       string   `json:"path"`
	Attempt    *Attempt `json:"attempt,omitempty"`
	Skipped    bool     `json:"skipped"`
	SkipReason string   `json:"skipReason,omitempty"`
	Err        error    `json:"-"`
}

// ProcessBatch runs removal over a component list with bounded parallelism.
// Per-image failures are isolated. Images failing the minimum-area or aspect
// pre-filter are skipped with a stated reason.
func (e *Engine) ProcessBatch(ctx context.Context, items []BatchItem) []BatchResult {
	if len(items) == 0 {
		return nil
	}

	workers := e.cfg.BatchConcurrency
	if workers <= 0 {
		workers = 3
	}
	if workers > len(items) {
		workers = len(items)
	}

	type workItem struct {
		index int
		item  BatchItem
	}

	workChan := make(chan workItem, len(items))
	for i, item := range items {
		workChan <- workItem{index: i, item: item}
	}
	close(workChan)

	results := make([]BatchResult, len(items))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for w := range workChan {
				res := e.processOne(ctx, w.item)
				mu.Lock()
				results[w.index] = res
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	return results
}

func (e *Engine) processOne(ctx context.Context, item BatchItem) BatchResult {
	res := BatchResult{Path: item.Path}

	if reason := e.prefilter(item.Path); reason != "" {
		res.Skipped = true
		res.SkipReason = reason
		return res
	}

	attempt, err := e.Process(ctx, item.Path, item.ComponentType, item.BgThreshold)
	if err != nil {
		res.Err = err
		return res
	}
	res.Attempt = attempt
	return res
}

// prefilter returns a non-empty reason when the image should not be
// processed at all.
func (e *Engine) prefilter(path string) string {
	info, err := imaging.Probe(path)
	if err != nil {
		return fmt.Sprintf("unreadable image: %v", err)
	}

	if e.cfg.MinArea > 0 && info.Width*info.Height < e.cfg.MinArea {
		return fmt.Sprintf("area %dx%d below minimum %d", info.Width, info.Height, e.cfg.MinArea)
	}

	if e.cfg.MaxAspect > 0 && info.Height > 0 {
		aspect := float64(info.Width) / float64(info.Height)
		if aspect < 1 && aspect > 0 {
			aspect = 1 / aspect
		}
		if aspect > e.cfg.MaxAspect {
			return fmt.Sprintf("aspect ratio %.2f exceeds maximum %.2f", aspect, e.cfg.MaxAspect)
		}
	}

	return ""
}

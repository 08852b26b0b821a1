package pipeline

import (
	"github.com/tabletopforge/component-extractor/internal/bgremoval"
	"github.com/tabletopforge/component-extractor/internal/extract"
)

// Cache status values surfaced to callers.
const (
	CacheHit   = "HIT"
	CacheMiss  = "MISS"
	CacheStore = "STORE"
)

// Result is the terminal outcome of one extraction request. It is always
// well-formed: internal failures populate Error/Details instead of
// propagating.
type Result struct {
	JobID  string              `json:"jobId"`
	Images []extract.Candidate `json:"images"`
	// Source is embedded, snapshot, mixed, or none.
	Source string `json:"source"`
	// ToolsUnavailable marks the soft-degrade when no extraction tool
	// exists in the environment.
	ToolsUnavailable bool `json:"toolsUnavailable,omitempty"`
	// Removal summarizes background-removal outcomes when bgRemove was set.
	Removal []RemovalOutcome `json:"removal,omitempty"`

	Pages          int              `json:"pages,omitempty"`
	CandidateCount int              `json:"candidateCount"`
	CacheStatus    string           `json:"cacheStatus"`
	DurationMs     int64            `json:"durationMs"`
	Options        EffectiveOptions `json:"options"`

	Error   string `json:"error,omitempty"`
	Details string `json:"details,omitempty"`
}

// RemovalOutcome is the JSON-safe projection of a batch removal result.
type RemovalOutcome struct {
	Path         string  `json:"path"`
	Method       string  `json:"method,omitempty"`
	Quality      float64 `json:"quality,omitempty"`
	FallbackUsed bool    `json:"fallbackUsed,omitempty"`
	Skipped      bool    `json:"skipped,omitempty"`
	SkipReason   string  `json:"skipReason,omitempty"`
	Error        string  `json:"error,omitempty"`
}

func removalOutcomes(results []bgremoval.BatchResult) []RemovalOutcome {
	if len(results) == 0 {
		return nil
	}
	outcomes := make([]RemovalOutcome, 0, len(results))
	for _, r := range results {
		o := RemovalOutcome{
			Path:       r.Path,
			Skipped:    r.Skipped,
			SkipReason: r.SkipReason,
		}
		if r.Attempt != nil {
			o.Method = string(r.Attempt.Method)
			o.Quality = r.Attempt.Quality
			o.FallbackUsed = r.Attempt.FallbackUsed
		}
		if r.Err != nil {
			o.Error = r.Err.Error()
		}
		outcomes = append(outcomes, o)
	}
	return outcomes
}

// deriveSource classifies the final candidate set.
func deriveSource(candidates []extract.Candidate) string {
	if len(candidates) == 0 {
		return "none"
	}
	embedded, snapshot := false, false
	for _, c := range candidates {
		switch c.Source {
		case extract.SourceEmbedded:
			embedded = true
		case extract.SourceSnapshot:
			snapshot = true
		}
	}
	switch {
	case embedded && snapshot:
		return "mixed"
	case snapshot:
		return "snapshot"
	default:
		return "embedded"
	}
}

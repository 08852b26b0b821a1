// Package rank scores extracted candidates by heuristic desirability and
// produces the bounded, sorted result list.
package rank

import (
	"math"
	"sort"

	"github.com/tabletopforge/component-extractor/internal/extract"
)

// Filters are applied before scoring; candidates failing them are dropped,
// never scored.
type Filters struct {
	MinWidth  int
	MinHeight int
	MaxAspect float64
}

// Boosts are the multiplicative adjustments the orchestration layer applies
// on top of the base score.
type Boosts struct {
	// EmbeddedBoost multiplies the score of embedded-source candidates.
	EmbeddedBoost float64
	// BoostPages lists externally supplied high-value page numbers.
	BoostPages []int
	// BoostFactor multiplies the score of candidates on a boosted page.
	BoostFactor float64
}

// Score computes the base heuristic score for one candidate.
func Score(c *extract.Candidate) float64 {
	score := math.Log10(1 + float64(c.Width)*float64(c.Height))

	if c.Format == "png" {
		score += 0.3
	}

	switch c.Source {
	case extract.SourceEmbedded:
		score += 0.2
	case extract.SourceSnapshot:
		score -= 0.05
	}

	score += aspectPenalty(c.Aspect())

	if c.SizeBytes > 0 && c.SizeBytes < 8000 {
		score -= 0.25
	}

	return score
}

// aspectPenalty punishes extreme ratios. Aspect is normalized >= 1.
func aspectPenalty(aspect float64) float64 {
	switch {
	case aspect == 0:
		return 0
	case aspect > 10:
		return -0.75
	case aspect > 6:
		return -0.5
	}
	return 0
}

// Rank filters, scores, boosts, sorts, and truncates candidates. The result
// order is deterministic: ties break on path.
func Rank(candidates []extract.Candidate, filters Filters, boosts Boosts, topN int) []extract.Candidate {
	if topN <= 0 {
		topN = 100
	}

	kept := make([]extract.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if !passes(&c, filters) {
			continue
		}

		score := Score(&c)
		if boosts.EmbeddedBoost > 0 && boosts.EmbeddedBoost != 1 && c.Source == extract.SourceEmbedded {
			score *= boosts.EmbeddedBoost
		}
		if c.Page != nil && boosts.BoostFactor > 0 && boosts.BoostFactor != 1 && containsPage(boosts.BoostPages, *c.Page) {
			score *= boosts.BoostFactor
		}
		c.Score = score
		kept = append(kept, c)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Score != kept[j].Score {
			return kept[i].Score > kept[j].Score
		}
		return kept[i].Path < kept[j].Path
	})

	if len(kept) > topN {
		kept = kept[:topN]
	}
	return kept
}

func passes(c *extract.Candidate, f Filters) bool {
	if f.MinWidth > 0 && c.Width < f.MinWidth {
		return false
	}
	if f.MinHeight > 0 && c.Height < f.MinHeight {
		return false
	}
	if f.MaxAspect > 0 && c.Aspect() > f.MaxAspect {
		return false
	}
	return true
}

func containsPage(pages []int, page int) bool {
	for _, p := range pages {
		if p == page {
			return true
		}
	}
	return false
}

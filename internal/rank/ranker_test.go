package rank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabletopforge/component-extractor/internal/extract"
)

func candidate(path string, w, h int, source extract.Source, format string, page int) extract.Candidate {
	p := page
	return extract.Candidate{
		Path:      path,
		Source:    source,
		Page:      &p,
		Width:     w,
		Height:    h,
		SizeBytes: 50_000,
		Format:    format,
	}
}

func TestScore_PreferencesStack(t *testing.T) {
	large := candidate("large.png", 1000, 1000, extract.SourceEmbedded, "png", 1)
	small := candidate("small.png", 100, 100, extract.SourceEmbedded, "png", 1)
	assert.Greater(t, Score(&large), Score(&small), "larger area scores higher")

	png := candidate("a.png", 500, 500, extract.SourceEmbedded, "png", 1)
	jpeg := candidate("a.jpg", 500, 500, extract.SourceEmbedded, "jpeg", 1)
	assert.InDelta(t, 0.3, Score(&png)-Score(&jpeg), 1e-9)

	embedded := candidate("e.png", 500, 500, extract.SourceEmbedded, "png", 1)
	snapshot := candidate("s.png", 500, 500, extract.SourceSnapshot, "png", 1)
	assert.InDelta(t, 0.25, Score(&embedded)-Score(&snapshot), 1e-9)
}

func TestScore_Penalties(t *testing.T) {
	normal := candidate("n.png", 600, 600, extract.SourceEmbedded, "png", 1)
	stripe := candidate("s.png", 4400, 400, extract.SourceEmbedded, "png", 1)
	assert.InDelta(t, -0.75, aspectPenalty(stripe.Aspect()), 1e-9)
	assert.InDelta(t, 0.0, aspectPenalty(normal.Aspect()), 1e-9)

	wide := candidate("w.png", 2800, 400, extract.SourceEmbedded, "png", 1)
	assert.InDelta(t, -0.5, aspectPenalty(wide.Aspect()), 1e-9)

	tiny := candidate("t.png", 500, 500, extract.SourceEmbedded, "png", 1)
	tiny.SizeBytes = 4000
	full := candidate("f.png", 500, 500, extract.SourceEmbedded, "png", 1)
	assert.InDelta(t, 0.25, Score(&full)-Score(&tiny), 1e-9)
}

func TestRank_FiltersBeforeScoring(t *testing.T) {
	candidates := []extract.Candidate{
		candidate("a.png", 500, 500, extract.SourceEmbedded, "png", 1),
		candidate("b.png", 500, 500, extract.SourceEmbedded, "png", 1),
		candidate("c.png", 500, 500, extract.SourceEmbedded, "png", 2),
		candidate("icon.png", 50, 50, extract.SourceEmbedded, "png", 1),
	}

	ranked := Rank(candidates, Filters{MinWidth: 160, MinHeight: 160}, Boosts{}, 0)

	require.Len(t, ranked, 3)
	for _, c := range ranked {
		assert.GreaterOrEqual(t, c.Width, 160)
		assert.GreaterOrEqual(t, c.Height, 160)
	}
}

func TestRank_MaxAspectFilter(t *testing.T) {
	candidates := []extract.Candidate{
		candidate("ok.png", 900, 300, extract.SourceEmbedded, "png", 1),
		candidate("stripe.png", 3000, 200, extract.SourceEmbedded, "png", 1),
	}

	ranked := Rank(candidates, Filters{MaxAspect: 10}, Boosts{}, 0)

	require.Len(t, ranked, 1)
	assert.Equal(t, "ok.png", ranked[0].Path)
}

func TestRank_DeterministicOrder(t *testing.T) {
	candidates := []extract.Candidate{
		candidate("zeta.png", 500, 500, extract.SourceEmbedded, "png", 1),
		candidate("alpha.png", 500, 500, extract.SourceEmbedded, "png", 1),
		candidate("big.png", 2000, 2000, extract.SourceEmbedded, "png", 2),
	}

	first := Rank(candidates, Filters{}, Boosts{}, 0)
	second := Rank(candidates, Filters{}, Boosts{}, 0)

	require.Equal(t, first, second, "identical inputs produce identical order")
	assert.Equal(t, "big.png", first[0].Path)
	// Equal scores tie-break on path.
	assert.Equal(t, "alpha.png", first[1].Path)
	assert.Equal(t, "zeta.png", first[2].Path)
}

func TestRank_PageBoostReorders(t *testing.T) {
	candidates := []extract.Candidate{
		candidate("page1.png", 800, 800, extract.SourceEmbedded, "png", 1),
		candidate("page3.png", 600, 600, extract.SourceEmbedded, "png", 3),
	}

	plain := Rank(candidates, Filters{}, Boosts{}, 0)
	assert.Equal(t, "page1.png", plain[0].Path)

	boosted := Rank(candidates, Filters{}, Boosts{BoostPages: []int{3}, BoostFactor: 1.5}, 0)
	assert.Equal(t, "page3.png", boosted[0].Path)
}

func TestRank_EmbeddedBoost(t *testing.T) {
	candidates := []extract.Candidate{
		candidate("snap.png", 1600, 1600, extract.SourceSnapshot, "png", 1),
		candidate("emb.png", 900, 900, extract.SourceEmbedded, "png", 1),
	}

	plain := Rank(candidates, Filters{}, Boosts{}, 0)
	assert.Equal(t, "snap.png", plain[0].Path)

	boosted := Rank(candidates, Filters{}, Boosts{EmbeddedBoost: 1.2}, 0)
	assert.Equal(t, "emb.png", boosted[0].Path)
}

func TestRank_TruncatesToTopN(t *testing.T) {
	var candidates []extract.Candidate
	for i := 0; i < 10; i++ {
		candidates = append(candidates,
			candidate(string(rune('a'+i))+".png", 400+i*10, 400+i*10, extract.SourceEmbedded, "png", 1))
	}

	ranked := Rank(candidates, Filters{}, Boosts{}, 4)
	require.Len(t, ranked, 4)
	// Largest areas survive truncation.
	assert.Equal(t, "j.png", ranked[0].Path)
}

package pipeline

import (
	"sort"

	"github.com/tabletopforge/component-extractor/internal/config"
)

// Options are the caller-supplied extraction knobs. Tri-state booleans use
// pointers so an absent field keeps its default of true.
type Options struct {
	DPI                int     `json:"dpi,omitempty"`
	Trim               *bool   `json:"trim,omitempty"`
	ConvertUnsupported *bool   `json:"convertUnsupported,omitempty"`
	BgRemove           bool    `json:"bgRemove,omitempty"`
	BgThreshold        int     `json:"bgThreshold,omitempty"`
	MinWidth           int     `json:"minW,omitempty"`
	MinHeight          int     `json:"minH,omitempty"`
	MaxAspect          float64 `json:"maxAspect,omitempty"`
	BoostPages         []int   `json:"boostPages,omitempty"`
	BoostFactor        float64 `json:"boostFactor,omitempty"`
	EmbeddedBoost      float64 `json:"embeddedBoost,omitempty"`
	TopN               int     `json:"topN,omitempty"`
}

// EffectiveOptions is the fully resolved option set. It is part of the result
// and, serialized, part of the cache key, so two semantically equal option
// sets must resolve identically.
type EffectiveOptions struct {
	DPI                int     `json:"dpi"`
	Trim               bool    `json:"trim"`
	ConvertUnsupported bool    `json:"convertUnsupported"`
	BgRemove           bool    `json:"bgRemove"`
	BgThreshold        int     `json:"bgThreshold"`
	MinWidth           int     `json:"minW"`
	MinHeight          int     `json:"minH"`
	MaxAspect          float64 `json:"maxAspect"`
	BoostPages         []int   `json:"boostPages"`
	BoostFactor        float64 `json:"boostFactor"`
	EmbeddedBoost      float64 `json:"embeddedBoost"`
	TopN               int     `json:"topN"`
}

// Normalize resolves defaults and canonicalizes list ordering.
func (o Options) Normalize(cfg config.ExtractionConfig) EffectiveOptions {
	eff := EffectiveOptions{
		DPI:                o.DPI,
		Trim:               true,
		ConvertUnsupported: true,
		BgRemove:           o.BgRemove,
		BgThreshold:        o.BgThreshold,
		MinWidth:           o.MinWidth,
		MinHeight:          o.MinHeight,
		MaxAspect:          o.MaxAspect,
		BoostFactor:        o.BoostFactor,
		EmbeddedBoost:      o.EmbeddedBoost,
		TopN:               o.TopN,
	}

	if o.Trim != nil {
		eff.Trim = *o.Trim
	}
	if o.ConvertUnsupported != nil {
		eff.ConvertUnsupported = *o.ConvertUnsupported
	}

	if eff.DPI <= 0 {
		eff.DPI = cfg.DefaultDPI
	}
	if eff.DPI <= 0 {
		eff.DPI = 300
	}
	if eff.BgThreshold <= 0 || eff.BgThreshold > 255 {
		eff.BgThreshold = 245
	}
	if eff.BoostFactor <= 0 {
		eff.BoostFactor = 1.0
	}
	if eff.EmbeddedBoost <= 0 {
		eff.EmbeddedBoost = 1.0
	}
	if eff.TopN <= 0 {
		eff.TopN = cfg.DefaultTopN
	}
	if eff.TopN <= 0 {
		eff.TopN = 100
	}

	if len(o.BoostPages) > 0 {
		eff.BoostPages = append([]int(nil), o.BoostPages...)
		sort.Ints(eff.BoostPages)
	} else {
		eff.BoostPages = []int{}
	}

	return eff
}

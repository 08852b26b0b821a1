package extract

// Source identifies how a candidate image was obtained.
type Source string

const (
	// SourceEmbedded marks raster objects pulled straight from the PDF
	// content stream.
	SourceEmbedded Source = "embedded"
	// SourceSnapshot marks full-page rasterizations.
	SourceSnapshot Source = "snapshot"
)

// Candidate is one extracted component image. Normalization and background
// removal replace Path with a derived file; the logical candidate stays the
// same. Once scored it is not mutated again.
type Candidate struct {
	Path      string  `json:"path"`
	Source    Source  `json:"source"`
	Page      *int    `json:"page,omitempty"` // best-effort, parsed from filenames
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	SizeBytes int64   `json:"sizeBytes"`
	Format    string  `json:"format"`
	HasAlpha  bool    `json:"hasAlpha"`
	Score     float64 `json:"score"`
}

// Aspect returns the width/height ratio, normalized so it is always >= 1.
func (c *Candidate) Aspect() float64 {
	if c.Width == 0 || c.Height == 0 {
		return 0
	}
	r := float64(c.Width) / float64(c.Height)
	if r < 1 {
		r = 1 / r
	}
	return r
}

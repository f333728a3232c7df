// Package region resolves the rectangle occupied by a figure from the
// position of its caption. The heuristic assumes a figure fills the gap
// between its caption and the nearest text block above it in the same column.
package region

// Params holds the heuristic tunables. All distances are in page units.
type Params struct {
	// ColumnMargin absorbs jitter around the page midline when classifying columns.
	// Default: 20
	ColumnMargin float64 `yaml:"column_margin"`

	// FullWidthRatio classifies anchors wider than this share of the page as full-width.
	// Default: 0.6
	FullWidthRatio float64 `yaml:"full_width_ratio"`

	// HeaderMargin is the ceiling used when no text block lies above the anchor.
	// Default: 50
	HeaderMargin float64 `yaml:"header_margin"`

	// BackgroundCoverRatio discards objects covering more than this share of
	// both page dimensions (full-page fills).
	// Default: 0.9
	BackgroundCoverRatio float64 `yaml:"background_cover_ratio"`

	// MinRegionHeight rejects resolved regions shorter than this.
	// Default: 10
	MinRegionHeight float64 `yaml:"min_region_height"`
}

// DefaultParams returns the tunables used by the service unless overridden.
func DefaultParams() Params {
	return Params{
		ColumnMargin:         20,
		FullWidthRatio:       0.6,
		HeaderMargin:         50,
		BackgroundCoverRatio: 0.9,
		MinRegionHeight:      10,
	}
}

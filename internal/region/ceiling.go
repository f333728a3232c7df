package region

import (
	"math"

	"github.com/local/figcrop/internal/document"
	"github.com/local/figcrop/internal/geometry"
)

// FindCeiling returns the y coordinate above which the figure of anchor may
// not extend: the bottom edge of the closest text block that ends above the
// anchor and horizontally overlaps the column. Blocks inside the header band
// never lower the ceiling below HeaderMargin. skip is the index of the anchor
// in blocks, or -1 when the anchor is not a page block.
//
// Any text block qualifies, including the caption of a preceding figure.
func FindCeiling(anchor geometry.Rect, col Column, blocks []document.TextBlock, skip int, p Params) float64 {
	ceiling := p.HeaderMargin
	for i, b := range blocks {
		if i == skip {
			continue
		}
		if b.Rect.Y1 >= anchor.Y0 {
			continue
		}
		if !b.Rect.OverlapsX(col.X0, col.X1) {
			continue
		}
		if b.Rect.Y1 > ceiling {
			ceiling = b.Rect.Y1
		}
	}
	return math.Min(ceiling, anchor.Y0)
}

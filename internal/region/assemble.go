package region

import (
	"github.com/local/figcrop/internal/document"
	"github.com/local/figcrop/internal/geometry"
)

// Resolution describes how a figure region was derived.
type Resolution struct {
	Region      geometry.Rect
	Column      Column
	Ceiling     float64
	FromObjects bool
}

// Resolve computes the figure region above anchor on page. anchorIndex is the
// anchor's index in page.Blocks, or -1 for a user-drawn anchor. It reports
// false when the resulting region is degenerate or shorter than
// MinRegionHeight; that means no figure was detected for this anchor.
//
// Without visual objects the whole gap between ceiling and caption is
// returned at full column width; trimming removes the excess afterwards.
func Resolve(page *document.Page, anchor geometry.Rect, anchorIndex int, p Params) (Resolution, bool) {
	col := ClassifyColumn(anchor, page.Width, p)
	ceiling := FindCeiling(anchor, col, page.Blocks, anchorIndex, p)

	res := Resolution{Column: col, Ceiling: ceiling}
	if u, ok := UnionObjects(anchor, col, ceiling, page, p); ok {
		res.Region = u
		res.FromObjects = true
	} else {
		res.Region = geometry.R(col.X0, ceiling, col.X1, anchor.Y0)
	}

	if res.Region.IsEmpty() || res.Region.Height() < p.MinRegionHeight {
		return res, false
	}
	return res, true
}

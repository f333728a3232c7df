package region

import (
	"github.com/local/figcrop/internal/document"
	"github.com/local/figcrop/internal/geometry"
)

// UnionObjects unions the visual objects that reach into the region between
// ceiling and the anchor's top edge, across the column band. Surviving
// objects contribute their whole rectangle; widening to the anchor happens
// before the result is clamped to the region. It reports false when no object
// survives.
func UnionObjects(anchor geometry.Rect, col Column, ceiling float64, page *document.Page, p Params) (geometry.Rect, bool) {
	roi := geometry.R(col.X0, ceiling, col.X1, anchor.Y0)
	if roi.IsEmpty() {
		return geometry.Rect{}, false
	}

	var u geometry.Rect
	found := false
	for _, obj := range page.Objects {
		if isBackground(obj.Rect, page, p) {
			continue
		}
		if obj.Rect.Intersect(roi).IsEmpty() {
			continue
		}
		u = u.Union(obj.Rect)
		found = true
	}
	if !found {
		return geometry.Rect{}, false
	}

	if w := anchor.Width(); u.Width() < w {
		cx := (u.X0 + u.X1) / 2
		u.X0, u.X1 = cx-w/2, cx+w/2
	}
	return u.Intersect(roi), true
}

// isBackground reports whether r covers nearly the whole page, as full-page
// fills and watermarks do.
func isBackground(r geometry.Rect, page *document.Page, p Params) bool {
	if p.BackgroundCoverRatio <= 0 {
		return false
	}
	return r.Width() > p.BackgroundCoverRatio*page.Width &&
		r.Height() > p.BackgroundCoverRatio*page.Height
}

package region

import "github.com/local/figcrop/internal/geometry"

// ColumnKind names the horizontal band an anchor belongs to.
type ColumnKind int

const (
	ColumnLeft ColumnKind = iota
	ColumnRight
	ColumnFull
)

func (k ColumnKind) String() string {
	switch k {
	case ColumnLeft:
		return "left"
	case ColumnRight:
		return "right"
	default:
		return "full"
	}
}

// Column is the band [X0, X1] an anchor belongs to. Both bounds lie in
// [0, page width].
type Column struct {
	Kind   ColumnKind
	X0, X1 float64
}

// Width returns X1 - X0.
func (c Column) Width() float64 { return c.X1 - c.X0 }

// ClassifyColumn places anchor in the left half, right half or full width of
// a page pageWidth units wide. Wide anchors and anchors straddling the
// midline are full-width.
func ClassifyColumn(anchor geometry.Rect, pageWidth float64, p Params) Column {
	if pageWidth <= 0 {
		return Column{Kind: ColumnFull}
	}
	mid := pageWidth / 2
	full := Column{Kind: ColumnFull, X0: 0, X1: pageWidth}

	if p.FullWidthRatio > 0 && anchor.Width() > p.FullWidthRatio*pageWidth {
		return full
	}
	switch {
	case anchor.X1 < mid+p.ColumnMargin:
		return Column{Kind: ColumnLeft, X0: 0, X1: mid}
	case anchor.X0 > mid-p.ColumnMargin:
		return Column{Kind: ColumnRight, X0: mid, X1: pageWidth}
	default:
		return full
	}
}

package region

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/figcrop/internal/document"
	"github.com/local/figcrop/internal/geometry"
)

func twoColumnPage() *document.Page {
	return &document.Page{
		Width:  600,
		Height: 800,
		Blocks: []document.TextBlock{
			{Rect: geometry.R(40, 70, 560, 90), Text: "Running title spanning both columns"},
			{Rect: geometry.R(40, 300, 300, 400), Text: "Left column body text."},
			{Rect: geometry.R(310, 300, 560, 450), Text: "Right column body text."},
			{Rect: geometry.R(40, 500, 300, 515), Text: "图1 系统架构图"},
		},
	}
}

func TestScenarioA_FallbackRegion(t *testing.T) {
	page := twoColumnPage()
	anchor := page.Blocks[3].Rect

	res, ok := Resolve(page, anchor, 3, DefaultParams())
	require.True(t, ok)
	assert.Equal(t, ColumnLeft, res.Column.Kind)
	assert.Equal(t, 400.0, res.Ceiling)
	assert.False(t, res.FromObjects)
	assert.Equal(t, geometry.R(0, 400, 300, 500), res.Region)
}

func TestScenarioB_FullWidth(t *testing.T) {
	col := ClassifyColumn(geometry.R(20, 700, 580, 715), 600, DefaultParams())
	assert.Equal(t, ColumnFull, col.Kind)
	assert.Equal(t, 0.0, col.X0)
	assert.Equal(t, 600.0, col.X1)
}

func TestScenarioE_ShortRegionSkipped(t *testing.T) {
	page := &document.Page{
		Width:  600,
		Height: 800,
		Blocks: []document.TextBlock{
			{Rect: geometry.R(40, 300, 300, 395), Text: "Body"},
			{Rect: geometry.R(40, 400, 300, 415), Text: "Figure 3 tiny"},
		},
	}
	res, ok := Resolve(page, page.Blocks[1].Rect, 1, DefaultParams())
	assert.False(t, ok)
	assert.Equal(t, 5.0, res.Region.Height())
}

func TestClassifyColumn(t *testing.T) {
	p := DefaultParams()
	tests := []struct {
		name   string
		anchor geometry.Rect
		want   ColumnKind
		x0, x1 float64
	}{
		{"left", geometry.R(40, 0, 280, 10), ColumnLeft, 0, 300},
		{"left within margin", geometry.R(100, 0, 315, 10), ColumnLeft, 0, 300},
		{"right", geometry.R(320, 0, 560, 10), ColumnRight, 300, 600},
		{"right within margin", geometry.R(285, 0, 500, 10), ColumnRight, 300, 600},
		{"straddles midline", geometry.R(200, 0, 400, 10), ColumnFull, 0, 600},
		{"wide", geometry.R(10, 0, 590, 10), ColumnFull, 0, 600},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			col := ClassifyColumn(tt.anchor, 600, p)
			assert.Equal(t, tt.want, col.Kind)
			assert.Equal(t, tt.x0, col.X0)
			assert.Equal(t, tt.x1, col.X1)
			assert.GreaterOrEqual(t, col.X0, 0.0)
			assert.LessOrEqual(t, col.X1, 600.0)
		})
	}
}

func TestClassifyColumnMonotonic(t *testing.T) {
	p := DefaultParams()
	seenRight := false
	for x := -100.0; x <= 700; x += 5 {
		col := ClassifyColumn(geometry.R(x, 0, x+150, 10), 600, p)
		if col.Kind == ColumnRight {
			seenRight = true
		}
		if seenRight {
			assert.NotEqual(t, ColumnLeft, col.Kind, "anchor at x=%v flipped back to left", x)
		}
	}
	assert.True(t, seenRight)
}

func TestFindCeiling(t *testing.T) {
	p := DefaultParams()
	page := twoColumnPage()
	left := Column{Kind: ColumnLeft, X0: 0, X1: 300}

	t.Run("nearest block above in column", func(t *testing.T) {
		assert.Equal(t, 400.0, FindCeiling(page.Blocks[3].Rect, left, page.Blocks, 3, p))
	})

	t.Run("centered heading overlapping band counts", func(t *testing.T) {
		anchor := geometry.R(40, 250, 300, 265)
		assert.Equal(t, 90.0, FindCeiling(anchor, left, page.Blocks, -1, p))
	})

	t.Run("no block above yields header margin", func(t *testing.T) {
		anchor := geometry.R(40, 60, 300, 65)
		got := FindCeiling(geometry.R(40, 200, 300, 210), left, nil, -1, p)
		assert.Equal(t, p.HeaderMargin, got)
		assert.LessOrEqual(t, FindCeiling(anchor, left, nil, -1, p), anchor.Y0)
	})

	t.Run("other column ignored", func(t *testing.T) {
		right := Column{Kind: ColumnRight, X0: 300, X1: 600}
		anchor := geometry.R(320, 500, 560, 515)
		assert.Equal(t, 450.0, FindCeiling(anchor, right, page.Blocks, -1, p))
	})

	t.Run("never below anchor top", func(t *testing.T) {
		for _, b := range page.Blocks {
			got := FindCeiling(b.Rect, left, page.Blocks, -1, p)
			assert.LessOrEqual(t, got, b.Rect.Y0)
		}
	})
}

func TestUnionObjects(t *testing.T) {
	p := DefaultParams()
	page := twoColumnPage()
	page.Objects = []document.VisualObject{
		{Rect: geometry.R(100, 420, 200, 480), Kind: document.KindPath},
		{Rect: geometry.R(120, 410, 180, 470), Kind: document.KindImage},
		{Rect: geometry.R(350, 420, 500, 480), Kind: document.KindPath}, // right column
		{Rect: geometry.R(0, 0, 600, 800), Kind: document.KindImage},    // page background
	}
	anchor := geometry.R(110, 500, 190, 515)
	left := ClassifyColumn(anchor, page.Width, p)

	u, ok := UnionObjects(anchor, left, 400, page, p)
	require.True(t, ok)
	assert.Equal(t, geometry.R(100, 410, 200, 480), u)
}

func TestUnionObjectsWidensToCaption(t *testing.T) {
	p := DefaultParams()
	page := &document.Page{
		Width:  600,
		Height: 800,
		Objects: []document.VisualObject{
			{Rect: geometry.R(140, 420, 160, 480), Kind: document.KindPath},
		},
	}
	anchor := geometry.R(50, 500, 250, 515)
	col := ClassifyColumn(anchor, page.Width, p)

	u, ok := UnionObjects(anchor, col, 400, page, p)
	require.True(t, ok)
	assert.Equal(t, geometry.R(50, 420, 250, 480), u)
}

func TestUnionObjectsWidensBeforeClamping(t *testing.T) {
	p := DefaultParams()
	page := &document.Page{
		Width:  600,
		Height: 800,
		Objects: []document.VisualObject{
			// crosses the midline into the right column
			{Rect: geometry.R(250, 420, 400, 480), Kind: document.KindPath},
		},
	}
	anchor := geometry.R(40, 500, 300, 515)
	col := ClassifyColumn(anchor, page.Width, p)
	require.Equal(t, ColumnLeft, col.Kind)

	u, ok := UnionObjects(anchor, col, 400, page, p)
	require.True(t, ok)
	assert.Equal(t, geometry.R(195, 420, 300, 480), u)
}

func TestUnionObjectsClampedToBand(t *testing.T) {
	p := DefaultParams()
	page := &document.Page{
		Width:  600,
		Height: 800,
		Objects: []document.VisualObject{
			{Rect: geometry.R(5, 420, 25, 480), Kind: document.KindPath},
		},
	}
	anchor := geometry.R(0, 500, 280, 515)
	col := ClassifyColumn(anchor, page.Width, p)

	u, ok := UnionObjects(anchor, col, 400, page, p)
	require.True(t, ok)
	assert.GreaterOrEqual(t, u.X0, col.X0)
	assert.LessOrEqual(t, u.X1, col.X1)
	assert.GreaterOrEqual(t, u.Y0, 400.0)
	assert.LessOrEqual(t, u.Y1, anchor.Y0)
}

func TestUnionObjectsNoneFound(t *testing.T) {
	p := DefaultParams()
	page := twoColumnPage()
	page.Objects = []document.VisualObject{
		{Rect: geometry.R(0, 0, 600, 800), Kind: document.KindImage},
		{Rect: geometry.R(100, 600, 200, 700), Kind: document.KindPath},
	}
	_, ok := UnionObjects(page.Blocks[3].Rect, Column{X0: 0, X1: 300}, 400, page, p)
	assert.False(t, ok)
}

func TestResolveUsesObjects(t *testing.T) {
	page := twoColumnPage()
	page.Objects = []document.VisualObject{
		{Rect: geometry.R(60, 410, 280, 495), Kind: document.KindImage},
	}
	res, ok := Resolve(page, page.Blocks[3].Rect, 3, DefaultParams())
	require.True(t, ok)
	assert.True(t, res.FromObjects)
	// widened symmetrically to the caption width (260) around x=170
	assert.Equal(t, geometry.R(40, 410, 300, 495), res.Region)
	assert.LessOrEqual(t, res.Region.Y1, page.Blocks[3].Rect.Y0)
}

func TestResolveNeverNegative(t *testing.T) {
	p := DefaultParams()
	page := twoColumnPage()
	anchors := []geometry.Rect{
		geometry.R(40, 10, 300, 20),
		geometry.R(40, 45, 300, 55),
		geometry.R(320, 790, 560, 800),
		geometry.R(0, 0, 600, 800),
	}
	for _, a := range anchors {
		res, _ := Resolve(page, a, -1, p)
		assert.GreaterOrEqual(t, res.Region.X1-res.Region.X0, 0.0)
		assert.GreaterOrEqual(t, res.Region.Y1-res.Region.Y0, 0.0)
	}
}

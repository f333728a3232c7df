package engine

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/figcrop/internal/document"
	"github.com/local/figcrop/internal/figure"
	"github.com/local/figcrop/internal/geometry"
)

// fakeSource rasterizes a page as a white canvas with every visual object and
// text span painted black.
type fakeSource struct {
	pages      []*document.Page
	failPages  map[int]bool
	failRender bool
	renders    atomic.Int32
}

func (f *fakeSource) PageCount() int { return len(f.pages) }

func (f *fakeSource) Page(_ context.Context, index int) (*document.Page, error) {
	if f.failPages[index] {
		return nil, errors.New("layout unavailable")
	}
	// later pages finish first so ordering depends on the merge
	time.Sleep(time.Duration(len(f.pages)-index) * time.Millisecond)
	return f.pages[index], nil
}

func (f *fakeSource) Render(_ context.Context, index int, clip geometry.Rect, scale float64) (image.Image, error) {
	f.renders.Add(1)
	if f.failRender {
		return nil, errors.New("rasterizer crashed")
	}
	page := f.pages[index]
	w := int(math.Ceil(clip.Width() * scale))
	h := int(math.Ceil(clip.Height() * scale))
	img := imaging.New(w, h, color.White)
	ink := func(r geometry.Rect) {
		px := r.Intersect(clip).Translate(-clip.X0, -clip.Y0).Scale(scale).Image()
		draw.Draw(img, px, image.NewUniform(color.Black), image.Point{}, draw.Src)
	}
	for _, o := range page.Objects {
		ink(o.Rect)
	}
	for _, b := range page.Blocks {
		for _, s := range b.Spans {
			ink(s.Rect)
		}
	}
	return img, nil
}

func block(r geometry.Rect, text string) document.TextBlock {
	return document.TextBlock{Rect: r, Text: text, Spans: []document.TextSpan{{Rect: r, Text: text}}}
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.RenderZoom = 2
	opts.PageWorkers = 3
	return opts
}

func twoColumnPage(index int) *document.Page {
	return &document.Page{
		Index:  index,
		Width:  600,
		Height: 800,
		Blocks: []document.TextBlock{
			{Rect: geometry.R(40, 300, 300, 400), Text: "As the figure above shows"},
			{Rect: geometry.R(310, 300, 560, 450), Text: "Right column body"},
			{Rect: geometry.R(40, 500, 300, 515), Text: "Figure 1 overview"},
			{Rect: geometry.R(320, 600, 560, 615), Text: "图2  结果"},
			{Rect: geometry.R(40, 600, 300, 695), Text: "Body under the first figure"},
			{Rect: geometry.R(40, 700, 300, 715), Text: "Fig. 3 tiny"},
		},
		Objects: []document.VisualObject{
			{Rect: geometry.R(100, 420, 200, 480), Kind: document.KindPath},
		},
	}
}

func TestExtractAuto(t *testing.T) {
	src := &fakeSource{pages: []*document.Page{twoColumnPage(0)}}
	sess := figure.NewSession("auto")

	sum, err := New(src, testOptions()).ExtractAuto(context.Background(), sess, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Anchors)
	assert.Equal(t, 2, sum.Produced)
	assert.Equal(t, 1, sum.Skipped)

	figs := sess.Figures()
	require.Len(t, figs, 2)

	// objects widened to the caption, then trimmed back to the drawing
	assert.Equal(t, "Figure 1 overview", figs[0].Name)
	assert.Equal(t, 1, figs[0].Page)
	assert.Equal(t, 200, figs[0].Width)
	assert.Equal(t, 120, figs[0].Height)

	// no objects in the right column: the whole gap is kept
	assert.Equal(t, "图2 结果", figs[1].Name)
	assert.Equal(t, 600, figs[1].Width)
	assert.Equal(t, 300, figs[1].Height)

	// the tiny region is rejected before rendering
	assert.EqualValues(t, 2, src.renders.Load())
}

func TestExtractAutoPageOrder(t *testing.T) {
	var pages []*document.Page
	for i := 0; i < 6; i++ {
		pages = append(pages, &document.Page{
			Index: i, Width: 600, Height: 800,
			Blocks: []document.TextBlock{
				{Rect: geometry.R(40, 300, 300, 400), Text: "body"},
				{Rect: geometry.R(40, 500, 300, 515), Text: "Figure 1"},
			},
			Objects: []document.VisualObject{{Rect: geometry.R(100, 420, 200, 480), Kind: document.KindImage}},
		})
	}
	src := &fakeSource{pages: pages, failPages: map[int]bool{2: true}}
	sess := figure.NewSession("order")

	sum, err := New(src, testOptions()).ExtractAuto(context.Background(), sess, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, sum.Produced)

	var got []int
	for _, f := range sess.Figures() {
		got = append(got, f.Page)
	}
	assert.Equal(t, []int{1, 2, 4, 5, 6}, got)
}

func TestExtractAutoSelectedPages(t *testing.T) {
	src := &fakeSource{pages: []*document.Page{twoColumnPage(0), twoColumnPage(1)}}
	sess := figure.NewSession("subset")

	sum, err := New(src, testOptions()).ExtractAuto(context.Background(), sess, []int{1})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Produced)
	for _, f := range sess.Figures() {
		assert.Equal(t, 2, f.Page)
	}

	_, err = New(src, testOptions()).ExtractAuto(context.Background(), sess, []int{0, 7})
	assert.ErrorIs(t, err, document.ErrPageOutOfRange)
}

func TestExtractAutoRenderFailure(t *testing.T) {
	src := &fakeSource{pages: []*document.Page{twoColumnPage(0)}, failRender: true}
	sess := figure.NewSession("fail")

	sum, err := New(src, testOptions()).ExtractAuto(context.Background(), sess, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Anchors)
	assert.Equal(t, 0, sum.Produced)
	assert.Equal(t, 3, sum.Skipped)
	assert.Equal(t, 0, sess.Len())
}

func TestExtractAutoCanceled(t *testing.T) {
	src := &fakeSource{pages: []*document.Page{twoColumnPage(0)}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(src, testOptions()).ExtractAuto(ctx, figure.NewSession("c"), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func manualPage() *document.Page {
	return &document.Page{
		Width: 600, Height: 800,
		Blocks: []document.TextBlock{
			block(geometry.R(110, 150, 200, 160), "axis label"),
			block(geometry.R(110, 280, 390, 298), "图2 实验结果"),
		},
		Objects: []document.VisualObject{{Rect: geometry.R(150, 170, 350, 270), Kind: document.KindPath}},
	}
}

func TestExtractManualMasksText(t *testing.T) {
	src := &fakeSource{pages: []*document.Page{manualPage()}}
	sess := figure.NewSession("manual")

	sum, err := New(src, testOptions()).ExtractManual(context.Background(), sess, 0, geometry.R(400, 300, 100, 100))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Produced)

	figs := sess.Figures()
	require.Len(t, figs, 1)
	assert.Equal(t, "axis label 图2 实验结果", figs[0].Name)
	// only the drawing survives once the text is painted out
	assert.Equal(t, 400, figs[0].Width)
	assert.Equal(t, 200, figs[0].Height)
}

func TestExtractManualPlaceholderName(t *testing.T) {
	page := manualPage()
	page.Index = 1
	src := &fakeSource{pages: []*document.Page{manualPage(), page}}
	sess := figure.NewSession("placeholder")

	_, err := New(src, testOptions()).ExtractManual(context.Background(), sess, 1, geometry.R(140, 165, 360, 275))
	require.NoError(t, err)
	require.Equal(t, 1, sess.Len())
	assert.Equal(t, "Figure_Page_2", sess.Figures()[0].Name)
}

func TestExtractManualDegenerate(t *testing.T) {
	src := &fakeSource{pages: []*document.Page{manualPage()}}
	sess := figure.NewSession("empty")
	e := New(src, testOptions())

	sum, err := e.ExtractManual(context.Background(), sess, 0, geometry.R(100, 100, 100, 300))
	require.NoError(t, err)
	assert.Equal(t, Summary{Anchors: 1, Skipped: 1}, sum)

	sum, err = e.ExtractManual(context.Background(), sess, 0, geometry.R(700, 100, 900, 300))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Skipped)

	_, err = e.ExtractManual(context.Background(), sess, 3, geometry.R(0, 0, 10, 10))
	assert.ErrorIs(t, err, document.ErrPageOutOfRange)
	assert.Equal(t, 0, sess.Len())
}

func TestExtractCaptionSelect(t *testing.T) {
	page := &document.Page{
		Width: 600, Height: 800,
		Blocks: []document.TextBlock{
			block(geometry.R(40, 300, 300, 400), "Left column body text."),
			block(geometry.R(40, 500, 300, 515), "图1 系统架构图"),
		},
		Objects: []document.VisualObject{{Rect: geometry.R(100, 420, 200, 480), Kind: document.KindPath}},
	}
	src := &fakeSource{pages: []*document.Page{page}}
	sess := figure.NewSession("caption")

	sum, err := New(src, testOptions()).ExtractCaptionSelect(context.Background(), sess, 0, geometry.R(38, 498, 302, 517))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Produced)

	figs := sess.Figures()
	require.Len(t, figs, 1)
	assert.Equal(t, "图1 系统架构图", figs[0].Name)
	assert.Equal(t, 200, figs[0].Width)
	assert.Equal(t, 120, figs[0].Height)
}

func TestExtractCaptionSelectNoRoom(t *testing.T) {
	page := &document.Page{
		Width: 600, Height: 800,
		Blocks: []document.TextBlock{
			block(geometry.R(40, 300, 300, 395), "body"),
			block(geometry.R(40, 400, 300, 415), "Figure 9"),
		},
	}
	src := &fakeSource{pages: []*document.Page{page}}

	sum, err := New(src, testOptions()).ExtractCaptionSelect(context.Background(), figure.NewSession("x"), 0, geometry.R(40, 400, 300, 415))
	require.NoError(t, err)
	assert.Equal(t, Summary{Anchors: 1, Skipped: 1}, sum)
	assert.Zero(t, src.renders.Load())
}

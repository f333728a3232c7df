// Package mask removes caption text from a rendered selection. A user-drawn
// selection usually includes the caption; its glyphs are painted over with
// the background colour so that only the figure remains in the crop.
package mask

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/local/figcrop/internal/document"
	"github.com/local/figcrop/internal/geometry"
)

// DefaultMarginPx occludes anti-aliased glyph edges around each span.
const DefaultMarginPx = 2

// Options configures Paint.
type Options struct {
	MarginPx float64
	Color    color.Color
}

// DefaultOptions paints white with a 2 pixel margin.
func DefaultOptions() Options {
	return Options{MarginPx: DefaultMarginPx, Color: color.White}
}

// ParseColor parses a "#rrggbb" hex colour.
func ParseColor(hex string) (color.Color, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return nil, fmt.Errorf("parse mask color %q: %w", hex, err)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 0xff}, nil
}

// Spans returns the non-empty text spans on page whose rectangles intersect
// sel, in reading order: top to bottom, then left to right.
func Spans(page *document.Page, sel geometry.Rect) []document.TextSpan {
	var out []document.TextSpan
	for _, b := range page.Blocks {
		if !b.Rect.Intersects(sel) {
			continue
		}
		for _, s := range b.Spans {
			if strings.TrimSpace(s.Text) == "" || !s.Rect.Intersects(sel) {
				continue
			}
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Rect.Y0 != out[j].Rect.Y0 {
			return out[i].Rect.Y0 < out[j].Rect.Y0
		}
		return out[i].Rect.X0 < out[j].Rect.X0
	})
	return out
}

// CaptionText joins the span texts with single spaces.
func CaptionText(spans []document.TextSpan) string {
	parts := make([]string, 0, len(spans))
	for _, s := range spans {
		parts = append(parts, strings.TrimSpace(s.Text))
	}
	return strings.Join(parts, " ")
}

// Paint returns a copy of img, the rendering of region at scale pixels per
// page unit, with every span rectangle filled with opts.Color.
func Paint(img image.Image, spans []document.TextSpan, region geometry.Rect, scale float64, opts Options) *image.NRGBA {
	dst := imaging.Clone(img)
	if opts.Color == nil {
		opts.Color = color.White
	}
	fill := image.NewUniform(opts.Color)
	for _, s := range spans {
		px := s.Rect.
			Translate(-region.X0, -region.Y0).
			Scale(scale).
			Expand(opts.MarginPx).
			Image().
			Intersect(dst.Bounds())
		if px.Empty() {
			continue
		}
		draw.Draw(dst, px, fill, image.Point{}, draw.Src)
	}
	return dst
}

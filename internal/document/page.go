// Package document defines the page layout model consumed by the figure
// engine and the Source contract a document backend must satisfy.
package document

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/local/figcrop/internal/geometry"
)

// ErrPageOutOfRange is returned when a page index is outside [0, PageCount).
var ErrPageOutOfRange = errors.New("page out of range")

// ObjectKind tags a VisualObject.
type ObjectKind string

const (
	KindPath  ObjectKind = "path"
	KindImage ObjectKind = "image"
)

// TextSpan is a run of text with its own bounding rectangle.
type TextSpan struct {
	Rect geometry.Rect `json:"rect"`
	Text string        `json:"text"`
}

// TextBlock is a paragraph-level text unit as produced by the layout reader.
type TextBlock struct {
	Rect  geometry.Rect `json:"rect"`
	Text  string        `json:"text"`
	Spans []TextSpan    `json:"spans,omitempty"`
}

// VisualObject is the placement rectangle of a vector path or raster image.
type VisualObject struct {
	Rect geometry.Rect `json:"rect"`
	Kind ObjectKind    `json:"kind"`
}

// Page is the immutable layout of a single page. Index is 0-based.
type Page struct {
	Index   int            `json:"index"`
	Width   float64        `json:"width"`
	Height  float64        `json:"height"`
	Blocks  []TextBlock    `json:"blocks"`
	Objects []VisualObject `json:"objects"`
}

// Number returns the 1-based page number.
func (p *Page) Number() int { return p.Index + 1 }

// Bounds returns the page rectangle.
func (p *Page) Bounds() geometry.Rect { return geometry.R(0, 0, p.Width, p.Height) }

// Source exposes page layouts and the rasterization capability of an open
// document. Implementations must be safe for concurrent use across pages.
type Source interface {
	PageCount() int
	Page(ctx context.Context, index int) (*Page, error)
	// Render rasterizes clip (page units) of page index at scale pixels per unit.
	Render(ctx context.Context, index int, clip geometry.Rect, scale float64) (image.Image, error)
}

// CheckIndex validates index against count.
func CheckIndex(index, count int) error {
	if index < 0 || index >= count {
		return fmt.Errorf("page %d of %d: %w", index+1, count, ErrPageOutOfRange)
	}
	return nil
}

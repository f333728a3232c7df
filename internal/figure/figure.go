// Package figure holds extracted figures and the session list they are
// accumulated in.
package figure

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// DefaultMinPixels rejects slivers left over after trimming.
const DefaultMinPixels = 20

// ErrTooSmall is returned by Assemble for images below the pixel threshold.
var ErrTooSmall = errors.New("figure below minimum size")

// ExtractedFigure is an immutable, PNG-encoded figure crop.
type ExtractedFigure struct {
	PNG    []byte `json:"-"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Name   string `json:"name"`
	Page   int    `json:"page"`
}

// Label is the listing line shown to users, e.g. "P3 - 图1 系统架构图".
func (f *ExtractedFigure) Label() string { return fmt.Sprintf("P%d - %s", f.Page, f.Name) }

// PlaceholderName names figures whose caption text could not be found.
func PlaceholderName(page int) string { return fmt.Sprintf("Figure_Page_%d", page) }

// Assemble encodes img and packages it with its sanitized name and 1-based
// page number. Images narrower or shorter than minPixels are rejected with
// ErrTooSmall.
func Assemble(img image.Image, name string, page, minPixels int) (*ExtractedFigure, error) {
	if img == nil {
		return nil, ErrTooSmall
	}
	b := img.Bounds()
	if b.Dx() < minPixels || b.Dy() < minPixels || b.Empty() {
		return nil, fmt.Errorf("%dx%d on page %d: %w", b.Dx(), b.Dy(), page, ErrTooSmall)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode figure png: %w", err)
	}

	name = Sanitize(name)
	if name == "" {
		name = PlaceholderName(page)
	}
	return &ExtractedFigure{
		PNG:    buf.Bytes(),
		Width:  b.Dx(),
		Height: b.Dy(),
		Name:   name,
		Page:   page,
	}, nil
}

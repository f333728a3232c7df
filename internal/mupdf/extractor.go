package mupdf

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/local/figcrop/internal/document"
	"github.com/local/figcrop/internal/geometry"
)

// LayoutReader produces the text and object layout of a single page.
type LayoutReader interface {
	ReadLayout(ctx context.Context, pdfPath string, index int) (*document.Page, error)
}

// Extractor reads page layouts with "mutool draw -F stext". Images and
// vector paths are kept so figures can be located by their drawings.
type Extractor struct {
	Binary string
}

// NewExtractor creates a new MuPDF layout extractor
func NewExtractor() *Extractor {
	return &Extractor{Binary: "mutool"}
}

// IsAvailable checks if MuPDF tools are available
func (e *Extractor) IsAvailable() bool {
	_, err := exec.LookPath(e.Binary)
	return err == nil
}

// ReadLayout extracts the layout of the 0-based page index.
func (e *Extractor) ReadLayout(ctx context.Context, pdfPath string, index int) (*document.Page, error) {
	pageNum := index + 1
	log.Debug().Str("pdf", pdfPath).Int("page", pageNum).Msg("reading page layout with mutool")

	cmd := exec.CommandContext(ctx, e.Binary, "draw", "-q", "-F", "stext",
		"-O", "preserve-images,collect-vectors", "-o", "-", pdfPath, strconv.Itoa(pageNum))
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("mutool failed for page %d: %s", pageNum, strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("run mutool for page %d: %w", pageNum, err)
	}

	pages, err := ParseStext(bytes.NewReader(output))
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", pageNum, err)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("page %d: mutool returned no page", pageNum)
	}
	page := pages[0]
	page.Index = index

	log.Debug().
		Int("page", pageNum).
		Int("blocks", len(page.Blocks)).
		Int("objects", len(page.Objects)).
		Msg("page layout extracted")
	return page, nil
}

type stextDocument struct {
	Pages []stextPage `xml:"page"`
}

type stextPage struct {
	Width   float64      `xml:"width,attr"`
	Height  float64      `xml:"height,attr"`
	Blocks  []stextBlock `xml:"block"`
	Images  []stextBox   `xml:"image"`
	Vectors []stextBox   `xml:"vector"`
}

type stextBlock struct {
	BBox  string      `xml:"bbox,attr"`
	Lines []stextLine `xml:"line"`
}

type stextLine struct {
	BBox  string      `xml:"bbox,attr"`
	Fonts []stextFont `xml:"font"`
}

type stextFont struct {
	Chars []stextChar `xml:"char"`
}

type stextChar struct {
	Quad string `xml:"quad,attr"`
	C    string `xml:"c,attr"`
}

type stextBox struct {
	BBox string `xml:"bbox,attr"`
}

// ParseStext decodes mutool structured-text XML into pages. Each font run
// of a line becomes a TextSpan; lines of a block are joined with newlines.
// Pages are numbered in document order starting at 0.
func ParseStext(r io.Reader) ([]*document.Page, error) {
	var doc stextDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode stext: %w", err)
	}

	pages := make([]*document.Page, 0, len(doc.Pages))
	for i, sp := range doc.Pages {
		page := &document.Page{Index: i, Width: sp.Width, Height: sp.Height}
		for _, sb := range sp.Blocks {
			if b, ok := convertBlock(sb); ok {
				page.Blocks = append(page.Blocks, b)
			}
		}
		for _, im := range sp.Images {
			if r, ok := parseBox(im.BBox); ok && !r.IsEmpty() {
				page.Objects = append(page.Objects, document.VisualObject{Rect: r, Kind: document.KindImage})
			}
		}
		for _, v := range sp.Vectors {
			if r, ok := parseBox(v.BBox); ok && (r.Width() > 0 || r.Height() > 0) {
				page.Objects = append(page.Objects, document.VisualObject{Rect: thicken(r), Kind: document.KindPath})
			}
		}
		pages = append(pages, page)
	}
	return pages, nil
}

func convertBlock(sb stextBlock) (document.TextBlock, bool) {
	var (
		block document.TextBlock
		lines []string
	)
	block.Rect, _ = parseBox(sb.BBox)
	for _, sl := range sb.Lines {
		lineRect, _ := parseBox(sl.BBox)
		var lineText strings.Builder
		for _, f := range sl.Fonts {
			span := document.TextSpan{}
			var text strings.Builder
			for _, c := range f.Chars {
				text.WriteString(c.C)
				if q, ok := parseQuad(c.Quad); ok {
					span.Rect = span.Rect.Union(q)
				}
			}
			span.Text = text.String()
			if strings.TrimSpace(span.Text) == "" {
				lineText.WriteString(span.Text)
				continue
			}
			if span.Rect.IsEmpty() {
				span.Rect = lineRect
			}
			block.Spans = append(block.Spans, span)
			lineText.WriteString(span.Text)
		}
		if s := strings.TrimSpace(lineText.String()); s != "" {
			lines = append(lines, s)
		}
	}
	if len(lines) == 0 {
		return block, false
	}
	block.Text = strings.Join(lines, "\n")
	if block.Rect.IsEmpty() {
		for _, s := range block.Spans {
			block.Rect = block.Rect.Union(s.Rect)
		}
	}
	return block, true
}

// parseBox parses "x0 y0 x1 y1".
// hairline is the thickness given to zero-width or zero-height vectors so
// that axis rules and frame edges count as drawing content.
const hairline = 0.5

func thicken(r geometry.Rect) geometry.Rect {
	if r.Width() == 0 {
		r.X0, r.X1 = r.X0-hairline/2, r.X1+hairline/2
	}
	if r.Height() == 0 {
		r.Y0, r.Y1 = r.Y0-hairline/2, r.Y1+hairline/2
	}
	return r
}

func parseBox(s string) (geometry.Rect, bool) {
	v, ok := parseFloats(s, 4)
	if !ok {
		return geometry.Rect{}, false
	}
	return geometry.R(v[0], v[1], v[2], v[3]).Normalize(), true
}

// parseQuad parses the four corners of a glyph quad into its bounding box.
func parseQuad(s string) (geometry.Rect, bool) {
	v, ok := parseFloats(s, 8)
	if !ok {
		return geometry.Rect{}, false
	}
	r := geometry.R(v[0], v[1], v[0], v[1])
	for i := 2; i < 8; i += 2 {
		r.X0 = min(r.X0, v[i])
		r.X1 = max(r.X1, v[i])
		r.Y0 = min(r.Y0, v[i+1])
		r.Y1 = max(r.Y1, v[i+1])
	}
	return r, true
}

func parseFloats(s string, n int) ([]float64, bool) {
	fields := strings.Fields(s)
	if len(fields) != n {
		return nil, false
	}
	out := make([]float64, n)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

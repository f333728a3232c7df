package mupdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"

	"github.com/local/figcrop/internal/document"
	"github.com/local/figcrop/internal/geometry"
)

// DefaultRenderCache bounds the number of memoized full-page renders. A
// letter page at 600 DPI is roughly 130 MB of RGBA.
const DefaultRenderCache = 4

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("mupdf: document closed")

// Options configures Open.
type Options struct {
	// Layout reads page layouts. Defaults to the mutool Extractor.
	Layout LayoutReader
	// RenderCache is the number of full-page renders kept in memory.
	RenderCache int
}

type renderKey struct {
	page int
	zoom float64
}

// Document is an open PDF backed by go-fitz for rasterization and a
// LayoutReader for text and object positions. It implements
// document.Source and is safe for concurrent use.
type Document struct {
	path   string
	doc    *fitz.Document
	pages  int
	layout LayoutReader

	// fitz calls hold closeMu for reading; Close takes it for writing.
	closeMu sync.RWMutex
	closed  bool

	layoutMu sync.Mutex
	layouts  map[int]*document.Page

	renderMu    sync.Mutex
	renders     map[renderKey]*image.RGBA
	renderOrder []renderKey
	renderCap   int
}

// Open opens the PDF at path.
func Open(path string, opts Options) (*Document, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	n := doc.NumPage()

	// pdfcpu is stricter than MuPDF; a disagreement is logged, MuPDF wins
	if count, err := api.PageCountFile(path); err != nil {
		log.Debug().Err(err).Str("pdf", path).Msg("pdfcpu page count unavailable")
	} else if count != n {
		log.Warn().Int("mupdf", n).Int("pdfcpu", count).Str("pdf", path).Msg("page count mismatch")
	}

	if opts.Layout == nil {
		opts.Layout = NewExtractor()
	}
	if opts.RenderCache <= 0 {
		opts.RenderCache = DefaultRenderCache
	}
	return &Document{
		path:      path,
		doc:       doc,
		pages:     n,
		layout:    opts.Layout,
		layouts:   make(map[int]*document.Page),
		renders:   make(map[renderKey]*image.RGBA),
		renderCap: opts.RenderCache,
	}, nil
}

// Path returns the file the document was opened from.
func (d *Document) Path() string { return d.path }

// PageCount returns the number of pages.
func (d *Document) PageCount() int { return d.pages }

// Page returns the memoized layout of the 0-based page index.
func (d *Document) Page(ctx context.Context, index int) (*document.Page, error) {
	if err := document.CheckIndex(index, d.pages); err != nil {
		return nil, err
	}
	d.layoutMu.Lock()
	page, ok := d.layouts[index]
	d.layoutMu.Unlock()
	if ok {
		return page, nil
	}
	if d.isClosed() {
		return nil, ErrClosed
	}

	page, err := d.layout.ReadLayout(ctx, d.path, index)
	if err != nil {
		return nil, err
	}
	page.Index = index
	if page.Width <= 0 || page.Height <= 0 {
		b, err := d.bound(index)
		if err != nil {
			return nil, fmt.Errorf("page %d bounds: %w", index+1, err)
		}
		page.Width, page.Height = float64(b.Dx()), float64(b.Dy())
	}

	d.layoutMu.Lock()
	d.layouts[index] = page
	d.layoutMu.Unlock()
	return page, nil
}

// PageText returns the plain text of the 0-based page index.
func (d *Document) PageText(_ context.Context, index int) (string, error) {
	if err := document.CheckIndex(index, d.pages); err != nil {
		return "", err
	}
	d.closeMu.RLock()
	defer d.closeMu.RUnlock()
	if d.closed {
		return "", ErrClosed
	}
	text, err := d.doc.Text(index)
	if err != nil {
		return "", fmt.Errorf("failed to extract text from page %d: %w", index+1, err)
	}
	return text, nil
}

// Render rasterizes clip of the 0-based page at scale pixels per page unit.
// The whole page is rendered once per (page, scale) and cropped.
func (d *Document) Render(ctx context.Context, index int, clip geometry.Rect, scale float64) (image.Image, error) {
	full, err := d.pageImage(ctx, index, scale)
	if err != nil {
		return nil, err
	}
	px := clip.Scale(scale).Image().Intersect(full.Bounds())
	if px.Empty() {
		return nil, fmt.Errorf("clip %s outside page %d", clip, index+1)
	}
	return imaging.Crop(full, px), nil
}

// PreviewPNG renders the whole page at zoom and encodes it as PNG.
func (d *Document) PreviewPNG(ctx context.Context, index int, zoom float64) ([]byte, error) {
	full, err := d.pageImage(ctx, index, zoom)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, full, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode preview: %w", err)
	}
	return buf.Bytes(), nil
}

func (d *Document) pageImage(ctx context.Context, index int, zoom float64) (*image.RGBA, error) {
	if err := document.CheckIndex(index, d.pages); err != nil {
		return nil, err
	}
	if zoom <= 0 {
		return nil, fmt.Errorf("invalid zoom %v", zoom)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.closeMu.RLock()
	defer d.closeMu.RUnlock()
	if d.closed {
		return nil, ErrClosed
	}

	key := renderKey{page: index, zoom: zoom}
	d.renderMu.Lock()
	defer d.renderMu.Unlock()
	if img, ok := d.renders[key]; ok {
		return img, nil
	}

	img, err := d.doc.ImageDPI(index, 72*zoom)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", index+1, err)
	}
	log.Debug().Int("page", index+1).Float64("zoom", zoom).
		Int("width", img.Bounds().Dx()).Int("height", img.Bounds().Dy()).Msg("rendered page")

	if len(d.renderOrder) >= d.renderCap {
		oldest := d.renderOrder[0]
		d.renderOrder = d.renderOrder[1:]
		delete(d.renders, oldest)
	}
	d.renders[key] = img
	d.renderOrder = append(d.renderOrder, key)
	return img, nil
}

func (d *Document) bound(index int) (image.Rectangle, error) {
	d.closeMu.RLock()
	defer d.closeMu.RUnlock()
	if d.closed {
		return image.Rectangle{}, ErrClosed
	}
	return d.doc.Bound(index)
}

func (d *Document) isClosed() bool {
	d.closeMu.RLock()
	defer d.closeMu.RUnlock()
	return d.closed
}

// Close releases the underlying MuPDF document once running renders have
// returned. Later calls fail with ErrClosed.
func (d *Document) Close() error {
	d.closeMu.Lock()
	defer d.closeMu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	d.renderMu.Lock()
	d.renders = nil
	d.renderOrder = nil
	d.renderMu.Unlock()
	return d.doc.Close()
}

// Package engine resolves figure regions on document pages and turns them
// into trimmed, caption-labelled crops.
//
// Three entry points share one pipeline (render, optional mask, trim,
// assemble):
//   - ExtractAuto scans pages for caption blocks and resolves the region above each.
//   - ExtractManual crops a user-drawn rectangle and paints out the text inside it.
//   - ExtractCaptionSelect treats a user-drawn rectangle as the caption and
//     resolves the region above it.
//
// Heuristic misses never fail a call. Anchors that yield no usable region are
// skipped and only show up in the Summary counts.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/figcrop/internal/document"
	"github.com/local/figcrop/internal/figure"
	"github.com/local/figcrop/internal/geometry"
	"github.com/local/figcrop/internal/mask"
	"github.com/local/figcrop/internal/metrics"
	"github.com/local/figcrop/internal/region"
	"github.com/local/figcrop/internal/trim"
)

// Mode labels the entry point that produced a figure.
type Mode string

const (
	ModeAuto    Mode = "auto"
	ModeManual  Mode = "manual"
	ModeCaption Mode = "caption"
)

// Skip reasons reported to logs and metrics.
const (
	skipRegion = "region_too_small"
	skipRender = "render_failed"
	skipSmall  = "figure_too_small"
	skipEncode = "encode_failed"
)

// Options configures the engine.
type Options struct {
	Region region.Params
	Trim   trim.Options
	Mask   mask.Options
	// RenderZoom is the resolution multiplier for figure renders (8.33 ~ 600 DPI).
	RenderZoom      float64
	MinFigurePixels int
	// PageWorkers bounds how many pages ExtractAuto resolves concurrently.
	PageWorkers int
}

// DefaultOptions renders at 600 DPI with the default heuristics.
func DefaultOptions() Options {
	return Options{
		Region:          region.DefaultParams(),
		Trim:            trim.DefaultOptions(),
		Mask:            mask.DefaultOptions(),
		RenderZoom:      8.33,
		MinFigurePixels: figure.DefaultMinPixels,
		PageWorkers:     4,
	}
}

// Summary reports the result of one extraction call.
type Summary struct {
	Anchors  int                       `json:"anchors"`
	Produced int                       `json:"produced"`
	Skipped  int                       `json:"skipped"`
	Figures  []*figure.ExtractedFigure `json:"figures"`
}

func (s *Summary) add(o Summary) {
	s.Anchors += o.Anchors
	s.Produced += o.Produced
	s.Skipped += o.Skipped
	s.Figures = append(s.Figures, o.Figures...)
}

// Engine runs extractions against one document source.
type Engine struct {
	src  document.Source
	opts Options
}

// New creates an Engine. Zero-valued zoom, worker and pixel options fall
// back to DefaultOptions.
func New(src document.Source, opts Options) *Engine {
	def := DefaultOptions()
	if opts.RenderZoom <= 0 {
		opts.RenderZoom = def.RenderZoom
	}
	if opts.PageWorkers <= 0 {
		opts.PageWorkers = def.PageWorkers
	}
	if opts.MinFigurePixels <= 0 {
		opts.MinFigurePixels = def.MinFigurePixels
	}
	return &Engine{src: src, opts: opts}
}

// produce renders r on page, masks spans when given, trims and assembles a
// figure. It returns a skip reason instead of an error.
func (e *Engine) produce(ctx context.Context, mode Mode, page *document.Page, r geometry.Rect, name string, spans []document.TextSpan) (*figure.ExtractedFigure, string) {
	logger := log.With().Str("mode", string(mode)).Int("page", page.Number()).Str("region", r.String()).Logger()

	start := time.Now()
	img, err := e.src.Render(ctx, page.Index, r, e.opts.RenderZoom)
	metrics.ObserveRender(time.Since(start))
	if err != nil {
		logger.Warn().Err(err).Msg("render failed; skipping anchor")
		return nil, skipRender
	}

	if len(spans) > 0 {
		img = mask.Paint(img, spans, r, e.opts.RenderZoom, e.opts.Mask)
	}

	res := trim.Trim(img, e.opts.Trim)
	metrics.IncTrim(res.Outcome.String())
	out := res.Image
	if res.Outcome == trim.Failed {
		logger.Warn().Err(res.Err).Msg("trim failed; keeping untrimmed render")
		out = img
	}

	fig, err := figure.Assemble(out, name, page.Number(), e.opts.MinFigurePixels)
	if err != nil {
		if errors.Is(err, figure.ErrTooSmall) {
			logger.Debug().Err(err).Msg("trimmed figure too small")
			return nil, skipSmall
		}
		logger.Warn().Err(err).Msg("assemble figure failed")
		return nil, skipEncode
	}
	logger.Debug().Str("name", fig.Name).Int("width", fig.Width).Int("height", fig.Height).Msg("figure extracted")
	return fig, ""
}

func (e *Engine) record(mode Mode, sum *Summary, fig *figure.ExtractedFigure, reason string) {
	sum.Anchors++
	if fig == nil {
		sum.Skipped++
		metrics.IncSkipped(reason)
		return
	}
	sum.Produced++
	sum.Figures = append(sum.Figures, fig)
	metrics.IncFigures(string(mode))
}

func (e *Engine) page(ctx context.Context, index int) (*document.Page, error) {
	if err := document.CheckIndex(index, e.src.PageCount()); err != nil {
		return nil, err
	}
	return e.src.Page(ctx, index)
}

package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/local/figcrop/internal/caption"
	"github.com/local/figcrop/internal/document"
	"github.com/local/figcrop/internal/figure"
	"github.com/local/figcrop/internal/geometry"
	"github.com/local/figcrop/internal/mask"
	"github.com/local/figcrop/internal/region"
)

// ExtractAuto detects caption anchors on the given 0-based pages (all pages
// when pages is empty) and appends one figure per usable anchor to sess.
// Pages are resolved concurrently; figures are appended in page order and,
// within a page, in block order.
func (e *Engine) ExtractAuto(ctx context.Context, sess *figure.Session, pages []int) (Summary, error) {
	count := e.src.PageCount()
	if len(pages) == 0 {
		pages = make([]int, count)
		for i := range pages {
			pages[i] = i
		}
	}
	for _, idx := range pages {
		if err := document.CheckIndex(idx, count); err != nil {
			return Summary{}, err
		}
	}

	results := make([]Summary, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.PageWorkers)
	for i, idx := range pages {
		i, idx := i, idx
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.autoPage(gctx, idx)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Summary{}, fmt.Errorf("auto extraction: %w", err)
	}

	var sum Summary
	for _, r := range results {
		sum.add(r)
	}
	sess.Append(sum.Figures...)
	log.Info().Str("session", sess.ID).Int("pages", len(pages)).Int("anchors", sum.Anchors).
		Int("produced", sum.Produced).Int("skipped", sum.Skipped).Msg("auto extraction finished")
	return sum, nil
}

func (e *Engine) autoPage(ctx context.Context, index int) Summary {
	var sum Summary
	page, err := e.src.Page(ctx, index)
	if err != nil {
		log.Warn().Err(err).Int("page", index+1).Msg("read page layout failed; skipping page")
		return sum
	}
	for i, b := range page.Blocks {
		text := caption.Normalize(b.Text)
		if !caption.IsCaption(text) {
			continue
		}
		res, ok := region.Resolve(page, b.Rect, i, e.opts.Region)
		if !ok {
			log.Debug().Int("page", page.Number()).Str("caption", text).Msg("no usable region above caption")
			e.record(ModeAuto, &sum, nil, skipRegion)
			continue
		}
		fig, reason := e.produce(ctx, ModeAuto, page, res.Region, text, nil)
		e.record(ModeAuto, &sum, fig, reason)
	}
	return sum
}

// ExtractManual crops sel (page units) from the 0-based page, paints out the
// text spans inside it and names the figure after that text.
func (e *Engine) ExtractManual(ctx context.Context, sess *figure.Session, index int, sel geometry.Rect) (Summary, error) {
	page, err := e.page(ctx, index)
	if err != nil {
		return Summary{}, err
	}
	var sum Summary
	sel = sel.Normalize().Intersect(page.Bounds())
	if sel.IsEmpty() {
		log.Debug().Int("page", page.Number()).Msg("manual selection is empty")
		e.record(ModeManual, &sum, nil, skipRegion)
		return sum, nil
	}

	spans := mask.Spans(page, sel)
	name := mask.CaptionText(spans)
	if name == "" {
		name = figure.PlaceholderName(page.Number())
	}
	fig, reason := e.produce(ctx, ModeManual, page, sel, name, spans)
	e.record(ModeManual, &sum, fig, reason)
	sess.Append(sum.Figures...)
	return sum, nil
}

// ExtractCaptionSelect treats sel as a caption drawn by the user, names the
// figure after the text inside it and resolves the region above it the way
// ExtractAuto does for detected captions.
func (e *Engine) ExtractCaptionSelect(ctx context.Context, sess *figure.Session, index int, sel geometry.Rect) (Summary, error) {
	page, err := e.page(ctx, index)
	if err != nil {
		return Summary{}, err
	}
	var sum Summary
	sel = sel.Normalize().Intersect(page.Bounds())
	if sel.IsEmpty() {
		e.record(ModeCaption, &sum, nil, skipRegion)
		return sum, nil
	}

	name := mask.CaptionText(mask.Spans(page, sel))
	if name == "" {
		name = figure.PlaceholderName(page.Number())
	}
	res, ok := region.Resolve(page, sel, -1, e.opts.Region)
	if !ok {
		log.Debug().Int("page", page.Number()).Str("caption", name).Msg("no usable region above selection")
		e.record(ModeCaption, &sum, nil, skipRegion)
		return sum, nil
	}
	fig, reason := e.produce(ctx, ModeCaption, page, res.Region, name, nil)
	e.record(ModeCaption, &sum, fig, reason)
	sess.Append(sum.Figures...)
	return sum, nil
}

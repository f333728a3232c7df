package orchestrator

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/local/figcrop/internal/engine"
	"github.com/local/figcrop/internal/figure"
	"github.com/local/figcrop/internal/geometry"
	"github.com/local/figcrop/internal/logger"
)

type figureItem struct {
	Index  int    `json:"index,omitempty"`
	Label  string `json:"label"`
	Name   string `json:"name"`
	Page   int    `json:"page"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

func newFigureItem(index int, f *figure.ExtractedFigure) figureItem {
	return figureItem{Index: index, Label: f.Label(), Name: f.Name, Page: f.Page, Width: f.Width, Height: f.Height}
}

type summaryResp struct {
	Produced     int          `json:"produced"`
	Anchors      int          `json:"anchors"`
	Skipped      int          `json:"skipped"`
	TotalFigures int          `json:"total_figures"`
	Figures      []figureItem `json:"figures"`
}

func newSummaryResp(sum engine.Summary, total int) summaryResp {
	resp := summaryResp{
		Produced:     sum.Produced,
		Anchors:      sum.Anchors,
		Skipped:      sum.Skipped,
		TotalFigures: total,
		Figures:      make([]figureItem, 0, len(sum.Figures)),
	}
	for _, f := range sum.Figures {
		resp.Figures = append(resp.Figures, newFigureItem(0, f))
	}
	return resp
}

type autoReq struct {
	Pages string `json:"pages"`
}

func (o *Orchestrator) handleAuto(w http.ResponseWriter, r *http.Request) {
	s, ok := o.lookup(w, r)
	if !ok {
		return
	}
	var req autoReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	pages, err := ParsePages(req.Pages, s.doc.PageCount())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	release, ok := o.reserve(w, s)
	if !ok {
		return
	}
	defer release()

	sum, err := s.eng.ExtractAuto(r.Context(), s.figs, pages)
	if err != nil {
		fail(w, err, "auto extraction failed")
		return
	}
	if len(pages) == 0 {
		pages = make([]int, s.doc.PageCount())
		for i := range pages {
			pages[i] = i
		}
	}
	s.markProcessed(pages...)
	o.finishAction(r, s, engine.ModeAuto, sum)
	writeJSON(w, http.StatusOK, newSummaryResp(sum, s.figs.Len()))
}

// selectionReq is a rectangle drawn on page Page (1-based). With a positive
// Zoom the rectangle is in preview canvas pixels and is divided by Zoom;
// otherwise it is in page units.
type selectionReq struct {
	Page int        `json:"page"`
	Rect [4]float64 `json:"rect"`
	Zoom float64    `json:"zoom"`
}

func (q selectionReq) rect() geometry.Rect {
	r := geometry.R(q.Rect[0], q.Rect[1], q.Rect[2], q.Rect[3])
	if q.Zoom > 0 {
		r = r.Scale(1 / q.Zoom)
	}
	return r.Normalize()
}

func (o *Orchestrator) handleSelection(mode engine.Mode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := o.lookup(w, r)
		if !ok {
			return
		}
		var req selectionReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		index := req.Page - 1
		release, ok := o.reserve(w, s)
		if !ok {
			return
		}
		defer release()

		var (
			sum engine.Summary
			err error
		)
		if mode == engine.ModeManual {
			sum, err = s.eng.ExtractManual(r.Context(), s.figs, index, req.rect())
		} else {
			sum, err = s.eng.ExtractCaptionSelect(r.Context(), s.figs, index, req.rect())
		}
		if err != nil {
			fail(w, err, string(mode)+" extraction failed")
			return
		}
		s.markProcessed(index)
		o.finishAction(r, s, mode, sum)
		writeJSON(w, http.StatusOK, newSummaryResp(sum, s.figs.Len()))
	}
}

// finishAction logs the call and records the session status.
func (o *Orchestrator) finishAction(r *http.Request, s *session, mode engine.Mode, sum engine.Summary) {
	l := logger.ForSession(s.id)
	l.Info().
		Str("mode", string(mode)).
		Int("anchors", sum.Anchors).
		Int("produced", sum.Produced).
		Int("skipped", sum.Skipped).
		Int("total_figures", s.figs.Len()).
		Msg("extraction finished")
	o.setStatus(r.Context(), s, string(mode), "", map[string]any{
		"anchors":  sum.Anchors,
		"produced": sum.Produced,
		"skipped":  sum.Skipped,
	})
}

func (o *Orchestrator) handleFigures(w http.ResponseWriter, r *http.Request) {
	s, ok := o.lookup(w, r)
	if !ok {
		return
	}
	figs := s.figs.Figures()
	items := make([]figureItem, 0, len(figs))
	for i, f := range figs {
		items = append(items, newFigureItem(i+1, f))
	}
	writeJSON(w, http.StatusOK, map[string]any{"total_figures": len(items), "figures": items})
}

func (o *Orchestrator) handleClearFigures(w http.ResponseWriter, r *http.Request) {
	s, ok := o.lookup(w, r)
	if !ok {
		return
	}
	n := s.figs.Clear()
	o.setStatus(r.Context(), s, "clear", "")
	writeJSON(w, http.StatusOK, map[string]int{"cleared": n})
}

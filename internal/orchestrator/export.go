package orchestrator

import (
	"bytes"
	"fmt"
	"net/http"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/local/figcrop/internal/export"
	"github.com/local/figcrop/internal/logger"
	"github.com/local/figcrop/internal/metrics"
	"github.com/local/figcrop/internal/storage"
)

const (
	formatZip  = "zip"
	formatDeck = "deck"
)

// handleExport streams the session figures as a ZIP or a slide deck, or
// uploads them to S3 when upload=s3 is given. S3 keys are versioned:
// <prefix><session>/<name>_v<N><ext>.
func (o *Orchestrator) handleExport(w http.ResponseWriter, r *http.Request) {
	s, ok := o.lookup(w, r)
	if !ok {
		return
	}
	format := r.PathValue("format")
	figs := s.figs.Figures()

	var (
		buf         bytes.Buffer
		name, ctype string
		err         error
	)
	switch format {
	case formatZip:
		name, ctype = export.ArchiveName, "application/zip"
		err = export.WriteArchive(&buf, figs)
	case formatDeck:
		ratio, perr := export.ParseRatio(r.URL.Query().Get("ratio"))
		if perr != nil {
			writeError(w, http.StatusBadRequest, perr.Error())
			return
		}
		name, ctype = export.DeckName, "application/pdf"
		err = export.WriteDeck(&buf, figs, export.DeckOptions{Ratio: ratio, FontFile: o.cfg.DeckFont})
	default:
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown export format %q", format))
		return
	}
	if err != nil {
		fail(w, err, "export failed")
		return
	}

	l := logger.ForSession(s.id)
	switch dest := r.URL.Query().Get("upload"); dest {
	case "":
		w.Header().Set("Content-Type", ctype)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", name))
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
		metrics.IncExport(format, "download")
		l.Info().Str("format", format).Int("figures", len(figs)).Msg("export downloaded")
	case "s3":
		if o.deps.S3 == nil {
			writeError(w, http.StatusServiceUnavailable, "s3 storage not configured")
			return
		}
		ext := filepath.Ext(name)
		base := path.Join(o.cfg.ExportPrefix, s.id, strings.TrimSuffix(name, ext))
		url, err := o.deps.S3.UploadVersioned(r.Context(), base, ext, &buf, &storage.FileMetadata{
			OriginalName: name,
			ContentType:  ctype,
			Metadata:     map[string]string{"session": s.id, "document": s.name},
		})
		if err != nil {
			l.Error().Err(err).Str("format", format).Msg("export upload failed")
			writeError(w, http.StatusBadGateway, "upload failed")
			return
		}
		metrics.IncExport(format, "s3")
		o.setStatus(r.Context(), s, "export", url)
		l.Info().Str("format", format).Str("url", url).Int("figures", len(figs)).Msg("export uploaded")
		writeJSON(w, http.StatusOK, map[string]any{"url": url, "figures": len(figs)})
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown upload destination %q", dest))
	}
}

// handleFigurePNG serves figure n (1-based, in session order).
func (o *Orchestrator) handleFigurePNG(w http.ResponseWriter, r *http.Request) {
	s, ok := o.lookup(w, r)
	if !ok {
		return
	}
	figs := s.figs.Figures()
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil || n < 1 || n > len(figs) {
		writeError(w, http.StatusNotFound, "figure not found")
		return
	}
	writePNG(w, figs[n-1].PNG)
}

// handlePreview renders a whole page for the selection canvas.
func (o *Orchestrator) handlePreview(w http.ResponseWriter, r *http.Request) {
	s, ok := o.lookup(w, r)
	if !ok {
		return
	}
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid page")
		return
	}
	zoom := o.cfg.PreviewZoom
	if z := r.URL.Query().Get("zoom"); z != "" {
		if zoom, err = strconv.ParseFloat(z, 64); err != nil || zoom <= 0 || zoom > 10 {
			writeError(w, http.StatusBadRequest, "zoom must be in (0, 10]")
			return
		}
	}
	if !s.begin() {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	data, err := s.doc.PreviewPNG(r.Context(), n-1, zoom)
	s.end()
	if err != nil {
		fail(w, err, "preview failed")
		return
	}
	writePNG(w, data)
}

func writePNG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Package orchestrator exposes document sessions over HTTP: open a PDF, run
// the figure engine against it in auto, manual or caption-select mode, and
// export the accumulated figures.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/figcrop/internal/document"
	"github.com/local/figcrop/internal/engine"
	"github.com/local/figcrop/internal/export"
	"github.com/local/figcrop/internal/filetype"
	"github.com/local/figcrop/internal/limiter"
	"github.com/local/figcrop/internal/metrics"
	"github.com/local/figcrop/internal/mupdf"
	"github.com/local/figcrop/internal/statuscheck"
	"github.com/local/figcrop/internal/storage"
	"github.com/local/figcrop/internal/store"
)

// Document is an open PDF as the orchestrator needs it.
type Document interface {
	document.Source
	PageText(ctx context.Context, index int) (string, error)
	PreviewPNG(ctx context.Context, index int, zoom float64) ([]byte, error)
	Close() error
}

// Opener opens the PDF at path.
type Opener func(path string) (Document, error)

// ObjectStore is the subset of the S3 client used for source downloads and
// export uploads.
type ObjectStore interface {
	Download(ctx context.Context, bucket, key string, w io.Writer) (*storage.FileMetadata, error)
	UploadVersioned(ctx context.Context, baseKey, ext string, body io.Reader, meta *storage.FileMetadata) (string, error)
}

// Dependencies are the collaborators of the Orchestrator. S3 and Checker are
// optional.
type Dependencies struct {
	Status   store.StatusStore
	S3       ObjectStore
	Checker  *statuscheck.Checker
	Detector *filetype.Detector
	Open     Opener
}

// Config holds the HTTP and session settings.
type Config struct {
	Engine       engine.Options
	PreviewZoom  float64
	UploadDir    string
	ExportPrefix string
	DeckFont     string
	MaxUploadMB  int
	// MaxInflight caps concurrent extractions per session.
	MaxInflight  int
	SessionIdle  time.Duration
	FetchTimeout time.Duration
}

type Orchestrator struct {
	cfg      Config
	deps     Dependencies
	sessions *registry
	limits   *limiter.Inflight
	client   *http.Client
}

// New creates an Orchestrator. Documents are opened with mupdf.Open unless
// deps.Open is set.
func New(cfg Config, deps Dependencies) *Orchestrator {
	if deps.Open == nil {
		deps.Open = func(path string) (Document, error) {
			doc, err := mupdf.Open(path, mupdf.Options{})
			if err != nil {
				return nil, err
			}
			return doc, nil
		}
	}
	if deps.Detector == nil {
		deps.Detector = filetype.New()
	}
	if deps.Status == nil {
		deps.Status = store.NewMemoryStatus()
	}
	if cfg.PreviewZoom <= 0 {
		cfg.PreviewZoom = 2
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 200
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 60 * time.Second
	}
	return &Orchestrator{
		cfg:      cfg,
		deps:     deps,
		sessions: newRegistry(),
		limits:   limiter.New(cfg.MaxInflight),
		client:   &http.Client{Timeout: cfg.FetchTimeout},
	}
}

func (o *Orchestrator) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /status", o.handleStatus)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("POST /sessions", o.handleOpen)
	mux.HandleFunc("GET /sessions/{id}", o.handleSessionStatus)
	mux.HandleFunc("DELETE /sessions/{id}", o.handleClose)
	mux.HandleFunc("POST /sessions/{id}/auto", o.handleAuto)
	mux.HandleFunc("POST /sessions/{id}/manual", o.handleSelection(engine.ModeManual))
	mux.HandleFunc("POST /sessions/{id}/caption", o.handleSelection(engine.ModeCaption))
	mux.HandleFunc("GET /sessions/{id}/figures", o.handleFigures)
	mux.HandleFunc("DELETE /sessions/{id}/figures", o.handleClearFigures)
	mux.HandleFunc("GET /sessions/{id}/figures/{n}", o.handleFigurePNG)
	mux.HandleFunc("GET /sessions/{id}/export/{format}", o.handleExport)
	mux.HandleFunc("GET /sessions/{id}/pages/{n}/preview", o.handlePreview)
}

// Shutdown closes every open session.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	for _, s := range o.sessions.all() {
		o.closeSession(ctx, s, "shutdown")
	}
}

func (o *Orchestrator) handleStatus(w http.ResponseWriter, r *http.Request) {
	if o.deps.Checker == nil {
		writeJSON(w, http.StatusOK, map[string]any{"sessions": o.sessions.len()})
		return
	}
	sum := o.deps.Checker.Summary(r.Context())
	code := http.StatusOK
	if !sum.Healthy() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"sessions": o.sessions.len(), "dependencies": sum})
}

func (o *Orchestrator) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, ok, err := o.deps.Status.Get(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Str("session_id", id).Msg("status lookup failed")
		writeError(w, http.StatusInternalServerError, "status unavailable")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "status": st})
}

// reserve takes an extraction slot for s, writing a 429 when the session is
// already busy and a 404 when it is closing.
func (o *Orchestrator) reserve(w http.ResponseWriter, s *session) (func(), bool) {
	if !s.begin() {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	release, ok := o.limits.Allow(s.id)
	if !ok {
		s.end()
		writeError(w, http.StatusTooManyRequests, "too many extractions running for this session")
		return nil, false
	}
	return func() {
		release()
		s.end()
	}, true
}

// lookup resolves the {id} path value to an open session, writing a 404 when
// there is none.
func (o *Orchestrator) lookup(w http.ResponseWriter, r *http.Request) (*session, bool) {
	s, ok := o.sessions.get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return s, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// errorStatus maps domain errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, document.ErrPageOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, filetype.ErrUnsupported):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, export.ErrNoFigures):
		return http.StatusConflict
	case errors.Is(err, mupdf.ErrClosed):
		return http.StatusGone
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func fail(w http.ResponseWriter, err error, msg string) {
	code := errorStatus(err)
	if code >= http.StatusInternalServerError {
		log.Error().Err(err).Msg(msg)
		writeError(w, code, msg)
		return
	}
	writeError(w, code, fmt.Sprintf("%s: %v", msg, err))
}

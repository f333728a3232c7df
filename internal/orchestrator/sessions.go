package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/figcrop/internal/engine"
	"github.com/local/figcrop/internal/figure"
	"github.com/local/figcrop/internal/logger"
	"github.com/local/figcrop/internal/metrics"
	"github.com/local/figcrop/internal/pdftest"
	"github.com/local/figcrop/internal/store"
)

// session is one open document with its engine and figure list.
type session struct {
	id    string
	name  string
	path  string
	owned bool // path is a temp copy removed on close

	doc  Document
	eng  *engine.Engine
	figs *figure.Session

	mu        sync.Mutex
	processed map[int]bool
	lastUsed  time.Time
	closed    bool

	// work counts operations using doc; close waits for it to drain.
	work sync.WaitGroup
}

// begin registers an operation on the document. It reports false once the
// session is closing.
func (s *session) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.work.Add(1)
	return true
}

func (s *session) end() { s.work.Done() }

// drain waits for running operations, giving up when ctx is done.
func (s *session) drain(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		s.work.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *session) touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

func (s *session) markProcessed(pages ...int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range pages {
		s.processed[p] = true
	}
	return len(s.processed)
}

func (s *session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

type registry struct {
	mu sync.RWMutex
	m  map[string]*session
}

func newRegistry() *registry { return &registry{m: make(map[string]*session)} }

func (r *registry) add(s *session) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[s.id] = s
	return len(r.m)
}

func (r *registry) get(id string) (*session, bool) {
	r.mu.RLock()
	s, ok := r.m[id]
	r.mu.RUnlock()
	if ok {
		s.touch()
	}
	return s, ok
}

func (r *registry) remove(id string) (*session, int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.m[id]
	delete(r.m, id)
	return s, len(r.m), ok
}

func (r *registry) all() []*session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*session, 0, len(r.m))
	for _, s := range r.m {
		out = append(out, s)
	}
	return out
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}

type openReq struct {
	FileURL string `json:"file_url"`
}

type openResp struct {
	SessionID string `json:"session_id"`
	Document  string `json:"document"`
	Pages     int    `json:"pages"`
	Scanned   bool   `json:"scanned,omitempty"`
}

// handleOpen accepts either a multipart upload in field "file" or a JSON
// body referencing the PDF by s3://, http(s):// or local path.
func (o *Orchestrator) handleOpen(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(o.cfg.MaxUploadMB)<<20)
	defer r.Body.Close()

	var (
		path, name string
		owned      bool
		err        error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		path, name, err = o.saveUpload(r)
		owned = true
	} else {
		var req openReq
		if derr := json.NewDecoder(r.Body).Decode(&req); derr != nil || req.FileURL == "" {
			writeError(w, http.StatusBadRequest, "expected multipart field file or JSON file_url")
			return
		}
		path, name, owned, err = o.fetchSource(r.Context(), req.FileURL)
	}
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d MB", o.cfg.MaxUploadMB))
			return
		}
		log.Warn().Err(err).Msg("source unavailable")
		writeError(w, http.StatusBadRequest, fmt.Sprintf("source unavailable: %v", err))
		return
	}

	s, scanned, err := o.openSession(r.Context(), path, name, owned)
	if err != nil {
		fail(w, err, "cannot open document")
		return
	}
	writeJSON(w, http.StatusCreated, openResp{SessionID: s.id, Document: s.name, Pages: s.doc.PageCount(), Scanned: scanned})
}

// openSession validates and opens path, probes its text layer and registers
// a new session. An owned path is removed when opening fails.
func (o *Orchestrator) openSession(ctx context.Context, path, name string, owned bool) (*session, bool, error) {
	cleanup := func() {
		if owned {
			_ = os.Remove(path)
		}
	}
	if err := o.deps.Detector.RequirePDF(path); err != nil {
		cleanup()
		return nil, false, err
	}
	doc, err := o.deps.Open(path)
	if err != nil {
		cleanup()
		return nil, false, err
	}

	id := uuid.NewString()
	l := logger.ForSession(id)

	scanned := false
	if diag, err := pdftest.Probe(ctx, doc, pdftest.DefaultThreshold); err != nil {
		l.Debug().Err(err).Msg("text layer probe aborted")
	} else if !diag.HasExtractableText {
		scanned = true
		l.Warn().
			Int("chars", diag.TotalCharsInSample).
			Ints("sampled_pages", diag.SampledPages).
			Msg("document has little extractable text; likely scanned, auto mode will find no captions")
	}

	if name == "" {
		name = filepath.Base(path)
	}
	s := &session{
		id:        id,
		name:      name,
		path:      path,
		owned:     owned,
		doc:       doc,
		eng:       engine.New(doc, o.cfg.Engine),
		figs:      figure.NewSession(id),
		processed: make(map[int]bool),
		lastUsed:  time.Now(),
	}
	metrics.SetSessions(o.sessions.add(s))
	o.setStatus(ctx, s, "open", "")
	l.Info().Str("document", name).Int("pages", doc.PageCount()).Bool("scanned", scanned).Msg("session opened")
	return s, scanned, nil
}

func (o *Orchestrator) handleClose(w http.ResponseWriter, r *http.Request) {
	s, _, ok := o.sessions.remove(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	o.closeSession(r.Context(), s, "closed by client")
	w.WriteHeader(http.StatusNoContent)
}

// closeSession waits for running extractions, releases the document, removes
// owned temp files and records the final status. It is safe to call more than
// once.
func (o *Orchestrator) closeSession(ctx context.Context, s *session, reason string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	_, n, _ := o.sessions.remove(s.id)
	metrics.SetSessions(n)
	o.limits.Forget(s.id)

	l := logger.ForSession(s.id)
	if !s.drain(ctx) {
		// the document rejects calls after Close, stragglers skip their anchors
		l.Warn().Msg("closing with extractions still running")
	}
	if err := s.doc.Close(); err != nil {
		l.Warn().Err(err).Msg("close document")
	}
	if s.owned {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			l.Warn().Err(err).Str("path", s.path).Msg("remove temp source")
		}
	}
	st := o.status(s, "close", reason)
	st.State = store.StateClosed
	if err := o.deps.Status.Set(ctx, s.id, st); err != nil {
		l.Warn().Err(err).Msg("status update failed")
	}
	l.Info().Str("reason", reason).Int("figures", s.figs.Len()).Msg("session closed")
}

func (o *Orchestrator) status(s *session, action, msg string) store.Status {
	s.mu.Lock()
	processed := len(s.processed)
	s.mu.Unlock()
	return store.Status{
		State:          store.StateOpen,
		Document:       s.name,
		Pages:          s.doc.PageCount(),
		Figures:        s.figs.Len(),
		PagesProcessed: processed,
		LastAction:     action,
		Message:        msg,
		Updated:        time.Now().UTC(),
	}
}

// setStatus records the session state after an action. Failures are logged
// only; the status store is informational.
func (o *Orchestrator) setStatus(ctx context.Context, s *session, action, msg string, meta ...map[string]any) {
	st := o.status(s, action, msg)
	if len(meta) > 0 {
		st.Metadata = meta[0]
	}
	if err := o.deps.Status.Set(ctx, s.id, st); err != nil {
		log.Warn().Err(err).Str("session_id", s.id).Msg("status update failed")
	}
}

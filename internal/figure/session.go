package figure

import (
	"sync"
	"time"
)

// Session accumulates the figures extracted from one open document. Figures
// are only ever appended or cleared as a whole, so a slice returned by
// Figures is never mutated afterwards.
type Session struct {
	ID      string
	Created time.Time

	mu      sync.RWMutex
	figures []*ExtractedFigure
}

// NewSession creates an empty session.
func NewSession(id string) *Session {
	return &Session{ID: id, Created: time.Now()}
}

// Append adds figures in order.
func (s *Session) Append(figs ...*ExtractedFigure) {
	if len(figs) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.figures = append(s.figures, figs...)
}

// Figures returns a snapshot of the accumulated figures.
func (s *Session) Figures() []*ExtractedFigure {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ExtractedFigure, len(s.figures))
	copy(out, s.figures)
	return out
}

// Len returns the number of accumulated figures.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.figures)
}

// Clear drops every figure and returns how many were removed.
func (s *Session) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.figures)
	s.figures = nil
	return n
}

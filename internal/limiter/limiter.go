// Package limiter caps concurrent work per key within the process.
package limiter

import "sync"

// Inflight hands out at most max slots per key.
type Inflight struct {
	mu  sync.Mutex
	max int
	sem map[string]chan struct{}
}

// New creates an Inflight limiter. A non-positive max defaults to 2.
func New(max int) *Inflight {
	if max <= 0 {
		max = 2
	}
	return &Inflight{max: max, sem: map[string]chan struct{}{}}
}

// Allow tries to reserve a slot for key.
// Returns a release function and true if allowed; otherwise a no-op and false.
func (a *Inflight) Allow(key string) (func(), bool) {
	a.mu.Lock()
	ch, ok := a.sem[key]
	if !ok {
		ch = make(chan struct{}, a.max)
		a.sem[key] = ch
	}
	a.mu.Unlock()
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, true
	default:
		return func() {}, false
	}
}

// Forget drops the slots of key. Releases of slots taken before Forget are
// still safe to call.
func (a *Inflight) Forget(key string) {
	a.mu.Lock()
	delete(a.sem, key)
	a.mu.Unlock()
}

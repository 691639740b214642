// File: internal/browser/statusslot.go
package browser

import (
	"context"
	"sync"
	"time"
)

// StatusSlot holds the latest observed HTTP status for one URL path. A slot
// is created through Session.WatchPath and fed by the session's network
// event listener.
//
// Correlation is by path only: a slot cannot distinguish two in-flight
// requests to the same path. Components own that ambiguity by calling Reset
// immediately before the action that triggers the request they care about;
// Reset clears the slot, so anything observed earlier is gone. A response
// that was already in flight for an older request can still land after the
// reset — that residual fragility is inherent to path-only matching and is
// bounded by the callers' reset-then-act discipline.
type StatusSlot struct {
	path string

	mu     sync.Mutex
	status int
}

// NewStatusSlot creates a detached slot for the given path fragment. Slots
// used against a live session come from Session.WatchPath instead; this
// constructor exists for components that feed slots themselves.
func NewStatusSlot(path string) *StatusSlot {
	return &StatusSlot{path: path}
}

// Path returns the URL path fragment this slot matches.
func (s *StatusSlot) Path() string { return s.path }

// Reset clears the slot ahead of the action whose response the caller wants
// to observe.
func (s *StatusSlot) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = 0
}

// Observe records an HTTP status.
func (s *StatusSlot) Observe(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// Status returns the latest status observed since the last Reset. ok is
// false while no post-reset observation exists.
func (s *StatusSlot) Status() (status int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == 0 {
		return 0, false
	}
	return s.status, true
}

// Wait polls the slot every interval until a post-reset status appears, max
// elapses, or ctx is done. ok reports whether a status was observed.
func (s *StatusSlot) Wait(ctx context.Context, interval, max time.Duration) (status int, ok bool) {
	if status, ok = s.Status(); ok {
		return status, true
	}

	deadline := time.Now().Add(max)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return 0, false
		case <-ticker.C:
			if status, ok = s.Status(); ok {
				return status, true
			}
			if time.Now().After(deadline) {
				return 0, false
			}
		}
	}
}

package engine

import (
	"context"
	"sync"
)

type inflightTurn struct {
	cancel context.CancelFunc
	token  uint64
}

// Runner enforces the single-flight rule: at most one generation may be in
// flight per session. Beginning a new turn cancels the previous one; other
// sessions are unaffected.
type Runner struct {
	mu        sync.Mutex
	nextToken uint64
	inflight  map[string]inflightTurn
}

// NewRunner creates an empty runner.
func NewRunner() *Runner {
	return &Runner{inflight: make(map[string]inflightTurn)}
}

// Begin registers a new in-flight turn for the session, cancelling any prior
// one first. The returned done func must be called when the turn finishes.
func (r *Runner) Begin(parent context.Context, sessionID string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)

	r.mu.Lock()
	if prior, ok := r.inflight[sessionID]; ok {
		prior.cancel()
	}
	r.nextToken++
	token := r.nextToken
	r.inflight[sessionID] = inflightTurn{cancel: cancel, token: token}
	r.mu.Unlock()

	done := func() {
		r.mu.Lock()
		// A newer turn may have replaced the entry; only clear our own.
		if current, ok := r.inflight[sessionID]; ok && current.token == token {
			delete(r.inflight, sessionID)
		}
		r.mu.Unlock()
		cancel()
	}
	return ctx, done
}

// Stop cancels the session's in-flight turn, if any, and reports whether one
// was running.
func (r *Runner) Stop(sessionID string) bool {
	r.mu.Lock()
	turn, ok := r.inflight[sessionID]
	if ok {
		delete(r.inflight, sessionID)
	}
	r.mu.Unlock()

	if ok {
		turn.cancel()
	}
	return ok
}

// Busy reports whether the session has a turn in flight.
func (r *Runner) Busy(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.inflight[sessionID]
	return ok
}

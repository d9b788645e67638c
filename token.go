package promise

import (
	"sync"
	"time"
)

// CancellationToken is a standalone cancellation signal, independent of
// any single promise (spec §6.7 / C7). It merges the teacher's
// AbortController (the writable side) and AbortSignal (the observable
// side) into one type, since this package never needs to hand out the
// signal half without the ability to cancel it.
//
// A token tracks zero or more promises; cancelling the token cancels each
// one still pending. Tracking is intentionally non-owning: a promise that
// settles on its own removes itself from the tracked set (see Track), so
// a long-lived token does not pin arbitrarily many dead promises.
type CancellationToken struct {
	mu       sync.Mutex
	done     bool
	reason   error
	handlers []func(reason error)
	tracked  map[*Promise]struct{}
}

// NewCancellationToken returns a fresh, not-yet-cancelled token.
func NewCancellationToken() *CancellationToken {
	return &CancellationToken{tracked: make(map[*Promise]struct{})}
}

// Cancelled reports whether the token has been cancelled.
func (t *CancellationToken) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// Reason returns the cancellation reason, or nil if not yet cancelled.
func (t *CancellationToken) Reason() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason
}

// ThrowIfCancelled returns the cancellation reason as an error if the
// token has been cancelled, or nil otherwise. Mirrors AbortSignal's
// throwIfAborted, generalized to Go's error-return idiom.
func (t *CancellationToken) ThrowIfCancelled() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return t.reason
	}
	return nil
}

// OnCancel registers h to run when the token cancels. If already
// cancelled, h runs synchronously and immediately.
func (t *CancellationToken) OnCancel(h func(reason error)) {
	if h == nil {
		return
	}
	t.mu.Lock()
	if t.done {
		reason := t.reason
		t.mu.Unlock()
		h(reason)
		return
	}
	t.handlers = append(t.handlers, h)
	t.mu.Unlock()
}

// Cancel cancels the token with reason (wrapped via wrapReason if it is
// not already an error), invokes every registered handler, and cancels
// every currently tracked promise. Calling Cancel more than once has no
// additional effect; the token keeps its first reason.
func (t *CancellationToken) Cancel(reason any) {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.done = true
	if reason == nil {
		t.reason = &CancelledError{Reason: "token cancelled"}
	} else {
		t.reason = wrapReason(reason)
	}
	handlers := t.handlers
	t.handlers = nil
	tracked := make([]*Promise, 0, len(t.tracked))
	for p := range t.tracked {
		tracked = append(tracked, p)
	}
	t.tracked = make(map[*Promise]struct{})
	t.mu.Unlock()

	for _, h := range handlers {
		h(t.reason)
	}
	for _, p := range tracked {
		if !p.IsSettled() {
			p.Cancel()
		}
	}
}

// Track associates p with the token: if the token cancels while p is
// still pending, p.Cancel() is called. p automatically detaches itself
// from the tracked set once it settles for any reason, so Track does not
// leak references to long-settled promises.
func (t *CancellationToken) Track(p *Promise) {
	if p == nil {
		return
	}
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		if !p.IsSettled() {
			p.Cancel()
		}
		return
	}
	t.tracked[p] = struct{}{}
	t.mu.Unlock()
	p.Finally(func() any {
		t.Untrack(p)
		return nil
	})
}

// Untrack removes p from the tracked set without affecting its state.
func (t *CancellationToken) Untrack(p *Promise) {
	t.mu.Lock()
	delete(t.tracked, p)
	t.mu.Unlock()
}

// TrackedCount returns the number of promises currently tracked.
func (t *CancellationToken) TrackedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tracked)
}

// ClearTracked empties the tracked set without cancelling anything.
func (t *CancellationToken) ClearTracked() {
	t.mu.Lock()
	t.tracked = make(map[*Promise]struct{})
	t.mu.Unlock()
}

// CancelAfter schedules t to cancel itself after d elapses on loop's
// clock, grounded on the teacher's AbortTimeout. Unlike the package-level
// [CancelAfter], this arms an existing token in place, which is what lets
// a token already tracking promises or linked into a composite schedule
// its own delayed cancellation.
func (t *CancellationToken) CancelAfter(loop *Loop, d time.Duration) {
	loop.ScheduleTimer(d, func() {
		t.Cancel(&TimeoutError{Duration: d.String()})
	})
}

// CancelAfter returns a fresh token that cancels itself after d elapses
// on loop's clock, grounded on the teacher's AbortTimeout.
func CancelAfter(loop *Loop, d time.Duration) *CancellationToken {
	t := NewCancellationToken()
	t.CancelAfter(loop, d)
	return t
}

// Linked returns a token that cancels as soon as any of tokens cancels
// (fan-in only; cancelling the returned token does not cancel its
// inputs), grounded on the teacher's AbortAny. With exactly one non-nil
// source, Linked returns that source unchanged rather than wrapping it
// in a fresh composite.
func Linked(tokens ...*CancellationToken) *CancellationToken {
	var only *CancellationToken
	distinct := 0
	for _, tok := range tokens {
		if tok == nil {
			continue
		}
		only = tok
		distinct++
	}
	if distinct == 1 {
		return only
	}

	composite := NewCancellationToken()
	for _, tok := range tokens {
		if tok == nil {
			continue
		}
		if tok.Cancelled() {
			composite.Cancel(tok.Reason())
			return composite
		}
	}
	for _, tok := range tokens {
		if tok == nil {
			continue
		}
		tok.OnCancel(func(reason error) {
			composite.Cancel(reason)
		})
	}
	return composite
}

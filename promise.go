package promise

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// PromiseState is the lifecycle state of a [Promise]. Transitions are
// irreversible: StatePending moves to exactly one of Fulfilled, Rejected or
// Cancelled (spec invariant I1).
type PromiseState int32

const (
	// StatePending indicates the operation has not yet settled.
	StatePending PromiseState = iota
	// Fulfilled indicates the promise completed successfully with a value.
	Fulfilled
	// Rejected indicates the promise failed with a reason.
	Rejected
	// Cancelled indicates the promise was cancelled before it settled.
	Cancelled
)

func (s PromiseState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case Fulfilled:
		return "fulfilled"
	case Rejected:
		return "rejected"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// OnFulfilled is a Then reaction invoked with a fulfillment value. It may
// return a plain value, a *Promise to adopt, or a non-nil error to reject
// the downstream promise.
type OnFulfilled func(value any) (any, error)

// OnRejected is a Then/Catch reaction invoked with a rejection reason.
type OnRejected func(reason error) (any, error)

// ResolveFunc fulfills a promise with a value. Calling it on an already
// settled promise is a no-op. Safe to call from any goroutine.
type ResolveFunc func(value any)

// RejectFunc rejects a promise with a reason. Non-error reasons are
// wrapped in [RejectionWrapError]. Calling it on an already settled
// promise is a no-op. Safe to call from any goroutine.
type RejectFunc func(reason any)

// Thenable is the duck-typed adoption interface: any value exposing this
// shape is adopted the same way a *Promise is, per spec §4.3 step 3.
// onFulfilled/onRejected behave like resolve/reject: calling either
// settles the adopting promise.
type Thenable interface {
	Then(onFulfilled func(any), onRejected func(any))
}

type reaction struct {
	onFulfilled OnFulfilled
	onRejected  OnRejected
	target      *Promise
}

var promiseIDs atomic.Uint64

// Promise is a four-state (pending/fulfilled/rejected/cancelled)
// asynchronous result, composed via Then/Catch/Finally and cancelled via
// Cancel/CancelChain. The zero value is not usable; construct one via
// [Pending], [New], [Resolve] or [Reject].
type Promise struct {
	loop *Loop
	id   uint64

	mu                  sync.Mutex
	state               PromiseState
	value               any
	reason              error
	reactions           []reaction
	cancelHandlers      []func()
	parent              *Promise
	children            []*Promise
	hasRejectionHandler bool
	reasonAccessed      bool
	channels            []chan SettledResult
}

func newPromise(loop *Loop) *Promise {
	return &Promise{loop: loop, id: promiseIDs.Add(1), state: StatePending}
}

// Pending constructs a new pending promise along with its resolve and
// reject functions (spec §6.2 promise_pending, generalized with explicit
// resolve/reject since Go has no executor-closure sugar).
func Pending(loop *Loop) (*Promise, ResolveFunc, RejectFunc) {
	p := newPromise(loop)
	return p, p.resolve, func(r any) { p.reject(wrapReason(r)) }
}

// New constructs a promise by invoking executor synchronously with its
// resolve/reject functions. A panic inside executor rejects the promise
// with a [PanicError] (spec §4.2 promise_with_executor).
func New(loop *Loop, executor func(resolve ResolveFunc, reject RejectFunc)) *Promise {
	p, resolve, reject := Pending(loop)
	func() {
		defer func() {
			if r := recover(); r != nil {
				reject(PanicError{Value: r})
			}
		}()
		executor(resolve, reject)
	}()
	return p
}

// Resolve constructs a terminal fulfilled promise, or adopts v if it is
// itself a promise or thenable (spec §4.2 promise_resolved).
func Resolve(loop *Loop, v any) *Promise {
	p := newPromise(loop)
	p.resolve(v)
	return p
}

// Reject constructs a terminal rejected promise, wrapping non-error
// reasons (spec §4.2 promise_rejected).
func Reject(loop *Loop, reason any) *Promise {
	p := newPromise(loop)
	p.reject(wrapReason(reason))
	return p
}

// State returns the current lifecycle state. Safe from any goroutine.
func (p *Promise) State() PromiseState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// IsPending reports whether the promise has not yet settled.
func (p *Promise) IsPending() bool { return p.State() == StatePending }

// IsFulfilled reports whether the promise fulfilled.
func (p *Promise) IsFulfilled() bool { return p.State() == Fulfilled }

// IsRejected reports whether the promise rejected.
func (p *Promise) IsRejected() bool { return p.State() == Rejected }

// IsCancelled reports whether the promise was cancelled.
func (p *Promise) IsCancelled() bool { return p.State() == Cancelled }

// IsSettled reports whether the promise has left the Pending state.
func (p *Promise) IsSettled() bool { return p.State() != StatePending }

// Value returns the fulfillment value, or nil if not fulfilled. Accessing
// it marks the promise as observed for unhandled-rejection accounting
// (spec §3 reason_accessed).
func (p *Promise) Value() any {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reasonAccessed = true
	return p.value
}

// Reason returns the rejection reason, or nil if not rejected. Accessing
// it marks the promise as observed for unhandled-rejection accounting.
func (p *Promise) Reason() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reasonAccessed = true
	return p.reason
}

// ToChannel returns a channel that receives the promise's SettledResult
// exactly once and is then closed. If already settled, the channel is
// pre-filled. Marks the promise observed, the same as Reason/Value.
func (p *Promise) ToChannel() <-chan SettledResult {
	ch := make(chan SettledResult, 1)
	p.mu.Lock()
	p.reasonAccessed = true
	if p.state != StatePending {
		result := p.settledResultLocked()
		p.mu.Unlock()
		ch <- result
		close(ch)
		return ch
	}
	p.channels = append(p.channels, ch)
	p.mu.Unlock()
	return ch
}

func (p *Promise) settledResultLocked() SettledResult {
	switch p.state {
	case Fulfilled:
		return FulfilledResult(p.value)
	case Cancelled:
		return CancelledResult()
	default:
		return RejectedResult(p.reason)
	}
}

// Then registers reactions invoked when the promise settles, returning a
// new child promise resolved/rejected by whichever handler runs. Either
// handler may be nil, in which case the corresponding outcome passes
// through unchanged (spec §4.4).
func (p *Promise) Then(onFulfilled OnFulfilled, onRejected OnRejected) *Promise {
	child := newPromise(p.loop)
	child.parent = p
	p.registerChild(child, onFulfilled, onRejected)
	return child
}

// Catch is equivalent to Then(nil, onRejected).
func (p *Promise) Catch(onRejected OnRejected) *Promise {
	return p.Then(nil, onRejected)
}

// Finally registers a handler invoked regardless of outcome (fulfilled,
// rejected, or cancelled), running exactly once. If onFinally returns a
// *Promise, settlement of the returned child waits for it; if onFinally
// returns a non-nil error or panics, the child rejects with that error
// (spec §4.4).
func (p *Promise) Finally(onFinally func() any) *Promise {
	if onFinally == nil {
		onFinally = func() any { return nil }
	}
	var child *Promise
	onFulfilledReaction := func(v any) (any, error) {
		return finallyPropagate(onFinally, false, v, nil)
	}
	onRejectedReaction := func(r error) (any, error) {
		return finallyPropagate(onFinally, true, nil, r)
	}
	child = p.Then(onFulfilledReaction, onRejectedReaction)

	var fired atomic.Bool
	p.OnCancel(func() {
		if !fired.CompareAndSwap(false, true) {
			return
		}
		func() {
			defer func() { recover() }()
			onFinally()
		}()
		child.Cancel()
	})
	return child
}

func finallyPropagate(onFinally func() any, rejected bool, value any, reason error) (any, error) {
	var hVal any
	var hErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				hErr = PanicError{Value: r}
			}
		}()
		hVal = onFinally()
	}()
	if hErr != nil {
		return nil, hErr
	}
	if err, ok := hVal.(error); ok && err != nil {
		return nil, err
	}
	if hp, ok := hVal.(*Promise); ok {
		return hp.Then(func(any) (any, error) {
			return settleFinallyChild(rejected, value, reason)
		}, nil), nil
	}
	return settleFinallyChild(rejected, value, reason)
}

func settleFinallyChild(rejected bool, value any, reason error) (any, error) {
	if rejected {
		return nil, reason
	}
	return value, nil
}

// registerChild wires child into p's reaction list (if pending) or
// schedules immediate dispatch (if already settled), and links child into
// p.children for forward cancellation propagation.
func (p *Promise) registerChild(child *Promise, onFulfilled OnFulfilled, onRejected OnRejected) {
	p.mu.Lock()
	if p.state == Cancelled {
		p.mu.Unlock()
		child.Cancel()
		return
	}
	if onFulfilled != nil || onRejected != nil {
		p.hasRejectionHandler = true
	}
	p.children = append(p.children, child)
	if p.state == StatePending {
		p.reactions = append(p.reactions, reaction{onFulfilled, onRejected, child})
		p.mu.Unlock()
		return
	}
	state, value, reason := p.state, p.value, p.reason
	p.mu.Unlock()
	p.dispatchReaction(reaction{onFulfilled, onRejected, child}, state, value, reason)
}

// dispatchReaction schedules a single reaction's execution as a microtask,
// preserving FIFO order relative to other reactions scheduled in the same
// synchronous block (spec P6).
func (p *Promise) dispatchReaction(r reaction, state PromiseState, value any, reason error) {
	p.loop.ScheduleMicrotask(func() {
		if r.target.IsCancelled() {
			return
		}
		switch state {
		case Fulfilled:
			if r.onFulfilled == nil {
				r.target.resolve(value)
				return
			}
			runHandler(r.target, func() (any, error) { return r.onFulfilled(value) })
		case Rejected:
			if r.onRejected == nil {
				r.target.reject(reason)
				return
			}
			runHandler(r.target, func() (any, error) { return r.onRejected(reason) })
		}
	})
}

func runHandler(target *Promise, call func() (any, error)) {
	defer func() {
		if r := recover(); r != nil {
			target.reject(PanicError{Value: r})
		}
	}()
	v, err := call()
	if err != nil {
		target.reject(err)
		return
	}
	target.resolve(v)
}

// resolve implements the recursive-unwrapping resolution procedure of
// spec §4.3: self-adoption rejects with a cycle error, adopting another
// *Promise chains through Then plus a cancellation bridge, adopting a
// duck-typed Thenable defers to its Then method, anything else fulfills
// directly.
func (p *Promise) resolve(v any) {
	if pr, ok := v.(*Promise); ok {
		if pr == p {
			p.reject(&CycleError{})
			return
		}
		pr.Then(
			func(val any) (any, error) { p.resolve(val); return nil, nil },
			func(r error) (any, error) { p.reject(r); return nil, nil },
		)
		p.OnCancel(func() {
			if !pr.IsSettled() {
				pr.Cancel()
			}
		})
		return
	}
	if th, ok := v.(Thenable); ok {
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.reject(PanicError{Value: r})
				}
			}()
			th.Then(
				func(val any) { p.resolve(val) },
				func(r any) { p.reject(wrapReason(r)) },
			)
		}()
		return
	}
	p.settleFulfilled(v)
}

func (p *Promise) reject(reason error) {
	p.settleRejected(reason)
}

func (p *Promise) settleFulfilled(value any) {
	p.mu.Lock()
	if p.state != StatePending {
		p.mu.Unlock()
		return
	}
	p.state = Fulfilled
	p.value = value
	reactions := p.reactions
	p.reactions = nil
	p.cancelHandlers = nil
	channels := p.channels
	p.channels = nil
	parent := p.parent
	p.parent = nil
	p.mu.Unlock()

	detachFromParent(parent, p)

	for _, r := range reactions {
		p.dispatchReaction(r, Fulfilled, value, nil)
	}
	notifyChannels(channels, FulfilledResult(value))
}

func (p *Promise) settleRejected(reason error) {
	p.mu.Lock()
	if p.state != StatePending {
		p.mu.Unlock()
		return
	}
	p.state = Rejected
	p.reason = reason
	reactions := p.reactions
	p.reactions = nil
	p.cancelHandlers = nil
	channels := p.channels
	p.channels = nil
	parent := p.parent
	p.parent = nil
	p.mu.Unlock()

	detachFromParent(parent, p)
	runtime.SetFinalizer(p, finalizeRejectedPromise)

	for _, r := range reactions {
		p.dispatchReaction(r, Rejected, nil, reason)
	}
	notifyChannels(channels, RejectedResult(reason))
}

func detachFromParent(parent, child *Promise) {
	if parent == nil {
		return
	}
	parent.mu.Lock()
	for i, c := range parent.children {
		if c == child {
			parent.children = append(parent.children[:i], parent.children[i+1:]...)
			break
		}
	}
	parent.mu.Unlock()
}

func notifyChannels(channels []chan SettledResult, result SettledResult) {
	for _, ch := range channels {
		ch <- result
		close(ch)
	}
}

// finalizeRejectedPromise is installed via runtime.SetFinalizer on every
// promise that settles Rejected. Where the source ecosystem this package
// is modeled on relies on deterministic destruction to detect unhandled
// rejections (spec §9), Go has none; a GC finalizer is the closest
// equivalent to "dropped without its reason observed".
func finalizeRejectedPromise(p *Promise) {
	p.mu.Lock()
	handled := p.hasRejectionHandler || p.reasonAccessed
	reason := p.reason
	p.mu.Unlock()
	if handled {
		return
	}
	rejectionHandlerMu.Lock()
	h := rejectionHandler
	rejectionHandlerMu.Unlock()
	h(reason)
}

var (
	rejectionHandlerMu sync.Mutex
	rejectionHandler   = defaultRejectionReporter
)

func defaultRejectionReporter(reason error) {
	defaultUnhandledRejectionLogger.Log(LevelWarn, "unhandled promise rejection", map[string]any{"reason": reason})
}

// SetRejectionHandler replaces the process-wide unhandled-rejection
// reporter, returning the previously installed handler so callers can
// restore it later. Passing nil restores the default reporter (spec
// §4.7).
func SetRejectionHandler(h func(reason error)) (previous func(reason error)) {
	rejectionHandlerMu.Lock()
	defer rejectionHandlerMu.Unlock()
	previous = rejectionHandler
	if h == nil {
		rejectionHandler = defaultRejectionReporter
	} else {
		rejectionHandler = h
	}
	return previous
}

// Cancel transitions a pending promise to Cancelled, invokes its on-cancel
// handlers synchronously in LIFO order, then forward-propagates Cancel to
// every non-settled child. A no-op on a promise that is not Pending. If
// exactly one handler (own or descendant) panics, that error is returned;
// if more than one do, they are combined into an [AggregateError].
func (p *Promise) Cancel() error {
	p.mu.Lock()
	if p.state != StatePending {
		p.mu.Unlock()
		return nil
	}
	p.state = Cancelled
	handlers := p.cancelHandlers
	p.cancelHandlers = nil
	p.reactions = nil
	children := append([]*Promise(nil), p.children...)
	channels := p.channels
	p.channels = nil
	parent := p.parent
	p.parent = nil
	p.mu.Unlock()

	detachFromParent(parent, p)

	var errs []error
	for i := len(handlers) - 1; i >= 0; i-- {
		h := handlers[i]
		func() {
			defer func() {
				if r := recover(); r != nil {
					errs = append(errs, PanicError{Value: r})
				}
			}()
			h()
		}()
	}
	for _, c := range children {
		if c.IsCancelled() {
			continue
		}
		if err := c.Cancel(); err != nil {
			errs = append(errs, err)
		}
	}
	notifyChannels(channels, CancelledResult())

	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return &AggregateError{Message: "errors during cancellation", Errors: errs}
	}
}

// CancelChain walks parent links upward to the first promise whose parent
// is nil or already cancelled, and cancels that root. Forward propagation
// through Then-created children then cancels every descendant.
func (p *Promise) CancelChain() error {
	cur := p
	for cur.parent != nil && !cur.parent.IsCancelled() {
		cur = cur.parent
	}
	return cur.Cancel()
}

// OnCancel registers h to run when the promise is cancelled. If the
// promise is already Cancelled, h runs synchronously, immediately.
// Registering on a Fulfilled or Rejected promise stores h but it is never
// invoked, since no further transition can occur (spec §4.5).
func (p *Promise) OnCancel(h func()) {
	if h == nil {
		return
	}
	p.mu.Lock()
	if p.state == Cancelled {
		p.mu.Unlock()
		h()
		return
	}
	p.cancelHandlers = append(p.cancelHandlers, h)
	p.mu.Unlock()
}

package promise

import (
	"sync"
	"time"
)

// settleGate lets several concurrent reactions race to settle a composite
// promise exactly once; the first caller through wins, everyone else is a
// no-op. Grounded on the teacher's AllSettled/Race implementations, which
// use an equivalent settled-bool guarded by a mutex.
type settleGate struct {
	mu   sync.Mutex
	done bool
}

// once runs f and returns true the first time it is called; every
// subsequent call is a no-op returning false.
func (g *settleGate) once(f func()) bool {
	g.mu.Lock()
	if g.done {
		g.mu.Unlock()
		return false
	}
	g.done = true
	g.mu.Unlock()
	f()
	return true
}

func cancelAllInputs(entries []KeyedPromise, except *Promise) {
	for _, e := range entries {
		if e.Promise == except {
			continue
		}
		if !e.Promise.IsSettled() {
			e.Promise.Cancel()
		}
	}
}

// All fulfills with an [OrderedMap] of every input's value once all of
// them fulfill, in first-observed key order. It rejects as soon as any
// input rejects or cancels; a cancelled input surfaces as a
// [CancelledError] naming the offending key. Either way every other
// still-pending input is then cancelled (spec §4.8 all, P11/P12).
func All(loop *Loop, entries []KeyedPromise) *Promise {
	result, resolve, reject := Pending(loop)
	if len(entries) == 0 {
		resolve(NewOrderedMap())
		return result
	}

	values := NewOrderedMap()
	for _, e := range entries {
		values.set(e.Key, nil)
	}
	var mu sync.Mutex
	remaining := len(entries)
	gate := &settleGate{}

	for _, e := range entries {
		e := e
		e.Promise.Then(
			func(v any) (any, error) {
				mu.Lock()
				values.set(e.Key, v)
				remaining--
				last := remaining == 0
				mu.Unlock()
				if last {
					gate.once(func() { resolve(values) })
				}
				return nil, nil
			},
			func(r error) (any, error) {
				gate.once(func() {
					reject(r)
					cancelAllInputs(entries, nil)
				})
				return nil, nil
			},
		)
		e.Promise.OnCancel(func() {
			gate.once(func() {
				reject(&CancelledError{Key: e.Key})
				cancelAllInputs(entries, nil)
			})
		})
	}
	result.OnCancel(func() { cancelAllInputs(entries, nil) })
	return result
}

// AllSettled waits for every input to settle, by whatever outcome, and
// fulfills with an [OrderedMap] of [SettledResult] values in
// first-observed key order. It never rejects; cancelling the returned
// promise cancels every still-pending input (spec §4.8 allSettled, P13).
func AllSettled(loop *Loop, entries []KeyedPromise) *Promise {
	result, resolve, _ := Pending(loop)
	if len(entries) == 0 {
		resolve(NewOrderedMap())
		return result
	}

	values := NewOrderedMap()
	for _, e := range entries {
		values.set(e.Key, nil)
	}
	var mu sync.Mutex
	remaining := len(entries)
	record := func(key any, r SettledResult) {
		mu.Lock()
		values.set(key, r)
		remaining--
		last := remaining == 0
		mu.Unlock()
		if last {
			resolve(values)
		}
	}

	for _, e := range entries {
		e := e
		e.Promise.Then(
			func(v any) (any, error) { record(e.Key, FulfilledResult(v)); return nil, nil },
			func(r error) (any, error) { record(e.Key, RejectedResult(r)); return nil, nil },
		)
		e.Promise.OnCancel(func() { record(e.Key, CancelledResult()) })
	}
	result.OnCancel(func() { cancelAllInputs(entries, nil) })
	return result
}

// Race settles with the outcome of whichever input settles first. A
// cancelled input rejects the race with a [CancelledError] naming that
// key, matching the reject path for a rejected input. Either way every
// other still-pending input is then cancelled (spec §4.8 race, P14).
func Race(loop *Loop, entries []KeyedPromise) *Promise {
	result, resolve, reject := Pending(loop)
	if len(entries) == 0 {
		reject(&TypeError{Message: "race: empty input"})
		return result
	}
	gate := &settleGate{}
	for _, e := range entries {
		e := e
		e.Promise.Then(
			func(v any) (any, error) {
				gate.once(func() {
					resolve(v)
					cancelAllInputs(entries, e.Promise)
				})
				return nil, nil
			},
			func(r error) (any, error) {
				gate.once(func() {
					reject(r)
					cancelAllInputs(entries, e.Promise)
				})
				return nil, nil
			},
		)
		e.Promise.OnCancel(func() {
			gate.once(func() {
				reject(&CancelledError{Key: e.Key})
				cancelAllInputs(entries, e.Promise)
			})
		})
	}
	result.OnCancel(func() { cancelAllInputs(entries, nil) })
	return result
}

// Any fulfills with the first input to fulfill. If every input rejects or
// cancels, it rejects with an [AggregateError] collecting every reason, in
// first-observed key order (spec §4.8 any, P15).
func Any(loop *Loop, entries []KeyedPromise) *Promise {
	result, resolve, reject := Pending(loop)
	if len(entries) == 0 {
		reject(&AggregateError{Message: "no promises to race"})
		return result
	}

	var mu sync.Mutex
	failures := make([]error, len(entries))
	remaining := len(entries)
	gate := &settleGate{}

	failOne := func(i int, err error) {
		mu.Lock()
		failures[i] = err
		remaining--
		last := remaining == 0
		mu.Unlock()
		if last {
			gate.once(func() {
				reject(&AggregateError{Message: "every promise rejected or was cancelled", Errors: failures})
			})
		}
	}

	for i, e := range entries {
		i, e := i, e
		e.Promise.Then(
			func(v any) (any, error) {
				gate.once(func() {
					resolve(v)
					cancelAllInputs(entries, e.Promise)
				})
				return nil, nil
			},
			func(r error) (any, error) { failOne(i, r); return nil, nil },
		)
		e.Promise.OnCancel(func() { failOne(i, &CancelledError{Key: e.Key}) })
	}
	result.OnCancel(func() { cancelAllInputs(entries, nil) })
	return result
}

// Timeout rejects with a [TimeoutError] if p has not settled within d; the
// still-pending p is then cancelled. If p settles first, the internal
// timer is cancelled and result mirrors p's outcome exactly (spec §4.8
// timeout).
func Timeout(loop *Loop, p *Promise, d time.Duration) *Promise {
	result, resolve, reject := Pending(loop)
	if d <= 0 {
		reject(&InvalidArgumentError{Argument: "d", Message: "timeout must be greater than zero"})
		return result
	}
	gate := &settleGate{}

	timerID := loop.ScheduleTimer(d, func() {
		gate.once(func() {
			reject(&TimeoutError{Duration: d.String()})
			if !p.IsSettled() {
				p.Cancel()
			}
		})
	})

	p.Then(
		func(v any) (any, error) {
			gate.once(func() {
				loop.CancelTimer(timerID)
				resolve(v)
			})
			return nil, nil
		},
		func(r error) (any, error) {
			gate.once(func() {
				loop.CancelTimer(timerID)
				reject(r)
			})
			return nil, nil
		},
	)
	p.OnCancel(func() {
		gate.once(func() {
			loop.CancelTimer(timerID)
			result.Cancel()
		})
	})
	result.OnCancel(func() {
		loop.CancelTimer(timerID)
		if !p.IsSettled() {
			p.Cancel()
		}
	})
	return result
}

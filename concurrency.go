package promise

import "sync"

// KeyedTask pairs a caller-chosen key with a factory that produces the
// promise for that unit of work on demand. Factories are invoked lazily,
// at most once, only when the concurrency engine has a free slot for
// them (all at once only when the limit covers every task), which is what
// distinguishes this from the
// eagerly-constructed []KeyedPromise the collection combinators take.
type KeyedTask struct {
	Key     any
	Factory func() *Promise
}

// TasksFromSlice builds index-keyed tasks (key == position) from a plain
// slice of factories.
func TasksFromSlice(factories []func() *Promise) []KeyedTask {
	out := make([]KeyedTask, len(factories))
	for i, f := range factories {
		out[i] = KeyedTask{Key: i, Factory: f}
	}
	return out
}

func startTask(loop *Loop, t KeyedTask) *Promise {
	var p *Promise
	func() {
		defer func() {
			if r := recover(); r != nil {
				p = Reject(loop, &TypeError{Message: "task factory panicked", Cause: PanicError{Value: r}})
			}
		}()
		p = t.Factory()
	}()
	if p == nil {
		p = Reject(loop, &TypeError{Message: "task factory returned a nil promise"})
	}
	return p
}

// pumpState is the shared mutable context driving a bounded-concurrency
// run: how many slots are in use, which index starts next, how many
// outcomes are still outstanding, and whether a fail-fast abort has been
// triggered. Grounded on the fixed-size worker-pool "pump" pattern found
// in the retrieval pack's fifo/parallel task runners, generalized from a
// worker-goroutine design to single-threaded re-entrant microtask pumping
// (no goroutines: each freed slot re-enters pump from within a Then
// reaction, itself always dispatched via the loop's microtask queue).
type pumpState struct {
	mu        sync.Mutex
	nextIndex int
	running   int
	remaining int
	aborted   bool
	inFlight  map[any]*Promise
}

func runConcurrentPump(loop *Loop, tasks []KeyedTask, concurrency int, failFast bool) *Promise {
	result, resolve, reject := Pending(loop)
	if concurrency <= 0 {
		reject(&InvalidArgumentError{Argument: "concurrency", Message: "concurrency must be > 0"})
		return result
	}
	if len(tasks) == 0 {
		resolve(NewOrderedMap())
		return result
	}

	values := NewOrderedMap()
	for _, t := range tasks {
		values.set(t.Key, nil)
	}
	state := &pumpState{remaining: len(tasks), inFlight: make(map[any]*Promise)}
	gate := &settleGate{}

	var pump func()

	settleTask := func(t KeyedTask, rejected bool, value any, reason error) {
		state.mu.Lock()
		delete(state.inFlight, t.Key)
		state.running--
		if failFast && rejected {
			state.aborted = true
		} else {
			if rejected {
				values.set(t.Key, RejectedResult(reason))
			} else if failFast {
				values.set(t.Key, value)
			} else {
				values.set(t.Key, FulfilledResult(value))
			}
			state.remaining--
		}
		allDone := state.remaining == 0
		aborted := state.aborted
		state.mu.Unlock()

		switch {
		case failFast && rejected:
			gate.once(func() {
				reject(reason)
				cancelInFlight(state)
			})
		case aborted:
			// A sibling already triggered fail-fast abort; nothing more to do.
		case allDone:
			gate.once(func() { resolve(values) })
		default:
			pump()
		}
	}

	pump = func() {
		for {
			state.mu.Lock()
			if state.aborted || state.running >= concurrency || state.nextIndex >= len(tasks) {
				state.mu.Unlock()
				return
			}
			idx := state.nextIndex
			state.nextIndex++
			state.running++
			state.mu.Unlock()

			t := tasks[idx]
			p := startTask(loop, t)
			state.mu.Lock()
			state.inFlight[t.Key] = p
			state.mu.Unlock()

			p.Then(
				func(v any) (any, error) { settleTask(t, false, v, nil); return nil, nil },
				func(r error) (any, error) { settleTask(t, true, nil, r); return nil, nil },
			)
			p.OnCancel(func() {
				state.mu.Lock()
				delete(state.inFlight, t.Key)
				state.running--
				if failFast {
					state.aborted = true
				} else {
					values.set(t.Key, CancelledResult())
					state.remaining--
				}
				allDone := !failFast && state.remaining == 0
				state.mu.Unlock()
				if failFast {
					gate.once(func() {
						reject(&CancelledError{Key: t.Key})
						cancelInFlight(state)
					})
				} else if allDone {
					gate.once(func() { resolve(values) })
				} else {
					pump()
				}
			})
		}
	}

	pump()
	result.OnCancel(func() {
		state.mu.Lock()
		state.aborted = true
		state.mu.Unlock()
		cancelInFlight(state)
	})
	return result
}

func cancelInFlight(state *pumpState) {
	state.mu.Lock()
	ps := make([]*Promise, 0, len(state.inFlight))
	for _, p := range state.inFlight {
		ps = append(ps, p)
	}
	state.mu.Unlock()
	for _, p := range ps {
		if !p.IsSettled() {
			p.Cancel()
		}
	}
}

// Concurrent runs tasks with at most concurrency in flight at any time,
// fulfilling with an [OrderedMap] of every result in first-observed key
// order once all complete, or rejecting as soon as any task rejects or
// cancels (a cancelled task surfaces as a [CancelledError] naming its
// key). Either way every other in-flight task is then cancelled.
// Bounded-concurrency analogue of [All] (spec C6, P16).
func Concurrent(loop *Loop, tasks []KeyedTask, concurrency int) *Promise {
	return runConcurrentPump(loop, tasks, concurrency, true)
}

// ConcurrentSettled runs tasks with at most concurrency in flight, always
// waiting for every task to settle and fulfilling with an [OrderedMap] of
// [SettledResult] values. Bounded-concurrency analogue of [AllSettled]
// (spec C6, P17).
func ConcurrentSettled(loop *Loop, tasks []KeyedTask, concurrency int) *Promise {
	return runConcurrentPump(loop, tasks, concurrency, false)
}

func runBatch(loop *Loop, tasks []KeyedTask, batchSize int, failFast bool) *Promise {
	result, resolve, reject := Pending(loop)
	if batchSize <= 0 {
		reject(&InvalidArgumentError{Argument: "batchSize", Message: "batchSize must be > 0"})
		return result
	}
	if len(tasks) == 0 {
		resolve(NewOrderedMap())
		return result
	}

	values := NewOrderedMap()
	for _, t := range tasks {
		values.set(t.Key, nil)
	}
	var mu sync.Mutex
	aborted := false
	gate := &settleGate{}

	var runAt func(start int)
	runAt = func(start int) {
		end := start + batchSize
		if end > len(tasks) {
			end = len(tasks)
		}
		entries := make([]KeyedPromise, 0, end-start)
		for i := start; i < end; i++ {
			entries = append(entries, KeyedPromise{Key: tasks[i].Key, Promise: startTask(loop, tasks[i])})
		}
		var combined *Promise
		if failFast {
			combined = All(loop, entries)
		} else {
			combined = AllSettled(loop, entries)
		}
		combined.Then(
			func(v any) (any, error) {
				om := v.(*OrderedMap)
				for _, k := range om.Keys() {
					val, _ := om.Get(k)
					values.set(k, val)
				}
				if end >= len(tasks) {
					gate.once(func() { resolve(values) })
					return nil, nil
				}
				mu.Lock()
				ab := aborted
				mu.Unlock()
				if !ab {
					runAt(end)
				}
				return nil, nil
			},
			func(r error) (any, error) {
				mu.Lock()
				aborted = true
				mu.Unlock()
				gate.once(func() { reject(r) })
				return nil, nil
			},
		)
		combined.OnCancel(func() {
			mu.Lock()
			aborted = true
			mu.Unlock()
			gate.once(func() { result.Cancel() })
		})
	}

	runAt(0)
	result.OnCancel(func() {
		mu.Lock()
		aborted = true
		mu.Unlock()
	})
	return result
}

// Batch runs tasks in fixed-size, sequential batches: every task in a
// batch starts concurrently, and the next batch starts only once the
// whole current batch has settled. Rejects as soon as any batch produces
// a rejection (spec C6, P18).
func Batch(loop *Loop, tasks []KeyedTask, batchSize int) *Promise {
	return runBatch(loop, tasks, batchSize, true)
}

// BatchSettled behaves like Batch but never rejects, collecting a
// [SettledResult] per task across every batch.
func BatchSettled(loop *Loop, tasks []KeyedTask, batchSize int) *Promise {
	return runBatch(loop, tasks, batchSize, false)
}

// Map applies fn to each item with at most concurrency in flight,
// fulfilling with an [OrderedMap] keyed by input index, or rejecting as
// soon as any invocation rejects (spec C6 map; bounded-concurrency
// analogue of All over a transform rather than a pre-built promise list).
// A non-positive concurrency means unbounded: every item's invocation
// starts immediately, matching the spec's default of infinite concurrency.
func Map[T any](loop *Loop, items []T, concurrency int, fn func(item T, index int) *Promise) *Promise {
	tasks := make([]KeyedTask, len(items))
	for i, item := range items {
		i, item := i, item
		tasks[i] = KeyedTask{Key: i, Factory: func() *Promise { return fn(item, i) }}
	}
	if concurrency <= 0 {
		concurrency = len(tasks)
		if concurrency == 0 {
			concurrency = 1
		}
	}
	return Concurrent(loop, tasks, concurrency)
}

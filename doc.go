// Package promise provides a four-state asynchronous composition primitive
// (pending / fulfilled / rejected / cancelled) with structured composition
// (Then/Catch/Finally), forward-propagating cancellation, an explicit
// cancellation token, and a library of collection combinators.
//
// # Architecture
//
// The package is built around a [Loop] core that schedules microtasks and
// timers (see [Loop.ScheduleMicrotask], [Loop.ScheduleTimer]). [Promise]
// reactions are always dispatched through the loop's microtask queue, never
// invoked synchronously, so that callback ordering is deterministic and
// independent of when a promise happens to settle.
//
// The promise implementation follows the Promise/A+ resolution procedure
// for adoption and recursive thenable unwrapping, and extends it with a
// fourth terminal state, Cancelled, that forward-propagates to every child
// created via Then/Catch/Finally.
//
// [CancellationToken] is a standalone cancellation source independent of
// any one promise: it can track many promises, link to other tokens, and
// schedule a delayed self-cancel.
//
// The combinator library (see combinators.go and concurrency.go) builds
// All, AllSettled, Race, Any, Timeout, Concurrent, ConcurrentSettled, Batch,
// BatchSettled and Map on top of the promise core and the loop's microtask
// scheduler; none of them introduce a goroutine pool or other concurrency
// primitive of their own.
//
// # Thread Safety
//
// Resolve/Reject/Cancel may be called from any goroutine. Reaction
// callbacks (Then/Catch/Finally handlers) always run through
// [Loop.ScheduleMicrotask]. On-cancel handlers attached via OnCancel run
// synchronously instead: LIFO inside Cancel itself, or at once when the
// promise is already cancelled; token callbacks run synchronously, FIFO,
// inside CancellationToken's Cancel.
//
// # Usage
//
//	loop := promise.NewLoop()
//
//	p, resolve, reject := promise.Pending(loop)
//	go func() {
//	    v, err := doWork()
//	    if err != nil {
//	        reject(err)
//	    } else {
//	        resolve(v)
//	    }
//	}()
//
//	v, err := promise.Await[string](p, loop)
package promise

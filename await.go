package promise

// AwaitAny blocks the calling goroutine, driving loop until p settles, then
// returns its value/reason/cancellation as a plain (any, error) pair: a
// cancelled promise yields (nil, *CancelledError). Grounded on the
// teacher's blocking bridge between ChainedPromise and its own Loop.Run,
// generalized to the four-state model (spec §6.1 "an explicit blocking
// bridge, not implicit implied by accessing .value").
func AwaitAny(p *Promise, loop *Loop) (any, error) {
	loop.RunUntil(p.IsSettled)
	switch p.State() {
	case Fulfilled:
		return p.Value(), nil
	case Cancelled:
		_ = p.Value()
		return nil, &CancelledError{}
	default:
		return nil, p.Reason()
	}
}

// Await blocks until p settles and type-asserts its fulfillment value to T.
// A rejection or cancellation returns the zero value of T and a non-nil
// error; a fulfilled value that fails the type assertion returns a
// [TypeError].
func Await[T any](p *Promise, loop *Loop) (T, error) {
	var zero T
	v, err := AwaitAny(p, loop)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, &TypeError{Message: "fulfilled value does not match requested type"}
	}
	return t, nil
}

// AwaitAndReset behaves like Await, then resets loop's queues, matching
// spec §6.1's await(reset_loop=true) variant used by test harnesses to
// guarantee no leaked timers/microtasks bleed into the next assertion.
func AwaitAndReset[T any](p *Promise, loop *Loop) (T, error) {
	t, err := Await[T](p, loop)
	loop.Reset()
	return t, err
}

package promise

import "time"

// Delay returns a promise that fulfills with nil after d elapses on loop's
// clock. Cancelling the returned promise cancels the underlying timer
// before it fires (spec §4.6 / C4). Grounded on the teacher's
// ScheduleTimer used by its own timeout/sleep helpers.
func Delay(loop *Loop, d time.Duration) *Promise {
	p, resolve, _ := Pending(loop)
	id := loop.ScheduleTimer(d, func() {
		resolve(nil)
	})
	p.OnCancel(func() {
		loop.CancelTimer(id)
	})
	return p
}

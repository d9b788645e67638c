package promise

// settledKind tags the variant held by a [SettledResult].
type settledKind int

const (
	settledFulfilled settledKind = iota
	settledRejected
	settledCancelled
)

// SettledResult is an immutable tagged outcome produced by combinators
// that report per-input settlement (AllSettled, ConcurrentSettled,
// BatchSettled), by [Promise.ToChannel] and by [FromPromise]. It never
// transitions, unlike
// [Promise]. Grounded on the teacher's AllSettled status-map convention
// (map[string]interface{}{"status": ..., "value"/"reason": ...}),
// generalized into a typed value so callers don't need type assertions
// on a map.
type SettledResult struct {
	kind   settledKind
	value  any
	reason error
}

// FulfilledResult builds a fulfilled [SettledResult] carrying v.
func FulfilledResult(v any) SettledResult {
	return SettledResult{kind: settledFulfilled, value: v}
}

// RejectedResult builds a rejected [SettledResult] carrying reason.
func RejectedResult(reason error) SettledResult {
	return SettledResult{kind: settledRejected, reason: reason}
}

// CancelledResult builds a cancelled [SettledResult].
func CancelledResult() SettledResult {
	return SettledResult{kind: settledCancelled}
}

// IsFulfilled reports whether the result is the Fulfilled variant.
func (r SettledResult) IsFulfilled() bool { return r.kind == settledFulfilled }

// IsRejected reports whether the result is the Rejected variant.
func (r SettledResult) IsRejected() bool { return r.kind == settledRejected }

// IsCancelled reports whether the result is the Cancelled variant.
func (r SettledResult) IsCancelled() bool { return r.kind == settledCancelled }

// Value returns the fulfillment value. Only meaningful when IsFulfilled.
func (r SettledResult) Value() any { return r.value }

// Reason returns the rejection reason. Only meaningful when IsRejected.
func (r SettledResult) Reason() error { return r.reason }

// FromPromise snapshots a terminal promise's state into a SettledResult.
// p must not be Pending; a Pending promise yields a rejected result with a
// nil reason.
func FromPromise(p *Promise) SettledResult {
	switch p.State() {
	case Fulfilled:
		return FulfilledResult(p.Value())
	case Cancelled:
		return CancelledResult()
	default:
		return RejectedResult(p.Reason())
	}
}

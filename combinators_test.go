package promise

import (
	"errors"
	"testing"
	"time"
)

func TestAll_FulfillsWithOrderedValues(t *testing.T) {
	loop := NewLoop()
	entries := FromSlice([]*Promise{
		Resolve(loop, "a"),
		Resolve(loop, "b"),
		Resolve(loop, "c"),
	})
	result := All(loop, entries)
	loop.Run()

	if !result.IsFulfilled() {
		t.Fatalf("expected fulfilled, got %s", result.State())
	}
	om := result.Value().(*OrderedMap)
	want := []any{"a", "b", "c"}
	for i, k := range om.Keys() {
		v, _ := om.Get(k)
		if v != want[i] {
			t.Errorf("index %d: expected %v, got %v", i, want[i], v)
		}
	}
}

func TestAll_EmptyInputFulfillsImmediately(t *testing.T) {
	loop := NewLoop()
	result := All(loop, nil)
	loop.Run()

	if !result.IsFulfilled() {
		t.Fatalf("expected fulfilled, got %s", result.State())
	}
	if om := result.Value().(*OrderedMap); om.Len() != 0 {
		t.Errorf("expected empty map, got %d entries", om.Len())
	}
}

func TestAll_RejectsOnFirstFailureAndCancelsRest(t *testing.T) {
	loop := NewLoop()
	never, _, _ := Pending(loop)
	result := All(loop, FromSlice([]*Promise{
		Reject(loop, errors.New("boom")),
		never,
	}))
	loop.Run()

	if !result.IsRejected() {
		t.Fatalf("expected rejected, got %s", result.State())
	}
	if !never.IsCancelled() {
		t.Errorf("expected the still-pending input to be cancelled, got %s", never.State())
	}
}

func TestAllSettled_NeverRejects(t *testing.T) {
	loop := NewLoop()
	result := AllSettled(loop, FromSlice([]*Promise{
		Resolve(loop, "ok"),
		Reject(loop, errors.New("fail")),
	}))
	loop.Run()

	if !result.IsFulfilled() {
		t.Fatalf("expected fulfilled, got %s", result.State())
	}
	om := result.Value().(*OrderedMap)
	first, _ := om.Get(0)
	second, _ := om.Get(1)
	if sr := first.(SettledResult); !sr.IsFulfilled() || sr.Value() != "ok" {
		t.Errorf("expected fulfilled 'ok', got %v", sr)
	}
	if sr := second.(SettledResult); !sr.IsRejected() {
		t.Errorf("expected rejected, got %v", sr)
	}
}

func TestRace_SettlesWithFirstAndCancelsRest(t *testing.T) {
	loop := NewLoop()
	slow, _, _ := Pending(loop)
	result := Race(loop, FromSlice([]*Promise{
		slow,
		Resolve(loop, "fast"),
	}))
	loop.Run()

	if v := result.Value(); v != "fast" {
		t.Errorf("expected 'fast', got %v", v)
	}
	if !slow.IsCancelled() {
		t.Errorf("expected loser cancelled, got %s", slow.State())
	}
}

func TestAny_FulfillsWithFirstSuccess(t *testing.T) {
	loop := NewLoop()
	result := Any(loop, FromSlice([]*Promise{
		Reject(loop, errors.New("nope")),
		Resolve(loop, "yes"),
	}))
	loop.Run()

	if v := result.Value(); v != "yes" {
		t.Errorf("expected 'yes', got %v", v)
	}
}

func TestAny_AllFailuresYieldAggregateError(t *testing.T) {
	loop := NewLoop()
	result := Any(loop, FromSlice([]*Promise{
		Reject(loop, errors.New("one")),
		Reject(loop, errors.New("two")),
	}))
	loop.Run()

	if !result.IsRejected() {
		t.Fatalf("expected rejected, got %s", result.State())
	}
	var agg *AggregateError
	if !errors.As(result.Reason(), &agg) {
		t.Fatalf("expected *AggregateError, got %T", result.Reason())
	}
	if len(agg.Errors) != 2 {
		t.Errorf("expected 2 collected errors, got %d", len(agg.Errors))
	}
}

func TestTimeout_RejectsAndCancelsSlowPromise(t *testing.T) {
	loop := NewLoop()
	slow, _, _ := Pending(loop)
	result := Timeout(loop, slow, time.Millisecond)
	loop.RunUntil(func() bool { return result.IsSettled() })

	var timeoutErr *TimeoutError
	if !errors.As(result.Reason(), &timeoutErr) {
		t.Fatalf("expected *TimeoutError, got %v", result.Reason())
	}
	if !slow.IsCancelled() {
		t.Errorf("expected slow promise cancelled after timeout, got %s", slow.State())
	}
}

func TestTimeout_NonPositiveDurationRejectsWithInvalidArgument(t *testing.T) {
	loop := NewLoop()
	slow, _, _ := Pending(loop)
	result := Timeout(loop, slow, 0)
	loop.Run()

	var invalid *InvalidArgumentError
	if !errors.As(result.Reason(), &invalid) {
		t.Fatalf("expected *InvalidArgumentError, got %v", result.Reason())
	}
	if slow.IsSettled() {
		t.Errorf("expected the input promise left untouched, got %s", slow.State())
	}
}

func TestRace_EmptyInputRejects(t *testing.T) {
	loop := NewLoop()
	result := Race(loop, nil)
	loop.Run()

	var typeErr *TypeError
	if !errors.As(result.Reason(), &typeErr) {
		t.Fatalf("expected *TypeError, got %v", result.Reason())
	}
}

func TestAll_CancelledInputRejectsWithCancelledError(t *testing.T) {
	loop := NewLoop()
	cancelled, _, _ := Pending(loop)
	never, _, _ := Pending(loop)
	result := All(loop, FromSlice([]*Promise{cancelled, never}))
	cancelled.Cancel()
	loop.Run()

	var cancelErr *CancelledError
	if !errors.As(result.Reason(), &cancelErr) {
		t.Fatalf("expected *CancelledError, got %v", result.Reason())
	}
	if !never.IsCancelled() {
		t.Errorf("expected the other still-pending input cancelled, got %s", never.State())
	}
}

func TestTimeout_SettlesWithFastPromise(t *testing.T) {
	loop := NewLoop()
	p := Resolve(loop, "value")
	result := Timeout(loop, p, time.Hour)
	loop.Run()

	if v := result.Value(); v != "value" {
		t.Errorf("expected 'value', got %v", v)
	}
}

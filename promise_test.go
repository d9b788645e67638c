package promise

import (
	"errors"
	"runtime"
	"testing"
	"time"
)

func TestPending_ResolveFulfills(t *testing.T) {
	loop := NewLoop()
	p, resolve, _ := Pending(loop)
	resolve(42)
	loop.Run()

	if !p.IsFulfilled() {
		t.Fatalf("expected fulfilled, got %s", p.State())
	}
	if v := p.Value(); v != 42 {
		t.Errorf("expected value 42, got %v", v)
	}
}

func TestPending_RejectWrapsNonError(t *testing.T) {
	loop := NewLoop()
	p, _, reject := Pending(loop)
	reject("boom")
	loop.Run()

	if !p.IsRejected() {
		t.Fatalf("expected rejected, got %s", p.State())
	}
	var wrap *RejectionWrapError
	if !errors.As(p.Reason(), &wrap) {
		t.Fatalf("expected *RejectionWrapError, got %T", p.Reason())
	}
	if wrap.Reason != "boom" {
		t.Errorf("expected reason 'boom', got %v", wrap.Reason)
	}
}

func TestResolve_SelfAdoptionIsCycleError(t *testing.T) {
	loop := NewLoop()
	p, resolve, _ := Pending(loop)
	resolve(p)
	loop.Run()

	if !p.IsRejected() {
		t.Fatalf("expected rejected, got %s", p.State())
	}
	if !errors.Is(p.Reason(), &CycleError{}) {
		t.Errorf("expected CycleError, got %v", p.Reason())
	}
}

func TestResolve_AdoptsAnotherPromise(t *testing.T) {
	loop := NewLoop()
	inner := Resolve(loop, "inner value")
	outer, resolve, _ := Pending(loop)
	resolve(inner)
	loop.Run()

	if !outer.IsFulfilled() {
		t.Fatalf("expected outer fulfilled, got %s", outer.State())
	}
	if v := outer.Value(); v != "inner value" {
		t.Errorf("expected 'inner value', got %v", v)
	}
}

type stubThenable struct{ result any }

func (s stubThenable) Then(onFulfilled func(any), onRejected func(any)) {
	if err, ok := s.result.(error); ok {
		onRejected(err)
		return
	}
	onFulfilled(s.result)
}

func TestResolve_AdoptsThenable(t *testing.T) {
	loop := NewLoop()
	p, resolve, _ := Pending(loop)
	resolve(stubThenable{result: "from thenable"})
	loop.Run()

	if v := p.Value(); v != "from thenable" {
		t.Errorf("expected 'from thenable', got %v", v)
	}
}

func TestThen_ChainsValueTransform(t *testing.T) {
	loop := NewLoop()
	p := Resolve(loop, 1)
	chained := p.Then(func(v any) (any, error) {
		return v.(int) + 1, nil
	}, nil)
	loop.Run()

	if v := chained.Value(); v != 2 {
		t.Errorf("expected 2, got %v", v)
	}
}

func TestThen_PassThroughWhenHandlerNil(t *testing.T) {
	loop := NewLoop()
	p := Reject(loop, errors.New("fail"))
	chained := p.Then(func(any) (any, error) { return nil, nil }, nil)
	loop.Run()

	if !chained.IsRejected() {
		t.Fatalf("expected rejection to pass through, got %s", chained.State())
	}
}

func TestCatch_RecoversRejection(t *testing.T) {
	loop := NewLoop()
	p := Reject(loop, errors.New("fail"))
	recovered := p.Catch(func(r error) (any, error) {
		return "recovered", nil
	})
	loop.Run()

	if !recovered.IsFulfilled() {
		t.Fatalf("expected fulfilled, got %s", recovered.State())
	}
	if v := recovered.Value(); v != "recovered" {
		t.Errorf("expected 'recovered', got %v", v)
	}
}

func TestThen_HandlerPanicRejectsChild(t *testing.T) {
	loop := NewLoop()
	p := Resolve(loop, 1)
	chained := p.Then(func(any) (any, error) {
		panic("boom")
	}, nil)
	loop.Run()

	if !chained.IsRejected() {
		t.Fatalf("expected rejected, got %s", chained.State())
	}
	var panicErr PanicError
	if !errors.As(chained.Reason(), &panicErr) {
		t.Errorf("expected PanicError, got %T", chained.Reason())
	}
}

func TestFinally_RunsOnFulfillmentAndPassesValue(t *testing.T) {
	loop := NewLoop()
	var ran bool
	p := Resolve(loop, "value")
	final := p.Finally(func() any {
		ran = true
		return nil
	})
	loop.Run()

	if !ran {
		t.Error("expected finally handler to run")
	}
	if v := final.Value(); v != "value" {
		t.Errorf("expected original value to pass through, got %v", v)
	}
}

func TestFinally_ErrorOverridesOutcome(t *testing.T) {
	loop := NewLoop()
	p := Resolve(loop, "value")
	final := p.Finally(func() any {
		return errors.New("finally failed")
	})
	loop.Run()

	if !final.IsRejected() {
		t.Fatalf("expected rejected, got %s", final.State())
	}
}

func TestFinally_WaitsOnReturnedPromise(t *testing.T) {
	loop := NewLoop()
	gate, resolveGate, _ := Pending(loop)
	p := Resolve(loop, "value")
	final := p.Finally(func() any { return gate })

	loop.Run()
	if final.IsSettled() {
		t.Fatal("expected final to still be pending while gate is pending")
	}

	resolveGate(nil)
	loop.Run()
	if !final.IsFulfilled() || final.Value() != "value" {
		t.Errorf("expected final fulfilled with 'value', got %s / %v", final.State(), final.Value())
	}
}

func TestCancel_PropagatesToChildren(t *testing.T) {
	loop := NewLoop()
	p, _, _ := Pending(loop)
	child := p.Then(nil, nil)
	grandchild := child.Then(nil, nil)

	p.Cancel()

	if !p.IsCancelled() || !child.IsCancelled() || !grandchild.IsCancelled() {
		t.Fatalf("expected full chain cancelled: %s %s %s", p.State(), child.State(), grandchild.State())
	}
}

func TestCancel_OnCancelHandlerRunsOnce(t *testing.T) {
	loop := NewLoop()
	p, _, _ := Pending(loop)
	count := 0
	p.OnCancel(func() { count++ })
	p.Cancel()
	p.Cancel()

	if count != 1 {
		t.Errorf("expected handler to run exactly once, got %d", count)
	}
}

func TestOnCancel_InvokedImmediatelyIfAlreadyCancelled(t *testing.T) {
	loop := NewLoop()
	p, _, _ := Pending(loop)
	p.Cancel()

	var ran bool
	p.OnCancel(func() { ran = true })
	if !ran {
		t.Error("expected immediate invocation on already-cancelled promise")
	}
}

func TestCancelChain_WalksToRoot(t *testing.T) {
	loop := NewLoop()
	root, _, _ := Pending(loop)
	mid := root.Then(nil, nil)
	leaf := mid.Then(nil, nil)

	leaf.CancelChain()

	if !root.IsCancelled() || !mid.IsCancelled() || !leaf.IsCancelled() {
		t.Fatalf("expected whole chain cancelled: %s %s %s", root.State(), mid.State(), leaf.State())
	}
}

func TestAwait_BlocksUntilSettled(t *testing.T) {
	loop := NewLoop()
	p, resolve, _ := Pending(loop)
	go func() {
		time.Sleep(5 * time.Millisecond)
		resolve("done")
	}()

	v, err := Await[string](p, loop)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "done" {
		t.Errorf("expected 'done', got %q", v)
	}
}

func TestAwait_CancelledYieldsCancelledError(t *testing.T) {
	loop := NewLoop()
	p, _, _ := Pending(loop)
	p.Cancel()

	_, err := Await[any](p, loop)
	var ce *CancelledError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CancelledError, got %v", err)
	}
}

func TestToChannel_DeliversResultOnce(t *testing.T) {
	loop := NewLoop()
	p := Resolve(loop, "value")
	ch := p.ToChannel()
	loop.Run()

	result := <-ch
	if !result.IsFulfilled() || result.Value() != "value" {
		t.Errorf("expected fulfilled 'value', got %v", result)
	}
	if _, open := <-ch; open {
		t.Error("expected channel to be closed after delivering its one result")
	}
}

func TestSetRejectionHandler_RestoresDefault(t *testing.T) {
	boom := errors.New("boom")
	var captured error
	prev := SetRejectionHandler(func(r error) {
		if r == boom {
			captured = r
		}
	})
	defer SetRejectionHandler(prev)

	p := Reject(NewLoop(), boom)
	runtime.SetFinalizer(p, nil)
	finalizeRejectedPromise(p)
	if captured != boom {
		t.Fatalf("expected custom handler to receive %v, got %v", boom, captured)
	}

	captured = nil
	SetRejectionHandler(nil)
	finalizeRejectedPromise(p)
	if captured != nil {
		t.Errorf("expected nil to restore the default reporter, custom handler still received %v", captured)
	}
}

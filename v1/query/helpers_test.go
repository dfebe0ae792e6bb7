package query

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type result struct {
	v   string
	err error
}

type call struct {
	ctx  context.Context
	resp chan result
}

// scripted returns a fetch function whose calls are handed to the test,
// which decides when and how each one resolves. Calls ignore their context
// so that a superseded call can still resolve late.
func scripted() (FetchFunc[string], chan *call) {
	calls := make(chan *call, 16)
	fn := func(ctx context.Context) (string, error) {
		c := &call{ctx: ctx, resp: make(chan result, 1)}
		calls <- c
		r := <-c.resp
		return r.v, r.err
	}
	return fn, calls
}

func nextCall(t *testing.T, calls chan *call) *call {
	t.Helper()
	select {
	case c := <-calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for fetch call")
	}
	return nil
}

func noCall(t *testing.T, calls chan *call, wait time.Duration) {
	t.Helper()
	select {
	case <-calls:
		t.Fatal("unexpected fetch call")
	case <-time.After(wait):
	}
}

// counting returns a fetch function that resolves immediately with the
// number of times it has been called.
func counting() (FetchFunc[int], *atomic.Int32) {
	var n atomic.Int32
	return func(ctx context.Context) (int, error) {
		return int(n.Add(1)), nil
	}, &n
}

func waitState[T any](t *testing.T, o *Observer[T], cond func(State[T]) bool) State[T] {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := o.State(); cond(s) {
			return s
		}
		time.Sleep(2 * time.Millisecond)
	}
	s := o.State()
	t.Fatalf("state condition not met, last state %+v", s)
	return s
}

func settled[T any](s State[T]) bool {
	return s.FetchStatus == FetchIdle && s.Status != StatusPending
}

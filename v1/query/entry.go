package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	tiderrors "github.com/gracefellowship/tidings/v1/errors"
	"github.com/gracefellowship/tidings/v1/metrics"
)

var (
	// ErrFetchTimeout is stored when a fetch attempt exceeds FetchTimeout.
	ErrFetchTimeout = fmt.Errorf("query: fetch %w", tiderrors.ErrTimeout)
	// ErrFetchPanic is stored when a fetch function panics.
	ErrFetchPanic = errors.New("query: fetch panicked")
)

type trigger int

const (
	// triggerMount starts the first fetch of an entry and is ignored after.
	triggerMount trigger = iota
	// triggerTick and triggerRefetch join a running fetch.
	triggerTick
	triggerRefetch
	// triggerInvalidate schedules a follow-up fetch when one is running,
	// since the data may have changed after the running fetch read it.
	triggerInvalidate
	// triggerSupersede cancels the running fetch and starts a new one.
	triggerSupersede
)

type retryPolicy struct {
	retries int
	initial time.Duration
	max     time.Duration
	timeout time.Duration
}

type stateListener[T any] struct {
	owner *Observer[T]
	fn    func(State[T])
}

type entry[T any] struct {
	client *Client
	key    Key

	mu        sync.Mutex
	state     State[T]
	fetch     FetchFunc[T]
	policy    retryPolicy
	gen       uint64
	cancel    context.CancelFunc
	started   bool
	followUp  bool
	settled   chan struct{}
	observers map[*Observer[T]]struct{}
	enabled   int
	closed    bool
	unsub     func()

	listeners map[uint64]stateListener[T]
	nextID    uint64
	queue     []State[T]
	draining  bool
}

func newEntry[T any](c *Client, key Key) *entry[T] {
	return &entry[T]{
		client:    c,
		key:       key,
		observers: make(map[*Observer[T]]struct{}),
		listeners: make(map[uint64]stateListener[T]),
	}
}

func (e *entry[T]) attach(o *Observer[T], fetch FetchFunc[T], cfg observeConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers[o] = struct{}{}
	if o.enabled {
		e.enabled++
	}
	e.fetch = fetch
	e.policy = retryPolicy{
		retries: cfg.retries,
		initial: cfg.backoffInitial,
		max:     cfg.backoffMax,
		timeout: cfg.timeout,
	}
}

// detach reports whether o was the last observer.
func (e *entry[T]) detach(o *Observer[T]) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.observers[o]; !ok {
		return false
	}
	delete(e.observers, o)
	if o.enabled {
		e.enabled--
	}
	for id, l := range e.listeners {
		if l.owner == o {
			delete(e.listeners, id)
		}
	}
	return len(e.observers) == 0
}

func (e *entry[T]) setEnabled(o *Observer[T], v bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.observers[o]; !ok || o.enabled == v {
		return false
	}
	o.enabled = v
	if v {
		e.enabled++
	} else {
		e.enabled--
	}
	return true
}

func (e *entry[T]) shutdown() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	if e.settled != nil && e.state.FetchStatus == Fetching {
		close(e.settled)
	}
	e.state.FetchStatus = FetchIdle
	unsub := e.unsub
	e.unsub = nil
	e.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (e *entry[T]) snapshot() State[T] {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// request asks the entry to enter the fetching state. The returned channel
// is closed once the entry settles again, follow-ups included.
func (e *entry[T]) request(tr trigger) <-chan struct{} {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return closedChan
	}
	fetching := e.state.FetchStatus == Fetching
	switch {
	case tr == triggerMount && e.started:
	case tr == triggerInvalidate && e.enabled == 0:
	case fetching && tr == triggerInvalidate:
		e.followUp = true
	case fetching && tr == triggerSupersede:
		e.startLocked()
	case fetching:
	default:
		e.startLocked()
	}
	done := closedChan
	if e.state.FetchStatus == Fetching {
		done = e.settled
	}
	e.mu.Unlock()
	e.drain()
	return done
}

// startLocked begins a new fetch generation. A running fetch, if any, is
// canceled and its result will be discarded.
func (e *entry[T]) startLocked() {
	e.gen++
	gen := e.gen
	if e.cancel != nil {
		e.cancel()
	}
	ctx, cancel := context.WithCancel(e.client.ctx)
	e.cancel = cancel
	if e.state.FetchStatus != Fetching {
		e.settled = make(chan struct{})
	}
	e.started = true
	e.state.Status = StatusPending
	e.state.FetchStatus = Fetching
	e.enqueueLocked()
	go e.run(ctx, cancel, gen, e.fetch, e.policy)
}

func (e *entry[T]) run(ctx context.Context, cancel context.CancelFunc, gen uint64, fetch FetchFunc[T], p retryPolicy) {
	defer cancel()
	metrics.FetchCounter.Inc()
	v, failures, err := e.execute(ctx, fetch, p)

	e.mu.Lock()
	if gen != e.gen || e.closed {
		superseded := gen != e.gen
		e.mu.Unlock()
		if superseded {
			metrics.StaleDiscardCounter.Inc()
		}
		return
	}
	e.cancel = nil
	now := time.Now()
	if err != nil {
		metrics.FetchErrorCounter.Inc()
		e.client.logger.Debug("query: fetch failed", "key", e.key.String(), "attempts", failures, "error", err)
		e.state.Err = err
		e.state.Status = StatusError
		e.state.FailureCount = failures
		e.state.ErrorUpdatedAt = now
	} else {
		e.state.Data = v
		e.state.HasData = true
		e.state.Err = nil
		e.state.Status = StatusSuccess
		e.state.FailureCount = 0
		e.state.UpdatedAt = now
	}
	if e.followUp && e.enabled > 0 {
		e.followUp = false
		e.state.FetchStatus = FetchIdle
		e.enqueueLocked()
		e.state.FetchStatus = Fetching
		e.startLocked()
	} else {
		e.followUp = false
		e.state.FetchStatus = FetchIdle
		close(e.settled)
		e.enqueueLocked()
	}
	e.mu.Unlock()
	e.drain()
}

// execute runs fetch under the retry policy and returns the number of
// failed attempts alongside the outcome.
func (e *entry[T]) execute(ctx context.Context, fetch FetchFunc[T], p retryPolicy) (T, int, error) {
	failures := 0
	op := func() (T, error) {
		v, err := e.attempt(ctx, fetch, p.timeout)
		if err != nil {
			failures++
			if ctx.Err() != nil {
				return v, backoff.Permanent(err)
			}
		}
		return v, err
	}
	if p.retries == 0 {
		v, err := op()
		return v, failures, unwrapPermanent(err)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initial
	b.MaxInterval = p.max
	v, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.retries+1)),
	)
	return v, failures, unwrapPermanent(err)
}

func unwrapPermanent(err error) error {
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Unwrap()
	}
	return err
}

func (e *entry[T]) attempt(ctx context.Context, fetch FetchFunc[T], timeout time.Duration) (v T, err error) {
	if e.client.tracing {
		var span trace.Span
		ctx, span = tracer.Start(ctx, "query.fetch", trace.WithAttributes(attribute.String("tidings.query.key", e.key.String())))
		defer func() {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			span.End()
		}()
	}
	actx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrFetchPanic, r)
		}
	}()
	v, err = fetch(actx)
	if err != nil && timeout > 0 && ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s: %w", ErrFetchTimeout, timeout, err)
	}
	return v, err
}

func (e *entry[T]) subscribe(o *Observer[T], fn func(State[T])) func() {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.listeners[id] = stateListener[T]{owner: o, fn: fn}
	e.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.listeners, id)
			e.mu.Unlock()
		})
	}
}

func (e *entry[T]) enqueueLocked() {
	if len(e.listeners) == 0 {
		return
	}
	e.queue = append(e.queue, e.state)
}

// drain delivers queued states to listeners one at a time, in the order the
// transitions happened. Only one goroutine drains at a time; listeners may
// call back into the entry.
func (e *entry[T]) drain() {
	e.mu.Lock()
	if e.draining {
		e.mu.Unlock()
		return
	}
	e.draining = true
	for len(e.queue) > 0 {
		s := e.queue[0]
		e.queue = e.queue[1:]
		ids := make([]uint64, 0, len(e.listeners))
		for id := range e.listeners {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		fns := make([]func(State[T]), 0, len(ids))
		for _, id := range ids {
			fns = append(fns, e.listeners[id].fn)
		}
		e.mu.Unlock()
		for _, fn := range fns {
			e.client.safeCall(e.key, func() { fn(s) })
		}
		e.mu.Lock()
	}
	e.draining = false
	e.mu.Unlock()
}

package query

import (
	"context"
	"sync"
	"time"
)

// Observer is one consumer's live view of an entry.
type Observer[T any] struct {
	entry    *entry[T]
	client   *Client
	interval time.Duration

	// enabled is guarded by entry.mu.
	enabled bool

	tickMu   sync.Mutex
	stopTick chan struct{}

	closeOnce sync.Once
}

// Key returns the observed key.
func (o *Observer[T]) Key() Key {
	return o.entry.key
}

// State returns the current snapshot of the entry.
func (o *Observer[T]) State() State[T] {
	return o.entry.snapshot()
}

// Subscribe registers fn to receive every state transition of the entry,
// in order. fn runs on the goroutine that caused the transition and must
// not block. The returned function removes fn; closing the observer
// removes it too.
func (o *Observer[T]) Subscribe(fn func(State[T])) func() {
	return o.entry.subscribe(o, fn)
}

// Refetch asks the entry to fetch and waits for it to settle. A running
// fetch is joined unless CancelInFlight is given. Refetch on a disabled
// observer returns the current state without fetching. The error is only
// ever ctx.Err(): fetch failures are reported through State.
func (o *Observer[T]) Refetch(ctx context.Context, opts ...RefetchOption) (State[T], error) {
	var cfg refetchConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if !o.Enabled() {
		return o.State(), nil
	}
	tr := triggerRefetch
	if cfg.cancelInFlight {
		tr = triggerSupersede
	}
	done := o.entry.request(tr)
	select {
	case <-done:
		return o.State(), nil
	case <-ctx.Done():
		return o.State(), ctx.Err()
	}
}

// Enabled reports whether the observer may trigger fetches.
func (o *Observer[T]) Enabled() bool {
	o.entry.mu.Lock()
	defer o.entry.mu.Unlock()
	return o.enabled
}

// SetEnabled toggles the observer. Enabling it starts the entry's first
// fetch if none ever ran and resumes its refetch interval; disabling it
// stops the interval.
func (o *Observer[T]) SetEnabled(v bool) {
	if !o.entry.setEnabled(o, v) {
		return
	}
	if v {
		o.entry.request(triggerMount)
		o.startTicker()
	} else {
		o.stopTicker()
	}
}

// Close detaches the observer. It is safe to call more than once.
func (o *Observer[T]) Close() {
	o.closeOnce.Do(func() {
		o.stopTicker()
		release(o.client, o.entry, o)
	})
}

func (o *Observer[T]) startTicker() {
	if o.interval <= 0 {
		return
	}
	o.tickMu.Lock()
	defer o.tickMu.Unlock()
	if o.stopTick != nil {
		return
	}
	stop := make(chan struct{})
	o.stopTick = stop
	ticker := time.NewTicker(o.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				o.entry.request(triggerTick)
			case <-stop:
				return
			}
		}
	}()
}

func (o *Observer[T]) stopTicker() {
	o.tickMu.Lock()
	defer o.tickMu.Unlock()
	if o.stopTick != nil {
		close(o.stopTick)
		o.stopTick = nil
	}
}

// Package query implements a keyed asynchronous data cache.
//
// Every distinct Key observed on a Client owns one entry. All observers of
// the key share that entry and its single in-flight fetch. An entry exists
// only while at least one observer is open; closing the last observer drops
// the entry, its timers, its change bus subscription and its running fetch.
//
// Entries re-fetch when asked to by Observer.Refetch, by a RefetchInterval
// timer, or by a publish on the change bus topic named after the key's first
// part. Only the result of the most recently started fetch is ever stored.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"

	"github.com/gracefellowship/tidings/v1/changebus"
	tiderrors "github.com/gracefellowship/tidings/v1/errors"
	"github.com/gracefellowship/tidings/v1/metrics"
)

var tracer = otel.Tracer("github.com/gracefellowship/tidings/v1/query")

var (
	// ErrClientClosed is returned when observing on a closed Client.
	ErrClientClosed = fmt.Errorf("query: client %w", tiderrors.ErrClosed)
	// ErrTypeMismatch is returned when a key is observed with a value type
	// different from the one of its live entry.
	ErrTypeMismatch = errors.New("query: key observed with a different type")
)

// FetchFunc loads the value for a key. ctx is canceled when the fetch is
// superseded, when its entry is dropped or when the client closes.
type FetchFunc[T any] func(ctx context.Context) (T, error)

type entryHandle interface {
	shutdown()
}

// Client holds the live entries.
type Client struct {
	bus     changebus.Bus
	logger  *slog.Logger
	tracing bool

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries map[string]entryHandle
	closed  bool
}

// NewClient returns a Client whose entries re-fetch when their topic is
// published on bus. bus may be nil, in which case only timers and explicit
// refetches trigger fetches.
func NewClient(bus changebus.Bus, opts ...ClientOption) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		bus:     bus,
		logger:  slog.Default(),
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]entryHandle),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Observe attaches a new observer to the entry for key, creating the entry
// if needed. The first enabled observer of a fresh entry starts its fetch;
// later observers join whatever the entry is doing.
//
// fetch replaces the entry's fetch function, so the most recently attached
// observer decides how the entry loads.
func Observe[T any](c *Client, key Key, fetch FetchFunc[T], opts ...Option) (*Observer[T], error) {
	if key.IsZero() {
		return nil, ErrInvalidKey
	}
	if fetch == nil {
		return nil, errors.New("query: nil fetch function")
	}
	cfg := defaultObserveConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	var e *entry[T]
	if h, ok := c.entries[key.String()]; ok {
		e, ok = h.(*entry[T])
		if !ok {
			c.mu.Unlock()
			return nil, ErrTypeMismatch
		}
	} else {
		e = newEntry[T](c, key)
		c.entries[key.String()] = e
		metrics.EntryGauge.Inc()
		if topic := key.Topic(); topic != "" && c.bus != nil {
			e.unsub = c.bus.Subscribe(topic, func() { e.request(triggerInvalidate) })
		}
	}
	o := &Observer[T]{entry: e, client: c, enabled: cfg.enabled, interval: cfg.interval}
	e.attach(o, fetch, cfg)
	c.mu.Unlock()

	if o.enabled {
		e.request(triggerMount)
		o.startTicker()
	}
	return o, nil
}

// release removes o from e and drops e when it was the last observer.
func release[T any](c *Client, e *entry[T], o *Observer[T]) {
	c.mu.Lock()
	empty := e.detach(o)
	if empty {
		if cur, ok := c.entries[e.key.String()]; ok && cur == entryHandle(e) {
			delete(c.entries, e.key.String())
			metrics.EntryGauge.Dec()
		}
	}
	c.mu.Unlock()
	if empty {
		e.shutdown()
	}
}

// Invalidate publishes topic on the client's bus, making every entry whose
// key starts with topic re-fetch.
func (c *Client) Invalidate(ctx context.Context, topic string) {
	if c.bus != nil {
		c.bus.Publish(ctx, topic)
	}
}

// Entries returns the number of live entries.
func (c *Client) Entries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close cancels every running fetch and drops every entry. Observers created
// from the client keep their last state.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	entries := c.entries
	c.entries = make(map[string]entryHandle)
	c.mu.Unlock()

	c.cancel()
	for _, e := range entries {
		e.shutdown()
		metrics.EntryGauge.Dec()
	}
}

func (c *Client) safeCall(key Key, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("query: state listener panicked", "key", key.String(), "panic", r)
		}
	}()
	fn()
}

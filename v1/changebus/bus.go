// Package changebus carries invalidation signals between the parts of the
// application that change data and the query entries that display it.
//
// A topic carries no payload: publishing "events" only says that whatever
// is cached under "events" may be out of date.
package changebus

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/gracefellowship/tidings/v1/metrics"
)

// Listener is invoked each time a topic it is subscribed to is published.
type Listener func()

// Unsubscribe removes a listener. Calling it more than once is a no-op.
type Unsubscribe func()

// Bus is a keyed broadcast used purely for invalidation signalling.
type Bus interface {
	// Publish synchronously invokes every listener currently subscribed to
	// topic. It never fails: a panicking listener is isolated from the rest.
	Publish(ctx context.Context, topic string)
	// Subscribe registers fn for topic. Listeners registered after a publish
	// do not receive it.
	Subscribe(topic string, fn Listener) Unsubscribe
}

// Option configures the buses in this package.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger used to report listener and forwarding failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// InMemory is the process-local Bus implementation.
type InMemory struct {
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[string]map[uint64]Listener
	nextID uint64

	published atomic.Uint64
	delivered atomic.Uint64
	panics    atomic.Uint64
}

// NewInMemory returns an empty in-memory bus.
func NewInMemory(opts ...Option) *InMemory {
	o := buildOptions(opts)
	return &InMemory{
		logger: o.logger,
		subs:   make(map[string]map[uint64]Listener),
	}
}

// Publish implements Bus.Publish.
func (b *InMemory) Publish(ctx context.Context, topic string) {
	b.mu.Lock()
	set := b.subs[topic]
	ids := make([]uint64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	listeners := make([]Listener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, set[id])
	}
	b.mu.Unlock()

	b.published.Add(1)
	metrics.InvalidateCounter.Inc()
	for _, fn := range listeners {
		if b.deliver(ctx, topic, fn) {
			b.delivered.Add(1)
		}
	}
}

func (b *InMemory) deliver(ctx context.Context, topic string, fn Listener) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			b.panics.Add(1)
			metrics.ListenerPanicCounter.Inc()
			b.logger.ErrorContext(ctx, "changebus: listener panicked", "topic", topic, "panic", r)
		}
	}()
	fn()
	return true
}

// Subscribe implements Bus.Subscribe.
func (b *InMemory) Subscribe(topic string, fn Listener) Unsubscribe {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	set := b.subs[topic]
	if set == nil {
		set = make(map[uint64]Listener)
		b.subs[topic] = set
	}
	set[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(topic, id) })
	}
}

func (b *InMemory) remove(topic string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.subs[topic]
	if set == nil {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(b.subs, topic)
	}
}

// Topics returns the topics that currently have at least one listener.
func (b *InMemory) Topics() []string {
	b.mu.Lock()
	topics := make([]string, 0, len(b.subs))
	for t := range b.subs {
		topics = append(topics, t)
	}
	b.mu.Unlock()
	sort.Strings(topics)
	return topics
}

// Listeners returns the number of listeners subscribed to topic.
func (b *InMemory) Listeners(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic])
}

// Metrics reports delivery counters.
type Metrics struct {
	Published uint64
	Delivered uint64
	Panics    uint64
}

// Metrics returns the published, delivered and panicked counts.
func (b *InMemory) Metrics() Metrics {
	return Metrics{
		Published: b.published.Load(),
		Delivered: b.delivered.Load(),
		Panics:    b.panics.Load(),
	}
}

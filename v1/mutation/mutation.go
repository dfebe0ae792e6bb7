// Package mutation wraps write operations so that a successful write
// invalidates the query entries it affects and a failed one leaves them
// untouched.
package mutation

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/gracefellowship/tidings/v1/changebus"
	"github.com/gracefellowship/tidings/v1/metrics"
)

var tracer = otel.Tracer("github.com/gracefellowship/tidings/v1/mutation")

// Func performs the write.
type Func[V, R any] func(ctx context.Context, vars V) (R, error)

type invalidation struct {
	bus    changebus.Bus
	topics []string
}

type config[V, R any] struct {
	name          string
	logger        *slog.Logger
	invalidations []invalidation
	onSuccess     []func(ctx context.Context, vars V, res R)
}

// Option configures a Mutation.
type Option[V, R any] func(*config[V, R])

// Invalidates publishes topics on bus after every successful write. It may
// be given more than once.
func Invalidates[V, R any](bus changebus.Bus, topics ...string) Option[V, R] {
	return func(c *config[V, R]) {
		if bus == nil || len(topics) == 0 {
			return
		}
		c.invalidations = append(c.invalidations, invalidation{bus: bus, topics: topics})
	}
}

// OnSuccess registers fn to run after a successful write, once the declared
// invalidations have been published.
func OnSuccess[V, R any](fn func(ctx context.Context, vars V, res R)) Option[V, R] {
	return func(c *config[V, R]) {
		if fn != nil {
			c.onSuccess = append(c.onSuccess, fn)
		}
	}
}

// WithName labels the mutation in logs and spans.
func WithName[V, R any](name string) Option[V, R] {
	return func(c *config[V, R]) {
		c.name = name
	}
}

// WithLogger sets the logger used for failures and callback panics.
func WithLogger[V, R any](l *slog.Logger) Option[V, R] {
	return func(c *config[V, R]) {
		if l != nil {
			c.logger = l
		}
	}
}

// Mutation runs a write and tracks its loading and error state.
type Mutation[V, R any] struct {
	fn  Func[V, R]
	cfg config[V, R]

	mu      sync.Mutex
	running int
	err     error
}

// New returns a Mutation running fn.
func New[V, R any](fn Func[V, R], opts ...Option[V, R]) *Mutation[V, R] {
	cfg := config[V, R]{name: "mutation", logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Mutation[V, R]{fn: fn, cfg: cfg}
}

// Mutate runs the write. On success the declared topics are published and
// the OnSuccess callbacks run before Mutate returns. On failure the error is
// stored and returned, nothing is published and no callback runs.
func (m *Mutation[V, R]) Mutate(ctx context.Context, vars V) (R, error) {
	m.mu.Lock()
	m.running++
	m.err = nil
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.running--
		m.mu.Unlock()
	}()

	ctx, span := tracer.Start(ctx, "mutation."+m.cfg.name)
	defer span.End()
	metrics.MutationCounter.Inc()

	res, err := m.fn(ctx, vars)
	if err != nil {
		metrics.MutationErrorCounter.Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.cfg.logger.Warn("mutation failed", "mutation", m.cfg.name, "error", err)
		m.mu.Lock()
		m.err = err
		m.mu.Unlock()
		var zero R
		return zero, err
	}

	for _, inv := range m.cfg.invalidations {
		for _, topic := range inv.topics {
			inv.bus.Publish(ctx, topic)
		}
		span.SetAttributes(attribute.StringSlice("tidings.mutation.topics", inv.topics))
	}
	for _, fn := range m.cfg.onSuccess {
		m.callback(ctx, vars, res, fn)
	}
	return res, nil
}

func (m *Mutation[V, R]) callback(ctx context.Context, vars V, res R, fn func(context.Context, V, R)) {
	defer func() {
		if r := recover(); r != nil {
			m.cfg.logger.Error("mutation: success callback panicked", "mutation", m.cfg.name, "panic", r)
		}
	}()
	fn(ctx, vars, res)
}

// IsLoading reports whether a write is running.
func (m *Mutation[V, R]) IsLoading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running > 0
}

// Err returns the error of the most recent write, or nil.
func (m *Mutation[V, R]) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Reset clears the stored error.
func (m *Mutation[V, R]) Reset() {
	m.mu.Lock()
	m.err = nil
	m.mu.Unlock()
}

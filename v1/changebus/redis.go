package changebus

import (
	"context"
	stdErrors "errors"
	"sync"
	"sync/atomic"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	tiderrors "github.com/gracefellowship/tidings/v1/errors"
)

const redisTransportTimeout = 5 * time.Second

var tracer = otel.Tracer("github.com/gracefellowship/tidings/v1/changebus")

// RedisTransport implements Transport on Redis pub/sub.
type RedisTransport struct {
	client *redis.Client

	mu        sync.Mutex
	subs      map[*redis.PubSub]struct{}
	closed    bool
	published atomic.Uint64
	delivered atomic.Uint64
}

// NewRedisTransport returns a RedisTransport using the provided client.
func NewRedisTransport(client *redis.Client) *RedisTransport {
	return &RedisTransport{
		client: client,
		subs:   make(map[*redis.PubSub]struct{}),
	}
}

func mapRedisErr(err error) error {
	switch {
	case err == nil:
		return nil
	case stdErrors.Is(err, context.DeadlineExceeded):
		return tiderrors.ErrTimeout
	case stdErrors.Is(err, redis.ErrClosed):
		return tiderrors.ErrConnectionClosed
	}
	return err
}

// Publish implements Transport.Publish.
func (t *RedisTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	ctx, span := tracer.Start(ctx, "RedisTransport.Publish", trace.WithAttributes(attribute.String("tidings.bus.channel", channel)))
	defer span.End()

	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrTransportClosed
	}

	cctx, cancel := context.WithTimeout(ctx, redisTransportTimeout)
	defer cancel()
	if err := t.client.Publish(cctx, channel, payload).Err(); err != nil {
		span.RecordError(err)
		return mapRedisErr(err)
	}
	t.published.Add(1)
	return nil
}

// Subscribe implements Transport.Subscribe. It returns once Redis has
// confirmed the subscription.
func (t *RedisTransport) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrTransportClosed
	}
	t.mu.Unlock()

	ps := t.client.Subscribe(ctx, channel)
	cctx, cancel := context.WithTimeout(ctx, redisTransportTimeout)
	_, err := ps.Receive(cctx)
	cancel()
	if err != nil {
		_ = ps.Close()
		return nil, mapRedisErr(err)
	}

	t.mu.Lock()
	t.subs[ps] = struct{}{}
	t.mu.Unlock()

	out := make(chan []byte, 16)
	msgs := ps.Channel()
	go func() {
		defer close(out)
		defer t.release(ps)
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
					t.delivered.Add(1)
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (t *RedisTransport) release(ps *redis.PubSub) {
	t.mu.Lock()
	_, ok := t.subs[ps]
	delete(t.subs, ps)
	t.mu.Unlock()
	if ok {
		_ = ps.Close()
	}
}

// Close implements Transport.Close. The Redis client is not closed.
func (t *RedisTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	subs := t.subs
	t.subs = make(map[*redis.PubSub]struct{})
	t.mu.Unlock()

	var errs []error
	for ps := range subs {
		if err := ps.Close(); err != nil {
			errs = append(errs, mapRedisErr(err))
		}
	}
	return stdErrors.Join(errs...)
}

// Metrics returns the published and delivered counts.
func (t *RedisTransport) Metrics() TransportMetrics {
	return TransportMetrics{
		Published: t.published.Load(),
		Delivered: t.delivered.Load(),
	}
}

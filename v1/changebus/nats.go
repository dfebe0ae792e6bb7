package changebus

import (
	"context"
	"sync"
	"sync/atomic"

	nats "github.com/nats-io/nats.go"
)

// NATSTransport implements Transport using a NATS connection.
type NATSTransport struct {
	conn *nats.Conn

	mu        sync.Mutex
	subs      map[*nats.Subscription]context.CancelFunc
	closed    bool
	published atomic.Uint64
	delivered atomic.Uint64
}

// NewNATSTransport returns a NATSTransport using the provided connection.
func NewNATSTransport(conn *nats.Conn) *NATSTransport {
	return &NATSTransport{
		conn: conn,
		subs: make(map[*nats.Subscription]context.CancelFunc),
	}
}

// Publish implements Transport.Publish.
func (t *NATSTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.conn.Publish(channel, payload); err != nil {
		return err
	}
	t.published.Add(1)
	return nil
}

// Subscribe implements Transport.Subscribe. The subscription is flushed to
// the server before returning so that subsequent publishes are seen.
func (t *NATSTransport) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrTransportClosed
	}
	t.mu.Unlock()

	msgs := make(chan *nats.Msg, 64)
	sub, err := t.conn.ChanSubscribe(channel, msgs)
	if err != nil {
		return nil, err
	}
	if err := t.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.subs[sub] = cancel
	t.mu.Unlock()

	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		defer t.release(sub)
		for {
			select {
			case msg := <-msgs:
				select {
				case out <- msg.Data:
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

func (t *NATSTransport) release(sub *nats.Subscription) {
	t.mu.Lock()
	cancel, ok := t.subs[sub]
	delete(t.subs, sub)
	t.mu.Unlock()
	if ok {
		cancel()
	}
	_ = sub.Unsubscribe()
}

// Close implements Transport.Close. The NATS connection is left open.
func (t *NATSTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	cancels := make([]context.CancelFunc, 0, len(t.subs))
	for _, cancel := range t.subs {
		cancels = append(cancels, cancel)
	}
	t.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	return nil
}

// Metrics returns the published and delivered counts.
func (t *NATSTransport) Metrics() TransportMetrics {
	return TransportMetrics{
		Published: t.published.Load(),
		Delivered: t.delivered.Load(),
	}
}

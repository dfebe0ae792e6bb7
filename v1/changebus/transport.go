package changebus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	tiderrors "github.com/gracefellowship/tidings/v1/errors"
)

// ErrTransportClosed is returned by transports used after Close.
var ErrTransportClosed = fmt.Errorf("changebus: transport %w", tiderrors.ErrClosed)

// Transport moves opaque payloads between processes. It backs Bridged so
// invalidations published on one instance reach the others.
type Transport interface {
	// Publish sends payload on channel.
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe returns a channel receiving payloads published on channel
	// until ctx is canceled or the transport is closed.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	// Close releases the transport and closes every subscription channel.
	Close() error
}

// MemoryTransport is a Transport that connects buses living in the same
// process. It is mainly useful in tests.
type MemoryTransport struct {
	mu        sync.Mutex
	subs      map[string][]chan []byte
	closed    bool
	published atomic.Uint64
	delivered atomic.Uint64
}

// NewMemoryTransport returns a new MemoryTransport.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{subs: make(map[string][]chan []byte)}
}

// Publish implements Transport.Publish. Payloads are dropped for
// subscribers whose buffer is full.
func (t *MemoryTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportClosed
	}
	t.published.Add(1)
	for _, ch := range t.subs[channel] {
		select {
		case ch <- append([]byte(nil), payload...):
			t.delivered.Add(1)
		default:
		}
	}
	return nil
}

// Subscribe implements Transport.Subscribe.
func (t *MemoryTransport) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 16)
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrTransportClosed
	}
	t.subs[channel] = append(t.subs[channel], ch)
	t.mu.Unlock()
	go func() {
		<-ctx.Done()
		t.unsubscribe(channel, ch)
	}()
	return ch, nil
}

func (t *MemoryTransport) unsubscribe(channel string, ch chan []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	subs := t.subs[channel]
	for i, c := range subs {
		if c == ch {
			subs[i] = subs[len(subs)-1]
			subs = subs[:len(subs)-1]
			t.subs[channel] = subs
			close(c)
			break
		}
	}
	if len(subs) == 0 {
		delete(t.subs, channel)
	}
}

// Close implements Transport.Close.
func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	for _, subs := range t.subs {
		for _, ch := range subs {
			close(ch)
		}
	}
	t.subs = make(map[string][]chan []byte)
	return nil
}

// TransportMetrics reports transport counters.
type TransportMetrics struct {
	Published uint64
	Delivered uint64
}

// Metrics returns the published and delivered counts.
func (t *MemoryTransport) Metrics() TransportMetrics {
	return TransportMetrics{
		Published: t.published.Load(),
		Delivered: t.delivered.Load(),
	}
}

package changebus

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker rejects calls to the inner
// transport.
var ErrCircuitOpen = errors.New("changebus: circuit breaker is open")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

// CircuitBreakerTransport decorates a Transport with circuit breaker logic
// on the publish path.
type CircuitBreakerTransport struct {
	inner     Transport
	mu        sync.RWMutex
	state     state
	failures  int
	threshold int
	timeout   time.Duration
	lastFail  time.Time
}

// NewCircuitBreaker returns a new CircuitBreakerTransport. The circuit opens
// after threshold consecutive failures and probes again after timeout.
func NewCircuitBreaker(inner Transport, threshold int, timeout time.Duration) *CircuitBreakerTransport {
	if threshold <= 0 {
		threshold = 1
	}
	return &CircuitBreakerTransport{
		inner:     inner,
		threshold: threshold,
		timeout:   timeout,
		state:     stateClosed,
	}
}

// IsHealthy returns true if publishes are currently allowed through.
func (cb *CircuitBreakerTransport) IsHealthy() bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	if cb.state == stateOpen {
		return time.Since(cb.lastFail) > cb.timeout
	}
	return true
}

// allow handles the transition from open to half-open once the timeout
// elapsed. Only one probe is let through while half-open.
func (cb *CircuitBreakerTransport) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case stateClosed:
		return true
	case stateOpen:
		if time.Since(cb.lastFail) > cb.timeout {
			cb.state = stateHalfOpen
			return true
		}
		return false
	}
	return false
}

func (cb *CircuitBreakerTransport) onSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = stateClosed
	cb.failures = 0
}

func (cb *CircuitBreakerTransport) onFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.lastFail = time.Now()
	cb.failures++
	if cb.state == stateClosed && cb.failures >= cb.threshold {
		cb.state = stateOpen
	} else if cb.state == stateHalfOpen {
		cb.state = stateOpen
	}
}

// Publish implements Transport.Publish with circuit breaker logic.
func (cb *CircuitBreakerTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	if !cb.allow() {
		return ErrCircuitOpen
	}
	if err := cb.inner.Publish(ctx, channel, payload); err != nil {
		cb.onFailure()
		return err
	}
	cb.onSuccess()
	return nil
}

// Subscribe implements Transport.Subscribe.
func (cb *CircuitBreakerTransport) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return cb.inner.Subscribe(ctx, channel)
}

// Close implements Transport.Close.
func (cb *CircuitBreakerTransport) Close() error {
	return cb.inner.Close()
}

package query

import (
	"log/slog"
	"time"
)

const (
	defaultBackoffInitial = 200 * time.Millisecond
	defaultBackoffMax     = 5 * time.Second
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the logger used for fetch failures and listener panics.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTracing wraps every fetch attempt in an OpenTelemetry span.
func WithTracing() ClientOption {
	return func(c *Client) {
		c.tracing = true
	}
}

// Option configures a single Observe call.
type Option func(*observeConfig)

type observeConfig struct {
	enabled        bool
	interval       time.Duration
	retries        int
	backoffInitial time.Duration
	backoffMax     time.Duration
	timeout        time.Duration
}

func defaultObserveConfig() observeConfig {
	return observeConfig{
		enabled:        true,
		backoffInitial: defaultBackoffInitial,
		backoffMax:     defaultBackoffMax,
	}
}

// Enabled controls whether the observer may trigger fetches. A disabled
// observer still sees state produced by other observers of the same key.
func Enabled(v bool) Option {
	return func(c *observeConfig) {
		c.enabled = v
	}
}

// RefetchInterval re-requests the entry every d while the observer is
// enabled and open. Non-positive values disable it.
func RefetchInterval(d time.Duration) Option {
	return func(c *observeConfig) {
		c.interval = d
	}
}

// Retry sets how many times a failed fetch is retried before the entry
// settles in StatusError. The default is 0.
func Retry(n int) Option {
	return func(c *observeConfig) {
		if n < 0 {
			n = 0
		}
		c.retries = n
	}
}

// RetryBackoff sets the exponential backoff bounds used between retries.
// Delays are randomised around the current interval.
func RetryBackoff(initial, max time.Duration) Option {
	return func(c *observeConfig) {
		if initial > 0 {
			c.backoffInitial = initial
		}
		if max > 0 {
			c.backoffMax = max
		}
	}
}

// FetchTimeout bounds each fetch attempt. Without it a fetch that never
// returns leaves the entry fetching until it is superseded or dropped.
func FetchTimeout(d time.Duration) Option {
	return func(c *observeConfig) {
		c.timeout = d
	}
}

// RefetchOption configures Observer.Refetch.
type RefetchOption func(*refetchConfig)

type refetchConfig struct {
	cancelInFlight bool
}

// CancelInFlight makes Refetch supersede a running fetch instead of joining
// it: the running fetch's context is canceled and its result discarded.
func CancelInFlight() RefetchOption {
	return func(c *refetchConfig) {
		c.cancelInFlight = true
	}
}

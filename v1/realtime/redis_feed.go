package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultStreamPrefix prefixes the Redis stream of each table.
	DefaultStreamPrefix = "tidings:feed:"
	redisReadBlock      = 500 * time.Millisecond
	redisRetryDelay     = time.Second
)

// RedisFeed carries changes over one Redis stream per table, so that every
// instance of the service sees the writes of every other.
type RedisFeed struct {
	client *redis.Client
	prefix string
	logger *slog.Logger

	mu      sync.Mutex
	cancels map[string]map[<-chan Change]context.CancelFunc
	readers sync.WaitGroup
	closed  bool
}

// RedisFeedOption configures a RedisFeed.
type RedisFeedOption func(*RedisFeed)

// WithFeedLogger sets the logger used for stream read failures.
func WithFeedLogger(l *slog.Logger) RedisFeedOption {
	return func(f *RedisFeed) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewRedisFeed creates a RedisFeed using client.
func NewRedisFeed(client *redis.Client, opts ...RedisFeedOption) *RedisFeed {
	f := &RedisFeed{
		client:  client,
		prefix:  DefaultStreamPrefix,
		logger:  slog.Default(),
		cancels: make(map[string]map[<-chan Change]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *RedisFeed) stream(resource string) string {
	return f.prefix + resource
}

// Publish appends c to the stream of c.Table.
func (f *RedisFeed) Publish(ctx context.Context, c Change) error {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return ErrFeedClosed
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("realtime: encode change: %w", err)
	}
	return f.client.XAdd(ctx, &redis.XAddArgs{
		Stream: f.stream(c.Table),
		Values: map[string]any{"change": data},
	}).Err()
}

// Watch reads the stream of resource starting after its current tail.
func (f *RedisFeed) Watch(ctx context.Context, resource string) (<-chan Change, error) {
	lastID, err := f.tail(ctx, resource)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan Change, feedBuffer)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		cancel()
		return nil, ErrFeedClosed
	}
	m := f.cancels[resource]
	if m == nil {
		m = make(map[<-chan Change]context.CancelFunc)
		f.cancels[resource] = m
	}
	m[ch] = cancel
	f.readers.Add(1)
	f.mu.Unlock()

	go func() {
		defer f.readers.Done()
		defer close(ch)
		defer f.forget(resource, ch)
		for {
			res, err := f.client.XRead(ctx, &redis.XReadArgs{
				Streams: []string{f.stream(resource), lastID},
				Block:   redisReadBlock,
				Count:   16,
			}).Result()
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				f.logger.Warn("realtime: stream read failed, retrying", "resource", resource, "retry_in", redisRetryDelay, "error", err)
				select {
				case <-time.After(redisRetryDelay):
				case <-ctx.Done():
					return
				}
				continue
			}
			for _, s := range res {
				for _, msg := range s.Messages {
					lastID = msg.ID
					c, ok := decodeChange(msg.Values["change"])
					if !ok {
						continue
					}
					select {
					case ch <- c:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return ch, nil
}

func (f *RedisFeed) tail(ctx context.Context, resource string) (string, error) {
	msgs, err := f.client.XRevRangeN(ctx, f.stream(resource), "+", "-", 1).Result()
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 {
		return "0-0", nil
	}
	return msgs[0].ID, nil
}

func decodeChange(v any) (Change, bool) {
	var raw []byte
	switch s := v.(type) {
	case string:
		raw = []byte(s)
	case []byte:
		raw = s
	default:
		return Change{}, false
	}
	var c Change
	if err := json.Unmarshal(raw, &c); err != nil || c.Table == "" {
		return Change{}, false
	}
	return c, true
}

// Unwatch stops the reader behind ch. ch is closed once the reader exits.
func (f *RedisFeed) Unwatch(ctx context.Context, resource string, ch <-chan Change) error {
	f.mu.Lock()
	cancel, ok := f.cancels[resource][ch]
	f.mu.Unlock()
	if ok {
		cancel()
	}
	return nil
}

func (f *RedisFeed) forget(resource string, ch <-chan Change) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.cancels[resource]
	delete(m, ch)
	if len(m) == 0 {
		delete(f.cancels, resource)
	}
}

// Watchers returns the number of live readers of resource.
func (f *RedisFeed) Watchers(resource string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cancels[resource])
}

// Close stops every reader and waits for them to exit. The Redis client is
// left open.
func (f *RedisFeed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	var cancels []context.CancelFunc
	for _, m := range f.cancels {
		for _, cancel := range m {
			cancels = append(cancels, cancel)
		}
	}
	f.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	f.readers.Wait()
	return nil
}

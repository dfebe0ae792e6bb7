package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/gracefellowship/tidings/v1/changebus"
	"github.com/gracefellowship/tidings/v1/metrics"
)

// Watch pairs a backend resource with the bus topics a change on it
// invalidates.
type Watch struct {
	Resource string
	Topics   []string
}

// DefaultWatches returns the resources the admin dashboard follows. A new
// sermon also changes which sermon is the latest one.
func DefaultWatches() []Watch {
	return []Watch{
		{Resource: "events", Topics: []string{"events"}},
		{Resource: "ministries", Topics: []string{"ministries"}},
		{Resource: "sermons", Topics: []string{"sermons", "latest_sermon"}},
		{Resource: "gallery_images", Topics: []string{"gallery"}},
		{Resource: "service_times", Topics: []string{"service_times"}},
		{Resource: "church_info", Topics: []string{"church_info"}},
	}
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger used for subscription failures.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

type subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Bridge keeps one feed subscription per watched resource while mounted and
// publishes the resource's topics on every change.
type Bridge struct {
	feed    Feed
	bus     changebus.Bus
	watches []Watch
	logger  *slog.Logger

	mu     sync.Mutex
	active map[string]*subscription
}

// NewBridge creates an unmounted Bridge.
func NewBridge(feed Feed, bus changebus.Bus, watches []Watch, opts ...Option) *Bridge {
	b := &Bridge{
		feed:    feed,
		bus:     bus,
		watches: watches,
		logger:  slog.Default(),
		active:  make(map[string]*subscription),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Mount subscribes every watch that is not already live. A watch that fails
// to subscribe is logged and skipped; the others still mount. The returned
// error joins the failures. Subscriptions end on Unmount or when ctx is
// canceled.
func (b *Bridge) Mount(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var errs []error
	for _, w := range b.watches {
		if _, ok := b.active[w.Resource]; ok {
			continue
		}
		wctx, cancel := context.WithCancel(ctx)
		ch, err := b.feed.Watch(wctx, w.Resource)
		if err != nil {
			cancel()
			b.logger.Error("realtime: subscribe failed", "resource", w.Resource, "error", err)
			errs = append(errs, fmt.Errorf("watch %s: %w", w.Resource, err))
			continue
		}
		sub := &subscription{cancel: cancel, done: make(chan struct{})}
		b.active[w.Resource] = sub
		metrics.WatcherGauge.Inc()
		go b.forward(wctx, w, ch, sub)
	}
	return errors.Join(errs...)
}

func (b *Bridge) forward(ctx context.Context, w Watch, ch <-chan Change, sub *subscription) {
	defer func() {
		b.mu.Lock()
		if b.active[w.Resource] == sub {
			delete(b.active, w.Resource)
		}
		b.mu.Unlock()
		metrics.WatcherGauge.Dec()
		close(sub.done)
	}()
	for {
		select {
		case c, ok := <-ch:
			if !ok {
				if ctx.Err() == nil {
					b.logger.Error("realtime: subscription dropped", "resource", w.Resource)
				}
				return
			}
			b.logger.Debug("realtime: change", "resource", w.Resource, "type", c.Type, "record", c.RecordID)
			for _, topic := range w.Topics {
				b.bus.Publish(ctx, topic)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Unmount tears down every subscription and waits for them to stop. The
// bridge can be mounted again afterwards.
func (b *Bridge) Unmount() {
	b.mu.Lock()
	subs := make([]*subscription, 0, len(b.active))
	for _, s := range b.active {
		subs = append(subs, s)
	}
	b.mu.Unlock()
	for _, s := range subs {
		s.cancel()
	}
	for _, s := range subs {
		<-s.done
	}
}

// Active returns the resources with a live subscription, sorted.
func (b *Bridge) Active() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.active))
	for r := range b.active {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

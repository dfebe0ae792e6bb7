package realtime

import (
	"context"
	"sync"
)

const feedBuffer = 16

// MemoryFeed is a process-local Feed.
type MemoryFeed struct {
	mu     sync.Mutex
	subs   map[string][]chan Change
	closed bool
}

// NewMemoryFeed creates an empty MemoryFeed.
func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{subs: make(map[string][]chan Change)}
}

// Publish sends c to all watchers of c.Table. Slow watchers miss changes
// rather than block the writer.
func (f *MemoryFeed) Publish(ctx context.Context, c Change) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrFeedClosed
	}
	for _, ch := range f.subs[c.Table] {
		select {
		case ch <- c:
		default:
		}
	}
	return nil
}

// Watch subscribes to resource.
func (f *MemoryFeed) Watch(ctx context.Context, resource string) (<-chan Change, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := make(chan Change, feedBuffer)
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrFeedClosed
	}
	f.subs[resource] = append(f.subs[resource], ch)
	f.mu.Unlock()
	go func() {
		<-ctx.Done()
		_ = f.Unwatch(context.Background(), resource, ch)
	}()
	return ch, nil
}

// Unwatch removes ch from the watchers of resource and closes it.
func (f *MemoryFeed) Unwatch(ctx context.Context, resource string, ch <-chan Change) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	subs := f.subs[resource]
	for i, c := range subs {
		if c == ch {
			subs[i] = subs[len(subs)-1]
			subs = subs[:len(subs)-1]
			close(c)
			break
		}
	}
	if len(subs) == 0 {
		delete(f.subs, resource)
	} else {
		f.subs[resource] = subs
	}
	return nil
}

// Watchers returns the number of live watchers of resource.
func (f *MemoryFeed) Watchers(resource string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[resource])
}

// Close closes every watcher channel.
func (f *MemoryFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	for resource, subs := range f.subs {
		for _, ch := range subs {
			close(ch)
		}
		delete(f.subs, resource)
	}
	return nil
}

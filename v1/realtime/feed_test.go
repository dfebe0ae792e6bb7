package realtime

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	tiderrors "github.com/gracefellowship/tidings/v1/errors"
)

func recv(t *testing.T, ch <-chan Change) Change {
	t.Helper()
	select {
	case c, ok := <-ch:
		if !ok {
			t.Fatal("feed channel closed")
		}
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for change")
	}
	return Change{}
}

func waitClosed(t *testing.T, ch <-chan Change) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed")
		}
	}
}

func TestMemoryFeed(t *testing.T) {
	f := NewMemoryFeed()
	ctx := context.Background()

	events, err := f.Watch(ctx, "events")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	other, _ := f.Watch(ctx, "ministries")

	if err := f.Publish(ctx, Change{Type: Insert, Table: "events", RecordID: "1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if c := recv(t, events); c.Type != Insert || c.RecordID != "1" {
		t.Fatalf("unexpected change %+v", c)
	}
	select {
	case c := <-other:
		t.Fatalf("change leaked to other resource: %+v", c)
	default:
	}

	if err := f.Unwatch(ctx, "events", events); err != nil {
		t.Fatalf("unwatch: %v", err)
	}
	waitClosed(t, events)
	if f.Watchers("events") != 0 || f.Watchers("ministries") != 1 {
		t.Fatalf("unexpected watchers")
	}
}

func TestMemoryFeedContextCancel(t *testing.T) {
	f := NewMemoryFeed()
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := f.Watch(ctx, "events")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	cancel()
	waitClosed(t, ch)
	if f.Watchers("events") != 0 {
		t.Fatal("watcher not removed on cancel")
	}
	if _, err := f.Watch(ctx, "events"); err == nil {
		t.Fatal("expected error watching with canceled context")
	}
}

func TestMemoryFeedClose(t *testing.T) {
	f := NewMemoryFeed()
	ctx := context.Background()
	ch, err := f.Watch(ctx, "events")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	waitClosed(t, ch)
	if _, err := f.Watch(ctx, "events"); !errors.Is(err, ErrFeedClosed) {
		t.Fatalf("expected ErrFeedClosed, got %v", err)
	}
	if err := f.Publish(ctx, Change{Type: Insert, Table: "events"}); !errors.Is(err, tiderrors.ErrClosed) {
		t.Fatalf("expected closed error, got %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	if addr := os.Getenv("TIDINGS_TEST_REDIS_ADDR"); addr != "" {
		return redis.NewClient(&redis.Options{Addr: addr})
	}
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestRedisFeed(t *testing.T) {
	client := newRedisClient(t)
	defer client.Close()
	f := NewRedisFeed(client)
	ctx := context.Background()

	// Changes written before the watch started are not replayed.
	if err := f.Publish(ctx, Change{Type: Insert, Table: "sermons", RecordID: "old"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	ch, err := f.Watch(ctx, "sermons")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	if err := f.Publish(ctx, Change{Type: Update, Table: "sermons", RecordID: "s1", At: time.Now()}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	c := recv(t, ch)
	if c.Type != Update || c.RecordID != "s1" || c.Table != "sermons" {
		t.Fatalf("unexpected change %+v", c)
	}
	if f.Watchers("sermons") != 1 {
		t.Fatalf("expected one watcher")
	}

	if err := f.Unwatch(ctx, "sermons", ch); err != nil {
		t.Fatalf("unwatch: %v", err)
	}
	waitClosed(t, ch)
	if f.Watchers("sermons") != 0 {
		t.Fatalf("watcher not removed")
	}
}

func TestRedisFeedClose(t *testing.T) {
	client := newRedisClient(t)
	defer client.Close()
	f := NewRedisFeed(client)
	ctx := context.Background()

	ch, err := f.Watch(ctx, "events")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	waitClosed(t, ch)
	if f.Watchers("events") != 0 {
		t.Fatalf("reader left after close")
	}
	if _, err := f.Watch(ctx, "events"); !errors.Is(err, ErrFeedClosed) {
		t.Fatalf("expected ErrFeedClosed, got %v", err)
	}
}

func TestRedisFeedLogsReadFailures(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	logs := &logBuffer{}
	f := NewRedisFeed(client, WithFeedLogger(slog.New(slog.NewTextHandler(logs, nil))))
	defer f.Close()

	if _, err := f.Watch(context.Background(), "events"); err != nil {
		t.Fatalf("watch: %v", err)
	}
	mr.Close()

	eventually(t, func() bool {
		return strings.Contains(logs.String(), "stream read failed")
	})
	if !strings.Contains(logs.String(), "resource=events") {
		t.Fatalf("resource missing from log: %q", logs.String())
	}
}

func TestDecodeChangeRejectsGarbage(t *testing.T) {
	if _, ok := decodeChange("not json"); ok {
		t.Fatal("garbage decoded")
	}
	if _, ok := decodeChange(42); ok {
		t.Fatal("non-string decoded")
	}
	if c, ok := decodeChange(`{"type":"DELETE","table":"events","record_id":"9"}`); !ok || c.Type != Delete {
		t.Fatalf("valid change rejected: %+v", c)
	}
}

package changebus

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
)

func newRedisTransport(t *testing.T) *RedisTransport {
	t.Helper()
	addr := os.Getenv("TIDINGS_TEST_REDIS_ADDR")
	if addr != "" {
		t.Logf("RedisTransport: using real Redis at %s", addr)
	} else {
		mr, err := miniredis.Run()
		if err != nil {
			t.Fatalf("miniredis run: %v", err)
		}
		t.Cleanup(mr.Close)
		addr = mr.Addr()
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	tr := NewRedisTransport(client)
	t.Cleanup(func() {
		_ = tr.Close()
		_ = client.Close()
	})
	return tr
}

func TestRedisTransportPublishSubscribe(t *testing.T) {
	tr := newRedisTransport(t)
	exerciseTransport(t, tr, "tidings:test")
	if m := tr.Metrics(); m.Published != 1 || m.Delivered != 1 {
		t.Fatalf("unexpected metrics %+v", m)
	}
}

func TestRedisTransportBridgesBuses(t *testing.T) {
	tr := newRedisTransport(t)
	ctx := context.Background()

	a, err := NewBridged(ctx, NewInMemory(), tr, "")
	if err != nil {
		t.Fatalf("bridge a: %v", err)
	}
	defer a.Close()
	b, err := NewBridged(ctx, NewInMemory(), tr, "")
	if err != nil {
		t.Fatalf("bridge b: %v", err)
	}
	defer b.Close()

	got := make(chan struct{}, 1)
	b.Subscribe("sermons", func() { got <- struct{}{} })
	a.Publish(ctx, "sermons")

	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("remote bus did not receive the topic")
	}
}

func TestRedisTransportClosed(t *testing.T) {
	tr := newRedisTransport(t)
	if err := tr.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := tr.Publish(context.Background(), "c", []byte("x")); !errors.Is(err, ErrTransportClosed) {
		t.Fatalf("expected ErrTransportClosed, got %v", err)
	}
}

package changebus

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	for i := 0; i < 200; i++ {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestBridgedForwardsBetweenInstances(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	transport := NewMemoryTransport()
	defer transport.Close()

	localA, localB := NewInMemory(), NewInMemory()
	a, err := NewBridged(ctx, localA, transport, "")
	if err != nil {
		t.Fatalf("bridge a: %v", err)
	}
	defer a.Close()
	b, err := NewBridged(ctx, localB, transport, "")
	if err != nil {
		t.Fatalf("bridge b: %v", err)
	}
	defer b.Close()

	gotA := make(chan struct{}, 4)
	gotB := make(chan struct{}, 4)
	a.Subscribe("events", func() { gotA <- struct{}{} })
	b.Subscribe("events", func() { gotB <- struct{}{} })

	a.Publish(ctx, "events")

	select {
	case <-gotA:
	case <-time.After(time.Second):
		t.Fatal("local listener not invoked")
	}
	select {
	case <-gotB:
	case <-time.After(time.Second):
		t.Fatal("remote listener not invoked")
	}

	// the origin drops its own echo
	time.Sleep(50 * time.Millisecond)
	if len(gotA) != 0 {
		t.Fatalf("publisher received its own echo")
	}
	if localA.Metrics().Published != 1 {
		t.Fatalf("expected one local publish on a, got %d", localA.Metrics().Published)
	}
}

func TestBridgedIgnoresMalformedEnvelopes(t *testing.T) {
	ctx := context.Background()
	transport := NewMemoryTransport()
	defer transport.Close()
	local := NewInMemory()
	b, err := NewBridged(ctx, local, transport, "bus")
	if err != nil {
		t.Fatalf("bridge: %v", err)
	}
	defer b.Close()

	if err := transport.Publish(ctx, "bus", []byte("not json")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := transport.Publish(ctx, "bus", []byte(`{"o":"elsewhere","t":"gallery"}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	waitFor(t, func() bool { return local.Metrics().Published == 1 })
}

func TestBridgedPublishSurvivesClosedTransport(t *testing.T) {
	ctx := context.Background()
	transport := NewMemoryTransport()
	local := NewInMemory()
	b, err := NewBridged(ctx, local, transport, "")
	if err != nil {
		t.Fatalf("bridge: %v", err)
	}
	_ = transport.Close()

	called := false
	b.Subscribe("events", func() { called = true })
	b.Publish(ctx, "events")
	if !called {
		t.Fatal("local delivery must not depend on the transport")
	}
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestBridgedLogsClosedTransport(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	transport := NewMemoryTransport()
	logs := &logBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, nil))

	b, err := NewBridged(ctx, NewInMemory(), transport, "", WithLogger(logger))
	if err != nil {
		t.Fatalf("bridge: %v", err)
	}
	defer b.Close()

	if err := transport.Close(); err != nil {
		t.Fatalf("close transport: %v", err)
	}
	waitFor(t, func() bool {
		return strings.Contains(logs.String(), "transport subscription closed")
	})
}

func TestBridgedCloseIsQuiet(t *testing.T) {
	transport := NewMemoryTransport()
	defer transport.Close()
	logs := &logBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, nil))

	b, err := NewBridged(context.Background(), NewInMemory(), transport, "", WithLogger(logger))
	if err != nil {
		t.Fatalf("bridge: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if out := logs.String(); out != "" {
		t.Fatalf("unexpected log output %q", out)
	}
}

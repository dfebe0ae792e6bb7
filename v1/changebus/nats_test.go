package changebus

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	natsserver "github.com/nats-io/nats-server/v2/test"
	nats "github.com/nats-io/nats.go"
)

func newNATSTransport(t *testing.T) *NATSTransport {
	t.Helper()
	addr := os.Getenv("TIDINGS_TEST_NATS_ADDR")

	var conn *nats.Conn
	var s *server.Server
	var err error

	if addr != "" {
		t.Logf("NATSTransport: using real NATS at %s", addr)
		conn, err = nats.Connect(addr)
	} else {
		t.Log("NATSTransport: using embedded NATS server")
		s = natsserver.RunRandClientPortServer()
		conn, err = nats.Connect(s.ClientURL())
	}
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	tr := NewNATSTransport(conn)
	t.Cleanup(func() {
		_ = tr.Close()
		conn.Close()
		if s != nil {
			s.Shutdown()
		}
	})
	return tr
}

func TestNATSTransportPublishSubscribe(t *testing.T) {
	tr := newNATSTransport(t)
	exerciseTransport(t, tr, "tidings.test")
	if m := tr.Metrics(); m.Published != 1 || m.Delivered != 1 {
		t.Fatalf("unexpected metrics %+v", m)
	}
}

func TestNATSTransportBridgesBuses(t *testing.T) {
	tr := newNATSTransport(t)
	ctx := context.Background()

	a, err := NewBridged(ctx, NewInMemory(), tr, "tidings.invalidate")
	if err != nil {
		t.Fatalf("bridge a: %v", err)
	}
	defer a.Close()
	b, err := NewBridged(ctx, NewInMemory(), tr, "tidings.invalidate")
	if err != nil {
		t.Fatalf("bridge b: %v", err)
	}
	defer b.Close()

	got := make(chan struct{}, 1)
	b.Subscribe("church_info", func() { got <- struct{}{} })
	a.Publish(ctx, "church_info")

	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("remote bus did not receive the topic")
	}
}

package realtime

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gracefellowship/tidings/v1/changebus"
)

func TestSSEHandlerStream(t *testing.T) {
	bus := changebus.NewInMemory()
	srv := httptest.NewServer(SSEHandler(bus))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "?topic=events&topic=sermons")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if bus.Listeners("events") != 1 || bus.Listeners("sermons") != 1 {
		t.Fatalf("handler did not subscribe")
	}

	bus.Publish(context.Background(), "sermons")
	reader := bufio.NewReader(resp.Body)
	var lines []string
	for len(lines) < 2 {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if lines[0] != "event: invalidate" || lines[1] != "data: sermons" {
		t.Fatalf("unexpected frame %q", lines)
	}
}

func TestSSEHandlerMissingTopic(t *testing.T) {
	srv := httptest.NewServer(SSEHandler(changebus.NewInMemory()))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestSSEHandlerContextCancelUnsubscribes(t *testing.T) {
	bus := changebus.NewInMemory()
	srv := httptest.NewServer(SSEHandler(bus))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?topic=events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	cancel()
	resp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	for bus.Listeners("events") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("listener not removed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebSocketHandlerStream(t *testing.T) {
	bus := changebus.NewInMemory()
	srv := httptest.NewServer(WebSocketHandler(bus))
	defer srv.Close()

	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "?topic=gallery"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for bus.Listeners("gallery") != 1 {
		if time.Now().After(deadline) {
			t.Fatal("handler did not subscribe")
		}
		time.Sleep(5 * time.Millisecond)
	}
	bus.Publish(context.Background(), "gallery")

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(msg) != "gallery" {
		t.Fatalf("unexpected %s", msg)
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for bus.Listeners("gallery") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("listener not removed after client left")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebSocketHandlerMissingTopic(t *testing.T) {
	srv := httptest.NewServer(WebSocketHandler(changebus.NewInMemory()))
	defer srv.Close()

	u := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", resp)
	}
}

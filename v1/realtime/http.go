package realtime

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/gracefellowship/tidings/v1/changebus"
)

const streamBuffer = 64

// stream subscribes to every topic and returns a channel of published topic
// names. Topics published faster than the client reads are dropped.
func stream(bus changebus.Bus, topics []string) (<-chan string, func()) {
	ch := make(chan string, streamBuffer)
	unsubs := make([]changebus.Unsubscribe, 0, len(topics))
	for _, topic := range topics {
		topic := topic
		unsubs = append(unsubs, bus.Subscribe(topic, func() {
			select {
			case ch <- topic:
			default:
			}
		}))
	}
	return ch, func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// SSEHandler streams bus invalidations over Server-Sent Events. Topics are
// taken from the repeated "topic" query parameter.
func SSEHandler(bus changebus.Bus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		topics := r.URL.Query()["topic"]
		if len(topics) == 0 {
			http.Error(w, "missing topic", http.StatusBadRequest)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "stream unsupported", http.StatusInternalServerError)
			return
		}
		ch, stop := stream(bus, topics)
		defer stop()
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()
		ctx := r.Context()
		for {
			select {
			case topic := <-ch:
				if _, err := fmt.Fprintf(w, "event: invalidate\ndata: %s\n\n", topic); err != nil {
					return
				}
				flusher.Flush()
			case <-ctx.Done():
				return
			}
		}
	}
}

var upgrader = websocket.Upgrader{}

// WebSocketHandler streams bus invalidations over WebSocket, one text
// message per published topic.
func WebSocketHandler(bus changebus.Bus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		topics := r.URL.Query()["topic"]
		if len(topics) == 0 {
			http.Error(w, "missing topic", http.StatusBadRequest)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		ch, stop := stream(bus, topics)
		defer stop()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go func() {
			// Reading detects the client going away.
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
		for {
			select {
			case topic := <-ch:
				if err := conn.WriteMessage(websocket.TextMessage, []byte(topic)); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}
}

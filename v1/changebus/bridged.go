package changebus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// DefaultChannel is the transport channel used by Bridged when none is given.
const DefaultChannel = "tidings:invalidate"

type envelope struct {
	Origin string `json:"o"`
	Topic  string `json:"t"`
}

// Bridged is a Bus that mirrors every publish onto a Transport and replays
// topics published by other instances onto its local bus.
type Bridged struct {
	local     Bus
	transport Transport
	channel   string
	origin    string
	logger    *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewBridged subscribes to channel on t and returns a Bus that forwards
// publishes to it. The bridge runs until Close is called or ctx ends.
func NewBridged(ctx context.Context, local Bus, t Transport, channel string, opts ...Option) (*Bridged, error) {
	if channel == "" {
		channel = DefaultChannel
	}
	o := buildOptions(opts)
	ctx, cancel := context.WithCancel(ctx)
	in, err := t.Subscribe(ctx, channel)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("changebus: subscribe %s: %w", channel, err)
	}
	b := &Bridged{
		local:     local,
		transport: t,
		channel:   channel,
		origin:    uuid.NewString(),
		logger:    o.logger,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go b.receive(ctx, in)
	return b, nil
}

func (b *Bridged) receive(ctx context.Context, in <-chan []byte) {
	defer close(b.done)
	for {
		select {
		case payload, ok := <-in:
			if !ok {
				if ctx.Err() == nil {
					b.logger.Warn("changebus: transport subscription closed", "channel", b.channel)
				}
				return
			}
			var env envelope
			if err := json.Unmarshal(payload, &env); err != nil {
				b.logger.WarnContext(ctx, "changebus: dropping malformed envelope", "channel", b.channel, "error", err)
				continue
			}
			if env.Origin == b.origin || env.Topic == "" {
				continue
			}
			b.local.Publish(ctx, env.Topic)
		case <-ctx.Done():
			return
		}
	}
}

// Publish implements Bus.Publish. Local listeners run first; a failure to
// forward is logged and otherwise ignored.
func (b *Bridged) Publish(ctx context.Context, topic string) {
	b.local.Publish(ctx, topic)
	payload, err := json.Marshal(envelope{Origin: b.origin, Topic: topic})
	if err != nil {
		b.logger.ErrorContext(ctx, "changebus: encode envelope", "topic", topic, "error", err)
		return
	}
	if err := b.transport.Publish(ctx, b.channel, payload); err != nil {
		b.logger.WarnContext(ctx, "changebus: forward failed", "topic", topic, "channel", b.channel, "error", err)
	}
}

// Subscribe implements Bus.Subscribe.
func (b *Bridged) Subscribe(topic string, fn Listener) Unsubscribe {
	return b.local.Subscribe(topic, fn)
}

// Origin returns the identifier this instance stamps on forwarded topics.
func (b *Bridged) Origin() string {
	return b.origin
}

// Close stops relaying remote topics. The transport itself is left open.
func (b *Bridged) Close() error {
	b.once.Do(func() {
		b.cancel()
		<-b.done
	})
	return nil
}

package changebus

import (
	"context"
	"sync"
	"sync/atomic"

	sarama "github.com/IBM/sarama"
)

// KafkaTransport implements Transport on Kafka. Each channel maps to a
// topic and only partition 0 is consumed, from the newest offset.
type KafkaTransport struct {
	client   sarama.Client
	producer sarama.SyncProducer
	consumer sarama.Consumer

	mu        sync.Mutex
	subs      map[sarama.PartitionConsumer]context.CancelFunc
	closed    bool
	published atomic.Uint64
	delivered atomic.Uint64
}

// NewKafkaTransport connects to the given brokers.
func NewKafkaTransport(brokers []string, cfg *sarama.Config) (*KafkaTransport, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	cfg.Producer.Return.Successes = true
	client, err := sarama.NewClient(brokers, cfg)
	if err != nil {
		return nil, err
	}
	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = producer.Close()
		_ = client.Close()
		return nil, err
	}
	return &KafkaTransport{
		client:   client,
		producer: producer,
		consumer: consumer,
		subs:     make(map[sarama.PartitionConsumer]context.CancelFunc),
	}, nil
}

// Publish implements Transport.Publish.
func (t *KafkaTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{Topic: channel, Value: sarama.ByteEncoder(payload)}
	if _, _, err := t.producer.SendMessage(msg); err != nil {
		return err
	}
	t.published.Add(1)
	return nil
}

// Subscribe implements Transport.Subscribe.
func (t *KafkaTransport) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrTransportClosed
	}
	t.mu.Unlock()

	pc, err := t.consumer.ConsumePartition(channel, 0, sarama.OffsetNewest)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.subs[pc] = cancel
	t.mu.Unlock()

	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		defer t.release(pc)
		msgs := pc.Messages()
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- msg.Value:
					t.delivered.Add(1)
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (t *KafkaTransport) release(pc sarama.PartitionConsumer) {
	t.mu.Lock()
	cancel, ok := t.subs[pc]
	delete(t.subs, pc)
	t.mu.Unlock()
	if ok {
		cancel()
	}
	_ = pc.Close()
}

// Close implements Transport.Close and releases the Kafka client.
func (t *KafkaTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	cancels := make([]context.CancelFunc, 0, len(t.subs))
	for _, cancel := range t.subs {
		cancels = append(cancels, cancel)
	}
	t.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	_ = t.producer.Close()
	_ = t.consumer.Close()
	return t.client.Close()
}

// Metrics returns the published and delivered counts.
func (t *KafkaTransport) Metrics() TransportMetrics {
	return TransportMetrics{
		Published: t.published.Load(),
		Delivered: t.delivered.Load(),
	}
}

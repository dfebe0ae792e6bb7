package changebus

import (
	"os"
	"testing"

	sarama "github.com/IBM/sarama"
	"github.com/google/uuid"
)

func TestKafkaTransportPublishSubscribe(t *testing.T) {
	addr := os.Getenv("TIDINGS_TEST_KAFKA_ADDR")
	if addr == "" {
		t.Skip("TIDINGS_TEST_KAFKA_ADDR not set, skipping Kafka integration tests")
	}
	t.Logf("KafkaTransport: using real Kafka at %s", addr)

	cfg := sarama.NewConfig()
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	tr, err := NewKafkaTransport([]string{addr}, cfg)
	if err != nil {
		t.Fatalf("NewKafkaTransport: %v", err)
	}
	t.Cleanup(func() { _ = tr.Close() })

	exerciseTransport(t, tr, "tidings-test-"+uuid.NewString())
}

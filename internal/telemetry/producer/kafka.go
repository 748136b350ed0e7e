package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"nova-workspace/backend/internal/telemetry/domain"
)

// messageWriter is the subset of *kafka.Writer used by KafkaProducer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer implements Producer using segmentio/kafka-go.
type KafkaProducer struct {
	writer messageWriter
	topic  string
}

// NewKafkaProducer creates a Kafka producer that writes provisioning events to the given topic.
// Returns nil when brokers or topic is empty, which disables events. Call Close when shutting down.
func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &KafkaProducer{writer: writer, topic: topic}
}

// Emit serializes the event as JSON and writes it keyed by tenant, so one tenant's events stay ordered.
func (p *KafkaProducer) Emit(ctx context.Context, event *domain.Event) error {
	if p == nil || p.writer == nil || event == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var key []byte
	if event.TenantID != "" {
		key = []byte(event.TenantID)
	}
	return p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   key,
		Value: payload,
		Time:  event.CreatedAt,
	})
}

// Close closes the Kafka writer. Safe to call multiple times.
func (p *KafkaProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

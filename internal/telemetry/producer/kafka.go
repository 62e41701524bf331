package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"bizbank-confirmation/internal/telemetry"
)

var _ Producer = (*KafkaProducer)(nil)

// KafkaProducer implements Producer using segmentio/kafka-go.
type KafkaProducer struct {
	writer *kafka.Writer
	topic  string
}

// NewKafkaProducer creates a Kafka producer writing to topic. Returns nil when brokers or topic are empty
// so callers can treat telemetry as disabled. Call Close when shutting down.
func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	return newWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	}, topic)
}

func newWithWriter(w *kafka.Writer, topic string) *KafkaProducer {
	return &KafkaProducer{writer: w, topic: topic}
}

// Encode returns the Kafka message for event. The intent id keys the message so one run's events stay ordered
// on a single partition.
func Encode(event telemetry.Event) (kafka.Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(event.IntentID),
		Value: payload,
		Time:  event.CreatedAt,
	}, nil
}

// Emit serializes the event as JSON and writes it to the Kafka topic with a short timeout.
func (p *KafkaProducer) Emit(ctx context.Context, event telemetry.Event) error {
	if p == nil || p.writer == nil {
		return nil
	}
	msg, err := Encode(event)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.writer.WriteMessages(writeCtx, msg)
}

// Close closes the Kafka writer. Safe to call multiple times.
func (p *KafkaProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

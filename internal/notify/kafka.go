package notify

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/segmentio/kafka-go"

	"github.com/noah-isme/backend-merch/internal/events"
)

// MessageWriter is the subset of kafka.Writer used by KafkaSink.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaSink publishes order events keyed by order code so updates for the
// same order land on one partition.
type KafkaSink struct {
	Writer MessageWriter
}

// NewKafkaWriter builds a writer for the order topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
}

// Name implements Sink.
func (k *KafkaSink) Name() string { return "kafka" }

// Send implements Sink.
func (k *KafkaSink) Send(ctx context.Context, ev events.Event) error {
	if k == nil || k.Writer == nil {
		return errors.New("kafka writer not configured")
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	key := orderCodeOf(ev)
	if key == "" {
		key = ev.ID
	}
	return k.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event-id", Value: []byte(ev.ID)},
			{Key: "topic", Value: []byte(ev.Topic)},
		},
	})
}

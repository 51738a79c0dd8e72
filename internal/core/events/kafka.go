package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
}

// KafkaForwarder copies bus events onto a topic, keyed by the partition key so that
// all events of one order stay ordered.
type KafkaForwarder struct {
	writer MessageWriter
	logger *slog.Logger
}

func NewKafkaForwarder(writer MessageWriter, logger *slog.Logger) *KafkaForwarder {
	return &KafkaForwarder{writer: writer, logger: logger}
}

type envelope struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

func (f *KafkaForwarder) Register(bus *EventBus, eventTypes ...string) {
	for _, t := range eventTypes {
		bus.Subscribe(t, f.Handle)
	}
}

func (f *KafkaForwarder) Handle(ctx context.Context, event Event) error {
	value, err := json.Marshal(envelope{
		ID:        event.EventID(),
		Type:      event.EventType(),
		Timestamp: event.OccurredAt(),
		Data:      event.Payload(),
	})
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.EventID(), err)
	}

	msg := kafka.Message{
		Key:   []byte(partitionKey(event)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType())},
		},
	}

	if err := f.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("forward event %s: %w", event.EventID(), err)
	}

	f.logger.Debug("event forwarded", "event_type", event.EventType(), "event_id", event.EventID())
	return nil
}

func (f *KafkaForwarder) Close() error {
	return f.writer.Close()
}

func partitionKey(event Event) string {
	if data, ok := event.Payload().(map[string]interface{}); ok {
		for _, k := range []string{"order_id", "order_ref"} {
			if s, ok := data[k].(string); ok && s != "" {
				return s
			}
		}
	}
	return event.EventID()
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/noah-isme/lab-reservation-api/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaAuditPublisher writes audit events to a Kafka topic keyed by resource.
type KafkaAuditPublisher struct {
	writer messageWriter
	topic  string
}

// NewKafkaAuditPublisher dials nothing up front; the writer connects lazily.
func NewKafkaAuditPublisher(brokers []string, topic string) (*KafkaAuditPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers not configured")
	}
	if topic == "" {
		return nil, errors.New("kafka audit topic not configured")
	}
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      brokers,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	})
	return &KafkaAuditPublisher{writer: writer, topic: topic}, nil
}

func newKafkaAuditPublisherWithWriter(writer messageWriter, topic string) *KafkaAuditPublisher {
	return &KafkaAuditPublisher{writer: writer, topic: topic}
}

// Publish serialises event as JSON.
func (p *KafkaAuditPublisher) Publish(ctx context.Context, event models.AuditEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	key := event.ResourceID
	if key == "" {
		key = event.ActorID
	}
	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.ID)},
			{Key: "event_type", Value: []byte(event.Action)},
			{Key: "outcome", Value: []byte(event.Outcome)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish audit event %s: %w", event.ID, err)
	}
	return nil
}

// Close flushes pending messages.
func (p *KafkaAuditPublisher) Close() error {
	return p.writer.Close()
}

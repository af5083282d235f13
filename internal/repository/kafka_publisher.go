package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"PerpHelm/pkg/kafka"
)

// auditEnvelope wraps every audit record so consumers can route on type
// without decoding the payload.
type auditEnvelope struct {
	ID        string      `json:"id"`
	EventType string      `json:"event_type"`
	Payload   interface{} `json:"payload"`
	EmittedAt time.Time   `json:"emitted_at"`
}

// KafkaEventPublisher writes audit events to the audit topic, keyed by
// event type so one type stays ordered within a partition.
type KafkaEventPublisher struct {
	producer *kafka.Producer
	topic    string
}

func NewKafkaEventPublisher(producer *kafka.Producer, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

func (p *KafkaEventPublisher) PublishAudit(ctx context.Context, eventType string, payload any) error {
	return p.producer.Publish(ctx, p.topic, []byte(eventType), auditEnvelope{
		ID:        uuid.NewString(),
		EventType: eventType,
		Payload:   payload,
		EmittedAt: time.Now(),
	})
}

// PublishMessage satisfies the logger's aggregation sink.
func (p *KafkaEventPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.producer.Publish(ctx, topic, nil, payload)
}

func (p *KafkaEventPublisher) Close() error {
	return p.producer.Close()
}

// NopEventPublisher discards audit events; used when Kafka is disabled.
type NopEventPublisher struct{}

func (NopEventPublisher) PublishAudit(context.Context, string, any) error { return nil }
func (NopEventPublisher) Close() error                                    { return nil }

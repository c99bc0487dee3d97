package producers

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// Header names carried on every ledger event
const (
	HeaderCorrelationID = "correlation-id"
	HeaderEventType     = "event-type"
	HeaderDLQReason     = "dlq-reason"
)

// EventTypeRecordCommitted marks a committed ledger record
const EventTypeRecordCommitted = "ledger.record.committed"

// MessagePublisher publishes already-encoded events to the primary topic
type MessagePublisher interface {
	Publish(ctx context.Context, key string, payload []byte, correlationID string) error
	Close() error
}

// DeadLetterPublisher parks messages nobody can process
type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, key string, originalMessageValue []byte, reason string) error
	Close() error
}

// KafkaWriter wraps kafka.Writer methods for testing
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

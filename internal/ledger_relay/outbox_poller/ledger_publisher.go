package outbox_poller

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/modern-bank-ledger/internal/domain/outbox"
	"github.com/modern-bank-ledger/internal/domain/shared"
	"github.com/modern-bank-ledger/internal/logger"
	"github.com/modern-bank-ledger/internal/platform/messaging/producers"
)

// LedgerPublisher relays one outbox message to the ledger event stream
type LedgerPublisher interface {
	PublishToLedger(ctx context.Context, message *outbox.Message) error
}

// ErrUndecodablePayload marks outbox rows that can never be published
type ErrUndecodablePayload struct {
	OutboxID int64
	Err      error
}

func (e ErrUndecodablePayload) Error() string {
	return fmt.Sprintf("outbox %d payload is not a ledger record: %v", e.OutboxID, e.Err)
}

func (e ErrUndecodablePayload) Unwrap() error {
	return e.Err
}

// KafkaLedgerPublisher publishes outbox payloads keyed by account and marks
// the row PROCESSED once Kafka acknowledged the write.
type KafkaLedgerPublisher struct {
	outboxRepo outbox.Repository
	producer   producers.MessagePublisher
	logger     *slog.Logger
}

func NewLedgerPublisher(
	outboxRepo outbox.Repository,
	producer producers.MessagePublisher,
	logger *slog.Logger,
) LedgerPublisher {
	return &KafkaLedgerPublisher{
		outboxRepo: outboxRepo,
		producer:   producer,
		logger:     logger,
	}
}

// PublishToLedger is at-least-once: a crash between the Kafka write and the
// status update republishes the event, which the audit projection absorbs.
func (p *KafkaLedgerPublisher) PublishToLedger(ctx context.Context, message *outbox.Message) error {
	record, err := message.Record()
	if err != nil {
		p.logger.Error("Failed to decode ledger record from outbox payload",
			"outbox_id", message.ID, "transaction_id", message.TransactionID.String(), "error", err,
		)
		if updateErr := p.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusFailedToPublish); updateErr != nil {
			p.logger.Error("Also failed to mark undecodable outbox message", "outbox_id", message.ID, "error", updateErr)
		}
		return ErrUndecodablePayload{OutboxID: message.ID, Err: err}
	}

	log := logger.WithCorrelationID(p.logger, record.CorrelationID)

	key := strconv.FormatInt(message.AccountID, 10)
	if err := p.producer.Publish(ctx, key, message.Payload, record.CorrelationID); err != nil {
		return fmt.Errorf("failed to publish ledger event %s: %w", message.TransactionID.String(), err)
	}

	if err := p.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusProcessed); err != nil {
		log.Error("Ledger event published but outbox status update failed",
			"outbox_id", message.ID, "transaction_id", message.TransactionID.String(), "error", err,
		)
		return fmt.Errorf("ledger event %s published, but failed to mark outbox %d as PROCESSED: %w",
			message.TransactionID.String(), message.ID, err)
	}

	log.Info("Ledger event published",
		"outbox_id", message.ID,
		"transaction_id", message.TransactionID.String(),
		"kind", string(record.Kind),
	)
	return nil
}

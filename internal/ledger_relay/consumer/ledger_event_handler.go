package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/modern-bank-ledger/internal/domain/ledger"
	"github.com/modern-bank-ledger/internal/logger"
	"github.com/modern-bank-ledger/internal/platform/messaging/consumers"
	"github.com/modern-bank-ledger/internal/platform/messaging/producers"
)

// LedgerEventHandler projects ledger events into the audit store
type LedgerEventHandler struct {
	auditRepo ledger.AuditRepository
	producer  producers.DeadLetterPublisher
	logger    *slog.Logger
}

func NewLedgerEventHandler(
	logger *slog.Logger,
	auditRepo ledger.AuditRepository,
	producer producers.DeadLetterPublisher,
) *LedgerEventHandler {
	return &LedgerEventHandler{
		auditRepo: auditRepo,
		producer:  producer,
		logger:    logger,
	}
}

// HandleMessage stores the event's record. Redelivered events are absorbed
// by the unique transaction_id; events that can never be stored go to the DLQ.
func (h *LedgerEventHandler) HandleMessage(ctx context.Context, msg consumers.Message) error {
	var record ledger.Record
	if err := json.Unmarshal(msg.Value, &record); err != nil {
		return h.deadLetter(ctx, msg, fmt.Sprintf("undecodable ledger event: %v", err))
	}
	if record.TransactionID == uuid.Nil || record.AccountID == 0 || record.Kind == "" {
		return h.deadLetter(ctx, msg, "ledger event is missing transaction_id, account_id or kind")
	}

	log := logger.WithCorrelationID(h.logger, record.CorrelationID).With("transaction_id", record.TransactionID.String())

	err := h.auditRepo.Create(ctx, &record)
	switch {
	case err == nil:
		log.Info("Ledger event projected", "kind", string(record.Kind), "account_id", record.AccountID)
		return nil
	case errors.Is(err, ledger.ErrDuplicateRecord{}):
		return h.checkRedelivery(ctx, log, msg, &record)
	default:
		log.Error("Failed to project ledger event", "error", err)
		return fmt.Errorf("projecting ledger event %s failed: %w", record.TransactionID.String(), err)
	}
}

// checkRedelivery compares a redelivered event with the copy already stored.
// A differing copy means two events share a transaction id and needs an operator.
func (h *LedgerEventHandler) checkRedelivery(ctx context.Context, log *slog.Logger, msg consumers.Message, record *ledger.Record) error {
	stored, err := h.auditRepo.GetByTransactionID(ctx, record.TransactionID)
	if err != nil {
		log.Error("Failed to load projected ledger event", "error", err)
		return fmt.Errorf("loading projected ledger event %s failed: %w", record.TransactionID.String(), err)
	}

	if stored.AccountID != record.AccountID || stored.Kind != record.Kind || stored.Amount != record.Amount {
		return h.deadLetter(ctx, msg, fmt.Sprintf(
			"ledger event conflicts with projected record %s: stored %s %d on account %d",
			record.TransactionID.String(), stored.Kind, stored.Amount, stored.AccountID,
		))
	}

	log.Debug("Ledger event already projected")
	return nil
}

func (h *LedgerEventHandler) deadLetter(ctx context.Context, msg consumers.Message, reason string) error {
	h.logger.Error("Unprocessable ledger event", "key", string(msg.Key), "offset", msg.Offset, "reason", reason)

	if err := h.producer.PublishToDLQ(ctx, string(msg.Key), msg.Value, reason); err != nil {
		h.logger.Error("Failed to publish unprocessable ledger event to DLQ", "key", string(msg.Key), "error", err)
		return fmt.Errorf("%s (dlq: %w)", reason, err)
	}
	return nil
}

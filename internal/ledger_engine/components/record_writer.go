package components

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/modern-bank-ledger/internal/domain/ledger"
	"github.com/modern-bank-ledger/internal/domain/outbox"
	"github.com/modern-bank-ledger/internal/ledger_engine/service"
	"github.com/modern-bank-ledger/internal/logger"
)

type RecordWriterImpl struct {
	ledgerRepo ledger.Repository
	outboxRepo outbox.Repository
	logger     *slog.Logger
}

func NewRecordWriter(ledgerRepo ledger.Repository, outboxRepo outbox.Repository, logger *slog.Logger) service.RecordWriter {
	return &RecordWriterImpl{
		ledgerRepo: ledgerRepo,
		outboxRepo: outboxRepo,
		logger:     logger,
	}
}

// WriteRecords inserts the plan's records, the actor's first, and queues one
// ledger event per record in the same transaction.
func (w *RecordWriterImpl) WriteRecords(ctx context.Context, tx pgx.Tx, plan *service.Plan) ([]*ledger.Record, error) {
	log := logger.WithCorrelationID(w.logger, plan.CorrelationID)

	records, err := buildRecords(plan)
	if err != nil {
		return nil, err
	}

	ledgerRepoTx := w.ledgerRepo.WithTx(tx)
	outboxRepoTx := w.outboxRepo.WithTx(tx)

	for _, record := range records {
		record.CorrelationID = plan.CorrelationID
		if err := ledgerRepoTx.Create(ctx, record); err != nil {
			return nil, err
		}

		message, err := outbox.NewMessage(record)
		if err != nil {
			return nil, fmt.Errorf("failed to create outbox message payload for tx %s: %w", record.TransactionID.String(), err)
		}
		if err := outboxRepoTx.Create(ctx, message); err != nil {
			return nil, fmt.Errorf("failed to create outbox message for tx %s: %w", record.TransactionID.String(), err)
		}

		log.Debug("Ledger record written",
			"transaction_id", record.TransactionID.String(),
			"kind", string(record.Kind),
			"account_id", record.AccountID,
			"outbox_id", message.ID,
		)
	}

	return records, nil
}

func buildRecords(plan *service.Plan) ([]*ledger.Record, error) {
	switch plan.Kind {
	case ledger.KindDeposit:
		return []*ledger.Record{ledger.NewDeposit(plan.Actor.ID, plan.Amount, plan.OccurredAt, plan.ExternalReference)}, nil
	case ledger.KindWithdrawal:
		record := ledger.NewWithdrawal(plan.Actor.ID, plan.Amount, plan.OccurredAt)
		record.ExternalReference = plan.ExternalReference
		return []*ledger.Record{record}, nil
	case ledger.KindSent:
		sent, received := ledger.NewTransfer(plan.Actor.ID, plan.Counterparty.ID, plan.Amount, plan.OccurredAt)
		sent.ExternalReference = plan.ExternalReference
		return []*ledger.Record{sent, received}, nil
	}
	return nil, fmt.Errorf("unsupported operation kind %q", plan.Kind)
}

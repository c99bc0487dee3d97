package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modern-bank-ledger/internal/domain/account"
	"github.com/modern-bank-ledger/internal/domain/ledger"
	"github.com/modern-bank-ledger/internal/domain/shared"
	engine "github.com/modern-bank-ledger/internal/ledger_engine/service"
	"github.com/modern-bank-ledger/internal/logger"
	"github.com/modern-bank-ledger/internal/payments/mpesa"
	"github.com/modern-bank-ledger/internal/platform/messaging/producers"
)

// ReconciliationServiceImpl credits payer accounts for successful provider callbacks.
// Provider retries are absorbed by the engine's external reference check.
type ReconciliationServiceImpl struct {
	accountRepo account.Repository
	engine      engine.Engine
	dlq         producers.DeadLetterPublisher
	logger      *slog.Logger
}

func NewReconciliationService(
	accountRepo account.Repository,
	ledgerEngine engine.Engine,
	dlq producers.DeadLetterPublisher,
	logger *slog.Logger,
) ReconciliationService {
	return &ReconciliationServiceImpl{
		accountRepo: accountRepo,
		engine:      ledgerEngine,
		dlq:         dlq,
		logger:      logger,
	}
}

func (s *ReconciliationServiceImpl) HandleCallback(ctx context.Context, raw []byte, correlationID string) (*CallbackOutcome, error) {
	log := logger.WithCorrelationID(s.logger, correlationID)

	payment, err := mpesa.ParseCallback(raw)
	if err != nil {
		log.Warn("Rejected malformed payment callback", "error", err)
		s.park(ctx, log, correlationID, raw, err.Error())
		return nil, err
	}

	log = log.With("checkout_request_id", payment.CheckoutRequestID)
	if !payment.Succeeded() {
		log.Info("Provider reported failed payment", "result_code", payment.ResultCode, "result_desc", payment.ResultDesc)
		return &CallbackOutcome{Payment: payment}, mpesa.ErrPaymentFailed
	}

	acc, err := s.accountRepo.GetByPhoneNumber(ctx, payment.PhoneNumber)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			log.Warn("Payment from unknown phone number", "receipt", payment.ReceiptNumber)
			return nil, fmt.Errorf("%w: no account for phone %s", shared.ErrUnknownPayee, payment.PhoneNumber)
		}
		return nil, err
	}

	result, err := s.engine.Apply(ctx, &ledger.OperationRequest{
		ActorAccountID:    acc.ID,
		Kind:              string(ledger.KindDeposit),
		Amount:            payment.Amount,
		ExternalReference: payment.ReceiptNumber,
		OccurredAt:        payment.TransactionDate,
		CorrelationID:     correlationID,
	})
	if err != nil {
		log.Error("Failed to record payment", "account_id", acc.ID, "receipt", payment.ReceiptNumber, "error", err)
		return nil, err
	}

	log.Info("Payment reconciled",
		"account_id", acc.ID,
		"receipt", payment.ReceiptNumber,
		"amount", payment.Amount,
		"replayed", result.Replayed,
	)
	return &CallbackOutcome{Payment: payment, Account: acc, Result: result}, nil
}

// park keeps the raw payload for operators. A missing DLQ is not an error.
func (s *ReconciliationServiceImpl) park(ctx context.Context, log *slog.Logger, key string, raw []byte, reason string) {
	if s.dlq == nil {
		return
	}
	err := s.dlq.PublishToDLQ(ctx, key, raw, reason)
	if err != nil && !errors.Is(err, producers.ErrDLQDisabled) {
		log.Error("Failed to park malformed callback", "error", err)
	}
}

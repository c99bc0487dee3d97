package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/modern-bank-ledger/internal/domain/ledger"
	"github.com/modern-bank-ledger/internal/domain/shared"
	"github.com/modern-bank-ledger/internal/logger"
	"github.com/modern-bank-ledger/internal/platform/persistence"
)

// LedgerEngine runs validate, lock, apply and record as one database
// transaction per attempt.
type LedgerEngine struct {
	txRunner       persistence.TxRunner
	validator      OperationValidator
	balanceManager BalanceManager
	recordWriter   RecordWriter
	retry          RetryPolicy
	logger         *slog.Logger
}

func NewLedgerEngine(
	txRunner persistence.TxRunner,
	validator OperationValidator,
	balanceManager BalanceManager,
	recordWriter RecordWriter,
	retry RetryPolicy,
	logger *slog.Logger,
) *LedgerEngine {
	return &LedgerEngine{
		txRunner:       txRunner,
		validator:      validator,
		balanceManager: balanceManager,
		recordWriter:   recordWriter,
		retry:          retry,
		logger:         logger,
	}
}

// Apply validates request and commits its balance changes, records and
// ledger events atomically. A request whose external reference was already
// recorded returns the earlier record with Replayed set and changes nothing.
func (e *LedgerEngine) Apply(ctx context.Context, request *ledger.OperationRequest) (*ledger.OperationResult, error) {
	log := logger.WithCorrelationID(e.logger, request.CorrelationID)

	plan, err := e.validator.Validate(ctx, request)
	if err != nil {
		log.Warn("Ledger operation rejected", "kind", request.Kind, "error", err)
		return nil, err
	}

	if prior, err := e.validator.CheckIdempotency(ctx, plan); err != nil {
		return nil, err
	} else if prior != nil {
		return e.replay(ctx, log, plan, prior)
	}

	result, err := e.applyWithRetry(ctx, log, plan)
	if err != nil {
		var dupRef ledger.ErrDuplicateExternalReference
		if errors.As(err, &dupRef) {
			// A concurrent request with the same reference committed first
			prior, checkErr := e.validator.CheckIdempotency(ctx, plan)
			if checkErr != nil {
				return nil, checkErr
			}
			if prior != nil {
				return e.replay(ctx, log, plan, prior)
			}
		}
		return nil, err
	}

	log.Info("Ledger operation committed",
		"kind", string(result.Kind),
		"actor_id", plan.Actor.ID,
		"amount", plan.Amount,
		"transaction_id", result.ActorRecord().TransactionID.String(),
		"new_balance", result.NewBalance,
	)
	return result, nil
}

func (e *LedgerEngine) applyWithRetry(ctx context.Context, log *slog.Logger, plan *Plan) (*ledger.OperationResult, error) {
	for attempt := 0; ; attempt++ {
		result, err := e.applyOnce(ctx, plan)
		if err == nil {
			return result, nil
		}
		if !isContention(err) {
			return nil, err
		}
		if attempt >= e.retry.MaxRetries {
			log.Error("Ledger operation gave up after contention", "attempts", attempt+1, "error", err)
			if errors.Is(err, shared.ErrContention) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", shared.ErrContention, err)
		}

		log.Warn("Ledger operation contended, retrying", "attempt", attempt+1, "error", err)
		if waitErr := e.retry.Wait(ctx, attempt); waitErr != nil {
			return nil, waitErr
		}
	}
}

func (e *LedgerEngine) applyOnce(ctx context.Context, plan *Plan) (*ledger.OperationResult, error) {
	var (
		balance int64
		records []*ledger.Record
	)

	err := e.txRunner.ExecuteTx(ctx, func(tx pgx.Tx) error {
		var err error
		if balance, err = e.balanceManager.LockAndApply(ctx, tx, plan); err != nil {
			return err
		}
		records, err = e.recordWriter.WriteRecords(ctx, tx, plan)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &ledger.OperationResult{
		Kind:       plan.Kind,
		Records:    records,
		NewBalance: balance,
	}, nil
}

func (e *LedgerEngine) replay(ctx context.Context, log *slog.Logger, plan *Plan, prior *ledger.Record) (*ledger.OperationResult, error) {
	balance, err := e.balanceManager.CurrentBalance(ctx, plan.Actor.ID)
	if err != nil {
		return nil, err
	}

	log.Info("Ledger operation replayed",
		"external_reference", *plan.ExternalReference,
		"transaction_id", prior.TransactionID.String(),
	)
	return &ledger.OperationResult{
		Kind:       prior.Kind,
		Records:    []*ledger.Record{prior},
		NewBalance: balance,
		Replayed:   true,
	}, nil
}

func isContention(err error) bool {
	return shared.IsRetryable(err) || persistence.IsContention(err)
}

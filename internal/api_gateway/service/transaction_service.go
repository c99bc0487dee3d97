package service

import (
	"context"
	"log/slog"

	"github.com/modern-bank-ledger/internal/domain/ledger"
	"github.com/modern-bank-ledger/internal/ledger_engine/service"
	"github.com/modern-bank-ledger/internal/logger"
)

// TransactionServiceImpl implements the TransactionService interface
type TransactionServiceImpl struct {
	engine service.Engine
	logger *slog.Logger
}

// NewTransactionService creates a new transaction service
func NewTransactionService(logger *slog.Logger, engine service.Engine) TransactionService {
	return &TransactionServiceImpl{
		engine: engine,
		logger: logger,
	}
}

// Submit hands the request to the ledger engine
func (s *TransactionServiceImpl) Submit(ctx context.Context, request *ledger.OperationRequest) (*ledger.OperationResult, error) {
	log := logger.WithCorrelationID(s.logger, request.CorrelationID)

	result, err := s.engine.Apply(ctx, request)
	if err != nil {
		log.Info("Transaction rejected",
			"username", request.ActorUsername,
			"transaction_type", request.Kind,
			"amount", request.Amount,
			"error", err,
		)
		return nil, err
	}

	log.Info("Transaction applied",
		"username", request.ActorUsername,
		"transaction_type", string(result.Kind),
		"amount", request.Amount,
		"new_balance", result.NewBalance,
	)
	return result, nil
}

package components

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/modern-bank-ledger/internal/config"
	"github.com/modern-bank-ledger/internal/domain/account"
	"github.com/modern-bank-ledger/internal/domain/ledger"
	"github.com/modern-bank-ledger/internal/domain/outbox"
	"github.com/modern-bank-ledger/internal/ledger_engine/service"
	"github.com/modern-bank-ledger/internal/platform/persistence"
)

// maxRetryDelay caps a single contention backoff
const maxRetryDelay = time.Second

// CreateEngine wires the ledger engine and wraps it in a bounded worker pool.
func CreateEngine(
	txRunner persistence.TxRunner,
	accountRepo account.Repository,
	ledgerRepo ledger.Repository,
	outboxRepo outbox.Repository,
	logger *slog.Logger,
	cfg *config.Config,
) (*service.WorkerPoolEngine, error) {
	engineLogger := logger.With("component", "ledger_engine")

	baseEngine := service.NewLedgerEngine(
		txRunner,
		NewOperationValidator(accountRepo, ledgerRepo, engineLogger),
		NewBalanceManager(accountRepo, cfg.Ledger.LockTimeout, engineLogger),
		NewRecordWriter(ledgerRepo, outboxRepo, engineLogger),
		service.RetryPolicy{
			MaxRetries: cfg.Ledger.MaxRetries,
			BaseDelay:  cfg.Ledger.RetryBaseDelay,
			MaxDelay:   maxRetryDelay,
		},
		engineLogger,
	)

	workerPoolEngine, err := service.NewWorkerPoolEngine(
		baseEngine,
		service.WorkerPoolConfig{
			Size:      cfg.WorkerPool.Size,
			MaxQueued: cfg.WorkerPool.MaxQueued,
		},
		logger.With("component", "worker_pool"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger worker pool: %w", err)
	}

	logger.Info("Created worker pool ledger engine", "pool_size", cfg.WorkerPool.Size, "max_queued", cfg.WorkerPool.MaxQueued)
	return workerPoolEngine, nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/modern-bank-ledger/internal/api_gateway"
	"github.com/modern-bank-ledger/internal/api_gateway/service"
	"github.com/modern-bank-ledger/internal/config"
	"github.com/modern-bank-ledger/internal/data/postgres"
	"github.com/modern-bank-ledger/internal/ledger_engine/components"
	engine "github.com/modern-bank-ledger/internal/ledger_engine/service"
	"github.com/modern-bank-ledger/internal/logger"
	"github.com/modern-bank-ledger/internal/payments/mpesa"
	"github.com/modern-bank-ledger/internal/platform/messaging/producers"
	"github.com/modern-bank-ledger/internal/platform/persistence"
	"github.com/modern-bank-ledger/internal/platform/security"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	cfg, err := config.LoadConfig("api_gateway")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)
	log.Info("Configuration loaded", "source", configSource(cfg))

	// migrations run as part of pool creation
	postgresDB, err := persistence.NewPostgresDB(ctx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	// malformed provider callbacks are parked here; the gateway serves without it
	dlqProducer, err := producers.NewDLQProducer(ctx, log, &cfg.Kafka)
	if err != nil {
		log.Warn("DLQ producer unavailable, malformed callbacks will only be logged", "error", err)
		dlqProducer = nil
	}

	services, ledgerEngine, err := buildServices(cfg, log, postgresDB, dlqProducer)
	if err != nil {
		log.Error("Failed to build services", "error", err)
		os.Exit(1)
	}
	server := api_gateway.NewServer(log, cfg, services)

	serveErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			serveErr <- err
		}
	}()

	var exitErr error
	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case err := <-serveErr:
		exitErr = fmt.Errorf("http server: %w", err)
		log.Error("Server error occurred", "error", exitErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// stop accepting requests before the pool and database go away
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
		exitErr = errors.Join(exitErr, err)
	}

	log.Info("Shutting down ledger worker pool", "running_workers", ledgerEngine.Running())
	ledgerEngine.Shutdown()

	if err := dlqProducer.Close(); err != nil {
		log.Error("Error closing DLQ Kafka producer", "error", err)
	}
	postgresDB.Close()

	if exitErr != nil {
		os.Exit(1)
	}
	log.Info("Server shutdown completed")
}

func buildServices(
	cfg *config.Config,
	log *slog.Logger,
	db *persistence.PostgresDB,
	dlq *producers.DLQProducer,
) (api_gateway.Services, *engine.WorkerPoolEngine, error) {
	accountRepo := postgres.NewAccountRepository(log, db)
	ledgerRepo := postgres.NewTransactionRepository(log, db)
	outboxRepo := postgres.NewOutboxRepository(log, db)

	ledgerEngine, err := components.CreateEngine(db, accountRepo, ledgerRepo, outboxRepo, log, cfg)
	if err != nil {
		return api_gateway.Services{}, nil, err
	}

	return api_gateway.Services{
		Accounts: service.NewAccountService(
			accountRepo,
			security.NewBcryptHasher(cfg.Ledger.BcryptCost),
			service.RandomAccountNumber,
			cfg.Ledger.AccountNumberMaxAttempts,
			log,
		),
		Transactions:   service.NewTransactionService(log, ledgerEngine),
		Queries:        service.NewQueryService(accountRepo, ledgerRepo),
		Reconciliation: service.NewReconciliationService(accountRepo, ledgerEngine, dlq, log),
		Payments:       service.NewPaymentService(mpesa.NewClient(cfg.Mpesa, log), log),
	}, ledgerEngine, nil
}

func configSource(cfg *config.Config) string {
	if cfg.Source == "" {
		return "environment"
	}
	return cfg.Source
}

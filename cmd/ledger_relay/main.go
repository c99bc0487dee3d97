package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/modern-bank-ledger/internal/config"
	"github.com/modern-bank-ledger/internal/data/mongo"
	"github.com/modern-bank-ledger/internal/data/postgres"
	"github.com/modern-bank-ledger/internal/ledger_relay/consumer"
	"github.com/modern-bank-ledger/internal/ledger_relay/outbox_poller"
	"github.com/modern-bank-ledger/internal/logger"
	"github.com/modern-bank-ledger/internal/platform/messaging/consumers"
	"github.com/modern-bank-ledger/internal/platform/messaging/producers"
	"github.com/modern-bank-ledger/internal/platform/persistence"
)

// relay moves committed ledger records from the Postgres outbox to Kafka and
// from Kafka into the MongoDB audit ledger
type relay struct {
	log *slog.Logger

	postgres *persistence.PostgresDB
	mongo    *persistence.MongoDB
	events   *producers.LedgerEventProducer
	dlq      *producers.DLQProducer
	consumer *consumers.KafkaConsumer
	poller   *outbox_poller.Poller
	handler  *consumer.LedgerEventHandler
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig("ledger_relay")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)
	log.Info("Starting Ledger Relay", "config_source", cfg.Source)

	r, err := newRelay(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to initialize ledger relay", "error", err)
		os.Exit(1)
	}

	runErr := r.run(ctx, cancel, cfg)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()
	r.close(shutdownCtx)

	if runErr != nil {
		log.Error("Ledger Relay stopped with errors", "error", runErr)
		os.Exit(1)
	}
	log.Info("Ledger Relay stopped")
}

func newRelay(ctx context.Context, cfg *config.Config, log *slog.Logger) (*relay, error) {
	r := &relay{log: log}
	var err error

	if r.postgres, err = persistence.NewPostgresDB(ctx, log, &cfg.Postgres); err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	if r.mongo, err = persistence.NewMongoDB(ctx, log, &cfg.MongoDB); err != nil {
		r.close(ctx)
		return nil, fmt.Errorf("mongodb: %w", err)
	}
	if err = r.mongo.EnsureLedgerIndexes(ctx); err != nil {
		r.close(ctx)
		return nil, fmt.Errorf("audit ledger indexes: %w", err)
	}
	if r.events, err = producers.NewLedgerEventProducer(ctx, log, &cfg.Kafka); err != nil {
		r.close(ctx)
		return nil, fmt.Errorf("ledger event producer: %w", err)
	}
	if r.dlq, err = producers.NewDLQProducer(ctx, log, &cfg.Kafka); err != nil {
		r.close(ctx)
		return nil, fmt.Errorf("dlq producer: %w", err)
	}

	outboxRepo := postgres.NewOutboxRepository(log, r.postgres)
	r.poller = outbox_poller.NewPoller(&cfg.Outbox, outboxRepo,
		outbox_poller.NewLedgerPublisher(outboxRepo, r.events, log), log)

	r.handler = consumer.NewLedgerEventHandler(log, mongo.NewAuditRepository(log, r.mongo.Database()), r.dlq)
	r.consumer = consumers.NewKafkaConsumer(log, &cfg.Kafka)
	return r, nil
}

// run blocks until a signal arrives or the consumer stops, then waits for the
// poller and consumer to drain
func (r *relay) run(ctx context.Context, cancel context.CancelFunc, cfg *config.Config) error {
	r.log.Info("Starting ledger event consumer",
		"topic", cfg.Kafka.LedgerEventsTopic,
		"group", cfg.Kafka.ConsumerGroup,
	)
	if err := r.consumer.Subscribe(ctx, r.handler.HandleMessage); err != nil {
		return fmt.Errorf("kafka consumer: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.poller.Start(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var err error
	select {
	case sig := <-quit:
		r.log.Info("Shutdown signal received", "signal", sig.String())
	case <-r.consumer.Done():
		err = errors.New("ledger event consumer stopped unexpectedly")
	}
	cancel()

	drained := make(chan struct{})
	go func() {
		wg.Wait()
		<-r.consumer.Done()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(cfg.Server.ShutdownTimeout):
		r.log.Warn("Shutdown timeout reached before workers drained")
	}
	return err
}

func (r *relay) close(ctx context.Context) {
	if r.consumer != nil {
		if err := r.consumer.Close(); err != nil {
			r.log.Error("Error closing Kafka consumer", "error", err)
		}
	}
	if r.events != nil {
		if err := r.events.Close(); err != nil {
			r.log.Error("Error closing ledger event producer", "error", err)
		}
	}
	if err := r.dlq.Close(); err != nil {
		r.log.Error("Error closing DLQ producer", "error", err)
	}
	if r.mongo != nil {
		if err := r.mongo.Close(ctx); err != nil {
			r.log.Error("Error closing MongoDB connection", "error", err)
		}
	}
	if r.postgres != nil {
		r.postgres.Close()
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modern-bank-ledger/internal/domain/ledger"
	"github.com/modern-bank-ledger/internal/domain/shared"
	"github.com/panjf2000/ants/v2"
)

// WorkerPoolEngine bounds the number of ledger operations in flight.
// Callers block until their operation has run on a pool worker. Once
// MaxQueued callers are already waiting for a worker, Apply fails fast
// with a contention error instead of queueing.
type WorkerPoolEngine struct {
	base   Engine
	pool   *ants.Pool
	logger *slog.Logger
}

type WorkerPoolConfig struct {
	Size      int
	MaxQueued int
}

type applyOutcome struct {
	result *ledger.OperationResult
	err    error
}

func NewWorkerPoolEngine(base Engine, config WorkerPoolConfig, logger *slog.Logger) (*WorkerPoolEngine, error) {
	pool, err := ants.NewPool(config.Size, ants.WithMaxBlockingTasks(config.MaxQueued))
	if err != nil {
		return nil, err
	}

	return &WorkerPoolEngine{
		base:   base,
		pool:   pool,
		logger: logger,
	}, nil
}

// Apply submits the operation to the pool and waits for its outcome
func (s *WorkerPoolEngine) Apply(ctx context.Context, request *ledger.OperationRequest) (*ledger.OperationResult, error) {
	outcome := make(chan applyOutcome, 1)
	requestCopy := *request

	err := s.pool.Submit(func() {
		defer func() {
			if p := recover(); p != nil {
				s.logger.Error("Ledger operation panicked", "panic", p, "correlation_id", requestCopy.CorrelationID)
				outcome <- applyOutcome{err: fmt.Errorf("ledger operation panicked: %v", p)}
			}
		}()
		result, err := s.base.Apply(ctx, &requestCopy)
		outcome <- applyOutcome{result: result, err: err}
	})
	if err != nil {
		if errors.Is(err, ants.ErrPoolOverload) {
			s.logger.Warn("Worker pool saturated, rejecting ledger operation",
				"correlation_id", request.CorrelationID,
				"waiting", s.pool.Waiting(),
			)
			return nil, fmt.Errorf("%w: ledger worker pool saturated", shared.ErrContention)
		}
		s.logger.Error("Failed to submit ledger operation to worker pool",
			"correlation_id", request.CorrelationID,
			"error", err,
		)
		return nil, err
	}

	o := <-outcome
	return o.result, o.err
}

// Shutdown gracefully shuts down the worker pool.
func (s *WorkerPoolEngine) Shutdown() {
	s.logger.Info("Shutting down worker pool", "running_workers", s.pool.Running())
	s.pool.Release()
}

// Running returns the number of running workers in the pool.
func (s *WorkerPoolEngine) Running() int {
	return s.pool.Running()
}

// Waiting returns the number of callers queued for a free worker.
func (s *WorkerPoolEngine) Waiting() int {
	return s.pool.Waiting()
}

// Capacity returns the capacity of the worker pool.
func (s *WorkerPoolEngine) Capacity() int {
	return s.pool.Cap()
}

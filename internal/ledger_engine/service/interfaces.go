package service

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/modern-bank-ledger/internal/domain/account"
	"github.com/modern-bank-ledger/internal/domain/ledger"
)

// Engine applies ledger operations. It is the only creator of ledger records.
type Engine interface {
	Apply(ctx context.Context, request *ledger.OperationRequest) (*ledger.OperationResult, error)
}

// Plan is a validated operation, ready to run inside a database transaction
type Plan struct {
	Kind              ledger.Kind
	Amount            int64
	Actor             *account.Account
	Counterparty      *account.Account // sent only
	ExternalReference *string
	OccurredAt        time.Time
	CorrelationID     string
}

// AccountIDs lists every account the plan touches
func (p *Plan) AccountIDs() []int64 {
	if p.Counterparty != nil {
		return []int64{p.Actor.ID, p.Counterparty.ID}
	}
	return []int64{p.Actor.ID}
}

// OperationValidator resolves and validates a request before any lock is taken
type OperationValidator interface {
	Validate(ctx context.Context, request *ledger.OperationRequest) (*Plan, error)

	// CheckIdempotency returns the record already written for the plan's
	// external reference, or nil when the operation is new
	CheckIdempotency(ctx context.Context, plan *Plan) (*ledger.Record, error)
}

// BalanceManager locks the plan's accounts and moves the money
type BalanceManager interface {
	LockAndApply(ctx context.Context, tx pgx.Tx, plan *Plan) (actorBalance int64, err error)
	CurrentBalance(ctx context.Context, accountID int64) (int64, error)
}

// RecordWriter writes the ledger records of a plan and their outbox events
type RecordWriter interface {
	WriteRecords(ctx context.Context, tx pgx.Tx, plan *Plan) ([]*ledger.Record, error)
}

package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/modern-bank-ledger/internal/domain/shared"
)

// Repository persists ledger records alongside balances. Records are append-only.
type Repository interface {
	Create(ctx context.Context, record *Record) error

	// GetByExternalReference returns nil, nil when no record carries ref
	GetByExternalReference(ctx context.Context, ref string) (*Record, error)

	// ListForAccount returns records owned by, sent to or sent from the account, newest first
	ListForAccount(ctx context.Context, accountID int64) ([]*Record, error)

	// TotalsByKind sums record magnitudes per kind for records the account owns
	TotalsByKind(ctx context.Context, accountID int64) (map[Kind]int64, error)
	WithTx(tx pgx.Tx) Repository
}

// AuditRepository stores the asynchronous audit copy of committed records
type AuditRepository interface {
	Create(ctx context.Context, record *Record) error

	// GetByTransactionID returns ErrRecordNotFound when the record was not stored yet
	GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*Record, error)
}

// ErrRecordNotFound indicates missing ledger record
type ErrRecordNotFound struct {
	TransactionID uuid.UUID
}

func (e ErrRecordNotFound) Error() string {
	return "ledger record not found: " + e.TransactionID.String()
}

// Is implements the errors.Is interface for ErrRecordNotFound
func (e ErrRecordNotFound) Is(target error) bool {
	t, ok := target.(ErrRecordNotFound)
	if !ok {
		return false
	}
	// If the target TransactionID is empty, consider it a match for any ErrRecordNotFound
	if t.TransactionID == uuid.Nil {
		return true
	}
	return e.TransactionID == t.TransactionID
}

func (e ErrRecordNotFound) Unwrap() error {
	return shared.ErrNotFound
}

// ErrDuplicateRecord indicates transaction id uniqueness violation
type ErrDuplicateRecord struct {
	TransactionID uuid.UUID
}

func (e ErrDuplicateRecord) Error() string {
	return "duplicate ledger record: " + e.TransactionID.String()
}

// Is implements the errors.Is interface for ErrDuplicateRecord
func (e ErrDuplicateRecord) Is(target error) bool {
	t, ok := target.(ErrDuplicateRecord)
	if !ok {
		return false
	}
	if t.TransactionID == uuid.Nil {
		return true
	}
	return e.TransactionID == t.TransactionID
}

// ErrDuplicateExternalReference indicates the external event was already recorded
type ErrDuplicateExternalReference struct {
	Reference string
}

func (e ErrDuplicateExternalReference) Error() string {
	return "external reference already recorded: " + e.Reference
}

// ErrCounterpartyNotFound indicates the transfer recipient could not be resolved
type ErrCounterpartyNotFound struct {
	Identifier string
}

func (e ErrCounterpartyNotFound) Error() string {
	return "recipient account not found: " + e.Identifier
}

func (e ErrCounterpartyNotFound) Unwrap() error {
	return shared.ErrNotFound
}

// ErrSelfTransfer rejects transfers whose recipient is the sender
var ErrSelfTransfer = shared.NewValidationError("identifier", "Cannot send money to your own account")

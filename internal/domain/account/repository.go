package account

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/modern-bank-ledger/internal/domain/shared"
)

// Repository defines account persistence operations. It is the only writer of balances.
type Repository interface {
	Create(ctx context.Context, account *Account) error
	GetByID(ctx context.Context, id int64) (*Account, error)
	GetByUsername(ctx context.Context, username string) (*Account, error)

	// GetByIdentifier resolves an account number or a username.
	// An account number match wins over a username match.
	GetByIdentifier(ctx context.Context, identifier string) (*Account, error)

	// GetByPhoneNumber resolves the contact channel used by payment reconciliation
	GetByPhoneNumber(ctx context.Context, phone string) (*Account, error)

	// FindIdentityConflict returns an existing account sharing username, email or phone, or nil
	FindIdentityConflict(ctx context.Context, username, email string, phone *string) (*Account, error)
	ExistsByAccountNumber(ctx context.Context, accountNumber string) (bool, error)

	// AdjustBalance applies delta atomically and returns the new balance.
	// A debit that would make the balance negative fails with ErrInsufficientFunds.
	AdjustBalance(ctx context.Context, id int64, delta int64) (int64, error)

	// LockForUpdate acquires row locks in ascending id order, waiting at most wait
	LockForUpdate(ctx context.Context, wait time.Duration, ids ...int64) ([]*Account, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrAccountNotFound indicates missing account
type ErrAccountNotFound struct {
	Identifier string
}

func (e ErrAccountNotFound) Error() string {
	return "account not found: " + e.Identifier
}

func (e ErrAccountNotFound) Unwrap() error {
	return shared.ErrNotFound
}

// NotFoundByID builds ErrAccountNotFound for a numeric id
func NotFoundByID(id int64) ErrAccountNotFound {
	return ErrAccountNotFound{Identifier: strconv.FormatInt(id, 10)}
}

// ErrDuplicateIdentity indicates a username, email or phone uniqueness violation
type ErrDuplicateIdentity struct {
	Field string
}

func (e ErrDuplicateIdentity) Error() string {
	return "account with this " + e.Field + " already exists"
}

func (e ErrDuplicateIdentity) Unwrap() error {
	return shared.ErrConflict
}

// ErrDuplicateAccountNumber indicates the generated account number is taken
type ErrDuplicateAccountNumber struct {
	AccountNumber string
}

func (e ErrDuplicateAccountNumber) Error() string {
	return "account number already allocated: " + e.AccountNumber
}

// ErrAccountLocked indicates the row locks could not be acquired in time
type ErrAccountLocked struct {
	AccountIDs []int64
}

func (e ErrAccountLocked) Error() string {
	ids := make([]string, len(e.AccountIDs))
	for i, id := range e.AccountIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}
	return "timed out locking accounts: " + strings.Join(ids, ",")
}

func (e ErrAccountLocked) Unwrap() error {
	return shared.ErrContention
}

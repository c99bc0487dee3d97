package service

import (
	"context"

	"github.com/modern-bank-ledger/internal/domain/account"
	"github.com/modern-bank-ledger/internal/domain/ledger"
	"github.com/modern-bank-ledger/internal/payments/mpesa"
)

// RegisterInput is the identity and secret supplied at registration
type RegisterInput struct {
	Username    string
	Email       string
	PhoneNumber *string
	Password    string
}

// AccountService defines the interface for account operations
type AccountService interface {
	// Register creates a zero-balance account with a freshly allocated account number.
	// Returns ErrDuplicateIdentity when the username, email or phone is taken.
	Register(ctx context.Context, input RegisterInput) (*account.Account, error)

	// Login verifies the password of the named user
	Login(ctx context.Context, username, password string) (*account.Account, error)

	// GetAccount resolves an account number or a username
	GetAccount(ctx context.Context, identifier string) (*account.Account, error)
}

// TransactionService submits user initiated ledger operations
type TransactionService interface {
	Submit(ctx context.Context, request *ledger.OperationRequest) (*ledger.OperationResult, error)
}

// QueryService answers read-only questions about an account's ledger
type QueryService interface {
	Summary(ctx context.Context, identifier string) (*ledger.Summary, error)

	// History returns records owned by, sent to or sent from the account, newest first
	History(ctx context.Context, identifier string) ([]*ledger.Record, error)
}

// ReconciliationService turns provider payment callbacks into deposits
type ReconciliationService interface {
	HandleCallback(ctx context.Context, raw []byte, correlationID string) (*CallbackOutcome, error)
}

// PaymentService asks the provider to collect a payment from a phone
type PaymentService interface {
	InitiateSTKPush(ctx context.Context, phoneNumber string, amount int64, correlationID string) (*mpesa.STKPushResponse, error)
}

// CallbackOutcome describes a reconciled payment
type CallbackOutcome struct {
	Payment *mpesa.Payment
	Account *account.Account
	Result  *ledger.OperationResult
}

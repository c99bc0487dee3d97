package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/modern-bank-ledger/internal/domain/shared"
)

// Kind names a ledger record type
type Kind string

const (
	KindDeposit    Kind = "deposit"
	KindWithdrawal Kind = "withdrawal"
	KindSent       Kind = "sent"
	KindReceived   Kind = "received"
)

// ErrInvalidOperationKind rejects anything but deposit, withdrawal and sent
var ErrInvalidOperationKind = shared.NewValidationError("transaction_type", "Invalid transaction type")

// ParseOperationKind accepts the kinds a caller may request. "received" is only
// ever produced by the engine as the second half of a transfer.
func ParseOperationKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindDeposit, KindWithdrawal, KindSent:
		return k, nil
	default:
		return "", ErrInvalidOperationKind
	}
}

// IsDebit reports whether records of this kind carry a negative amount
func (k Kind) IsDebit() bool {
	return k == KindWithdrawal || k == KindSent
}

// Record is an immutable ledger line owned by one account
type Record struct {
	ID                int64      `json:"id"`
	TransactionID     uuid.UUID  `json:"transaction_id"`
	AccountID         int64      `json:"account_id"`
	RecipientID       *int64     `json:"recipient_id,omitempty"`
	SenderID          *int64     `json:"sender_id,omitempty"`
	TransferID        *uuid.UUID `json:"transfer_id,omitempty"`
	Kind              Kind       `json:"kind"`
	Amount            int64      `json:"amount"` // Signed, cents/minor units
	Timestamp         time.Time  `json:"timestamp"`
	ExternalReference *string    `json:"external_reference,omitempty"`
	CorrelationID     string     `json:"correlation_id,omitempty"`
}

// CounterpartyID returns the other account of a transfer record, or nil
func (r *Record) CounterpartyID() *int64 {
	if r.RecipientID != nil {
		return r.RecipientID
	}
	return r.SenderID
}

// Magnitude is the unsigned amount
func (r *Record) Magnitude() int64 {
	if r.Amount < 0 {
		return -r.Amount
	}
	return r.Amount
}

// NewDeposit builds the credit record of a deposit
func NewDeposit(accountID, amount int64, at time.Time, externalRef *string) *Record {
	return &Record{
		TransactionID:     uuid.New(),
		AccountID:         accountID,
		Kind:              KindDeposit,
		Amount:            amount,
		Timestamp:         at.UTC(),
		ExternalReference: externalRef,
	}
}

// NewWithdrawal builds the debit record of a withdrawal
func NewWithdrawal(accountID, amount int64, at time.Time) *Record {
	return &Record{
		TransactionID: uuid.New(),
		AccountID:     accountID,
		Kind:          KindWithdrawal,
		Amount:        -amount,
		Timestamp:     at.UTC(),
	}
}

// NewTransfer builds the linked sent/received pair of one transfer
func NewTransfer(senderID, recipientID, amount int64, at time.Time) (sent *Record, received *Record) {
	transferID := uuid.New()
	ts := at.UTC()
	sent = &Record{
		TransactionID: uuid.New(),
		AccountID:     senderID,
		RecipientID:   &recipientID,
		TransferID:    &transferID,
		Kind:          KindSent,
		Amount:        -amount,
		Timestamp:     ts,
	}
	received = &Record{
		TransactionID: uuid.New(),
		AccountID:     recipientID,
		SenderID:      &senderID,
		TransferID:    &transferID,
		Kind:          KindReceived,
		Amount:        amount,
		Timestamp:     ts,
	}
	return sent, received
}

// Summary aggregates an account's own records
type Summary struct {
	TotalDebited   int64
	TotalCredited  int64
	CurrentBalance int64
}

// NewSummary folds per-kind magnitudes into debit and credit totals
func NewSummary(totals map[Kind]int64, balance int64) Summary {
	return Summary{
		TotalDebited:   totals[KindWithdrawal] + totals[KindSent],
		TotalCredited:  totals[KindDeposit] + totals[KindReceived],
		CurrentBalance: balance,
	}
}

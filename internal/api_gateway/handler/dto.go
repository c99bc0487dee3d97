package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/modern-bank-ledger/internal/domain/account"
	"github.com/modern-bank-ledger/internal/domain/ledger"
	"github.com/modern-bank-ledger/internal/platform/money"
)

// TimestampLayout renders record timestamps in UTC
const TimestampLayout = "2006-01-02 15:04:05"

// Money is an amount in minor units that serializes as a JSON number of major units
type Money int64

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(money.String(int64(m))), nil
}

// RegisterRequest represents a request to create a new account
type RegisterRequest struct {
	Username    string  `json:"username"`
	Email       string  `json:"email"`
	PhoneNumber *string `json:"phone_number"`
	Password    string  `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AccountResponse represents an account in API responses
type AccountResponse struct {
	ID            int64   `json:"id"`
	Username      string  `json:"username"`
	Email         string  `json:"email"`
	PhoneNumber   *string `json:"phone_number"`
	Balance       Money   `json:"balance"`
	AccountNumber string  `json:"account_number"`
}

// CreateTransactionRequest accepts amounts as a JSON number or string of major units
type CreateTransactionRequest struct {
	Username        string          `json:"username"`
	TransactionType string          `json:"transaction_type"`
	Amount          decimal.Decimal `json:"amount"`
	Identifier      string          `json:"identifier"`
}

type TransactionResultResponse struct {
	Message    string `json:"message"`
	NewBalance Money  `json:"new_balance"`
}

// TransactionResponse represents a ledger record in API responses
type TransactionResponse struct {
	ID              int64  `json:"id"`
	UserID          int64  `json:"user_id"`
	TransactionType string `json:"transaction_type"`
	Amount          Money  `json:"amount"`
	Timestamp       string `json:"timestamp"`
	RecipientID     *int64 `json:"recipient_id"`
	SenderID        *int64 `json:"sender_id"`
	TransactionID   string `json:"transaction_id"`
}

// TransactionListResponse represents a list of transactions in API responses
type TransactionListResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
}

type SummaryTotals struct {
	Sent     Money `json:"sent"`
	Received Money `json:"received"`
}

type SummaryResponse struct {
	Success        bool          `json:"success"`
	Data           SummaryTotals `json:"data"`
	CurrentBalance Money         `json:"current_balance"`
}

type STKPushRequest struct {
	PhoneNumber string          `json:"phone_number"`
	Amount      decimal.Decimal `json:"amount"`
}

type STKPushResponse struct {
	Message           string `json:"message"`
	CheckoutRequestID string `json:"checkout_request_id,omitempty"`
}

type CallbackResponse struct {
	Message     string               `json:"message"`
	Amount      Money                `json:"amount"`
	Phone       string               `json:"phone"`
	Transaction *TransactionResponse `json:"transaction"`
	Replayed    bool                 `json:"replayed,omitempty"`
}

func mapAccountToResponse(acc *account.Account) AccountResponse {
	return AccountResponse{
		ID:            acc.ID,
		Username:      acc.Username,
		Email:         acc.Email,
		PhoneNumber:   acc.PhoneNumber,
		Balance:       Money(acc.Balance),
		AccountNumber: acc.AccountNumber,
	}
}

func mapRecordToResponse(record *ledger.Record) TransactionResponse {
	return TransactionResponse{
		ID:              record.ID,
		UserID:          record.AccountID,
		TransactionType: string(record.Kind),
		Amount:          Money(record.Amount),
		Timestamp:       formatTimestamp(record.Timestamp),
		RecipientID:     record.RecipientID,
		SenderID:        record.SenderID,
		TransactionID:   record.TransactionID.String(),
	}
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

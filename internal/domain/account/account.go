package account

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modern-bank-ledger/internal/domain/shared"
)

// AccountNumberLength is the fixed width of generated account numbers
const AccountNumberLength = 10

// Common errors
var (
	ErrInsufficientFunds    = fmt.Errorf("%w for this operation", shared.ErrInsufficientFunds)
	ErrInvalidAmount        = shared.NewValidationError("amount", "Amount must be a positive number")
	ErrMissingFields        = shared.NewValidationError("profile", "Missing required fields")
	ErrInvalidAccountNumber = errors.New("account number must be 10 digits")
	ErrInvalidCredentials   = fmt.Errorf("%w: invalid credentials", shared.ErrUnauthorized)
)

// Account represents a registered user and the balance they hold
type Account struct {
	ID            int64     `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	PhoneNumber   *string   `json:"phone_number"`
	PasswordHash  string    `json:"-"`
	Balance       int64     `json:"balance"` // Stored in cents/minor units
	AccountNumber string    `json:"account_number"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Profile is the identity supplied at registration
type Profile struct {
	Username     string
	Email        string
	PhoneNumber  *string
	PasswordHash string
}

// Normalize trims whitespace and drops an empty phone number
func (p Profile) Normalize() Profile {
	p.Username = strings.TrimSpace(p.Username)
	p.Email = strings.TrimSpace(p.Email)
	if p.PhoneNumber != nil {
		phone := strings.TrimSpace(*p.PhoneNumber)
		if phone == "" {
			p.PhoneNumber = nil
		} else {
			p.PhoneNumber = &phone
		}
	}
	return p
}

// NewAccount creates a zero-balance account for profile
func NewAccount(profile Profile, accountNumber string) (*Account, error) {
	profile = profile.Normalize()
	if profile.Username == "" || profile.Email == "" || profile.PasswordHash == "" {
		return nil, ErrMissingFields
	}
	if !ValidAccountNumber(accountNumber) {
		return nil, ErrInvalidAccountNumber
	}

	now := time.Now().UTC()
	return &Account{
		Username:      profile.Username,
		Email:         profile.Email,
		PhoneNumber:   profile.PhoneNumber,
		PasswordHash:  profile.PasswordHash,
		Balance:       0,
		AccountNumber: accountNumber,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// ValidAccountNumber reports whether s is a fixed-width numeric account number
func ValidAccountNumber(s string) bool {
	if len(s) != AccountNumberLength {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Credit adds amount to the balance. Credits are never rejected for balance reasons.
func (a *Account) Credit(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	a.Balance += amount
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// Debit subtracts amount from the balance
func (a *Account) Debit(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	if !a.CanDebit(amount) {
		return ErrInsufficientFunds
	}

	a.Balance -= amount
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// CanDebit checks if the account has sufficient funds for a debit
func (a *Account) CanDebit(amount int64) bool {
	return a.Balance >= amount
}

// Package postgres provides PostgreSQL implementations of the domain repositories.
// Balances, ledger records and outbox messages share one database so the ledger
// engine can change all three in a single transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/modern-bank-ledger/internal/domain/account"
	"github.com/modern-bank-ledger/internal/platform/persistence"
)

const accountColumns = `id, username, email, phone_number, password_hash, balance, account_number, created_at, updated_at`

const (
	insertAccountSQL = `
		INSERT INTO users (username, email, phone_number, password_hash, balance, account_number, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	selectAccountByIDSQL       = `SELECT ` + accountColumns + ` FROM users WHERE id = $1`
	selectAccountByUsernameSQL = `SELECT ` + accountColumns + ` FROM users WHERE username = $1`
	selectAccountByPhoneSQL    = `SELECT ` + accountColumns + ` FROM users WHERE phone_number = $1`
	selectAccountByIdentifier  = `
		SELECT ` + accountColumns + `
		FROM users
		WHERE account_number = $1 OR username = $1
		ORDER BY (account_number = $1) DESC
		LIMIT 1`
	selectIdentityConflictSQL = `
		SELECT ` + accountColumns + `
		FROM users
		WHERE username = $1 OR email = $2 OR ($3::text IS NOT NULL AND phone_number = $3)
		LIMIT 1`
	existsAccountNumberSQL = `SELECT EXISTS (SELECT 1 FROM users WHERE account_number = $1)`
	adjustBalanceSQL       = `
		UPDATE users
		SET balance = balance + $1, updated_at = NOW()
		WHERE id = $2 AND balance + $1 >= 0
		RETURNING balance`
	setLockTimeoutSQL = `SELECT set_config('lock_timeout', $1, true)`
	lockAccountsSQL   = `SELECT ` + accountColumns + ` FROM users WHERE id = ANY($1) ORDER BY id FOR UPDATE`
)

// unique constraint name -> identity field reported to callers
var identityConstraints = map[string]string{
	"users_username_key":     "username",
	"users_email_key":        "email",
	"users_phone_number_key": "phone_number",
}

// AccountRepository implements the account.Repository interface for PostgreSQL
type AccountRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewAccountRepository creates a new PostgreSQL account repository.
// It expects db.Pool() to satisfy persistence.Querier.
func NewAccountRepository(logger *slog.Logger, db *persistence.PostgresDB) account.Repository {
	return &AccountRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx returns a repository bound to tx. Row locks taken through it are
// held until tx ends.
func (r *AccountRepository) WithTx(tx pgx.Tx) account.Repository {
	return &AccountRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create inserts acc and sets its ID. Identity collisions surface as
// ErrDuplicateIdentity and account number collisions as ErrDuplicateAccountNumber.
func (r *AccountRepository) Create(ctx context.Context, acc *account.Account) error {
	err := r.querier.QueryRow(ctx, insertAccountSQL,
		acc.Username,
		acc.Email,
		acc.PhoneNumber,
		acc.PasswordHash,
		acc.Balance,
		acc.AccountNumber,
		acc.CreatedAt,
		acc.UpdatedAt,
	).Scan(&acc.ID)
	if err == nil {
		return nil
	}

	if constraint := persistence.UniqueConstraint(err); constraint != "" {
		if constraint == "users_account_number_key" {
			return account.ErrDuplicateAccountNumber{AccountNumber: acc.AccountNumber}
		}
		field, ok := identityConstraints[constraint]
		if !ok {
			field = "identity"
		}
		return account.ErrDuplicateIdentity{Field: field}
	}

	r.logger.Error("Failed to create account", "username", acc.Username, "error", err)
	return fmt.Errorf("failed to create account: %w", err)
}

// GetByID retrieves an account by its ID
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*account.Account, error) {
	acc, err := scanAccount(r.querier.QueryRow(ctx, selectAccountByIDSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, account.NotFoundByID(id)
		}
		r.logger.Error("Failed to get account", "id", id, "error", err)
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return acc, nil
}

func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*account.Account, error) {
	return r.getOne(ctx, "username", username, selectAccountByUsernameSQL, username)
}

func (r *AccountRepository) GetByIdentifier(ctx context.Context, identifier string) (*account.Account, error) {
	return r.getOne(ctx, "identifier", identifier, selectAccountByIdentifier, identifier)
}

func (r *AccountRepository) GetByPhoneNumber(ctx context.Context, phone string) (*account.Account, error) {
	return r.getOne(ctx, "phone_number", phone, selectAccountByPhoneSQL, phone)
}

func (r *AccountRepository) getOne(ctx context.Context, by, value, query string, args ...any) (*account.Account, error) {
	acc, err := scanAccount(r.querier.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, account.ErrAccountNotFound{Identifier: value}
		}
		r.logger.Error("Failed to get account", "by", by, "value", value, "error", err)
		return nil, fmt.Errorf("failed to get account by %s: %w", by, err)
	}
	return acc, nil
}

// FindIdentityConflict returns nil, nil when no account shares the identity
func (r *AccountRepository) FindIdentityConflict(ctx context.Context, username, email string, phone *string) (*account.Account, error) {
	acc, err := scanAccount(r.querier.QueryRow(ctx, selectIdentityConflictSQL, username, email, phone))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to check identity conflict", "username", username, "error", err)
		return nil, fmt.Errorf("failed to check identity conflict: %w", err)
	}
	return acc, nil
}

func (r *AccountRepository) ExistsByAccountNumber(ctx context.Context, accountNumber string) (bool, error) {
	var exists bool
	if err := r.querier.QueryRow(ctx, existsAccountNumberSQL, accountNumber).Scan(&exists); err != nil {
		r.logger.Error("Failed to check account number", "account_number", accountNumber, "error", err)
		return false, fmt.Errorf("failed to check account number: %w", err)
	}
	return exists, nil
}

// AdjustBalance adds delta to the balance in one statement. The WHERE clause
// refuses to cross zero, so no row comes back for an over-debit.
func (r *AccountRepository) AdjustBalance(ctx context.Context, id int64, delta int64) (int64, error) {
	var balance int64
	err := r.querier.QueryRow(ctx, adjustBalanceSQL, delta, id).Scan(&balance)
	if err == nil {
		return balance, nil
	}

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if delta < 0 {
			return 0, account.ErrInsufficientFunds
		}
		return 0, account.NotFoundByID(id)
	case persistence.IsCheckViolation(err):
		return 0, account.ErrInsufficientFunds
	case persistence.IsContention(err):
		r.logger.Warn("Contention adjusting balance", "id", id, "error", err)
		return 0, account.ErrAccountLocked{AccountIDs: []int64{id}}
	}

	r.logger.Error("Failed to adjust balance", "id", id, "delta", delta, "error", err)
	return 0, fmt.Errorf("failed to adjust balance: %w", err)
}

// LockForUpdate locks the given accounts in ascending id order. Every caller
// acquiring locks in the same order is what keeps concurrent transfers
// between the same pair from deadlocking.
func (r *AccountRepository) LockForUpdate(ctx context.Context, wait time.Duration, ids ...int64) ([]*account.Account, error) {
	ordered := SortedUniqueIDs(ids)
	if len(ordered) == 0 {
		return nil, nil
	}

	if wait > 0 {
		timeout := strconv.FormatInt(wait.Milliseconds(), 10) + "ms"
		if _, err := r.querier.Exec(ctx, setLockTimeoutSQL, timeout); err != nil {
			r.logger.Error("Failed to set lock timeout", "timeout", timeout, "error", err)
			return nil, fmt.Errorf("failed to set lock timeout: %w", err)
		}
	}

	rows, err := r.querier.Query(ctx, lockAccountsSQL, ordered)
	if err != nil {
		return nil, r.lockError(ordered, err)
	}
	defer rows.Close()

	accounts := make([]*account.Account, 0, len(ordered))
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, r.lockError(ordered, err)
		}
		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, r.lockError(ordered, err)
	}

	if len(accounts) != len(ordered) {
		found := make(map[int64]bool, len(accounts))
		for _, acc := range accounts {
			found[acc.ID] = true
		}
		for _, id := range ordered {
			if !found[id] {
				return nil, account.NotFoundByID(id)
			}
		}
	}

	return accounts, nil
}

func (r *AccountRepository) lockError(ids []int64, err error) error {
	if persistence.IsContention(err) {
		r.logger.Warn("Timed out waiting for account locks", "ids", ids, "error", err)
		return account.ErrAccountLocked{AccountIDs: ids}
	}
	r.logger.Error("Failed to lock accounts", "ids", ids, "error", err)
	return fmt.Errorf("failed to lock accounts: %w", err)
}

// SortedUniqueIDs returns ids ascending without duplicates
func SortedUniqueIDs(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func scanAccount(row pgx.Row) (*account.Account, error) {
	var acc account.Account
	err := row.Scan(
		&acc.ID,
		&acc.Username,
		&acc.Email,
		&acc.PhoneNumber,
		&acc.PasswordHash,
		&acc.Balance,
		&acc.AccountNumber,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

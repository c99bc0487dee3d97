package postgres

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/modern-bank-ledger/internal/domain/account"
	"github.com/modern-bank-ledger/internal/domain/shared"
	"github.com/modern-bank-ledger/internal/platform/persistence"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

var accountRowColumns = []string{"id", "username", "email", "phone_number", "password_hash", "balance", "account_number", "created_at", "updated_at"}

const wantAccountColumns = "id, username, email, phone_number, password_hash, balance, account_number, created_at, updated_at"

const (
	wantInsertAccount      = "INSERT INTO users (username, email, phone_number, password_hash, balance, account_number, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id"
	wantSelectAccountByID  = "SELECT " + wantAccountColumns + " FROM users WHERE id = $1"
	wantSelectByUsername   = "SELECT " + wantAccountColumns + " FROM users WHERE username = $1"
	wantSelectByPhone      = "SELECT " + wantAccountColumns + " FROM users WHERE phone_number = $1"
	wantSelectByIdentifier = "SELECT " + wantAccountColumns + " FROM users WHERE account_number = $1 OR username = $1 ORDER BY (account_number = $1) DESC LIMIT 1"
	wantIdentityConflict   = "SELECT " + wantAccountColumns + " FROM users WHERE username = $1 OR email = $2 OR ($3::text IS NOT NULL AND phone_number = $3) LIMIT 1"
	wantExistsNumber       = "SELECT EXISTS (SELECT 1 FROM users WHERE account_number = $1)"
	wantAdjustBalance      = "UPDATE users SET balance = balance + $1, updated_at = NOW() WHERE id = $2 AND balance + $1 >= 0 RETURNING balance"
	wantSetLockTimeout     = "SELECT set_config('lock_timeout', $1, true)"
	wantLockAccounts       = "SELECT " + wantAccountColumns + " FROM users WHERE id = ANY($1) ORDER BY id FOR UPDATE"
)

// exactSQL matches the whole statement once runs of whitespace are collapsed,
// so extra or missing clauses fail the expectation.
func exactSQL(statement string) string {
	return "^" + regexp.QuoteMeta(strings.Join(strings.Fields(statement), " ")) + "$"
}

func newAccountRepo(t *testing.T) (*AccountRepository, pgxmock.PgxPoolIface) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &AccountRepository{querier: mock, logger: newTestLogger()}, mock
}

func accountRow(rows *pgxmock.Rows, acc *account.Account) *pgxmock.Rows {
	return rows.AddRow(acc.ID, acc.Username, acc.Email, acc.PhoneNumber, acc.PasswordHash, acc.Balance, acc.AccountNumber, acc.CreatedAt, acc.UpdatedAt)
}

func sampleAccount(id int64, username, number string, balance int64) *account.Account {
	now := time.Now().UTC().Truncate(time.Second)
	phone := "2547000000" + number[len(number)-2:]
	return &account.Account{
		ID:            id,
		Username:      username,
		Email:         username + "@example.com",
		PhoneNumber:   &phone,
		PasswordHash:  "$2a$10$hash",
		Balance:       balance,
		AccountNumber: number,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestAccountRepository_Create(t *testing.T) {
	ctx := context.Background()
	acc := sampleAccount(0, "alice", "1234567890", 0)
	query := exactSQL(wantInsertAccount)

	t.Run("success", func(t *testing.T) {
		repo, mock := newAccountRepo(t)
		mock.ExpectQuery(query).
			WithArgs(acc.Username, acc.Email, acc.PhoneNumber, acc.PasswordHash, acc.Balance, acc.AccountNumber, acc.CreatedAt, acc.UpdatedAt).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))

		err := repo.Create(ctx, acc)
		require.NoError(t, err)
		assert.Equal(t, int64(42), acc.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate username", func(t *testing.T) {
		repo, mock := newAccountRepo(t)
		mock.ExpectQuery(query).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(&pgconn.PgError{Code: persistence.CodeUniqueViolation, ConstraintName: "users_username_key"})

		err := repo.Create(ctx, acc)
		var dup account.ErrDuplicateIdentity
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, "username", dup.Field)
		assert.ErrorIs(t, err, shared.ErrConflict)
	})

	t.Run("duplicate account number", func(t *testing.T) {
		repo, mock := newAccountRepo(t)
		mock.ExpectQuery(query).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(&pgconn.PgError{Code: persistence.CodeUniqueViolation, ConstraintName: "users_account_number_key"})

		err := repo.Create(ctx, acc)
		var dup account.ErrDuplicateAccountNumber
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, acc.AccountNumber, dup.AccountNumber)
	})

	t.Run("failure", func(t *testing.T) {
		repo, mock := newAccountRepo(t)
		expectedErr := errors.New("db error")
		mock.ExpectQuery(query).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(expectedErr)

		err := repo.Create(ctx, acc)
		assert.Contains(t, err.Error(), "failed to create account")
		assert.ErrorIs(t, err, expectedErr)
	})
}

func TestAccountRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	expected := sampleAccount(7, "alice", "1234567890", 5000)
	query := exactSQL(wantSelectAccountByID)

	t.Run("success", func(t *testing.T) {
		repo, mock := newAccountRepo(t)
		mock.ExpectQuery(query).WithArgs(int64(7)).WillReturnRows(accountRow(pgxmock.NewRows(accountRowColumns), expected))

		acc, err := repo.GetByID(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, expected, acc)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock := newAccountRepo(t)
		mock.ExpectQuery(query).WithArgs(int64(7)).WillReturnError(pgx.ErrNoRows)

		acc, err := repo.GetByID(ctx, 7)
		assert.Nil(t, acc)
		var notFound account.ErrAccountNotFound
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "7", notFound.Identifier)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock := newAccountRepo(t)
		dbErr := errors.New("some db error")
		mock.ExpectQuery(query).WithArgs(int64(7)).WillReturnError(dbErr)

		acc, err := repo.GetByID(ctx, 7)
		assert.Nil(t, acc)
		assert.Contains(t, err.Error(), "failed to get account")
		assert.ErrorIs(t, err, dbErr)
	})
}

func TestAccountRepository_GetByIdentifier(t *testing.T) {
	ctx := context.Background()
	query := exactSQL(wantSelectByIdentifier)

	t.Run("account number wins over username", func(t *testing.T) {
		repo, mock := newAccountRepo(t)
		// The database returns the account-number match first because of the ORDER BY
		byNumber := sampleAccount(2, "bob", "5555555555", 0)
		mock.ExpectQuery(query).WithArgs("5555555555").
			WillReturnRows(accountRow(pgxmock.NewRows(accountRowColumns), byNumber))

		acc, err := repo.GetByIdentifier(ctx, "5555555555")
		require.NoError(t, err)
		assert.Equal(t, int64(2), acc.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock := newAccountRepo(t)
		mock.ExpectQuery(query).WithArgs("ghost").WillReturnError(pgx.ErrNoRows)

		_, err := repo.GetByIdentifier(ctx, "ghost")
		var notFound account.ErrAccountNotFound
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "ghost", notFound.Identifier)
	})
}

func TestAccountRepository_GetByUsernameAndPhone(t *testing.T) {
	ctx := context.Background()
	expected := sampleAccount(3, "carol", "1111111111", 0)

	repo, mock := newAccountRepo(t)
	mock.ExpectQuery(exactSQL(wantSelectByUsername)).WithArgs("carol").
		WillReturnRows(accountRow(pgxmock.NewRows(accountRowColumns), expected))
	mock.ExpectQuery(exactSQL(wantSelectByPhone)).WithArgs(*expected.PhoneNumber).
		WillReturnRows(accountRow(pgxmock.NewRows(accountRowColumns), expected))
	mock.ExpectQuery(exactSQL(wantSelectByPhone)).WithArgs("254799999999").
		WillReturnError(pgx.ErrNoRows)

	acc, err := repo.GetByUsername(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, "carol", acc.Username)

	acc, err = repo.GetByPhoneNumber(ctx, *expected.PhoneNumber)
	require.NoError(t, err)
	assert.Equal(t, int64(3), acc.ID)

	_, err = repo.GetByPhoneNumber(ctx, "254799999999")
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_FindIdentityConflict(t *testing.T) {
	ctx := context.Background()
	query := exactSQL(wantIdentityConflict)
	phone := "254711111111"

	t.Run("no conflict", func(t *testing.T) {
		repo, mock := newAccountRepo(t)
		mock.ExpectQuery(query).WithArgs("dave", "dave@example.com", &phone).WillReturnError(pgx.ErrNoRows)

		acc, err := repo.FindIdentityConflict(ctx, "dave", "dave@example.com", &phone)
		assert.NoError(t, err)
		assert.Nil(t, acc)
	})

	t.Run("conflict", func(t *testing.T) {
		repo, mock := newAccountRepo(t)
		existing := sampleAccount(9, "dave", "2222222222", 0)
		mock.ExpectQuery(query).WithArgs("dave", "other@example.com", (*string)(nil)).
			WillReturnRows(accountRow(pgxmock.NewRows(accountRowColumns), existing))

		acc, err := repo.FindIdentityConflict(ctx, "dave", "other@example.com", nil)
		require.NoError(t, err)
		assert.Equal(t, int64(9), acc.ID)
	})
}

func TestAccountRepository_ExistsByAccountNumber(t *testing.T) {
	repo, mock := newAccountRepo(t)
	mock.ExpectQuery(exactSQL(wantExistsNumber)).WithArgs("1234567890").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsByAccountNumber(context.Background(), "1234567890")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_AdjustBalance(t *testing.T) {
	ctx := context.Background()
	query := exactSQL(wantAdjustBalance)

	t.Run("credit", func(t *testing.T) {
		repo, mock := newAccountRepo(t)
		mock.ExpectQuery(query).WithArgs(int64(2500), int64(1)).
			WillReturnRows(pgxmock.NewRows([]string{"balance"}).AddRow(int64(7500)))

		balance, err := repo.AdjustBalance(ctx, 1, 2500)
		require.NoError(t, err)
		assert.Equal(t, int64(7500), balance)
	})

	t.Run("debit beyond balance", func(t *testing.T) {
		repo, mock := newAccountRepo(t)
		mock.ExpectQuery(query).WithArgs(int64(-9999), int64(1)).WillReturnError(pgx.ErrNoRows)

		_, err := repo.AdjustBalance(ctx, 1, -9999)
		assert.ErrorIs(t, err, shared.ErrInsufficientFunds)
	})

	t.Run("credit to missing account", func(t *testing.T) {
		repo, mock := newAccountRepo(t)
		mock.ExpectQuery(query).WithArgs(int64(100), int64(404)).WillReturnError(pgx.ErrNoRows)

		_, err := repo.AdjustBalance(ctx, 404, 100)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("check constraint", func(t *testing.T) {
		repo, mock := newAccountRepo(t)
		mock.ExpectQuery(query).WithArgs(int64(-1), int64(1)).
			WillReturnError(&pgconn.PgError{Code: persistence.CodeCheckViolation})

		_, err := repo.AdjustBalance(ctx, 1, -1)
		assert.ErrorIs(t, err, shared.ErrInsufficientFunds)
	})
}

func TestAccountRepository_LockForUpdate(t *testing.T) {
	ctx := context.Background()
	lockQuery := exactSQL(wantLockAccounts)
	timeoutQuery := exactSQL(wantSetLockTimeout)

	t.Run("locks in ascending id order", func(t *testing.T) {
		repo, mock := newAccountRepo(t)
		a := sampleAccount(3, "alice", "1000000003", 100)
		b := sampleAccount(8, "bob", "1000000008", 0)

		mock.ExpectExec(timeoutQuery).WithArgs("2000ms").WillReturnResult(pgxmock.NewResult("SELECT", 1))
		mock.ExpectQuery(lockQuery).WithArgs([]int64{3, 8}).
			WillReturnRows(accountRow(accountRow(pgxmock.NewRows(accountRowColumns), a), b))

		// Requested in descending order, locked ascending
		accounts, err := repo.LockForUpdate(ctx, 2*time.Second, 8, 3, 8)
		require.NoError(t, err)
		require.Len(t, accounts, 2)
		assert.Equal(t, int64(3), accounts[0].ID)
		assert.Equal(t, int64(8), accounts[1].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lock timeout is contention", func(t *testing.T) {
		repo, mock := newAccountRepo(t)
		mock.ExpectExec(timeoutQuery).WithArgs("500ms").WillReturnResult(pgxmock.NewResult("SELECT", 1))
		mock.ExpectQuery(lockQuery).WithArgs([]int64{1, 2}).
			WillReturnError(&pgconn.PgError{Code: persistence.CodeLockNotAvailable})

		_, err := repo.LockForUpdate(ctx, 500*time.Millisecond, 2, 1)
		var locked account.ErrAccountLocked
		require.ErrorAs(t, err, &locked)
		assert.Equal(t, []int64{1, 2}, locked.AccountIDs)
		assert.ErrorIs(t, err, shared.ErrContention)
	})

	t.Run("missing account", func(t *testing.T) {
		repo, mock := newAccountRepo(t)
		a := sampleAccount(1, "alice", "1000000001", 100)
		mock.ExpectQuery(lockQuery).WithArgs([]int64{1, 5}).
			WillReturnRows(accountRow(pgxmock.NewRows(accountRowColumns), a))

		_, err := repo.LockForUpdate(ctx, 0, 1, 5)
		var notFound account.ErrAccountNotFound
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "5", notFound.Identifier)
	})

	t.Run("no ids", func(t *testing.T) {
		repo, mock := newAccountRepo(t)
		accounts, err := repo.LockForUpdate(ctx, time.Second)
		assert.NoError(t, err)
		assert.Nil(t, accounts)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSortedUniqueIDs(t *testing.T) {
	assert.Equal(t, []int64{1, 2, 9}, SortedUniqueIDs([]int64{9, 1, 2, 9, 1}))
	assert.Empty(t, SortedUniqueIDs(nil))
}

func TestAccountRepository_WithTx(t *testing.T) {
	repo := &AccountRepository{querier: nil, logger: newTestLogger()}

	mockTx := pgx.Tx(nil)
	txRepo := repo.WithTx(mockTx)

	accRepo, ok := txRepo.(*AccountRepository)
	require.True(t, ok)
	assert.Equal(t, repo.logger, accRepo.logger)
	assert.Nil(t, accRepo.querier)
}

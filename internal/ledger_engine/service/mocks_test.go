package service

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/modern-bank-ledger/internal/domain/ledger"
	"github.com/stretchr/testify/mock"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type MockOperationValidator struct {
	mock.Mock
}

func (m *MockOperationValidator) Validate(ctx context.Context, request *ledger.OperationRequest) (*Plan, error) {
	args := m.Called(ctx, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Plan), args.Error(1)
}

func (m *MockOperationValidator) CheckIdempotency(ctx context.Context, plan *Plan) (*ledger.Record, error) {
	args := m.Called(ctx, plan)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Record), args.Error(1)
}

type MockBalanceManager struct {
	mock.Mock
}

func (m *MockBalanceManager) LockAndApply(ctx context.Context, tx pgx.Tx, plan *Plan) (int64, error) {
	args := m.Called(ctx, tx, plan)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBalanceManager) CurrentBalance(ctx context.Context, accountID int64) (int64, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(int64), args.Error(1)
}

type MockRecordWriter struct {
	mock.Mock
}

func (m *MockRecordWriter) WriteRecords(ctx context.Context, tx pgx.Tx, plan *Plan) ([]*ledger.Record, error) {
	args := m.Called(ctx, tx, plan)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ledger.Record), args.Error(1)
}

type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) Apply(ctx context.Context, request *ledger.OperationRequest) (*ledger.OperationResult, error) {
	args := m.Called(ctx, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.OperationResult), args.Error(1)
}

// stubTxRunner hands a MockTx to fn and reports how often it was asked to run
type stubTxRunner struct {
	mu    sync.Mutex
	tx    *MockTx
	calls int
}

func (r *stubTxRunner) ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return fn(r.tx)
}

func (r *stubTxRunner) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// MockTx implements the pgx.Tx interface for testing
type MockTx struct {
	mock.Mock
}

func (m *MockTx) Begin(ctx context.Context) (pgx.Tx, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(pgx.Tx), args.Error(1)
}

func (m *MockTx) Commit(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTx) Rollback(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}

func (m *MockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	return nil
}

func (m *MockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return &pgconn.StatementDescription{}, nil
}

func (m *MockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (m *MockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}

func (m *MockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

func (m *MockTx) LargeObjects() pgx.LargeObjects {
	return pgx.LargeObjects{}
}

func (m *MockTx) Conn() *pgx.Conn {
	return nil
}

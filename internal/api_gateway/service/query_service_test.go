package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/modern-bank-ledger/internal/domain/account"
	"github.com/modern-bank-ledger/internal/domain/ledger"
	"github.com/modern-bank-ledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestQueryServiceImpl_Summary(t *testing.T) {
	ctx := context.Background()
	alice := &account.Account{ID: 1, Username: "alice", Balance: 7000}

	t.Run("folds kinds into debit and credit totals", func(t *testing.T) {
		accounts := new(MockAccountRepository)
		records := new(MockLedgerRepository)
		svc := NewQueryService(accounts, records)

		accounts.On("GetByIdentifier", ctx, "alice").Return(alice, nil).Once()
		records.On("TotalsByKind", ctx, int64(1)).Return(map[ledger.Kind]int64{
			ledger.KindDeposit:    10000,
			ledger.KindReceived:   500,
			ledger.KindWithdrawal: 1000,
			ledger.KindSent:       2500,
		}, nil).Once()

		summary, err := svc.Summary(ctx, "alice")

		require.NoError(t, err)
		assert.Equal(t, int64(3500), summary.TotalDebited)
		assert.Equal(t, int64(10500), summary.TotalCredited)
		assert.Equal(t, int64(7000), summary.CurrentBalance)
	})

	t.Run("unknown account", func(t *testing.T) {
		accounts := new(MockAccountRepository)
		records := new(MockLedgerRepository)
		svc := NewQueryService(accounts, records)
		accounts.On("GetByIdentifier", ctx, "ghost").Return(nil, account.ErrAccountNotFound{Identifier: "ghost"}).Once()

		_, err := svc.Summary(ctx, "ghost")

		assert.ErrorIs(t, err, shared.ErrNotFound)
		records.AssertNotCalled(t, "TotalsByKind", mock.Anything, mock.Anything)
	})

	t.Run("store failure is wrapped", func(t *testing.T) {
		accounts := new(MockAccountRepository)
		records := new(MockLedgerRepository)
		svc := NewQueryService(accounts, records)
		accounts.On("GetByIdentifier", ctx, "alice").Return(alice, nil).Once()
		records.On("TotalsByKind", ctx, int64(1)).Return(nil, errors.New("db down")).Once()

		_, err := svc.Summary(ctx, "alice")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "db down")
	})
}

func TestQueryServiceImpl_History(t *testing.T) {
	ctx := context.Background()
	alice := &account.Account{ID: 1, Username: "alice"}

	t.Run("returns records as listed", func(t *testing.T) {
		accounts := new(MockAccountRepository)
		records := new(MockLedgerRepository)
		svc := NewQueryService(accounts, records)

		sent, received := ledger.NewTransfer(2, 1, 300, time.Now())
		deposit := ledger.NewDeposit(1, 1000, time.Now().Add(-time.Hour), nil)
		accounts.On("GetByIdentifier", ctx, "alice").Return(alice, nil).Once()
		records.On("ListForAccount", ctx, int64(1)).Return([]*ledger.Record{sent, received, deposit}, nil).Once()

		history, err := svc.History(ctx, "alice")

		require.NoError(t, err)
		assert.Len(t, history, 3)
		assert.Equal(t, ledger.KindSent, history[0].Kind)
	})

	t.Run("empty history is an empty slice", func(t *testing.T) {
		accounts := new(MockAccountRepository)
		records := new(MockLedgerRepository)
		svc := NewQueryService(accounts, records)
		accounts.On("GetByIdentifier", ctx, "alice").Return(alice, nil).Once()
		records.On("ListForAccount", ctx, int64(1)).Return(nil, nil).Once()

		history, err := svc.History(ctx, "alice")

		require.NoError(t, err)
		assert.NotNil(t, history)
		assert.Empty(t, history)
	})
}

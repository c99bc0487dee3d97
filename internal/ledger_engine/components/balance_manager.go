package components

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/modern-bank-ledger/internal/domain/account"
	"github.com/modern-bank-ledger/internal/domain/ledger"
	"github.com/modern-bank-ledger/internal/domain/shared"
	"github.com/modern-bank-ledger/internal/ledger_engine/service"
	"github.com/modern-bank-ledger/internal/logger"
)

type BalanceManagerImpl struct {
	accountRepo account.Repository
	lockTimeout time.Duration
	logger      *slog.Logger
}

func NewBalanceManager(accountRepo account.Repository, lockTimeout time.Duration, logger *slog.Logger) service.BalanceManager {
	return &BalanceManagerImpl{
		accountRepo: accountRepo,
		lockTimeout: lockTimeout,
		logger:      logger,
	}
}

// LockAndApply locks every account of the plan in ascending id order, checks
// funds against the locked actor row and applies the deltas. It returns the
// actor's new balance.
func (m *BalanceManagerImpl) LockAndApply(ctx context.Context, tx pgx.Tx, plan *service.Plan) (int64, error) {
	log := logger.WithCorrelationID(m.logger, plan.CorrelationID)
	repo := m.accountRepo.WithTx(tx)

	locked, err := repo.LockForUpdate(ctx, m.lockTimeout, plan.AccountIDs()...)
	if err != nil {
		return 0, err
	}

	byID := make(map[int64]*account.Account, len(locked))
	for _, acc := range locked {
		byID[acc.ID] = acc
	}
	actor, ok := byID[plan.Actor.ID]
	if !ok {
		return 0, account.NotFoundByID(plan.Actor.ID)
	}
	log.Debug("Accounts locked", "ids", plan.AccountIDs(), "actor_balance", actor.Balance)

	// Deltas are applied to the locked rows first so funds are checked
	// against what the database holds now, then persisted.
	deltas, err := applyToLocked(plan, actor, byID)
	if err != nil {
		if errors.Is(err, shared.ErrInsufficientFunds) {
			log.Warn("Insufficient funds", "account_id", actor.ID, "balance", actor.Balance, "amount", plan.Amount)
		}
		return 0, err
	}

	var balance int64
	for _, d := range deltas {
		newBalance, err := repo.AdjustBalance(ctx, d.accountID, d.amount)
		if err != nil {
			return 0, err
		}
		if d.accountID == actor.ID {
			balance = newBalance
		}
	}
	return balance, nil
}

type balanceDelta struct {
	accountID int64
	amount    int64
}

// applyToLocked debits and credits the locked accounts in memory and returns
// the signed deltas to persist, actor first.
func applyToLocked(plan *service.Plan, actor *account.Account, locked map[int64]*account.Account) ([]balanceDelta, error) {
	switch plan.Kind {
	case ledger.KindDeposit:
		if err := actor.Credit(plan.Amount); err != nil {
			return nil, err
		}
		return []balanceDelta{{actor.ID, plan.Amount}}, nil

	case ledger.KindWithdrawal:
		if err := actor.Debit(plan.Amount); err != nil {
			return nil, err
		}
		return []balanceDelta{{actor.ID, -plan.Amount}}, nil

	case ledger.KindSent:
		if plan.Counterparty == nil {
			return nil, fmt.Errorf("transfer from account %d has no recipient", actor.ID)
		}
		recipient, ok := locked[plan.Counterparty.ID]
		if !ok {
			return nil, account.NotFoundByID(plan.Counterparty.ID)
		}
		if err := actor.Debit(plan.Amount); err != nil {
			return nil, err
		}
		if err := recipient.Credit(plan.Amount); err != nil {
			return nil, err
		}
		return []balanceDelta{{actor.ID, -plan.Amount}, {recipient.ID, plan.Amount}}, nil
	}

	return nil, fmt.Errorf("unsupported operation kind %q", plan.Kind)
}

// CurrentBalance reads the committed balance of an account
func (m *BalanceManagerImpl) CurrentBalance(ctx context.Context, accountID int64) (int64, error) {
	acc, err := m.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

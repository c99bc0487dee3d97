package service

import (
	"context"
	"fmt"

	"github.com/modern-bank-ledger/internal/domain/account"
	"github.com/modern-bank-ledger/internal/domain/ledger"
)

// QueryServiceImpl reads from the primary ledger, never the audit copy
type QueryServiceImpl struct {
	accountRepo account.Repository
	ledgerRepo  ledger.Repository
}

func NewQueryService(accountRepo account.Repository, ledgerRepo ledger.Repository) QueryService {
	return &QueryServiceImpl{
		accountRepo: accountRepo,
		ledgerRepo:  ledgerRepo,
	}
}

func (s *QueryServiceImpl) Summary(ctx context.Context, identifier string) (*ledger.Summary, error) {
	acc, err := s.accountRepo.GetByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}

	totals, err := s.ledgerRepo.TotalsByKind(ctx, acc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to total records for account %d: %w", acc.ID, err)
	}

	summary := ledger.NewSummary(totals, acc.Balance)
	return &summary, nil
}

func (s *QueryServiceImpl) History(ctx context.Context, identifier string) ([]*ledger.Record, error) {
	acc, err := s.accountRepo.GetByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}

	records, err := s.ledgerRepo.ListForAccount(ctx, acc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list records for account %d: %w", acc.ID, err)
	}
	if records == nil {
		records = []*ledger.Record{}
	}
	return records, nil
}

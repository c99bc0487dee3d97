package components

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modern-bank-ledger/internal/domain/account"
	"github.com/modern-bank-ledger/internal/domain/ledger"
	"github.com/modern-bank-ledger/internal/domain/shared"
	"github.com/modern-bank-ledger/internal/ledger_engine/service"
	"github.com/modern-bank-ledger/internal/logger"
)

type OperationValidatorImpl struct {
	accountRepo account.Repository
	ledgerRepo  ledger.Repository
	logger      *slog.Logger
}

func NewOperationValidator(accountRepo account.Repository, ledgerRepo ledger.Repository, logger *slog.Logger) service.OperationValidator {
	return &OperationValidatorImpl{
		accountRepo: accountRepo,
		ledgerRepo:  ledgerRepo,
		logger:      logger,
	}
}

// Validate checks, in order, amount, actor, kind and counterparty. The first
// failure is returned. Funds are checked later against the locked row.
func (v *OperationValidatorImpl) Validate(ctx context.Context, request *ledger.OperationRequest) (*service.Plan, error) {
	log := logger.WithCorrelationID(v.logger, request.CorrelationID)

	if request.Amount <= 0 {
		return nil, account.ErrInvalidAmount
	}

	actor, err := v.resolveActor(ctx, request)
	if err != nil {
		return nil, err
	}

	kind, err := ledger.ParseOperationKind(request.Kind)
	if err != nil {
		return nil, err
	}

	plan := &service.Plan{
		Kind:          kind,
		Amount:        request.Amount,
		Actor:         actor,
		OccurredAt:    request.OccurredAt,
		CorrelationID: request.CorrelationID,
	}
	if plan.OccurredAt.IsZero() {
		plan.OccurredAt = time.Now().UTC()
	}
	if request.HasExternalReference() {
		ref := request.ExternalReference
		plan.ExternalReference = &ref
	}

	if kind == ledger.KindSent {
		counterparty, err := v.resolveCounterparty(ctx, request.CounterpartyIdentifier)
		if err != nil {
			return nil, err
		}
		if counterparty.ID == actor.ID {
			log.Warn("Self transfer rejected", "account_id", actor.ID)
			return nil, ledger.ErrSelfTransfer
		}
		plan.Counterparty = counterparty
	}

	return plan, nil
}

func (v *OperationValidatorImpl) resolveActor(ctx context.Context, request *ledger.OperationRequest) (*account.Account, error) {
	if request.ActorAccountID > 0 {
		return v.accountRepo.GetByID(ctx, request.ActorAccountID)
	}
	if request.ActorUsername == "" {
		return nil, account.ErrAccountNotFound{}
	}
	return v.accountRepo.GetByUsername(ctx, request.ActorUsername)
}

func (v *OperationValidatorImpl) resolveCounterparty(ctx context.Context, identifier string) (*account.Account, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, ledger.ErrCounterpartyNotFound{}
	}

	counterparty, err := v.accountRepo.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, ledger.ErrCounterpartyNotFound{Identifier: identifier}
		}
		return nil, fmt.Errorf("failed to resolve recipient %s: %w", identifier, err)
	}
	return counterparty, nil
}

// CheckIdempotency looks up a record already carrying the plan's external reference
func (v *OperationValidatorImpl) CheckIdempotency(ctx context.Context, plan *service.Plan) (*ledger.Record, error) {
	if plan.ExternalReference == nil {
		return nil, nil
	}

	prior, err := v.ledgerRepo.GetByExternalReference(ctx, *plan.ExternalReference)
	if err != nil {
		logger.WithCorrelationID(v.logger, plan.CorrelationID).Error("Failed to check ledger for idempotency",
			"external_reference", *plan.ExternalReference,
			"error", err,
		)
		return nil, fmt.Errorf("idempotency check failed for %s: %w", *plan.ExternalReference, err)
	}
	return prior, nil
}

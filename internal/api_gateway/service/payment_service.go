package service

import (
	"context"
	"log/slog"

	"github.com/modern-bank-ledger/internal/domain/account"
	"github.com/modern-bank-ledger/internal/domain/shared"
	"github.com/modern-bank-ledger/internal/logger"
	"github.com/modern-bank-ledger/internal/payments/mpesa"
)

// ErrFractionalAmount rejects STK amounts with a cents part; the provider only takes whole shillings
var ErrFractionalAmount = shared.NewValidationError("amount", "Amount must be a whole number")

type PaymentServiceImpl struct {
	initiator mpesa.PaymentInitiator
	logger    *slog.Logger
}

func NewPaymentService(initiator mpesa.PaymentInitiator, logger *slog.Logger) PaymentService {
	return &PaymentServiceImpl{initiator: initiator, logger: logger}
}

// InitiateSTKPush takes amount in minor units. Nothing is recorded here; the
// deposit happens when the provider calls back.
func (s *PaymentServiceImpl) InitiateSTKPush(ctx context.Context, phoneNumber string, amount int64, correlationID string) (*mpesa.STKPushResponse, error) {
	if phoneNumber == "" || amount == 0 {
		return nil, account.ErrMissingFields
	}
	if amount < 0 {
		return nil, account.ErrInvalidAmount
	}
	if amount%100 != 0 {
		return nil, ErrFractionalAmount
	}

	log := logger.WithCorrelationID(s.logger, correlationID)

	resp, err := s.initiator.STKPush(ctx, mpesa.STKPushRequest{
		PhoneNumber:   phoneNumber,
		Amount:        amount / 100,
		CorrelationID: correlationID,
	})
	if err != nil {
		log.Warn("STK push failed", "error", err)
		return nil, err
	}
	if !resp.Accepted() {
		log.Info("STK push declined by provider", "response_code", resp.ResponseCode, "description", resp.ResponseDescription)
		return resp, mpesa.ErrPaymentFailed
	}

	log.Info("STK push accepted", "checkout_request_id", resp.CheckoutRequestID)
	return resp, nil
}

package handler

import (
	"io"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/modern-bank-ledger/internal/api_gateway/middleware"
	"github.com/modern-bank-ledger/internal/api_gateway/service"
	"github.com/modern-bank-ledger/internal/platform/money"
)

const (
	paymentSuccessful = "Payment Successful"
	maxCallbackBytes  = 64 << 10
)

// MpesaHandler serves the provider callback and the STK push trigger
type MpesaHandler struct {
	reconciliation service.ReconciliationService
	payments       service.PaymentService
	logger         *slog.Logger
}

func NewMpesaHandler(logger *slog.Logger, reconciliation service.ReconciliationService, payments service.PaymentService) *MpesaHandler {
	return &MpesaHandler{
		reconciliation: reconciliation,
		payments:       payments,
		logger:         logger,
	}
}

// Callback handles POST /mpesa/callback. The raw body is passed through so
// malformed payloads can be parked untouched.
func (h *MpesaHandler) Callback(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBytes))
	if err != nil {
		RespondBadRequest(c, "Invalid callback data")
		return
	}

	outcome, err := h.reconciliation.HandleCallback(c.Request.Context(), raw, middleware.GetCorrelationID(c))
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	var transaction *TransactionResponse
	if record := outcome.Result.ActorRecord(); record != nil {
		resp := mapRecordToResponse(record)
		transaction = &resp
	}

	RespondOK(c, CallbackResponse{
		Message:     paymentSuccessful,
		Amount:      Money(outcome.Payment.Amount),
		Phone:       outcome.Payment.PhoneNumber,
		Transaction: transaction,
		Replayed:    outcome.Result.Replayed,
	})
}

// STKPush handles POST /mpesa/stkpush
func (h *MpesaHandler) STKPush(c *gin.Context) {
	var req STKPushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body")
		return
	}

	amount, err := money.ToMinor(req.Amount)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	resp, err := h.payments.InitiateSTKPush(c.Request.Context(), req.PhoneNumber, amount, middleware.GetCorrelationID(c))
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	RespondOK(c, STKPushResponse{
		Message:           paymentSuccessful,
		CheckoutRequestID: resp.CheckoutRequestID,
	})
}

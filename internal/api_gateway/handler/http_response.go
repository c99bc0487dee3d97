package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/modern-bank-ledger/internal/api_gateway/middleware"
	"github.com/modern-bank-ledger/internal/domain/ledger"
	"github.com/modern-bank-ledger/internal/domain/shared"
	"github.com/modern-bank-ledger/internal/logger"
	"github.com/modern-bank-ledger/internal/payments/mpesa"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Message       string `json:"message"`
	Code          string `json:"code"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// RespondOK sends a 200 OK response with data
func RespondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// RespondCreated sends a 201 Created response with data
func RespondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// RespondWithError sends a JSON response with an error
func RespondWithError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Message:       message,
		Code:          code,
		CorrelationID: middleware.GetCorrelationID(c),
	})
}

// RespondBadRequest sends a 400 Bad Request response with an error
func RespondBadRequest(c *gin.Context, message string) {
	RespondWithError(c, http.StatusBadRequest, "BAD_REQUEST", message)
}

// RespondInternalError sends a 500 Internal Server Error response with an error
func RespondInternalError(c *gin.Context) {
	RespondWithError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "An internal server error occurred")
}

// RespondDomainError maps an error kind to its status, code and user facing message.
// Unexpected errors are logged and hidden behind a generic 500.
func RespondDomainError(c *gin.Context, log *slog.Logger, err error) {
	var validation shared.ValidationError
	var counterparty ledger.ErrCounterpartyNotFound

	switch {
	case errors.Is(err, mpesa.ErrProviderUnavailable):
		RespondWithError(c, http.StatusBadGateway, "BAD_GATEWAY", "Payment provider unavailable")
	case errors.As(err, &validation):
		RespondBadRequest(c, validation.Message)
	case errors.Is(err, shared.ErrInvalidCallback):
		RespondBadRequest(c, "Invalid callback data")
	case errors.As(err, &counterparty):
		RespondWithError(c, http.StatusNotFound, "NOT_FOUND", "Recipient account not found")
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrUnknownPayee):
		RespondWithError(c, http.StatusNotFound, "NOT_FOUND", "User not found")
	case errors.Is(err, shared.ErrConflict):
		RespondWithError(c, http.StatusBadRequest, "CONFLICT", "User already exists")
	case errors.Is(err, shared.ErrInsufficientFunds):
		RespondWithError(c, http.StatusBadRequest, "INSUFFICIENT_FUNDS", "Insufficient funds")
	case errors.Is(err, shared.ErrUnauthorized):
		RespondWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid credentials")
	case errors.Is(err, shared.ErrContention):
		RespondWithError(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Service busy, please retry")
	case errors.Is(err, shared.ErrAllocationExhausted):
		logger.WithCorrelationID(log, middleware.GetCorrelationID(c)).Error("Account number allocation exhausted", "error", err)
		RespondWithError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Could not allocate an account number")
	default:
		logger.WithCorrelationID(log, middleware.GetCorrelationID(c)).Error("Unexpected error",
			"path", c.Request.URL.Path, "error", err,
		)
		RespondInternalError(c)
	}
	_ = c.Error(err)
}

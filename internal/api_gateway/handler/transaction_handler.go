package handler

import (
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/modern-bank-ledger/internal/api_gateway/middleware"
	"github.com/modern-bank-ledger/internal/api_gateway/service"
	"github.com/modern-bank-ledger/internal/domain/ledger"
	"github.com/modern-bank-ledger/internal/platform/money"
)

// TransactionHandler handles HTTP requests for transaction operations
type TransactionHandler struct {
	transactionService service.TransactionService
	logger             *slog.Logger
}

// NewTransactionHandler creates a new transaction handler
func NewTransactionHandler(logger *slog.Logger, transactionService service.TransactionService) *TransactionHandler {
	return &TransactionHandler{
		transactionService: transactionService,
		logger:             logger,
	}
}

// Create handles POST /transaction for deposits, withdrawals and transfers
func (h *TransactionHandler) Create(c *gin.Context) {
	var req CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid transaction body", "error", err)
		RespondBadRequest(c, "Invalid request body")
		return
	}

	amount, err := money.ToMinor(req.Amount)
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	result, err := h.transactionService.Submit(c.Request.Context(), &ledger.OperationRequest{
		ActorUsername:          req.Username,
		Kind:                   req.TransactionType,
		Amount:                 amount,
		CounterpartyIdentifier: req.Identifier,
		CorrelationID:          middleware.GetCorrelationID(c),
	})
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	RespondOK(c, TransactionResultResponse{
		Message:    successMessage(result.Kind),
		NewBalance: Money(result.NewBalance),
	})
}

func successMessage(kind ledger.Kind) string {
	name := string(kind)
	if name == "" {
		return "Transaction successful"
	}
	return strings.ToUpper(name[:1]) + name[1:] + " successful"
}

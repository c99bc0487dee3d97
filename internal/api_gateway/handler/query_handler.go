package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/modern-bank-ledger/internal/api_gateway/service"
)

type QueryHandler struct {
	queryService service.QueryService
	logger       *slog.Logger
}

func NewQueryHandler(logger *slog.Logger, queryService service.QueryService) *QueryHandler {
	return &QueryHandler{queryService: queryService, logger: logger}
}

// Summary handles GET /user/:identifier/transaction-summary
func (h *QueryHandler) Summary(c *gin.Context) {
	summary, err := h.queryService.Summary(c.Request.Context(), c.Param("identifier"))
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	RespondOK(c, SummaryResponse{
		Success: true,
		Data: SummaryTotals{
			Sent:     Money(summary.TotalDebited),
			Received: Money(summary.TotalCredited),
		},
		CurrentBalance: Money(summary.CurrentBalance),
	})
}

// History handles GET /user/:identifier/transactions
func (h *QueryHandler) History(c *gin.Context) {
	records, err := h.queryService.History(c.Request.Context(), c.Param("identifier"))
	if err != nil {
		RespondDomainError(c, h.logger, err)
		return
	}

	response := TransactionListResponse{Transactions: make([]TransactionResponse, 0, len(records))}
	for _, record := range records {
		response.Transactions = append(response.Transactions, mapRecordToResponse(record))
	}
	RespondOK(c, response)
}

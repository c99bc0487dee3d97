package api_gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/modern-bank-ledger/internal/api_gateway/handler"
	"github.com/modern-bank-ledger/internal/api_gateway/middleware"
)

// setupRouter configures API routes and middleware for the application
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	accountHandler *handler.AccountHandler,
	transactionHandler *handler.TransactionHandler,
	queryHandler *handler.QueryHandler,
	mpesaHandler *handler.MpesaHandler,
) {
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recovery(logger))

	r.POST("/register", accountHandler.Register)
	r.POST("/login", accountHandler.Login)
	r.POST("/transaction", transactionHandler.Create)

	user := r.Group("/user/:identifier")
	{
		user.GET("", accountHandler.Get)
		user.GET("/transaction-summary", queryHandler.Summary)
		user.GET("/transactions", queryHandler.History)
	}

	mpesa := r.Group("/mpesa")
	{
		mpesa.POST("/callback", mpesaHandler.Callback)
		mpesa.POST("/stkpush", mpesaHandler.STKPush)
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
}

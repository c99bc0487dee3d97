package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/modern-bank-ledger/internal/logger"
)

// Recovery turns a panic into the standard 500 error body
func Recovery(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				correlationID := GetCorrelationID(c)

				logger.WithCorrelationID(log, correlationID).Error("Panic recovered",
					"error", r,
					"stack", string(debug.Stack()),
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"message":        "An internal server error occurred",
					"code":           "INTERNAL_SERVER_ERROR",
					"correlation_id": correlationID,
				})
			}
		}()

		c.Next()
	}
}

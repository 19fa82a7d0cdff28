package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/coursedl-go/pkg/logger"
)

// LoggerWithAdapter logs every request to the api category. Responses
// with a 4xx or 5xx status are mirrored into the error log.
func LoggerWithAdapter(logAdapter *logger.LoggerAdapter) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
		}

		logAdapter.API().Info("HTTP request", fields...)

		if status >= 400 {
			logAdapter.LogError(logger.CategoryAPI, "HTTP error response",
				zap.String("method", c.Request.Method),
				zap.String("path", path),
				zap.Int("status", status),
				zap.String("client_ip", c.ClientIP()),
			)
		}
	}
}

package middleware

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ondrasimku/image-upload-service/internal/apierr"
)

// ErrorHandler renders the last error recorded on the context unless a
// response has already been written.
func ErrorHandler(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		var apiErr *apierr.Error
		if !errors.As(last.Err, &apiErr) {
			logger.Error("Unhandled request error", "path", c.FullPath(), "error", last.Err)
		}

		resp := apierr.From(last.Err)
		c.AbortWithStatusJSON(resp.Status, resp.Response())
	}
}

func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("Panic recovered", "path", c.FullPath(), "panic", recovered)
		resp := apierr.Internal("Internal server error")
		c.AbortWithStatusJSON(resp.Status, resp.Response())
	})
}

func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("Request handled",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}

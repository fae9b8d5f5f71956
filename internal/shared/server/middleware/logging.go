package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dms-backend/internal/shared/telemetry"
)

// Logging emits a structured log per request.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		fields := map[string]any{
			"request_id":  RequestIDFromContext(c),
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"route":       c.FullPath(),
			"status":      c.Writer.Status(),
			"duration_ms": float64(latency.Microseconds()) / 1000.0,
			"user_id":     UserIDFromContext(c),
			"user_email":  UserEmailFromContext(c),
			"document_id": c.GetString("documentId"),
			"client_ip":   c.ClientIP(),
			"user_agent":  c.Request.UserAgent(),
		}
		if files, ok := c.Get("uploadFiles"); ok {
			fields["upload_files"] = files
		}
		telemetry.Info("request.complete", fields)
	}
}

package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"resume-revamp/internal/shared/metrics"
	"resume-revamp/internal/shared/telemetry"
)

// Logging emits a structured log and a latency observation per request.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveHTTPRequest(c.Request.Method, route, status)

		fields := map[string]any{
			"request_id":    RequestIDFromContext(c),
			"method":        c.Request.Method,
			"path":          c.Request.URL.Path,
			"route":         route,
			"status":        status,
			"duration_ms":   float64(latency.Microseconds()) / 1000.0,
			"user_id":       UserIDFromContext(c),
			"identity_kind": IdentityKindFromContext(c),
			"client_ip":     c.ClientIP(),
			"user_agent":    c.Request.UserAgent(),
		}
		if id := c.GetString("rewriteId"); id != "" {
			fields["rewrite_id"] = id
		}
		telemetry.Info("request.complete", fields)
	}
}

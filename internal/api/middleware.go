package api

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"geoattend/internal/observability"
)

// LoggingMiddleware logs each request with slog and records its duration.
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		// Route templates keep the metric's path label bounded.
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		duration := time.Since(start)
		status := c.Writer.Status()

		if path != "/healthz" && path != "/metrics" {
			slog.Info("request",
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"status", status,
				"duration", duration.String(),
				"ip", c.ClientIP(),
				"subject", c.GetString("subject"),
			)
		}

		observability.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			path,
			fmt.Sprintf("%d", status),
		).Observe(duration.Seconds())
	}
}

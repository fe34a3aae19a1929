package middleware

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aibom-registry/aibom-registry/internal/telemetry"
)

// noRoute labels requests that matched no route so that scanners probing
// random paths cannot inflate label cardinality.
const noRoute = "<no-route>"

// Metrics records http_requests_total and http_request_duration_seconds per
// route template and writes one access log line per request.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = noRoute
		}
		elapsed := time.Since(start)
		status := c.Writer.Status()

		telemetry.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(status)).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(elapsed.Seconds())

		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		Logger(c).Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"route", path,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"identity", Identity(c),
		)
	}
}

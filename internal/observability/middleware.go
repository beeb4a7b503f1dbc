package observability

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RequestLogger logs one line per API request. Requests against an
// interface route carry its commander and interface params, and session
// (when non-nil) names the device session that served the request.
func RequestLogger(logger zerolog.Logger, session func() string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		var event *zerolog.Event
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		default:
			event = logger.Debug()
		}
		if !event.Enabled() {
			return
		}

		event = event.
			Str("method", c.Request.Method).
			Str("route", routeOf(c)).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP())
		if cmd, iface := c.Param("commander"), c.Param("interface"); cmd != "" && iface != "" {
			event = event.Str("address", cmd+"."+iface)
		}
		if session != nil {
			if id := session(); id != "" {
				event = event.Str("session", id)
			}
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}
		event.Msg("server.http request")
	}
}

// RequestMetricsMiddleware records request counts and latency by route
// template, so per-interface paths share one series.
func RequestMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		RecordHTTPRequest(c.Request.Method, routeOf(c), c.Writer.Status(), time.Since(start))
	}
}

// routeOf returns the matched route template, or "unmatched" for requests
// no route handled.
func routeOf(c *gin.Context) string {
	if path := c.FullPath(); path != "" {
		return path
	}
	return "unmatched"
}

package api

import (
	"time"

	"binance-futures-trader/internal/logging"

	"github.com/gin-gonic/gin"
)

const headerRequestID = "X-Request-ID"

// requestContextMiddleware attaches a trace-tagged logger to the request
// context. An incoming X-Request-ID is reused as the trace id.
func (s *Server) requestContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = logging.GenerateTraceID()
		}
		ctx, _ := logging.WithTraceContext(c.Request.Context(), s.logger, id)
		c.Request = c.Request.WithContext(ctx)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

func (s *Server) accessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger := logging.FromContextOr(c.Request.Context(), s.logger)
		// Failures are logged at error level where they are detected.
		event := logger.Info()
		if c.Writer.Status() >= 400 {
			event = logger.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request")
	}
}

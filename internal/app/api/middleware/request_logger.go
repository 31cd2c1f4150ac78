package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aiwa-app/aiwa/pkg/logctx"
)

// RequestLoggerMiddleware attaches a request-scoped logger enriched with
// trace_id to gin.Context and request context.
func RequestLoggerMiddleware(base *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetString(logctx.TraceIDKey)

		reqLogger := base.With("trace_id", traceID)
		c.Set(logctx.LoggerKey, reqLogger)
		c.Request = c.Request.WithContext(logctx.WithLogger(c.Request.Context(), reqLogger))

		// mirror trace id to response header when available
		if traceID != "" {
			c.Writer.Header().Set(TraceHeader, traceID)
		}

		c.Next()
	}
}

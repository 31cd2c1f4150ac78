package logctx

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Context keys shared by the middleware chain. Plain strings are kept so the
// values are reachable from both gin.Context and context.Context.
const (
	LoggerKey  = "logger"
	TraceIDKey = "traceID"
	UserIDKey  = "user_id"
)

// FromGin returns a request-scoped logger from gin.Context if present,
// otherwise returns the provided base logger.
func FromGin(c *gin.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if c == nil {
		return base
	}
	if l, ok := c.Get(LoggerKey); ok {
		if lg, ok := l.(*zap.SugaredLogger); ok && lg != nil {
			return lg
		}
	}
	return FromCtx(c.Request.Context(), base)
}

// FromCtx returns a logger from context if set, otherwise attempts to enrich
// base with trace_id/user_id from context values.
func FromCtx(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if ctx == nil {
		return base
	}
	if lg, ok := ctx.Value(LoggerKey).(*zap.SugaredLogger); ok && lg != nil {
		return lg
	}
	var fields []interface{}
	if tid, ok := ctx.Value(TraceIDKey).(string); ok && tid != "" {
		fields = append(fields, "trace_id", tid)
	}
	if uid, ok := ctx.Value(UserIDKey).(string); ok && uid != "" {
		fields = append(fields, "user_id", uid)
	}
	if len(fields) > 0 {
		return base.With(fields...)
	}
	return base
}

// WithLogger stores lg in ctx so that FromCtx picks it up downstream.
func WithLogger(ctx context.Context, lg *zap.SugaredLogger) context.Context {
	//nolint:staticcheck // string key shared with gin.Context
	return context.WithValue(ctx, LoggerKey, lg)
}

// TraceID returns the trace id carried by ctx, if any.
func TraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(TraceIDKey).(string)
	return s
}

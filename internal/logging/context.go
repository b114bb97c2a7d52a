package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// GenerateTraceID generates a new trace ID
func GenerateTraceID() string {
	return uuid.NewString()
}

// NewContext creates a new context with the logger
func NewContext(ctx context.Context, l zerolog.Logger) context.Context {
	return l.WithContext(ctx)
}

type contextKey string

const traceIDKey contextKey = "trace_id"

// WithTraceContext derives a logger carrying traceID (generated when empty)
// from base and stores both in ctx.
func WithTraceContext(ctx context.Context, base zerolog.Logger, traceID string) (context.Context, zerolog.Logger) {
	if traceID == "" {
		traceID = GenerateTraceID()
	}
	l := base.With().Str("trace_id", traceID).Logger()
	ctx = context.WithValue(ctx, traceIDKey, traceID)
	return NewContext(ctx, l), l
}

// TraceID returns the trace id stored by WithTraceContext, or "".
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey).(string)
	return id
}

// Traced tags a component logger with the trace id of ctx, if any.
func Traced(ctx context.Context, l zerolog.Logger) zerolog.Logger {
	if id := TraceID(ctx); id != "" {
		return l.With().Str("trace_id", id).Logger()
	}
	return l
}

// OrderContext tags a logger with order fields.
func OrderContext(l zerolog.Logger, symbol, side string) zerolog.Logger {
	return l.With().
		Str("symbol", symbol).
		Str("side", side).
		Logger()
}

// FromContextOr returns the logger stored in ctx, or fallback when there is none.
func FromContextOr(ctx context.Context, fallback zerolog.Logger) zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return *l
	}
	return fallback
}

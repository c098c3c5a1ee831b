// Package shared holds helpers used by all API handlers: context keys,
// JSON response writers and the standard error envelope.
package shared

import "context"

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const (
	// UserIDContextKey is the context key for the authenticated user ID.
	UserIDContextKey ContextKey = "user_id"

	// UsernameContextKey is the context key for the authenticated
	// username.
	UsernameContextKey ContextKey = "username"

	// TraceIDContextKey is the context key for the request trace ID.
	TraceIDContextKey ContextKey = "trace_id"
)

// WithTraceID returns a context carrying the trace ID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDContextKey, traceID)
}

// GetTraceID extracts the trace ID from the context, or "" if absent.
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDContextKey).(string); ok {
		return traceID
	}
	return ""
}

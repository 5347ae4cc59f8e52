package context

import (
	"context"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// OperatorKey is the context key for the authenticated operator username
	OperatorKey ContextKey = "operator"
)

// ExtractOperator extracts the authenticated operator username from the request context
func ExtractOperator(ctx context.Context) (string, bool) {
	operator, ok := ctx.Value(OperatorKey).(string)
	return operator, ok
}

// WithOperator adds the authenticated operator username to the context
func WithOperator(ctx context.Context, operator string) context.Context {
	return context.WithValue(ctx, OperatorKey, operator)
}

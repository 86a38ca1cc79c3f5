// Package auth carries the acting user through request contexts.
package auth

import (
	"context"
	"strings"
)

type contextKey string

const userIDKey contextKey = "field-history-user"

// WithUser returns a context that carries the acting user id. An empty id
// leaves the context unchanged.
func WithUser(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, userIDKey, id)
}

// UserFromContext retrieves the user stored by WithUser.
func UserFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(userIDKey).(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

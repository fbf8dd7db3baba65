// Package identity carries the resolved user identity through request
// contexts. Authentication happens upstream; the service only consumes an
// opaque, already-validated user identifier.
package identity

import "context"

type contextKey struct{}

// WithUserID returns a context carrying the user identifier
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

// FromContext extracts the user identifier, or returns fallback when absent
func FromContext(ctx context.Context, fallback string) string {
	if userID, ok := ctx.Value(contextKey{}).(string); ok && userID != "" {
		return userID
	}
	return fallback
}

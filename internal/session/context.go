package session

import "context"

type contextKey struct{}

// WithActor stamps the acting username onto the request context. The router
// middleware sets it after resolving the session, so handlers can attribute
// audit events without re-reading cookies.
func WithActor(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, contextKey{}, username)
}

// Actor returns the acting username, or empty when anonymous.
func Actor(ctx context.Context) string {
	if v, ok := ctx.Value(contextKey{}).(string); ok {
		return v
	}
	return ""
}

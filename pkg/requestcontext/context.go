// Package requestcontext provides HTTP-independent accessors for
// request-scoped values. Middleware sets them; services and workers read
// them without importing net/http.
package requestcontext

import (
	"context"
	"time"

	id "ballotgate/pkg/domain"
)

type (
	identityIDKey  struct{}
	roleKey        struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// IdentityID retrieves the authenticated identity from the context. The
// second return is false when the request was not authenticated.
func IdentityID(ctx context.Context) (id.IdentityID, bool) {
	if v, ok := ctx.Value(identityIDKey{}).(id.IdentityID); ok && !v.IsNil() {
		return v, true
	}
	return id.IdentityID{}, false
}

func WithIdentityID(ctx context.Context, identityID id.IdentityID) context.Context {
	return context.WithValue(ctx, identityIDKey{}, identityID)
}

// Role retrieves the resolved role of the authenticated identity. The value
// comes from a capability lookup against the identity record, never from
// token claims.
func Role(ctx context.Context) string {
	if v, ok := ctx.Value(roleKey{}).(string); ok {
		return v
	}
	return ""
}

func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleKey{}, role)
}

// RequestID retrieves the request ID assigned by middleware.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now retrieves the request-scoped time, falling back to time.Now for
// workers and tests that skip the middleware chain. Gated operations read
// the clock once per request through here so every check within one request
// sees the same instant.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}

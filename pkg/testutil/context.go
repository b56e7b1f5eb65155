package testutil

import (
	"net/http"
	"time"

	id "ballotgate/pkg/domain"
	"ballotgate/pkg/requestcontext"
)

// WithIdentity stamps the request context the way the auth middleware would
// for an authenticated caller.
func WithIdentity(req *http.Request, identityID id.IdentityID, role string) *http.Request {
	ctx := requestcontext.WithIdentityID(req.Context(), identityID)
	ctx = requestcontext.WithRole(ctx, role)
	return req.WithContext(ctx)
}

// WithTime pins the request-scoped clock so gated operations see a fixed
// instant.
func WithTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}

// Package requestcontext provides HTTP-independent accessors for
// request-scoped values.
//
// Middleware sets these values; services read them without importing
// net/http. The request-scoped clock matters here: rolling compliance
// windows and order expiry are evaluated lazily against Now(ctx), so tests
// drive time forward by injecting it.
//
// Usage in services:
//
//	now := requestcontext.Now(ctx)
//	principal := requestcontext.Principal(ctx)
//
// Usage in tests:
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithPrincipal(ctx, officerID)
package requestcontext

import (
	"context"
	"time"

	id "tranche/pkg/domain"
)

type (
	principalKey   struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Principal retrieves the authenticated calling account from the context.
// Returns the zero account if not set.
func Principal(ctx context.Context) id.AccountID {
	if p, ok := ctx.Value(principalKey{}).(id.AccountID); ok {
		return p
	}
	return id.AccountID{}
}

// WithPrincipal injects the authenticated calling account into the context.
func WithPrincipal(ctx context.Context, principal id.AccountID) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

// RequestID retrieves the request correlation ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request correlation ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now retrieves the request-scoped time from context. Falls back to
// time.Now() for non-HTTP contexts (CLI, tests that don't care).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context. All lazy window resets
// and expiry checks observe this time, which keeps a whole request (or a
// whole test scenario step) on one consistent clock reading.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}

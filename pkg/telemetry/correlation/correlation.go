package correlation

import (
	"context"
	"net/http"
	"strings"

	"github.com/oklog/ulid/v2"
)

// HeaderName carries the correlation id between the composer and the authority.
const HeaderName = "X-Correlation-ID"

// correlationKey is an unexported type for context keys within this package.
type correlationKey struct{}

// ExtractCorrelationID fetches a correlation ID from the context if present.
func ExtractCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if val, ok := ctx.Value(correlationKey{}).(string); ok {
		return val
	}
	return ""
}

// ContextWithCorrelationID sets the correlation ID onto the context.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// EnsureCorrelationID guarantees a correlation ID on the context, generating one when missing.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	cid := ExtractCorrelationID(ctx)
	if cid == "" {
		cid = ulid.Make().String()
	}
	return ContextWithCorrelationID(ctx, cid), cid
}

// InjectHeader copies the context's correlation id onto h, generating one
// when missing, and returns the id used.
func InjectHeader(ctx context.Context, h http.Header) string {
	_, cid := EnsureCorrelationID(ctx)
	h.Set(HeaderName, cid)
	return cid
}

// FromHeader adopts an inbound correlation id, or starts a new one.
func FromHeader(ctx context.Context, h http.Header) (context.Context, string) {
	if cid := strings.TrimSpace(h.Get(HeaderName)); cid != "" {
		return ContextWithCorrelationID(ctx, cid), cid
	}
	return EnsureCorrelationID(ctx)
}

package model

import "context"

// RequestContext is what the BFF knows about the inbound call behind an
// operation. Transport builds it once per request; it is read-only after.
type RequestContext struct {
	// BearerToken is the caller's token exactly as presented. The engine
	// client forwards it when token forwarding is on.
	BearerToken string
	// Subject is the unverified sub claim of BearerToken. Logs only.
	Subject       string
	CorrelationID string
	TraceID       string
	// Locale is the caller's Accept-Language header.
	Locale     string
	RemoteAddr string
}

// HasBearerToken reports whether the caller sent a token.
func (rc *RequestContext) HasBearerToken() bool {
	return rc != nil && rc.BearerToken != ""
}

type requestContextKey struct{}

// WithRequestContext returns ctx carrying rc.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// RequestContextFrom returns the RequestContext carried by ctx, or nil.
func RequestContextFrom(ctx context.Context) *RequestContext {
	rc, _ := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc
}

package nickauth

import "context"

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type requestIDContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Engine uses it
// for per-IP rate limiting and audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx for audit events.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// WithRequestID attaches a request correlation ID to ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, requestID)
}

// ClientIPFromContext returns the IP set by WithClientIP, or "".
func ClientIPFromContext(ctx context.Context) string {
	return stringValue(ctx, clientIPContextKey{})
}

func UserAgentFromContext(ctx context.Context) string {
	return stringValue(ctx, userAgentContextKey{})
}

func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDContextKey{})
}

func stringValue(ctx context.Context, key any) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

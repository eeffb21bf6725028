package perch

import "context"

type clientIPContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Driver stamps it
// onto audit events so a sink can correlate attempts with their origin.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

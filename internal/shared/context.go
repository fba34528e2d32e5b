package shared

import "context"

type contextKey string

const principalKey contextKey = "principal"

// ContextWithPrincipal stores the verified principal identifier. The
// identity provider upstream owns authentication; this is only transport.
func ContextWithPrincipal(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, principalKey, userID)
}

// PrincipalFromContext returns the verified principal identifier, if any.
func PrincipalFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(principalKey).(string); ok {
		return v
	}
	return ""
}

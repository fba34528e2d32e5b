package gate

import (
	"net/http"

	"github.com/sentra-sec/sentra/internal/platform/httpx"
	"github.com/sentra-sec/sentra/internal/shared"
)

const principalHeader = "X-User-ID"

// Principal extracts the authenticated principal set by the upstream
// identity-aware proxy and stores it in the request context. Requests
// without a principal are rejected before any handler runs.
func Principal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(principalHeader)
		if userID == "" {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing principal")
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), userID)))
	})
}

// Require guards a route subtree with a permission check. The evaluation
// context carries only request metadata; handlers needing richer context
// call the gate directly.
func (g *Gate) Require(resource, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := shared.PrincipalFromContext(r.Context())
			evalCtx := map[string]any{
				"method": r.Method,
				"path":   r.URL.Path,
			}
			if err := g.RequirePermission(r.Context(), userID, resource, action, evalCtx); err != nil {
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

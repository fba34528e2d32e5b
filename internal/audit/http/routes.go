package audithttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/sentra-sec/sentra/internal/shared"
)

const exportRateLimit = 10
const exportRateWindow = time.Minute

// Guard wraps routes with a permission check.
type Guard interface {
	Require(resource, action string) func(http.Handler) http.Handler
}

// MountRoutes registers the audit API under the given router.
func (h *Handler) MountRoutes(r chi.Router, guard Guard) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(exportRateLimit, exportRateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)

	r.Group(func(gr chi.Router) {
		gr.Use(guard.Require("audit_logs", "audit_write"))
		gr.Post("/events", h.handleIngest)
	})
	r.Group(func(gr chi.Router) {
		gr.Use(guard.Require("audit_logs", "audit_read"))
		gr.Get("/events", h.handleList)
	})
	r.Group(func(gr chi.Router) {
		gr.Use(guard.Require("audit_logs", "audit_export"))
		gr.Use(limiter)
		gr.Get("/events/export", h.handleExport)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if user := shared.PrincipalFromContext(r.Context()); user != "" {
		return "user:" + user, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

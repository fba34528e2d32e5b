package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/sentra-sec/sentra/internal/audit/http"
	"github.com/sentra-sec/sentra/internal/gate"
	"github.com/sentra-sec/sentra/internal/observability"
	policyhttp "github.com/sentra-sec/sentra/internal/policy/http"
	"github.com/sentra-sec/sentra/internal/retention"
	"github.com/sentra-sec/sentra/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Gate             *gate.Gate
	DecisionHandler  *gate.Handler
	AuditHandler     *audithttp.Handler
	PolicyHandler    *policyhttp.Handler
	RetentionHandler *retention.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(gate.Principal)

		v1.Route("/decision", func(dr chi.Router) {
			params.DecisionHandler.MountRoutes(dr)
		})
		v1.Route("/audit", func(ar chi.Router) {
			params.AuditHandler.MountRoutes(ar, params.Gate)
		})
		v1.Route("/admin", func(adm chi.Router) {
			params.PolicyHandler.MountRoutes(adm, params.Gate)
			params.RetentionHandler.MountRoutes(adm, params.Gate)
		})
	})

	if params.JobHandler != nil {
		r.Route("/jobs", func(jr chi.Router) {
			params.JobHandler.MountRoutes(jr)
		})
	}

	return r
}

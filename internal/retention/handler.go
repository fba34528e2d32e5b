package retention

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sentra-sec/sentra/internal/platform/httpx"
	"github.com/sentra-sec/sentra/internal/shared"
)

// Handler serves legal hold and retention administration.
type Handler struct {
	logger    *slog.Logger
	manager   *Manager
	validator *validator.Validate
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, manager *Manager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, manager: manager, validator: validator.New()}
}

// Guard wraps routes with a permission check.
type Guard interface {
	Require(resource, action string) func(http.Handler) http.Handler
}

// MountRoutes registers retention administration routes.
func (h *Handler) MountRoutes(r chi.Router, guard Guard) {
	if h == nil {
		return
	}
	r.Group(func(gr chi.Router) {
		gr.Use(guard.Require("audit_logs", "retention_admin"))
		gr.Get("/legal-holds", h.handleListHolds)
		gr.Post("/legal-holds", h.handlePlaceHold)
		gr.Delete("/legal-holds/{holdID}", h.handleReleaseHold)
		gr.Get("/manifests", h.handleListManifests)
	})
}

type holdRequest struct {
	Reason    string     `json:"reason" validate:"required"`
	UserID    *string    `json:"user_id"`
	Resource  *string    `json:"resource"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type holdResponse struct {
	ID        int64      `json:"id"`
	Reason    string     `json:"reason"`
	UserID    *string    `json:"user_id,omitempty"`
	Resource  *string    `json:"resource,omitempty"`
	Status    string     `json:"status"`
	CreatedBy string     `json:"created_by"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (h *Handler) handleListHolds(w http.ResponseWriter, r *http.Request) {
	holds, err := h.manager.Holds(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]holdResponse, 0, len(holds))
	for _, hold := range holds {
		out = append(out, toHoldResponse(hold))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"legal_holds": out})
}

func (h *Handler) handlePlaceHold(w http.ResponseWriter, r *http.Request) {
	var req holdRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	hold, err := h.manager.PlaceHold(r.Context(), LegalHold{
		Reason:    req.Reason,
		UserID:    req.UserID,
		Resource:  req.Resource,
		ExpiresAt: req.ExpiresAt,
		CreatedBy: shared.PrincipalFromContext(r.Context()),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toHoldResponse(hold))
}

func (h *Handler) handleReleaseHold(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "holdID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid holdID")
		return
	}
	if err := h.manager.ReleaseHold(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListManifests(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid limit")
			return
		}
		limit = parsed
	}
	manifests, err := h.manager.Manifests(r.Context(), limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"manifests": manifests})
}

func toHoldResponse(h LegalHold) holdResponse {
	return holdResponse{
		ID:        h.ID,
		Reason:    h.Reason,
		UserID:    h.UserID,
		Resource:  h.Resource,
		Status:    string(h.Status),
		CreatedBy: h.CreatedBy,
		CreatedAt: h.CreatedAt,
		ExpiresAt: h.ExpiresAt,
	}
}

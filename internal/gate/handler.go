package gate

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sentra-sec/sentra/internal/platform/httpx"
	"github.com/sentra-sec/sentra/internal/shared"
)

// Handler serves decision checks over HTTP for services that cannot link the
// gate in-process.
type Handler struct {
	logger    *slog.Logger
	gate      *Gate
	validator *validator.Validate
}

// NewHandler builds a decision Handler.
func NewHandler(logger *slog.Logger, g *Gate) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, gate: g, validator: validator.New()}
}

// MountRoutes registers the decision endpoint.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Post("/check", h.handleCheck)
}

type checkRequest struct {
	Resource string         `json:"resource" validate:"required"`
	Action   string         `json:"action" validate:"required"`
	Context  map[string]any `json:"context"`
}

type checkResponse struct {
	Allowed bool `json:"allowed"`
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	userID := shared.PrincipalFromContext(r.Context())
	allowed := h.gate.Allowed(r.Context(), userID, req.Resource, req.Action, req.Context)
	httpx.JSON(w, http.StatusOK, checkResponse{Allowed: allowed})
}

package httpx

import (
	"errors"
	"net/http"

	"github.com/sentra-sec/sentra/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
//
// Permission denials and internal failures intentionally carry no detail:
// callers must not learn which condition failed or why resolution broke.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrPermissionDenied):
		Problem(w, http.StatusForbidden, "Forbidden", "not authorized")
	case errors.Is(err, shared.ErrPolicyConfiguration):
		Problem(w, http.StatusInternalServerError, "Policy Configuration Error", "")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// Package transport contains the HTTP router, middleware chain, and the
// request handlers of the journey facade.
package transport

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/pitabwire/journeybff/internal/observability"
	"github.com/pitabwire/journeybff/model"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// WriteError writes err as an ErrorEnvelope with its HTTP status. Errors
// that are not envelopes are converted with model.AsEnvelope, so upstream
// failures keep their status and body in details.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	env := *model.AsEnvelope(err)
	if env.CorrelationID == "" {
		env.CorrelationID = CorrelationIDFrom(r.Context())
	}
	status := env.HTTPStatus()
	if status >= http.StatusInternalServerError {
		observability.RequestLogger(r.Context(), zap.NewNop()).Error("request failed",
			zap.String("code", env.Code),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	WriteJSON(w, status, &env)
}

// WriteValidationError writes a 422 error response with field-level details.
func WriteValidationError(w http.ResponseWriter, r *http.Request, details []model.FieldError) {
	WriteError(w, r, model.NewValidationError(details))
}

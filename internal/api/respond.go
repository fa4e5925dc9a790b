package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/weili-projects/reservation-api/internal/appointment"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeServiceError maps the service error taxonomy onto HTTP. Internal errors are
// logged with full detail and answered with an opaque message.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	switch appointment.KindOf(err) {
	case appointment.KindNotFound:
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case appointment.KindBusinessRule:
		writeError(w, http.StatusConflict, string(appointment.RuleOf(err)), err.Error())
	case appointment.KindInvalidInput:
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	default:
		logger.Error("internal error",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

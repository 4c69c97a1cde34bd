package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/example/order-saga/internal/apperr"
)

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondErr maps a domain error to its HTTP status. Unclassified errors are
// logged and reported without detail.
func respondErr(w http.ResponseWriter, logger *zap.Logger, err error) {
	switch {
	case apperr.IsValidation(err):
		respondError(w, http.StatusBadRequest, err.Error())
	case apperr.IsNotFound(err):
		respondError(w, http.StatusNotFound, err.Error())
	case apperr.IsConflict(err):
		respondError(w, http.StatusConflict, err.Error())
	default:
		logger.Error("request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// decodeBody reads a JSON request body into v, answering 400 when it cannot.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// envelope is the JSON shape of every API response.
type envelope struct {
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Success bool   `json:"success"`
}

func writeJSON(w http.ResponseWriter, status int, data any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Data: data, Success: status < 400}); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Error: message}); err != nil {
		logger.Error("failed to encode error response", "error", err)
	}
}

func success(w http.ResponseWriter, data any, logger *slog.Logger) {
	writeJSON(w, http.StatusOK, data, logger)
}

func badRequest(w http.ResponseWriter, message string, logger *slog.Logger) {
	writeError(w, http.StatusBadRequest, message, logger)
}

func notFound(w http.ResponseWriter, message string, logger *slog.Logger) {
	writeError(w, http.StatusNotFound, message, logger)
}

func internalError(w http.ResponseWriter, err error, logger *slog.Logger) {
	logger.Error("unhandled error", "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error", logger)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

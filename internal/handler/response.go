package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/johndosdos/livechat/internal/store"
)

// response is the envelope of every REST reply.
type response struct {
	Success    bool              `json:"success"`
	Data       any               `json:"data,omitempty"`
	Count      *int              `json:"count,omitempty"`
	Pagination *store.Pagination `json:"pagination,omitempty"`
	Error      string            `json:"error,omitempty"`
	Message    string            `json:"message,omitempty"`
	Details    []string          `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

func respondOK(w http.ResponseWriter, r *http.Request, status int, res response) {
	res.Success = true
	writeJSON(w, r, status, res)
}

func respondError(w http.ResponseWriter, r *http.Request, status int, errMsg, message string, details []string) {
	writeJSON(w, r, status, response{
		Success: false,
		Error:   errMsg,
		Message: message,
		Details: details,
	})
}

package server

import (
	"encoding/json"
	"net/http"

	"github.com/Layr-Labs/clout-cards-sub002/internal/faults"
)

// errorEnvelope is the wire shape for every failure.
type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain error kinds onto the HTTP envelope.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case faults.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, errorEnvelope{Error: "validation", Message: err.Error()})
	case faults.IsConflict(err):
		writeJSON(w, http.StatusConflict, errorEnvelope{Error: "conflict", Message: err.Error()})
	case faults.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, errorEnvelope{Error: "not_found", Message: err.Error()})
	case faults.IsInvariant(err):
		s.lg.WithError(err).Error("invariant break")
		writeJSON(w, http.StatusInternalServerError, errorEnvelope{Error: "invariant_break", Message: err.Error()})
	default:
		s.lg.WithError(err).Error("request failed")
		writeJSON(w, http.StatusInternalServerError, errorEnvelope{Error: "internal", Message: "internal server error"})
	}
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusUnauthorized, errorEnvelope{Error: "unauthorized", Message: msg})
}

func writeValidation(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorEnvelope{Error: "validation", Message: msg})
}

package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/ayoubbns/vinscan/internal/ai"
	"github.com/ayoubbns/vinscan/internal/auth"
	"github.com/ayoubbns/vinscan/internal/scan"
	"github.com/ayoubbns/vinscan/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeServiceError maps known failures onto HTTP statuses. Unknown errors
// become opaque 500s; the detail goes to the log only.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidLogin):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, scan.ErrDraftNotFound),
		errors.Is(err, scan.ErrRecordNotFound),
		errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, scan.ErrDuplicate):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, scan.ErrInvalidVIN), errors.Is(err, scan.ErrUnknownLocation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrSeedAdmin):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ai.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, ai.ErrInvalidCredentials):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeBody parses a JSON body into v and runs struct validation.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			writeError(w, http.StatusBadRequest, verrs.Error())
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

package web

import (
	"net/http"

	"github.com/ayoubbns/vinscan/internal/domain"
)

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token    string           `json:"token"`
	Operator *domain.Operator `json:"operator"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	op, token, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.logger.Info("operator logged in", "username", op.Username)
	writeJSON(w, http.StatusOK, loginResponse{Token: token, Operator: op})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, operatorFrom(r.Context()))
}

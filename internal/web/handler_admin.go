package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ayoubbns/vinscan/internal/auth"
	"github.com/ayoubbns/vinscan/internal/domain"
)

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.settings.Load(r.Context())
	if err != nil {
		s.logger.Warn("settings unreadable, serving defaults", "error", err)
	}
	writeJSON(w, http.StatusOK, settings)
}

type settingsRequest struct {
	DuplicateWindowHours int    `json:"duplicateWindowHours" validate:"min=0"`
	DuplicatePolicy      string `json:"duplicatePolicy" validate:"required,oneof=warn block"`
	MonthlyTarget        int    `json:"monthlyTarget" validate:"min=0"`
	CompanyName          string `json:"companyName" validate:"required"`
	AppName              string `json:"appName" validate:"required"`
	Language             string `json:"language" validate:"required,oneof=fr ar"`
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	settings := domain.Settings{
		DuplicateWindowHours: req.DuplicateWindowHours,
		DuplicatePolicy:      domain.DuplicatePolicy(req.DuplicatePolicy),
		MonthlyTarget:        req.MonthlyTarget,
		CompanyName:          req.CompanyName,
		AppName:              req.AppName,
		Language:             domain.Language(req.Language),
	}
	if err := s.settings.Save(r.Context(), settings); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleListLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := s.locations.List(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, locations)
}

type locationRequest struct {
	Name string `json:"name" validate:"required"`
}

func (s *Server) handleCreateLocation(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	loc, err := s.locations.Create(r.Context(), req.Name)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, loc)
}

func (s *Server) handleDeleteLocation(w http.ResponseWriter, r *http.Request) {
	if err := s.locations.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListOperators(w http.ResponseWriter, r *http.Request) {
	operators, err := s.operators.List(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, operators)
}

type operatorRequest struct {
	Username    string              `json:"username" validate:"required,min=3"`
	Password    string              `json:"password" validate:"required,min=4"`
	Name        string              `json:"name" validate:"required"`
	Role        string              `json:"role" validate:"required,oneof=admin agent"`
	Permissions *domain.Permissions `json:"permissions"`
}

func (s *Server) handleCreateOperator(w http.ResponseWriter, r *http.Request) {
	var req operatorRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	role := domain.Role(req.Role)
	permissions := domain.DefaultPermissions(role)
	if req.Permissions != nil {
		permissions = *req.Permissions
	}

	op, err := s.operators.Create(r.Context(), &domain.Operator{
		Username:    req.Username,
		Secret:      auth.EncodeSecret(req.Password),
		Name:        req.Name,
		Role:        role,
		Permissions: permissions,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.logger.Info("operator created", "username", op.Username, "role", op.Role)
	writeJSON(w, http.StatusCreated, op)
}

func (s *Server) handleDeleteOperator(w http.ResponseWriter, r *http.Request) {
	if err := s.operators.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package app

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (s *HTTPServer) userRoutes(api *mux.Router) {
	api.HandleFunc("/users/me", s.authed(s.handleMe)).Methods(http.MethodGet)
	api.HandleFunc("/users/me", s.authed(s.handleUpdateProfile)).Methods(http.MethodPatch)
	api.HandleFunc("/users/me/password", s.authed(s.handleChangePassword)).Methods(http.MethodPatch)
	api.HandleFunc("/users", s.authed(s.handleListUsers)).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}/role", s.authed(s.handleChangeRole)).Methods(http.MethodPatch)
	api.HandleFunc("/users/{id}/scope", s.authed(s.handleUpdateScope)).Methods(http.MethodPatch)
	api.HandleFunc("/users/{id}/deactivate", s.authed(s.handleDeactivateUser)).Methods(http.MethodPatch)
}

func (s *HTTPServer) handleMe(w http.ResponseWriter, r *http.Request, session Session) {
	payload, err := s.service.Me(r.Context(), session)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleUpdateProfile(w http.ResponseWriter, r *http.Request, session Session) {
	var body UpdateProfileInput
	if !s.decode(w, r, &body) {
		return
	}
	payload, err := s.service.UpdateProfile(r.Context(), session, body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleChangePassword(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	if err := s.service.ChangePassword(r.Context(), session, body.CurrentPassword, body.NewPassword); err != nil {
		s.fail(w, r, err)
		return
	}
	writeOK(w)
}

func (s *HTTPServer) handleListUsers(w http.ResponseWriter, r *http.Request, session Session) {
	users, err := s.service.ListUsers(r.Context(), session, r.URL.Query().Get("q"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *HTTPServer) handleChangeRole(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		Role string `json:"role"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	payload, err := s.service.ChangeUserRole(r.Context(), session, pathVar(r, "id"), body.Role)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleUpdateScope(w http.ResponseWriter, r *http.Request, session Session) {
	var body UpdateScopeInput
	if !s.decode(w, r, &body) {
		return
	}
	payload, err := s.service.UpdateUserScope(r.Context(), session, pathVar(r, "id"), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleDeactivateUser(w http.ResponseWriter, r *http.Request, session Session) {
	if err := s.service.DeactivateUser(r.Context(), session, pathVar(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeOK(w)
}

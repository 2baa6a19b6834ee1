package app

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (s *HTTPServer) workspaceRoutes(api *mux.Router) {
	api.HandleFunc("/workspaces", s.authed(s.handleListWorkspaces)).Methods(http.MethodGet)
	api.HandleFunc("/workspaces", s.authed(s.handleCreateWorkspace)).Methods(http.MethodPost)
	api.HandleFunc("/workspaces/{id}", s.authed(s.handleGetWorkspace)).Methods(http.MethodGet)
	api.HandleFunc("/workspaces/{id}", s.authed(s.handleUpdateWorkspace)).Methods(http.MethodPatch)
	api.HandleFunc("/workspaces/{id}/deactivate", s.authed(s.handleDeactivateWorkspace)).Methods(http.MethodPatch)
	api.HandleFunc("/workspaces/{id}/invite", s.authed(s.handleInviteToWorkspace)).Methods(http.MethodPost)
	api.HandleFunc("/workspaces/{id}/boards", s.authed(s.handleListBoards)).Methods(http.MethodGet)
}

func (s *HTTPServer) handleListWorkspaces(w http.ResponseWriter, r *http.Request, session Session) {
	workspaces, err := s.service.ListWorkspaces(r.Context(), session)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"workspaces": workspaces})
}

func (s *HTTPServer) handleCreateWorkspace(w http.ResponseWriter, r *http.Request, session Session) {
	var body CreateWorkspaceInput
	if !s.decode(w, r, &body) {
		return
	}
	payload, err := s.service.CreateWorkspace(r.Context(), session, body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, payload)
}

func (s *HTTPServer) handleGetWorkspace(w http.ResponseWriter, r *http.Request, session Session) {
	payload, err := s.service.GetWorkspace(r.Context(), session, pathVar(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleUpdateWorkspace(w http.ResponseWriter, r *http.Request, session Session) {
	var body UpdateWorkspaceInput
	if !s.decode(w, r, &body) {
		return
	}
	payload, err := s.service.UpdateWorkspace(r.Context(), session, pathVar(r, "id"), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleDeactivateWorkspace(w http.ResponseWriter, r *http.Request, session Session) {
	if err := s.service.DeactivateWorkspace(r.Context(), session, pathVar(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeOK(w)
}

func (s *HTTPServer) handleInviteToWorkspace(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		UserID string `json:"userId"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	payload, err := s.service.InviteToWorkspace(r.Context(), session, pathVar(r, "id"), body.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleListBoards(w http.ResponseWriter, r *http.Request, session Session) {
	boards, err := s.service.ListBoards(r.Context(), session, pathVar(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"boards": boards})
}

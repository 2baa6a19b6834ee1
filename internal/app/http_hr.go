package app

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (s *HTTPServer) hrRoutes(api *mux.Router) {
	api.HandleFunc("/branches", s.authed(s.handleListBranches)).Methods(http.MethodGet)
	api.HandleFunc("/branches", s.authed(s.handleCreateBranch)).Methods(http.MethodPost)
	api.HandleFunc("/branches/{id}", s.authed(s.handleUpdateBranch)).Methods(http.MethodPatch)

	api.HandleFunc("/branch-offices", s.authed(s.handleListOffices)).Methods(http.MethodGet)
	api.HandleFunc("/branch-offices", s.authed(s.handleCreateOffice)).Methods(http.MethodPost)
	api.HandleFunc("/branch-offices/{id}", s.authed(s.handleUpdateOffice)).Methods(http.MethodPatch)
	api.HandleFunc("/branch-offices/{id}/deactivate", s.authed(s.handleDeactivateOffice)).Methods(http.MethodPatch)

	api.HandleFunc("/job-positions", s.authed(s.handleListJobPositions)).Methods(http.MethodGet)
	api.HandleFunc("/job-positions", s.authed(s.handleCreateJobPosition)).Methods(http.MethodPost)
	api.HandleFunc("/job-positions/{id}", s.authed(s.handleUpdateJobPosition)).Methods(http.MethodPatch)
	api.HandleFunc("/job-positions/{id}", s.authed(s.handleDeleteJobPosition)).Methods(http.MethodDelete)
	api.HandleFunc("/job-positions/{id}/deactivate", s.authed(s.handleDeactivateJobPosition)).Methods(http.MethodPatch)

	api.HandleFunc("/employees", s.authed(s.handleListEmployees)).Methods(http.MethodGet)
	api.HandleFunc("/employees", s.authed(s.handleCreateEmployee)).Methods(http.MethodPost)
	api.HandleFunc("/employees/{id}", s.authed(s.handleGetEmployee)).Methods(http.MethodGet)
	api.HandleFunc("/employees/{id}", s.authed(s.handleUpdateEmployee)).Methods(http.MethodPatch)
	api.HandleFunc("/employees/{id}/deactivate", s.authed(s.handleDeactivateEmployee)).Methods(http.MethodPatch)
}

// Branches

func (s *HTTPServer) handleListBranches(w http.ResponseWriter, r *http.Request, session Session) {
	branches, err := s.service.ListBranches(r.Context(), session)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"branches": branches})
}

func (s *HTTPServer) handleCreateBranch(w http.ResponseWriter, r *http.Request, session Session) {
	var body CreateBranchInput
	if !s.decode(w, r, &body) {
		return
	}
	payload, err := s.service.CreateBranch(r.Context(), session, body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, payload)
}

func (s *HTTPServer) handleUpdateBranch(w http.ResponseWriter, r *http.Request, session Session) {
	var body UpdateBranchInput
	if !s.decode(w, r, &body) {
		return
	}
	payload, err := s.service.UpdateBranch(r.Context(), session, pathVar(r, "id"), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// Branch offices

func (s *HTTPServer) handleListOffices(w http.ResponseWriter, r *http.Request, session Session) {
	offices, err := s.service.ListBranchOffices(r.Context(), session)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"branchOffices": offices})
}

func (s *HTTPServer) handleCreateOffice(w http.ResponseWriter, r *http.Request, session Session) {
	var body CreateOfficeInput
	if !s.decode(w, r, &body) {
		return
	}
	payload, err := s.service.CreateBranchOffice(r.Context(), session, body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, payload)
}

func (s *HTTPServer) handleUpdateOffice(w http.ResponseWriter, r *http.Request, session Session) {
	var body UpdateOfficeInput
	if !s.decode(w, r, &body) {
		return
	}
	payload, err := s.service.UpdateBranchOffice(r.Context(), session, pathVar(r, "id"), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleDeactivateOffice(w http.ResponseWriter, r *http.Request, session Session) {
	if err := s.service.DeactivateBranchOffice(r.Context(), session, pathVar(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeOK(w)
}

// Job positions

func (s *HTTPServer) handleListJobPositions(w http.ResponseWriter, r *http.Request, session Session) {
	positions, err := s.service.ListJobPositions(r.Context(), session)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobPositions": positions})
}

func (s *HTTPServer) handleCreateJobPosition(w http.ResponseWriter, r *http.Request, session Session) {
	var body CreateJobPositionInput
	if !s.decode(w, r, &body) {
		return
	}
	payload, err := s.service.CreateJobPosition(r.Context(), session, body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, payload)
}

func (s *HTTPServer) handleUpdateJobPosition(w http.ResponseWriter, r *http.Request, session Session) {
	var body UpdateJobPositionInput
	if !s.decode(w, r, &body) {
		return
	}
	payload, err := s.service.UpdateJobPosition(r.Context(), session, pathVar(r, "id"), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleDeactivateJobPosition(w http.ResponseWriter, r *http.Request, session Session) {
	if err := s.service.DeactivateJobPosition(r.Context(), session, pathVar(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeOK(w)
}

func (s *HTTPServer) handleDeleteJobPosition(w http.ResponseWriter, r *http.Request, session Session) {
	if err := s.service.DeleteJobPosition(r.Context(), session, pathVar(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeOK(w)
}

// Employees

func (s *HTTPServer) handleListEmployees(w http.ResponseWriter, r *http.Request, session Session) {
	query := r.URL.Query()
	employees, err := s.service.ListEmployees(r.Context(), session, query.Get("branchOfficeId"), query.Get("status"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"employees": employees})
}

func (s *HTTPServer) handleCreateEmployee(w http.ResponseWriter, r *http.Request, session Session) {
	var body CreateEmployeeInput
	if !s.decode(w, r, &body) {
		return
	}
	payload, err := s.service.CreateEmployee(r.Context(), session, body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, payload)
}

func (s *HTTPServer) handleGetEmployee(w http.ResponseWriter, r *http.Request, session Session) {
	payload, err := s.service.GetEmployee(r.Context(), session, pathVar(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleUpdateEmployee(w http.ResponseWriter, r *http.Request, session Session) {
	var body UpdateEmployeeInput
	if !s.decode(w, r, &body) {
		return
	}
	payload, err := s.service.UpdateEmployee(r.Context(), session, pathVar(r, "id"), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleDeactivateEmployee(w http.ResponseWriter, r *http.Request, session Session) {
	payload, err := s.service.DeactivateEmployee(r.Context(), session, pathVar(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

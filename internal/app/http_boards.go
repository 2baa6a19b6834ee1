package app

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

func (s *HTTPServer) boardRoutes(api *mux.Router) {
	// registered before /boards/{id} so the literal segment wins
	api.HandleFunc("/boards/column-types", s.authed(s.handleColumnTypes)).Methods(http.MethodGet)

	api.HandleFunc("/boards", s.authed(s.handleCreateBoard)).Methods(http.MethodPost)
	api.HandleFunc("/boards/{id}", s.authed(s.handleGetBoard)).Methods(http.MethodGet)
	api.HandleFunc("/boards/{id}", s.authed(s.handleUpdateBoard)).Methods(http.MethodPatch)
	api.HandleFunc("/boards/{id}/deactivate", s.authed(s.handleDeactivateBoard)).Methods(http.MethodPatch)
	api.HandleFunc("/boards/{id}/invite", s.authed(s.handleInviteToBoard)).Methods(http.MethodPost)

	api.HandleFunc("/boards/{id}/columns", s.authed(s.handleAddColumn)).Methods(http.MethodPost)
	api.HandleFunc("/boards/{id}/columns/{columnId}", s.authed(s.handleRemoveColumn)).Methods(http.MethodDelete)
	api.HandleFunc("/boards/{id}/reorder-columns", s.authed(s.handleReorderColumns)).Methods(http.MethodPatch)

	api.HandleFunc("/boards/{id}/items", s.authed(s.handleAddItem)).Methods(http.MethodPost)
	api.HandleFunc("/boards/{id}/items/{itemId}", s.authed(s.handleRemoveItem)).Methods(http.MethodDelete)
	api.HandleFunc("/boards/{id}/items/{itemId}/columns/{columnId}", s.authed(s.handleUpdateCell)).Methods(http.MethodPatch)
	api.HandleFunc("/boards/{id}/items/{itemId}/columns/{columnId}/uploads", s.authed(s.handlePresignUpload)).Methods(http.MethodPost)
	api.HandleFunc("/boards/{id}/reorder-items", s.authed(s.handleReorderItems)).Methods(http.MethodPatch)

	api.HandleFunc("/boards/{id}/charts", s.authed(s.handleAddChart)).Methods(http.MethodPost)
	api.HandleFunc("/boards/{id}/charts/{chartId}", s.authed(s.handleRemoveChart)).Methods(http.MethodDelete)
	api.HandleFunc("/boards/{id}/charts/{chartId}/data", s.authed(s.handleChartData)).Methods(http.MethodGet)

	api.HandleFunc("/boards/{id}/files", s.authed(s.handlePresignDownload)).Methods(http.MethodGet)
}

func (s *HTTPServer) handleColumnTypes(w http.ResponseWriter, r *http.Request, session Session) {
	if err := requireRegistered(session.Actor()); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"columnTypes": ColumnTypes()})
}

func (s *HTTPServer) handleCreateBoard(w http.ResponseWriter, r *http.Request, session Session) {
	var body CreateBoardInput
	if !s.decode(w, r, &body) {
		return
	}
	view, err := s.service.CreateBoard(r.Context(), session, body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *HTTPServer) handleGetBoard(w http.ResponseWriter, r *http.Request, session Session) {
	view, err := s.service.GetBoard(r.Context(), session, pathVar(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleUpdateBoard(w http.ResponseWriter, r *http.Request, session Session) {
	var body UpdateBoardInput
	if !s.decode(w, r, &body) {
		return
	}
	view, err := s.service.UpdateBoard(r.Context(), session, pathVar(r, "id"), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleDeactivateBoard(w http.ResponseWriter, r *http.Request, session Session) {
	if err := s.service.DeactivateBoard(r.Context(), session, pathVar(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeOK(w)
}

func (s *HTTPServer) handleInviteToBoard(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		UserID string `json:"userId"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	view, err := s.service.InviteToBoard(r.Context(), session, pathVar(r, "id"), body.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleAddColumn(w http.ResponseWriter, r *http.Request, session Session) {
	var body AddColumnInput
	if !s.decode(w, r, &body) {
		return
	}
	column, err := s.service.AddColumn(r.Context(), session, pathVar(r, "id"), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, column)
}

func (s *HTTPServer) handleRemoveColumn(w http.ResponseWriter, r *http.Request, session Session) {
	if err := s.service.RemoveColumn(r.Context(), session, pathVar(r, "id"), pathVar(r, "columnId")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeOK(w)
}

func (s *HTTPServer) handleReorderColumns(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		OrderedColumnIDs []string `json:"orderedColumnIds"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	columns, err := s.service.ReorderColumns(r.Context(), session, pathVar(r, "id"), body.OrderedColumnIDs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"columns": columns})
}

func (s *HTTPServer) handleAddItem(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		Values map[string]json.RawMessage `json:"values"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	item, err := s.service.AddItem(r.Context(), session, pathVar(r, "id"), body.Values)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// handleUpdateCell treats a missing value like null and clears the cell.
func (s *HTTPServer) handleUpdateCell(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		Value json.RawMessage `json:"value"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	item, err := s.service.UpdateCell(r.Context(), session, pathVar(r, "id"), pathVar(r, "itemId"), pathVar(r, "columnId"), body.Value)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *HTTPServer) handleRemoveItem(w http.ResponseWriter, r *http.Request, session Session) {
	if err := s.service.RemoveItem(r.Context(), session, pathVar(r, "id"), pathVar(r, "itemId")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeOK(w)
}

func (s *HTTPServer) handleReorderItems(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		OrderedItemIDs []string `json:"orderedItemIds"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	items, err := s.service.ReorderItems(r.Context(), session, pathVar(r, "id"), body.OrderedItemIDs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *HTTPServer) handleAddChart(w http.ResponseWriter, r *http.Request, session Session) {
	var body AddChartInput
	if !s.decode(w, r, &body) {
		return
	}
	chart, err := s.service.AddChart(r.Context(), session, pathVar(r, "id"), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, chart)
}

func (s *HTTPServer) handleRemoveChart(w http.ResponseWriter, r *http.Request, session Session) {
	if err := s.service.RemoveChart(r.Context(), session, pathVar(r, "id"), pathVar(r, "chartId")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeOK(w)
}

func (s *HTTPServer) handleChartData(w http.ResponseWriter, r *http.Request, session Session) {
	data, err := s.service.ChartData(r.Context(), session, pathVar(r, "id"), pathVar(r, "chartId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *HTTPServer) handlePresignUpload(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		FileName string `json:"fileName"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	upload, err := s.service.PresignUpload(r.Context(), session, pathVar(r, "id"), pathVar(r, "itemId"), pathVar(r, "columnId"), body.FileName)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, upload)
}

func (s *HTTPServer) handlePresignDownload(w http.ResponseWriter, r *http.Request, session Session) {
	url, err := s.service.PresignDownload(r.Context(), session, pathVar(r, "id"), r.URL.Query().Get("key"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"downloadUrl": url})
}

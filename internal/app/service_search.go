package app

import (
	"context"
	"strings"

	"tablero/api/internal/rbac"
	"tablero/api/internal/search"
)

const maxSearchLimit = 50

// Search queries the index and drops every hit the actor can no longer see.
// Index entries carry no access data, so each hit is checked against the
// live record.
func (s *Service) Search(ctx context.Context, session Session, text, resultType string, limit, offset int) (search.Response, error) {
	actor := session.Actor()
	if err := requireRegistered(actor); err != nil {
		return search.Response{}, err
	}
	text = strings.TrimSpace(text)
	if resultType != "" && !search.ValidResultType(resultType) {
		return search.Response{}, errValidation("type", "type must be workspace, board or employee")
	}
	if limit <= 0 || limit > maxSearchLimit {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	empty := search.Response{Results: []search.Result{}, Query: text}
	if s.search == nil || text == "" {
		return empty, nil
	}

	resp := s.search.Search(ctx, search.Query{
		Text:       text,
		FilterType: search.ResultType(resultType),
		Limit:      limit,
		Offset:     offset,
	})
	visible := make([]search.Result, 0, len(resp.Results))
	for _, hit := range resp.Results {
		if s.canSee(ctx, actor, hit) {
			visible = append(visible, hit)
		}
	}
	total := resp.Total - (len(resp.Results) - len(visible))
	if total < len(visible) {
		total = len(visible)
	}
	return search.Response{Results: visible, Total: total, Query: text}, nil
}

func (s *Service) canSee(ctx context.Context, actor rbac.Actor, hit search.Result) bool {
	switch hit.Type {
	case search.ResultWorkspace:
		_, err := s.loadWorkspace(ctx, actor, hit.ID, rbac.ActionWorkspaceRead)
		return err == nil
	case search.ResultBoard:
		b, err := s.fetchBoard(ctx, hit.ID)
		if err != nil {
			return false
		}
		return s.authorizeBoard(ctx, actor, b, rbac.ActionBoardRead) == nil
	case search.ResultEmployee:
		e, err := s.store.GetEmployee(ctx, hit.ID)
		if err != nil {
			return false
		}
		return rbac.CanManageEmployee(actor, e.BranchID)
	default:
		return false
	}
}

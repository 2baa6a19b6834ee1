package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"tablero/api/internal/email"
	"tablero/api/internal/rbac"
	"tablero/api/internal/search"
	"tablero/api/internal/store"
	"tablero/api/internal/util"
)

type CreateWorkspaceInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
	IsPrivate   bool   `json:"isPrivate"`
}

type UpdateWorkspaceInput struct {
	Name        *string `json:"name" validate:"omitempty,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	IsPrivate   *bool   `json:"isPrivate"`
}

func (s *Service) ListWorkspaces(ctx context.Context, session Session) ([]map[string]any, error) {
	actor := session.Actor()
	if err := requireRegistered(actor); err != nil {
		return nil, err
	}
	workspaces, err := s.store.ListWorkspaces(ctx, rbac.VisibilityFilter(actor))
	if err != nil {
		return nil, err
	}
	result := make([]map[string]any, 0, len(workspaces))
	for _, ws := range workspaces {
		result = append(result, workspacePayload(ws))
	}
	return result, nil
}

func (s *Service) CreateWorkspace(ctx context.Context, session Session, input CreateWorkspaceInput) (map[string]any, error) {
	actor := session.Actor()
	if !rbac.CanPerform(actor, rbac.ActionWorkspaceCreate, rbac.Target{}) {
		return nil, errForbidden()
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, errValidation("name", "workspace name is required")
	}
	now := time.Now().UTC()
	ws := store.Workspace{
		ID:           util.NewID("ws"),
		Name:         name,
		Description:  strings.TrimSpace(input.Description),
		CreatedBy:    actor.ID,
		IsPrivate:    input.IsPrivate,
		IsActive:     true,
		InvitedUsers: []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateWorkspace(ctx, ws); err != nil {
		return nil, err
	}
	s.indexWorkspace(ws)
	s.log.WithFields(logrus.Fields{"workspace_id": ws.ID, "actor_id": actor.ID}).Info("workspace created")
	return workspacePayload(ws), nil
}

// loadWorkspace resolves an active workspace and checks action against it.
func (s *Service) loadWorkspace(ctx context.Context, actor rbac.Actor, workspaceID string, action rbac.Action) (store.Workspace, error) {
	ws, err := s.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Workspace{}, errNotFound("Workspace")
		}
		return store.Workspace{}, err
	}
	if !rbac.CanPerform(actor, action, rbac.Target{Resource: ws.AccessResource()}) {
		return store.Workspace{}, errForbidden()
	}
	return ws, nil
}

// GetWorkspace includes the boards of the workspace the actor may see.
func (s *Service) GetWorkspace(ctx context.Context, session Session, workspaceID string) (map[string]any, error) {
	actor := session.Actor()
	ws, err := s.loadWorkspace(ctx, actor, workspaceID, rbac.ActionWorkspaceRead)
	if err != nil {
		return nil, err
	}
	boards, err := s.boards.ListBoardsByWorkspace(ctx, ws.ID, rbac.VisibilityFilter(actor))
	if err != nil {
		return nil, err
	}
	payload := workspacePayload(ws)
	summaries := make([]map[string]any, 0, len(boards))
	for _, b := range boards {
		summaries = append(summaries, boardSummary(b))
	}
	payload["boards"] = summaries
	return payload, nil
}

func (s *Service) UpdateWorkspace(ctx context.Context, session Session, workspaceID string, input UpdateWorkspaceInput) (map[string]any, error) {
	actor := session.Actor()
	ws, err := s.loadWorkspace(ctx, actor, workspaceID, rbac.ActionWorkspaceUpdate)
	if err != nil {
		return nil, err
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, errValidation("name", "workspace name is required")
		}
		ws.Name = name
	}
	if input.Description != nil {
		ws.Description = strings.TrimSpace(*input.Description)
	}
	if input.IsPrivate != nil {
		ws.IsPrivate = *input.IsPrivate
	}
	ws.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateWorkspace(ctx, ws); err != nil {
		return nil, err
	}
	s.indexWorkspace(ws)
	return workspacePayload(ws), nil
}

func (s *Service) DeactivateWorkspace(ctx context.Context, session Session, workspaceID string) error {
	actor := session.Actor()
	ws, err := s.loadWorkspace(ctx, actor, workspaceID, rbac.ActionWorkspaceDeactivate)
	if err != nil {
		return err
	}
	if err := s.store.DeactivateWorkspace(ctx, ws.ID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.Delete(search.ResultWorkspace, ws.ID)
	}
	s.log.WithFields(logrus.Fields{"workspace_id": ws.ID, "actor_id": actor.ID}).Info("workspace deactivated")
	return nil
}

func (s *Service) InviteToWorkspace(ctx context.Context, session Session, workspaceID, userID string) (map[string]any, error) {
	actor := session.Actor()
	ws, err := s.loadWorkspace(ctx, actor, workspaceID, rbac.ActionWorkspaceInvite)
	if err != nil {
		return nil, err
	}
	invitee, err := s.lookupInvitee(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.store.AddWorkspaceInvite(ctx, ws.ID, invitee.ID); err != nil {
		return nil, err
	}
	ws.InvitedUsers = append(ws.InvitedUsers, invitee.ID)
	s.log.WithFields(logrus.Fields{"workspace_id": ws.ID, "user_id": invitee.ID, "actor_id": actor.ID}).Info("workspace invitation added")
	s.sendInvitation(invitee, session.User.Name, "espacio de trabajo", ws.Name, s.frontendURL("/workspaces/"+ws.ID))
	return workspacePayload(ws), nil
}

func (s *Service) lookupInvitee(ctx context.Context, userID string) (store.User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return store.User{}, errValidation("userId", "user id is required")
	}
	invitee, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return store.User{}, referenceError(err, "userId", "user not found")
	}
	if !invitee.IsActive {
		return store.User{}, errValidation("userId", "user is deactivated")
	}
	return invitee, nil
}

// sendInvitation mails in the background; failures are only logged.
func (s *Service) sendInvitation(invitee store.User, inviterName, targetKind, targetName, targetURL string) {
	if !s.SMTPConfigured() {
		return
	}
	data := email.InvitationData{
		UserName:    invitee.Name,
		InviterName: inviterName,
		TargetKind:  targetKind,
		TargetName:  targetName,
		TargetURL:   targetURL,
	}
	go func() {
		if err := s.mailer.SendInvitationEmail(invitee.Email, data); err != nil {
			s.log.WithError(err).WithField("user_id", invitee.ID).Warn("invitation email failed")
		}
	}()
}

func (s *Service) indexWorkspace(ws store.Workspace) {
	if s.search == nil {
		return
	}
	s.search.IndexWorkspace(search.WorkspaceRecord{ID: ws.ID, Name: ws.Name, Description: ws.Description})
}

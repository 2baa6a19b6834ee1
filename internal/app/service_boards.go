package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"tablero/api/internal/attachments"
	"tablero/api/internal/board"
	"tablero/api/internal/rbac"
	"tablero/api/internal/search"
	"tablero/api/internal/util"
)

// maxSaveAttempts bounds the reload-and-retry loop on version conflicts.
const maxSaveAttempts = 3

type CreateBoardInput struct {
	WorkspaceID string `json:"workspaceId" validate:"required"`
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
	IsPrivate   bool   `json:"isPrivate"`
}

type UpdateBoardInput struct {
	Name        *string `json:"name" validate:"omitempty,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	IsPrivate   *bool   `json:"isPrivate"`
}

type AddColumnInput struct {
	Name   string             `json:"name" validate:"required,max=100"`
	Type   board.ColumnType   `json:"type" validate:"required"`
	Config board.ColumnConfig `json:"config"`
	Order  *int               `json:"order" validate:"omitempty,min=1"`
}

type AddChartInput struct {
	Title      string           `json:"title" validate:"required,max=100"`
	Type       board.ChartType  `json:"type" validate:"required"`
	DataSource board.DataSource `json:"dataSource"`
	Config     map[string]any   `json:"config"`
}

func ColumnTypes() []map[string]any {
	types := board.ColumnTypes()
	out := make([]map[string]any, 0, len(types))
	for _, t := range types {
		out = append(out, map[string]any{"type": t})
	}
	return out
}

func (s *Service) ListBoards(ctx context.Context, session Session, workspaceID string) ([]map[string]any, error) {
	actor := session.Actor()
	ws, err := s.loadWorkspace(ctx, actor, workspaceID, rbac.ActionWorkspaceRead)
	if err != nil {
		return nil, err
	}
	boards, err := s.boards.ListBoardsByWorkspace(ctx, ws.ID, rbac.VisibilityFilter(actor))
	if err != nil {
		return nil, err
	}
	result := make([]map[string]any, 0, len(boards))
	for _, b := range boards {
		result = append(result, boardSummary(b))
	}
	return result, nil
}

func (s *Service) CreateBoard(ctx context.Context, session Session, input CreateBoardInput) (BoardView, error) {
	actor := session.Actor()
	if err := requireRegistered(actor); err != nil {
		return BoardView{}, err
	}
	if err := validateInput(input); err != nil {
		return BoardView{}, err
	}
	ws, err := s.loadWorkspace(ctx, actor, input.WorkspaceID, rbac.ActionBoardCreate)
	if err != nil {
		return BoardView{}, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return BoardView{}, errValidation("name", "board name is required")
	}
	now := time.Now().UTC()
	b := &board.Board{
		ID:           util.NewID("brd"),
		WorkspaceID:  ws.ID,
		Name:         name,
		Description:  strings.TrimSpace(input.Description),
		CreatedBy:    actor.ID,
		IsPrivate:    input.IsPrivate,
		IsActive:     true,
		InvitedUsers: []string{},
		Columns:      []board.Column{},
		Items:        []board.Item{},
		Charts:       []board.Chart{},
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.boards.CreateBoard(ctx, b); err != nil {
		return BoardView{}, err
	}
	s.indexBoard(b)
	s.log.WithFields(logrus.Fields{"board_id": b.ID, "workspace_id": ws.ID, "actor_id": actor.ID}).Info("board created")
	return boardView(b), nil
}

// fetchBoard collapses concurrent loads of the same board. The result is
// shared between callers and must not be mutated.
func (s *Service) fetchBoard(ctx context.Context, boardID string) (*board.Board, error) {
	v, err, _ := s.reads.Do(boardID, func() (any, error) {
		return s.boards.GetBoard(ctx, boardID)
	})
	if err != nil {
		return nil, boardLookupError(err)
	}
	b := v.(*board.Board)
	if !b.IsActive {
		return nil, errNotFound("Board")
	}
	return b, nil
}

func boardLookupError(err error) error {
	if errors.Is(err, sql.ErrNoRows) || board.IsNotFound(err) {
		return errNotFound("Board")
	}
	return err
}

// authorizeBoard requires access to the parent workspace and then action on
// the board itself.
func (s *Service) authorizeBoard(ctx context.Context, actor rbac.Actor, b *board.Board, action rbac.Action) error {
	if _, err := s.loadWorkspace(ctx, actor, b.WorkspaceID, rbac.ActionWorkspaceRead); err != nil {
		var domainErr *DomainError
		if errors.As(err, &domainErr) && domainErr.Status == http.StatusNotFound {
			return errNotFound("Board")
		}
		return err
	}
	if !rbac.CanPerform(actor, action, rbac.Target{Resource: b.AccessResource()}) {
		return errForbidden()
	}
	return nil
}

func (s *Service) readBoard(ctx context.Context, session Session, boardID string, action rbac.Action) (*board.Board, error) {
	b, err := s.fetchBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeBoard(ctx, session.Actor(), b, action); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Service) GetBoard(ctx context.Context, session Session, boardID string) (BoardView, error) {
	b, err := s.readBoard(ctx, session, boardID, rbac.ActionBoardRead)
	if err != nil {
		return BoardView{}, err
	}
	return boardView(b), nil
}

// mutateBoard runs a structural change under the board lock: load, authorize,
// apply to a clone, save with version CAS. Conflicts reload and retry.
func (s *Service) mutateBoard(ctx context.Context, session Session, boardID string, action rbac.Action, apply func(*board.Board) error) (*board.Board, error) {
	unlock, err := s.locker.Lock(ctx, boardID)
	if err != nil {
		return nil, fmt.Errorf("lock board: %w", err)
	}
	defer unlock()

	actor := session.Actor()
	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		current, err := s.boards.GetBoard(ctx, boardID)
		if err != nil {
			return nil, boardLookupError(err)
		}
		if !current.IsActive {
			return nil, errNotFound("Board")
		}
		if err := s.authorizeBoard(ctx, actor, current, action); err != nil {
			return nil, err
		}
		next := current.Clone()
		if err := apply(next); err != nil {
			return nil, err
		}
		if err := next.Validate(); err != nil {
			return nil, fmt.Errorf("board %s invariant: %w", boardID, err)
		}
		err = s.boards.SaveBoard(ctx, next, current.Version)
		if err == nil {
			s.reads.Forget(boardID)
			return next, nil
		}
		if !errors.Is(err, board.ErrVersionConflict) {
			return nil, err
		}
		s.log.WithFields(logrus.Fields{"board_id": boardID, "attempt": attempt}).Warn("board version conflict, retrying")
	}
	return nil, errConflict("The board was modified concurrently, please retry")
}

func (s *Service) UpdateBoard(ctx context.Context, session Session, boardID string, input UpdateBoardInput) (BoardView, error) {
	if err := validateInput(input); err != nil {
		return BoardView{}, err
	}
	b, err := s.mutateBoard(ctx, session, boardID, rbac.ActionBoardUpdate, func(b *board.Board) error {
		return b.UpdateDetails(input.Name, input.Description, input.IsPrivate)
	})
	if err != nil {
		return BoardView{}, err
	}
	s.indexBoard(b)
	return boardView(b), nil
}

func (s *Service) DeactivateBoard(ctx context.Context, session Session, boardID string) error {
	_, err := s.mutateBoard(ctx, session, boardID, rbac.ActionBoardDeactivate, func(b *board.Board) error {
		b.Deactivate()
		return nil
	})
	if err != nil {
		return err
	}
	if s.search != nil {
		s.search.Delete(search.ResultBoard, boardID)
	}
	s.log.WithFields(logrus.Fields{"board_id": boardID, "actor_id": session.User.ID}).Info("board deactivated")
	return nil
}

func (s *Service) InviteToBoard(ctx context.Context, session Session, boardID, userID string) (BoardView, error) {
	invitee, err := s.lookupInvitee(ctx, userID)
	if err != nil {
		return BoardView{}, err
	}
	b, err := s.mutateBoard(ctx, session, boardID, rbac.ActionBoardInvite, func(b *board.Board) error {
		return b.Invite(invitee.ID)
	})
	if err != nil {
		return BoardView{}, err
	}
	s.log.WithFields(logrus.Fields{"board_id": b.ID, "user_id": invitee.ID, "actor_id": session.User.ID}).Info("board invitation added")
	s.sendInvitation(invitee, session.User.Name, "tablero", b.Name, s.frontendURL("/boards/"+b.ID))
	return boardView(b), nil
}

func (s *Service) AddColumn(ctx context.Context, session Session, boardID string, input AddColumnInput) (board.Column, error) {
	if err := validateInput(input); err != nil {
		return board.Column{}, err
	}
	var column board.Column
	_, err := s.mutateBoard(ctx, session, boardID, rbac.ActionColumnAdd, func(b *board.Board) error {
		col, err := b.AddColumn(input.Name, input.Type, input.Config, input.Order)
		column = col
		return err
	})
	if err != nil {
		return board.Column{}, err
	}
	return column, nil
}

func (s *Service) RemoveColumn(ctx context.Context, session Session, boardID, columnID string) error {
	_, err := s.mutateBoard(ctx, session, boardID, rbac.ActionColumnRemove, func(b *board.Board) error {
		return b.RemoveColumn(columnID)
	})
	if err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"board_id": boardID, "column_id": columnID, "actor_id": session.User.ID}).Info("column removed")
	return nil
}

func (s *Service) ReorderColumns(ctx context.Context, session Session, boardID string, orderedIDs []string) ([]board.Column, error) {
	b, err := s.mutateBoard(ctx, session, boardID, rbac.ActionColumnReorder, func(b *board.Board) error {
		return b.ReorderColumns(orderedIDs)
	})
	if err != nil {
		return nil, err
	}
	return b.Columns, nil
}

func (s *Service) AddItem(ctx context.Context, session Session, boardID string, values map[string]json.RawMessage) (ItemView, error) {
	var item board.Item
	b, err := s.mutateBoard(ctx, session, boardID, rbac.ActionItemCreate, func(b *board.Board) error {
		added, err := b.AddItem(values, session.User.ID)
		item = added
		return err
	})
	if err != nil {
		return ItemView{}, err
	}
	return itemView(b, item), nil
}

// UpdateCell writes one cell through the targeted store path without the board
// lock. The store bumps the board version with the cell, so a structural change
// that loaded the board earlier conflicts and retries on fresh data.
func (s *Service) UpdateCell(ctx context.Context, session Session, boardID, itemID, columnID string, raw json.RawMessage) (ItemView, error) {
	current, err := s.boards.GetBoard(ctx, boardID)
	if err != nil {
		return ItemView{}, boardLookupError(err)
	}
	if !current.IsActive {
		return ItemView{}, errNotFound("Board")
	}
	if err := s.authorizeBoard(ctx, session.Actor(), current, rbac.ActionItemUpdate); err != nil {
		return ItemView{}, err
	}
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	next := current.Clone()
	change, err := next.UpdateCell(itemID, columnID, raw, session.User.ID)
	if err != nil {
		return ItemView{}, err
	}
	if err := s.boards.UpdateItemCell(ctx, boardID, change, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ItemView{}, errNotFound("Item or column")
		}
		return ItemView{}, err
	}
	s.reads.Forget(boardID)
	item, _ := next.Item(itemID)
	return itemView(next, item), nil
}

func (s *Service) RemoveItem(ctx context.Context, session Session, boardID, itemID string) error {
	_, err := s.mutateBoard(ctx, session, boardID, rbac.ActionItemRemove, func(b *board.Board) error {
		return b.RemoveItem(itemID)
	})
	return err
}

func (s *Service) ReorderItems(ctx context.Context, session Session, boardID string, orderedIDs []string) ([]board.Item, error) {
	b, err := s.mutateBoard(ctx, session, boardID, rbac.ActionItemReorder, func(b *board.Board) error {
		return b.ReorderItems(orderedIDs)
	})
	if err != nil {
		return nil, err
	}
	return b.Items, nil
}

func (s *Service) AddChart(ctx context.Context, session Session, boardID string, input AddChartInput) (board.Chart, error) {
	if err := validateInput(input); err != nil {
		return board.Chart{}, err
	}
	var chart board.Chart
	_, err := s.mutateBoard(ctx, session, boardID, rbac.ActionChartAdd, func(b *board.Board) error {
		added, err := b.AddChart(input.Title, input.Type, input.DataSource, input.Config)
		chart = added
		return err
	})
	if err != nil {
		return board.Chart{}, err
	}
	return chart, nil
}

func (s *Service) RemoveChart(ctx context.Context, session Session, boardID, chartID string) error {
	_, err := s.mutateBoard(ctx, session, boardID, rbac.ActionChartRemove, func(b *board.Board) error {
		return b.RemoveChart(chartID)
	})
	return err
}

func (s *Service) ChartData(ctx context.Context, session Session, boardID, chartID string) (board.ChartData, error) {
	b, err := s.readBoard(ctx, session, boardID, rbac.ActionBoardRead)
	if err != nil {
		return board.ChartData{}, err
	}
	return board.ComputeChart(b, chartID)
}

func (s *Service) uploadsEnabled() error {
	if s.files == nil {
		return domainError(http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "File storage is not configured", nil)
	}
	return nil
}

// PresignUpload hands out a PUT URL for a FILES cell. The client records the
// returned key in the cell afterwards.
func (s *Service) PresignUpload(ctx context.Context, session Session, boardID, itemID, columnID, fileName string) (attachments.Upload, error) {
	if err := s.uploadsEnabled(); err != nil {
		return attachments.Upload{}, err
	}
	if strings.TrimSpace(fileName) == "" {
		return attachments.Upload{}, errValidation("fileName", "file name is required")
	}
	b, err := s.readBoard(ctx, session, boardID, rbac.ActionItemUpdate)
	if err != nil {
		return attachments.Upload{}, err
	}
	if _, ok := b.Item(itemID); !ok {
		return attachments.Upload{}, &board.NotFoundError{Kind: "item", ID: itemID}
	}
	col, ok := b.Column(columnID)
	if !ok {
		return attachments.Upload{}, &board.NotFoundError{Kind: "column", ID: columnID}
	}
	if col.Type != board.TypeFiles {
		return attachments.Upload{}, errValidation("columnId", "column is not a FILES column")
	}
	return s.files.PresignUpload(ctx, b.ID, itemID, columnID, fileName)
}

func (s *Service) PresignDownload(ctx context.Context, session Session, boardID, key string) (string, error) {
	if err := s.uploadsEnabled(); err != nil {
		return "", err
	}
	if strings.TrimSpace(key) == "" {
		return "", errValidation("key", "key is required")
	}
	b, err := s.readBoard(ctx, session, boardID, rbac.ActionBoardRead)
	if err != nil {
		return "", err
	}
	return s.files.PresignDownload(ctx, b.ID, key)
}

func (s *Service) indexBoard(b *board.Board) {
	if s.search == nil {
		return
	}
	s.search.IndexBoard(search.BoardRecord{ID: b.ID, WorkspaceID: b.WorkspaceID, Name: b.Name, Description: b.Description})
}

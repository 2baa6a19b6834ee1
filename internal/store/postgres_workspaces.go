package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"

	"tablero/api/internal/rbac"
)

const workspaceColumns = `w.id, w.name, w.description, w.created_by, w.is_private, w.is_active, w.created_at, w.updated_at,
	COALESCE((SELECT array_agg(wi.user_id ORDER BY wi.invited_at) FROM workspace_invites wi WHERE wi.workspace_id = w.id), '{}')`

func scanWorkspace(row rowScanner) (Workspace, error) {
	var ws Workspace
	types := pgtype.NewMap()
	err := row.Scan(&ws.ID, &ws.Name, &ws.Description, &ws.CreatedBy, &ws.IsPrivate, &ws.IsActive,
		&ws.CreatedAt, &ws.UpdatedAt, types.SQLScanner(&ws.InvitedUsers))
	if err != nil {
		return Workspace{}, err
	}
	return ws, nil
}

func (s *PostgresStore) CreateWorkspace(ctx context.Context, ws Workspace) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workspaces (id, name, description, created_by, is_private, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
	`, ws.ID, ws.Name, ws.Description, ws.CreatedBy, ws.IsPrivate)
	if err != nil {
		return fmt.Errorf("insert workspace: %w", classify(err))
	}
	return nil
}

// GetWorkspace returns active workspaces only.
func (s *PostgresStore) GetWorkspace(ctx context.Context, workspaceID string) (Workspace, error) {
	return scanWorkspace(s.db.QueryRowContext(ctx, `
		SELECT `+workspaceColumns+` FROM workspaces w WHERE w.id=$1 AND w.is_active
	`, workspaceID))
}

func (s *PostgresStore) ListWorkspaces(ctx context.Context, filter rbac.ListFilter) ([]Workspace, error) {
	query := `SELECT ` + workspaceColumns + ` FROM workspaces w WHERE w.is_active`
	args := []any{}
	if filter.Restricted {
		query += ` AND (NOT w.is_private OR w.created_by = $1
			OR EXISTS (SELECT 1 FROM workspace_invites wi WHERE wi.workspace_id = w.id AND wi.user_id = $1))`
		args = append(args, filter.ActorID)
	}
	query += ` ORDER BY w.created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer rows.Close()

	items := make([]Workspace, 0)
	for rows.Next() {
		ws, err := scanWorkspace(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		items = append(items, ws)
	}
	return items, rows.Err()
}

func (s *PostgresStore) UpdateWorkspace(ctx context.Context, ws Workspace) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE workspaces SET name=$2, description=$3, is_private=$4, updated_at=NOW()
		WHERE id=$1 AND is_active
	`, ws.ID, ws.Name, ws.Description, ws.IsPrivate)
	if err != nil {
		return fmt.Errorf("update workspace: %w", err)
	}
	return expectRow(result)
}

func (s *PostgresStore) DeactivateWorkspace(ctx context.Context, workspaceID string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE workspaces SET is_active=FALSE, updated_at=NOW() WHERE id=$1 AND is_active`, workspaceID)
	if err != nil {
		return fmt.Errorf("deactivate workspace: %w", err)
	}
	return expectRow(result)
}

func (s *PostgresStore) AddWorkspaceInvite(ctx context.Context, workspaceID, userID string) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO workspace_invites (workspace_id, user_id) VALUES ($1, $2)
		ON CONFLICT (workspace_id, user_id) DO NOTHING
	`, workspaceID, userID)
	if err != nil {
		return fmt.Errorf("invite to workspace: %w", classify(err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrAlreadyInvited
	}
	return nil
}

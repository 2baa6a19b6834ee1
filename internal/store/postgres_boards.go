package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"tablero/api/internal/board"
	"tablero/api/internal/rbac"
)

const boardColumns = `b.id, b.workspace_id, b.name, b.description, b.created_by, b.is_private, b.is_active,
	b.version, b.created_at, b.updated_at,
	COALESCE((SELECT array_agg(bi.user_id ORDER BY bi.position) FROM board_invites bi WHERE bi.board_id = b.id), '{}')`

func scanBoard(row rowScanner) (*board.Board, error) {
	b := &board.Board{}
	types := pgtype.NewMap()
	err := row.Scan(&b.ID, &b.WorkspaceID, &b.Name, &b.Description, &b.CreatedBy, &b.IsPrivate, &b.IsActive,
		&b.Version, &b.CreatedAt, &b.UpdatedAt, types.SQLScanner(&b.InvitedUsers))
	if err != nil {
		return nil, err
	}
	b.Columns = make([]board.Column, 0)
	b.Items = make([]board.Item, 0)
	b.Charts = make([]board.Chart, 0)
	return b, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) CreateBoard(ctx context.Context, b *board.Board) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create board tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO boards (id, workspace_id, name, description, created_by, is_private, is_active, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, b.ID, b.WorkspaceID, b.Name, b.Description, b.CreatedBy, b.IsPrivate, b.IsActive, b.Version, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert board: %w", classify(err))
	}
	if err := writeBoardChildren(ctx, tx, b); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create board: %w", err)
	}
	return nil
}

// GetBoard loads the whole aggregate, including deactivated boards.
func (s *PostgresStore) GetBoard(ctx context.Context, boardID string) (*board.Board, error) {
	b, err := scanBoard(s.db.QueryRowContext(ctx, `SELECT `+boardColumns+` FROM boards b WHERE b.id=$1`, boardID))
	if err != nil {
		return nil, err
	}
	if err := s.loadColumns(ctx, b); err != nil {
		return nil, err
	}
	if err := s.loadItems(ctx, b); err != nil {
		return nil, err
	}
	if err := s.loadCharts(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *PostgresStore) loadColumns(ctx context.Context, b *board.Board) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, position, config FROM board_columns WHERE board_id=$1 ORDER BY position ASC
	`, b.ID)
	if err != nil {
		return fmt.Errorf("list board columns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			col    board.Column
			config []byte
		)
		if err := rows.Scan(&col.ID, &col.Name, &col.Type, &col.Order, &config); err != nil {
			return fmt.Errorf("scan board column: %w", err)
		}
		if err := json.Unmarshal(config, &col.Config); err != nil {
			return fmt.Errorf("decode column config: %w", err)
		}
		b.Columns = append(b.Columns, col)
	}
	return rows.Err()
}

func (s *PostgresStore) loadItems(ctx context.Context, b *board.Board) error {
	types := make(map[string]board.ColumnType, len(b.Columns))
	for _, c := range b.Columns {
		types[c.ID] = c.Type
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, position, cell_values, created_by, updated_by, created_at, updated_at
		FROM board_items WHERE board_id=$1 ORDER BY position ASC
	`, b.ID)
	if err != nil {
		return fmt.Errorf("list board items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item board.Item
			raw  []byte
		)
		if err := rows.Scan(&item.ID, &item.Order, &raw, &item.CreatedBy, &item.UpdatedBy, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return fmt.Errorf("scan board item: %w", err)
		}
		values, err := DecodeCellValues(raw, types)
		if err != nil {
			return fmt.Errorf("decode item %s values: %w", item.ID, err)
		}
		item.Values = values
		b.Items = append(b.Items, item)
	}
	return rows.Err()
}

func (s *PostgresStore) loadCharts(ctx context.Context, b *board.Board) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, type, data_source, config FROM board_charts WHERE board_id=$1 ORDER BY position ASC
	`, b.ID)
	if err != nil {
		return fmt.Errorf("list board charts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			chart            board.Chart
			dataSource, conf []byte
		)
		if err := rows.Scan(&chart.ID, &chart.Title, &chart.Type, &dataSource, &conf); err != nil {
			return fmt.Errorf("scan board chart: %w", err)
		}
		if err := json.Unmarshal(dataSource, &chart.DataSource); err != nil {
			return fmt.Errorf("decode chart data source: %w", err)
		}
		if err := json.Unmarshal(conf, &chart.Config); err != nil {
			return fmt.Errorf("decode chart config: %w", err)
		}
		b.Charts = append(b.Charts, chart)
	}
	return rows.Err()
}

// DecodeCellValues turns stored cell JSON into typed values. Keys of removed
// columns and undecodable values are dropped.
func DecodeCellValues(raw []byte, types map[string]board.ColumnType) (map[string]board.Value, error) {
	values := make(map[string]board.Value)
	if len(raw) == 0 {
		return values, nil
	}
	var cells map[string]json.RawMessage
	if err := json.Unmarshal(raw, &cells); err != nil {
		return nil, err
	}
	for columnID, cell := range cells {
		t, ok := types[columnID]
		if !ok || board.IsNull(cell) {
			continue
		}
		v, err := board.LoadValue(t, cell)
		if err != nil {
			continue
		}
		values[columnID] = v
	}
	return values, nil
}

func (s *PostgresStore) ListBoardsByWorkspace(ctx context.Context, workspaceID string, filter rbac.ListFilter) ([]*board.Board, error) {
	query := `SELECT ` + boardColumns + ` FROM boards b WHERE b.workspace_id=$1 AND b.is_active`
	args := []any{workspaceID}
	if filter.Restricted {
		query += ` AND (NOT b.is_private OR b.created_by = $2
			OR EXISTS (SELECT 1 FROM board_invites bi WHERE bi.board_id = b.id AND bi.user_id = $2))`
		args = append(args, filter.ActorID)
	}
	query += ` ORDER BY b.created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	defer rows.Close()

	boards := make([]*board.Board, 0)
	for rows.Next() {
		b, err := scanBoard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan board: %w", err)
		}
		boards = append(boards, b)
	}
	return boards, rows.Err()
}

// SaveBoard replaces the aggregate if nobody saved it since expectedVersion was read.
func (s *PostgresStore) SaveBoard(ctx context.Context, b *board.Board, expectedVersion int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save board tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE boards
		SET name=$3, description=$4, is_private=$5, is_active=$6, updated_at=$7, version=version+1
		WHERE id=$1 AND version=$2
	`, b.ID, expectedVersion, b.Name, b.Description, b.IsPrivate, b.IsActive, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update board: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return board.ErrVersionConflict
	}

	for _, table := range []string{"board_invites", "board_charts", "board_items", "board_columns"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE board_id=$1`, b.ID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	if err := writeBoardChildren(ctx, tx, b); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save board: %w", err)
	}
	b.Version = expectedVersion + 1
	return nil
}

func writeBoardChildren(ctx context.Context, tx execer, b *board.Board) error {
	for i, userID := range b.InvitedUsers {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO board_invites (board_id, user_id, position) VALUES ($1, $2, $3)
		`, b.ID, userID, i+1); err != nil {
			return fmt.Errorf("insert board invite: %w", classify(err))
		}
	}
	for _, col := range b.Columns {
		config, err := json.Marshal(col.Config)
		if err != nil {
			return fmt.Errorf("encode column config: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO board_columns (id, board_id, name, type, position, config) VALUES ($1, $2, $3, $4, $5, $6)
		`, col.ID, b.ID, col.Name, string(col.Type), col.Order, config); err != nil {
			return fmt.Errorf("insert board column: %w", err)
		}
	}
	for _, item := range b.Items {
		values, err := json.Marshal(item.Values)
		if err != nil {
			return fmt.Errorf("encode item values: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO board_items (id, board_id, position, cell_values, created_by, updated_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, item.ID, b.ID, item.Order, values, item.CreatedBy, item.UpdatedBy, item.CreatedAt, item.UpdatedAt); err != nil {
			return fmt.Errorf("insert board item: %w", err)
		}
	}
	for i, chart := range b.Charts {
		dataSource, err := json.Marshal(chart.DataSource)
		if err != nil {
			return fmt.Errorf("encode chart data source: %w", err)
		}
		config, err := json.Marshal(chart.Config)
		if err != nil {
			return fmt.Errorf("encode chart config: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO board_charts (id, board_id, position, title, type, data_source, config)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, chart.ID, b.ID, i+1, chart.Title, string(chart.Type), dataSource, config); err != nil {
			return fmt.Errorf("insert board chart: %w", err)
		}
	}
	return nil
}

// UpdateItemCell writes one cell in place and bumps the board version in the
// same transaction, so a structural save loaded before the edit fails its
// version check instead of overwriting the cell. It fails with sql.ErrNoRows
// when the item or the column is gone.
func (s *PostgresStore) UpdateItemCell(ctx context.Context, boardID string, change board.CellChange, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cell update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var result sql.Result
	if change.Cleared {
		result, err = tx.ExecContext(ctx, `
			UPDATE board_items
			SET cell_values = cell_values - $3::text, updated_by=$4, updated_at=$5
			WHERE board_id=$1 AND id=$2
				AND EXISTS (SELECT 1 FROM board_columns WHERE board_id=$1 AND id=$3)
		`, boardID, change.ItemID, change.ColumnID, change.UpdatedBy, at)
	} else {
		raw, merr := json.Marshal(change.Value)
		if merr != nil {
			return fmt.Errorf("encode cell value: %w", merr)
		}
		result, err = tx.ExecContext(ctx, `
			UPDATE board_items
			SET cell_values = jsonb_set(cell_values, ARRAY[$3::text], $6::jsonb, true), updated_by=$4, updated_at=$5
			WHERE board_id=$1 AND id=$2
				AND EXISTS (SELECT 1 FROM board_columns WHERE board_id=$1 AND id=$3)
		`, boardID, change.ItemID, change.ColumnID, change.UpdatedBy, at, string(raw))
	}
	if err != nil {
		return fmt.Errorf("update item cell: %w", err)
	}
	if err := expectRow(result); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE boards SET version=version+1, updated_at=$2 WHERE id=$1`, boardID, at); err != nil {
		return fmt.Errorf("bump board version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cell update: %w", err)
	}
	return nil
}

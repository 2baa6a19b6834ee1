package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
// It sees boards only when they live in Postgres.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

const tsQuery = "plainto_tsquery('spanish', $1)"

// Search runs a UNION ALL over the searchable tables. The tsvector expressions
// match the GIN indexes from the search migration.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	var subQueries []string
	if q.FilterType == "" || q.FilterType == ResultWorkspace {
		vec := "to_tsvector('spanish', w.name || ' ' || w.description)"
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'workspace'::text AS type, w.id, w.name AS title,
				ts_headline('spanish', w.description, %[1]s, 'MaxFragments=1,MaxWords=30') AS snippet,
				w.id AS workspace_id,
				ts_rank(%[2]s, %[1]s) AS rank
			FROM workspaces w
			WHERE w.is_active AND %[2]s @@ %[1]s`, tsQuery, vec))
	}
	if q.FilterType == "" || q.FilterType == ResultBoard {
		vec := "to_tsvector('spanish', b.name || ' ' || b.description)"
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'board'::text AS type, b.id, b.name AS title,
				ts_headline('spanish', b.description, %[1]s, 'MaxFragments=1,MaxWords=30') AS snippet,
				b.workspace_id,
				ts_rank(%[2]s, %[1]s) AS rank
			FROM boards b
			WHERE b.is_active AND %[2]s @@ %[1]s`, tsQuery, vec))
	}
	if q.FilterType == "" || q.FilterType == ResultEmployee {
		vec := "to_tsvector('spanish', e.name || ' ' || e.last_name || ' ' || e.employee_code)"
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'employee'::text AS type, e.id, e.name || ' ' || e.last_name AS title,
				e.employee_code AS snippet,
				''::text AS workspace_id,
				ts_rank(%[2]s, %[1]s) AS rank
			FROM employees e
			WHERE %[2]s @@ %[1]s`, tsQuery, vec))
	}
	if len(subQueries) == 0 {
		return nil, 0, nil
	}
	union := strings.Join(subQueries, " UNION ALL ")

	var total int
	if err := p.db.QueryRowContext(ctx, "SELECT count(*) FROM ("+union+") sub", q.Text).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`SELECT type, id, title, snippet, workspace_id
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`, union, limit, offset), q.Text)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0)
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.WorkspaceID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every searchable record for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) (Records, error) {
	var out Records

	wsRows, err := p.db.QueryContext(ctx, `SELECT id, name, description FROM workspaces WHERE is_active`)
	if err != nil {
		return Records{}, fmt.Errorf("load workspaces: %w", err)
	}
	defer wsRows.Close()
	out.Workspaces = make([]WorkspaceRecord, 0)
	for wsRows.Next() {
		var r WorkspaceRecord
		if err := wsRows.Scan(&r.ID, &r.Name, &r.Description); err != nil {
			return Records{}, fmt.Errorf("scan workspace: %w", err)
		}
		out.Workspaces = append(out.Workspaces, r)
	}
	if err := wsRows.Err(); err != nil {
		return Records{}, fmt.Errorf("iterate workspaces: %w", err)
	}

	boardRows, err := p.db.QueryContext(ctx, `SELECT id, workspace_id, name, description FROM boards WHERE is_active`)
	if err != nil {
		return Records{}, fmt.Errorf("load boards: %w", err)
	}
	defer boardRows.Close()
	out.Boards = make([]BoardRecord, 0)
	for boardRows.Next() {
		var r BoardRecord
		if err := boardRows.Scan(&r.ID, &r.WorkspaceID, &r.Name, &r.Description); err != nil {
			return Records{}, fmt.Errorf("scan board: %w", err)
		}
		out.Boards = append(out.Boards, r)
	}
	if err := boardRows.Err(); err != nil {
		return Records{}, fmt.Errorf("iterate boards: %w", err)
	}

	empRows, err := p.db.QueryContext(ctx, `SELECT id, employee_code, name, last_name, branch_office_id FROM employees`)
	if err != nil {
		return Records{}, fmt.Errorf("load employees: %w", err)
	}
	defer empRows.Close()
	out.Employees = make([]EmployeeRecord, 0)
	for empRows.Next() {
		var r EmployeeRecord
		if err := empRows.Scan(&r.ID, &r.EmployeeCode, &r.Name, &r.LastName, &r.BranchOfficeID); err != nil {
			return Records{}, fmt.Errorf("scan employee: %w", err)
		}
		out.Employees = append(out.Employees, r)
	}
	if err := empRows.Err(); err != nil {
		return Records{}, fmt.Errorf("iterate employees: %w", err)
	}
	return out, nil
}

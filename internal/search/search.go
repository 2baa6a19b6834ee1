package search

import "context"

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultWorkspace ResultType = "workspace"
	ResultBoard     ResultType = "board"
	ResultEmployee  ResultType = "employee"
)

func ValidResultType(t string) bool {
	switch ResultType(t) {
	case ResultWorkspace, ResultBoard, ResultEmployee:
		return true
	}
	return false
}

// Result is a single search hit. Hits carry no access data; callers
// re-check every hit against the live entity before returning it.
type Result struct {
	Type        ResultType `json:"type"`
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Snippet     string     `json:"snippet"`
	WorkspaceID string     `json:"workspaceId,omitempty"`
}

type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	Limit      int
	Offset     int
}

type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

type WorkspaceRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type BoardRecord struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspaceId"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type EmployeeRecord struct {
	ID             string `json:"id"`
	EmployeeCode   string `json:"employeeCode"`
	Name           string `json:"name"`
	LastName       string `json:"lastName"`
	BranchOfficeID string `json:"branchOfficeId"`
}

// Records is a full snapshot used for reindexing.
type Records struct {
	Workspaces []WorkspaceRecord
	Boards     []BoardRecord
	Employees  []EmployeeRecord
}

const defaultLimit = 20

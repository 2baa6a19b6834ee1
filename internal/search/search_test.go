package search

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablero/api/internal/logging"
)

type fakeSearcher struct {
	results []Result
	err     error
	last    Query
}

func (f *fakeSearcher) Search(_ context.Context, q Query) ([]Result, int, error) {
	f.last = q
	return f.results, len(f.results), f.err
}

func (f *fakeSearcher) Healthy() bool { return true }

func TestServiceFallsBackWithoutMeili(t *testing.T) {
	fallback := &fakeSearcher{results: []Result{{Type: ResultBoard, ID: "brd_1", Title: "Ventas"}}}
	svc := &Service{fallback: fallback, log: logging.Discard()}

	resp := svc.Search(context.Background(), Query{Text: "ventas", FilterType: ResultBoard})
	require.Len(t, resp.Results, 1)
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, "ventas", resp.Query)
	assert.Equal(t, ResultBoard, fallback.last.FilterType)
}

func TestServiceReturnsEmptyListOnError(t *testing.T) {
	svc := &Service{fallback: &fakeSearcher{err: errors.New("boom")}, log: logging.Discard()}
	resp := svc.Search(context.Background(), Query{Text: "x"})
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
}

func TestServiceWithoutBackends(t *testing.T) {
	svc := NewService(nil, nil, logging.Discard())
	resp := svc.Search(context.Background(), Query{Text: "x"})
	assert.Empty(t, resp.Results)
	svc.IndexBoard(BoardRecord{ID: "brd_1"})
	assert.NoError(t, svc.Reindex(context.Background(), Records{}))
}

func rawHit(t *testing.T, fields map[string]any) meili.Hit {
	t.Helper()
	hit := meili.Hit{}
	for k, v := range fields {
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		hit[k] = raw
	}
	return hit
}

func TestHitToResultPrefersHighlightedFields(t *testing.T) {
	hit := rawHit(t, map[string]any{
		"id":          "brd_1",
		"workspaceId": "ws_1",
		"name":        "Ventas",
		"description": "Pipeline",
		"_formatted":  map[string]any{"name": "<mark>Ventas</mark>", "description": "Pipeline"},
	})
	r := hitToResult(hit, ResultBoard)
	assert.Equal(t, "brd_1", r.ID)
	assert.Equal(t, "ws_1", r.WorkspaceID)
	assert.Equal(t, "<mark>Ventas</mark>", r.Title)
}

func TestHitToResultEmployee(t *testing.T) {
	hit := rawHit(t, map[string]any{"id": "emp_1", "name": "Ana", "lastName": "López", "employeeCode": "A1B2C3D4E5F6"})
	r := hitToResult(hit, ResultEmployee)
	assert.Equal(t, "Ana López", r.Title)
	assert.Equal(t, "A1B2C3D4E5F6", r.Snippet)
}

func TestValidResultType(t *testing.T) {
	assert.True(t, ValidResultType("employee"))
	assert.False(t, ValidResultType("document"))
}

func TestHitToResultWorkspaceFallsBackToRawFields(t *testing.T) {
	hit := rawHit(t, map[string]any{"id": "ws_1", "name": "Rutas", "description": "Sureste"})
	r := hitToResult(hit, kindOf("tablero_workspaces"))
	assert.Equal(t, ResultWorkspace, r.Type)
	assert.Equal(t, "ws_1", r.WorkspaceID)
	assert.Equal(t, "Rutas", r.Title)
	assert.Equal(t, "Sureste", r.Snippet)
}

func TestHitToResultUnknownIndex(t *testing.T) {
	hit := rawHit(t, map[string]any{"id": "x_1", "name": "?"})
	r := hitToResult(hit, kindOf("other_index"))
	assert.Equal(t, ResultType(""), r.Type)
	assert.Equal(t, "x_1", r.ID)
	assert.Empty(t, r.Title)
}

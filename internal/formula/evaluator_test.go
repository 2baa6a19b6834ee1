package formula

import (
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablero/api/internal/board"
)

func formulaBoard(formula string) *board.Board {
	return &board.Board{
		ID: "brd_1",
		Columns: []board.Column{
			{ID: "c1", Name: "A", Type: board.TypeNumber, Order: 1},
			{ID: "c2", Name: "B", Type: board.TypeNumber, Order: 2},
			{ID: "c3", Name: "Total", Type: board.TypeFormula, Order: 3, Config: board.ColumnConfig{Formula: formula}},
		},
		Items: []board.Item{
			{ID: "it1", Order: 1, Values: map[string]board.Value{"c1": board.NumberValue(2), "c2": board.NumberValue(3)}},
			{ID: "it2", Order: 2, Values: map[string]board.Value{"c2": board.NumberValue(3)}},
		},
	}
}

func TestEvaluateCell(t *testing.T) {
	b := formulaBoard("[A]+[B]")

	got, err := EvaluateCell(b, "c3", "it1")
	require.NoError(t, err)
	assert.Equal(t, Result{Value: 5}, got)

	got, err = EvaluateCell(b, "c3", "it2")
	require.NoError(t, err)
	assert.Equal(t, Result{Value: 3}, got)

	_, err = EvaluateCell(b, "c3", "missing")
	assert.True(t, board.IsNotFound(err))
	_, err = EvaluateCell(b, "c1", "it1")
	assert.True(t, board.IsValidation(err))
}

func TestEvaluate(t *testing.T) {
	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	columns := []board.Column{
		{ID: "c1", Name: "A", Type: board.TypeNumber},
		{ID: "c2", Name: "Fecha", Type: board.TypeDate},
		{ID: "c3", Name: "Texto", Type: board.TypeText},
		{ID: "c4", Name: "Hecho", Type: board.TypeCheckbox},
		{ID: "c5", Name: "Otra", Type: board.TypeFormula, Config: board.ColumnConfig{Formula: "1+1"}},
		{ID: "c6", Name: "Precio unitario", Type: board.TypeNumber},
	}
	values := map[string]board.Value{
		"c1": board.NumberValue(4),
		"c2": board.DateValue(date),
		"c3": board.TextValue("abc"),
		"c4": board.BoolValue(true),
		"c6": board.NumberValue(2.5),
	}

	cases := []struct {
		name string
		expr string
		want Result
	}{
		{name: "repeated token", expr: "[A]*[A]", want: Result{Value: 16}},
		{name: "date as epoch ms", expr: "[Fecha]", want: Result{Value: float64(date.UnixMilli())}},
		{name: "non numeric text", expr: "[Texto]+1", want: Result{Value: 1}},
		{name: "checkbox", expr: "[Hecho]*10", want: Result{Value: 10}},
		{name: "formula reference", expr: "[Otra]+[A]", want: Result{Value: 4}},
		{name: "names with spaces", expr: "[Precio unitario]*2", want: Result{Value: 5}},
		{name: "parentheses", expr: "([A]+2)*-1", want: Result{Value: -6}},
		{name: "power", expr: "[A]**2", want: Result{Value: 16}},
		{name: "sqrt", expr: "sqrt([A])", want: Result{Value: 2}},
		{name: "pow", expr: "pow([A], 0.5)", want: Result{Value: 2}},
		{name: "unknown column", expr: "[Nada]+1", want: errorResult},
		{name: "malformed", expr: "[A]+", want: errorResult},
		{name: "division by zero", expr: "[A]/0", want: errorResult},
		{name: "comparison", expr: "[A] > 1", want: errorResult},
		{name: "case sensitive", expr: "[a]", want: errorResult},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Evaluate(tc.expr, columns, values))
		})
	}
}

func TestAnnotate(t *testing.T) {
	b := formulaBoard("[A]-[B]")
	computed := Annotate(b)
	require.Len(t, computed, 2)
	assert.Equal(t, Result{Value: -1}, computed["it1"]["c3"])
	assert.Equal(t, Result{Value: -3}, computed["it2"]["c3"])

	b.Columns = b.Columns[:2]
	assert.Empty(t, Annotate(b))
}

func TestResultJSON(t *testing.T) {
	raw, err := json.Marshal(map[string]Result{"ok": {Value: 1.5}, "bad": errorResult})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":1.5,"bad":"Error"}`, string(raw))
}

func TestProgramCacheIsBounded(t *testing.T) {
	columns := []board.Column{{ID: "c1", Name: "A", Type: board.TypeNumber}}
	values := map[string]board.Value{"c1": board.NumberValue(1)}
	for i := 0; i < programCacheSize+50; i++ {
		got := Evaluate("[A] + "+strconv.Itoa(i), columns, values)
		require.False(t, got.Err)
		require.Equal(t, float64(1+i), got.Value)
	}
	assert.LessOrEqual(t, programCache.Len(), programCacheSize)

	// evicted programs compile again on demand
	assert.Equal(t, 1.0, Evaluate("[A] + 0", columns, values).Value)
}

package board

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBoard(t *testing.T) *Board {
	t.Helper()
	b := &Board{ID: "brd_1", WorkspaceID: "ws_1", Name: "Ventas", CreatedBy: "usr_owner", IsActive: true}
	_, err := b.AddColumn("A", TypeNumber, ColumnConfig{}, nil)
	require.NoError(t, err)
	_, err = b.AddColumn("B", TypeNumber, ColumnConfig{}, nil)
	require.NoError(t, err)
	_, err = b.AddColumn("Estado", TypeStatus, ColumnConfig{}, nil)
	require.NoError(t, err)
	return b
}

func rawValues(t *testing.T, values map[string]any) map[string]json.RawMessage {
	t.Helper()
	out := make(map[string]json.RawMessage, len(values))
	for k, v := range values {
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		out[k] = raw
	}
	return out
}

func columnIDs(b *Board) []string {
	ids := make([]string, len(b.Columns))
	for i, c := range b.Columns {
		ids[i] = c.ID
	}
	return ids
}

func TestAddColumn(t *testing.T) {
	b := newTestBoard(t)
	require.NoError(t, b.Validate())
	assert.Equal(t, DefaultStatusOptions, b.Columns[2].Config.Options)

	t.Run("unknown type", func(t *testing.T) {
		_, err := b.AddColumn("X", ColumnType("RATING"), ColumnConfig{}, nil)
		assert.True(t, IsValidation(err))
	})

	t.Run("formula needs expression", func(t *testing.T) {
		_, err := b.AddColumn("Total", TypeFormula, ColumnConfig{}, nil)
		assert.True(t, IsValidation(err))
	})

	t.Run("insert at order", func(t *testing.T) {
		order := 1
		col, err := b.AddColumn("Primera", TypeText, ColumnConfig{}, &order)
		require.NoError(t, err)
		assert.Equal(t, 1, col.Order)
		assert.Equal(t, col.ID, b.Columns[0].ID)
		require.NoError(t, b.Validate())
	})

	t.Run("priority defaults", func(t *testing.T) {
		col, err := b.AddColumn("Prioridad", TypePriority, ColumnConfig{}, nil)
		require.NoError(t, err)
		assert.Equal(t, DefaultPriorityOptions, col.Config.Options)
		assert.Equal(t, len(b.Columns), col.Order)
	})
}

func TestRemoveColumnCascades(t *testing.T) {
	b := newTestBoard(t)
	a, bCol := b.Columns[0].ID, b.Columns[1].ID
	_, err := b.AddItem(rawValues(t, map[string]any{a: 1, bCol: 2}), "usr_owner")
	require.NoError(t, err)
	_, err = b.AddItem(rawValues(t, map[string]any{a: 5}), "usr_owner")
	require.NoError(t, err)
	_, err = b.AddChart("Suma", ChartBar, DataSource{ColumnID: a, Aggregation: AggregateSum}, nil)
	require.NoError(t, err)

	require.NoError(t, b.RemoveColumn(a))

	for _, it := range b.Items {
		_, ok := it.Values[a]
		assert.False(t, ok, "item %s still holds removed column", it.ID)
	}
	for i, c := range b.Columns {
		assert.Equal(t, i+1, c.Order)
	}
	assert.Empty(t, b.Charts)
	require.NoError(t, b.Validate())

	err = b.RemoveColumn(a)
	assert.True(t, IsNotFound(err))
}

func TestAddRemoveColumnRoundTrip(t *testing.T) {
	b := newTestBoard(t)
	before := columnIDs(b)
	col, err := b.AddColumn("Temporal", TypeText, ColumnConfig{}, nil)
	require.NoError(t, err)
	require.NoError(t, b.RemoveColumn(col.ID))
	assert.Equal(t, before, columnIDs(b))
}

func TestReorderColumns(t *testing.T) {
	b := newTestBoard(t)
	ids := columnIDs(b)

	require.NoError(t, b.ReorderColumns([]string{ids[2], ids[0], ids[1]}))
	assert.Equal(t, []string{ids[2], ids[0], ids[1]}, columnIDs(b))
	require.NoError(t, b.Validate())

	cases := map[string][]string{
		"unknown id":  {ids[0], ids[1], "missing"},
		"duplicate":   {ids[0], ids[0], ids[1]},
		"too short":   {ids[0], ids[1]},
		"too long":    {ids[0], ids[1], ids[2], "extra"},
		"empty input": {},
	}
	for name, perm := range cases {
		t.Run(name, func(t *testing.T) {
			snapshot := columnIDs(b)
			err := b.ReorderColumns(perm)
			assert.True(t, IsNotFound(err))
			assert.Equal(t, snapshot, columnIDs(b))
		})
	}
}

func TestItems(t *testing.T) {
	b := newTestBoard(t)
	status := b.Columns[2].ID

	first, err := b.AddItem(nil, "usr_a")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Order)
	assert.Equal(t, "usr_a", first.CreatedBy)
	assert.Equal(t, "usr_a", first.UpdatedBy)

	second, err := b.AddItem(rawValues(t, map[string]any{status: "Pendiente"}), "usr_a")
	require.NoError(t, err)
	assert.Equal(t, 2, second.Order)

	_, err = b.AddItem(rawValues(t, map[string]any{"nope": 1}), "usr_a")
	assert.True(t, IsValidation(err))

	_, err = b.AddItem(rawValues(t, map[string]any{status: "Archivado"}), "usr_a")
	assert.True(t, IsValidation(err))

	change, err := b.UpdateCell(first.ID, status, json.RawMessage(`"Completado"`), "usr_b")
	require.NoError(t, err)
	assert.Equal(t, "Completado", change.Value.Text)
	item, _ := b.Item(first.ID)
	assert.Equal(t, "usr_b", item.UpdatedBy)

	change, err = b.UpdateCell(first.ID, status, json.RawMessage(`null`), "usr_b")
	require.NoError(t, err)
	assert.True(t, change.Cleared)
	item, _ = b.Item(first.ID)
	_, ok := item.Values[status]
	assert.False(t, ok)

	_, err = b.UpdateCell("missing", status, json.RawMessage(`1`), "usr_b")
	assert.True(t, IsNotFound(err))
	_, err = b.UpdateCell(first.ID, "missing", json.RawMessage(`1`), "usr_b")
	assert.True(t, IsNotFound(err))

	require.NoError(t, b.ReorderItems([]string{second.ID, first.ID}))
	assert.Equal(t, second.ID, b.Items[0].ID)
	assert.Equal(t, 1, b.Items[0].Order)

	assert.True(t, IsNotFound(b.ReorderItems([]string{second.ID})))
	assert.Equal(t, second.ID, b.Items[0].ID)

	require.NoError(t, b.RemoveItem(second.ID))
	assert.Len(t, b.Items, 1)
	assert.Equal(t, 1, b.Items[0].Order)
	assert.Len(t, b.Columns, 3)
	assert.True(t, IsNotFound(b.RemoveItem(second.ID)))
}

func TestFormulaColumnRejectsValues(t *testing.T) {
	b := newTestBoard(t)
	col, err := b.AddColumn("Total", TypeFormula, ColumnConfig{Formula: "[A]+[B]"}, nil)
	require.NoError(t, err)
	item, err := b.AddItem(nil, "usr_a")
	require.NoError(t, err)
	_, err = b.UpdateCell(item.ID, col.ID, json.RawMessage(`5`), "usr_a")
	assert.True(t, IsValidation(err))
}

func TestCharts(t *testing.T) {
	b := newTestBoard(t)
	a := b.Columns[0].ID

	_, err := b.AddChart("Mal", ChartType("scatter"), DataSource{ColumnID: a, Aggregation: AggregateSum}, nil)
	assert.True(t, IsValidation(err))
	_, err = b.AddChart("Mal", ChartPie, DataSource{ColumnID: a, Aggregation: "median"}, nil)
	assert.True(t, IsValidation(err))
	_, err = b.AddChart("Mal", ChartPie, DataSource{ColumnID: "missing", Aggregation: AggregateSum}, nil)
	assert.True(t, IsNotFound(err))

	chart, err := b.AddChart("Totales", ChartDoughnut, DataSource{ColumnID: a, Aggregation: AggregateSum}, nil)
	require.NoError(t, err)
	require.NoError(t, b.RemoveChart(chart.ID))
	assert.True(t, IsNotFound(b.RemoveChart(chart.ID)))
}

func TestInviteAndDetails(t *testing.T) {
	b := newTestBoard(t)
	require.NoError(t, b.Invite("usr_guest"))
	assert.True(t, IsValidation(b.Invite("usr_guest")))

	name := "  Operaciones "
	private := true
	require.NoError(t, b.UpdateDetails(&name, nil, &private))
	assert.Equal(t, "Operaciones", b.Name)
	assert.True(t, b.IsPrivate)

	blank := " "
	assert.True(t, IsValidation(b.UpdateDetails(&blank, nil, nil)))
}

func TestCloneIsIndependent(t *testing.T) {
	b := newTestBoard(t)
	a := b.Columns[0].ID
	item, err := b.AddItem(rawValues(t, map[string]any{a: 1}), "usr_a")
	require.NoError(t, err)

	clone := b.Clone()
	require.NoError(t, clone.RemoveColumn(a))
	require.NoError(t, clone.Invite("usr_x"))

	original, _ := b.Item(item.ID)
	assert.Equal(t, 1.0, original.Values[a].Number)
	assert.Len(t, b.Columns, 3)
	assert.Empty(t, b.InvitedUsers)
}

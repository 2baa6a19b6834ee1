package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablero/api/internal/board"
)

func TestClassify(t *testing.T) {
	dup := fmt.Errorf("exec: %w", &pgconn.PgError{Code: uniqueViolation})
	assert.ErrorIs(t, classify(dup), ErrDuplicate)

	fk := &pgconn.PgError{Code: foreignKeyViolation}
	assert.ErrorIs(t, classify(fk), ErrInvalidReference)

	other := errors.New("boom")
	assert.Equal(t, other, classify(other))
}

func TestDecodeCellValues(t *testing.T) {
	types := map[string]board.ColumnType{
		"c1": board.TypeNumber,
		"c2": board.TypeStatus,
		"c3": board.TypeTags,
	}
	raw := []byte(`{"c1": 4, "c2": "Retirado", "c3": ["a"], "gone": "x", "c4": 1}`)

	values, err := DecodeCellValues(raw, types)
	require.NoError(t, err)
	assert.Len(t, values, 3)
	assert.Equal(t, 4.0, values["c1"].Number)
	assert.Equal(t, "Retirado", values["c2"].Text)
	assert.Equal(t, []string{"a"}, values["c3"].List)

	values, err = DecodeCellValues(nil, types)
	require.NoError(t, err)
	assert.Empty(t, values)

	_, err = DecodeCellValues([]byte(`[1]`), types)
	assert.Error(t, err)
}

func TestPrefixed(t *testing.T) {
	assert.Equal(t, "u.id, u.name", prefixed("u.", "id,\n\tname"))
}

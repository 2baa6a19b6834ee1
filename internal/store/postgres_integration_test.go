package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablero/api/internal/board"
	"tablero/api/internal/rbac"
	"tablero/api/internal/util"
)

func openIntegrationStore(t *testing.T) (*PostgresStore, context.Context) {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("TABLERO_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("TABLERO_TEST_DATABASE_URL is not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	db, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, resetPublicSchema(ctx, db))
	require.NoError(t, ApplyMigrations(ctx, db, filepath.Join("..", "..", "db", "migrations")))
	return NewPostgresStore(db), ctx
}

func createPendingUser(t *testing.T, ctx context.Context, s *PostgresStore, email string) (User, string) {
	t.Helper()
	token := util.NewID("vt")
	expires := time.Now().Add(time.Hour)
	user := User{
		ID:                    util.NewID("usr"),
		Name:                  email,
		Email:                 email,
		PasswordHash:          "x",
		Role:                  string(rbac.RoleUnregistered),
		VerificationToken:     token,
		VerificationExpiresAt: &expires,
	}
	require.NoError(t, s.CreateUser(ctx, user))
	return user, token
}

func TestBootstrapPromotesOnlyFirstVerifiedUser(t *testing.T) {
	s, ctx := openIntegrationStore(t)

	tokens := make([]string, 0, 4)
	for _, email := range []string{"a@x.mx", "b@x.mx", "c@x.mx", "d@x.mx"} {
		_, token := createPendingUser(t, ctx, s, email)
		tokens = append(tokens, token)
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		roles []string
	)
	for _, token := range tokens {
		wg.Add(1)
		go func(token string) {
			defer wg.Done()
			user, err := s.VerifyUserEmail(ctx, token)
			if assert.NoError(t, err) {
				mu.Lock()
				roles = append(roles, user.Role)
				mu.Unlock()
			}
		}(token)
	}
	wg.Wait()

	masters := 0
	for _, role := range roles {
		if role == string(rbac.RoleMaster) {
			masters++
		}
	}
	assert.Equal(t, 1, masters)

	_, err := s.VerifyUserEmail(ctx, tokens[0])
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSaveBoardVersionConflict(t *testing.T) {
	s, ctx := openIntegrationStore(t)
	owner, token := createPendingUser(t, ctx, s, "owner@x.mx")
	_, err := s.VerifyUserEmail(ctx, token)
	require.NoError(t, err)

	ws := Workspace{ID: util.NewID("ws"), Name: "Ventas", CreatedBy: owner.ID}
	require.NoError(t, s.CreateWorkspace(ctx, ws))

	now := time.Now().UTC()
	b := &board.Board{ID: util.NewID("brd"), WorkspaceID: ws.ID, Name: "Pipeline", CreatedBy: owner.ID,
		IsActive: true, Version: 1, CreatedAt: now, UpdatedAt: now}
	col, err := b.AddColumn("Monto", board.TypeNumber, board.ColumnConfig{}, nil)
	require.NoError(t, err)
	item, err := b.AddItem(map[string]json.RawMessage{col.ID: json.RawMessage(`10`)}, owner.ID)
	require.NoError(t, err)
	require.NoError(t, s.CreateBoard(ctx, b))

	loaded, err := s.GetBoard(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Items, 1)
	assert.Equal(t, 10.0, loaded.Items[0].Values[col.ID].Number)

	first := loaded.Clone()
	_, err = first.AddColumn("Notas", board.TypeText, board.ColumnConfig{}, nil)
	require.NoError(t, err)
	require.NoError(t, s.SaveBoard(ctx, first, loaded.Version))

	stale := loaded.Clone()
	require.NoError(t, stale.RemoveColumn(col.ID))
	assert.ErrorIs(t, s.SaveBoard(ctx, stale, loaded.Version), board.ErrVersionConflict)

	change, err := first.UpdateCell(item.ID, col.ID, json.RawMessage(`25`), owner.ID)
	require.NoError(t, err)
	require.NoError(t, s.UpdateItemCell(ctx, b.ID, change, time.Now()))

	reloaded, err := s.GetBoard(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, reloaded.Columns, 2)
	assert.Equal(t, 25.0, reloaded.Items[0].Values[col.ID].Number)
	assert.Equal(t, loaded.Version+2, reloaded.Version, "the cell write bumps the version")

	// a structural save loaded before the cell write no longer matches
	beforeCell := first.Clone()
	_, err = beforeCell.AddItem(nil, owner.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, s.SaveBoard(ctx, beforeCell, loaded.Version+1), board.ErrVersionConflict)

	boards, err := s.ListBoardsByWorkspace(ctx, ws.ID, rbac.ListFilter{Restricted: true, ActorID: "someone"})
	require.NoError(t, err)
	assert.Len(t, boards, 1)
}

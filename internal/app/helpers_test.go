package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tablero/api/internal/rbac"
	"tablero/api/internal/store"
)

type testEnv struct {
	t       *testing.T
	store   *fakeStore
	service *Service
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fs := newFakeStore()
	svc := newTestService(fs)
	return &testEnv{t: t, store: fs, service: svc, handler: NewHTTPServer(svc, "*").Handler()}
}

type userOption func(*store.User)

func withBranch(branchID string) userOption {
	return func(u *store.User) { u.BranchID = branchID }
}

func withDepartment(department string) userOption {
	return func(u *store.User) { u.Department = department }
}

func withReportsTo(managerID string) userOption {
	return func(u *store.User) { u.ReportsTo = managerID }
}

// seedUser stores an active, verified user and returns a bearer token for it.
func (e *testEnv) seedUser(id string, role rbac.Role, opts ...userOption) (store.User, string) {
	e.t.Helper()
	user := store.User{
		ID:              id,
		Name:            "User " + id,
		Email:           id + "@example.com",
		Role:            string(role),
		IsActive:        true,
		IsEmailVerified: true,
		CreatedAt:       time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&user)
	}
	e.store.mu.Lock()
	e.store.users[id] = user
	e.store.mu.Unlock()

	session, err := e.service.issueSession(context.Background(), user)
	require.NoError(e.t, err)
	return user, session.Token
}

// do sends a JSON request and decodes the JSON response body.
func (e *testEnv) do(method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	e.t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(e.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)

	payload := map[string]any{}
	if rr.Body.Len() > 0 {
		_ = json.Unmarshal(rr.Body.Bytes(), &payload)
	}
	return rr, payload
}

// expect asserts the status code and returns the decoded body.
func (e *testEnv) expect(status int, method, path, token string, body any) map[string]any {
	e.t.Helper()
	rr, payload := e.do(method, path, token, body)
	require.Equalf(e.t, status, rr.Code, "%s %s body=%s", method, path, rr.Body.String())
	return payload
}

func assertErrorCode(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d body=%s", status, rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["code"] != code {
		t.Fatalf("expected code %s, got %v", code, payload["code"])
	}
}

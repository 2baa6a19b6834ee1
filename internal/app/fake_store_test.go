package app

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"tablero/api/internal/board"
	"tablero/api/internal/config"
	"tablero/api/internal/logging"
	"tablero/api/internal/rbac"
	"tablero/api/internal/store"
)

// fakeStore is an in-memory DataStore and BoardStore. The function fields
// override single methods when a test needs a failure or a hook.
type fakeStore struct {
	mu sync.Mutex

	users      map[string]store.User
	resets     map[string]string
	refresh    map[string]string
	revoked    map[string]bool
	workspaces map[string]store.Workspace
	boards     map[string]*board.Board
	branches   map[string]store.Branch
	offices    map[string]store.BranchOffice
	positions  map[string]store.JobPosition
	employees  map[string]store.Employee

	pingFn      func(context.Context) error
	saveBoardFn func(ctx context.Context, b *board.Board, expectedVersion int64) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:      map[string]store.User{},
		resets:     map[string]string{},
		refresh:    map[string]string{},
		revoked:    map[string]bool{},
		workspaces: map[string]store.Workspace{},
		boards:     map[string]*board.Board{},
		branches:   map[string]store.Branch{},
		offices:    map[string]store.BranchOffice{},
		positions:  map[string]store.JobPosition{},
		employees:  map[string]store.Employee{},
	}
}

func newTestService(fs *fakeStore) *Service {
	cfg := config.Config{
		JWTSecret:     "test-secret",
		AccessTTLSec:  3600,
		RefreshTTLSec: 86400,
		FrontendURL:   "http://localhost:5173",
	}
	return New(cfg, Deps{Store: fs, Boards: fs, Log: logging.Discard()})
}

// Users

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeStore) CreateUser(_ context.Context, user store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == user.Email {
			return store.ErrDuplicate
		}
	}
	user.CreatedAt = time.Now().UTC()
	f.users[user.ID] = user
	return nil
}

func (f *fakeStore) VerifyUserEmail(_ context.Context, token string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, u := range f.users {
		if u.VerificationToken != token || token == "" {
			continue
		}
		registered := 0
		for _, other := range f.users {
			if other.Role != string(rbac.RoleUnregistered) {
				registered++
			}
		}
		u.IsEmailVerified = true
		u.VerificationToken = ""
		if registered == 0 {
			u.Role = string(rbac.RoleMaster)
		}
		f.users[id] = u
		return u, nil
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) UpdateUserPassword(_ context.Context, userID, hash string) error {
	return f.updateUser(userID, func(u *store.User) { u.PasswordHash = hash })
}

func (f *fakeStore) CreatePasswordReset(_ context.Context, userID, token string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets[token] = userID
	return nil
}

func (f *fakeStore) GetPasswordReset(_ context.Context, token string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.resets[token]
	if !ok {
		return "", sql.ErrNoRows
	}
	return userID, nil
}

func (f *fakeStore) MarkPasswordResetUsed(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.resets, token)
	return nil
}

func (f *fakeStore) ListUsers(_ context.Context, filter store.UserFilter) ([]store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.User{}
	for _, u := range f.users {
		if filter.Delegated {
			sameDepartment := u.Department != "" && u.Department == filter.Department
			if !sameDepartment && u.ReportsTo != filter.ManagerID {
				continue
			}
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeStore) UpdateUserProfile(_ context.Context, userID, name, avatar string) error {
	return f.updateUser(userID, func(u *store.User) { u.Name, u.Avatar = name, avatar })
}

func (f *fakeStore) UpdateUserRole(_ context.Context, userID, role string) error {
	return f.updateUser(userID, func(u *store.User) { u.Role = role })
}

func (f *fakeStore) UpdateUserScope(_ context.Context, userID, branchID, department, reportsTo string) error {
	return f.updateUser(userID, func(u *store.User) {
		u.BranchID, u.Department, u.ReportsTo = branchID, department, reportsTo
	})
}

func (f *fakeStore) DeactivateUser(_ context.Context, userID string) error {
	return f.updateUser(userID, func(u *store.User) { u.IsActive = false })
}

func (f *fakeStore) updateUser(userID string, apply func(*store.User)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	apply(&u)
	f.users[userID] = u
	return nil
}

// Sessions

func (f *fakeStore) SaveRefreshSession(_ context.Context, tokenHash, userID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh[tokenHash] = userID
	return nil
}

func (f *fakeStore) LookupRefreshSession(_ context.Context, tokenHash string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.refresh[tokenHash]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return store.User{ID: userID}, nil
}

func (f *fakeStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.refresh, tokenHash)
	return nil
}

func (f *fakeStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[jti] = true
	return nil
}

func (f *fakeStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[jti], nil
}

// Workspaces

func (f *fakeStore) CreateWorkspace(_ context.Context, ws store.Workspace) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.workspaces[ws.ID] = ws
	return nil
}

func (f *fakeStore) GetWorkspace(_ context.Context, id string) (store.Workspace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ws, ok := f.workspaces[id]
	if !ok || !ws.IsActive {
		return store.Workspace{}, sql.ErrNoRows
	}
	ws.InvitedUsers = append([]string{}, ws.InvitedUsers...)
	return ws, nil
}

func (f *fakeStore) ListWorkspaces(_ context.Context, filter rbac.ListFilter) ([]store.Workspace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.Workspace{}
	for _, ws := range f.workspaces {
		if ws.IsActive && filter.Matches(ws.AccessResource()) {
			out = append(out, ws)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) UpdateWorkspace(_ context.Context, ws store.Workspace) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.workspaces[ws.ID]; !ok {
		return sql.ErrNoRows
	}
	f.workspaces[ws.ID] = ws
	return nil
}

func (f *fakeStore) DeactivateWorkspace(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ws, ok := f.workspaces[id]
	if !ok {
		return sql.ErrNoRows
	}
	ws.IsActive = false
	f.workspaces[id] = ws
	return nil
}

func (f *fakeStore) AddWorkspaceInvite(_ context.Context, workspaceID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ws, ok := f.workspaces[workspaceID]
	if !ok {
		return store.ErrInvalidReference
	}
	for _, id := range ws.InvitedUsers {
		if id == userID {
			return store.ErrAlreadyInvited
		}
	}
	ws.InvitedUsers = append(append([]string{}, ws.InvitedUsers...), userID)
	f.workspaces[workspaceID] = ws
	return nil
}

// Boards

func (f *fakeStore) CreateBoard(_ context.Context, b *board.Board) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.boards[b.ID] = b.Clone()
	return nil
}

func (f *fakeStore) GetBoard(_ context.Context, id string) (*board.Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.boards[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return b.Clone(), nil
}

func (f *fakeStore) ListBoardsByWorkspace(_ context.Context, workspaceID string, filter rbac.ListFilter) ([]*board.Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*board.Board{}
	for _, b := range f.boards {
		if b.WorkspaceID == workspaceID && b.IsActive && filter.Matches(b.AccessResource()) {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) SaveBoard(ctx context.Context, b *board.Board, expectedVersion int64) error {
	if f.saveBoardFn != nil {
		if err := f.saveBoardFn(ctx, b, expectedVersion); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.boards[b.ID]
	if !ok || current.Version != expectedVersion {
		return board.ErrVersionConflict
	}
	b.Version = expectedVersion + 1
	f.boards[b.ID] = b.Clone()
	return nil
}

func (f *fakeStore) UpdateItemCell(_ context.Context, boardID string, change board.CellChange, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.boards[boardID]
	if !ok {
		return sql.ErrNoRows
	}
	if _, ok := b.Column(change.ColumnID); !ok {
		return sql.ErrNoRows
	}
	for i := range b.Items {
		if b.Items[i].ID != change.ItemID {
			continue
		}
		item := &b.Items[i]
		if item.Values == nil {
			item.Values = map[string]board.Value{}
		}
		if change.Cleared {
			delete(item.Values, change.ColumnID)
		} else {
			item.Values[change.ColumnID] = change.Value
		}
		item.UpdatedBy = change.UpdatedBy
		item.UpdatedAt = at
		b.Version++
		return nil
	}
	return sql.ErrNoRows
}

// HR

func (f *fakeStore) CreateBranch(_ context.Context, branch store.Branch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.branches {
		if b.Code == branch.Code || b.Name == branch.Name {
			return store.ErrDuplicate
		}
	}
	f.branches[branch.ID] = branch
	return nil
}

func (f *fakeStore) GetBranch(_ context.Context, id string) (store.Branch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.branches[id]
	if !ok {
		return store.Branch{}, sql.ErrNoRows
	}
	return b, nil
}

func (f *fakeStore) ListBranches(context.Context) ([]store.Branch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.Branch{}
	for _, b := range f.branches {
		if b.IsActive {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeStore) UpdateBranch(_ context.Context, branch store.Branch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.branches[branch.ID]; !ok {
		return sql.ErrNoRows
	}
	f.branches[branch.ID] = branch
	return nil
}

func (f *fakeStore) CreateBranchOffice(_ context.Context, office store.BranchOffice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.offices {
		if o.Code == office.Code {
			return store.ErrDuplicate
		}
	}
	f.offices[office.ID] = office
	return nil
}

func (f *fakeStore) GetBranchOffice(_ context.Context, id string) (store.BranchOffice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.offices[id]
	if !ok {
		return store.BranchOffice{}, sql.ErrNoRows
	}
	return o, nil
}

func (f *fakeStore) ListBranchOffices(_ context.Context, branchID string, restricted bool) ([]store.BranchOffice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.BranchOffice{}
	for _, o := range f.offices {
		if !o.IsActive || (restricted && o.BranchID != branchID) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (f *fakeStore) UpdateBranchOffice(_ context.Context, office store.BranchOffice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.offices[office.ID]; !ok {
		return sql.ErrNoRows
	}
	f.offices[office.ID] = office
	return nil
}

func (f *fakeStore) DeactivateBranchOffice(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.offices[id]
	if !ok {
		return sql.ErrNoRows
	}
	o.IsActive = false
	f.offices[id] = o
	return nil
}

func (f *fakeStore) CreateJobPosition(_ context.Context, p store.JobPosition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions[p.ID] = p
	return nil
}

func (f *fakeStore) GetJobPosition(_ context.Context, id string) (store.JobPosition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.positions[id]
	if !ok {
		return store.JobPosition{}, sql.ErrNoRows
	}
	return p, nil
}

func (f *fakeStore) ListJobPositions(context.Context) ([]store.JobPosition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.JobPosition{}
	for _, p := range f.positions {
		if p.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateJobPosition(_ context.Context, p store.JobPosition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.positions[p.ID]; !ok {
		return sql.ErrNoRows
	}
	f.positions[p.ID] = p
	return nil
}

func (f *fakeStore) DeactivateJobPosition(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.positions[id]
	if !ok {
		return sql.ErrNoRows
	}
	p.IsActive = false
	f.positions[id] = p
	return nil
}

func (f *fakeStore) DeleteJobPosition(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.positions[id]; !ok {
		return sql.ErrNoRows
	}
	for _, e := range f.employees {
		if e.JobPositionID == id {
			return store.ErrInUse
		}
	}
	delete(f.positions, id)
	return nil
}

func (f *fakeStore) CreateEmployee(_ context.Context, e store.Employee) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e.EmploymentStatus = store.EmploymentActive
	e.CreatedAt = time.Now().UTC()
	f.employees[e.ID] = e
	return nil
}

// GetEmployee fills the joined office fields the way the SQL store does.
func (f *fakeStore) GetEmployee(_ context.Context, id string) (store.Employee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.employees[id]
	if !ok {
		return store.Employee{}, sql.ErrNoRows
	}
	return f.joinOffice(e), nil
}

func (f *fakeStore) joinOffice(e store.Employee) store.Employee {
	if o, ok := f.offices[e.BranchOfficeID]; ok {
		e.BranchID = o.BranchID
		e.BranchOfficeName = o.Name
	}
	if p, ok := f.positions[e.JobPositionID]; ok {
		e.JobPositionName = p.Name
	}
	return e
}

func (f *fakeStore) ListEmployees(_ context.Context, filter store.EmployeeFilter) ([]store.Employee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.Employee{}
	for _, e := range f.employees {
		e = f.joinOffice(e)
		if filter.BranchID != nil && e.BranchID != *filter.BranchID {
			continue
		}
		if filter.BranchOfficeID != "" && e.BranchOfficeID != filter.BranchOfficeID {
			continue
		}
		if filter.Status != "" && e.EmploymentStatus != filter.Status {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastName < out[j].LastName })
	return out, nil
}

func (f *fakeStore) UpdateEmployee(_ context.Context, e store.Employee) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.employees[e.ID]; !ok {
		return sql.ErrNoRows
	}
	f.employees[e.ID] = e
	return nil
}

func (f *fakeStore) DeactivateEmployee(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.employees[id]
	if !ok {
		return sql.ErrNoRows
	}
	now := time.Now().UTC()
	e.EmploymentStatus = store.EmploymentInactive
	e.TerminationDate = &now
	f.employees[id] = e
	return nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

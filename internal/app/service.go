package app

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"tablero/api/internal/attachments"
	"tablero/api/internal/auth"
	"tablero/api/internal/authpw"
	"tablero/api/internal/board"
	"tablero/api/internal/boardlock"
	"tablero/api/internal/config"
	"tablero/api/internal/email"
	"tablero/api/internal/logging"
	"tablero/api/internal/rbac"
	"tablero/api/internal/search"
	"tablero/api/internal/store"
	"tablero/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	JTI          string
	ExpiresAt    time.Time
	User         store.User
}

func (s Session) Actor() rbac.Actor {
	return actorOf(s.User)
}

func actorOf(user store.User) rbac.Actor {
	return rbac.Actor{
		ID:         user.ID,
		Role:       rbac.Normalize(user.Role),
		BranchID:   user.BranchID,
		Department: user.Department,
		ReportsTo:  user.ReportsTo,
	}
}

// SessionStore keeps refresh tokens and revoked access token ids.
// PostgresStore and session.RedisStore both implement it.
type SessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
}

type DataStore interface {
	authpw.UserStore
	SessionStore
	ListUsers(context.Context, store.UserFilter) ([]store.User, error)
	UpdateUserProfile(context.Context, string, string, string) error
	UpdateUserRole(context.Context, string, string) error
	UpdateUserScope(context.Context, string, string, string, string) error
	DeactivateUser(context.Context, string) error

	CreateWorkspace(context.Context, store.Workspace) error
	GetWorkspace(context.Context, string) (store.Workspace, error)
	ListWorkspaces(context.Context, rbac.ListFilter) ([]store.Workspace, error)
	UpdateWorkspace(context.Context, store.Workspace) error
	DeactivateWorkspace(context.Context, string) error
	AddWorkspaceInvite(context.Context, string, string) error

	CreateBranch(context.Context, store.Branch) error
	GetBranch(context.Context, string) (store.Branch, error)
	ListBranches(context.Context) ([]store.Branch, error)
	UpdateBranch(context.Context, store.Branch) error
	CreateBranchOffice(context.Context, store.BranchOffice) error
	GetBranchOffice(context.Context, string) (store.BranchOffice, error)
	ListBranchOffices(context.Context, string, bool) ([]store.BranchOffice, error)
	UpdateBranchOffice(context.Context, store.BranchOffice) error
	DeactivateBranchOffice(context.Context, string) error
	CreateJobPosition(context.Context, store.JobPosition) error
	GetJobPosition(context.Context, string) (store.JobPosition, error)
	ListJobPositions(context.Context) ([]store.JobPosition, error)
	UpdateJobPosition(context.Context, store.JobPosition) error
	DeactivateJobPosition(context.Context, string) error
	DeleteJobPosition(context.Context, string) error
	CreateEmployee(context.Context, store.Employee) error
	GetEmployee(context.Context, string) (store.Employee, error)
	ListEmployees(context.Context, store.EmployeeFilter) ([]store.Employee, error)
	UpdateEmployee(context.Context, store.Employee) error
	DeactivateEmployee(context.Context, string) error

	Ping(ctx context.Context) error
}

// BoardStore persists board aggregates. GetBoard also returns deactivated boards.
type BoardStore interface {
	CreateBoard(context.Context, *board.Board) error
	GetBoard(context.Context, string) (*board.Board, error)
	ListBoardsByWorkspace(context.Context, string, rbac.ListFilter) ([]*board.Board, error)
	SaveBoard(context.Context, *board.Board, int64) error
	UpdateItemCell(context.Context, string, board.CellChange, time.Time) error
}

type Mailer interface {
	IsConfigured() bool
	SendVerificationEmail(to, userName, verificationURL string) error
	SendPasswordResetEmail(to, userName, resetURL string) error
	SendInvitationEmail(to string, data email.InvitationData) error
}

type FileStore interface {
	PresignUpload(ctx context.Context, boardID, itemID, columnID, fileName string) (attachments.Upload, error)
	PresignDownload(ctx context.Context, boardID, key string) (string, error)
}

type SearchIndex interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexWorkspace(search.WorkspaceRecord)
	IndexBoard(search.BoardRecord)
	IndexEmployee(search.EmployeeRecord)
	Delete(search.ResultType, string)
}

// ReadinessCheck is reported under its name by /api/ready.
type ReadinessCheck struct {
	Name string
	Ping func(context.Context) error
}

// Deps wires the service. Store and Boards are required; a nil Sessions
// falls back to Store and a nil Locker to an in-process lock.
type Deps struct {
	Store    DataStore
	Boards   BoardStore
	Sessions SessionStore
	Locker   boardlock.Locker
	Mailer   Mailer
	Search   SearchIndex
	Files    FileStore
	Checks   []ReadinessCheck
	Log      logrus.FieldLogger
}

type Service struct {
	cfg       config.Config
	store     DataStore
	boards    BoardStore
	sessions  SessionStore
	locker    boardlock.Locker
	passwords *authpw.Service
	mailer    Mailer
	search    SearchIndex
	files     FileStore
	checks    []ReadinessCheck
	log       logrus.FieldLogger
	reads     singleflight.Group
}

func New(cfg config.Config, deps Deps) *Service {
	svc := &Service{
		cfg:       cfg,
		store:     deps.Store,
		boards:    deps.Boards,
		sessions:  deps.Sessions,
		locker:    deps.Locker,
		passwords: authpw.NewService(deps.Store),
		mailer:    deps.Mailer,
		search:    deps.Search,
		files:     deps.Files,
		checks:    deps.Checks,
		log:       deps.Log,
	}
	if svc.sessions == nil {
		svc.sessions = deps.Store
	}
	if svc.locker == nil {
		svc.locker = boardlock.NewLocal()
	}
	if svc.log == nil {
		svc.log = logging.Discard()
	}
	return svc
}

func (s *Service) SMTPConfigured() bool {
	return s.mailer != nil && s.mailer.IsConfigured()
}

func (s *Service) Login(ctx context.Context, emailAddr, password string) (Session, error) {
	user, err := s.passwords.SignIn(ctx, authpw.SignInRequest{Email: emailAddr, Password: password})
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates the refresh token. The user is reloaded so role changes
// and deactivation apply to the new access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if refreshToken == "" {
		return Session{}, errUnauthorized()
	}
	tokenHash := auth.HashToken(refreshToken)
	ref, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, errUnauthorized()
	}
	user, err := s.store.GetUserByID(ctx, ref.ID)
	if err != nil || !user.IsActive {
		return Session{}, errUnauthorized()
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL())
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.Name,
		Role: user.Role,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL())
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		JTI:          jti,
		ExpiresAt:    expiresAt,
		User:         user,
	}, nil
}

// SessionFromToken reloads the user on every request; unknown and
// deactivated users fail as invalid tokens.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}
	if !user.IsActive {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:     token,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
		User:      user,
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		if err := s.sessions.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			s.log.WithError(err).Warn("logout: revoke access token failed")
		}
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			s.log.WithError(err).Warn("logout: revoke refresh token failed")
		}
	}
	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Ready pings the database and every configured dependency.
func (s *Service) Ready(ctx context.Context) (bool, map[string]any) {
	ready := true
	checks := map[string]any{}
	run := func(name string, ping func(context.Context) error) {
		if err := ping(ctx); err != nil {
			ready = false
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
			return
		}
		checks[name] = map[string]any{"status": "ok"}
	}
	run("database", s.store.Ping)
	for _, check := range s.checks {
		run(check.Name, check.Ping)
	}
	return ready, checks
}

// requireRegistered applies the blanket UNREGISTERED denial to endpoints
// that have no resource of their own.
func requireRegistered(actor rbac.Actor) error {
	if actor.Role == rbac.RoleUnregistered || !rbac.Valid(string(actor.Role)) {
		return errForbidden()
	}
	return nil
}

func (s *Service) frontendURL(path string) string {
	return s.cfg.FrontendURL + path
}

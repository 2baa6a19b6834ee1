package app

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/sirupsen/logrus"

	"tablero/api/internal/rbac"
	"tablero/api/internal/store"
)

type UpdateProfileInput struct {
	Name   *string `json:"name" validate:"omitempty,min=1,max=100"`
	Avatar *string `json:"avatar" validate:"omitempty,max=500"`
}

type UpdateScopeInput struct {
	BranchID   *string `json:"branchId"`
	Department *string `json:"department" validate:"omitempty,max=100"`
	ReportsTo  *string `json:"reportsTo"`
}

func (s *Service) Me(ctx context.Context, session Session) (map[string]any, error) {
	actor := session.Actor()
	if !rbac.CanPerform(actor, rbac.ActionProfileRead, rbac.Target{OwnerID: actor.ID}) {
		return nil, errForbidden()
	}
	return userPayload(session.User), nil
}

func (s *Service) UpdateProfile(ctx context.Context, session Session, input UpdateProfileInput) (map[string]any, error) {
	actor := session.Actor()
	if !rbac.CanPerform(actor, rbac.ActionProfileUpdate, rbac.Target{OwnerID: actor.ID}) {
		return nil, errForbidden()
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}
	user := session.User
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, errValidation("name", "name is required")
		}
		user.Name = name
	}
	if input.Avatar != nil {
		user.Avatar = strings.TrimSpace(*input.Avatar)
	}
	if err := s.store.UpdateUserProfile(ctx, user.ID, user.Name, user.Avatar); err != nil {
		return nil, err
	}
	return userPayload(user), nil
}

// ListUsers lists the users the actor may manage. A non-empty query keeps
// only fuzzy matches on name or email, closest first.
func (s *Service) ListUsers(ctx context.Context, session Session, query string) ([]map[string]any, error) {
	actor := session.Actor()
	if !rbac.CanPerform(actor, rbac.ActionUserList, rbac.Target{}) {
		return nil, errForbidden()
	}
	filter := store.UserFilter{}
	if rbac.UserListScope(actor) == rbac.ScopeDelegated {
		filter = store.UserFilter{Delegated: true, Department: actor.Department, ManagerID: actor.ID}
	}
	users, err := s.store.ListUsers(ctx, filter)
	if err != nil {
		return nil, err
	}
	users = rankUsers(users, query)

	result := make([]map[string]any, 0, len(users))
	for _, u := range users {
		result = append(result, userPayload(u))
	}
	return result, nil
}

func rankUsers(users []store.User, query string) []store.User {
	query = strings.TrimSpace(query)
	if query == "" {
		return users
	}
	type ranked struct {
		user     store.User
		distance int
	}
	matches := make([]ranked, 0, len(users))
	for _, u := range users {
		best := -1
		for _, target := range []string{u.Name, u.Email} {
			d := fuzzy.RankMatchNormalizedFold(query, target)
			if d >= 0 && (best < 0 || d < best) {
				best = d
			}
		}
		if best >= 0 {
			matches = append(matches, ranked{user: u, distance: best})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].distance < matches[j].distance })

	out := make([]store.User, len(matches))
	for i, m := range matches {
		out[i] = m.user
	}
	return out
}

func (s *Service) ChangeUserRole(ctx context.Context, session Session, userID, role string) (map[string]any, error) {
	if !rbac.Valid(role) {
		return nil, errValidation("role", "unknown role")
	}
	target, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, userLookupError(err)
	}
	actor := session.Actor()
	identity := rbac.Identity{
		ID:         target.ID,
		Role:       rbac.Normalize(target.Role),
		Department: target.Department,
		ReportsTo:  target.ReportsTo,
	}
	if !rbac.CanPerform(actor, rbac.ActionUserRole, rbac.Target{Identity: identity, NewRole: rbac.Role(role)}) {
		return nil, errForbidden()
	}
	if err := s.store.UpdateUserRole(ctx, target.ID, role); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"actor_id": actor.ID,
		"user_id":  target.ID,
		"from":     target.Role,
		"to":       role,
	}).Info("user role changed")
	target.Role = role
	return userPayload(target), nil
}

// UpdateUserScope replaces the non-nil scope attributes. An empty string clears one.
func (s *Service) UpdateUserScope(ctx context.Context, session Session, userID string, input UpdateScopeInput) (map[string]any, error) {
	actor := session.Actor()
	if !rbac.CanPerform(actor, rbac.ActionUserScope, rbac.Target{}) {
		return nil, errForbidden()
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}
	target, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, userLookupError(err)
	}
	if input.BranchID != nil {
		branchID := strings.TrimSpace(*input.BranchID)
		if branchID != "" {
			if _, err := s.store.GetBranch(ctx, branchID); err != nil {
				return nil, referenceError(err, "branchId", "branch not found")
			}
		}
		target.BranchID = branchID
	}
	if input.Department != nil {
		target.Department = strings.TrimSpace(*input.Department)
	}
	if input.ReportsTo != nil {
		reportsTo := strings.TrimSpace(*input.ReportsTo)
		if reportsTo == target.ID {
			return nil, errValidation("reportsTo", "a user cannot report to themselves")
		}
		if reportsTo != "" {
			if _, err := s.store.GetUserByID(ctx, reportsTo); err != nil {
				return nil, referenceError(err, "reportsTo", "user not found")
			}
		}
		target.ReportsTo = reportsTo
	}
	if err := s.store.UpdateUserScope(ctx, target.ID, target.BranchID, target.Department, target.ReportsTo); err != nil {
		return nil, err
	}
	return userPayload(target), nil
}

func (s *Service) DeactivateUser(ctx context.Context, session Session, userID string) error {
	actor := session.Actor()
	if !rbac.CanPerform(actor, rbac.ActionUserDeactivate, rbac.Target{}) {
		return errForbidden()
	}
	if userID == actor.ID {
		return errValidation("id", "you cannot deactivate your own account")
	}
	if err := s.store.DeactivateUser(ctx, userID); err != nil {
		return userLookupError(err)
	}
	s.log.WithFields(logrus.Fields{"actor_id": actor.ID, "user_id": userID}).Info("user deactivated")
	return nil
}

func userLookupError(err error) error {
	return lookupError(err, "User")
}

// referenceError reports a missing referenced record as a field error.
func referenceError(err error, field, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errValidation(field, message)
	}
	return err
}

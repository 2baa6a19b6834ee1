package rbac

// Actor is the authenticated identity behind a request.
type Actor struct {
	ID         string
	Role       Role
	BranchID   string
	Department string
	ReportsTo  string
}

// Resource carries the visibility fields shared by workspaces and boards.
type Resource struct {
	CreatedBy    string
	IsPrivate    bool
	InvitedUsers []string
}

func (r Resource) invited(userID string) bool {
	if userID == "" {
		return false
	}
	for _, id := range r.InvitedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

func (r Resource) createdBy(userID string) bool {
	return userID != "" && r.CreatedBy == userID
}

// Identity is the target of a role assignment.
type Identity struct {
	ID         string
	Role       Role
	Department string
	ReportsTo  string
}

// Target bundles whatever an action needs to be decided.
type Target struct {
	OwnerID  string
	Resource Resource
	BranchID string
	Identity Identity
	NewRole  Role
}

type UserScope string

const (
	ScopeNone      UserScope = "none"
	ScopeAll       UserScope = "all"
	ScopeDelegated UserScope = "delegated"
)

func CanAccessResource(actor Actor, r Resource) bool {
	if actor.Role == RoleMaster {
		return true
	}
	if !active(actor) {
		return false
	}
	if actor.Role == RoleAreaDirector {
		return true
	}
	return r.createdBy(actor.ID) || r.invited(actor.ID) || !r.IsPrivate
}

func CanMutateResource(actor Actor, r Resource) bool {
	if actor.Role == RoleMaster {
		return true
	}
	if !active(actor) {
		return false
	}
	return r.createdBy(actor.ID)
}

// CanCreateBoardIn decides board creation inside workspace ws.
func CanCreateBoardIn(actor Actor, ws Resource) bool {
	if IsPrivileged(actor.Role) {
		return true
	}
	if !IsDepartment(actor.Role) {
		return false
	}
	return ws.createdBy(actor.ID) || ws.invited(actor.ID)
}

// CanEditItems gates item removal and reordering.
func CanEditItems(actor Actor, board Resource) bool {
	if actor.Role == RoleMaster {
		return true
	}
	if !active(actor) {
		return false
	}
	return board.createdBy(actor.ID) || board.invited(actor.ID)
}

// CanManageEmployee scopes HR records to the actor's branch. A missing branch denies.
func CanManageEmployee(actor Actor, officeBranchID string) bool {
	if IsPrivileged(actor.Role) {
		return true
	}
	if !IsDepartment(actor.Role) || actor.BranchID == "" {
		return false
	}
	return officeBranchID == actor.BranchID
}

// CanAssignRole also stops an AREA_DIRECTOR from changing the role of an
// existing MASTER or AREA_DIRECTOR, so demotion cannot be used to escalate.
func CanAssignRole(actor Actor, target Identity, newRole Role) bool {
	if !Valid(string(newRole)) {
		return false
	}
	switch actor.Role {
	case RoleMaster:
		return true
	case RoleAreaDirector:
		if newRole == RoleMaster || newRole == RoleAreaDirector {
			return false
		}
		if target.Role == RoleMaster || target.Role == RoleAreaDirector {
			return false
		}
		subordinate := target.ReportsTo != "" && target.ReportsTo == actor.ID
		sameDepartment := actor.Department != "" && target.Department == actor.Department
		return subordinate || sameDepartment
	default:
		return false
	}
}

func UserListScope(actor Actor) UserScope {
	switch actor.Role {
	case RoleMaster:
		return ScopeAll
	case RoleAreaDirector:
		return ScopeDelegated
	default:
		return ScopeNone
	}
}

// EmployeeFieldsFull reports whether the actor sees every employee field.
func EmployeeFieldsFull(actor Actor) bool {
	return IsPrivileged(actor.Role)
}

// ListFilter narrows workspace and board listings to what an actor may see.
type ListFilter struct {
	Restricted bool
	ActorID    string
}

func VisibilityFilter(actor Actor) ListFilter {
	return ListFilter{Restricted: !IsPrivileged(actor.Role), ActorID: actor.ID}
}

func (f ListFilter) Matches(r Resource) bool {
	if !f.Restricted {
		return true
	}
	return r.createdBy(f.ActorID) || r.invited(f.ActorID) || !r.IsPrivate
}

// OfficeScope returns the branch listings of offices and employees are limited to.
// An empty branch with restricted=true matches nothing.
func OfficeScope(actor Actor) (branchID string, restricted bool) {
	switch {
	case actor.Role == RoleMaster:
		return "", false
	case actor.Role == RoleAreaDirector:
		return actor.BranchID, actor.BranchID != ""
	default:
		return actor.BranchID, true
	}
}

func isSelfProfile(action Action) bool {
	return action == ActionProfileRead || action == ActionProfileUpdate || action == ActionPasswordChange
}

func active(actor Actor) bool {
	return actor.Role != RoleUnregistered && Valid(string(actor.Role))
}

// CanPerform is the single decision point handlers consult.
func CanPerform(actor Actor, action Action, target Target) bool {
	if actor.Role == RoleMaster {
		return true
	}
	if isSelfProfile(action) {
		return actor.ID != "" && target.OwnerID == actor.ID
	}
	if !active(actor) {
		return false
	}

	switch action {
	case ActionWorkspaceCreate, ActionBranchRead, ActionOfficeRead, ActionJobPositionRead:
		return true
	case ActionWorkspaceRead, ActionBoardRead, ActionItemCreate, ActionItemUpdate:
		return CanAccessResource(actor, target.Resource)
	case ActionWorkspaceUpdate, ActionWorkspaceDeactivate, ActionWorkspaceInvite,
		ActionBoardUpdate, ActionBoardDeactivate, ActionBoardInvite,
		ActionColumnAdd, ActionColumnRemove, ActionColumnReorder,
		ActionChartAdd, ActionChartRemove:
		return CanMutateResource(actor, target.Resource)
	case ActionBoardCreate:
		return CanCreateBoardIn(actor, target.Resource)
	case ActionItemRemove, ActionItemReorder:
		return CanEditItems(actor, target.Resource)
	case ActionOfficeCreate, ActionOfficeUpdate, ActionOfficeDeactivate,
		ActionJobPositionCreate, ActionJobPositionUpdate, ActionJobPositionDeactivate:
		return IsPrivileged(actor.Role)
	case ActionEmployeeCreate, ActionEmployeeRead, ActionEmployeeUpdate, ActionEmployeeDeactivate:
		return CanManageEmployee(actor, target.BranchID)
	case ActionUserList:
		return UserListScope(actor) != ScopeNone
	case ActionUserRole:
		return CanAssignRole(actor, target.Identity, target.NewRole)
	default:
		// branch writes, job position deletion, user scope and deactivation are MASTER only
		return false
	}
}

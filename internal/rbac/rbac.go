package rbac

import "strings"

type Role string
type Action string

const (
	RoleMaster         Role = "MASTER"
	RoleAreaDirector   Role = "AREA_DIRECTOR"
	RoleOperations     Role = "OPERATIONS"
	RoleHR             Role = "HR"
	RoleAdministration Role = "ADMINISTRATION"
	RoleUnregistered   Role = "UNREGISTERED"
)

const (
	ActionProfileRead    Action = "profile:read"
	ActionProfileUpdate  Action = "profile:update"
	ActionPasswordChange Action = "password:change"

	ActionWorkspaceCreate     Action = "workspace:create"
	ActionWorkspaceRead       Action = "workspace:read"
	ActionWorkspaceUpdate     Action = "workspace:update"
	ActionWorkspaceDeactivate Action = "workspace:deactivate"
	ActionWorkspaceInvite     Action = "workspace:invite"

	ActionBoardCreate     Action = "board:create"
	ActionBoardRead       Action = "board:read"
	ActionBoardUpdate     Action = "board:update"
	ActionBoardDeactivate Action = "board:deactivate"
	ActionBoardInvite     Action = "board:invite"
	ActionColumnAdd       Action = "column:add"
	ActionColumnRemove    Action = "column:remove"
	ActionColumnReorder   Action = "column:reorder"
	ActionChartAdd        Action = "chart:add"
	ActionChartRemove     Action = "chart:remove"
	ActionItemCreate      Action = "item:create"
	ActionItemUpdate      Action = "item:update"
	ActionItemRemove      Action = "item:remove"
	ActionItemReorder     Action = "item:reorder"

	ActionBranchCreate Action = "branch:create"
	ActionBranchRead   Action = "branch:read"
	ActionBranchUpdate Action = "branch:update"

	ActionOfficeCreate     Action = "office:create"
	ActionOfficeRead       Action = "office:read"
	ActionOfficeUpdate     Action = "office:update"
	ActionOfficeDeactivate Action = "office:deactivate"

	ActionJobPositionCreate     Action = "jobposition:create"
	ActionJobPositionRead       Action = "jobposition:read"
	ActionJobPositionUpdate     Action = "jobposition:update"
	ActionJobPositionDeactivate Action = "jobposition:deactivate"
	ActionJobPositionDelete     Action = "jobposition:delete"

	ActionEmployeeCreate     Action = "employee:create"
	ActionEmployeeRead       Action = "employee:read"
	ActionEmployeeUpdate     Action = "employee:update"
	ActionEmployeeDeactivate Action = "employee:deactivate"

	ActionUserList       Action = "user:list"
	ActionUserRole       Action = "user:role"
	ActionUserScope      Action = "user:scope"
	ActionUserDeactivate Action = "user:deactivate"
)

var displayNames = map[Role]string{
	RoleMaster:         "Master",
	RoleAreaDirector:   "Director de Área",
	RoleOperations:     "Operaciones",
	RoleHR:             "Recursos Humanos",
	RoleAdministration: "Administración",
	RoleUnregistered:   "No registrado",
}

// All returns every role, strongest first.
func All() []Role {
	return []Role{RoleMaster, RoleAreaDirector, RoleOperations, RoleHR, RoleAdministration, RoleUnregistered}
}

func Valid(role string) bool {
	_, ok := displayNames[Role(role)]
	return ok
}

// Normalize maps free-form input onto a known role. Anything unknown is UNREGISTERED.
func Normalize(role string) Role {
	candidate := Role(strings.ToUpper(strings.TrimSpace(role)))
	if _, ok := displayNames[candidate]; ok {
		return candidate
	}
	return RoleUnregistered
}

func DisplayName(role Role) string {
	if name, ok := displayNames[role]; ok {
		return name
	}
	return string(role)
}

// IsAtLeast reports whether role is MASTER or one of required.
func IsAtLeast(role Role, required ...Role) bool {
	if role == RoleMaster {
		return true
	}
	for _, candidate := range required {
		if role == candidate {
			return true
		}
	}
	return false
}

func IsDepartment(role Role) bool {
	return role == RoleOperations || role == RoleHR || role == RoleAdministration
}

func IsPrivileged(role Role) bool {
	return role == RoleMaster || role == RoleAreaDirector
}

package app

import (
	"time"

	"tablero/api/internal/board"
	"tablero/api/internal/formula"
	"tablero/api/internal/rbac"
	"tablero/api/internal/store"
)

func userPayload(u store.User) map[string]any {
	role := rbac.Normalize(u.Role)
	return map[string]any{
		"id":              u.ID,
		"name":            u.Name,
		"email":           u.Email,
		"role":            role,
		"roleDisplay":     rbac.DisplayName(role),
		"avatar":          u.Avatar,
		"branchId":        nullable(u.BranchID),
		"department":      nullable(u.Department),
		"reportsTo":       nullable(u.ReportsTo),
		"isEmailVerified": u.IsEmailVerified,
		"isActive":        u.IsActive,
		"createdAt":       u.CreatedAt,
	}
}

func workspacePayload(ws store.Workspace) map[string]any {
	invited := ws.InvitedUsers
	if invited == nil {
		invited = []string{}
	}
	return map[string]any{
		"id":           ws.ID,
		"name":         ws.Name,
		"description":  ws.Description,
		"createdBy":    ws.CreatedBy,
		"isPrivate":    ws.IsPrivate,
		"isActive":     ws.IsActive,
		"invitedUsers": invited,
		"createdAt":    ws.CreatedAt,
		"updatedAt":    ws.UpdatedAt,
	}
}

// boardSummary leaves out items, which listings never need.
func boardSummary(b *board.Board) map[string]any {
	invited := b.InvitedUsers
	if invited == nil {
		invited = []string{}
	}
	return map[string]any{
		"id":           b.ID,
		"workspaceId":  b.WorkspaceID,
		"name":         b.Name,
		"description":  b.Description,
		"createdBy":    b.CreatedBy,
		"isPrivate":    b.IsPrivate,
		"invitedUsers": invited,
		"columnCount":  len(b.Columns),
		"createdAt":    b.CreatedAt,
		"updatedAt":    b.UpdatedAt,
	}
}

// BoardView is a full board with formula results keyed by item id, then column id.
type BoardView struct {
	*board.Board
	Computed map[string]map[string]formula.Result `json:"computed"`
}

func boardView(b *board.Board) BoardView {
	return BoardView{Board: b, Computed: formula.Annotate(b)}
}

type ItemView struct {
	board.Item
	Computed map[string]formula.Result `json:"computed"`
}

func itemView(b *board.Board, item board.Item) ItemView {
	computed := formula.Annotate(b)[item.ID]
	if computed == nil {
		computed = map[string]formula.Result{}
	}
	return ItemView{Item: item, Computed: computed}
}

func branchPayload(b store.Branch) map[string]any {
	return map[string]any{
		"id":        b.ID,
		"name":      b.Name,
		"code":      b.Code,
		"city":      b.City,
		"state":     b.State,
		"country":   b.Country,
		"isActive":  b.IsActive,
		"createdAt": b.CreatedAt,
		"updatedAt": b.UpdatedAt,
	}
}

func officePayload(o store.BranchOffice) map[string]any {
	return map[string]any{
		"id":         o.ID,
		"name":       o.Name,
		"code":       o.Code,
		"branchId":   o.BranchID,
		"branchName": o.BranchName,
		"address":    o.Address,
		"phone":      o.Phone,
		"managerId":  nullable(o.ManagerID),
		"isActive":   o.IsActive,
		"createdAt":  o.CreatedAt,
		"updatedAt":  o.UpdatedAt,
	}
}

func jobPositionPayload(p store.JobPosition) map[string]any {
	return map[string]any{
		"id":          p.ID,
		"name":        p.Name,
		"code":        p.Code,
		"description": p.Description,
		"baseSalary":  p.BaseSalary,
		"isActive":    p.IsActive,
		"createdAt":   p.CreatedAt,
		"updatedAt":   p.UpdatedAt,
	}
}

// employeePayload returns the reduced field set unless full is set.
func employeePayload(e store.Employee, full bool) map[string]any {
	office := map[string]any{"id": e.BranchOfficeID, "name": e.BranchOfficeName}
	payload := map[string]any{
		"id":               e.ID,
		"employeeCode":     e.EmployeeCode,
		"name":             e.Name,
		"lastName":         e.LastName,
		"branchOffice":     office,
		"employmentStatus": e.EmploymentStatus,
	}
	if !full {
		return payload
	}
	payload["branchOfficeId"] = e.BranchOfficeID
	payload["branchId"] = e.BranchID
	payload["jobPositionId"] = nullable(e.JobPositionID)
	payload["jobPosition"] = nullable(e.JobPositionName)
	payload["phone"] = e.Phone
	payload["email"] = e.Email
	payload["hireDate"] = e.HireDate.Format(dateLayout)
	payload["birthDate"] = formatDate(e.BirthDate)
	payload["maritalStatus"] = nullable(e.MaritalStatus)
	payload["rfc"] = e.RFC
	payload["curp"] = e.CURP
	payload["nss"] = e.NSS
	payload["salary"] = e.Salary
	payload["terminationDate"] = formatDate(e.TerminationDate)
	payload["observations"] = e.Observations
	payload["createdBy"] = e.CreatedBy
	payload["createdAt"] = e.CreatedAt
	payload["updatedAt"] = e.UpdatedAt
	return payload
}

const dateLayout = "2006-01-02"

func formatDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

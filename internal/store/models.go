package store

import (
	"time"

	"tablero/api/internal/rbac"
)

type User struct {
	ID                    string
	Name                  string
	Email                 string
	PasswordHash          string
	Role                  string
	Avatar                string
	BranchID              string
	Department            string
	ReportsTo             string
	IsEmailVerified       bool
	IsActive              bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// UserFilter narrows ListUsers. A zero filter lists everyone.
type UserFilter struct {
	Delegated  bool
	Department string
	ManagerID  string
}

type Workspace struct {
	ID           string
	Name         string
	Description  string
	CreatedBy    string
	IsPrivate    bool
	IsActive     bool
	InvitedUsers []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (w Workspace) AccessResource() rbac.Resource {
	return rbac.Resource{CreatedBy: w.CreatedBy, IsPrivate: w.IsPrivate, InvitedUsers: w.InvitedUsers}
}

type Branch struct {
	ID        string
	Name      string
	Code      string
	City      string
	State     string
	Country   string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type BranchOffice struct {
	ID         string
	Name       string
	Code       string
	BranchID   string
	BranchName string
	Address    string
	Phone      string
	ManagerID  string
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type JobPosition struct {
	ID          string
	Name        string
	Code        string
	Description string
	BaseSalary  float64
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const (
	EmploymentActive   = "ACTIVO"
	EmploymentInactive = "INACTIVO"
)

type Employee struct {
	ID               string
	EmployeeCode     string
	Name             string
	LastName         string
	BranchOfficeID   string
	BranchOfficeName string
	BranchID         string
	JobPositionID    string
	JobPositionName  string
	Phone            string
	Email            string
	HireDate         time.Time
	BirthDate        *time.Time
	MaritalStatus    string
	RFC              string
	CURP             string
	NSS              string
	Salary           float64
	EmploymentStatus string
	TerminationDate  *time.Time
	Observations     string
	CreatedBy        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (e Employee) FullName() string {
	return e.Name + " " + e.LastName
}

// EmployeeFilter narrows ListEmployees. BranchID restricts to offices of that branch when set.
type EmployeeFilter struct {
	BranchID       *string
	BranchOfficeID string
	Status         string
}

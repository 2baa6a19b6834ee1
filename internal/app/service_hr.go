package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"tablero/api/internal/rbac"
	"tablero/api/internal/search"
	"tablero/api/internal/store"
	"tablero/api/internal/util"
)

const defaultCountry = "México"

type CreateBranchInput struct {
	Name    string `json:"name" validate:"required,max=100"`
	Code    string `json:"code" validate:"required,max=10"`
	City    string `json:"city" validate:"max=100"`
	State   string `json:"state" validate:"max=100"`
	Country string `json:"country" validate:"max=100"`
}

type UpdateBranchInput struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=100"`
	Code     *string `json:"code" validate:"omitempty,min=1,max=10"`
	City     *string `json:"city" validate:"omitempty,max=100"`
	State    *string `json:"state" validate:"omitempty,max=100"`
	Country  *string `json:"country" validate:"omitempty,max=100"`
	IsActive *bool   `json:"isActive"`
}

type CreateOfficeInput struct {
	Name      string `json:"name" validate:"required,max=100"`
	Code      string `json:"code" validate:"required,max=15"`
	BranchID  string `json:"branchId" validate:"required"`
	Address   string `json:"address" validate:"max=300"`
	Phone     string `json:"phone" validate:"max=30"`
	ManagerID string `json:"managerId"`
}

type UpdateOfficeInput struct {
	Name      *string `json:"name" validate:"omitempty,min=1,max=100"`
	Code      *string `json:"code" validate:"omitempty,min=1,max=15"`
	BranchID  *string `json:"branchId" validate:"omitempty,min=1"`
	Address   *string `json:"address" validate:"omitempty,max=300"`
	Phone     *string `json:"phone" validate:"omitempty,max=30"`
	ManagerID *string `json:"managerId"`
}

type CreateJobPositionInput struct {
	Name        string  `json:"name" validate:"required,max=100"`
	Code        string  `json:"code" validate:"required,max=20"`
	Description string  `json:"description" validate:"max=500"`
	BaseSalary  float64 `json:"baseSalary" validate:"gte=0"`
}

type UpdateJobPositionInput struct {
	Name        *string  `json:"name" validate:"omitempty,min=1,max=100"`
	Code        *string  `json:"code" validate:"omitempty,min=1,max=20"`
	Description *string  `json:"description" validate:"omitempty,max=500"`
	BaseSalary  *float64 `json:"baseSalary" validate:"omitempty,gte=0"`
}

type CreateEmployeeInput struct {
	Name           string  `json:"name" validate:"required,max=100"`
	LastName       string  `json:"lastName" validate:"required,max=100"`
	BranchOfficeID string  `json:"branchOfficeId" validate:"required"`
	JobPositionID  string  `json:"jobPositionId"`
	Phone          string  `json:"phone" validate:"max=30"`
	Email          string  `json:"email" validate:"omitempty,email"`
	HireDate       string  `json:"hireDate" validate:"required"`
	BirthDate      string  `json:"birthDate"`
	MaritalStatus  string  `json:"maritalStatus" validate:"omitempty,oneof=SOLTERO CASADO DIVORCIADO VIUDO UNION_LIBRE"`
	RFC            string  `json:"rfc" validate:"max=13"`
	CURP           string  `json:"curp" validate:"max=18"`
	NSS            string  `json:"nss" validate:"max=11"`
	Salary         float64 `json:"salary" validate:"gte=0"`
	Observations   string  `json:"observations" validate:"max=1000"`
}

type UpdateEmployeeInput struct {
	Name           *string  `json:"name" validate:"omitempty,min=1,max=100"`
	LastName       *string  `json:"lastName" validate:"omitempty,min=1,max=100"`
	BranchOfficeID *string  `json:"branchOfficeId" validate:"omitempty,min=1"`
	JobPositionID  *string  `json:"jobPositionId"`
	Phone          *string  `json:"phone" validate:"omitempty,max=30"`
	Email          *string  `json:"email" validate:"omitempty,email"`
	HireDate       *string  `json:"hireDate" validate:"omitempty,min=1"`
	BirthDate      *string  `json:"birthDate"`
	MaritalStatus  *string  `json:"maritalStatus" validate:"omitempty,oneof=SOLTERO CASADO DIVORCIADO VIUDO UNION_LIBRE"`
	RFC            *string  `json:"rfc" validate:"omitempty,max=13"`
	CURP           *string  `json:"curp" validate:"omitempty,max=18"`
	NSS            *string  `json:"nss" validate:"omitempty,max=11"`
	Salary         *float64 `json:"salary" validate:"omitempty,gte=0"`
	Observations   *string  `json:"observations" validate:"omitempty,max=1000"`
}

// Branches

func (s *Service) ListBranches(ctx context.Context, session Session) ([]map[string]any, error) {
	if !rbac.CanPerform(session.Actor(), rbac.ActionBranchRead, rbac.Target{}) {
		return nil, errForbidden()
	}
	branches, err := s.store.ListBranches(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]map[string]any, 0, len(branches))
	for _, b := range branches {
		result = append(result, branchPayload(b))
	}
	return result, nil
}

func (s *Service) CreateBranch(ctx context.Context, session Session, input CreateBranchInput) (map[string]any, error) {
	if !rbac.CanPerform(session.Actor(), rbac.ActionBranchCreate, rbac.Target{}) {
		return nil, errForbidden()
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	branch := store.Branch{
		ID:        util.NewID("br"),
		Name:      strings.TrimSpace(input.Name),
		Code:      normalizeCode(input.Code),
		City:      strings.TrimSpace(input.City),
		State:     strings.TrimSpace(input.State),
		Country:   strings.TrimSpace(input.Country),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if branch.Country == "" {
		branch.Country = defaultCountry
	}
	if err := s.store.CreateBranch(ctx, branch); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"branch_id": branch.ID, "code": branch.Code}).Info("branch created")
	return branchPayload(branch), nil
}

func (s *Service) UpdateBranch(ctx context.Context, session Session, branchID string, input UpdateBranchInput) (map[string]any, error) {
	if !rbac.CanPerform(session.Actor(), rbac.ActionBranchUpdate, rbac.Target{}) {
		return nil, errForbidden()
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}
	branch, err := s.store.GetBranch(ctx, branchID)
	if err != nil {
		return nil, lookupError(err, "Branch")
	}
	if input.Name != nil {
		branch.Name = strings.TrimSpace(*input.Name)
	}
	if input.Code != nil {
		branch.Code = normalizeCode(*input.Code)
	}
	if input.City != nil {
		branch.City = strings.TrimSpace(*input.City)
	}
	if input.State != nil {
		branch.State = strings.TrimSpace(*input.State)
	}
	if input.Country != nil {
		branch.Country = strings.TrimSpace(*input.Country)
	}
	if input.IsActive != nil {
		branch.IsActive = *input.IsActive
	}
	if err := s.store.UpdateBranch(ctx, branch); err != nil {
		return nil, err
	}
	return branchPayload(branch), nil
}

// Branch offices

func (s *Service) ListBranchOffices(ctx context.Context, session Session) ([]map[string]any, error) {
	actor := session.Actor()
	if !rbac.CanPerform(actor, rbac.ActionOfficeRead, rbac.Target{}) {
		return nil, errForbidden()
	}
	branchID, restricted := rbac.OfficeScope(actor)
	offices, err := s.store.ListBranchOffices(ctx, branchID, restricted)
	if err != nil {
		return nil, err
	}
	result := make([]map[string]any, 0, len(offices))
	for _, o := range offices {
		result = append(result, officePayload(o))
	}
	return result, nil
}

func (s *Service) CreateBranchOffice(ctx context.Context, session Session, input CreateOfficeInput) (map[string]any, error) {
	if !rbac.CanPerform(session.Actor(), rbac.ActionOfficeCreate, rbac.Target{}) {
		return nil, errForbidden()
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}
	branch, err := s.store.GetBranch(ctx, input.BranchID)
	if err != nil {
		return nil, referenceError(err, "branchId", "branch not found")
	}
	if err := s.checkManager(ctx, input.ManagerID); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	office := store.BranchOffice{
		ID:         util.NewID("off"),
		Name:       strings.TrimSpace(input.Name),
		Code:       normalizeCode(input.Code),
		BranchID:   branch.ID,
		BranchName: branch.Name,
		Address:    strings.TrimSpace(input.Address),
		Phone:      strings.TrimSpace(input.Phone),
		ManagerID:  strings.TrimSpace(input.ManagerID),
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreateBranchOffice(ctx, office); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"office_id": office.ID, "branch_id": branch.ID}).Info("branch office created")
	return officePayload(office), nil
}

func (s *Service) UpdateBranchOffice(ctx context.Context, session Session, officeID string, input UpdateOfficeInput) (map[string]any, error) {
	if !rbac.CanPerform(session.Actor(), rbac.ActionOfficeUpdate, rbac.Target{}) {
		return nil, errForbidden()
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}
	office, err := s.store.GetBranchOffice(ctx, officeID)
	if err != nil {
		return nil, lookupError(err, "Branch office")
	}
	if input.Name != nil {
		office.Name = strings.TrimSpace(*input.Name)
	}
	if input.Code != nil {
		office.Code = normalizeCode(*input.Code)
	}
	if input.BranchID != nil && *input.BranchID != office.BranchID {
		branch, err := s.store.GetBranch(ctx, *input.BranchID)
		if err != nil {
			return nil, referenceError(err, "branchId", "branch not found")
		}
		office.BranchID = branch.ID
		office.BranchName = branch.Name
	}
	if input.Address != nil {
		office.Address = strings.TrimSpace(*input.Address)
	}
	if input.Phone != nil {
		office.Phone = strings.TrimSpace(*input.Phone)
	}
	if input.ManagerID != nil {
		if err := s.checkManager(ctx, *input.ManagerID); err != nil {
			return nil, err
		}
		office.ManagerID = strings.TrimSpace(*input.ManagerID)
	}
	if err := s.store.UpdateBranchOffice(ctx, office); err != nil {
		return nil, err
	}
	return officePayload(office), nil
}

func (s *Service) DeactivateBranchOffice(ctx context.Context, session Session, officeID string) error {
	if !rbac.CanPerform(session.Actor(), rbac.ActionOfficeDeactivate, rbac.Target{}) {
		return errForbidden()
	}
	if err := s.store.DeactivateBranchOffice(ctx, officeID); err != nil {
		return lookupError(err, "Branch office")
	}
	return nil
}

func (s *Service) checkManager(ctx context.Context, managerID string) error {
	managerID = strings.TrimSpace(managerID)
	if managerID == "" {
		return nil
	}
	if _, err := s.store.GetUserByID(ctx, managerID); err != nil {
		return referenceError(err, "managerId", "user not found")
	}
	return nil
}

// Job positions

func (s *Service) ListJobPositions(ctx context.Context, session Session) ([]map[string]any, error) {
	if !rbac.CanPerform(session.Actor(), rbac.ActionJobPositionRead, rbac.Target{}) {
		return nil, errForbidden()
	}
	positions, err := s.store.ListJobPositions(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]map[string]any, 0, len(positions))
	for _, p := range positions {
		result = append(result, jobPositionPayload(p))
	}
	return result, nil
}

func (s *Service) CreateJobPosition(ctx context.Context, session Session, input CreateJobPositionInput) (map[string]any, error) {
	if !rbac.CanPerform(session.Actor(), rbac.ActionJobPositionCreate, rbac.Target{}) {
		return nil, errForbidden()
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	position := store.JobPosition{
		ID:          util.NewID("pos"),
		Name:        strings.TrimSpace(input.Name),
		Code:        normalizeCode(input.Code),
		Description: strings.TrimSpace(input.Description),
		BaseSalary:  input.BaseSalary,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateJobPosition(ctx, position); err != nil {
		return nil, err
	}
	return jobPositionPayload(position), nil
}

func (s *Service) UpdateJobPosition(ctx context.Context, session Session, positionID string, input UpdateJobPositionInput) (map[string]any, error) {
	if !rbac.CanPerform(session.Actor(), rbac.ActionJobPositionUpdate, rbac.Target{}) {
		return nil, errForbidden()
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}
	position, err := s.store.GetJobPosition(ctx, positionID)
	if err != nil {
		return nil, lookupError(err, "Job position")
	}
	if input.Name != nil {
		position.Name = strings.TrimSpace(*input.Name)
	}
	if input.Code != nil {
		position.Code = normalizeCode(*input.Code)
	}
	if input.Description != nil {
		position.Description = strings.TrimSpace(*input.Description)
	}
	if input.BaseSalary != nil {
		position.BaseSalary = *input.BaseSalary
	}
	if err := s.store.UpdateJobPosition(ctx, position); err != nil {
		return nil, err
	}
	return jobPositionPayload(position), nil
}

func (s *Service) DeactivateJobPosition(ctx context.Context, session Session, positionID string) error {
	if !rbac.CanPerform(session.Actor(), rbac.ActionJobPositionDeactivate, rbac.Target{}) {
		return errForbidden()
	}
	if err := s.store.DeactivateJobPosition(ctx, positionID); err != nil {
		return lookupError(err, "Job position")
	}
	return nil
}

// DeleteJobPosition fails with a validation error while employees hold the position.
func (s *Service) DeleteJobPosition(ctx context.Context, session Session, positionID string) error {
	if !rbac.CanPerform(session.Actor(), rbac.ActionJobPositionDelete, rbac.Target{}) {
		return errForbidden()
	}
	if err := s.store.DeleteJobPosition(ctx, positionID); err != nil {
		if errors.Is(err, store.ErrInUse) {
			return errValidation("id", "job position is assigned to employees")
		}
		return lookupError(err, "Job position")
	}
	return nil
}

// Employees

// officeFor resolves the office an employee is (or will be) assigned to and
// applies the branch scoping rule for action.
func (s *Service) officeFor(ctx context.Context, actor rbac.Actor, officeID string, action rbac.Action) (store.BranchOffice, error) {
	office, err := s.store.GetBranchOffice(ctx, officeID)
	if err != nil {
		return store.BranchOffice{}, referenceError(err, "branchOfficeId", "branch office not found")
	}
	if !rbac.CanPerform(actor, action, rbac.Target{BranchID: office.BranchID}) {
		return store.BranchOffice{}, errForbidden()
	}
	return office, nil
}

func (s *Service) ListEmployees(ctx context.Context, session Session, officeID, status string) ([]map[string]any, error) {
	actor := session.Actor()
	filter := store.EmployeeFilter{BranchOfficeID: strings.TrimSpace(officeID), Status: strings.ToUpper(strings.TrimSpace(status))}
	switch {
	case rbac.IsPrivileged(actor.Role):
	case rbac.IsDepartment(actor.Role) && actor.BranchID != "":
		branchID := actor.BranchID
		filter.BranchID = &branchID
	default:
		return nil, errForbidden()
	}
	if filter.Status != "" && filter.Status != store.EmploymentActive && filter.Status != store.EmploymentInactive {
		return nil, errValidation("status", "status must be ACTIVO or INACTIVO")
	}
	employees, err := s.store.ListEmployees(ctx, filter)
	if err != nil {
		return nil, err
	}
	full := rbac.EmployeeFieldsFull(actor)
	result := make([]map[string]any, 0, len(employees))
	for _, e := range employees {
		result = append(result, employeePayload(e, full))
	}
	return result, nil
}

func (s *Service) CreateEmployee(ctx context.Context, session Session, input CreateEmployeeInput) (map[string]any, error) {
	actor := session.Actor()
	if err := requireRegistered(actor); err != nil {
		return nil, err
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}
	office, err := s.officeFor(ctx, actor, input.BranchOfficeID, rbac.ActionEmployeeCreate)
	if err != nil {
		return nil, err
	}
	if err := s.checkJobPosition(ctx, input.JobPositionID); err != nil {
		return nil, err
	}
	hireDate, err := parseDate("hireDate", input.HireDate)
	if err != nil {
		return nil, err
	}
	birthDate, err := parseOptionalDate("birthDate", input.BirthDate)
	if err != nil {
		return nil, err
	}

	employee := store.Employee{
		ID:               util.NewID("emp"),
		EmployeeCode:     util.EmployeeCode(),
		Name:             strings.TrimSpace(input.Name),
		LastName:         strings.TrimSpace(input.LastName),
		BranchOfficeID:   office.ID,
		JobPositionID:    strings.TrimSpace(input.JobPositionID),
		Phone:            strings.TrimSpace(input.Phone),
		Email:            strings.TrimSpace(input.Email),
		HireDate:         hireDate,
		BirthDate:        birthDate,
		MaritalStatus:    input.MaritalStatus,
		RFC:              strings.ToUpper(strings.TrimSpace(input.RFC)),
		CURP:             strings.ToUpper(strings.TrimSpace(input.CURP)),
		NSS:              strings.TrimSpace(input.NSS),
		Salary:           input.Salary,
		EmploymentStatus: store.EmploymentActive,
		Observations:     strings.TrimSpace(input.Observations),
		CreatedBy:        actor.ID,
	}
	if err := s.store.CreateEmployee(ctx, employee); err != nil {
		return nil, err
	}
	created, err := s.store.GetEmployee(ctx, employee.ID)
	if err != nil {
		return nil, err
	}
	s.indexEmployee(created)
	s.log.WithFields(logrus.Fields{"employee_id": created.ID, "office_id": office.ID, "actor_id": actor.ID}).Info("employee created")
	return employeePayload(created, rbac.EmployeeFieldsFull(actor)), nil
}

// loadEmployee returns the employee if the actor may act on its current office.
func (s *Service) loadEmployee(ctx context.Context, actor rbac.Actor, employeeID string, action rbac.Action) (store.Employee, error) {
	if err := requireRegistered(actor); err != nil {
		return store.Employee{}, err
	}
	employee, err := s.store.GetEmployee(ctx, employeeID)
	if err != nil {
		return store.Employee{}, lookupError(err, "Employee")
	}
	if !rbac.CanPerform(actor, action, rbac.Target{BranchID: employee.BranchID}) {
		return store.Employee{}, errForbidden()
	}
	return employee, nil
}

func (s *Service) GetEmployee(ctx context.Context, session Session, employeeID string) (map[string]any, error) {
	actor := session.Actor()
	employee, err := s.loadEmployee(ctx, actor, employeeID, rbac.ActionEmployeeRead)
	if err != nil {
		return nil, err
	}
	return employeePayload(employee, rbac.EmployeeFieldsFull(actor)), nil
}

// UpdateEmployee may move the employee only to an office the actor also manages.
func (s *Service) UpdateEmployee(ctx context.Context, session Session, employeeID string, input UpdateEmployeeInput) (map[string]any, error) {
	actor := session.Actor()
	employee, err := s.loadEmployee(ctx, actor, employeeID, rbac.ActionEmployeeUpdate)
	if err != nil {
		return nil, err
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if input.BranchOfficeID != nil && *input.BranchOfficeID != employee.BranchOfficeID {
		office, err := s.officeFor(ctx, actor, *input.BranchOfficeID, rbac.ActionEmployeeUpdate)
		if err != nil {
			return nil, err
		}
		employee.BranchOfficeID = office.ID
	}
	if input.JobPositionID != nil {
		if err := s.checkJobPosition(ctx, *input.JobPositionID); err != nil {
			return nil, err
		}
		employee.JobPositionID = strings.TrimSpace(*input.JobPositionID)
	}
	if input.HireDate != nil {
		hireDate, err := parseDate("hireDate", *input.HireDate)
		if err != nil {
			return nil, err
		}
		employee.HireDate = hireDate
	}
	if input.BirthDate != nil {
		birthDate, err := parseOptionalDate("birthDate", *input.BirthDate)
		if err != nil {
			return nil, err
		}
		employee.BirthDate = birthDate
	}
	applyString(&employee.Name, input.Name)
	applyString(&employee.LastName, input.LastName)
	applyString(&employee.Phone, input.Phone)
	applyString(&employee.Email, input.Email)
	applyString(&employee.MaritalStatus, input.MaritalStatus)
	applyString(&employee.NSS, input.NSS)
	applyString(&employee.Observations, input.Observations)
	if input.RFC != nil {
		employee.RFC = strings.ToUpper(strings.TrimSpace(*input.RFC))
	}
	if input.CURP != nil {
		employee.CURP = strings.ToUpper(strings.TrimSpace(*input.CURP))
	}
	if input.Salary != nil {
		employee.Salary = *input.Salary
	}

	if err := s.store.UpdateEmployee(ctx, employee); err != nil {
		return nil, err
	}
	updated, err := s.store.GetEmployee(ctx, employee.ID)
	if err != nil {
		return nil, err
	}
	s.indexEmployee(updated)
	return employeePayload(updated, rbac.EmployeeFieldsFull(actor)), nil
}

func (s *Service) DeactivateEmployee(ctx context.Context, session Session, employeeID string) (map[string]any, error) {
	actor := session.Actor()
	employee, err := s.loadEmployee(ctx, actor, employeeID, rbac.ActionEmployeeDeactivate)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeactivateEmployee(ctx, employee.ID); err != nil {
		return nil, lookupError(err, "Employee")
	}
	deactivated, err := s.store.GetEmployee(ctx, employee.ID)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"employee_id": employee.ID, "actor_id": actor.ID}).Info("employee deactivated")
	return employeePayload(deactivated, rbac.EmployeeFieldsFull(actor)), nil
}

func (s *Service) checkJobPosition(ctx context.Context, positionID string) error {
	positionID = strings.TrimSpace(positionID)
	if positionID == "" {
		return nil
	}
	if _, err := s.store.GetJobPosition(ctx, positionID); err != nil {
		return referenceError(err, "jobPositionId", "job position not found")
	}
	return nil
}

func (s *Service) indexEmployee(e store.Employee) {
	if s.search == nil {
		return
	}
	s.search.IndexEmployee(search.EmployeeRecord{
		ID:             e.ID,
		EmployeeCode:   e.EmployeeCode,
		Name:           e.Name,
		LastName:       e.LastName,
		BranchOfficeID: e.BranchOfficeID,
	})
}

func lookupError(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errNotFound(what)
	}
	return err
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func applyString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

// parseDate accepts a calendar date or an RFC 3339 timestamp.
func parseDate(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(dateLayout, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, errValidation(field, "invalid date, expected YYYY-MM-DD")
}

func parseOptionalDate(field, value string) (*time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	t, err := parseDate(field, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

func (s *PostgresStore) CreateBranch(ctx context.Context, branch Branch) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO branches (id, name, code, city, state, country, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
	`, branch.ID, branch.Name, branch.Code, branch.City, branch.State, branch.Country)
	if err != nil {
		return fmt.Errorf("insert branch: %w", classify(err))
	}
	return nil
}

const branchColumns = `id, name, code, city, state, country, is_active, created_at, updated_at`

func scanBranch(row rowScanner) (Branch, error) {
	var b Branch
	err := row.Scan(&b.ID, &b.Name, &b.Code, &b.City, &b.State, &b.Country, &b.IsActive, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

func (s *PostgresStore) GetBranch(ctx context.Context, branchID string) (Branch, error) {
	return scanBranch(s.db.QueryRowContext(ctx, `SELECT `+branchColumns+` FROM branches WHERE id=$1`, branchID))
}

func (s *PostgresStore) ListBranches(ctx context.Context) ([]Branch, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+branchColumns+` FROM branches WHERE is_active ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	defer rows.Close()

	items := make([]Branch, 0)
	for rows.Next() {
		b, err := scanBranch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan branch: %w", err)
		}
		items = append(items, b)
	}
	return items, rows.Err()
}

func (s *PostgresStore) UpdateBranch(ctx context.Context, branch Branch) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE branches SET name=$2, code=$3, city=$4, state=$5, country=$6, is_active=$7, updated_at=NOW()
		WHERE id=$1
	`, branch.ID, branch.Name, branch.Code, branch.City, branch.State, branch.Country, branch.IsActive)
	if err != nil {
		return fmt.Errorf("update branch: %w", classify(err))
	}
	return expectRow(result)
}

const officeColumns = `o.id, o.name, o.code, o.branch_id, b.name, o.address, o.phone, o.manager_id, o.is_active,
	o.created_at, o.updated_at`

func scanOffice(row rowScanner) (BranchOffice, error) {
	var (
		o         BranchOffice
		managerID sql.NullString
	)
	err := row.Scan(&o.ID, &o.Name, &o.Code, &o.BranchID, &o.BranchName, &o.Address, &o.Phone, &managerID,
		&o.IsActive, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return BranchOffice{}, err
	}
	o.ManagerID = managerID.String
	return o, nil
}

func (s *PostgresStore) CreateBranchOffice(ctx context.Context, office BranchOffice) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO branch_offices (id, name, code, branch_id, address, phone, manager_id, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
	`, office.ID, office.Name, office.Code, office.BranchID, office.Address, office.Phone, nullString(office.ManagerID))
	if err != nil {
		return fmt.Errorf("insert branch office: %w", classify(err))
	}
	return nil
}

func (s *PostgresStore) GetBranchOffice(ctx context.Context, officeID string) (BranchOffice, error) {
	return scanOffice(s.db.QueryRowContext(ctx, `
		SELECT `+officeColumns+` FROM branch_offices o JOIN branches b ON b.id = o.branch_id WHERE o.id=$1
	`, officeID))
}

// ListBranchOffices lists active offices, limited to branchID when restricted.
func (s *PostgresStore) ListBranchOffices(ctx context.Context, branchID string, restricted bool) ([]BranchOffice, error) {
	query := `SELECT ` + officeColumns + ` FROM branch_offices o JOIN branches b ON b.id = o.branch_id WHERE o.is_active`
	args := []any{}
	if restricted {
		query += ` AND o.branch_id = $1`
		args = append(args, branchID)
	}
	query += ` ORDER BY o.name ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list branch offices: %w", err)
	}
	defer rows.Close()

	items := make([]BranchOffice, 0)
	for rows.Next() {
		o, err := scanOffice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan branch office: %w", err)
		}
		items = append(items, o)
	}
	return items, rows.Err()
}

func (s *PostgresStore) UpdateBranchOffice(ctx context.Context, office BranchOffice) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE branch_offices SET name=$2, code=$3, branch_id=$4, address=$5, phone=$6, manager_id=$7, updated_at=NOW()
		WHERE id=$1
	`, office.ID, office.Name, office.Code, office.BranchID, office.Address, office.Phone, nullString(office.ManagerID))
	if err != nil {
		return fmt.Errorf("update branch office: %w", classify(err))
	}
	return expectRow(result)
}

func (s *PostgresStore) DeactivateBranchOffice(ctx context.Context, officeID string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE branch_offices SET is_active=FALSE, updated_at=NOW() WHERE id=$1`, officeID)
	if err != nil {
		return fmt.Errorf("deactivate branch office: %w", err)
	}
	return expectRow(result)
}

const jobPositionColumns = `id, name, code, description, base_salary::float8, is_active, created_at, updated_at`

func scanJobPosition(row rowScanner) (JobPosition, error) {
	var p JobPosition
	err := row.Scan(&p.ID, &p.Name, &p.Code, &p.Description, &p.BaseSalary, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *PostgresStore) CreateJobPosition(ctx context.Context, p JobPosition) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_positions (id, name, code, description, base_salary, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
	`, p.ID, p.Name, p.Code, p.Description, p.BaseSalary)
	if err != nil {
		return fmt.Errorf("insert job position: %w", classify(err))
	}
	return nil
}

func (s *PostgresStore) GetJobPosition(ctx context.Context, id string) (JobPosition, error) {
	return scanJobPosition(s.db.QueryRowContext(ctx, `SELECT `+jobPositionColumns+` FROM job_positions WHERE id=$1`, id))
}

func (s *PostgresStore) ListJobPositions(ctx context.Context) ([]JobPosition, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobPositionColumns+` FROM job_positions WHERE is_active ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list job positions: %w", err)
	}
	defer rows.Close()

	items := make([]JobPosition, 0)
	for rows.Next() {
		p, err := scanJobPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job position: %w", err)
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (s *PostgresStore) UpdateJobPosition(ctx context.Context, p JobPosition) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE job_positions SET name=$2, code=$3, description=$4, base_salary=$5, updated_at=NOW() WHERE id=$1
	`, p.ID, p.Name, p.Code, p.Description, p.BaseSalary)
	if err != nil {
		return fmt.Errorf("update job position: %w", classify(err))
	}
	return expectRow(result)
}

func (s *PostgresStore) DeactivateJobPosition(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE job_positions SET is_active=FALSE, updated_at=NOW() WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("deactivate job position: %w", err)
	}
	return expectRow(result)
}

// DeleteJobPosition refuses with ErrInUse while employees still hold the position.
func (s *PostgresStore) DeleteJobPosition(ctx context.Context, id string) error {
	var assigned int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM employees WHERE job_position_id=$1`, id).Scan(&assigned); err != nil {
		return fmt.Errorf("count job position employees: %w", err)
	}
	if assigned > 0 {
		return ErrInUse
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM job_positions WHERE id=$1`, id)
	if err != nil {
		if pgCode(err) == foreignKeyViolation {
			return ErrInUse
		}
		return fmt.Errorf("delete job position: %w", err)
	}
	return expectRow(result)
}

const employeeColumns = `e.id, e.employee_code, e.name, e.last_name, e.branch_office_id, o.name, o.branch_id,
	e.job_position_id, COALESCE(jp.name, ''), e.phone, e.email, e.hire_date, e.birth_date, e.marital_status,
	e.rfc, e.curp, e.nss, e.salary::float8, e.employment_status, e.termination_date, e.observations,
	e.created_by, e.created_at, e.updated_at`

const employeeFrom = ` FROM employees e
	JOIN branch_offices o ON o.id = e.branch_office_id
	LEFT JOIN job_positions jp ON jp.id = e.job_position_id`

func scanEmployee(row rowScanner) (Employee, error) {
	var (
		e               Employee
		jobPositionID   sql.NullString
		birthDate       sql.NullTime
		terminationDate sql.NullTime
	)
	err := row.Scan(&e.ID, &e.EmployeeCode, &e.Name, &e.LastName, &e.BranchOfficeID, &e.BranchOfficeName, &e.BranchID,
		&jobPositionID, &e.JobPositionName, &e.Phone, &e.Email, &e.HireDate, &birthDate, &e.MaritalStatus,
		&e.RFC, &e.CURP, &e.NSS, &e.Salary, &e.EmploymentStatus, &terminationDate, &e.Observations,
		&e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return Employee{}, err
	}
	e.JobPositionID = jobPositionID.String
	e.BirthDate = timePtr(birthDate)
	e.TerminationDate = timePtr(terminationDate)
	return e, nil
}

func (s *PostgresStore) CreateEmployee(ctx context.Context, e Employee) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (id, employee_code, name, last_name, branch_office_id, job_position_id, phone, email,
			hire_date, birth_date, marital_status, rfc, curp, nss, salary, employment_status, observations, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, e.ID, e.EmployeeCode, e.Name, e.LastName, e.BranchOfficeID, nullString(e.JobPositionID), e.Phone, e.Email,
		e.HireDate, e.BirthDate, e.MaritalStatus, e.RFC, e.CURP, e.NSS, e.Salary, EmploymentActive, e.Observations, e.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert employee: %w", classify(err))
	}
	return nil
}

func (s *PostgresStore) GetEmployee(ctx context.Context, id string) (Employee, error) {
	return scanEmployee(s.db.QueryRowContext(ctx, `SELECT `+employeeColumns+employeeFrom+` WHERE e.id=$1`, id))
}

func (s *PostgresStore) ListEmployees(ctx context.Context, filter EmployeeFilter) ([]Employee, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.BranchID != nil {
		args = append(args, *filter.BranchID)
		clauses = append(clauses, fmt.Sprintf("o.branch_id = $%d", len(args)))
	}
	if filter.BranchOfficeID != "" {
		args = append(args, filter.BranchOfficeID)
		clauses = append(clauses, fmt.Sprintf("e.branch_office_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		clauses = append(clauses, fmt.Sprintf("e.employment_status = $%d", len(args)))
	}
	query := `SELECT ` + employeeColumns + employeeFrom
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY e.last_name ASC, e.name ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	defer rows.Close()

	items := make([]Employee, 0)
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

func (s *PostgresStore) UpdateEmployee(ctx context.Context, e Employee) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE employees SET name=$2, last_name=$3, branch_office_id=$4, job_position_id=$5, phone=$6, email=$7,
			hire_date=$8, birth_date=$9, marital_status=$10, rfc=$11, curp=$12, nss=$13, salary=$14, observations=$15,
			updated_at=NOW()
		WHERE id=$1
	`, e.ID, e.Name, e.LastName, e.BranchOfficeID, nullString(e.JobPositionID), e.Phone, e.Email,
		e.HireDate, e.BirthDate, e.MaritalStatus, e.RFC, e.CURP, e.NSS, e.Salary, e.Observations)
	if err != nil {
		return fmt.Errorf("update employee: %w", classify(err))
	}
	return expectRow(result)
}

func (s *PostgresStore) DeactivateEmployee(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE employees SET employment_status=$2, termination_date=NOW(), updated_at=NOW() WHERE id=$1
	`, id, EmploymentInactive)
	if err != nil {
		return fmt.Errorf("deactivate employee: %w", err)
	}
	return expectRow(result)
}

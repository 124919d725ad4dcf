package repo

import (
	"context"
	"database/sql"
	"strings"

	"onboardline/internal/domain"
)

func (r Repo) GetEmployeeRecordByCase(ctx context.Context, tx *sql.Tx, caseID string) (domain.EmployeeRecord, error) {
	var e domain.EmployeeRecord
	err := r.q(tx).QueryRowContext(ctx, `SELECT employee_id,case_id,full_name,email,department,created_at FROM employee_records WHERE case_id=?`, caseID).
		Scan(&e.EmployeeID, &e.CaseID, &e.FullName, &e.Email, &e.Department, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	return e, err
}

// InsertEmployeeRecord inserts the record unless the case already has one.
// It reports whether a row was written.
func (r Repo) InsertEmployeeRecord(ctx context.Context, tx *sql.Tx, e domain.EmployeeRecord) (bool, error) {
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO employee_records(employee_id,case_id,full_name,email,department,created_at) VALUES (?,?,?,?,?,?)
ON CONFLICT(case_id) DO NOTHING`, e.EmployeeID, e.CaseID, e.FullName, e.Email, e.Department, e.CreatedAt)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r Repo) GetWorkplaceAssignment(ctx context.Context, tx *sql.Tx, caseID string) (domain.WorkplaceAssignment, error) {
	var (
		a                   domain.WorkplaceAssignment
		seat, bundle, model sql.NullString
	)
	err := r.q(tx).QueryRowContext(ctx, `SELECT case_id,employee_id,seat_id,bundle_name,device_model,updated_at FROM workplace_assignments WHERE case_id=?`, caseID).
		Scan(&a.CaseID, &a.EmployeeID, &seat, &bundle, &model, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	a.SeatID, a.BundleName, a.DeviceModel = seat.String, bundle.String, model.String
	return a, err
}

// UpsertWorkplaceAssignment writes the one assignment of a case; the last write wins.
func (r Repo) UpsertWorkplaceAssignment(ctx context.Context, tx *sql.Tx, a domain.WorkplaceAssignment) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO workplace_assignments(case_id,employee_id,seat_id,bundle_name,device_model,updated_at) VALUES (?,?,?,?,?,?)
ON CONFLICT(case_id) DO UPDATE SET employee_id=excluded.employee_id, seat_id=excluded.seat_id, bundle_name=excluded.bundle_name, device_model=excluded.device_model, updated_at=excluded.updated_at`,
		a.CaseID, a.EmployeeID, nullable(a.SeatID), nullable(a.BundleName), nullable(a.DeviceModel), a.UpdatedAt)
	return err
}

const employeeSelect = `SELECT e.employee_id,e.case_id,e.full_name,e.email,e.department,e.created_at,
c.role,COALESCE(c.start_date,''),c.status,c.steps_json,
w.seat_id,w.bundle_name,w.device_model,w.updated_at
FROM employee_records e
JOIN cases c ON c.id=e.case_id
LEFT JOIN workplace_assignments w ON w.case_id=e.case_id`

func scanEmployee(row rowScanner) (domain.Employee, error) {
	var (
		e                              domain.Employee
		status, steps                  string
		seat, bundle, model, updatedAt sql.NullString
	)
	err := row.Scan(&e.EmployeeID, &e.CaseID, &e.FullName, &e.Email, &e.Department, &e.CreatedAt,
		&e.Role, &e.StartDate, &status, &steps, &seat, &bundle, &model, &updatedAt)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	e.Status = domain.Status(status)
	if err := jsonUnmarshalString(steps, &e.Steps); err != nil {
		return e, err
	}
	if updatedAt.Valid {
		e.Assets = &domain.WorkplaceAssignment{
			CaseID:      e.CaseID,
			EmployeeID:  e.EmployeeID,
			SeatID:      seat.String,
			BundleName:  bundle.String,
			DeviceModel: model.String,
			UpdatedAt:   updatedAt.String,
		}
	}
	return e, nil
}

func (r Repo) GetEmployee(ctx context.Context, employeeID string) (domain.Employee, error) {
	return scanEmployee(r.DB.QueryRowContext(ctx, employeeSelect+` WHERE e.employee_id=?`, employeeID))
}

// ListEmployees returns employees whose case is in one of statuses.
func (r Repo) ListEmployees(ctx context.Context, statuses []domain.Status) ([]domain.Employee, error) {
	query := employeeSelect
	var args []any
	if len(statuses) > 0 {
		marks := make([]string, len(statuses))
		for i, s := range statuses {
			marks[i] = "?"
			args = append(args, string(s))
		}
		query += ` WHERE c.status IN (` + strings.Join(marks, ",") + `)`
	}
	query += ` ORDER BY e.created_at DESC, e.employee_id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Employee{}
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

package repo

import (
	"context"
	"database/sql"

	"retentionline/internal/domain"
)

// EnsureStaff inserts a staff member or refreshes name and handle when
// provided.
func (r Repo) EnsureStaff(ctx context.Context, tx *sql.Tx, s domain.Staff) error {
	_, err := r.conn(tx).ExecContext(ctx, `INSERT INTO staff(id,name,handle,created_at) VALUES (?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
  name=CASE WHEN excluded.name='' THEN staff.name ELSE excluded.name END,
  handle=CASE WHEN excluded.handle='' THEN staff.handle ELSE excluded.handle END`,
		s.ID, s.Name, s.Handle, s.CreatedAt)
	return err
}

func (r Repo) GetStaff(ctx context.Context, id string) (domain.Staff, error) {
	var s domain.Staff
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,handle,created_at FROM staff WHERE id=?`, id).Scan(&s.ID, &s.Name, &s.Handle, &s.CreatedAt)
	return s, notFound(err)
}

func (r Repo) ListStaff(ctx context.Context) ([]domain.Staff, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,handle,created_at FROM staff ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStaffRows(rows)
}

func (r Repo) AssignDepartment(ctx context.Context, tx *sql.Tx, unitID string, dept domain.Department, staffID, now string) error {
	_, err := r.conn(tx).ExecContext(ctx, `INSERT OR IGNORE INTO department_members(unit_id,department,staff_id,created_at) VALUES (?,?,?,?)`,
		unitID, dept, staffID, now)
	return err
}

func (r Repo) RemoveFromDepartment(ctx context.Context, tx *sql.Tx, unitID string, dept domain.Department, staffID string) error {
	_, err := r.conn(tx).ExecContext(ctx, `DELETE FROM department_members WHERE unit_id=? AND department=? AND staff_id=?`, unitID, dept, staffID)
	return err
}

// DepartmentMembers lists the staff assigned to a department of a unit.
func (r Repo) DepartmentMembers(ctx context.Context, unitID string, dept domain.Department) ([]domain.Staff, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT s.id,s.name,s.handle,s.created_at FROM department_members m JOIN staff s ON s.id=m.staff_id
WHERE m.unit_id=? AND m.department=? ORDER BY s.name, s.id`, unitID, dept)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStaffRows(rows)
}

func scanStaffRows(rows *sql.Rows) ([]domain.Staff, error) {
	var res []domain.Staff
	for rows.Next() {
		var s domain.Staff
		if err := rows.Scan(&s.ID, &s.Name, &s.Handle, &s.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

package repo

import (
	"context"
	"database/sql"

	"retentionline/internal/domain"
)

const activityColumns = `t.id,t.alert_id,t.type,t.description,t.responsible_person_id,t.responsible_person_name,t.responsible_department,t.responsible_teacher_id,t.status,t.scheduled_date,t.start_time,t.end_time,t.previous_activity_id,t.bundle_id,t.bundle_kind,t.completed_by,t.completed_by_name,t.completed_at,t.created_by,t.created_at`

func scanActivity(row scanner) (domain.Activity, error) {
	var a domain.Activity
	var personID, personName, dept, teacherID, scheduled, start, end, prev, bundleID, bundleKind, completedBy, completedByName, completedAt sql.NullString
	err := row.Scan(&a.ID, &a.AlertID, &a.Type, &a.Description, &personID, &personName, &dept, &teacherID, &a.Status,
		&scheduled, &start, &end, &prev, &bundleID, &bundleKind, &completedBy, &completedByName, &completedAt, &a.CreatedBy, &a.CreatedAt)
	if err != nil {
		return a, notFound(err)
	}
	a.ResponsiblePersonID = stringPtr(personID)
	a.ResponsiblePersonName = stringPtr(personName)
	if dept.Valid {
		d := domain.Department(dept.String)
		a.ResponsibleDepartment = &d
	}
	a.ResponsibleTeacherID = stringPtr(teacherID)
	a.ScheduledDate = stringPtr(scheduled)
	a.StartTime = stringPtr(start)
	a.EndTime = stringPtr(end)
	a.PreviousActivityID = stringPtr(prev)
	a.BundleID = stringPtr(bundleID)
	if bundleKind.Valid {
		k := domain.BundleKind(bundleKind.String)
		a.BundleKind = &k
	}
	a.CompletedBy = stringPtr(completedBy)
	a.CompletedByName = stringPtr(completedByName)
	a.CompletedAt = stringPtr(completedAt)
	return a, nil
}

func (r Repo) InsertActivity(ctx context.Context, tx *sql.Tx, a domain.Activity) error {
	var dept, kind any
	if a.ResponsibleDepartment != nil {
		dept = string(*a.ResponsibleDepartment)
	}
	if a.BundleKind != nil {
		kind = string(*a.BundleKind)
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO activities(id,alert_id,type,description,responsible_person_id,responsible_person_name,responsible_department,responsible_teacher_id,status,scheduled_date,start_time,end_time,previous_activity_id,bundle_id,bundle_kind,completed_by,completed_by_name,completed_at,created_by,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.AlertID, a.Type, a.Description, nullableStringPtr(a.ResponsiblePersonID), nullableStringPtr(a.ResponsiblePersonName),
		dept, nullableStringPtr(a.ResponsibleTeacherID), a.Status, nullableStringPtr(a.ScheduledDate), nullableStringPtr(a.StartTime),
		nullableStringPtr(a.EndTime), nullableStringPtr(a.PreviousActivityID), nullableStringPtr(a.BundleID), kind,
		nullableStringPtr(a.CompletedBy), nullableStringPtr(a.CompletedByName), nullableStringPtr(a.CompletedAt), a.CreatedBy, a.CreatedAt)
	return err
}

// GetActivity returns the activity when its alert belongs to unitID.
func (r Repo) GetActivity(ctx context.Context, tx *sql.Tx, unitID, id string) (domain.Activity, error) {
	return scanActivity(r.conn(tx).QueryRowContext(ctx, `SELECT `+activityColumns+` FROM activities t JOIN alerts a ON a.id=t.alert_id WHERE t.id=? AND a.unit_id=?`, id, unitID))
}

// ListActivities returns an alert's activities in creation order.
func (r Repo) ListActivities(ctx context.Context, tx *sql.Tx, alertID string) ([]domain.Activity, error) {
	rows, err := r.conn(tx).QueryContext(ctx, `SELECT `+activityColumns+` FROM activities t WHERE t.alert_id=? ORDER BY t.created_at, t.rowid`, alertID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// CompleteActivity closes a pending activity. It reports false, and writes
// nothing, when the activity was already completed.
func (r Repo) CompleteActivity(ctx context.Context, tx *sql.Tx, id, by, byName, at string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE activities SET status='completed', completed_by=?, completed_by_name=?, completed_at=? WHERE id=? AND status='pending'`,
		by, nullable(byName), at, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r Repo) UpdateActivityDescription(ctx context.Context, tx *sql.Tx, id, description string) error {
	_, err := tx.ExecContext(ctx, `UPDATE activities SET description=? WHERE id=?`, description, id)
	return err
}

// OpenBundleMembers counts the pending activities of a bundle.
func (r Repo) OpenBundleMembers(ctx context.Context, tx *sql.Tx, bundleID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM activities WHERE bundle_id=? AND status='pending'`, bundleID).Scan(&n)
	return n, err
}

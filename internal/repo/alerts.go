package repo

import (
	"context"
	"database/sql"
	"strings"

	"retentionline/internal/domain"
)

const alertColumns = `a.id,a.unit_id,a.student_ref,a.student_name,a.class_ref,a.origin_category,a.description,a.reported_by,a.occurred_on,a.retention_deadline,a.status,COALESCE(c.column_name,'todo'),a.created_at,a.updated_at`

const alertFrom = ` FROM alerts a LEFT JOIN kanban_cards c ON c.alert_id=a.id `

func scanAlert(row scanner) (domain.Alert, error) {
	var a domain.Alert
	var classRef, deadline sql.NullString
	err := row.Scan(&a.ID, &a.UnitID, &a.StudentRef, &a.StudentName, &classRef, &a.OriginCategory, &a.Description,
		&a.ReportedBy, &a.OccurredOn, &deadline, &a.Status, &a.KanbanColumn, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return a, notFound(err)
	}
	a.ClassRef = stringPtr(classRef)
	a.RetentionDeadline = stringPtr(deadline)
	return a, nil
}

func (r Repo) InsertAlert(ctx context.Context, tx *sql.Tx, a domain.Alert) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO alerts(id,unit_id,student_ref,student_name,class_ref,origin_category,description,reported_by,occurred_on,retention_deadline,status,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.UnitID, a.StudentRef, a.StudentName, nullableStringPtr(a.ClassRef), a.OriginCategory, a.Description,
		a.ReportedBy, a.OccurredOn, nullableStringPtr(a.RetentionDeadline), a.Status, a.CreatedAt, a.UpdatedAt)
	return err
}

// GetAlert returns the alert only when it belongs to unitID.
func (r Repo) GetAlert(ctx context.Context, tx *sql.Tx, unitID, id string) (domain.Alert, error) {
	return scanAlert(r.conn(tx).QueryRowContext(ctx, `SELECT `+alertColumns+alertFrom+`WHERE a.id=? AND a.unit_id=?`, id, unitID))
}

// UpdateAlertStatus moves an alert from one status to another. It reports
// false when the row was not in the expected status.
func (r Repo) UpdateAlertStatus(ctx context.Context, tx *sql.Tx, id string, from, to domain.AlertStatus, now string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE alerts SET status=?, updated_at=? WHERE id=? AND status=?`, to, now, id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

type AlertFilters struct {
	UnitID          string
	Status          string
	Column          string
	StudentRef      string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListAlerts(ctx context.Context, f AlertFilters) ([]domain.Alert, error) {
	clauses := []string{"a.unit_id=?"}
	args := []any{f.UnitID}
	if f.Status != "" {
		clauses = append(clauses, "a.status=?")
		args = append(args, f.Status)
	}
	if f.Column != "" {
		clauses = append(clauses, "c.column_name=?")
		args = append(args, f.Column)
	}
	if f.StudentRef != "" {
		clauses = append(clauses, "a.student_ref=?")
		args = append(args, f.StudentRef)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(a.created_at < ? OR (a.created_at = ? AND a.id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	query := `SELECT ` + alertColumns + alertFrom + `WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY a.created_at DESC, a.id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

package repo

import (
	"context"
	"database/sql"

	"retentionline/internal/domain"
)

// EnsureUnit creates the unit row if missing and refreshes its name.
func (r Repo) EnsureUnit(ctx context.Context, tx *sql.Tx, unit domain.Unit) error {
	_, err := r.conn(tx).ExecContext(ctx, `INSERT INTO units(id,name,created_at) VALUES (?,?,?)
ON CONFLICT(id) DO UPDATE SET name=CASE WHEN excluded.name='' THEN units.name ELSE excluded.name END`,
		unit.ID, unit.Name, unit.CreatedAt)
	return err
}

func (r Repo) GetUnit(ctx context.Context, id string) (domain.Unit, error) {
	var u domain.Unit
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,created_at FROM units WHERE id=?`, id).Scan(&u.ID, &u.Name, &u.CreatedAt)
	return u, notFound(err)
}

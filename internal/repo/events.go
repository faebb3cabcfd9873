package repo

import (
	"context"
	"database/sql"
	"strings"

	"retentionline/internal/domain"
)

type EventFilters struct {
	UnitID     string
	EntityKind string
	EntityID   string
	Type       string
	AfterID    int64
	Limit      int
}

func (f EventFilters) where() (string, []any) {
	clauses := []string{"id > ?"}
	args := []any{f.AfterID}
	if f.UnitID != "" {
		clauses = append(clauses, "unit_id=?")
		args = append(args, f.UnitID)
	}
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	return strings.Join(clauses, " AND "), args
}

// ListEvents returns events oldest first, after the given id.
func (r Repo) ListEvents(ctx context.Context, f EventFilters) ([]domain.Event, error) {
	where, args := f.where()
	query := `SELECT id,ts,type,unit_id,entity_kind,entity_id,actor_id,payload_json FROM events WHERE ` + where + ` ORDER BY id`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return r.queryEvents(ctx, query, args...)
}

// LatestEvents returns the newest f.Limit events, oldest first.
func (r Repo) LatestEvents(ctx context.Context, f EventFilters) ([]domain.Event, error) {
	where, args := f.where()
	query := `SELECT id,ts,type,unit_id,entity_kind,entity_id,actor_id,payload_json FROM events WHERE ` + where + ` ORDER BY id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	res, err := r.queryEvents(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(res)-1; i < j; i, j = i+1, j-1 {
		res[i], res[j] = res[j], res[i]
	}
	return res, nil
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var unitID, entityID sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &unitID, &e.EntityKind, &entityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		e.UnitID = unitID.String
		e.EntityID = entityID.String
		res = append(res, e)
	}
	return res, rows.Err()
}

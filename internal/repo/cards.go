package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"retentionline/internal/domain"
)

const cardColumns = `id,alert_id,unit_id,column_name,priority,tags_json,notes,attachments_json,due_date,result_outcome,finalized_at,finalized_by,created_at,updated_at`

func scanCard(row scanner) (domain.Card, error) {
	var c domain.Card
	var tags, attachments string
	var due, outcome, finalizedAt, finalizedBy sql.NullString
	err := row.Scan(&c.ID, &c.AlertID, &c.UnitID, &c.Column, &c.Priority, &tags, &c.Notes, &attachments,
		&due, &outcome, &finalizedAt, &finalizedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return c, notFound(err)
	}
	if err := json.Unmarshal([]byte(tags), &c.Tags); err != nil {
		return c, fmt.Errorf("card %s tags: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(attachments), &c.Attachments); err != nil {
		return c, fmt.Errorf("card %s attachments: %w", c.ID, err)
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
	if c.Attachments == nil {
		c.Attachments = []string{}
	}
	c.DueDate = stringPtr(due)
	if outcome.Valid {
		o := domain.ResultOutcome(outcome.String)
		c.ResultOutcome = &o
	}
	c.FinalizedAt = stringPtr(finalizedAt)
	c.FinalizedBy = stringPtr(finalizedBy)
	return c, nil
}

func encodeList(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	data, err := json.Marshal(v)
	return string(data), err
}

func (r Repo) InsertCard(ctx context.Context, tx *sql.Tx, c domain.Card) error {
	tags, err := encodeList(c.Tags)
	if err != nil {
		return err
	}
	attachments, err := encodeList(c.Attachments)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO kanban_cards(id,alert_id,unit_id,column_name,priority,tags_json,notes,attachments_json,due_date,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.AlertID, c.UnitID, c.Column, c.Priority, tags, c.Notes, attachments, nullableStringPtr(c.DueDate), c.CreatedAt, c.UpdatedAt)
	return err
}

func (r Repo) GetCard(ctx context.Context, tx *sql.Tx, unitID, id string) (domain.Card, error) {
	return scanCard(r.conn(tx).QueryRowContext(ctx, `SELECT `+cardColumns+` FROM kanban_cards WHERE id=? AND unit_id=?`, id, unitID))
}

func (r Repo) GetCardByAlert(ctx context.Context, tx *sql.Tx, alertID string) (domain.Card, error) {
	return scanCard(r.conn(tx).QueryRowContext(ctx, `SELECT `+cardColumns+` FROM kanban_cards WHERE alert_id=?`, alertID))
}

type CardFilters struct {
	UnitID   string
	Column   string
	Priority string
	Tag      string
}

// ListCards returns the board ordered by creation.
func (r Repo) ListCards(ctx context.Context, f CardFilters) ([]domain.Card, error) {
	clauses := []string{"unit_id=?"}
	args := []any{f.UnitID}
	if f.Column != "" {
		clauses = append(clauses, "column_name=?")
		args = append(args, f.Column)
	}
	if f.Priority != "" {
		clauses = append(clauses, "priority=?")
		args = append(args, f.Priority)
	}
	if f.Tag != "" {
		clauses = append(clauses, "EXISTS (SELECT 1 FROM json_each(tags_json) WHERE json_each.value=?)")
		args = append(args, f.Tag)
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+cardColumns+` FROM kanban_cards WHERE `+strings.Join(clauses, " AND ")+` ORDER BY created_at, rowid`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) UpdateCardColumn(ctx context.Context, tx *sql.Tx, id string, column domain.Column, now string) error {
	_, err := tx.ExecContext(ctx, `UPDATE kanban_cards SET column_name=?, updated_at=? WHERE id=?`, column, now, id)
	return err
}

// CardPatch holds the optional board metadata of a card update.
type CardPatch struct {
	Priority    *domain.Priority
	Tags        *[]string
	Notes       *string
	Attachments *[]string
	DueDate     *string
}

func (r Repo) UpdateCard(ctx context.Context, tx *sql.Tx, id string, p CardPatch, now string) error {
	var (
		fields []string
		args   []any
	)
	if p.Priority != nil {
		fields = append(fields, "priority=?")
		args = append(args, string(*p.Priority))
	}
	if p.Tags != nil {
		tags, err := encodeList(*p.Tags)
		if err != nil {
			return err
		}
		fields = append(fields, "tags_json=?")
		args = append(args, tags)
	}
	if p.Notes != nil {
		fields = append(fields, "notes=?")
		args = append(args, *p.Notes)
	}
	if p.Attachments != nil {
		attachments, err := encodeList(*p.Attachments)
		if err != nil {
			return err
		}
		fields = append(fields, "attachments_json=?")
		args = append(args, attachments)
	}
	if p.DueDate != nil {
		fields = append(fields, "due_date=?")
		args = append(args, nullable(*p.DueDate))
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, now, id)
	_, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE kanban_cards SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	return err
}

// FinalizeCard locks the outcome and moves the card to done. It reports
// false when an outcome was already recorded.
func (r Repo) FinalizeCard(ctx context.Context, tx *sql.Tx, id string, outcome domain.ResultOutcome, actorID, now string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE kanban_cards SET result_outcome=?, finalized_at=?, finalized_by=?, column_name='done', updated_at=? WHERE id=? AND result_outcome IS NULL`,
		outcome, now, actorID, now, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r Repo) AppendCardHistory(ctx context.Context, tx *sql.Tx, cardID, actorID, line, now string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO card_history(card_id,ts,actor_id,line) VALUES (?,?,?,?)`, cardID, now, actorID, line)
	return err
}

func (r Repo) ListCardHistory(ctx context.Context, cardID string) ([]domain.CardHistoryEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,card_id,ts,actor_id,line FROM card_history WHERE card_id=? ORDER BY id`, cardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CardHistoryEntry
	for rows.Next() {
		var h domain.CardHistoryEntry
		if err := rows.Scan(&h.ID, &h.CardID, &h.TS, &h.ActorID, &h.Line); err != nil {
			return nil, err
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

// FinalizedOutcome is the statistics view of a finalized card.
type FinalizedOutcome struct {
	Outcome     domain.ResultOutcome
	FinalizedAt string
}

func (r Repo) ListFinalizedOutcomes(ctx context.Context, unitID string) ([]FinalizedOutcome, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT result_outcome, finalized_at FROM kanban_cards WHERE unit_id=? AND result_outcome IS NOT NULL AND finalized_at IS NOT NULL`, unitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []FinalizedOutcome
	for rows.Next() {
		var f FinalizedOutcome
		if err := rows.Scan(&f.Outcome, &f.FinalizedAt); err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, rows.Err()
}

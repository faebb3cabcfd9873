package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Writer appends durable event rows inside the caller's transaction.
type Writer struct {
	Now func() time.Time
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evt Event) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	payload := evt.Payload
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,unit_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, string(evt.Type), nullable(evt.UnitID), evt.EntityKind, nullable(evt.EntityID), evt.ActorID, string(data))
	return err
}

// AppendAll writes evts in order, stopping at the first failure.
func (w Writer) AppendAll(ctx context.Context, tx *sql.Tx, evts []Event) error {
	for _, evt := range evts {
		if err := w.Append(ctx, tx, evt); err != nil {
			return fmt.Errorf("append %s: %w", evt.Type, err)
		}
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

package engine

import (
	"context"
	"fmt"
	"strings"

	"retentionline/internal/domain"
	"retentionline/internal/events"
	"retentionline/internal/repo"
)

// BoardEntry is a card with the alert it tracks.
type BoardEntry struct {
	Card  domain.Card  `json:"card"`
	Alert domain.Alert `json:"alert"`
}

type BoardFilters struct {
	Column   string
	Priority string
	Tag      string
}

func (e Engine) Board(ctx context.Context, f BoardFilters) ([]BoardEntry, error) {
	if f.Column != "" && !domain.Column(f.Column).Valid() {
		return nil, invalid("column", "unknown column %q", f.Column)
	}
	if f.Priority != "" && !domain.Priority(f.Priority).Valid() {
		return nil, invalid("priority", "unknown priority %q", f.Priority)
	}
	cards, err := e.Repo.ListCards(ctx, repo.CardFilters{UnitID: e.UnitID, Column: f.Column, Priority: f.Priority, Tag: f.Tag})
	if err != nil {
		return nil, err
	}
	out := make([]BoardEntry, 0, len(cards))
	for _, c := range cards {
		a, err := e.Repo.GetAlert(ctx, nil, e.UnitID, c.AlertID)
		if err != nil {
			return nil, fmt.Errorf("card %s alert: %w", c.ID, err)
		}
		out = append(out, BoardEntry{Card: c, Alert: a})
	}
	return out, nil
}

func (e Engine) GetCard(ctx context.Context, cardID string) (domain.Card, error) {
	c, err := e.Repo.GetCard(ctx, nil, e.UnitID, cardID)
	if err != nil {
		return c, notFound("card", cardID, err)
	}
	return c, nil
}

// CardForAlert returns the board card of an alert.
func (e Engine) CardForAlert(ctx context.Context, alertID string) (domain.Card, error) {
	if _, err := e.GetAlert(ctx, alertID); err != nil {
		return domain.Card{}, err
	}
	c, err := e.Repo.GetCardByAlert(ctx, nil, alertID)
	if err != nil {
		return c, notFound("card", alertID, err)
	}
	return c, nil
}

func (e Engine) CardHistory(ctx context.Context, cardID string) ([]domain.CardHistoryEntry, error) {
	if _, err := e.GetCard(ctx, cardID); err != nil {
		return nil, err
	}
	return e.Repo.ListCardHistory(ctx, cardID)
}

func (o *op) loadCard(ctx context.Context, cardID string) (domain.Card, error) {
	c, err := o.e.Repo.GetCard(ctx, o.tx, o.e.UnitID, cardID)
	if err != nil {
		return c, notFound("card", cardID, err)
	}
	return c, nil
}

// MoveCard changes the card's column. Alert status is never touched.
func (e Engine) MoveCard(ctx context.Context, cardID string, column domain.Column, actor Actor) (domain.Card, error) {
	if err := actor.validate(); err != nil {
		return domain.Card{}, err
	}
	if !column.Valid() {
		return domain.Card{}, invalid("column", "unknown column %q", column)
	}
	o, err := e.begin(ctx, actor)
	if err != nil {
		return domain.Card{}, err
	}
	defer o.rollback()
	c, err := o.loadCard(ctx, cardID)
	if err != nil {
		return c, err
	}
	from := c.Column
	if err := e.Repo.UpdateCardColumn(ctx, o.tx, c.ID, column, o.now); err != nil {
		return c, fmt.Errorf("move card: %w", err)
	}
	if err := e.Repo.AppendCardHistory(ctx, o.tx, c.ID, actor.ID, fmt.Sprintf("moved from %s to %s", from, column), o.now); err != nil {
		return c, err
	}
	o.record(events.CardMoved, events.KindCard, c.ID, events.Payload{"alert_id": c.AlertID, "from": string(from), "to": string(column)})
	c.Column = column
	c.UpdatedAt = o.now
	if err := o.commit(ctx); err != nil {
		return c, err
	}
	return c, nil
}

// CardUpdate is a partial update; nil fields are left unchanged.
type CardUpdate struct {
	Priority    *string
	Tags        *[]string
	Notes       *string
	Attachments *[]string
	DueDate     *string
}

func (e Engine) UpdateCard(ctx context.Context, cardID string, u CardUpdate, actor Actor) (domain.Card, error) {
	if err := actor.validate(); err != nil {
		return domain.Card{}, err
	}
	patch := repo.CardPatch{Tags: u.Tags, Notes: u.Notes, Attachments: u.Attachments, DueDate: u.DueDate}
	var changed []string
	if u.Priority != nil {
		p := domain.Priority(*u.Priority)
		if !p.Valid() {
			return domain.Card{}, invalid("priority", "unknown priority %q", *u.Priority)
		}
		patch.Priority = &p
		changed = append(changed, "priority="+*u.Priority)
	}
	if u.DueDate != nil && *u.DueDate != "" && !validDate(*u.DueDate) {
		return domain.Card{}, invalid("due_date", "due_date must be a date in YYYY-MM-DD format")
	}
	if u.Tags != nil {
		changed = append(changed, "tags")
	}
	if u.Notes != nil {
		changed = append(changed, "notes")
	}
	if u.Attachments != nil {
		changed = append(changed, "attachments")
	}
	if u.DueDate != nil {
		changed = append(changed, "due_date")
	}

	o, err := e.begin(ctx, actor)
	if err != nil {
		return domain.Card{}, err
	}
	defer o.rollback()
	c, err := o.loadCard(ctx, cardID)
	if err != nil {
		return c, err
	}
	if len(changed) == 0 {
		return c, nil
	}
	if err := e.Repo.UpdateCard(ctx, o.tx, c.ID, patch, o.now); err != nil {
		return c, fmt.Errorf("update card: %w", err)
	}
	if err := e.Repo.AppendCardHistory(ctx, o.tx, c.ID, actor.ID, "updated "+strings.Join(changed, ", "), o.now); err != nil {
		return c, err
	}
	o.record(events.CardUpdated, events.KindCard, c.ID, events.Payload{"alert_id": c.AlertID, "fields": changed})
	updated, err := o.loadCard(ctx, cardID)
	if err != nil {
		return c, err
	}
	if err := o.commit(ctx); err != nil {
		return c, err
	}
	return updated, nil
}

// outcomeAgrees reports whether a board outcome is consistent with the
// alert's terminal status.
func outcomeAgrees(status domain.AlertStatus, outcome domain.ResultOutcome) bool {
	switch status {
	case domain.AlertRetained:
		return outcome == domain.OutcomeRetained
	case domain.AlertChurned:
		return outcome == domain.OutcomeEvaded
	case domain.AlertResolved:
		return true
	}
	return false
}

// FinalizeCard locks the result of a terminal alert and moves its card to
// done. The outcome can be written once.
func (e Engine) FinalizeCard(ctx context.Context, cardID string, outcome domain.ResultOutcome, actor Actor) (domain.Card, error) {
	if err := actor.validate(); err != nil {
		return domain.Card{}, err
	}
	if !outcome.Valid() {
		return domain.Card{}, invalid("outcome", "outcome must be evaded or retained")
	}
	o, err := e.begin(ctx, actor)
	if err != nil {
		return domain.Card{}, err
	}
	defer o.rollback()
	c, err := o.loadCard(ctx, cardID)
	if err != nil {
		return c, err
	}
	if c.Finalized() {
		return c, &AlreadyFinalizedError{CardID: c.ID, Outcome: string(*c.ResultOutcome)}
	}
	if err := o.loadAlert(ctx, c.AlertID); err != nil {
		return c, err
	}
	if !o.alert.Status.Terminal() {
		return c, &InvalidTransitionError{Entity: "card", From: string(o.alert.Status), To: "finalized"}
	}
	if !outcomeAgrees(o.alert.Status, outcome) {
		return c, invalid("outcome", "outcome %s does not match alert status %s", outcome, o.alert.Status)
	}
	ok, err := e.Repo.FinalizeCard(ctx, o.tx, c.ID, outcome, actor.ID, o.now)
	if err != nil {
		return c, fmt.Errorf("finalize card: %w", err)
	}
	if !ok {
		return c, &AlreadyFinalizedError{CardID: c.ID}
	}
	line := fmt.Sprintf("finalized as %s (alert %s)", outcome, o.alert.Status)
	if err := e.Repo.AppendCardHistory(ctx, o.tx, c.ID, actor.ID, line, o.now); err != nil {
		return c, err
	}
	o.record(events.AlertFinalized, events.KindCard, c.ID, events.Payload{
		"alert_id": c.AlertID,
		"outcome":  string(outcome),
		"status":   string(o.alert.Status),
	})
	final, err := o.loadCard(ctx, c.ID)
	if err != nil {
		return c, err
	}
	if err := o.commit(ctx); err != nil {
		return c, err
	}
	return final, nil
}

package engine

import (
	"context"
	"fmt"
	"strings"

	"retentionline/internal/domain"
	"retentionline/internal/events"
	"retentionline/internal/repo"
)

// NewAlert is the input for opening a retention alert.
type NewAlert struct {
	StudentRef        string `json:"student_ref" validate:"required"`
	StudentName       string `json:"student_name"`
	ClassRef          string `json:"class_ref"`
	OriginCategory    string `json:"origin_category" validate:"required,origin"`
	Description       string `json:"description"`
	OccurredOn        string `json:"occurred_on" validate:"required,date"`
	RetentionDeadline string `json:"retention_deadline" validate:"omitempty,date"`
	Priority          string `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
}

// CreateAlert opens a pending alert and its board card in one transaction.
func (e Engine) CreateAlert(ctx context.Context, in NewAlert, actor Actor) (domain.Alert, error) {
	if err := actor.validate(); err != nil {
		return domain.Alert{}, err
	}
	in.StudentRef = strings.TrimSpace(in.StudentRef)
	if err := validateStruct(in); err != nil {
		return domain.Alert{}, err
	}
	o, err := e.begin(ctx, actor)
	if err != nil {
		return domain.Alert{}, err
	}
	defer o.rollback()

	a := domain.Alert{
		ID:                newID(),
		UnitID:            e.UnitID,
		StudentRef:        in.StudentRef,
		StudentName:       strings.TrimSpace(in.StudentName),
		ClassRef:          optionalString(strings.TrimSpace(in.ClassRef)),
		OriginCategory:    domain.OriginCategory(in.OriginCategory),
		Description:       in.Description,
		ReportedBy:        actor.ID,
		OccurredOn:        in.OccurredOn,
		RetentionDeadline: optionalString(in.RetentionDeadline),
		Status:            domain.AlertPending,
		KanbanColumn:      domain.ColumnTodo,
		CreatedAt:         o.now,
		UpdatedAt:         o.now,
	}
	if err := e.Repo.InsertAlert(ctx, o.tx, a); err != nil {
		return domain.Alert{}, fmt.Errorf("insert alert: %w", err)
	}
	priority := domain.PriorityMedium
	if in.Priority != "" {
		priority = domain.Priority(in.Priority)
	}
	card := domain.Card{
		ID:        newID(),
		AlertID:   a.ID,
		UnitID:    a.UnitID,
		Column:    domain.ColumnTodo,
		Priority:  priority,
		DueDate:   a.RetentionDeadline,
		CreatedAt: o.now,
		UpdatedAt: o.now,
	}
	if err := e.Repo.InsertCard(ctx, o.tx, card); err != nil {
		return domain.Alert{}, fmt.Errorf("insert card: %w", err)
	}
	if err := e.Repo.AppendCardHistory(ctx, o.tx, card.ID, actor.ID, "card created in todo", o.now); err != nil {
		return domain.Alert{}, err
	}
	o.alert = a
	o.record(events.AlertCreated, events.KindAlert, a.ID, events.Payload{
		"student_ref":     a.StudentRef,
		"origin_category": string(a.OriginCategory),
		"card_id":         card.ID,
	})
	if err := o.commit(ctx); err != nil {
		return domain.Alert{}, err
	}
	return a, nil
}

func ensureAlertTransition(from, to domain.AlertStatus) error {
	switch from {
	case domain.AlertPending:
		if to == domain.AlertRetained || to == domain.AlertChurned || to == domain.AlertResolved {
			return nil
		}
	}
	return &InvalidTransitionError{Entity: "alert", From: string(from), To: string(to)}
}

// TransitionStatus applies a legal status change to an alert.
func (e Engine) TransitionStatus(ctx context.Context, alertID string, to domain.AlertStatus, actor Actor) (domain.Alert, error) {
	if err := actor.validate(); err != nil {
		return domain.Alert{}, err
	}
	if !to.Valid() {
		return domain.Alert{}, invalid("status", "unknown status %q", to)
	}
	o, err := e.begin(ctx, actor)
	if err != nil {
		return domain.Alert{}, err
	}
	defer o.rollback()
	if err := o.loadAlert(ctx, alertID); err != nil {
		return domain.Alert{}, err
	}
	if err := o.transition(ctx, to); err != nil {
		return domain.Alert{}, err
	}
	if err := o.commit(ctx); err != nil {
		return domain.Alert{}, err
	}
	return o.alert, nil
}

func (o *op) loadAlert(ctx context.Context, alertID string) error {
	a, err := o.e.Repo.GetAlert(ctx, o.tx, o.e.UnitID, alertID)
	if err != nil {
		return notFound("alert", alertID, err)
	}
	o.alert = a
	return nil
}

// transition moves the loaded alert to a new status inside the op.
func (o *op) transition(ctx context.Context, to domain.AlertStatus) error {
	from := o.alert.Status
	if err := ensureAlertTransition(from, to); err != nil {
		return err
	}
	ok, err := o.e.Repo.UpdateAlertStatus(ctx, o.tx, o.alert.ID, from, to, o.now)
	if err != nil {
		return fmt.Errorf("update alert status: %w", err)
	}
	if !ok {
		return &InvalidTransitionError{Entity: "alert", From: string(from), To: string(to)}
	}
	o.alert.Status = to
	o.alert.UpdatedAt = o.now
	o.record(events.AlertStatusChanged, events.KindAlert, o.alert.ID, events.Payload{"from": string(from), "to": string(to)})
	return nil
}

func (e Engine) GetAlert(ctx context.Context, alertID string) (domain.Alert, error) {
	a, err := e.Repo.GetAlert(ctx, nil, e.UnitID, alertID)
	if err != nil {
		return a, notFound("alert", alertID, err)
	}
	return a, nil
}

type AlertFilters struct {
	Status          string
	Column          string
	StudentRef      string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (e Engine) ListAlerts(ctx context.Context, f AlertFilters) ([]domain.Alert, error) {
	if f.Status != "" && !domain.AlertStatus(f.Status).Valid() {
		return nil, invalid("status", "unknown status %q", f.Status)
	}
	if f.Column != "" && !domain.Column(f.Column).Valid() {
		return nil, invalid("column", "unknown column %q", f.Column)
	}
	return e.Repo.ListAlerts(ctx, repo.AlertFilters{
		UnitID:          e.UnitID,
		Status:          f.Status,
		Column:          f.Column,
		StudentRef:      f.StudentRef,
		Limit:           f.Limit,
		CursorCreatedAt: f.CursorCreatedAt,
		CursorID:        f.CursorID,
	})
}

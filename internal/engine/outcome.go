package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"retentionline/internal/domain"
	"retentionline/internal/events"
)

// NegotiationOutcome is the closed set of financial negotiation results.
type NegotiationOutcome interface {
	Kind() string
	describe() string
}

// Churn ends the negotiation with the student leaving.
type Churn struct{}

// TemporaryAdjustment grants a price change until EndDate (YYYY-MM-DD).
type TemporaryAdjustment struct {
	EndDate string
}

// PermanentAdjustment keeps the student with a lasting price change.
type PermanentAdjustment struct{}

func (Churn) Kind() string               { return "churn" }
func (TemporaryAdjustment) Kind() string { return "temporary_adjustment" }
func (PermanentAdjustment) Kind() string { return "permanent_adjustment" }

func (Churn) describe() string                 { return "churn" }
func (t TemporaryAdjustment) describe() string { return "temporary adjustment until " + t.EndDate }
func (PermanentAdjustment) describe() string   { return "permanent adjustment" }

// ParseNegotiationOutcome builds an outcome from its wire form.
func ParseNegotiationOutcome(kind, endDate string) (NegotiationOutcome, error) {
	switch strings.TrimSpace(kind) {
	case "churn":
		return Churn{}, nil
	case "temporary_adjustment":
		if endDate == "" {
			return nil, invalid("end_date", "end_date is required for a temporary adjustment")
		}
		return TemporaryAdjustment{EndDate: endDate}, nil
	case "permanent_adjustment":
		return PermanentAdjustment{}, nil
	}
	return nil, invalid("outcome", "unknown negotiation outcome %q", kind)
}

type NegotiationResult struct {
	Negotiation domain.Activity   `json:"negotiation"`
	Spawned     []domain.Activity `json:"spawned"`
	Alert       domain.Alert      `json:"alert"`
}

// ResolveNegotiation completes a financial negotiation and spawns the task
// set its outcome calls for, all in one transaction.
func (e Engine) ResolveNegotiation(ctx context.Context, activityID string, outcome NegotiationOutcome, notes string, actor Actor) (NegotiationResult, error) {
	if err := actor.validate(); err != nil {
		return NegotiationResult{}, err
	}
	if outcome == nil {
		return NegotiationResult{}, invalid("outcome", "outcome is required")
	}
	if t, ok := outcome.(TemporaryAdjustment); ok {
		end, err := time.Parse(dateLayout, t.EndDate)
		if err != nil {
			return NegotiationResult{}, invalid("end_date", "end_date must be a date in YYYY-MM-DD format")
		}
		today := e.now().UTC().Format(dateLayout)
		if end.Format(dateLayout) <= today {
			return NegotiationResult{}, invalid("end_date", "end_date must be after %s", today)
		}
	}

	o, err := e.begin(ctx, actor)
	if err != nil {
		return NegotiationResult{}, err
	}
	defer o.rollback()
	neg, err := e.Repo.GetActivity(ctx, o.tx, e.UnitID, activityID)
	if err != nil {
		return NegotiationResult{}, notFound("activity", activityID, err)
	}
	if neg.Type != domain.ActivityFinancialNegotiation {
		return NegotiationResult{}, invalid("activity_id", "activity %s is %s, not a financial negotiation", activityID, neg.Type)
	}
	if neg.Completed() {
		return NegotiationResult{}, invalid("activity_id", "negotiation %s is already completed", activityID)
	}
	if err := o.loadAlert(ctx, neg.AlertID); err != nil {
		return NegotiationResult{}, err
	}
	if _, ok := outcome.(Churn); ok && o.alert.Status != domain.AlertPending {
		return NegotiationResult{}, &InvalidTransitionError{Entity: "alert", From: string(o.alert.Status), To: string(domain.AlertChurned)}
	}

	neg.Description = appendOutcome(neg.Description, outcome, notes)
	if err := e.Repo.UpdateActivityDescription(ctx, o.tx, neg.ID, neg.Description); err != nil {
		return NegotiationResult{}, fmt.Errorf("update negotiation: %w", err)
	}
	if _, err := o.complete(ctx, neg); err != nil {
		return NegotiationResult{}, err
	}
	payload := events.Payload{"outcome": outcome.Kind(), "alert_id": neg.AlertID}
	if t, ok := outcome.(TemporaryAdjustment); ok {
		payload["end_date"] = t.EndDate
	}
	o.record(events.NegotiationResolved, events.KindActivity, neg.ID, payload)

	var spawned []domain.Activity
	switch out := outcome.(type) {
	case Churn:
		spawned, err = o.spawnBundle(ctx, domain.BundleNegotiationChurn, "Negotiation ended in churn", &neg.ID)
		if err != nil {
			return NegotiationResult{}, err
		}
	case TemporaryAdjustment:
		spawned, err = o.spawnBundle(ctx, domain.BundlePriceCorrection, "Apply "+out.describe(), &neg.ID)
		if err != nil {
			return NegotiationResult{}, err
		}
		followUp := domain.Activity{
			Type:               domain.ActivityFinancialNegotiation,
			Description:        "Follow-up negotiation: temporary adjustment ends " + out.EndDate,
			ScheduledDate:      optionalString(out.EndDate),
			PreviousActivityID: &neg.ID,
		}
		actorAssignment(actor).apply(&followUp)
		followUp, err = o.insertActivity(ctx, followUp, routeInfo{})
		if err != nil {
			return NegotiationResult{}, err
		}
		spawned = append(spawned, followUp)
	case PermanentAdjustment:
		spawned, err = o.spawnBundle(ctx, domain.BundlePriceCorrection, "Apply "+out.describe(), &neg.ID)
		if err != nil {
			return NegotiationResult{}, err
		}
		retention := domain.Activity{
			Type:               domain.ActivityRetention,
			Description:        "Retained with a permanent price adjustment",
			Status:             domain.ActivityCompleted,
			PreviousActivityID: &neg.ID,
		}
		actorAssignment(actor).apply(&retention)
		retention, err = o.insertActivity(ctx, retention, routeInfo{})
		if err != nil {
			return NegotiationResult{}, err
		}
		if err := o.transition(ctx, domain.AlertRetained); err != nil {
			return NegotiationResult{}, err
		}
		spawned = append(spawned, retention)
	default:
		return NegotiationResult{}, invalid("outcome", "unsupported outcome %s", outcome.Kind())
	}

	stored, err := e.Repo.GetActivity(ctx, o.tx, e.UnitID, neg.ID)
	if err != nil {
		return NegotiationResult{}, err
	}
	if err := o.commit(ctx); err != nil {
		return NegotiationResult{}, err
	}
	return NegotiationResult{Negotiation: stored, Spawned: spawned, Alert: o.alert}, nil
}

func appendOutcome(desc string, outcome NegotiationOutcome, notes string) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(desc, "\n"))
	if b.Len() > 0 {
		b.WriteString("\n\n")
	}
	b.WriteString("Outcome: ")
	b.WriteString(outcome.describe())
	if notes = strings.TrimSpace(notes); notes != "" {
		b.WriteString("\nNotes: ")
		b.WriteString(notes)
	}
	return b.String()
}

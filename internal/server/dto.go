package server

import (
	"encoding/json"

	"retentionline/internal/domain"
	"retentionline/internal/engine"
)

// Request payloads

type CreateAlertRequest struct {
	StudentRef        string  `json:"student_ref"`
	StudentName       *string `json:"student_name,omitempty"`
	ClassRef          *string `json:"class_ref,omitempty"`
	OriginCategory    string  `json:"origin_category" enum:"indirect_conversation,front_desk_notice,teacher_or_coordinator_notice,messaging_notice,non_payment_2_plus_months,other"`
	Description       *string `json:"description,omitempty"`
	OccurredOn        string  `json:"occurred_on" format:"date"`
	RetentionDeadline *string `json:"retention_deadline,omitempty" format:"date"`
	Priority          *string `json:"priority,omitempty" enum:"low,medium,high,urgent"`
}

func (r CreateAlertRequest) toEngine() engine.NewAlert {
	return engine.NewAlert{
		StudentRef:        r.StudentRef,
		StudentName:       stringOrEmpty(r.StudentName),
		ClassRef:          stringOrEmpty(r.ClassRef),
		OriginCategory:    r.OriginCategory,
		Description:       stringOrEmpty(r.Description),
		OccurredOn:        r.OccurredOn,
		RetentionDeadline: stringOrEmpty(r.RetentionDeadline),
		Priority:          stringOrEmpty(r.Priority),
	}
}

type SetAlertStatusRequest struct {
	Status string `json:"status" enum:"pending,retained,churned,resolved"`
}

type CreateActivityRequest struct {
	Type               string  `json:"type"`
	Description        *string `json:"description,omitempty"`
	PreviousActivityID *string `json:"previous_activity_id,omitempty"`
	ClassID            *string `json:"class_id,omitempty"`
	ScheduledDate      *string `json:"scheduled_date,omitempty" format:"date"`
	StartTime          *string `json:"start_time,omitempty" example:"14:00"`
	EndTime            *string `json:"end_time,omitempty" example:"15:00"`
}

func (r CreateActivityRequest) options() engine.ActivityOptions {
	return engine.ActivityOptions{
		Description:        stringOrEmpty(r.Description),
		PreviousActivityID: stringOrEmpty(r.PreviousActivityID),
		ClassID:            stringOrEmpty(r.ClassID),
		ScheduledDate:      stringOrEmpty(r.ScheduledDate),
		StartTime:          stringOrEmpty(r.StartTime),
		EndTime:            stringOrEmpty(r.EndTime),
	}
}

type ResolveNegotiationRequest struct {
	Outcome string  `json:"outcome" enum:"churn,temporary_adjustment,permanent_adjustment"`
	EndDate *string `json:"end_date,omitempty" format:"date"`
	Notes   *string `json:"notes,omitempty"`
}

type MoveCardRequest struct {
	Column string `json:"column" enum:"todo,doing,scheduled,done,hibernating"`
}

type UpdateCardRequest struct {
	Priority    *string   `json:"priority,omitempty" enum:"low,medium,high,urgent"`
	Tags        *[]string `json:"tags,omitempty"`
	Notes       *string   `json:"notes,omitempty"`
	Attachments *[]string `json:"attachments,omitempty"`
	DueDate     *string   `json:"due_date,omitempty"`
}

func (r UpdateCardRequest) toEngine() engine.CardUpdate {
	return engine.CardUpdate{
		Priority:    r.Priority,
		Tags:        r.Tags,
		Notes:       r.Notes,
		Attachments: r.Attachments,
		DueDate:     r.DueDate,
	}
}

type FinalizeCardRequest struct {
	Outcome string `json:"outcome" enum:"evaded,retained"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
	Name    string `json:"name,omitempty"`
}

// Responses

type DevLoginResponse struct {
	Token string `json:"token"`
}

type paginatedAlerts struct {
	Items      []domain.Alert `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type activityList struct {
	Items []domain.Activity `json:"items"`
}

type boardList struct {
	Items []engine.BoardEntry `json:"items"`
}

type historyList struct {
	Items []domain.CardHistoryEntry `json:"items"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	UnitID     string         `json:"unit_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		UnitID:     e.UnitID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

// JSON helpers

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil
	}
	return obj
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

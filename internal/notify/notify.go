// Package notify delivers activity notifications to staff channels.
package notify

import (
	"context"
	"log/slog"

	"retentionline/internal/domain"
)

type Student struct {
	Ref  string `json:"ref"`
	Name string `json:"name,omitempty"`
}

type Person struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Handle string `json:"handle,omitempty"`
}

// Payload describes one created activity and who should act on it.
type Payload struct {
	Event             string          `json:"event"`
	UnitID            string          `json:"unit_id"`
	Activity          domain.Activity `json:"activity"`
	Alert             domain.Alert    `json:"alert"`
	Student           Student         `json:"student"`
	ClassID           string          `json:"class_id,omitempty"`
	Teacher           *Person         `json:"teacher,omitempty"`
	DepartmentMembers []Person        `json:"department_members,omitempty"`
	Actor             Person          `json:"actor"`
	SentAt            string          `json:"sent_at"`
}

type Dispatcher interface {
	Send(ctx context.Context, p Payload) error
}

// Log writes notifications to the logger instead of delivering them.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Send(_ context.Context, p Payload) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{
		"event", p.Event,
		"unit_id", p.UnitID,
		"alert_id", p.Alert.ID,
		"activity_id", p.Activity.ID,
		"type", string(p.Activity.Type),
		"student_ref", p.Student.Ref,
	}
	if p.Teacher != nil {
		attrs = append(attrs, "teacher_id", p.Teacher.ID)
	}
	if len(p.DepartmentMembers) > 0 {
		attrs = append(attrs, "department_members", len(p.DepartmentMembers))
	}
	logger.Info("notification", attrs...)
	return nil
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"retentionline/internal/calendar"
	"retentionline/internal/domain"
	"retentionline/internal/events"
	"retentionline/internal/metrics"
	"retentionline/internal/notify"
)

// notifyCreated hands a created activity to the dispatcher. Failures are
// logged and counted; the committed state stays as is.
func (e Engine) notifyCreated(ctx context.Context, o *op, a domain.Activity) {
	if e.Notifier == nil {
		return
	}
	payload, err := e.notification(ctx, o, a)
	if err == nil {
		err = e.Notifier.Send(ctx, payload)
	}
	if err != nil {
		metrics.SideEffectFailed("notification")
		e.logger().Warn("notification failed",
			"alert_id", a.AlertID, "activity_id", a.ID, "type", string(a.Type), "error", err)
		return
	}
	e.logger().Debug("notification sent", "alert_id", a.AlertID, "activity_id", a.ID)
}

func (e Engine) notification(ctx context.Context, o *op, a domain.Activity) (notify.Payload, error) {
	route := o.routes[a.ID]
	p := notify.Payload{
		Event:    string(events.ActivityCreated),
		UnitID:   e.UnitID,
		Activity: a,
		Alert:    o.alert,
		Student:  notify.Student{Ref: o.alert.StudentRef, Name: o.alert.StudentName},
		ClassID:  route.classID,
		Actor:    notify.Person{ID: o.actor.ID, Name: o.actor.Name},
		SentAt:   e.now().UTC().Format(time.RFC3339),
	}
	if p.ClassID == "" {
		p.ClassID = deref(o.alert.ClassRef)
	}
	if a.Type == domain.ActivityChurn {
		p.Event = string(events.ChurnSynthesized)
	}
	if route.teacher != nil {
		p.Teacher = &notify.Person{ID: route.teacher.TeacherID, Name: route.teacher.TeacherName, Handle: route.teacher.MessagingHandle}
	}
	if a.ResponsibleDepartment != nil {
		members, err := e.Repo.DepartmentMembers(ctx, e.UnitID, *a.ResponsibleDepartment)
		if err != nil {
			return p, fmt.Errorf("department members: %w", err)
		}
		for _, m := range members {
			p.DepartmentMembers = append(p.DepartmentMembers, notify.Person{ID: m.ID, Name: m.Name, Handle: m.Handle})
		}
	}
	return p, nil
}

// book requests a calendar slot for a scheduled attendance session.
func (e Engine) book(ctx context.Context, o *op, a domain.Activity) {
	if e.Calendar == nil || a.ScheduledDate == nil || a.StartTime == nil || a.ResponsibleTeacherID == nil {
		return
	}
	end := deref(a.EndTime)
	if end == "" {
		var err error
		if end, err = calendar.EndTime(*a.StartTime, e.sessionMinutes()); err != nil {
			e.logger().Warn("calendar booking skipped", "activity_id", a.ID, "error", err)
			return
		}
	}
	title := "Attendance: " + o.alert.StudentRef
	if o.alert.StudentName != "" {
		title = "Attendance: " + o.alert.StudentName
	}
	booking, err := e.Calendar.CreateEvent(ctx, calendar.Event{
		TeacherID:   *a.ResponsibleTeacherID,
		Date:        *a.ScheduledDate,
		StartTime:   *a.StartTime,
		EndTime:     end,
		Title:       title,
		Description: a.Description,
	})
	if errors.Is(err, calendar.ErrDisabled) {
		return
	}
	if err != nil {
		metrics.SideEffectFailed("calendar")
		e.logger().Warn("calendar booking failed", "alert_id", a.AlertID, "activity_id", a.ID, "error", err)
		return
	}
	e.logger().Info("calendar booked", "activity_id", a.ID, "booking_id", booking.ID)
}

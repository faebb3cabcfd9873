package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"retentionline/internal/calendar"
	"retentionline/internal/domain"
	"retentionline/internal/events"
	"retentionline/internal/roster"
)

// ActivityOptions are the optional inputs of CreateActivity.
type ActivityOptions struct {
	Description        string `json:"description"`
	PreviousActivityID string `json:"previous_activity_id"`
	ClassID            string `json:"class_id"`
	ScheduledDate      string `json:"scheduled_date" validate:"omitempty,date"`
	StartTime          string `json:"start_time" validate:"omitempty,hhmm"`
	EndTime            string `json:"end_time" validate:"omitempty,hhmm"`
}

// assignment is the routed owner of a new activity.
type assignment struct {
	personID   *string
	personName *string
	department *domain.Department
	teacherID  *string
	route      routeInfo
}

func (a assignment) apply(act *domain.Activity) {
	act.ResponsiblePersonID = a.personID
	act.ResponsiblePersonName = a.personName
	act.ResponsibleDepartment = a.department
	act.ResponsibleTeacherID = a.teacherID
}

func actorAssignment(actor Actor) assignment {
	return assignment{personID: optionalString(actor.ID), personName: optionalString(actor.Name)}
}

func departmentAssignment(dept domain.Department) assignment {
	return assignment{department: &dept}
}

// route resolves who owns an activity of type typ. Teacher routing calls
// the roster, so it runs before the transaction opens.
func (e Engine) route(ctx context.Context, alert domain.Alert, typ domain.ActivityType, classID string, actor Actor) (assignment, error) {
	rule, ok := typ.Routing()
	if !ok {
		return assignment{}, &InvalidTypeError{Type: string(typ)}
	}
	switch rule {
	case domain.RouteTeacher:
		if classID == "" {
			classID = deref(alert.ClassRef)
		}
		if classID == "" {
			return assignment{}, invalid("class_id", "a class is required to route %s to a teacher", typ)
		}
		t, err := e.Roster.TeacherForClass(ctx, classID)
		if err != nil {
			if errors.Is(err, roster.ErrClassNotFound) {
				return assignment{}, invalid("class_id", "class %s has no teacher in the roster", classID)
			}
			return assignment{}, fmt.Errorf("resolve teacher: %w", err)
		}
		return assignment{
			personName: optionalString(t.TeacherName),
			teacherID:  optionalString(t.TeacherID),
			route:      routeInfo{classID: classID, teacher: &t},
		}, nil
	case domain.RouteDepartment:
		return departmentAssignment(domain.DepartmentAdministrative), nil
	default:
		return actorAssignment(actor), nil
	}
}

// CreateActivity dispatches one activity request on an alert. It returns
// every activity it inserted: one in the common case, the administrative
// sub-tasks for churn_intent, and the completed record for retention.
func (e Engine) CreateActivity(ctx context.Context, alertID, activityType string, opts ActivityOptions, actor Actor) ([]domain.Activity, error) {
	if err := actor.validate(); err != nil {
		return nil, err
	}
	typ := domain.ActivityType(activityType)
	if !typ.Valid() {
		return nil, &InvalidTypeError{Type: activityType}
	}
	if typ == domain.ActivityChurn {
		return nil, invalid("type", "churn activities are created only when a churn bundle completes")
	}
	if err := validateStruct(opts); err != nil {
		return nil, err
	}
	if opts.EndTime != "" && opts.StartTime == "" {
		return nil, invalid("end_time", "end_time requires start_time")
	}
	if opts.StartTime != "" && opts.ScheduledDate == "" {
		return nil, invalid("start_time", "start_time requires scheduled_date")
	}
	if opts.EndTime != "" && opts.EndTime <= opts.StartTime {
		return nil, invalid("end_time", "end_time must be after start_time")
	}
	alert, err := e.GetAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}
	var who assignment
	if typ != domain.ActivityChurnIntent {
		if who, err = e.route(ctx, alert, typ, strings.TrimSpace(opts.ClassID), actor); err != nil {
			return nil, err
		}
	}
	if typ == domain.ActivityPedagogicalAttendance && opts.StartTime != "" && opts.EndTime == "" {
		if opts.EndTime, err = calendar.EndTime(opts.StartTime, e.sessionMinutes()); err != nil {
			return nil, invalid("start_time", "%v", err)
		}
	}

	o, err := e.begin(ctx, actor)
	if err != nil {
		return nil, err
	}
	defer o.rollback()
	if err := o.loadAlert(ctx, alertID); err != nil {
		return nil, err
	}
	var prev *string
	if opts.PreviousActivityID != "" {
		if err := o.completePredecessor(ctx, opts.PreviousActivityID); err != nil {
			return nil, err
		}
		prev = &opts.PreviousActivityID
	}

	var created []domain.Activity
	switch typ {
	case domain.ActivityChurnIntent:
		if o.alert.Status != domain.AlertPending {
			return nil, &InvalidTransitionError{Entity: "alert", From: string(o.alert.Status), To: string(domain.AlertChurned)}
		}
		created, err = o.spawnBundle(ctx, domain.BundleChurnIntent, opts.Description, prev)
		if err != nil {
			return nil, err
		}
	case domain.ActivityRetention:
		act := domain.Activity{
			Type:               typ,
			Description:        opts.Description,
			Status:             domain.ActivityCompleted,
			PreviousActivityID: prev,
		}
		who.apply(&act)
		act, err = o.insertActivity(ctx, act, who.route)
		if err != nil {
			return nil, err
		}
		if err := o.transition(ctx, domain.AlertRetained); err != nil {
			return nil, err
		}
		created = append(created, act)
	default:
		act := domain.Activity{
			Type:               typ,
			Description:        opts.Description,
			ScheduledDate:      optionalString(opts.ScheduledDate),
			StartTime:          optionalString(opts.StartTime),
			EndTime:            optionalString(opts.EndTime),
			PreviousActivityID: prev,
		}
		who.apply(&act)
		act, err = o.insertActivity(ctx, act, who.route)
		if err != nil {
			return nil, err
		}
		created = append(created, act)
	}
	if err := o.commit(ctx); err != nil {
		return nil, err
	}
	return created, nil
}

// completePredecessor closes the chained activity if it is still open.
func (o *op) completePredecessor(ctx context.Context, id string) error {
	prev, err := o.e.Repo.GetActivity(ctx, o.tx, o.e.UnitID, id)
	if err != nil {
		return notFound("activity", id, err)
	}
	if prev.AlertID != o.alert.ID {
		return invalid("previous_activity_id", "activity %s belongs to another alert", id)
	}
	_, err = o.complete(ctx, prev)
	return err
}

// complete marks a pending activity completed and settles its bundle. It
// reports false when the activity was already completed.
func (o *op) complete(ctx context.Context, a domain.Activity) (bool, error) {
	if a.Completed() {
		return false, nil
	}
	ok, err := o.e.Repo.CompleteActivity(ctx, o.tx, a.ID, o.actor.ID, o.actor.Name, o.now)
	if err != nil {
		return false, fmt.Errorf("complete activity: %w", err)
	}
	if !ok {
		return false, nil
	}
	o.record(events.ActivityCompleted, events.KindActivity, a.ID, events.Payload{"type": string(a.Type), "alert_id": a.AlertID})
	if err := o.settleBundle(ctx, a); err != nil {
		return true, err
	}
	return true, nil
}

// settleBundle synthesizes the churn record once every member of a churn
// bundle is completed and the alert is still pending.
func (o *op) settleBundle(ctx context.Context, a domain.Activity) error {
	if a.BundleID == nil || a.BundleKind == nil || !a.BundleKind.Churn() {
		return nil
	}
	open, err := o.e.Repo.OpenBundleMembers(ctx, o.tx, *a.BundleID)
	if err != nil {
		return err
	}
	if open > 0 {
		return nil
	}
	if o.alert.ID != a.AlertID {
		if err := o.loadAlert(ctx, a.AlertID); err != nil {
			return err
		}
	}
	if o.alert.Status != domain.AlertPending {
		return nil
	}
	churn := domain.Activity{
		Type:               domain.ActivityChurn,
		Description:        fmt.Sprintf("All %s tasks completed", *a.BundleKind),
		Status:             domain.ActivityCompleted,
		PreviousActivityID: optionalString(a.ID),
	}
	actorAssignment(o.actor).apply(&churn)
	if _, err := o.insertActivity(ctx, churn, routeInfo{}); err != nil {
		return err
	}
	return o.transition(ctx, domain.AlertChurned)
}

// spawnBundle inserts the administrative tasks of kind under a new bundle.
func (o *op) spawnBundle(ctx context.Context, kind domain.BundleKind, description string, prev *string) ([]domain.Activity, error) {
	bundleID := newID()
	var out []domain.Activity
	for _, typ := range kind.Tasks() {
		k := kind
		act := domain.Activity{
			Type:               typ,
			Description:        description,
			PreviousActivityID: prev,
			BundleID:           &bundleID,
			BundleKind:         &k,
		}
		departmentAssignment(domain.DepartmentAdministrative).apply(&act)
		act, err := o.insertActivity(ctx, act, routeInfo{})
		if err != nil {
			return nil, err
		}
		out = append(out, act)
	}
	return out, nil
}

// CompleteActivity closes an activity. Completing an already completed
// activity returns the stored record unchanged.
func (e Engine) CompleteActivity(ctx context.Context, activityID string, actor Actor) (domain.Activity, error) {
	if err := actor.validate(); err != nil {
		return domain.Activity{}, err
	}
	o, err := e.begin(ctx, actor)
	if err != nil {
		return domain.Activity{}, err
	}
	defer o.rollback()
	act, err := e.Repo.GetActivity(ctx, o.tx, e.UnitID, activityID)
	if err != nil {
		return act, notFound("activity", activityID, err)
	}
	if act.Completed() {
		return act, nil
	}
	if err := o.loadAlert(ctx, act.AlertID); err != nil {
		return act, err
	}
	if _, err := o.complete(ctx, act); err != nil {
		return act, err
	}
	stored, err := e.Repo.GetActivity(ctx, o.tx, e.UnitID, activityID)
	if err != nil {
		return act, err
	}
	if err := o.commit(ctx); err != nil {
		return act, err
	}
	return stored, nil
}

func (e Engine) GetActivity(ctx context.Context, activityID string) (domain.Activity, error) {
	a, err := e.Repo.GetActivity(ctx, nil, e.UnitID, activityID)
	if err != nil {
		return a, notFound("activity", activityID, err)
	}
	return a, nil
}

// ListActivities returns an alert's activities oldest first.
func (e Engine) ListActivities(ctx context.Context, alertID string) ([]domain.Activity, error) {
	if _, err := e.GetAlert(ctx, alertID); err != nil {
		return nil, err
	}
	return e.Repo.ListActivities(ctx, nil, alertID)
}

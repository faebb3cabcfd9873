package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"retentionline/internal/calendar"
	"retentionline/internal/config"
	"retentionline/internal/domain"
	"retentionline/internal/events"
	"retentionline/internal/notify"
	"retentionline/internal/repo"
	"retentionline/internal/roster"
)

const defaultSessionMinutes = 60

// Actor is the staff member performing a mutation.
type Actor struct {
	ID   string
	Name string
}

func (a Actor) validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return invalid("actor_id", "actor is required")
	}
	return nil
}

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Bus      *events.Bus
	Config   *config.Config
	UnitID   string
	Roster   roster.Service
	Notifier notify.Dispatcher
	Calendar calendar.Service
	Logger   *slog.Logger
	Now      func() time.Time

	// effects tracks notification and booking goroutines started after
	// commit. Engine values share it by pointer.
	effects *sync.WaitGroup
}

// New wires an engine for the configured unit with the static roster,
// log-only notifications and no calendar.
func New(db *sql.DB, cfg *config.Config) Engine {
	e := Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Events:   events.Writer{},
		Bus:      events.NewBus(nil),
		Config:   cfg,
		Notifier: notify.Log{},
		Calendar: calendar.Noop{},
		Logger:   slog.Default(),
		Now:      time.Now,
		effects:  &sync.WaitGroup{},
	}
	if cfg != nil {
		e.UnitID = cfg.Unit.ID
		e.Roster = roster.FromConfig(cfg.Roster)
	} else {
		e.Roster = roster.Static{}
	}
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Engine) sessionMinutes() int {
	if e.Config != nil && e.Config.Calendar.DefaultDurationMinutes > 0 {
		return e.Config.Calendar.DefaultDurationMinutes
	}
	return defaultSessionMinutes
}

func newID() string {
	return uuid.NewString()
}

// routeInfo keeps what the notifier needs about a created activity.
type routeInfo struct {
	classID string
	teacher *roster.Teacher
}

// op is one unit of work: a transaction plus the events and activities it
// produced, released to the bus and side effects only after commit.
type op struct {
	e       Engine
	tx      *sql.Tx
	actor   Actor
	now     string
	alert   domain.Alert
	events  []events.Event
	created []domain.Activity
	routes  map[string]routeInfo
}

func (e Engine) begin(ctx context.Context, actor Actor) (*op, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &op{
		e:      e,
		tx:     tx,
		actor:  actor,
		now:    e.now().UTC().Format(time.RFC3339),
		routes: map[string]routeInfo{},
	}, nil
}

func (o *op) rollback() {
	_ = o.tx.Rollback()
}

func (o *op) record(typ events.Type, kind, id string, payload events.Payload) {
	o.events = append(o.events, events.Event{
		Type:       typ,
		UnitID:     o.e.UnitID,
		EntityKind: kind,
		EntityID:   id,
		ActorID:    o.actor.ID,
		Payload:    payload,
	})
}

// commit writes the durable event rows, commits, then runs the bus and the
// best-effort side effects.
func (o *op) commit(ctx context.Context) error {
	if err := o.e.Events.AppendAll(ctx, o.tx, o.events); err != nil {
		return err
	}
	if err := o.tx.Commit(); err != nil {
		return err
	}
	o.e.afterCommit(context.WithoutCancel(ctx), o)
	return nil
}

// insertActivity stores a and remembers it for notification.
func (o *op) insertActivity(ctx context.Context, a domain.Activity, route routeInfo) (domain.Activity, error) {
	if a.ID == "" {
		a.ID = newID()
	}
	a.AlertID = o.alert.ID
	a.CreatedBy = o.actor.ID
	a.CreatedAt = o.now
	if a.Status == "" {
		a.Status = domain.ActivityPending
	}
	if a.Status == domain.ActivityCompleted {
		a.CompletedBy = optionalString(o.actor.ID)
		a.CompletedByName = optionalString(o.actor.Name)
		a.CompletedAt = optionalString(o.now)
	}
	if err := o.e.Repo.InsertActivity(ctx, o.tx, a); err != nil {
		return a, fmt.Errorf("insert activity: %w", err)
	}
	payload := events.Payload{"type": string(a.Type), "alert_id": a.AlertID, "status": string(a.Status)}
	if a.BundleID != nil {
		payload["bundle_id"] = *a.BundleID
		payload["bundle_kind"] = string(*a.BundleKind)
	}
	if a.PreviousActivityID != nil {
		payload["previous_activity_id"] = *a.PreviousActivityID
	}
	typ := events.ActivityCreated
	if a.Type == domain.ActivityChurn {
		typ = events.ChurnSynthesized
	}
	o.record(typ, events.KindActivity, a.ID, payload)
	o.created = append(o.created, a)
	o.routes[a.ID] = route
	return a, nil
}

// afterCommit publishes to the bus inline. Notifications and bookings run on
// a tracked goroutine; Drain waits for them.
func (e Engine) afterCommit(ctx context.Context, o *op) {
	e.Bus.Publish(ctx, o.events...)
	if len(o.created) == 0 {
		return
	}
	if e.effects == nil {
		e.deliver(ctx, o)
		return
	}
	e.effects.Add(1)
	go func() {
		defer e.effects.Done()
		e.deliver(ctx, o)
	}()
}

func (e Engine) deliver(ctx context.Context, o *op) {
	for _, a := range o.created {
		e.notifyCreated(ctx, o, a)
		if a.Type == domain.ActivityPedagogicalAttendance {
			e.book(ctx, o, a)
		}
	}
}

// Drain blocks until every side effect started by earlier calls finished.
func (e Engine) Drain() {
	if e.effects != nil {
		e.effects.Wait()
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"retentionline/internal/calendar"
	"retentionline/internal/config"
	"retentionline/internal/db"
	"retentionline/internal/domain"
	"retentionline/internal/engine"
	"retentionline/internal/logging"
	"retentionline/internal/migrate"
	"retentionline/internal/notify"
	"retentionline/internal/roster"
)

var testNow = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

var staff = engine.Actor{ID: "s-carla", Name: "Carla"}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Payload
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, p notify.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, p)
	return n.err
}

type recordingCalendar struct {
	mu     sync.Mutex
	events []calendar.Event
	err    error
}

func (c *recordingCalendar) CreateEvent(_ context.Context, evt calendar.Event) (calendar.Booking, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	if c.err != nil {
		return calendar.Booking{}, c.err
	}
	return calendar.Booking{ID: "bk-1"}, nil
}

type testEnv struct {
	Engine   engine.Engine
	Ctx      context.Context
	Notifier *recordingNotifier
	Calendar *recordingCalendar
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("unit-1")
	cfg.Unit.Name = "Centro"
	cfg.Departments = map[domain.Department]config.Department{
		domain.DepartmentAdministrative: {Members: []config.Member{{ID: "s-bia", Name: "Bia", Handle: "@bia"}}},
	}
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return testNow }
	eng.Logger = logging.Discard()
	eng.Roster = roster.Static{"class-a": {TeacherID: "t-ana", TeacherName: "Ana", MessagingHandle: "@ana"}}
	n := &recordingNotifier{}
	c := &recordingCalendar{}
	eng.Notifier = n
	eng.Calendar = c
	t.Cleanup(eng.Drain)
	ctx := context.Background()
	if _, err := eng.SyncUnit(ctx); err != nil {
		t.Fatalf("sync unit: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx, Notifier: n, Calendar: c}
}

// sent waits for pending deliveries and returns what the notifier got.
func (env testEnv) sent() []notify.Payload {
	env.Engine.Drain()
	return env.Notifier.sent
}

func (env testEnv) booked() []calendar.Event {
	env.Engine.Drain()
	return env.Calendar.events
}

func (env testEnv) newAlert(t *testing.T) domain.Alert {
	t.Helper()
	a, err := env.Engine.CreateAlert(env.Ctx, engine.NewAlert{
		StudentRef:     "stu-1",
		StudentName:    "Joana",
		ClassRef:       "class-a",
		OriginCategory: string(domain.OriginFrontDeskNotice),
		OccurredOn:     "2026-03-09",
	}, staff)
	require.NoError(t, err)
	return a
}

func (env testEnv) create(t *testing.T, alertID string, typ domain.ActivityType, opts engine.ActivityOptions) []domain.Activity {
	t.Helper()
	acts, err := env.Engine.CreateActivity(env.Ctx, alertID, string(typ), opts, staff)
	require.NoError(t, err)
	return acts
}

func (env testEnv) alertStatus(t *testing.T, id string) domain.AlertStatus {
	t.Helper()
	a, err := env.Engine.GetAlert(env.Ctx, id)
	require.NoError(t, err)
	return a.Status
}

func countType(acts []domain.Activity, typ domain.ActivityType) int {
	n := 0
	for _, a := range acts {
		if a.Type == typ {
			n++
		}
	}
	return n
}

func TestCreateAlertOpensCard(t *testing.T) {
	env := newTestEnv(t)
	a := env.newAlert(t)
	require.Equal(t, domain.AlertPending, a.Status)
	require.Equal(t, domain.ColumnTodo, a.KanbanColumn)
	require.Equal(t, "unit-1", a.UnitID)
	require.Equal(t, staff.ID, a.ReportedBy)

	card, err := env.Engine.CardForAlert(env.Ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ColumnTodo, card.Column)
	require.Equal(t, domain.PriorityMedium, card.Priority)
	require.Nil(t, card.ResultOutcome)
}

func TestCreateAlertValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateAlert(env.Ctx, engine.NewAlert{
		OriginCategory: "gossip",
		OccurredOn:     "09/03/2026",
	}, staff)
	var verr *engine.ValidationError
	require.ErrorAs(t, err, &verr)
	fields := map[string]bool{}
	for _, f := range verr.Fields {
		fields[f.Field] = true
	}
	require.True(t, fields["student_ref"])
	require.True(t, fields["origin_category"])
	require.True(t, fields["occurred_on"])

	_, err = env.Engine.CreateAlert(env.Ctx, engine.NewAlert{
		StudentRef: "stu-1", OriginCategory: "other", OccurredOn: "2026-03-01",
	}, engine.Actor{})
	require.ErrorAs(t, err, &verr)

	alerts, err := env.Engine.ListAlerts(env.Ctx, engine.AlertFilters{})
	require.NoError(t, err)
	require.Empty(t, alerts)
}

func TestAlertTransitions(t *testing.T) {
	cases := []struct {
		to domain.AlertStatus
		ok bool
	}{
		{domain.AlertRetained, true},
		{domain.AlertChurned, true},
		{domain.AlertResolved, true},
		{domain.AlertPending, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.to), func(t *testing.T) {
			env := newTestEnv(t)
			a := env.newAlert(t)
			got, err := env.Engine.TransitionStatus(env.Ctx, a.ID, tc.to, staff)
			if !tc.ok {
				var terr *engine.InvalidTransitionError
				require.ErrorAs(t, err, &terr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.to, got.Status)

			// terminal states never move again
			for _, next := range []domain.AlertStatus{domain.AlertPending, domain.AlertRetained, domain.AlertChurned, domain.AlertResolved} {
				_, err := env.Engine.TransitionStatus(env.Ctx, a.ID, next, staff)
				var terr *engine.InvalidTransitionError
				require.ErrorAs(t, err, &terr)
			}
			require.Equal(t, tc.to, env.alertStatus(t, a.ID))
		})
	}
}

func TestUnknownAlert(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.TransitionStatus(env.Ctx, "missing", domain.AlertRetained, staff)
	var nf *engine.NotFoundError
	require.ErrorAs(t, err, &nf)
	require.Equal(t, "alert", nf.Kind)
}

func TestListAlertsFiltersAndPaginates(t *testing.T) {
	env := newTestEnv(t)
	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, env.newAlert(t).ID)
	}
	_, err := env.Engine.TransitionStatus(env.Ctx, ids[0], domain.AlertRetained, staff)
	require.NoError(t, err)

	pending, err := env.Engine.ListAlerts(env.Ctx, engine.AlertFilters{Status: "pending"})
	require.NoError(t, err)
	require.Len(t, pending, 2)

	page, err := env.Engine.ListAlerts(env.Ctx, engine.AlertFilters{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	rest, err := env.Engine.ListAlerts(env.Ctx, engine.AlertFilters{Limit: 2, CursorCreatedAt: page[1].CreatedAt, CursorID: page[1].ID})
	require.NoError(t, err)
	require.Len(t, rest, 1)

	_, err = env.Engine.ListAlerts(env.Ctx, engine.AlertFilters{Status: "lost"})
	var verr *engine.ValidationError
	require.True(t, errors.As(err, &verr))
}

package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"retentionline/internal/domain"
	"retentionline/internal/engine"
	"retentionline/internal/stats"
)

func strPtr(s string) *string { return &s }

func TestMoveCardKeepsAlertStatus(t *testing.T) {
	env := newTestEnv(t)
	a := env.newAlert(t)
	card, err := env.Engine.CardForAlert(env.Ctx, a.ID)
	require.NoError(t, err)

	moved, err := env.Engine.MoveCard(env.Ctx, card.ID, domain.ColumnDone, staff)
	require.NoError(t, err)
	require.Equal(t, domain.ColumnDone, moved.Column)
	require.Equal(t, domain.AlertPending, env.alertStatus(t, a.ID))

	got, err := env.Engine.GetAlert(env.Ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ColumnDone, got.KanbanColumn)

	_, err = env.Engine.MoveCard(env.Ctx, card.ID, "archive", staff)
	var verr *engine.ValidationError
	require.ErrorAs(t, err, &verr)

	hist, err := env.Engine.CardHistory(env.Ctx, card.ID)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	require.Equal(t, "moved from todo to done", hist[1].Line)
}

func TestUpdateCard(t *testing.T) {
	env := newTestEnv(t)
	a := env.newAlert(t)
	card, err := env.Engine.CardForAlert(env.Ctx, a.ID)
	require.NoError(t, err)

	tags := []string{"vip", "late-payment"}
	updated, err := env.Engine.UpdateCard(env.Ctx, card.ID, engine.CardUpdate{
		Priority: strPtr("urgent"),
		Tags:     &tags,
		Notes:    strPtr("call mother"),
		DueDate:  strPtr("2026-04-01"),
	}, staff)
	require.NoError(t, err)
	require.Equal(t, domain.PriorityUrgent, updated.Priority)
	require.Equal(t, tags, updated.Tags)
	require.Equal(t, "call mother", updated.Notes)
	require.Equal(t, "2026-04-01", *updated.DueDate)
	require.Empty(t, updated.Attachments)

	_, err = env.Engine.UpdateCard(env.Ctx, card.ID, engine.CardUpdate{Priority: strPtr("asap")}, staff)
	var verr *engine.ValidationError
	require.ErrorAs(t, err, &verr)

	board, err := env.Engine.Board(env.Ctx, engine.BoardFilters{Tag: "vip"})
	require.NoError(t, err)
	require.Len(t, board, 1)
	require.Equal(t, a.ID, board[0].Alert.ID)
}

func TestFinalizeRequiresTerminalAlert(t *testing.T) {
	env := newTestEnv(t)
	a := env.newAlert(t)
	card, err := env.Engine.CardForAlert(env.Ctx, a.ID)
	require.NoError(t, err)

	_, err = env.Engine.FinalizeCard(env.Ctx, card.ID, domain.OutcomeRetained, staff)
	var terr *engine.InvalidTransitionError
	require.ErrorAs(t, err, &terr)
}

func TestFinalizeOutcomeMustAgree(t *testing.T) {
	cases := []struct {
		status  domain.AlertStatus
		outcome domain.ResultOutcome
		ok      bool
	}{
		{domain.AlertRetained, domain.OutcomeRetained, true},
		{domain.AlertRetained, domain.OutcomeEvaded, false},
		{domain.AlertChurned, domain.OutcomeEvaded, true},
		{domain.AlertChurned, domain.OutcomeRetained, false},
		{domain.AlertResolved, domain.OutcomeRetained, true},
		{domain.AlertResolved, domain.OutcomeEvaded, true},
	}
	for _, tc := range cases {
		t.Run(string(tc.status)+"/"+string(tc.outcome), func(t *testing.T) {
			env := newTestEnv(t)
			a := env.newAlert(t)
			_, err := env.Engine.TransitionStatus(env.Ctx, a.ID, tc.status, staff)
			require.NoError(t, err)
			card, err := env.Engine.CardForAlert(env.Ctx, a.ID)
			require.NoError(t, err)

			got, err := env.Engine.FinalizeCard(env.Ctx, card.ID, tc.outcome, staff)
			if !tc.ok {
				var verr *engine.ValidationError
				require.ErrorAs(t, err, &verr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.outcome, *got.ResultOutcome)
			require.Equal(t, domain.ColumnDone, got.Column)
			require.Equal(t, staff.ID, *got.FinalizedBy)
		})
	}
}

func TestDoubleFinalizeKeepsOutcome(t *testing.T) {
	env := newTestEnv(t)
	a := env.newAlert(t)
	_, err := env.Engine.TransitionStatus(env.Ctx, a.ID, domain.AlertResolved, staff)
	require.NoError(t, err)
	card, err := env.Engine.CardForAlert(env.Ctx, a.ID)
	require.NoError(t, err)

	_, err = env.Engine.FinalizeCard(env.Ctx, card.ID, domain.OutcomeRetained, staff)
	require.NoError(t, err)
	_, err = env.Engine.FinalizeCard(env.Ctx, card.ID, domain.OutcomeEvaded, staff)
	var ferr *engine.AlreadyFinalizedError
	require.ErrorAs(t, err, &ferr)

	stored, err := env.Engine.GetCard(env.Ctx, card.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeRetained, *stored.ResultOutcome)

	hist, err := env.Engine.CardHistory(env.Ctx, card.ID)
	require.NoError(t, err)
	require.Contains(t, hist[len(hist)-1].Line, "finalized as retained")
}

func TestStatisticsFromFinalizedCards(t *testing.T) {
	env := newTestEnv(t)
	finalize := func(status domain.AlertStatus, outcome domain.ResultOutcome) {
		a := env.newAlert(t)
		_, err := env.Engine.TransitionStatus(env.Ctx, a.ID, status, staff)
		require.NoError(t, err)
		card, err := env.Engine.CardForAlert(env.Ctx, a.ID)
		require.NoError(t, err)
		_, err = env.Engine.FinalizeCard(env.Ctx, card.ID, outcome, staff)
		require.NoError(t, err)
	}
	finalize(domain.AlertRetained, domain.OutcomeRetained)
	finalize(domain.AlertRetained, domain.OutcomeRetained)
	finalize(domain.AlertResolved, domain.OutcomeRetained)
	finalize(domain.AlertChurned, domain.OutcomeEvaded)
	env.newAlert(t)

	out, err := env.Engine.Statistics(env.Ctx)
	require.NoError(t, err)
	require.Len(t, out, 4)
	month := out[0]
	require.Equal(t, stats.KindMonth, month.Window.Kind)
	require.Equal(t, 4, month.Total)
	require.Equal(t, 1, month.Churned)
	require.Equal(t, 3, month.Retained)
	require.Equal(t, 75.0, month.RetentionRate)
	require.Equal(t, 75, month.Previous.PercentPointDelta)
	require.Equal(t, time.March, month.Window.Start.Month())
}

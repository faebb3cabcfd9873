package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"retentionline/internal/domain"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err, out)
	return out
}

func TestCLIAlertToFinalizedCard(t *testing.T) {
	ws := t.TempDir()
	as := []string{"-w", ws, "--actor-id", "s-carla", "--actor-name", "Carla"}

	mustRun(t, "init", "-w", ws, "--unit", "north", "--name", "North")
	_, err := os.Stat(filepath.Join(ws, "retentionline.yml"))
	require.NoError(t, err)

	var alert domain.Alert
	out := mustRun(t, append(as, "alert", "create", "--json", "--student", "st-1", "--origin", "other", "--occurred-on", "2026-03-01")...)
	require.NoError(t, json.Unmarshal([]byte(out), &alert))
	require.Equal(t, domain.AlertPending, alert.Status)
	require.Equal(t, domain.ColumnTodo, alert.KanbanColumn)

	var alerts []domain.Alert
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "-w", ws, "--json", "alert", "list")), &alerts))
	require.Len(t, alerts, 1)

	require.Contains(t, mustRun(t, "-w", ws, "board", "list"), "st-1")

	out = mustRun(t, append(as, "--json", "alert", "status", alert.ID, "resolved")...)
	require.NoError(t, json.Unmarshal([]byte(out), &alert))
	require.Equal(t, domain.AlertResolved, alert.Status)

	var card domain.Card
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "-w", ws, "--json", "board", "card", alert.ID)), &card))
	out = mustRun(t, append(as, "--json", "board", "finalize", card.ID, "retained")...)
	require.NoError(t, json.Unmarshal([]byte(out), &card))
	require.NotNil(t, card.ResultOutcome)
	require.Equal(t, domain.OutcomeRetained, *card.ResultOutcome)

	require.Contains(t, mustRun(t, "-w", ws, "board", "history", card.ID), "finalized as retained")

	var evts []domain.Event
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "-w", ws, "--json", "log", "tail", "--entity-kind", "card")), &evts))
	require.NotEmpty(t, evts)
	for _, evt := range evts {
		require.Equal(t, "card", evt.EntityKind)
	}
}

func TestCLIRequiresActorForMutations(t *testing.T) {
	ws := t.TempDir()
	mustRun(t, "init", "-w", ws, "--unit", "north")

	_, err := run(t, "-w", ws, "alert", "create", "--student", "st-1", "--origin", "other")
	require.Error(t, err)
}

func TestCLIInitRefusesToOverwrite(t *testing.T) {
	ws := t.TempDir()
	mustRun(t, "init", "-w", ws, "--unit", "north")
	_, err := run(t, "init", "-w", ws, "--unit", "north")
	require.ErrorContains(t, err, "already exists")
	mustRun(t, "init", "-w", ws, "--unit", "south", "--force")
}

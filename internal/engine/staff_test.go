package engine_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"retentionline/internal/domain"
	"retentionline/internal/engine"
	"retentionline/internal/repo"
)

func TestSyncUnitMirrorsConfiguredMembers(t *testing.T) {
	env := newTestEnv(t)
	members, err := env.Engine.DepartmentMembers(env.Ctx, "administrative")
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.Equal(t, "s-bia", members[0].ID)

	_, err = env.Engine.SyncUnit(env.Ctx)
	require.NoError(t, err)
	members, err = env.Engine.DepartmentMembers(env.Ctx, "administrative")
	require.NoError(t, err)
	require.Len(t, members, 1)
}

func TestAddAndRemoveStaff(t *testing.T) {
	env := newTestEnv(t)
	s, err := env.Engine.AddStaff(env.Ctx, domain.Staff{ID: "s-fin", Name: "Fina"}, "financial")
	require.NoError(t, err)
	require.Equal(t, "Fina", s.Name)

	_, err = env.Engine.AddStaff(env.Ctx, domain.Staff{ID: "s-x"}, "kitchen")
	var verr *engine.ValidationError
	require.ErrorAs(t, err, &verr)

	require.NoError(t, env.Engine.RemoveFromDepartment(env.Ctx, "s-fin", "financial"))
	members, err := env.Engine.DepartmentMembers(env.Ctx, "financial")
	require.NoError(t, err)
	require.Empty(t, members)
}

func TestIssueAPIKey(t *testing.T) {
	env := newTestEnv(t)
	key, plain, err := env.Engine.IssueAPIKey(env.Ctx, "s-bia", "laptop")
	require.NoError(t, err)
	require.NotEmpty(t, plain)
	require.NotEqual(t, plain, key.KeyHash)

	stored, err := env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(plain))
	require.NoError(t, err)
	require.Equal(t, "s-bia", stored.StaffID)

	_, _, err = env.Engine.IssueAPIKey(env.Ctx, "ghost", "")
	var nf *engine.NotFoundError
	require.ErrorAs(t, err, &nf)

	require.NoError(t, env.Engine.RevokeAPIKey(env.Ctx, key.ID))
	require.ErrorAs(t, env.Engine.RevokeAPIKey(env.Ctx, key.ID), &nf)
}

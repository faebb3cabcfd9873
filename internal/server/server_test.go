package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retentionline/internal/config"
	"retentionline/internal/db"
	"retentionline/internal/domain"
	"retentionline/internal/engine"
	"retentionline/internal/logging"
	"retentionline/internal/migrate"
	"retentionline/internal/repo"
)

const testSecret = "test-secret"

type testServer struct {
	*httptest.Server
	engine engine.Engine
}

var legacy = map[string]string{"X-Actor-Id": "s-carla", "X-Actor-Name": "Carla"}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	e := engine.New(conn, config.Default("unit-1"))
	e.Logger = logging.Discard()
	t.Cleanup(e.Drain)
	_, err = e.SyncUnit(context.Background())
	require.NoError(t, err)

	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: AuthConfig{
		JWTSecret:              testSecret,
		AllowLegacyActorHeader: true,
		DevLogin:               true,
		Logger:                 logging.Discard(),
	}})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, engine: e}
}

func doJSON(t *testing.T, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(data, &env), string(data))
	return env.Error.Code
}

func (s *testServer) createAlert(t *testing.T) domain.Alert {
	t.Helper()
	res, data := doJSON(t, http.MethodPost, s.URL+"/v0/alerts", map[string]any{
		"student_ref":     "stu-1",
		"student_name":    "Joana",
		"origin_category": "front_desk_notice",
		"occurred_on":     "2026-03-09",
	}, legacy)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var a domain.Alert
	require.NoError(t, json.Unmarshal(data, &a))
	return a
}

func TestHealthIsPublic(t *testing.T) {
	srv := newTestServer(t)
	res, _ := doJSON(t, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/alerts", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "unauthorized", errorCode(t, data))
}

func TestCreateAlertAndTransition(t *testing.T) {
	srv := newTestServer(t)
	a := srv.createAlert(t)
	assert.Equal(t, domain.AlertPending, a.Status)
	assert.Equal(t, "s-carla", a.ReportedBy)
	assert.Equal(t, domain.ColumnTodo, a.KanbanColumn)

	res, data := doJSON(t, http.MethodPost, srv.URL+"/v0/alerts/"+a.ID+"/status", map[string]any{"status": "retained"}, legacy)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v0/alerts/"+a.ID+"/status", map[string]any{"status": "churned"}, legacy)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "invalid_transition", errorCode(t, data))

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v0/alerts/missing", nil, legacy)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "not_found", errorCode(t, data))
}

func TestCreateAlertValidation(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, http.MethodPost, srv.URL+"/v0/alerts", map[string]any{
		"student_ref":     "stu-1",
		"origin_category": "front_desk_notice",
		"occurred_on":     "2026-03-09",
		"priority":        "whenever",
	}, legacy)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
}

func TestActivityErrors(t *testing.T) {
	srv := newTestServer(t)
	a := srv.createAlert(t)

	res, data := doJSON(t, http.MethodPost, srv.URL+"/v0/alerts/"+a.ID+"/activities", map[string]any{"type": "party"}, legacy)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "invalid_type", errorCode(t, data))

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v0/alerts/"+a.ID+"/activities", map[string]any{"type": "churn"}, legacy)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "validation_failed", errorCode(t, data))
}

func TestChurnIntentOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	a := srv.createAlert(t)

	res, data := doJSON(t, http.MethodPost, srv.URL+"/v0/alerts/"+a.ID+"/activities", map[string]any{"type": "churn_intent"}, legacy)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var created activityList
	require.NoError(t, json.Unmarshal(data, &created))
	require.Len(t, created.Items, 2)

	for _, act := range created.Items {
		res, data := doJSON(t, http.MethodPost, srv.URL+"/v0/activities/"+act.ID+"/complete", nil, legacy)
		require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	}

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v0/alerts/"+a.ID, nil, legacy)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var got domain.Alert
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, domain.AlertChurned, got.Status)

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v0/alerts/"+a.ID+"/activities", nil, legacy)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var all activityList
	require.NoError(t, json.Unmarshal(data, &all))
	assert.Len(t, all.Items, 3)
	assert.Equal(t, domain.ActivityChurn, all.Items[2].Type)
}

func TestNegotiationOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	a := srv.createAlert(t)
	res, data := doJSON(t, http.MethodPost, srv.URL+"/v0/alerts/"+a.ID+"/activities", map[string]any{"type": "financial_negotiation"}, legacy)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var created activityList
	require.NoError(t, json.Unmarshal(data, &created))

	url := srv.URL + "/v0/activities/" + created.Items[0].ID + "/negotiation"
	res, data = doJSON(t, http.MethodPost, url, map[string]any{"outcome": "temporary_adjustment"}, legacy)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))

	res, data = doJSON(t, http.MethodPost, url, map[string]any{"outcome": "permanent_adjustment", "notes": "agreed"}, legacy)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var result engine.NegotiationResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, domain.AlertRetained, result.Alert.Status)
	assert.Len(t, result.Spawned, 3)
}

func TestBoardFinalizeFlow(t *testing.T) {
	srv := newTestServer(t)
	a := srv.createAlert(t)

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/alerts/"+a.ID+"/card", nil, legacy)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var card domain.Card
	require.NoError(t, json.Unmarshal(data, &card))

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v0/cards/"+card.ID+"/move", map[string]any{"column": "doing"}, legacy)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, http.MethodPatch, srv.URL+"/v0/cards/"+card.ID, map[string]any{"tags": []string{"vip"}}, legacy)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v0/cards/"+card.ID+"/finalize", map[string]any{"outcome": "retained"}, legacy)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "invalid_transition", errorCode(t, data))

	res, _ = doJSON(t, http.MethodPost, srv.URL+"/v0/alerts/"+a.ID+"/status", map[string]any{"status": "retained"}, legacy)
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v0/cards/"+card.ID+"/finalize", map[string]any{"outcome": "retained"}, legacy)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v0/cards/"+card.ID+"/finalize", map[string]any{"outcome": "evaded"}, legacy)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "already_finalized", errorCode(t, data))

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v0/board?tag=vip", nil, legacy)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var board boardList
	require.NoError(t, json.Unmarshal(data, &board))
	require.Len(t, board.Items, 1)
	assert.Equal(t, domain.OutcomeRetained, *board.Items[0].Card.ResultOutcome)

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v0/cards/"+card.ID+"/history", nil, legacy)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var hist historyList
	require.NoError(t, json.Unmarshal(data, &hist))
	assert.Len(t, hist.Items, 4)

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v0/statistics", nil, legacy)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var periods []map[string]any
	require.NoError(t, json.Unmarshal(data, &periods))
	require.Len(t, periods, 4)
	assert.EqualValues(t, 1, periods[0]["total"])
}

func TestEventsPagination(t *testing.T) {
	srv := newTestServer(t)
	srv.createAlert(t)
	srv.createAlert(t)

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/events?type=alert.created&limit=1", nil, legacy)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var page paginatedEvents
	require.NoError(t, json.Unmarshal(data, &page))
	require.Len(t, page.Items, 1)
	require.NotEmpty(t, page.NextCursor)
	assert.Equal(t, "s-carla", page.Items[0].ActorID)

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v0/events?type=alert.created&limit=1&cursor="+page.NextCursor, nil, legacy)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var next paginatedEvents
	require.NoError(t, json.Unmarshal(data, &next))
	require.Len(t, next.Items, 1)
	assert.Empty(t, next.NextCursor)
	assert.Greater(t, next.Items[0].ID, page.Items[0].ID)
}

func TestJWTAndAPIKeyPrincipals(t *testing.T) {
	srv := newTestServer(t)

	token, err := SignToken(testSecret, "s-dora", "Dora", 0)
	require.NoError(t, err)
	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var p Principal
	require.NoError(t, json.Unmarshal(data, &p))
	assert.Equal(t, Principal{ActorID: "s-dora", Name: "Dora", Source: "jwt"}, p)

	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	ctx := context.Background()
	_, err = srv.engine.AddStaff(ctx, domain.Staff{ID: "s-eli", Name: "Eli"}, "")
	require.NoError(t, err)
	require.NoError(t, srv.engine.Repo.InsertAPIKey(ctx, nil, domain.APIKey{ID: "k1", StaffID: "s-eli", KeyHash: repo.HashAPIKey("secret-key")}))
	res, data = doJSON(t, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-Api-Key": "secret-key"})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &p))
	assert.Equal(t, Principal{ActorID: "s-eli", Name: "Eli", Source: "api_key"}, p)

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{"actor_id": "s-fab", "name": "Fab"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var login DevLoginResponse
	require.NoError(t, json.Unmarshal(data, &login))
	principal, err := authenticateJWT(login.Token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "s-fab", principal.ActorID)
}

func TestOpenAPIAndMetrics(t *testing.T) {
	srv := newTestServer(t)
	srv.createAlert(t)

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(data), "/v0/alerts")

	res, data = doJSON(t, http.MethodGet, srv.URL+"/metrics", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(data), "retentionline_alerts_created_total")
}

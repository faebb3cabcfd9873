package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retentionline/internal/config"
	"retentionline/internal/domain"
)

func boolPtr(v bool) *bool { return &v }

func TestWebhookFiltersAndHeaders(t *testing.T) {
	var mu sync.Mutex
	var got []Payload
	var secrets []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p Payload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		assert.Equal(t, p.Event, r.Header.Get("X-Retentionline-Event"))
		assert.Equal(t, "unit-1", r.Header.Get("X-Retentionline-Unit"))
		assert.NotEmpty(t, r.Header.Get("X-Retentionline-Delivery"))
		mu.Lock()
		got = append(got, p)
		secrets = append(secrets, r.Header.Get("X-Retentionline-Secret"))
		mu.Unlock()
	}))
	defer srv.Close()

	w := NewWebhook([]config.Webhook{
		{URL: srv.URL + "/all", Secret: "s3cret"},
		{URL: srv.URL + "/filtered", Events: []string{"activity.completed"}},
		{URL: srv.URL + "/off", Enabled: boolPtr(false)},
	})
	require.Equal(t, 2, w.Len())

	p := Payload{
		Event:    "activity.created",
		UnitID:   "unit-1",
		Activity: domain.Activity{ID: "act-1", Type: domain.ActivityEngagement},
		Alert:    domain.Alert{ID: "al-1"},
		Student:  Student{Ref: "stu-1"},
	}
	require.NoError(t, w.Send(context.Background(), p))

	require.Len(t, got, 1)
	assert.Equal(t, "act-1", got[0].Activity.ID)
	assert.Equal(t, []string{"s3cret"}, secrets)
}

func TestWebhookReportsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad", http.StatusBadRequest)
	}))
	defer srv.Close()

	w := NewWebhook([]config.Webhook{{URL: srv.URL}})
	err := w.Send(context.Background(), Payload{Event: "activity.created"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

func TestLogDispatcher(t *testing.T) {
	var buf bytes.Buffer
	l := Log{Logger: slog.New(slog.NewTextHandler(&buf, nil))}
	err := l.Send(context.Background(), Payload{
		Event:             "activity.created",
		Activity:          domain.Activity{ID: "act-9", Type: domain.ActivityRemoveFromSystem},
		DepartmentMembers: []Person{{ID: "s1"}, {ID: "s2"}},
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "activity_id=act-9")
	assert.Contains(t, buf.String(), "department_members=2")
}

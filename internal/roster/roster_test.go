package roster

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retentionline/internal/config"
	"retentionline/internal/outbound"
)

func TestStaticFromConfig(t *testing.T) {
	svc := FromConfig(config.Roster{Classes: map[string]config.Class{
		"c1": {TeacherID: "t1", TeacherName: "Ana", MessagingHandle: "@ana"},
	}})
	teacher, err := svc.TeacherForClass(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, Teacher{TeacherID: "t1", TeacherName: "Ana", MessagingHandle: "@ana"}, teacher)

	_, err = svc.TeacherForClass(context.Background(), "c2")
	require.ErrorIs(t, err, ErrClassNotFound)
}

func TestHTTPRoster(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/classes/c1/teacher" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(Teacher{TeacherID: "t9", TeacherName: "Rui"})
	}))
	defer srv.Close()

	client := outbound.New(time.Second)
	client.MaxElapsed = 200 * time.Millisecond
	svc := HTTP{BaseURL: srv.URL + "/", Client: client}

	teacher, err := svc.TeacherForClass(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "t9", teacher.TeacherID)

	_, err = svc.TeacherForClass(context.Background(), "missing")
	require.ErrorIs(t, err, ErrClassNotFound)
}

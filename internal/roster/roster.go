// Package roster resolves the teacher responsible for a class.
package roster

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"retentionline/internal/config"
	"retentionline/internal/outbound"
)

var ErrClassNotFound = errors.New("class not found")

type Teacher struct {
	TeacherID       string `json:"teacher_id"`
	TeacherName     string `json:"teacher_name"`
	MessagingHandle string `json:"messaging_handle,omitempty"`
}

type Service interface {
	TeacherForClass(ctx context.Context, classID string) (Teacher, error)
}

// Static serves teachers from the workspace config.
type Static map[string]Teacher

func (s Static) TeacherForClass(_ context.Context, classID string) (Teacher, error) {
	t, ok := s[classID]
	if !ok {
		return Teacher{}, fmt.Errorf("%w: %s", ErrClassNotFound, classID)
	}
	return t, nil
}

// HTTP calls GET {base}/classes/{id}/teacher.
type HTTP struct {
	BaseURL string
	Client  *outbound.Client
}

func (h HTTP) TeacherForClass(ctx context.Context, classID string) (Teacher, error) {
	endpoint := strings.TrimRight(h.BaseURL, "/") + "/classes/" + url.PathEscape(classID) + "/teacher"
	var t Teacher
	if err := h.Client.Do(ctx, http.MethodGet, endpoint, nil, nil, &t); err != nil {
		if outbound.IsStatus(err, http.StatusNotFound) {
			return Teacher{}, fmt.Errorf("%w: %s", ErrClassNotFound, classID)
		}
		return Teacher{}, fmt.Errorf("roster lookup %s: %w", classID, err)
	}
	if t.TeacherID == "" {
		return Teacher{}, fmt.Errorf("roster lookup %s: empty teacher_id", classID)
	}
	return t, nil
}

// FromConfig picks the HTTP roster when a url is configured.
func FromConfig(cfg config.Roster) Service {
	if cfg.URL != "" {
		return HTTP{BaseURL: cfg.URL, Client: outbound.New(time.Duration(cfg.TimeoutSeconds) * time.Second)}
	}
	s := Static{}
	for id, cls := range cfg.Classes {
		s[id] = Teacher{TeacherID: cls.TeacherID, TeacherName: cls.TeacherName, MessagingHandle: cls.MessagingHandle}
	}
	return s
}

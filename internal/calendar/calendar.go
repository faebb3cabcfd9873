// Package calendar books attendance sessions on the teacher's calendar.
package calendar

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"retentionline/internal/config"
	"retentionline/internal/outbound"
)

type Event struct {
	TeacherID   string `json:"teacher_id"`
	Date        string `json:"date"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type Booking struct {
	ID string `json:"id"`
}

type Service interface {
	CreateEvent(ctx context.Context, evt Event) (Booking, error)
}

// ErrDisabled is returned by Noop so callers can tell nothing was booked.
var ErrDisabled = errors.New("calendar disabled")

type Noop struct{}

func (Noop) CreateEvent(context.Context, Event) (Booking, error) {
	return Booking{}, ErrDisabled
}

// HTTP posts events to {url}/events with a bearer token.
type HTTP struct {
	BaseURL string
	Token   string
	Client  *outbound.Client
}

func (h HTTP) CreateEvent(ctx context.Context, evt Event) (Booking, error) {
	headers := map[string]string{}
	if h.Token != "" {
		headers["Authorization"] = "Bearer " + h.Token
	}
	var b Booking
	err := h.Client.Do(ctx, http.MethodPost, strings.TrimRight(h.BaseURL, "/")+"/events", headers, evt, &b)
	return b, err
}

func FromConfig(cfg config.Calendar) Service {
	if !cfg.Enabled {
		return Noop{}
	}
	return HTTP{BaseURL: cfg.URL, Token: cfg.Token, Client: outbound.New(time.Duration(cfg.TimeoutSeconds) * time.Second)}
}

// EndTime adds minutes to an HH:MM start time.
func EndTime(start string, minutes int) (string, error) {
	t, err := time.Parse("15:04", start)
	if err != nil {
		return "", err
	}
	return t.Add(time.Duration(minutes) * time.Minute).Format("15:04"), nil
}

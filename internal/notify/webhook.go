package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"retentionline/internal/config"
	"retentionline/internal/outbound"
)

type hook struct {
	url    string
	secret string
	filter eventFilter
	client *outbound.Client
}

// Webhook posts each payload to every active hook whose event filter
// matches, concurrently.
type Webhook struct {
	hooks []hook
}

func NewWebhook(hooks []config.Webhook) *Webhook {
	w := &Webhook{}
	for _, h := range hooks {
		if !h.Active() || strings.TrimSpace(h.URL) == "" {
			continue
		}
		w.hooks = append(w.hooks, hook{
			url:    h.URL,
			secret: h.Secret,
			filter: newEventFilter(h.Events),
			client: outbound.New(time.Duration(h.TimeoutSeconds) * time.Second),
		})
	}
	return w
}

// Len returns the number of active hooks.
func (w *Webhook) Len() int {
	return len(w.hooks)
}

func (w *Webhook) Send(ctx context.Context, p Payload) error {
	delivery := uuid.NewString()
	var g errgroup.Group
	errs := make([]error, len(w.hooks))
	for i, h := range w.hooks {
		if !h.filter.match(p.Event) {
			continue
		}
		g.Go(func() error {
			headers := map[string]string{
				"X-Retentionline-Event":    p.Event,
				"X-Retentionline-Delivery": delivery,
				"X-Retentionline-Unit":     p.UnitID,
			}
			if strings.TrimSpace(h.secret) != "" {
				headers["X-Retentionline-Secret"] = h.secret
			}
			if err := h.client.Do(ctx, http.MethodPost, h.url, headers, p, nil); err != nil {
				errs[i] = fmt.Errorf("deliver to %s: %w", h.url, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(events []string) eventFilter {
	if len(events) == 0 {
		return eventFilter{all: true}
	}
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		key := strings.TrimSpace(evt)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}

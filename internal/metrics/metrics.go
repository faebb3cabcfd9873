// Package metrics exposes Prometheus counters for the retention workflow.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"retentionline/internal/events"
)

var (
	alertsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "retentionline_alerts_created_total",
		Help: "Total retention alerts opened",
	})

	alertTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retentionline_alert_transitions_total",
		Help: "Alert status transitions by target status",
	}, []string{"status"})

	activitiesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retentionline_activities_created_total",
		Help: "Activities created by type",
	}, []string{"type"})

	activitiesCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retentionline_activities_completed_total",
		Help: "Activities completed by type",
	}, []string{"type"})

	cardsFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retentionline_cards_finalized_total",
		Help: "Board cards finalized by outcome",
	}, []string{"outcome"})

	sideEffectFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retentionline_side_effect_failures_total",
		Help: "Failed notifications and calendar bookings",
	}, []string{"kind"})
)

// SideEffectFailed counts a failed notification or booking.
func SideEffectFailed(kind string) {
	sideEffectFailures.WithLabelValues(kind).Inc()
}

// Observe subscribes the counters to the domain event bus.
func Observe(bus *events.Bus) {
	bus.Subscribe("metrics", func(_ context.Context, evt events.Event) error {
		switch evt.Type {
		case events.AlertCreated:
			alertsCreated.Inc()
		case events.AlertStatusChanged:
			alertTransitions.WithLabelValues(label(evt.Payload, "to")).Inc()
		case events.ActivityCreated, events.ChurnSynthesized:
			activitiesCreated.WithLabelValues(label(evt.Payload, "type")).Inc()
		case events.ActivityCompleted:
			activitiesCompleted.WithLabelValues(label(evt.Payload, "type")).Inc()
		case events.AlertFinalized:
			cardsFinalized.WithLabelValues(label(evt.Payload, "outcome")).Inc()
		}
		return nil
	})
}

func label(p events.Payload, key string) string {
	if v, ok := p[key]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return "unknown"
}

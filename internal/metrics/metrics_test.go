package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"retentionline/internal/events"
)

func TestObserveCountsEvents(t *testing.T) {
	bus := events.NewBus(nil)
	Observe(bus)

	created := testutil.ToFloat64(activitiesCreated.WithLabelValues("engagement"))
	finalized := testutil.ToFloat64(cardsFinalized.WithLabelValues("retained"))

	bus.Publish(context.Background(),
		events.Event{Type: events.ActivityCreated, Payload: events.Payload{"type": "engagement"}},
		events.Event{Type: events.AlertFinalized, Payload: events.Payload{"outcome": "retained"}},
	)

	assert.Equal(t, created+1, testutil.ToFloat64(activitiesCreated.WithLabelValues("engagement")))
	assert.Equal(t, finalized+1, testutil.ToFloat64(cardsFinalized.WithLabelValues("retained")))
}

func TestSideEffectFailed(t *testing.T) {
	before := testutil.ToFloat64(sideEffectFailures.WithLabelValues("calendar"))
	SideEffectFailed("calendar")
	assert.Equal(t, before+1, testutil.ToFloat64(sideEffectFailures.WithLabelValues("calendar")))
}

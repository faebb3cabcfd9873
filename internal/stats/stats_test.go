package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retentionline/internal/domain"
)

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func rec(outcome domain.ResultOutcome, ts string) Record {
	return Record{Outcome: outcome, FinalizedAt: at(ts)}
}

func TestThreeRetainedOneEvaded(t *testing.T) {
	now := at("2026-10-16T12:00:00Z")
	records := []Record{
		rec(domain.OutcomeRetained, "2026-10-01T09:00:00Z"),
		rec(domain.OutcomeRetained, "2026-10-05T09:00:00Z"),
		rec(domain.OutcomeRetained, "2026-10-10T09:00:00Z"),
		rec(domain.OutcomeEvaded, "2026-10-11T09:00:00Z"),
	}
	m := Measure(records, MonthWindow(now))
	assert.Equal(t, Metrics{Total: 4, Churned: 1, Retained: 3, RetentionRate: 75.0}, m)
}

func TestEmptyWindowHasZeroRate(t *testing.T) {
	m := Measure(nil, MonthWindow(at("2026-10-16T12:00:00Z")))
	assert.Equal(t, Metrics{}, m)
}

func TestWindows(t *testing.T) {
	now := at("2026-02-16T12:00:00Z")

	month := MonthWindow(now)
	assert.Equal(t, at("2026-02-01T00:00:00Z"), month.Start)
	assert.Equal(t, at("2026-03-01T00:00:00Z"), month.End)
	assert.Equal(t, "2026-02", month.Label)

	quarter := QuarterWindow(now)
	assert.Equal(t, at("2025-12-01T00:00:00Z"), quarter.Start)
	assert.Equal(t, at("2026-03-01T00:00:00Z"), quarter.End)
	assert.Equal(t, "2025-12/2026-02", quarter.Label)

	semester := SemesterWindow(now)
	assert.Equal(t, at("2025-09-01T00:00:00Z"), semester.Start)

	year := YearWindow(now)
	assert.Equal(t, at("2026-01-01T00:00:00Z"), year.Start)
	assert.Equal(t, at("2027-01-01T00:00:00Z"), year.End)
	assert.Equal(t, "2026", year.Label)

	prev := quarter.Previous()
	assert.Equal(t, at("2025-09-01T00:00:00Z"), prev.Start)
	assert.Equal(t, quarter.Start, prev.End)

	py := quarter.PriorYear()
	assert.Equal(t, at("2024-12-01T00:00:00Z"), py.Start)
	assert.Equal(t, at("2025-03-01T00:00:00Z"), py.End)

	assert.Equal(t, "2025", year.Previous().Label)
}

func TestComputeDeltas(t *testing.T) {
	now := at("2026-10-16T12:00:00Z")
	records := []Record{
		// current month: 2 of 3 retained -> 66.7
		rec(domain.OutcomeRetained, "2026-10-02T09:00:00Z"),
		rec(domain.OutcomeRetained, "2026-10-03T09:00:00Z"),
		rec(domain.OutcomeEvaded, "2026-10-04T09:00:00Z"),
		// previous month: 1 of 4 retained -> 25.0
		rec(domain.OutcomeRetained, "2026-09-02T09:00:00Z"),
		rec(domain.OutcomeEvaded, "2026-09-03T09:00:00Z"),
		rec(domain.OutcomeEvaded, "2026-09-04T09:00:00Z"),
		rec(domain.OutcomeEvaded, "2026-09-05T09:00:00Z"),
		// same month last year: 1 of 1 retained -> 100.0
		rec(domain.OutcomeRetained, "2025-10-20T09:00:00Z"),
	}
	out := Compute(records, now)
	require.Len(t, out, 4)

	month := out[0]
	assert.Equal(t, KindMonth, month.Window.Kind)
	assert.Equal(t, 3, month.Total)
	assert.Equal(t, 66.7, month.RetentionRate)
	assert.Equal(t, 25.0, month.Previous.RetentionRate)
	assert.Equal(t, 42, month.Previous.PercentPointDelta)
	assert.Equal(t, 100.0, month.PriorYear.RetentionRate)
	assert.Equal(t, -33, month.PriorYear.PercentPointDelta)

	year := out[3]
	assert.Equal(t, 7, year.Total)
	assert.Equal(t, 1, year.PriorYear.Total)
}

func TestComputeIsDeterministic(t *testing.T) {
	now := at("2026-10-16T12:00:00Z")
	records := []Record{rec(domain.OutcomeRetained, "2026-10-02T09:00:00Z")}
	assert.Equal(t, Compute(records, now), Compute(records, now))
}

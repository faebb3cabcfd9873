// Package stats computes retention statistics over finalized outcomes. It
// is pure: results depend only on the records and the reference time.
package stats

import (
	"fmt"
	"math"
	"time"

	"retentionline/internal/domain"
)

type Kind string

const (
	KindMonth    Kind = "month"
	KindQuarter  Kind = "quarter"
	KindSemester Kind = "semester"
	KindYear     Kind = "year"
)

// Window is a half-open [Start, End) range of whole months.
type Window struct {
	Kind   Kind      `json:"kind"`
	Label  string    `json:"label"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Months int       `json:"months"`
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func newWindow(kind Kind, start time.Time, months int) Window {
	w := Window{Kind: kind, Start: start, End: start.AddDate(0, months, 0), Months: months}
	w.Label = label(w)
	return w
}

func label(w Window) string {
	last := w.End.AddDate(0, -1, 0)
	switch {
	case w.Kind == KindYear && w.Start.Month() == time.January:
		return fmt.Sprintf("%d", w.Start.Year())
	case w.Months == 1:
		return w.Start.Format("2006-01")
	}
	return w.Start.Format("2006-01") + "/" + last.Format("2006-01")
}

// MonthWindow is the calendar month containing now.
func MonthWindow(now time.Time) Window {
	return newWindow(KindMonth, monthStart(now), 1)
}

// QuarterWindow is the current month plus the two before it.
func QuarterWindow(now time.Time) Window {
	return newWindow(KindQuarter, monthStart(now).AddDate(0, -2, 0), 3)
}

// SemesterWindow is the current month plus the five before it.
func SemesterWindow(now time.Time) Window {
	return newWindow(KindSemester, monthStart(now).AddDate(0, -5, 0), 6)
}

// YearWindow is the calendar year containing now.
func YearWindow(now time.Time) Window {
	return newWindow(KindYear, time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location()), 12)
}

// Windows returns the month, quarter, semester and year windows for now.
func Windows(now time.Time) []Window {
	return []Window{MonthWindow(now), QuarterWindow(now), SemesterWindow(now), YearWindow(now)}
}

// Previous is the window of equal length immediately before w.
func (w Window) Previous() Window {
	return newWindow(w.Kind, w.Start.AddDate(0, -w.Months, 0), w.Months)
}

// PriorYear is w shifted back twelve months.
func (w Window) PriorYear() Window {
	return newWindow(w.Kind, w.Start.AddDate(-1, 0, 0), w.Months)
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Record is one finalized card.
type Record struct {
	Outcome     domain.ResultOutcome
	FinalizedAt time.Time
}

type Metrics struct {
	Total         int     `json:"total"`
	Churned       int     `json:"churned"`
	Retained      int     `json:"retained"`
	RetentionRate float64 `json:"retention_rate"`
}

type Comparison struct {
	Window Window `json:"window"`
	Metrics
	PercentPointDelta int `json:"percent_point_delta"`
}

type PeriodStatistics struct {
	Window Window `json:"window"`
	Metrics
	Previous  Comparison `json:"previous"`
	PriorYear Comparison `json:"prior_year"`
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Measure folds the records finalized inside w.
func Measure(records []Record, w Window) Metrics {
	var m Metrics
	for _, r := range records {
		if !w.Contains(r.FinalizedAt) {
			continue
		}
		m.Total++
		switch r.Outcome {
		case domain.OutcomeEvaded:
			m.Churned++
		case domain.OutcomeRetained:
			m.Retained++
		}
	}
	if m.Total > 0 {
		m.RetentionRate = round1(float64(m.Retained) / float64(m.Total) * 100)
	}
	return m
}

func compare(records []Record, current Metrics, w Window) Comparison {
	m := Measure(records, w)
	return Comparison{
		Window:            w,
		Metrics:           m,
		PercentPointDelta: int(math.Round(current.RetentionRate - m.RetentionRate)),
	}
}

// Compute returns statistics for every standard window around now.
func Compute(records []Record, now time.Time) []PeriodStatistics {
	windows := Windows(now)
	out := make([]PeriodStatistics, 0, len(windows))
	for _, w := range windows {
		cur := Measure(records, w)
		out = append(out, PeriodStatistics{
			Window:    w,
			Metrics:   cur,
			Previous:  compare(records, cur, w.Previous()),
			PriorYear: compare(records, cur, w.PriorYear()),
		})
	}
	return out
}

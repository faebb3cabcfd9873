package engine

import (
	"context"
	"fmt"
	"time"

	"retentionline/internal/stats"
)

// Statistics reads the unit's finalized cards and computes the standard
// windows around now.
func (e Engine) Statistics(ctx context.Context) ([]stats.PeriodStatistics, error) {
	rows, err := e.Repo.ListFinalizedOutcomes(ctx, e.UnitID)
	if err != nil {
		return nil, err
	}
	records := make([]stats.Record, 0, len(rows))
	for _, r := range rows {
		ts, err := time.Parse(time.RFC3339, r.FinalizedAt)
		if err != nil {
			return nil, fmt.Errorf("finalized_at %q: %w", r.FinalizedAt, err)
		}
		records = append(records, stats.Record{Outcome: r.Outcome, FinalizedAt: ts})
	}
	return stats.Compute(records, e.now().UTC()), nil
}

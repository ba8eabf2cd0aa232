package energy

import (
	"sort"
	"time"

	"github.com/robotnikz/sunflow/pkg/types"
)

// Reconcile merges the high-resolution samples with the hourly archive into
// one ascending series of PeriodEnergy records. When both tiers carry the
// same timestamp the high-resolution sample wins, so a row is never counted
// twice. Sample durations are derived from the gap to the next row in the
// merged series regardless of tier, so a sample adjacent to an archive hour
// never integrates across energy the archive row already accounts for.
// Archive rows always cover one hour.
func Reconcile(samples []types.PowerSample, summaries []types.EnergySummary) []types.PeriodEnergy {
	type row struct {
		ts      time.Time
		highRes bool
		sample  types.PowerSample
		summary types.EnergySummary
	}
	rows := make([]row, 0, len(samples)+len(summaries))
	for _, s := range samples {
		rows = append(rows, row{ts: s.Timestamp, highRes: true, sample: s})
	}
	for _, s := range summaries {
		rows = append(rows, row{ts: s.TSHourStart, summary: s})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].ts.Equal(rows[j].ts) {
			return rows[i].highRes && !rows[j].highRes
		}
		return rows[i].ts.Before(rows[j].ts)
	})

	deduped := rows[:0]
	for i, r := range rows {
		if i > 0 && r.ts.Equal(rows[i-1].ts) {
			continue
		}
		deduped = append(deduped, r)
	}

	merged := make([]time.Time, len(deduped))
	for i, r := range deduped {
		merged[i] = r.ts
	}
	durs := Durations(merged)

	out := make([]types.PeriodEnergy, 0, len(deduped))
	for i, r := range deduped {
		if r.highRes {
			out = append(out, FromPowerSample(r.sample, durs[i]))
		} else {
			out = append(out, FromSummary(r.summary))
		}
	}
	return out
}

package energy

import (
	"sort"
	"time"

	"github.com/robotnikz/sunflow/pkg/types"
)

// HourlyFromSummaries converts archive rows to hourly grid buckets. Archive
// rows already cover whole hours so this is a direct Wh to kWh mapping.
func HourlyFromSummaries(summaries []types.EnergySummary) []types.HourlyGridEnergy {
	out := make([]types.HourlyGridEnergy, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, types.HourlyGridEnergy{
			TSHourStart: s.TSHourStart,
			ImportKWH:   finite(s.GridConsumptionWh) / 1000,
			ExportKWH:   finite(s.GridFeedInWh) / 1000,
		})
	}
	return out
}

// HourlyFromSamples integrates minute samples into hourly grid buckets,
// used when a range predates the hourly archive. Samples must be ascending.
func HourlyFromSamples(samples []types.PowerSample) []types.HourlyGridEnergy {
	ts := make([]time.Time, len(samples))
	for i, s := range samples {
		ts[i] = s.Timestamp
	}
	durs := Durations(ts)

	buckets := make(map[time.Time]*types.HourlyGridEnergy)
	for i, s := range samples {
		hour := s.Timestamp.Truncate(time.Hour)
		b := buckets[hour]
		if b == nil {
			b = &types.HourlyGridEnergy{TSHourStart: hour}
			buckets[hour] = b
		}
		if g := finite(s.GridW); g > 0 {
			b.ImportKWH += g * durs[i] / 1000
		} else {
			b.ExportKWH += -g * durs[i] / 1000
		}
	}

	out := make([]types.HourlyGridEnergy, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TSHourStart.Before(out[j].TSHourStart) })
	return out
}

// Package energy holds the accounting core: integration of power samples
// into energy, reconciliation of the two storage tiers, tariff resolution,
// financial aggregation, ROI projection, battery health estimation and the
// fixed-vs-dynamic tariff comparison. Everything here is pure computation
// over in-memory slices so it can be tested without a database.
package energy

import (
	"math"
	"time"

	"github.com/robotnikz/sunflow/pkg/types"
)

const (
	// nominalHours is the assumed duration of one polling interval.
	nominalHours = 1.0 / 60.0

	// maxGap is the largest sample gap still treated as continuous
	// operation. Beyond it the system was off and the sample only counts
	// for a nominal interval.
	maxGap = 24 * time.Hour
)

// finite coerces NaN and infinities to 0 so a single bad reading cannot
// poison an aggregate.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Durations returns the integration duration in hours for each timestamp.
// Timestamps must be ascending. A gap of up to a minute to the next sample
// counts as one nominal interval; longer gaps count in full so energy over
// short outages is not lost; gaps past maxGap fall back to the nominal
// interval. The final sample always gets the nominal interval.
func Durations(timestamps []time.Time) []float64 {
	out := make([]float64, len(timestamps))
	for i := range timestamps {
		if i == len(timestamps)-1 {
			out[i] = nominalHours
			continue
		}
		gap := timestamps[i+1].Sub(timestamps[i])
		if gap > time.Minute && gap <= maxGap {
			out[i] = gap.Hours()
		} else {
			out[i] = nominalHours
		}
	}
	return out
}

// FromPowerSample integrates one high-resolution sample over the given
// duration. Grid and battery power are split by sign: positive grid is
// import, negative export; positive battery is discharge, negative charge.
func FromPowerSample(s types.PowerSample, hours float64) types.PeriodEnergy {
	toKWH := func(w float64) float64 {
		return finite(w) * hours / 1000
	}
	p := types.PeriodEnergy{
		Timestamp:      s.Timestamp,
		Source:         types.SourceLog,
		DurationHours:  hours,
		ProductionKWH:  toKWH(s.SolarW),
		ConsumptionKWH: toKWH(s.HomeW),
		SOC:            finite(s.SOC),
		Status:         s.Status,
	}
	if g := finite(s.GridW); g >= 0 {
		p.GridImportKWH = g * hours / 1000
	} else {
		p.GridExportKWH = -g * hours / 1000
	}
	if b := finite(s.BatteryW); b >= 0 {
		p.BatteryUsedKWH = b * hours / 1000
	} else {
		p.BatteryChargedKWH = -b * hours / 1000
	}
	return p
}

// FromSummary converts an hourly archive row. Watt-hours divide straight
// to kWh since the quantities are already energy.
func FromSummary(s types.EnergySummary) types.PeriodEnergy {
	return types.PeriodEnergy{
		Timestamp:         s.TSHourStart,
		Source:            types.SourceArchive,
		DurationHours:     1,
		ProductionKWH:     finite(s.ProductionWh) / 1000,
		ConsumptionKWH:    finite(s.LoadWh) / 1000,
		GridImportKWH:     finite(s.GridConsumptionWh) / 1000,
		GridExportKWH:     finite(s.GridFeedInWh) / 1000,
		BatteryChargedKWH: finite(s.BatteryChargeWh) / 1000,
		BatteryUsedKWH:    finite(s.BatteryDischargeWh) / 1000,
	}
}

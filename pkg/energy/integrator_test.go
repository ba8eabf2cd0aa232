package energy

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotnikz/sunflow/pkg/types"
)

func ts(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestDurations(t *testing.T) {
	tests := []struct {
		name       string
		timestamps []time.Time
		expected   []float64
	}{
		{
			name:       "steady minute cadence",
			timestamps: []time.Time{ts("2024-06-01 12:00:00"), ts("2024-06-01 12:01:00"), ts("2024-06-01 12:02:00")},
			expected:   []float64{nominalHours, nominalHours, nominalHours},
		},
		{
			name:       "short outage counts in full",
			timestamps: []time.Time{ts("2024-06-01 12:00:00"), ts("2024-06-01 12:30:00"), ts("2024-06-01 12:31:00")},
			expected:   []float64{0.5, nominalHours, nominalHours},
		},
		{
			name:       "multi-day gap falls back to nominal",
			timestamps: []time.Time{ts("2024-06-01 12:00:00"), ts("2024-06-03 12:00:01"), ts("2024-06-03 12:01:01")},
			expected:   []float64{nominalHours, nominalHours, nominalHours},
		},
		{
			name:       "single sample",
			timestamps: []time.Time{ts("2024-06-01 12:00:00")},
			expected:   []float64{nominalHours},
		},
		{
			name:       "empty",
			timestamps: nil,
			expected:   []float64{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Durations(tt.timestamps)
			require.Len(t, got, len(tt.expected))
			for i := range got {
				assert.InDelta(t, tt.expected[i], got[i], 1e-12)
			}
		})
	}
}

func TestFromPowerSampleSignSplit(t *testing.T) {
	s := types.PowerSample{
		Timestamp: ts("2024-06-01 12:00:00"),
		SolarW:    5000,
		HomeW:     1200,
		GridW:     -3800,
		BatteryW:  -1000,
		SOC:       80,
		Status:    types.StatusNormal,
	}
	p := FromPowerSample(s, nominalHours)
	assert.InDelta(t, 5.0/60, p.ProductionKWH, 1e-9)
	assert.InDelta(t, 1.2/60, p.ConsumptionKWH, 1e-9)
	assert.Zero(t, p.GridImportKWH)
	assert.InDelta(t, 3.8/60, p.GridExportKWH, 1e-9)
	assert.InDelta(t, 1.0/60, p.BatteryChargedKWH, 1e-9)
	assert.Zero(t, p.BatteryUsedKWH)
	assert.Equal(t, types.SourceLog, p.Source)

	s.GridW = 900
	s.BatteryW = 400
	p = FromPowerSample(s, nominalHours)
	assert.InDelta(t, 0.9/60, p.GridImportKWH, 1e-9)
	assert.Zero(t, p.GridExportKWH)
	assert.InDelta(t, 0.4/60, p.BatteryUsedKWH, 1e-9)
	assert.Zero(t, p.BatteryChargedKWH)
}

// An hour of steady minute samples at constant power must integrate to
// power * 1h regardless of how the hour is sliced.
func TestIntegrationMeanPowerProperty(t *testing.T) {
	start := ts("2024-06-01 00:00:00")
	samples := make([]types.PowerSample, 60)
	for i := range samples {
		samples[i] = types.PowerSample{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			SolarW:    600,
			GridW:     -600,
		}
	}
	rows := Reconcile(samples, nil)
	st := Summarize(rows, []types.Tariff{DefaultTariff()})
	assert.InDelta(t, 0.6, st.ProductionKWH, 1e-9)
	assert.InDelta(t, 0.6, st.GridExportKWH, 1e-9)
}

func TestFromPowerSampleNonFinite(t *testing.T) {
	s := types.PowerSample{
		Timestamp: ts("2024-06-01 12:00:00"),
		SolarW:    math.NaN(),
		HomeW:     math.Inf(1),
		GridW:     math.Inf(-1),
	}
	p := FromPowerSample(s, nominalHours)
	assert.Zero(t, p.ProductionKWH)
	assert.Zero(t, p.ConsumptionKWH)
	assert.Zero(t, p.GridImportKWH)
	assert.Zero(t, p.GridExportKWH)
}

func TestFromSummary(t *testing.T) {
	s := types.EnergySummary{
		TSHourStart:        ts("2024-06-01 12:00:00"),
		ProductionWh:       4200,
		GridFeedInWh:       3000,
		GridConsumptionWh:  150,
		BatteryChargeWh:    800,
		BatteryDischargeWh: 50,
		LoadWh:             1350,
	}
	p := FromSummary(s)
	assert.Equal(t, types.SourceArchive, p.Source)
	assert.InDelta(t, 4.2, p.ProductionKWH, 1e-9)
	assert.InDelta(t, 3.0, p.GridExportKWH, 1e-9)
	assert.InDelta(t, 0.15, p.GridImportKWH, 1e-9)
	assert.InDelta(t, 0.8, p.BatteryChargedKWH, 1e-9)
	assert.InDelta(t, 0.05, p.BatteryUsedKWH, 1e-9)
	assert.InDelta(t, 1.35, p.ConsumptionKWH, 1e-9)
	assert.InDelta(t, 1.0, p.DurationHours, 1e-9)
}

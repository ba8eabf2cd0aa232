package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotnikz/sunflow/pkg/types"
)

func newTestDB(t *testing.T) *SQLite {
	t.Helper()
	s := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleAt(ts time.Time, gridW float64) types.PowerSample {
	return types.PowerSample{
		Timestamp: ts,
		SolarW:    1000,
		HomeW:     500,
		GridW:     gridW,
		BatteryW:  -200,
		SOC:       55,
		Status:    types.StatusNormal,
	}
}

func TestPowerSampleRoundTrip(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.Local)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.InsertPowerSample(ctx, sampleAt(base.Add(time.Duration(i)*time.Minute), 100)))
	}

	got, err := s.GetPowerSamples(ctx, base, base.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 2, "end bound is exclusive")
	assert.Equal(t, base, got[0].Timestamp)
	assert.Equal(t, types.StatusNormal, got[0].Status)
	assert.Equal(t, 1000.0, got[0].SolarW)
}

func TestTariffSeededAndLastDeleteRejected(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()

	tariffs, err := s.GetTariffs(ctx)
	require.NoError(t, err)
	require.Len(t, tariffs, 1, "a default tariff is seeded on first init")
	assert.Equal(t, "2000-01-01", tariffs[0].ValidFrom)

	err = s.DeleteTariff(ctx, tariffs[0].ID)
	assert.True(t, errors.Is(err, ErrLastTariff))

	id, err := s.AddTariff(ctx, types.Tariff{ValidFrom: "2024-01-01", CostKWH: 0.32, FeedInKWH: 0.08})
	require.NoError(t, err)

	// with two tariffs present deleting one is fine
	require.NoError(t, s.DeleteTariff(ctx, id))
	err = s.DeleteTariff(ctx, id)
	assert.True(t, errors.Is(err, ErrTariffNotFound))
}

func TestTariffsOrderedByValidFrom(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()

	_, err := s.AddTariff(ctx, types.Tariff{ValidFrom: "2025-01-01", CostKWH: 0.35, FeedInKWH: 0.07})
	require.NoError(t, err)
	_, err = s.AddTariff(ctx, types.Tariff{ValidFrom: "2023-01-01", CostKWH: 0.28, FeedInKWH: 0.09})
	require.NoError(t, err)

	tariffs, err := s.GetTariffs(ctx)
	require.NoError(t, err)
	require.Len(t, tariffs, 3)
	for i := 1; i < len(tariffs); i++ {
		assert.LessOrEqual(t, tariffs[i-1].ValidFrom, tariffs[i].ValidFrom)
	}
}

func TestExpenseCRUD(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()

	id, err := s.AddExpense(ctx, types.Expense{Name: "inverter", Amount: 2500, Type: types.ExpenseOneTime, Date: "2023-03-15"})
	require.NoError(t, err)

	expenses, err := s.GetExpenses(ctx)
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	assert.Equal(t, "inverter", expenses[0].Name)

	require.NoError(t, s.DeleteExpense(ctx, id))
	err = s.DeleteExpense(ctx, id)
	assert.True(t, errors.Is(err, ErrExpenseNotFound))
}

func TestRollupBefore(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()

	old := time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local)
	for i := 0; i < 60; i++ {
		require.NoError(t, s.InsertPowerSample(ctx, sampleAt(old.Add(time.Duration(i)*time.Minute), -600)))
	}
	recent := time.Date(2024, 6, 1, 10, 0, 0, 0, time.Local)
	require.NoError(t, s.InsertPowerSample(ctx, sampleAt(recent, 100)))

	deleted, err := s.RollupBefore(ctx, old.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.EqualValues(t, 60, deleted)

	// the hour of constant -600 W becomes a 600 Wh feed-in archive row
	rows, err := s.GetEnergySummaries(ctx, old, old.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, old, rows[0].TSHourStart)
	assert.InDelta(t, 600, rows[0].GridFeedInWh, 1e-6)
	assert.InDelta(t, 1000, rows[0].ProductionWh, 1e-6)

	// recent sample untouched
	samples, err := s.GetPowerSamples(ctx, recent, recent.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, samples, 1)
}

func TestReplaceSummaryYears(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()

	inYear := time.Date(2023, 7, 1, 12, 0, 0, 0, time.Local)
	otherYear := time.Date(2024, 7, 1, 12, 0, 0, 0, time.Local)
	require.NoError(t, s.InsertPowerSample(ctx, sampleAt(inYear, 100)))
	require.NoError(t, s.InsertPowerSample(ctx, sampleAt(otherYear, 100)))
	require.NoError(t, s.UpsertEnergySummaries(ctx, []types.EnergySummary{
		{TSHourStart: inYear.Truncate(time.Hour), ProductionWh: 1},
	}))

	imported := []types.EnergySummary{
		{TSHourStart: time.Date(2023, 1, 1, 0, 0, 0, 0, time.Local), ProductionWh: 4200},
	}
	require.NoError(t, s.ReplaceSummaryYears(ctx, []int{2023}, imported))

	// 2023 is fully replaced in both tiers
	samples, err := s.GetPowerSamples(ctx, inYear.AddDate(0, -6, 0), inYear.AddDate(0, 6, 0))
	require.NoError(t, err)
	assert.Empty(t, samples)
	rows, err := s.GetEnergySummaries(ctx, time.Date(2023, 1, 1, 0, 0, 0, 0, time.Local), time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.InDelta(t, 4200, rows[0].ProductionWh, 1e-9)

	// 2024 untouched
	samples, err = s.GetPowerSamples(ctx, otherYear, otherYear.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, samples, 1)
}

func TestBatteryDayStatsIgnoresNoiseFloor(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.Local)
	insert := func(min int, battW, soc float64) {
		p := sampleAt(base.Add(time.Duration(min)*time.Minute), 0)
		p.BatteryW = battW
		p.SOC = soc
		require.NoError(t, s.InsertPowerSample(ctx, p))
	}
	insert(0, -1200, 20) // charging
	insert(1, 900, 80)   // discharging
	insert(2, 5, 50)     // inside the noise floor, still counted as a sample
	insert(3, 0, 50)     // ignored entirely

	stats, err := s.GetBatteryDayStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "2024-06-01", stats[0].Date)
	assert.InDelta(t, 1200, stats[0].ChargeWSum, 1e-9)
	assert.InDelta(t, 900, stats[0].DischargeWSum, 1e-9)
	assert.Equal(t, 3, stats[0].Samples)
	assert.InDelta(t, 20, stats[0].MinSOC, 1e-9)
	assert.InDelta(t, 80, stats[0].MaxSOC, 1e-9)
}

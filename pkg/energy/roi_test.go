package energy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotnikz/sunflow/pkg/types"
)

func TestProjectROIAlreadyBrokenEven(t *testing.T) {
	sum := ProjectROI(ROIParams{
		Expenses:      []types.Expense{{Amount: 1000, Type: types.ExpenseOneTime, Date: "2022-01-01"}},
		Tariffs:       []types.Tariff{DefaultTariff()},
		Now:           ts("2024-06-01 12:00:00"),
		SystemStart:   ts("2022-01-01 00:00:00"),
		TotalReturned: 1500,
	})
	assert.Equal(t, 1000.0, sum.TotalInvested)
	assert.Equal(t, 500.0, sum.NetValue)
	assert.Equal(t, 150.0, sum.ROIPercent)
	assert.Nil(t, sum.BreakEvenDate)
	assert.Zero(t, sum.ProjectedBreakEvenCost)
}

// With zero degradation and inflation the break-even date is exactly
// debt / dailyProfit days out.
func TestProjectROIExactBreakEven(t *testing.T) {
	now := ts("2024-06-01 00:00:00")
	sum := ProjectROI(ROIParams{
		Expenses:             []types.Expense{{Amount: 1000, Type: types.ExpenseOneTime, Date: "2023-01-01"}},
		Tariffs:              []types.Tariff{{ValidFrom: "2020-01-01", CostKWH: 0.30, FeedInKWH: 0.08}},
		Now:                  now,
		SystemStart:          ts("2023-01-01 00:00:00"),
		TotalReturned:        660,
		DailySelfConsumedKWH: 10, // 3.00/day
		DailyExportKWH:       5,  // 0.40/day
		DegradationPercent:   0,
		InflationPercent:     0,
	})
	// debt 340 at 3.40/day clears in exactly 100 days
	require.NotNil(t, sum.BreakEvenDate)
	expected := now.Add(100 * 24 * time.Hour)
	assert.WithinDuration(t, expected, *sum.BreakEvenDate, time.Minute)
	assert.InDelta(t, 1000, sum.ProjectedBreakEvenCost, 1e-6)
}

func TestProjectROIYearlyExpenseProRata(t *testing.T) {
	now := ts("2024-01-01 00:00:00")
	sum := ProjectROI(ROIParams{
		Expenses: []types.Expense{
			{Amount: 365.25, Type: types.ExpenseYearly, Date: "2023-01-01"},
		},
		Tariffs:       []types.Tariff{DefaultTariff()},
		Now:           now,
		SystemStart:   ts("2023-01-01 00:00:00"),
		TotalReturned: 10000,
	})
	// exactly 365 days elapsed of a 365.25-day year
	assert.InDelta(t, 365.25*365/365.25, sum.TotalInvested, 1e-6)
}

func TestProjectROIYearlyExpenseNeverAccruesBeforeSystemStart(t *testing.T) {
	now := ts("2024-01-01 00:00:00")
	sum := ProjectROI(ROIParams{
		Expenses: []types.Expense{
			{Amount: 100, Type: types.ExpenseYearly, Date: "2010-01-01"},
		},
		Tariffs:       []types.Tariff{DefaultTariff()},
		Now:           now,
		SystemStart:   ts("2023-01-01 00:00:00"),
		TotalReturned: 10000,
	})
	assert.Less(t, sum.TotalInvested, 101.0)
}

func TestProjectROINeverProfitable(t *testing.T) {
	sum := ProjectROI(ROIParams{
		Expenses: []types.Expense{
			{Amount: 10000, Type: types.ExpenseOneTime, Date: "2023-01-01"},
			{Amount: 5000, Type: types.ExpenseYearly, Date: "2023-01-01"},
		},
		Tariffs:              []types.Tariff{DefaultTariff()},
		Now:                  ts("2024-06-01 00:00:00"),
		SystemStart:          ts("2023-01-01 00:00:00"),
		TotalReturned:        100,
		DailySelfConsumedKWH: 1,
		DailyExportKWH:       1,
	})
	// daily profit 0.38 against 13.69/day recurring cost: debt only grows
	assert.Nil(t, sum.BreakEvenDate)
	assert.Zero(t, sum.ProjectedBreakEvenCost)
}

func TestProjectROIDegradationDelaysBreakEven(t *testing.T) {
	base := ROIParams{
		Expenses:             []types.Expense{{Amount: 5000, Type: types.ExpenseOneTime, Date: "2023-01-01"}},
		Tariffs:              []types.Tariff{{ValidFrom: "2020-01-01", CostKWH: 0.30, FeedInKWH: 0.08}},
		Now:                  ts("2024-06-01 00:00:00"),
		SystemStart:          ts("2023-01-01 00:00:00"),
		TotalReturned:        500,
		DailySelfConsumedKWH: 6,
		DailyExportKWH:       10,
	}
	noDeg := base
	noDeg.DegradationPercent = 0
	withDeg := base
	withDeg.DegradationPercent = 3

	a := ProjectROI(noDeg)
	b := ProjectROI(withDeg)
	require.NotNil(t, a.BreakEvenDate)
	require.NotNil(t, b.BreakEvenDate)
	assert.True(t, b.BreakEvenDate.After(*a.BreakEvenDate))
}

func TestProjectROIFutureTariffChangesProjection(t *testing.T) {
	// A far richer feed-in tariff starting soon must pull break-even in.
	base := ROIParams{
		Expenses:             []types.Expense{{Amount: 5000, Type: types.ExpenseOneTime, Date: "2023-01-01"}},
		Now:                  ts("2024-06-01 00:00:00"),
		SystemStart:          ts("2023-01-01 00:00:00"),
		TotalReturned:        500,
		DailySelfConsumedKWH: 5,
		DailyExportKWH:       10,
	}
	flat := base
	flat.Tariffs = []types.Tariff{{ValidFrom: "2020-01-01", CostKWH: 0.30, FeedInKWH: 0.08}}
	boosted := base
	boosted.Tariffs = []types.Tariff{
		{ValidFrom: "2020-01-01", CostKWH: 0.30, FeedInKWH: 0.08},
		{ValidFrom: "2024-07-01", CostKWH: 0.30, FeedInKWH: 0.50},
	}
	a := ProjectROI(flat)
	b := ProjectROI(boosted)
	require.NotNil(t, a.BreakEvenDate)
	require.NotNil(t, b.BreakEvenDate)
	assert.True(t, b.BreakEvenDate.Before(*a.BreakEvenDate))
}

func TestDailyBaseline(t *testing.T) {
	now := ts("2024-06-01 00:00:00")

	t.Run("lifetime average preferred", func(t *testing.T) {
		selfCons, export := DailyBaseline(
			types.EnergyTotals{ProductionKWH: 1000, ExportKWH: 400},
			200, 100,
			now.AddDate(0, 0, -100), now,
			0, 0, time.Time{}, 90,
		)
		// initial self consumed = 1000-400 = 600; (600+200)/100 days
		assert.InDelta(t, 8, selfCons, 1e-9)
		assert.InDelta(t, 5, export, 1e-9)
	})

	t.Run("trailing window fallback", func(t *testing.T) {
		selfCons, export := DailyBaseline(
			types.EnergyTotals{}, 0, 0,
			time.Time{}, now,
			45, 90, now.AddDate(0, 0, -45), 90,
		)
		assert.InDelta(t, 1, selfCons, 1e-9)
		assert.InDelta(t, 2, export, 1e-9)
	})

	t.Run("window capped at 90 days", func(t *testing.T) {
		_, export := DailyBaseline(
			types.EnergyTotals{}, 0, 0,
			time.Time{}, now,
			0, 900, now.AddDate(0, 0, -400), 90,
		)
		assert.InDelta(t, 10, export, 1e-9)
	})
}

package retention

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/robotnikz/sunflow/pkg/config"
	"github.com/robotnikz/sunflow/pkg/storage/storagemock"
	"github.com/robotnikz/sunflow/pkg/types"
)

func TestCalibrate(t *testing.T) {
	ctx := context.Background()
	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	db := &storagemock.MockDatabase{}

	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.Local)
	hour := time.Date(2024, 6, 1, 12, 0, 0, 0, time.Local)
	// the full-history scan is bounded by the caller's clock, not wall time
	end := now.AddDate(100, 0, 0)
	db.On("GetPowerSamples", ctx, time.Time{}, end).Return([]types.PowerSample{}, nil)
	db.On("GetEnergySummaries", ctx, time.Time{}, end).Return([]types.EnergySummary{
		{TSHourStart: hour, ProductionWh: 5000, GridFeedInWh: 3000, GridConsumptionWh: 0, LoadWh: 2000},
	}, nil)
	db.On("GetTariffs", ctx).Return([]types.Tariff{
		{ValidFrom: "2020-01-01", CostKWH: 0.30, FeedInKWH: 0.08},
	}, nil)

	require.NoError(t, Calibrate(ctx, db, cfg, now))

	c, err := cfg.Get()
	require.NoError(t, err)
	assert.Equal(t, 5.0, c.DBTotals.ProductionKWH)
	assert.Equal(t, 3.0, c.DBTotals.ExportKWH)
	assert.Equal(t, 0.0, c.DBTotals.ImportKWH)
	// self consumed 2 kWh * 0.30 + 3 kWh * 0.08 = 0.84
	assert.InDelta(t, 0.84, c.DBTotals.FinancialReturn, 1e-9)
	db.AssertExpectations(t)
}

func TestRunOnceRollsUpAndRecalibrates(t *testing.T) {
	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	db := &storagemock.MockDatabase{}
	clk := clock.NewMock()
	clk.Set(time.Date(2024, 6, 10, 12, 0, 0, 0, time.Local))

	db.On("RollupBefore", mock.Anything, mock.MatchedBy(func(cutoff time.Time) bool {
		return cutoff.Equal(time.Date(2024, 6, 3, 12, 0, 0, 0, time.Local))
	})).Return(120, nil)
	db.On("GetPowerSamples", mock.Anything, mock.Anything, mock.Anything).Return([]types.PowerSample{}, nil)
	db.On("GetEnergySummaries", mock.Anything, mock.Anything, mock.Anything).Return([]types.EnergySummary{}, nil)
	db.On("GetTariffs", mock.Anything).Return([]types.Tariff{{ValidFrom: "2020-01-01", CostKWH: 0.3, FeedInKWH: 0.08}}, nil)

	New(db, cfg, clk).runOnce(context.Background())

	db.AssertExpectations(t)
	db.AssertNotCalled(t, "Vacuum", mock.Anything)
}

func TestRunOnceSkipsCalibrationWhenNothingArchived(t *testing.T) {
	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	db := &storagemock.MockDatabase{}
	clk := clock.NewMock()
	clk.Set(time.Date(2024, 6, 10, 3, 0, 0, 0, time.Local))

	db.On("RollupBefore", mock.Anything, mock.Anything).Return(0, nil)
	db.On("Vacuum", mock.Anything).Return(nil)

	New(db, cfg, clk).runOnce(context.Background())

	db.AssertExpectations(t)
	db.AssertNotCalled(t, "GetTariffs", mock.Anything)
}

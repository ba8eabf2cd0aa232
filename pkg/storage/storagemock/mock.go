package storagemock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/robotnikz/sunflow/pkg/storage"
	"github.com/robotnikz/sunflow/pkg/types"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) InsertPowerSample(ctx context.Context, s types.PowerSample) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockDatabase) GetPowerSamples(ctx context.Context, start, end time.Time) ([]types.PowerSample, error) {
	args := m.Called(ctx, start, end)
	if len(args) > 0 {
		samples, _ := args.Get(0).([]types.PowerSample)
		return samples, args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) GetBatteryDayStats(ctx context.Context) ([]types.BatteryDayStats, error) {
	args := m.Called(ctx)
	if len(args) > 0 {
		stats, _ := args.Get(0).([]types.BatteryDayStats)
		return stats, args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) UpsertEnergySummaries(ctx context.Context, rows []types.EnergySummary) error {
	args := m.Called(ctx, rows)
	return args.Error(0)
}

func (m *MockDatabase) GetEnergySummaries(ctx context.Context, start, end time.Time) ([]types.EnergySummary, error) {
	args := m.Called(ctx, start, end)
	if len(args) > 0 {
		rows, _ := args.Get(0).([]types.EnergySummary)
		return rows, args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) GetTariffs(ctx context.Context) ([]types.Tariff, error) {
	args := m.Called(ctx)
	if len(args) > 0 {
		tariffs, _ := args.Get(0).([]types.Tariff)
		return tariffs, args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) AddTariff(ctx context.Context, t types.Tariff) (int64, error) {
	args := m.Called(ctx, t)
	return int64(args.Int(0)), args.Error(1)
}

func (m *MockDatabase) DeleteTariff(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDatabase) GetExpenses(ctx context.Context) ([]types.Expense, error) {
	args := m.Called(ctx)
	if len(args) > 0 {
		expenses, _ := args.Get(0).([]types.Expense)
		return expenses, args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) AddExpense(ctx context.Context, e types.Expense) (int64, error) {
	args := m.Called(ctx, e)
	return int64(args.Int(0)), args.Error(1)
}

func (m *MockDatabase) DeleteExpense(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDatabase) RollupBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return int64(args.Int(0)), args.Error(1)
}

func (m *MockDatabase) Vacuum(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockDatabase) ReplacePowerSamples(ctx context.Context, start, end time.Time, samples []types.PowerSample) error {
	args := m.Called(ctx, start, end, samples)
	return args.Error(0)
}

func (m *MockDatabase) ReplaceSummaryYears(ctx context.Context, years []int, rows []types.EnergySummary) error {
	args := m.Called(ctx, years, rows)
	return args.Error(0)
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/robotnikz/sunflow/pkg/types"
)

var (
	// ErrLastTariff is returned when a delete would leave the tariff table
	// empty. A tariff must always exist so every stored row can be priced.
	ErrLastTariff = errors.New("cannot delete the last remaining tariff")

	ErrTariffNotFound  = errors.New("tariff not found")
	ErrExpenseNotFound = errors.New("expense not found")
)

// Database defines the interface for persisting energy data, tariffs and
// expenses.
type Database interface {
	// High-resolution power log
	InsertPowerSample(ctx context.Context, s types.PowerSample) error
	GetPowerSamples(ctx context.Context, start, end time.Time) ([]types.PowerSample, error)
	GetBatteryDayStats(ctx context.Context) ([]types.BatteryDayStats, error)

	// Hourly archive
	UpsertEnergySummaries(ctx context.Context, rows []types.EnergySummary) error
	GetEnergySummaries(ctx context.Context, start, end time.Time) ([]types.EnergySummary, error)

	// Tariffs, ordered by valid_from ascending
	GetTariffs(ctx context.Context) ([]types.Tariff, error)
	AddTariff(ctx context.Context, t types.Tariff) (int64, error)
	DeleteTariff(ctx context.Context, id int64) error

	// Expenses
	GetExpenses(ctx context.Context) ([]types.Expense, error)
	AddExpense(ctx context.Context, e types.Expense) (int64, error)
	DeleteExpense(ctx context.Context, id int64) error

	// Retention
	// RollupBefore archives samples older than cutoff as hourly averages
	// and deletes the originals. It returns the number of samples removed.
	RollupBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Vacuum(ctx context.Context) error

	// Import
	// ReplacePowerSamples wipes the high-resolution log between start and
	// end (inclusive day bounds) and inserts the given samples in one
	// transaction.
	ReplacePowerSamples(ctx context.Context, start, end time.Time, samples []types.PowerSample) error
	// ReplaceSummaryYears wipes both tiers for the given calendar years and
	// inserts the given hourly rows in one transaction.
	ReplaceSummaryYears(ctx context.Context, years []int, rows []types.EnergySummary) error

	// Lifecycle
	Close() error
}

// Configured sets up the storage backend based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "sqlite", "Storage provider to use (available: sqlite)")

	var p struct{ Database }

	sq := configuredSQLite()

	lflag.Do(func() {
		switch *provider {
		case "sqlite":
			if err := sq.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("sqlite init failed: %v", err))
			}
			p.Database = sq
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}

// Package retention keeps the high-resolution log bounded: minute samples
// older than a week are rolled up into hourly archive rows and deleted.
// Lifetime totals are recalibrated after every rollup so the dashboard's
// cumulative figures survive the loss of per-minute detail.
package retention

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/robotnikz/sunflow/pkg/config"
	"github.com/robotnikz/sunflow/pkg/energy"
	"github.com/robotnikz/sunflow/pkg/log"
	"github.com/robotnikz/sunflow/pkg/storage"
)

const (
	// retainDays is how much high-resolution history is kept.
	retainDays   = 7
	runInterval  = time.Hour
	startupDelay = 30 * time.Second
	// vacuumHour is the local hour during which a pass also compacts the
	// database file.
	vacuumHour   = 3
)

type Job struct {
	db  storage.Database
	cfg *config.Store
	clk clock.Clock
}

func New(db storage.Database, cfg *config.Store, clk clock.Clock) *Job {
	return &Job{db: db, cfg: cfg, clk: clk}
}

// Run executes a pass shortly after startup and then hourly until the
// context is canceled.
func (j *Job) Run(ctx context.Context) {
	ctx = log.WithJob(ctx, "retention")

	startup := j.clk.Timer(startupDelay)
	defer startup.Stop()
	select {
	case <-ctx.Done():
		return
	case <-startup.C:
		j.runOnce(ctx)
	}

	ticker := j.clk.Ticker(runInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *Job) runOnce(ctx context.Context) {
	now := j.clk.Now()
	cutoff := now.AddDate(0, 0, -retainDays)

	deleted, err := j.db.RollupBefore(ctx, cutoff)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "rollup failed", "error", err)
		return
	}
	if deleted > 0 {
		log.Ctx(ctx).InfoContext(ctx, "archived minute samples", "deleted", deleted, "cutoff", cutoff)
		if err := Calibrate(ctx, j.db, j.cfg, now); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "calibration failed", "error", err)
		}
	}

	if now.Hour() == vacuumHour {
		if err := j.db.Vacuum(ctx); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "vacuum failed", "error", err)
		}
	}
}

// Calibrate recomputes the lifetime totals from everything stored and saves
// them to config. Run after rollups and imports, both of which change what
// a full-history scan would add up to.
func Calibrate(ctx context.Context, db storage.Database, cfg *config.Store, now time.Time) error {
	var start time.Time
	end := now.AddDate(100, 0, 0)

	samples, err := db.GetPowerSamples(ctx, start, end)
	if err != nil {
		return err
	}
	summaries, err := db.GetEnergySummaries(ctx, start, end)
	if err != nil {
		return err
	}
	tariffs, err := db.GetTariffs(ctx)
	if err != nil {
		return err
	}

	totals := energy.LifetimeTotals(energy.Reconcile(samples, summaries), tariffs)
	if err := cfg.SetDBTotals(totals); err != nil {
		return err
	}
	log.Ctx(ctx).InfoContext(ctx, "lifetime totals recalibrated",
		"production", totals.ProductionKWH, "import", totals.ImportKWH,
		"export", totals.ExportKWH, "return", totals.FinancialReturn)
	return nil
}

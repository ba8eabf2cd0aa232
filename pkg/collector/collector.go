// Package collector runs the one minute polling loop: read the inverter,
// evaluate notifications, persist the sample and push it to live listeners.
package collector

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/robotnikz/sunflow/pkg/config"
	"github.com/robotnikz/sunflow/pkg/energy"
	"github.com/robotnikz/sunflow/pkg/inverter"
	"github.com/robotnikz/sunflow/pkg/log"
	"github.com/robotnikz/sunflow/pkg/notify"
	"github.com/robotnikz/sunflow/pkg/storage"
	"github.com/robotnikz/sunflow/pkg/types"
)

const pollInterval = time.Minute

// Broadcaster pushes each polled sample to connected live clients.
type Broadcaster interface {
	Broadcast(sample types.PowerSample)
}

type Collector struct {
	db        storage.Database
	cfg       *config.Store
	inv       *inverter.Client
	notifier  *notify.Notifier
	clk       clock.Clock
	broadcast Broadcaster
}

func New(db storage.Database, cfg *config.Store, inv *inverter.Client, notifier *notify.Notifier, clk clock.Clock, broadcast Broadcaster) *Collector {
	return &Collector{
		db:        db,
		cfg:       cfg,
		inv:       inv,
		notifier:  notifier,
		clk:       clk,
		broadcast: broadcast,
	}
}

// Run polls every minute until the context is canceled.
func (c *Collector) Run(ctx context.Context) {
	ctx = log.WithJob(ctx, "collector")
	ticker := c.clk.Ticker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Poll(ctx); err != nil {
				log.Ctx(ctx).ErrorContext(ctx, "poll failed", "error", err)
			}
		}
	}
}

// Poll performs one polling pass. An unreachable inverter still records an
// offline sample so outages are visible in history.
func (c *Collector) Poll(ctx context.Context) error {
	cfg, err := c.cfg.Get()
	if err != nil {
		return err
	}
	if cfg.InverterHost == "" {
		return nil
	}

	reading, err := c.inv.Fetch(ctx, cfg.InverterHost)
	if err != nil {
		// a rejected host is a configuration problem; log an offline
		// sample rather than silently skipping the minute
		log.Ctx(ctx).WarnContext(ctx, "inverter host rejected", "error", err)
		reading = inverter.Reading{Sample: types.PowerSample{
			Timestamp: c.clk.Now(),
			Status:    types.StatusOffline,
		}}
	}

	c.notifier.Evaluate(ctx, cfg.Notifications, reading.Sample)
	if c.notifier.SOHCheckDue(cfg.Notifications) {
		c.checkSOH(ctx, cfg)
	}

	if err := c.db.InsertPowerSample(ctx, reading.Sample); err != nil {
		return err
	}
	if c.broadcast != nil {
		c.broadcast.Broadcast(reading.Sample)
	}
	return nil
}

func (c *Collector) checkSOH(ctx context.Context, cfg types.Config) {
	days, err := c.db.GetBatteryDayStats(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "battery day stats query failed", "error", err)
		return
	}
	report := energy.BatteryHealth(days, cfg.BatteryCapacityKWH)
	c.notifier.EvaluateSOH(ctx, cfg.Notifications, report)
}

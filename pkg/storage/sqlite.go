package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"path/filepath"
	"time"

	"github.com/NotCoffee418/dbmigrator"
	"github.com/levenlabs/go-lflag"
	_ "modernc.org/sqlite"

	"github.com/robotnikz/sunflow/pkg/types"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// timeLayout is how timestamps are stored. Local wall-clock strings keep
// strftime day/hour grouping and string range comparisons consistent with
// what the dashboard displays.
const timeLayout = "2006-01-02 15:04:05"

func formatTS(t time.Time) string  { return t.Format(timeLayout) }
func parseTS(s string) (time.Time, error) {
	return time.ParseInLocation(timeLayout, s, time.Local)
}

// SQLite persists everything in a single database file in the data
// directory. The connection pool is capped at one connection so writes are
// serialized; readers go through the same connection which is fine at the
// one-sample-per-minute write rate.
type SQLite struct {
	path string
	db   *sql.DB
}

func configuredSQLite() *SQLite {
	s := &SQLite{}
	path := lflag.String("db-path", filepath.Join("data", "sunflow.db"), "Path to the SQLite database file")
	lflag.Do(func() {
		s.path = *path
	})
	return s
}

// NewSQLite opens a store at the given path without going through flags.
// Used by tests.
func NewSQLite(path string) *SQLite {
	return &SQLite{path: path}
}

// Init opens the database, enables WAL and applies migrations. The tariff
// table is seeded with a catch-all default so pricing always resolves.
func (s *SQLite) Init(ctx context.Context) error {
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("opening sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging sqlite database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("enabling WAL: %w", err)
	}

	dbmigrator.SetDatabaseType(dbmigrator.SQLite)
	<-dbmigrator.MigrateUpCh(db, migrationFS, "migrations")

	s.db = db

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tariffs").Scan(&count); err != nil {
		return fmt.Errorf("counting tariffs: %w", err)
	}
	if count == 0 {
		_, err := db.ExecContext(ctx,
			"INSERT INTO tariffs (valid_from, cost_per_kwh, feed_in_tariff) VALUES (?, ?, ?)",
			"2000-01-01", 0.30, 0.08)
		if err != nil {
			return fmt.Errorf("seeding default tariff: %w", err)
		}
	}
	return nil
}

func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLite) InsertPowerSample(ctx context.Context, p types.PowerSample) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO energy_log (timestamp, power_pv, power_load, power_grid, power_battery, soc, energy_day_wh, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		formatTS(p.Timestamp), p.SolarW, p.HomeW, p.GridW, p.BatteryW, p.SOC, p.DayProductionWh, int(p.Status))
	if err != nil {
		return fmt.Errorf("inserting power sample: %w", err)
	}
	return nil
}

func (s *SQLite) GetPowerSamples(ctx context.Context, start, end time.Time) ([]types.PowerSample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, power_pv, power_load, power_grid, power_battery, soc, energy_day_wh, status
		FROM energy_log
		WHERE timestamp >= ? AND timestamp < ?
		ORDER BY timestamp ASC`,
		formatTS(start), formatTS(end))
	if err != nil {
		return nil, fmt.Errorf("querying power samples: %w", err)
	}
	defer rows.Close()

	var out []types.PowerSample
	for rows.Next() {
		var ts string
		var p types.PowerSample
		var status int
		if err := rows.Scan(&ts, &p.SolarW, &p.HomeW, &p.GridW, &p.BatteryW, &p.SOC, &p.DayProductionWh, &status); err != nil {
			return nil, fmt.Errorf("scanning power sample: %w", err)
		}
		if p.Timestamp, err = parseTS(ts); err != nil {
			return nil, fmt.Errorf("parsing sample timestamp %q: %w", ts, err)
		}
		p.Status = types.InverterStatus(status)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLite) GetBatteryDayStats(ctx context.Context) ([]types.BatteryDayStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			strftime('%Y-%m-%d', timestamp) AS date,
			SUM(CASE WHEN power_battery < -10 THEN ABS(power_battery) ELSE 0 END) AS charge_w,
			SUM(CASE WHEN power_battery > 10 THEN power_battery ELSE 0 END) AS discharge_w,
			MIN(soc), MAX(soc), COUNT(*)
		FROM energy_log
		WHERE power_battery != 0
		GROUP BY date
		ORDER BY date ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying battery day stats: %w", err)
	}
	defer rows.Close()

	var out []types.BatteryDayStats
	for rows.Next() {
		var d types.BatteryDayStats
		if err := rows.Scan(&d.Date, &d.ChargeWSum, &d.DischargeWSum, &d.MinSOC, &d.MaxSOC, &d.Samples); err != nil {
			return nil, fmt.Errorf("scanning battery day stats: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLite) UpsertEnergySummaries(ctx context.Context, summaries []types.EnergySummary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()
	if err := insertSummaries(ctx, tx, summaries); err != nil {
		return err
	}
	return tx.Commit()
}

func insertSummaries(ctx context.Context, tx *sql.Tx, summaries []types.EnergySummary) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO energy_data (timestamp, production_wh, grid_feed_in_wh, grid_consumption_wh, battery_charge_wh, battery_discharge_wh, load_wh)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(timestamp) DO UPDATE SET
			production_wh = excluded.production_wh,
			grid_feed_in_wh = excluded.grid_feed_in_wh,
			grid_consumption_wh = excluded.grid_consumption_wh,
			battery_charge_wh = excluded.battery_charge_wh,
			battery_discharge_wh = excluded.battery_discharge_wh,
			load_wh = excluded.load_wh`)
	if err != nil {
		return fmt.Errorf("preparing summary insert: %w", err)
	}
	defer stmt.Close()
	for _, r := range summaries {
		_, err := stmt.ExecContext(ctx, formatTS(r.TSHourStart),
			r.ProductionWh, r.GridFeedInWh, r.GridConsumptionWh,
			r.BatteryChargeWh, r.BatteryDischargeWh, r.LoadWh)
		if err != nil {
			return fmt.Errorf("inserting energy summary: %w", err)
		}
	}
	return nil
}

func (s *SQLite) GetEnergySummaries(ctx context.Context, start, end time.Time) ([]types.EnergySummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, production_wh, grid_feed_in_wh, grid_consumption_wh, battery_charge_wh, battery_discharge_wh, load_wh
		FROM energy_data
		WHERE timestamp >= ? AND timestamp < ?
		ORDER BY timestamp ASC`,
		formatTS(start), formatTS(end))
	if err != nil {
		return nil, fmt.Errorf("querying energy summaries: %w", err)
	}
	defer rows.Close()

	var out []types.EnergySummary
	for rows.Next() {
		var ts string
		var r types.EnergySummary
		var prod, feedIn, gridCons, battCharge, battDischarge, load sql.NullFloat64
		if err := rows.Scan(&ts, &prod, &feedIn, &gridCons, &battCharge, &battDischarge, &load); err != nil {
			return nil, fmt.Errorf("scanning energy summary: %w", err)
		}
		if r.TSHourStart, err = parseTS(ts); err != nil {
			return nil, fmt.Errorf("parsing summary timestamp %q: %w", ts, err)
		}
		r.ProductionWh = prod.Float64
		r.GridFeedInWh = feedIn.Float64
		r.GridConsumptionWh = gridCons.Float64
		r.BatteryChargeWh = battCharge.Float64
		r.BatteryDischargeWh = battDischarge.Float64
		r.LoadWh = load.Float64
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) GetTariffs(ctx context.Context) ([]types.Tariff, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, valid_from, cost_per_kwh, feed_in_tariff FROM tariffs ORDER BY valid_from ASC")
	if err != nil {
		return nil, fmt.Errorf("querying tariffs: %w", err)
	}
	defer rows.Close()

	var out []types.Tariff
	for rows.Next() {
		var t types.Tariff
		if err := rows.Scan(&t.ID, &t.ValidFrom, &t.CostKWH, &t.FeedInKWH); err != nil {
			return nil, fmt.Errorf("scanning tariff: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLite) AddTariff(ctx context.Context, t types.Tariff) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO tariffs (valid_from, cost_per_kwh, feed_in_tariff) VALUES (?, ?, ?)",
		t.ValidFrom, t.CostKWH, t.FeedInKWH)
	if err != nil {
		return 0, fmt.Errorf("inserting tariff: %w", err)
	}
	return res.LastInsertId()
}

func (s *SQLite) DeleteTariff(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM tariffs").Scan(&count); err != nil {
		return fmt.Errorf("counting tariffs: %w", err)
	}
	if count <= 1 {
		return ErrLastTariff
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM tariffs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting tariff: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTariffNotFound
	}
	return tx.Commit()
}

func (s *SQLite) GetExpenses(ctx context.Context) ([]types.Expense, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, amount, type, date FROM expenses ORDER BY date ASC")
	if err != nil {
		return nil, fmt.Errorf("querying expenses: %w", err)
	}
	defer rows.Close()

	var out []types.Expense
	for rows.Next() {
		var e types.Expense
		if err := rows.Scan(&e.ID, &e.Name, &e.Amount, &e.Type, &e.Date); err != nil {
			return nil, fmt.Errorf("scanning expense: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLite) AddExpense(ctx context.Context, e types.Expense) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO expenses (name, amount, type, date) VALUES (?, ?, ?, ?)",
		e.Name, e.Amount, e.Type, e.Date)
	if err != nil {
		return 0, fmt.Errorf("inserting expense: %w", err)
	}
	return res.LastInsertId()
}

func (s *SQLite) DeleteExpense(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM expenses WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrExpenseNotFound
	}
	return nil
}

// RollupBefore archives minute samples older than cutoff into hourly rows
// and removes the originals. Averaging watts over an hour yields watt-hours
// directly. Hours already present in the archive are left untouched.
func (s *SQLite) RollupBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	cut := formatTS(cutoff)
	_, err = tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO energy_data (timestamp, production_wh, grid_feed_in_wh, grid_consumption_wh, battery_charge_wh, battery_discharge_wh, load_wh)
		SELECT
			strftime('%Y-%m-%d %H:00:00', timestamp) AS ts,
			AVG(power_pv),
			AVG(CASE WHEN power_grid < 0 THEN ABS(power_grid) ELSE 0 END),
			AVG(CASE WHEN power_grid > 0 THEN power_grid ELSE 0 END),
			AVG(CASE WHEN power_battery < 0 THEN ABS(power_battery) ELSE 0 END),
			AVG(CASE WHEN power_battery > 0 THEN power_battery ELSE 0 END),
			AVG(power_load)
		FROM energy_log
		WHERE timestamp < ?
		GROUP BY ts`, cut)
	if err != nil {
		return 0, fmt.Errorf("archiving hourly averages: %w", err)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM energy_log WHERE timestamp < ?", cut)
	if err != nil {
		return 0, fmt.Errorf("deleting archived samples: %w", err)
	}
	deleted, _ := res.RowsAffected()
	return deleted, tx.Commit()
}

func (s *SQLite) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("vacuuming database: %w", err)
	}
	return nil
}

func (s *SQLite) ReplacePowerSamples(ctx context.Context, start, end time.Time, samples []types.PowerSample) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"DELETE FROM energy_log WHERE timestamp >= ? AND timestamp <= ?",
		formatTS(start), formatTS(end))
	if err != nil {
		return fmt.Errorf("clearing sample range: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO energy_log (timestamp, power_pv, power_load, power_grid, power_battery, soc, energy_day_wh, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing sample insert: %w", err)
	}
	defer stmt.Close()
	for _, p := range samples {
		_, err := stmt.ExecContext(ctx, formatTS(p.Timestamp),
			p.SolarW, p.HomeW, p.GridW, p.BatteryW, p.SOC, p.DayProductionWh, int(p.Status))
		if err != nil {
			return fmt.Errorf("inserting imported sample: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) ReplaceSummaryYears(ctx context.Context, years []int, summaries []types.EnergySummary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, y := range years {
		yearStr := fmt.Sprintf("%04d", y)
		for _, table := range []string{"energy_data", "energy_log"} {
			_, err := tx.ExecContext(ctx,
				fmt.Sprintf("DELETE FROM %s WHERE strftime('%%Y', timestamp) = ?", table), yearStr)
			if err != nil {
				return fmt.Errorf("clearing %s for year %s: %w", table, yearStr, err)
			}
		}
	}
	if err := insertSummaries(ctx, tx, summaries); err != nil {
		return err
	}
	return tx.Commit()
}

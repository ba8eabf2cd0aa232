package server

import (
	"math"
	"net/http"
	"time"

	"github.com/robotnikz/sunflow/pkg/energy"
	"github.com/robotnikz/sunflow/pkg/log"
)

// baselineWindowDays bounds the trailing window used to derive daily energy
// baselines when there is less than a day of lifetime history.
const baselineWindowDays = 90

func (s *Server) handleROI(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cfg, err := s.config.Get()
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "reading config failed", "error", err)
		writeJSONError(w, "failed to read config", http.StatusInternalServerError)
		return
	}
	expenses, err := s.storage.GetExpenses(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "expense query failed", "error", err)
		writeJSONError(w, "failed to load expenses", http.StatusInternalServerError)
		return
	}
	tariffs, err := s.tariffsOrDefault(r)
	if err != nil {
		writeJSONError(w, "failed to load tariffs", http.StatusInternalServerError)
		return
	}

	now := s.clk.Now()
	var start time.Time
	rows, err := s.reconciledRange(r, start, now.AddDate(100, 0, 0))
	if err != nil {
		writeJSONError(w, "failed to load history", http.StatusInternalServerError)
		return
	}

	// One pass over the full history: financial return plus the energy sums
	// the break-even baseline needs (lifetime and a trailing window).
	var dbReturned, dbSelfConsumed, dbExported float64
	var windowSelfConsumed, windowExported float64
	var windowOldest time.Time
	windowStart := now.AddDate(0, 0, -baselineWindowDays)

	for _, row := range rows {
		t := energy.ResolveTariff(tariffs, row.Timestamp)
		self := math.Max(0, row.ConsumptionKWH-row.GridImportKWH)

		dbReturned += self*t.CostKWH + row.GridExportKWH*t.FeedInKWH
		dbSelfConsumed += self
		dbExported += row.GridExportKWH

		if !row.Timestamp.Before(windowStart) {
			windowSelfConsumed += self
			windowExported += row.GridExportKWH
			if windowOldest.IsZero() {
				windowOldest = row.Timestamp
			}
		}
	}

	var systemStart time.Time
	if cfg.SystemStartDate != "" {
		if d, err := time.ParseInLocation(dateLayout, cfg.SystemStartDate, now.Location()); err == nil {
			systemStart = d
		}
	}

	dailySelf, dailyExport := energy.DailyBaseline(
		cfg.InitialValues, dbSelfConsumed, dbExported,
		systemStart, now,
		windowSelfConsumed, windowExported, windowOldest, baselineWindowDays)

	summary := energy.ProjectROI(energy.ROIParams{
		Expenses:             expenses,
		Tariffs:              tariffs,
		Now:                  now,
		SystemStart:          systemStart,
		TotalReturned:        dbReturned + cfg.InitialValues.FinancialReturn,
		DailySelfConsumedKWH: dailySelf,
		DailyExportKWH:       dailyExport,
		DegradationPercent:   cfg.DegradationPercent(),
		InflationPercent:     cfg.InflationPercent(),
	})
	writeJSON(w, summary)
}

func (s *Server) handleBatteryHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cfg, err := s.config.Get()
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "reading config failed", "error", err)
		writeJSONError(w, "failed to read config", http.StatusInternalServerError)
		return
	}
	days, err := s.storage.GetBatteryDayStats(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "battery day stats query failed", "error", err)
		writeJSONError(w, "failed to load battery stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, energy.BatteryHealth(days, cfg.BatteryCapacityKWH))
}

package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/robotnikz/sunflow/pkg/energy"
	"github.com/robotnikz/sunflow/pkg/log"
	"github.com/robotnikz/sunflow/pkg/types"
)

// handleAwattarCompare prices the stored grid energy of a range under the
// fixed tariff and under aWATTar hourly market prices (plus surcharge and
// VAT) and reports the difference.
func (s *Server) handleAwattarCompare(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cfg, err := s.config.Get()
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "reading config failed", "error", err)
		writeJSONError(w, "failed to read config", http.StatusInternalServerError)
		return
	}

	q := r.URL.Query()
	period := q.Get("period")
	if period == "" {
		period = "month"
	}

	country := q.Get("country")
	if country == "" {
		country = cfg.Awattar.Country
	}
	surchargeCt := clampNumber(q.Get("surchargeCt"), -1000, 5000, cfg.Awattar.SurchargeCt)
	vatPercent := clampNumber(q.Get("vatPercent"), 0, 50, cfg.Awattar.VATPercent)

	now := s.clk.Now()
	start := periodStart(period, now)
	if from := q.Get("from"); from != "" {
		d, err := time.ParseInLocation(dateLayout, from, now.Location())
		if err != nil {
			writeJSONError(w, "invalid from date", http.StatusBadRequest)
			return
		}
		start = d
	}
	// "to" is exclusive (start of that day); without it the range runs up to
	// the end of the current hour.
	end := now.Truncate(time.Hour).Add(time.Hour)
	if to := q.Get("to"); to != "" {
		d, err := time.ParseInLocation(dateLayout, to, now.Location())
		if err != nil {
			writeJSONError(w, "invalid to date", http.StatusBadRequest)
			return
		}
		end = d
	}

	hours, err := s.hourlyGridEnergy(r, start, end)
	if err != nil {
		writeJSONError(w, "failed to load energy data", http.StatusInternalServerError)
		return
	}
	if len(hours) == 0 {
		writeJSONError(w, "No energy data available in the requested range", http.StatusBadRequest)
		return
	}

	prices, err := s.market.Prices(ctx, country, start, end)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "market price fetch failed", "error", err)
		writeJSONError(w, "failed to fetch market prices", http.StatusBadGateway)
		return
	}

	tariffs, err := s.tariffsOrDefault(r)
	if err != nil {
		writeJSONError(w, "failed to load tariffs", http.StatusInternalServerError)
		return
	}

	cmp := energy.ComparePricing(energy.CompareParams{
		Hours:       hours,
		Prices:      prices,
		Tariffs:     tariffs,
		SurchargeCt: surchargeCt,
		VATPercent:  vatPercent,
	})

	writeJSON(w, struct {
		Provider    string                   `json:"provider"`
		Country     string                   `json:"country"`
		Period      string                   `json:"period"`
		Range       map[string]string        `json:"range"`
		Assumptions map[string]any           `json:"assumptions"`
		Coverage    types.ComparisonCoverage `json:"coverage"`
		Totals      map[string]any           `json:"totals"`
		SeriesDaily []types.DailyComparison  `json:"seriesDaily"`
	}{
		Provider: "awattar",
		Country:  country,
		Period:   period,
		Range: map[string]string{
			"from": start.Format(timeLayout),
			"to":   end.Format(timeLayout),
		},
		Assumptions: map[string]any{
			"marketPriceUnit":   "Eur/MWh",
			"marketToKwhFactor": 1.0 / 1000,
			"surchargeCt":       surchargeCt,
			"vatPercent":        vatPercent,
		},
		Coverage: cmp.Coverage,
		Totals: map[string]any{
			"fixed":   cmp.Fixed,
			"dynamic": cmp.Dynamic,
			"delta":   map[string]float64{"net": cmp.DeltaNet},
		},
		SeriesDaily: cmp.Daily,
	})
}

// hourlyGridEnergy prefers the hourly archive; ranges that predate it fall
// back to integrating the minute log.
func (s *Server) hourlyGridEnergy(r *http.Request, start, end time.Time) ([]types.HourlyGridEnergy, error) {
	ctx := r.Context()
	summaries, err := s.storage.GetEnergySummaries(ctx, start, end)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "energy summary query failed", "error", err)
		return nil, err
	}
	if len(summaries) > 0 {
		return energy.HourlyFromSummaries(summaries), nil
	}

	samples, err := s.storage.GetPowerSamples(ctx, start, end)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "power sample query failed", "error", err)
		return nil, err
	}
	return energy.HourlyFromSamples(samples), nil
}

func periodStart(period string, now time.Time) time.Time {
	day := truncateDay(now)
	switch period {
	case "week":
		return day.AddDate(0, 0, -7)
	case "month":
		return day.AddDate(0, 0, -30)
	case "halfyear":
		return day.AddDate(0, 0, -182)
	case "year":
		return day.AddDate(0, 0, -365)
	default:
		return day.AddDate(0, 0, -7)
	}
}

func clampNumber(raw string, min, max, fallback float64) float64 {
	if raw == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

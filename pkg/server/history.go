package server

import (
	"math"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/robotnikz/sunflow/pkg/energy"
	"github.com/robotnikz/sunflow/pkg/log"
	"github.com/robotnikz/sunflow/pkg/types"
)

const (
	timeLayout = "2006-01-02 15:04:05"
	dateLayout = "2006-01-02"

	// chartTargetPoints bounds the high-resolution chart payload; longer
	// series are averaged down in chunks.
	chartTargetPoints = 400

	// monthlyAggregationDays is the custom-range length beyond which
	// /api/energy switches to monthly archive aggregation.
	monthlyAggregationDays = 62
)

type chartPoint struct {
	Timestamp       string  `json:"timestamp"`
	Production      float64 `json:"production"`
	Consumption     float64 `json:"consumption"`
	Grid            float64 `json:"grid"`
	Battery         float64 `json:"battery"`
	SOC             float64 `json:"soc"`
	Autonomy        float64 `json:"autonomy"`
	SelfConsumption float64 `json:"selfConsumption"`

	Status     *types.InverterStatus `json:"status,omitempty"`
	Aggregated bool                  `json:"is_aggregated,omitempty"`
}

// historyRange resolves the requested range/offset into local [start, end).
func (s *Server) historyRange(r *http.Request) (start, end time.Time, aggregate string, errMsg string) {
	q := r.URL.Query()
	rng := q.Get("range")
	if rng == "" {
		rng = "day"
	}

	var offset int
	if raw := q.Get("offset"); raw != "" && rng != "custom" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return start, end, "", "invalid offset"
		}
		offset = n
	}

	now := s.clk.Now()
	switch rng {
	case "hour":
		start = now.Add(time.Duration(offset) * time.Hour).Truncate(time.Hour)
		end = start.Add(time.Hour)
	case "day":
		start = truncateDay(now.AddDate(0, 0, offset))
		end = start.AddDate(0, 0, 1)
	case "week":
		ref := truncateDay(now.AddDate(0, 0, offset*7))
		// weeks start Monday
		shift := (int(ref.Weekday()) + 6) % 7
		start = ref.AddDate(0, 0, -shift)
		end = start.AddDate(0, 0, 7)
		aggregate = "day"
	case "month":
		start = time.Date(now.Year(), now.Month()+time.Month(offset), 1, 0, 0, 0, 0, now.Location())
		end = start.AddDate(0, 1, 0)
		aggregate = "day"
	case "year":
		start = time.Date(now.Year()+offset, time.January, 1, 0, 0, 0, 0, now.Location())
		end = start.AddDate(1, 0, 0)
		aggregate = "month"
	case "custom":
		from, err := time.ParseInLocation(dateLayout, q.Get("start"), now.Location())
		if err != nil {
			return start, end, "", "invalid start date"
		}
		to, err := time.ParseInLocation(dateLayout, q.Get("end"), now.Location())
		if err != nil {
			return start, end, "", "invalid end date"
		}
		if to.Before(from) {
			return start, end, "", "end date must be on or after start date"
		}
		start = from
		end = to.AddDate(0, 0, 1)
	default:
		return start, end, "", "invalid range"
	}
	return start, end, aggregate, ""
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start, end, aggregate, errMsg := s.historyRange(r)
	if errMsg != "" {
		writeJSONError(w, errMsg, http.StatusBadRequest)
		return
	}

	rows, err := s.reconciledRange(r, start, end)
	if err != nil {
		writeJSONError(w, "failed to load history", http.StatusInternalServerError)
		return
	}
	tariffs, err := s.tariffsOrDefault(r)
	if err != nil {
		writeJSONError(w, "failed to load tariffs", http.StatusInternalServerError)
		return
	}

	stats := energy.Summarize(rows, tariffs)

	var chart []chartPoint
	if aggregate != "" {
		chart = aggregatedChart(rows, aggregate)
	} else {
		chart = downsampledChart(rows)
	}

	log.Ctx(ctx).DebugContext(ctx, "history served",
		"range", r.URL.Query().Get("range"), "rows", len(rows), "points", len(chart))
	writeJSON(w, struct {
		Chart []chartPoint      `json:"chart"`
		Stats types.PeriodStats `json:"stats"`
	}{Chart: chart, Stats: stats})
}

func (s *Server) reconciledRange(r *http.Request, start, end time.Time) ([]types.PeriodEnergy, error) {
	ctx := r.Context()
	samples, err := s.storage.GetPowerSamples(ctx, start, end)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "power sample query failed", "error", err)
		return nil, err
	}
	summaries, err := s.storage.GetEnergySummaries(ctx, start, end)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "energy summary query failed", "error", err)
		return nil, err
	}
	return energy.Reconcile(samples, summaries), nil
}

func (s *Server) tariffsOrDefault(r *http.Request) ([]types.Tariff, error) {
	tariffs, err := s.storage.GetTariffs(r.Context())
	if err != nil {
		log.Ctx(r.Context()).ErrorContext(r.Context(), "tariff query failed", "error", err)
		return nil, err
	}
	if len(tariffs) == 0 {
		tariffs = []types.Tariff{energy.DefaultTariff()}
	}
	return tariffs, nil
}

// aggregatedChart folds the reconciled series into per-day or per-month
// energy bars (kWh).
func aggregatedChart(rows []types.PeriodEnergy, aggregate string) []chartPoint {
	type acc struct {
		prod, cons, imp, exp, bc, bd, soc float64
		n                                 int
	}
	groups := make(map[string]*acc)
	for _, r := range rows {
		var key string
		if aggregate == "month" {
			key = r.Timestamp.Format("2006-01") + "-01 00:00:00"
		} else {
			key = r.Timestamp.Format(dateLayout) + " 00:00:00"
		}
		g := groups[key]
		if g == nil {
			g = &acc{}
			groups[key] = g
		}
		g.prod += r.ProductionKWH
		g.cons += r.ConsumptionKWH
		g.imp += r.GridImportKWH
		g.exp += r.GridExportKWH
		g.bc += r.BatteryChargedKWH
		g.bd += r.BatteryUsedKWH
		g.soc += r.SOC
		g.n++
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]chartPoint, 0, len(keys))
	for _, k := range keys {
		g := groups[k]
		p := chartPoint{
			Timestamp:   k,
			Production:  round2(g.prod),
			Consumption: round2(g.cons),
			Grid:        round2(g.imp - g.exp),
			Battery:     round2(g.bd - g.bc),
			SOC:         math.Round(g.soc / float64(g.n)),
			Aggregated:  true,
		}
		if g.cons > 0 {
			p.Autonomy = math.Round(math.Max(0, g.cons-g.imp) / g.cons * 100)
		}
		if g.prod > 0 {
			p.SelfConsumption = math.Round(math.Max(0, g.prod-g.exp) / g.prod * 100)
		}
		out = append(out, p)
	}
	return out
}

// downsampledChart averages consecutive chunks of the series down to at most
// chartTargetPoints points of average power (W).
func downsampledChart(rows []types.PeriodEnergy) []chartPoint {
	step := 1
	if len(rows) > chartTargetPoints {
		step = (len(rows) + chartTargetPoints - 1) / chartTargetPoints
	}

	out := make([]chartPoint, 0, chartTargetPoints)
	for i := 0; i < len(rows); i += step {
		var pv, load, grid, batt, soc, auto, self float64
		var n int
		for j := i; j < i+step && j < len(rows); j++ {
			r := rows[j]
			rPV := r.AveragePowerW(r.ProductionKWH)
			rLoad := r.AveragePowerW(r.ConsumptionKWH)
			rGrid := r.AveragePowerW(r.GridImportKWH - r.GridExportKWH)
			pv += rPV
			load += rLoad
			grid += rGrid
			batt += r.AveragePowerW(r.BatteryUsedKWH - r.BatteryChargedKWH)
			soc += r.SOC

			imp := math.Max(0, rGrid)
			exp := math.Max(0, -rGrid)
			if rLoad > 0 {
				auto += math.Max(0, (rLoad-imp)/rLoad*100)
			}
			if rPV > 0 {
				self += (rPV - exp) / rPV * 100
			}
			n++
		}
		if n == 0 {
			continue
		}

		status := rows[i].Status
		if rows[i].Source == types.SourceArchive {
			status = types.StatusNormal
		}
		fn := float64(n)
		out = append(out, chartPoint{
			Timestamp:       rows[i].Timestamp.Format(timeLayout),
			Production:      math.Round(pv / fn),
			Consumption:     math.Round(load / fn),
			Grid:            math.Round(grid / fn),
			Battery:         math.Round(batt / fn),
			SOC:             math.Round(soc / fn),
			Autonomy:        math.Round(auto / fn),
			SelfConsumption: math.Round(self / fn),
			Status:          &status,
		})
	}
	return out
}

type energyRow struct {
	Timestamp   string  `json:"timestamp"`
	Production  float64 `json:"production"`
	Consumption float64 `json:"consumption"`
	Grid        float64 `json:"grid"`
	Battery     float64 `json:"battery"`
}

// handleEnergy returns the raw reconciled series as average power rows. With
// no range the most recent samples are returned; ranges past 62 days switch
// to monthly archive averages to keep the payload bounded.
func (s *Server) handleEnergy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	startStr, endStr := q.Get("start"), q.Get("end")

	if startStr == "" || endStr == "" {
		now := s.clk.Now()
		samples, err := s.storage.GetPowerSamples(ctx, now.AddDate(0, 0, -1), now.Add(time.Minute))
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "power sample query failed", "error", err)
			writeJSONError(w, "failed to load energy data", http.StatusInternalServerError)
			return
		}
		if len(samples) > 288 {
			samples = samples[len(samples)-288:]
		}
		writeJSON(w, energyRows(energy.Reconcile(samples, nil)))
		return
	}

	start, err := parseFlexibleTime(startStr)
	if err != nil {
		writeJSONError(w, "invalid start", http.StatusBadRequest)
		return
	}
	end, err := parseFlexibleTime(endStr)
	if err != nil {
		writeJSONError(w, "invalid end", http.StatusBadRequest)
		return
	}

	if end.Sub(start).Hours()/24 > monthlyAggregationDays {
		summaries, err := s.storage.GetEnergySummaries(ctx, start, end)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "energy summary query failed", "error", err)
			writeJSONError(w, "failed to load energy data", http.StatusInternalServerError)
			return
		}
		writeJSON(w, monthlyEnergyRows(summaries))
		return
	}

	rows, err := s.reconciledRange(r, start, end)
	if err != nil {
		writeJSONError(w, "failed to load energy data", http.StatusInternalServerError)
		return
	}
	writeJSON(w, energyRows(rows))
}

func parseFlexibleTime(v string) (time.Time, error) {
	if t, err := time.ParseInLocation(timeLayout, v, time.Local); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", v, time.Local); err == nil {
		return t, nil
	}
	return time.ParseInLocation(dateLayout, v, time.Local)
}

func energyRows(rows []types.PeriodEnergy) []energyRow {
	out := make([]energyRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, energyRow{
			Timestamp:   r.Timestamp.Format(timeLayout),
			Production:  r.AveragePowerW(r.ProductionKWH),
			Consumption: r.AveragePowerW(r.ConsumptionKWH),
			Grid:        r.AveragePowerW(r.GridImportKWH - r.GridExportKWH),
			Battery:     r.AveragePowerW(r.BatteryUsedKWH - r.BatteryChargedKWH),
		})
	}
	return out
}

func monthlyEnergyRows(summaries []types.EnergySummary) []energyRow {
	type acc struct {
		prod, cons, grid, batt float64
		n                      int
	}
	months := make(map[string]*acc)
	for _, s := range summaries {
		key := s.TSHourStart.Format("2006-01")
		m := months[key]
		if m == nil {
			m = &acc{}
			months[key] = m
		}
		m.prod += s.ProductionWh
		m.cons += s.LoadWh
		m.grid += s.GridConsumptionWh - s.GridFeedInWh
		m.batt += s.BatteryDischargeWh - s.BatteryChargeWh
		m.n++
	}

	keys := make([]string, 0, len(months))
	for k := range months {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]energyRow, 0, len(keys))
	for _, k := range keys {
		m := months[k]
		fn := float64(m.n)
		out = append(out, energyRow{
			Timestamp:   k + "-01 00:00:00",
			Production:  m.prod / fn,
			Consumption: m.cons / fn,
			Grid:        m.grid / fn,
			Battery:     m.batt / fn,
		})
	}
	return out
}

type simPoint struct {
	T  int64    `json:"t"`
	P  float64  `json:"p"`
	L  float64  `json:"l"`
	S  *float64 `json:"s"`
	GI float64  `json:"gi"`
	GE float64  `json:"ge"`
	BC float64  `json:"bc"`
	BD float64  `json:"bd"`
}

// handleSimulationData serves the full history merged into hourly averages,
// the common denominator the client-side battery planner works in. Sample
// rows contribute average watts, archive rows watt-hours per hour; SOC is
// only known for sampled hours.
func (s *Server) handleSimulationData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var start time.Time
	end := s.clk.Now().AddDate(100, 0, 0)

	samples, err := s.storage.GetPowerSamples(ctx, start, end)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "power sample query failed", "error", err)
		writeJSONError(w, "failed to load simulation data", http.StatusInternalServerError)
		return
	}
	summaries, err := s.storage.GetEnergySummaries(ctx, start, end)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "energy summary query failed", "error", err)
		writeJSONError(w, "failed to load simulation data", http.StatusInternalServerError)
		return
	}

	type acc struct {
		pv, load, soc, gi, ge, bc, bd float64
		n, socN                       int
	}
	hours := make(map[time.Time]*acc)
	bucket := func(ts time.Time) *acc {
		h := ts.Truncate(time.Hour)
		a := hours[h]
		if a == nil {
			a = &acc{}
			hours[h] = a
		}
		return a
	}

	for _, sm := range samples {
		a := bucket(sm.Timestamp)
		a.pv += sm.SolarW
		a.load += sm.HomeW
		a.soc += sm.SOC
		a.socN++
		a.gi += math.Max(0, sm.GridW)
		a.ge += math.Max(0, -sm.GridW)
		a.bc += math.Max(0, -sm.BatteryW)
		a.bd += math.Max(0, sm.BatteryW)
		a.n++
	}
	for _, sm := range summaries {
		a := bucket(sm.TSHourStart)
		a.pv += sm.ProductionWh
		a.load += sm.LoadWh
		a.gi += sm.GridConsumptionWh
		a.ge += sm.GridFeedInWh
		a.bc += sm.BatteryChargeWh
		a.bd += sm.BatteryDischargeWh
		a.n++
	}

	keys := make([]time.Time, 0, len(hours))
	for k := range hours {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	out := make([]simPoint, 0, len(keys))
	for _, k := range keys {
		a := hours[k]
		fn := float64(a.n)
		p := simPoint{
			T:  k.UnixMilli(),
			P:  math.Round(a.pv / fn),
			L:  math.Round(a.load / fn),
			GI: math.Round(a.gi / fn),
			GE: math.Round(a.ge / fn),
			BC: math.Round(a.bc / fn),
			BD: math.Round(a.bd / fn),
		}
		if a.socN > 0 {
			soc := math.Round(a.soc/float64(a.socN)*10) / 10
			p.S = &soc
		}
		out = append(out, p)
	}
	writeJSON(w, out)
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

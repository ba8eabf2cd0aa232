package energy

import (
	"math"
	"sort"
	"time"

	"github.com/robotnikz/sunflow/pkg/types"
)

const (
	daysPerYear = 365.25
	// horizonDays caps the open-ended final simulation segment.
	horizonDays = 365 * 50
)

// ROIParams carries everything the projector needs. The daily baselines are
// the average self-consumed and exported kWh per day the caller derived
// from history (lifetime average preferred, trailing window as fallback).
type ROIParams struct {
	Expenses []types.Expense
	Tariffs  []types.Tariff

	Now         time.Time
	SystemStart time.Time

	// TotalReturned is the lifetime financial return: database totals plus
	// any pre-system initial value.
	TotalReturned float64

	DailySelfConsumedKWH float64
	DailyExportKWH       float64

	DegradationPercent float64
	InflationPercent   float64
}

// DailyBaseline derives the projector's per-day energy baselines. The
// lifetime average (pre-system initial values plus accumulated database
// history, spread over the days since commissioning) wins when the system
// has more than a day of history; otherwise a trailing window of recent
// rows is used, capped at windowDays.
func DailyBaseline(initial types.EnergyTotals, dbSelfConsumedKWH, dbExportKWH float64,
	systemStart, now time.Time,
	windowSelfConsumedKWH, windowExportKWH float64, windowOldest time.Time, windowDays float64) (selfConsumed, export float64) {

	if !systemStart.IsZero() && systemStart.Before(now) {
		days := now.Sub(systemStart).Hours() / 24
		if days > 1 {
			initSelf := math.Max(0, initial.ProductionKWH-initial.ExportKWH)
			export = (initial.ExportKWH + dbExportKWH) / days
			selfConsumed = (initSelf + dbSelfConsumedKWH) / days
		}
	}
	if export == 0 && selfConsumed == 0 {
		days := 1.0
		if !windowOldest.IsZero() {
			days = math.Abs(now.Sub(windowOldest).Hours() / 24)
		}
		days = math.Min(windowDays, math.Max(0.1, days))
		export = windowExportKWH / days
		selfConsumed = windowSelfConsumedKWH / days
	}
	return selfConsumed, export
}

// ProjectROI computes the investment summary and, while the system is still
// in the red, simulates forward to find the break-even date. The simulation
// walks checkpoint segments (today, each future tariff change, and fifty
// January firsts), applying exponential panel degradation to energy and
// price inflation to recurring costs. Segments that lose money add to the
// outstanding debt instead of clearing it. A nil BreakEvenDate means the
// system either already broke even or never will within the horizon.
func ProjectROI(p ROIParams) types.ROISummary {
	now := p.Now
	systemStart := p.SystemStart
	if systemStart.IsZero() {
		systemStart = now
	}

	var invested, yearlyBase, oneTime float64
	for _, exp := range p.Expenses {
		switch exp.Type {
		case types.ExpenseOneTime:
			invested += exp.Amount
			oneTime += exp.Amount
		case types.ExpenseYearly:
			yearlyBase += exp.Amount
			effective := systemStart
			if d, err := time.ParseInLocation("2006-01-02", exp.Date, now.Location()); err == nil && d.After(effective) {
				effective = d
			}
			years := math.Max(0, now.Sub(effective).Hours()/24) / daysPerYear
			invested += exp.Amount * years
		}
	}

	sum := types.ROISummary{
		TotalInvested: invested,
		TotalReturned: p.TotalReturned,
		NetValue:      p.TotalReturned - invested,
		Expenses:      p.Expenses,
	}
	if invested > 0 {
		sum.ROIPercent = p.TotalReturned / invested * 100
	}
	if sum.NetValue >= 0 {
		return sum
	}

	type checkpoint struct {
		date   time.Time
		tariff types.Tariff
	}
	today := now.Format("2006-01-02")
	points := []checkpoint{{date: now, tariff: ResolveTariff(p.Tariffs, now)}}
	for _, t := range p.Tariffs {
		if t.ValidFrom > today {
			if d, err := time.ParseInLocation("2006-01-02", t.ValidFrom, now.Location()); err == nil {
				points = append(points, checkpoint{date: d, tariff: t})
			}
		}
	}
	for i := 1; i <= 50; i++ {
		d := time.Date(now.Year()+i, time.January, 1, 0, 0, 0, 0, now.Location())
		points = append(points, checkpoint{date: d, tariff: ResolveTariff(p.Tariffs, d)})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].date.Before(points[j].date) })
	deduped := points[:0]
	for i, c := range points {
		if i > 0 && c.date.Equal(points[i-1].date) {
			continue
		}
		deduped = append(deduped, c)
	}
	points = deduped

	debt := -sum.NetValue
	for i, seg := range points {
		yearsOut := seg.date.Sub(now).Hours() / 24 / daysPerYear
		degFactor := math.Pow(1-p.DegradationPercent/100, yearsOut)
		infFactor := math.Pow(1+p.InflationPercent/100, yearsOut)

		profitPerDay := p.DailySelfConsumedKWH*degFactor*seg.tariff.CostKWH +
			p.DailyExportKWH*degFactor*seg.tariff.FeedInKWH -
			yearlyBase/daysPerYear*infFactor

		var segmentDays float64
		last := i == len(points)-1
		if !last {
			segmentDays = points[i+1].date.Sub(seg.date).Hours() / 24
		}

		if profitPerDay <= 0 {
			if last {
				break
			}
			debt += -profitPerDay * segmentDays
			continue
		}

		daysToClear := debt / profitPerDay
		if !last && daysToClear > segmentDays {
			debt -= profitPerDay * segmentDays
			continue
		}
		if last && daysToClear >= horizonDays {
			break
		}
		done := seg.date.Add(time.Duration(daysToClear * 24 * float64(time.Hour)))
		sum.BreakEvenDate = &done
		yearsTotal := done.Sub(systemStart).Hours() / 24 / daysPerYear
		sum.ProjectedBreakEvenCost = oneTime + yearlyBase*yearsTotal
		break
	}
	return sum
}

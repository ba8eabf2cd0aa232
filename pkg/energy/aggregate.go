package energy

import (
	"math"

	"github.com/robotnikz/sunflow/pkg/types"
)

// Summarize folds a reconciled series into period stats, pricing every
// record with the tariff in force at its timestamp. Self-consumed energy is
// consumption not covered by grid import, floored at zero so metering skew
// cannot go negative.
func Summarize(rows []types.PeriodEnergy, tariffs []types.Tariff) types.PeriodStats {
	var st types.PeriodStats
	for _, r := range rows {
		st.ProductionKWH += r.ProductionKWH
		st.ConsumptionKWH += r.ConsumptionKWH
		st.GridImportKWH += r.GridImportKWH
		st.GridExportKWH += r.GridExportKWH
		st.BatteryChargedKWH += r.BatteryChargedKWH
		st.BatteryUsedKWH += r.BatteryUsedKWH

		t := ResolveTariff(tariffs, r.Timestamp)
		self := math.Max(0, r.ConsumptionKWH-r.GridImportKWH)
		st.CostSaved += self * t.CostKWH
		st.Earnings += r.GridExportKWH * t.FeedInKWH
	}
	selfTotal := math.Max(0, st.ConsumptionKWH-st.GridImportKWH)
	if st.ConsumptionKWH > 0 {
		st.AutonomyPercent = selfTotal / st.ConsumptionKWH * 100
	}
	if st.ProductionKWH > 0 {
		st.SelfConsumptionPercent = selfTotal / st.ProductionKWH * 100
	}
	return st
}

// LifetimeTotals computes the calibration totals stored in config after
// imports and retention rollups. Energy quantities are rounded to whole
// kWh and the financial return to cents, matching what the dashboard shows
// as lifetime figures.
func LifetimeTotals(rows []types.PeriodEnergy, tariffs []types.Tariff) types.EnergyTotals {
	var prod, imp, exp, ret float64
	for _, r := range rows {
		prod += r.ProductionKWH
		imp += r.GridImportKWH
		exp += r.GridExportKWH

		t := ResolveTariff(tariffs, r.Timestamp)
		self := math.Max(0, r.ConsumptionKWH-r.GridImportKWH)
		ret += self*t.CostKWH + r.GridExportKWH*t.FeedInKWH
	}
	return types.EnergyTotals{
		ProductionKWH:   math.Round(prod),
		ImportKWH:       math.Round(imp),
		ExportKWH:       math.Round(exp),
		FinancialReturn: math.Round(ret*100) / 100,
	}
}

package energy

import (
	"sort"
	"time"

	"github.com/robotnikz/sunflow/pkg/types"
)

// CompareParams pairs hourly grid energy with a day-ahead market price map.
// Prices are in Eur/kWh keyed by local hour start. SurchargeCt is the
// provider markup in cents per kWh added to the market price before VAT.
type CompareParams struct {
	Hours       []types.HourlyGridEnergy
	Prices      map[time.Time]float64
	Tariffs     []types.Tariff
	SurchargeCt float64
	VATPercent  float64
}

// ComparePricing prices every hour of grid energy under both the fixed
// tariff and the all-in dynamic price and reports period totals plus a
// daily series. Hours without a market price are skipped entirely rather
// than priced at zero, which the coverage counters make visible. Export is
// credited at the fixed feed-in rate under both models.
func ComparePricing(p CompareParams) types.TariffComparison {
	surchargeEur := p.SurchargeCt / 100
	vatFactor := 1 + p.VATPercent/100

	var cmp types.TariffComparison
	cmp.Coverage.HoursWithEnergy = len(p.Hours)
	cmp.Coverage.HoursWithPrices = len(p.Prices)

	type dayAcc struct {
		fixedNet, dynamicNet, importKWH, exportKWH float64
	}
	daily := make(map[string]*dayAcc)

	for _, h := range p.Hours {
		market, ok := p.Prices[h.TSHourStart]
		if !ok {
			continue
		}
		tariff := ResolveTariff(p.Tariffs, h.TSHourStart)

		fixedImport := h.ImportKWH * tariff.CostKWH
		dynamicImport := h.ImportKWH * (market + surchargeEur) * vatFactor
		exportRevenue := h.ExportKWH * tariff.FeedInKWH

		cmp.Fixed.ImportCost += fixedImport
		cmp.Dynamic.ImportCost += dynamicImport
		cmp.Fixed.ExportRevenue += exportRevenue
		cmp.Dynamic.ExportRevenue += exportRevenue
		cmp.Fixed.Net += fixedImport - exportRevenue
		cmp.Dynamic.Net += dynamicImport - exportRevenue
		cmp.Coverage.HoursUsed++

		key := h.TSHourStart.Format("2006-01-02")
		d := daily[key]
		if d == nil {
			d = &dayAcc{}
			daily[key] = d
		}
		d.fixedNet += fixedImport - exportRevenue
		d.dynamicNet += dynamicImport - exportRevenue
		d.importKWH += h.ImportKWH
		d.exportKWH += h.ExportKWH
	}

	cmp.DeltaNet = round2(cmp.Dynamic.Net - cmp.Fixed.Net)
	cmp.Fixed = roundTotals(cmp.Fixed)
	cmp.Dynamic = roundTotals(cmp.Dynamic)

	days := make([]string, 0, len(daily))
	for k := range daily {
		days = append(days, k)
	}
	sort.Strings(days)
	cmp.Daily = make([]types.DailyComparison, 0, len(days))
	for _, k := range days {
		d := daily[k]
		cmp.Daily = append(cmp.Daily, types.DailyComparison{
			Date:       k,
			FixedNet:   round2(d.fixedNet),
			DynamicNet: round2(d.dynamicNet),
			ImportKWH:  round3(d.importKWH),
			ExportKWH:  round3(d.exportKWH),
		})
	}
	return cmp
}

func roundTotals(t types.PricingTotals) types.PricingTotals {
	return types.PricingTotals{
		ImportCost:    round2(t.ImportCost),
		ExportRevenue: round2(t.ExportRevenue),
		Net:           round2(t.Net),
	}
}

package energy

import (
	"math"

	"github.com/robotnikz/sunflow/pkg/types"
)

// BatteryHealth derives per-day efficiency, capacity estimates and cycle
// counts from the raw daily battery stats. nominalKWH is the battery's
// rated capacity.
//
// Efficiency is only computed on days with more than 0.5 kWh charged so
// idle days do not drag the average, and is capped at 99 to hide metering
// noise. A capacity estimate needs a SOC swing above 50 points plus at
// least 1 kWh charged; the latest qualifying day wins.
func BatteryHealth(days []types.BatteryDayStats, nominalKWH float64) types.BatteryHealthReport {
	if nominalKWH <= 0 {
		nominalKWH = 10
	}

	var rep types.BatteryHealthReport
	var effSum float64
	var effDays int
	var totalCycles float64

	rep.Days = make([]types.BatteryDayPoint, 0, len(days))
	for _, d := range days {
		chargedKWH := d.ChargeWSum / 60 / 1000
		dischargedKWH := d.DischargeWSum / 60 / 1000

		var efficiency float64
		if chargedKWH > 0.5 {
			efficiency = dischargedKWH / chargedKWH * 100
			if efficiency > 99 {
				efficiency = 99
			}
			effSum += efficiency
			effDays++
		}

		var estCapacity float64
		if socDelta := d.MaxSOC - d.MinSOC; socDelta > 50 && chargedKWH > 1 {
			estCapacity = chargedKWH / socDelta * 100
			rep.LatestCapacityKWH = round2(estCapacity)
		}

		cycles := (chargedKWH + dischargedKWH) / 2 / nominalKWH
		totalCycles += cycles

		rep.Days = append(rep.Days, types.BatteryDayPoint{
			Date:                 d.Date,
			EfficiencyPercent:    round1(efficiency),
			EstimatedCapacityKWH: round2(estCapacity),
			ChargeCycles:         round2(cycles),
		})
	}

	if effDays > 0 {
		rep.AverageEfficiency = round1(effSum / float64(effDays))
	}
	rep.TotalCycles = int(math.Round(totalCycles))
	if rep.LatestCapacityKWH > 0 {
		rep.StateOfHealthPercent = round1(rep.LatestCapacityKWH / nominalKWH * 100)
	}
	return rep
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }

package types

import "time"

// InverterStatus is the operational state reported alongside each power sample.
// It is assigned by the polling collaborator and passed through unchanged.
type InverterStatus int

const (
	StatusOffline InverterStatus = 0
	StatusNormal  InverterStatus = 1
	StatusError   InverterStatus = 2
	StatusIdle    InverterStatus = 3
)

// PowerSample is a single high-resolution reading from the inverter,
// ideally one per minute. Power values are in watts.
type PowerSample struct {
	Timestamp time.Time `json:"timestamp"`
	// SolarW is the current PV production.
	SolarW float64 `json:"powerPV"`
	// HomeW is the current household consumption.
	HomeW float64 `json:"powerLoad"`
	// GridW is positive when importing from the grid, negative when exporting.
	GridW float64 `json:"powerGrid"`
	// BatteryW is positive when discharging, negative when charging.
	BatteryW float64 `json:"powerBattery"`
	// SOC is the battery state of charge (0-100).
	SOC float64 `json:"soc"`
	// DayProductionWh is the inverter's own daily production counter.
	DayProductionWh float64        `json:"energyDayProd"`
	Status          InverterStatus `json:"statusCode"`
}

// EnergySummary is a low-resolution archival row covering one hour.
// All quantities are non-negative watt-hours for that hour. Rows are
// created by the retention rollup or by CSV import of pre-aggregated data.
type EnergySummary struct {
	TSHourStart        time.Time `json:"timestamp"`
	ProductionWh       float64   `json:"productionWh"`
	GridFeedInWh       float64   `json:"gridFeedInWh"`
	GridConsumptionWh  float64   `json:"gridConsumptionWh"`
	BatteryChargeWh    float64   `json:"batteryChargeWh"`
	BatteryDischargeWh float64   `json:"batteryDischargeWh"`
	LoadWh             float64   `json:"loadWh"`
}

// EnergySource tags which storage tier a reconciled period came from.
type EnergySource string

const (
	// SourceLog marks a period derived from a high-resolution power sample.
	SourceLog EnergySource = "log"
	// SourceArchive marks a period taken from an hourly energy summary.
	SourceArchive EnergySource = "archive"
)

// PeriodEnergy is the canonical reconciled record: the energy that flowed
// during one period, regardless of which storage tier it came from.
// High-resolution samples are integrated over their duration; archive rows
// are converted directly from watt-hours.
type PeriodEnergy struct {
	Timestamp     time.Time    `json:"timestamp"`
	Source        EnergySource `json:"source"`
	DurationHours float64      `json:"durationHours"`

	ProductionKWH     float64 `json:"productionKWH"`
	ConsumptionKWH    float64 `json:"consumptionKWH"`
	GridImportKWH     float64 `json:"gridImportKWH"`
	GridExportKWH     float64 `json:"gridExportKWH"`
	BatteryChargedKWH float64 `json:"batteryChargedKWH"`
	BatteryUsedKWH    float64 `json:"batteryUsedKWH"`

	// SOC and Status are only meaningful for SourceLog periods.
	SOC    float64        `json:"soc"`
	Status InverterStatus `json:"status"`
}

// AveragePowerW returns the average power in watts over the period for the
// given energy amount in kWh. Used by charting to present archive rows on
// the same axis as live samples.
func (p PeriodEnergy) AveragePowerW(kwh float64) float64 {
	if p.DurationHours <= 0 {
		return 0
	}
	return kwh * 1000 / p.DurationHours
}

// HourlyGridEnergy is one hour of grid import/export, the common denominator
// for dynamic-tariff comparison and simulation feeds.
type HourlyGridEnergy struct {
	TSHourStart time.Time `json:"timestamp"`
	ImportKWH   float64   `json:"importKwh"`
	ExportKWH   float64   `json:"exportKwh"`
}

// PeriodStats aggregates a reconciled series into the headline numbers the
// dashboard shows for a period.
type PeriodStats struct {
	ProductionKWH     float64 `json:"production"`
	ConsumptionKWH    float64 `json:"consumption"`
	GridImportKWH     float64 `json:"imported"`
	GridExportKWH     float64 `json:"exported"`
	BatteryChargedKWH float64 `json:"batteryCharged"`
	BatteryUsedKWH    float64 `json:"batteryDischarged"`

	// AutonomyPercent is the fraction of consumption met without grid import.
	AutonomyPercent float64 `json:"autonomy"`
	// SelfConsumptionPercent is the fraction of production not exported.
	SelfConsumptionPercent float64 `json:"selfConsumption"`

	CostSaved float64 `json:"costSaved"`
	Earnings  float64 `json:"earnings"`
}

// EnergyTotals are cumulative lifetime quantities. Config stores two of
// these: manually entered pre-system values and totals recomputed from the
// database. They are additive.
type EnergyTotals struct {
	ProductionKWH   float64 `json:"production"`
	ImportKWH       float64 `json:"import"`
	ExportKWH       float64 `json:"export"`
	FinancialReturn float64 `json:"financialReturn"`
}

// Add returns the element-wise sum of two totals.
func (t EnergyTotals) Add(o EnergyTotals) EnergyTotals {
	return EnergyTotals{
		ProductionKWH:   t.ProductionKWH + o.ProductionKWH,
		ImportKWH:       t.ImportKWH + o.ImportKWH,
		ExportKWH:       t.ExportKWH + o.ExportKWH,
		FinancialReturn: t.FinancialReturn + o.FinancialReturn,
	}
}

// BatteryDayStats is one calendar day of battery activity as returned by
// storage (raw per-minute watt sums, split by charge/discharge direction
// above the ±10 W noise floor).
type BatteryDayStats struct {
	Date         string  `json:"date"` // YYYY-MM-DD
	ChargeWSum   float64 `json:"-"`    // sum of |W| across charging samples
	DischargeWSum float64 `json:"-"`   // sum of W across discharging samples
	MinSOC       float64 `json:"minSOC"`
	MaxSOC       float64 `json:"maxSOC"`
	Samples      int     `json:"samples"`
}

// BatteryDayPoint is one day of derived battery health metrics.
type BatteryDayPoint struct {
	Date                 string  `json:"date"`
	EfficiencyPercent    float64 `json:"efficiency"`
	EstimatedCapacityKWH float64 `json:"estimatedCapacity"`
	ChargeCycles         float64 `json:"chargeCycles"`
}

// BatteryHealthReport is the derived battery health over all stored days.
type BatteryHealthReport struct {
	Days                 []BatteryDayPoint `json:"dataPoints"`
	AverageEfficiency    float64           `json:"averageEfficiency"`
	LatestCapacityKWH    float64           `json:"latestCapacityEst"`
	TotalCycles          int               `json:"totalCycles"`
	StateOfHealthPercent float64           `json:"soh"`
}

// ROISummary is the return-on-investment picture plus the break-even
// projection. BreakEvenDate is nil when the system already broke even or
// when no break-even exists within the 50-year simulation horizon.
type ROISummary struct {
	TotalInvested          float64    `json:"totalInvested"`
	TotalReturned          float64    `json:"totalReturned"`
	NetValue               float64    `json:"netValue"`
	ROIPercent             float64    `json:"roiPercent"`
	BreakEvenDate          *time.Time `json:"breakEvenDate"`
	ProjectedBreakEvenCost float64    `json:"projectedBreakEvenCost,omitempty"`
	Expenses               []Expense  `json:"expenses"`
}

// PricingTotals are period totals under one pricing model.
type PricingTotals struct {
	ImportCost    float64 `json:"importCost"`
	ExportRevenue float64 `json:"exportRevenue"`
	Net           float64 `json:"net"`
}

// ComparisonCoverage reports how much of the requested range both price and
// energy data covered. Hours without a market price are skipped entirely, so
// HoursUsed can be lower than HoursWithEnergy.
type ComparisonCoverage struct {
	HoursWithEnergy int `json:"hoursWithEnergy"`
	HoursWithPrices int `json:"hoursWithPrices"`
	HoursUsed       int `json:"hoursUsed"`
}

// DailyComparison is one day of fixed-vs-dynamic net cost.
type DailyComparison struct {
	Date       string  `json:"date"`
	FixedNet   float64 `json:"fixedNet"`
	DynamicNet float64 `json:"dynamicNet"`
	ImportKWH  float64 `json:"importKwh"`
	ExportKWH  float64 `json:"exportKwh"`
}

// TariffComparison is the result of blending day-ahead market prices with a
// surcharge/VAT model and comparing against the fixed tariff hour-by-hour.
type TariffComparison struct {
	Coverage ComparisonCoverage `json:"coverage"`
	Fixed    PricingTotals      `json:"fixed"`
	Dynamic  PricingTotals      `json:"dynamic"`
	DeltaNet float64            `json:"deltaNet"`
	Daily    []DailyComparison  `json:"seriesDaily"`
}

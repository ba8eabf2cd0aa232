package types

// NotificationSettings controls the Discord webhook alerts.
type NotificationSettings struct {
	WebhookURL    string  `json:"webhookUrl"`
	NotifyOnError bool    `json:"notifyOnError"`
	NotifyOnFull  bool    `json:"notifyOnFull"`
	NotifyOnLow   bool    `json:"notifyOnLow"`
	NotifyOnSOH   bool    `json:"notifyOnSoh"`
	SOHThreshold  float64 `json:"sohThreshold"`
	SOHMinCycles  int     `json:"sohMinCycles"`
}

// AwattarSettings are the defaults for the dynamic-tariff comparison.
// Surcharge is in cents per kWh on top of the market price, VAT in percent.
type AwattarSettings struct {
	Country     string  `json:"country"`
	SurchargeCt float64 `json:"surchargeCt"`
	VATPercent  float64 `json:"vatPercent"`
}

// SolcastSettings configure the optional production forecast proxy.
type SolcastSettings struct {
	APIKey     string  `json:"apiKey"`
	ResourceID string  `json:"resourceId"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
}

// Config is the user-editable system configuration, persisted as JSON in
// the data directory. Zero values are filled by EnsureDefaults.
type Config struct {
	// SystemStartDate is the commissioning date ("2006-01-02"). Yearly
	// expenses never accrue before it.
	SystemStartDate string `json:"systemStartDate"`
	// InverterHost is the Fronius host, restricted to private IPv4
	// with an optional port.
	InverterHost string `json:"inverterHost"`
	// BatteryCapacityKWH is the nominal battery capacity used for cycle
	// counting and state-of-health.
	BatteryCapacityKWH float64 `json:"batteryCapacityKwh"`

	// DegradationRate is panel degradation in percent per year. Nil means
	// the 0.5 default; an explicit 0 disables degradation.
	DegradationRate *float64 `json:"degradationRate"`
	// InflationRate is electricity price inflation in percent per year.
	// Nil means the 2.0 default.
	InflationRate *float64 `json:"inflationRate"`

	// InitialValues are lifetime totals accumulated before this system
	// started recording. DBTotals are recomputed from the database after
	// imports and retention rollups. Lifetime figures are their sum.
	InitialValues EnergyTotals `json:"initialValues"`
	DBTotals      EnergyTotals `json:"dbTotals"`

	Notifications NotificationSettings `json:"notifications"`
	Awattar       AwattarSettings      `json:"awattar"`
	Solcast       SolcastSettings      `json:"solcast"`
}

// Defaults applied by EnsureDefaults.
const (
	DefaultDegradationRate = 0.5
	DefaultInflationRate   = 2.0
	DefaultSOHThreshold    = 75.0
	DefaultSOHMinCycles    = 50
	DefaultAwattarCountry  = "de"
)

// EnsureDefaults fills unset fields so downstream code never has to
// re-check. Pointer rates stay nil; use DegradationPercent and
// InflationPercent to read them.
func (c *Config) EnsureDefaults() {
	if c.BatteryCapacityKWH <= 0 {
		c.BatteryCapacityKWH = 10
	}
	if c.Notifications.SOHThreshold <= 0 {
		c.Notifications.SOHThreshold = DefaultSOHThreshold
	}
	if c.Notifications.SOHMinCycles <= 0 {
		c.Notifications.SOHMinCycles = DefaultSOHMinCycles
	}
	if c.Awattar.Country == "" {
		c.Awattar.Country = DefaultAwattarCountry
	}
}

// DegradationPercent returns the configured degradation rate, defaulting
// when unset. An explicit 0 is respected.
func (c *Config) DegradationPercent() float64 {
	if c.DegradationRate == nil {
		return DefaultDegradationRate
	}
	return *c.DegradationRate
}

// InflationPercent returns the configured inflation rate, defaulting
// when unset. An explicit 0 is respected.
func (c *Config) InflationPercent() float64 {
	if c.InflationRate == nil {
		return DefaultInflationRate
	}
	return *c.InflationRate
}

// LifetimeTotals returns initial values plus database totals.
func (c *Config) LifetimeTotals() EnergyTotals {
	return c.InitialValues.Add(c.DBTotals)
}

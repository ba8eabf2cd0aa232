package types

// Tariff is one fixed-price period. ValidFrom is a calendar date
// ("2006-01-02"); the tariff applies from that local date onward until a
// later tariff takes over. Prices are in the account currency per kWh.
type Tariff struct {
	ID        int64   `json:"id"`
	ValidFrom string  `json:"validFrom"`
	CostKWH   float64 `json:"costKwh"`
	FeedInKWH float64 `json:"feedInKwh"`
}

// Expense kinds. One-time expenses count fully from their date; yearly
// expenses accrue pro-rata over fractional years.
const (
	ExpenseOneTime = "one_time"
	ExpenseYearly  = "yearly"
)

// Expense is an investment or recurring cost attributed to the system.
// Date is a calendar date ("2006-01-02").
type Expense struct {
	ID     int64   `json:"id"`
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
	Type   string  `json:"type"`
	Date   string  `json:"date"`
}

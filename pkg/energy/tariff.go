package energy

import (
	"time"

	"github.com/robotnikz/sunflow/pkg/types"
)

// DefaultTariff returns the synthetic tariff used when no tariffs exist at
// all. Its validFrom predates any plausible data.
func DefaultTariff() types.Tariff {
	return types.Tariff{ValidFrom: "2000-01-01", CostKWH: 0.30, FeedInKWH: 0.08}
}

// ResolveTariff picks the tariff in force at ts. Tariffs must be sorted by
// ValidFrom ascending; the scan keeps the last tariff whose date part is on
// or before ts's date part and stops at the first later one. The first
// tariff serves as the floor when ts predates all of them; callers pass a
// non-empty slice (use DefaultTariff when none are configured).
func ResolveTariff(tariffs []types.Tariff, ts time.Time) types.Tariff {
	if len(tariffs) == 0 {
		return DefaultTariff()
	}
	date := ts.Format("2006-01-02")
	active := tariffs[0]
	for _, t := range tariffs {
		if t.ValidFrom <= date {
			active = t
		} else {
			break
		}
	}
	return active
}
